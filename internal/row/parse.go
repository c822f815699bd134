package row

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// RawRow is what the HTML source hands us for one table row: the text of
// each cell in document order, plus the attribute map of the row's
// download control (nil when the row has none).
type RawRow struct {
	Cells        []string
	ControlAttrs map[string]string
}

// Record is the parsed form of one invoice row.
type Record struct {
	Index       int
	InvoiceID   string
	StartDate   string // ISO YYYY-MM-DD, empty when absent/unparseable
	EndDate     string
	Marketplace string
	SearchText  string
	Selected    bool
	DocumentRef map[string]string
}

// brandPrefix marks the marketplace cell, e.g. "Amazon.de".
const brandPrefix = "amazon."

// documentRefAttrs is the fixed attribute set read off the download control.
var documentRefAttrs = []string{
	"data-document-id",
	"data-document-type",
	"data-marketplace-id",
	"data-file-name",
}

var (
	invoiceIDRe = regexp.MustCompile(`\b[A-Z]{2}-[A-Za-z0-9]+-\d{4}-\d{4}\b`)
	dateRe      = regexp.MustCompile(`(?i)\b(Sun|Mon|Tue|Wed|Thu|Fri|Sat)[a-z]*\.?,?\s+(Jan|Feb|Mar|Apr|May|Jun|Jul|Aug|Sep|Oct|Nov|Dec)[a-z]*\.?\s+(\d{1,2})(?:,?\s+(\d{4}))?`)
)

var months = map[string]time.Month{
	"jan": time.January, "feb": time.February, "mar": time.March,
	"apr": time.April, "may": time.May, "jun": time.June,
	"jul": time.July, "aug": time.August, "sep": time.September,
	"oct": time.October, "nov": time.November, "dec": time.December,
}

// Parse extracts a Record from one raw row. It is pure and total: malformed
// cells degrade to empty fields, never an error.
func Parse(index int, raw RawRow) Record {
	rec := Record{
		Index:       index,
		InvoiceID:   extractInvoiceID(raw.Cells),
		StartDate:   extractDate(raw.Cells, 0),
		EndDate:     extractDate(raw.Cells, 1),
		Marketplace: extractMarketplace(raw.Cells),
		SearchText:  strings.ToLower(strings.Join(raw.Cells, " ")),
		DocumentRef: extractDocumentRef(raw.ControlAttrs),
	}
	return rec
}

// extractInvoiceID returns the first cell text matching the invoice id
// pattern (two-letter prefix, alphanumeric segment, two numeric groups).
// First match wins.
func extractInvoiceID(cells []string) string {
	for _, c := range cells {
		if m := invoiceIDRe.FindString(c); m != "" {
			return m
		}
	}
	return ""
}

// extractDate returns the nth (0-indexed) date-like occurrence across the
// cells, left to right, as an ISO date. Empty when absent or unparseable.
func extractDate(cells []string, nth int) string {
	seen := 0
	for _, c := range cells {
		for _, m := range dateRe.FindAllStringSubmatch(c, -1) {
			if seen == nth {
				return isoDate(m)
			}
			seen++
		}
	}
	return ""
}

func isoDate(m []string) string {
	mon, ok := months[strings.ToLower(m[2])]
	if !ok {
		return ""
	}
	day, err := strconv.Atoi(m[3])
	if err != nil || day < 1 || day > 31 {
		return ""
	}
	year := time.Now().Year()
	if m[4] != "" {
		year, err = strconv.Atoi(m[4])
		if err != nil {
			return ""
		}
	}
	t := time.Date(year, mon, day, 0, 0, 0, 0, time.UTC)
	if t.Day() != day || t.Month() != mon {
		// e.g. Feb 30 normalized away
		return ""
	}
	return fmt.Sprintf("%04d-%02d-%02d", year, int(mon), day)
}

// extractMarketplace returns the first cell starting with the brand prefix,
// lowercased with the prefix stripped; "unknown" when no cell matches.
func extractMarketplace(cells []string) string {
	for _, c := range cells {
		t := strings.ToLower(strings.TrimSpace(c))
		if strings.HasPrefix(t, brandPrefix) {
			return strings.TrimPrefix(t, brandPrefix)
		}
	}
	return "unknown"
}

func extractDocumentRef(attrs map[string]string) map[string]string {
	ref := make(map[string]string, len(documentRefAttrs))
	for _, k := range documentRefAttrs {
		ref[k] = attrs[k] // missing keys stay ""
	}
	return ref
}

// DocumentID returns the opaque document identifier used by the retriever.
func (r Record) DocumentID() string {
	return r.DocumentRef["data-document-id"]
}

// FileName returns the control-suggested file name, defaulting to the
// invoice id with a .pdf extension.
func (r Record) FileName() string {
	if n := r.DocumentRef["data-file-name"]; n != "" {
		return n
	}
	if r.InvoiceID != "" {
		return r.InvoiceID + ".pdf"
	}
	return fmt.Sprintf("row-%d.pdf", r.Index)
}
