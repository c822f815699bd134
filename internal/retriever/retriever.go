// Package retriever fetches one invoice document over the authenticated
// session and writes it under the download root.
package retriever

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"invoicefetch/internal/config"
	"invoicefetch/internal/logging"
	"invoicefetch/internal/row"
)

type Client struct {
	cfg    *config.Config
	log    *logging.Logger
	client *http.Client
}

func New(cfg *config.Config, log *logging.Logger) *Client {
	timeout := time.Duration(cfg.TimeoutSecondsOrDefault()) * time.Second
	return &Client{
		cfg: cfg,
		log: log,
		client: &http.Client{Timeout: timeout},
	}
}

// Retrieve downloads the document behind rec's DocumentRef to the download
// root and returns the written path. Failures are classified as network,
// timeout, or protocol errors.
func (c *Client) Retrieve(ctx context.Context, rec *row.Record) (string, error) {
	docID := rec.DocumentID()
	if docID == "" {
		return "", fmt.Errorf("%w: row %d has no document reference", ErrProtocol, rec.Index)
	}
	url := c.documentURL(docID)
	dest := filepath.Join(c.cfg.General.DownloadRoot, rec.FileName())
	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", err
	}
	if ua := c.cfg.Source.UserAgent; ua != "" {
		req.Header.Set("User-Agent", ua)
	}
	if cookie := c.cfg.SessionCookie(); cookie != "" {
		req.Header.Set("Cookie", cookie)
	}
	c.log.Debugf("GET %s -> %s", url, dest)
	resp, err := c.client.Do(req)
	if err != nil {
		return "", classify(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return "", protocolErr(resp.Status)
	}

	part := dest + ".part"
	f, err := os.Create(part)
	if err != nil {
		return "", err
	}
	if _, err := io.Copy(f, resp.Body); err != nil {
		_ = f.Close()
		_ = os.Remove(part)
		return "", classify(err)
	}
	if err := f.Close(); err != nil {
		return "", err
	}
	if err := os.Rename(part, dest); err != nil {
		return "", err
	}
	return dest, nil
}

func (c *Client) documentURL(docID string) string {
	base := strings.TrimRight(c.cfg.Source.BaseURL, "/")
	return base + "/tax/documents/" + docID + "/download"
}

// DryRun is a Retrieve stand-in that touches nothing and always succeeds,
// used by `download --dry-run`.
type DryRun struct{}

func (DryRun) Retrieve(_ context.Context, rec *row.Record) (string, error) {
	if rec.DocumentID() == "" {
		return "", errors.New("no document reference")
	}
	return rec.FileName(), nil
}
