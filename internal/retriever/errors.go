package retriever

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/url"
)

// Retrieval failure taxonomy. The orchestrator records the classified
// message; the class itself only matters for reporting.
var (
	ErrNetwork  = errors.New("network error")
	ErrTimeout  = errors.New("timeout")
	ErrProtocol = errors.New("protocol error")
)

// classify wraps transport errors with the matching sentinel so callers can
// errors.Is on the class.
func classify(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w: %v", ErrTimeout, err)
	}
	var ne net.Error
	if errors.As(err, &ne) && ne.Timeout() {
		return fmt.Errorf("%w: %v", ErrTimeout, err)
	}
	var ue *url.Error
	if errors.As(err, &ue) {
		return fmt.Errorf("%w: %v", ErrNetwork, err)
	}
	return fmt.Errorf("%w: %v", ErrNetwork, err)
}

func protocolErr(status string) error {
	return fmt.Errorf("%w: unexpected status %s", ErrProtocol, status)
}
