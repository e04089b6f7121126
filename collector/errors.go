package collector

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
)

// ErrPageTimeout indicates a page-load wait exceeded its bound. Fatal for
// the run; there is no partial-page retry.
type ErrPageTimeout struct {
	Err error
}

func (e ErrPageTimeout) Error() string {
	return fmt.Errorf("page timeout: %w", e.Err).Error()
}

func (e ErrPageTimeout) Unwrap() error {
	return e.Err
}

// ErrConnection indicates the search site could not be reached.
type ErrConnection struct {
	Err error
}

func (e ErrConnection) Error() string {
	return fmt.Errorf("connection: %w", e.Err).Error()
}

func (e ErrConnection) Unwrap() error {
	return e.Err
}

// ErrBlocked indicates the site refused the session (HTTP 403 or 429),
// usually an anti-automation defense.
type ErrBlocked struct {
	Err error
}

func (e ErrBlocked) Error() string {
	return fmt.Errorf("blocked: %w", e.Err).Error()
}

func (e ErrBlocked) Unwrap() error {
	return e.Err
}

// ErrNoResultTable indicates the search page loaded but the result table
// never rendered.
type ErrNoResultTable struct {
	URL string
}

func (e ErrNoResultTable) Error() string {
	return fmt.Sprintf("result table not found on %s", e.URL)
}

func errorTypeLabel(err error) string {
	if err == nil {
		return "unknown"
	}
	var timeout ErrPageTimeout
	if errors.As(err, &timeout) {
		return "timeout"
	}
	var conn ErrConnection
	if errors.As(err, &conn) {
		return "connection"
	}
	var blocked ErrBlocked
	if errors.As(err, &blocked) {
		return "blocked"
	}
	var noTable ErrNoResultTable
	if errors.As(err, &noTable) {
		return "no_result_table"
	}
	return "other"
}

func classifyError(err error, statusCode int) error {
	if err == nil && statusCode == 0 {
		return nil
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return ErrPageTimeout{Err: err}
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return ErrPageTimeout{Err: err}
	}
	var opErr *net.OpError
	if errors.As(err, &opErr) {
		return ErrConnection{Err: err}
	}

	if statusCode != 0 {
		wrapped := err
		if wrapped == nil {
			wrapped = fmt.Errorf("http status %d", statusCode)
		}
		switch statusCode {
		case http.StatusForbidden, http.StatusTooManyRequests:
			return ErrBlocked{Err: wrapped}
		}
	}

	return err
}
