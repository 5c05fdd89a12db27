package webshare

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
)

var (
	ErrNoCredentials = errors.New("no credentials configured")
	ErrNotLoggedIn   = errors.New("not logged in")
	ErrEmptyQuery    = errors.New("query parameter is required")
	ErrEmptyIdent    = errors.New("file ident is required")
)

type ErrorType int

const (
	ErrorTypeNetwork ErrorType = iota
	ErrorTypeHTTP
	ErrorTypeValidation
	ErrorTypeTimeout
)

type HTTPError struct {
	Type      ErrorType
	Operation string
	URL       string
	Status    int
	Err       error
}

func NewHTTPNetworkError(operation, url string, err error) *HTTPError {
	kind := ErrorTypeNetwork
	var netErr net.Error
	if errors.Is(err, context.DeadlineExceeded) || (errors.As(err, &netErr) && netErr.Timeout()) {
		kind = ErrorTypeTimeout
	}

	return &HTTPError{Type: kind, Operation: operation, URL: url, Err: err}
}

func NewHTTPStatusError(operation, url string, status int, err error) *HTTPError {
	return &HTTPError{Type: ErrorTypeHTTP, Operation: operation, URL: url, Status: status, Err: err}
}

func (e *HTTPError) Error() string {
	switch e.Type {
	case ErrorTypeHTTP:
		return fmt.Sprintf("HTTP error during %s for %s: status %d: %v",
			e.Operation, e.URL, e.Status, e.Err)
	case ErrorTypeNetwork:
		return fmt.Sprintf("network error during %s for %s: %v",
			e.Operation, e.URL, e.Err)
	case ErrorTypeTimeout:
		return fmt.Sprintf("timeout during %s for %s: %v",
			e.Operation, e.URL, e.Err)
	default:
		return fmt.Sprintf("error during %s for %s: %v",
			e.Operation, e.URL, e.Err)
	}
}

func (e *HTTPError) Unwrap() error {
	return e.Err
}

// Temporary reports whether repeating the request may succeed.
func (e *HTTPError) Temporary() bool {
	switch e.Type {
	case ErrorTypeNetwork, ErrorTypeTimeout:
		return !errors.Is(e.Err, context.Canceled)
	case ErrorTypeHTTP:
		return e.Status >= http.StatusInternalServerError || e.Status == http.StatusTooManyRequests
	default:
		return false
	}
}

// APIError is a response whose <status> element is not OK.
type APIError struct {
	Operation string
	Status    string
	Code      string
	Message   string
}

func (e *APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("webshare %s failed: %s %s", e.Operation, e.Status, e.Code)
	}
	return fmt.Sprintf("webshare %s failed: %s", e.Operation, e.Message)
}
