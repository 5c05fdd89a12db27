// Package notify tells a media library that new files arrived.
package notify

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/NamanBalaji/wsdl/internal/logger"
)

var ErrRefreshFailed = errors.New("library refresh failed")

// Notifier is invoked once per completed download. Errors are for logging only.
type Notifier interface {
	Refresh(ctx context.Context) error
}

// Nop is used when no library is configured.
type Nop struct{}

func (Nop) Refresh(context.Context) error { return nil }

// Plex asks a Plex server to rescan every library section.
type Plex struct {
	baseURL string
	token   string
	timeout time.Duration
	client  *http.Client
}

func NewPlex(baseURL, token string, timeout time.Duration) *Plex {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &Plex{
		baseURL: strings.TrimRight(baseURL, "/"),
		token:   token,
		timeout: timeout,
		client:  &http.Client{},
	}
}

// New returns a Plex notifier when a token is set and Nop otherwise.
func New(baseURL, token string, timeout time.Duration) Notifier {
	if token == "" {
		logger.Infof("Plex token not set, library refresh disabled")
		return Nop{}
	}
	logger.Infof("Plex library refresh enabled at %s", baseURL)
	return NewPlex(baseURL, token, timeout)
}

func (p *Plex) Refresh(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	target := fmt.Sprintf("%s/library/sections/all/refresh?X-Plex-Token=%s", p.baseURL, url.QueryEscape(p.token))
	req, err := http.NewRequestWithContext(ctx, http.MethodPut, target, nil)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrRefreshFailed, err)
	}

	resp, err := p.client.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrRefreshFailed, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%w: status %d", ErrRefreshFailed, resp.StatusCode)
	}

	logger.Infof("Plex library refresh triggered")
	return nil
}
