package webshare

import (
	"context"
	"crypto/md5"
	"crypto/sha1"
	"encoding/hex"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/GehirnInc/crypt/md5_crypt"
	lru "github.com/hashicorp/golang-lru"
	"golang.org/x/sync/singleflight"

	"github.com/NamanBalaji/wsdl/internal/logger"
)

type LoginState string

const (
	LoginNotConfigured LoginState = "not_configured"
	LoginPending       LoginState = "pending"
	LoginSuccess       LoginState = "success"
	LoginError         LoginState = "error"
)

// LoginStatus is the outcome of the most recent login attempt.
type LoginStatus struct {
	State   LoginState
	Message string
}

// Stream is an open download body. The caller must close Body.
type Stream struct {
	Body          io.ReadCloser
	ContentLength int64
}

type searchEntry struct {
	results []SearchResult
	expires time.Time
}

type Client struct {
	client    *http.Client
	transport *http.Transport
	config    ClientConfig
	baseURL   *url.URL

	mu     sync.RWMutex
	token  string
	status LoginStatus

	logins singleflight.Group
	cache  *lru.Cache
}

func NewClient(config *ClientConfig) (*Client, error) {
	if config == nil {
		config = DefaultConfig()
	}

	base, err := url.Parse(config.BaseURL)
	if err != nil || base.Scheme == "" {
		return nil, fmt.Errorf("invalid base url %q", config.BaseURL)
	}
	if !strings.HasSuffix(base.Path, "/") {
		base.Path += "/"
	}

	transport := &http.Transport{
		Proxy:                 http.ProxyFromEnvironment,
		MaxIdleConns:          config.MaxIdleConns,
		MaxIdleConnsPerHost:   config.MaxIdleConnsPerHost,
		MaxConnsPerHost:       config.MaxConnsPerHost,
		IdleConnTimeout:       config.IdleConnTimeout,
		TLSHandshakeTimeout:   config.TLSHandshakeTimeout,
		ResponseHeaderTimeout: config.ResponseHeaderTimeout,

		DialContext: (&net.Dialer{
			Timeout:   config.DialTimeout,
			KeepAlive: config.KeepAliveTimeout,
		}).DialContext,
	}

	if config.ProxyURL != nil {
		transport.Proxy = http.ProxyURL(config.ProxyURL)
	}

	if config.TLSConfig != nil {
		transport.TLSClientConfig = config.TLSConfig
	}

	maxRedirects := config.MaxRedirects
	client := &http.Client{
		Transport: transport,
		CheckRedirect: func(req *http.Request, via []*http.Request) error {
			if len(via) >= maxRedirects {
				return &HTTPError{
					Type:      ErrorTypeHTTP,
					Operation: "redirect",
					URL:       req.URL.String(),
					Status:    http.StatusTooManyRequests,
					Err:       fmt.Errorf("too many redirects (max: %d)", maxRedirects),
				}
			}
			return nil
		},
	}

	size := config.SearchCacheSize
	if size <= 0 {
		size = 1
	}
	cache, err := lru.New(size)
	if err != nil {
		return nil, err
	}

	c := &Client{
		client:    client,
		transport: transport,
		config:    *config,
		baseURL:   base,
		cache:     cache,
		status:    LoginStatus{State: LoginNotConfigured, Message: "Webshare.cz credentials not configured"},
	}
	if c.CredentialsConfigured() {
		c.status = LoginStatus{State: LoginPending, Message: "Login not attempted yet"}
	}

	return c, nil
}

func (c *Client) CredentialsConfigured() bool {
	return c.config.Username != "" && c.config.Password != ""
}

func (c *Client) Username() string {
	return c.config.Username
}

func (c *Client) LoggedIn() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.token != ""
}

func (c *Client) LoginStatus() LoginStatus {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.status
}

// Login obtains a session token. Concurrent callers share one round trip.
func (c *Client) Login(ctx context.Context) error {
	if !c.CredentialsConfigured() {
		return ErrNoCredentials
	}

	_, err, shared := c.logins.Do("login", func() (any, error) {
		token, err := c.login(ctx)

		c.mu.Lock()
		defer c.mu.Unlock()
		if err != nil {
			c.status = LoginStatus{State: LoginError, Message: "Login failed: " + err.Error()}
			return nil, err
		}
		c.token = token
		c.status = LoginStatus{State: LoginSuccess, Message: "Successfully logged in as " + c.config.Username}
		return nil, nil
	})
	if shared {
		logger.Debugf("Joined an in-flight webshare login")
	}

	return err
}

func (c *Client) login(ctx context.Context) (string, error) {
	saltResp, err := c.call(ctx, "salt", url.Values{"username_or_email": {c.config.Username}})
	if err != nil {
		return "", fmt.Errorf("failed to get salt: %w", err)
	}

	pass, digest, err := passwordDigest(c.config.Username, c.config.Password, saltResp.Salt)
	if err != nil {
		return "", err
	}

	loginResp, err := c.call(ctx, "login", url.Values{
		"username_or_email": {c.config.Username},
		"password":          {pass},
		"digest":            {digest},
		"keep_sticky":       {"1"},
	})
	if err != nil {
		return "", err
	}
	if loginResp.Token == "" {
		return "", &APIError{Operation: "login", Status: loginResp.Status, Message: "empty token"}
	}

	logger.Infof("Logged in to webshare as %s", c.config.Username)
	return loginResp.Token, nil
}

// passwordDigest derives the hashed password and digest the login endpoint expects.
func passwordDigest(username, password, salt string) (string, string, error) {
	crypted, err := md5_crypt.New().Generate([]byte(password), []byte("$1$"+salt))
	if err != nil {
		return "", "", fmt.Errorf("failed to hash password: %w", err)
	}

	sum := sha1.Sum([]byte(crypted))
	pass := hex.EncodeToString(sum[:])

	d := md5.Sum([]byte(username + ":Webshare:" + pass))
	return pass, hex.EncodeToString(d[:]), nil
}

// ensureToken returns the session token, logging in first when possible.
func (c *Client) ensureToken(ctx context.Context) (string, error) {
	c.mu.RLock()
	token := c.token
	c.mu.RUnlock()
	if token != "" {
		return token, nil
	}

	if !c.CredentialsConfigured() {
		return "", ErrNotLoggedIn
	}
	if err := c.Login(ctx); err != nil {
		return "", fmt.Errorf("%w: %v", ErrNotLoggedIn, err)
	}

	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.token, nil
}

// Search queries the video category. Results for the same query are served
// from the cache until they expire.
func (c *Client) Search(ctx context.Context, query string) ([]SearchResult, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, ErrEmptyQuery
	}

	key := strings.ToLower(query)
	if v, ok := c.cache.Get(key); ok {
		entry := v.(searchEntry)
		if time.Now().Before(entry.expires) {
			logger.Debugf("Search cache hit for %q", query)
			return append([]SearchResult(nil), entry.results...), nil
		}
		c.cache.Remove(key)
	}

	form := url.Values{
		"what":     {query},
		"category": {"video"},
		"sort":     {""},
		"limit":    {strconv.Itoa(c.config.SearchLimit)},
		"offset":   {"0"},
	}
	c.mu.RLock()
	if c.token != "" {
		form.Set("wst", c.token)
	}
	c.mu.RUnlock()

	resp, err := c.call(ctx, "search", form)
	if err != nil {
		return nil, err
	}

	results := make([]SearchResult, 0, len(resp.Files))
	for _, f := range resp.Files {
		results = append(results, f.result())
	}

	if c.config.SearchCacheTTL > 0 {
		c.cache.Add(key, searchEntry{results: results, expires: time.Now().Add(c.config.SearchCacheTTL)})
	}
	logger.Debugf("Search %q returned %d of %d results", query, len(results), resp.Total)

	return append([]SearchResult(nil), results...), nil
}

// InitiateDownload resolves a file ident into a direct download link.
func (c *Client) InitiateDownload(ctx context.Context, ident string) (*FileLink, error) {
	if ident == "" {
		return nil, ErrEmptyIdent
	}

	token, err := c.ensureToken(ctx)
	if err != nil {
		return nil, err
	}

	info, err := c.call(ctx, "file_info", url.Values{"ident": {ident}, "wst": {token}})
	if err != nil {
		return nil, fmt.Errorf("failed to get file info: %w", err)
	}

	link, err := c.call(ctx, "file_link", url.Values{
		"ident":         {ident},
		"wst":           {token},
		"download_type": {"file_download"},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to get download link: %w", err)
	}
	if link.Link == "" {
		return nil, &APIError{Operation: "file_link", Status: link.Status, Message: "empty download link"}
	}

	return &FileLink{URL: link.Link, Size: info.Size, Name: info.Name}, nil
}

// Fetch opens the payload at rawURL for streaming.
func (c *Client) Fetch(ctx context.Context, rawURL string) (*Stream, error) {
	return withRetry(ctx, c.config.MaxRetries, c.config.RetryDelay, "fetch", func() (*Stream, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
		if err != nil {
			return nil, &HTTPError{Type: ErrorTypeValidation, Operation: "GET", URL: rawURL, Err: err}
		}
		c.applyHeaders(req)

		resp, err := c.client.Do(req)
		if err != nil {
			return nil, NewHTTPNetworkError("GET", rawURL, err)
		}

		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			resp.Body.Close()
			return nil, NewHTTPStatusError("GET", rawURL, resp.StatusCode,
				fmt.Errorf("unexpected status %s", resp.Status))
		}

		return &Stream{Body: resp.Body, ContentLength: resp.ContentLength}, nil
	})
}

// call posts form to the named endpoint and decodes the XML response.
func (c *Client) call(ctx context.Context, endpoint string, form url.Values) (*response, error) {
	return withRetry(ctx, c.config.MaxRetries, c.config.RetryDelay, endpoint, func() (*response, error) {
		return c.post(ctx, endpoint, form)
	})
}

func (c *Client) post(ctx context.Context, endpoint string, form url.Values) (*response, error) {
	if c.config.RequestTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.config.RequestTimeout)
		defer cancel()
	}

	target := c.baseURL.JoinPath(endpoint).String() + "/"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, target, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, &HTTPError{Type: ErrorTypeValidation, Operation: endpoint, URL: target, Err: err}
	}
	c.applyHeaders(req)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", "text/xml; charset=UTF-8")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, NewHTTPNetworkError(endpoint, target, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, NewHTTPStatusError(endpoint, target, resp.StatusCode,
			fmt.Errorf("unexpected status %s", resp.Status))
	}

	var out response
	if err := xml.NewDecoder(resp.Body).Decode(&out); err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, NewHTTPNetworkError(endpoint, target, err)
		}
		return nil, fmt.Errorf("failed to decode %s response: %w", endpoint, err)
	}

	if out.Status != statusOK {
		return nil, &APIError{Operation: endpoint, Status: out.Status, Code: out.Code, Message: out.Message}
	}

	return &out, nil
}

func (c *Client) applyHeaders(req *http.Request) {
	for k, v := range c.config.DefaultHeaders {
		req.Header.Set(k, v)
	}
}

// Cleanup releases idle connections.
func (c *Client) Cleanup() error {
	c.transport.CloseIdleConnections()
	return nil
}
