package webshare

import (
	"crypto/tls"
	"net/url"
	"time"
)

// DefaultBaseURL is the XML API root of webshare.cz.
const DefaultBaseURL = "https://webshare.cz/api/"

type ClientConfig struct {
	// API settings
	BaseURL         string
	Username        string
	Password        string
	MaxRetries      int
	RetryDelay      time.Duration
	RequestTimeout  time.Duration // applies to API calls, not to Fetch streams
	SearchCacheSize int
	SearchCacheTTL  time.Duration
	SearchLimit     int

	// Connection settings
	ProxyURL            *url.URL
	MaxIdleConns        int
	MaxIdleConnsPerHost int
	MaxConnsPerHost     int
	IdleConnTimeout     time.Duration
	MaxRedirects        int

	// Timeouts
	DialTimeout           time.Duration
	TLSHandshakeTimeout   time.Duration
	ResponseHeaderTimeout time.Duration
	KeepAliveTimeout      time.Duration

	// TLS
	TLSConfig *tls.Config

	// Headers
	DefaultHeaders map[string]string
}

// DefaultConfig returns a ClientConfig with sensible defaults
func DefaultConfig() *ClientConfig {
	return &ClientConfig{
		BaseURL:         DefaultBaseURL,
		MaxRetries:      2,
		RetryDelay:      500 * time.Millisecond,
		RequestTimeout:  20 * time.Second,
		SearchCacheSize: 64,
		SearchCacheTTL:  time.Minute,
		SearchLimit:     50,

		MaxIdleConns:          100,
		MaxIdleConnsPerHost:   10,
		MaxConnsPerHost:       10,
		IdleConnTimeout:       90 * time.Second,
		MaxRedirects:          10,
		DialTimeout:           30 * time.Second,
		TLSHandshakeTimeout:   10 * time.Second,
		ResponseHeaderTimeout: 30 * time.Second,
		KeepAliveTimeout:      30 * time.Second,

		DefaultHeaders: map[string]string{
			"User-Agent": "wsdl/1.0",
		},
	}
}
