// Package api serves the web page and the JSON endpoints behind it.
package api

import (
	"context"
	"embed"
	"io/fs"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/NamanBalaji/wsdl/internal/common"
	"github.com/NamanBalaji/wsdl/internal/engine"
	"github.com/NamanBalaji/wsdl/internal/library"
	"github.com/NamanBalaji/wsdl/internal/webshare"
)

//go:embed web
var webFS embed.FS

// Engine is the part of *engine.Engine the handlers use.
type Engine interface {
	BeginDownload(ctx context.Context, req engine.Request) (common.DownloadState, bool, error)
	Progress(fileID string) (common.DownloadState, error)
	Clear(fileID string) (common.DownloadState, error)
	Active() []common.DownloadState
	Stats() common.GlobalStats
}

// Remote is the part of *webshare.Client the handlers use.
type Remote interface {
	Login(ctx context.Context) error
	LoggedIn() bool
	CredentialsConfigured() bool
	LoginStatus() webshare.LoginStatus
	Username() string
	Search(ctx context.Context, query string) ([]webshare.SearchResult, error)
}

// History lists finished downloads.
type History interface {
	FindAll() ([]common.DownloadState, error)
}

type Options struct {
	Engine  Engine
	Remote  Remote
	History History
	// Library holds the directories listed by GET /api/downloads.
	Library []library.Dir
	// Metrics is mounted on /metrics when set.
	Metrics http.Handler
	// RemoteTimeout bounds login and search calls.
	RemoteTimeout time.Duration
}

type Server struct {
	opts Options
}

func NewServer(opts Options) *Server {
	if opts.RemoteTimeout <= 0 {
		opts.RemoteTimeout = 30 * time.Second
	}
	return &Server{opts: opts}
}

// Router builds the HTTP handler with every route mounted.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(requestLogger)
	r.Use(WithCORS)

	static, err := fs.Sub(webFS, "web")
	if err != nil {
		panic(err)
	}
	r.Get("/", s.handleIndex(static))
	r.Handle("/static/*", http.FileServer(http.FS(static)))

	r.Get("/health", s.handleHealth)
	if s.opts.Metrics != nil {
		r.Handle("/metrics", s.opts.Metrics)
	}

	r.Route("/api", func(r chi.Router) {
		r.Post("/login", s.handleLogin)
		r.Get("/status", s.handleStatus)
		r.Post("/search", s.handleSearch)

		r.Post("/download", s.handleDownload)
		r.Get("/download/progress/{fileId}", s.handleProgress)
		r.Delete("/download/{fileId}", s.handleClear)

		r.Get("/downloads", s.handleListFiles)
		r.Get("/downloads/active", s.handleActive)
		r.Get("/history", s.handleHistory)
	})

	return r
}
