package api

import (
	"context"
	"errors"
	"io/fs"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/NamanBalaji/wsdl/internal/common"
	"github.com/NamanBalaji/wsdl/internal/engine"
	"github.com/NamanBalaji/wsdl/internal/library"
	"github.com/NamanBalaji/wsdl/internal/logger"
	"github.com/NamanBalaji/wsdl/internal/webshare"
)

const notTrackedMessage = "Download not found or completed"

func (s *Server) handleIndex(static fs.FS) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		http.ServeFileFS(w, r, static, "index.html")
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	RespondJSON(w, http.StatusOK, map[string]string{
		"status":  "OK",
		"service": "webshare-search-app",
	})
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	remote := s.opts.Remote
	if remote.LoggedIn() {
		RespondJSON(w, http.StatusOK, map[string]any{"success": true, "message": "Already logged in"})
		return
	}
	if !remote.CredentialsConfigured() {
		RespondError(w, http.StatusBadRequest, "No credentials configured")
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), s.opts.RemoteTimeout)
	defer cancel()

	if err := remote.Login(ctx); err != nil {
		logger.Errorf("Login error: %v", err)
		RespondError(w, http.StatusBadRequest, err.Error())
		return
	}
	RespondJSON(w, http.StatusOK, map[string]any{"success": true, "message": "Logged in successfully"})
}

type statusResponse struct {
	LoggedIn              bool    `json:"logged_in"`
	CredentialsConfigured bool    `json:"credentials_configured"`
	LoginStatus           string  `json:"login_status"`
	LoginMessage          string  `json:"login_message"`
	Username              *string `json:"username"`
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	remote := s.opts.Remote
	st := remote.LoginStatus()
	resp := statusResponse{
		LoggedIn:              remote.LoggedIn(),
		CredentialsConfigured: remote.CredentialsConfigured(),
		LoginStatus:           string(st.State),
		LoginMessage:          st.Message,
	}
	if resp.CredentialsConfigured {
		name := remote.Username()
		resp.Username = &name
	}
	RespondJSON(w, http.StatusOK, resp)
}

type searchRequest struct {
	Query string `json:"query"`
}

func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	var req searchRequest
	if err := decodeJSON(w, r, &req); err != nil {
		RespondError(w, http.StatusBadRequest, "Query parameter is required")
		return
	}
	query := strings.TrimSpace(req.Query)
	if query == "" {
		RespondError(w, http.StatusBadRequest, "Query parameter is required")
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), s.opts.RemoteTimeout)
	defer cancel()

	results, err := s.opts.Remote.Search(ctx, query)
	if err != nil {
		logger.Errorf("Search error for %q: %v", query, err)
		status := http.StatusInternalServerError
		if errors.Is(err, webshare.ErrEmptyQuery) {
			status = http.StatusBadRequest
		}
		RespondError(w, status, err.Error())
		return
	}
	if results == nil {
		results = []webshare.SearchResult{}
	}
	RespondJSON(w, http.StatusOK, map[string]any{"success": true, "results": results})
}

type downloadRequest struct {
	FileID      string `json:"fileId"`
	FileName    string `json:"fileName"`
	ContentType string `json:"contentType"`
	Priority    int    `json:"priority"`
}

func (s *Server) handleDownload(w http.ResponseWriter, r *http.Request) {
	var req downloadRequest
	if err := decodeJSON(w, r, &req); err != nil {
		RespondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if strings.TrimSpace(req.FileID) == "" {
		RespondError(w, http.StatusBadRequest, "File ID is required")
		return
	}

	contentType := common.ParseContentType(req.ContentType)
	logger.Infof("Downloading %s as %s", req.FileName, contentType)

	state, inFlight, err := s.opts.Engine.BeginDownload(r.Context(), engine.Request{
		FileID:      req.FileID,
		FileName:    req.FileName,
		ContentType: contentType,
		Priority:    req.Priority,
	})
	switch {
	case errors.Is(err, engine.ErrInvalidFileID):
		RespondError(w, http.StatusBadRequest, "Invalid file ID")
		return
	case errors.Is(err, engine.ErrEngineNotRunning):
		RespondError(w, http.StatusServiceUnavailable, "Downloads are not being accepted")
		return
	case err != nil:
		logger.Errorf("Download error: %v", err)
		RespondError(w, http.StatusInternalServerError, err.Error())
		return
	}

	name := state.FileName
	if name == "" {
		name = state.FileID
	}
	message := "Download started: " + name
	if inFlight {
		message = "Download already in progress: " + name
	}
	RespondJSON(w, http.StatusOK, map[string]any{
		"success":  true,
		"message":  message,
		"fileId":   state.FileID,
		"status":   state.Status,
		"progress": state.Progress,
	})
}

func (s *Server) handleProgress(w http.ResponseWriter, r *http.Request) {
	state, err := s.opts.Engine.Progress(chi.URLParam(r, "fileId"))
	if err != nil {
		RespondError(w, http.StatusNotFound, notTrackedMessage)
		return
	}
	RespondJSON(w, http.StatusOK, map[string]any{"success": true, "download": state})
}

func (s *Server) handleClear(w http.ResponseWriter, r *http.Request) {
	fileID := chi.URLParam(r, "fileId")
	state, err := s.opts.Engine.Clear(fileID)
	switch {
	case errors.Is(err, engine.ErrDownloadNotFound):
		RespondError(w, http.StatusNotFound, notTrackedMessage)
		return
	case errors.Is(err, engine.ErrDownloadActive):
		RespondError(w, http.StatusConflict, "Download is still in progress")
		return
	case err != nil:
		RespondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	RespondJSON(w, http.StatusOK, map[string]any{
		"success":  true,
		"message":  "Download cleared: " + fileID,
		"download": state,
	})
}

func (s *Server) handleActive(w http.ResponseWriter, r *http.Request) {
	RespondJSON(w, http.StatusOK, map[string]any{
		"success":   true,
		"downloads": s.opts.Engine.Active(),
		"stats":     s.opts.Engine.Stats(),
	})
}

func (s *Server) handleListFiles(w http.ResponseWriter, r *http.Request) {
	files, err := library.List(s.opts.Library...)
	if err != nil {
		logger.Errorf("List downloads error: %v", err)
		RespondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	RespondJSON(w, http.StatusOK, map[string]any{"success": true, "files": files})
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	history := []common.DownloadState{}
	if s.opts.History != nil {
		records, err := s.opts.History.FindAll()
		if err != nil {
			logger.Errorf("History error: %v", err)
			RespondError(w, http.StatusInternalServerError, err.Error())
			return
		}
		history = append(history, records...)
	}
	RespondJSON(w, http.StatusOK, map[string]any{"success": true, "history": history})
}
