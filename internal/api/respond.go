package api

import (
	"encoding/json"
	"net/http"

	"github.com/NamanBalaji/wsdl/internal/logger"
)

const maxBodyBytes = 1 << 20

// RespondJSON writes v with the given status code.
func RespondJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.Errorf("Failed to encode response: %v", err)
	}
}

// RespondError writes the {success:false, error} envelope the front end expects.
func RespondError(w http.ResponseWriter, status int, msg string) {
	RespondJSON(w, status, map[string]any{
		"success": false,
		"error":   msg,
	})
}

func decodeJSON(w http.ResponseWriter, r *http.Request, v any) error {
	return json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(v)
}
