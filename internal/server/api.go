// Package server implements the HTTP API and server lifecycle.
package server

import (
	"bytes"
	"encoding/json"
	"net/http"

	"go.uber.org/zap"

	"github.com/rsclarke/keyward/internal/auth"
	"github.com/rsclarke/keyward/internal/keys"
	"github.com/rsclarke/keyward/internal/metrics"
	"github.com/rsclarke/keyward/internal/stats"
	"github.com/rsclarke/keyward/internal/types"
	"github.com/rsclarke/keyward/internal/validation"
)

// APIServer handles key validation and the admin API.
type APIServer struct {
	Pipeline    *validation.Pipeline
	Keys        *keys.Manager
	Stats       *stats.Aggregator
	Sessions    *auth.SessionStore
	Credentials auth.Credentials
	// SecureCookies marks the session cookie Secure; set when serving TLS.
	SecureCookies bool
	Logger        *zap.Logger
}

// Handler returns the HTTP handler for the API server.
func (s *APIServer) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/validate", s.handleValidate)
	mux.HandleFunc("POST /api/auth/login", s.handleLogin)
	mux.HandleFunc("POST /api/auth/logout", s.handleLogout)

	mux.Handle("GET /api/keys", s.requireSession(http.HandlerFunc(s.handleListKeys)))
	mux.Handle("POST /api/keys", s.requireSession(http.HandlerFunc(s.handleCreateKey)))
	mux.Handle("GET /api/keys/{id}", s.requireSession(http.HandlerFunc(s.handleGetKey)))
	mux.Handle("PUT /api/keys/{id}", s.requireSession(http.HandlerFunc(s.handleUpdateKey)))
	mux.Handle("DELETE /api/keys/{id}", s.requireSession(http.HandlerFunc(s.handleDeleteKey)))
	mux.Handle("GET /api/stats", s.requireSession(http.HandlerFunc(s.handleStats)))

	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	return metrics.Middleware(mux)
}

func (s *APIServer) logger() *zap.Logger {
	if s.Logger != nil {
		return s.Logger
	}
	return zap.NewNop()
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	buf := new(bytes.Buffer)
	if err := json.NewEncoder(buf).Encode(data); err != nil {
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(buf.Bytes())
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, types.ErrorResponse{Success: false, Error: msg})
}
