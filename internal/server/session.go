package server

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"go.uber.org/zap"

	"github.com/rsclarke/keyward/internal/logging"
	"github.com/rsclarke/keyward/internal/types"
)

// SessionCookie is the name of the admin session cookie.
const SessionCookie = "session"

type contextKey string

const adminContextKey contextKey = "admin"

func getAdmin(r *http.Request) string {
	if name, ok := r.Context().Value(adminContextKey).(string); ok {
		return name
	}
	return ""
}

// sessionToken returns the session cookie value or, failing that, a bearer token.
func sessionToken(r *http.Request) string {
	if c, err := r.Cookie(SessionCookie); err == nil && c.Value != "" {
		return c.Value
	}
	if h := r.Header.Get("Authorization"); strings.HasPrefix(h, "Bearer ") {
		return strings.TrimPrefix(h, "Bearer ")
	}
	return ""
}

// requireSession rejects requests without a live admin session.
func (s *APIServer) requireSession(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		admin, ok := s.Sessions.Validate(sessionToken(r))
		if !ok {
			writeError(w, http.StatusUnauthorized, "Unauthorized")
			return
		}
		ctx := context.WithValue(r.Context(), adminContextKey, admin)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (s *APIServer) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req types.LoginRequest
	if err := decodeJSON(w, r, &req); err != nil {
		var re *requestError
		if errors.As(err, &re) {
			writeError(w, re.status, re.msg)
			return
		}
		writeError(w, http.StatusBadRequest, "Invalid request data")
		return
	}

	if err := s.Credentials.Verify(req.Username, req.Password); err != nil {
		s.logger().Warn("admin login rejected", logging.RemoteIP(clientIP(r)))
		writeError(w, http.StatusUnauthorized, "Invalid credentials")
		return
	}

	token, err := s.Sessions.Create(req.Username)
	if err != nil {
		s.logger().Error("failed to create session", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "Login failed")
		return
	}

	http.SetCookie(w, &http.Cookie{
		Name:     SessionCookie,
		Value:    token,
		Path:     "/",
		MaxAge:   int(s.Sessions.TTL().Seconds()),
		HttpOnly: true,
		Secure:   s.SecureCookies,
		SameSite: http.SameSiteLaxMode,
	})

	s.logger().Info("admin logged in", zap.String("admin", req.Username), logging.RemoteIP(clientIP(r)))
	writeJSON(w, http.StatusOK, types.LoginResponse{
		Success: true,
		Message: "Login successful",
		Token:   token,
	})
}

func (s *APIServer) handleLogout(w http.ResponseWriter, r *http.Request) {
	if token := sessionToken(r); token != "" {
		s.Sessions.Destroy(token)
	}

	http.SetCookie(w, &http.Cookie{
		Name:     SessionCookie,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   s.SecureCookies,
		SameSite: http.SameSiteLaxMode,
	})

	writeJSON(w, http.StatusOK, types.MessageResponse{Success: true, Message: "Logout successful"})
}

