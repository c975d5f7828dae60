package server

import (
	"errors"
	"net/http"

	"go.uber.org/zap"

	"github.com/rsclarke/keyward/internal/logging"
	"github.com/rsclarke/keyward/internal/types"
	"github.com/rsclarke/keyward/internal/validation"
)

func (s *APIServer) handleValidate(w http.ResponseWriter, r *http.Request) {
	var req types.ValidateRequest
	if err := decodeJSON(w, r, &req); err != nil {
		var re *requestError
		if errors.As(err, &re) {
			writeJSON(w, re.status, types.ValidateResponse{Valid: false, Error: re.msg})
			return
		}
		writeJSON(w, http.StatusBadRequest, types.ValidateResponse{Valid: false, Error: "Invalid request data"})
		return
	}

	out, err := s.Pipeline.Validate(r.Context(), validation.Request{
		Secret:    req.Key,
		Endpoint:  req.Endpoint,
		IP:        clientIP(r),
		UserAgent: r.UserAgent(),
	})
	if err != nil {
		s.logger().Error("validation failed", logging.RemoteIP(clientIP(r)), zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, types.ValidateResponse{Valid: false, Error: "Validation failed"})
		return
	}

	switch out.Result {
	case validation.ResultValid:
		remaining := out.Remaining
		writeJSON(w, http.StatusOK, types.ValidateResponse{
			Valid:     true,
			KeyID:     out.KeyID,
			Remaining: &remaining,
			ResetTime: out.ResetAt.UnixMilli(),
			Message:   "API key is valid",
		})
	case validation.ResultRateLimited:
		writeJSON(w, http.StatusTooManyRequests, types.ValidateResponse{
			Valid:     false,
			Error:     "Rate limit exceeded",
			ResetTime: out.ResetAt.UnixMilli(),
		})
	default:
		writeJSON(w, http.StatusUnauthorized, types.ValidateResponse{
			Valid: false,
			Error: "Invalid or inactive API key",
		})
	}
}
