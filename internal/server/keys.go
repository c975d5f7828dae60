package server

import (
	"errors"
	"net/http"

	"go.uber.org/zap"

	"github.com/rsclarke/keyward/internal/keys"
	"github.com/rsclarke/keyward/internal/logging"
	"github.com/rsclarke/keyward/internal/models"
	"github.com/rsclarke/keyward/internal/store"
	"github.com/rsclarke/keyward/internal/types"
)

func (s *APIServer) handleListKeys(w http.ResponseWriter, r *http.Request) {
	list, err := s.Keys.List(r.Context())
	if err != nil {
		s.logger().Error("failed to list keys", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "Failed to fetch keys")
		return
	}
	if list == nil {
		list = []models.APIKey{}
	}
	writeJSON(w, http.StatusOK, types.Response[[]models.APIKey]{Success: true, Data: list})
}

func (s *APIServer) handleCreateKey(w http.ResponseWriter, r *http.Request) {
	var req types.CreateKeyRequest
	if !s.decodeAdmin(w, r, &req) {
		return
	}

	key, err := s.Keys.Create(r.Context(), req.Name, req.Description)
	if errors.Is(err, store.ErrConflict) {
		writeError(w, http.StatusBadRequest, "Key name already exists")
		return
	}
	if err != nil {
		s.logger().Error("failed to create key", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "Failed to create key")
		return
	}

	s.logger().Info("key created via api", logging.KeyID(key.ID), zap.String("admin", getAdmin(r)))
	writeJSON(w, http.StatusCreated, types.Response[*models.APIKey]{
		Success: true,
		Data:    key,
		Message: "API key created successfully",
	})
}

func (s *APIServer) handleGetKey(w http.ResponseWriter, r *http.Request) {
	key, err := s.Keys.Get(r.Context(), r.PathValue("id"))
	if errors.Is(err, store.ErrNotFound) {
		writeError(w, http.StatusNotFound, "Key not found")
		return
	}
	if err != nil {
		s.logger().Error("failed to get key", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "Failed to fetch key")
		return
	}
	writeJSON(w, http.StatusOK, types.Response[*models.APIKey]{Success: true, Data: key})
}

func (s *APIServer) handleUpdateKey(w http.ResponseWriter, r *http.Request) {
	var req types.UpdateKeyRequest
	if !s.decodeAdmin(w, r, &req) {
		return
	}

	id := r.PathValue("id")
	key, err := s.Keys.Update(r.Context(), id, req.KeyUpdate())
	switch {
	case errors.Is(err, store.ErrNotFound):
		writeError(w, http.StatusNotFound, "Key not found")
		return
	case errors.Is(err, store.ErrConflict):
		writeError(w, http.StatusBadRequest, "Key name already exists")
		return
	case errors.Is(err, keys.ErrInvalidStatus):
		writeError(w, http.StatusBadRequest, "Status must be one of: active, inactive")
		return
	case err != nil:
		s.logger().Error("failed to update key", logging.KeyID(id), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "Failed to update key")
		return
	}

	writeJSON(w, http.StatusOK, types.Response[*models.APIKey]{
		Success: true,
		Data:    key,
		Message: "Key updated successfully",
	})
}

func (s *APIServer) handleDeleteKey(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	err := s.Keys.Delete(r.Context(), id)
	if errors.Is(err, store.ErrNotFound) {
		writeError(w, http.StatusNotFound, "Key not found")
		return
	}
	if err != nil {
		s.logger().Error("failed to delete key", logging.KeyID(id), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "Failed to delete key")
		return
	}

	s.logger().Info("key deleted via api", logging.KeyID(id), zap.String("admin", getAdmin(r)))
	writeJSON(w, http.StatusOK, types.MessageResponse{Success: true, Message: "Key deleted successfully"})
}

func (s *APIServer) handleStats(w http.ResponseWriter, r *http.Request) {
	summary, err := s.Stats.Summary(r.Context())
	if err != nil {
		s.logger().Error("failed to compute stats", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "Failed to fetch statistics")
		return
	}
	chart, err := s.Stats.DailySeries(r.Context(), 7)
	if err != nil {
		s.logger().Error("failed to compute usage chart", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "Failed to fetch statistics")
		return
	}

	writeJSON(w, http.StatusOK, types.Response[types.StatsData]{
		Success: true,
		Data:    types.StatsData{Stats: summary, UsageChart: chart},
	})
}

// decodeAdmin decodes an admin request body, writing the error response on failure.
func (s *APIServer) decodeAdmin(w http.ResponseWriter, r *http.Request, v any) bool {
	err := decodeJSON(w, r, v)
	if err == nil {
		return true
	}
	var re *requestError
	if errors.As(err, &re) {
		writeError(w, re.status, re.msg)
	} else {
		writeError(w, http.StatusBadRequest, "Invalid request data")
	}
	return false
}
