// Package types defines the API request and response types.
package types

import (
	"github.com/rsclarke/keyward/internal/models"
	"github.com/rsclarke/keyward/internal/stats"
)

// ValidateRequest is the request body for validating an API key.
type ValidateRequest struct {
	Key      string `json:"key" validate:"required"`
	Endpoint string `json:"endpoint,omitempty"`
}

// ValidateResponse is the response body for key validation. ResetTime is
// in epoch milliseconds.
type ValidateResponse struct {
	Valid     bool   `json:"valid"`
	KeyID     string `json:"keyId,omitempty"`
	Remaining *int   `json:"remaining,omitempty"`
	ResetTime int64  `json:"resetTime,omitempty"`
	Message   string `json:"message,omitempty"`
	Error     string `json:"error,omitempty"`
}

// LoginRequest is the request body for admin login.
type LoginRequest struct {
	Username string `json:"username" validate:"required"`
	Password string `json:"password" validate:"required"`
}

// LoginResponse is the response body for a successful login. Token is the
// session token also set in the session cookie.
type LoginResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
	Token   string `json:"token"`
}

// CreateKeyRequest is the request body for creating an API key.
type CreateKeyRequest struct {
	Name        string `json:"name" validate:"required,min=1,max=50"`
	Description string `json:"description,omitempty" validate:"max=200"`
}

// UpdateKeyRequest is the request body for updating an API key. Absent
// fields are left unchanged.
type UpdateKeyRequest struct {
	Name        *string `json:"name,omitempty" validate:"omitnil,min=1,max=50"`
	Description *string `json:"description,omitempty" validate:"omitnil,max=200"`
	Status      *string `json:"status,omitempty" validate:"omitnil,oneof=active inactive"`
	RateLimit   *int    `json:"rateLimit,omitempty" validate:"omitnil,min=1,max=10000"`
}

// KeyUpdate converts the request into a store update.
func (r UpdateKeyRequest) KeyUpdate() models.KeyUpdate {
	u := models.KeyUpdate{
		Name:        r.Name,
		Description: r.Description,
		RateLimit:   r.RateLimit,
	}
	if r.Status != nil {
		s := models.KeyStatus(*r.Status)
		u.Status = &s
	}
	return u
}

// Response is the envelope for admin endpoints.
type Response[T any] struct {
	Success bool   `json:"success"`
	Data    T      `json:"data"`
	Message string `json:"message,omitempty"`
}

// MessageResponse is the envelope for admin endpoints that return no data.
type MessageResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

// StatsData is the payload of the stats endpoint.
type StatsData struct {
	Stats      *stats.Summary     `json:"stats"`
	UsageChart []stats.DailyCount `json:"usageChart"`
}

// ErrorResponse represents an admin API error response.
type ErrorResponse struct {
	Success bool   `json:"success"`
	Error   string `json:"error"`
}
