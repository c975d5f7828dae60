// Package models defines the database entity types.
package models

import "time"

// KeyStatus is the admin-controlled state of an API key.
type KeyStatus string

// Key statuses.
const (
	StatusActive   KeyStatus = "active"
	StatusInactive KeyStatus = "inactive"
)

// Valid reports whether s is a known status.
func (s KeyStatus) Valid() bool {
	return s == StatusActive || s == StatusInactive
}

// APIKey represents an API key record in the database.
type APIKey struct {
	ID           string     `json:"id"`
	Key          string     `json:"key"`
	Name         string     `json:"name"`
	Description  string     `json:"description"`
	Status       KeyStatus  `json:"status"`
	CreatedAt    time.Time  `json:"createdAt"`
	LastUsedAt   *time.Time `json:"lastUsed,omitempty"`
	RequestCount int64      `json:"requestCount"`
	RateLimit    *int       `json:"rateLimit,omitempty"`
}

// Active reports whether the key may pass validation.
func (k *APIKey) Active() bool {
	return k.Status == StatusActive
}

// KeyUpdate holds the fields an administrator may change on a key.
// Nil fields are left untouched.
type KeyUpdate struct {
	Name        *string
	Description *string
	Status      *KeyStatus
	RateLimit   *int
}

// Empty reports whether the update changes nothing.
func (u KeyUpdate) Empty() bool {
	return u.Name == nil && u.Description == nil && u.Status == nil && u.RateLimit == nil
}

// UsageEvent is one recorded validation attempt. KeyID is a weak reference:
// events outlive the key they were recorded against.
type UsageEvent struct {
	ID             string    `json:"id"`
	KeyID          string    `json:"keyId"`
	Timestamp      time.Time `json:"timestamp"`
	IP             string    `json:"ip"`
	UserAgent      *string   `json:"userAgent,omitempty"`
	Endpoint       string    `json:"endpoint"`
	Success        bool      `json:"success"`
	ResponseTimeMs int64     `json:"responseTime"`
}
