package keys

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/rsclarke/keyward/internal/logging"
	"github.com/rsclarke/keyward/internal/models"
	"github.com/rsclarke/keyward/internal/store"
)

// ErrInvalidStatus is returned when an update names an unknown status.
var ErrInvalidStatus = errors.New("invalid key status")

// Store is the persistence the manager needs.
type Store interface {
	CreateKey(ctx context.Context, key *models.APIKey) error
	GetKey(ctx context.Context, id string) (*models.APIKey, error)
	UpdateKey(ctx context.Context, id string, u models.KeyUpdate) error
	DeleteKey(ctx context.Context, id string) error
	NameExists(ctx context.Context, name, excludeID string) (bool, error)
	ListKeys(ctx context.Context) ([]models.APIKey, error)
}

// Manager implements admin operations on API keys.
type Manager struct {
	store  Store
	logger *zap.Logger
	now    func() time.Time
}

// NewManager creates a Manager backed by s.
func NewManager(s Store, logger *zap.Logger) *Manager {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Manager{store: s, logger: logger, now: time.Now}
}

// Create issues a new active key. A name already in use yields store.ErrConflict.
func (m *Manager) Create(ctx context.Context, name, description string) (*models.APIKey, error) {
	exists, err := m.store.NameExists(ctx, name, "")
	if err != nil {
		return nil, fmt.Errorf("check key name: %w", err)
	}
	if exists {
		return nil, fmt.Errorf("key name %q: %w", name, store.ErrConflict)
	}

	secret, err := GenerateSecret()
	if err != nil {
		return nil, err
	}

	key := &models.APIKey{
		ID:          NewID(),
		Key:         secret,
		Name:        name,
		Description: description,
		Status:      models.StatusActive,
		CreatedAt:   m.now().UTC(),
	}
	if err := m.store.CreateKey(ctx, key); err != nil {
		return nil, err
	}

	m.logger.Info("api key created", logging.KeyID(key.ID), logging.KeyName(name))
	return key, nil
}

// Get returns the key with the given ID or store.ErrNotFound.
func (m *Manager) Get(ctx context.Context, id string) (*models.APIKey, error) {
	key, err := m.store.GetKey(ctx, id)
	if err != nil {
		return nil, err
	}
	if key == nil {
		return nil, store.ErrNotFound
	}
	return key, nil
}

// List returns all keys in creation order.
func (m *Manager) List(ctx context.Context) ([]models.APIKey, error) {
	return m.store.ListKeys(ctx)
}

// Update applies u to the key and returns the updated record. The name
// conflict check only runs when the name actually changes.
func (m *Manager) Update(ctx context.Context, id string, u models.KeyUpdate) (*models.APIKey, error) {
	if u.Status != nil && !u.Status.Valid() {
		return nil, ErrInvalidStatus
	}

	existing, err := m.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	if u.Name != nil && *u.Name != existing.Name {
		exists, err := m.store.NameExists(ctx, *u.Name, id)
		if err != nil {
			return nil, fmt.Errorf("check key name: %w", err)
		}
		if exists {
			return nil, fmt.Errorf("key name %q: %w", *u.Name, store.ErrConflict)
		}
	}

	if err := m.store.UpdateKey(ctx, id, u); err != nil {
		return nil, err
	}

	fields := []zap.Field{logging.KeyID(id)}
	if u.Status != nil {
		fields = append(fields, zap.String("status", string(*u.Status)))
	}
	m.logger.Info("api key updated", fields...)

	return m.Get(ctx, id)
}

// Delete removes the key. Its usage history is retained.
func (m *Manager) Delete(ctx context.Context, id string) error {
	if err := m.store.DeleteKey(ctx, id); err != nil {
		return err
	}
	m.logger.Info("api key deleted", logging.KeyID(id))
	return nil
}
