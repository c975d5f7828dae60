// Package acme handles automatic TLS certificate management via ACME.
package acme

import (
	"context"
	"crypto/tls"
	"database/sql"
	"errors"
	"fmt"
	"os"

	"github.com/caddyserver/certmagic"
	certmagicsqlite "github.com/rsclarke/certmagic-sqlite"
	"go.uber.org/zap"
)

// ErrNoDomain is returned by Manage when no domain is configured.
var ErrNoDomain = errors.New("acme: domain required")

// Manager obtains and renews the API server certificate using the
// TLS-ALPN-01 challenge. Certificates live in the service database.
type Manager struct {
	Domain  string
	Email   string
	Staging bool
	DB      *sql.DB
	Logger  *zap.Logger

	config  *certmagic.Config
	storage *certmagicsqlite.SQLiteStorage
}

// NewManager creates a new ACME manager.
func NewManager(domain, email string, db *sql.DB, staging bool, logger *zap.Logger) *Manager {
	if logger == nil {
		logger = zap.NewNop()
	}

	// Set global certmagic loggers early, before any challenges arrive
	certmagic.Default.Logger = logger
	certmagic.DefaultACME.Logger = logger

	return &Manager{
		Domain:  domain,
		Email:   email,
		Staging: staging,
		DB:      db,
		Logger:  logger,
	}
}

// CA returns the directory URL of the ACME server in use.
func (m *Manager) CA() string {
	if m.Staging {
		return certmagic.LetsEncryptStagingCA
	}
	return certmagic.LetsEncryptProductionCA
}

// Manage obtains a certificate for the domain and keeps it renewed. It
// must run before the API server accepts connections so the challenge
// solver can bind the TLS port.
func (m *Manager) Manage(ctx context.Context) error {
	if m.Domain == "" {
		return ErrNoDomain
	}

	hostname, _ := os.Hostname()
	storage, err := certmagicsqlite.NewWithDB(m.DB, certmagicsqlite.WithOwnerID(hostname))
	if err != nil {
		return fmt.Errorf("create certmagic storage: %w", err)
	}
	m.storage = storage

	cfg := certmagic.NewDefault()
	cfg.Storage = m.storage
	cfg.Logger = m.Logger

	issuer := certmagic.NewACMEIssuer(cfg, certmagic.ACMEIssuer{
		CA:                   m.CA(),
		Email:                m.Email,
		Agreed:               true,
		DisableHTTPChallenge: true,
		Logger:               m.Logger,
	})
	cfg.Issuers = []certmagic.Issuer{issuer}

	m.Logger.Info("obtaining certificate via TLS-ALPN-01", zap.String("domain", m.Domain), zap.String("ca", m.CA()))
	if err := cfg.ManageSync(ctx, []string{m.Domain}); err != nil {
		return fmt.Errorf("manage certificate for %s: %w", m.Domain, err)
	}
	m.config = cfg
	return nil
}

// TLSConfig returns a TLS configuration that serves the managed
// certificate and answers TLS-ALPN challenges during renewal. It is nil
// until Manage succeeds.
func (m *Manager) TLSConfig() *tls.Config {
	if m.config == nil {
		return nil
	}
	tlsCfg := m.config.TLSConfig()
	tlsCfg.NextProtos = append([]string{"h2", "http/1.1"}, tlsCfg.NextProtos...)
	return tlsCfg
}
