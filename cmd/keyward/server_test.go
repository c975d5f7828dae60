package main

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/rsclarke/keyward/internal/config"
)

func TestApplyServerFlags(t *testing.T) {
	cfg := config.Default()
	cfg.Database.Path = "from-file.db"

	f := serverCmd.Flags()
	require.NoError(t, f.Set("api-port", "9443"))
	require.NoError(t, f.Set("acme-staging", "true"))
	t.Cleanup(func() {
		for _, name := range []string{"api-port", "acme-staging"} {
			f.Lookup(name).Changed = false
		}
		serverFlags.apiPort = 0
		serverFlags.acmeStaging = false
	})

	applyServerFlags(serverCmd, cfg)

	assert.Equal(t, 9443, cfg.Server.APIPort)
	assert.True(t, cfg.TLS.ACMEStaging)
	assert.Equal(t, 9090, cfg.Server.MetricsPort, "unset flags keep configured values")
	assert.Equal(t, "from-file.db", cfg.Database.Path)
}

func TestRunServerStopsSchedulerOnStartupFailure(t *testing.T) {
	dir := t.TempDir()
	cfgPath := filepath.Join(dir, "keyward.yaml")
	yaml := "database:\n  path: " + filepath.Join(dir, "keyward.db") + "\n" +
		"server:\n  metrics_port: 0\n" +
		"tls:\n  cert_file: " + filepath.Join(dir, "missing.crt") + "\n  key_file: " + filepath.Join(dir, "missing.key") + "\n"
	require.NoError(t, os.WriteFile(cfgPath, []byte(yaml), 0o600))

	core, logs := observer.New(zapcore.InfoLevel)
	prevLogger, prevPath := logger, rootFlags.configPath
	logger, rootFlags.configPath = zap.New(core), cfgPath
	t.Cleanup(func() { logger, rootFlags.configPath = prevLogger, prevPath })

	err := runServer(serverCmd, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "load TLS certificate")

	assert.Equal(t, 1, logs.FilterMessage("scheduler started").Len())
	assert.Equal(t, 1, logs.FilterMessage("scheduler stopped").Len())
}
