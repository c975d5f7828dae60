package main

import (
	"context"
	"crypto/tls"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/rsclarke/keyward/internal/acme"
	"github.com/rsclarke/keyward/internal/auth"
	"github.com/rsclarke/keyward/internal/config"
	"github.com/rsclarke/keyward/internal/db"
	"github.com/rsclarke/keyward/internal/keys"
	"github.com/rsclarke/keyward/internal/logging"
	"github.com/rsclarke/keyward/internal/metrics"
	"github.com/rsclarke/keyward/internal/ratelimit"
	"github.com/rsclarke/keyward/internal/scheduler"
	"github.com/rsclarke/keyward/internal/server"
	"github.com/rsclarke/keyward/internal/stats"
	"github.com/rsclarke/keyward/internal/store"
	"github.com/rsclarke/keyward/internal/validation"
)

const shutdownTimeout = 30 * time.Second

var serverFlags struct {
	apiPort     int
	metricsPort int
	dbPath      string
	tlsCert     string
	tlsKey      string
	acmeDomain  string
	acmeEmail   string
	acmeStaging bool
}

var serverCmd = &cobra.Command{
	Use:   "server",
	Short: "Start the API and metrics servers",
	Long: `Start the keyward API server and, unless disabled, the metrics server.

Settings come from the config file, then KEYWARD_* environment variables,
then flags.

TLS Modes:
  --tls-cert + --tls-key  → Manual TLS mode (use provided certificates)
  --acme-domain           → ACME mode (Let's Encrypt via TLS-ALPN-01,
                            certificates stored in the database)
  (neither)               → plain HTTP

Notes:
  ACME mode requires the API port to be reachable as port 443.`,
	RunE: runServer,
}

func init() {
	rootCmd.AddCommand(serverCmd)

	f := serverCmd.Flags()
	f.IntVar(&serverFlags.apiPort, "api-port", 0, "API port to listen on")
	f.IntVar(&serverFlags.metricsPort, "metrics-port", 0, "metrics port to listen on (0 keeps the configured value)")
	f.StringVar(&serverFlags.dbPath, "db", "", "database path")
	f.StringVar(&serverFlags.tlsCert, "tls-cert", "", "path to TLS certificate file (enables manual TLS mode)")
	f.StringVar(&serverFlags.tlsKey, "tls-key", "", "path to TLS key file (enables manual TLS mode)")
	f.StringVar(&serverFlags.acmeDomain, "acme-domain", "", "domain to obtain a certificate for (enables ACME mode)")
	f.StringVar(&serverFlags.acmeEmail, "acme-email", "", "email for Let's Encrypt notifications")
	f.BoolVar(&serverFlags.acmeStaging, "acme-staging", false, "use Let's Encrypt staging CA")
}

// applyServerFlags overrides cfg with every flag set on the command line.
func applyServerFlags(cmd *cobra.Command, cfg *config.Config) {
	f := cmd.Flags()
	if f.Changed("api-port") {
		cfg.Server.APIPort = serverFlags.apiPort
	}
	if f.Changed("metrics-port") {
		cfg.Server.MetricsPort = serverFlags.metricsPort
	}
	if f.Changed("db") {
		cfg.Database.Path = serverFlags.dbPath
	}
	if f.Changed("tls-cert") {
		cfg.TLS.CertFile = serverFlags.tlsCert
	}
	if f.Changed("tls-key") {
		cfg.TLS.KeyFile = serverFlags.tlsKey
	}
	if f.Changed("acme-domain") {
		cfg.TLS.ACMEDomain = serverFlags.acmeDomain
	}
	if f.Changed("acme-email") {
		cfg.TLS.ACMEEmail = serverFlags.acmeEmail
	}
	if f.Changed("acme-staging") {
		cfg.TLS.ACMEStaging = serverFlags.acmeStaging
	}
}

func runServer(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(rootFlags.configPath)
	if err != nil {
		return err
	}
	applyServerFlags(cmd, cfg)
	if err := cfg.Validate(); err != nil {
		return err
	}

	database, err := db.Open(cfg.Database.Path)
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer database.Close()

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	count, err := db.CountAPIKeys(ctx, database)
	if err != nil {
		return fmt.Errorf("count API keys: %w", err)
	}
	events, err := db.CountUsageEvents(ctx, database)
	if err != nil {
		return fmt.Errorf("count usage events: %w", err)
	}
	logger.Info("database ready", zap.String("path", cfg.Database.Path), zap.Int("keys", count), zap.Int("usage_events", events))

	st := store.NewSQLiteStore(database, cfg.Ledger.Retention)
	logger.Info("usage ledger configured", zap.Int("retention", st.Retention()))
	limiter := ratelimit.New()
	sessions := auth.NewSessionStore(cfg.Admin.SessionTTL)

	creds := auth.Credentials{Username: cfg.Admin.Username, Password: cfg.Admin.Password}
	if creds.IsDefault() {
		logger.Warn("using default admin credentials; set admin.username and admin.password")
	}

	pipeline := &validation.Pipeline{
		Keys:         st,
		Ledger:       st,
		Limiter:      limiter,
		DefaultLimit: cfg.RateLimit.RequestsPerWindow,
		Window:       cfg.RateLimit.Window,
		Logger:       logger.Named("pipeline"),
		Now:          time.Now,
	}

	metrics.RegisterGauges(limiter.Len, sessions.Len)

	sched := scheduler.New(limiter, sessions, cfg.RateLimit.SweepInterval, logger.Named("scheduler"))
	if err := sched.Start(); err != nil {
		return err
	}
	defer func() { <-sched.Stop().Done() }()

	tlsMode := cfg.TLSMode()
	var tlsConfig *tls.Config
	switch tlsMode {
	case config.TLSModeManual:
		cert, err := tls.LoadX509KeyPair(cfg.TLS.CertFile, cfg.TLS.KeyFile)
		if err != nil {
			return fmt.Errorf("load TLS certificate: %w", err)
		}
		tlsConfig = &tls.Config{Certificates: []tls.Certificate{cert}}
	case config.TLSModeACME:
		manager := acme.NewManager(cfg.TLS.ACMEDomain, cfg.TLS.ACMEEmail, database, cfg.TLS.ACMEStaging, logger.Named("certmagic"))
		logger.Info("starting acme certificate acquisition", logging.Domain(cfg.TLS.ACMEDomain), zap.Bool("staging", cfg.TLS.ACMEStaging))
		if err := manager.Manage(ctx); err != nil {
			return fmt.Errorf("ACME certificate acquisition: %w", err)
		}
		logger.Info("acme certificate obtained", logging.Domain(cfg.TLS.ACMEDomain))
		tlsConfig = manager.TLSConfig()
	}

	apiSrv := &server.APIServer{
		Pipeline:      pipeline,
		Keys:          keys.NewManager(st, logger.Named("keys")),
		Stats:         stats.New(st),
		Sessions:      sessions,
		Credentials:   creds,
		SecureCookies: tlsConfig != nil,
		Logger:        logger.Named("api"),
	}

	apiCfg := server.DefaultServerConfig(":"+strconv.Itoa(cfg.Server.APIPort), apiSrv.Handler(), logger.Named("api"))
	apiCfg.TLSConfig = tlsConfig
	api := server.NewManagedServer("api", apiCfg)
	logger.Info("starting api server", logging.Port(cfg.Server.APIPort), logging.TLSMode(tlsMode))
	if err := api.Start(); err != nil {
		return err
	}
	managed := []*server.ManagedServer{api}

	if cfg.Server.MetricsPort != 0 {
		ms := metrics.NewServer(":" + strconv.Itoa(cfg.Server.MetricsPort))
		metricsSrv := server.NewManagedServer("metrics", server.DefaultServerConfig(ms.Addr, ms.Handler, logger.Named("metrics")))
		logger.Info("starting metrics server", logging.Port(cfg.Server.MetricsPort))
		if err := metricsSrv.Start(); err != nil {
			api.Shutdown(context.Background())
			return err
		}
		managed = append(managed, metricsSrv)
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	var runErr error
	select {
	case sig := <-sigCh:
		logger.Info("shutting down", zap.String("signal", sig.String()))
	case err := <-firstError(managed):
		logger.Error("server failed", zap.Error(err))
		runErr = err
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	for _, m := range managed {
		m.Shutdown(shutdownCtx)
	}

	return runErr
}

// firstError delivers the first fatal error reported by any server.
func firstError(servers []*server.ManagedServer) <-chan error {
	out := make(chan error, len(servers))
	for _, s := range servers {
		go func(s *server.ManagedServer) {
			if err, ok := <-s.Err(); ok && err != nil {
				out <- err
			}
		}(s)
	}
	return out
}
