package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/rsclarke/keyward/internal/client"
)

type clientConfig struct {
	apiURL   string
	token    string
	username string
	password string
}

func addClientFlags(cmd *cobra.Command, cfg *clientConfig) {
	cmd.Flags().StringVar(&cfg.apiURL, "api-url", getEnv("KEYWARD_API_URL", "http://localhost:8080"), "API server URL")
	cmd.Flags().StringVar(&cfg.token, "token", os.Getenv("KEYWARD_TOKEN"), "admin session token")
	cmd.Flags().StringVar(&cfg.username, "username", os.Getenv("KEYWARD_ADMIN_USERNAME"), "admin username (used when no token is given)")
	cmd.Flags().StringVar(&cfg.password, "password", os.Getenv("KEYWARD_ADMIN_PASSWORD"), "admin password (used when no token is given)")
}

// newClient returns a client with an admin session, logging in when no
// token was supplied.
func (cfg *clientConfig) newClient(ctx context.Context) (*client.Client, error) {
	if cfg.apiURL == "" {
		return nil, fmt.Errorf("API URL required (use --api-url flag or KEYWARD_API_URL env var)")
	}
	c := client.NewClient(cfg.apiURL, cfg.token)
	if cfg.token != "" {
		return c, nil
	}
	if cfg.username == "" || cfg.password == "" {
		return nil, fmt.Errorf("credentials required (use --token, or --username and --password, or KEYWARD_TOKEN)")
	}
	if err := c.Login(ctx, cfg.username, cfg.password); err != nil {
		return nil, fmt.Errorf("login: %w", err)
	}
	return c, nil
}
