package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/rsclarke/keyward/internal/client"
)

var validateFlags struct {
	apiURL   string
	endpoint string
}

var validateCmd = &cobra.Command{
	Use:   "validate <key>",
	Short: "Validate an API key against a running server",
	Long:  `Validate an API key as a client application would. Exits non-zero if the key is rejected.`,
	Args:  cobra.ExactArgs(1),
	RunE:  runValidate,
}

func init() {
	rootCmd.AddCommand(validateCmd)

	validateCmd.Flags().StringVar(&validateFlags.apiURL, "api-url", getEnv("KEYWARD_API_URL", "http://localhost:8080"), "API server URL")
	validateCmd.Flags().StringVar(&validateFlags.endpoint, "endpoint", "", "endpoint to record for this call")
}

func runValidate(cmd *cobra.Command, args []string) error {
	c := client.NewClient(validateFlags.apiURL, "")
	res, err := c.Validate(cmd.Context(), args[0], validateFlags.endpoint)
	if err != nil {
		return err
	}

	if !res.Valid {
		if res.ResetTime != 0 {
			return fmt.Errorf("%s (resets %s)", res.Error, time.UnixMilli(res.ResetTime).Format(time.RFC3339))
		}
		return fmt.Errorf("%s", res.Error)
	}

	remaining := 0
	if res.Remaining != nil {
		remaining = *res.Remaining
	}
	fmt.Printf("%s\n", res.Message)
	fmt.Printf("Key ID:    %s\n", res.KeyID)
	fmt.Printf("Remaining: %d\n", remaining)
	fmt.Printf("Resets:    %s\n", time.UnixMilli(res.ResetTime).Format(time.RFC3339))
	return nil
}
