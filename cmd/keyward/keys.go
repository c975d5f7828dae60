package main

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/rsclarke/keyward/internal/keys"
	"github.com/rsclarke/keyward/internal/models"
	"github.com/rsclarke/keyward/internal/types"
)

var keysFlags struct {
	clientConfig
	description string
	name        string
	status      string
	rateLimit   int
}

var keysCmd = &cobra.Command{
	Use:   "keys",
	Short: "Manage API keys",
}

var keysCreateCmd = &cobra.Command{
	Use:   "create <name>",
	Short: "Create a new API key",
	Long:  `Create a new active API key. The secret is printed once.`,
	Args:  cobra.ExactArgs(1),
	RunE:  runKeysCreate,
}

var keysListCmd = &cobra.Command{
	Use:   "list",
	Short: "List API keys",
	Args:  cobra.NoArgs,
	RunE:  runKeysList,
}

var keysGetCmd = &cobra.Command{
	Use:   "get <id>",
	Short: "Show one API key",
	Args:  cobra.ExactArgs(1),
	RunE:  runKeysGet,
}

var keysUpdateCmd = &cobra.Command{
	Use:   "update <id>",
	Short: "Update a key's name, description, status or rate limit",
	Args:  cobra.ExactArgs(1),
	RunE:  runKeysUpdate,
}

var keysDeleteCmd = &cobra.Command{
	Use:   "delete <id>",
	Short: "Delete an API key",
	Long:  `Delete an API key. Its usage history is kept.`,
	Args:  cobra.ExactArgs(1),
	RunE:  runKeysDelete,
}

func init() {
	rootCmd.AddCommand(keysCmd)
	keysCmd.AddCommand(keysCreateCmd, keysListCmd, keysGetCmd, keysUpdateCmd, keysDeleteCmd)

	for _, c := range []*cobra.Command{keysCreateCmd, keysListCmd, keysGetCmd, keysUpdateCmd, keysDeleteCmd} {
		addClientFlags(c, &keysFlags.clientConfig)
	}

	keysCreateCmd.Flags().StringVar(&keysFlags.description, "description", "", "key description")

	keysUpdateCmd.Flags().StringVar(&keysFlags.name, "name", "", "new key name")
	keysUpdateCmd.Flags().StringVar(&keysFlags.description, "description", "", "new description")
	keysUpdateCmd.Flags().StringVar(&keysFlags.status, "status", "", "active or inactive")
	keysUpdateCmd.Flags().IntVar(&keysFlags.rateLimit, "rate-limit", 0, "requests per window for this key")
}

func runKeysCreate(cmd *cobra.Command, args []string) error {
	c, err := keysFlags.newClient(cmd.Context())
	if err != nil {
		return err
	}

	key, err := c.CreateKey(cmd.Context(), args[0], keysFlags.description)
	if err != nil {
		return err
	}

	fmt.Println("=============================================================")
	fmt.Println("API KEY CREATED (save this, it will not be shown again):")
	fmt.Println(key.Key)
	fmt.Println("=============================================================")
	fmt.Printf("ID: %s\n", key.ID)
	return nil
}

func runKeysList(cmd *cobra.Command, args []string) error {
	c, err := keysFlags.newClient(cmd.Context())
	if err != nil {
		return err
	}

	list, err := c.ListKeys(cmd.Context())
	if err != nil {
		return err
	}
	if len(list) == 0 {
		fmt.Println("No keys found.")
		return nil
	}

	fmt.Printf("%-36s  %-20s  %-8s  %-19s  %-10s  %s\n", "ID", "NAME", "STATUS", "KEY", "LIMIT", "REQUESTS")
	for _, k := range list {
		fmt.Printf("%-36s  %-20s  %-8s  %-19s  %-10s  %d\n", k.ID, k.Name, k.Status, keys.Hint(k.Key), limitString(k), k.RequestCount)
	}
	return nil
}

func runKeysGet(cmd *cobra.Command, args []string) error {
	c, err := keysFlags.newClient(cmd.Context())
	if err != nil {
		return err
	}

	k, err := c.GetKey(cmd.Context(), args[0])
	if err != nil {
		return err
	}
	printKey(k)
	return nil
}

func runKeysUpdate(cmd *cobra.Command, args []string) error {
	f := cmd.Flags()
	var req types.UpdateKeyRequest
	if f.Changed("name") {
		req.Name = &keysFlags.name
	}
	if f.Changed("description") {
		req.Description = &keysFlags.description
	}
	if f.Changed("status") {
		req.Status = &keysFlags.status
	}
	if f.Changed("rate-limit") {
		req.RateLimit = &keysFlags.rateLimit
	}
	if req == (types.UpdateKeyRequest{}) {
		return fmt.Errorf("nothing to update (use --name, --description, --status or --rate-limit)")
	}

	c, err := keysFlags.newClient(cmd.Context())
	if err != nil {
		return err
	}
	k, err := c.UpdateKey(cmd.Context(), args[0], req)
	if err != nil {
		return err
	}
	printKey(k)
	return nil
}

func runKeysDelete(cmd *cobra.Command, args []string) error {
	c, err := keysFlags.newClient(cmd.Context())
	if err != nil {
		return err
	}
	if err := c.DeleteKey(cmd.Context(), args[0]); err != nil {
		return err
	}
	fmt.Printf("Deleted key %s\n", args[0])
	return nil
}

func limitString(k models.APIKey) string {
	if k.RateLimit == nil {
		return "default"
	}
	return strconv.Itoa(*k.RateLimit)
}

func printKey(k *models.APIKey) {
	lastUsed := "never"
	if k.LastUsedAt != nil {
		lastUsed = k.LastUsedAt.Local().Format("2006-01-02 15:04:05")
	}
	fmt.Printf("ID:          %s\n", k.ID)
	fmt.Printf("Name:        %s\n", k.Name)
	fmt.Printf("Description: %s\n", k.Description)
	fmt.Printf("Status:      %s\n", k.Status)
	fmt.Printf("Key:         %s\n", keys.Hint(k.Key))
	fmt.Printf("Rate limit:  %s\n", limitString(*k))
	fmt.Printf("Requests:    %d\n", k.RequestCount)
	fmt.Printf("Created:     %s\n", k.CreatedAt.Local().Format("2006-01-02 15:04:05"))
	fmt.Printf("Last used:   %s\n", lastUsed)
}
