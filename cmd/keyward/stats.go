package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var statsFlags struct {
	clientConfig
}

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show usage statistics",
	Long:  `Show key totals, today's traffic, average response time, top keys and the last seven days of requests.`,
	Args:  cobra.NoArgs,
	RunE:  runStats,
}

func init() {
	rootCmd.AddCommand(statsCmd)

	addClientFlags(statsCmd, &statsFlags.clientConfig)
}

func runStats(cmd *cobra.Command, args []string) error {
	c, err := statsFlags.newClient(cmd.Context())
	if err != nil {
		return err
	}

	data, err := c.Stats(cmd.Context())
	if err != nil {
		return err
	}
	s := data.Stats

	fmt.Printf("Total keys:        %d\n", s.TotalKeys)
	fmt.Printf("Active keys:       %d\n", s.ActiveKeys)
	fmt.Printf("Total requests:    %d\n", s.TotalRequests)
	fmt.Printf("Requests today:    %d\n", s.RequestsToday)
	fmt.Printf("Avg response time: %dms\n", s.AvgResponseTimeMs)

	if len(s.TopKeys) > 0 {
		fmt.Println()
		fmt.Printf("%-36s  %-20s  %s\n", "ID", "NAME", "REQUESTS")
		for _, k := range s.TopKeys {
			fmt.Printf("%-36s  %-20s  %d\n", k.ID, k.Name, k.Requests)
		}
	}

	fmt.Println()
	fmt.Printf("%-10s  %s\n", "DATE", "REQUESTS")
	for _, d := range data.UsageChart {
		fmt.Printf("%-10s  %d\n", d.Date, d.Requests)
	}
	return nil
}
