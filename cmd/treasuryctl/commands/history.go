package commands

import (
	"context"
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/TimurManjosov/gotreasury/internal/cli"
	"github.com/TimurManjosov/gotreasury/internal/client"
)

var historyCmd = &cobra.Command{
	Use:   "history <id>",
	Short: "Show a rule's execution history",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := strconv.ParseInt(args[0], 10, 64)
		if err != nil {
			return fmt.Errorf("rule id must be an integer: %w", err)
		}

		cfg, err := effectiveConfig()
		if err != nil {
			return err
		}

		c := client.NewClient(cfg.BaseURL, cfg.APIKey)
		records, err := c.GetHistory(context.Background(), id)
		if err != nil {
			return fmt.Errorf("failed to get history: %w", err)
		}
		return cli.PrintHistory(records, cli.OutputFormat(format))
	},
}

func init() {
	rootCmd.AddCommand(historyCmd)
}
