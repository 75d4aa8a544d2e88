package commands

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/TimurManjosov/gotreasury/internal/cli"
	"github.com/TimurManjosov/gotreasury/internal/client"
)

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List all distribution rules",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := effectiveConfig()
		if err != nil {
			return err
		}

		c := client.NewClient(cfg.BaseURL, cfg.APIKey)
		rules, err := c.ListRules(context.Background())
		if err != nil {
			return fmt.Errorf("failed to list rules: %w", err)
		}
		return cli.PrintRules(rules, cli.OutputFormat(format))
	},
}

func init() {
	rootCmd.AddCommand(listCmd)
}
