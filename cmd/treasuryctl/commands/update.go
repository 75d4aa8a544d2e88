package commands

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/TimurManjosov/gotreasury/internal/client"
	"github.com/TimurManjosov/gotreasury/internal/rules"
)

var (
	updateName         string
	updateDescription  string
	updateStatus       string
	updateTrigger      int64
	updateInterval     int64
	updateGap          int64
	updateDistribution string
	updateTarget       string
)

var updateCmd = &cobra.Command{
	Use:   "update <id>",
	Short: "Update a distribution rule",
	Long: `Update a rule's mutable fields. Only explicitly passed flags are patched;
everything else is left unchanged. Execution history is never patchable.

Examples:
  treasuryctl update 3 --status PAUSED
  treasuryctl update 3 --trigger 250000 --gap 3600
  treasuryctl update 3 --distribution '{"recipients":["ops"],"values":[10000],"usePercentages":true,"maxPerExecution":500000}'`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := strconv.ParseInt(args[0], 10, 64)
		if err != nil {
			return fmt.Errorf("rule id must be an integer: %w", err)
		}

		cfg, err := effectiveConfig()
		if err != nil {
			return err
		}

		var patch rules.Patch
		if cmd.Flags().Changed("name") {
			patch.Name = &updateName
		}
		if cmd.Flags().Changed("description") {
			patch.Description = &updateDescription
		}
		if cmd.Flags().Changed("status") {
			status := rules.RuleStatus(updateStatus)
			patch.Status = &status
		}
		if cmd.Flags().Changed("trigger") {
			patch.TriggerAmount = &updateTrigger
		}
		if cmd.Flags().Changed("interval") {
			patch.CheckInterval = &updateInterval
		}
		if cmd.Flags().Changed("gap") {
			patch.MinExecutionGap = &updateGap
		}
		if cmd.Flags().Changed("distribution") {
			var dist rules.Distribution
			if err := json.Unmarshal([]byte(updateDistribution), &dist); err != nil {
				return fmt.Errorf("invalid distribution JSON: %w", err)
			}
			patch.Distribution = &dist
		}

		ctx := context.Background()
		c := client.NewClient(cfg.BaseURL, cfg.APIKey)

		auth, err := signAuthorization(ctx, c, cfg, id, 0, updateTarget)
		if err != nil {
			return err
		}
		if err := c.UpdateRule(ctx, id, patch, auth); err != nil {
			return fmt.Errorf("failed to update rule: %w", err)
		}

		if !quiet {
			fmt.Printf("Successfully updated rule %d\n", id)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(updateCmd)

	updateCmd.Flags().StringVar(&updateName, "name", "", "Rule name")
	updateCmd.Flags().StringVar(&updateDescription, "description", "", "Rule description")
	updateCmd.Flags().StringVar(&updateStatus, "status", "", "Rule status (ACTIVE, PAUSED, DISABLED)")
	updateCmd.Flags().Int64Var(&updateTrigger, "trigger", 0, "Balance threshold for THRESHOLD/HYBRID rules")
	updateCmd.Flags().Int64Var(&updateInterval, "interval", 0, "Schedule period in seconds for SCHEDULED/HYBRID rules")
	updateCmd.Flags().Int64Var(&updateGap, "gap", 0, "Minimum seconds between executions")
	updateCmd.Flags().StringVar(&updateDistribution, "distribution", "", "Full replacement distribution as JSON")
	updateCmd.Flags().StringVar(&updateTarget, "target", "", "Optional target bound into the signed authorization")
}
