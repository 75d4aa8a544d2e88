package commands

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/TimurManjosov/gotreasury/internal/client"
	"github.com/TimurManjosov/gotreasury/internal/rules"
	"github.com/TimurManjosov/gotreasury/internal/store"
)

var (
	createName        string
	createDescription string
	createType        string
	createStatus      string
	createTrigger     int64
	createInterval    int64
	createGap         int64
	createRecipients  string
	createValues      string
	createPercentages bool
	createMax         int64
	createTarget      string
)

var createCmd = &cobra.Command{
	Use:   "create",
	Short: "Create a new distribution rule",
	Long: `Create a new distribution rule. The request is signed with the configured
ed25519 key and submitted with a fresh nonce.

Examples:
  treasuryctl create --name ops-split --type THRESHOLD --trigger 100000 \
      --recipients ops,reserve --values 6000,4000 --percentages --max 500000
  treasuryctl create --name weekly --type SCHEDULED --interval 604800 \
      --recipients grants --values 25000 --max 25000`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := effectiveConfig()
		if err != nil {
			return err
		}

		values, err := parseValues(createValues)
		if err != nil {
			return err
		}
		params := store.CreateParams{
			Name:            createName,
			Description:     createDescription,
			Type:            rules.RuleType(createType),
			Status:          rules.RuleStatus(createStatus),
			TriggerAmount:   createTrigger,
			CheckInterval:   createInterval,
			MinExecutionGap: createGap,
			Distribution: rules.Distribution{
				Recipients:      splitCSV(createRecipients),
				Values:          values,
				UsePercentages:  createPercentages,
				MaxPerExecution: createMax,
			},
		}

		ctx := context.Background()
		c := client.NewClient(cfg.BaseURL, cfg.APIKey)

		auth, err := signAuthorization(ctx, c, cfg, 0, createMax, createTarget)
		if err != nil {
			return err
		}
		id, err := c.CreateRule(ctx, params, auth)
		if err != nil {
			return fmt.Errorf("failed to create rule: %w", err)
		}

		if !quiet {
			fmt.Printf("Successfully created rule %d ('%s')\n", id, createName)
		}
		return nil
	},
}

func splitCSV(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func parseValues(s string) ([]int64, error) {
	var out []int64
	for _, part := range splitCSV(s) {
		v, err := strconv.ParseInt(part, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid distribution value '%s': %w", part, err)
		}
		out = append(out, v)
	}
	return out, nil
}

func init() {
	rootCmd.AddCommand(createCmd)

	createCmd.Flags().StringVar(&createName, "name", "", "Rule name")
	createCmd.Flags().StringVar(&createDescription, "description", "", "Rule description")
	createCmd.Flags().StringVar(&createType, "type", "", "Rule type (THRESHOLD, PERCENTAGE, SCHEDULED, HYBRID)")
	createCmd.Flags().StringVar(&createStatus, "status", "", "Initial status (defaults to ACTIVE)")
	createCmd.Flags().Int64Var(&createTrigger, "trigger", 0, "Balance threshold for THRESHOLD/HYBRID rules")
	createCmd.Flags().Int64Var(&createInterval, "interval", 0, "Schedule period in seconds for SCHEDULED/HYBRID rules")
	createCmd.Flags().Int64Var(&createGap, "gap", 0, "Minimum seconds between executions")
	createCmd.Flags().StringVar(&createRecipients, "recipients", "", "Comma-separated recipient addresses")
	createCmd.Flags().StringVar(&createValues, "values", "", "Comma-separated distribution values")
	createCmd.Flags().BoolVar(&createPercentages, "percentages", false, "Treat values as basis points summing to 10000")
	createCmd.Flags().Int64Var(&createMax, "max", 0, "Maximum amount distributed per execution")
	createCmd.Flags().StringVar(&createTarget, "target", "", "Optional target bound into the signed authorization")

	_ = createCmd.MarkFlagRequired("name")
	_ = createCmd.MarkFlagRequired("type")
	_ = createCmd.MarkFlagRequired("recipients")
	_ = createCmd.MarkFlagRequired("values")
	_ = createCmd.MarkFlagRequired("max")
}
