package cli

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/olekukonko/tablewriter"
	"gopkg.in/yaml.v3"

	"github.com/TimurManjosov/gotreasury/internal/rules"
)

// OutputFormat specifies the output format for CLI commands
type OutputFormat string

const (
	FormatTable OutputFormat = "table"
	FormatJSON  OutputFormat = "json"
	FormatYAML  OutputFormat = "yaml"
)

// PrintRules outputs rules in the specified format
func PrintRules(list []rules.Rule, format OutputFormat) error {
	switch format {
	case FormatJSON:
		return printJSON(map[string][]rules.Rule{"rules": list})
	case FormatYAML:
		return printYAML(list)
	case FormatTable:
		return printRuleTable(list)
	default:
		return fmt.Errorf("unsupported format: %s", format)
	}
}

// PrintRule outputs a single rule in the specified format
func PrintRule(rule *rules.Rule, format OutputFormat) error {
	switch format {
	case FormatJSON:
		return printJSON(rule)
	case FormatYAML:
		return printYAML(rule)
	case FormatTable:
		return printRuleTable([]rules.Rule{*rule})
	default:
		return fmt.Errorf("unsupported format: %s", format)
	}
}

// PrintHistory outputs execution records in the specified format
func PrintHistory(records []rules.ExecutionRecord, format OutputFormat) error {
	switch format {
	case FormatJSON:
		return printJSON(map[string][]rules.ExecutionRecord{"executions": records})
	case FormatYAML:
		return printYAML(records)
	case FormatTable:
		return printHistoryTable(records)
	default:
		return fmt.Errorf("unsupported format: %s", format)
	}
}

func printJSON(data any) error {
	encoder := json.NewEncoder(os.Stdout)
	encoder.SetIndent("", "  ")
	return encoder.Encode(data)
}

func printYAML(data any) error {
	encoder := yaml.NewEncoder(os.Stdout)
	defer encoder.Close()
	encoder.SetIndent(2)
	return encoder.Encode(data)
}

func printRuleTable(list []rules.Rule) error {
	table := tablewriter.NewWriter(os.Stdout)
	table.Header("ID", "Name", "Type", "Status", "Trigger", "Gap", "Executed", "Distributed")

	for _, r := range list {
		table.Append(
			fmt.Sprintf("%d", r.ID),
			r.Name,
			string(r.Type),
			string(r.Status),
			fmt.Sprintf("%d", r.TriggerAmount),
			fmt.Sprintf("%ds", r.MinExecutionGap),
			fmt.Sprintf("%d", r.TimesExecuted),
			fmt.Sprintf("%d", r.TotalDistributed),
		)
	}
	return table.Render()
}

func printHistoryTable(records []rules.ExecutionRecord) error {
	table := tablewriter.NewWriter(os.Stdout)
	table.Header("Executed At", "Total", "Recipients", "Tx Ref")

	for _, rec := range records {
		table.Append(
			time.Unix(rec.ExecutedAt, 0).UTC().Format("2006-01-02 15:04:05"),
			fmt.Sprintf("%d", rec.TotalAmount),
			fmt.Sprintf("%d", len(rec.Payouts)),
			rec.TxRef,
		)
	}
	return table.Render()
}
