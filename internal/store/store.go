// Package store owns rule and execution-history state. It is the only
// component that mutates rules, and every mutation is all-or-nothing: either
// all invariant-preserving fields update together or none do.
package store

import (
	"context"
	"errors"

	"github.com/TimurManjosov/gotreasury/internal/rules"
)

// ErrNotFound is returned when the referenced rule does not exist.
var ErrNotFound = errors.New("rule not found")

// ErrExecutionGap is returned when recording an execution that would violate
// the rule's minimum execution gap. The compare-and-set on lastExecuted is
// the final guard against two concurrent pollers both recording.
var ErrExecutionGap = errors.New("execution gap not satisfied")

// CreateParams contains the caller-settable fields of a new rule. Identity
// and execution history are assigned by the store.
type CreateParams struct {
	Name            string             `json:"name"`
	Description     string             `json:"description"`
	Type            rules.RuleType     `json:"type"`
	Status          rules.RuleStatus   `json:"status"`
	TriggerAmount   int64              `json:"triggerAmount"`
	CheckInterval   int64              `json:"checkInterval"`
	MinExecutionGap int64              `json:"minExecutionGap"`
	Distribution    rules.Distribution `json:"distribution"`
}

// Store is the persistence interface for rules and execution records.
// Implementations must be safe for concurrent use; reads of a rule observe a
// consistent snapshot, never a partially applied write.
type Store interface {
	// CreateRule validates and inserts a new rule, returning its id.
	// Ids are assigned monotonically and never reused.
	CreateRule(ctx context.Context, params CreateParams) (int64, error)

	// UpdateRule applies a patch to the rule's mutable fields. The
	// post-patch rule is validated as a whole before anything is written.
	UpdateRule(ctx context.Context, id int64, patch rules.Patch) error

	// GetRule retrieves one rule, including its distribution table.
	GetRule(ctx context.Context, id int64) (*rules.Rule, error)

	// ListActiveRules returns all ACTIVE rules in ascending id order.
	ListActiveRules(ctx context.Context) ([]rules.Rule, error)

	// ListRules returns every rule in ascending id order.
	ListRules(ctx context.Context) ([]rules.Rule, error)

	// RecordExecution atomically increments timesExecuted, adds the
	// record's total to totalDistributed, advances lastExecuted and
	// appends the record to the rule's history. Fails with
	// ErrExecutionGap if the record would violate minExecutionGap.
	RecordExecution(ctx context.Context, rec rules.ExecutionRecord) error

	// GetExecutionHistory returns the rule's append-only execution
	// records in execution order.
	GetExecutionHistory(ctx context.Context, ruleID int64) ([]rules.ExecutionRecord, error)

	// Close releases any resources held by the store.
	Close() error
}

// newRule builds the initial rule state from create params. Status defaults
// to ACTIVE when unset.
func newRule(params CreateParams) rules.Rule {
	status := params.Status
	if status == "" {
		status = rules.StatusActive
	}
	return rules.Rule{
		Name:            params.Name,
		Description:     params.Description,
		Type:            params.Type,
		Status:          status,
		TriggerAmount:   params.TriggerAmount,
		CheckInterval:   params.CheckInterval,
		MinExecutionGap: params.MinExecutionGap,
		Distribution:    params.Distribution,
	}
}

// copyRule returns a deep copy so callers can never alias store-owned slices.
func copyRule(r rules.Rule) rules.Rule {
	out := r
	out.Distribution.Recipients = append([]string(nil), r.Distribution.Recipients...)
	out.Distribution.Values = append([]int64(nil), r.Distribution.Values...)
	return out
}

// copyRecord deep-copies an execution record.
func copyRecord(rec rules.ExecutionRecord) rules.ExecutionRecord {
	out := rec
	out.Payouts = append([]rules.Payout(nil), rec.Payouts...)
	return out
}
