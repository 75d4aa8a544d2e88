// Package rules defines the treasury automation data model: rules, their
// distribution tables, and the records produced by executions. All monetary
// amounts are integers in the smallest unit of the treasury asset.
package rules

import "time"

// RuleType determines the trigger condition a rule fires on.
type RuleType string

const (
	// TypeThreshold fires when the treasury balance reaches TriggerAmount.
	TypeThreshold RuleType = "THRESHOLD"
	// TypePercentage fires when cumulative inflow since the last execution
	// is positive; the distributable amount is derived from that inflow.
	TypePercentage RuleType = "PERCENTAGE"
	// TypeScheduled fires when CheckInterval seconds have elapsed since the
	// last execution.
	TypeScheduled RuleType = "SCHEDULED"
	// TypeHybrid fires when either the threshold or the schedule condition
	// holds.
	TypeHybrid RuleType = "HYBRID"
)

// Valid reports whether t is one of the defined rule types.
func (t RuleType) Valid() bool {
	switch t {
	case TypeThreshold, TypePercentage, TypeScheduled, TypeHybrid:
		return true
	}
	return false
}

// RuleStatus is the lifecycle state of a rule.
type RuleStatus string

const (
	StatusActive   RuleStatus = "ACTIVE"
	StatusPaused   RuleStatus = "PAUSED"
	StatusDisabled RuleStatus = "DISABLED"
)

// Valid reports whether s is one of the defined rule statuses.
func (s RuleStatus) Valid() bool {
	switch s {
	case StatusActive, StatusPaused, StatusDisabled:
		return true
	}
	return false
}

// PercentDenominator is the total that percentage distribution values must
// sum to: 10,000 basis points.
const PercentDenominator = 10_000

// Distribution is the recipient/amount table attached to a rule (1:1).
//
// Recipients and Values are parallel slices. When UsePercentages is true the
// values are basis points and must sum to PercentDenominator; otherwise they
// are absolute amounts whose sum must not exceed MaxPerExecution.
type Distribution struct {
	Recipients     []string `json:"recipients"`
	Values         []int64  `json:"values"`
	UsePercentages bool     `json:"usePercentages"`
	MaxPerExecution int64   `json:"maxPerExecution"`
}

// Rule is a declarative treasury distribution policy.
//
// TimesExecuted, TotalDistributed and LastExecuted are execution history and
// are only ever advanced by the store when an execution is recorded; they are
// never settable through create or update.
type Rule struct {
	ID          int64      `json:"id"`
	Name        string     `json:"name"`
	Description string     `json:"description"`
	Type        RuleType   `json:"type"`
	Status      RuleStatus `json:"status"`

	// TriggerAmount is the balance threshold for THRESHOLD/HYBRID rules.
	TriggerAmount int64 `json:"triggerAmount"`
	// CheckInterval is the schedule period in seconds for SCHEDULED/HYBRID.
	CheckInterval int64 `json:"checkInterval"`
	// MinExecutionGap is the minimum number of seconds between two
	// executions, enforced for every rule type.
	MinExecutionGap int64 `json:"minExecutionGap"`

	Distribution Distribution `json:"distribution"`

	TimesExecuted    int64 `json:"timesExecuted"`
	TotalDistributed int64 `json:"totalDistributed"`
	// LastExecuted is a unix timestamp in seconds, 0 if never executed.
	LastExecuted int64 `json:"lastExecuted"`

	UpdatedAt time.Time `json:"updatedAt"`
}

// GapSatisfied reports whether a new execution at time now (unix seconds)
// respects the rule's minimum execution gap.
func (r *Rule) GapSatisfied(now int64) bool {
	return r.LastExecuted == 0 || now-r.LastExecuted >= r.MinExecutionGap
}

// Payout is one recipient's share of an execution.
type Payout struct {
	Recipient string `json:"recipient"`
	Amount    int64  `json:"amount"`
}

// ExecutionRecord is the immutable result of one successful rule firing.
// Records are append-only; the store never mutates or deletes them.
type ExecutionRecord struct {
	ID          string   `json:"id"`
	RuleID      int64    `json:"ruleId"`
	ExecutedAt  int64    `json:"executedAt"`
	Payouts     []Payout `json:"payouts"`
	TotalAmount int64    `json:"totalAmount"`
	// TxRef is the ledger receipt reference for the transfer.
	TxRef string `json:"txRef"`
}

// Patch describes an update to a rule's mutable fields. Nil fields are left
// unchanged. Identity and execution history are not patchable.
type Patch struct {
	Name            *string       `json:"name,omitempty"`
	Description     *string       `json:"description,omitempty"`
	Status          *RuleStatus   `json:"status,omitempty"`
	TriggerAmount   *int64        `json:"triggerAmount,omitempty"`
	CheckInterval   *int64        `json:"checkInterval,omitempty"`
	MinExecutionGap *int64        `json:"minExecutionGap,omitempty"`
	Distribution    *Distribution `json:"distribution,omitempty"`
}

// Apply copies the patch's set fields onto r. It does not validate; callers
// validate the resulting rule before persisting it.
func (p *Patch) Apply(r *Rule) {
	if p.Name != nil {
		r.Name = *p.Name
	}
	if p.Description != nil {
		r.Description = *p.Description
	}
	if p.Status != nil {
		r.Status = *p.Status
	}
	if p.TriggerAmount != nil {
		r.TriggerAmount = *p.TriggerAmount
	}
	if p.CheckInterval != nil {
		r.CheckInterval = *p.CheckInterval
	}
	if p.MinExecutionGap != nil {
		r.MinExecutionGap = *p.MinExecutionGap
	}
	if p.Distribution != nil {
		r.Distribution = *p.Distribution
	}
}
