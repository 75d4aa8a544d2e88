// Package trigger decides whether a rule is due to fire given current chain
// and treasury state. Evaluation is a pure function: it never mutates rule
// state and yields identical results for identical inputs, so the same input
// can be re-evaluated safely on every poll cycle.
package trigger

import "github.com/TimurManjosov/gotreasury/internal/rules"

// Kind identifies which condition caused a rule to fire. For HYBRID rules it
// names the leg that matched (threshold is checked first).
type Kind string

const (
	KindNone      Kind = "NONE"
	KindThreshold Kind = "THRESHOLD"
	KindSchedule  Kind = "SCHEDULE"
	KindInflow    Kind = "INFLOW"
)

// Input is the full state a trigger decision depends on.
type Input struct {
	Rule rules.Rule
	// Balance is the current treasury balance.
	Balance int64
	// Now is the current chain timestamp in unix seconds.
	Now int64
	// Inflow is the cumulative inflow since the rule's last execution,
	// used by PERCENTAGE rules.
	Inflow int64
}

// Result is the outcome of one trigger evaluation.
type Result struct {
	Due    bool
	Reason Kind
	// Available is the amount eligible for distribution when Due, already
	// capped by the treasury balance and the distribution's per-execution
	// maximum.
	Available int64
}

// Evaluate decides whether the rule in the input is due to fire.
//
// The minimum execution gap is enforced for every rule type before any
// condition is considered; a SCHEDULED rule whose checkInterval is shorter
// than the gap therefore fires at the gap's cadence (stricter wins). Rules
// that are not ACTIVE are never due.
func Evaluate(in Input) Result {
	r := in.Rule
	if r.Status != rules.StatusActive {
		return Result{Reason: KindNone}
	}
	if !r.GapSatisfied(in.Now) {
		return Result{Reason: KindNone}
	}

	switch r.Type {
	case rules.TypeThreshold:
		if in.Balance >= r.TriggerAmount {
			return due(KindThreshold, in.Balance, r.Distribution)
		}
	case rules.TypeScheduled:
		if scheduleElapsed(r, in.Now) {
			return due(KindSchedule, in.Balance, r.Distribution)
		}
	case rules.TypePercentage:
		if in.Inflow > 0 {
			return due(KindInflow, minInt64(in.Inflow, in.Balance), r.Distribution)
		}
	case rules.TypeHybrid:
		if in.Balance >= r.TriggerAmount {
			return due(KindThreshold, in.Balance, r.Distribution)
		}
		if scheduleElapsed(r, in.Now) {
			return due(KindSchedule, in.Balance, r.Distribution)
		}
	}
	return Result{Reason: KindNone}
}

// scheduleElapsed reports whether checkInterval has passed since the last
// execution. A rule that never executed is eligible on its first check.
func scheduleElapsed(r rules.Rule, now int64) bool {
	return r.LastExecuted == 0 || now-r.LastExecuted >= r.CheckInterval
}

func due(reason Kind, amount int64, d rules.Distribution) Result {
	available := minInt64(amount, d.MaxPerExecution)
	if available <= 0 {
		// Due by condition but nothing distributable; the caller surfaces
		// this as an insufficient-funds skip.
		return Result{Due: true, Reason: reason, Available: 0}
	}
	return Result{Due: true, Reason: reason, Available: available}
}

func minInt64(a, b int64) int64 {
	if a < b {
		return a
	}
	return b
}
