package trigger

import (
	"testing"

	"github.com/TimurManjosov/gotreasury/internal/rules"
)

func baseRule(typ rules.RuleType) rules.Rule {
	return rules.Rule{
		ID:              1,
		Name:            "test",
		Type:            typ,
		Status:          rules.StatusActive,
		TriggerAmount:   1000,
		CheckInterval:   600,
		MinExecutionGap: 60,
		Distribution: rules.Distribution{
			Recipients:      []string{"r1"},
			Values:          []int64{10_000},
			UsePercentages:  true,
			MaxPerExecution: 1_000_000,
		},
	}
}

func TestEvaluate_ThresholdBoundary(t *testing.T) {
	r := baseRule(rules.TypeThreshold)

	res := Evaluate(Input{Rule: r, Balance: 999, Now: 5000})
	if res.Due {
		t.Error("balance 999 below threshold 1000 must not be due")
	}

	res = Evaluate(Input{Rule: r, Balance: 1000, Now: 5000})
	if !res.Due || res.Reason != KindThreshold {
		t.Errorf("balance 1000 at threshold must be due, got %+v", res)
	}
}

func TestEvaluate_NonActiveNeverDue(t *testing.T) {
	for _, status := range []rules.RuleStatus{rules.StatusPaused, rules.StatusDisabled} {
		r := baseRule(rules.TypeThreshold)
		r.Status = status
		if res := Evaluate(Input{Rule: r, Balance: 10_000, Now: 5000}); res.Due {
			t.Errorf("status %s must never be due", status)
		}
	}
}

func TestEvaluate_GapBlocksAllTypes(t *testing.T) {
	for _, typ := range []rules.RuleType{
		rules.TypeThreshold, rules.TypeScheduled, rules.TypePercentage, rules.TypeHybrid,
	} {
		r := baseRule(typ)
		r.LastExecuted = 5000
		in := Input{Rule: r, Balance: 10_000, Now: 5030, Inflow: 500}
		if res := Evaluate(in); res.Due {
			t.Errorf("type %s: 30s since last execution must not pass a 60s gap", typ)
		}
	}
}

func TestEvaluate_ScheduledFirstCheckAlwaysEligible(t *testing.T) {
	r := baseRule(rules.TypeScheduled)
	res := Evaluate(Input{Rule: r, Balance: 500, Now: 10})
	if !res.Due || res.Reason != KindSchedule {
		t.Errorf("never-executed scheduled rule must be due on first check, got %+v", res)
	}
}

func TestEvaluate_ScheduledInterval(t *testing.T) {
	r := baseRule(rules.TypeScheduled)
	r.LastExecuted = 1000

	if res := Evaluate(Input{Rule: r, Balance: 500, Now: 1599}); res.Due {
		t.Error("599s since last execution must not pass a 600s interval")
	}
	if res := Evaluate(Input{Rule: r, Balance: 500, Now: 1600}); !res.Due {
		t.Error("600s since last execution must pass a 600s interval")
	}
}

func TestEvaluate_StricterWins(t *testing.T) {
	// Interval shorter than the gap: the gap decides the cadence.
	r := baseRule(rules.TypeScheduled)
	r.CheckInterval = 10
	r.MinExecutionGap = 600
	r.LastExecuted = 1000

	if res := Evaluate(Input{Rule: r, Balance: 500, Now: 1100}); res.Due {
		t.Error("interval elapsed but gap not satisfied: must not be due")
	}
	if res := Evaluate(Input{Rule: r, Balance: 500, Now: 1600}); !res.Due {
		t.Error("gap satisfied: must be due")
	}
}

func TestEvaluate_PercentageRequiresInflow(t *testing.T) {
	r := baseRule(rules.TypePercentage)

	if res := Evaluate(Input{Rule: r, Balance: 5000, Now: 100, Inflow: 0}); res.Due {
		t.Error("zero inflow must not be due")
	}

	res := Evaluate(Input{Rule: r, Balance: 5000, Now: 100, Inflow: 300})
	if !res.Due || res.Reason != KindInflow {
		t.Fatalf("positive inflow must be due, got %+v", res)
	}
	if res.Available != 300 {
		t.Errorf("available must equal inflow, got %d", res.Available)
	}
}

func TestEvaluate_PercentageAvailableCappedByBalance(t *testing.T) {
	r := baseRule(rules.TypePercentage)
	res := Evaluate(Input{Rule: r, Balance: 200, Now: 100, Inflow: 300})
	if !res.Due || res.Available != 200 {
		t.Errorf("available must be capped by balance, got %+v", res)
	}
}

func TestEvaluate_AvailableCappedByMaxPerExecution(t *testing.T) {
	r := baseRule(rules.TypeThreshold)
	r.Distribution.MaxPerExecution = 500
	res := Evaluate(Input{Rule: r, Balance: 10_000, Now: 100})
	if !res.Due || res.Available != 500 {
		t.Errorf("available must be capped by maxPerExecution, got %+v", res)
	}
}

func TestEvaluate_HybridEitherLeg(t *testing.T) {
	r := baseRule(rules.TypeHybrid)
	r.LastExecuted = 1000

	// Neither condition.
	if res := Evaluate(Input{Rule: r, Balance: 500, Now: 1100}); res.Due {
		t.Errorf("neither leg holds, got %+v", res)
	}
	// Threshold only.
	res := Evaluate(Input{Rule: r, Balance: 2000, Now: 1100})
	if !res.Due || res.Reason != KindThreshold {
		t.Errorf("threshold leg must fire, got %+v", res)
	}
	// Schedule only.
	res = Evaluate(Input{Rule: r, Balance: 500, Now: 1700})
	if !res.Due || res.Reason != KindSchedule {
		t.Errorf("schedule leg must fire, got %+v", res)
	}
}

func TestEvaluate_Pure(t *testing.T) {
	in := Input{Rule: baseRule(rules.TypeHybrid), Balance: 2000, Now: 12345, Inflow: 10}
	first := Evaluate(in)
	for i := 0; i < 10; i++ {
		if got := Evaluate(in); got != first {
			t.Fatalf("evaluation is not deterministic: %+v vs %+v", got, first)
		}
	}
	if in.Rule.LastExecuted != 0 || in.Rule.TimesExecuted != 0 {
		t.Error("evaluation mutated rule state")
	}
}
