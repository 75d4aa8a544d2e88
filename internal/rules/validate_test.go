package rules

import (
	"errors"
	"testing"
)

func validDistribution() Distribution {
	return Distribution{
		Recipients:      []string{"addr-1", "addr-2"},
		Values:          []int64{6000, 4000},
		UsePercentages:  true,
		MaxPerExecution: 1_000_000,
	}
}

func validRule() Rule {
	return Rule{
		Name:            "ops-payroll",
		Type:            TypeThreshold,
		Status:          StatusActive,
		TriggerAmount:   1000,
		MinExecutionGap: 3600,
		Distribution:    validDistribution(),
	}
}

func TestValidateDistribution_OK(t *testing.T) {
	if err := ValidateDistribution(validDistribution()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestValidateDistribution_EmptyRecipients(t *testing.T) {
	d := validDistribution()
	d.Recipients = nil
	d.Values = nil
	if err := ValidateDistribution(d); !errors.Is(err, ErrInvalidDistribution) {
		t.Errorf("expected ErrInvalidDistribution, got %v", err)
	}
}

func TestValidateDistribution_LengthMismatch(t *testing.T) {
	d := validDistribution()
	d.Values = d.Values[:1]
	if err := ValidateDistribution(d); !errors.Is(err, ErrInvalidDistribution) {
		t.Errorf("expected ErrInvalidDistribution, got %v", err)
	}
}

func TestValidateDistribution_DuplicateRecipient(t *testing.T) {
	d := validDistribution()
	d.Recipients = []string{"addr-1", "addr-1"}
	if err := ValidateDistribution(d); !errors.Is(err, ErrInvalidDistribution) {
		t.Errorf("expected ErrInvalidDistribution, got %v", err)
	}
}

func TestValidateDistribution_PercentageSumMismatch(t *testing.T) {
	d := validDistribution()
	d.Values = []int64{6000, 3999}
	if err := ValidateDistribution(d); !errors.Is(err, ErrInvalidDistribution) {
		t.Errorf("expected ErrInvalidDistribution, got %v", err)
	}
}

func TestValidateDistribution_AbsoluteSumExceedsCap(t *testing.T) {
	d := Distribution{
		Recipients:      []string{"addr-1", "addr-2"},
		Values:          []int64{700, 700},
		MaxPerExecution: 1000,
	}
	if err := ValidateDistribution(d); !errors.Is(err, ErrInvalidDistribution) {
		t.Errorf("expected ErrInvalidDistribution, got %v", err)
	}
}

func TestValidateDistribution_AbsoluteWithinCap(t *testing.T) {
	d := Distribution{
		Recipients:      []string{"addr-1", "addr-2"},
		Values:          []int64{700, 300},
		MaxPerExecution: 1000,
	}
	if err := ValidateDistribution(d); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestValidateRule_OK(t *testing.T) {
	if err := ValidateRule(validRule(), IntervalPolicyStrict); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestValidateRule_UnknownType(t *testing.T) {
	r := validRule()
	r.Type = RuleType("WEEKLY")
	if err := ValidateRule(r, IntervalPolicyStrict); !errors.Is(err, ErrInvalidRule) {
		t.Errorf("expected ErrInvalidRule, got %v", err)
	}
}

func TestValidateRule_ThresholdRequiresTriggerAmount(t *testing.T) {
	r := validRule()
	r.TriggerAmount = 0
	if err := ValidateRule(r, IntervalPolicyStrict); !errors.Is(err, ErrInvalidRule) {
		t.Errorf("expected ErrInvalidRule, got %v", err)
	}
}

func TestValidateRule_ScheduledRequiresInterval(t *testing.T) {
	r := validRule()
	r.Type = TypeScheduled
	r.CheckInterval = 0
	if err := ValidateRule(r, IntervalPolicyStrict); !errors.Is(err, ErrInvalidRule) {
		t.Errorf("expected ErrInvalidRule, got %v", err)
	}
}

func TestValidateRule_IntervalShorterThanGap(t *testing.T) {
	r := validRule()
	r.Type = TypeScheduled
	r.CheckInterval = 60
	r.MinExecutionGap = 3600

	// Strict policy rejects the misconfiguration at creation time.
	if err := ValidateRule(r, IntervalPolicyStrict); !errors.Is(err, ErrInvalidRule) {
		t.Errorf("strict: expected ErrInvalidRule, got %v", err)
	}
	// Lenient policy accepts it; evaluation applies stricter-wins.
	if err := ValidateRule(r, IntervalPolicyLenient); err != nil {
		t.Errorf("lenient: unexpected error: %v", err)
	}
}

func TestPatch_ApplyOnlySetFields(t *testing.T) {
	r := validRule()
	r.ID = 7
	r.TimesExecuted = 3

	status := StatusPaused
	amount := int64(5000)
	p := Patch{Status: &status, TriggerAmount: &amount}
	p.Apply(&r)

	if r.Status != StatusPaused {
		t.Errorf("status not applied: %s", r.Status)
	}
	if r.TriggerAmount != 5000 {
		t.Errorf("triggerAmount not applied: %d", r.TriggerAmount)
	}
	if r.Name != "ops-payroll" {
		t.Errorf("name changed unexpectedly: %s", r.Name)
	}
	if r.ID != 7 || r.TimesExecuted != 3 {
		t.Error("identity or history fields changed by patch")
	}
}

func TestGapSatisfied(t *testing.T) {
	r := Rule{MinExecutionGap: 100}
	if !r.GapSatisfied(50) {
		t.Error("never-executed rule should satisfy the gap")
	}
	r.LastExecuted = 1000
	if r.GapSatisfied(1099) {
		t.Error("gap of 99s should not satisfy a 100s minimum")
	}
	if !r.GapSatisfied(1100) {
		t.Error("gap of exactly 100s should satisfy a 100s minimum")
	}
}
