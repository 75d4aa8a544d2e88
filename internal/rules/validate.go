package rules

import (
	"errors"
	"fmt"
)

// IntervalPolicy controls how a SCHEDULED/HYBRID rule whose CheckInterval is
// shorter than its MinExecutionGap is treated at validation time. Evaluation
// always applies the stricter of the two; the policy only decides whether
// such a configuration is rejected up front.
type IntervalPolicy string

const (
	// IntervalPolicyStrict rejects checkInterval < minExecutionGap.
	IntervalPolicyStrict IntervalPolicy = "strict"
	// IntervalPolicyLenient accepts it; the gap wins at evaluation time.
	IntervalPolicyLenient IntervalPolicy = "lenient"
)

// ErrInvalidDistribution is the base error for every distribution table
// rejection. Wrapped errors carry the specific reason.
var ErrInvalidDistribution = errors.New("invalid distribution")

// ErrInvalidRule is the base error for rule field rejections.
var ErrInvalidRule = errors.New("invalid rule")

// ValidateDistribution checks the distribution table invariants:
// non-empty recipient set, no duplicate recipients, parallel slices of equal
// length, percentage values summing to PercentDenominator, and absolute
// values summing to at most MaxPerExecution.
func ValidateDistribution(d Distribution) error {
	if len(d.Recipients) == 0 {
		return fmt.Errorf("%w: recipient set is empty", ErrInvalidDistribution)
	}
	if len(d.Recipients) != len(d.Values) {
		return fmt.Errorf("%w: %d recipients but %d values",
			ErrInvalidDistribution, len(d.Recipients), len(d.Values))
	}
	if d.MaxPerExecution <= 0 {
		return fmt.Errorf("%w: maxPerExecution must be positive", ErrInvalidDistribution)
	}

	seen := make(map[string]bool, len(d.Recipients))
	for i, r := range d.Recipients {
		if r == "" {
			return fmt.Errorf("%w: recipient %d is empty", ErrInvalidDistribution, i)
		}
		if seen[r] {
			return fmt.Errorf("%w: duplicate recipient %s", ErrInvalidDistribution, r)
		}
		seen[r] = true
	}

	var sum int64
	for i, v := range d.Values {
		if v < 0 {
			return fmt.Errorf("%w: value %d is negative", ErrInvalidDistribution, i)
		}
		sum += v
	}

	if d.UsePercentages {
		if sum != PercentDenominator {
			return fmt.Errorf("%w: percentage values sum to %d, want %d",
				ErrInvalidDistribution, sum, PercentDenominator)
		}
		return nil
	}
	if sum > d.MaxPerExecution {
		return fmt.Errorf("%w: absolute values sum to %d, exceeding maxPerExecution %d",
			ErrInvalidDistribution, sum, d.MaxPerExecution)
	}
	return nil
}

// ValidateRule checks a complete rule (including its distribution) against
// the creation/update invariants. It is called with the post-patch state on
// updates, so a patch can never leave an invalid rule behind.
func ValidateRule(r Rule, policy IntervalPolicy) error {
	if r.Name == "" {
		return fmt.Errorf("%w: name is required", ErrInvalidRule)
	}
	if !r.Type.Valid() {
		return fmt.Errorf("%w: unknown type %q", ErrInvalidRule, r.Type)
	}
	if !r.Status.Valid() {
		return fmt.Errorf("%w: unknown status %q", ErrInvalidRule, r.Status)
	}
	if r.MinExecutionGap < 0 {
		return fmt.Errorf("%w: minExecutionGap must not be negative", ErrInvalidRule)
	}

	switch r.Type {
	case TypeThreshold, TypeHybrid:
		if r.TriggerAmount <= 0 {
			return fmt.Errorf("%w: %s rules require a positive triggerAmount", ErrInvalidRule, r.Type)
		}
	}
	switch r.Type {
	case TypeScheduled, TypeHybrid:
		if r.CheckInterval <= 0 {
			return fmt.Errorf("%w: %s rules require a positive checkInterval", ErrInvalidRule, r.Type)
		}
		if policy == IntervalPolicyStrict && r.CheckInterval < r.MinExecutionGap {
			return fmt.Errorf("%w: checkInterval %d is shorter than minExecutionGap %d",
				ErrInvalidRule, r.CheckInterval, r.MinExecutionGap)
		}
	}

	return ValidateDistribution(r.Distribution)
}
