// Package payout turns a distribution table and an available amount into
// concrete per-recipient payouts. All computation is integer arithmetic in
// the smallest unit of the treasury asset; no value is created or destroyed.
package payout

import (
	"errors"
	"fmt"
	"math/bits"

	"github.com/TimurManjosov/gotreasury/internal/rules"
)

// ErrInsufficientFunds is returned when there is nothing to distribute.
// Execution is skipped and retried on the next poll cycle.
var ErrInsufficientFunds = errors.New("insufficient funds")

// ErrInconsistentPayout is returned when the computed payouts violate the
// conservation invariant. This indicates a bug, not an operational condition,
// and callers must halt the affected rule.
var ErrInconsistentPayout = errors.New("payout sum inconsistent with available amount")

// Compute calculates the payout for each recipient of the distribution.
//
// Percentage mode: each recipient gets floor(available * value / 10000);
// the flooring remainder goes to the first recipient, so the payouts sum to
// exactly the available amount.
//
// Absolute mode: the cap starts at min(available, maxPerExecution) and each
// recipient gets min(value, remaining cap) in table order. Recipients past
// the point where the cap is exhausted get zero. The truncation order is part
// of the contract, not a silent failure.
//
// The distribution is assumed valid (see rules.ValidateDistribution); Compute
// still re-checks the conservation invariant before returning.
func Compute(d rules.Distribution, available int64) ([]rules.Payout, error) {
	if available <= 0 {
		return nil, fmt.Errorf("%w: available amount is %d", ErrInsufficientFunds, available)
	}

	payouts := make([]rules.Payout, len(d.Recipients))
	if d.UsePercentages {
		var distributed int64
		for i, r := range d.Recipients {
			payouts[i] = rules.Payout{Recipient: r, Amount: basisPoints(available, d.Values[i])}
			distributed += payouts[i].Amount
		}
		// Flooring remainder goes to the first recipient.
		payouts[0].Amount += available - distributed

		if err := checkSum(payouts, available); err != nil {
			return nil, err
		}
		return payouts, nil
	}

	remaining := available
	if d.MaxPerExecution < remaining {
		remaining = d.MaxPerExecution
	}
	allocatable := remaining
	for i, r := range d.Recipients {
		amount := d.Values[i]
		if amount > remaining {
			amount = remaining
		}
		payouts[i] = rules.Payout{Recipient: r, Amount: amount}
		remaining -= amount
	}

	if err := checkSum(payouts, allocatable-remaining); err != nil {
		return nil, err
	}
	return payouts, nil
}

// basisPoints computes floor(amount * value / 10000) with a 128-bit
// intermediate product, so amounts near the int64 ceiling (18-decimal assets)
// never overflow. Requires amount > 0 and 0 <= value <= PercentDenominator,
// both guaranteed by validation; the quotient then always fits in an int64
// and the divisor always exceeds the product's high word.
func basisPoints(amount, value int64) int64 {
	hi, lo := bits.Mul64(uint64(amount), uint64(value))
	q, _ := bits.Div64(hi, lo, rules.PercentDenominator)
	return int64(q)
}

// Total sums the payout amounts.
func Total(payouts []rules.Payout) int64 {
	var sum int64
	for _, p := range payouts {
		sum += p.Amount
	}
	return sum
}

func checkSum(payouts []rules.Payout, want int64) error {
	for _, p := range payouts {
		if p.Amount < 0 {
			return fmt.Errorf("%w: negative payout for %s", ErrInconsistentPayout, p.Recipient)
		}
	}
	if got := Total(payouts); got != want {
		return fmt.Errorf("%w: got %d, want %d", ErrInconsistentPayout, got, want)
	}
	return nil
}
