// Package chain provides the ledger-side collaborators the coordinator
// consumes: an in-process simulator for development and tests, and a JSON
// gateway client for deployments where a separate service fronts the chain.
package chain

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"

	"github.com/TimurManjosov/gotreasury/internal/rules"
)

// Receipt is the result of a submitted transfer.
type Receipt struct {
	TxRef string `json:"txRef"`
}

// Simulator is an in-memory chain: balances per account, a monotonic clock,
// and an inflow journal. Transfers are atomic across all recipients, matching
// the contract the coordinator assumes of a real ledger executor.
type Simulator struct {
	mu       sync.Mutex
	now      int64
	balances map[string]int64
	// inflows records (timestamp, amount) deposits per account so
	// CumulativeInflow can answer "since" queries.
	inflows map[string][]inflowEvent
}

type inflowEvent struct {
	at     int64
	amount int64
}

// NewSimulator creates a simulator with the clock at the given unix time.
func NewSimulator(now int64) *Simulator {
	return &Simulator{
		now:      now,
		balances: make(map[string]int64),
		inflows:  make(map[string][]inflowEvent),
	}
}

// Advance moves the clock forward. The clock never goes backwards.
func (s *Simulator) Advance(seconds int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if seconds > 0 {
		s.now += seconds
	}
}

// Deposit credits an account at the current clock and journals the inflow.
func (s *Simulator) Deposit(account string, amount int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.balances[account] += amount
	s.inflows[account] = append(s.inflows[account], inflowEvent{at: s.now, amount: amount})
}

// Balance returns the current balance of an account.
func (s *Simulator) Balance(ctx context.Context, account string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.balances[account], nil
}

// Now returns the current chain timestamp.
func (s *Simulator) Now(ctx context.Context) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.now, nil
}

// CumulativeInflow sums deposits into the account strictly after since.
// Exclusive on purpose: callers pass the last execution timestamp, and a
// deposit journaled at exactly that instant was already part of the amount
// distributed then. Counting it again would pay it out twice.
func (s *Simulator) CumulativeInflow(ctx context.Context, account string, since int64) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var sum int64
	for _, ev := range s.inflows[account] {
		if ev.at > since {
			sum += ev.amount
		}
	}
	return sum, nil
}

// SubmitTransfer debits the treasury and credits every recipient in one
// atomic step. It fails without any effect if the treasury balance cannot
// cover the total.
func (s *Simulator) SubmitTransfer(ctx context.Context, treasury string, payouts []rules.Payout) (Receipt, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var total int64
	for _, p := range payouts {
		if p.Amount < 0 {
			return Receipt{}, fmt.Errorf("negative payout for %s", p.Recipient)
		}
		total += p.Amount
	}
	if s.balances[treasury] < total {
		return Receipt{}, fmt.Errorf("treasury %s balance %d below transfer total %d",
			treasury, s.balances[treasury], total)
	}

	s.balances[treasury] -= total
	for _, p := range payouts {
		s.balances[p.Recipient] += p.Amount
	}
	return Receipt{TxRef: "sim-" + uuid.New().String()}, nil
}
