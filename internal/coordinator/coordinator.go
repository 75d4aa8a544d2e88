// Package coordinator drives the poll → evaluate → gate → compute → execute →
// record cycle across all rules. Rules are evaluated concurrently, but every
// rule is pinned to one worker by hashing its id, so the evaluate→record
// transition for a given rule is always serialized. No lock is held while a
// chain read or a transfer submission is in flight.
package coordinator

import (
	"context"
	"errors"
	"log"
	"strconv"
	"sync"
	"time"

	"github.com/cespare/xxhash/v2"
	"github.com/google/uuid"

	"github.com/TimurManjosov/gotreasury/internal/audit"
	"github.com/TimurManjosov/gotreasury/internal/chain"
	"github.com/TimurManjosov/gotreasury/internal/compliance"
	"github.com/TimurManjosov/gotreasury/internal/payout"
	"github.com/TimurManjosov/gotreasury/internal/rules"
	"github.com/TimurManjosov/gotreasury/internal/store"
	"github.com/TimurManjosov/gotreasury/internal/telemetry"
	"github.com/TimurManjosov/gotreasury/internal/trigger"
)

// ChainState reads current chain and treasury state. Reads may be slightly
// stale (bounded by the poll interval) but timestamps must be monotonic.
type ChainState interface {
	Balance(ctx context.Context, account string) (int64, error)
	Now(ctx context.Context) (int64, error)
	CumulativeInflow(ctx context.Context, account string, since int64) (int64, error)
}

// Ledger submits transfers. A submission is atomic across all recipients:
// it either fully lands or has no effect.
type Ledger interface {
	SubmitTransfer(ctx context.Context, treasury string, payouts []rules.Payout) (chain.Receipt, error)
}

// Config holds coordinator tuning.
type Config struct {
	Treasury     string
	PollInterval time.Duration
	Workers      int
	QueueSize    int
}

// Coordinator orchestrates rule execution.
type Coordinator struct {
	store  store.Store
	chain  ChainState
	ledger Ledger
	gate   *compliance.Gate
	audit  *audit.Service
	cfg    Config

	mu     sync.Mutex
	halted map[int64]string

	queues []chan job
	wg     sync.WaitGroup
}

type job struct {
	rule    rules.Rule
	balance int64
	now     int64
}

// New creates a coordinator. Workers and queue size fall back to sane
// defaults when unset.
func New(st store.Store, cs ChainState, ledger Ledger, gate *compliance.Gate, auditor *audit.Service, cfg Config) *Coordinator {
	if cfg.Workers <= 0 {
		cfg.Workers = 4
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 64
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 15 * time.Second
	}
	return &Coordinator{
		store:  st,
		chain:  cs,
		ledger: ledger,
		gate:   gate,
		audit:  auditor,
		cfg:    cfg,
		halted: make(map[int64]string),
	}
}

// Run polls until the context is cancelled. In-flight evaluations complete;
// no new cycle starts after cancellation.
func (c *Coordinator) Run(ctx context.Context) {
	c.queues = make([]chan job, c.cfg.Workers)
	for i := range c.queues {
		c.queues[i] = make(chan job, c.cfg.QueueSize)
		c.wg.Add(1)
		go c.worker(ctx, c.queues[i])
	}

	ticker := time.NewTicker(c.cfg.PollInterval)
	defer ticker.Stop()

	log.Printf("[coordinator] started treasury=%s interval=%s workers=%d",
		c.cfg.Treasury, c.cfg.PollInterval, c.cfg.Workers)

	for {
		select {
		case <-ctx.Done():
			for _, q := range c.queues {
				close(q)
			}
			c.wg.Wait()
			log.Printf("[coordinator] stopped")
			return
		case <-ticker.C:
			c.dispatchCycle(ctx)
		}
	}
}

// dispatchCycle reads chain state once and fans rules out to their workers.
// A full worker queue drops the job; the rule is picked up again next cycle.
func (c *Coordinator) dispatchCycle(ctx context.Context) {
	start := time.Now()
	defer func() { telemetry.CycleDuration.Observe(time.Since(start).Seconds()) }()

	now, err := c.chain.Now(ctx)
	if err != nil {
		log.Printf("[coordinator] chain time read failed: %v", err)
		return
	}
	balance, err := c.chain.Balance(ctx, c.cfg.Treasury)
	if err != nil {
		log.Printf("[coordinator] balance read failed: %v", err)
		return
	}

	active, err := c.store.ListActiveRules(ctx)
	if err != nil {
		log.Printf("[coordinator] list rules failed: %v", err)
		return
	}
	telemetry.ActiveRules.Set(float64(len(active)))

	for _, r := range active {
		if reason, ok := c.Halted(r.ID); ok {
			log.Printf("[coordinator] rule halted, skipping: rule=%d reason=%s", r.ID, reason)
			continue
		}
		q := c.queues[shard(r.ID, len(c.queues))]
		select {
		case q <- job{rule: r, balance: balance, now: now}:
		default:
			log.Printf("[coordinator] worker queue full, deferring rule=%d to next cycle", r.ID)
		}
	}
}

func (c *Coordinator) worker(ctx context.Context, q <-chan job) {
	defer c.wg.Done()
	for j := range q {
		c.processRule(ctx, j.rule, j.balance, j.now)
	}
}

// RunOnce evaluates every active rule synchronously against fresh chain
// state. Used by tests and one-shot invocations.
func (c *Coordinator) RunOnce(ctx context.Context) error {
	now, err := c.chain.Now(ctx)
	if err != nil {
		return err
	}
	balance, err := c.chain.Balance(ctx, c.cfg.Treasury)
	if err != nil {
		return err
	}
	active, err := c.store.ListActiveRules(ctx)
	if err != nil {
		return err
	}
	telemetry.ActiveRules.Set(float64(len(active)))

	for _, r := range active {
		if _, ok := c.Halted(r.ID); ok {
			continue
		}
		c.processRule(ctx, r, balance, now)
	}
	return nil
}

// processRule runs one rule through the full state machine:
// evaluating → gated | executing → recorded. On any failure before recording,
// no rule state mutates and the next cycle re-evaluates from scratch.
func (c *Coordinator) processRule(ctx context.Context, r rules.Rule, balance, now int64) {
	in := trigger.Input{Rule: r, Balance: balance, Now: now}
	if r.Type == rules.TypePercentage {
		inflow, err := c.chain.CumulativeInflow(ctx, c.cfg.Treasury, r.LastExecuted)
		if err != nil {
			log.Printf("[coordinator] inflow read failed: rule=%d err=%v", r.ID, err)
			telemetry.Executions.WithLabelValues("failed").Inc()
			return
		}
		in.Inflow = inflow
	}

	res := trigger.Evaluate(in)
	if !res.Due {
		return
	}
	if res.Available <= 0 {
		log.Printf("[coordinator] due but nothing distributable: rule=%d reason=%s", r.ID, res.Reason)
		telemetry.Executions.WithLabelValues("skipped").Inc()
		return
	}

	decision, err := c.gate.Check(ctx, r.Distribution.Recipients)
	if err != nil {
		log.Printf("[coordinator] compliance check failed: rule=%d err=%v", r.ID, err)
		telemetry.Executions.WithLabelValues("failed").Inc()
		return
	}
	if decision.Blocked {
		// Skipped, not failed: the rule stays ACTIVE and untouched.
		log.Printf("[coordinator] execution gated: rule=%d reason=%s", r.ID, decision.Reason)
		telemetry.Executions.WithLabelValues("gated").Inc()
		c.audit.Record(audit.Entry{
			Action:  audit.ActionExecutionGated,
			RuleID:  r.ID,
			Details: map[string]string{"reason": decision.Reason},
		})
		return
	}

	payouts, err := payout.Compute(r.Distribution, res.Available)
	switch {
	case errors.Is(err, payout.ErrInsufficientFunds):
		telemetry.Executions.WithLabelValues("skipped").Inc()
		return
	case errors.Is(err, payout.ErrInconsistentPayout):
		c.halt(r.ID, err.Error())
		return
	case err != nil:
		log.Printf("[coordinator] payout computation failed: rule=%d err=%v", r.ID, err)
		telemetry.Executions.WithLabelValues("failed").Inc()
		return
	}

	total := payout.Total(payouts)
	receipt, err := c.ledger.SubmitTransfer(ctx, c.cfg.Treasury, payouts)
	if errors.Is(err, chain.ErrPartialTransfer) {
		// Funds may have partially moved. Re-evaluating would risk paying
		// some recipients twice, so the rule stops until reconciled.
		c.halt(r.ID, err.Error())
		return
	}
	if err != nil {
		// No rule state mutates; the next poll cycle re-evaluates. There
		// is deliberately no immediate retry, to avoid double-submission.
		log.Printf("[coordinator] transfer submission failed: rule=%d amount=%d err=%v", r.ID, total, err)
		telemetry.Executions.WithLabelValues("failed").Inc()
		c.audit.Record(audit.Entry{
			Action:  audit.ActionExecutionFailed,
			RuleID:  r.ID,
			Details: map[string]string{"error": err.Error()},
		})
		return
	}

	rec := rules.ExecutionRecord{
		ID:          uuid.New().String(),
		RuleID:      r.ID,
		ExecutedAt:  now,
		Payouts:     payouts,
		TotalAmount: total,
		TxRef:       receipt.TxRef,
	}
	if err := c.store.RecordExecution(ctx, rec); err != nil {
		if errors.Is(err, store.ErrExecutionGap) {
			// Lost a race with a concurrent recorder; the transfer landed
			// but this poller's view was stale. Surfaced for operators.
			log.Printf("[coordinator] record lost gap race: rule=%d tx=%s", r.ID, receipt.TxRef)
		} else {
			log.Printf("[coordinator] record failed: rule=%d tx=%s err=%v", r.ID, receipt.TxRef, err)
		}
		telemetry.Executions.WithLabelValues("failed").Inc()
		return
	}

	log.Printf("[coordinator] executed: rule=%d reason=%s amount=%d tx=%s",
		r.ID, res.Reason, total, receipt.TxRef)
	telemetry.Executions.WithLabelValues("executed").Inc()
	telemetry.PayoutAmount.Add(float64(total))
	c.audit.Record(audit.Entry{
		Action: audit.ActionExecutionRecorded,
		RuleID: r.ID,
		Details: map[string]string{
			"amount": strconv.FormatInt(total, 10),
			"txRef":  receipt.TxRef,
			"reason": string(res.Reason),
		},
	})
}

// halt marks a rule as fatally inconsistent. Halted rules are skipped until
// an operator intervenes; the condition is never silently retried.
func (c *Coordinator) halt(ruleID int64, reason string) {
	c.mu.Lock()
	c.halted[ruleID] = reason
	c.mu.Unlock()

	log.Printf("[coordinator] CRITICAL: rule halted: rule=%d reason=%s", ruleID, reason)
	telemetry.Executions.WithLabelValues("halted").Inc()
	c.audit.Record(audit.Entry{
		Action:  audit.ActionRuleHalted,
		RuleID:  ruleID,
		Details: map[string]string{"reason": reason},
	})
}

// Halted reports whether a rule is halted and why.
func (c *Coordinator) Halted(ruleID int64) (string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	reason, ok := c.halted[ruleID]
	return reason, ok
}

// Resume clears a halt after manual reconciliation.
func (c *Coordinator) Resume(ruleID int64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.halted, ruleID)
}

// shard pins a rule id to a worker index.
func shard(ruleID int64, workers int) int {
	return int(xxhash.Sum64String(strconv.FormatInt(ruleID, 10)) % uint64(workers))
}
