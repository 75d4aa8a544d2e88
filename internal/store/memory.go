package store

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/TimurManjosov/gotreasury/internal/rules"
)

// MemoryStore is an in-memory implementation of the Store interface, suitable
// for development, tests, and single-instance deployments backed by the chain
// simulator.
type MemoryStore struct {
	mu      sync.RWMutex
	nextID  int64
	rules   map[int64]rules.Rule
	history map[int64][]rules.ExecutionRecord
	policy  rules.IntervalPolicy
}

// NewMemoryStore creates an empty in-memory store with the given interval
// validation policy.
func NewMemoryStore(policy rules.IntervalPolicy) *MemoryStore {
	return &MemoryStore{
		nextID:  1,
		rules:   make(map[int64]rules.Rule),
		history: make(map[int64][]rules.ExecutionRecord),
		policy:  policy,
	}
}

// CreateRule validates and inserts a new rule.
func (m *MemoryStore) CreateRule(ctx context.Context, params CreateParams) (int64, error) {
	r := newRule(params)
	if err := rules.ValidateRule(r, m.policy); err != nil {
		return 0, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	r.ID = m.nextID
	m.nextID++
	r.UpdatedAt = time.Now().UTC()
	m.rules[r.ID] = copyRule(r)
	return r.ID, nil
}

// UpdateRule applies a patch to a rule's mutable fields.
func (m *MemoryStore) UpdateRule(ctx context.Context, id int64, patch rules.Patch) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	r, ok := m.rules[id]
	if !ok {
		return fmt.Errorf("%w: id %d", ErrNotFound, id)
	}

	updated := copyRule(r)
	patch.Apply(&updated)
	// Patch cannot touch identity or history; re-assert to be safe against
	// future patch fields.
	updated.ID = r.ID
	updated.TimesExecuted = r.TimesExecuted
	updated.TotalDistributed = r.TotalDistributed
	updated.LastExecuted = r.LastExecuted

	if err := rules.ValidateRule(updated, m.policy); err != nil {
		return err
	}

	updated.UpdatedAt = time.Now().UTC()
	m.rules[id] = updated
	return nil
}

// GetRule retrieves one rule.
func (m *MemoryStore) GetRule(ctx context.Context, id int64) (*rules.Rule, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	r, ok := m.rules[id]
	if !ok {
		return nil, fmt.Errorf("%w: id %d", ErrNotFound, id)
	}
	out := copyRule(r)
	return &out, nil
}

// ListActiveRules returns ACTIVE rules in ascending id order.
func (m *MemoryStore) ListActiveRules(ctx context.Context) ([]rules.Rule, error) {
	return m.list(func(r rules.Rule) bool { return r.Status == rules.StatusActive })
}

// ListRules returns every rule in ascending id order.
func (m *MemoryStore) ListRules(ctx context.Context) ([]rules.Rule, error) {
	return m.list(func(rules.Rule) bool { return true })
}

func (m *MemoryStore) list(keep func(rules.Rule) bool) ([]rules.Rule, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]rules.Rule, 0, len(m.rules))
	for _, r := range m.rules {
		if keep(r) {
			out = append(out, copyRule(r))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// RecordExecution atomically advances the rule's execution history. The gap
// check and the write happen under one lock, so two concurrent recorders for
// the same rule cannot both succeed inside one gap window.
func (m *MemoryStore) RecordExecution(ctx context.Context, rec rules.ExecutionRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	r, ok := m.rules[rec.RuleID]
	if !ok {
		return fmt.Errorf("%w: id %d", ErrNotFound, rec.RuleID)
	}
	if r.LastExecuted != 0 && rec.ExecutedAt-r.LastExecuted < r.MinExecutionGap {
		return fmt.Errorf("%w: rule %d executed at %d, last %d, gap %d",
			ErrExecutionGap, rec.RuleID, rec.ExecutedAt, r.LastExecuted, r.MinExecutionGap)
	}

	r.TimesExecuted++
	r.TotalDistributed += rec.TotalAmount
	r.LastExecuted = rec.ExecutedAt
	r.UpdatedAt = time.Now().UTC()
	m.rules[rec.RuleID] = r
	m.history[rec.RuleID] = append(m.history[rec.RuleID], copyRecord(rec))
	return nil
}

// GetExecutionHistory returns the rule's execution records in order.
func (m *MemoryStore) GetExecutionHistory(ctx context.Context, ruleID int64) ([]rules.ExecutionRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if _, ok := m.rules[ruleID]; !ok {
		return nil, fmt.Errorf("%w: id %d", ErrNotFound, ruleID)
	}
	out := make([]rules.ExecutionRecord, 0, len(m.history[ruleID]))
	for _, rec := range m.history[ruleID] {
		out = append(out, copyRecord(rec))
	}
	return out, nil
}

// Close is a no-op for the in-memory store.
func (m *MemoryStore) Close() error { return nil }
