package store

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/TimurManjosov/gotreasury/internal/rules"
)

func testParams() CreateParams {
	return CreateParams{
		Name:            "grants",
		Type:            rules.TypeThreshold,
		Status:          rules.StatusActive,
		TriggerAmount:   1000,
		MinExecutionGap: 60,
		Distribution: rules.Distribution{
			Recipients:      []string{"r1", "r2"},
			Values:          []int64{6000, 4000},
			UsePercentages:  true,
			MaxPerExecution: 100_000,
		},
	}
}

func TestCreateRule_MonotonicIDs(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore(rules.IntervalPolicyStrict)

	first, err := s.CreateRule(ctx, testParams())
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	second, err := s.CreateRule(ctx, testParams())
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if second <= first {
		t.Errorf("ids must be monotonic: %d then %d", first, second)
	}
}

func TestCreateRule_RejectsInvalidDistribution(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore(rules.IntervalPolicyStrict)

	params := testParams()
	params.Distribution.Values = []int64{6000, 3000}
	if _, err := s.CreateRule(ctx, params); !errors.Is(err, rules.ErrInvalidDistribution) {
		t.Errorf("expected ErrInvalidDistribution, got %v", err)
	}
}

func TestGetRule_NotFound(t *testing.T) {
	s := NewMemoryStore(rules.IntervalPolicyStrict)
	if _, err := s.GetRule(context.Background(), 42); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestUpdateRule_MutableFieldsOnly(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore(rules.IntervalPolicyStrict)

	id, err := s.CreateRule(ctx, testParams())
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := s.RecordExecution(ctx, rules.ExecutionRecord{
		ID: "rec-1", RuleID: id, ExecutedAt: 1000, TotalAmount: 100,
		Payouts: []rules.Payout{{Recipient: "r1", Amount: 100}},
	}); err != nil {
		t.Fatalf("record: %v", err)
	}

	status := rules.StatusPaused
	if err := s.UpdateRule(ctx, id, rules.Patch{Status: &status}); err != nil {
		t.Fatalf("update: %v", err)
	}

	r, err := s.GetRule(ctx, id)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if r.Status != rules.StatusPaused {
		t.Errorf("status not updated: %s", r.Status)
	}
	if r.TimesExecuted != 1 || r.TotalDistributed != 100 || r.LastExecuted != 1000 {
		t.Errorf("history fields must survive an update: %+v", r)
	}
}

func TestUpdateRule_RejectsInvalidPatch(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore(rules.IntervalPolicyStrict)

	id, err := s.CreateRule(ctx, testParams())
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	bad := rules.Distribution{
		Recipients:      []string{"r1", "r1"},
		Values:          []int64{5000, 5000},
		UsePercentages:  true,
		MaxPerExecution: 100,
	}
	if err := s.UpdateRule(ctx, id, rules.Patch{Distribution: &bad}); !errors.Is(err, rules.ErrInvalidDistribution) {
		t.Fatalf("expected ErrInvalidDistribution, got %v", err)
	}

	// Rejected update must leave the rule untouched.
	r, err := s.GetRule(ctx, id)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if len(r.Distribution.Recipients) != 2 || r.Distribution.Recipients[1] != "r2" {
		t.Errorf("distribution changed by a rejected update: %+v", r.Distribution)
	}
}

func TestListActiveRules_OrderedAndFiltered(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore(rules.IntervalPolicyStrict)

	a, _ := s.CreateRule(ctx, testParams())
	b, _ := s.CreateRule(ctx, testParams())
	c, _ := s.CreateRule(ctx, testParams())

	status := rules.StatusDisabled
	if err := s.UpdateRule(ctx, b, rules.Patch{Status: &status}); err != nil {
		t.Fatalf("update: %v", err)
	}

	active, err := s.ListActiveRules(ctx)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(active) != 2 || active[0].ID != a || active[1].ID != c {
		t.Errorf("expected [%d %d], got %+v", a, c, active)
	}
}

func TestRecordExecution_AdvancesCountersAtomically(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore(rules.IntervalPolicyStrict)

	id, _ := s.CreateRule(ctx, testParams())
	recs := []rules.ExecutionRecord{
		{ID: "rec-1", RuleID: id, ExecutedAt: 1000, TotalAmount: 100},
		{ID: "rec-2", RuleID: id, ExecutedAt: 1060, TotalAmount: 250},
	}
	for _, rec := range recs {
		if err := s.RecordExecution(ctx, rec); err != nil {
			t.Fatalf("record %s: %v", rec.ID, err)
		}
	}

	r, _ := s.GetRule(ctx, id)
	if r.TimesExecuted != 2 {
		t.Errorf("timesExecuted = %d, want 2", r.TimesExecuted)
	}
	if r.TotalDistributed != 350 {
		t.Errorf("totalDistributed = %d, want 350", r.TotalDistributed)
	}
	if r.LastExecuted != 1060 {
		t.Errorf("lastExecuted = %d, want 1060", r.LastExecuted)
	}

	history, err := s.GetExecutionHistory(ctx, id)
	if err != nil {
		t.Fatalf("history: %v", err)
	}
	if len(history) != 2 || history[0].ID != "rec-1" || history[1].ID != "rec-2" {
		t.Errorf("unexpected history: %+v", history)
	}
}

func TestRecordExecution_GapCompareAndSet(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore(rules.IntervalPolicyStrict)

	id, _ := s.CreateRule(ctx, testParams())
	if err := s.RecordExecution(ctx, rules.ExecutionRecord{
		ID: "rec-1", RuleID: id, ExecutedAt: 1000, TotalAmount: 100,
	}); err != nil {
		t.Fatalf("record: %v", err)
	}

	err := s.RecordExecution(ctx, rules.ExecutionRecord{
		ID: "rec-2", RuleID: id, ExecutedAt: 1059, TotalAmount: 100,
	})
	if !errors.Is(err, ErrExecutionGap) {
		t.Fatalf("expected ErrExecutionGap, got %v", err)
	}

	r, _ := s.GetRule(ctx, id)
	if r.TimesExecuted != 1 || r.TotalDistributed != 100 {
		t.Errorf("failed record must not mutate state: %+v", r)
	}
	history, _ := s.GetExecutionHistory(ctx, id)
	if len(history) != 1 {
		t.Errorf("failed record must not append history, got %d records", len(history))
	}
}

func TestRecordExecution_ConcurrentRecordersRespectGap(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore(rules.IntervalPolicyStrict)
	id, _ := s.CreateRule(ctx, testParams())

	// Simulated concurrent pollers all observing the same due state: at
	// most one record per gap window may land.
	const pollers = 16
	var wg sync.WaitGroup
	errs := make(chan error, pollers)
	for i := 0; i < pollers; i++ {
		i := i
		wg.Add(1)
		go func() {
			defer wg.Done()
			errs <- s.RecordExecution(ctx, rules.ExecutionRecord{
				ID: "rec", RuleID: id, ExecutedAt: 2000 + int64(i%30), TotalAmount: 10,
			})
		}()
	}
	wg.Wait()
	close(errs)

	var succeeded int
	for err := range errs {
		if err == nil {
			succeeded++
		} else if !errors.Is(err, ErrExecutionGap) {
			t.Errorf("unexpected error kind: %v", err)
		}
	}
	if succeeded != 1 {
		t.Errorf("exactly one concurrent record must succeed, got %d", succeeded)
	}

	r, _ := s.GetRule(ctx, id)
	if r.TimesExecuted != 1 {
		t.Errorf("timesExecuted = %d, want 1", r.TimesExecuted)
	}
}

func TestGetRule_ReturnsCopy(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore(rules.IntervalPolicyStrict)
	id, _ := s.CreateRule(ctx, testParams())

	r, _ := s.GetRule(ctx, id)
	r.Distribution.Recipients[0] = "tampered"
	r.Name = "tampered"

	fresh, _ := s.GetRule(ctx, id)
	if fresh.Distribution.Recipients[0] != "r1" || fresh.Name != "grants" {
		t.Error("mutating a returned rule must not affect store state")
	}
}
