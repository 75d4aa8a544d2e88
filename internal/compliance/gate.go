// Package compliance gates payout execution on pause and blacklist state.
// A blocked execution is a skip, not a failure: the rule stays ACTIVE and is
// re-evaluated on the next poll cycle.
package compliance

import (
	"context"
	"sync"
)

// Source is the external collaborator holding compliance state.
type Source interface {
	IsPaused(ctx context.Context) (bool, error)
	IsBlacklisted(ctx context.Context, address string) (bool, error)
}

// Decision is the outcome of a gate check.
type Decision struct {
	Blocked bool
	// Reason is "paused" or "blacklisted:<address>" when blocked.
	Reason string
}

// Gate consults a Source before any payout is executed.
type Gate struct {
	source Source
}

// NewGate wraps a compliance source.
func NewGate(source Source) *Gate {
	return &Gate{source: source}
}

// Check reports whether execution for the given recipients is blocked.
// A global pause blocks everything; otherwise any blacklisted recipient
// blocks the whole execution, because transfers are all-or-nothing.
func (g *Gate) Check(ctx context.Context, recipients []string) (Decision, error) {
	paused, err := g.source.IsPaused(ctx)
	if err != nil {
		return Decision{}, err
	}
	if paused {
		return Decision{Blocked: true, Reason: "paused"}, nil
	}

	for _, r := range recipients {
		listed, err := g.source.IsBlacklisted(ctx, r)
		if err != nil {
			return Decision{}, err
		}
		if listed {
			return Decision{Blocked: true, Reason: "blacklisted:" + r}, nil
		}
	}
	return Decision{}, nil
}

// MemorySource is an in-process compliance source for development and tests.
// Mutations are expected to arrive through an externally gated operator
// surface; this type only stores the flags.
type MemorySource struct {
	mu        sync.RWMutex
	paused    bool
	blacklist map[string]bool
}

// NewMemorySource creates an empty, unpaused source.
func NewMemorySource() *MemorySource {
	return &MemorySource{blacklist: make(map[string]bool)}
}

func (m *MemorySource) IsPaused(ctx context.Context) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.paused, nil
}

func (m *MemorySource) IsBlacklisted(ctx context.Context, address string) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.blacklist[address], nil
}

// SetPaused flips the global pause flag.
func (m *MemorySource) SetPaused(paused bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.paused = paused
}

// SetBlacklisted adds or removes an address from the blacklist.
func (m *MemorySource) SetBlacklisted(address string, listed bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if listed {
		m.blacklist[address] = true
	} else {
		delete(m.blacklist, address)
	}
}
