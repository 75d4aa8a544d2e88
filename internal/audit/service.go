// Package audit records an append-only trail of rule mutations, executions,
// and authorization failures. Entries are queued and written asynchronously
// so auditing never blocks the coordinator or the API.
package audit

import (
	"log"
	"sync"
	"time"
)

// Action constants for audit entries.
const (
	ActionRuleCreated       = "rule.created"
	ActionRuleUpdated       = "rule.updated"
	ActionExecutionRecorded = "execution.recorded"
	ActionExecutionGated    = "execution.gated"
	ActionExecutionFailed   = "execution.failed"
	ActionRuleHalted        = "rule.halted"
	ActionAuthRejected      = "auth.rejected"
)

// Entry is one audit record.
type Entry struct {
	Action  string            `json:"action"`
	RuleID  int64             `json:"ruleId,omitempty"`
	Actor   string            `json:"actor,omitempty"`
	Details map[string]string `json:"details,omitempty"`
	At      time.Time         `json:"at"`
}

// Sink receives completed audit entries.
type Sink interface {
	Write(entry Entry)
}

// Clock supplies timestamps; swapped out in tests.
type Clock interface {
	Now() time.Time
}

type realClock struct{}

func (realClock) Now() time.Time { return time.Now().UTC() }

const queueSize = 256

// Service queues entries and hands them to the sink on a worker goroutine.
type Service struct {
	sink  Sink
	clock Clock
	queue chan Entry
	done  chan struct{}

	// mu orders Record against Close: the queue is only ever closed while
	// no Record is mid-send, so a late Record drops instead of panicking.
	mu     sync.Mutex
	closed bool
}

// NewService starts an audit service writing to the given sink.
func NewService(sink Sink) *Service {
	s := &Service{
		sink:  sink,
		clock: realClock{},
		queue: make(chan Entry, queueSize),
		done:  make(chan struct{}),
	}
	go s.worker()
	return s
}

// WithClock overrides the time source. For tests.
func (s *Service) WithClock(clock Clock) *Service {
	s.clock = clock
	return s
}

// Record queues an entry. Non-blocking: if the queue is full or the service
// is already closed the entry is dropped and the drop is logged, because
// auditing must never stall payouts or panic a late caller.
func (s *Service) Record(entry Entry) {
	if entry.At.IsZero() {
		entry.At = s.clock.Now()
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		log.Printf("[audit] service closed, dropping entry: action=%s rule=%d", entry.Action, entry.RuleID)
		return
	}
	select {
	case s.queue <- entry:
	default:
		log.Printf("[audit] queue full, dropping entry: action=%s rule=%d", entry.Action, entry.RuleID)
	}
}

// Close drains pending entries and stops the worker. Safe to call twice,
// and safe against concurrent Record calls.
func (s *Service) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.mu.Unlock()

	close(s.queue)
	<-s.done
	return nil
}

func (s *Service) worker() {
	defer close(s.done)
	for entry := range s.queue {
		s.sink.Write(entry)
	}
}
