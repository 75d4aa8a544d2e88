package audit

import (
	"encoding/json"
	"log"
	"sync"
)

// LogSink writes audit entries to the process log as JSON lines.
type LogSink struct{}

func (LogSink) Write(entry Entry) {
	b, err := json.Marshal(entry)
	if err != nil {
		log.Printf("[audit] marshal entry: %v", err)
		return
	}
	log.Printf("[audit] %s", b)
}

// MemorySink collects entries in memory. For tests.
type MemorySink struct {
	mu      sync.Mutex
	entries []Entry
}

func (m *MemorySink) Write(entry Entry) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries = append(m.entries, entry)
}

// Entries returns a copy of everything written so far.
func (m *MemorySink) Entries() []Entry {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Entry(nil), m.entries...)
}
