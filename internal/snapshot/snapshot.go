// Package snapshot holds an atomically swapped read view of all rules for
// cheap, cache-friendly reads by dashboards and CLIs. The ETag changes
// whenever the rule set changes, so clients can poll with If-None-Match.
package snapshot

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"sort"
	"sync/atomic"
	"time"
	"unsafe"

	"github.com/TimurManjosov/gotreasury/internal/rules"
)

// Snapshot is an immutable view of the rule set at one point in time.
type Snapshot struct {
	ETag      string       `json:"etag"`
	Rules     []rules.Rule `json:"rules"`
	UpdatedAt time.Time    `json:"updatedAt"`
}

var current unsafe.Pointer // *Snapshot

// Load returns the current snapshot, or an empty one before the first build.
func Load() *Snapshot {
	ptr := atomic.LoadPointer(&current)
	if ptr == nil {
		return &Snapshot{ETag: "", Rules: []rules.Rule{}, UpdatedAt: time.Now().UTC()}
	}
	return (*Snapshot)(ptr)
}

// Update swaps in a new snapshot.
func Update(s *Snapshot) { atomic.StorePointer(&current, unsafe.Pointer(s)) }

// Build creates a snapshot from a rule listing. Rules are sorted by id so
// the ETag is deterministic for a given rule set.
func Build(rs []rules.Rule) *Snapshot {
	sorted := append([]rules.Rule(nil), rs...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].ID < sorted[j].ID })

	h := sha256.New()
	if b, err := json.Marshal(sorted); err == nil {
		h.Write(b)
	}
	return &Snapshot{
		ETag:      hex.EncodeToString(h.Sum(nil))[:16],
		Rules:     sorted,
		UpdatedAt: time.Now().UTC(),
	}
}
