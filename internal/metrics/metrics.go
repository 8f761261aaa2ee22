package metrics

import (
	"encoding/json"
	"sort"
	"sync"
	"sync/atomic"
	"time"
)

// Counter names recorded by the session layer.
const (
	PreKeysGenerated    = "prekeys_generated"
	PreKeyBatches       = "prekey_batches"
	PreKeyConsumed      = "prekey_consumed"
	SignedPreKeyRotated = "signed_prekey_rotated"
	SignedPreKeyPruned  = "signed_prekey_pruned"
	DecryptFailed       = "decrypt_failed"
	DecryptDuplicate    = "decrypt_duplicate"
	KeyMismatch         = "key_mismatch"
	IdentityUploaded    = "identity_uploaded"
	SessionRebuilt      = "session_rebuilt"
	BundleRejected      = "bundle_rejected"
	SendLegFailed       = "send_leg_failed"
	ItemsSent           = "items_sent"
)

// Registry holds process-lifetime counters. The zero value is not usable;
// call New.
type Registry struct {
	mu       sync.RWMutex
	counters map[string]*atomic.Int64
	since    time.Time
	now      func() time.Time
}

// New returns an empty registry.
func New() *Registry {
	return &Registry{counters: make(map[string]*atomic.Int64), since: time.Now(), now: time.Now}
}

// Inc adds one to the named counter.
func (r *Registry) Inc(name string) { r.Add(name, 1) }

// Add adds delta to the named counter, creating it on first use.
func (r *Registry) Add(name string, delta int64) {
	r.counter(name).Add(delta)
}

// Get returns the current value of name, zero when never touched.
func (r *Registry) Get(name string) int64 {
	r.mu.RLock()
	c, ok := r.counters[name]
	r.mu.RUnlock()
	if !ok {
		return 0
	}
	return c.Load()
}

func (r *Registry) counter(name string) *atomic.Int64 {
	r.mu.RLock()
	c, ok := r.counters[name]
	r.mu.RUnlock()
	if ok {
		return c
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if c, ok = r.counters[name]; !ok {
		c = new(atomic.Int64)
		r.counters[name] = c
	}
	return c
}

// Reset zeroes every counter and restarts the reporting window.
func (r *Registry) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.counters = make(map[string]*atomic.Int64)
	r.since = r.now()
}

// Report is a point-in-time snapshot for diagnostics.
type Report struct {
	Since    time.Time        `json:"since"`
	At       time.Time        `json:"at"`
	Counters map[string]int64 `json:"counters"`
}

// Names returns the counter names in sorted order.
func (rep Report) Names() []string {
	out := make([]string, 0, len(rep.Counters))
	for k := range rep.Counters {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// JSON renders the report indented.
func (rep Report) JSON() ([]byte, error) { return json.MarshalIndent(rep, "", "  ") }

// Report snapshots all counters.
func (r *Registry) Report() Report {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := Report{Since: r.since, At: r.now(), Counters: make(map[string]int64, len(r.counters))}
	for k, c := range r.counters {
		out.Counters[k] = c.Load()
	}
	return out
}
