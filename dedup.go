package qsapi

import (
	"context"
	"crypto/sha256"
	"encoding/json"
	"fmt"
	"hash/fnv"
	"net/http"
	"sync"
	"time"
)

// DedupEntry is an in-flight call shared between an owner and its waiters.
type DedupEntry struct {
	envelope *Envelope
	done     chan struct{}
	mu       sync.Mutex
	waiters  int
}

// DedupTracker coalesces concurrent identical requests onto one in-flight
// call. Waiters receive the owner's envelope.
type DedupTracker struct {
	mu      sync.RWMutex
	entries map[string]*DedupEntry
}

// NewDedupTracker returns an in-memory deduplication tracker.
func NewDedupTracker() *DedupTracker {
	return &DedupTracker{
		entries: make(map[string]*DedupEntry),
	}
}

// GetOrCreateEntry returns an existing entry (owner=false) or creates a new
// one (owner=true).
func (dt *DedupTracker) GetOrCreateEntry(key string) (*DedupEntry, bool) {
	dt.mu.Lock()
	defer dt.mu.Unlock()

	if entry, exists := dt.entries[key]; exists {
		entry.mu.Lock()
		entry.waiters++
		entry.mu.Unlock()
		return entry, false
	}

	entry := &DedupEntry{
		done:    make(chan struct{}),
		waiters: 1,
	}
	dt.entries[key] = entry
	return entry, true
}

// Complete finalizes an entry and releases waiters. The entry lingers briefly
// so stragglers that raced the completion still coalesce.
func (dt *DedupTracker) Complete(key string, env *Envelope) {
	dt.mu.Lock()
	entry, exists := dt.entries[key]
	dt.mu.Unlock()

	if !exists {
		return
	}

	entry.mu.Lock()
	entry.envelope = env
	close(entry.done)
	entry.mu.Unlock()

	time.AfterFunc(100*time.Millisecond, func() {
		dt.mu.Lock()
		delete(dt.entries, key)
		dt.mu.Unlock()
	})
}

// Wait blocks until the owning call completes or the context cancels.
func (entry *DedupEntry) Wait(ctx context.Context) (*Envelope, error) {
	select {
	case <-entry.done:
		entry.mu.Lock()
		env := entry.envelope
		entry.mu.Unlock()
		return env, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// DedupKeyFunc identifies identical in-flight requests. url is the fully
// resolved request URL including query parameters.
type DedupKeyFunc func(method, url string, body any) string

// DefaultDedupKeyFunc hashes method + URL, mixing in a body digest for
// mutating verbs.
func DefaultDedupKeyFunc(method, url string, body any) string {
	h := fnv.New64a()
	h.Write([]byte(method))
	h.Write([]byte(url))

	if body != nil && (method == http.MethodPost || method == http.MethodPut || method == http.MethodPatch) {
		digest := sha256.New()
		if encoded, err := json.Marshal(body); err == nil {
			digest.Write(encoded)
		}
		h.Write(digest.Sum(nil))
	}

	return fmt.Sprintf("%x", h.Sum64())
}

// DedupCondition decides whether a request is eligible for coalescing.
type DedupCondition func(req *Request) bool

// DefaultDedupCondition coalesces safe idempotent methods only.
func DefaultDedupCondition(req *Request) bool {
	switch req.Method {
	case http.MethodGet, http.MethodHead, http.MethodOptions:
		return true
	default:
		return false
	}
}
