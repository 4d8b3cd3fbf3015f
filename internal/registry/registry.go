// Package registry owns the in-process set of per-agent ATOM records and
// enforces spec.md §5's concurrency contract: a single agent's state is
// exclusively locked for the duration of one update_stats call, while
// distinct agents may be updated fully in parallel.
package registry

import (
	"context"
	"fmt"
	"sync"

	"github.com/atomreputation/atom/pkg/atom"
)

// Snapshot is what a loader hands the registry when an agent's state is
// read back from persistence instead of initialized fresh.
type Snapshot struct {
	Agent atom.AgentID
	Stats atom.AtomStats
}

// Loader is the registry's dependency on durable storage: LoadSnapshot
// fetches a previously persisted record, returning found=false for an
// agent the store has never seen. SaveSnapshot persists the post-update
// state. LoadSnapshot is called on an agent's first touch while the
// registry-wide map lock is held; SaveSnapshot is called while the
// per-agent lock is held.
type Loader interface {
	LoadSnapshot(ctx context.Context, agent atom.AgentID) (atom.AtomStats, bool, error)
	SaveSnapshot(ctx context.Context, agent atom.AgentID, stats atom.AtomStats) error
}

// entry pairs one agent's live state with its own lock, generalizing
// AddressWatchlist's single shared sync.RWMutex (fine for a read-mostly
// lookup table) into per-agent exclusivity, since spec.md requires
// cross-agent calls to proceed in parallel rather than contend on one
// global lock.
type entry struct {
	mu    sync.Mutex
	stats atom.AtomStats
}

// Registry is the concurrent-safe home of every agent's live AtomStats.
type Registry struct {
	engine *atom.Engine
	store  Loader

	mu      sync.RWMutex
	entries map[atom.AgentID]*entry
}

// New returns a Registry driving the given engine, persisting through
// store. store may be nil for a pure in-memory registry (tests, or a
// deployment that has not wired internal/store yet).
func New(engine *atom.Engine, store Loader) *Registry {
	return &Registry{
		engine:  engine,
		store:   store,
		entries: make(map[atom.AgentID]*entry),
	}
}

// getOrCreate finds an agent's entry, lazily loading it from the store (or
// initializing it fresh) on first touch. Only the registry-wide map lock
// is held here; the returned entry's own lock is acquired by the caller.
func (r *Registry) getOrCreate(ctx context.Context, agent atom.AgentID) (*entry, error) {
	r.mu.RLock()
	e, ok := r.entries[agent]
	r.mu.RUnlock()
	if ok {
		return e, nil
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if e, ok := r.entries[agent]; ok {
		return e, nil
	}

	e = &entry{}
	if r.store != nil {
		stats, found, err := r.store.LoadSnapshot(ctx, agent)
		if err != nil {
			return nil, fmt.Errorf("registry: loading snapshot for agent: %w", err)
		}
		if found {
			e.stats = stats
		}
	}
	r.entries[agent] = e
	return e, nil
}

// Submit runs one feedback event through the engine for its agent,
// exclusively locked for the call's duration, and persists the result
// before returning.
func (r *Registry) Submit(ctx context.Context, event atom.FeedbackEvent) (atom.TierChange, error) {
	e, err := r.getOrCreate(ctx, event.AgentID)
	if err != nil {
		return atom.TierChange{}, err
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	change, err := r.engine.UpdateStats(&e.stats, event)
	if err != nil {
		return atom.TierChange{}, err
	}

	if r.store != nil {
		if err := r.store.SaveSnapshot(ctx, event.AgentID, e.stats); err != nil {
			return atom.TierChange{}, fmt.Errorf("registry: saving snapshot for agent: %w", err)
		}
	}

	return change, nil
}

// Get returns a read-only copy of an agent's current state, or false if
// the agent has never been initialized in this registry's lifetime (which
// does not distinguish "never fed back" from "not yet lazily loaded" —
// callers wanting that distinction should query the store directly).
func (r *Registry) Get(agent atom.AgentID) (atom.AtomStats, bool) {
	r.mu.RLock()
	e, ok := r.entries[agent]
	r.mu.RUnlock()
	if !ok {
		return atom.AtomStats{}, false
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.stats, true
}

// Len reports how many agents this registry has touched.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.entries)
}
