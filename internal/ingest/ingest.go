// Package ingest owns the bounded submission queue between the API surface
// and the registry: feedback events are accepted as fast as they arrive and
// drained on a ticker, the same shape internal/mempool/poller.go used to
// drain a live node's mempool rather than process it synchronously on the
// request path.
package ingest

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/atomreputation/atom/internal/obs"
	"github.com/atomreputation/atom/internal/registry"
	"github.com/atomreputation/atom/pkg/atom"
)

// Broadcaster is the subset of internal/api's websocket Hub the poller
// depends on, kept as an interface here so this package never imports api.
type Broadcaster interface {
	Broadcast(data []byte)
}

// Persister is the subset of internal/store this package depends on for the
// tier-change audit trail; the registry already persists AtomStats itself
// through its own Loader, so the poller only needs to additionally record
// the change event.
type Persister interface {
	SaveTierChange(ctx context.Context, correlationID uuid.UUID, change atom.TierChange) error
}

// submission is one queued unit of work: a feedback event plus the
// correlation ID handed back to the submitter so a caller can trace it
// through logs, the audit trail, and the websocket stream.
type submission struct {
	id    uuid.UUID
	event atom.FeedbackEvent
	done  chan<- result
}

type result struct {
	change atom.TierChange
	err    error
}

// streamPayload is the JSON shape broadcast over the websocket for every
// committed tier change, mirroring poller.go's StreamPayload convention of
// a small flat struct purpose-built for the dashboard.
type streamPayload struct {
	CorrelationID string `json:"correlationId"`
	AgentID       string `json:"agentId"`
	Before        string `json:"before"`
	After         string `json:"after"`
	Quality       uint16 `json:"quality"`
	Risk          uint8  `json:"risk"`
	Confidence    uint16 `json:"confidence"`
	FeedbackCount uint64 `json:"feedbackCount"`
}

// Queue is the bounded channel of pending feedback submissions. Submit never
// blocks past the queue's capacity; a full queue means the host is falling
// behind the registry and callers should see that as backpressure rather
// than an unbounded goroutine pile-up.
type Queue struct {
	pending chan submission
}

// NewQueue returns a Queue buffering up to capacity submissions.
func NewQueue(capacity int) *Queue {
	return &Queue{pending: make(chan submission, capacity)}
}

// ErrQueueFull is returned by Submit when the bounded channel has no room.
var ErrQueueFull = &queueFullError{}

type queueFullError struct{}

func (*queueFullError) Error() string { return "ingest: submission queue is full" }

// Submit enqueues event and blocks until the registry has processed it,
// returning its TierChange. The enqueue step itself never blocks: if the
// channel is full, Submit returns ErrQueueFull immediately rather than
// letting request-handling goroutines pile up waiting on a slow poller.
func (q *Queue) Submit(ctx context.Context, event atom.FeedbackEvent) (atom.TierChange, uuid.UUID, error) {
	id := uuid.New()
	done := make(chan result, 1)

	select {
	case q.pending <- submission{id: id, event: event, done: done}:
	default:
		return atom.TierChange{}, uuid.Nil, ErrQueueFull
	}

	select {
	case r := <-done:
		return r.change, id, r.err
	case <-ctx.Done():
		return atom.TierChange{}, id, ctx.Err()
	}
}

// Poller drains a Queue on a ticker, dispatching each submission to the
// registry, persisting the tier change, and broadcasting it, in that order
// — the same ticker-drain / process / persist / broadcast shape as
// poller.go's mempool loop.
type Poller struct {
	queue    *Queue
	registry *registry.Registry
	store    Persister
	hub      Broadcaster
	metrics  *obs.Metrics
	log      *zap.Logger

	tickInterval time.Duration
	maxPerTick   int
}

// NewPoller returns a Poller. store and hub may be nil for a deployment
// that has not wired persistence or streaming yet, mirroring main.go's
// nil-guarded optional-subsystem pattern.
func NewPoller(queue *Queue, reg *registry.Registry, store Persister, hub Broadcaster, metrics *obs.Metrics, log *zap.Logger) *Poller {
	return &Poller{
		queue:        queue,
		registry:     reg,
		store:        store,
		hub:          hub,
		metrics:      metrics,
		log:          log,
		tickInterval: 50 * time.Millisecond,
		maxPerTick:   200,
	}
}

// Run blocks, draining the queue until ctx is cancelled.
func (p *Poller) Run(ctx context.Context) {
	p.log.Info("ingest poller starting", zap.Duration("interval", p.tickInterval), zap.Int("max_per_tick", p.maxPerTick))

	ticker := time.NewTicker(p.tickInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			p.log.Info("ingest poller stopping")
			return
		case <-ticker.C:
			p.drain(ctx)
		}
	}
}

func (p *Poller) drain(ctx context.Context) {
	p.metrics.QueueDepth.Set(float64(len(p.queue.pending)))
	p.metrics.TrackedAgents.Set(float64(p.registry.Len()))

	processed := 0
	for processed < p.maxPerTick {
		select {
		case sub := <-p.queue.pending:
			p.process(ctx, sub)
			processed++
		default:
			return
		}
	}
}

func (p *Poller) process(ctx context.Context, sub submission) {
	start := time.Now()
	change, err := p.registry.Submit(ctx, sub.event)
	p.metrics.EngineCallLatency.Observe(time.Since(start).Seconds())

	sub.done <- result{change: change, err: err}
	if err != nil {
		p.log.Warn("feedback submission rejected", zap.String("correlation_id", sub.id.String()), zap.Error(err))
		return
	}

	if p.store != nil {
		if err := p.store.SaveTierChange(ctx, sub.id, change); err != nil {
			p.log.Error("failed to persist tier change audit row", zap.String("correlation_id", sub.id.String()), zap.Error(err))
		}
	}

	if p.hub != nil && change.Bumped() {
		payload := streamPayload{
			CorrelationID: sub.id.String(),
			AgentID:       sub.event.AgentID.String(),
			Before:        change.Before.String(),
			After:         change.After.String(),
			Quality:       change.Quality,
			Risk:          change.Risk,
			Confidence:    change.Confidence,
			FeedbackCount: change.FeedbackCount,
		}
		data, err := json.Marshal(payload)
		if err != nil {
			p.log.Error("failed to marshal tier change payload", zap.Error(err))
			return
		}
		p.hub.Broadcast(data)
	}
}
