// Package crawler implements the orchestrator (spec §4.1) and the
// response-dispatch switch (spec §4.8) that together close the graph
// traversal described in spec §2.
package crawler

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/kirbs-btw/spotify-artist-harvester/internal/backoff"
	"github.com/kirbs-btw/spotify-artist-harvester/internal/batch"
	"github.com/kirbs-btw/spotify-artist-harvester/internal/cache"
	"github.com/kirbs-btw/spotify-artist-harvester/internal/metrics"
	"github.com/kirbs-btw/spotify-artist-harvester/internal/queue"
	"github.com/kirbs-btw/spotify-artist-harvester/internal/scheduler"
	"github.com/kirbs-btw/spotify-artist-harvester/internal/spotify"
	"github.com/kirbs-btw/spotify-artist-harvester/internal/writer"
)

// Prioritize/flush cadence (spec §4.3): K controls reprioritization, F
// controls staging drains. Both count written artists, not total fetches.
const (
	defaultReprioritizeEvery = 20
	defaultFlushEvery        = 50
	supervisorTick           = 100 * time.Millisecond
)

// Config bundles the orchestrator's tunables (spec §6 CLI flags plus the
// quota/worker counts they set).
type Config struct {
	MaxNumArtists int
	NumWorkers    int
	RateLimitCap  int // spec §4.5 default 5
	BackoffCap    time.Duration
}

// fetchClient is the subset of *spotify.Client the orchestrator needs. It
// exists so tests can drive the orchestrator against a scripted response
// graph (spec §8 property P7) without a live HTTP server.
type fetchClient interface {
	RefreshToken(ctx context.Context) error
	Fetch(ctx context.Context, ep spotify.Endpoint) spotify.FetchResult
}

// Orchestrator owns the worker pool, termination, and the response-dispatch
// switch (spec §4.1).
type Orchestrator struct {
	cfg Config
	log *zap.Logger

	client    fetchClient
	fabric    *queue.Fabric
	staging   *scheduler.Prioritizer
	backoff   *backoff.Controller
	coalescer *batch.Coalescer
	cacheCl   *cache.Cache
	metrics   *metrics.Store
	writer    *writer.Writer
	dispatch  *Dispatcher

	total            int64 // atomic
	completedWritten int64 // atomic; drives K/F cadence
}

// New wires every component together. Ownership of cacheCl and w (closing
// them) stays with the caller.
func New(cfg Config, log *zap.Logger, client fetchClient, cacheCl *cache.Cache, w *writer.Writer) *Orchestrator {
	fabric := queue.New()
	staging := scheduler.New()
	co := batch.New(batch.DefaultSize)
	bo := backoff.New(cfg.BackoffCap, cfg.RateLimitCap)
	ms := metrics.NewStore()

	o := &Orchestrator{
		cfg:       cfg,
		log:       log,
		client:    client,
		fabric:    fabric,
		staging:   staging,
		backoff:   bo,
		coalescer: co,
		cacheCl:   cacheCl,
		metrics:   ms,
		writer:    w,
	}
	o.dispatch = newDispatcher(fabric, staging, cacheCl, co, w, log, cfg.MaxNumArtists, &o.total)
	return o
}

// Run is the orchestrator's single operation (spec §4.1 "run(seeds)"). It
// refreshes the access token, enqueues seeds, spawns the worker pool and a
// supervisor goroutine, and returns once the termination predicate holds.
func (o *Orchestrator) Run(ctx context.Context, seeds []spotify.Endpoint) error {
	if err := o.client.RefreshToken(ctx); err != nil {
		return fmt.Errorf("initial token refresh: %w", err)
	}

	for _, s := range seeds {
		o.fabric.PushPrimary(s)
	}

	group, gctx := errgroup.WithContext(ctx)

	supervisorCtx, cancelSupervisor := context.WithCancel(gctx)
	defer cancelSupervisor()

	for i := 0; i < o.cfg.NumWorkers; i++ {
		group.Go(func() error {
			o.workerLoop(gctx)
			return nil
		})
	}

	group.Go(func() error {
		o.supervisorLoop(supervisorCtx)
		return nil
	})

	err := group.Wait()
	o.fabric.Close()
	return err
}

// workerLoop is one worker's iteration cycle (spec §4.1 "Worker loop").
func (o *Orchestrator) workerLoop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		ep, ok := o.fabric.Pop()
		if !ok {
			return
		}

		if o.quotaReached() {
			o.fabric.Done()
			continue
		}

		o.runFetchCycle(ctx, ep)
		o.fabric.Done()
	}
}

func (o *Orchestrator) quotaReached() bool {
	return int(atomic.LoadInt64(&o.total)) >= o.cfg.MaxNumArtists
}

// runFetchCycle implements spec §4.7's five numbered steps.
func (o *Orchestrator) runFetchCycle(ctx context.Context, ep spotify.Endpoint) {
	cycleID := uuid.NewString()
	log := o.log.With(zap.String("cycle_id", cycleID), zap.String("path", ep.Path))

	if o.backoff.SafetyTripped() {
		log.Warn("safety valve tripped, dropping endpoint")
		return
	}

	if wait := o.backoff.GetBackoff(); wait > 0 {
		select {
		case <-time.After(wait):
		case <-ctx.Done():
			return
		}
	}

	start := time.Now()
	result := o.client.Fetch(ctx, ep)
	callTime := time.Since(start).Seconds()

	switch result.Outcome {
	case spotify.OutcomeTransportError:
		log.Warn("transport error, reinjecting")
		o.fabric.PushSecondary(ep)

	case spotify.OutcomeRateLimited:
		hits := o.backoff.IncrRateLimitHits()
		if result.RetryAfter != nil {
			o.backoff.SetRetryAfter(time.Duration(*result.RetryAfter * float64(time.Second)))
		}
		o.backoff.IncrAttempts()
		log.Warn("rate limited, reinjecting", zap.Int("rate_limit_hits", hits))
		o.fabric.PushSecondary(ep)

	case spotify.OutcomeTokenExpired:
		log.Warn("token expired, refreshing")
		if err := o.client.RefreshToken(ctx); err != nil {
			log.Error("token refresh failed", zap.Error(err))
		}
		o.fabric.PushSecondary(ep)

	case spotify.OutcomeForbidden:
		log.Error("forbidden, dropping endpoint")

	case spotify.OutcomeSuccess:
		o.handleSuccess(ctx, log, *result.Response, callTime)
	}
}

// handleSuccess dispatches a successful response and charges its cost to
// route metrics (spec §4.7 step 5 "Otherwise"). Dispatch panics are caught so
// a single malformed payload cannot kill a worker (spec §4.1).
func (o *Orchestrator) handleSuccess(ctx context.Context, log *zap.Logger, resp spotify.Response, callTime float64) {
	added, batched := o.safeDispatch(ctx, log, resp)
	o.metrics.Record(resp.Endpoint.RouteKind, callTime, added, batched)
	o.backoff.RecordSuccess()

	if written := atomic.LoadInt64(&o.total); written > 0 {
		o.maybeAdvanceCadence(ctx, written)
	}
}

func (o *Orchestrator) safeDispatch(ctx context.Context, log *zap.Logger, resp spotify.Response) (added, batched int) {
	defer func() {
		if r := recover(); r != nil {
			log.Error("dispatch panicked, skipping item", zap.Any("recovered", r), zap.Stack("trace"))
		}
	}()

	result, err := o.dispatch.Dispatch(ctx, resp)
	if err != nil {
		log.Error("dispatch failed, skipping item", zap.Error(err))
		return 0, 0
	}
	return result.Added, result.Batched
}

// maybeAdvanceCadence checks whether the written-artist count just crossed a
// K or F boundary and triggers reprioritization / flush accordingly (spec
// §4.3 "Trigger cadence").
func (o *Orchestrator) maybeAdvanceCadence(ctx context.Context, written int64) {
	last := atomic.SwapInt64(&o.completedWritten, written)
	if last == written {
		return
	}
	// Compare bucket indices rather than `written % K == 0`: a single
	// dispatch call (e.g. a batch /artists response) can write several
	// artists before handleSuccess ever observes the count, so the exact
	// multiple can be skipped over. Comparing last/K to written/K still
	// fires the cadence the first time it's observed past a boundary.
	if last/defaultReprioritizeEvery != written/defaultReprioritizeEvery {
		o.reprioritize()
	}
	if last/defaultFlushEvery != written/defaultFlushEvery {
		o.flushStaging()
	}
}

func (o *Orchestrator) reprioritize() {
	o.staging.SetPriority(o.metrics.Scores())
}

func (o *Orchestrator) flushStaging() {
	eps := o.staging.Flush(scheduler.DefaultFlushBudget)
	o.fabric.PushSecondaryBatch(eps)
}

// supervisorLoop drives the flush cadence's liveness guarantee: even absent
// new writes, it periodically flushes staging whenever the active queues run
// dry (spec §4.1 "whenever the active queues are empty"), and it is the sole
// observer of the overall termination predicate (spec §4.1 "Termination").
func (o *Orchestrator) supervisorLoop(ctx context.Context) {
	ticker := time.NewTicker(supervisorTick)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			// A blocked Pop() only wakes on a push or Close(); without this,
			// cancelling ctx while every worker is idle in Pop() would hang
			// forever instead of propagating the cancellation outward.
			o.fabric.Close()
			return
		case <-ticker.C:
		}

		if o.quotaReached() {
			o.fabric.Close()
			return
		}

		if o.fabric.PrimaryEmpty() {
			o.flushStaging()
		}

		if o.fabric.Idle() && o.staging.Empty() {
			o.fabric.Close()
			return
		}
	}
}
