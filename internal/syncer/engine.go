package syncer

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync/atomic"

	"docsync/internal/domain"
	"docsync/internal/events"
	"docsync/internal/metrics"
	"docsync/internal/models"
	"docsync/internal/worker"

	"github.com/rs/zerolog"
)

// ErrInvalidConfig is returned by New when identifiers or collaborators are missing.
var ErrInvalidConfig = errors.New("invalid sync engine configuration")

// ErrInFlight is reported when the caller stopped waiting but the operation
// is still on the write chain. It finishes on its own.
var ErrInFlight = errors.New("still in flight")

const pullDecisionError = "error"

// Connectivity is the part of the connectivity monitor the engine depends on.
type Connectivity interface {
	IsOnline() bool
	OnOnline(fn func())
}

// Options identifies the synchronized document.
type Options struct {
	Location models.Location
	CacheKey string
}

type Option func(*Engine)

func WithClock(c Clock) Option {
	return func(e *Engine) {
		if c != nil {
			e.clock = c
		}
	}
}

func WithLogger(logger *zerolog.Logger) Option {
	return func(e *Engine) {
		if logger != nil {
			e.logger = logger
		}
	}
}

func WithEvents(publisher domain.EventPublisher) Option {
	return func(e *Engine) {
		e.events = publisher
	}
}

// Engine keeps one document in sync between the local cache and the remote
// store. All writes go through a single ordered chain; writes that cannot
// reach the remote store wait in the retry queue until connectivity returns.
type Engine struct {
	loc      models.Location
	cacheKey string

	remote  domain.RemoteStore
	cache   domain.LocalCache
	monitor Connectivity

	serializer *worker.Serializer
	queue      *worker.RetryQueue

	clock  Clock
	events domain.EventPublisher
	logger *zerolog.Logger

	// highest last_updated_at seen by this engine
	watermark atomic.Int64
	bg        background
}

func New(opts Options, remote domain.RemoteStore, cache domain.LocalCache, monitor Connectivity, options ...Option) (*Engine, error) {
	if err := opts.Location.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	if strings.TrimSpace(opts.CacheKey) == "" {
		return nil, fmt.Errorf("%w: cache key is required", ErrInvalidConfig)
	}
	if remote == nil || cache == nil || monitor == nil {
		return nil, fmt.Errorf("%w: remote store, cache and connectivity monitor are required", ErrInvalidConfig)
	}

	nop := zerolog.Nop()
	e := &Engine{
		loc:      opts.Location,
		cacheKey: opts.CacheKey,
		remote:   remote,
		cache:    cache,
		monitor:  monitor,
		clock:    SystemClock,
		logger:   &nop,
	}
	for _, opt := range options {
		opt(e)
	}

	l := e.logger.With().
		Str("component", "syncer").
		Str("collection", e.loc.Collection).
		Str("doc_id", e.loc.DocID).
		Logger()
	e.logger = &l
	e.serializer = worker.NewSerializer(e.logger)
	e.queue = worker.NewRetryQueue(e.logger)

	monitor.OnOnline(e.onOnline)
	return e, nil
}

// Pull reconciles the cache with the remote document.
func (e *Engine) Pull(ctx context.Context) models.Result {
	remote, err := e.remote.Get(ctx, e.loc)
	if err != nil {
		return e.pullFailed(fmt.Errorf("fetch remote document: %w", err))
	}
	local, err := e.readCache(ctx)
	if err != nil {
		return e.pullFailed(err)
	}
	e.observe(remote.Timestamp())
	e.observe(local.Timestamp())

	decision := Resolve(local, remote)
	metrics.IncPull(decision)
	e.logger.Debug().
		Str("decision", decision).
		Int64("local_ts", local.Timestamp()).
		Int64("remote_ts", remote.Timestamp()).
		Msg("pull resolved")

	switch decision {
	case models.DecisionAdoptRemote:
		adopted := func() {
			e.publish(events.EventDocumentAdopted, "", remote.Timestamp(), nil)
		}
		if err := e.adopt(ctx, remote, adopted); err != nil {
			e.logger.Error().Err(err).Msg("failed to adopt remote document")
			return models.Failure(err)
		}
		adopted()
		return models.OK()
	case models.DecisionPropagateLocal:
		// Local already carries its timestamp; keep it.
		res := e.write(ctx, local)
		if res.Success {
			e.publish(events.EventDocumentPropagated, "", local.Timestamp(), nil)
		}
		return res
	default:
		return models.OK()
	}
}

// Push stamps data with a fresh timestamp and merge-writes it.
func (e *Engine) Push(ctx context.Context, data models.SyncDocument) models.Result {
	doc := data.WithTimestamp(e.nextTimestamp())
	return e.write(ctx, doc)
}

// Clear removes the cached document. The remote store and the retry queue
// are left alone.
func (e *Engine) Clear(ctx context.Context) models.Result {
	task := worker.NewWriteTask(0, func(ctx context.Context) error {
		if err := e.cache.Remove(ctx, e.cacheKey); err != nil {
			return fmt.Errorf("remove cached document: %w", err)
		}
		return nil
	})
	cleared := func() {
		e.logger.Info().Msg("cache cleared")
		e.publish(events.EventCacheCleared, task.ID, 0, nil)
	}
	if err := e.runCacheJob(ctx, "clear", task, cleared); err != nil {
		return models.Failure(err)
	}
	cleared()
	return models.OK()
}

// Get returns the cached document, or nil if there is none.
func (e *Engine) Get(ctx context.Context) (models.SyncDocument, models.Result) {
	doc, err := e.readCache(ctx)
	if err != nil {
		return nil, models.Failure(err)
	}
	return doc, models.OK()
}

// Retry drains the retry queue now. A drain that is already running counts
// as success.
func (e *Engine) Retry(ctx context.Context) models.Result {
	applied, err := e.queue.Drain(ctx, e.serializer)
	if errors.Is(err, worker.ErrDrainInProgress) {
		return models.OK()
	}
	if err != nil {
		return models.Failure(fmt.Errorf("retry queue stopped after %d writes: %w", applied, err))
	}
	return models.OK()
}

func (e *Engine) Status() models.SyncStatus {
	return models.SyncStatus{
		Location:      e.loc,
		CacheKey:      e.cacheKey,
		Online:        e.monitor.IsOnline(),
		QueueLength:   e.queue.Len(),
		QueuedTaskIDs: e.queue.IDs(),
		HighWatermark: e.watermark.Load(),
	}
}

// Flush waits for background drains, abandoned writes and every submitted
// write to finish.
func (e *Engine) Flush(ctx context.Context) error {
	if err := e.bg.Wait(ctx); err != nil {
		return err
	}
	return e.serializer.Flush(ctx)
}

func (e *Engine) onOnline() {
	e.bg.Go(func() {
		applied, err := e.queue.Drain(context.Background(), e.serializer)
		switch {
		case errors.Is(err, worker.ErrDrainInProgress):
		case err != nil:
			e.logger.Warn().Err(err).Int("applied", applied).Msg("retry after reconnect halted")
		case applied > 0:
			e.logger.Info().Int("applied", applied).Msg("queued writes replayed after reconnect")
		}
	})
}

// write is the single path for document writes. Online, the task runs
// through the chain and lands in the retry queue if it fails; the cache is
// untouched in that case. Offline, the task is queued without running and
// the cache is updated right away.
func (e *Engine) write(ctx context.Context, doc models.SyncDocument) models.Result {
	raw, err := doc.Encode()
	if err != nil {
		metrics.IncPush(models.OutcomeFailed)
		return models.Failure(err)
	}
	ts := doc.Timestamp()
	e.observe(ts)
	task := worker.NewWriteTask(ts, e.writeFunc(doc.Clone(), raw))

	if !e.monitor.IsOnline() {
		e.queue.Push(task)
		metrics.IncPush(models.OutcomeQueued)
		e.logger.Info().Str("task_id", task.ID).Int("queue_length", e.queue.Len()).Msg("offline, write queued")
		e.publish(events.EventWriteQueued, task.ID, ts, nil)

		if err := e.cache.Set(ctx, e.cacheKey, raw); err != nil {
			e.logger.Error().Err(err).Str("task_id", task.ID).Msg("optimistic cache write failed")
			return models.Failure(fmt.Errorf("write queued but cache update failed: %w", err))
		}
		return models.OK()
	}

	h := e.serializer.Submit(task)
	waitErr := h.Wait(ctx)
	select {
	case <-h.Done():
	default:
		// The chain owns the task until it finishes; settle it then.
		e.bg.Go(func() {
			<-h.Done()
			_ = e.settle(h)
		})
		return models.Failure(fmt.Errorf("write %s %w: %v", task.ID, ErrInFlight, waitErr))
	}
	if err := e.settle(h); err != nil {
		return models.Failure(err)
	}
	return models.OK()
}

// settle records the outcome of a finished online write. A failed task moves
// to the retry queue.
func (e *Engine) settle(h *worker.Handle) error {
	task := h.Task()
	if err := h.Err(); err != nil {
		e.queue.Push(task)
		metrics.IncPush(models.OutcomeFailed)
		e.logger.Warn().Err(err).Str("task_id", task.ID).Msg("write failed, queued for retry")
		e.publish(events.EventWriteFailed, task.ID, task.LastUpdatedAt, err)
		return err
	}
	metrics.IncPush(models.OutcomeCommitted)
	e.publish(events.EventWriteCommitted, task.ID, task.LastUpdatedAt, nil)
	return nil
}

// writeFunc merge-writes doc remotely and then stores raw, the same document,
// in the cache. Safe to run more than once.
func (e *Engine) writeFunc(doc models.SyncDocument, raw []byte) worker.TaskFunc {
	return func(ctx context.Context) error {
		if err := e.remote.MergeSet(ctx, e.loc, doc); err != nil {
			return fmt.Errorf("remote merge-write: %w", err)
		}
		return e.storeIfNotOlder(ctx, doc.Timestamp(), raw)
	}
}

// storeIfNotOlder caches raw unless the cache already holds a strictly newer
// document, so the cached timestamp never moves backwards.
func (e *Engine) storeIfNotOlder(ctx context.Context, ts int64, raw []byte) error {
	current, err := e.readCache(ctx)
	if err != nil {
		return err
	}
	if current != nil && current.Timestamp() > ts {
		e.logger.Debug().
			Int64("cached_ts", current.Timestamp()).
			Int64("write_ts", ts).
			Msg("cache holds a newer document, keeping it")
		return nil
	}
	if err := e.cache.Set(ctx, e.cacheKey, raw); err != nil {
		return fmt.Errorf("cache write: %w", err)
	}
	return nil
}

func (e *Engine) adopt(ctx context.Context, remote models.SyncDocument, onSuccess func()) error {
	raw, err := remote.Encode()
	if err != nil {
		return err
	}
	ts := remote.Timestamp()
	task := worker.NewWriteTask(ts, func(ctx context.Context) error {
		return e.storeIfNotOlder(ctx, ts, raw)
	})
	return e.runCacheJob(ctx, "adopt", task, onSuccess)
}

// runCacheJob runs a cache-only task on the chain so it stays ordered with
// document writes. Cache jobs are never queued for retry. If ctx ends first
// the job is left to finish in the background and onSuccess, when set, runs
// once it succeeds.
func (e *Engine) runCacheJob(ctx context.Context, name string, task *worker.WriteTask, onSuccess func()) error {
	h := e.serializer.Submit(task)
	waitErr := h.Wait(ctx)
	select {
	case <-h.Done():
		return h.Err()
	default:
	}

	e.bg.Go(func() {
		<-h.Done()
		if err := h.Err(); err != nil {
			e.logger.Error().Err(err).Str("task_id", task.ID).Str("job", name).Msg("cache job failed")
			return
		}
		if onSuccess != nil {
			onSuccess()
		}
	})
	return fmt.Errorf("%s %s %w: %v", name, task.ID, ErrInFlight, waitErr)
}

// readCache returns the cached document. Malformed bytes count as absent.
func (e *Engine) readCache(ctx context.Context) (models.SyncDocument, error) {
	raw, err := e.cache.Get(ctx, e.cacheKey)
	if err != nil {
		return nil, fmt.Errorf("read cached document: %w", err)
	}
	if raw == nil {
		return nil, nil
	}
	doc, err := models.DecodeDocument(raw)
	if err != nil {
		e.logger.Warn().Err(err).Str("cache_key", e.cacheKey).Msg("ignoring malformed cached document")
		return nil, nil
	}
	return doc, nil
}

// nextTimestamp returns max(clock, watermark) and records it.
func (e *Engine) nextTimestamp() int64 {
	now := e.clock.Now()
	for {
		hw := e.watermark.Load()
		ts := now
		if hw > ts {
			ts = hw
		}
		if e.watermark.CompareAndSwap(hw, ts) {
			return ts
		}
	}
}

func (e *Engine) observe(ts int64) {
	for {
		hw := e.watermark.Load()
		if ts <= hw || e.watermark.CompareAndSwap(hw, ts) {
			return
		}
	}
}

func (e *Engine) pullFailed(err error) models.Result {
	metrics.IncPull(pullDecisionError)
	e.logger.Error().Err(err).Msg("pull failed")
	return models.Failure(err)
}

func (e *Engine) publish(eventType, taskID string, ts int64, err error) {
	if e.events == nil {
		return
	}
	payload := events.SyncEventPayload{
		Collection:    e.loc.Collection,
		DocID:         e.loc.DocID,
		TaskID:        taskID,
		LastUpdatedAt: ts,
		QueueLength:   e.queue.Len(),
	}
	if err != nil {
		payload.Error = err.Error()
	}
	if pubErr := e.events.PublishJSON(eventType, payload); pubErr != nil {
		e.logger.Error().Err(pubErr).Str("event", eventType).Msg("failed to publish event")
	}
}

var _ domain.SyncService = (*Engine)(nil)
