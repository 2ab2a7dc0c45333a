package likes

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/helixir/paper-timeline/internal/domain"
	"github.com/helixir/paper-timeline/internal/observability"
)

// Write operations reported in logs, metrics and events.
const (
	OpInsert    = "insert"
	OpUpdate    = "update"
	OpUpsert    = "upsert"
	OpIncrement = "increment"
	OpNone      = "none"
)

// Event describes the outcome of one persisted like.
type Event struct {
	EventID       string    `json:"event_id"`
	PaperID       string    `json:"paper_id"`
	Key           string    `json:"key"`
	Count         int64     `json:"count"`
	Operation     string    `json:"operation"`
	Status        string    `json:"status"`
	Error         string    `json:"error,omitempty"`
	OccurredAt    time.Time `json:"occurred_at"`
	CorrelationID string    `json:"correlation_id,omitempty"`
}

// Publisher receives like events. Publishing is best effort.
type Publisher interface {
	Publish(ctx context.Context, event Event) error
}

// Options tunes the engine.
type Options struct {
	Schema KeySchema
	// FetchTimeout bounds FetchAll. Zero means unbounded.
	FetchTimeout time.Duration
	// WriteTimeout bounds each background write. Zero means unbounded.
	WriteTimeout time.Duration
	// RollbackOnFailure undoes the optimistic increment after a failed write.
	RollbackOnFailure bool
	// AtomicIncrement uses Incrementer when the store implements it.
	AtomicIncrement bool
}

// Engine reconciles papers with the remote counter table.
// It is safe for concurrent use.
type Engine struct {
	store     Store
	publisher Publisher
	opts      Options
	metrics   *observability.Metrics
	logger    zerolog.Logger
	now       func() time.Time

	mu          sync.Mutex
	remoteLikes map[string]int64

	wg sync.WaitGroup
}

// EngineOption configures an Engine.
type EngineOption func(*Engine)

// WithPublisher sends an event after every persisted like.
func WithPublisher(p Publisher) EngineOption {
	return func(e *Engine) {
		e.publisher = p
	}
}

// WithMetrics records engine metrics.
func WithMetrics(m *observability.Metrics) EngineOption {
	return func(e *Engine) {
		e.metrics = m
	}
}

// WithClock overrides the clock used for row creation times.
func WithClock(now func() time.Time) EngineOption {
	return func(e *Engine) {
		e.now = now
	}
}

// NewEngine creates an Engine. A nil store is allowed: every remote
// operation then fails with domain.ErrRemoteUnconfigured while local
// state keeps working.
func NewEngine(store Store, opts Options, logger zerolog.Logger, options ...EngineOption) *Engine {
	if opts.Schema == "" {
		opts.Schema = KeyByID
	}
	e := &Engine{
		store:       store,
		opts:        opts,
		logger:      observability.WithComponent(logger, "likes"),
		now:         time.Now,
		remoteLikes: make(map[string]int64),
	}
	for _, opt := range options {
		opt(e)
	}
	return e
}

// Schema returns the key schema in use.
func (e *Engine) Schema() KeySchema {
	return e.opts.Schema
}

// Configured reports whether a store is attached.
func (e *Engine) Configured() bool {
	return e.store != nil
}

// FetchAll replaces the remote like map with the store's contents. On
// failure the previous map is kept and the error is logged and returned;
// callers are expected to carry on with degraded counts.
func (e *Engine) FetchAll(ctx context.Context) error {
	if e.store == nil {
		err := &domain.RemoteError{Op: "fetch_all", Kind: domain.ErrRemoteUnconfigured}
		e.logger.Warn().Err(err).Str("error_kind", domain.ErrorKind(err)).Msg("like store not configured")
		return err
	}

	if e.opts.FetchTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.opts.FetchTimeout)
		defer cancel()
	}

	counts, err := e.store.FetchAll(ctx)
	if err != nil {
		rerr := domain.NewRemoteFetchError("fetch_all", err)
		e.metrics.RecordLikeFetch(0, rerr)
		e.logger.Error().Err(rerr).Str("error_kind", domain.ErrorKind(rerr)).Msg("failed to fetch remote likes")
		return rerr
	}

	fresh := make(map[string]int64, len(counts))
	for k, v := range counts {
		if v < 0 {
			v = 0
		}
		fresh[k] = v
	}

	e.mu.Lock()
	e.remoteLikes = fresh
	e.mu.Unlock()

	e.metrics.RecordLikeFetch(len(fresh), nil)
	e.logger.Info().Int("records", len(fresh)).Msg("remote likes fetched")
	return nil
}

// Merge sets every paper's count and remote flag from the remote like map.
// Calling it twice with an unchanged map yields the same state.
func (e *Engine) Merge(corpus domain.Corpus) {
	e.mu.Lock()
	defer e.mu.Unlock()

	for _, p := range corpus {
		count, ok := e.remoteLikes[e.opts.Schema.Key(p)]
		p.SetLikeState(domain.LikeState{Count: count, HasRemoteRecord: ok})
	}
}

// RemoteLikes returns a copy of the remote like map.
func (e *Engine) RemoteLikes() map[string]int64 {
	e.mu.Lock()
	defer e.mu.Unlock()

	out := make(map[string]int64, len(e.remoteLikes))
	for k, v := range e.remoteLikes {
		out[k] = v
	}
	return out
}

// Refresh reads one paper's count from the store and applies it. The shown
// count is never lowered below what is already displayed.
func (e *Engine) Refresh(ctx context.Context, p *domain.Paper) (int64, error) {
	if e.store == nil {
		return p.Likes(), &domain.RemoteError{Op: "get", Kind: domain.ErrRemoteUnconfigured}
	}
	if e.opts.FetchTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.opts.FetchTimeout)
		defer cancel()
	}

	key := e.opts.Schema.Key(p)
	count, err := e.store.Get(ctx, key)
	if errors.Is(err, domain.ErrNotFound) {
		return p.Likes(), nil
	}
	if err != nil {
		return p.Likes(), domain.NewRemoteFetchError("get", err)
	}

	e.setRemote(key, count)
	p.MarkRemoteRecord()
	p.RaiseTo(count)
	return p.Likes(), nil
}

// Observe applies a count persisted by another writer, such as a peer
// instance whose like event arrived over the event bus. The shown count is
// never lowered.
func (e *Engine) Observe(p *domain.Paper, count int64) {
	key := e.opts.Schema.Key(p)
	e.mu.Lock()
	if count > e.remoteLikes[key] {
		e.remoteLikes[key] = count
	}
	e.mu.Unlock()
	p.MarkRemoteRecord()
	p.RaiseTo(count)
}

// PendingWrite tracks the background persistence of one like.
type PendingWrite struct {
	// State is the optimistic state shown to the user.
	State domain.LikeState
	Key   string

	done chan struct{}
	op   string
	err  error
}

// Done is closed when the write has finished.
func (w *PendingWrite) Done() <-chan struct{} {
	return w.done
}

// Wait blocks until the write finishes and returns its error.
func (w *PendingWrite) Wait() error {
	<-w.done
	return w.err
}

// Operation returns the store operation used. Valid after Done.
func (w *PendingWrite) Operation() string {
	<-w.done
	return w.op
}

// Like applies an optimistic increment to p and persists it in the
// background. The returned state is already visible when Like returns.
// Rapid likes are not coalesced; each issues its own write and the last
// write to land wins.
func (e *Engine) Like(ctx context.Context, p *domain.Paper) *PendingWrite {
	state := p.Increment()
	key := e.opts.Schema.Key(p)

	w := &PendingWrite{
		State: state,
		Key:   key,
		done:  make(chan struct{}),
	}

	if e.store == nil {
		w.op = OpNone
		w.err = &domain.RemoteError{Op: "like", Key: key, Kind: domain.ErrRemoteUnconfigured}
		e.logger.Warn().
			Err(w.err).
			Str("paper_id", p.ID.String()).
			Str("error_kind", domain.ErrorKind(w.err)).
			Msg("like kept locally")
		close(w.done)
		return w
	}

	e.metrics.RecordOptimisticLike()

	// The write outlives the caller's request.
	ctx = context.WithoutCancel(ctx)

	e.wg.Add(1)
	go func() {
		defer e.wg.Done()
		defer close(w.done)
		w.op, w.err = e.persist(ctx, p, key, state)
	}()
	return w
}

// Wait blocks until all background writes have finished.
func (e *Engine) Wait() {
	e.wg.Wait()
}

// WaitContext is Wait bounded by ctx.
func (e *Engine) WaitContext(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		e.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (e *Engine) persist(ctx context.Context, p *domain.Paper, key string, state domain.LikeState) (string, error) {
	if e.opts.WriteTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.opts.WriteTimeout)
		defer cancel()
	}

	logger := observability.WithPaperContext(e.logger, p.ID.String(), key)
	start := time.Now()
	op, written, err := e.write(ctx, p, key, state)
	e.metrics.RecordLikeWrite(op, time.Since(start).Seconds(), err)

	if err != nil {
		err = domain.NewRemoteWriteError(op, key, err)
		logger.Error().
			Err(err).
			Str("operation", op).
			Int64("count", state.Count).
			Str("error_kind", domain.ErrorKind(err)).
			Msg("failed to persist like")

		if e.opts.RollbackOnFailure {
			floor := e.remote(key)
			shown := p.Decrement(floor)
			e.metrics.RecordLikeRollback()
			logger.Warn().Int64("count", shown).Msg("optimistic like rolled back")
		}
	} else {
		p.MarkRemoteRecord()
		e.setRemote(key, written)
		logger.Debug().Str("operation", op).Int64("count", written).Msg("like persisted")
	}

	e.publish(context.WithoutCancel(ctx), p, key, op, written, err)
	return op, err
}

// write performs the store call and returns the count now held remotely.
func (e *Engine) write(ctx context.Context, p *domain.Paper, key string, state domain.LikeState) (string, int64, error) {
	if e.opts.AtomicIncrement {
		if inc, ok := e.store.(Incrementer); ok {
			rec := e.opts.Schema.NewRecord(p, 1, e.now())
			remote, err := inc.Increment(ctx, rec, 1)
			if err != nil {
				return OpIncrement, state.Count, err
			}
			p.RaiseTo(remote)
			return OpIncrement, remote, nil
		}
	}

	if state.HasRemoteRecord {
		err := e.store.Update(ctx, key, state.Count)
		if errors.Is(err, domain.ErrNotFound) {
			// The row vanished remotely; recreate it.
			rec := e.opts.Schema.NewRecord(p, state.Count, e.now())
			return OpUpsert, state.Count, e.store.Upsert(ctx, rec)
		}
		return OpUpdate, state.Count, err
	}

	rec := e.opts.Schema.NewRecord(p, state.Count, e.now())
	err := e.store.Insert(ctx, rec)
	if errors.Is(err, domain.ErrAlreadyExists) {
		// Another writer created the row first.
		return OpUpdate, state.Count, e.store.Update(ctx, key, state.Count)
	}
	return OpInsert, state.Count, err
}

func (e *Engine) publish(ctx context.Context, p *domain.Paper, key, op string, count int64, writeErr error) {
	if e.publisher == nil {
		return
	}
	ev := Event{
		EventID:       uuid.NewString(),
		PaperID:       p.ID.String(),
		Key:           key,
		Count:         count,
		Operation:     op,
		Status:        "success",
		OccurredAt:    e.now().UTC(),
		CorrelationID: observability.CorrelationIDFromContext(ctx),
	}
	if writeErr != nil {
		ev.Status = "error"
		ev.Error = writeErr.Error()
	}
	err := e.publisher.Publish(ctx, ev)
	e.metrics.RecordEventPublished(err)
	if err != nil {
		e.logger.Warn().Err(err).Str("event_id", ev.EventID).Msg("failed to publish like event")
	}
}

func (e *Engine) remote(key string) int64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.remoteLikes[key]
}

func (e *Engine) setRemote(key string, count int64) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.remoteLikes[key] = count
}
