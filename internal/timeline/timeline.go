// Package timeline holds the session state of the paper timeline: the loaded
// corpus, its indexes, the remote like counts and the active view. State moves
// through load, index, merge and view; presentation is delegated to a
// Renderer that only ever receives plain data.
package timeline

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/helixir/paper-timeline/internal/corpus"
	"github.com/helixir/paper-timeline/internal/domain"
	"github.com/helixir/paper-timeline/internal/events"
	"github.com/helixir/paper-timeline/internal/index"
	"github.com/helixir/paper-timeline/internal/likes"
	"github.com/helixir/paper-timeline/internal/locale"
	"github.com/helixir/paper-timeline/internal/observability"
	"github.com/helixir/paper-timeline/internal/view"
)

// Status is the lifecycle stage of a Timeline.
type Status string

// Lifecycle stages.
const (
	StatusEmpty   Status = "empty"
	StatusLoading Status = "loading"
	StatusReady   Status = "ready"
	StatusFailed  Status = "failed"
)

// ErrNotReady is returned by operations that need a loaded corpus.
var ErrNotReady = errors.New("corpus not loaded")

// Renderer presents timeline state. Implementations must not retain the
// slices they receive past the call.
type Renderer interface {
	// Render shows an ordered projection. proj.Empty asks for the
	// "no matches" state instead of an empty list.
	Render(ctx context.Context, proj view.Projection) error
	// RenderSidebar shows the bucket navigation.
	RenderSidebar(ctx context.Context, sidebar Sidebar) error
	// RenderError shows a failed initialization. Nothing else is shown.
	RenderError(ctx context.Context, err error) error
}

// Options configures a Timeline.
type Options struct {
	Locale      *locale.Locale
	DefaultSort view.SortMode
	Renderer    Renderer
	Metrics     *observability.Metrics
}

// Timeline is the explicit application state. It is safe for concurrent use.
type Timeline struct {
	source   corpus.Source
	engine   *likes.Engine
	loc      *locale.Locale
	renderer Renderer
	metrics  *observability.Metrics
	logger   zerolog.Logger

	// loadMu serializes Init and Reload.
	loadMu sync.Mutex

	mu      sync.RWMutex
	status  Status
	loadErr error
	corpus  domain.Corpus
	indexes *index.Indexes
	sort    view.SortMode
	filter  view.Filter
	current []*domain.Paper
}

var _ events.Handler = (*Timeline)(nil)

// New creates an empty Timeline. Nothing is loaded until Init.
func New(source corpus.Source, engine *likes.Engine, opts Options, logger zerolog.Logger) *Timeline {
	if opts.Locale == nil {
		opts.Locale = locale.Default()
	}
	if opts.DefaultSort == "" {
		opts.DefaultSort = view.DefaultSort
	}
	return &Timeline{
		source:   source,
		engine:   engine,
		loc:      opts.Locale,
		renderer: opts.Renderer,
		metrics:  opts.Metrics,
		logger:   observability.WithComponent(logger, "timeline"),
		status:   StatusEmpty,
		sort:     opts.DefaultSort,
	}
}

// Init loads the corpus and the remote like counts concurrently, builds the
// indexes, merges the counts and renders the full corpus. A corpus failure
// is fatal and rendered as an error; a like fetch failure only leaves every
// count at zero.
func (t *Timeline) Init(ctx context.Context) error {
	t.loadMu.Lock()
	defer t.loadMu.Unlock()

	t.mu.Lock()
	t.status = StatusLoading
	t.mu.Unlock()

	var papers domain.Corpus
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		papers, err = t.source.Load(gctx)
		return err
	})
	g.Go(func() error {
		// Failures are logged by the engine and never abort the load.
		_ = t.engine.FetchAll(gctx)
		return nil
	})

	if err := g.Wait(); err != nil {
		t.mu.Lock()
		t.status = StatusFailed
		t.loadErr = err
		t.corpus, t.indexes, t.current = nil, nil, nil
		t.mu.Unlock()

		if t.renderer != nil {
			if rerr := t.renderer.RenderError(ctx, err); rerr != nil {
				t.logger.Error().Err(rerr).Msg("failed to render load error")
			}
		}
		return fmt.Errorf("initialize timeline: %w", err)
	}

	idx := index.Build(papers, t.loc)
	t.engine.Merge(papers)

	t.mu.Lock()
	t.status = StatusReady
	t.loadErr = nil
	t.corpus = papers
	t.indexes = idx
	t.filter = view.Filter{}
	t.current = papers
	proj := t.projectLocked()
	sidebar := t.sidebarLocked()
	t.mu.Unlock()

	t.logger.Info().
		Int("papers", len(papers)).
		Int("date_buckets", idx.Date.Len()).
		Int("keywords", idx.Keyword.Len()).
		Msg("timeline ready")

	if t.renderer != nil {
		if err := t.renderer.RenderSidebar(ctx, sidebar); err != nil {
			return fmt.Errorf("render sidebar: %w", err)
		}
	}
	return t.render(ctx, proj)
}

// Reload reruns the whole initialization. Indexes are rebuilt from scratch.
// On failure the previous corpus is discarded.
func (t *Timeline) Reload(ctx context.Context) error {
	t.logger.Info().Str("source", t.source.Name()).Msg("reloading corpus")
	return t.Init(ctx)
}

// Status returns the lifecycle stage and the last load error.
func (t *Timeline) Status() (Status, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.status, t.loadErr
}

// Ready reports whether a corpus is loaded.
func (t *Timeline) Ready() bool {
	s, _ := t.Status()
	return s == StatusReady
}

// Locale returns the presentation locale.
func (t *Timeline) Locale() *locale.Locale {
	return t.loc
}

// Total returns the number of loaded papers.
func (t *Timeline) Total() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.corpus)
}

// SetSort changes the sort mode and re-renders the displayed subset.
func (t *Timeline) SetSort(ctx context.Context, mode view.SortMode) error {
	t.mu.Lock()
	if t.status != StatusReady {
		t.mu.Unlock()
		return ErrNotReady
	}
	t.sort = mode
	proj := t.projectLocked()
	t.mu.Unlock()

	return t.render(ctx, proj)
}

// FilterBy narrows the display to f and renders it with the current sort.
// Search filters always scan the full corpus.
func (t *Timeline) FilterBy(ctx context.Context, f view.Filter) error {
	t.mu.Lock()
	if t.status != StatusReady {
		t.mu.Unlock()
		return ErrNotReady
	}
	t.filter = f
	t.current = f.Apply(t.corpus, t.indexes)
	proj := t.projectLocked()
	t.mu.Unlock()

	return t.render(ctx, proj)
}

// Search filters the full corpus by term.
func (t *Timeline) Search(ctx context.Context, term string) error {
	return t.FilterBy(ctx, view.BySearch(term))
}

// Reset clears any filter or search and shows every paper.
func (t *Timeline) Reset(ctx context.Context) error {
	return t.FilterBy(ctx, view.Filter{})
}

// Current returns the projection of the displayed subset.
func (t *Timeline) Current() (view.Projection, view.Filter, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	if t.status != StatusReady {
		return view.Projection{}, view.Filter{}, ErrNotReady
	}
	return t.projectLocked(), t.filter, nil
}

// Query projects the corpus for q without touching the session view. It
// serves stateless callers such as HTTP handlers.
func (t *Timeline) Query(q view.Query) (view.Projection, view.Filter, error) {
	mode, f, err := q.Parse()
	if err != nil {
		return view.Projection{}, view.Filter{}, err
	}

	t.mu.RLock()
	if t.status != StatusReady {
		t.mu.RUnlock()
		return view.Projection{}, view.Filter{}, ErrNotReady
	}
	papers := f.Apply(t.corpus, t.indexes)
	t.mu.RUnlock()

	proj := view.Project(papers, mode, t.loc)
	t.metrics.RecordProjection(string(proj.Sort), proj.Empty)
	return proj, f, nil
}

// Paper returns the paper with id.
func (t *Timeline) Paper(id domain.PaperID) (*domain.Paper, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	if t.status != StatusReady {
		return nil, ErrNotReady
	}
	p, ok := t.corpus.ByID(id)
	if !ok {
		return nil, domain.NewNotFoundError("paper", id.String())
	}
	return p, nil
}

// Like applies an optimistic like to the paper with id. The new count is
// visible on return; persistence continues in the background. A session
// sorted by likes is re-projected and rendered with the new count.
func (t *Timeline) Like(ctx context.Context, id domain.PaperID) (*likes.PendingWrite, error) {
	p, err := t.Paper(id)
	if err != nil {
		return nil, err
	}
	w := t.engine.Like(ctx, p)
	t.rerankByLikes(ctx)
	return w, nil
}

// Refresh re-reads one paper's remote count.
func (t *Timeline) Refresh(ctx context.Context, id domain.PaperID) (int64, error) {
	p, err := t.Paper(id)
	if err != nil {
		return 0, err
	}
	return t.engine.Refresh(ctx, p)
}

// ApplyLikeEvent implements events.Handler. Counts persisted by peer
// instances only ever raise the displayed count.
func (t *Timeline) ApplyLikeEvent(ctx context.Context, ev likes.Event) error {
	p, err := t.Paper(domain.PaperID(ev.PaperID))
	if err != nil {
		return err
	}
	before := p.Likes()
	t.engine.Observe(p, ev.Count)
	if p.Likes() != before {
		t.rerankByLikes(ctx)
	}
	return nil
}

// rerankByLikes renders the session view again when its order depends on
// like counts. Render failures are logged; the count change stands.
func (t *Timeline) rerankByLikes(ctx context.Context) {
	if t.renderer == nil {
		return
	}
	t.mu.Lock()
	if t.status != StatusReady || t.sort != view.SortLikes {
		t.mu.Unlock()
		return
	}
	proj := t.projectLocked()
	t.mu.Unlock()

	if err := t.render(ctx, proj); err != nil {
		t.logger.Warn().Err(err).Msg("failed to render like order")
	}
}

func (t *Timeline) projectLocked() view.Projection {
	proj := view.Project(t.current, t.sort, t.loc)
	t.metrics.RecordProjection(string(proj.Sort), proj.Empty)
	return proj
}

func (t *Timeline) render(ctx context.Context, proj view.Projection) error {
	if t.renderer == nil {
		return nil
	}
	if err := t.renderer.Render(ctx, proj); err != nil {
		return fmt.Errorf("render: %w", err)
	}
	return nil
}
