package likes

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/helixir/paper-timeline/internal/domain"
	"github.com/helixir/paper-timeline/internal/observability"
)

// MockStore is a testify mock of Store.
type MockStore struct {
	mock.Mock
}

func (m *MockStore) FetchAll(ctx context.Context) (map[string]int64, error) {
	args := m.Called(ctx)
	out, _ := args.Get(0).(map[string]int64)
	return out, args.Error(1)
}

func (m *MockStore) Get(ctx context.Context, key string) (int64, error) {
	args := m.Called(ctx, key)
	return args.Get(0).(int64), args.Error(1)
}

func (m *MockStore) Insert(ctx context.Context, rec Record) error {
	return m.Called(ctx, rec).Error(0)
}

func (m *MockStore) Update(ctx context.Context, key string, count int64) error {
	return m.Called(ctx, key, count).Error(0)
}

func (m *MockStore) Upsert(ctx context.Context, rec Record) error {
	return m.Called(ctx, rec).Error(0)
}

// MockIncrementStore adds Incrementer to MockStore.
type MockIncrementStore struct {
	MockStore
}

func (m *MockIncrementStore) Increment(ctx context.Context, rec Record, delta int64) (int64, error) {
	args := m.Called(ctx, rec, delta)
	return args.Get(0).(int64), args.Error(1)
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []Event
	err    error
}

func (p *recordingPublisher) Publish(ctx context.Context, ev Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, ev)
	return p.err
}

func (p *recordingPublisher) Events() []Event {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]Event(nil), p.events...)
}

var fixedNow = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

func newTestEngine(store Store, opts Options, options ...EngineOption) *Engine {
	options = append(options, WithClock(func() time.Time { return fixedNow }))
	return NewEngine(store, opts, zerolog.Nop(), options...)
}

func testPaper(id, title string) *domain.Paper {
	return &domain.Paper{ID: domain.PaperID(id), Title: title}
}

func TestEngine_FetchAllAndMerge(t *testing.T) {
	t.Run("empty remote map defaults everything to zero", func(t *testing.T) {
		store := &MockStore{}
		store.On("FetchAll", mock.Anything).Return(map[string]int64{}, nil)

		a, b := testPaper("1", "A"), testPaper("2", "B")
		a.SetLikeState(domain.LikeState{Count: 9, HasRemoteRecord: true})

		e := newTestEngine(store, Options{})
		require.NoError(t, e.FetchAll(context.Background()))
		e.Merge(domain.Corpus{a, b})

		assert.Equal(t, domain.LikeState{}, a.LikeState())
		assert.Equal(t, domain.LikeState{}, b.LikeState())
	})

	t.Run("merge applies counts and remote flags", func(t *testing.T) {
		store := &MockStore{}
		store.On("FetchAll", mock.Anything).Return(map[string]int64{"1": 4, "3": 0}, nil)

		a, b, c := testPaper("1", "A"), testPaper("2", "B"), testPaper("3", "C")
		e := newTestEngine(store, Options{})
		require.NoError(t, e.FetchAll(context.Background()))
		e.Merge(domain.Corpus{a, b, c})

		assert.Equal(t, domain.LikeState{Count: 4, HasRemoteRecord: true}, a.LikeState())
		assert.Equal(t, domain.LikeState{Count: 0, HasRemoteRecord: false}, b.LikeState())
		assert.Equal(t, domain.LikeState{Count: 0, HasRemoteRecord: true}, c.LikeState())
	})

	t.Run("merge is idempotent", func(t *testing.T) {
		store := &MockStore{}
		store.On("FetchAll", mock.Anything).Return(map[string]int64{"1": 2}, nil)

		corpus := domain.Corpus{testPaper("1", "A"), testPaper("2", "B")}
		e := newTestEngine(store, Options{})
		require.NoError(t, e.FetchAll(context.Background()))

		e.Merge(corpus)
		first := []domain.LikeState{corpus[0].LikeState(), corpus[1].LikeState()}
		e.Merge(corpus)
		second := []domain.LikeState{corpus[0].LikeState(), corpus[1].LikeState()}

		assert.Equal(t, first, second)
	})

	t.Run("title keyed schema", func(t *testing.T) {
		store := &MockStore{}
		store.On("FetchAll", mock.Anything).Return(map[string]int64{"Attention": 7}, nil)

		p := testPaper("99", "Attention")
		e := newTestEngine(store, Options{Schema: KeyByTitle})
		require.NoError(t, e.FetchAll(context.Background()))
		e.Merge(domain.Corpus{p})

		assert.Equal(t, int64(7), p.Likes())
		assert.True(t, p.HasRemoteRecord())
	})

	t.Run("fetch failure keeps previous map", func(t *testing.T) {
		metrics := observability.NewMetricsWith(prometheus.NewRegistry(), "engine_fetch")
		store := &MockStore{}
		store.On("FetchAll", mock.Anything).Return(map[string]int64{"1": 5}, nil).Once()
		store.On("FetchAll", mock.Anything).Return(nil, errors.New("network down")).Once()

		e := newTestEngine(store, Options{}, WithMetrics(metrics))
		require.NoError(t, e.FetchAll(context.Background()))

		err := e.FetchAll(context.Background())
		require.Error(t, err)
		assert.True(t, errors.Is(err, domain.ErrRemoteFetchFailed))
		assert.Equal(t, map[string]int64{"1": 5}, e.RemoteLikes())
		assert.Equal(t, float64(1), testutil.ToFloat64(metrics.LikeFetches.WithLabelValues("error")))
	})

	t.Run("fetch failure on first load leaves counts at zero", func(t *testing.T) {
		store := &MockStore{}
		store.On("FetchAll", mock.Anything).Return(nil, errors.New("network down"))

		p := testPaper("1", "A")
		e := newTestEngine(store, Options{})
		assert.Error(t, e.FetchAll(context.Background()))
		e.Merge(domain.Corpus{p})

		assert.Empty(t, e.RemoteLikes())
		assert.Equal(t, domain.LikeState{}, p.LikeState())
	})

	t.Run("fetch timeout", func(t *testing.T) {
		store := &MockStore{}
		store.On("FetchAll", mock.Anything).Run(func(args mock.Arguments) {
			<-args.Get(0).(context.Context).Done()
		}).Return(nil, context.DeadlineExceeded)

		e := newTestEngine(store, Options{FetchTimeout: 10 * time.Millisecond})
		err := e.FetchAll(context.Background())
		assert.True(t, errors.Is(err, context.DeadlineExceeded))
	})

	t.Run("negative remote counts are clamped", func(t *testing.T) {
		store := &MockStore{}
		store.On("FetchAll", mock.Anything).Return(map[string]int64{"1": -3}, nil)

		e := newTestEngine(store, Options{})
		require.NoError(t, e.FetchAll(context.Background()))
		assert.Equal(t, int64(0), e.RemoteLikes()["1"])
	})
}

func TestEngine_Like(t *testing.T) {
	t.Run("existing record issues an update", func(t *testing.T) {
		store := &MockStore{}
		store.On("Update", mock.Anything, "7", int64(4)).Return(nil)

		p := testPaper("7", "P")
		p.SetLikeState(domain.LikeState{Count: 3, HasRemoteRecord: true})

		e := newTestEngine(store, Options{})
		w := e.Like(context.Background(), p)

		assert.Equal(t, int64(4), w.State.Count)
		assert.Equal(t, int64(4), p.Likes(), "count is visible before the write completes")

		require.NoError(t, w.Wait())
		assert.Equal(t, OpUpdate, w.Operation())
		store.AssertExpectations(t)
		store.AssertNotCalled(t, "Insert", mock.Anything, mock.Anything)
		assert.Equal(t, int64(4), e.RemoteLikes()["7"])
	})

	t.Run("new record issues an insert and sets the flag", func(t *testing.T) {
		store := &MockStore{}
		store.On("Insert", mock.Anything, Record{Key: "8", Title: "Fresh", Count: 1, CreatedAt: fixedNow}).Return(nil)

		p := testPaper("8", "Fresh")
		e := newTestEngine(store, Options{})
		w := e.Like(context.Background(), p)

		assert.Equal(t, int64(1), p.Likes())
		require.NoError(t, w.Wait())
		assert.Equal(t, OpInsert, w.Operation())
		assert.True(t, p.HasRemoteRecord())
		store.AssertExpectations(t)
	})

	t.Run("optimistic update happens before the write returns", func(t *testing.T) {
		release := make(chan struct{})
		store := &MockStore{}
		store.On("Insert", mock.Anything, mock.Anything).Run(func(mock.Arguments) {
			<-release
		}).Return(nil)

		p := testPaper("1", "Slow")
		e := newTestEngine(store, Options{})
		w := e.Like(context.Background(), p)

		assert.Equal(t, int64(1), p.Likes())
		assert.False(t, p.HasRemoteRecord())
		select {
		case <-w.Done():
			t.Fatal("write finished before the store returned")
		default:
		}

		close(release)
		require.NoError(t, w.Wait())
		assert.True(t, p.HasRemoteRecord())
	})

	t.Run("insert conflict falls back to update", func(t *testing.T) {
		store := &MockStore{}
		store.On("Insert", mock.Anything, mock.Anything).Return(domain.NewAlreadyExistsError("like", "1"))
		store.On("Update", mock.Anything, "1", int64(1)).Return(nil)

		p := testPaper("1", "Raced")
		w := newTestEngine(store, Options{}).Like(context.Background(), p)

		require.NoError(t, w.Wait())
		assert.Equal(t, OpUpdate, w.Operation())
		assert.True(t, p.HasRemoteRecord())
	})

	t.Run("vanished row is recreated with upsert", func(t *testing.T) {
		store := &MockStore{}
		store.On("Update", mock.Anything, "1", int64(3)).Return(domain.NewNotFoundError("like", "1"))
		store.On("Upsert", mock.Anything, mock.MatchedBy(func(r Record) bool {
			return r.Key == "1" && r.Count == 3
		})).Return(nil)

		p := testPaper("1", "Gone")
		p.SetLikeState(domain.LikeState{Count: 2, HasRemoteRecord: true})
		w := newTestEngine(store, Options{}).Like(context.Background(), p)

		require.NoError(t, w.Wait())
		assert.Equal(t, OpUpsert, w.Operation())
	})

	t.Run("write failure is not rolled back by default", func(t *testing.T) {
		metrics := observability.NewMetricsWith(prometheus.NewRegistry(), "engine_like_fail")
		store := &MockStore{}
		store.On("Update", mock.Anything, "1", int64(6)).Return(errors.New("503"))

		p := testPaper("1", "P")
		p.SetLikeState(domain.LikeState{Count: 5, HasRemoteRecord: true})
		w := newTestEngine(store, Options{}, WithMetrics(metrics)).Like(context.Background(), p)

		err := w.Wait()
		require.Error(t, err)
		assert.True(t, errors.Is(err, domain.ErrRemoteWriteFailed))
		assert.Equal(t, int64(6), p.Likes())
		assert.Equal(t, float64(1), testutil.ToFloat64(metrics.LikeWrites.WithLabelValues("update", "error")))
		assert.Equal(t, float64(0), testutil.ToFloat64(metrics.PendingWrites))
	})

	t.Run("rollback never goes below the remote count", func(t *testing.T) {
		store := &MockStore{}
		store.On("FetchAll", mock.Anything).Return(map[string]int64{"1": 5}, nil)
		store.On("Update", mock.Anything, "1", int64(6)).Return(errors.New("503"))

		p := testPaper("1", "P")
		e := newTestEngine(store, Options{RollbackOnFailure: true})
		require.NoError(t, e.FetchAll(context.Background()))
		e.Merge(domain.Corpus{p})

		require.Error(t, e.Like(context.Background(), p).Wait())
		assert.Equal(t, int64(5), p.Likes())
	})

	t.Run("failed insert leaves flag unset", func(t *testing.T) {
		store := &MockStore{}
		store.On("Insert", mock.Anything, mock.Anything).Return(errors.New("denied"))

		p := testPaper("1", "P")
		w := newTestEngine(store, Options{}).Like(context.Background(), p)

		require.Error(t, w.Wait())
		assert.False(t, p.HasRemoteRecord())
		assert.Equal(t, int64(1), p.Likes())
	})

	t.Run("unconfigured store keeps the like locally", func(t *testing.T) {
		p := testPaper("1", "P")
		e := newTestEngine(nil, Options{})

		w := e.Like(context.Background(), p)
		err := w.Wait()

		assert.True(t, errors.Is(err, domain.ErrRemoteUnconfigured))
		assert.Equal(t, int64(1), p.Likes())
		assert.Equal(t, OpNone, w.Operation())
		assert.False(t, e.Configured())
		assert.True(t, errors.Is(e.FetchAll(context.Background()), domain.ErrRemoteUnconfigured))
	})

	t.Run("caller cancellation does not abort the write", func(t *testing.T) {
		store := &MockStore{}
		store.On("Insert", mock.Anything, mock.Anything).Run(func(args mock.Arguments) {
			assert.NoError(t, args.Get(0).(context.Context).Err())
		}).Return(nil)

		ctx, cancel := context.WithCancel(context.Background())
		w := newTestEngine(store, Options{}).Like(ctx, testPaper("1", "P"))
		cancel()

		require.NoError(t, w.Wait())
	})

	t.Run("rapid likes each issue their own write", func(t *testing.T) {
		store := &MockStore{}
		store.On("Update", mock.Anything, "1", mock.AnythingOfType("int64")).Return(nil)

		p := testPaper("1", "P")
		p.SetLikeState(domain.LikeState{Count: 0, HasRemoteRecord: true})
		e := newTestEngine(store, Options{})

		for i := 0; i < 5; i++ {
			e.Like(context.Background(), p)
		}
		e.Wait()

		assert.Equal(t, int64(5), p.Likes())
		store.AssertNumberOfCalls(t, "Update", 5)
	})
}

func TestEngine_AtomicIncrement(t *testing.T) {
	t.Run("uses server side increment", func(t *testing.T) {
		store := &MockIncrementStore{}
		store.On("Increment", mock.Anything, mock.MatchedBy(func(r Record) bool {
			return r.Key == "1" && r.Title == "P"
		}), int64(1)).Return(int64(10), nil)

		p := testPaper("1", "P")
		p.SetLikeState(domain.LikeState{Count: 3, HasRemoteRecord: true})
		w := newTestEngine(store, Options{AtomicIncrement: true}).Like(context.Background(), p)

		require.NoError(t, w.Wait())
		assert.Equal(t, OpIncrement, w.Operation())
		assert.Equal(t, int64(10), p.Likes(), "remote total lifts the local count")
		store.AssertNotCalled(t, "Update", mock.Anything, mock.Anything, mock.Anything)
	})

	t.Run("ignored when the store cannot increment", func(t *testing.T) {
		store := &MockStore{}
		store.On("Insert", mock.Anything, mock.Anything).Return(nil)

		w := newTestEngine(store, Options{AtomicIncrement: true}).Like(context.Background(), testPaper("1", "P"))
		require.NoError(t, w.Wait())
		assert.Equal(t, OpInsert, w.Operation())
	})
}

func TestEngine_Refresh(t *testing.T) {
	store := &MockStore{}
	store.On("Get", mock.Anything, "1").Return(int64(12), nil)
	store.On("Get", mock.Anything, "2").Return(int64(0), domain.NewNotFoundError("like", "2"))
	store.On("Get", mock.Anything, "3").Return(int64(0), errors.New("boom"))

	e := newTestEngine(store, Options{})

	p := testPaper("1", "A")
	n, err := e.Refresh(context.Background(), p)
	require.NoError(t, err)
	assert.Equal(t, int64(12), n)
	assert.True(t, p.HasRemoteRecord())

	q := testPaper("2", "B")
	n, err = e.Refresh(context.Background(), q)
	require.NoError(t, err)
	assert.Zero(t, n)
	assert.False(t, q.HasRemoteRecord())

	_, err = e.Refresh(context.Background(), testPaper("3", "C"))
	assert.True(t, errors.Is(err, domain.ErrRemoteFetchFailed))
}

func TestEngine_Observe(t *testing.T) {
	e := newTestEngine(&MockStore{}, Options{})
	p := testPaper("1", "A")
	p.SetLikeState(domain.LikeState{Count: 5})

	e.Observe(p, 3)
	assert.Equal(t, domain.LikeState{Count: 5, HasRemoteRecord: true}, p.LikeState(), "never lowers the shown count")
	assert.Equal(t, int64(3), e.RemoteLikes()["1"])

	e.Observe(p, 8)
	assert.Equal(t, int64(8), p.Likes())
	assert.Equal(t, int64(8), e.RemoteLikes()["1"])

	e.Observe(p, 2)
	assert.Equal(t, int64(8), e.RemoteLikes()["1"], "stale peer counts are ignored")
}

func TestEngine_Publisher(t *testing.T) {
	store := &MockStore{}
	store.On("Insert", mock.Anything, mock.Anything).Return(nil)
	pub := &recordingPublisher{}

	e := newTestEngine(store, Options{}, WithPublisher(pub))
	require.NoError(t, e.Like(context.Background(), testPaper("5", "Evented")).Wait())

	events := pub.Events()
	require.Len(t, events, 1)
	assert.Equal(t, "5", events[0].PaperID)
	assert.Equal(t, OpInsert, events[0].Operation)
	assert.Equal(t, "success", events[0].Status)
	assert.Equal(t, int64(1), events[0].Count)
	assert.NotEmpty(t, events[0].EventID)
	assert.Equal(t, fixedNow, events[0].OccurredAt)
}

func TestEngine_WaitContext(t *testing.T) {
	release := make(chan struct{})
	store := &MockStore{}
	store.On("Insert", mock.Anything, mock.Anything).Run(func(mock.Arguments) { <-release }).Return(nil)

	e := newTestEngine(store, Options{})
	e.Like(context.Background(), testPaper("1", "P"))

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, e.WaitContext(ctx), context.DeadlineExceeded)

	close(release)
	assert.NoError(t, e.WaitContext(context.Background()))
}

func TestKeySchema(t *testing.T) {
	long := strings.Repeat("論", 300)
	p := testPaper("42", long)

	assert.Equal(t, "42", KeyByID.Key(p))
	assert.Equal(t, 255, len([]rune(KeyByTitle.Key(p))))

	rec := KeyByID.NewRecord(p, 1, fixedNow)
	assert.Equal(t, "42", rec.Key)
	assert.Equal(t, 255, len([]rune(rec.Title)))

	s, err := ParseKeySchema("")
	require.NoError(t, err)
	assert.Equal(t, KeyByID, s)

	_, err = ParseKeySchema("doi")
	assert.True(t, errors.Is(err, domain.ErrInvalidInput))
}
