package corpus

import (
	"bytes"
	"compress/gzip"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go/aws/awserr"
	"github.com/aws/aws-sdk-go/aws/request"
	"github.com/aws/aws-sdk-go/service/s3"
	"github.com/aws/aws-sdk-go/service/s3/s3iface"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/helixir/paper-timeline/internal/domain"
	"github.com/helixir/paper-timeline/internal/observability"
	"github.com/helixir/paper-timeline/internal/transport"
)

// mapFetcher serves fixed bodies and records every location it is asked for.
type mapFetcher struct {
	mu      sync.Mutex
	bodies  map[string]string
	fail    map[string]error
	fetched []string
}

func (f *mapFetcher) Fetch(ctx context.Context, location string) ([]byte, error) {
	f.mu.Lock()
	f.fetched = append(f.fetched, location)
	f.mu.Unlock()
	if err, ok := f.fail[location]; ok {
		return nil, err
	}
	body, ok := f.bodies[location]
	if !ok {
		return nil, fmt.Errorf("%w: %s", domain.ErrNotFound, location)
	}
	return []byte(body), nil
}

func testHTTPClient() *transport.HTTPClient {
	return transport.NewHTTPClient(transport.HTTPClientConfig{
		Name:       "corpus",
		RateLimit:  1000,
		BurstSize:  100,
		MaxRetries: -1,
		RetryDelay: time.Millisecond,
	})
}

func TestManifestSource_Load(t *testing.T) {
	t.Run("keeps manifest order", func(t *testing.T) {
		fetcher := &mapFetcher{bodies: map[string]string{
			"data/papers_index.json": `["b.json", "a.json", "  "]`,
			"data/b.json":            `{"id": 2, "title": "Second"}`,
			"data/a.json":            `{"id": 1, "title": "First"}`,
		}}

		papers, err := NewManifestSource(fetcher, "data/papers_index.json").Load(context.Background())
		require.NoError(t, err)
		require.Len(t, papers, 2)
		assert.Equal(t, domain.PaperID("2"), papers[0].ID)
		assert.Equal(t, domain.PaperID("1"), papers[1].ID)
	})

	t.Run("empty manifest yields empty corpus", func(t *testing.T) {
		fetcher := &mapFetcher{bodies: map[string]string{"index.json": `[]`}}

		papers, err := NewManifestSource(fetcher, "index.json").Load(context.Background())
		require.NoError(t, err)
		assert.Empty(t, papers)
	})

	t.Run("unreachable manifest", func(t *testing.T) {
		fetcher := &mapFetcher{fail: map[string]error{"index.json": errors.New("connection refused")}}

		papers, err := NewManifestSource(fetcher, "index.json").Load(context.Background())
		assert.Nil(t, papers)
		assert.True(t, errors.Is(err, domain.ErrManifestUnavailable))
		assert.Equal(t, "manifest_unavailable", domain.ErrorKind(err))
	})

	t.Run("malformed manifest", func(t *testing.T) {
		fetcher := &mapFetcher{bodies: map[string]string{"index.json": `{"not": "a list"}`}}

		_, err := NewManifestSource(fetcher, "index.json").Load(context.Background())
		assert.True(t, errors.Is(err, domain.ErrManifestUnavailable))
	})

	t.Run("one missing document fails the whole load", func(t *testing.T) {
		fetcher := &mapFetcher{bodies: map[string]string{
			"index.json": `["a.json", "missing.json", "c.json"]`,
			"a.json":     `{"title": "A"}`,
			"c.json":     `{"title": "C"}`,
		}}

		papers, err := NewManifestSource(fetcher, "index.json").Load(context.Background())
		assert.Nil(t, papers)
		require.Error(t, err)
		assert.True(t, errors.Is(err, domain.ErrDocumentUnavailable))
		assert.False(t, errors.Is(err, domain.ErrManifestUnavailable))

		var docErr *domain.DocumentError
		require.True(t, errors.As(err, &docErr))
		assert.Equal(t, "missing.json", docErr.Location)
	})

	t.Run("undecodable document fails the whole load", func(t *testing.T) {
		fetcher := &mapFetcher{bodies: map[string]string{
			"index.json": `["a.json", "bad.json"]`,
			"a.json":     `{"title": "A"}`,
			"bad.json":   `{"title": `,
		}}

		_, err := NewManifestSource(fetcher, "index.json").Load(context.Background())
		assert.True(t, errors.Is(err, domain.ErrDocumentUnavailable))
	})

	t.Run("document without title is rejected", func(t *testing.T) {
		fetcher := &mapFetcher{bodies: map[string]string{
			"index.json": `["a.json"]`,
			"a.json":     `{"abstract": "no title"}`,
		}}

		_, err := NewManifestSource(fetcher, "index.json").Load(context.Background())
		assert.True(t, errors.Is(err, domain.ErrDocumentUnavailable))
		assert.True(t, errors.Is(err, domain.ErrInvalidInput))
	})

	t.Run("yaml manifest", func(t *testing.T) {
		fetcher := &mapFetcher{bodies: map[string]string{
			"index.yaml": "- a.json\n- b.json\n",
			"a.json":     `{"title": "A"}`,
			"b.json":     `{"title": "B"}`,
		}}

		papers, err := NewManifestSource(fetcher, "index.yaml").Load(context.Background())
		require.NoError(t, err)
		require.Len(t, papers, 2)
		assert.Equal(t, "A", papers[0].Title)
	})

	t.Run("concurrency limit still loads everything", func(t *testing.T) {
		bodies := map[string]string{}
		var names []string
		for i := 0; i < 20; i++ {
			name := fmt.Sprintf("p%02d.json", i)
			names = append(names, fmt.Sprintf("%q", name))
			bodies[name] = fmt.Sprintf(`{"id": %d, "title": "Paper %d"}`, i+1, i)
		}
		bodies["index.json"] = "[" + strings.Join(names, ",") + "]"

		papers, err := NewManifestSource(&mapFetcher{bodies: bodies}, "index.json", WithConcurrency(3)).
			Load(context.Background())
		require.NoError(t, err)
		require.Len(t, papers, 20)
		for i, p := range papers {
			assert.Equal(t, domain.PaperID(fmt.Sprint(i+1)), p.ID)
		}
	})
}

func TestManifestSource_Documents(t *testing.T) {
	t.Run("keys by resolved id and keeps raw bodies", func(t *testing.T) {
		fetcher := &mapFetcher{bodies: map[string]string{
			"index.json": `["a.json", "b.json"]`,
			"a.json":     `{"id": 7, "title": "A"}`,
			"b.json":     `{"title": "hello"}`,
		}}

		docs, err := NewManifestSource(fetcher, "index.json").Documents(context.Background())
		require.NoError(t, err)
		require.Len(t, docs, 2)
		assert.Equal(t, "7", docs[0].Key)
		assert.Equal(t, `{"id": 7, "title": "A"}`, string(docs[0].Body))
		assert.Equal(t, "99162322", docs[1].Key)
	})

	t.Run("invalid document fails the batch", func(t *testing.T) {
		fetcher := &mapFetcher{bodies: map[string]string{
			"index.json": `["a.json"]`,
			"a.json":     `{"abstract": "no title"}`,
		}}

		docs, err := NewManifestSource(fetcher, "index.json").Documents(context.Background())
		assert.Nil(t, docs)
		assert.True(t, errors.Is(err, domain.ErrDocumentUnavailable))
	})
}

func TestManifestSource_HTTP(t *testing.T) {
	var requests int32
	mux := http.NewServeMux()
	mux.HandleFunc("/site/papers_index.json", func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&requests, 1)
		w.Write([]byte(`["papers/one.json", "/elsewhere/two.json"]`))
	})
	mux.HandleFunc("/site/papers/one.json", func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&requests, 1)
		w.Write([]byte(`{"id": "arxiv-1", "title": "One", "published_date": "2024-03-01"}`))
	})
	mux.HandleFunc("/elsewhere/two.json", func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&requests, 1)
		w.Write([]byte(`{"title": "Two", "authors": "Solo Author"}`))
	})
	server := httptest.NewServer(mux)
	defer server.Close()

	fetcher := NewSchemeFetcher(NewFileFetcher(), map[string]Fetcher{
		"http": NewHTTPFetcher(testHTTPClient()),
	})
	papers, err := NewManifestSource(fetcher, server.URL+"/site/papers_index.json").Load(context.Background())
	require.NoError(t, err)
	require.Len(t, papers, 2)

	assert.Equal(t, domain.PaperID("arxiv-1"), papers[0].ID)
	require.True(t, papers[0].HasDate())
	assert.Equal(t, []string{"Solo Author"}, papers[1].Authors)
	assert.Equal(t, domain.PaperID(fmt.Sprint(domain.HashTitle("Two"))), papers[1].ID)
	assert.Equal(t, int32(3), atomic.LoadInt32(&requests))
}

func TestManifestSource_Files(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "papers"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "papers_index.json"), []byte(`["papers/x.json"]`), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "papers", "x.json"), []byte(`{"id": 7, "title": "X"}`), 0o644))

	fetcher := NewSchemeFetcher(NewFileFetcher(), nil)
	papers, err := NewManifestSource(fetcher, filepath.Join(dir, "papers_index.json")).Load(context.Background())
	require.NoError(t, err)
	require.Len(t, papers, 1)
	assert.Equal(t, domain.PaperID("7"), papers[0].ID)
}

func TestResolveLocation(t *testing.T) {
	tests := []struct {
		name string
		base string
		ref  string
		want string
	}{
		{"relative url", "https://example.org/site/index.json", "a.json", "https://example.org/site/a.json"},
		{"rooted url", "https://example.org/site/index.json", "/a.json", "https://example.org/a.json"},
		{"absolute ref", "https://example.org/index.json", "s3://bucket/a.json", "s3://bucket/a.json"},
		{"s3 base", "s3://bucket/corpus/index.json", "a.json", "s3://bucket/corpus/a.json"},
		{"relative path", "data/index.json", "papers/a.json", filepath.Join("data", "papers", "a.json")},
		{"bare manifest", "index.json", "a.json", "a.json"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ResolveLocation(tt.base, tt.ref))
		})
	}
}

func TestFileFetcher(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "a.json")
	require.NoError(t, os.WriteFile(path, []byte("{}"), 0o644))

	f := NewFileFetcher()

	data, err := f.Fetch(context.Background(), path)
	require.NoError(t, err)
	assert.Equal(t, "{}", string(data))

	data, err = f.Fetch(context.Background(), "file://"+path)
	require.NoError(t, err)
	assert.Equal(t, "{}", string(data))

	_, err = f.Fetch(context.Background(), filepath.Join(dir, "missing.json"))
	assert.True(t, errors.Is(err, domain.ErrNotFound))
}

func TestSchemeFetcher_UnsupportedScheme(t *testing.T) {
	f := NewSchemeFetcher(NewFileFetcher(), nil)

	_, err := f.Fetch(context.Background(), "ftp://example.org/a.json")
	assert.True(t, errors.Is(err, domain.ErrInvalidInput))
}

// MockS3API is a mock implementation of the S3 API interface.
type MockS3API struct {
	s3iface.S3API
	mock.Mock
}

func (m *MockS3API) GetObjectWithContext(ctx context.Context, input *s3.GetObjectInput, opts ...request.Option) (*s3.GetObjectOutput, error) {
	args := m.Called(ctx, input)
	out, _ := args.Get(0).(*s3.GetObjectOutput)
	return out, args.Error(1)
}

func TestS3Fetcher(t *testing.T) {
	t.Run("plain object", func(t *testing.T) {
		api := &MockS3API{}
		api.On("GetObjectWithContext", mock.Anything, mock.MatchedBy(func(in *s3.GetObjectInput) bool {
			return *in.Bucket == "papers" && *in.Key == "corpus/a.json"
		})).Return(&s3.GetObjectOutput{Body: io.NopCloser(strings.NewReader(`{"title":"A"}`))}, nil)

		data, err := NewS3FetcherWithClient(api).Fetch(context.Background(), "s3://papers/corpus/a.json")
		require.NoError(t, err)
		assert.Equal(t, `{"title":"A"}`, string(data))
		api.AssertExpectations(t)
	})

	t.Run("gzipped object", func(t *testing.T) {
		var buf bytes.Buffer
		gz := gzip.NewWriter(&buf)
		_, err := gz.Write([]byte(`["a.json"]`))
		require.NoError(t, err)
		require.NoError(t, gz.Close())

		api := &MockS3API{}
		api.On("GetObjectWithContext", mock.Anything, mock.Anything).
			Return(&s3.GetObjectOutput{Body: io.NopCloser(bytes.NewReader(buf.Bytes()))}, nil)

		data, err := NewS3FetcherWithClient(api).Fetch(context.Background(), "s3://papers/index.json.gz")
		require.NoError(t, err)
		assert.Equal(t, `["a.json"]`, string(data))
	})

	t.Run("missing key", func(t *testing.T) {
		api := &MockS3API{}
		api.On("GetObjectWithContext", mock.Anything, mock.Anything).
			Return(nil, awserr.New(s3.ErrCodeNoSuchKey, "not here", nil))

		_, err := NewS3FetcherWithClient(api).Fetch(context.Background(), "s3://papers/gone.json")
		assert.True(t, errors.Is(err, domain.ErrNotFound))
	})

	t.Run("invalid location", func(t *testing.T) {
		_, err := NewS3FetcherWithClient(&MockS3API{}).Fetch(context.Background(), "s3://bucket-only")
		assert.True(t, errors.Is(err, domain.ErrInvalidInput))
	})
}

type stubLister struct {
	docs []StoredDocument
	err  error
}

func (s stubLister) ListDocuments(ctx context.Context) ([]StoredDocument, error) {
	return s.docs, s.err
}

func TestTableSource(t *testing.T) {
	t.Run("decodes rows in order", func(t *testing.T) {
		src := NewTableSource(stubLister{docs: []StoredDocument{
			{Key: "1", Body: []byte(`{"id": 1, "title": "A"}`)},
			{Key: "2", Body: []byte(`{"title": "B"}`)},
		}}, "papers")

		papers, err := src.Load(context.Background())
		require.NoError(t, err)
		require.Len(t, papers, 2)
		assert.Equal(t, "postgres", src.Name())
		assert.Equal(t, "B", papers[1].Title)
	})

	t.Run("query failure", func(t *testing.T) {
		src := NewTableSource(stubLister{err: errors.New("db down")}, "papers")

		_, err := src.Load(context.Background())
		assert.True(t, errors.Is(err, domain.ErrManifestUnavailable))
	})

	t.Run("bad row names the row", func(t *testing.T) {
		src := NewTableSource(stubLister{docs: []StoredDocument{
			{Key: "9", Body: []byte(`not json`)},
		}}, "papers")

		_, err := src.Load(context.Background())
		var docErr *domain.DocumentError
		require.True(t, errors.As(err, &docErr))
		assert.Equal(t, "papers#9", docErr.Location)
	})
}

func TestRESTTableSource(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/rest/v1/papers", r.URL.Path)
		assert.Equal(t, "id,document", r.URL.Query().Get("select"))
		assert.Equal(t, "created_at.asc", r.URL.Query().Get("order"))
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`[
			{"id": 1, "document": {"id": 1, "title": "A"}},
			{"id": "two", "document": {"title": "B", "keywords": ["NLP"]}}
		]`))
	}))
	defer server.Close()

	src := NewRESTTableSource(testHTTPClient(), server.URL+"/rest/v1/", "papers")
	papers, err := src.Load(context.Background())
	require.NoError(t, err)
	require.Len(t, papers, 2)
	assert.Equal(t, domain.PaperID("1"), papers[0].ID)
	assert.Equal(t, []string{"NLP"}, papers[1].Keywords)
}

func TestRESTTableSource_Unavailable(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer server.Close()

	_, err := NewRESTTableSource(testHTTPClient(), server.URL, "papers").Load(context.Background())
	assert.True(t, errors.Is(err, domain.ErrManifestUnavailable))
}

type slowSource struct{}

func (slowSource) Name() string { return "slow" }

func (slowSource) Load(ctx context.Context) (domain.Corpus, error) {
	<-ctx.Done()
	return nil, fmt.Errorf("%w: %w", domain.ErrManifestUnavailable, ctx.Err())
}

func TestLoader(t *testing.T) {
	t.Run("records success", func(t *testing.T) {
		metrics := observability.NewMetricsWith(prometheus.NewRegistry(), "loader_ok")
		fetcher := &mapFetcher{bodies: map[string]string{"i.json": `["a.json"]`, "a.json": `{"title":"A"}`}}
		loader := NewLoader(NewManifestSource(fetcher, "i.json"), time.Second, metrics, zerolog.Nop())

		papers, err := loader.Load(context.Background())
		require.NoError(t, err)
		assert.Len(t, papers, 1)
		assert.Equal(t, "manifest", loader.Name())
		assert.Equal(t, float64(1), testutil.ToFloat64(metrics.CorpusLoads.WithLabelValues("manifest", "success")))
	})

	t.Run("timeout bounds the load", func(t *testing.T) {
		metrics := observability.NewMetricsWith(prometheus.NewRegistry(), "loader_timeout")
		loader := NewLoader(slowSource{}, 20*time.Millisecond, metrics, zerolog.Nop())

		_, err := loader.Load(context.Background())
		assert.True(t, errors.Is(err, context.DeadlineExceeded))
		assert.Equal(t, float64(1), testutil.ToFloat64(metrics.CorpusLoads.WithLabelValues("slow", "error")))
	})
}
