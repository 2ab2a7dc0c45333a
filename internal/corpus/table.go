package corpus

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strings"

	"github.com/helixir/paper-timeline/internal/domain"
	"github.com/helixir/paper-timeline/internal/transport"
)

// StoredDocument is one raw document held in a table, keyed by the row's
// primary key.
type StoredDocument struct {
	Key  string
	Body []byte
}

// DocumentLister lists every stored document in insertion order.
type DocumentLister interface {
	ListDocuments(ctx context.Context) ([]StoredDocument, error)
}

// TableSource loads the corpus from a database table.
type TableSource struct {
	lister DocumentLister
	table  string
}

// NewTableSource creates a TableSource. The table name is only used to
// label locations in errors.
func NewTableSource(lister DocumentLister, table string) *TableSource {
	return &TableSource{lister: lister, table: table}
}

// Name implements Source.
func (s *TableSource) Name() string {
	return "postgres"
}

// Location returns the table name.
func (s *TableSource) Location() string {
	return s.table
}

// Load implements Source.
func (s *TableSource) Load(ctx context.Context) (domain.Corpus, error) {
	docs, err := s.lister.ListDocuments(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: table %s: %w", domain.ErrManifestUnavailable, s.table, err)
	}
	return decodeAll(s.table, docs)
}

// RESTTableSource loads the corpus from a PostgREST endpoint exposing the
// papers table with a jsonb document column.
type RESTTableSource struct {
	client  *transport.HTTPClient
	baseURL string
	table   string
}

// NewRESTTableSource creates a RESTTableSource. baseURL is the REST root,
// for example https://project.supabase.co/rest/v1.
func NewRESTTableSource(client *transport.HTTPClient, baseURL, table string) *RESTTableSource {
	return &RESTTableSource{
		client:  client,
		baseURL: strings.TrimRight(baseURL, "/"),
		table:   table,
	}
}

// Name implements Source.
func (s *RESTTableSource) Name() string {
	return "postgrest"
}

// Location returns the table endpoint.
func (s *RESTTableSource) Location() string {
	return s.baseURL + "/" + s.table
}

type restDocumentRow struct {
	ID       json.RawMessage `json:"id"`
	Document json.RawMessage `json:"document"`
}

// Load implements Source.
func (s *RESTTableSource) Load(ctx context.Context) (domain.Corpus, error) {
	q := url.Values{}
	q.Set("select", "id,document")
	q.Set("order", "created_at.asc")
	endpoint := fmt.Sprintf("%s/%s?%s", s.baseURL, url.PathEscape(s.table), q.Encode())

	body, err := s.client.Get(ctx, endpoint)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", domain.ErrManifestUnavailable, endpoint, err)
	}

	var rows []restDocumentRow
	if err := json.Unmarshal(body, &rows); err != nil {
		return nil, fmt.Errorf("%w: %s: decode rows: %w", domain.ErrManifestUnavailable, endpoint, err)
	}

	docs := make([]StoredDocument, len(rows))
	for i, row := range rows {
		docs[i] = StoredDocument{
			Key:  strings.Trim(string(row.ID), `"`),
			Body: row.Document,
		}
	}
	return decodeAll(s.table, docs)
}

func decodeAll(table string, docs []StoredDocument) (domain.Corpus, error) {
	papers := make(domain.Corpus, 0, len(docs))
	for i, doc := range docs {
		location := fmt.Sprintf("%s#%d", table, i)
		if doc.Key != "" {
			location = fmt.Sprintf("%s#%s", table, doc.Key)
		}
		p, err := domain.DecodeDocument(location, doc.Body)
		if err != nil {
			return nil, err
		}
		papers = append(papers, p)
	}
	return papers, nil
}
