package domain

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
)

var documentValidator = validator.New(validator.WithRequiredStructEnabled())

// RawDocument is the wire shape of a single paper document. Optional fields
// may be absent and authors may be a string or a list.
type RawDocument struct {
	ID                NativeID   `json:"id"`
	Title             string     `json:"title" validate:"required"`
	Abstract          string     `json:"abstract,omitempty"`
	PublishedDate     string     `json:"published_date,omitempty"`
	Authors           AuthorList `json:"authors,omitempty"`
	ExtractedKeywords []string   `json:"extracted_keywords,omitempty"`
	Keywords          []string   `json:"keywords,omitempty"`
	URL               string     `json:"url,omitempty"`
	DetailedSummary   string     `json:"detailed_summary,omitempty"`
	QAPairs           []QAPair   `json:"qa_pairs,omitempty"`
}

// QAPair is a question with its markdown answer.
type QAPair struct {
	Question string `json:"question"`
	Answer   string `json:"answer"`
}

// AuthorList is an ordered author sequence decoded from either a JSON string
// or a JSON array of strings. A single string is kept as one entry.
type AuthorList []string

// UnmarshalJSON accepts a string, an array of strings, or null.
func (a *AuthorList) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		*a = nil
		return nil
	}
	if data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		if strings.TrimSpace(s) == "" {
			*a = nil
			return nil
		}
		*a = AuthorList{s}
		return nil
	}
	var list []string
	if err := json.Unmarshal(data, &list); err != nil {
		return fmt.Errorf("authors: %w", err)
	}
	*a = list
	return nil
}

// DecodeDocument parses and normalizes one document. Any decode or validation
// failure is reported as a DocumentError for location.
func DecodeDocument(location string, data []byte) (*Paper, error) {
	var raw RawDocument
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, NewDocumentError(location, fmt.Errorf("decode: %w", err))
	}
	p, err := NormalizeDocument(raw)
	if err != nil {
		return nil, NewDocumentError(location, err)
	}
	return p, nil
}

// NormalizeDocument validates raw and converts it to the canonical Paper.
// Downstream code never inspects the raw shape.
func NormalizeDocument(raw RawDocument) (*Paper, error) {
	if err := documentValidator.Struct(raw); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			return nil, NewValidationError(strings.ToLower(verrs[0].Field()), verrs[0].Tag())
		}
		return nil, NewValidationError("document", err.Error())
	}

	keywords := make([]string, 0, len(raw.ExtractedKeywords)+len(raw.Keywords))
	keywords = append(keywords, raw.ExtractedKeywords...)
	keywords = append(keywords, raw.Keywords...)

	authors := make([]string, 0, len(raw.Authors))
	for _, name := range raw.Authors {
		if name = strings.TrimSpace(name); name != "" {
			authors = append(authors, name)
		}
	}

	p := &Paper{
		ID:              ResolveID(raw.ID, raw.Title),
		Title:           raw.Title,
		Abstract:        raw.Abstract,
		Authors:         authors,
		Keywords:        keywords,
		URL:             raw.URL,
		DetailedSummary: raw.DetailedSummary,
		QAPairs:         raw.QAPairs,
	}
	if t, ok := ParsePublishedDate(raw.PublishedDate); ok {
		p.PublishedDate = &t
	}
	return p, nil
}

var publishedDateLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02",
	"2006-01",
	"2006",
}

// ParsePublishedDate parses an ISO-8601 date. Values without a zone are
// read as UTC. Empty or unparseable input reports false.
func ParsePublishedDate(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, false
	}
	for _, layout := range publishedDateLayouts {
		if t, err := time.ParseInLocation(layout, s, time.UTC); err == nil {
			return t.UTC(), true
		}
	}
	return time.Time{}, false
}
