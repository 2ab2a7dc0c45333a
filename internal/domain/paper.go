package domain

import (
	"sync"
	"time"
)

// Paper is one document of the corpus in canonical form. All fields except
// the like state are read-only after ingestion. The like state is guarded by
// its own mutex and is only mutated by the like reconciliation engine.
type Paper struct {
	ID              PaperID
	Title           string
	Abstract        string
	PublishedDate   *time.Time
	Authors         []string
	Keywords        []string
	URL             string
	DetailedSummary string
	QAPairs         []QAPair

	mu              sync.Mutex
	likeCount       int64
	hasRemoteRecord bool
}

// LikeState is a consistent snapshot of a paper's mutable counters.
type LikeState struct {
	Count           int64
	HasRemoteRecord bool
}

// Likes returns the displayed like count.
func (p *Paper) Likes() int64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.likeCount
}

// HasRemoteRecord reports whether a row for this paper is known to exist remotely.
func (p *Paper) HasRemoteRecord() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.hasRemoteRecord
}

// LikeState returns count and remote flag read under one lock.
func (p *Paper) LikeState() LikeState {
	p.mu.Lock()
	defer p.mu.Unlock()
	return LikeState{Count: p.likeCount, HasRemoteRecord: p.hasRemoteRecord}
}

// SetLikeState overwrites both counters. Used when merging remote counts.
func (p *Paper) SetLikeState(s LikeState) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if s.Count < 0 {
		s.Count = 0
	}
	p.likeCount = s.Count
	p.hasRemoteRecord = s.HasRemoteRecord
}

// Increment adds one to the count and returns the state the write must persist.
func (p *Paper) Increment() LikeState {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.likeCount++
	return LikeState{Count: p.likeCount, HasRemoteRecord: p.hasRemoteRecord}
}

// MarkRemoteRecord records that the remote row now exists.
func (p *Paper) MarkRemoteRecord() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.hasRemoteRecord = true
}

// RaiseTo lifts the count to at least n. Counts never move down through it.
func (p *Paper) RaiseTo(n int64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if n > p.likeCount {
		p.likeCount = n
	}
}

// Decrement removes one like, never going below floor.
func (p *Paper) Decrement(floor int64) int64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.likeCount-1 >= floor {
		p.likeCount--
	}
	return p.likeCount
}

// HasDate reports whether the paper has a parseable published date.
func (p *Paper) HasDate() bool {
	return p.PublishedDate != nil
}

// SortTime returns the published date, or the zero time when absent so
// undated papers order after any dated one, pre-1970 dates included.
func (p *Paper) SortTime() time.Time {
	if p.PublishedDate == nil {
		return time.Time{}
	}
	return *p.PublishedDate
}

// NormalizedKeywords returns the paper's distinct index keys in first-seen order.
func (p *Paper) NormalizedKeywords() []string {
	return NormalizeKeywords(p.Keywords)
}

// FirstKeyword returns the paper's first keyword, trimmed and lower-cased,
// or "" when it has none. Unlike index keys it is not length filtered.
func (p *Paper) FirstKeyword() string {
	if len(p.Keywords) == 0 {
		return ""
	}
	return NormalizeKeyword(p.Keywords[0])
}

// Corpus is the ordered collection of papers for a session.
type Corpus []*Paper

// ByID returns the paper with the given id.
func (c Corpus) ByID(id PaperID) (*Paper, bool) {
	for _, p := range c {
		if p.ID == id {
			return p, true
		}
	}
	return nil, false
}
