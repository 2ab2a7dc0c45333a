package httpserver

import (
	"bytes"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"unicode/utf8"

	"github.com/go-chi/chi/v5"

	"github.com/helixir/paper-timeline/internal/domain"
	"github.com/helixir/paper-timeline/internal/observability"
	"github.com/helixir/paper-timeline/internal/render"
	"github.com/helixir/paper-timeline/internal/timeline"
	"github.com/helixir/paper-timeline/internal/view"
)

// maxPaperIDLength bounds path ids. Hash ids are at most 10 digits; native
// ids are free-form but short.
const maxPaperIDLength = 128

// queryFromRequest reads the view query parameters.
func queryFromRequest(r *http.Request) view.Query {
	q := r.URL.Query()
	return view.Query{
		Sort:    q.Get("sort"),
		Date:    q.Get("date"),
		Keyword: q.Get("keyword"),
		Search:  q.Get("q"),
	}
}

// listPapers handles GET /api/v1/papers.
func (s *Server) listPapers(w http.ResponseWriter, r *http.Request) {
	proj, f, err := s.timeline.Query(queryFromRequest(r))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	sb, err := s.timeline.Sidebar()
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, projectionToResponse(proj, f, sb.All.Count, s.timeline.Locale()))
}

// getPaper handles GET /api/v1/papers/{paperID}.
func (s *Server) getPaper(w http.ResponseWriter, r *http.Request) {
	id, ok := parsePaperID(w, chi.URLParam(r, "paperID"))
	if !ok {
		return
	}
	p, err := s.timeline.Paper(id)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, domainPaperToResponse(p, s.timeline.Locale()))
}

// likePaper handles POST /api/v1/papers/{paperID}/like. The incremented
// count is returned immediately; the remote write completes in the
// background, so the response is 202 Accepted.
func (s *Server) likePaper(w http.ResponseWriter, r *http.Request) {
	id, ok := parsePaperID(w, chi.URLParam(r, "paperID"))
	if !ok {
		return
	}
	pending, err := s.timeline.Like(r.Context(), id)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	logger := observability.LoggerFromContext(r.Context(), s.logger)
	logger.Debug().
		Str("paper_id", id.String()).
		Str("store_key", pending.Key).
		Int64("count", pending.State.Count).
		Msg("like accepted")

	writeJSON(w, http.StatusAccepted, likeResponse{
		PaperID: id.String(),
		Likes:   pending.State.Count,
		Status:  "pending",
	})
}

// getSidebar handles GET /api/v1/sidebar.
func (s *Server) getSidebar(w http.ResponseWriter, r *http.Request) {
	sb, err := s.timeline.Sidebar()
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, sb)
}

// reloadCorpus handles POST /api/v1/corpus/reload.
func (s *Server) reloadCorpus(w http.ResponseWriter, r *http.Request) {
	if err := s.timeline.Reload(r.Context()); err != nil {
		s.logger.Error().Err(err).Str("error_kind", domain.ErrorKind(err)).Msg("corpus reload failed")
		writeDomainError(w, err)
		return
	}
	sb, err := s.timeline.Sidebar()
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, reloadResponse{Status: "reloaded", TotalCount: sb.All.Count})
}

// indexPage handles GET /, the HTML timeline.
func (s *Server) indexPage(w http.ResponseWriter, r *http.Request) {
	loc := s.timeline.Locale()

	var page render.Page
	proj, f, err := s.timeline.Query(queryFromRequest(r))
	status := http.StatusOK
	switch {
	case errors.Is(err, timeline.ErrNotReady):
		_, loadErr := s.timeline.Status()
		if loadErr == nil {
			loadErr = err
		}
		status = http.StatusServiceUnavailable
		page = render.Page{Lang: loc.Tag.String(), AllLabel: loc.AllPapers, Error: publicMessage(loadErr)}
	case err != nil:
		status = http.StatusBadRequest
		page = render.Page{Lang: loc.Tag.String(), AllLabel: loc.AllPapers, Error: publicMessage(err)}
	default:
		sb, _ := s.timeline.Sidebar()
		markActive(&sb, f)
		page = render.NewPage(proj, sb, f, loc)
	}

	var buf bytes.Buffer
	if err := render.WritePage(&buf, page); err != nil {
		s.logger.Error().Err(err).Msg("failed to render page")
		http.Error(w, "internal server error", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	_, _ = w.Write(buf.Bytes())
}

// paperPage handles GET /papers/{paperID}, the HTML detail view.
func (s *Server) paperPage(w http.ResponseWriter, r *http.Request) {
	id, ok := parsePaperID(w, chi.URLParam(r, "paperID"))
	if !ok {
		return
	}
	p, err := s.timeline.Paper(id)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	loc := s.timeline.Locale()
	var buf bytes.Buffer
	if err := render.WriteDetail(&buf, render.DetailPage{Lang: loc.Tag.String(), Detail: render.NewDetail(p, loc)}); err != nil {
		s.logger.Error().Err(err).Msg("failed to render paper page")
		http.Error(w, "internal server error", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = w.Write(buf.Bytes())
}

// markActive marks the sidebar entry of a per-request filter. The stored
// sidebar reflects the session view, not this request.
func markActive(sb *timeline.Sidebar, f view.Filter) {
	sb.All.Active = f.IsZero()
	for i := range sb.Dates {
		sb.Dates[i].Active = sb.Dates[i].Filter == f
	}
	for i := range sb.Keywords {
		sb.Keywords[i].Active = f.Kind == view.FilterKeyword && domain.NormalizeKeyword(f.Value) == sb.Keywords[i].Key
	}
}

// writeJSON writes a JSON response with the given status code.
func writeJSON(w http.ResponseWriter, statusCode int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		// Best-effort log; headers already sent.
		_ = err
	}
}

// writeError writes a JSON error response.
func writeError(w http.ResponseWriter, statusCode int, message string) {
	writeJSON(w, statusCode, map[string]string{
		"error": message,
	})
}

// writeDomainError maps domain errors to appropriate HTTP status codes
// and writes a sanitized error response.
func writeDomainError(w http.ResponseWriter, err error) {
	if err == nil {
		return
	}

	switch {
	case errors.Is(err, timeline.ErrNotReady):
		writeError(w, http.StatusServiceUnavailable, "corpus not loaded")
	case errors.Is(err, domain.ErrManifestUnavailable), errors.Is(err, domain.ErrDocumentUnavailable):
		writeError(w, http.StatusBadGateway, publicMessage(err))
	case errors.Is(err, domain.ErrNotFound):
		writeError(w, http.StatusNotFound, "resource not found")
	case errors.Is(err, domain.ErrInvalidInput):
		var ve *domain.ValidationError
		if errors.As(err, &ve) {
			writeError(w, http.StatusBadRequest, ve.Error())
		} else {
			writeError(w, http.StatusBadRequest, "invalid input")
		}
	case errors.Is(err, domain.ErrAlreadyExists):
		writeError(w, http.StatusConflict, "resource already exists")
	case errors.Is(err, domain.ErrRateLimited):
		writeError(w, http.StatusTooManyRequests, "rate limited")
	case errors.Is(err, domain.ErrServiceUnavailable):
		writeError(w, http.StatusServiceUnavailable, "service unavailable")
	default:
		writeError(w, http.StatusInternalServerError, "internal server error")
	}
}

// publicMessage describes err without leaking internal details.
func publicMessage(err error) string {
	switch {
	case errors.Is(err, domain.ErrManifestUnavailable):
		return "paper index unavailable"
	case errors.Is(err, domain.ErrDocumentUnavailable):
		return "paper documents unavailable"
	case errors.Is(err, timeline.ErrNotReady):
		return "corpus not loaded"
	case errors.Is(err, domain.ErrInvalidInput):
		var ve *domain.ValidationError
		if errors.As(err, &ve) {
			return ve.Error()
		}
		return "invalid input"
	default:
		return "internal server error"
	}
}

// parsePaperID validates a path id, writing a 400 error response if invalid.
// The input is not echoed back.
func parsePaperID(w http.ResponseWriter, s string) (domain.PaperID, bool) {
	s = strings.TrimSpace(s)
	if s == "" || len(s) > maxPaperIDLength || !utf8.ValidString(s) {
		writeError(w, http.StatusBadRequest, "invalid paper_id")
		return "", false
	}
	return domain.PaperID(s), true
}
