package timeline

import (
	"github.com/helixir/paper-timeline/internal/domain"
	"github.com/helixir/paper-timeline/internal/index"
	"github.com/helixir/paper-timeline/internal/view"
)

// SidebarEntry is one navigation item.
type SidebarEntry struct {
	Filter view.Filter `json:"-"`
	Key    string      `json:"key"`
	Label  string      `json:"label"`
	Count  int         `json:"count"`
	Active bool        `json:"active"`
}

// Sidebar lists the "all papers" entry, the date buckets newest first and
// the keyword buckets by size.
type Sidebar struct {
	All      SidebarEntry   `json:"all"`
	Dates    []SidebarEntry `json:"dates"`
	Keywords []SidebarEntry `json:"keywords"`
}

// Sidebar returns the navigation model of the loaded corpus. The entry
// matching the session filter is marked active.
func (t *Timeline) Sidebar() (Sidebar, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	if t.status != StatusReady {
		return Sidebar{}, ErrNotReady
	}
	return t.sidebarLocked(), nil
}

func (t *Timeline) sidebarLocked() Sidebar {
	return BuildSidebar(t.indexes, t.loc.AllPapers, t.filter)
}

// BuildSidebar derives the sidebar from idx. active marks the entry of the
// current filter; a search marks nothing.
func BuildSidebar(idx *index.Indexes, allLabel string, active view.Filter) Sidebar {
	sb := Sidebar{
		All: SidebarEntry{
			Label:  allLabel,
			Count:  idx.Total,
			Active: active.IsZero(),
		},
	}

	for _, b := range idx.Date.Buckets() {
		f := view.ByDate(b.Key)
		sb.Dates = append(sb.Dates, SidebarEntry{
			Filter: f,
			Key:    b.Key,
			Label:  b.Label,
			Count:  b.Count(),
			Active: active == f,
		})
	}
	for _, b := range idx.Keyword.Buckets() {
		f := view.ByKeyword(b.Key)
		sb.Keywords = append(sb.Keywords, SidebarEntry{
			Filter: f,
			Key:    b.Key,
			Label:  b.Label,
			Count:  b.Count(),
			Active: active.Kind == view.FilterKeyword && domain.NormalizeKeyword(active.Value) == b.Key,
		})
	}
	return sb
}
