package engine

import (
	"strings"
	"sync"
	"time"

	"gridcore/pkg/tabular"
)

// View is the derived output of one pipeline recomputation. It is recomputed
// synchronously on every control-state mutation and never cached beyond the
// current call.
type View struct {
	// Filtered is the full filtered+sorted result set (not paginated); it is
	// the exact input to CSV export.
	Filtered []tabular.Record
	// Page is the slice shown by the UI plus pagination metadata.
	Page tabular.Page
	// SelectedOnPage lists the selected record IDs visible on the current page.
	SelectedOnPage []string
}

// Session owns the control state for one user viewing one dataset. All
// mutators recompute the pipeline before returning, so the returned View is
// always consistent with the state change. A single coarse mutex guards the
// whole session; recomputation is cheap at dashboard data sizes.
type Session struct {
	id      string
	dataset *Dataset

	mu    sync.Mutex
	state tabular.ControlState

	logger  Logger
	metrics MetricsRecorder
}

// NewSession creates a session with default control state.
func NewSession(id string, dataset *Dataset, logger Logger, metrics MetricsRecorder) *Session {
	if logger == nil {
		logger = NopLogger()
	}
	if metrics == nil {
		metrics = NopMetrics()
	}
	return &Session{
		id:      id,
		dataset: dataset,
		state:   tabular.NewControlState(),
		logger:  logger,
		metrics: metrics,
	}
}

// ID returns the session identifier.
func (s *Session) ID() string { return s.id }

// Dataset returns the dataset this session views.
func (s *Session) Dataset() *Dataset { return s.dataset }

// State returns a copy of the current control state.
func (s *Session) State() tabular.ControlState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state.Clone()
}

// View recomputes and returns the derived views for the current state.
func (s *Session) View() View {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.recompute()
}

// SetSearch replaces the search text. The text is trimmed before comparison,
// so whitespace-only input behaves as an empty search. Changing the effective
// text resets pagination to the first page.
func (s *Session) SetSearch(text string) View {
	s.mu.Lock()
	defer s.mu.Unlock()
	trimmed := strings.TrimSpace(text)
	if trimmed != s.state.Search {
		s.state.Search = trimmed
		s.state.Page = 1
	}
	return s.recompute()
}

// SetFilter installs or replaces the constraint for a field and resets
// pagination. A zero constraint clears the field's filter. Referencing a field
// outside the schema returns ErrUnknownField and leaves the state untouched.
func (s *Session) SetFilter(field string, constraint tabular.Constraint) (View, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.dataset.Schema().Field(field); !ok {
		return s.recompute(), tabular.ErrUnknownField
	}
	if constraint.IsZero() {
		delete(s.state.Filters, field)
	} else {
		s.state.Filters[field] = constraint.Normalize()
	}
	s.state.Page = 1
	return s.recompute(), nil
}

// ClearFilters removes all attribute filters and resets pagination.
func (s *Session) ClearFilters() View {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state.Filters = make(map[string]tabular.Constraint)
	s.state.Page = 1
	return s.recompute()
}

// ToggleSort applies the column-header click semantics: clicking the active
// column flips direction; clicking another column makes it active ascending
// and resets pagination to the first page. An unknown field is ignored.
func (s *Session) ToggleSort(field string) View {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.dataset.Schema().Field(field); !ok {
		return s.recompute()
	}
	if s.state.Sort != nil && s.state.Sort.Field == field {
		s.state.Sort.Direction = s.state.Sort.Direction.Toggle()
	} else {
		s.state.Sort = &tabular.SortRule{Field: field, Direction: tabular.SortAscending}
		s.state.Page = 1
	}
	return s.recompute()
}

// SetSort installs an explicit sort rule, replacing any active one. Moving the
// sort to a different column resets pagination, mirroring ToggleSort. An
// unknown field returns ErrUnknownField.
func (s *Session) SetSort(field string, direction tabular.SortDirection) (View, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.dataset.Schema().Field(field); !ok {
		return s.recompute(), tabular.ErrUnknownField
	}
	if direction != tabular.SortDescending {
		direction = tabular.SortAscending
	}
	if s.state.Sort == nil || s.state.Sort.Field != field {
		s.state.Page = 1
	}
	s.state.Sort = &tabular.SortRule{Field: field, Direction: direction}
	return s.recompute(), nil
}

// ClearSort returns the view to store order.
func (s *Session) ClearSort() View {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state.Sort = nil
	return s.recompute()
}

// GotoPage jumps to the requested page, clamped into the valid range.
func (s *Session) GotoPage(page int) View {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state.Page = page
	return s.recompute()
}

// NextPage advances one page; a no-op at the last page.
func (s *Session) NextPage() View {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state.Page++
	return s.recompute()
}

// PrevPage steps back one page; a no-op at page 1.
func (s *Session) PrevPage() View {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state.Page--
	return s.recompute()
}

// FirstPage jumps to page 1.
func (s *Session) FirstPage() View {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state.Page = 1
	return s.recompute()
}

// LastPage jumps to the final page of the current result set.
func (s *Session) LastPage() View {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state.Page = int(^uint(0) >> 1)
	return s.recompute()
}

// SetPageSize changes the page size and re-clamps the current page.
func (s *Session) SetPageSize(size int) View {
	s.mu.Lock()
	defer s.mu.Unlock()
	if size > 0 {
		s.state.PageSize = size
	}
	return s.recompute()
}

// ToggleSelect flips the selection mark for a record ID. Toggling an ID the
// dataset does not contain is a no-op; the operation is idempotent per ID.
func (s *Session) ToggleSelect(id string) View {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.dataset.Contains(id) {
		return s.recompute()
	}
	if _, selected := s.state.Selected[id]; selected {
		delete(s.state.Selected, id)
	} else {
		s.state.Selected[id] = struct{}{}
	}
	return s.recompute()
}

// ClearSelection removes all selection marks.
func (s *Session) ClearSelection() View {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state.Selected = make(map[string]struct{})
	return s.recompute()
}

// recompute runs the full pipeline against a fresh dataset snapshot and
// clamps the stored page into the new valid range. Callers must hold s.mu.
func (s *Session) recompute() View {
	started := time.Now()
	schema := s.dataset.Schema()
	records := s.dataset.Records()

	filtered := Search(schema, records, s.state.Search)
	filtered = Filter(schema, filtered, s.state.Filters)
	filtered = Sort(schema, filtered, s.state.Sort)
	page := Paginate(filtered, s.state.Page, s.state.PageSize)
	// Persist the clamp so later relative navigation starts from a valid page.
	s.state.Page = page.Number

	var selected []string
	for _, rec := range page.Records {
		if _, ok := s.state.Selected[rec.ID]; ok {
			selected = append(selected, rec.ID)
		}
	}

	s.metrics.ObserveRecompute(s.dataset.Slug(), time.Since(started))
	return View{Filtered: filtered, Page: page, SelectedOnPage: selected}
}
