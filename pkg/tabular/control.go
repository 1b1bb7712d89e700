package tabular

// SortDirection orders a sorted view ascending or descending.
type SortDirection string

const (
	SortAscending  SortDirection = "asc"
	SortDescending SortDirection = "desc"
)

// Toggle flips the direction.
func (d SortDirection) Toggle() SortDirection {
	if d == SortDescending {
		return SortAscending
	}
	return SortDescending
}

// SortRule selects the active sort column and direction.
type SortRule struct {
	Field     string        `json:"field"`
	Direction SortDirection `json:"direction"`
}

// DefaultPageSize is applied when a control state is created without one.
const DefaultPageSize = 10

// ControlState is the mutable configuration driving the view pipeline for one
// session and dataset. It is owned by an engine session; the pipeline itself
// only ever reads it.
type ControlState struct {
	Search   string                `json:"search"`
	Filters  map[string]Constraint `json:"filters,omitempty"`
	Sort     *SortRule             `json:"sort,omitempty"`
	Page     int                   `json:"page"`
	PageSize int                   `json:"page_size"`
	Selected map[string]struct{}   `json:"-"`
}

// NewControlState returns a control state with defaults: no search, no
// filters, store order, page 1.
func NewControlState() ControlState {
	return ControlState{
		Filters:  make(map[string]Constraint),
		Page:     1,
		PageSize: DefaultPageSize,
		Selected: make(map[string]struct{}),
	}
}

// Clone returns a deep copy of the control state.
func (c ControlState) Clone() ControlState {
	cp := c
	if c.Filters != nil {
		cp.Filters = make(map[string]Constraint, len(c.Filters))
		for k, v := range c.Filters {
			if len(v.In) > 0 {
				v.In = append([]string(nil), v.In...)
			}
			cp.Filters[k] = v
		}
	}
	if c.Sort != nil {
		rule := *c.Sort
		cp.Sort = &rule
	}
	if c.Selected != nil {
		cp.Selected = make(map[string]struct{}, len(c.Selected))
		for k := range c.Selected {
			cp.Selected[k] = struct{}{}
		}
	}
	return cp
}

// Page is one slice of the filtered+sorted result set plus its metadata.
type Page struct {
	Records    []Record `json:"records"`
	Number     int      `json:"page"`
	Size       int      `json:"page_size"`
	TotalCount int      `json:"total_count"`
	TotalPages int      `json:"total_pages"`
}

// TotalPages computes the page count for a result size; always at least 1 so
// an empty table still reports "page 1 of 1".
func TotalPages(totalCount, pageSize int) int {
	if pageSize <= 0 {
		pageSize = DefaultPageSize
	}
	pages := (totalCount + pageSize - 1) / pageSize
	if pages < 1 {
		return 1
	}
	return pages
}

// ClampPage bounds a requested page number into [1, totalPages].
func ClampPage(page, totalPages int) int {
	if page < 1 {
		return 1
	}
	if totalPages >= 1 && page > totalPages {
		return totalPages
	}
	return page
}
