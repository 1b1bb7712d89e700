// Package engine implements the gridcore view pipeline: free-text search,
// attribute filters, stable sort, and pagination over in-memory record sets,
// plus the session objects that own the control state driving it.
//
// The pipeline stages are pure functions applied in a fixed order
// (search -> filter -> sort -> paginate); every control-state mutation
// recomputes the full pipeline from the dataset snapshot. Dataset sizes are
// small, so recompute-on-demand beats incremental bookkeeping.
package engine

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"gridcore/pkg/tabular"
)

// Search keeps records whose lowercased string form of at least one searchable
// field contains the trimmed, lowercased query. An empty or whitespace-only
// query returns the input unchanged. When the schema designates no searchable
// fields, every field is searched.
func Search(schema tabular.Schema, records []tabular.Record, query string) []tabular.Record {
	needle := strings.ToLower(strings.TrimSpace(query))
	if needle == "" {
		return records
	}
	fields := schema.SearchFields()
	if len(fields) == 0 {
		fields = make([]string, len(schema))
		for i, f := range schema {
			fields[i] = f.Name
		}
	}
	out := make([]tabular.Record, 0, len(records))
	for _, rec := range records {
		for _, name := range fields {
			if strings.Contains(strings.ToLower(FormatCell(rec.Values[name])), needle) {
				out = append(out, rec)
				break
			}
		}
	}
	return out
}

// Filter keeps records satisfying the logical AND of all active constraints.
// Set membership is an OR within the set; numeric ranges are normalized so an
// inverted min/max still applies. A constraint on a field the schema does not
// define restricts nothing. A range constraint excludes records whose cell
// does not coerce to a number.
func Filter(schema tabular.Schema, records []tabular.Record, filters map[string]tabular.Constraint) []tabular.Record {
	if len(filters) == 0 {
		return records
	}
	out := make([]tabular.Record, 0, len(records))
	for _, rec := range records {
		if recordMatches(schema, rec, filters) {
			out = append(out, rec)
		}
	}
	return out
}

func recordMatches(schema tabular.Schema, rec tabular.Record, filters map[string]tabular.Constraint) bool {
	for name, constraint := range filters {
		if constraint.IsZero() {
			continue
		}
		if _, ok := schema.Field(name); !ok {
			continue
		}
		cell := rec.Values[name]
		if len(constraint.In) > 0 && !constraint.MatchesSet(FormatCell(cell)) {
			return false
		}
		if constraint.Min != nil || constraint.Max != nil {
			v, ok := coerceNumber(cell)
			if !ok {
				return false
			}
			if !constraint.MatchesRange(v) {
				return false
			}
		}
	}
	return true
}

// Sort returns a new, stably ordered copy of records. A nil rule or a rule
// naming a field outside the schema passes records through in store order.
// Key extraction follows the field type: numbers compare numerically, strings
// and categories case-insensitively, booleans false before true, and dates by
// parsed instant. A record whose key fails to coerce sorts as the minimum
// value when ascending and the maximum when descending, so malformed data
// surfaces at a deterministic extreme instead of disappearing.
func Sort(schema tabular.Schema, records []tabular.Record, rule *tabular.SortRule) []tabular.Record {
	if rule == nil || rule.Field == "" {
		return records
	}
	field, ok := schema.Field(rule.Field)
	if !ok {
		return records
	}
	descending := rule.Direction == tabular.SortDescending

	keys := make([]sortKey, len(records))
	for i, rec := range records {
		keys[i] = extractKey(field, rec)
	}
	// Sort indices so keys stay in lockstep with records and are extracted
	// exactly once per record.
	indices := make([]int, len(records))
	for i := range indices {
		indices[i] = i
	}
	sort.SliceStable(indices, func(i, j int) bool {
		a, b := keys[indices[i]], keys[indices[j]]
		// An invalid key takes the extreme slot for the active direction,
		// which places it first either way.
		if !a.valid || !b.valid {
			return !a.valid && b.valid
		}
		cmp := a.compare(b)
		if cmp == 0 {
			return false
		}
		if descending {
			return cmp > 0
		}
		return cmp < 0
	})
	out := make([]tabular.Record, len(records))
	for i, idx := range indices {
		out[i] = records[idx]
	}
	return out
}

type sortKey struct {
	valid bool
	num   float64
	str   string
	tuple []string
	kind  tabular.FieldType
}

func (k sortKey) compare(other sortKey) int {
	if len(k.tuple) > 0 || len(other.tuple) > 0 {
		return compareTuples(k.tuple, other.tuple)
	}
	switch k.kind {
	case tabular.TypeNumber, tabular.TypeDate, tabular.TypeBool:
		switch {
		case k.num < other.num:
			return -1
		case k.num > other.num:
			return 1
		}
		return 0
	default:
		return strings.Compare(k.str, other.str)
	}
}

func compareTuples(a, b []string) int {
	for i := 0; i < len(a) && i < len(b); i++ {
		if c := strings.Compare(a[i], b[i]); c != 0 {
			return c
		}
	}
	return len(a) - len(b)
}

func extractKey(field tabular.Field, rec tabular.Record) sortKey {
	if len(field.Composite) > 0 {
		tuple := make([]string, len(field.Composite))
		for i, ref := range field.Composite {
			tuple[i] = strings.ToLower(FormatCell(rec.Values[ref]))
		}
		return sortKey{valid: true, tuple: tuple, kind: field.Type}
	}
	cell := rec.Values[field.Name]
	switch field.Type {
	case tabular.TypeNumber:
		v, ok := coerceNumber(cell)
		return sortKey{valid: ok, num: v, kind: field.Type}
	case tabular.TypeDate:
		t, ok := parseDate(cell)
		return sortKey{valid: ok, num: float64(t.UnixNano()), kind: field.Type}
	case tabular.TypeBool:
		b, ok := coerceBool(cell)
		v := 0.0
		if b {
			v = 1.0
		}
		return sortKey{valid: ok, num: v, kind: field.Type}
	default:
		return sortKey{valid: true, str: strings.ToLower(FormatCell(cell)), kind: field.Type}
	}
}

// Paginate slices the filtered+sorted result into the requested page. The page
// number is clamped into [1, total_pages] and total_pages is never below 1, so
// an empty result still reports page 1 of 1.
func Paginate(records []tabular.Record, page, pageSize int) tabular.Page {
	if pageSize <= 0 {
		pageSize = tabular.DefaultPageSize
	}
	total := len(records)
	totalPages := tabular.TotalPages(total, pageSize)
	page = tabular.ClampPage(page, totalPages)

	start := (page - 1) * pageSize
	if start > total {
		start = total
	}
	end := start + pageSize
	if end > total {
		end = total
	}
	return tabular.Page{
		Records:    records[start:end],
		Number:     page,
		Size:       pageSize,
		TotalCount: total,
		TotalPages: totalPages,
	}
}

// FormatCell renders a cell value as the string form used for search matching
// and CSV export. List values flatten to a comma-joined string; times render
// as RFC 3339.
func FormatCell(value any) string {
	switch v := value.(type) {
	case nil:
		return ""
	case string:
		return v
	case []string:
		return strings.Join(v, ", ")
	case []any:
		// JSON hydration decodes list cells as []any; render them the same
		// way as native []string cells.
		parts := make([]string, len(v))
		for i, item := range v {
			parts[i] = FormatCell(item)
		}
		return strings.Join(parts, ", ")
	case time.Time:
		return v.UTC().Format(time.RFC3339)
	case bool:
		return strconv.FormatBool(v)
	case float32:
		return strconv.FormatFloat(float64(v), 'g', -1, 32)
	case float64:
		return strconv.FormatFloat(v, 'g', -1, 64)
	case int:
		return strconv.Itoa(v)
	case int64:
		return strconv.FormatInt(v, 10)
	case fmt.Stringer:
		return v.String()
	default:
		return fmt.Sprint(v)
	}
}

func coerceNumber(value any) (float64, bool) {
	switch v := value.(type) {
	case float64:
		return v, true
	case float32:
		return float64(v), true
	case int:
		return float64(v), true
	case int32:
		return float64(v), true
	case int64:
		return float64(v), true
	case string:
		parsed, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
		if err != nil {
			return 0, false
		}
		return parsed, true
	default:
		return 0, false
	}
}

func coerceBool(value any) (bool, bool) {
	switch v := value.(type) {
	case bool:
		return v, true
	case string:
		parsed, err := strconv.ParseBool(strings.TrimSpace(v))
		if err != nil {
			return false, false
		}
		return parsed, true
	default:
		return false, false
	}
}

// dateLayouts are tried in order when parsing date cells stored as strings.
var dateLayouts = []string{
	time.RFC3339,
	"2006-01-02 15:04:05",
	"2006-01-02",
}

func parseDate(value any) (time.Time, bool) {
	switch v := value.(type) {
	case time.Time:
		return v, true
	case string:
		text := strings.TrimSpace(v)
		if text == "" {
			return time.Time{}, false
		}
		for _, layout := range dateLayouts {
			if t, err := time.Parse(layout, text); err == nil {
				return t, true
			}
		}
		return time.Time{}, false
	default:
		return time.Time{}, false
	}
}
