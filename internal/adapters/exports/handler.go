package exports

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"gridcore/internal/engine"
	"gridcore/pkg/tabular"
)

// sessionHeader carries the caller's session identity. A "session" query
// parameter works as a fallback for plain browser links (CSV downloads).
const sessionHeader = "X-Gridcore-Session"

// Handler exposes the view engine over HTTP. Routing is plain path matching on
// a shared prefix; every response body is JSON except the CSV download.
type Handler struct {
	catalog  *engine.Catalog
	registry *engine.Registry
	worker   *Worker
	logger   engine.Logger
	now      func() time.Time
}

// NewHandler wires the HTTP boundary over catalog, registry, and export worker.
func NewHandler(catalog *engine.Catalog, registry *engine.Registry, worker *Worker, logger engine.Logger) *Handler {
	if logger == nil {
		logger = engine.NopLogger()
	}
	return &Handler{catalog: catalog, registry: registry, worker: worker, logger: logger, now: time.Now}
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	path := strings.TrimPrefix(r.URL.Path, "/api/v1")
	switch {
	case path == "/datasets" && r.Method == http.MethodGet:
		h.listDatasets(w)
	case strings.HasPrefix(path, "/datasets/"):
		h.routeDataset(w, r, strings.TrimPrefix(path, "/datasets/"))
	case path == "/exports" && r.Method == http.MethodPost:
		h.createExport(w, r)
	case path == "/exports" && r.Method == http.MethodGet:
		writeJSON(w, http.StatusOK, map[string]any{"exports": h.worker.Jobs()})
	case strings.HasPrefix(path, "/exports/") && r.Method == http.MethodGet:
		h.getExport(w, strings.TrimPrefix(path, "/exports/"))
	default:
		writeError(w, http.StatusNotFound, "route not found")
	}
}

func (h *Handler) routeDataset(w http.ResponseWriter, r *http.Request, rest string) {
	slug, action, _ := strings.Cut(rest, "/")
	if slug == "" {
		writeError(w, http.StatusNotFound, "dataset slug required")
		return
	}
	switch {
	case action == "" && r.Method == http.MethodGet:
		h.describeDataset(w, slug)
	case action == "page" && r.Method == http.MethodGet:
		h.currentPage(w, r, slug)
	case action == "page" && r.Method == http.MethodPost:
		h.mutatePage(w, r, slug)
	case action == "search" && r.Method == http.MethodPost:
		h.setSearch(w, r, slug)
	case action == "filters" && r.Method == http.MethodPost:
		h.setFilter(w, r, slug)
	case action == "filters" && r.Method == http.MethodDelete:
		h.withSession(w, r, slug, func(s *engine.Session) (engine.View, error) {
			return s.ClearFilters(), nil
		})
	case action == "sort" && r.Method == http.MethodPost:
		h.toggleSort(w, r, slug)
	case action == "sort" && r.Method == http.MethodDelete:
		h.withSession(w, r, slug, func(s *engine.Session) (engine.View, error) {
			return s.ClearSort(), nil
		})
	case action == "selection" && r.Method == http.MethodPost:
		h.toggleSelection(w, r, slug)
	case action == "selection" && r.Method == http.MethodDelete:
		h.withSession(w, r, slug, func(s *engine.Session) (engine.View, error) {
			return s.ClearSelection(), nil
		})
	case action == "export.csv" && r.Method == http.MethodGet:
		h.downloadCSV(w, r, slug)
	default:
		writeError(w, http.StatusNotFound, "route not found")
	}
}

func (h *Handler) listDatasets(w http.ResponseWriter) {
	type entry struct {
		Slug  string `json:"slug"`
		Title string `json:"title"`
		Count int    `json:"count"`
	}
	var out []entry
	for _, slug := range h.catalog.Slugs() {
		if ds, ok := h.catalog.Dataset(slug); ok {
			out = append(out, entry{Slug: ds.Slug(), Title: ds.Title(), Count: ds.Len()})
		}
	}
	writeJSON(w, http.StatusOK, map[string]any{"datasets": out})
}

func (h *Handler) describeDataset(w http.ResponseWriter, slug string) {
	ds, ok := h.catalog.Dataset(slug)
	if !ok {
		writeError(w, http.StatusNotFound, fmt.Sprintf("dataset %q not found", slug))
		return
	}
	type fieldView struct {
		Name       string   `json:"name"`
		Label      string   `json:"label"`
		Type       string   `json:"type"`
		Searchable bool     `json:"searchable"`
		Composite  []string `json:"composite,omitempty"`
	}
	schema := ds.Schema()
	fields := make([]fieldView, 0, len(schema))
	for _, f := range schema {
		fields = append(fields, fieldView{
			Name:       f.Name,
			Label:      f.Label,
			Type:       string(f.Type),
			Searchable: f.Searchable,
			Composite:  f.Composite,
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"slug":   ds.Slug(),
		"title":  ds.Title(),
		"count":  ds.Len(),
		"fields": fields,
	})
}

// currentPage renders the session's view, optionally applying control-state
// parameters first: q, sort, dir, page, page_size. The page parameter applies
// last so it wins over the page resets that search and sort changes trigger.
func (h *Handler) currentPage(w http.ResponseWriter, r *http.Request, slug string) {
	params := r.URL.Query()
	h.withSession(w, r, slug, func(s *engine.Session) (engine.View, error) {
		if raw := params.Get("page_size"); raw != "" {
			size, err := strconv.Atoi(raw)
			if err != nil || size <= 0 {
				return engine.View{}, fmt.Errorf("invalid page_size %q", raw)
			}
			s.SetPageSize(size)
		}
		if params.Has("q") {
			s.SetSearch(params.Get("q"))
		}
		if field := params.Get("sort"); field != "" {
			direction := tabular.SortAscending
			if strings.EqualFold(params.Get("dir"), string(tabular.SortDescending)) {
				direction = tabular.SortDescending
			}
			if _, err := s.SetSort(field, direction); err != nil {
				return engine.View{}, err
			}
		}
		if raw := params.Get("page"); raw != "" {
			page, err := strconv.Atoi(raw)
			if err != nil {
				return engine.View{}, fmt.Errorf("invalid page %q", raw)
			}
			s.GotoPage(page)
		}
		return s.View(), nil
	})
}

func (h *Handler) setSearch(w http.ResponseWriter, r *http.Request, slug string) {
	var body struct {
		Query string `json:"query"`
	}
	if !decodeBody(w, r, &body) {
		return
	}
	h.withSession(w, r, slug, func(s *engine.Session) (engine.View, error) {
		return s.SetSearch(body.Query), nil
	})
}

func (h *Handler) setFilter(w http.ResponseWriter, r *http.Request, slug string) {
	var body struct {
		Field string   `json:"field"`
		In    []string `json:"in,omitempty"`
		Min   string   `json:"min,omitempty"`
		Max   string   `json:"max,omitempty"`
	}
	if !decodeBody(w, r, &body) {
		return
	}
	constraint := tabular.ParseRange(body.Min, body.Max)
	constraint.In = body.In
	h.withSession(w, r, slug, func(s *engine.Session) (engine.View, error) {
		return s.SetFilter(body.Field, constraint)
	})
}

func (h *Handler) toggleSort(w http.ResponseWriter, r *http.Request, slug string) {
	var body struct {
		Field string `json:"field"`
	}
	if !decodeBody(w, r, &body) {
		return
	}
	h.withSession(w, r, slug, func(s *engine.Session) (engine.View, error) {
		return s.ToggleSort(body.Field), nil
	})
}

func (h *Handler) mutatePage(w http.ResponseWriter, r *http.Request, slug string) {
	var body struct {
		Op       string `json:"op"`
		Page     int    `json:"page,omitempty"`
		PageSize int    `json:"page_size,omitempty"`
	}
	if !decodeBody(w, r, &body) {
		return
	}
	h.withSession(w, r, slug, func(s *engine.Session) (engine.View, error) {
		if body.PageSize > 0 {
			s.SetPageSize(body.PageSize)
		}
		switch body.Op {
		case "next":
			return s.NextPage(), nil
		case "prev":
			return s.PrevPage(), nil
		case "first":
			return s.FirstPage(), nil
		case "last":
			return s.LastPage(), nil
		case "goto":
			return s.GotoPage(body.Page), nil
		case "":
			return s.View(), nil
		default:
			return engine.View{}, fmt.Errorf("unknown page op %q", body.Op)
		}
	})
}

func (h *Handler) toggleSelection(w http.ResponseWriter, r *http.Request, slug string) {
	var body struct {
		ID string `json:"id"`
	}
	if !decodeBody(w, r, &body) {
		return
	}
	h.withSession(w, r, slug, func(s *engine.Session) (engine.View, error) {
		return s.ToggleSelect(body.ID), nil
	})
}

// downloadCSV renders the session's current filtered+sorted view (all pages)
// as an attachment named <slug>_<timestamp>.csv.
func (h *Handler) downloadCSV(w http.ResponseWriter, r *http.Request, slug string) {
	session, err := h.registry.Session(sessionID(r), slug)
	if err != nil {
		writeError(w, http.StatusNotFound, err.Error())
		return
	}
	view := session.View()
	payload, err := RenderCSV(session.Dataset().Schema(), view.Filtered)
	if err != nil {
		if errors.Is(err, tabular.ErrNothingToExport) {
			writeError(w, http.StatusConflict, "nothing to export: current view is empty")
			return
		}
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	filename := ArtifactKey(slug, FormatCSV, h.now())
	w.Header().Set("Content-Type", "text/csv")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(payload)
}

func (h *Handler) createExport(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Dataset     string   `json:"dataset"`
		Formats     []string `json:"formats,omitempty"`
		RequestedBy string   `json:"requested_by,omitempty"`
	}
	if !decodeBody(w, r, &body) {
		return
	}
	formats := make([]Format, 0, len(body.Formats))
	for _, name := range body.Formats {
		f, ok := ParseFormat(name)
		if !ok {
			writeError(w, http.StatusBadRequest, fmt.Sprintf("unsupported export format %q", name))
			return
		}
		formats = append(formats, f)
	}
	rec, err := h.worker.Enqueue(ExportInput{
		DatasetSlug: body.Dataset,
		SessionID:   sessionID(r),
		Formats:     formats,
		RequestedBy: body.RequestedBy,
	})
	if err != nil {
		if errors.Is(err, tabular.ErrNothingToExport) {
			writeError(w, http.StatusConflict, "nothing to export: current view is empty")
			return
		}
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	writeJSON(w, http.StatusAccepted, rec)
}

func (h *Handler) getExport(w http.ResponseWriter, id string) {
	rec, ok := h.worker.Job(id)
	if !ok {
		writeError(w, http.StatusNotFound, fmt.Sprintf("export %q not found", id))
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

// withSession resolves the caller's session and writes the view produced by fn.
func (h *Handler) withSession(w http.ResponseWriter, r *http.Request, slug string, fn func(*engine.Session) (engine.View, error)) {
	session, err := h.registry.Session(sessionID(r), slug)
	if err != nil {
		writeError(w, http.StatusNotFound, err.Error())
		return
	}
	view, err := fn(session)
	if err != nil {
		status := http.StatusBadRequest
		if errors.Is(err, tabular.ErrUnknownField) {
			status = http.StatusUnprocessableEntity
		}
		writeError(w, status, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, viewPayload(session, view))
}

type rowPayload struct {
	ID    string            `json:"id"`
	Cells map[string]string `json:"cells"`
}

// viewPayload shapes a View for JSON: the page rows with display-formatted
// cells plus pagination metadata and the control state driving the view.
func viewPayload(session *engine.Session, view engine.View) map[string]any {
	schema := session.Dataset().Schema()
	rows := make([]rowPayload, 0, len(view.Page.Records))
	for _, rec := range view.Page.Records {
		cells := make(map[string]string, len(schema))
		for _, field := range schema {
			cells[field.Name] = engine.FormatCell(rec.Values[field.Name])
		}
		rows = append(rows, rowPayload{ID: rec.ID, Cells: cells})
	}
	state := session.State()
	var sortView map[string]string
	if state.Sort != nil {
		sortView = map[string]string{
			"field":     state.Sort.Field,
			"direction": string(state.Sort.Direction),
		}
	}
	return map[string]any{
		"dataset": session.Dataset().Slug(),
		"rows":    rows,
		"pagination": map[string]int{
			"page":        view.Page.Number,
			"page_size":   view.Page.Size,
			"total_count": view.Page.TotalCount,
			"total_pages": view.Page.TotalPages,
		},
		"search":           state.Search,
		"sort":             sortView,
		"selected_on_page": view.SelectedOnPage,
	}
}

func sessionID(r *http.Request) string {
	if id := r.Header.Get(sessionHeader); id != "" {
		return id
	}
	if id := r.URL.Query().Get("session"); id != "" {
		return id
	}
	return "anonymous"
}

func decodeBody(w http.ResponseWriter, r *http.Request, dst any) bool {
	defer func() { _ = r.Body.Close() }()
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return false
	}
	return true
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]any{"error": message})
}
