package exports

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"gridcore/internal/blob"
	"gridcore/internal/engine"
	"gridcore/pkg/tabular"
)

func newTestHandler(t *testing.T) (*Handler, *Worker) {
	t.Helper()
	catalog := engine.NewCatalog(nil, nil)
	if err := catalog.Register(context.Background(), tabular.DatasetSnapshot{
		Slug: "ledger", Title: "Ledger", Schema: testSchema(), Records: testRecords(),
	}); err != nil {
		t.Fatal(err)
	}
	registry := engine.NewRegistry(catalog, nil, nil)
	worker := NewWorker(registry, blob.NewMemory(), nil, nil, nil)
	return NewHandler(catalog, registry, worker, nil), worker
}

func doJSON(t *testing.T, h http.Handler, method, path, body string) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()
	var reader *strings.Reader
	if body == "" {
		reader = strings.NewReader("{}")
	} else {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set(sessionHeader, "tester")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	var payload map[string]any
	if rec.Body.Len() > 0 && strings.HasPrefix(rec.Header().Get("Content-Type"), "application/json") {
		if err := json.Unmarshal(rec.Body.Bytes(), &payload); err != nil {
			t.Fatalf("decode response: %v (%s)", err, rec.Body.String())
		}
	}
	return rec, payload
}

func pagination(t *testing.T, payload map[string]any) map[string]any {
	t.Helper()
	p, ok := payload["pagination"].(map[string]any)
	if !ok {
		t.Fatalf("no pagination in %v", payload)
	}
	return p
}

func TestHandlerListAndDescribeDatasets(t *testing.T) {
	h, _ := newTestHandler(t)

	rec, payload := doJSON(t, h, http.MethodGet, "/api/v1/datasets", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status %d", rec.Code)
	}
	datasets := payload["datasets"].([]any)
	if len(datasets) != 1 {
		t.Fatalf("got %v", datasets)
	}

	rec, payload = doJSON(t, h, http.MethodGet, "/api/v1/datasets/ledger", "")
	if rec.Code != http.StatusOK || payload["slug"] != "ledger" {
		t.Fatalf("status %d payload %v", rec.Code, payload)
	}
	if len(payload["fields"].([]any)) != 2 {
		t.Fatalf("fields: %v", payload["fields"])
	}

	rec, _ = doJSON(t, h, http.MethodGet, "/api/v1/datasets/ghost", "")
	if rec.Code != http.StatusNotFound {
		t.Fatalf("unknown dataset status %d", rec.Code)
	}
}

func TestHandlerPageAndSearch(t *testing.T) {
	h, _ := newTestHandler(t)

	rec, payload := doJSON(t, h, http.MethodGet, "/api/v1/datasets/ledger/page", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status %d", rec.Code)
	}
	if got := pagination(t, payload)["total_count"].(float64); got != 3 {
		t.Fatalf("total_count %v", got)
	}

	rec, payload = doJSON(t, h, http.MethodPost, "/api/v1/datasets/ledger/search", `{"query":"ALPHA"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("status %d: %s", rec.Code, rec.Body.String())
	}
	if got := pagination(t, payload)["total_count"].(float64); got != 1 {
		t.Fatalf("search total_count %v", got)
	}
	rows := payload["rows"].([]any)
	cells := rows[0].(map[string]any)["cells"].(map[string]any)
	if cells["name"] != "alpha" {
		t.Fatalf("rows: %v", rows)
	}
}

func TestHandlerPageQueryParameters(t *testing.T) {
	h, _ := newTestHandler(t)

	rec, payload := doJSON(t, h, http.MethodGet, "/api/v1/datasets/ledger/page?sort=amount&dir=desc&page_size=2&page=2", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status %d: %s", rec.Code, rec.Body.String())
	}
	p := pagination(t, payload)
	if p["page"].(float64) != 2 || p["page_size"].(float64) != 2 {
		t.Fatalf("pagination: %v", p)
	}
	rows := payload["rows"].([]any)
	cells := rows[0].(map[string]any)["cells"].(map[string]any)
	if cells["name"] != "alpha" {
		t.Fatalf("descending page 2 should start with the smallest amount: %v", cells)
	}

	rec, _ = doJSON(t, h, http.MethodGet, "/api/v1/datasets/ledger/page?page_size=zero", "")
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("bad page_size status %d", rec.Code)
	}
	rec, _ = doJSON(t, h, http.MethodGet, "/api/v1/datasets/ledger/page?sort=ghost", "")
	if rec.Code != http.StatusUnprocessableEntity {
		t.Fatalf("unknown sort field status %d", rec.Code)
	}
}

func TestHandlerFilters(t *testing.T) {
	h, _ := newTestHandler(t)

	rec, payload := doJSON(t, h, http.MethodPost, "/api/v1/datasets/ledger/filters", `{"field":"amount","min":"15","max":"25"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("status %d: %s", rec.Code, rec.Body.String())
	}
	if got := pagination(t, payload)["total_count"].(float64); got != 1 {
		t.Fatalf("filtered total_count %v", got)
	}

	rec, _ = doJSON(t, h, http.MethodPost, "/api/v1/datasets/ledger/filters", `{"field":"ghost","in":["x"]}`)
	if rec.Code != http.StatusUnprocessableEntity {
		t.Fatalf("unknown field status %d", rec.Code)
	}

	rec, payload = doJSON(t, h, http.MethodDelete, "/api/v1/datasets/ledger/filters", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("clear status %d", rec.Code)
	}
	if got := pagination(t, payload)["total_count"].(float64); got != 3 {
		t.Fatalf("after clear total_count %v", got)
	}
}

func TestHandlerSortToggle(t *testing.T) {
	h, _ := newTestHandler(t)

	_, payload := doJSON(t, h, http.MethodPost, "/api/v1/datasets/ledger/sort", `{"field":"amount"}`)
	sortView := payload["sort"].(map[string]any)
	if sortView["field"] != "amount" || sortView["direction"] != "asc" {
		t.Fatalf("first toggle: %v", sortView)
	}

	_, payload = doJSON(t, h, http.MethodPost, "/api/v1/datasets/ledger/sort", `{"field":"amount"}`)
	if payload["sort"].(map[string]any)["direction"] != "desc" {
		t.Fatalf("second toggle: %v", payload["sort"])
	}

	_, payload = doJSON(t, h, http.MethodDelete, "/api/v1/datasets/ledger/sort", "")
	if payload["sort"] != nil {
		t.Fatalf("sort not cleared: %v", payload["sort"])
	}
}

func TestHandlerPageMutations(t *testing.T) {
	h, _ := newTestHandler(t)

	_, payload := doJSON(t, h, http.MethodPost, "/api/v1/datasets/ledger/page", `{"op":"next","page_size":2}`)
	p := pagination(t, payload)
	if p["page"].(float64) != 2 || p["total_pages"].(float64) != 2 {
		t.Fatalf("next: %v", p)
	}

	_, payload = doJSON(t, h, http.MethodPost, "/api/v1/datasets/ledger/page", `{"op":"goto","page":99}`)
	if pagination(t, payload)["page"].(float64) != 2 {
		t.Fatalf("goto should clamp: %v", payload)
	}

	rec, _ := doJSON(t, h, http.MethodPost, "/api/v1/datasets/ledger/page", `{"op":"sideways"}`)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("bad op status %d", rec.Code)
	}
}

func TestHandlerSelection(t *testing.T) {
	h, _ := newTestHandler(t)

	_, payload := doJSON(t, h, http.MethodPost, "/api/v1/datasets/ledger/selection", `{"id":"2"}`)
	selected := payload["selected_on_page"].([]any)
	if len(selected) != 1 || selected[0] != "2" {
		t.Fatalf("selection: %v", selected)
	}

	_, payload = doJSON(t, h, http.MethodPost, "/api/v1/datasets/ledger/selection", `{"id":"2"}`)
	if payload["selected_on_page"] != nil {
		t.Fatalf("toggle off: %v", payload["selected_on_page"])
	}
}

func TestHandlerCSVDownload(t *testing.T) {
	h, _ := newTestHandler(t)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/datasets/ledger/export.csv?session=tester", nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status %d: %s", rec.Code, rec.Body.String())
	}
	if ct := rec.Header().Get("Content-Type"); ct != "text/csv" {
		t.Fatalf("content type %q", ct)
	}
	disposition := rec.Header().Get("Content-Disposition")
	if !strings.Contains(disposition, "attachment") || !strings.Contains(disposition, "ledger_") || !strings.Contains(disposition, ".csv") {
		t.Fatalf("disposition %q", disposition)
	}
	lines := strings.Split(strings.TrimRight(rec.Body.String(), "\n"), "\n")
	if len(lines) != 4 || lines[0] != "Name,Amount" {
		t.Fatalf("body: %q", rec.Body.String())
	}
}

func TestHandlerCSVDownloadEmptyViewConflicts(t *testing.T) {
	h, _ := newTestHandler(t)
	doJSON(t, h, http.MethodPost, "/api/v1/datasets/ledger/search", `{"query":"no-match"}`)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/datasets/ledger/export.csv", nil)
	req.Header.Set(sessionHeader, "tester")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusConflict {
		t.Fatalf("status %d", rec.Code)
	}
}

func TestHandlerAsyncExportFlow(t *testing.T) {
	h, worker := newTestHandler(t)
	worker.Start(context.Background())
	defer worker.Stop()

	rec, payload := doJSON(t, h, http.MethodPost, "/api/v1/exports", `{"dataset":"ledger","formats":["csv"]}`)
	if rec.Code != http.StatusAccepted {
		t.Fatalf("status %d: %s", rec.Code, rec.Body.String())
	}
	id := payload["id"].(string)

	done := waitForStatus(t, worker, id, ExportStatusSucceeded)
	if len(done.Artifacts) != 1 {
		t.Fatalf("artifacts: %v", done.Artifacts)
	}

	rec, payload = doJSON(t, h, http.MethodGet, "/api/v1/exports/"+id, "")
	if rec.Code != http.StatusOK || payload["status"] != "succeeded" {
		t.Fatalf("status %d payload %v", rec.Code, payload)
	}

	rec, _ = doJSON(t, h, http.MethodGet, "/api/v1/exports/missing", "")
	if rec.Code != http.StatusNotFound {
		t.Fatalf("missing export status %d", rec.Code)
	}
}

func TestHandlerSessionsAreIndependent(t *testing.T) {
	h, _ := newTestHandler(t)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/datasets/ledger/search", strings.NewReader(`{"query":"alpha"}`))
	req.Header.Set(sessionHeader, "user-a")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	req = httptest.NewRequest(http.MethodGet, "/api/v1/datasets/ledger/page", nil)
	req.Header.Set(sessionHeader, "user-b")
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	var payload map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &payload); err != nil {
		t.Fatal(err)
	}
	if got := pagination(t, payload)["total_count"].(float64); got != 3 {
		t.Fatalf("user-b should see unfiltered data: %v", got)
	}
}

func TestHandlerRejectsMalformedBody(t *testing.T) {
	h, _ := newTestHandler(t)
	rec, _ := doJSON(t, h, http.MethodPost, "/api/v1/datasets/ledger/search", `{"query":`)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status %d", rec.Code)
	}
}
