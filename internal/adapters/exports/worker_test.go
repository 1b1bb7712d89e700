package exports

import (
	"context"
	"errors"
	"io"
	"strings"
	"sync"
	"testing"
	"time"

	"gridcore/internal/blob"
	"gridcore/internal/engine"
	"gridcore/pkg/tabular"
)

func testSchema() tabular.Schema {
	return tabular.Schema{
		{Name: "name", Label: "Name", Type: tabular.TypeString, Searchable: true},
		{Name: "amount", Label: "Amount", Type: tabular.TypeNumber},
	}
}

func testRecords() []tabular.Record {
	return []tabular.Record{
		{ID: "1", Values: map[string]any{"name": "alpha", "amount": 10.0}},
		{ID: "2", Values: map[string]any{"name": "beta", "amount": 20.0}},
		{ID: "3", Values: map[string]any{"name": "gamma", "amount": 30.0}},
	}
}

func newTestRig(t *testing.T) (*engine.Registry, *Worker, *blob.MemoryStore, *MemoryAuditLog) {
	t.Helper()
	catalog := engine.NewCatalog(nil, nil)
	if err := catalog.Register(context.Background(), tabular.DatasetSnapshot{
		Slug: "ledger", Title: "Ledger", Schema: testSchema(), Records: testRecords(),
	}); err != nil {
		t.Fatal(err)
	}
	registry := engine.NewRegistry(catalog, nil, nil)
	blobs := blob.NewMemory()
	audit := NewMemoryAuditLog()
	worker := NewWorker(registry, blobs, audit, nil, nil)
	return registry, worker, blobs, audit
}

func waitForStatus(t *testing.T, worker *Worker, id string, want ExportStatus) ExportRecord {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		rec, ok := worker.Job(id)
		if !ok {
			t.Fatalf("job %s vanished", id)
		}
		if rec.Status == want {
			return rec
		}
		if rec.Status == ExportStatusFailed && want != ExportStatusFailed {
			t.Fatalf("job failed: %s", rec.Error)
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("job %s never reached %s", id, want)
	return ExportRecord{}
}

func TestWorkerExportLifecycle(t *testing.T) {
	_, worker, blobs, audit := newTestRig(t)
	worker.Start(context.Background())
	defer worker.Stop()

	rec, err := worker.Enqueue(ExportInput{DatasetSlug: "ledger", SessionID: "alice", Formats: []Format{FormatCSV, FormatJSON}})
	if err != nil {
		t.Fatal(err)
	}
	if rec.Status != ExportStatusQueued {
		t.Fatalf("initial status %s", rec.Status)
	}

	done := waitForStatus(t, worker, rec.ID, ExportStatusSucceeded)
	if len(done.Artifacts) != 2 {
		t.Fatalf("artifacts: %+v", done.Artifacts)
	}
	if done.CompletedAt == nil {
		t.Fatal("completed timestamp missing")
	}

	infos, err := blobs.List(context.Background(), "exports/")
	if err != nil {
		t.Fatal(err)
	}
	if len(infos) != 2 {
		t.Fatalf("blob objects: %+v", infos)
	}
	for _, info := range infos {
		if info.Metadata["dataset"] != "ledger" || info.Metadata["export"] != rec.ID {
			t.Fatalf("artifact metadata: %+v", info)
		}
	}

	events := audit.Entries()
	if len(events) < 3 || events[0].Event != "queued" || events[len(events)-1].Event != "succeeded" {
		t.Fatalf("audit trail: %+v", events)
	}
}

func TestWorkerEnqueueEmptyViewFails(t *testing.T) {
	registry, worker, _, _ := newTestRig(t)
	session, err := registry.Session("alice", "ledger")
	if err != nil {
		t.Fatal(err)
	}
	session.SetSearch("no-such-record")

	_, err = worker.Enqueue(ExportInput{DatasetSlug: "ledger", SessionID: "alice"})
	if !errors.Is(err, tabular.ErrNothingToExport) {
		t.Fatalf("got %v", err)
	}
	if len(worker.Jobs()) != 0 {
		t.Fatal("rejected export left a job record")
	}
}

func TestWorkerEnqueueSnapshotsViewAtEnqueueTime(t *testing.T) {
	registry, worker, blobs, _ := newTestRig(t)
	session, err := registry.Session("alice", "ledger")
	if err != nil {
		t.Fatal(err)
	}
	session.SetSearch("alpha")

	rec, err := worker.Enqueue(ExportInput{DatasetSlug: "ledger", SessionID: "alice"})
	if err != nil {
		t.Fatal(err)
	}
	// Mutating after enqueue must not change what gets rendered.
	session.SetSearch("")

	worker.Start(context.Background())
	defer worker.Stop()
	done := waitForStatus(t, worker, rec.ID, ExportStatusSucceeded)

	_, rc, err := blobs.Get(context.Background(), done.Artifacts[0].Key)
	if err != nil {
		t.Fatal(err)
	}
	defer func() { _ = rc.Close() }()
	raw, err := io.ReadAll(rc)
	if err != nil {
		t.Fatal(err)
	}
	body := string(raw)
	if !strings.Contains(body, "alpha") || strings.Contains(body, "beta") {
		t.Fatalf("export body: %q", body)
	}
}

func TestWorkerStartStopConcurrent(t *testing.T) {
	_, worker, _, _ := newTestRig(t)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			worker.Start(context.Background())
		}()
		go func() {
			defer wg.Done()
			worker.Stop()
		}()
	}
	wg.Wait()
	worker.Stop()

	// The worker must still be usable after the churn.
	worker.Start(context.Background())
	defer worker.Stop()
	rec, err := worker.Enqueue(ExportInput{DatasetSlug: "ledger", SessionID: "alice"})
	if err != nil {
		t.Fatal(err)
	}
	waitForStatus(t, worker, rec.ID, ExportStatusSucceeded)
}

func TestWorkerStopFailsQueuedJobs(t *testing.T) {
	_, worker, _, audit := newTestRig(t)

	// Never started, so the task stays in the queue until Stop drains it.
	rec, err := worker.Enqueue(ExportInput{DatasetSlug: "ledger", SessionID: "alice"})
	if err != nil {
		t.Fatal(err)
	}
	worker.Stop()

	got, ok := worker.Job(rec.ID)
	if !ok {
		t.Fatal("job vanished")
	}
	if got.Status != ExportStatusFailed {
		t.Fatalf("status %s, want %s", got.Status, ExportStatusFailed)
	}
	if got.Error != "worker stopped before processing" {
		t.Fatalf("error %q", got.Error)
	}
	if got.CompletedAt == nil {
		t.Fatal("completed timestamp missing")
	}

	events := audit.Entries()
	last := events[len(events)-1]
	if last.Event != "failed" || last.ExportID != rec.ID {
		t.Fatalf("audit trail: %+v", events)
	}
}

func TestWorkerRejectsUnknownInputs(t *testing.T) {
	_, worker, _, _ := newTestRig(t)
	if _, err := worker.Enqueue(ExportInput{DatasetSlug: "ghost", SessionID: "a"}); err == nil {
		t.Fatal("unknown dataset should fail")
	}
	if _, err := worker.Enqueue(ExportInput{DatasetSlug: "ledger", SessionID: "a", Formats: []Format{"xml"}}); err == nil {
		t.Fatal("unknown format should fail")
	}
	if _, ok := worker.Job("missing"); ok {
		t.Fatal("missing job reported present")
	}
}
