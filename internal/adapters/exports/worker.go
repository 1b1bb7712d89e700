package exports

import (
	"bytes"
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"sort"
	"sync"
	"time"

	"gridcore/internal/blob"
	"gridcore/internal/engine"
	"gridcore/pkg/tabular"
)

// ExportStatus tracks the lifecycle of an asynchronous export job.
type ExportStatus string

const (
	ExportStatusQueued    ExportStatus = "queued"
	ExportStatusRunning   ExportStatus = "running"
	ExportStatusSucceeded ExportStatus = "succeeded"
	ExportStatusFailed    ExportStatus = "failed"
)

// Artifact describes one rendered export object in blob storage.
type Artifact struct {
	Key         string    `json:"key"`
	Format      Format    `json:"format"`
	ContentType string    `json:"content_type"`
	SizeBytes   int64     `json:"size_bytes"`
	URL         string    `json:"url,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}

// ExportRecord is the externally visible state of an export job.
type ExportRecord struct {
	ID          string       `json:"id"`
	Dataset     string       `json:"dataset"`
	SessionID   string       `json:"session_id"`
	Formats     []Format     `json:"formats"`
	RequestedBy string       `json:"requested_by,omitempty"`
	Status      ExportStatus `json:"status"`
	Error       string       `json:"error,omitempty"`
	Artifacts   []Artifact   `json:"artifacts,omitempty"`
	CreatedAt   time.Time    `json:"created_at"`
	UpdatedAt   time.Time    `json:"updated_at"`
	CompletedAt *time.Time   `json:"completed_at,omitempty"`
}

func (r ExportRecord) clone() ExportRecord {
	out := r
	out.Formats = append([]Format(nil), r.Formats...)
	out.Artifacts = append([]Artifact(nil), r.Artifacts...)
	if r.CompletedAt != nil {
		t := *r.CompletedAt
		out.CompletedAt = &t
	}
	return out
}

// ExportInput is the request payload for enqueueing an export.
type ExportInput struct {
	DatasetSlug string
	SessionID   string
	Formats     []Format
	RequestedBy string
}

// AuditEntry records one export lifecycle event.
type AuditEntry struct {
	Timestamp time.Time
	ExportID  string
	Dataset   string
	Event     string
	Detail    string
}

// AuditLogger receives export lifecycle events.
type AuditLogger interface {
	Record(entry AuditEntry)
}

// MemoryAuditLog keeps audit entries in memory.
type MemoryAuditLog struct {
	mu      sync.Mutex
	entries []AuditEntry
}

// NewMemoryAuditLog constructs an empty audit log.
func NewMemoryAuditLog() *MemoryAuditLog { return &MemoryAuditLog{} }

// Record appends an entry.
func (l *MemoryAuditLog) Record(entry AuditEntry) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.entries = append(l.entries, entry)
}

// Entries returns a copy of recorded entries in order.
func (l *MemoryAuditLog) Entries() []AuditEntry {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]AuditEntry(nil), l.entries...)
}

var _ AuditLogger = (*MemoryAuditLog)(nil)

// SessionResolver locates the session whose current view an export snapshots.
// *engine.Registry satisfies it.
type SessionResolver interface {
	Session(sessionID, slug string) (*engine.Session, error)
}

var _ SessionResolver = (*engine.Registry)(nil)

// task carries the snapshot taken at enqueue time. Rendering works from this
// snapshot, so later control-state mutations never change a queued export.
type task struct {
	id      string
	dataset string
	schema  tabular.Schema
	records []tabular.Record
	formats []Format
}

// Worker renders export jobs asynchronously and persists artifacts to blob
// storage. Jobs are validated synchronously at enqueue time (unknown dataset,
// empty result set) so callers get immediate errors; rendering and uploads run
// on the worker goroutine.
type Worker struct {
	resolver SessionResolver
	blobs    blob.Store
	audit    AuditLogger
	logger   engine.Logger
	metrics  engine.MetricsRecorder

	mu   sync.RWMutex
	jobs map[string]ExportRecord

	queue  chan task
	cancel context.CancelFunc
	done   chan struct{}
}

// NewWorker constructs a stopped worker. Call Start before enqueueing.
func NewWorker(resolver SessionResolver, blobs blob.Store, audit AuditLogger, logger engine.Logger, metrics engine.MetricsRecorder) *Worker {
	if audit == nil {
		audit = NewMemoryAuditLog()
	}
	if logger == nil {
		logger = engine.NopLogger()
	}
	if metrics == nil {
		metrics = engine.NopMetrics()
	}
	return &Worker{
		resolver: resolver,
		blobs:    blobs,
		audit:    audit,
		logger:   logger,
		metrics:  metrics,
		jobs:     make(map[string]ExportRecord),
		queue:    make(chan task, 64),
	}
}

// Start launches the processing goroutine. Starting a running worker is a
// no-op.
func (w *Worker) Start(ctx context.Context) {
	w.mu.Lock()
	if w.cancel != nil {
		w.mu.Unlock()
		return
	}
	ctx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	w.cancel = cancel
	w.done = done
	w.mu.Unlock()
	go func() {
		defer close(done)
		for {
			select {
			case <-ctx.Done():
				return
			case t := <-w.queue:
				w.process(ctx, t)
			}
		}
	}()
}

// Stop cancels processing, waits for the in-flight job to finish, and marks
// any job still sitting in the queue as failed so no record stays queued
// forever.
func (w *Worker) Stop() {
	w.mu.Lock()
	cancel, done := w.cancel, w.done
	w.cancel, w.done = nil, nil
	w.mu.Unlock()
	if cancel != nil {
		cancel()
		<-done
	}
	w.drainQueue()
}

// drainQueue fails every task left in the queue after the loop has stopped.
func (w *Worker) drainQueue() {
	for {
		select {
		case t := <-w.queue:
			now := time.Now().UTC()
			w.transition(t.id, func(rec *ExportRecord) {
				rec.Status = ExportStatusFailed
				rec.Error = "worker stopped before processing"
				rec.CompletedAt = &now
			})
			w.audit.Record(AuditEntry{Timestamp: now, ExportID: t.id, Dataset: t.dataset, Event: "failed", Detail: "worker stopped before processing"})
			w.logger.Warn("export abandoned at shutdown", "export", t.id, "dataset", t.dataset)
		default:
			return
		}
	}
}

// Enqueue validates the request, snapshots the session's current filtered
// view, and queues rendering. An empty view fails immediately with
// tabular.ErrNothingToExport.
func (w *Worker) Enqueue(input ExportInput) (ExportRecord, error) {
	if len(input.Formats) == 0 {
		input.Formats = []Format{FormatCSV}
	}
	for _, f := range input.Formats {
		if _, ok := ParseFormat(string(f)); !ok {
			return ExportRecord{}, fmt.Errorf("unsupported export format %s", f)
		}
	}
	session, err := w.resolver.Session(input.SessionID, input.DatasetSlug)
	if err != nil {
		return ExportRecord{}, err
	}
	view := session.View()
	if len(view.Filtered) == 0 {
		return ExportRecord{}, tabular.ErrNothingToExport
	}

	now := time.Now().UTC()
	rec := ExportRecord{
		ID:          newExportID(),
		Dataset:     input.DatasetSlug,
		SessionID:   input.SessionID,
		Formats:     append([]Format(nil), input.Formats...),
		RequestedBy: input.RequestedBy,
		Status:      ExportStatusQueued,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	t := task{
		id:      rec.ID,
		dataset: input.DatasetSlug,
		schema:  session.Dataset().Schema(),
		records: view.Filtered,
		formats: rec.Formats,
	}

	w.mu.Lock()
	w.jobs[rec.ID] = rec.clone()
	w.mu.Unlock()

	select {
	case w.queue <- t:
	default:
		w.mu.Lock()
		delete(w.jobs, rec.ID)
		w.mu.Unlock()
		return ExportRecord{}, fmt.Errorf("export queue full")
	}
	w.audit.Record(AuditEntry{Timestamp: now, ExportID: rec.ID, Dataset: rec.Dataset, Event: "queued"})
	w.logger.Info("export queued", "export", rec.ID, "dataset", rec.Dataset)
	return rec, nil
}

// Job returns the current state of an export by ID.
func (w *Worker) Job(id string) (ExportRecord, bool) {
	w.mu.RLock()
	defer w.mu.RUnlock()
	rec, ok := w.jobs[id]
	if !ok {
		return ExportRecord{}, false
	}
	return rec.clone(), true
}

// Jobs returns all known export records ordered by creation time.
func (w *Worker) Jobs() []ExportRecord {
	w.mu.RLock()
	defer w.mu.RUnlock()
	out := make([]ExportRecord, 0, len(w.jobs))
	for _, rec := range w.jobs {
		out = append(out, rec.clone())
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out
}

func (w *Worker) process(ctx context.Context, t task) {
	w.transition(t.id, func(rec *ExportRecord) {
		rec.Status = ExportStatusRunning
	})
	w.audit.Record(AuditEntry{Timestamp: time.Now().UTC(), ExportID: t.id, Dataset: t.dataset, Event: "running"})

	var artifacts []Artifact
	var failure error
	for _, format := range t.formats {
		payload, err := Render(format, t.schema, t.records)
		if err != nil {
			failure = err
			break
		}
		key := "exports/" + ArtifactKey(t.dataset, format, time.Now())
		info, err := w.blobs.Put(ctx, key, bytes.NewReader(payload), blob.PutOptions{
			ContentType: format.ContentType(),
			Metadata:    map[string]string{"dataset": t.dataset, "export": t.id},
		})
		if err != nil {
			failure = err
			break
		}
		artifact := Artifact{
			Key:         info.Key,
			Format:      format,
			ContentType: format.ContentType(),
			SizeBytes:   info.Size,
			CreatedAt:   info.LastModified,
		}
		if url, err := w.blobs.PresignURL(ctx, info.Key, blob.SignedURLOptions{Method: "GET"}); err == nil {
			artifact.URL = url
		}
		artifacts = append(artifacts, artifact)
	}

	now := time.Now().UTC()
	if failure != nil {
		w.transition(t.id, func(rec *ExportRecord) {
			rec.Status = ExportStatusFailed
			rec.Error = failure.Error()
			rec.CompletedAt = &now
		})
		w.audit.Record(AuditEntry{Timestamp: now, ExportID: t.id, Dataset: t.dataset, Event: "failed", Detail: failure.Error()})
		w.metrics.IncExport(t.dataset, formatsLabel(t.formats), "failed")
		w.logger.Error("export failed", "export", t.id, "dataset", t.dataset, "error", failure)
		return
	}
	w.transition(t.id, func(rec *ExportRecord) {
		rec.Status = ExportStatusSucceeded
		rec.Artifacts = artifacts
		rec.CompletedAt = &now
	})
	w.audit.Record(AuditEntry{Timestamp: now, ExportID: t.id, Dataset: t.dataset, Event: "succeeded"})
	w.metrics.IncExport(t.dataset, formatsLabel(t.formats), "succeeded")
	w.logger.Info("export succeeded", "export", t.id, "dataset", t.dataset, "artifacts", len(artifacts))
}

func (w *Worker) transition(id string, mutate func(*ExportRecord)) {
	w.mu.Lock()
	defer w.mu.Unlock()
	rec, ok := w.jobs[id]
	if !ok {
		return
	}
	mutate(&rec)
	rec.UpdatedAt = time.Now().UTC()
	w.jobs[id] = rec
}

func formatsLabel(formats []Format) string {
	parts := make([]string, len(formats))
	for i, f := range formats {
		parts[i] = string(f)
	}
	sort.Strings(parts)
	label := ""
	for i, p := range parts {
		if i > 0 {
			label += "+"
		}
		label += p
	}
	return label
}

func newExportID() string {
	buf := make([]byte, 16)
	if _, err := rand.Read(buf); err != nil {
		return fmt.Sprintf("exp-%d", time.Now().UnixNano())
	}
	return hex.EncodeToString(buf)
}
