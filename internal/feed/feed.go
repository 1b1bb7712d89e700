// Package feed appends records to a dataset on a fixed interval, exercising
// the single-writer path while readers keep paging through live sessions.
package feed

import (
	"context"
	"sync"
	"time"

	"gridcore/internal/engine"
	"gridcore/pkg/tabular"
)

// Generator produces the next record to append. Sequence starts at 0 and
// increases by one per tick.
type Generator func(sequence int, now time.Time) tabular.Record

// Feed owns the write side of one dataset: a single goroutine appends a
// generated record per tick through the catalog so every write also persists.
type Feed struct {
	catalog  *engine.Catalog
	slug     string
	interval time.Duration
	generate Generator
	logger   engine.Logger

	mu       sync.Mutex
	cancel   context.CancelFunc
	wg       sync.WaitGroup
	sequence int
}

// New constructs a stopped feed for the dataset slug.
func New(catalog *engine.Catalog, slug string, interval time.Duration, generate Generator, logger engine.Logger) *Feed {
	if interval <= 0 {
		interval = 5 * time.Second
	}
	if logger == nil {
		logger = engine.NopLogger()
	}
	return &Feed{
		catalog:  catalog,
		slug:     slug,
		interval: interval,
		generate: generate,
		logger:   logger,
	}
}

// Start launches the tick loop. Calling Start on a running feed is a no-op.
func (f *Feed) Start(ctx context.Context) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.cancel != nil {
		return
	}
	ctx, cancel := context.WithCancel(ctx)
	f.cancel = cancel
	f.wg.Add(1)
	go f.run(ctx)
}

// Stop halts the loop and waits for the in-flight append to finish.
func (f *Feed) Stop() {
	f.mu.Lock()
	cancel := f.cancel
	f.cancel = nil
	f.mu.Unlock()
	if cancel == nil {
		return
	}
	cancel()
	f.wg.Wait()
}

// Tick appends one generated record immediately. Exposed so tests and the
// serve loop can drive the feed without waiting on the timer.
func (f *Feed) Tick(ctx context.Context) error {
	f.mu.Lock()
	seq := f.sequence
	f.sequence++
	f.mu.Unlock()
	rec := f.generate(seq, time.Now().UTC())
	if _, err := f.catalog.Append(ctx, f.slug, rec); err != nil {
		f.logger.Error("feed append failed", "dataset", f.slug, "error", err)
		return err
	}
	return nil
}

func (f *Feed) run(ctx context.Context) {
	defer f.wg.Done()
	ticker := time.NewTicker(f.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			_ = f.Tick(ctx)
		}
	}
}
