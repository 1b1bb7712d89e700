package engine

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"gridcore/pkg/tabular"
)

// Catalog is the set of datasets served by one process. When constructed with
// a snapshot store, every successful record mutation writes the dataset back,
// so restarts hydrate the same data.
type Catalog struct {
	mu       sync.RWMutex
	datasets map[string]*Dataset
	store    tabular.SnapshotStore
	logger   Logger
}

// NewCatalog constructs an empty catalog. Both store and logger may be nil.
func NewCatalog(store tabular.SnapshotStore, logger Logger) *Catalog {
	if logger == nil {
		logger = NopLogger()
	}
	return &Catalog{
		datasets: make(map[string]*Dataset),
		store:    store,
		logger:   logger,
	}
}

// Hydrate loads every snapshot held by the store into the catalog.
func (c *Catalog) Hydrate(ctx context.Context) error {
	if c.store == nil {
		return nil
	}
	snapshots, err := c.store.List(ctx)
	if err != nil {
		return fmt.Errorf("hydrate catalog: %w", err)
	}
	for _, snap := range snapshots {
		if err := c.Register(ctx, snap); err != nil {
			return err
		}
	}
	return nil
}

// Register adds a dataset from a snapshot and persists it. Registering an
// already-present slug replaces the dataset.
func (c *Catalog) Register(ctx context.Context, snapshot tabular.DatasetSnapshot) error {
	ds, err := NewDataset(snapshot)
	if err != nil {
		return fmt.Errorf("register dataset %q: %w", snapshot.Slug, err)
	}
	c.mu.Lock()
	c.datasets[ds.Slug()] = ds
	c.mu.Unlock()
	return c.persist(ctx, ds)
}

// Dataset returns the dataset with the given slug.
func (c *Catalog) Dataset(slug string) (*Dataset, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	ds, ok := c.datasets[slug]
	return ds, ok
}

// Slugs returns all registered dataset slugs in ascending order.
func (c *Catalog) Slugs() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]string, 0, len(c.datasets))
	for slug := range c.datasets {
		out = append(out, slug)
	}
	sort.Strings(out)
	return out
}

// Append adds a record to a dataset and persists the new snapshot.
func (c *Catalog) Append(ctx context.Context, slug string, rec tabular.Record) (tabular.Record, error) {
	ds, ok := c.Dataset(slug)
	if !ok {
		return tabular.Record{}, fmt.Errorf("dataset %q not found", slug)
	}
	created, err := ds.Append(rec)
	if err != nil {
		return tabular.Record{}, err
	}
	return created, c.persist(ctx, ds)
}

// Update mutates a record in a dataset and persists the new snapshot.
func (c *Catalog) Update(ctx context.Context, slug, id string, mutator func(*tabular.Record) error) (tabular.Record, error) {
	ds, ok := c.Dataset(slug)
	if !ok {
		return tabular.Record{}, fmt.Errorf("dataset %q not found", slug)
	}
	updated, err := ds.Update(id, mutator)
	if err != nil {
		return tabular.Record{}, err
	}
	return updated, c.persist(ctx, ds)
}

// Delete removes a record from a dataset and persists the new snapshot.
func (c *Catalog) Delete(ctx context.Context, slug, id string) error {
	ds, ok := c.Dataset(slug)
	if !ok {
		return fmt.Errorf("dataset %q not found", slug)
	}
	if err := ds.Delete(id); err != nil {
		return err
	}
	return c.persist(ctx, ds)
}

func (c *Catalog) persist(ctx context.Context, ds *Dataset) error {
	if c.store == nil {
		return nil
	}
	if err := c.store.Save(ctx, ds.Snapshot()); err != nil {
		c.logger.Error("persist dataset failed", "dataset", ds.Slug(), "error", err)
		return fmt.Errorf("persist dataset %q: %w", ds.Slug(), err)
	}
	return nil
}
