package engine

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"sync"

	"gridcore/pkg/tabular"
)

// Dataset is an in-memory record store for one table. Records are immutable
// from the pipeline's perspective; mutation happens through Append, Update,
// and Delete, each of which bumps the generation counter so derived views know
// they are stale.
type Dataset struct {
	mu         sync.RWMutex
	slug       string
	title      string
	schema     tabular.Schema
	records    []tabular.Record
	generation uint64
}

// NewDataset builds a dataset from a snapshot after validating its schema.
func NewDataset(snapshot tabular.DatasetSnapshot) (*Dataset, error) {
	if err := snapshot.Schema.Validate(); err != nil {
		return nil, err
	}
	snap := snapshot.Clone()
	return &Dataset{
		slug:    snap.Slug,
		title:   snap.Title,
		schema:  snap.Schema,
		records: snap.Records,
	}, nil
}

// Slug returns the dataset identifier.
func (d *Dataset) Slug() string { return d.slug }

// Title returns the display title.
func (d *Dataset) Title() string { return d.title }

// Schema returns a copy of the dataset schema.
func (d *Dataset) Schema() tabular.Schema {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.schema.Clone()
}

// Len returns the current record count.
func (d *Dataset) Len() int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return len(d.records)
}

// Generation returns the mutation counter. Two equal generations guarantee
// the record set has not changed in between.
func (d *Dataset) Generation() uint64 {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.generation
}

// Records returns a deep copy of the record set in store order.
func (d *Dataset) Records() []tabular.Record {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return tabular.CloneRecords(d.records)
}

// Snapshot returns the serializable form of the dataset.
func (d *Dataset) Snapshot() tabular.DatasetSnapshot {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return tabular.DatasetSnapshot{
		Slug:    d.slug,
		Title:   d.title,
		Schema:  d.schema.Clone(),
		Records: tabular.CloneRecords(d.records),
	}
}

// Contains reports whether a record with the given ID exists.
func (d *Dataset) Contains(id string) bool {
	d.mu.RLock()
	defer d.mu.RUnlock()
	for _, rec := range d.records {
		if rec.ID == id {
			return true
		}
	}
	return false
}

// Append adds a record, assigning an ID when the record carries none.
func (d *Dataset) Append(rec tabular.Record) (tabular.Record, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if rec.ID == "" {
		rec.ID = newID()
	}
	for _, existing := range d.records {
		if existing.ID == rec.ID {
			return tabular.Record{}, fmt.Errorf("record %q already exists", rec.ID)
		}
	}
	d.records = append(d.records, rec.Clone())
	d.generation++
	return rec.Clone(), nil
}

// Update mutates the record with the given ID through the mutator.
func (d *Dataset) Update(id string, mutator func(*tabular.Record) error) (tabular.Record, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	for i, existing := range d.records {
		if existing.ID != id {
			continue
		}
		current := existing.Clone()
		if err := mutator(&current); err != nil {
			return tabular.Record{}, err
		}
		current.ID = id
		d.records[i] = current.Clone()
		d.generation++
		return current, nil
	}
	return tabular.Record{}, fmt.Errorf("record %q not found", id)
}

// Delete removes the record with the given ID.
func (d *Dataset) Delete(id string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	for i, existing := range d.records {
		if existing.ID != id {
			continue
		}
		d.records = append(d.records[:i], d.records[i+1:]...)
		d.generation++
		return nil
	}
	return fmt.Errorf("record %q not found", id)
}

func newID() string {
	var b [16]byte
	if _, err := rand.Read(b[:]); err != nil {
		panic(err)
	}
	return hex.EncodeToString(b[:])
}
