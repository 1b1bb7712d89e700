package tabular

import (
	"context"
	"errors"
)

// ErrNothingToExport signals an export request against an empty result set.
// Callers surface it to the user instead of producing a header-only file.
var ErrNothingToExport = errors.New("tabular: nothing to export")

// ErrUnknownField is returned when a control-state mutation references a field
// the dataset schema does not define.
var ErrUnknownField = errors.New("tabular: unknown field")

// SnapshotStore is a minimal abstraction over durable dataset backends. The
// engine writes a full snapshot after every successful mutation and hydrates
// from the store on startup.
type SnapshotStore interface {
	Save(ctx context.Context, snapshot DatasetSnapshot) error
	Load(ctx context.Context, slug string) (DatasetSnapshot, bool, error)
	List(ctx context.Context) ([]DatasetSnapshot, error)
	Delete(ctx context.Context, slug string) (bool, error)
}
