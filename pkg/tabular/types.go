// Package tabular defines the record, schema, and view-state value types shared
// by the gridcore pipeline and its adapters.
package tabular

import (
	"errors"
	"fmt"
	"strings"
)

// FieldType identifies the comparison and parsing rules applied to a field.
type FieldType string

// Supported field types. The type drives search formatting, filter coercion,
// and sort key extraction.
const (
	// TypeString is free-form text compared case-insensitively.
	TypeString FieldType = "string"
	// TypeNumber is a numeric value compared numerically.
	TypeNumber FieldType = "number"
	// TypeDate is a date or timestamp parsed into a comparable instant.
	TypeDate FieldType = "date"
	// TypeCategory is an enumerated value filtered by set membership.
	TypeCategory FieldType = "category"
	// TypeBool is a boolean; false orders before true.
	TypeBool FieldType = "bool"
)

// KnownFieldType reports whether t is one of the supported field types.
func KnownFieldType(t FieldType) bool {
	switch t {
	case TypeString, TypeNumber, TypeDate, TypeCategory, TypeBool:
		return true
	}
	return false
}

// Field describes a single column of a dataset.
type Field struct {
	// Name is the internal field key used in Record.Values.
	Name string `json:"name"`
	// Label is the human-readable column header used for display and export.
	Label string `json:"label"`
	// Type selects the comparison and parsing rules for the field.
	Type FieldType `json:"type"`
	// Searchable marks the field as part of the free-text search surface.
	Searchable bool `json:"searchable,omitempty"`
	// Composite lists other field names whose lowercased values form the sort
	// key tuple for this field (e.g. a display "name" sorting by first then
	// last). Empty for ordinary fields.
	Composite []string `json:"composite,omitempty"`
}

// Schema is the ordered field list of a dataset.
type Schema []Field

// Validation errors returned by Schema.Validate.
var (
	ErrEmptySchema = errors.New("tabular: schema has no fields")
)

// Validate checks that the schema has at least one field, unique non-empty
// names, known types, and composite references that resolve within the schema.
func (s Schema) Validate() error {
	if len(s) == 0 {
		return ErrEmptySchema
	}
	seen := make(map[string]struct{}, len(s))
	for _, f := range s {
		name := strings.TrimSpace(f.Name)
		if name == "" {
			return errors.New("tabular: field with empty name")
		}
		if _, dup := seen[name]; dup {
			return fmt.Errorf("tabular: duplicate field %q", name)
		}
		seen[name] = struct{}{}
		if !KnownFieldType(f.Type) {
			return fmt.Errorf("tabular: field %q has unknown type %q", name, f.Type)
		}
	}
	for _, f := range s {
		for _, ref := range f.Composite {
			if _, ok := seen[ref]; !ok {
				return fmt.Errorf("tabular: field %q composite references unknown field %q", f.Name, ref)
			}
		}
	}
	return nil
}

// Field returns the field with the given name.
func (s Schema) Field(name string) (Field, bool) {
	for _, f := range s {
		if f.Name == name {
			return f, true
		}
	}
	return Field{}, false
}

// Labels returns display labels in schema order, falling back to the field
// name when no label is set.
func (s Schema) Labels() []string {
	out := make([]string, len(s))
	for i, f := range s {
		if f.Label != "" {
			out[i] = f.Label
		} else {
			out[i] = f.Name
		}
	}
	return out
}

// SearchFields returns the names of all searchable fields in schema order.
func (s Schema) SearchFields() []string {
	var out []string
	for _, f := range s {
		if f.Searchable {
			out = append(out, f.Name)
		}
	}
	return out
}

// Clone returns a deep copy of the schema.
func (s Schema) Clone() Schema {
	if len(s) == 0 {
		return nil
	}
	out := make(Schema, len(s))
	copy(out, s)
	for i := range out {
		if len(out[i].Composite) > 0 {
			out[i].Composite = append([]string(nil), out[i].Composite...)
		}
	}
	return out
}

// Record is a single row keyed by a stable unique identifier. Values are keyed
// by field name; cell values may be strings, numbers, booleans, or []string for
// list-valued fields. Records are immutable from the pipeline's perspective.
type Record struct {
	ID     string         `json:"id"`
	Values map[string]any `json:"values"`
}

// Clone returns a deep copy of the record.
func (r Record) Clone() Record {
	cp := r
	if r.Values != nil {
		cp.Values = make(map[string]any, len(r.Values))
		for k, v := range r.Values {
			// List cells may be []string natively or []any after JSON
			// hydration; both need their own backing array.
			switch list := v.(type) {
			case []string:
				cp.Values[k] = append([]string(nil), list...)
			case []any:
				cp.Values[k] = append([]any(nil), list...)
			default:
				cp.Values[k] = v
			}
		}
	}
	return cp
}

// CloneRecords deep-copies a record slice.
func CloneRecords(records []Record) []Record {
	if records == nil {
		return nil
	}
	out := make([]Record, len(records))
	for i, r := range records {
		out[i] = r.Clone()
	}
	return out
}

// DatasetSnapshot is the serializable form of a dataset used by persistence
// backends and seeding.
type DatasetSnapshot struct {
	Slug    string   `json:"slug"`
	Title   string   `json:"title"`
	Schema  Schema   `json:"schema"`
	Records []Record `json:"records"`
}

// Clone returns a deep copy of the snapshot.
func (s DatasetSnapshot) Clone() DatasetSnapshot {
	cp := s
	cp.Schema = s.Schema.Clone()
	cp.Records = CloneRecords(s.Records)
	return cp
}
