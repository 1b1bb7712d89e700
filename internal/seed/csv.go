package seed

import (
	"encoding/csv"
	"fmt"
	"io"
	"strconv"
	"strings"

	"gridcore/pkg/tabular"
)

// FromCSV reads rows into a DatasetSnapshot. The header row maps columns onto
// schema fields by name or display label; unmatched columns are ignored. Cell
// text is coerced per field type, and values that fail to coerce stay as raw
// strings so a ragged file still imports. An "id" column, when present,
// supplies record IDs; otherwise IDs are row-numbered from the slug.
func FromCSV(slug, title string, schema tabular.Schema, r io.Reader) (tabular.DatasetSnapshot, error) {
	if err := schema.Validate(); err != nil {
		return tabular.DatasetSnapshot{}, err
	}
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	header, err := reader.Read()
	if err != nil {
		return tabular.DatasetSnapshot{}, fmt.Errorf("read csv header: %w", err)
	}

	idCol := -1
	cols := make([]tabular.Field, len(header))
	bound := make([]bool, len(header))
	for i, name := range header {
		name = strings.TrimSpace(name)
		if strings.EqualFold(name, "id") {
			idCol = i
			continue
		}
		for _, f := range schema {
			if strings.EqualFold(f.Name, name) || strings.EqualFold(f.Label, name) {
				cols[i] = f
				bound[i] = true
				break
			}
		}
	}

	var records []tabular.Record
	for line := 2; ; line++ {
		row, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return tabular.DatasetSnapshot{}, fmt.Errorf("read csv line %d: %w", line, err)
		}
		rec := tabular.Record{Values: make(map[string]any, len(schema))}
		for i, cell := range row {
			if i >= len(header) {
				break
			}
			if i == idCol {
				rec.ID = strings.TrimSpace(cell)
				continue
			}
			if !bound[i] {
				continue
			}
			rec.Values[cols[i].Name] = coerceCell(cols[i].Type, cell)
		}
		if rec.ID == "" {
			rec.ID = fmt.Sprintf("%s-%d", slug, len(records)+1)
		}
		records = append(records, rec)
	}
	return tabular.DatasetSnapshot{Slug: slug, Title: title, Schema: schema, Records: records}, nil
}

// coerceCell converts CSV text per the field type, keeping the raw string when
// conversion fails.
func coerceCell(t tabular.FieldType, cell string) any {
	trimmed := strings.TrimSpace(cell)
	switch t {
	case tabular.TypeNumber:
		if v, err := strconv.ParseFloat(trimmed, 64); err == nil {
			return v
		}
	case tabular.TypeBool:
		if v, err := strconv.ParseBool(strings.ToLower(trimmed)); err == nil {
			return v
		}
	}
	return trimmed
}
