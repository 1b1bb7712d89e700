// Package exports renders filtered+sorted result sets to downloadable
// artifacts and serves the HTTP boundary of the view engine.
package exports

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"time"

	"gridcore/internal/engine"
	"gridcore/pkg/tabular"
)

// Format identifies an export serialization.
type Format string

const (
	FormatCSV  Format = "csv"
	FormatJSON Format = "json"
)

// ParseFormat maps a user-supplied format name onto a Format.
func ParseFormat(name string) (Format, bool) {
	switch Format(name) {
	case FormatCSV:
		return FormatCSV, true
	case FormatJSON:
		return FormatJSON, true
	}
	return "", false
}

// ContentType returns the MIME type for the format.
func (f Format) ContentType() string {
	if f == FormatJSON {
		return "application/json"
	}
	return "text/csv"
}

// ArtifactKey builds the timestamped object key for an export, following the
// <dataset>_<YYYYMMDD_HHMMSS>.<ext> download naming convention.
func ArtifactKey(dataset string, format Format, now time.Time) string {
	return fmt.Sprintf("%s_%s.%s", dataset, now.UTC().Format("20060102_150405"), format)
}

// RenderCSV serializes records to CSV with a header row of display labels.
// Cells render through the same formatting as search (lists comma-joined,
// times RFC 3339); quoting and escaping follow encoding/csv (RFC 4180).
// An empty record set returns tabular.ErrNothingToExport.
func RenderCSV(schema tabular.Schema, records []tabular.Record) ([]byte, error) {
	if len(records) == 0 {
		return nil, tabular.ErrNothingToExport
	}
	buf := &bytes.Buffer{}
	writer := csv.NewWriter(buf)
	if err := writer.Write(schema.Labels()); err != nil {
		return nil, err
	}
	row := make([]string, len(schema))
	for _, rec := range records {
		for i, field := range schema {
			row[i] = engine.FormatCell(rec.Values[field.Name])
		}
		if err := writer.Write(row); err != nil {
			return nil, err
		}
	}
	writer.Flush()
	if err := writer.Error(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// RenderJSON serializes records as an array of objects keyed by display
// label. An empty record set returns tabular.ErrNothingToExport.
func RenderJSON(schema tabular.Schema, records []tabular.Record) ([]byte, error) {
	if len(records) == 0 {
		return nil, tabular.ErrNothingToExport
	}
	labels := schema.Labels()
	rows := make([]map[string]any, 0, len(records))
	for _, rec := range records {
		row := make(map[string]any, len(schema))
		for i, field := range schema {
			row[labels[i]] = rec.Values[field.Name]
		}
		rows = append(rows, row)
	}
	return json.Marshal(rows)
}

// Render dispatches to the renderer for the format.
func Render(format Format, schema tabular.Schema, records []tabular.Record) ([]byte, error) {
	switch format {
	case FormatJSON:
		return RenderJSON(schema, records)
	case FormatCSV:
		return RenderCSV(schema, records)
	default:
		return nil, fmt.Errorf("unsupported export format %s", format)
	}
}
