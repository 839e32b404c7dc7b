// Package export provides word and follower export in various formats
package export

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/Zerofisher/wordchain/fields"
	"github.com/Zerofisher/wordchain/pkg/model"
)

// OutputFormat represents the output format type
type OutputFormat string

const (
	FormatText   OutputFormat = "text"
	FormatJSON   OutputFormat = "json"
	FormatFields OutputFormat = "fields"
	FormatCSV    OutputFormat = "csv"
)

// DefaultFields are the columns used by csv output when none are set.
var DefaultFields = []string{"word.id", "word.token", "word.total", "word.start", "word.end", "word.class"}

// ParseFormat validates a format name.
func ParseFormat(s string) (OutputFormat, error) {
	switch f := OutputFormat(strings.ToLower(s)); f {
	case FormatText, FormatJSON, FormatFields, FormatCSV:
		return f, nil
	case "":
		return FormatText, nil
	}
	return "", fmt.Errorf("unknown output format %q (want text, json, fields or csv)", s)
}

// Exporter handles word export
type Exporter struct {
	format    OutputFormat
	writer    io.Writer
	registry  *fields.Registry
	fields    []string // for -e field extraction
	separator string   // for fields output
	header    bool     // print field names first
	count     int      // rows exported
	maxCount  int      // -c limit (0 = unlimited)
	firstRow  bool     // track first row for JSON array
	csv       *csv.Writer
}

// NewExporter creates a new exporter
func NewExporter(w io.Writer, format OutputFormat) *Exporter {
	return &Exporter{
		format:    format,
		writer:    w,
		registry:  fields.NewRegistry(),
		separator: "\t",
		firstRow:  true,
	}
}

// SetFields sets the fields to extract (for -T fields -e)
func (e *Exporter) SetFields(fieldNames []string) error {
	if err := e.registry.Validate(fieldNames); err != nil {
		return err
	}
	e.fields = fieldNames
	return nil
}

// SetSeparator sets the fields separator
func (e *Exporter) SetSeparator(sep string) {
	if sep != "" {
		e.separator = sep
	}
}

// SetHeader prints field names before the first row
func (e *Exporter) SetHeader(v bool) {
	e.header = v
}

// SetMaxCount sets the maximum row count
func (e *Exporter) SetMaxCount(n int) {
	e.maxCount = n
}

// Count returns the number of rows exported so far
func (e *Exporter) Count() int {
	return e.count
}

// ShouldStop returns true if we've reached the row limit
func (e *Exporter) ShouldStop() bool {
	return e.maxCount > 0 && e.count >= e.maxCount
}

// Start writes any header needed for the format
func (e *Exporter) Start() error {
	return e.start(false)
}

// StartFollowers is Start for a follower export
func (e *Exporter) StartFollowers() error {
	return e.start(true)
}

func (e *Exporter) start(followers bool) error {
	switch e.format {
	case FormatCSV:
		e.csv = csv.NewWriter(e.writer)
		if followers {
			return e.csv.Write([]string{"from", "to", "count"})
		}
		if len(e.fields) == 0 {
			e.fields = DefaultFields
		}
		return e.csv.Write(e.fields)
	case FormatJSON:
		_, err := fmt.Fprintln(e.writer, "[")
		return err
	case FormatFields:
		if e.header && len(e.fields) > 0 {
			_, err := fmt.Fprintln(e.writer, strings.Join(e.fields, e.separator))
			return err
		}
	}
	return nil
}

// Finish writes any footer needed for the format
func (e *Exporter) Finish() error {
	if e.csv != nil {
		e.csv.Flush()
		return e.csv.Error()
	}
	if e.format == FormatJSON {
		if !e.firstRow {
			fmt.Fprintln(e.writer)
		}
		_, err := fmt.Fprintln(e.writer, "]")
		return err
	}
	return nil
}

// ExportWord exports a single word row
func (e *Exporter) ExportWord(w *model.Word) error {
	if e.ShouldStop() {
		return nil
	}

	var err error
	switch e.format {
	case FormatJSON:
		err = e.writeJSON(w)
	case FormatFields:
		err = e.exportFields(w)
	case FormatCSV:
		err = e.exportCSV(w)
	default:
		err = e.exportWordText(w)
	}

	if err == nil {
		e.count++
	}
	return err
}

// FollowerJSON represents a follower edge in JSON format
type FollowerJSON struct {
	From  string `json:"from"`
	To    string `json:"to"`
	Count int64  `json:"count"`
}

// ExportFollower exports a single follower of from. Field selection does
// not apply to followers; the fields format prints from, to and count.
func (e *Exporter) ExportFollower(from string, fc model.FollowerCount) error {
	if e.ShouldStop() {
		return nil
	}

	var err error
	switch e.format {
	case FormatJSON:
		err = e.writeJSON(FollowerJSON{From: from, To: fc.Token, Count: fc.Count})
	case FormatFields:
		_, err = fmt.Fprintln(e.writer, strings.Join([]string{from, fc.Token, fmt.Sprint(fc.Count)}, e.separator))
	case FormatCSV:
		if e.csv == nil {
			return fmt.Errorf("csv export not started")
		}
		err = e.csv.Write([]string{from, fc.Token, fmt.Sprint(fc.Count)})
	default:
		_, err = fmt.Fprintf(e.writer, "%-20s -> %-20s %10d\n", from, fc.Token, fc.Count)
	}

	if err == nil {
		e.count++
	}
	return err
}

// exportWordText exports a word in text format (one line summary)
func (e *Exporter) exportWordText(w *model.Word) error {
	// Format: ID Token Total Start End Class
	_, err := fmt.Fprintf(e.writer, "%d\t%-20s\t%d\t%d\t%d\t%s\n",
		w.ID,
		w.Token,
		w.Total,
		w.Start,
		w.End,
		w.Class,
	)
	return err
}

// writeJSON writes one element of the JSON array
func (e *Exporter) writeJSON(v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}

	// Handle JSON array formatting
	if e.firstRow {
		e.firstRow = false
		_, err = fmt.Fprintf(e.writer, "  %s", data)
	} else {
		_, err = fmt.Fprintf(e.writer, ",\n  %s", data)
	}
	return err
}

// exportFields exports specific fields (for -T fields -e)
func (e *Exporter) exportFields(w *model.Word) error {
	values := make([]string, len(e.fields))

	for i, fieldName := range e.fields {
		values[i] = e.registry.ExtractString(fieldName, w)
	}

	_, err := fmt.Fprintln(e.writer, strings.Join(values, e.separator))
	return err
}

// exportCSV writes one csv record
func (e *Exporter) exportCSV(w *model.Word) error {
	if e.csv == nil {
		return fmt.Errorf("csv export not started")
	}
	record := make([]string, len(e.fields))
	for i, fieldName := range e.fields {
		record[i] = e.registry.ExtractString(fieldName, w)
	}
	return e.csv.Write(record)
}

// ExportFiles prints ingested files as a table
func ExportFiles(w io.Writer, files []*model.File) error {
	fmt.Fprintf(w, "%-6s %-10s %-12s %s\n", "ID", "Words", "Imported", "Path")
	fmt.Fprintln(w, strings.Repeat("-", 70))
	for _, f := range files {
		if _, err := fmt.Fprintf(w, "%-6d %-10d %-12s %s\n",
			f.ID, f.WordCount, f.DateImported.Format("2006-01-02"), f.Path); err != nil {
			return err
		}
	}
	return nil
}
