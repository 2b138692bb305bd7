package emit

import (
	"bytes"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/FranksOps/farescout/internal/listing"
	"github.com/jedib0t/go-pretty/v6/table"
)

// Format is an output serialization.
type Format string

const (
	HTML Format = "html"
	CSV  Format = "csv"
	JSON Format = "json"
)

// Formats lists the supported formats.
var Formats = []Format{HTML, CSV, JSON}

// UnsupportedFormatError is returned for a format outside Formats.
type UnsupportedFormatError struct {
	Format string
}

func (e *UnsupportedFormatError) Error() string {
	return fmt.Sprintf("unsupported output format %q (want html, csv or json)", e.Format)
}

// ParseFormat maps a name (case-insensitive, optional leading dot) to a Format.
func ParseFormat(s string) (Format, error) {
	f := Format(strings.TrimPrefix(strings.ToLower(strings.TrimSpace(s)), "."))
	if !f.valid() {
		return "", &UnsupportedFormatError{Format: s}
	}
	return f, nil
}

func (f Format) valid() bool {
	switch f {
	case HTML, CSV, JSON:
		return true
	}
	return false
}

// Ext returns the file extension without the dot.
func (f Format) Ext() string { return string(f) }

// Emitter writes result sets to files in Dir.
type Emitter struct {
	Dir    string
	Logger *slog.Logger
}

// Emit writes rs to <Dir>/<label>.<ext> and returns the path. Nothing is
// written for an unsupported format, and a failed write leaves no file.
func (e *Emitter) Emit(rs *listing.ResultSet, format Format, label string) (string, error) {
	if !format.valid() {
		return "", &UnsupportedFormatError{Format: string(format)}
	}
	if label == "" {
		label = "results"
	}

	data, err := Render(rs, format)
	if err != nil {
		return "", err
	}

	dir := e.Dir
	if dir == "" {
		dir = "."
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create output dir: %w", err)
	}

	path := filepath.Join(dir, label+"."+format.Ext())
	if err := writeAtomic(path, data); err != nil {
		return "", err
	}

	logger := e.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger.Info("wrote results", "path", path, "format", string(format), "rows", rs.Len())
	return path, nil
}

// Render serializes rs as a table in the given format.
func Render(rs *listing.ResultSet, format Format) ([]byte, error) {
	rows := rs.Listings()
	switch format {
	case HTML:
		return []byte(prettyTable(rows).RenderHTML() + "\n"), nil
	case CSV:
		return []byte(prettyTable(rows).RenderCSV() + "\n"), nil
	case JSON:
		return columnJSON(rows)
	}
	return nil, &UnsupportedFormatError{Format: string(format)}
}

// prettyTable lays the listings out like a data frame: a leading row index
// followed by the schema columns.
func prettyTable(rows []listing.Listing) table.Writer {
	t := table.NewWriter()

	header := table.Row{""}
	for _, name := range listing.ColumnNames() {
		header = append(header, name)
	}
	t.AppendHeader(header)

	for i, l := range rows {
		row := table.Row{i}
		for _, c := range listing.Columns {
			row = append(row, c.Value(l))
		}
		t.AppendRow(row)
	}
	return t
}

// columnJSON encodes {"column": {"rowIndex": value, ...}, ...} with columns in
// schema order and rows in result order.
func columnJSON(rows []listing.Listing) ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for ci, c := range listing.Columns {
		if ci > 0 {
			buf.WriteByte(',')
		}
		name, _ := json.Marshal(c.Name)
		buf.Write(name)
		buf.WriteString(":{")
		for ri, l := range rows {
			if ri > 0 {
				buf.WriteByte(',')
			}
			buf.WriteString(strconv.Quote(strconv.Itoa(ri)))
			buf.WriteByte(':')
			v, err := json.Marshal(c.Value(l))
			if err != nil {
				return nil, fmt.Errorf("encode %s of row %d: %w", c.Name, ri, err)
			}
			buf.Write(v)
		}
		buf.WriteByte('}')
	}
	buf.WriteString("}\n")
	return buf.Bytes(), nil
}

func writeAtomic(path string, data []byte) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".*")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("write %s: %w", path, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close %s: %w", path, err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("rename to %s: %w", path, err)
	}
	return nil
}
