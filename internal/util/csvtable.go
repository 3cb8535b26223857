package util

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
)

// Table is a header-indexed CSV table.
type Table struct {
	columns map[string]int
	Rows    [][]string
}

// ReadTable reads a CSV document whose first record is the header. Column
// names are matched case-insensitively. A leading unnamed index column, as
// written by dataframe exports, is accepted.
func ReadTable(r io.Reader) (*Table, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("empty table")
		}
		return nil, fmt.Errorf("read header: %w", err)
	}

	t := &Table{columns: make(map[string]int, len(header))}
	for i, name := range header {
		name = strings.ToLower(strings.TrimSpace(strings.TrimPrefix(name, "\ufeff")))
		if name == "" {
			continue
		}
		t.columns[name] = i
	}

	for {
		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read record: %w", err)
		}
		t.Rows = append(t.Rows, record)
	}
	return t, nil
}

// Has reports whether the table has the named column.
func (t *Table) Has(column string) bool {
	_, ok := t.columns[column]
	return ok
}

// Require returns an error naming the first missing column.
func (t *Table) Require(columns ...string) error {
	for _, c := range columns {
		if !t.Has(c) {
			return fmt.Errorf("missing column %q", c)
		}
	}
	return nil
}

// String returns the trimmed value of column in row, or "" if absent.
func (t *Table) String(row int, column string) string {
	i, ok := t.columns[column]
	if !ok || i >= len(t.Rows[row]) {
		return ""
	}
	return strings.TrimSpace(t.Rows[row][i])
}

// Float parses column in row as a float.
func (t *Table) Float(row int, column string) (float64, error) {
	s := t.String(row, column)
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, fmt.Errorf("column %s: invalid number %q", column, s)
	}
	return v, nil
}

// Int parses column in row as an integer. Integral floats such as "7.0" are
// accepted since dataframe exports write them for nullable columns.
func (t *Table) Int(row int, column string) (int64, error) {
	s := t.String(row, column)
	if v, err := strconv.ParseInt(s, 10, 64); err == nil {
		return v, nil
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil || f != float64(int64(f)) {
		return 0, fmt.Errorf("column %s: invalid integer %q", column, s)
	}
	return int64(f), nil
}
