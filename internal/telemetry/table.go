package telemetry

import "strings"

const (
	// TableSeparator separates cells in the text form of a table.
	TableSeparator = ";"
	rowSeparator   = "\n"
)

// SourceTable is the result of one source: ordered rows of ordered cells,
// the optional raw text the rows were parsed from, and optional headers.
type SourceTable struct {
	RawData string
	Table   [][]string
	Headers []string
}

// NewTable returns a table holding rows.
func NewTable(rows ...[]string) *SourceTable {
	if rows == nil {
		rows = [][]string{}
	}
	return &SourceTable{Table: rows}
}

// EmptyTable is the default result of failed or abandoned operations.
func EmptyTable() *SourceTable {
	return NewTable()
}

// ParseTable splits text into rows on newlines and cells on separator.
// Blank lines are dropped.
func ParseTable(text, separator string) *SourceTable {
	if separator == "" {
		separator = TableSeparator
	}
	t := &SourceTable{RawData: text, Table: [][]string{}}
	for _, line := range strings.Split(text, rowSeparator) {
		line = strings.TrimRight(line, "\r")
		if strings.TrimSpace(line) == "" {
			continue
		}
		t.Table = append(t.Table, strings.Split(strings.TrimSuffix(line, separator), separator))
	}
	return t
}

// IsEmpty reports whether the table has no rows.
func (t *SourceTable) IsEmpty() bool {
	return t == nil || len(t.Table) == 0
}

// Len returns the number of rows.
func (t *SourceTable) Len() int {
	if t == nil {
		return 0
	}
	return len(t.Table)
}

// Clone deep-copies the table so cached tables are never mutated.
func (t *SourceTable) Clone() *SourceTable {
	if t == nil {
		return nil
	}
	rows := make([][]string, len(t.Table))
	for i, row := range t.Table {
		rows[i] = append([]string(nil), row...)
	}
	return &SourceTable{
		RawData: t.RawData,
		Table:   rows,
		Headers: append([]string(nil), t.Headers...),
	}
}

// String renders the table in its semicolon-separated text form.
func (t *SourceTable) String() string {
	if t == nil {
		return ""
	}
	var b strings.Builder
	for _, row := range t.Table {
		b.WriteString(strings.Join(row, TableSeparator))
		b.WriteString(TableSeparator)
		b.WriteString(rowSeparator)
	}
	return b.String()
}
