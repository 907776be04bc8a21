package pipeline

import (
	"math"
	"regexp"
	"strconv"
	"strings"

	"codeberg.org/mutker/hostmon/internal/connector"
	"codeberg.org/mutker/hostmon/internal/errors"
	"codeberg.org/mutker/hostmon/internal/telemetry"
)

var columnRef = regexp.MustCompile(`^\$(\d+)$`)

// Apply runs one compute on a copy of in. Rows too short for the compute's
// column are left unchanged.
func Apply(c connector.Compute, in *telemetry.SourceTable) (*telemetry.SourceTable, error) {
	t := in.Clone()
	if t == nil {
		t = telemetry.EmptyTable()
	}

	switch c := c.(type) {
	case *connector.LineFilter:
		return filterLines(c, t)
	case *connector.KeepColumns:
		columns, err := parseColumns(c.ColumnNumbers)
		if err != nil {
			return nil, err
		}
		for i, row := range t.Table {
			t.Table[i] = selectColumns(row, columns)
		}
		return t, nil
	case *connector.DuplicateColumn:
		if err := checkColumn(c.Column); err != nil {
			return nil, err
		}
		for i, row := range t.Table {
			if c.Column > len(row) {
				continue
			}
			dup := make([]string, 0, len(row)+1)
			dup = append(dup, row[:c.Column]...)
			dup = append(dup, row[c.Column-1])
			t.Table[i] = append(dup, row[c.Column:]...)
		}
		return t, nil
	case *connector.Concat:
		return eachCell(t, c.Column, func(cell string, row []string) (string, error) {
			value := operand(c.Value, row)
			if c.Right {
				return cell + value, nil
			}
			return value + cell, nil
		})
	case *connector.Arithmetic:
		return eachCell(t, c.Column, func(cell string, row []string) (string, error) {
			return arithmetic(c.Operation, cell, operand(c.Value, row)), nil
		})
	case *connector.Replace:
		return eachCell(t, c.Column, func(cell string, row []string) (string, error) {
			existing := operand(c.ExistingValue, row)
			if existing == "" {
				return cell, nil
			}
			return strings.ReplaceAll(cell, existing, operand(c.NewValue, row)), nil
		})
	case *connector.Translate:
		table := make(map[string]string, len(c.TranslationTable))
		for k, v := range c.TranslationTable {
			table[strings.ToLower(k)] = v
		}
		return eachCell(t, c.Column, func(cell string, _ []string) (string, error) {
			if v, ok := table[strings.ToLower(strings.TrimSpace(cell))]; ok {
				return v, nil
			}
			if c.DefaultValue != "" {
				return c.DefaultValue, nil
			}
			return cell, nil
		})
	case *connector.Extract:
		separators := c.SubSeparators
		if separators == "" {
			separators = " "
		}
		return eachCell(t, c.Column, func(cell string, _ []string) (string, error) {
			parts := strings.FieldsFunc(cell, func(r rune) bool {
				return strings.ContainsRune(separators, r)
			})
			if c.SubColumn < 1 || c.SubColumn > len(parts) {
				return "", nil
			}
			return parts[c.SubColumn-1], nil
		})
	case *connector.Substring:
		return eachCell(t, c.Column, func(cell string, _ []string) (string, error) {
			return substring(cell, c.Start, c.Length), nil
		})
	case *connector.Convert:
		return eachCell(t, c.Column, func(cell string, _ []string) (string, error) {
			return convert(c.ConversionType, cell)
		})
	case *connector.And:
		return eachCell(t, c.Column, func(cell string, row []string) (string, error) {
			a, errA := strconv.ParseInt(strings.TrimSpace(cell), 10, 64)
			b, errB := strconv.ParseInt(strings.TrimSpace(operand(c.Value, row)), 10, 64)
			if errA != nil || errB != nil {
				return cell, nil
			}
			return strconv.FormatInt(a&b, 10), nil
		})
	default:
		return nil, errors.New().WithData(ErrUnknownCompute, c.Kind())
	}
}

func checkColumn(column int) error {
	if column < 1 {
		return errors.New().WithData(ErrInvalidColumn, column)
	}
	return nil
}

// eachCell replaces the given 1-based column of every row with fn's result.
func eachCell(t *telemetry.SourceTable, column int, fn func(cell string, row []string) (string, error)) (*telemetry.SourceTable, error) {
	if err := checkColumn(column); err != nil {
		return nil, err
	}
	for _, row := range t.Table {
		if column > len(row) {
			continue
		}
		v, err := fn(row[column-1], row)
		if err != nil {
			return nil, err
		}
		row[column-1] = v
	}
	return t, nil
}

// operand resolves a $n reference against row, or returns value as is.
func operand(value string, row []string) string {
	if m := columnRef.FindStringSubmatch(strings.TrimSpace(value)); m != nil {
		n, _ := strconv.Atoi(m[1])
		if n >= 1 && n <= len(row) {
			return row[n-1]
		}
		return ""
	}
	return value
}

func filterLines(f *connector.LineFilter, t *telemetry.SourceTable) (*telemetry.SourceTable, error) {
	if err := checkColumn(f.Column); err != nil {
		return nil, err
	}
	var re *regexp.Regexp
	if f.RegExp != "" {
		var err error
		if re, err = compilePattern(f.RegExp); err != nil {
			return nil, err
		}
	}
	values := make(map[string]bool)
	for _, v := range splitList(f.ValueList) {
		values[strings.ToLower(v)] = true
	}

	kept := make([][]string, 0, len(t.Table))
	for _, row := range t.Table {
		var cell string
		if f.Column <= len(row) {
			cell = row[f.Column-1]
		}
		match := true
		if re != nil && !re.MatchString(cell) {
			match = false
		}
		if len(values) > 0 && !values[strings.ToLower(strings.TrimSpace(cell))] {
			match = false
		}
		if match != f.Exclude {
			kept = append(kept, row)
		}
	}
	t.Table = kept
	return t, nil
}

func arithmetic(op, cell, value string) string {
	a, errA := strconv.ParseFloat(strings.TrimSpace(cell), 64)
	b, errB := strconv.ParseFloat(strings.TrimSpace(value), 64)
	if errA != nil || errB != nil {
		return cell
	}

	var r float64
	switch op {
	case connector.KindAdd:
		r = a + b
	case connector.KindSubtract:
		r = a - b
	case connector.KindMultiply:
		r = a * b
	case connector.KindDivide:
		if b == 0 {
			return cell
		}
		r = a / b
	default:
		return cell
	}
	if math.IsInf(r, 0) || math.IsNaN(r) {
		return cell
	}
	return strconv.FormatFloat(r, 'f', -1, 64)
}

func substring(s string, start, length int) string {
	runes := []rune(s)
	if start < 1 {
		start = 1
	}
	if start > len(runes) {
		return ""
	}
	end := len(runes)
	if length > 0 && start-1+length < end {
		end = start - 1 + length
	}
	return string(runes[start-1 : end])
}

func convert(conversion, cell string) (string, error) {
	switch conversion {
	case connector.ConversionHex2Dec:
		hex := strings.NewReplacer("0x", "", "0X", "", ":", "", " ", "", "-", "").Replace(cell)
		if hex == "" {
			return "", nil
		}
		v, err := strconv.ParseUint(hex, 16, 64)
		if err != nil {
			return "", errors.New().Wrap(ErrInvalidValue, err).WithData(cell)
		}
		return strconv.FormatUint(v, 10), nil
	case connector.ConversionArray2Simple:
		trimmed := strings.Trim(strings.TrimSpace(cell), "[]{}()")
		parts := strings.FieldsFunc(trimmed, func(r rune) bool { return r == ',' || r == '|' })
		for i := range parts {
			parts[i] = strings.TrimSpace(parts[i])
		}
		return strings.Join(parts, "|"), nil
	default:
		return "", errors.New().WithData(ErrInvalidValue, conversion)
	}
}
