package pipeline

import (
	"regexp"
	"strconv"
	"strings"
	"time"

	"codeberg.org/mutker/hostmon/internal/connector"
	"codeberg.org/mutker/hostmon/internal/telemetry"
)

// Mapping functions.
const (
	FuncPercent2Ratio   = "percent2Ratio"
	FuncMegaHertz2Hertz = "megaHertz2Hertz"
	FuncMebiByte2Byte   = "mebiByte2Byte"
	FuncMegaBit2Bit     = "megaBit2Bit"
	FuncBoolean         = "boolean"
	FuncFakeCounter     = "fakeCounter"
	FuncRate            = "rate"
)

var (
	functionCall = regexp.MustCompile(`^(\w+)\((.*)\)$`)
	inlineRef    = regexp.MustCompile(`\$(\d+)`)
)

var scales = map[string]float64{
	FuncPercent2Ratio:   1,
	FuncMegaHertz2Hertz: 1e6,
	FuncMebiByte2Byte:   1 << 20,
	FuncMegaBit2Bit:     1e6,
}

// Mapper evaluates a job mapping against the rows of its source table.
type Mapper struct {
	Mapping *connector.Mapping
}

// Table returns the mapping's source table from ns.
func (m Mapper) Table(ns *telemetry.ConnectorNamespace) (*telemetry.SourceTable, bool) {
	if m.Mapping == nil {
		return nil, false
	}
	return ns.Table(connector.SourceRef(m.Mapping.Source))
}

// Attributes evaluates the attribute expressions on row. Attributes whose
// value cannot be resolved are left out.
func (m Mapper) Attributes(row []string) map[string]string {
	if m.Mapping == nil {
		return nil
	}
	return evaluateAll(m.Mapping.Attributes, row)
}

// ConditionalCollection evaluates the conditional collection flags on row.
func (m Mapper) ConditionalCollection(row []string) map[string]string {
	if m.Mapping == nil || m.Mapping.ConditionalCollection == nil {
		return nil
	}
	flags := make(map[string]string, len(m.Mapping.ConditionalCollection))
	for name, expr := range m.Mapping.ConditionalCollection {
		v, _ := Evaluate(expr, row)
		flags[name] = v
	}
	return flags
}

// Metrics evaluates the metric expressions on row for monitor mon at the
// collect time at. fakeCounter and rate keep their state in helper metrics
// of mon; a rate is absent until two samples exist.
func (m Mapper) Metrics(mon *telemetry.Monitor, row []string, at time.Time) map[string]string {
	if m.Mapping == nil {
		return nil
	}
	values := make(map[string]string, len(m.Mapping.Metrics))
	for name, expr := range m.Mapping.Metrics {
		fn, arg, isCall := parseCall(expr)
		var (
			v  string
			ok bool
		)
		switch {
		case isCall && fn == FuncFakeCounter:
			v, ok = fakeCounter(mon, name, arg, row, at)
		case isCall && fn == FuncRate:
			v, ok = rate(mon, name, arg, row, at)
		default:
			v, ok = Evaluate(expr, row)
		}
		if ok {
			values[name] = v
		}
	}
	return values
}

func evaluateAll(exprs map[string]string, row []string) map[string]string {
	out := make(map[string]string, len(exprs))
	for key, expr := range exprs {
		if v, ok := Evaluate(expr, row); ok {
			out[key] = v
		}
	}
	return out
}

func parseCall(expr string) (string, string, bool) {
	m := functionCall.FindStringSubmatch(strings.TrimSpace(expr))
	if m == nil {
		return "", "", false
	}
	return m[1], strings.TrimSpace(m[2]), true
}

// Evaluate resolves a mapping expression on row: a $n column reference, a
// literal with embedded $n references, or a unit function applied to one.
// A bare column reference outside the row is unresolved.
func Evaluate(expr string, row []string) (string, bool) {
	expr = strings.TrimSpace(expr)

	if fn, arg, ok := parseCall(expr); ok {
		if _, known := scales[fn]; known || fn == FuncBoolean {
			v, resolved := Evaluate(arg, row)
			if !resolved {
				return "", false
			}
			return applyFunction(fn, v)
		}
	}

	if m := columnRef.FindStringSubmatch(expr); m != nil {
		n, _ := strconv.Atoi(m[1])
		if n < 1 || n > len(row) {
			return "", false
		}
		return row[n-1], true
	}

	return inlineRef.ReplaceAllStringFunc(expr, func(ref string) string {
		n, _ := strconv.Atoi(ref[1:])
		if n < 1 || n > len(row) {
			return ""
		}
		return row[n-1]
	}), true
}

func applyFunction(fn, v string) (string, bool) {
	if fn == FuncBoolean {
		switch strings.ToLower(strings.TrimSpace(v)) {
		case "1", "true", "yes", "on", "ok":
			return "1", true
		case "":
			return "", false
		default:
			return "0", true
		}
	}
	f, err := telemetry.ParseNumber(v)
	if err != nil {
		return "", false
	}
	if fn == FuncPercent2Ratio {
		return formatNumber(f / 100), true
	}
	return formatNumber(f * scales[fn]), true
}

// fakeCounter integrates a rate column into a monotonic counter.
func fakeCounter(mon *telemetry.Monitor, name, arg string, row []string, at time.Time) (string, bool) {
	raw, ok := Evaluate(arg, row)
	if !ok {
		return "", false
	}
	perSecond, err := telemetry.ParseNumber(raw)
	if err != nil {
		return "", false
	}

	counter := mon.Helper("fakeCounter:" + name)
	total := 0.0
	if last := counter.CollectTime(); !last.IsZero() {
		elapsed := at.Sub(last).Seconds()
		if elapsed < 0 {
			return "", false
		}
		total = counter.Value() + perSecond*elapsed
	}
	counter.Update(total, at)
	return formatNumber(total), true
}

// rate differentiates a counter column per second.
func rate(mon *telemetry.Monitor, name, arg string, row []string, at time.Time) (string, bool) {
	raw, ok := Evaluate(arg, row)
	if !ok {
		return "", false
	}
	value, err := telemetry.ParseNumber(raw)
	if err != nil {
		return "", false
	}

	counter := mon.Helper("rate:" + name)
	counter.Update(value, at)

	previous, ok := counter.PreviousValue()
	if !ok {
		return "", false
	}
	elapsed := counter.CollectTime().Sub(counter.PreviousCollectTime()).Seconds()
	if elapsed <= 0 {
		return "", false
	}
	return formatNumber((value - previous) / elapsed), true
}

func formatNumber(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64)
}
