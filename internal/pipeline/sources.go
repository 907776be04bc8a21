package pipeline

import (
	"context"
	"regexp"
	"strconv"
	"strings"

	"codeberg.org/mutker/hostmon/internal/connector"
	"codeberg.org/mutker/hostmon/internal/errors"
	"codeberg.org/mutker/hostmon/internal/gpu"
	"codeberg.org/mutker/hostmon/internal/protocol"
	"codeberg.org/mutker/hostmon/internal/telemetry"
)

// execute produces the raw table of one source. Protocol failures yield an
// empty table so the previous cycle's table is not reused; a nil table
// means the source had nothing to work from.
func (r *Runner) execute(ctx context.Context, src connector.Source, ns *telemetry.ConnectorNamespace, mc MonitorContext) *telemetry.SourceTable {
	switch s := src.(type) {
	case *connector.SNMPGetSource:
		return r.query(ctx, mc, protocol.Query{Protocol: protocol.SNMP, Operation: protocol.OpGet, Text: s.OID})
	case *connector.SNMPTableSource:
		return r.query(ctx, mc, protocol.Query{
			Protocol:  protocol.SNMP,
			Operation: protocol.OpTable,
			Text:      s.OID,
			Columns:   splitList(s.SelectColumns),
		})
	case *connector.HTTPSource:
		method := s.Method
		if method == "" {
			method = "GET"
		}
		return r.query(ctx, mc, protocol.Query{
			Protocol:  protocol.HTTP,
			Operation: protocol.OpRequest,
			Method:    method,
			Text:      s.Path,
			Header:    s.Header,
			Body:      s.Body,
		})
	case *connector.CommandLineSource:
		return r.commandLine(ctx, s, mc)
	case *connector.QuerySource:
		namespace := s.Namespace
		if namespace == "" {
			if cfg, ok := mc.Resource.Protocol(s.Protocol); ok {
				namespace = cfg.Namespace
			}
		}
		return r.query(ctx, mc, protocol.Query{
			Protocol:  s.Protocol,
			Operation: protocol.OpQuery,
			Text:      s.Query,
			Namespace: namespace,
		})
	case *connector.IPMISource:
		return r.query(ctx, mc, protocol.Query{Protocol: protocol.IPMI, Operation: protocol.OpTable})
	case *connector.NVMLSource:
		query := s.Query
		if query == "" {
			query = gpu.QueryDevices
		}
		return r.query(ctx, mc, protocol.Query{Protocol: protocol.NVML, Operation: protocol.OpQuery, Text: query})
	case *connector.TableJoinSource:
		return tableJoin(s, ns, mc)
	case *connector.TableUnionSource:
		return tableUnion(s, ns, mc)
	case *connector.CopySource:
		from, ok := lookup(ns, s.From, mc)
		if !ok {
			return nil
		}
		return from.Clone()
	case *connector.StaticSource:
		return telemetry.ParseTable(s.Value, telemetry.TableSeparator)
	default:
		mc.Log.Debug().Err(errors.New().WithData(ErrUnknownSource, src.Kind())).Msg("Source skipped")
		return nil
	}
}

func (r *Runner) query(ctx context.Context, mc MonitorContext, q protocol.Query) *telemetry.SourceTable {
	res, err := r.Executor.Execute(ctx, mc.Resource, q)
	if err != nil {
		mc.Log.Debug().Err(err).
			Str("connector", mc.ConnectorID).
			Str("query", q.String()).
			Msg("Source query failed")
		return telemetry.EmptyTable()
	}
	return resultTable(res)
}

func resultTable(res protocol.Result) *telemetry.SourceTable {
	if res.Rows == nil {
		return telemetry.ParseTable(res.Raw, telemetry.TableSeparator)
	}
	t := telemetry.NewTable(res.Rows...)
	t.RawData = res.Raw
	return t
}

func (r *Runner) commandLine(ctx context.Context, s *connector.CommandLineSource, mc MonitorContext) *telemetry.SourceTable {
	res, err := r.Executor.Execute(ctx, mc.Resource, protocol.Query{
		Protocol:  protocol.CommandProtocol(mc.Resource, s.ExecuteLocally),
		Operation: protocol.OpCommand,
		Text:      s.CommandLine,
	})
	if err != nil {
		mc.Log.Debug().Err(err).Str("connector", mc.ConnectorID).Msg("Command line source failed")
		return telemetry.EmptyTable()
	}

	table, err := parseCommandOutput(res.Raw, s)
	if err != nil {
		mc.Log.Debug().Err(err).Str("connector", mc.ConnectorID).Msg("Command line output rejected")
		return telemetry.EmptyTable()
	}
	return table
}

// parseCommandOutput keeps the lines between the 1-based begin and end line
// numbers, filters them with the keep and exclude expressions, splits them
// on any of the separator characters and selects columns.
func parseCommandOutput(raw string, s *connector.CommandLineSource) (*telemetry.SourceTable, error) {
	var keep, exclude *regexp.Regexp
	var err error
	if s.Keep != "" {
		if keep, err = compilePattern(s.Keep); err != nil {
			return nil, err
		}
	}
	if s.Exclude != "" {
		if exclude, err = compilePattern(s.Exclude); err != nil {
			return nil, err
		}
	}
	columns, err := parseColumns(s.SelectColumns)
	if err != nil {
		return nil, err
	}

	table := &telemetry.SourceTable{RawData: raw, Table: [][]string{}}
	lines := strings.Split(strings.ReplaceAll(raw, "\r\n", "\n"), "\n")
	for i, line := range lines {
		n := i + 1
		if s.BeginAtLineNumber > 0 && n < s.BeginAtLineNumber {
			continue
		}
		if s.EndAtLineNumber > 0 && n > s.EndAtLineNumber {
			break
		}
		if strings.TrimSpace(line) == "" {
			continue
		}
		if keep != nil && !keep.MatchString(line) {
			continue
		}
		if exclude != nil && exclude.MatchString(line) {
			continue
		}

		cells := []string{line}
		if s.Separators != "" {
			cells = strings.FieldsFunc(line, func(r rune) bool {
				return strings.ContainsRune(s.Separators, r)
			})
		}
		if len(columns) > 0 {
			cells = selectColumns(cells, columns)
		}
		table.Table = append(table.Table, cells)
	}
	return table, nil
}

func tableJoin(s *connector.TableJoinSource, ns *telemetry.ConnectorNamespace, mc MonitorContext) *telemetry.SourceTable {
	left, ok := lookup(ns, s.LeftTable, mc)
	if !ok {
		return nil
	}
	right, ok := lookup(ns, s.RightTable, mc)
	if !ok {
		return nil
	}
	lk, rk := max(s.LeftKeyColumn, 1), max(s.RightKeyColumn, 1)

	var defaultRight []string
	if s.DefaultRightLine != "" {
		defaultRight = strings.Split(strings.TrimSuffix(s.DefaultRightLine, telemetry.TableSeparator), telemetry.TableSeparator)
	}

	joined := telemetry.EmptyTable()
	for _, l := range left.Table {
		if len(l) < lk {
			continue
		}
		found := false
		for _, r := range right.Table {
			if len(r) >= rk && strings.EqualFold(l[lk-1], r[rk-1]) {
				joined.Table = append(joined.Table, concatRows(l, r))
				found = true
			}
		}
		if !found && defaultRight != nil {
			joined.Table = append(joined.Table, concatRows(l, defaultRight))
		}
	}
	return joined
}

func tableUnion(s *connector.TableUnionSource, ns *telemetry.ConnectorNamespace, mc MonitorContext) *telemetry.SourceTable {
	union := telemetry.EmptyTable()
	found := false
	for _, ref := range s.Tables {
		t, ok := lookup(ns, ref, mc)
		if !ok {
			continue
		}
		found = true
		union.Table = append(union.Table, t.Clone().Table...)
	}
	if !found {
		return nil
	}
	return union
}

func lookup(ns *telemetry.ConnectorNamespace, ref string, mc MonitorContext) (*telemetry.SourceTable, bool) {
	key := connector.SourceRef(ref)
	t, ok := ns.Table(key)
	if !ok {
		mc.Log.Debug().Err(errors.New().WithData(ErrMissingTable, key)).Str("connector", mc.ConnectorID).Msg("Table reference unresolved")
	}
	return t, ok
}

func concatRows(a, b []string) []string {
	row := make([]string, 0, len(a)+len(b))
	row = append(row, a...)
	return append(row, b...)
}

func splitList(list string) []string {
	var out []string
	for _, item := range strings.Split(list, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}

// parseColumns reads a 1-based column selection such as "1,3-5".
func parseColumns(list string) ([]int, error) {
	errFactory := errors.New()
	var columns []int
	for _, item := range splitList(list) {
		from, to, isRange := strings.Cut(item, "-")
		start, err := strconv.Atoi(strings.TrimSpace(from))
		if err != nil || start < 1 {
			return nil, errFactory.WithData(ErrInvalidColumn, item)
		}
		end := start
		if isRange {
			if end, err = strconv.Atoi(strings.TrimSpace(to)); err != nil || end < start {
				return nil, errFactory.WithData(ErrInvalidColumn, item)
			}
		}
		for c := start; c <= end; c++ {
			columns = append(columns, c)
		}
	}
	return columns, nil
}

func selectColumns(cells []string, columns []int) []string {
	out := make([]string, len(columns))
	for i, c := range columns {
		if c <= len(cells) {
			out[i] = cells[c-1]
		}
	}
	return out
}

func compilePattern(expr string) (*regexp.Regexp, error) {
	re, err := regexp.Compile("(?i)" + expr)
	if err != nil {
		return nil, errors.New().Wrap(ErrInvalidPattern, err).WithData(expr)
	}
	return re, nil
}
