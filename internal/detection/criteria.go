package detection

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"codeberg.org/mutker/hostmon/internal/config"
	"codeberg.org/mutker/hostmon/internal/connector"
	"codeberg.org/mutker/hostmon/internal/errors"
	"codeberg.org/mutker/hostmon/internal/gpu"
	"codeberg.org/mutker/hostmon/internal/protocol"
)

func (e *Engine) process(ctx context.Context, c connector.Criterion, resource *config.Resource) CriterionTestResult {
	switch c := c.(type) {
	case *connector.SNMPGetCriterion:
		return e.snmpGet(ctx, c, resource)
	case *connector.SNMPGetNextCriterion:
		return e.snmpGetNext(ctx, c, resource)
	case *connector.HTTPCriterion:
		return e.http(ctx, c, resource)
	case *connector.CommandLineCriterion:
		return e.commandLine(ctx, c, resource)
	case *connector.QueryCriterion:
		return e.query(ctx, c, resource)
	case *connector.IPMICriterion:
		return e.ipmi(ctx, c, resource)
	case *connector.NVMLCriterion:
		return e.nvml(ctx, c, resource)
	case *connector.DeviceTypeCriterion:
		return deviceType(c, resource)
	case *connector.ProcessCriterion:
		return e.processCriterion(ctx, c, resource)
	default:
		err := errors.New().WithData(ErrUnknownCriterion, c.Kind())
		return failure(c, "", err)
	}
}

func (e *Engine) execute(ctx context.Context, resource *config.Resource, q protocol.Query) (protocol.Result, error) {
	if !e.Executor.Supports(resource, q.Protocol) {
		return protocol.Result{}, errors.New().WithData(protocol.ErrNotConfigured, q.Protocol+" on "+resource.ID)
	}
	return e.Executor.Execute(ctx, resource, q)
}

func (e *Engine) snmpGet(ctx context.Context, c *connector.SNMPGetCriterion, resource *config.Resource) CriterionTestResult {
	res, err := e.execute(ctx, resource, protocol.Query{Protocol: protocol.SNMP, Operation: protocol.OpGet, Text: c.OID})
	if err != nil {
		return failure(c, "", err)
	}

	value := firstCell(res)
	if c.ExpectedResult == "" {
		if value == "" {
			return failed(c, value, fmt.Sprintf("SNMP get of %s returned an empty value", c.OID))
		}
		return passed(c, value, fmt.Sprintf("SNMP get of %s returned a value", c.OID))
	}
	return expect(c, value, c.ExpectedResult, "SNMP get of "+c.OID)
}

// snmpGetNext passes when the next OID lies under the probed one and, if an
// expectation is set, its value matches.
func (e *Engine) snmpGetNext(ctx context.Context, c *connector.SNMPGetNextCriterion, resource *config.Resource) CriterionTestResult {
	res, err := e.execute(ctx, resource, protocol.Query{Protocol: protocol.SNMP, Operation: protocol.OpGetNext, Text: c.OID})
	if err != nil {
		return failure(c, "", err)
	}

	var oid, value string
	if len(res.Rows) > 0 && len(res.Rows[0]) > 0 {
		oid = res.Rows[0][0]
		if len(res.Rows[0]) > 1 {
			value = res.Rows[0][1]
		}
	}
	raw := oid + " " + value
	probed := strings.TrimPrefix(c.OID, ".")
	if !strings.HasPrefix(strings.TrimPrefix(oid, "."), probed) {
		return failed(c, raw, fmt.Sprintf("SNMP getNext of %s left the OID tree", c.OID))
	}
	if c.ExpectedResult == "" {
		return passed(c, raw, fmt.Sprintf("SNMP getNext of %s returned %s", c.OID, oid))
	}
	return expect(c, value, c.ExpectedResult, "SNMP getNext of "+c.OID)
}

func (e *Engine) http(ctx context.Context, c *connector.HTTPCriterion, resource *config.Resource) CriterionTestResult {
	method := c.Method
	if method == "" {
		method = "GET"
	}
	res, err := e.execute(ctx, resource, protocol.Query{
		Protocol:  protocol.HTTP,
		Operation: protocol.OpRequest,
		Method:    method,
		Text:      c.Path,
		Header:    c.Header,
		Body:      c.Body,
	})
	if err != nil {
		return failure(c, "", withMessage(err, c.ErrorMessage))
	}
	if c.ExpectedResult == "" {
		return passed(c, res.Raw, fmt.Sprintf("HTTP %s %s succeeded", method, c.Path))
	}
	return expect(c, res.Raw, c.ExpectedResult, "HTTP "+method+" "+c.Path)
}

func (e *Engine) commandLine(ctx context.Context, c *connector.CommandLineCriterion, resource *config.Resource) CriterionTestResult {
	proto := protocol.CommandProtocol(resource, c.ExecuteLocally)
	res, err := e.execute(ctx, resource, protocol.Query{
		Protocol:  proto,
		Operation: protocol.OpCommand,
		Text:      c.CommandLine,
	})
	if err != nil {
		return failure(c, "", withMessage(err, c.ErrorMessage))
	}
	if c.ExpectedResult == "" {
		return passed(c, res.Raw, "Command line executed")
	}
	return expect(c, res.Raw, c.ExpectedResult, "Command line")
}

func (e *Engine) query(ctx context.Context, c *connector.QueryCriterion, resource *config.Resource) CriterionTestResult {
	namespace := c.Namespace
	if namespace == "" {
		if cfg, ok := resource.Protocol(c.Protocol); ok {
			namespace = cfg.Namespace
		}
	}
	res, err := e.execute(ctx, resource, protocol.Query{
		Protocol:  c.Protocol,
		Operation: protocol.OpQuery,
		Text:      c.Query,
		Namespace: namespace,
	})
	if err != nil {
		return failure(c, "", withMessage(err, c.ErrorMessage))
	}

	raw := rowsText(res.Rows)
	if len(res.Rows) == 0 {
		return failed(c, raw, fmt.Sprintf("%s query returned no rows", c.Protocol))
	}
	if c.ExpectedResult == "" {
		return passed(c, raw, fmt.Sprintf("%s query returned %d rows", c.Protocol, len(res.Rows)))
	}
	return expect(c, raw, c.ExpectedResult, c.Protocol+" query")
}

func (e *Engine) ipmi(ctx context.Context, c *connector.IPMICriterion, resource *config.Resource) CriterionTestResult {
	res, err := e.execute(ctx, resource, protocol.Query{Protocol: protocol.IPMI, Operation: protocol.OpGet})
	if err != nil {
		return failure(c, "", err)
	}
	return passed(c, res.Raw, "IPMI responded")
}

func (e *Engine) nvml(ctx context.Context, c *connector.NVMLCriterion, resource *config.Resource) CriterionTestResult {
	res, err := e.execute(ctx, resource, protocol.Query{Protocol: protocol.NVML, Operation: protocol.OpQuery, Text: gpu.QueryCount})
	if err != nil {
		return failure(c, "", err)
	}
	count := firstCell(res)
	if count == "" || count == "0" {
		return failed(c, count, "NVML reports no GPU")
	}
	return passed(c, count, "NVML reports "+count+" GPU(s)")
}

func deviceType(c *connector.DeviceTypeCriterion, resource *config.Resource) CriterionTestResult {
	kind := resource.DeviceKind
	for _, excluded := range c.Exclude {
		if strings.EqualFold(excluded, kind) {
			return failed(c, kind, "Device kind "+kind+" is excluded")
		}
	}
	if len(c.Keep) == 0 {
		return passed(c, kind, "Device kind "+kind+" is not excluded")
	}
	for _, kept := range c.Keep {
		if strings.EqualFold(kept, kind) {
			return passed(c, kind, "Device kind "+kind+" is accepted")
		}
	}
	return failed(c, kind, "Device kind "+kind+" is not accepted")
}

// processCriterion can only inspect the local machine; on a remote
// resource it is skipped and counts as passed.
func (e *Engine) processCriterion(ctx context.Context, c *connector.ProcessCriterion, resource *config.Resource) CriterionTestResult {
	if !resource.IsLocalhost() {
		return passed(c, "", "Process criterion skipped on remote resource")
	}

	re, err := compile(c.CommandLine)
	if err != nil {
		return failure(c, "", err)
	}
	lister := e.Processes
	if lister == nil {
		lister = SystemProcesses{}
	}
	lines, err := lister.CommandLines(ctx)
	if err != nil {
		return failure(c, "", err)
	}
	for _, line := range lines {
		if re.MatchString(line) {
			return passed(c, line, "Found a process matching "+c.CommandLine)
		}
	}
	return failed(c, "", "No process matches "+c.CommandLine)
}

// expect matches raw against the case-insensitive regular expression
// expected.
func expect(c connector.Criterion, raw, expected, what string) CriterionTestResult {
	re, err := compile(expected)
	if err != nil {
		return failure(c, raw, err)
	}
	if !re.MatchString(raw) {
		return failed(c, raw, fmt.Sprintf("%s did not match %q", what, expected))
	}
	return passed(c, raw, fmt.Sprintf("%s matched %q", what, expected))
}

func compile(expr string) (*regexp.Regexp, error) {
	re, err := regexp.Compile("(?is)" + expr)
	if err != nil {
		return nil, errors.New().Wrap(ErrInvalidExpectation, err).WithData(expr)
	}
	return re, nil
}

func passed(c connector.Criterion, raw, msg string) CriterionTestResult {
	return CriterionTestResult{Criterion: c, Success: true, Result: raw, Message: "Successful: " + msg}
}

func failed(c connector.Criterion, raw, msg string) CriterionTestResult {
	return CriterionTestResult{Criterion: c, Result: raw, Message: "Failed: " + msg}
}

func failure(c connector.Criterion, raw string, err error) CriterionTestResult {
	r := failed(c, raw, err.Error())
	r.Err = err
	return r
}

func withMessage(err error, msg string) error {
	if msg == "" {
		return err
	}
	return fmt.Errorf("%s: %w", msg, err)
}

func firstCell(res protocol.Result) string {
	if len(res.Rows) > 0 && len(res.Rows[0]) > 0 {
		return res.Rows[0][0]
	}
	return strings.TrimSpace(res.Raw)
}

func rowsText(rows [][]string) string {
	lines := make([]string, 0, len(rows))
	for _, row := range rows {
		lines = append(lines, strings.Join(row, ";"))
	}
	return strings.Join(lines, "\n")
}
