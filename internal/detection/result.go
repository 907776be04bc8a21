package detection

import (
	"fmt"
	"strings"

	"codeberg.org/mutker/hostmon/internal/connector"
)

// CriterionTestResult is the outcome of one criterion.
type CriterionTestResult struct {
	Criterion connector.Criterion
	Success   bool
	// Result is the raw answer the criterion was judged on.
	Result  string
	Message string
	Err     error
}

// ConnectorTestResult aggregates every criterion of one connector test.
type ConnectorTestResult struct {
	ConnectorID string
	ResourceID  string
	Success     bool
	Criteria    []CriterionTestResult
}

// StatusValue is the connector status metric: 1 on match, 0 otherwise.
func (r ConnectorTestResult) StatusValue() float64 {
	if r.Success {
		return 1
	}
	return 0
}

// Report renders every criterion result followed by the verdict.
func (r ConnectorTestResult) Report() string {
	var b strings.Builder
	for i, c := range r.Criteria {
		kind := "unknown"
		if c.Criterion != nil {
			kind = c.Criterion.Kind()
		}
		fmt.Fprintf(&b, "Criterion %d (%s): %s\n", i+1, kind, verdict(c.Success))
		if c.Result != "" {
			fmt.Fprintf(&b, "  Result: %s\n", strings.TrimSpace(c.Result))
		}
		if c.Message != "" {
			fmt.Fprintf(&b, "  Message: %s\n", c.Message)
		}
	}
	if len(r.Criteria) == 0 {
		b.WriteString("No detection criteria\n")
	}

	conclusion := "does not match"
	if r.Success {
		conclusion = "matches"
	}
	fmt.Fprintf(&b, "Conclusion: connector %s %s resource %s", r.ConnectorID, conclusion, r.ResourceID)
	return b.String()
}

func verdict(ok bool) string {
	if ok {
		return "success"
	}
	return "failure"
}
