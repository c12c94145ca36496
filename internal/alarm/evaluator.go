package alarm

import (
	"context"
	"fmt"
	"strings"

	"grepwise/internal/index"
	"grepwise/internal/logentry"
)

// Executor is the subset of query.Executor the evaluator needs, narrowed so
// tests can substitute a fake without wiring a full index/partition stack.
type Executor interface {
	Execute(ctx context.Context, queryText string, opts ExecOptions) (ExecResult, error)
}

// ExecOptions and ExecResult mirror query.Options/query.Result's shape
// without importing the query package, keeping alarm's dependency surface
// limited to what it evaluates against. The executor adapter in cmd wiring
// translates between the two.
type ExecOptions struct {
	Range index.TimeRange
}

type ExecResult struct {
	Entries []logentry.LogEntry
	Stats   map[string]int64
}

// Observation is one evaluated data point: a scalar count, or one group's
// count when the alarm has GroupBy fields.
type Observation struct {
	GroupKey string
	Value    float64
	Samples  []logentry.LogEntry
}

// Evaluate runs alarm's query across [now-window, now] and returns one
// Observation per distinct group (or a single ungrouped Observation when
// GroupBy is empty). Evaluate adds the count aggregation itself (see
// buildEvalQuery; an ungrouped count is the number of matched entries) so
// alarm authors write a bare search/filter query, not a full SPL pipeline.
func Evaluate(ctx context.Context, ex Executor, a Alarm, nowMillis int64) ([]Observation, error) {
	queryText := buildEvalQuery(a)
	opts := ExecOptions{Range: index.TimeRange{
		StartMillis: nowMillis - a.WindowMillis,
		EndMillis:   nowMillis,
	}}

	res, err := ex.Execute(ctx, queryText, opts)
	if err != nil {
		return nil, fmt.Errorf("evaluate alarm %s: %w", a.ID, err)
	}

	if len(a.GroupBy) == 0 {
		return []Observation{{Value: float64(len(res.Entries)), Samples: res.Entries}}, nil
	}

	obs := make([]Observation, 0, len(res.Stats))
	for key, count := range res.Stats {
		obs = append(obs, Observation{GroupKey: key, Value: float64(count)})
	}
	return obs, nil
}

// buildEvalQuery returns the alarm's base filter query, with
// `| stats count by ...` over the GroupBy fields appended when GroupBy is set.
func buildEvalQuery(a Alarm) string {
	if len(a.GroupBy) == 0 {
		return a.Query
	}
	return a.Query + " | stats count by " + strings.Join(a.GroupBy, ",")
}
