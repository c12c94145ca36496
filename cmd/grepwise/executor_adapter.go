package main

import (
	"context"

	"grepwise/internal/alarm"
	"grepwise/internal/query"
)

// alarmExecutorAdapter narrows a *query.Executor to the alarm.Executor
// interface, translating between the two packages' independently-defined
// (but structurally identical) option/result shapes. alarm deliberately
// does not import query, so this glue lives in cmd wiring instead.
type alarmExecutorAdapter struct {
	executor *query.Executor
}

func (a alarmExecutorAdapter) Execute(ctx context.Context, queryText string, opts alarm.ExecOptions) (alarm.ExecResult, error) {
	res, err := a.executor.Execute(ctx, queryText, query.Options{Range: opts.Range})
	if err != nil {
		return alarm.ExecResult{}, err
	}
	return alarm.ExecResult{Entries: res.Entries, Stats: res.Stats}, nil
}
