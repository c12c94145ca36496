package querylang

import (
	"fmt"
	"strings"
)

// Pipeline is a parsed SPL query: a filter expression (the `search` stage)
// followed by zero or more pipe stages.
type Pipeline struct {
	Filter Expr
	Pipes  []PipeOp
}

func (p *Pipeline) String() string {
	var parts []string
	if p.Filter != nil {
		parts = append(parts, p.Filter.String())
	}
	for _, op := range p.Pipes {
		parts = append(parts, op.String())
	}
	return strings.Join(parts, " | ")
}

// PipeOp is one pipe stage: where, stats, sort, head, tail, or eval.
type PipeOp interface {
	pipeOp()
	String() string
}

// WhereOp is a post-filter condition: field comparisons, LIKE, REGEX,
// combined with AND/OR/NOT — richer than the search-stage KV grammar.
type WhereOp struct {
	Cond Expr
}

func (WhereOp) pipeOp() {}

func (w *WhereOp) String() string { return "where " + w.Cond.String() }

// StatsOp is `stats count [by field[, field...]]`.
type StatsOp struct {
	Groups []string
}

func (StatsOp) pipeOp() {}

func (s *StatsOp) String() string {
	if len(s.Groups) == 0 {
		return "stats count"
	}
	return "stats count by " + strings.Join(s.Groups, ", ")
}

// SortOp is `sort [-]field[, [-]field...]`.
type SortOp struct {
	Fields []SortField
}

// SortField is one sort key; Desc is set by a leading "-".
type SortField struct {
	Name string
	Desc bool
}

func (SortOp) pipeOp() {}

func (s *SortOp) String() string {
	parts := make([]string, len(s.Fields))
	for i, f := range s.Fields {
		if f.Desc {
			parts[i] = "-" + f.Name
		} else {
			parts[i] = f.Name
		}
	}
	return "sort " + strings.Join(parts, ", ")
}

// HeadOp is `head N`.
type HeadOp struct{ N int }

func (HeadOp) pipeOp() {}

func (h *HeadOp) String() string { return fmt.Sprintf("head %d", h.N) }

// TailOp is `tail N`.
type TailOp struct{ N int }

func (TailOp) pipeOp() {}

func (t *TailOp) String() string { return fmt.Sprintf("tail %d", t.N) }

// EvalOp is `eval field = expr [, field = expr...]`. Per spec, expr is
// restricted to a field reference or a literal constant; anything richer
// is rejected at parse time with ErrEvalUnsupported.
type EvalOp struct {
	Assignments []EvalAssignment
}

// EvalAssignment binds Field to the evaluation of Expr.
type EvalAssignment struct {
	Field string
	Expr  PipeExpr
}

func (EvalOp) pipeOp() {}

func (e *EvalOp) String() string {
	parts := make([]string, len(e.Assignments))
	for i, a := range e.Assignments {
		parts[i] = a.Field + " = " + a.Expr.String()
	}
	return "eval " + strings.Join(parts, ", ")
}

// PipeExpr is a value expression usable on the right side of an eval
// assignment: a field reference or a literal.
type PipeExpr interface {
	pipeExpr()
	String() string
}

// FieldRef references a LogEntry field or metadata key by name.
type FieldRef struct{ Name string }

func (FieldRef) pipeExpr() {}

func (f *FieldRef) String() string { return f.Name }

// NumberLit is a numeric literal, kept as its raw text to preserve precision.
type NumberLit struct{ Value string }

func (NumberLit) pipeExpr() {}

func (n *NumberLit) String() string { return n.Value }

// UnknownOp is a pipe stage whose command name isn't one of the stages this
// package parses. The executor logs a warning and skips it rather than
// failing the whole pipeline.
type UnknownOp struct {
	Name string
	Raw  string
}

func (UnknownOp) pipeOp() {}

func (u *UnknownOp) String() string { return u.Raw }
