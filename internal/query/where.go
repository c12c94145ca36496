package query

import (
	"regexp"
	"strings"

	"grepwise/internal/logentry"
	"grepwise/internal/querylang"
)

// filterWhere applies a where-stage condition to an already-fetched entry
// slice, in place of an index. Unlike the search-stage filter, which the
// Index Engine evaluates against its token/field indexes, where conditions
// run against each entry's realized field values directly.
func filterWhere(entries []logentry.LogEntry, cond querylang.Expr) []logentry.LogEntry {
	if cond == nil {
		return entries
	}
	out := entries[:0]
	for _, e := range entries {
		if evalWhere(cond, e) {
			out = append(out, e)
		}
	}
	return out
}

func evalWhere(cond querylang.Expr, e logentry.LogEntry) bool {
	switch n := cond.(type) {
	case *querylang.AndExpr:
		for _, t := range n.Terms {
			if !evalWhere(t, e) {
				return false
			}
		}
		return true
	case *querylang.OrExpr:
		for _, t := range n.Terms {
			if evalWhere(t, e) {
				return true
			}
		}
		return false
	case *querylang.NotExpr:
		return !evalWhere(n.Term, e)
	case *querylang.PredicateExpr:
		return evalWherePredicate(n, e)
	default:
		return false
	}
}

func evalWherePredicate(p *querylang.PredicateExpr, e logentry.LogEntry) bool {
	switch p.Kind {
	case querylang.PredCompare:
		return evalCompare(fieldValue(e, p.Key), p.Value, p.Op)
	case querylang.PredLike:
		return matchLike(fieldValue(e, p.Key), p.Value)
	case querylang.PredRegex:
		if p.Pattern == nil {
			return false
		}
		return p.Pattern.MatchString(fieldValue(e, p.Key))
	default:
		return false
	}
}

// evalCompare compares lhs op rhs, coercing to numeric when both sides parse
// as numbers and falling back to lexicographic comparison otherwise.
func evalCompare(lhs, rhs string, op querylang.CompareOp) bool {
	if nl, nr, ok := bothNumeric(lhs, rhs); ok {
		switch op {
		case querylang.OpEq:
			return nl == nr
		case querylang.OpNe:
			return nl != nr
		case querylang.OpGt:
			return nl > nr
		case querylang.OpGte:
			return nl >= nr
		case querylang.OpLt:
			return nl < nr
		case querylang.OpLte:
			return nl <= nr
		}
	}
	switch op {
	case querylang.OpEq:
		return lhs == rhs
	case querylang.OpNe:
		return lhs != rhs
	case querylang.OpGt:
		return lhs > rhs
	case querylang.OpGte:
		return lhs >= rhs
	case querylang.OpLt:
		return lhs < rhs
	case querylang.OpLte:
		return lhs <= rhs
	default:
		return false
	}
}

// matchLike translates a SQL-style LIKE pattern (% = any run, _ = any single
// char) into an anchored, case-insensitive match against value.
func matchLike(value, pattern string) bool {
	var b strings.Builder
	b.WriteString("(?i)^")
	for _, r := range pattern {
		switch r {
		case '%':
			b.WriteString(".*")
		case '_':
			b.WriteString(".")
		default:
			b.WriteString(regexp.QuoteMeta(string(r)))
		}
	}
	b.WriteByte('$')
	re, err := regexp.Compile(b.String())
	if err != nil {
		return false
	}
	return re.MatchString(value)
}
