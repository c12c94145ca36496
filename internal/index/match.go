package index

import (
	"strings"

	"grepwise/internal/logentry"
)

// evalLocked reports whether entry satisfies expr. Callers must hold at
// least p.mu.RLock, since term/phrase predicates consult p.tokenIdx.
func (p *Partition) evalLocked(expr Expr, entry logentry.LogEntry) bool {
	switch n := expr.(type) {
	case *AndExpr:
		for _, t := range n.Terms {
			if !p.evalLocked(t, entry) {
				return false
			}
		}
		return true
	case *OrExpr:
		for _, t := range n.Terms {
			if p.evalLocked(t, entry) {
				return true
			}
		}
		return false
	case *NotExpr:
		return !p.evalLocked(n.Term, entry)
	case *PredicateExpr:
		return p.evalPredicate(*n, entry)
	default:
		return false
	}
}

func (p *Partition) evalPredicate(pred PredicateExpr, entry logentry.LogEntry) bool {
	switch pred.Kind {
	case PredTerm:
		set := p.tokenIdx[pred.Value]
		if set == nil {
			return false
		}
		_, ok := set[entry.ID]
		return ok
	case PredPhrase:
		return strings.Contains(strings.ToLower(entry.Message), strings.ToLower(pred.Value))
	case PredFieldEq:
		return fieldString(entry, pred.Field) == pred.Value
	case PredRegex:
		if pred.Pattern == nil {
			return false
		}
		return pred.Pattern.MatchString(entry.Message)
	case PredWildcard:
		if pred.Pattern == nil {
			return false
		}
		return pred.Pattern.MatchString(entry.Message)
	case PredFieldExists:
		switch pred.Field {
		case "level", "source":
			return true
		default:
			_, ok := entry.Metadata[pred.Field]
			return ok
		}
	case PredFieldWildcard:
		if pred.Pattern == nil {
			return false
		}
		return pred.Pattern.MatchString(fieldString(entry, pred.Field))
	case PredValueAny:
		if string(entry.Level) == strings.ToUpper(pred.Value) {
			return true
		}
		if entry.Source == pred.Value {
			return true
		}
		for _, v := range entry.Metadata {
			if v == pred.Value {
				return true
			}
		}
		return false
	default:
		return false
	}
}
