package searchcache

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sort"
	"strings"

	"grepwise/internal/index"
)

// Fingerprint derives a stable cache key covering the normalized query
// text, time range, sort, limit, and a version counter the caller bumps on
// any write to the affected partition range — so a write invalidates every
// fingerprint that could have seen it, without the cache needing to know
// about partitions itself.
func Fingerprint(normalizedQuery string, r index.TimeRange, srt index.SortSpec, limit int, version int64) string {
	h := sha256.New()
	fmt.Fprintf(h, "q=%s\nstart=%d\nend=%d\nsort=%s\ndesc=%t\nlimit=%d\nver=%d",
		normalizedQuery, r.StartMillis, r.EndMillis, srt.Field, srt.Desc, limit, version)
	return hex.EncodeToString(h.Sum(nil))
}

// NormalizeExpr renders expr into a canonical string so two logically
// identical queries (differing only in term order within an AND/OR, for
// instance) still fingerprint the same: the rendered terms of each AND/OR
// are sorted here. A predicate renders its kind, field, value and pattern.
func NormalizeExpr(expr index.Expr) string {
	if expr == nil {
		return ""
	}
	switch n := expr.(type) {
	case *index.AndExpr:
		return joinSorted("AND", n.Terms)
	case *index.OrExpr:
		return joinSorted("OR", n.Terms)
	case *index.NotExpr:
		return "NOT(" + NormalizeExpr(n.Term) + ")"
	case *index.PredicateExpr:
		pattern := ""
		if n.Pattern != nil {
			pattern = n.Pattern.String()
		}
		return fmt.Sprintf("P(%d,%s,%s,%s)", n.Kind, n.Field, n.Value, pattern)
	default:
		return ""
	}
}

func joinSorted(op string, terms []index.Expr) string {
	parts := make([]string, len(terms))
	for i, t := range terms {
		parts[i] = NormalizeExpr(t)
	}
	sort.Strings(parts)
	return op + "(" + strings.Join(parts, ",") + ")"
}
