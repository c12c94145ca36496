package query

import (
	"fmt"
	"regexp"
	"strings"

	"grepwise/internal/errs"
	"grepwise/internal/index"
	"grepwise/internal/logentry"
	"grepwise/internal/querylang"
)

// compileFilter translates a parsed search-stage filter expression into the
// index package's closed Expr tree, which the Index Engine evaluates against
// its token/field indexes. Unknown fields are not an error: they simply
// compile to a predicate that matches nothing, per the search-stage grammar.
func compileFilter(expr querylang.Expr) (index.Expr, error) {
	if expr == nil {
		return nil, nil
	}
	switch n := expr.(type) {
	case *querylang.AndExpr:
		terms, err := compileTerms(n.Terms)
		if err != nil {
			return nil, err
		}
		return &index.AndExpr{Terms: terms}, nil
	case *querylang.OrExpr:
		terms, err := compileTerms(n.Terms)
		if err != nil {
			return nil, err
		}
		return &index.OrExpr{Terms: terms}, nil
	case *querylang.NotExpr:
		term, err := compileFilter(n.Term)
		if err != nil {
			return nil, err
		}
		return &index.NotExpr{Term: term}, nil
	case *querylang.PredicateExpr:
		return compilePredicate(n)
	default:
		return nil, fmt.Errorf("unsupported filter node %T: %w", expr, errs.ErrQuerySyntax)
	}
}

func compileTerms(terms []querylang.Expr) ([]index.Expr, error) {
	out := make([]index.Expr, 0, len(terms))
	for _, t := range terms {
		c, err := compileFilter(t)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, nil
}

func compilePredicate(p *querylang.PredicateExpr) (index.Expr, error) {
	switch p.Kind {
	case querylang.PredToken:
		return compileFreeText(p.Value), nil
	case querylang.PredKV:
		return compileFieldEq(p.Key, p.Value), nil
	case querylang.PredKeyExists:
		return &index.PredicateExpr{Kind: index.PredFieldExists, Field: p.Key}, nil
	case querylang.PredValueExists:
		return &index.PredicateExpr{Kind: index.PredValueAny, Value: p.Value}, nil
	case querylang.PredRegex:
		// The search-stage grammar only produces bare message regexes;
		// field-scoped REGEX only appears in where-condition leaves, which
		// the executor evaluates in-memory rather than compiling here.
		return &index.PredicateExpr{Kind: index.PredRegex, Pattern: p.Pattern}, nil
	case querylang.PredGlob:
		re, err := querylang.CompileGlob(p.Value)
		if err != nil {
			return nil, fmt.Errorf("compile glob %q: %w", p.Value, errs.ErrQuerySyntax)
		}
		if p.Key != "" {
			return compileFieldGlob(p.Key, re), nil
		}
		return &index.PredicateExpr{Kind: index.PredWildcard, Pattern: re}, nil
	default:
		return nil, fmt.Errorf("unsupported predicate kind %v: %w", p.Kind, errs.ErrQuerySyntax)
	}
}

// compileFreeText handles a bare token: a single word becomes an exact token
// match, anything with whitespace becomes a phrase (substring) match.
func compileFreeText(value string) index.Expr {
	if len(index.Tokenize(value)) > 1 || strings.ContainsAny(value, " \t") {
		return &index.PredicateExpr{Kind: index.PredPhrase, Value: value}
	}
	toks := index.Tokenize(value)
	if len(toks) == 0 {
		return &index.PredicateExpr{Kind: index.PredPhrase, Value: value}
	}
	return &index.PredicateExpr{Kind: index.PredTerm, Value: toks[0]}
}

// compileFieldEq maps key=value onto an exact-match predicate, special-casing
// message (always tokenized, never an exact-equality target per the grammar)
// and level (normalized on write, so the comparison value is normalized too).
func compileFieldEq(key, value string) index.Expr {
	if strings.EqualFold(key, "message") {
		return compileFreeText(value)
	}
	if strings.EqualFold(key, "level") {
		return &index.PredicateExpr{Kind: index.PredFieldEq, Field: "level", Value: string(logentry.NormalizeLevel(value))}
	}
	return &index.PredicateExpr{Kind: index.PredFieldEq, Field: key, Value: value}
}

func compileFieldGlob(key string, re *regexp.Regexp) index.Expr {
	return &index.PredicateExpr{Kind: index.PredFieldWildcard, Field: key, Pattern: re}
}
