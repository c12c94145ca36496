// Package querylang parses GrepWise's piped search-query language (SPL)
// into an AST: a boolean filter expression optionally followed by pipe
// stages (where/stats/sort/head/tail/eval). It is a frontend parsing layer
// only — it does not touch the index, plan execution, or evaluate anything.
package querylang

import (
	"fmt"
	"regexp"
	"strings"
)

// Expr is any filter-expression AST node: AndExpr, OrExpr, NotExpr, or a
// PredicateExpr leaf. The unexported marker method keeps it closed to this
// package.
type Expr interface {
	expr()
	String() string
}

// AndExpr is a logical AND of two or more terms.
type AndExpr struct {
	Terms []Expr
}

func (AndExpr) expr() {}

func (a *AndExpr) String() string {
	parts := make([]string, len(a.Terms))
	for i, t := range a.Terms {
		parts[i] = t.String()
	}
	return "(" + strings.Join(parts, " AND ") + ")"
}

// OrExpr is a logical OR of two or more terms.
type OrExpr struct {
	Terms []Expr
}

func (OrExpr) expr() {}

func (o *OrExpr) String() string {
	parts := make([]string, len(o.Terms))
	for i, t := range o.Terms {
		parts[i] = t.String()
	}
	return "(" + strings.Join(parts, " OR ") + ")"
}

// NotExpr negates Term.
type NotExpr struct {
	Term Expr
}

func (NotExpr) expr() {}

func (n *NotExpr) String() string {
	return "NOT " + n.Term.String()
}

// PredicateExpr is a leaf predicate. Which fields are meaningful depends on
// Kind: Key is empty for PredToken and for a search-stage PredRegex (a
// where-condition REGEX carries its field in Key); Op/Value apply to PredCompare
// and PredLike, leaves of the richer `where` condition grammar.
type PredicateExpr struct {
	Kind    PredicateKind
	Key     string
	Value   string
	Op      CompareOp
	Pattern *regexp.Regexp
}

func (PredicateExpr) expr() {}

func (p *PredicateExpr) String() string {
	switch p.Kind {
	case PredToken:
		return fmt.Sprintf("token(%s)", p.Value)
	case PredKV:
		return fmt.Sprintf("%s=%s", p.Key, p.Value)
	case PredKeyExists:
		return fmt.Sprintf("%s=*", p.Key)
	case PredValueExists:
		return fmt.Sprintf("*=%s", p.Value)
	case PredRegex:
		if p.Key != "" {
			return fmt.Sprintf("%s REGEX /%s/", p.Key, p.Value)
		}
		return fmt.Sprintf("regex(/%s/)", p.Value)
	case PredGlob:
		if p.Key != "" {
			return fmt.Sprintf("%s=%s", p.Key, p.Value)
		}
		return fmt.Sprintf("glob(%s)", p.Value)
	case PredCompare:
		return fmt.Sprintf("%s %s %s", p.Key, p.Op, p.Value)
	case PredLike:
		return fmt.Sprintf("%s LIKE %q", p.Key, p.Value)
	default:
		return fmt.Sprintf("unknown(%d)", p.Kind)
	}
}

func flattenAnd(left, right Expr) Expr {
	var terms []Expr
	if a, ok := left.(*AndExpr); ok {
		terms = append(terms, a.Terms...)
	} else {
		terms = append(terms, left)
	}
	if a, ok := right.(*AndExpr); ok {
		terms = append(terms, a.Terms...)
	} else {
		terms = append(terms, right)
	}
	return &AndExpr{Terms: terms}
}

func flattenOr(left, right Expr) Expr {
	var terms []Expr
	if o, ok := left.(*OrExpr); ok {
		terms = append(terms, o.Terms...)
	} else {
		terms = append(terms, left)
	}
	if o, ok := right.(*OrExpr); ok {
		terms = append(terms, o.Terms...)
	} else {
		terms = append(terms, right)
	}
	return &OrExpr{Terms: terms}
}
