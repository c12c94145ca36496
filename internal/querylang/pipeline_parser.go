package querylang

import (
	"regexp"
	"strconv"
	"strings"
)

// ParsePipeline parses a full SPL query: a search-stage filter expression
// followed by zero or more "| stage" pipe stages.
//
// Grammar (EBNF):
//
//	pipeline  = filter ( "|" pipe_op )*
//	filter    = or_expr              (see parser.go)
//	pipe_op   = where_op | stats_op | sort_op | head_op | tail_op | eval_op
func ParsePipeline(input string) (*Pipeline, error) {
	lex := NewLexer(input)
	p := &parser{lex: lex}
	if err := p.advance(); err != nil {
		return nil, err
	}

	pipe := &Pipeline{}

	if p.cur.Kind != TokPipe && p.cur.Kind != TokEOF {
		filter, err := p.parseOrExpr()
		if err != nil {
			return nil, err
		}
		pipe.Filter = filter
	} else if p.cur.Kind == TokEOF {
		return nil, newParseError(0, ErrEmptyQuery, "empty query")
	}

	for p.cur.Kind == TokPipe {
		lex.SetPipeMode(true)
		if err := p.advance(); err != nil {
			return nil, err
		}
		op, err := p.parsePipeOp()
		if err != nil {
			return nil, err
		}
		pipe.Pipes = append(pipe.Pipes, op)
	}

	if p.cur.Kind != TokEOF {
		return nil, newParseError(p.cur.Pos, ErrUnexpectedToken, "unexpected token after pipeline: %s", p.cur.Lit)
	}
	return pipe, nil
}

func (p *parser) parsePipeOp() (PipeOp, error) {
	if p.cur.Kind != TokWord {
		return nil, newParseError(p.cur.Pos, ErrUnexpectedToken, "expected pipe command, got %s", p.cur.Kind)
	}
	cmd := strings.ToLower(p.cur.Lit)
	switch cmd {
	case "where":
		return p.parseWhereOp()
	case "stats":
		return p.parseStatsOp()
	case "sort":
		return p.parseSortOp()
	case "head":
		return p.parseHeadOp()
	case "tail":
		return p.parseTailOp()
	case "eval":
		return p.parseEvalOp()
	default:
		return p.parseUnknownOp(cmd)
	}
}

// parseUnknownOp consumes tokens up to the next pipe or EOF so the rest of
// the pipeline can still be parsed, and hands the raw text to the executor
// to warn about and skip.
func (p *parser) parseUnknownOp(cmd string) (PipeOp, error) {
	var words []string
	for p.cur.Kind != TokPipe && p.cur.Kind != TokEOF {
		words = append(words, p.cur.Lit)
		if err := p.advance(); err != nil {
			return nil, err
		}
	}
	return &UnknownOp{Name: cmd, Raw: strings.TrimSpace(strings.Join(words, " "))}, nil
}

// parseWhereOp parses `where <cond>`, a richer grammar than the search-stage
// filter: field comparisons (=, !=, >, >=, <, <=), LIKE, and REGEX, combined
// with AND/OR/NOT and parentheses.
func (p *parser) parseWhereOp() (PipeOp, error) {
	if err := p.advance(); err != nil {
		return nil, err
	}
	cond, err := p.parseWhereOr()
	if err != nil {
		return nil, err
	}
	return &WhereOp{Cond: cond}, nil
}

func (p *parser) parseWhereOr() (Expr, error) {
	left, err := p.parseWhereAnd()
	if err != nil {
		return nil, err
	}
	for p.cur.Kind == TokOr {
		if err := p.advance(); err != nil {
			return nil, err
		}
		right, err := p.parseWhereAnd()
		if err != nil {
			return nil, err
		}
		left = flattenOr(left, right)
	}
	return left, nil
}

func (p *parser) parseWhereAnd() (Expr, error) {
	left, err := p.parseWhereUnary()
	if err != nil {
		return nil, err
	}
	for p.cur.Kind == TokAnd {
		if err := p.advance(); err != nil {
			return nil, err
		}
		right, err := p.parseWhereUnary()
		if err != nil {
			return nil, err
		}
		left = flattenAnd(left, right)
	}
	return left, nil
}

func (p *parser) parseWhereUnary() (Expr, error) {
	if p.cur.Kind == TokNot {
		if err := p.advance(); err != nil {
			return nil, err
		}
		term, err := p.parseWhereUnary()
		if err != nil {
			return nil, err
		}
		return &NotExpr{Term: term}, nil
	}
	if p.cur.Kind == TokLParen {
		openPos := p.cur.Pos
		if err := p.advance(); err != nil {
			return nil, err
		}
		expr, err := p.parseWhereOr()
		if err != nil {
			return nil, err
		}
		if p.cur.Kind != TokRParen {
			return nil, newParseError(openPos, ErrUnmatchedParen, "unmatched opening parenthesis")
		}
		if err := p.advance(); err != nil {
			return nil, err
		}
		return expr, nil
	}
	return p.parseWhereCond()
}

// parseWhereCond parses a single leaf: field (op) value, field LIKE "pat",
// or field REGEX /pat/.
func (p *parser) parseWhereCond() (Expr, error) {
	if p.cur.Kind != TokWord {
		return nil, newParseError(p.cur.Pos, ErrUnexpectedToken, "expected field name, got %s", p.cur.Kind)
	}
	field := p.cur.Lit
	if err := p.advance(); err != nil {
		return nil, err
	}

	if p.cur.Kind == TokWord && strings.EqualFold(p.cur.Lit, "like") {
		if err := p.advance(); err != nil {
			return nil, err
		}
		if p.cur.Kind != TokWord {
			return nil, newParseError(p.cur.Pos, ErrUnexpectedToken, "expected string after LIKE, got %s", p.cur.Kind)
		}
		pattern := p.cur.Lit
		if err := p.advance(); err != nil {
			return nil, err
		}
		return &PredicateExpr{Kind: PredLike, Key: field, Value: pattern}, nil
	}

	if p.cur.Kind == TokWord && strings.EqualFold(p.cur.Lit, "regex") {
		// The pattern must be lexed with regex scanning enabled, so flip pipe
		// mode off before advancing past "regex" onto the pattern token.
		p.lex.SetPipeMode(false)
		if err := p.advance(); err != nil {
			return nil, err
		}
		if p.cur.Kind != TokRegex {
			return nil, newParseError(p.cur.Pos, ErrUnexpectedToken, "expected /pattern/ after REGEX, got %s", p.cur.Kind)
		}
		litPattern := p.cur.Lit
		re, err := regexp.Compile(litPattern)
		if err != nil {
			return nil, newParseError(p.cur.Pos, ErrInvalidRegex, "invalid regex /%s/: %v", litPattern, err)
		}
		p.lex.SetPipeMode(true)
		if err := p.advance(); err != nil {
			return nil, err
		}
		return &PredicateExpr{Kind: PredRegex, Key: field, Value: litPattern, Pattern: re}, nil
	}

	op, ok := tokenToCompareOp(p.cur.Kind)
	if !ok {
		return nil, newParseError(p.cur.Pos, ErrUnexpectedToken, "expected comparison operator, LIKE, or REGEX, got %s", p.cur.Kind)
	}
	if err := p.advance(); err != nil {
		return nil, err
	}
	if p.cur.Kind != TokWord {
		return nil, newParseError(p.cur.Pos, ErrUnexpectedToken, "expected value, got %s", p.cur.Kind)
	}
	value := p.cur.Lit
	if err := p.advance(); err != nil {
		return nil, err
	}
	return &PredicateExpr{Kind: PredCompare, Key: field, Value: value, Op: op}, nil
}

func tokenToCompareOp(k TokenKind) (CompareOp, bool) {
	switch k {
	case TokEq:
		return OpEq, true
	case TokNe:
		return OpNe, true
	case TokGt:
		return OpGt, true
	case TokGte:
		return OpGte, true
	case TokLt:
		return OpLt, true
	case TokLte:
		return OpLte, true
	default:
		return OpEq, false
	}
}

// parseStatsOp parses `stats count [by field[, field...]]`. GrepWise's stats
// stage is intentionally restricted to row counting, per the search-stage
// aggregation spec.
func (p *parser) parseStatsOp() (PipeOp, error) {
	if err := p.advance(); err != nil {
		return nil, err
	}
	if p.cur.Kind != TokWord || !strings.EqualFold(p.cur.Lit, "count") {
		return nil, newParseError(p.cur.Pos, ErrUnexpectedToken, "expected 'count' after stats, got %s", p.cur.Lit)
	}
	if err := p.advance(); err != nil {
		return nil, err
	}

	op := &StatsOp{}
	if p.cur.Kind == TokWord && strings.EqualFold(p.cur.Lit, "by") {
		if err := p.advance(); err != nil {
			return nil, err
		}
		for {
			if p.cur.Kind != TokWord {
				return nil, newParseError(p.cur.Pos, ErrUnexpectedToken, "expected field name after 'by', got %s", p.cur.Kind)
			}
			op.Groups = append(op.Groups, p.cur.Lit)
			if err := p.advance(); err != nil {
				return nil, err
			}
			if p.cur.Kind != TokComma {
				break
			}
			if err := p.advance(); err != nil {
				return nil, err
			}
		}
	}
	return op, nil
}

// parseSortOp parses `sort [-]field[, [-]field...]`. A leading "-" marks a
// descending key; keys without it sort ascending.
func (p *parser) parseSortOp() (PipeOp, error) {
	if err := p.advance(); err != nil {
		return nil, err
	}
	op := &SortOp{}
	for {
		desc := false
		if p.cur.Kind == TokMinus {
			desc = true
			if err := p.advance(); err != nil {
				return nil, err
			}
		}
		if p.cur.Kind != TokWord {
			return nil, newParseError(p.cur.Pos, ErrUnexpectedToken, "expected field name in sort, got %s", p.cur.Kind)
		}
		op.Fields = append(op.Fields, SortField{Name: p.cur.Lit, Desc: desc})
		if err := p.advance(); err != nil {
			return nil, err
		}
		if p.cur.Kind != TokComma {
			break
		}
		if err := p.advance(); err != nil {
			return nil, err
		}
	}
	return op, nil
}

func (p *parser) parseHeadOp() (PipeOp, error) {
	n, err := p.parseCountArg("head")
	if err != nil {
		return nil, err
	}
	return &HeadOp{N: n}, nil
}

func (p *parser) parseTailOp() (PipeOp, error) {
	n, err := p.parseCountArg("tail")
	if err != nil {
		return nil, err
	}
	return &TailOp{N: n}, nil
}

func (p *parser) parseCountArg(cmd string) (int, error) {
	if err := p.advance(); err != nil {
		return 0, err
	}
	if p.cur.Kind != TokWord {
		return 0, newParseError(p.cur.Pos, ErrUnexpectedToken, "expected integer after %s, got %s", cmd, p.cur.Kind)
	}
	n, err := strconv.Atoi(p.cur.Lit)
	if err != nil || n < 0 {
		return 0, newParseError(p.cur.Pos, ErrUnexpectedToken, "expected non-negative integer after %s, got %q", cmd, p.cur.Lit)
	}
	if err := p.advance(); err != nil {
		return 0, err
	}
	return n, nil
}

// parseEvalOp parses `eval field = expr [, field = expr...]`. expr is
// restricted to a field reference or a literal; anything else (arithmetic,
// function calls) is rejected with ErrEvalUnsupported rather than silently
// producing a wrong or empty result.
func (p *parser) parseEvalOp() (PipeOp, error) {
	if err := p.advance(); err != nil {
		return nil, err
	}
	op := &EvalOp{}
	for {
		if p.cur.Kind != TokWord {
			return nil, newParseError(p.cur.Pos, ErrUnexpectedToken, "expected field name in eval, got %s", p.cur.Kind)
		}
		field := p.cur.Lit
		if err := p.advance(); err != nil {
			return nil, err
		}
		if p.cur.Kind != TokEq {
			return nil, newParseError(p.cur.Pos, ErrUnexpectedToken, "expected '=' in eval assignment, got %s", p.cur.Kind)
		}
		if err := p.advance(); err != nil {
			return nil, err
		}
		expr, err := p.parseEvalValue()
		if err != nil {
			return nil, err
		}
		op.Assignments = append(op.Assignments, EvalAssignment{Field: field, Expr: expr})
		if p.cur.Kind != TokComma {
			break
		}
		if err := p.advance(); err != nil {
			return nil, err
		}
	}

	// Anything past the assignment list that looks like an operator signals
	// an arithmetic or function expression we deliberately don't support.
	if p.cur.Kind == TokPlus || p.cur.Kind == TokMinus || p.cur.Kind == TokSlash || p.cur.Kind == TokPercent || p.cur.Kind == TokStar {
		return nil, newParseError(p.cur.Pos, ErrEvalUnsupported, "eval only supports literal or field-reference assignment, got operator %s", p.cur.Kind)
	}
	return op, nil
}

func (p *parser) parseEvalValue() (PipeExpr, error) {
	switch p.cur.Kind {
	case TokWord:
		lit := p.cur.Lit
		pos := p.cur.Pos
		if err := p.advance(); err != nil {
			return nil, err
		}
		if p.cur.Kind == TokPlus || p.cur.Kind == TokMinus || p.cur.Kind == TokSlash || p.cur.Kind == TokPercent {
			return nil, newParseError(pos, ErrEvalUnsupported, "eval only supports literal or field-reference assignment, not arithmetic")
		}
		if isNumericLiteral(lit) {
			return &NumberLit{Value: lit}, nil
		}
		return &FieldRef{Name: lit}, nil
	default:
		return nil, newParseError(p.cur.Pos, ErrEvalUnsupported, "eval only supports literal or field-reference assignment, got %s", p.cur.Kind)
	}
}

func isNumericLiteral(s string) bool {
	if s == "" {
		return false
	}
	_, err := strconv.ParseFloat(s, 64)
	return err == nil
}
