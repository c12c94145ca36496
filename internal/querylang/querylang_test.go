package querylang

import (
	"errors"
	"testing"
)

func TestLexerTokenizesBasicQuery(t *testing.T) {
	lex := NewLexer(`level=error AND NOT (host="db-1" OR host="db-2")`)
	var kinds []TokenKind
	for {
		tok, err := lex.Next()
		if err != nil {
			t.Fatalf("unexpected lex error: %v", err)
		}
		kinds = append(kinds, tok.Kind)
		if tok.Kind == TokEOF {
			break
		}
	}
	want := []TokenKind{
		TokWord, TokEq, TokWord, TokAnd, TokNot, TokLParen,
		TokWord, TokEq, TokWord, TokOr, TokWord, TokEq, TokWord,
		TokRParen, TokEOF,
	}
	if len(kinds) != len(want) {
		t.Fatalf("got %d tokens, want %d: %v", len(kinds), len(want), kinds)
	}
	for i := range want {
		if kinds[i] != want[i] {
			t.Errorf("token %d: got %s, want %s", i, kinds[i], want[i])
		}
	}
}

func TestParseTokenPredicate(t *testing.T) {
	expr, err := Parse("timeout")
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	pred, ok := expr.(*PredicateExpr)
	if !ok {
		t.Fatalf("expected *PredicateExpr, got %T", expr)
	}
	if pred.Kind != PredToken || pred.Value != "timeout" {
		t.Errorf("got kind=%v value=%q", pred.Kind, pred.Value)
	}
}

func TestParseKVPredicate(t *testing.T) {
	expr, err := Parse(`level=error`)
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	pred, ok := expr.(*PredicateExpr)
	if !ok || pred.Kind != PredKV || pred.Key != "level" || pred.Value != "error" {
		t.Fatalf("got %#v", expr)
	}
}

func TestParseImplicitAnd(t *testing.T) {
	expr, err := Parse(`level=error timeout`)
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	and, ok := expr.(*AndExpr)
	if !ok || len(and.Terms) != 2 {
		t.Fatalf("got %#v", expr)
	}
}

func TestParseGlobPredicate(t *testing.T) {
	expr, err := Parse(`conn*`)
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	pred, ok := expr.(*PredicateExpr)
	if !ok || pred.Kind != PredGlob || pred.Value != "conn*" {
		t.Fatalf("got %#v", expr)
	}
}

func TestParseRegexPredicate(t *testing.T) {
	expr, err := Parse(`/^conn-[0-9]+$/`)
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	pred, ok := expr.(*PredicateExpr)
	if !ok || pred.Kind != PredRegex || pred.Pattern == nil {
		t.Fatalf("got %#v", expr)
	}
	if !pred.Pattern.MatchString("conn-42") {
		t.Errorf("expected pattern to match conn-42")
	}
}

func TestParseKeyAndValueExists(t *testing.T) {
	expr, err := Parse(`level=*`)
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	pred := expr.(*PredicateExpr)
	if pred.Kind != PredKeyExists || pred.Key != "level" {
		t.Fatalf("got %#v", pred)
	}

	expr, err = Parse(`*=error`)
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	pred = expr.(*PredicateExpr)
	if pred.Kind != PredValueExists || pred.Value != "error" {
		t.Fatalf("got %#v", pred)
	}
}

func TestParseEmptyQueryFails(t *testing.T) {
	_, err := Parse("")
	if !errors.Is(err, ErrEmptyQuery) {
		t.Fatalf("got %v, want ErrEmptyQuery", err)
	}
}

func TestParseUnmatchedParenFails(t *testing.T) {
	_, err := Parse("(level=error")
	if !errors.Is(err, ErrUnmatchedParen) {
		t.Fatalf("got %v, want ErrUnmatchedParen", err)
	}
}

func TestCompileGlobMatchesAnchoredCaseInsensitive(t *testing.T) {
	re, err := CompileGlob("conn-*-[0-9]")
	if err != nil {
		t.Fatalf("CompileGlob failed: %v", err)
	}
	if !re.MatchString("CONN-abc-5") {
		t.Errorf("expected match")
	}
	if re.MatchString("xconn-abc-5") {
		t.Errorf("expected anchored match to fail on prefix")
	}
}

func TestParsePipelineFilterAndStats(t *testing.T) {
	p, err := ParsePipeline(`level=error | stats count by source`)
	if err != nil {
		t.Fatalf("ParsePipeline failed: %v", err)
	}
	if p.Filter == nil {
		t.Fatal("expected non-nil filter")
	}
	if len(p.Pipes) != 1 {
		t.Fatalf("expected 1 pipe op, got %d", len(p.Pipes))
	}
	stats, ok := p.Pipes[0].(*StatsOp)
	if !ok || len(stats.Groups) != 1 || stats.Groups[0] != "source" {
		t.Fatalf("got %#v", p.Pipes[0])
	}
}

func TestParsePipelineWhereCompare(t *testing.T) {
	p, err := ParsePipeline(`| where status >= 500`)
	if err != nil {
		t.Fatalf("ParsePipeline failed: %v", err)
	}
	where, ok := p.Pipes[0].(*WhereOp)
	if !ok {
		t.Fatalf("got %#v", p.Pipes[0])
	}
	pred, ok := where.Cond.(*PredicateExpr)
	if !ok || pred.Kind != PredCompare || pred.Key != "status" || pred.Op != OpGte || pred.Value != "500" {
		t.Fatalf("got %#v", where.Cond)
	}
}

func TestParsePipelineWhereLikeAndRegex(t *testing.T) {
	p, err := ParsePipeline(`| where message LIKE "%timeout%" AND host REGEX /^db-\d+$/`)
	if err != nil {
		t.Fatalf("ParsePipeline failed: %v", err)
	}
	where := p.Pipes[0].(*WhereOp)
	and, ok := where.Cond.(*AndExpr)
	if !ok || len(and.Terms) != 2 {
		t.Fatalf("got %#v", where.Cond)
	}
	like, ok := and.Terms[0].(*PredicateExpr)
	if !ok || like.Kind != PredLike || like.Key != "message" {
		t.Fatalf("got %#v", and.Terms[0])
	}
	rx, ok := and.Terms[1].(*PredicateExpr)
	if !ok || rx.Kind != PredRegex || rx.Key != "host" || rx.Pattern == nil {
		t.Fatalf("got %#v", and.Terms[1])
	}
	if !rx.Pattern.MatchString("db-12") {
		t.Errorf("expected regex to match db-12")
	}
}

func TestParsePipelineSortHeadTail(t *testing.T) {
	p, err := ParsePipeline(`| sort -timestamp, host | head 10`)
	if err != nil {
		t.Fatalf("ParsePipeline failed: %v", err)
	}
	sort, ok := p.Pipes[0].(*SortOp)
	if !ok || len(sort.Fields) != 2 || !sort.Fields[0].Desc || sort.Fields[0].Name != "timestamp" || sort.Fields[1].Desc {
		t.Fatalf("got %#v", p.Pipes[0])
	}
	head, ok := p.Pipes[1].(*HeadOp)
	if !ok || head.N != 10 {
		t.Fatalf("got %#v", p.Pipes[1])
	}

	p, err = ParsePipeline(`| tail 5`)
	if err != nil {
		t.Fatalf("ParsePipeline failed: %v", err)
	}
	tail, ok := p.Pipes[0].(*TailOp)
	if !ok || tail.N != 5 {
		t.Fatalf("got %#v", p.Pipes[0])
	}
}

func TestParsePipelineEvalLiteralAndFieldRef(t *testing.T) {
	p, err := ParsePipeline(`| eval status_code = status, region = "us-east"`)
	if err != nil {
		t.Fatalf("ParsePipeline failed: %v", err)
	}
	eval, ok := p.Pipes[0].(*EvalOp)
	if !ok || len(eval.Assignments) != 2 {
		t.Fatalf("got %#v", p.Pipes[0])
	}
	if eval.Assignments[0].Field != "status_code" {
		t.Errorf("got field %q", eval.Assignments[0].Field)
	}
	if _, ok := eval.Assignments[0].Expr.(*FieldRef); !ok {
		t.Errorf("expected FieldRef, got %#v", eval.Assignments[0].Expr)
	}
}

func TestParsePipelineEvalArithmeticRejected(t *testing.T) {
	_, err := ParsePipeline(`| eval total = a + b`)
	if !errors.Is(err, ErrEvalUnsupported) {
		t.Fatalf("got %v, want ErrEvalUnsupported", err)
	}
}

func TestParsePipelineUnknownStageIsPreservedNotFatal(t *testing.T) {
	p, err := ParsePipeline(`| rex field=msg "pat" | head 5`)
	if err != nil {
		t.Fatalf("ParsePipeline failed: %v", err)
	}
	if len(p.Pipes) != 2 {
		t.Fatalf("expected 2 pipe ops, got %d", len(p.Pipes))
	}
	unknown, ok := p.Pipes[0].(*UnknownOp)
	if !ok || unknown.Name != "rex" {
		t.Fatalf("got %#v", p.Pipes[0])
	}
	if _, ok := p.Pipes[1].(*HeadOp); !ok {
		t.Fatalf("got %#v", p.Pipes[1])
	}
}
