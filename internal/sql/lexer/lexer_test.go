package lexer

import "testing"

func kinds(t *testing.T, toks []Token) []Kind {
	t.Helper()
	ks := make([]Kind, len(toks))
	for i, tok := range toks {
		ks[i] = tok.Kind
	}
	return ks
}

func TestTokenizeSelectStatement(t *testing.T) {
	toks, err := Tokenize("SELECT id, name FROM users WHERE id = 1;")
	if err != nil {
		t.Fatalf("Tokenize: %v", err)
	}
	if toks[len(toks)-1].Kind != KindEOF {
		t.Fatalf("last token should be EOF, got %v", toks[len(toks)-1])
	}
	if toks[0].Kind != KindKeyword || toks[0].Val != "SELECT" {
		t.Fatalf("first token = %+v, want SELECT keyword", toks[0])
	}
}

func TestKeywordsAreCaseInsensitiveAndNormalized(t *testing.T) {
	toks, err := Tokenize("select")
	if err != nil {
		t.Fatalf("Tokenize: %v", err)
	}
	if toks[0].Kind != KindKeyword || toks[0].Val != "SELECT" {
		t.Fatalf("lowercase keyword should normalize to upper-case: %+v", toks[0])
	}
}

func TestIdentifierPreservesCase(t *testing.T) {
	toks, err := Tokenize("MyTable")
	if err != nil {
		t.Fatalf("Tokenize: %v", err)
	}
	if toks[0].Kind != KindIdent || toks[0].Val != "MyTable" {
		t.Fatalf("identifier should keep its original case: %+v", toks[0])
	}
}

func TestIntegerLiteral(t *testing.T) {
	toks, err := Tokenize("42")
	if err != nil {
		t.Fatalf("Tokenize: %v", err)
	}
	if toks[0].Kind != KindInt || toks[0].Val != "42" {
		t.Fatalf("want integer 42, got %+v", toks[0])
	}
}

func TestStringLiteralEscapesAndQuoteStyles(t *testing.T) {
	toks, err := Tokenize(`'it''s a \n test'`)
	if err != nil {
		t.Fatalf("Tokenize: %v", err)
	}
	want := "it's a \n test"
	if toks[0].Kind != KindString || toks[0].Val != want {
		t.Fatalf("got %+v, want string %q", toks[0], want)
	}

	toks, err = Tokenize(`"double quoted"`)
	if err != nil {
		t.Fatalf("Tokenize: %v", err)
	}
	if toks[0].Kind != KindString || toks[0].Val != "double quoted" {
		t.Fatalf("double-quoted string: got %+v", toks[0])
	}
}

func TestUnterminatedStringIsLexicalError(t *testing.T) {
	_, err := Tokenize(`'never closed`)
	if err == nil {
		t.Fatalf("expected a lexical error for an unterminated string")
	}
	if _, ok := err.(*Error); !ok {
		t.Fatalf("want *Error, got %T", err)
	}
}

func TestUnterminatedBlockCommentIsLexicalError(t *testing.T) {
	_, err := Tokenize("SELECT 1 /* oops")
	if err == nil {
		t.Fatalf("expected a lexical error for an unterminated block comment")
	}
}

func TestLineCommentRunsToEndOfLine(t *testing.T) {
	toks, err := Tokenize("SELECT 1 -- comment\nFROM t")
	if err != nil {
		t.Fatalf("Tokenize: %v", err)
	}
	ks := kinds(t, toks)
	if len(ks) < 4 || toks[2].Kind != KindKeyword || toks[2].Val != "FROM" {
		t.Fatalf("line comment should be skipped: %+v", toks)
	}
}

func TestTwoCharacterOperators(t *testing.T) {
	for _, op := range []string{"!=", "<>", "<=", ">="} {
		toks, err := Tokenize("a " + op + " b")
		if err != nil {
			t.Fatalf("Tokenize(%q): %v", op, err)
		}
		if toks[1].Kind != KindOperator || toks[1].Val != op {
			t.Fatalf("operator %q: got %+v", op, toks[1])
		}
	}
}

func TestIllegalCharacterIsLexicalError(t *testing.T) {
	_, err := Tokenize("SELECT # FROM t")
	if err == nil {
		t.Fatalf("expected a lexical error for an illegal character")
	}
}

func TestPositionTrackingAcrossLines(t *testing.T) {
	toks, err := Tokenize("SELECT\nid")
	if err != nil {
		t.Fatalf("Tokenize: %v", err)
	}
	if toks[1].Pos.Line != 2 {
		t.Fatalf("second token should be on line 2, got %d", toks[1].Pos.Line)
	}
}
