package lexer

import (
	"strconv"
	"strings"
	"unicode"

	"github.com/nvylang/nvyc/pkg/token"
	"github.com/nvylang/nvyc/pkg/util"
)

// numericForm is one entry of the literal classification table. Entries
// are tried in order; suffixed forms are attempted before plain parsing.
type numericForm struct {
	typ    token.Type
	suffix string
	parse  func(string) bool
}

var numericForms = []numericForm{
	{token.Int32Lit, "", fitsInt(32)},
	{token.Int64Lit, "L", fitsInt(64)},
	{token.FP32Lit, "F", fitsFloat(32)},
	{token.FP64Lit, "D", fitsFloat(64)},
}

func fitsInt(bits int) func(string) bool {
	return func(s string) bool {
		_, err := strconv.ParseInt(s, 10, bits)
		return err == nil
	}
}

func fitsFloat(bits int) func(string) bool {
	return func(s string) bool {
		for _, r := range s {
			if !unicode.IsDigit(r) && r != '.' && r != 'e' && r != 'E' {
				return false
			}
		}
		_, err := strconv.ParseFloat(s, bits)
		return err == nil
	}
}

// Lexer turns preprocessed source lines into a token array framed by the
// Program and EOS sentinels.
type Lexer struct {
	lines  []util.SourceLine
	cur    util.SourceLine
	source []rune
	pos    int
	toks   []token.Token
}

func NewLexer(lines []util.SourceLine) *Lexer {
	return &Lexer{lines: lines}
}

// Tokenize lexes every line. The only lexical error is an unterminated
// quoted literal; unknown characters fall through as one-character
// identifiers and are rejected by the parser.
func (l *Lexer) Tokenize() ([]token.Token, error) {
	l.toks = append(l.toks[:0], token.Token{Type: token.Program, FileIndex: -1})
	for _, line := range l.lines {
		l.cur, l.source, l.pos = line, []rune(line.Text), 0
		for {
			tok, ok, err := l.next()
			if err != nil {
				return nil, err
			}
			if !ok {
				break
			}
			l.toks = append(l.toks, tok)
		}
	}
	last := token.Token{Type: token.EOS, FileIndex: -1}
	if n := len(l.lines); n > 0 {
		last.FileIndex, last.Line = l.lines[n-1].FileIndex, l.lines[n-1].Line
	}
	return append(l.toks, last), nil
}

func (l *Lexer) next() (token.Token, bool, error) {
	for !l.isAtEnd() && unicode.IsSpace(l.peek()) {
		l.pos++
	}
	if l.isAtEnd() {
		return token.Token{}, false, nil
	}
	start := l.pos
	ch := l.peek()

	switch {
	case ch == '"' || ch == '\'':
		tok, err := l.quoted(ch, start)
		return tok, true, err
	case isWordRune(ch):
		for !l.isAtEnd() && isWordRune(l.peek()) {
			l.pos++
		}
		return l.word(string(l.source[start:l.pos]), start), true, nil
	}

	l.pos++
	if typ, ok := token.SymbolMap[ch]; ok {
		return l.makeToken(typ, string(ch), start), true, nil
	}
	return l.makeToken(token.Ident, string(ch), start), true, nil
}

func (l *Lexer) word(text string, start int) token.Token {
	switch {
	case text == ".":
		return l.makeToken(token.Dot, text, start)
	case text == "true":
		return l.makeToken(token.BoolLit, "1", start)
	case text == "false":
		return l.makeToken(token.BoolLit, "0", start)
	case token.TypeWords[text]:
		return l.makeToken(token.TypeWord, text, start)
	}
	if kw, ok := token.KeywordMap[text]; ok {
		return l.makeToken(kw, text, start)
	}
	if typ, value, ok := classifyNumber(text); ok {
		return l.makeToken(typ, value, start)
	}
	return l.makeToken(token.Ident, text, start)
}

// classifyNumber applies the numeric form table to a word.
func classifyNumber(text string) (token.Type, string, bool) {
	if text == "" || !(unicode.IsDigit(rune(text[0])) || (text[0] == '.' && len(text) > 1 && unicode.IsDigit(rune(text[1])))) {
		return 0, "", false
	}
	cleaned := strings.ReplaceAll(text, "_", "")
	upper := strings.ToUpper(cleaned)
	for _, f := range numericForms {
		if f.suffix == "" || !strings.HasSuffix(upper, f.suffix) {
			continue
		}
		stripped := cleaned[:len(cleaned)-len(f.suffix)]
		if f.parse(stripped) {
			return f.typ, stripped, true
		}
	}
	for _, f := range numericForms {
		if f.parse(cleaned) {
			return f.typ, cleaned, true
		}
	}
	return 0, "", false
}

func (l *Lexer) quoted(quote rune, start int) (token.Token, error) {
	l.pos++
	for !l.isAtEnd() && l.peek() != quote {
		if l.peek() == '\\' && l.pos+1 < len(l.source) {
			l.pos++
		}
		l.pos++
	}
	if l.isAtEnd() {
		tok := l.makeToken(token.StringLit, string(l.source[start:l.pos]), start)
		return tok, util.Errorf(util.ErrUnterminatedString, tok, "missing closing %c", quote)
	}
	l.pos++
	typ := token.StringLit
	if quote == '\'' {
		typ = token.CharLit
	}
	return l.makeToken(typ, string(l.source[start:l.pos]), start), nil
}

func isWordRune(r rune) bool {
	return r == '_' || r == '.' || unicode.IsLetter(r) || unicode.IsDigit(r)
}

func (l *Lexer) peek() rune {
	if l.isAtEnd() {
		return 0
	}
	return l.source[l.pos]
}

func (l *Lexer) isAtEnd() bool { return l.pos >= len(l.source) }

func (l *Lexer) makeToken(typ token.Type, value string, start int) token.Token {
	return token.Token{
		Type:      typ,
		Value:     value,
		FileIndex: l.cur.FileIndex,
		Line:      l.cur.Line,
		Column:    start + 1,
		Len:       l.pos - start,
	}
}

// Lex is a convenience wrapper for a single in-memory source.
func Lex(src string) ([]token.Token, error) {
	var lines []util.SourceLine
	for i, text := range strings.Split(src, "\n") {
		lines = append(lines, util.SourceLine{FileIndex: 0, Line: i + 1, Text: text})
	}
	return NewLexer(lines).Tokenize()
}
