package parser

import (
	"github.com/nvylang/nvyc/pkg/ast"
	"github.com/nvylang/nvyc/pkg/config"
	"github.com/nvylang/nvyc/pkg/symbols"
	"github.com/nvylang/nvyc/pkg/token"
	"github.com/nvylang/nvyc/pkg/util"
)

// Parser holds the state for the parsing process. It walks an owned token
// array through a Stream view; sub-parsers receive narrower views instead
// of copies.
type Parser struct {
	s      token.Stream
	pos    int
	braces []token.Token // open braces not yet closed
	ctx    *symbols.Context
	cfg    *config.Config
}

// NewParser creates a Parser that records declarations into ctx.
func NewParser(ctx *symbols.Context, cfg *config.Config) *Parser {
	return &Parser{ctx: ctx, cfg: cfg}
}

// Parse turns a normalized token array into a PROGRAM node.
func (p *Parser) Parse(tokens []token.Token) (*ast.Node, error) {
	p.s, p.pos, p.braces = token.NewStream(tokens), 0, nil
	root := ast.New(ast.Program, "", p.cur())
	p.match(token.Program)
	p.declareStructNames()

	for !p.atEnd() {
		if p.match(token.Semi) {
			continue
		}
		node, err := p.parseTopLevel()
		if err != nil {
			return nil, err
		}
		root.Children = append(root.Children, node)
	}
	return root, nil
}

// declareStructNames registers every `struct Name` up front so types can
// name a struct before its definition is reached.
func (p *Parser) declareStructNames() {
	for i := 0; i < p.s.Len(); i++ {
		if p.s.At(i).Type == token.Struct && p.s.At(i+1).Type == token.Ident {
			p.ctx.Structs.Add(p.s.At(i + 1).Value)
		}
	}
}

// Parser helpers
func (p *Parser) cur() token.Token { return p.s.At(p.pos) }

func (p *Parser) peek(k int) token.Token { return p.s.At(p.pos + k) }

func (p *Parser) atEnd() bool {
	return p.pos >= p.s.Len() || p.cur().Type == token.EOS
}

func (p *Parser) advance() token.Token {
	tok := p.cur()
	if p.pos < p.s.Len() {
		p.pos++
	}
	return tok
}

func (p *Parser) check(t token.Type) bool { return p.cur().Type == t }

func (p *Parser) match(t token.Type) bool {
	if !p.check(t) {
		return false
	}
	p.advance()
	return true
}

func (p *Parser) expect(t token.Type, kind util.ErrorKind, format string, args ...interface{}) (token.Token, error) {
	if p.check(t) {
		return p.advance(), nil
	}
	return p.cur(), util.Errorf(kind, p.cur(), format, args...)
}

func (p *Parser) unexpected(format string, args ...interface{}) error {
	if p.atEnd() {
		return util.Errorf(util.ErrUnexpectedEOF, p.cur(), format, args...)
	}
	return util.Errorf(util.ErrUnexpectedToken, p.cur(), format, args...)
}

// findSemicolon locates the ';' ending the statement that starts at p.pos.
// Reaching a statement keyword, a brace or the end first means the
// semicolon is missing; the error carries the text scanned so far.
func (p *Parser) findSemicolon() (int, error) {
	depth := 0
	for i := p.pos; i < p.s.Len(); i++ {
		tok := p.s.At(i)
		switch {
		case tok.Type == token.LParen:
			depth++
		case tok.Type == token.RParen:
			depth--
		case tok.Type == token.Semi && depth <= 0:
			return i, nil
		case i > p.pos && (tok.Type.IsStarter() || tok.Type == token.LBrace || tok.Type == token.RBrace || tok.Type == token.EOS):
			last := p.s.At(i - 1)
			err := util.Errorf(util.ErrMissingSemicolon, last, "expected ';' after '%s'", last.Spelling())
			return -1, util.WithFragment(err, p.s.Slice(p.pos, i).Text())
		}
	}
	last := p.s.At(p.s.Len() - 1)
	return -1, util.Errorf(util.ErrMissingSemicolon, last, "expected ';' before end of input")
}

// topLevelAssign returns the position of an '=' outside parentheses in
// [from, to), or -1.
func (p *Parser) topLevelAssign(from, to int) int {
	depth := 0
	for i := from; i < to; i++ {
		switch p.s.At(i).Type {
		case token.LParen:
			depth++
		case token.RParen:
			depth--
		case token.Assign:
			if depth == 0 {
				return i
			}
		}
	}
	return -1
}
