package parser

import (
	"strconv"
	"strings"

	"github.com/nvylang/nvyc/pkg/ast"
	"github.com/nvylang/nvyc/pkg/token"
	"github.com/nvylang/nvyc/pkg/util"
)

var binaryOps = map[token.Type]ast.NodeType{
	token.Plus:    ast.Add,
	token.Minus:   ast.Sub,
	token.Star:    ast.Mul,
	token.Slash:   ast.Div,
	token.Percent: ast.Mod,
	token.Amp:     ast.BitAnd,
	token.Pipe:    ast.BitOr,
	token.Caret:   ast.BitXor,
	token.Shl:     ast.Shl,
	token.Shr:     ast.Shr,
	token.UShr:    ast.UShr,
	token.AndAnd:  ast.LogicAnd,
	token.OrOr:    ast.LogicOr,
	token.EqEq:    ast.Eq,
	token.Neq:     ast.Neq,
	token.Lt:      ast.Lt,
	token.Lte:     ast.Lte,
	token.Gt:      ast.Gt,
	token.Gte:     ast.Gte,
}

// prefixOps are the operators read as unary when an operand is expected.
var prefixOps = map[token.Type]ast.NodeType{
	token.Star:  ast.Deref,
	token.Amp:   ast.AddrOf,
	token.Ref:   ast.AddrOf,
	token.Minus: ast.Neg,
	token.Bang:  ast.Not,
	token.Tilde: ast.BitNot,
}

// precedence returns the binding strength of an operator. Higher binds
// tighter.
func precedence(op ast.NodeType) int {
	switch op {
	case ast.LogicOr:
		return 3
	case ast.LogicAnd:
		return 4
	case ast.BitOr:
		return 5
	case ast.BitXor:
		return 6
	case ast.BitAnd:
		return 7
	case ast.Eq, ast.Neq:
		return 8
	case ast.Lt, ast.Lte, ast.Gt, ast.Gte:
		return 9
	case ast.Shl, ast.Shr, ast.UShr:
		return 10
	case ast.Add, ast.Sub:
		return 11
	case ast.Mul, ast.Div, ast.Mod:
		return 12
	case ast.Neg, ast.Not, ast.BitNot, ast.Deref, ast.AddrOf:
		return 13
	case ast.Member:
		return 14
	}
	return -1
}

type pendingOp struct {
	op    ast.NodeType
	tok   token.Token
	paren bool
}

// exprParser is the two-stack operator precedence parser over one span.
type exprParser struct {
	p        *Parser
	values   []*ast.Node
	ops      []pendingOp
	expectOp bool // false while an operand is expected (expect-unary)
}

// parseExprRange parses the tokens in [from, to) as one expression.
func (p *Parser) parseExprRange(from, to int) (*ast.Node, error) {
	if from >= to {
		return nil, util.Errorf(util.ErrExpectedExpression, p.s.At(from), "expected expression, found '%s'", p.s.At(from).Spelling())
	}
	e := &exprParser{p: p}
	for i := from; i < to; i++ {
		next, err := e.step(i, to)
		if err != nil {
			return nil, err
		}
		i = next
	}
	for len(e.ops) > 0 {
		top := e.ops[len(e.ops)-1]
		if top.paren {
			return nil, util.Errorf(util.ErrExpectedParenClose, top.tok, "unbalanced '('")
		}
		if err := e.reduce(); err != nil {
			return nil, err
		}
	}
	switch len(e.values) {
	case 0:
		return nil, util.Errorf(util.ErrExpectedExpression, p.s.At(from), "expected expression")
	case 1:
		return e.values[0], nil
	}
	return nil, util.WithFragment(util.Errorf(util.ErrUnexpectedToken, p.s.At(from), "malformed expression"), p.s.Slice(from, to).Text())
}

// step consumes the token at i and returns the index of the last token it
// used.
func (e *exprParser) step(i, to int) (int, error) {
	s := e.p.s
	tok := s.At(i)

	if e.expectOp {
		if op, ok := binaryOps[tok.Type]; ok {
			if err := e.pushBinary(op, tok); err != nil {
				return i, err
			}
			e.expectOp = false
			return i, nil
		}
		if tok.Type == token.RParen {
			return i, e.closeParen(tok)
		}
		return i, util.Errorf(util.ErrUnexpectedToken, tok, "unexpected '%s' after an operand", tok.Spelling())
	}

	if op, ok := prefixOps[tok.Type]; ok {
		// A prefix operator has no left operand, so nothing is reduced.
		e.ops = append(e.ops, pendingOp{op: op, tok: tok})
		return i, nil
	}

	switch tok.Type {
	case token.LParen:
		e.ops = append(e.ops, pendingOp{tok: tok, paren: true})
		return i, nil
	case token.Int32Lit, token.Int64Lit, token.FP32Lit, token.FP64Lit, token.BoolLit, token.CharLit, token.StringLit:
		e.push(ast.New(literalTypes[tok.Type], tok.Value, tok))
		return i, nil
	case token.TypeWord:
		// Only meaningful as the operand of sizeof.
		e.push(ast.New(ast.TypeRef, tok.Value, tok))
		return i, nil
	case token.ArrayAccess:
		e.push(arrayAccessNode(tok))
		return i, nil
	case token.ArrayType:
		size := "-1"
		if s.At(i+1).Type == token.ArraySize && i+1 < to {
			i++
			size = s.At(i).Value
		}
		e.push(ast.New(ast.Array, tok.Value, tok, ast.New(ast.Int32Lit, size, tok)))
		return i, nil
	case token.Ident:
		if s.At(i+1).Type == token.LParen && i+1 < to {
			return e.call(i, to)
		}
		e.push(identNode(tok))
		return i, nil
	}
	if tok.Type == token.EOS {
		return i, util.Errorf(util.ErrUnexpectedEOF, tok, "expression ended early")
	}
	return i, util.Errorf(util.ErrExpectedExpression, tok, "expected an operand, found '%s'", tok.Spelling())
}

var literalTypes = map[token.Type]ast.NodeType{
	token.Int32Lit:  ast.Int32Lit,
	token.Int64Lit:  ast.Int64Lit,
	token.FP32Lit:   ast.FP32Lit,
	token.FP64Lit:   ast.FP64Lit,
	token.BoolLit:   ast.BoolLit,
	token.CharLit:   ast.CharLit,
	token.StringLit: ast.StringLit,
}

func identNode(tok token.Token) *ast.Node {
	if strings.Contains(tok.Value, ".") {
		parts := strings.Split(tok.Value, ".")
		return ast.NewMemberChain(tok, parts[0], parts[1:])
	}
	return ast.New(ast.Variable, tok.Value, tok)
}

func arrayAccessNode(tok token.Token) *ast.Node {
	var idx *ast.Node
	if _, err := strconv.Atoi(tok.Aux); err == nil {
		idx = ast.New(ast.Int32Lit, tok.Aux, tok)
	} else {
		idx = ast.New(ast.Variable, tok.Aux, tok)
	}
	return ast.New(ast.ArrayAccess, tok.Value, tok, idx)
}

func (e *exprParser) push(n *ast.Node) {
	e.values = append(e.values, n)
	e.expectOp = true
}

func (e *exprParser) pushBinary(op ast.NodeType, tok token.Token) error {
	for len(e.ops) > 0 {
		top := e.ops[len(e.ops)-1]
		if top.paren || precedence(top.op) < precedence(op) {
			break
		}
		if err := e.reduce(); err != nil {
			return err
		}
	}
	e.ops = append(e.ops, pendingOp{op: op, tok: tok})
	return nil
}

func (e *exprParser) closeParen(tok token.Token) error {
	for {
		if len(e.ops) == 0 {
			return util.Errorf(util.ErrExpectedParenOpen, tok, "unmatched ')'")
		}
		top := e.ops[len(e.ops)-1]
		if top.paren {
			e.ops = e.ops[:len(e.ops)-1]
			e.expectOp = true
			return nil
		}
		if err := e.reduce(); err != nil {
			return err
		}
	}
}

// reduce pops the top operator and folds its operands into one node.
func (e *exprParser) reduce() error {
	top := e.ops[len(e.ops)-1]
	e.ops = e.ops[:len(e.ops)-1]

	if top.op.IsUnary() {
		if len(e.values) < 1 {
			return util.Errorf(util.ErrInsufficientOperands, top.tok, "'%s' is missing its operand", top.tok.Spelling())
		}
		operand := e.values[len(e.values)-1]
		e.values[len(e.values)-1] = ast.NewUnary(top.op, top.tok, operand)
		return nil
	}

	if len(e.values) < 2 {
		return util.Errorf(util.ErrInsufficientOperands, top.tok, "'%s' needs two operands", top.tok.Spelling())
	}
	rhs := e.values[len(e.values)-1]
	lhs := e.values[len(e.values)-2]
	e.values = e.values[:len(e.values)-2]
	e.values = append(e.values, ast.NewBinary(top.op, top.tok, lhs, rhs))
	return nil
}

// call parses `name(arg, ...)` starting at the name and returns the index
// of the closing parenthesis.
func (e *exprParser) call(i, to int) (int, error) {
	s := e.p.s
	nameTok := s.At(i)
	closing := s.Matching(i + 1)
	if closing < 0 || closing >= to {
		return i, util.Errorf(util.ErrExpectedParenClose, s.At(i+1), "unterminated argument list of '%s'", nameTok.Value)
	}
	args, err := e.p.parseArgs(i+2, closing)
	if err != nil {
		return i, err
	}
	e.push(ast.New(ast.Call, nameTok.Value, nameTok, args...))
	return closing, nil
}

// parseArgs splits [from, to) on commas at parenthesis depth 1 and parses
// each piece as an independent expression.
func (p *Parser) parseArgs(from, to int) ([]*ast.Node, error) {
	if from >= to {
		return nil, nil
	}
	var args []*ast.Node
	depth, start := 1, from
	for i := from; i <= to; i++ {
		tok := p.s.At(i)
		switch {
		case i == to || (tok.Type == token.Comma && depth == 1):
			arg, err := p.parseExprRange(start, i)
			if err != nil {
				return nil, err
			}
			args = append(args, arg)
			start = i + 1
		case tok.Type == token.LParen:
			depth++
		case tok.Type == token.RParen:
			depth--
		}
	}
	return args, nil
}

// ParseExpression parses a standalone expression from normalized tokens.
func (p *Parser) ParseExpression(tokens []token.Token) (*ast.Node, error) {
	p.s, p.pos = token.NewStream(tokens), 0
	from, to := 0, p.s.Len()
	if p.s.At(0).Type == token.Program {
		from = 1
	}
	if to > from && p.s.At(to-1).Type == token.EOS {
		to--
	}
	return p.parseExprRange(from, to)
}
