package parser

import (
	"github.com/nvylang/nvyc/pkg/ast"
	"github.com/nvylang/nvyc/pkg/config"
	"github.com/nvylang/nvyc/pkg/symbols"
	"github.com/nvylang/nvyc/pkg/token"
	"github.com/nvylang/nvyc/pkg/util"
)

func isDeclModifier(t token.Type) bool {
	return t.IsModifier() && t != token.Native && t != token.Ref
}

func (p *Parser) parseTopLevel() (*ast.Node, error) {
	tok := p.cur()
	switch {
	case tok.Type == token.Native:
		return p.parseNative()
	case isDeclModifier(tok.Type):
		p.advance()
		inner, err := p.parseTopLevel()
		if err != nil {
			return nil, err
		}
		return ast.New(ast.Modifier, tok.Value, tok, inner), nil
	case tok.Type == token.Func:
		return p.parseFunction(false)
	case tok.Type == token.Let:
		return p.parseVarDef()
	case tok.Type == token.Struct:
		return p.parseStruct()
	case tok.Type == token.Return:
		return nil, util.Errorf(util.ErrReturnOutsideFunction, tok, "'return' outside of a function")
	}
	return nil, p.unexpected("expected a function, struct or global declaration, found '%s'", tok.Spelling())
}

func (p *Parser) parseStatement() (*ast.Node, error) {
	tok := p.cur()
	switch tok.Type {
	case token.Native, token.Func, token.Struct:
		return nil, p.unexpected("'%s' is only allowed at the top level", tok.Value)
	case token.Final, token.Static, token.Public, token.Private, token.Impl, token.Constant:
		p.advance()
		inner, err := p.parseStatement()
		if err != nil {
			return nil, err
		}
		return ast.New(ast.Modifier, tok.Value, tok, inner), nil
	case token.Let:
		return p.parseVarDef()
	case token.If:
		return p.parseIf()
	case token.For:
		return p.parseFor()
	case token.While:
		if !p.cfg.IsFeatureEnabled(config.FeatWhile) {
			return nil, p.unexpected("'while' loops are disabled (-Fwhile)")
		}
		return p.parseWhile()
	case token.Return:
		return p.parseReturn()
	case token.Else:
		return nil, p.unexpected("'else' without a matching 'if'")
	case token.Switch, token.Case:
		return nil, p.unexpected("'%s' is not supported", tok.Value)
	}
	return p.parseSimpleStatement()
}

// parseBody parses `{ stmt* }`. Open braces are tracked on an explicit
// stack so an unclosed block reports where it was opened.
func (p *Parser) parseBody() ([]*ast.Node, error) {
	open, err := p.expect(token.LBrace, util.ErrExpectedBraceOpen, "expected '{', found '%s'", p.cur().Spelling())
	if err != nil {
		return nil, err
	}
	p.braces = append(p.braces, open)

	var stmts []*ast.Node
	for {
		if p.match(token.RBrace) {
			p.braces = p.braces[:len(p.braces)-1]
			return stmts, nil
		}
		if p.atEnd() {
			return nil, util.Errorf(util.ErrExpectedBraceClose, p.braces[len(p.braces)-1], "unclosed '{'")
		}
		if p.match(token.Semi) {
			continue
		}
		stmt, err := p.parseStatement()
		if err != nil {
			return nil, err
		}
		stmts = append(stmts, stmt)
	}
}

// parseTypeSpelling reads a type in declaration position and returns its
// spelling: "int32", "fp64*", "int32[4]", "char[]" or a struct name with
// optional stars.
func (p *Parser) parseTypeSpelling() (string, token.Token, error) {
	tok := p.cur()
	switch tok.Type {
	case token.TypeWord, token.PointerType:
		p.advance()
		return tok.Value, tok, nil
	case token.ArrayType:
		p.advance()
		if p.check(token.ArraySize) {
			return tok.Value + "[" + p.advance().Value + "]", tok, nil
		}
		return tok.Value + "[]", tok, nil
	case token.Ident:
		if _, ok := p.ctx.Structs.Lookup(tok.Value); !ok {
			return "", tok, util.Errorf(util.ErrExpectedType, tok, "unknown type '%s'", tok.Value)
		}
		p.advance()
		spelling := tok.Value
		for p.match(token.Star) {
			spelling += "*"
		}
		return spelling, tok, nil
	}
	return "", tok, util.Errorf(util.ErrExpectedType, tok, "expected a type, found '%s'", tok.Spelling())
}

func isVariadicMarker(tok token.Token) bool {
	return tok.Type == token.TypeWord && (tok.Value == "..." || tok.Value == "unified")
}

func (p *Parser) parseNative() (*ast.Node, error) {
	tok := p.advance()
	if !p.check(token.Func) {
		return nil, p.unexpected("expected 'func' after 'native'")
	}
	fn, err := p.parseFunction(true)
	if err != nil {
		return nil, err
	}
	return ast.New(ast.Native, "VOID", tok, fn), nil
}

// parseFunction parses `func name(T a, U b) -> R { body }`. A native
// declaration ends with ';' instead of a body.
func (p *Parser) parseFunction(native bool) (*ast.Node, error) {
	p.advance()
	nameTok, err := p.expect(token.Ident, util.ErrExpectedIdentifier, "expected function name, found '%s'", p.cur().Spelling())
	if err != nil {
		return nil, err
	}
	if _, err := p.expect(token.LParen, util.ErrExpectedParenOpen, "expected '(' after function name"); err != nil {
		return nil, err
	}

	sig := &symbols.Function{Name: nameTok.Value, Native: native, Tok: nameTok}
	var params []*ast.Node
	for !p.check(token.RParen) {
		if p.atEnd() {
			return nil, util.Errorf(util.ErrExpectedParenClose, nameTok, "unterminated parameter list")
		}
		if sig.Variadic {
			return nil, p.unexpected("the variadic marker must be the last parameter")
		}
		if isVariadicMarker(p.cur()) {
			marker := p.advance()
			if p.check(token.Ident) {
				p.advance()
			}
			sig.Variadic, sig.VariadicIndex = true, len(sig.Params)
			sig.Params = append(sig.Params, symbols.Basic(symbols.Variadic))
			params = append(params, ast.NewParam(marker, "...", "..."))
		} else {
			spelling, typTok, err := p.parseTypeSpelling()
			if err != nil {
				return nil, err
			}
			name, err := p.expect(token.Ident, util.ErrExpectedIdentifier, "expected parameter name after '%s'", spelling)
			if err != nil {
				return nil, err
			}
			typ, err := p.ctx.ResolveType(spelling, typTok)
			if err != nil {
				return nil, err
			}
			sig.Params = append(sig.Params, typ)
			sig.ParamNames = append(sig.ParamNames, name.Value)
			params = append(params, ast.NewParam(name, name.Value, spelling))
		}
		if !p.match(token.Comma) {
			break
		}
	}
	if _, err := p.expect(token.RParen, util.ErrExpectedParenClose, "expected ')' after parameters, found '%s'", p.cur().Spelling()); err != nil {
		return nil, err
	}

	ret, retTok := "void", nameTok
	if p.check(token.Minus) && p.peek(1).Type == token.Gt {
		p.advance()
		p.advance()
		if ret, retTok, err = p.parseTypeSpelling(); err != nil {
			return nil, err
		}
	}
	if sig.Return, err = p.ctx.ResolveType(ret, retTok); err != nil {
		return nil, err
	}

	var body []*ast.Node
	if native {
		if _, err := p.expect(token.Semi, util.ErrMissingSemicolon, "expected ';' after native declaration"); err != nil {
			return nil, err
		}
	} else if body, err = p.parseBody(); err != nil {
		return nil, err
	}

	p.ctx.Funcs.Add(sig)
	return ast.NewFunction(nameTok, nameTok.Value, params, ret, body), nil
}

// castAhead reports whether `( type )` starts at p.pos and consumes it.
func (p *Parser) castAhead() (string, bool) {
	if !p.check(token.LParen) {
		return "", false
	}
	save := p.pos
	p.advance()
	spelling, _, err := p.parseTypeSpelling()
	if err == nil && p.match(token.RParen) {
		return spelling, true
	}
	p.pos = save
	return "", false
}

// parseVarDef parses `let name = [ (T) ] expr;`, `let name = (T);` and
// `let name = T[n];`.
func (p *Parser) parseVarDef() (*ast.Node, error) {
	p.advance()
	nameTok, err := p.expect(token.Ident, util.ErrExpectedIdentifier, "expected variable name after 'let'")
	if err != nil {
		return nil, err
	}
	if _, err := p.expect(token.Assign, util.ErrUnexpectedToken, "expected '=' after '%s'", nameTok.Value); err != nil {
		return nil, err
	}
	node := ast.New(ast.VarDef, nameTok.Value, nameTok)

	if spelling, ok := p.castAhead(); ok {
		node.Children = append(node.Children, ast.New(ast.Cast, spelling, nameTok))
		if p.match(token.Semi) {
			return node, nil
		}
	}

	if arr := p.cur(); arr.Type == token.ArrayType {
		p.advance()
		size := "-1"
		if p.check(token.ArraySize) {
			size = p.advance().Value
		}
		if _, err := p.expect(token.Semi, util.ErrMissingSemicolon, "expected ';' after array type"); err != nil {
			return nil, err
		}
		node.Children = append(node.Children, ast.New(ast.Array, arr.Value, arr, ast.New(ast.Int32Lit, size, arr)))
		return node, nil
	}

	end, err := p.findSemicolon()
	if err != nil {
		return nil, err
	}
	expr, err := p.parseExprRange(p.pos, end)
	if err != nil {
		return nil, err
	}
	p.pos = end + 1
	node.Children = append(node.Children, expr)
	return node, nil
}

// parseEnclosed parses `( expr )` and returns expr.
func (p *Parser) parseEnclosed() (*ast.Node, error) {
	if _, err := p.expect(token.LParen, util.ErrExpectedParenOpen, "expected '(' before condition"); err != nil {
		return nil, err
	}
	closing := p.s.Matching(p.pos - 1)
	if closing < 0 {
		return nil, util.Errorf(util.ErrExpectedParenClose, p.s.At(p.pos-1), "unbalanced '('")
	}
	expr, err := p.parseExprRange(p.pos, closing)
	if err != nil {
		return nil, err
	}
	p.pos = closing + 1
	return expr, nil
}

func (p *Parser) parseIf() (*ast.Node, error) {
	tok := p.advance()
	cond, err := p.parseEnclosed()
	if err != nil {
		return nil, err
	}
	body, err := p.parseBody()
	if err != nil {
		return nil, err
	}
	node := ast.New(ast.If, "VOID", tok,
		ast.New(ast.Condition, "VOID", cond.Tok, cond),
		ast.New(ast.FuncBody, "VOID", tok, body...),
	)
	if elseTok := p.cur(); p.match(token.Else) {
		var elseBody []*ast.Node
		if p.check(token.If) {
			nested, err := p.parseIf()
			if err != nil {
				return nil, err
			}
			elseBody = []*ast.Node{nested}
		} else if elseBody, err = p.parseBody(); err != nil {
			return nil, err
		}
		node.Children = append(node.Children, ast.New(ast.Else, "VOID", elseTok, elseBody...))
	}
	return node, nil
}

// parseFor parses `for (let i = 0; cond; iteration) { body }`. A bare
// iteration expression is stored back into the loop variable.
func (p *Parser) parseFor() (*ast.Node, error) {
	tok := p.advance()
	if _, err := p.expect(token.LParen, util.ErrExpectedParenOpen, "expected '(' after 'for'"); err != nil {
		return nil, err
	}
	closing := p.s.Matching(p.pos - 1)
	if closing < 0 {
		return nil, util.Errorf(util.ErrExpectedParenClose, tok, "unbalanced '(' in for-loop header")
	}
	if !p.check(token.Let) {
		return nil, p.unexpected("expected 'let' to start the for-loop header")
	}
	def, err := p.parseVarDef()
	if err != nil {
		return nil, err
	}
	condEnd, err := p.findSemicolon()
	if err != nil {
		return nil, err
	}
	if p.pos > closing || condEnd > closing {
		return nil, util.Errorf(util.ErrMissingSemicolon, tok, "for-loop header needs 'let def; condition; iteration'")
	}
	cond, err := p.parseExprRange(p.pos, condEnd)
	if err != nil {
		return nil, err
	}
	p.pos = condEnd + 1

	var iter *ast.Node
	if eq := p.topLevelAssign(p.pos, closing); eq >= 0 {
		iter, err = p.parseAssignment(p.pos, eq, closing)
	} else {
		iter, err = p.parseExprRange(p.pos, closing)
	}
	if err != nil {
		return nil, err
	}
	p.pos = closing + 1

	body, err := p.parseBody()
	if err != nil {
		return nil, err
	}
	return ast.New(ast.ForLoop, "VOID", tok,
		ast.New(ast.LoopDef, "VOID", tok, def),
		ast.New(ast.LoopCond, "VOID", tok, cond),
		ast.New(ast.LoopIter, "VOID", tok, iter),
		ast.New(ast.FuncBody, "VOID", tok, body...),
	), nil
}

func (p *Parser) parseWhile() (*ast.Node, error) {
	tok := p.advance()
	cond, err := p.parseEnclosed()
	if err != nil {
		return nil, err
	}
	body, err := p.parseBody()
	if err != nil {
		return nil, err
	}
	return ast.New(ast.WhileLoop, "VOID", tok,
		ast.New(ast.Condition, "VOID", cond.Tok, cond),
		ast.New(ast.FuncBody, "VOID", tok, body...),
	), nil
}

func (p *Parser) parseReturn() (*ast.Node, error) {
	tok := p.advance()
	node := ast.New(ast.Return, "VOID", tok)
	if p.match(token.Semi) {
		return node, nil
	}
	end, err := p.findSemicolon()
	if err != nil {
		return nil, err
	}
	expr, err := p.parseExprRange(p.pos, end)
	if err != nil {
		return nil, err
	}
	p.pos = end + 1
	node.Children = append(node.Children, expr)
	return node, nil
}

// parseStruct parses `struct Name { T a, U b }`.
func (p *Parser) parseStruct() (*ast.Node, error) {
	p.advance()
	nameTok, err := p.expect(token.Ident, util.ErrExpectedIdentifier, "expected struct name")
	if err != nil {
		return nil, err
	}
	if def, ok := p.ctx.Structs.Lookup(nameTok.Value); ok && len(def.Members) > 0 {
		return nil, util.Errorf(util.ErrRedeclaration, nameTok, "struct '%s' is already defined", nameTok.Value)
	}
	p.ctx.Structs.Add(nameTok.Value)
	if _, err := p.expect(token.LBrace, util.ErrExpectedBraceOpen, "expected '{' after struct name"); err != nil {
		return nil, err
	}

	node := ast.New(ast.Struct, nameTok.Value, nameTok)
	for !p.check(token.RBrace) {
		if p.atEnd() {
			return nil, util.Errorf(util.ErrExpectedBraceClose, nameTok, "unclosed struct '%s'", nameTok.Value)
		}
		if p.match(token.Comma) || p.match(token.Semi) {
			continue
		}
		spelling, typTok, err := p.parseTypeSpelling()
		if err != nil {
			return nil, err
		}
		member, err := p.expect(token.Ident, util.ErrExpectedIdentifier, "expected member name after '%s'", spelling)
		if err != nil {
			return nil, err
		}
		typ, err := p.ctx.ResolveType(spelling, typTok)
		if err != nil {
			return nil, err
		}
		if typ.Kind == symbols.Struct && typ.Name == nameTok.Value {
			return nil, util.Errorf(util.ErrTypeMismatch, typTok, "struct '%s' cannot contain itself", nameTok.Value)
		}
		if _, added := p.ctx.Structs.AddMember(nameTok.Value, member.Value, typ); !added {
			return nil, util.Errorf(util.ErrRedeclaration, member, "struct '%s' already has a member '%s'", nameTok.Value, member.Value)
		}
		node.Children = append(node.Children, ast.NewStructMember(member, member.Value, spelling))
	}
	p.advance()
	p.match(token.Semi)
	return node, nil
}

// parseSimpleStatement handles assignments and bare calls.
func (p *Parser) parseSimpleStatement() (*ast.Node, error) {
	start := p.pos
	end, err := p.findSemicolon()
	if err != nil {
		return nil, err
	}
	if eq := p.topLevelAssign(start, end); eq >= 0 {
		node, err := p.parseAssignment(start, eq, end)
		if err != nil {
			return nil, err
		}
		p.pos = end + 1
		return node, nil
	}
	expr, err := p.parseExprRange(start, end)
	if err != nil {
		return nil, err
	}
	if expr.Type != ast.Call {
		return nil, util.Errorf(util.ErrUnexpectedToken, p.s.At(start), "only calls and assignments can stand alone as statements")
	}
	p.pos = end + 1
	return expr, nil
}

func isLValue(n *ast.Node) bool {
	switch n.Type {
	case ast.Variable, ast.ArrayAccess, ast.Deref:
		return true
	}
	return false
}

// parseAssignment builds ASSIGN(target, value) from the spans around '='.
func (p *Parser) parseAssignment(start, eq, end int) (*ast.Node, error) {
	lhs, err := p.parseExprRange(start, eq)
	if err != nil {
		return nil, err
	}
	if !isLValue(lhs) {
		return nil, util.Errorf(util.ErrInvalidAssignmentTarget, p.s.At(start), "cannot assign to '%s'", p.s.Slice(start, eq).Text())
	}
	rhs, err := p.parseExprRange(eq+1, end)
	if err != nil {
		return nil, err
	}
	return ast.New(ast.Assign, "VOID", p.s.At(eq), lhs, rhs), nil
}
