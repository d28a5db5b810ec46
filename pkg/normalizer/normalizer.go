// Package normalizer fuses raw lexer tokens into the compound tokens the
// parser works with: pointer and array types, array accesses and
// multi-character operators.
package normalizer

import (
	"strings"

	"github.com/nvylang/nvyc/pkg/token"
	"github.com/nvylang/nvyc/pkg/util"
)

var compounds = map[string]token.Type{
	"||":  token.OrOr,
	"&&":  token.AndAnd,
	">>":  token.Shr,
	"<<":  token.Shl,
	">>>": token.UShr,
	"==":  token.EqEq,
}

// doublable lists the operators that fuse with an identical neighbour.
// '*' is absent so that `**p` stays a double dereference.
var doublable = map[token.Type]bool{
	token.Pipe: true, token.Amp: true, token.Gt: true, token.Lt: true,
	token.Assign: true, token.Plus: true, token.Minus: true, token.Bang: true,
	token.Tilde: true, token.Slash: true, token.Percent: true, token.Caret: true,
}

var withEquals = map[token.Type]token.Type{
	token.Lt:   token.Lte,
	token.Gt:   token.Gte,
	token.Bang: token.Neq,
}

type rule func(buf []token.Token, i int) (fused []token.Token, span int, err error)

// rules are tried in priority order; the first one that matches wins.
var rules = []rule{
	pointerType,
	unsizedArrayType,
	arrayAccess,
	sizedArrayType,
	doubledOperator,
	operatorWithEquals,
}

// Normalize returns a new token array with every fusion applied. The
// input is left untouched. After a rewrite the freshly fused token is
// inspected again before the pass moves on.
func Normalize(in []token.Token) ([]token.Token, error) {
	buf := make([]token.Token, len(in))
	copy(buf, in)

	for i := 0; i < len(buf); {
		matched := false
		for _, r := range rules {
			fused, span, err := r(buf, i)
			if err != nil {
				return nil, err
			}
			if span == 0 {
				continue
			}
			next := make([]token.Token, 0, len(buf)-span+len(fused))
			next = append(next, buf[:i]...)
			next = append(next, fused...)
			next = append(next, buf[i+span:]...)
			buf = next
			matched = true
			break
		}
		if !matched {
			i++
		}
	}
	return buf, nil
}

func at(buf []token.Token, i int) token.Token {
	if i < 0 || i >= len(buf) {
		return token.Token{Type: token.EOS}
	}
	return buf[i]
}

func adjacent(a, b token.Token) bool {
	return a.FileIndex == b.FileIndex && a.Line == b.Line && b.Column == a.Column+a.Len
}

func span(first, last token.Token) int {
	if first.Line != last.Line {
		return first.Len
	}
	return last.Column + last.Len - first.Column
}

// TYPE '*'+
func pointerType(buf []token.Token, i int) ([]token.Token, int, error) {
	base := at(buf, i)
	if base.Type != token.TypeWord || at(buf, i+1).Type != token.Star {
		return nil, 0, nil
	}
	n := 1
	for at(buf, i+n).Type == token.Star {
		n++
	}
	tok := base
	tok.Type = token.PointerType
	tok.Value = base.Value + strings.Repeat("*", n-1)
	tok.Len = span(base, at(buf, i+n-1))
	return []token.Token{tok}, n, nil
}

// TYPE '[' ']'
func unsizedArrayType(buf []token.Token, i int) ([]token.Token, int, error) {
	base := at(buf, i)
	if base.Type != token.TypeWord || at(buf, i+1).Type != token.LBracket || at(buf, i+2).Type != token.RBracket {
		return nil, 0, nil
	}
	tok := base
	tok.Type = token.ArrayType
	tok.Len = span(base, at(buf, i+2))
	return []token.Token{tok}, 3, nil
}

// IDENT '[' (INT|IDENT) ']'
func arrayAccess(buf []token.Token, i int) ([]token.Token, int, error) {
	name, idx := at(buf, i), at(buf, i+2)
	if name.Type != token.Ident || at(buf, i+1).Type != token.LBracket || at(buf, i+3).Type != token.RBracket {
		return nil, 0, nil
	}
	if idx.Type != token.Int32Lit && idx.Type != token.Ident {
		return nil, 0, nil
	}
	tok := name
	tok.Type = token.ArrayAccess
	tok.Aux = idx.Value
	tok.Len = span(name, at(buf, i+3))
	return []token.Token{tok}, 4, nil
}

// TYPE '[' INT ']'
func sizedArrayType(buf []token.Token, i int) ([]token.Token, int, error) {
	base, size := at(buf, i), at(buf, i+2)
	if base.Type != token.TypeWord || at(buf, i+1).Type != token.LBracket || size.Type != token.Int32Lit || at(buf, i+3).Type != token.RBracket {
		return nil, 0, nil
	}
	arr := base
	arr.Type = token.ArrayType
	sz := size
	sz.Type = token.ArraySize
	return []token.Token{arr, sz}, 4, nil
}

// Doubling needs the tokens to touch: `a - -b` and `! !x` are two unary
// operators, not an invalid '--' or '!!'.
func doubledOperator(buf []token.Token, i int) ([]token.Token, int, error) {
	first, second := at(buf, i), at(buf, i+1)
	if !doublable[first.Type] || second.Type != first.Type || !adjacent(first, second) {
		return nil, 0, nil
	}
	if third := at(buf, i+2); third.Type == first.Type && adjacent(second, third) {
		text := first.Value + second.Value + third.Value
		if typ, ok := compounds[text]; ok {
			return []token.Token{fuse(first, third, typ, text)}, 3, nil
		}
	}
	text := first.Value + second.Value
	typ, ok := compounds[text]
	if !ok {
		return nil, 0, util.Errorf(util.ErrInvalidOperator, first, "Invalid operator '%s'", text)
	}
	return []token.Token{fuse(first, second, typ, text)}, 2, nil
}

// '<' '=', '>' '=', '!' '=' fuse whatever whitespace separates them. No
// expression puts an assignment right after those operators.
func operatorWithEquals(buf []token.Token, i int) ([]token.Token, int, error) {
	first, second := at(buf, i), at(buf, i+1)
	typ, ok := withEquals[first.Type]
	if !ok || second.Type != token.Assign {
		return nil, 0, nil
	}
	return []token.Token{fuse(first, second, typ, first.Value+"=")}, 2, nil
}

func fuse(first, last token.Token, typ token.Type, text string) token.Token {
	tok := first
	tok.Type = typ
	tok.Value = text
	tok.Len = span(first, last)
	return tok
}
