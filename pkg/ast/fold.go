package ast

import (
	"strconv"

	"github.com/nvylang/nvyc/pkg/util"
)

// FoldConstants evaluates integer arithmetic whose operands are literals of
// the same kind. The result is a new tree.
func FoldConstants(node *Node) (*Node, error) {
	var foldErr error
	out := Rewrite(node, func(n *Node) *Node {
		if foldErr != nil {
			return n
		}
		folded, err := foldNode(n)
		if err != nil {
			foldErr = err
			return n
		}
		return folded
	})
	return out, foldErr
}

func intLiteral(n *Node) (int64, bool) {
	if n == nil || (n.Type != Int32Lit && n.Type != Int64Lit) {
		return 0, false
	}
	v, err := strconv.ParseInt(n.Value, 10, 64)
	return v, err == nil
}

func literal(like *Node, v int64) *Node {
	n := New(like.Type, strconv.FormatInt(v, 10), like.Tok)
	if n.Type == Int32Lit {
		n.Value = strconv.FormatInt(int64(int32(v)), 10)
	}
	return n
}

func boolLiteral(n *Node, b bool) *Node {
	if b {
		return New(BoolLit, "1", n.Tok)
	}
	return New(BoolLit, "0", n.Tok)
}

func foldNode(n *Node) (*Node, error) {
	switch {
	case n.Type.IsUnary() && n.Type != Deref && n.Type != AddrOf:
		v, ok := intLiteral(n.Child(0))
		if !ok {
			return n, nil
		}
		switch n.Type {
		case Neg:
			return literal(n.Child(0), -v), nil
		case BitNot:
			return literal(n.Child(0), ^v), nil
		case Not:
			return boolLiteral(n, v == 0), nil
		}
	case n.Type.IsBinary():
		lhs, rhs := n.Child(0), n.Child(1)
		l, lok := intLiteral(lhs)
		r, rok := intLiteral(rhs)
		if !lok || !rok || lhs.Type != rhs.Type {
			return n, nil
		}
		switch n.Type {
		case Add:
			return literal(lhs, l+r), nil
		case Sub:
			return literal(lhs, l-r), nil
		case Mul:
			return literal(lhs, l*r), nil
		case BitAnd:
			return literal(lhs, l&r), nil
		case BitOr:
			return literal(lhs, l|r), nil
		case BitXor:
			return literal(lhs, l^r), nil
		case Shl:
			return literal(lhs, l<<uint64(r)), nil
		case Shr:
			return literal(lhs, l>>uint64(r)), nil
		case Div, Mod:
			if r == 0 {
				return nil, util.Errorf(util.ErrDivisionByZero, n.Tok, "compile-time %s by zero", map[NodeType]string{Div: "division", Mod: "modulo"}[n.Type])
			}
			if n.Type == Div {
				return literal(lhs, l/r), nil
			}
			return literal(lhs, l%r), nil
		case Eq:
			return boolLiteral(n, l == r), nil
		case Neq:
			return boolLiteral(n, l != r), nil
		case Lt:
			return boolLiteral(n, l < r), nil
		case Lte:
			return boolLiteral(n, l <= r), nil
		case Gt:
			return boolLiteral(n, l > r), nil
		case Gte:
			return boolLiteral(n, l >= r), nil
		}
	}
	return n, nil
}
