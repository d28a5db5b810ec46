// Package ast defines the tree the parser builds and the code generator walks.
package ast

import "github.com/nvylang/nvyc/pkg/token"

// NodeType defines the kind of a node in the AST
type NodeType int

const (
	Program NodeType = iota

	// Declarations
	Function
	FuncParams
	Param
	FuncReturn
	FuncBody
	Native
	Modifier
	Struct
	StructMember
	VarDef
	Cast
	TypeRef

	// Statements
	Assign
	If
	Condition
	Else
	ForLoop
	LoopDef
	LoopCond
	LoopIter
	WhileLoop
	Return

	// Values
	Call
	Variable
	Member
	Array
	ArrayAccess
	Int32Lit
	Int64Lit
	FP32Lit
	FP64Lit
	BoolLit
	CharLit
	StringLit

	// Binary operators
	Add
	Sub
	Mul
	Div
	Mod
	BitAnd
	BitOr
	BitXor
	Shl
	Shr
	UShr
	LogicAnd
	LogicOr
	Eq
	Neq
	Lt
	Lte
	Gt
	Gte

	// Unary operators
	Neg
	Not
	BitNot
	Deref
	AddrOf
)

var nodeNames = [...]string{
	Program: "PROGRAM", Function: "FUNCTION", FuncParams: "FUNCTIONPARAM", Param: "PARAM",
	FuncReturn: "FUNCTIONRETURN", FuncBody: "FUNCTIONBODY", Native: "NATIVE", Modifier: "MODIFIER",
	Struct: "STRUCT", StructMember: "STRUCTMEMBER", VarDef: "VARDEF", Cast: "CAST", TypeRef: "TYPE",
	Assign: "ASSIGN", If: "IF", Condition: "CONDITION", Else: "ELSE", ForLoop: "FORLOOP",
	LoopDef: "LOOPDEF", LoopCond: "LOOPCOND", LoopIter: "LOOPITERATION", WhileLoop: "WHILELOOP",
	Return: "RETURN", Call: "FUNCTIONCALL", Variable: "VARIABLE", Member: "MEMBER", Array: "ARRAY",
	ArrayAccess: "ARRAY_ACCESS", Int32Lit: "INT32", Int64Lit: "INT64", FP32Lit: "FP32", FP64Lit: "FP64",
	BoolLit: "BOOL", CharLit: "CHAR", StringLit: "STR",
	Add: "ADD", Sub: "SUB", Mul: "MUL", Div: "DIV", Mod: "MODULO", BitAnd: "BITAND", BitOr: "BITOR",
	BitXor: "BITXOR", Shl: "ARITHLEFTSHIFT", Shr: "ARITHRIGHTSHIFT", UShr: "LOGICRIGHTSHIFT",
	LogicAnd: "LOGICAND", LogicOr: "LOGICOR", Eq: "EQ", Neq: "NEQ", Lt: "LT", Lte: "LTE", Gt: "GT", Gte: "GTE",
	Neg: "SWITCHSIGN", Not: "NOT", BitNot: "BITNEGATE", Deref: "PTRDEREF", AddrOf: "FINDADDRESS",
}

func (t NodeType) String() string {
	if int(t) >= 0 && int(t) < len(nodeNames) && nodeNames[t] != "" {
		return nodeNames[t]
	}
	return "UNKNOWN"
}

func (t NodeType) IsLiteral() bool { return t >= Int32Lit && t <= StringLit }

func (t NodeType) IsBinary() bool { return t >= Add && t <= Gte }

func (t NodeType) IsUnary() bool { return t >= Neg && t <= AddrOf }

// IsComparison reports whether the operator yields an i1.
func (t NodeType) IsComparison() bool { return t >= Eq && t <= Gte }

// IsLogical covers the comparisons and the short-circuit-free && and ||.
func (t NodeType) IsLogical() bool { return t.IsComparison() || t == LogicAnd || t == LogicOr || t == Not }

// IsExpression reports whether nodes of this type produce a value.
func (t NodeType) IsExpression() bool {
	return t.IsLiteral() || t.IsBinary() || t.IsUnary() ||
		t == Call || t == Variable || t == ArrayAccess
}

// Node represents a node in the Abstract Syntax Tree. A node is owned by
// its parent; rewrites build new nodes instead of mutating shared ones.
type Node struct {
	Type     NodeType
	Value    string
	Children []*Node
	Tok      token.Token
}

func (n *Node) Line() int { return n.Tok.Line }

// Child returns the i-th child or nil.
func (n *Node) Child(i int) *Node {
	if n == nil || i < 0 || i >= len(n.Children) {
		return nil
	}
	return n.Children[i]
}

// Find returns the first direct child of the given type or nil.
func (n *Node) Find(t NodeType) *Node {
	if n == nil {
		return nil
	}
	for _, c := range n.Children {
		if c.Type == t {
			return c
		}
	}
	return nil
}

func New(typ NodeType, value string, tok token.Token, children ...*Node) *Node {
	return &Node{Type: typ, Value: value, Tok: tok, Children: children}
}

// NewBinary uses the operator as both node kind and node value.
func NewBinary(op NodeType, tok token.Token, lhs, rhs *Node) *Node {
	return New(op, op.String(), tok, lhs, rhs)
}

func NewUnary(op NodeType, tok token.Token, operand *Node) *Node {
	return New(op, op.String(), tok, operand)
}

func NewFunction(tok token.Token, name string, params []*Node, ret string, body []*Node) *Node {
	return New(Function, name, tok,
		New(FuncParams, "VOID", tok, params...),
		New(FuncReturn, "VOID", tok, New(TypeRef, ret, tok)),
		New(FuncBody, "VOID", tok, body...),
	)
}

func NewParam(tok token.Token, name, typ string) *Node {
	return New(Param, name, tok, New(TypeRef, typ, tok))
}

func NewStructMember(tok token.Token, name, typ string) *Node {
	return New(StructMember, name, tok, New(TypeRef, typ, tok))
}

// NewMemberChain builds VARIABLE(base) -> MEMBER(m1) -> MEMBER(m2) ...
func NewMemberChain(tok token.Token, base string, members []string) *Node {
	root := New(Variable, base, tok)
	cur := root
	for _, m := range members {
		next := New(Member, m, tok)
		cur.Children = append(cur.Children, next)
		cur = next
	}
	return root
}

// MemberPath flattens a member chain back into its names, base first.
func MemberPath(n *Node) []string {
	var path []string
	for cur := n; cur != nil; cur = cur.Find(Member) {
		path = append(path, cur.Value)
	}
	return path
}

// Parts returns the pieces of a function node.
func (n *Node) Parts() (params []*Node, ret string, body []*Node) {
	if p := n.Find(FuncParams); p != nil {
		params = p.Children
	}
	if r := n.Find(FuncReturn); r != nil && len(r.Children) > 0 {
		ret = r.Children[0].Value
	}
	if b := n.Find(FuncBody); b != nil {
		body = b.Children
	}
	return
}

// TypeOf returns the spelling stored under a Param, StructMember or Cast.
func (n *Node) TypeOf() string {
	if t := n.Find(TypeRef); t != nil {
		return t.Value
	}
	return n.Value
}
