package token

type Type int

const (
	Program Type = iota
	EOS

	// Literals
	Int32Lit
	Int64Lit
	FP32Lit
	FP64Lit
	BoolLit
	CharLit
	StringLit
	Ident

	// Keywords
	Let
	Func
	If
	Else
	Switch
	Case
	Return
	For
	While
	TypeWord

	// Modifiers
	Final
	Static
	Public
	Private
	Impl
	Constant
	Native
	Ref
	Struct

	// Single-character symbols
	Plus
	Minus
	Slash
	Star
	Percent
	Tilde
	Amp
	Pipe
	Caret
	Gt
	Lt
	Bang
	Question
	Dot
	LParen
	RParen
	Assign
	Semi
	Comma
	LBracket
	RBracket
	LBrace
	RBrace
	Backslash

	// Compounds built by the normalizer
	OrOr
	AndAnd
	Shl
	Shr
	UShr
	EqEq
	Neq
	Lte
	Gte
	PointerType
	ArrayType
	ArraySize
	ArrayAccess
)

var KeywordMap = map[string]Type{
	"let":    Let,
	"func":   Func,
	"if":     If,
	"else":   Else,
	"switch": Switch,
	"case":   Case,
	"return": Return,
	"for":    For,
	"while":  While,

	"final":    Final,
	"static":   Static,
	"public":   Public,
	"private":  Private,
	"impl":     Impl,
	"constant": Constant,
	"native":   Native,
	"ref":      Ref,
	"struct":   Struct,
}

// TypeWords are the builtin type names. They all lex to TypeWord and keep
// their spelling as the token value.
var TypeWords = map[string]bool{
	"int32":     true,
	"int64":     true,
	"unsigned":  true,
	"fp32":      true,
	"fp64":      true,
	"string":    true,
	"char":      true,
	"bool":      true,
	"type":      true,
	"short":     true,
	"numeric32": true,
	"numeric64": true,
	"unified":   true,
	"function":  true,
	"void":      true,
	"...":       true,
}

var SymbolMap = map[rune]Type{
	'+':  Plus,
	'-':  Minus,
	'/':  Slash,
	'*':  Star,
	'%':  Percent,
	'~':  Tilde,
	'&':  Amp,
	'|':  Pipe,
	'^':  Caret,
	'>':  Gt,
	'<':  Lt,
	'!':  Bang,
	'?':  Question,
	'.':  Dot,
	'(':  LParen,
	')':  RParen,
	'=':  Assign,
	';':  Semi,
	',':  Comma,
	'[':  LBracket,
	']':  RBracket,
	'{':  LBrace,
	'}':  RBrace,
	'\\': Backslash,
}

var typeNames = [...]string{
	Program: "PROGRAM", EOS: "ENDOFSTREAM",
	Int32Lit: "INT32", Int64Lit: "INT64", FP32Lit: "FP32", FP64Lit: "FP64",
	BoolLit: "BOOL", CharLit: "CHAR", StringLit: "STR", Ident: "VARIABLE",
	Let: "VARDEF", Func: "FUNCTION", If: "IF", Else: "ELSE", Switch: "SWITCH",
	Case: "CASE", Return: "RETURN", For: "FORLOOP", While: "WHILELOOP", TypeWord: "TYPE",
	Final: "FINAL", Static: "STATIC", Public: "PUBLIC", Private: "PRIVATE", Impl: "IMPL",
	Constant: "CONSTANT", Native: "NATIVE", Ref: "FINDADDRESS", Struct: "STRUCT",
	Plus: "ADD", Minus: "SUB", Slash: "DIV", Star: "MUL", Percent: "MODULO", Tilde: "BITNEGATE",
	Amp: "BITAND", Pipe: "BITOR", Caret: "BITXOR", Gt: "GT", Lt: "LT", Bang: "NOT",
	Question: "QUESTION", Dot: "ATTRIB", LParen: "OPEN_PARENTHESIS", RParen: "CLOSE_PARENTHESIS",
	Assign: "ASSIGN", Semi: "SEMI", Comma: "COMMA", LBracket: "OPEN_BRACKET",
	RBracket: "CLOSE_BRACKET", LBrace: "OPEN_BRACE", RBrace: "CLOSE_BRACE", Backslash: "BACKSLASH",
	OrOr: "LOGICOR", AndAnd: "LOGICAND", Shl: "ARITHLEFTSHIFT", Shr: "ARITHRIGHTSHIFT",
	UShr: "LOGICRIGHTSHIFT", EqEq: "EQ", Neq: "NEQ", Lte: "LTE", Gte: "GTE",
	PointerType: "POINTER_TYPE", ArrayType: "ARRAY_TYPE", ArraySize: "ARRAY_SIZE", ArrayAccess: "ARRAY_ACCESS",
}

func (t Type) String() string {
	if int(t) >= 0 && int(t) < len(typeNames) && typeNames[t] != "" {
		return typeNames[t]
	}
	return "UNKNOWN"
}

// IsLiteral reports whether t is one of the literal kinds.
func (t Type) IsLiteral() bool { return t >= Int32Lit && t <= StringLit }

// IsModifier reports whether t is a declaration modifier keyword.
func (t Type) IsModifier() bool { return t >= Final && t <= Ref }

// IsStarter reports whether t can only begin a statement. Running into one
// while scanning for a ';' means the semicolon is missing.
func (t Type) IsStarter() bool {
	switch t {
	case Let, Func, If, Else, Switch, Case, Return, For, While, Struct:
		return true
	}
	return t.IsModifier()
}

type Token struct {
	Type      Type
	Value     string
	Aux       string // second value of ArrayAccess (the index)
	FileIndex int
	Line      int
	Column    int
	Len       int
}

func (t Token) String() string {
	if t.Aux != "" {
		return t.Type.String() + "(" + t.Value + ", " + t.Aux + ")"
	}
	return t.Type.String() + "(" + t.Value + ")"
}

// Same reports whether two tokens agree on kind and value.
func (t Token) Same(o Token) bool {
	return t.Type == o.Type && t.Value == o.Value && t.Aux == o.Aux
}
