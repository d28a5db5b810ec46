package parser

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/nvylang/nvyc/pkg/ast"
	"github.com/nvylang/nvyc/pkg/config"
	"github.com/nvylang/nvyc/pkg/lexer"
	"github.com/nvylang/nvyc/pkg/normalizer"
	"github.com/nvylang/nvyc/pkg/symbols"
	"github.com/nvylang/nvyc/pkg/token"
	"github.com/nvylang/nvyc/pkg/util"
)

func tokens(t *testing.T, src string) []token.Token {
	t.Helper()
	toks, err := lexer.Lex(src)
	if err != nil {
		t.Fatalf("Lex: %v", err)
	}
	toks, err = normalizer.Normalize(toks)
	if err != nil {
		t.Fatalf("Normalize: %v", err)
	}
	return toks
}

func parse(t *testing.T, src string) (*ast.Node, *symbols.Context, error) {
	t.Helper()
	ctx := symbols.NewContext()
	root, err := NewParser(ctx, config.NewConfig()).Parse(tokens(t, src))
	return root, ctx, err
}

func mustParse(t *testing.T, src string) (*ast.Node, *symbols.Context) {
	t.Helper()
	root, ctx, err := parse(t, src)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	return root, ctx
}

func TestExpressionPrecedence(t *testing.T) {
	tests := []struct {
		src  string
		want string
	}{
		{"1+2*3", "ADD(1, MUL(2, 3))"},
		{"(1+2)*3", "MUL(ADD(1, 2), 3)"},
		{"-x*2", "MUL(SWITCHSIGN(x), 2)"},
		{"1 - 2 - 3", "SUB(SUB(1, 2), 3)"},
		{"a - -b", "SUB(a, SWITCHSIGN(b))"},
		{"x * -y", "MUL(x, SWITCHSIGN(y))"},
		{"a - *p", "SUB(a, PTRDEREF(p))"},
		{"**p", "PTRDEREF(PTRDEREF(p))"},
		{"*p + 1", "ADD(PTRDEREF(p), 1)"},
		{"&x", "FINDADDRESS(x)"},
		{"ref x", "FINDADDRESS(x)"},
		{"!a == b", "EQ(NOT(a), b)"},
		{"~a & b", "BITAND(BITNEGATE(a), b)"},
		{"a || b && c", "LOGICOR(a, LOGICAND(b, c))"},
		{"a | b ^ c & d", "BITOR(a, BITXOR(b, BITAND(c, d)))"},
		{"x << 1 + 2", "ARITHLEFTSHIFT(x, ADD(1, 2))"},
		{"a < b == c >= d", "EQ(LT(a, b), GTE(c, d))"},
		{"x >>> 3 % 2", "LOGICRIGHTSHIFT(x, MODULO(3, 2))"},
		{"f(1, g(2, 3)) + a[i]", "ADD(FUNCTIONCALL[f](1, FUNCTIONCALL[g](2, 3)), ARRAY_ACCESS[a](i))"},
		{"f()", "FUNCTIONCALL[f]"},
		{"p.a.b * 2", "MUL(VARIABLE[p](MEMBER[a](b)), 2)"},
		{`"hi"`, `"hi"`},
		{"true", "1"},
	}
	for _, tt := range tests {
		t.Run(tt.src, func(t *testing.T) {
			p := NewParser(symbols.NewContext(), config.NewConfig())
			got, err := p.ParseExpression(tokens(t, tt.src))
			if err != nil {
				t.Fatalf("ParseExpression: %v", err)
			}
			if s := ast.Sexpr(got); s != tt.want {
				t.Errorf("got %s, want %s", s, tt.want)
			}
		})
	}
}

func TestExpressionErrors(t *testing.T) {
	tests := []struct {
		src  string
		kind util.ErrorKind
	}{
		{"1 +", util.ErrInsufficientOperands},
		{"(1 + 2", util.ErrExpectedParenClose},
		{"1 + 2)", util.ErrExpectedParenOpen},
		{"1 2", util.ErrUnexpectedToken},
		{"*", util.ErrInsufficientOperands},
		{"f(1,,2)", util.ErrExpectedExpression},
	}
	for _, tt := range tests {
		t.Run(tt.src, func(t *testing.T) {
			p := NewParser(symbols.NewContext(), config.NewConfig())
			_, err := p.ParseExpression(tokens(t, tt.src))
			if util.KindOf(err) != tt.kind {
				t.Errorf("err = %v, want %v", err, tt.kind)
			}
		})
	}
}

func TestFunctionDefinition(t *testing.T) {
	root, ctx := mustParse(t, `
func add(int32 a, int64* b) -> int32 {
	return a + *b;
}`)
	want := "TNODE(PROGRAM, )\n" +
		"    -- TNODE(FUNCTION, add)\n" +
		"    --     -- TNODE(FUNCTIONPARAM, VOID)\n" +
		"    --     --     -- TNODE(PARAM, a)\n" +
		"    --     --     --     -- TNODE(TYPE, int32)\n" +
		"    --     --     -- TNODE(PARAM, b)\n" +
		"    --     --     --     -- TNODE(TYPE, int64*)\n" +
		"    --     -- TNODE(FUNCTIONRETURN, VOID)\n" +
		"    --     --     -- TNODE(TYPE, int32)\n" +
		"    --     -- TNODE(FUNCTIONBODY, VOID)\n" +
		"    --     --     -- TNODE(RETURN, VOID)\n" +
		"    --     --     --     -- TNODE(ADD, ADD)\n" +
		"    --     --     --     --     -- TNODE(VARIABLE, a)\n" +
		"    --     --     --     --     -- TNODE(PTRDEREF, PTRDEREF)\n" +
		"    --     --     --     --     --     -- TNODE(VARIABLE, b)\n"
	if diff := cmp.Diff(want, ast.Dump(root)); diff != "" {
		t.Errorf("tree mismatch (-want +got):\n%s", diff)
	}
	fn, ok := ctx.Funcs.Lookup("add")
	if !ok {
		t.Fatalf("add not registered")
	}
	if fn.Prototype() != "i32, i64*" || fn.ReturnType() != "i32" {
		t.Errorf("signature = (%s) -> %s", fn.Prototype(), fn.ReturnType())
	}
	if diff := cmp.Diff([]string{"a", "b"}, fn.ParamNames); diff != "" {
		t.Errorf("param names (-want +got):\n%s", diff)
	}
}

func TestNativeVariadic(t *testing.T) {
	root, ctx := mustParse(t, `native func printf(string fmt, ...) -> int32;`)
	if root.Children[0].Type != ast.Native || root.Children[0].Children[0].Type != ast.Function {
		t.Fatalf("unexpected tree:\n%s", ast.Dump(root))
	}
	fn, _ := ctx.Funcs.Lookup("printf")
	if !fn.Native || !fn.Variadic || fn.VariadicIndex != 1 || fn.Prototype() != "i8*, ..." {
		t.Errorf("printf = %+v", fn)
	}
}

func TestStructAndMembers(t *testing.T) {
	root, ctx := mustParse(t, `
struct P { int32 a, int32 b }
func main() -> int32 {
	let p = (P);
	p.b = 5;
	return p.b;
}`)
	pos, typ, ok := ctx.Structs.Member("P", "b")
	if !ok || pos != 1 || typ.Kind != symbols.Int32 {
		t.Errorf("P.b = (%d, %v, %v)", pos, typ, ok)
	}
	body := root.Children[1].Find(ast.FuncBody).Children
	if got := ast.Sexpr(body[0]); got != "VARDEF[p](CAST[P])" {
		t.Errorf("vardef = %s", got)
	}
	if got := ast.Sexpr(body[1]); got != "ASSIGN[VOID](VARIABLE[p](b), 5)" {
		t.Errorf("assign = %s", got)
	}
}

func TestStructUsedBeforeDefinition(t *testing.T) {
	_, ctx := mustParse(t, `
func origin() -> Vec { let v = (Vec); return v; }
struct Vec { fp64 x, fp64 y }`)
	fn, _ := ctx.Funcs.Lookup("origin")
	if fn.ReturnType() != "%Vec" {
		t.Errorf("return type = %s", fn.ReturnType())
	}
}

func TestStatementShapes(t *testing.T) {
	root, _ := mustParse(t, `
let counter = 3;
func main() -> int32 {
	let arr = int32[4];
	let y = (int64) 7;
	arr[1] = 2;
	*ptr = 1;
	for (let i = 0; i < 3; i + 1) {
		puts(i);
	}
	while (y > 0) { y = y - 1; }
	if (1) { return 1; } else if (y) { return 2; } else { return 3; }
}`)
	body := root.Children[1].Find(ast.FuncBody).Children
	want := []string{
		"VARDEF[arr](ARRAY[int32](4))",
		"VARDEF[y](CAST[int64], 7)",
		"ASSIGN[VOID](ARRAY_ACCESS[arr](1), 2)",
		"ASSIGN[VOID](PTRDEREF(ptr), 1)",
		"FORLOOP[VOID](LOOPDEF[VOID](VARDEF[i](0)), LOOPCOND[VOID](LT(i, 3)), LOOPITERATION[VOID](ADD(i, 1)), FUNCTIONBODY[VOID](FUNCTIONCALL[puts](i)))",
		"WHILELOOP[VOID](CONDITION[VOID](GT(y, 0)), FUNCTIONBODY[VOID](ASSIGN[VOID](y, SUB(y, 1))))",
		"IF[VOID](CONDITION[VOID](1), FUNCTIONBODY[VOID](RETURN[VOID](1)), ELSE[VOID](IF[VOID](CONDITION[VOID](y), FUNCTIONBODY[VOID](RETURN[VOID](2)), ELSE[VOID](RETURN[VOID](3)))))",
	}
	var got []string
	for _, n := range body {
		got = append(got, ast.Sexpr(n))
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("statements mismatch (-want +got):\n%s", diff)
	}
	if g := root.Children[0]; g.Type != ast.VarDef || g.Value != "counter" {
		t.Errorf("global = %s", ast.Sexpr(g))
	}
}

func TestStatementErrors(t *testing.T) {
	tests := []struct {
		name string
		src  string
		kind util.ErrorKind
	}{
		{"missing semicolon", "func main() { let x = 1 return x; }", util.ErrMissingSemicolon},
		{"unclosed body", "func main() { let x = 1;", util.ErrExpectedBraceClose},
		{"bad target", "func main() { 1 = 2; }", util.ErrInvalidAssignmentTarget},
		{"return at top level", "return 1;", util.ErrReturnOutsideFunction},
		{"unknown type", "func f(Foo x) { }", util.ErrExpectedType},
		{"not a statement", "func main() { x + 1; }", util.ErrUnexpectedToken},
		{"struct redefined", "struct A { int32 x } struct A { int32 y }", util.ErrRedeclaration},
		{"duplicate member", "struct P { int32 a, int32 a }", util.ErrRedeclaration},
		{"dangling else", "func main() { else { } }", util.ErrUnexpectedToken},
		{"missing paren", "func main() { if 1 { } }", util.ErrExpectedParenOpen},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, err := parse(t, tt.src)
			if util.KindOf(err) != tt.kind {
				t.Errorf("err = %v, want %v", err, tt.kind)
			}
		})
	}
}

func TestMissingSemicolonFragment(t *testing.T) {
	_, _, err := parse(t, "func main() { let x = 1 + 2\n return x; }")
	if err == nil {
		t.Fatal("expected an error")
	}
	var d *util.Diagnostic
	if !asDiagnostic(err, &d) || d.Fragment != "1 + 2" {
		t.Errorf("fragment = %q", d.Fragment)
	}
}

func asDiagnostic(err error, d **util.Diagnostic) bool {
	if v, ok := err.(*util.Diagnostic); ok {
		*d = v
		return true
	}
	return false
}
