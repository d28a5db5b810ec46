package codegen

import (
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/llir/llvm/ir/types"
	"github.com/nvylang/nvyc/pkg/config"
	"github.com/nvylang/nvyc/pkg/ir"
	"github.com/nvylang/nvyc/pkg/lexer"
	"github.com/nvylang/nvyc/pkg/normalizer"
	"github.com/nvylang/nvyc/pkg/parser"
	"github.com/nvylang/nvyc/pkg/symbols"
	"github.com/nvylang/nvyc/pkg/util"
)

func generate(t *testing.T, src string) (string, *util.Collector, error) {
	t.Helper()
	toks, err := lexer.Lex(src)
	if err != nil {
		t.Fatalf("Lex: %v", err)
	}
	if toks, err = normalizer.Normalize(toks); err != nil {
		t.Fatalf("Normalize: %v", err)
	}
	cfg := config.NewConfig()
	syms := symbols.NewContext()
	root, err := parser.NewParser(syms, cfg).Parse(toks)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	diag := util.NewCollector(cfg)
	prog, err := NewContext(cfg, syms, diag).GenerateIR(root)
	if err != nil {
		return "", diag, err
	}
	buf, err := NewLLVMBackend().Generate(prog, cfg)
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	return buf.String(), diag, nil
}

func compile(t *testing.T, src string) (string, *util.Collector) {
	t.Helper()
	out, diag, err := generate(t, src)
	if err != nil {
		t.Fatalf("GenerateIR: %v", err)
	}
	return out, diag
}

// body returns the non-blank lines between the define of name and its
// closing brace.
func body(t *testing.T, out, name string) []string {
	t.Helper()
	var lines []string
	in := false
	for _, l := range strings.Split(out, "\n") {
		switch {
		case strings.HasPrefix(l, "define ") && strings.Contains(l, "@"+name+"("):
			in = true
		case in && l == "}":
			return lines
		case in && l != "":
			lines = append(lines, l)
		}
	}
	t.Fatalf("no definition of @%s in:\n%s", name, out)
	return nil
}

func TestMinimalModule(t *testing.T) {
	out, _ := compile(t, `func main() -> int32 {
	let x = 5;
	return x;
}`)
	want := `target triple = "x86_64-pc-linux-gnu"

define i32 @main() {
entry:
	%x = alloca i32
	store i32 5, i32* %x
	%0 = load i32, i32* %x
	ret i32 %0
}
`
	if diff := cmp.Diff(want, out); diff != "" {
		t.Errorf("module mismatch (-want +got):\n%s", diff)
	}
}

func TestForLoop(t *testing.T) {
	out, _ := compile(t, `native func puts(int32 x) -> int32;
func main() -> int32 {
	for (let i = 0; i < 3; i + 1) {
		puts(i);
	}
	return 0;
}`)
	if !strings.Contains(out, "declare i32 @puts(i32 %x)\n") {
		t.Errorf("missing declaration:\n%s", out)
	}
	want := []string{
		"entry:",
		"\t%i = alloca i32",
		"\tstore i32 0, i32* %i",
		"\tbr label %loop_condition0",
		"loop_condition0:",
		"\t%0 = load i32, i32* %i",
		"\t%1 = icmp slt i32 %0, 3",
		"\tbr i1 %1, label %loop_body0, label %loop_exit0",
		"loop_body0:",
		"\t%2 = load i32, i32* %i",
		"\t%3 = call i32 @puts(i32 %2)",
		"\t%4 = load i32, i32* %i",
		"\t%5 = add i32 %4, 1",
		"\tstore i32 %5, i32* %i",
		"\tbr label %loop_condition0",
		"loop_exit0:",
		"\tret i32 0",
	}
	if diff := cmp.Diff(want, body(t, out, "main")); diff != "" {
		t.Errorf("main mismatch (-want +got):\n%s", diff)
	}
}

func TestLiteralBranch(t *testing.T) {
	out, _ := compile(t, `func main() -> int32 {
	if (1) { return 1; }
	return 0;
}`)
	want := []string{
		"entry:",
		"\tbr label %iftrue0",
		"iftrue0:",
		"\tret i32 1",
		"iffalse0:",
		"\tret i32 0",
	}
	if diff := cmp.Diff(want, body(t, out, "main")); diff != "" {
		t.Errorf("main mismatch (-want +got):\n%s", diff)
	}
}

func TestSiblingLabelsAreUnique(t *testing.T) {
	out, _ := compile(t, `func f(int32 x) -> int32 {
	if (x) { x = 1; }
	if (x) { x = 2; }
	return x;
}`)
	lines := body(t, out, "f")
	for _, label := range []string{"iftrue0:", "iffalse0:", "iftrue0.1:", "iffalse0.1:"} {
		if !contains(lines, label) {
			t.Errorf("missing label %s in:\n%s", label, strings.Join(lines, "\n"))
		}
	}
	if want := "\t%x.addr = alloca i32"; lines[1] != want {
		t.Errorf("prologue = %q, want %q", lines[1], want)
	}
	if want := "\tstore i32 %x, i32* %x.addr"; lines[2] != want {
		t.Errorf("spill = %q, want %q", lines[2], want)
	}
}

func TestIfElseBothReturn(t *testing.T) {
	out, _ := compile(t, `func f(int32 x) -> int32 {
	if (x) { return 1; } else { return 2; }
}`)
	want := []string{
		"entry:",
		"\t%0 = icmp ne i32 %x, 0",
		"\tbr i1 %0, label %iftrue0, label %iffalse0",
		"iftrue0:",
		"\tret i32 1",
		"iffalse0:",
		"\tret i32 2",
	}
	if diff := cmp.Diff(want, body(t, out, "f")); diff != "" {
		t.Errorf("f mismatch (-want +got):\n%s", diff)
	}
}

func contains(lines []string, s string) bool {
	for _, l := range lines {
		if l == s {
			return true
		}
	}
	return false
}

func TestMixedArithmetic(t *testing.T) {
	out, _ := compile(t, `func f(int32 a, fp32 b) -> fp32 { return a + b; }
func g(int64 a, fp32 b) -> fp64 { return a + b; }`)

	wantF := []string{
		"entry:",
		"\t%bcast_arith_0_from_a = sitofp i32 %a to float",
		"\t%0 = fadd float %bcast_arith_0_from_a, %b",
		"\tret float %0",
	}
	if diff := cmp.Diff(wantF, body(t, out, "f")); diff != "" {
		t.Errorf("f mismatch (-want +got):\n%s", diff)
	}

	wantG := []string{
		"entry:",
		"\t%bcast_arith_0_from_a = sitofp i64 %a to double",
		"\t%bcast_arith_1_from_b = fpext float %b to double",
		"\t%0 = fadd double %bcast_arith_0_from_a, %bcast_arith_1_from_b",
		"\tret double %0",
	}
	if diff := cmp.Diff(wantG, body(t, out, "g")); diff != "" {
		t.Errorf("g mismatch (-want +got):\n%s", diff)
	}
}

func TestStructMembers(t *testing.T) {
	out, _ := compile(t, `struct P { int32 a, int32 b }
func main() -> int32 {
	let p = (P);
	p.b = 5;
	return p.b;
}`)
	if !strings.Contains(out, "%P = type { i32, i32 }\n") {
		t.Errorf("missing type definition:\n%s", out)
	}
	want := []string{
		"entry:",
		"\t%p = alloca %P",
		"\t%0 = getelementptr %P, %P* %p, i32 0, i32 1",
		"\tstore i32 5, i32* %0",
		"\t%1 = getelementptr %P, %P* %p, i32 0, i32 1",
		"\t%2 = load i32, i32* %1",
		"\tret i32 %2",
	}
	if diff := cmp.Diff(want, body(t, out, "main")); diff != "" {
		t.Errorf("main mismatch (-want +got):\n%s", diff)
	}
}

func TestVariadicCall(t *testing.T) {
	out, _ := compile(t, `native func printf(string fmt, ...) -> int32;
func main() -> int32 {
	let x = 3;
	let f = 1.5;
	printf("%d %f\n", x, f);
	return 0;
}`)
	if !strings.Contains(out, "declare i32 @printf(i8* %fmt, ...)\n") {
		t.Errorf("missing declaration:\n%s", out)
	}
	if !strings.Contains(out, "@.str_0 = private constant [7 x i8] ") {
		t.Errorf("missing string constant:\n%s", out)
	}
	lines := body(t, out, "main")
	for _, want := range []string{
		"\t%.str_0 = getelementptr [7 x i8], [7 x i8]* @.str_0, i32 0, i32 0",
		"\t%promote_0_to_i64 = sext i32 %0 to i64",
		"\t%promote_1_to_double = fpext float %1 to double",
		"\t%2 = call i32 (i8*, ...) @printf(i8* %.str_0, i64 %promote_0_to_i64, double %promote_1_to_double)",
	} {
		if !contains(lines, want) {
			t.Errorf("missing %q in:\n%s", want, strings.Join(lines, "\n"))
		}
	}
}

func TestGlobals(t *testing.T) {
	out, _ := compile(t, `let counter = 3;
let name = "nvy";
func main() -> int32 { return counter; }`)
	for _, want := range []string{
		"@global_counter = global i32 3\n",
		"@global_name = global i8* getelementptr inbounds ([4 x i8], [4 x i8]* @.str_0, i32 0, i32 0)\n",
		"@.str_0 = private constant [4 x i8] ",
		"\t%0 = load i32, i32* @global_counter\n",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("missing %q in:\n%s", want, out)
		}
	}
}

func TestPointers(t *testing.T) {
	out, _ := compile(t, `func main() -> int32 {
	let x = 1;
	let p = &x;
	*p = 7;
	return *p;
}`)
	want := []string{
		"entry:",
		"\t%x = alloca i32",
		"\t%p = alloca i32*",
		"\tstore i32 1, i32* %x",
		"\tstore i32* %x, i32** %p",
		"\t%0 = load i32*, i32** %p",
		"\tstore i32 7, i32* %0",
		"\t%1 = load i32*, i32** %p",
		"\t%2 = load i32, i32* %1",
		"\tret i32 %2",
	}
	if diff := cmp.Diff(want, body(t, out, "main")); diff != "" {
		t.Errorf("main mismatch (-want +got):\n%s", diff)
	}
}

func TestArrays(t *testing.T) {
	out, _ := compile(t, `func main() -> int32 {
	let arr = int32[4];
	arr[1] = 2;
	return arr[1];
}`)
	want := []string{
		"entry:",
		"\t%arr = alloca [4 x i32]",
		"\t%0 = getelementptr [4 x i32], [4 x i32]* %arr, i32 0, i32 1",
		"\tstore i32 2, i32* %0",
		"\t%1 = getelementptr [4 x i32], [4 x i32]* %arr, i32 0, i32 1",
		"\t%2 = load i32, i32* %1",
		"\tret i32 %2",
	}
	if diff := cmp.Diff(want, body(t, out, "main")); diff != "" {
		t.Errorf("main mismatch (-want +got):\n%s", diff)
	}
}

func TestUnaryLowering(t *testing.T) {
	out, _ := compile(t, `func f(int32 a) -> bool {
	let n = -a;
	let m = ~a;
	return !a;
}`)
	lines := body(t, out, "f")
	for _, want := range []string{
		"\t%0 = sub i32 0, %a",
		"\t%1 = xor i32 %a, -1",
		"\t%2 = icmp eq i32 %a, 0",
	} {
		if !contains(lines, want) {
			t.Errorf("missing %q in:\n%s", want, strings.Join(lines, "\n"))
		}
	}
}

func TestShifts(t *testing.T) {
	out, _ := compile(t, `func f(int32 a) -> int32 {
	let x = a >> 1;
	return x >>> 2;
}`)
	lines := body(t, out, "f")
	for _, want := range []string{"\t%0 = ashr i32 %a, 1", "\t%2 = lshr i32 %1, 2"} {
		if !contains(lines, want) {
			t.Errorf("missing %q in:\n%s", want, strings.Join(lines, "\n"))
		}
	}
}

func TestSizeof(t *testing.T) {
	out, _ := compile(t, `struct P { int32 a, fp64 b }
func main() -> int64 {
	let p = (P);
	return sizeof(p) + sizeof(int32);
}`)
	if want := "\t%0 = add i64 12, 4"; !contains(body(t, out, "main"), want) {
		t.Errorf("missing %q in:\n%s", want, out)
	}
}

func TestUnreachableCode(t *testing.T) {
	out, diag := compile(t, `func main() -> int32 {
	return 1;
	let x = 2;
}`)
	if diag.WarningCount() != 1 {
		t.Errorf("warnings = %d, want 1", diag.WarningCount())
	}
	if strings.Contains(out, "%x") {
		t.Errorf("dead code was emitted:\n%s", out)
	}
}

func TestCodegenErrors(t *testing.T) {
	tests := []struct {
		name string
		src  string
		want util.ErrorKind
	}{
		{"undeclared", "func main() -> int32 { return y; }", util.ErrUndeclaredIdentifier},
		{"deref non-pointer", "func main() -> int32 { let x = 1; return *x; }", util.ErrInvalidDereference},
		{"depth mismatch", "func main() { let x = 1; let p = &x; let q = &p; p = q; }", util.ErrTypeDepthMismatch},
		{"division by zero", "func main() -> int32 { let x = 4; return x / 0; }", util.ErrDivisionByZero},
		{"bitwise on float", "func main() { let f = 1.5; let g = f & f; }", util.ErrInvalidOperatorUsage},
		{"return value from void", "func main() { return 1; }", util.ErrTypeMismatch},
		{"missing return value", "func main() -> int32 { return; }", util.ErrTypeMismatch},
		{"non-literal global", "let a = 1; let b = a;", util.ErrTypeMismatch},
		{"int to pointer", "func main() { let x = 1; let p = &x; p = x; }", util.ErrTypeMismatch},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, err := generate(t, tt.src)
			if err == nil {
				t.Fatal("expected an error")
			}
			if got := util.KindOf(err); got != tt.want {
				t.Errorf("kind = %v, want %v (%v)", got, tt.want, err)
			}
		})
	}
}

func TestLabelsAndRegistersShareNames(t *testing.T) {
	out, _ := compile(t, `func main() -> int32 {
	let entry = 1;
	let iftrue0 = 2;
	if (entry) { iftrue0 = 3; }
	return iftrue0;
}
func f(int32 entry) -> int32 { return entry; }`)
	wantMain := []string{
		"entry:",
		"\t%entry.1 = alloca i32",
		"\t%iftrue0 = alloca i32",
		"\tstore i32 1, i32* %entry.1",
		"\tstore i32 2, i32* %iftrue0",
		"\t%0 = load i32, i32* %entry.1",
		"\t%1 = icmp ne i32 %0, 0",
		"\tbr i1 %1, label %iftrue0.1, label %iffalse0",
		"iftrue0.1:",
		"\tstore i32 3, i32* %iftrue0",
		"\tbr label %iffalse0",
		"iffalse0:",
		"\t%2 = load i32, i32* %iftrue0",
		"\tret i32 %2",
	}
	if diff := cmp.Diff(wantMain, body(t, out, "main")); diff != "" {
		t.Errorf("main mismatch (-want +got):\n%s", diff)
	}
	wantF := []string{"entry.1:", "\tret i32 %entry"}
	if diff := cmp.Diff(wantF, body(t, out, "f")); diff != "" {
		t.Errorf("f mismatch (-want +got):\n%s", diff)
	}
}

func TestBoolBitNot(t *testing.T) {
	out, _ := compile(t, `func f(bool b) -> bool { return ~b; }`)
	if want := "\t%0 = xor i1 %b, true"; !contains(body(t, out, "f"), want) {
		t.Errorf("missing %q in:\n%s", want, out)
	}
}

func TestLower(t *testing.T) {
	p := types.NewStruct(types.I32, types.Double)
	p.TypeName = "P"
	ref := &types.StructType{TypeName: "P", Opaque: true}
	hi := &ir.StringConst{Name: ".str_0", Value: "hi"}
	tmp := func(name string) *ir.Temporary { return &ir.Temporary{Name: name} }

	prog := &ir.Program{
		Triple:   "x86_64-pc-linux-gnu",
		TypeDefs: []*types.StructType{p},
		Globals:  []*ir.Data{{Name: "msg", Typ: types.I8Ptr, Init: &ir.StringAddr{Str: hi}}},
		Strings:  []*ir.StringConst{hi},
		Funcs: []*ir.Func{
			{Name: "g", Ret: types.Void, Declare: true},
			{
				Name: "f", Ret: types.Void,
				Params: []*ir.Param{{Name: "a", Typ: types.I32}, {Name: "b", Typ: types.Double}},
				Blocks: []*ir.BasicBlock{
					{Label: &ir.Label{Name: "entry"}, Instructions: []*ir.Instruction{
						{Op: ir.OpAlloca, Typ: ref, Result: tmp("p")},
						{Op: ir.OpGEP, Typ: ref, Result: tmp("0"), Args: []ir.Value{tmp("p"), i32(0), i32(1)}},
						{Op: ir.OpSExt, Typ: types.I32, To: types.I64, Result: tmp("1"), Args: []ir.Value{tmp("a")}},
						{Op: ir.OpFCmp, Pred: "olt", Typ: types.Double, Result: tmp("2"), Args: []ir.Value{tmp("b"), ir.NewFloat(types.Double, 0)}},
						{Op: ir.OpCondBr, Args: []ir.Value{tmp("2"), &ir.Label{Name: "t"}, &ir.Label{Name: "f"}}},
					}},
					{Label: &ir.Label{Name: "t"}, Instructions: []*ir.Instruction{
						{Op: ir.OpCall, Typ: types.Void, Args: []ir.Value{&ir.Global{Name: "g"}}},
						{Op: ir.OpRet, Typ: types.Void},
					}},
					{Label: &ir.Label{Name: "f"}},
				},
			},
		},
	}
	buf, err := NewLLVMBackend().Generate(prog, config.NewConfig())
	if err != nil {
		t.Fatal(err)
	}
	want := `target triple = "x86_64-pc-linux-gnu"

%P = type { i32, double }

@msg = global i8* getelementptr inbounds ([3 x i8], [3 x i8]* @.str_0, i32 0, i32 0)
@.str_0 = private constant [3 x i8] c"hi\00"

declare void @g()

define void @f(i32 %a, double %b) {
entry:
	%p = alloca %P
	%0 = getelementptr %P, %P* %p, i32 0, i32 1
	%1 = sext i32 %a to i64
	%2 = fcmp olt double %b, 0.0
	br i1 %2, label %t, label %f

t:
	call void @g()
	ret void

f:
	unreachable
}
`
	if diff := cmp.Diff(want, buf.String()); diff != "" {
		t.Errorf("module mismatch (-want +got):\n%s", diff)
	}
}

func TestLowerErrors(t *testing.T) {
	tests := []struct {
		name  string
		instr *ir.Instruction
		want  string
	}{
		{"undefined register", &ir.Instruction{Op: ir.OpRet, Typ: types.I32, Args: []ir.Value{&ir.Temporary{Name: "7"}}}, "register %7 used before its definition"},
		{"undefined label", &ir.Instruction{Op: ir.OpBr, Args: []ir.Value{&ir.Label{Name: "nowhere"}}}, "undefined label %nowhere"},
		{"bad predicate", &ir.Instruction{Op: ir.OpICmp, Pred: "lt", Typ: types.I32, Result: &ir.Temporary{Name: "0"}, Args: []ir.Value{i32(1), i32(2)}}, `unknown icmp predicate "lt"`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			prog := &ir.Program{Funcs: []*ir.Func{{
				Name: "main", Ret: types.I32,
				Blocks: []*ir.BasicBlock{{Label: &ir.Label{Name: "entry"}, Instructions: []*ir.Instruction{tt.instr}}},
			}}}
			_, err := Lower(prog, config.NewConfig())
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Errorf("Lower = %v, want error containing %q", err, tt.want)
			}
		})
	}
}

func TestSelectBackend(t *testing.T) {
	for _, name := range []string{"", "llvm"} {
		if b, ok := SelectBackend(name); !ok || b.Name() != "llvm" {
			t.Errorf("SelectBackend(%q) = %v, %v", name, b, ok)
		}
	}
	if _, ok := SelectBackend("qbe"); ok {
		t.Error("SelectBackend(qbe) succeeded")
	}
}
