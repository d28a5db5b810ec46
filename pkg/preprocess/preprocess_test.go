package preprocess

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/nvylang/nvyc/pkg/ast"
	"github.com/nvylang/nvyc/pkg/config"
	"github.com/nvylang/nvyc/pkg/token"
	"github.com/nvylang/nvyc/pkg/util"
)

func TestStripComments(t *testing.T) {
	tests := []struct {
		name string
		src  string
		want string
	}{
		{"line", "let x = 1; // one", "let x = 1;       "},
		{"in string", `printf("a // b");`, `printf("a // b");`},
		{"block", "a /* b */ c", "a         c"},
		{"multiline", "a /* b\nc */ d", "a     \n     d"},
		{"escaped quote", `"\" // x" // y`, `"\" // x"     `},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := StripComments(tt.src, 0)
			if err != nil {
				t.Fatalf("StripComments: %v", err)
			}
			if got != tt.want {
				t.Errorf("got %q, want %q", got, tt.want)
			}
		})
	}

	_, err := StripComments("a\n  /* never closed", 0)
	if util.KindOf(err) != util.ErrUnterminatedComment {
		t.Fatalf("got %v, want UnterminatedComment", err)
	}
	var d *util.Diagnostic
	if de, ok := err.(*util.Diagnostic); ok {
		d = de
	}
	if d == nil || d.Tok.Line != 2 || d.Tok.Column != 3 {
		t.Errorf("unterminated comment anchored at %+v, want 2:3", d)
	}
}

func TestMangle(t *testing.T) {
	if got := Mangle("add", "math"); got != "_nvlang_math_3add_4" {
		t.Errorf("Mangle = %q", got)
	}
	if got := Mangle("f", "my-lib"); got != "_nvlang_mylib_1f_6" {
		t.Errorf("Mangle = %q", got)
	}
}

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
}

func texts(lines []util.SourceLine) []string {
	var out []string
	for _, l := range lines {
		out = append(out, strings.TrimSpace(l.Text))
	}
	return out
}

func TestImportAndMangle(t *testing.T) {
	dir := t.TempDir()
	lib := filepath.Join(dir, "lib")
	writeFile(t, filepath.Join(lib, "math.nvy"), "// helpers\nfunc add(int32 a, int32 b) -> int32 {\n  return a + b;\n}\nnative func printf(string s, ...) -> int32;\n")
	writeFile(t, filepath.Join(dir, "main.nvy"), "%import <math>\n%import math\n%pragma -Fno-while\nfunc main() -> int32 {\n  return add(1, 2);\n}\n")

	cfg := config.NewConfig()
	cfg.IncludeDir = lib
	diag := util.NewCollector(cfg)
	pp := New(cfg, diag)
	lines, err := pp.File(filepath.Join(dir, "main.nvy"))
	if err != nil {
		t.Fatalf("File: %v", err)
	}
	want := []string{
		"func _nvlang_math_3add_4(int32 a, int32 b) -> int32 {",
		"return a + b;",
		"}",
		"native func printf(string s, ...) -> int32;",
		"func main() -> int32 {",
		"return add(1, 2);",
		"}",
	}
	if diff := cmp.Diff(want, texts(lines)); diff != "" {
		t.Errorf("lines mismatch (-want +got):\n%s", diff)
	}
	if lines[0].Line != 2 || lines[4].Line != 4 || lines[0].FileIndex == lines[4].FileIndex {
		t.Errorf("provenance lost: %+v / %+v", lines[0], lines[4])
	}
	if cfg.IsFeatureEnabled(config.FeatWhile) {
		t.Errorf("%%pragma -Fno-while was not applied")
	}
	for _, name := range []string{"add", "math_add", "math.add"} {
		if m, ok := pp.Table.Lookup(name); !ok || m != "_nvlang_math_3add_4" {
			t.Errorf("Lookup(%q) = %q, %v", name, m, ok)
		}
	}
	if _, ok := pp.Table.Lookup("printf"); ok {
		t.Errorf("native declarations must not be mangled")
	}
}

func TestImportErrors(t *testing.T) {
	cfg := config.NewConfig()
	cfg.IncludeDir = t.TempDir()
	pp := New(cfg, util.NewCollector(cfg))
	_, err := pp.Source("main.nvy", "\n%import nothere\n")
	if util.KindOf(err) != util.ErrImport {
		t.Fatalf("got %v, want Import error", err)
	}
	if d, ok := err.(*util.Diagnostic); !ok || d.Tok.Line != 2 {
		t.Errorf("missing import anchored at %v, want line 2", err)
	}
}

func TestNameCollision(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "a.nvy"), "func f() -> int32 { return 1; }\n")
	writeFile(t, filepath.Join(dir, "b.nvy"), "func f() -> int32 { return 2; }\n")

	cfg := config.NewConfig()
	cfg.IncludeDir = dir
	diag := util.NewCollector(cfg)
	pp := New(cfg, diag)
	if _, err := pp.Source("main.nvy", "%import a\n%import b\n"); err != nil {
		t.Fatalf("Source: %v", err)
	}
	if diag.WarningCount() != 1 {
		t.Fatalf("got %d warnings, want 1", diag.WarningCount())
	}
	var sb strings.Builder
	diag.Report(&sb)
	if !strings.Contains(sb.String(), "Name collision found for function f from modules a, b") {
		t.Errorf("report = %q", sb.String())
	}
	if m, _ := pp.Table.Lookup("f"); m != "_nvlang_a_1f_1" {
		t.Errorf("first module should keep the bare name, got %q", m)
	}
	if m, _ := pp.Table.Lookup("b.f"); m != "_nvlang_b_1f_1" {
		t.Errorf("qualified lookup = %q", m)
	}
}

func call(name string) *ast.Node {
	return ast.New(ast.Call, name, token.Token{})
}

func TestCleanup(t *testing.T) {
	table := NewTable()
	table.names["add"] = "_nvlang_math_3add_4"
	table.names["math.add"] = "_nvlang_math_3add_4"
	table.names["sub"] = "_nvlang_math_3sub_4"
	table.modules["_nvlang_math_3add_4"] = "math"
	table.modules["_nvlang_math_3sub_4"] = "math"
	table.addModule("math", token.Token{})
	table.addModule("unused", token.Token{})

	tree := ast.New(ast.Program, "VOID", token.Token{},
		ast.NewFunction(token.Token{}, "sub", nil, "int32", nil),
		ast.NewFunction(token.Token{}, "main", nil, "int32", []*ast.Node{
			call("add"), call("math.add"), call("sub"), call("printf"),
		}),
	)
	cfg := config.NewConfig()
	cfg.SetWarning(config.WarnUnusedImport, true)
	diag := util.NewCollector(cfg)
	out := Cleanup(tree, table, diag)

	var got []string
	ast.Walk(out, func(n *ast.Node) bool {
		if n.Type == ast.Call {
			got = append(got, n.Value)
		}
		return true
	})
	want := []string{"_nvlang_math_3add_4", "_nvlang_math_3add_4", "sub", "printf"}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("calls mismatch (-want +got):\n%s", diff)
	}
	if tree.Children[1].Child(2).Children[0].Value != "add" {
		t.Errorf("Cleanup modified its input")
	}
	if diag.WarningCount() != 1 {
		t.Errorf("got %d warnings, want 1 for the unused module", diag.WarningCount())
	}
}
