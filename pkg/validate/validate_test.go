package validate

import (
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/nvylang/nvyc/pkg/config"
	"github.com/nvylang/nvyc/pkg/lexer"
	"github.com/nvylang/nvyc/pkg/normalizer"
	"github.com/nvylang/nvyc/pkg/parser"
	"github.com/nvylang/nvyc/pkg/symbols"
	"github.com/nvylang/nvyc/pkg/util"
)

func check(t *testing.T, src string) (*util.Collector, error) {
	t.Helper()
	toks, err := lexer.Lex(src)
	if err != nil {
		t.Fatalf("Lex: %v", err)
	}
	if toks, err = normalizer.Normalize(toks); err != nil {
		t.Fatalf("Normalize: %v", err)
	}
	cfg := config.NewConfig()
	ctx := symbols.NewContext()
	root, err := parser.NewParser(ctx, cfg).Parse(toks)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	diag := util.NewCollector(cfg)
	return diag, NewValidator(ctx, diag).Check(root)
}

func TestValidProgram(t *testing.T) {
	src := `native func printf(string fmt, ...) -> int32;
func add(int32 a, int32 b) -> int32 { return a + b; }
func main() -> int32 {
	let n = sizeof(add);
	printf("%d %d\n", add(1, 2), n);
	printf("plain\n");
	return 0;
}`
	diag, err := check(t, src)
	if err != nil {
		t.Fatalf("Check: %v", err)
	}
	if diag.WarningCount() != 0 {
		t.Errorf("got %d warnings, want none", diag.WarningCount())
	}
}

func TestCollectsEveryError(t *testing.T) {
	src := `func f(int32 a) -> int32 { return a; }
func f(int32 a) -> int32 { return a; }
native func printf(string fmt, ...) -> int32;
func main() -> int32 {
	f(1, 2);
	g();
	printf();
	return 0;
}`
	diag, err := check(t, src)
	if util.KindOf(err) != util.ErrRedeclaration {
		t.Fatalf("first error = %v, want Redeclaration", err)
	}
	var kinds []util.ErrorKind
	for _, e := range diag.Errors() {
		kinds = append(kinds, util.KindOf(e))
	}
	want := []util.ErrorKind{
		util.ErrRedeclaration,
		util.ErrWrongNumberOfArguments,
		util.ErrUndeclaredIdentifier,
		util.ErrWrongNumberOfArguments,
	}
	if diff := cmp.Diff(want, kinds); diff != "" {
		t.Errorf("error kinds mismatch (-want +got):\n%s", diff)
	}
	if !strings.Contains(diag.Errors()[3].Error(), "at least 1 arguments, got 0") {
		t.Errorf("variadic arity message = %q", diag.Errors()[3])
	}
}

func TestMissingReturnWarning(t *testing.T) {
	diag, err := check(t, "func f() -> int32 { let x = 1; }\nfunc g() { let y = 2; }")
	if err != nil {
		t.Fatalf("Check: %v", err)
	}
	if diag.WarningCount() != 1 {
		t.Errorf("got %d warnings, want 1", diag.WarningCount())
	}
}
