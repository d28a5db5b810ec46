package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/nvylang/nvyc/pkg/config"
	"github.com/nvylang/nvyc/pkg/preprocess"
	"github.com/nvylang/nvyc/pkg/util"
)

const sample = `func main() -> int32 {
	let x = 2 * 3;
	return x;
}
`

func newPipeline(m mode, log *bytes.Buffer) *pipeline {
	cfg := config.NewConfig()
	cfg.SetFeature(config.FeatColor, false)
	return &pipeline{
		cfg:     cfg,
		diag:    util.NewCollector(cfg),
		log:     &progress{w: log, verbose: true},
		mode:    m,
		backend: "llvm",
	}
}

func fromSource(src string) func(*preprocess.Preprocessor) ([]util.SourceLine, error) {
	return func(pp *preprocess.Preprocessor) ([]util.SourceLine, error) {
		return pp.Source("test.nvy", src)
	}
}

func TestModeFor(t *testing.T) {
	tests := map[string]mode{
		"out.tr":      modeTree,
		"out.flat":    modeFlat,
		"out.nvss":    modeSource,
		"out.ll":      modeIR,
		"out":         modeIR,
		"-":           modeIR,
		"dir.tr/out":  modeIR,
		"a/b/main.tr": modeTree,
	}
	for output, want := range tests {
		if got := modeFor(output); got != want {
			t.Errorf("modeFor(%q) = %d, want %d", output, got, want)
		}
	}
}

func TestIRPath(t *testing.T) {
	tests := map[string]string{
		"out.ll":      "out_nvy_tmp.ll",
		"out":         "out_nvy_tmp.ll",
		"build/x.bin": "build/x_nvy_tmp.ll",
	}
	for output, want := range tests {
		if got := irPath(output); got != want {
			t.Errorf("irPath(%q) = %q, want %q", output, got, want)
		}
	}
}

func TestPipelineIR(t *testing.T) {
	var log bytes.Buffer
	p := newPipeline(modeIR, &log)
	u, err := p.run(fromSource(sample))
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	ir := u.ir.String()
	for _, want := range []string{
		`target triple = "x86_64-pc-linux-gnu"`,
		"define i32 @main() {",
		"\tstore i32 6, i32* %x",
	} {
		if !strings.Contains(ir, want) {
			t.Errorf("IR lacks %q:\n%s", want, ir)
		}
	}

	wantLog := []string{
		"Preprocessing...",
		"Tokenizing...",
		"Parsing tokens into AST...",
		"Validating...",
		"Generating code with 'llvm' backend...",
	}
	if diff := cmp.Diff(wantLog, strings.Split(strings.TrimSpace(log.String()), "\n")); diff != "" {
		t.Errorf("progress mismatch (-want +got):\n%s", diff)
	}
}

func TestPipelineStopsEarly(t *testing.T) {
	var log bytes.Buffer
	u, err := newPipeline(modeSource, &log).run(fromSource("// header\n" + sample))
	if err != nil {
		t.Fatal(err)
	}
	if u.tree != nil || u.ir != nil {
		t.Errorf("source mode ran past preprocessing")
	}
	if got := sourceText(u.lines); !strings.HasPrefix(got, "func main() -> int32 {\n") {
		t.Errorf("sourceText = %q", got)
	}

	u, err = newPipeline(modeTree, &log).run(fromSource(sample))
	if err != nil {
		t.Fatal(err)
	}
	if u.tree == nil || u.ir != nil {
		t.Errorf("tree mode: tree=%v ir=%v", u.tree != nil, u.ir != nil)
	}
}

func TestPipelineErrors(t *testing.T) {
	tests := []struct {
		name string
		src  string
		want util.ErrorKind
	}{
		{"lexer", "func main() -> int32 { return \"open; }", util.ErrUnterminatedString},
		{"parser", "func main() -> int32 { return 1 }", util.ErrMissingSemicolon},
		{"validator", "func f(int32 a) -> int32 { return a; }\nfunc main() -> int32 { return f(); }", util.ErrWrongNumberOfArguments},
		{"codegen", "func main() -> int32 { return y; }", util.ErrUndeclaredIdentifier},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var log bytes.Buffer
			_, err := newPipeline(modeIR, &log).run(fromSource(tt.src))
			if got := util.KindOf(err); got != tt.want {
				t.Errorf("got %v (%v), want %v", got, err, tt.want)
			}
		})
	}
}

func TestArityMismatchStopsBeforeCodegen(t *testing.T) {
	var log bytes.Buffer
	u, err := newPipeline(modeIR, &log).run(fromSource("func f(int32 a) -> int32 { return a; }\nfunc main() -> int32 { return f(1, 2); }"))
	if got := util.KindOf(err); got != util.ErrWrongNumberOfArguments {
		t.Fatalf("got %v (%v), want %v", got, err, util.ErrWrongNumberOfArguments)
	}
	if u != nil {
		t.Error("a unit was returned for a rejected program")
	}
	phases := strings.Split(strings.TrimSpace(log.String()), "\n")
	if last := phases[len(phases)-1]; last != "Validating..." {
		t.Errorf("last phase = %q, want the validator to stop the run:\n%s", last, log.String())
	}
}

// TestSamplePrograms compiles every program under tests/ in process. The
// gtest goldens pin their exact output; this keeps them compiling.
func TestSamplePrograms(t *testing.T) {
	files, err := filepath.Glob(filepath.Join("..", "..", "tests", "*.nvy"))
	if err != nil {
		t.Fatal(err)
	}
	if len(files) == 0 {
		t.Fatal("no sample programs found")
	}
	failing := map[string]util.ErrorKind{
		"errors_arity.nvy":      util.ErrWrongNumberOfArguments,
		"errors_undeclared.nvy": util.ErrUndeclaredIdentifier,
	}
	for _, file := range files {
		name := filepath.Base(file)
		t.Run(name, func(t *testing.T) {
			var log bytes.Buffer
			p := newPipeline(modeIR, &log)
			p.cfg.IncludeDir = filepath.Join("..", "..", "nvylib")
			u, err := p.run(func(pp *preprocess.Preprocessor) ([]util.SourceLine, error) {
				return pp.File(file)
			})
			if want, ok := failing[name]; ok {
				if got := util.KindOf(err); got != want {
					t.Errorf("got %v (%v), want %v", got, err, want)
				}
				return
			}
			if err != nil {
				t.Fatalf("run: %v", err)
			}
			if ir := u.ir.String(); !strings.Contains(ir, "define i32 @main(") {
				t.Errorf("no main in:\n%s", ir)
			}
		})
	}
}

func TestUnknownBackend(t *testing.T) {
	var log bytes.Buffer
	p := newPipeline(modeIR, &log)
	p.backend = "qbe"
	if _, err := p.run(fromSource(sample)); err == nil || !strings.Contains(err.Error(), "unsupported backend 'qbe'") {
		t.Errorf("got %v", err)
	}
}

func TestWriteSource(t *testing.T) {
	out := filepath.Join(t.TempDir(), "main.nvss")
	var log bytes.Buffer
	u, err := newPipeline(modeSource, &log).run(fromSource(sample))
	if err != nil {
		t.Fatal(err)
	}
	if err := write(modeSource, out, u); err != nil {
		t.Fatal(err)
	}
	got, err := os.ReadFile(out)
	if err != nil {
		t.Fatal(err)
	}
	want := "func main() -> int32 {\nlet x = 2 * 3;\nreturn x;\n}\n"
	if diff := cmp.Diff(want, string(got)); diff != "" {
		t.Errorf(".nvss mismatch (-want +got):\n%s", diff)
	}
}

func TestComplete(t *testing.T) {
	tests := []struct {
		src  string
		want bool
	}{
		{"", true},
		{":tree", true},
		{"let x = 1;", true},
		{"let x = 1", false},
		{"func main() -> int32 {", false},
		{"func main() -> int32 {\n\treturn 0;", false},
		{"func main() -> int32 {\n\treturn 0;\n}", true},
		{`let s = "{";`, true},
		{`let c = '}';`, true},
		{`let s = "a;`, false},
	}
	for _, tt := range tests {
		if got := complete(tt.src); got != tt.want {
			t.Errorf("complete(%q) = %v, want %v", tt.src, got, tt.want)
		}
	}
}

func TestSessionKeepsOnlyCompilingChunks(t *testing.T) {
	var log bytes.Buffer
	p := newPipeline(modeIR, &log)
	p.log.verbose = false
	s := &session{p: p}

	if err := s.compile("native func puts(string s) -> int32;"); err != nil {
		t.Fatalf("declaration: %v", err)
	}
	if err := s.compile("func main() -> int32 { return nope; }"); err == nil {
		t.Fatal("undeclared identifier compiled")
	}
	if err := s.compile("func main() -> int32 { puts(\"hi\"); return 0; }"); err != nil {
		t.Fatalf("main: %v", err)
	}
	if !strings.Contains(s.last.ir.String(), "call i32 @puts(i8* %.str_0)") {
		t.Errorf("session IR:\n%s", s.last.ir.String())
	}

	var out bytes.Buffer
	if s.command(":reset", &out) {
		t.Fatal(":reset quit the session")
	}
	if s.src.Len() != 0 || s.last != nil {
		t.Error(":reset kept state")
	}
	if !s.command(":quit", &out) {
		t.Error(":quit did not quit")
	}
}
