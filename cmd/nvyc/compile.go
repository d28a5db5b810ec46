package main

import (
	"bytes"
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"time"

	"github.com/nvylang/nvyc/pkg/ast"
	"github.com/nvylang/nvyc/pkg/codegen"
	"github.com/nvylang/nvyc/pkg/config"
	"github.com/nvylang/nvyc/pkg/lexer"
	"github.com/nvylang/nvyc/pkg/normalizer"
	"github.com/nvylang/nvyc/pkg/parser"
	"github.com/nvylang/nvyc/pkg/preprocess"
	"github.com/nvylang/nvyc/pkg/symbols"
	"github.com/nvylang/nvyc/pkg/util"
	"github.com/nvylang/nvyc/pkg/validate"
)

// mode is what the driver produces, chosen by the output file extension.
type mode int

const (
	modeIR mode = iota
	modeTree
	modeFlat
	modeSource
)

func modeFor(output string) mode {
	switch filepath.Ext(output) {
	case ".tr":
		return modeTree
	case ".flat":
		return modeFlat
	case ".nvss":
		return modeSource
	}
	return modeIR
}

// irPath is where IR for output is written: foo.ll becomes foo_nvy_tmp.ll.
func irPath(output string) string {
	return strings.TrimSuffix(output, filepath.Ext(output)) + "_nvy_tmp.ll"
}

// progress prints phase messages when verbose and phase durations when
// timing is on.
type progress struct {
	w       io.Writer
	verbose bool
	timing  bool
	name    string
	start   time.Time
}

func (p *progress) phase(msg string) {
	p.done()
	if p.verbose {
		fmt.Fprintln(p.w, msg)
	}
	p.name, p.start = strings.TrimSuffix(msg, "..."), time.Now()
}

func (p *progress) done() {
	if p.timing && p.name != "" {
		fmt.Fprintf(p.w, "  %-40s %v\n", p.name, time.Since(p.start).Round(time.Microsecond))
	}
	p.name = ""
}

type unit struct {
	lines []util.SourceLine
	tree  *ast.Node
	ir    *bytes.Buffer
}

// pipeline runs the phases of one compilation unit, stopping after the
// phase the mode needs.
type pipeline struct {
	cfg     *config.Config
	diag    *util.Collector
	log     *progress
	mode    mode
	backend string
}

func (p *pipeline) run(load func(*preprocess.Preprocessor) ([]util.SourceLine, error)) (*unit, error) {
	defer p.log.done()

	p.log.phase("Preprocessing...")
	pp := preprocess.New(p.cfg, p.diag)
	lines, err := load(pp)
	if err != nil {
		return nil, err
	}
	u := &unit{lines: lines}
	if p.mode == modeSource {
		return u, nil
	}

	p.log.phase("Tokenizing...")
	toks, err := lexer.NewLexer(lines).Tokenize()
	if err != nil {
		return nil, err
	}
	if toks, err = normalizer.Normalize(toks); err != nil {
		return nil, err
	}

	p.log.phase("Parsing tokens into AST...")
	syms := symbols.NewContext()
	tree, err := parser.NewParser(syms, p.cfg).Parse(toks)
	if err != nil {
		return nil, err
	}
	tree = preprocess.Cleanup(tree, pp.Table, p.diag)
	if p.cfg.IsFeatureEnabled(config.FeatFoldConstants) {
		if tree, err = ast.FoldConstants(tree); err != nil {
			return nil, err
		}
	}
	u.tree = tree
	if p.mode == modeTree || p.mode == modeFlat {
		return u, nil
	}

	p.log.phase("Validating...")
	if err := validate.NewValidator(syms, p.diag).Check(tree); err != nil {
		return nil, err
	}

	backend, ok := codegen.SelectBackend(p.backend)
	if !ok {
		return nil, util.Errorf(util.ErrUnknown, tokenless, "unsupported backend '%s'", p.backend)
	}
	p.log.phase(fmt.Sprintf("Generating code with '%s' backend...", backend.Name()))
	prog, err := codegen.NewContext(p.cfg, syms, p.diag).GenerateIR(tree)
	if err != nil {
		return nil, err
	}
	if u.ir, err = backend.Generate(prog, p.cfg); err != nil {
		return nil, err
	}
	return u, nil
}

// sourceText renders preprocessed lines, one per line.
func sourceText(lines []util.SourceLine) string {
	var sb strings.Builder
	for _, l := range lines {
		sb.WriteString(l.Text)
		sb.WriteByte('\n')
	}
	return sb.String()
}
