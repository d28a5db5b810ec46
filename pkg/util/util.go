package util

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/nvylang/nvyc/pkg/config"
	"github.com/nvylang/nvyc/pkg/token"
	"golang.org/x/term"
)

// SourceFileRecord tracks the name and content of a single source file.
type SourceFileRecord struct {
	Name    string
	Content []rune
}

// SourceLine is one preprocessed line together with the file and line it
// came from, so diagnostics keep pointing into the original text.
type SourceLine struct {
	FileIndex int
	Line      int
	Text      string
}

// Collector gathers warnings and errors for one compilation unit.
type Collector struct {
	cfg      *config.Config
	files    []SourceFileRecord
	errs     []error
	warnings []warning
	Color    bool
}

type warning struct {
	kind config.Warning
	tok  token.Token
	msg  string
}

func NewCollector(cfg *config.Config) *Collector {
	return &Collector{cfg: cfg, Color: cfg.IsFeatureEnabled(config.FeatColor) && term.IsTerminal(int(os.Stderr.Fd()))}
}

// SetSourceFiles stores the source code of every input file for rich error messages.
func (c *Collector) SetSourceFiles(files []SourceFileRecord) { c.files = files }

// AddSourceFile registers one more file and returns its index.
func (c *Collector) AddSourceFile(name string, content []rune) int {
	c.files = append(c.files, SourceFileRecord{Name: name, Content: content})
	return len(c.files) - 1
}

func (c *Collector) SourceFiles() []SourceFileRecord { return c.files }

// Add records err. Plain errors are wrapped as unclassified diagnostics.
func (c *Collector) Add(err error) {
	if err == nil {
		return
	}
	var d *Diagnostic
	if !errors.As(err, &d) {
		err = &Diagnostic{Kind: ErrUnknown, Msg: err.Error()}
	}
	c.errs = append(c.errs, err)
}

// Warn records a warning if it is enabled in the configuration.
func (c *Collector) Warn(wt config.Warning, tok token.Token, format string, args ...interface{}) {
	if c.cfg != nil && !c.cfg.IsWarningEnabled(wt) {
		return
	}
	c.warnings = append(c.warnings, warning{kind: wt, tok: tok, msg: fmt.Sprintf(format, args...)})
}

// Err returns the first recorded error, or nil.
func (c *Collector) Err() error {
	if len(c.errs) == 0 {
		return nil
	}
	return c.errs[0]
}

func (c *Collector) Errors() []error { return c.errs }

func (c *Collector) WarningCount() int { return len(c.warnings) }

// Reset drops recorded diagnostics but keeps the registered files.
func (c *Collector) Reset() {
	c.errs, c.warnings = nil, nil
}

// Report renders every warning followed by every error.
func (c *Collector) Report(w io.Writer) {
	for _, wn := range c.warnings {
		name := ""
		if c.cfg != nil {
			name = c.cfg.Warnings[wn.kind].Name
		}
		fmt.Fprintf(w, "%s %s%s [-W%s]\n", c.location(wn.tok), c.paint("33", "warning:"), " "+wn.msg, name)
		c.printErrorLine(w, wn.tok)
	}
	for _, err := range c.errs {
		var d *Diagnostic
		errors.As(err, &d)
		msg := d.Msg
		if msg == "" {
			msg = d.Kind.Description()
		}
		fmt.Fprintf(w, "%s %s %s: %s\n", c.location(d.Tok), c.paint("31", "error:"), d.Kind, msg)
		if d.Fragment != "" {
			fmt.Fprintf(w, "  near: %s\n", d.Fragment)
		}
		c.printErrorLine(w, d.Tok)
	}
}

func (c *Collector) paint(code, s string) string {
	if !c.Color {
		return s
	}
	return "\033[" + code + "m" + s + "\033[0m"
}

// location converts a token to a file-specific "file:line:col:" prefix.
func (c *Collector) location(tok token.Token) string {
	name := "nvyc"
	if tok.FileIndex >= 0 && tok.FileIndex < len(c.files) {
		name = c.files[tok.FileIndex].Name
	}
	if tok.Line == 0 {
		return name + ":"
	}
	return fmt.Sprintf("%s:%d:%d:", name, tok.Line, tok.Column)
}

// printErrorLine prints the source line and a caret indicating the error position.
func (c *Collector) printErrorLine(w io.Writer, tok token.Token) {
	if tok.FileIndex < 0 || tok.FileIndex >= len(c.files) || tok.Line == 0 {
		return
	}
	lines := strings.Split(string(c.files[tok.FileIndex].Content), "\n")
	if tok.Line > len(lines) {
		return
	}
	fmt.Fprintf(w, "  %s\n", lines[tok.Line-1])

	col := tok.Column
	if col < 1 {
		col = 1
	}
	caret := "^"
	if tok.Len > 1 {
		caret += strings.Repeat("~", tok.Len-1)
	}
	fmt.Fprintf(w, "  %s%s\n", strings.Repeat(" ", col-1), c.paint("32", caret))
}

// Fail prints the final banner of a failed compilation.
func Fail(w io.Writer, err error) {
	fmt.Fprintln(w, "nvc > Compilation failed")
	if err != nil {
		fmt.Fprintf(w, "%v\n", err)
	}
}
