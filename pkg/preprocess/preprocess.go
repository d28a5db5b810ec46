// Package preprocess turns source files into the line list the lexer reads.
// It strips comments, splices `%import`ed modules in place, applies `%pragma`
// flags and mangles the functions of imported modules so that several modules
// may define the same name.
package preprocess

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"unicode"

	"github.com/cespare/xxhash/v2"
	"github.com/nvylang/nvyc/pkg/config"
	"github.com/nvylang/nvyc/pkg/token"
	"github.com/nvylang/nvyc/pkg/util"
)

var funcDecl = regexp.MustCompile(`^(\s*(?:(?:static|public|private|final|constant)\s+)*func\s+)([A-Za-z_][A-Za-z0-9_]*)`)

// Preprocessor owns the state shared by every file of one compilation:
// the set of already imported files and the mangling table.
type Preprocessor struct {
	cfg   *config.Config
	diag  *util.Collector
	seen  map[uint64]string
	Table *Table
}

func New(cfg *config.Config, diag *util.Collector) *Preprocessor {
	return &Preprocessor{cfg: cfg, diag: diag, seen: make(map[uint64]string), Table: NewTable()}
}

// File preprocesses the file at path as the main unit.
func (p *Preprocessor) File(path string) ([]util.SourceLine, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, util.Errorf(util.ErrImport, token.Token{FileIndex: -1}, "could not read file '%s': %v", path, err)
	}
	p.seen[xxhash.Sum64(content)] = path
	return p.unit(path, string(content), "", filepath.Dir(path))
}

// Source preprocesses in-memory text registered under name.
func (p *Preprocessor) Source(name, text string) ([]util.SourceLine, error) {
	return p.unit(name, text, "", ".")
}

// unit preprocesses one file. module is empty for the main unit and names
// the module otherwise; only module functions are mangled.
func (p *Preprocessor) unit(name, text, module, dir string) ([]util.SourceLine, error) {
	fileIndex := p.diag.AddSourceFile(name, []rune(text))
	stripped, err := StripComments(text, fileIndex)
	if err != nil {
		return nil, err
	}

	var out []util.SourceLine
	for i, raw := range strings.Split(stripped, "\n") {
		line := strings.TrimSpace(raw)
		switch {
		case line == "":
			continue
		case strings.HasPrefix(line, "%import"):
			tok := token.Token{FileIndex: fileIndex, Line: i + 1, Column: strings.Index(raw, "%") + 1, Len: len(line)}
			lines, err := p.importModule(strings.TrimSpace(strings.TrimPrefix(line, "%import")), dir, tok)
			if err != nil {
				return nil, err
			}
			out = append(out, lines...)
			continue
		case strings.HasPrefix(line, "%pragma"):
			p.cfg.ProcessDirectiveFlags(strings.TrimPrefix(line, "%pragma"))
			continue
		}
		if module != "" && p.cfg.IsFeatureEnabled(config.FeatMangle) {
			raw = p.mangleLine(raw, module, token.Token{FileIndex: fileIndex, Line: i + 1, Column: 1})
		}
		out = append(out, util.SourceLine{FileIndex: fileIndex, Line: i + 1, Text: raw})
	}
	return out, nil
}

func (p *Preprocessor) importModule(spec, dir string, tok token.Token) ([]util.SourceLine, error) {
	spec = strings.Trim(spec, "<>\"; ")
	if spec == "" {
		return nil, util.Errorf(util.ErrImport, tok, "missing module name after %%import")
	}
	path := p.findModule(spec, dir)
	if path == "" {
		return nil, util.Errorf(util.ErrImport, tok, "could not find module '%s' in %s", spec, p.cfg.IncludeDir)
	}
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, util.Errorf(util.ErrImport, tok, "could not read module '%s': %v", path, err)
	}
	sum := xxhash.Sum64(content)
	if _, ok := p.seen[sum]; ok {
		return nil, nil
	}
	p.seen[sum] = path
	module := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	p.Table.addModule(module, tok)
	return p.unit(path, string(content), module, filepath.Dir(path))
}

// findModule searches the include directory first, then the directory of the
// importing file.
func (p *Preprocessor) findModule(name, dir string) string {
	candidates := []string{name, name + ".nvy", filepath.Join(name, name+".nvy")}
	for _, base := range []string{p.cfg.IncludeDir, dir} {
		for _, c := range candidates {
			full := filepath.Join(base, c)
			if st, err := os.Stat(full); err == nil && !st.IsDir() {
				return full
			}
		}
	}
	return ""
}

func (p *Preprocessor) mangleLine(line, module string, tok token.Token) string {
	m := funcDecl.FindStringSubmatchIndex(line)
	if m == nil {
		return line
	}
	name := line[m[4]:m[5]]
	if name == "main" {
		return line
	}
	mangled := Mangle(name, module)
	if prev, ok := p.Table.origin[name]; ok && prev != module {
		tok.Column, tok.Len = m[4]+1, len(name)
		p.diag.Warn(config.WarnNameCollision, tok, "Name collision found for function %s from modules %s, %s", name, prev, module)
	} else if !ok {
		p.Table.origin[name] = module
		p.Table.names[name] = mangled
	}
	p.Table.names[module+"_"+name] = mangled
	p.Table.names[module+"."+name] = mangled
	p.Table.modules[mangled] = module
	return line[:m[4]] + mangled + line[m[5]:]
}

// Mangle returns the link name of function name defined in module.
func Mangle(name, module string) string {
	id := strings.Map(func(r rune) rune {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			return r
		}
		return -1
	}, module)
	return fmt.Sprintf("_nvlang_%s_%d%s_%d", id, len(name), name, len(module))
}

// StripComments blanks out `//` and `/* */` comments outside quoted literals.
// Comment characters become spaces and newlines are kept, so line and column
// numbers still match the original text.
func StripComments(text string, fileIndex int) (string, error) {
	src := []rune(text)
	out := make([]rune, len(src))
	copy(out, src)

	line, col := 1, 1
	var quote rune
	for i := 0; i < len(src); i++ {
		c := src[i]
		switch {
		case quote != 0:
			if c == '\\' && i+1 < len(src) && src[i+1] != '\n' {
				i++
				col++
			} else if c == quote || c == '\n' {
				quote = 0
			}
		case c == '"' || c == '\'':
			quote = c
		case c == '/' && i+1 < len(src) && src[i+1] == '/':
			for ; i < len(src) && src[i] != '\n'; i++ {
				out[i] = ' '
			}
			i--
		case c == '/' && i+1 < len(src) && src[i+1] == '*':
			startLine, startCol := line, col
			end := -1
			for j := i + 2; j+1 < len(src); j++ {
				if src[j] == '*' && src[j+1] == '/' {
					end = j + 1
					break
				}
			}
			if end < 0 {
				return "", util.Errorf(util.ErrUnterminatedComment, token.Token{FileIndex: fileIndex, Line: startLine, Column: startCol, Len: 2}, "block comment is never closed")
			}
			for ; i <= end; i++ {
				if src[i] == '\n' {
					line, col = line+1, 1
					continue
				}
				out[i] = ' '
				col++
			}
			i--
			continue
		}
		if c == '\n' {
			line, col = line+1, 1
		} else {
			col++
		}
	}
	return string(out), nil
}
