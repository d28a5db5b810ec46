package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/nvylang/nvyc/pkg/ast"
	"github.com/nvylang/nvyc/pkg/config"
	"github.com/nvylang/nvyc/pkg/preprocess"
	"github.com/nvylang/nvyc/pkg/util"
	"github.com/peterh/liner"
)

const (
	historyFile = ".nvyc_history"
	promptMain  = "nvy> "
	promptCont  = "...> "
)

// session is the source accumulated by an interactive run. Every complete
// chunk is compiled together with everything accepted before it.
type session struct {
	p        *pipeline
	src      strings.Builder
	showTree bool
	last     *unit
}

// compile tries chunk on top of the session and keeps it only if the whole
// program still compiles.
func (s *session) compile(chunk string) error {
	s.p.diag.Reset()
	src := s.src.String() + chunk + "\n"
	u, err := s.p.run(func(pp *preprocess.Preprocessor) ([]util.SourceLine, error) {
		return pp.Source("<repl>", src)
	})
	if err != nil {
		if s.p.diag.Err() == nil {
			s.p.diag.Add(err)
		}
		s.p.diag.Report(os.Stderr)
		return err
	}
	s.p.diag.Report(os.Stderr)
	s.src.WriteString(chunk + "\n")
	s.last = u
	return nil
}

func (s *session) command(cmd string, out io.Writer) (quit bool) {
	switch cmd {
	case ":quit", ":q":
		return true
	case ":tree":
		s.showTree = !s.showTree
		if s.showTree {
			fmt.Fprintln(out, "tree output on")
		} else {
			fmt.Fprintln(out, "tree output off")
		}
	case ":ir":
		if s.last == nil || s.last.ir == nil {
			fmt.Fprintln(out, "nothing compiled yet")
			break
		}
		out.Write(s.last.ir.Bytes())
	case ":reset":
		s.src.Reset()
		s.last = nil
		fmt.Fprintln(out, "session cleared")
	default:
		fmt.Fprintln(out, "unknown command. Known commands are :tree, :ir, :reset and :quit.")
	}
	return false
}

func repl(cfg *config.Config, p *pipeline) error {
	p.mode = modeIR
	cfg.SetModule("repl")
	s := &session{p: p}

	home, _ := os.UserHomeDir()
	histPath := filepath.Join(home, historyFile)

	ln := liner.NewLiner()
	defer ln.Close()
	ln.SetCtrlCAborts(true)

	if f, err := os.Open(histPath); err == nil {
		_, _ = ln.ReadHistory(f)
		_ = f.Close()
	}
	defer func() {
		if f, err := os.Create(histPath); err == nil {
			_, _ = ln.WriteHistory(f)
			_ = f.Close()
		}
	}()

	fmt.Println("nvyc interactive mode. Type :quit or press Ctrl-D to leave.")
	for {
		chunk, ok := readChunk(ln)
		if !ok {
			fmt.Println()
			return nil
		}
		chunk = strings.TrimSpace(chunk)
		if chunk == "" {
			continue
		}
		ln.AppendHistory(strings.ReplaceAll(chunk, "\n", " "))

		if strings.HasPrefix(chunk, ":") {
			if s.command(chunk, os.Stdout) {
				return nil
			}
			continue
		}
		if err := s.compile(chunk); err != nil {
			continue
		}
		if s.showTree {
			fmt.Print(ast.Dump(s.last.tree))
		}
	}
}

// readChunk reads lines until they form a complete chunk. Ctrl-C drops the
// pending input; Ctrl-D ends the session.
func readChunk(ln *liner.State) (string, bool) {
	var b strings.Builder
	for {
		prompt := promptMain
		if b.Len() > 0 {
			prompt = promptCont
		}
		line, err := ln.Prompt(prompt)
		if errors.Is(err, io.EOF) {
			return "", false
		}
		if errors.Is(err, liner.ErrPromptAborted) {
			b.Reset()
			continue
		}
		if err != nil {
			return "", false
		}

		if b.Len() > 0 {
			b.WriteByte('\n')
		}
		b.WriteString(line)
		if src := b.String(); complete(src) {
			return src, true
		}
	}
}

// complete reports whether src can be compiled as is: a command, or text
// whose braces balance and which ends in ';' or '}'. Braces inside string
// and character literals are ignored.
func complete(src string) bool {
	trimmed := strings.TrimSpace(src)
	if trimmed == "" || strings.HasPrefix(trimmed, ":") {
		return true
	}
	depth := 0
	var quote rune
	escaped := false
	for _, r := range trimmed {
		switch {
		case escaped:
			escaped = false
		case quote != 0:
			if r == '\\' {
				escaped = true
			} else if r == quote {
				quote = 0
			}
		case r == '"' || r == '\'':
			quote = r
		case r == '{':
			depth++
		case r == '}':
			depth--
		}
	}
	last := trimmed[len(trimmed)-1]
	return depth <= 0 && quote == 0 && (last == ';' || last == '}')
}
