package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/nvylang/nvyc/pkg/ast"
	"github.com/nvylang/nvyc/pkg/cli"
	"github.com/nvylang/nvyc/pkg/config"
	"github.com/nvylang/nvyc/pkg/preprocess"
	"github.com/nvylang/nvyc/pkg/token"
	"github.com/nvylang/nvyc/pkg/util"
)

var tokenless = token.Token{FileIndex: -1}

func main() {
	app := cli.NewApp("nvyc")
	app.Synopsis = "[options] <input.nvy> [output]"
	app.Description = "A compiler for the nvy language. Emits textual LLVM IR that clang or llc turn into a native program; the output extension picks what is produced instead (.tr tree, .flat node list, .nvss preprocessed source)."
	app.Authors = []string{"the nvy authors"}
	app.Repository = "<https://github.com/nvylang/nvyc>"
	app.Since = 2025

	var (
		outFile     string
		target      string
		backend     string
		includeDir  string
		verbose     bool
		timing      bool
		interactive bool
	)

	fs := app.FlagSet
	fs.String(&outFile, "output", "o", "", "Place the output into <file>; '-' writes IR to stdout.", "file")
	fs.String(&target, "target", "t", config.DefaultTriple, "Set the target triple of the module.", "triple")
	fs.String(&backend, "backend", "b", "llvm", "Select the code generation backend.", "name")
	fs.String(&includeDir, "include", "I", config.DefaultIncludeDir, "Search <dir> for %import modules.", "dir")
	fs.Bool(&verbose, "verbose", "v", false, "Print each compilation phase.")
	fs.Bool(&timing, "time", "", false, "Print the time spent in each phase.")
	fs.Bool(&interactive, "interactive", "i", false, "Start an interactive session.")

	cfg := config.NewConfig()
	cfg.SetupFlagGroups(fs)

	app.Action = func(args []string) error {
		// Group flags go first so -Wall -Wno-<name> works in any order
		cfg.ProcessFlags(func(apply func(string)) {
			fs.Visit(func(f *cli.Flag) {
				if config.IsFlagName(f.Name) {
					apply(f.Name)
				}
			})
		})
		cfg.IncludeDir = includeDir
		diag := util.NewCollector(cfg)
		if err := cfg.SetTarget(target); err != nil {
			return fail(diag, util.Errorf(util.ErrUnknown, tokenless, "%v", err))
		}

		log := &progress{w: os.Stdout, verbose: verbose, timing: timing}
		if interactive {
			return repl(cfg, &pipeline{cfg: cfg, diag: diag, log: log, backend: backend})
		}

		if len(args) == 0 {
			return fail(diag, util.Errorf(util.ErrUnknown, tokenless, "no input file specified"))
		}
		input := args[0]
		if len(args) > 1 {
			outFile = args[1]
		}
		if len(args) > 2 {
			fmt.Fprintf(os.Stderr, "nvyc: info: ignoring extra arguments %v\n", args[2:])
		}
		if outFile == "" {
			outFile = strings.TrimSuffix(input, ".nvy") + ".ll"
		}
		cfg.SetModule(input)

		p := &pipeline{cfg: cfg, diag: diag, log: log, mode: modeFor(outFile), backend: backend}
		if outFile == "-" {
			// Nothing but IR may reach stdout
			log.w = os.Stderr
		}
		if verbose {
			fmt.Fprintln(log.w, "----------------------")
		}
		u, err := p.run(func(pp *preprocess.Preprocessor) ([]util.SourceLine, error) {
			return pp.File(input)
		})
		if err != nil {
			return fail(diag, err)
		}
		diag.Report(os.Stderr)

		if err := write(p.mode, outFile, u); err != nil {
			return fail(diag, util.Errorf(util.ErrUnknown, tokenless, "%v", err))
		}

		if verbose {
			fmt.Fprintln(log.w, "----------------------")
			fmt.Fprintln(log.w, "Done!")
		}
		return nil
	}

	if err := app.Run(os.Args[1:]); err != nil {
		os.Exit(1)
	}
}

// write emits the result of a compilation in the form mode selects.
func write(m mode, outFile string, u *unit) error {
	switch m {
	case modeTree:
		fmt.Println("---- FINAL TREE ----")
		fmt.Print(ast.Dump(u.tree))
	case modeFlat:
		for _, line := range ast.Flatten(u.tree) {
			fmt.Println(line)
		}
	case modeSource:
		return os.WriteFile(outFile, []byte(sourceText(u.lines)), 0o644)
	default:
		if outFile == "-" {
			_, err := os.Stdout.Write(u.ir.Bytes())
			return err
		}
		path := irPath(outFile)
		if err := os.WriteFile(path, u.ir.Bytes(), 0o644); err != nil {
			return err
		}
		fmt.Fprintf(os.Stderr, "nvyc: info: wrote %s\n", path)
	}
	return nil
}

// fail reports everything collected so far, err included, and prints the
// failure banner.
func fail(diag *util.Collector, err error) error {
	if diag.Err() == nil {
		diag.Add(err)
	}
	diag.Report(os.Stderr)
	util.Fail(os.Stderr, nil)
	return err
}
