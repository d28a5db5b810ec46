package config

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/nvylang/nvyc/pkg/cli"
)

type Feature int

const (
	FeatFoldConstants Feature = iota
	FeatLiteralBranch
	FeatVariadicPromotion
	FeatMangle
	FeatColor
	FeatWhile
	FeatCount
)

type Warning int

const (
	WarnNameCollision Warning = iota
	WarnImplicitPromotion
	WarnNarrowing
	WarnUnreachableCode
	WarnUnusedImport
	WarnExtra
	WarnPedantic
	WarnCount
)

type Info struct {
	Name        string
	Enabled     bool
	Description string
}

const (
	DefaultTriple     = "x86_64-pc-linux-gnu"
	DefaultIncludeDir = "./nvylib"
)

type Config struct {
	Features   map[Feature]Info
	Warnings   map[Warning]Info
	FeatureMap map[string]Feature
	WarningMap map[string]Warning
	Triple     string
	IncludeDir string
	ModuleName string
}

func NewConfig() *Config {
	cfg := &Config{
		Features:   make(map[Feature]Info),
		Warnings:   make(map[Warning]Info),
		FeatureMap: make(map[string]Feature),
		WarningMap: make(map[string]Warning),
		Triple:     DefaultTriple,
		IncludeDir: DefaultIncludeDir,
		ModuleName: "main",
	}

	features := map[Feature]Info{
		FeatFoldConstants:     {"fold-constants", true, "Fold arithmetic on literal operands before code generation."},
		FeatLiteralBranch:     {"literal-branch", true, "Lower `if` on a literal condition to a direct jump."},
		FeatVariadicPromotion: {"variadic-promotion", true, "Widen narrow arguments passed through a variadic tail."},
		FeatMangle:            {"mangle", true, "Mangle function names of imported modules."},
		FeatColor:             {"color", true, "Use ANSI colors in diagnostics."},
		FeatWhile:             {"while", true, "Accept `while (cond) { ... }` loops."},
	}

	warnings := map[Warning]Info{
		WarnNameCollision:     {"name-collision", true, "Warn when two imported modules define the same function name."},
		WarnImplicitPromotion: {"implicit-promotion", false, "Warn when an operand is implicitly widened."},
		WarnNarrowing:         {"narrowing", true, "Warn when a store, cast or return truncates a value."},
		WarnUnreachableCode:   {"unreachable-code", true, "Warn about code that will never be executed."},
		WarnUnusedImport:      {"unused-import", false, "Warn about imported modules whose functions are never called."},
		WarnExtra:             {"extra", true, "Enable extra miscellaneous warnings."},
		WarnPedantic:          {"pedantic", false, "Issue every warning, including stylistic ones."},
	}

	cfg.Features, cfg.Warnings = features, warnings
	for ft, info := range features {
		cfg.FeatureMap[info.Name] = ft
	}
	for wt, info := range warnings {
		cfg.WarningMap[info.Name] = wt
	}

	return cfg
}

// SetModule derives the module name from the path of the unit being compiled.
func (c *Config) SetModule(path string) {
	base := filepath.Base(path)
	c.ModuleName = strings.TrimSuffix(base, filepath.Ext(base))
}

// SetTarget overrides the target triple written to the IR header.
func (c *Config) SetTarget(triple string) error {
	if strings.Count(triple, "-") < 2 {
		return fmt.Errorf("malformed target triple '%s', expected <arch>-<vendor>-<os>[-<env>]", triple)
	}
	c.Triple = triple
	return nil
}

func (c *Config) SetFeature(ft Feature, enabled bool) {
	if info, ok := c.Features[ft]; ok {
		info.Enabled = enabled
		c.Features[ft] = info
	}
}

func (c *Config) IsFeatureEnabled(ft Feature) bool { return c.Features[ft].Enabled }

func (c *Config) SetWarning(wt Warning, enabled bool) {
	if info, ok := c.Warnings[wt]; ok {
		info.Enabled = enabled
		c.Warnings[wt] = info
	}
}

func (c *Config) IsWarningEnabled(wt Warning) bool { return c.Warnings[wt].Enabled }

func (c *Config) applyFlag(flag string) {
	trimmed := strings.TrimPrefix(flag, "-")
	isNo := strings.HasPrefix(trimmed, "Wno-") || strings.HasPrefix(trimmed, "Fno-")
	enable := !isNo

	var name string
	var isWarning bool

	switch {
	case strings.HasPrefix(trimmed, "W"):
		name = strings.TrimPrefix(trimmed, "W")
		if isNo {
			name = strings.TrimPrefix(name, "no-")
		}
		isWarning = true
	case strings.HasPrefix(trimmed, "F"):
		name = strings.TrimPrefix(trimmed, "F")
		if isNo {
			name = strings.TrimPrefix(name, "no-")
		}
	default:
		name = trimmed
		isWarning = true
	}

	if name == "all" && isWarning {
		for i := Warning(0); i < WarnCount; i++ {
			if i != WarnPedantic {
				c.SetWarning(i, enable)
			}
		}
		return
	}

	if name == "pedantic" && isWarning {
		for i := Warning(0); i < WarnCount; i++ {
			c.SetWarning(i, true)
		}
		return
	}

	if isWarning {
		if w, ok := c.WarningMap[name]; ok {
			c.SetWarning(w, enable)
		}
	} else {
		if f, ok := c.FeatureMap[name]; ok {
			c.SetFeature(f, enable)
		}
	}
}

// ProcessFlags applies group flags (-Wall, -Wno-all, -pedantic) before the
// individual ones, so `-Wall -Wno-narrowing` works in any order.
func (c *Config) ProcessFlags(visitFlag func(fn func(name string))) {
	visitFlag(func(name string) {
		if name == "Wall" || name == "Wno-all" || name == "pedantic" {
			c.applyFlag("-" + name)
		}
	})
	visitFlag(func(name string) {
		if name != "Wall" && name != "Wno-all" && name != "pedantic" {
			c.applyFlag("-" + name)
		}
	})
}

// ProcessDirectiveFlags applies the flags of a `%pragma` line.
func (c *Config) ProcessDirectiveFlags(flagStr string) {
	for _, flag := range strings.Fields(flagStr) {
		c.applyFlag(flag)
	}
}

// SetupFlagGroups registers -W<name>/-Wno-<name>, -F<name>/-Fno-<name>,
// -Wall/-Wno-all and -pedantic on fs. The flags are applied afterwards, in
// command line order, through ProcessFlags.
func (c *Config) SetupFlagGroups(fs *cli.FlagSet) {
	entry := func(info Info) cli.FlagGroupEntry {
		return cli.FlagGroupEntry{Name: info.Name, Usage: info.Description, Default: info.Enabled, Enabled: new(bool), Disabled: new(bool)}
	}

	warnings := []cli.FlagGroupEntry{entry(Info{"all", false, "Enable every warning except pedantic."})}
	for wt := Warning(0); wt < WarnCount; wt++ {
		warnings = append(warnings, entry(c.Warnings[wt]))
	}
	fs.AddFlagGroup(cli.FlagGroup{Name: "Warning Flags", Description: "a specific warning", Prefix: "W", Entries: warnings})

	var features []cli.FlagGroupEntry
	for ft := Feature(0); ft < FeatCount; ft++ {
		features = append(features, entry(c.Features[ft]))
	}
	fs.AddFlagGroup(cli.FlagGroup{Name: "Feature Flags", Description: "a specific feature", Prefix: "F", Entries: features})

	fs.Bool(new(bool), "pedantic", "", false, "Issue every warning, including stylistic ones.")
}

// IsFlagName reports whether a parsed command line flag belongs to the
// groups SetupFlagGroups registers.
func IsFlagName(name string) bool {
	return name == "pedantic" || strings.HasPrefix(name, "W") || strings.HasPrefix(name, "F")
}
