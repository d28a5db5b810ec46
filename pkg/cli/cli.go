package cli

import (
	"fmt"
	"io"
	"os"
	"sort"
	"strconv"
	"strings"
	"time"

	"golang.org/x/term"
)

const indentUnit = 4

func indent(level int) string { return strings.Repeat(" ", indentUnit*level) }

type Value interface {
	String() string
	Set(string) error
	Get() any
}

type stringValue struct{ p *string }

func (v *stringValue) Set(s string) error { *v.p = s; return nil }
func (v *stringValue) String() string     { return *v.p }
func (v *stringValue) Get() any           { return *v.p }

type boolValue struct{ p *bool }

func (v *boolValue) Set(s string) error {
	if s == "" {
		*v.p = true
		return nil
	}
	val, err := strconv.ParseBool(s)
	if err != nil {
		return fmt.Errorf("invalid boolean value '%s': %w", s, err)
	}
	*v.p = val
	return nil
}
func (v *boolValue) String() string { return strconv.FormatBool(*v.p) }
func (v *boolValue) Get() any       { return *v.p }

type listValue struct{ p *[]string }

func (v *listValue) Set(s string) error { *v.p = append(*v.p, s); return nil }
func (v *listValue) String() string     { return strings.Join(*v.p, ", ") }
func (v *listValue) Get() any           { return *v.p }

type intValue struct{ p *int }

func (v *intValue) Set(s string) error {
	val, err := strconv.Atoi(s)
	if err != nil {
		return fmt.Errorf("invalid integer value '%s': %w", s, err)
	}
	*v.p = val
	return nil
}
func (v *intValue) String() string { return strconv.Itoa(*v.p) }
func (v *intValue) Get() any       { return *v.p }

type durationValue struct{ p *time.Duration }

func (v *durationValue) Set(s string) error {
	val, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("invalid duration value '%s': %w", s, err)
	}
	*v.p = val
	return nil
}
func (v *durationValue) String() string { return v.p.String() }
func (v *durationValue) Get() any       { return *v.p }

type Flag struct {
	Name         string
	Shorthand    string
	Usage        string
	Value        Value
	DefValue     string
	ExpectedType string
}

func (f *Flag) isBool() bool {
	_, ok := f.Value.(*boolValue)
	return ok
}

// FlagGroup is a family of on/off switches sharing a prefix, such as the
// -W warnings or the -F features. Each entry becomes -<prefix><name> and
// -<prefix>no-<name>.
type FlagGroup struct {
	Name        string
	Description string
	Prefix      string
	Entries     []FlagGroupEntry
}

type FlagGroupEntry struct {
	Name     string
	Usage    string
	Default  bool
	Enabled  *bool
	Disabled *bool
}

type FlagSet struct {
	name       string
	flags      map[string]*Flag
	shorthands map[string]*Flag
	groups     []FlagGroup
	args       []string
	seen       []*Flag
}

func NewFlagSet(name string) *FlagSet {
	return &FlagSet{
		name:       name,
		flags:      make(map[string]*Flag),
		shorthands: make(map[string]*Flag),
	}
}

// Args returns the positional arguments left after Parse.
func (f *FlagSet) Args() []string { return f.args }

func (f *FlagSet) Lookup(name string) *Flag { return f.flags[name] }

// Visit calls fn for every flag given on the command line, in order.
func (f *FlagSet) Visit(fn func(*Flag)) {
	for _, fl := range f.seen {
		fn(fl)
	}
}

func (f *FlagSet) String(p *string, name, shorthand, value, usage, expectedType string) {
	*p = value
	f.Var(&stringValue{p}, name, shorthand, usage, value, expectedType)
}

func (f *FlagSet) Bool(p *bool, name, shorthand string, value bool, usage string) {
	*p = value
	f.Var(&boolValue{p}, name, shorthand, usage, strconv.FormatBool(value), "")
}

func (f *FlagSet) Int(p *int, name, shorthand string, value int, usage string) {
	*p = value
	f.Var(&intValue{p}, name, shorthand, usage, strconv.Itoa(value), "n")
}

func (f *FlagSet) Duration(p *time.Duration, name, shorthand string, value time.Duration, usage string) {
	*p = value
	f.Var(&durationValue{p}, name, shorthand, usage, value.String(), "duration")
}

func (f *FlagSet) List(p *[]string, name, shorthand string, value []string, usage, expectedType string) {
	*p = value
	f.Var(&listValue{p}, name, shorthand, usage, strings.Join(value, ","), expectedType)
}

func (f *FlagSet) Var(value Value, name, shorthand, usage, defValue, expectedType string) {
	if name == "" {
		panic("flag name cannot be empty")
	}
	if _, ok := f.flags[name]; ok {
		panic(fmt.Sprintf("flag redefined: %s", name))
	}
	flag := &Flag{Name: name, Shorthand: shorthand, Usage: usage, Value: value, DefValue: defValue, ExpectedType: expectedType}
	f.flags[name] = flag
	if shorthand != "" {
		if _, ok := f.shorthands[shorthand]; ok {
			panic(fmt.Sprintf("shorthand flag redefined: %s", shorthand))
		}
		f.shorthands[shorthand] = flag
	}
}

// AddFlagGroup defines the boolean flags of a group and remembers the
// group for the help page.
func (f *FlagSet) AddFlagGroup(group FlagGroup) {
	for _, e := range group.Entries {
		if e.Enabled != nil {
			f.Bool(e.Enabled, group.Prefix+e.Name, "", false, e.Usage)
		}
		if e.Disabled != nil {
			f.Bool(e.Disabled, group.Prefix+"no-"+e.Name, "", false, "Disable '"+e.Name+"'")
		}
	}
	f.groups = append(f.groups, group)
}

func (f *FlagSet) isGroupFlag(name string) bool {
	for _, g := range f.groups {
		for _, e := range g.Entries {
			if name == g.Prefix+e.Name || name == g.Prefix+"no-"+e.Name {
				return true
			}
		}
	}
	return false
}

func (f *FlagSet) set(flag *Flag, value string) error {
	if err := flag.Value.Set(value); err != nil {
		return err
	}
	f.seen = append(f.seen, flag)
	return nil
}

// Parse accepts --name, --name=value, -name (for multi-letter names such
// as -Wall), -x, -xvalue and -x value. A lone "-" is positional.
func (f *FlagSet) Parse(arguments []string) error {
	f.args, f.seen = nil, nil
	for i := 0; i < len(arguments); i++ {
		arg := arguments[i]
		if len(arg) < 2 || arg[0] != '-' {
			f.args = append(f.args, arg)
			continue
		}
		if arg == "--" {
			f.args = append(f.args, arguments[i+1:]...)
			break
		}

		dashes := "-"
		body := arg[1:]
		if strings.HasPrefix(arg, "--") {
			dashes, body = "--", arg[2:]
		}
		name, value, hasValue := strings.Cut(body, "=")
		flag, ok := f.flags[name]
		if !ok && dashes == "-" {
			flag, ok = f.shorthands[body[:1]]
			name, value, hasValue = body[:1], body[1:], len(body) > 1
			if ok && flag.isBool() && hasValue {
				ok = false
			}
		}
		if !ok {
			return fmt.Errorf("unknown flag: %s%s", dashes, name)
		}

		switch {
		case hasValue:
		case flag.isBool():
			value = ""
		case i+1 < len(arguments):
			i++
			value = arguments[i]
		default:
			return fmt.Errorf("flag needs an argument: %s%s", dashes, name)
		}
		if err := f.set(flag, value); err != nil {
			return err
		}
	}
	return nil
}

type App struct {
	Name        string
	Synopsis    string
	Description string
	Authors     []string
	Repository  string
	Since       int
	FlagSet     *FlagSet
	Action      func(args []string) error
	Stdout      io.Writer
	Stderr      io.Writer
}

func NewApp(name string) *App {
	return &App{Name: name, FlagSet: NewFlagSet(name), Stdout: os.Stdout, Stderr: os.Stderr}
}

func (a *App) Run(arguments []string) error {
	help := false
	a.FlagSet.Bool(&help, "help", "h", false, "Display this information")

	if err := a.FlagSet.Parse(arguments); err != nil {
		fmt.Fprintln(a.Stderr, err)
		a.Usage(a.Stderr)
		return err
	}
	if help {
		a.Help(a.Stdout)
		return nil
	}
	if a.Action != nil {
		return a.Action(a.FlagSet.Args())
	}
	return nil
}

func (a *App) optionFlags() []*Flag {
	var flags []*Flag
	for _, fl := range a.FlagSet.flags {
		if !a.FlagSet.isGroupFlag(fl.Name) {
			flags = append(flags, fl)
		}
	}
	sort.Slice(flags, func(i, j int) bool { return flags[i].Name < flags[j].Name })
	return flags
}

func flagString(fl *Flag) string {
	var sb strings.Builder
	if fl.Shorthand != "" {
		fmt.Fprintf(&sb, "-%s, ", fl.Shorthand)
	}
	fmt.Fprintf(&sb, "--%s", fl.Name)
	if !fl.isBool() && fl.ExpectedType != "" {
		fmt.Fprintf(&sb, " <%s>", fl.ExpectedType)
	}
	return sb.String()
}

// layout holds the column widths shared by every entry of a page.
type layout struct {
	width int
	left  int
}

func (a *App) layout() layout {
	l := layout{width: TerminalWidth()}
	for _, fl := range a.optionFlags() {
		l.left = max(l.left, len(flagString(fl)))
	}
	for _, g := range a.FlagSet.groups {
		l.left = max(l.left, len("-"+g.Prefix+"no-<name>"))
		for _, e := range g.Entries {
			l.left = max(l.left, len(e.Name))
		}
	}
	return l
}

func (l layout) entry(sb *strings.Builder, left, usage, right string) {
	avail := l.width - len(indent(2)) - l.left - 1 - len(right) - 2
	if avail < 10 {
		avail = 10
	}
	lines := wrapText(usage, avail)
	if len(lines) == 0 {
		lines = []string{""}
	}
	if right != "" {
		fmt.Fprintf(sb, "%s%-*s %-*s  %s\n", indent(2), l.left, left, avail, lines[0], right)
	} else {
		fmt.Fprintf(sb, "%s%-*s %s\n", indent(2), l.left, left, lines[0])
	}
	pad := strings.Repeat(" ", l.left+1)
	for _, line := range lines[1:] {
		fmt.Fprintf(sb, "%s%s%s\n", indent(2), pad, line)
	}
}

func (a *App) writeOptions(sb *strings.Builder, l layout) {
	flags := a.optionFlags()
	if len(flags) == 0 {
		return
	}
	fmt.Fprintf(sb, "\n%sOptions\n", indent(1))
	for _, fl := range flags {
		right := ""
		if !fl.isBool() && fl.DefValue != "" {
			right = "|" + fl.DefValue + "|"
		}
		l.entry(sb, flagString(fl), fl.Usage, right)
	}
}

// Usage writes the short page shown after a flag error.
func (a *App) Usage(w io.Writer) {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Usage: %s %s\n", a.Name, a.Synopsis)
	a.writeOptions(&sb, a.layout())
	fmt.Fprintf(&sb, "\nRun '%s --help' for all available options and flags.\n", a.Name)
	fmt.Fprint(w, sb.String())
}

// Help writes the full page, including every flag group with the current
// state of each entry.
func (a *App) Help(w io.Writer) {
	var sb strings.Builder
	l := a.layout()

	years := strconv.Itoa(time.Now().Year())
	if a.Since > 0 && a.Since < time.Now().Year() {
		years = strconv.Itoa(a.Since) + "-" + years
	}
	fmt.Fprintf(&sb, "\n%sCopyright (c) %s: %s and contributors\n", indent(1), years, strings.Join(a.Authors, ", "))
	if a.Repository != "" {
		fmt.Fprintf(&sb, "%sFor more details refer to %s\n", indent(1), a.Repository)
	}
	if a.Synopsis != "" {
		fmt.Fprintf(&sb, "\n%sSynopsis\n%s%s %s\n", indent(1), indent(2), a.Name, a.Synopsis)
	}
	if a.Description != "" {
		fmt.Fprintf(&sb, "\n%sDescription\n", indent(1))
		for _, line := range wrapText(a.Description, l.width-len(indent(2))) {
			fmt.Fprintf(&sb, "%s%s\n", indent(2), line)
		}
	}
	a.writeOptions(&sb, l)

	groups := append([]FlagGroup(nil), a.FlagSet.groups...)
	sort.Slice(groups, func(i, j int) bool { return groups[i].Name < groups[j].Name })
	for _, g := range groups {
		fmt.Fprintf(&sb, "\n%s%s\n", indent(1), g.Name)
		fmt.Fprintf(&sb, "%s%-*s %s\n", indent(2), l.left, "-"+g.Prefix+"<name>", "Enable "+g.Description)
		fmt.Fprintf(&sb, "%s%-*s %s\n", indent(2), l.left, "-"+g.Prefix+"no-<name>", "Disable "+g.Description)
		entries := append([]FlagGroupEntry(nil), g.Entries...)
		sort.Slice(entries, func(i, j int) bool { return entries[i].Name < entries[j].Name })
		for _, e := range entries {
			state := "|-|"
			if e.Default {
				state = "|x|"
			}
			l.entry(&sb, e.Name, e.Usage, state)
		}
	}
	fmt.Fprint(w, sb.String())
}

// TerminalWidth is the width of stdout, 80 when it is not a terminal and
// never less than 20.
func TerminalWidth() int {
	width, _, err := term.GetSize(int(os.Stdout.Fd()))
	if err != nil {
		return 80
	}
	if width < 20 {
		return 20
	}
	return width
}

func wrapText(text string, maxWidth int) []string {
	words := strings.Fields(text)
	if len(words) == 0 {
		return nil
	}
	if maxWidth <= 0 {
		return words
	}
	var lines []string
	var cur strings.Builder
	for _, word := range words {
		if cur.Len() > 0 && cur.Len()+1+len(word) > maxWidth {
			lines = append(lines, cur.String())
			cur.Reset()
		}
		if cur.Len() > 0 {
			cur.WriteByte(' ')
		}
		cur.WriteString(word)
	}
	if cur.Len() > 0 {
		lines = append(lines, cur.String())
	}
	return lines
}
