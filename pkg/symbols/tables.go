package symbols

import (
	"fmt"
	"strings"

	"github.com/llir/llvm/ir/types"
	"github.com/nvylang/nvyc/pkg/token"
)

// Variable is one binding of a source name.
type Variable struct {
	Name      string
	Type      Type
	IRName    string // %x, %x.1, %p.addr, @global_x
	Loaded    string // register holding the value in the current block
	IsParam   bool   // an SSA parameter with no storage behind it
	Allocated bool   // IRName points at storage
	Depth     int
}

// VariableTable keeps a stack of bindings per name so an inner declaration
// can shadow an outer one for the duration of a block.
type VariableTable struct {
	vars map[string][]*Variable
	used map[string]int
}

func NewVariableTable() *VariableTable {
	return &VariableTable{vars: make(map[string][]*Variable), used: make(map[string]int)}
}

func (t *VariableTable) Declare(v *Variable) {
	t.vars[v.Name] = append(t.vars[v.Name], v)
}

func (t *VariableTable) Lookup(name string) (*Variable, bool) {
	stack := t.vars[name]
	if len(stack) == 0 {
		return nil, false
	}
	return stack[len(stack)-1], true
}

// UniqueLocal returns %name, or %name.k when the function already used it.
func (t *VariableTable) UniqueLocal(name string) string {
	n := t.used[name]
	t.used[name] = n + 1
	if n == 0 {
		return "%" + name
	}
	return fmt.Sprintf("%%%s.%d", name, n)
}

// ExitDepth drops the bindings made at depth or deeper.
func (t *VariableTable) ExitDepth(depth int) {
	for name, stack := range t.vars {
		for len(stack) > 0 && stack[len(stack)-1].Depth >= depth {
			stack = stack[:len(stack)-1]
		}
		if len(stack) == 0 {
			delete(t.vars, name)
		} else {
			t.vars[name] = stack
		}
	}
}

// ResetFunction forgets every local binding and the names the function used.
func (t *VariableTable) ResetFunction() {
	t.ExitDepth(1)
	t.used = make(map[string]int)
	t.InvalidateLoads()
}

// InvalidateLoads forgets every cached load, e.g. at a block boundary.
func (t *VariableTable) InvalidateLoads() {
	for _, stack := range t.vars {
		for _, v := range stack {
			v.Loaded = ""
		}
	}
}

// Function is the signature recorded for a declared function.
type Function struct {
	Name          string
	Return        Type
	Params        []Type
	ParamNames    []string
	Variadic      bool
	VariadicIndex int // position of the variadic marker
	Native        bool
	Tok           token.Token
}

// ReturnType is the LLVM spelling of the return type.
func (f *Function) ReturnType() string { return f.Return.IR() }

// FixedArity is the number of parameters before the variadic marker.
func (f *Function) FixedArity() int {
	if f.Variadic {
		return f.VariadicIndex
	}
	return len(f.Params)
}

// Prototype renders the parameter types, e.g. "i8*, ..." for printf.
func (f *Function) Prototype() string {
	parts := make([]string, len(f.Params))
	for i, p := range f.Params {
		parts[i] = p.IR()
	}
	return strings.Join(parts, ", ")
}

type FunctionTable struct {
	funcs map[string]*Function
	order []string
}

func NewFunctionTable() *FunctionTable {
	return &FunctionTable{funcs: make(map[string]*Function)}
}

// Add records f. A second declaration of the same name is ignored and
// reported through the return value; the validator turns it into an error.
func (t *FunctionTable) Add(f *Function) bool {
	if _, ok := t.funcs[f.Name]; ok {
		return false
	}
	t.funcs[f.Name] = f
	t.order = append(t.order, f.Name)
	return true
}

func (t *FunctionTable) Lookup(name string) (*Function, bool) {
	f, ok := t.funcs[name]
	return f, ok
}

func (t *FunctionTable) Names() []string { return append([]string(nil), t.order...) }

type Member struct {
	Name string
	Type Type
}

type StructDef struct {
	Name    string
	Members []Member
	index   map[string]int
}

// StructRegistry records struct layouts. Member ordinals follow first-seen
// order and are emitted directly as LLVM field indices.
type StructRegistry struct {
	defs  map[string]*StructDef
	order []string
}

func NewStructRegistry() *StructRegistry {
	return &StructRegistry{defs: make(map[string]*StructDef)}
}

func (r *StructRegistry) Add(name string) (*StructDef, bool) {
	if def, ok := r.defs[name]; ok {
		return def, false
	}
	def := &StructDef{Name: name, index: make(map[string]int)}
	r.defs[name] = def
	r.order = append(r.order, name)
	return def, true
}

// AddMember appends a member and returns its ordinal. Re-adding an existing
// member keeps its original ordinal and type and reports false.
func (r *StructRegistry) AddMember(structName, member string, typ Type) (int, bool) {
	def, _ := r.Add(structName)
	if pos, ok := def.index[member]; ok {
		return pos, false
	}
	def.index[member] = len(def.Members)
	def.Members = append(def.Members, Member{Name: member, Type: typ})
	return len(def.Members) - 1, true
}

func (r *StructRegistry) Lookup(name string) (*StructDef, bool) {
	def, ok := r.defs[name]
	return def, ok
}

// Member resolves a member name to its ordinal and type.
func (r *StructRegistry) Member(structName, member string) (int, Type, bool) {
	def, ok := r.defs[structName]
	if !ok {
		return 0, Type{}, false
	}
	pos, ok := def.index[member]
	if !ok {
		return 0, Type{}, false
	}
	return pos, def.Members[pos].Type, true
}

func (r *StructRegistry) Names() []string { return append([]string(nil), r.order...) }

// Layout returns the named llir struct type with one field per member.
// Fields that are themselves structs refer to them by name only.
func (r *StructRegistry) Layout(name string) (*types.StructType, bool) {
	def, ok := r.defs[name]
	if !ok {
		return nil, false
	}
	fields := make([]types.Type, len(def.Members))
	for i, m := range def.Members {
		fields[i] = m.Type.LLVM()
	}
	st := types.NewStruct(fields...)
	st.SetName(name)
	return st, true
}
