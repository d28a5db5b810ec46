package symbols

import (
	"strconv"
	"strings"

	"github.com/llir/llvm/ir/types"
)

type Kind int

const (
	Invalid Kind = iota
	Void
	Bool
	Char
	Int32
	Int64
	FP32
	FP64
	Str
	Pointer
	Array
	Struct
	Variadic
)

var kindNames = [...]string{
	Invalid: "invalid", Void: "void", Bool: "bool", Char: "char", Int32: "int32", Int64: "int64",
	FP32: "fp32", FP64: "fp64", Str: "string", Pointer: "pointer", Array: "array", Struct: "struct",
	Variadic: "unified",
}

func (k Kind) String() string { return kindNames[k] }

// Type is the semantic type of a value. Pointer and Array carry their
// element type, Array its length and Struct its name.
type Type struct {
	Kind Kind
	Elem *Type
	Len  int
	Name string
}

var builtinTypes = map[string]Kind{
	"void":      Void,
	"bool":      Bool,
	"char":      Char,
	"int32":     Int32,
	"unsigned":  Int32,
	"numeric32": Int32,
	"int64":     Int64,
	"numeric64": Int64,
	"fp32":      FP32,
	"fp64":      FP64,
	"string":    Str,
	"unified":   Variadic,
	"...":       Variadic,
}

func Basic(k Kind) Type { return Type{Kind: k} }

func PointerTo(t Type) Type { return Type{Kind: Pointer, Elem: &t} }

func ArrayOf(t Type, n int) Type { return Type{Kind: Array, Elem: &t, Len: n} }

func StructNamed(name string) Type { return Type{Kind: Struct, Name: name} }

// IsBuiltin reports whether name spells a builtin type.
func IsBuiltin(name string) bool {
	_, ok := builtinTypes[name]
	return ok
}

func (t Type) String() string {
	switch t.Kind {
	case Pointer:
		return t.Elem.String() + "*"
	case Array:
		return t.Elem.String() + "[" + strconv.Itoa(t.Len) + "]"
	case Struct:
		return t.Name
	}
	return t.Kind.String()
}

func (t Type) Equal(o Type) bool {
	if t.Kind != o.Kind || t.Len != o.Len || t.Name != o.Name {
		return false
	}
	if t.Elem == nil || o.Elem == nil {
		return t.Elem == o.Elem
	}
	return t.Elem.Equal(*o.Elem)
}

func (t Type) IsInt() bool { return t.Kind == Bool || t.Kind == Char || t.Kind == Int32 || t.Kind == Int64 }

func (t Type) IsFloat() bool { return t.Kind == FP32 || t.Kind == FP64 }

func (t Type) IsNumeric() bool { return t.IsInt() || t.IsFloat() }

// IsPointer covers strings, which are lowered as i8*.
func (t Type) IsPointer() bool { return t.Kind == Pointer || t.Kind == Str }

// Depth counts the levels of indirection.
func (t Type) Depth() int {
	switch t.Kind {
	case Pointer:
		return 1 + t.Elem.Depth()
	case Str:
		return 1
	}
	return 0
}

// Deref returns the type one level of indirection down.
func (t Type) Deref() (Type, bool) {
	switch t.Kind {
	case Pointer:
		return *t.Elem, true
	case Str:
		return Basic(Char), true
	}
	return Type{}, false
}

// LLVM maps the semantic type onto the llir type model.
func (t Type) LLVM() types.Type {
	switch t.Kind {
	case Void:
		return types.Void
	case Bool:
		return types.I1
	case Char:
		return types.I8
	case Int32:
		return types.I32
	case Int64:
		return types.I64
	case FP32:
		return types.Float
	case FP64:
		return types.Double
	case Str:
		return types.NewPointer(types.I8)
	case Pointer:
		if t.Elem.Kind == Void {
			return types.NewPointer(types.I8)
		}
		return types.NewPointer(t.Elem.LLVM())
	case Array:
		return types.NewArray(uint64(t.Len), t.Elem.LLVM())
	case Struct:
		st := types.NewStruct()
		st.SetName(t.Name)
		return st
	}
	return types.Void
}

// IR is the textual LLVM spelling of the type.
func (t Type) IR() string {
	if t.Kind == Variadic {
		return "..."
	}
	return t.LLVM().String()
}

// Rank orders the numeric kinds for promotion.
func (t Type) Rank() int {
	switch t.Kind {
	case Bool:
		return 0
	case Char:
		return 1
	case Int32:
		return 2
	case Int64:
		return 3
	case FP32:
		return 4
	case FP64:
		return 5
	}
	return -1
}

// Common returns the type both operands of a binary operation are promoted
// to: the wider of the two, except that int64 meeting fp32 needs fp64 to
// hold both without loss.
func Common(a, b Type) Type {
	if a.Equal(b) {
		return a
	}
	if (a.Kind == Int64 && b.Kind == FP32) || (a.Kind == FP32 && b.Kind == Int64) {
		return Basic(FP64)
	}
	if b.Rank() > a.Rank() {
		return b
	}
	return a
}

// Size is the storage size in bytes. Struct sizes are the sum of their
// members without padding.
func (t Type) Size(structs *StructRegistry) int {
	switch t.Kind {
	case Bool, Char:
		return 1
	case Int32, FP32:
		return 4
	case Int64, FP64, Str, Pointer:
		return 8
	case Array:
		return t.Len * t.Elem.Size(structs)
	case Struct:
		def, ok := structs.Lookup(t.Name)
		if !ok {
			return 0
		}
		size := 0
		for _, m := range def.Members {
			size += m.Type.Size(structs)
		}
		return size
	}
	return 0
}

// splitSpelling separates "int32**" into ("int32", 2) and "int32[4]" into
// ("int32", 0, 4). A missing size is reported as -1.
func splitSpelling(spelling string) (base string, stars int, size int, isArray bool) {
	base = strings.TrimSpace(spelling)
	for strings.HasSuffix(base, "*") {
		base = strings.TrimSuffix(base, "*")
		stars++
	}
	if i := strings.IndexByte(base, '['); i >= 0 && strings.HasSuffix(base, "]") {
		isArray = true
		inner := base[i+1 : len(base)-1]
		base = base[:i]
		size = -1
		if n, err := strconv.Atoi(inner); err == nil {
			size = n
		}
	}
	return
}
