// Package ir is the in-memory form of the module the code generator
// builds. Types and constants are llir values; instructions are a small
// closed set that a backend lowers onto its own builder.
package ir

import (
	"github.com/llir/llvm/ir/constant"
	"github.com/llir/llvm/ir/types"
)

type Op int

const (
	OpAlloca Op = iota
	OpLoad
	OpStore
	OpGEP
	OpAdd
	OpSub
	OpMul
	OpSDiv
	OpSRem
	OpAnd
	OpOr
	OpXor
	OpShl
	OpAShr
	OpLShr
	OpFAdd
	OpFSub
	OpFMul
	OpFDiv
	OpFRem
	OpFNeg
	OpICmp
	OpFCmp
	OpSExt
	OpZExt
	OpTrunc
	OpSIToFP
	OpUIToFP
	OpFPToSI
	OpFPExt
	OpFPTrunc
	OpBitcast
	OpPtrToInt
	OpIntToPtr
	OpBr
	OpCondBr
	OpRet
	OpCall
	OpUnreachable
)

var opNames = [...]string{
	OpAlloca: "alloca", OpLoad: "load", OpStore: "store", OpGEP: "getelementptr",
	OpAdd: "add", OpSub: "sub", OpMul: "mul", OpSDiv: "sdiv", OpSRem: "srem",
	OpAnd: "and", OpOr: "or", OpXor: "xor", OpShl: "shl", OpAShr: "ashr", OpLShr: "lshr",
	OpFAdd: "fadd", OpFSub: "fsub", OpFMul: "fmul", OpFDiv: "fdiv", OpFRem: "frem", OpFNeg: "fneg",
	OpICmp: "icmp", OpFCmp: "fcmp",
	OpSExt: "sext", OpZExt: "zext", OpTrunc: "trunc", OpSIToFP: "sitofp", OpUIToFP: "uitofp",
	OpFPToSI: "fptosi", OpFPExt: "fpext", OpFPTrunc: "fptrunc", OpBitcast: "bitcast",
	OpPtrToInt: "ptrtoint", OpIntToPtr: "inttoptr",
	OpBr: "br", OpCondBr: "br", OpRet: "ret", OpCall: "call", OpUnreachable: "unreachable",
}

func (o Op) String() string { return opNames[o] }

func (o Op) IsBinary() bool { return o >= OpAdd && o <= OpFRem }

func (o Op) IsCast() bool { return o >= OpSExt && o <= OpIntToPtr }

func (o Op) IsTerminator() bool { return o >= OpBr && o <= OpRet || o == OpUnreachable }

type Value interface {
	isValue()
	String() string
}

// Const is a constant operand: 5, true, 1.5, null or zeroinitializer.
type Const struct{ C constant.Constant }

// Global is a module-level symbol, rendered @name.
type Global struct{ Name string }

// Temporary is a function-local register. Name is either a number or a
// symbolic name such as "x.addr" or "bcast_arith_0_from_x".
type Temporary struct{ Name string }

type Label struct{ Name string }

// StringAddr is the address of the first byte of a string constant, the
// initializer of a global string variable.
type StringAddr struct{ Str *StringConst }

func (c *Const) isValue()      {}
func (g *Global) isValue()     {}
func (t *Temporary) isValue()  {}
func (l *Label) isValue()      {}
func (s *StringAddr) isValue() {}

func (c *Const) String() string      { return c.C.Ident() }
func (g *Global) String() string     { return "@" + g.Name }
func (t *Temporary) String() string  { return "%" + t.Name }
func (l *Label) String() string      { return "%" + l.Name }
func (s *StringAddr) String() string { return "@" + s.Str.Name }

// NewInt returns an integer constant of type t.
func NewInt(t types.Type, v int64) *Const {
	it, ok := t.(*types.IntType)
	if !ok {
		it = types.I64
	}
	return &Const{C: constant.NewInt(it, v)}
}

// NewFloat returns a float constant of type t. Values bound for a float are
// rounded to single precision first so the spelling is exact.
func NewFloat(t types.Type, v float64) *Const {
	ft, ok := t.(*types.FloatType)
	if !ok {
		ft = types.Double
	}
	if ft.Kind == types.FloatKindFloat {
		v = float64(float32(v))
	}
	return &Const{C: constant.NewFloat(ft, v)}
}

// NewNull returns the null pointer of pointer type t.
func NewNull(t types.Type) *Const {
	pt, ok := t.(*types.PointerType)
	if !ok {
		pt = types.NewPointer(types.I8)
	}
	return &Const{C: constant.NewNull(pt)}
}

func NewZero(t types.Type) *Const {
	return &Const{C: constant.NewZeroInitializer(t)}
}

type Instruction struct {
	Op     Op
	Typ    types.Type // operand type; the allocated type for alloca
	To     types.Type // target type of a cast
	Pred   string     // icmp/fcmp predicate
	Result *Temporary
	Args   []Value
}

type BasicBlock struct {
	Label        *Label
	Instructions []*Instruction
}

// Terminated reports whether the block already ends in a terminator.
func (b *BasicBlock) Terminated() bool {
	n := len(b.Instructions)
	return n > 0 && b.Instructions[n-1].Op.IsTerminator()
}

type Param struct {
	Name string
	Typ  types.Type
}

type Func struct {
	Name     string
	Ret      types.Type
	Params   []*Param
	Variadic bool
	Declare  bool
	Blocks   []*BasicBlock
}

// Data is a global variable with a constant initializer.
type Data struct {
	Name string
	Typ  types.Type
	Init Value
}

// StringConst is a private NUL-terminated byte array.
type StringConst struct {
	Name  string
	Value string // raw bytes without the terminator
}

// Array returns the llir constant for the string, terminator included.
func (s *StringConst) Array() *constant.CharArray {
	return constant.NewCharArrayFromString(s.Value + "\x00")
}

type Program struct {
	Triple   string
	TypeDefs []*types.StructType // named, with their fields
	Globals  []*Data
	Strings  []*StringConst
	Funcs    []*Func
}

func (p *Program) FindFunc(name string) *Func {
	for _, f := range p.Funcs {
		if f.Name == name {
			return f
		}
	}
	return nil
}
