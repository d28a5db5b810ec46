package codegen

import (
	"bytes"
	"fmt"
	"strconv"

	llvm "github.com/llir/llvm/ir"
	"github.com/llir/llvm/ir/constant"
	"github.com/llir/llvm/ir/enum"
	"github.com/llir/llvm/ir/types"
	"github.com/llir/llvm/ir/value"
	"github.com/nvylang/nvyc/pkg/config"
	"github.com/nvylang/nvyc/pkg/ir"
)

// llvmBackend lowers an ir.Program onto an llir module and prints it as
// textual LLVM IR.
type llvmBackend struct{}

func NewLLVMBackend() Backend { return &llvmBackend{} }

func (b *llvmBackend) Name() string { return "llvm" }

func (b *llvmBackend) Generate(prog *ir.Program, cfg *config.Config) (*bytes.Buffer, error) {
	m, err := Lower(prog, cfg)
	if err != nil {
		return nil, err
	}
	var buf bytes.Buffer
	if _, err := m.WriteTo(&buf); err != nil {
		return nil, err
	}
	return &buf, nil
}

var intPredicates = map[string]enum.IPred{
	"eq": enum.IPredEQ, "ne": enum.IPredNE,
	"slt": enum.IPredSLT, "sle": enum.IPredSLE, "sgt": enum.IPredSGT, "sge": enum.IPredSGE,
	"ult": enum.IPredULT, "ule": enum.IPredULE, "ugt": enum.IPredUGT, "uge": enum.IPredUGE,
}

var floatPredicates = map[string]enum.FPred{
	"oeq": enum.FPredOEQ, "une": enum.FPredUNE,
	"olt": enum.FPredOLT, "ole": enum.FPredOLE, "ogt": enum.FPredOGT, "oge": enum.FPredOGE,
}

// lowering holds the llir objects created so far for one program.
type lowering struct {
	m       *llvm.Module
	structs map[string]*types.StructType
	globals map[string]value.Value
	strings map[string]*llvm.Global

	// per function
	locals map[string]value.Value
	blocks map[string]*llvm.Block
}

// Lower builds the llir module for prog. Registers with numeric names are
// left unnamed so llir numbers them; every other register, parameter and
// block keeps its name.
func Lower(prog *ir.Program, cfg *config.Config) (*llvm.Module, error) {
	l := &lowering{
		m:       llvm.NewModule(),
		structs: make(map[string]*types.StructType),
		globals: make(map[string]value.Value),
		strings: make(map[string]*llvm.Global),
	}
	l.m.TargetTriple = prog.Triple
	if l.m.TargetTriple == "" && cfg != nil {
		l.m.TargetTriple = cfg.Triple
	}

	// Every struct is registered before any field is resolved, so members
	// may name structs defined later.
	for _, td := range prog.TypeDefs {
		st := types.NewStruct()
		l.m.NewTypeDef(td.TypeName, st)
		l.structs[td.TypeName] = st
	}
	for _, td := range prog.TypeDefs {
		st := l.structs[td.TypeName]
		for _, f := range td.Fields {
			st.Fields = append(st.Fields, l.resolve(f))
		}
	}

	var strs []*llvm.Global
	for _, sc := range prog.Strings {
		g := llvm.NewGlobalDef(sc.Name, sc.Array())
		g.Linkage = enum.LinkagePrivate
		g.Immutable = true
		l.strings[sc.Name] = g
		l.globals[sc.Name] = g
		strs = append(strs, g)
	}
	for _, d := range prog.Globals {
		init, err := l.constant(d.Init)
		if err != nil {
			return nil, fmt.Errorf("global @%s: %w", d.Name, err)
		}
		l.globals[d.Name] = l.m.NewGlobalDef(d.Name, init)
	}
	l.m.Globals = append(l.m.Globals, strs...)

	funcs := make([]*llvm.Func, len(prog.Funcs))
	for i, fn := range prog.Funcs {
		params := make([]*llvm.Param, len(fn.Params))
		for j, p := range fn.Params {
			params[j] = llvm.NewParam(p.Name, l.resolve(p.Typ))
		}
		f := l.m.NewFunc(fn.Name, l.resolve(fn.Ret), params...)
		f.Sig.Variadic = fn.Variadic
		l.globals[fn.Name] = f
		funcs[i] = f
	}
	for i, fn := range prog.Funcs {
		if fn.Declare {
			continue
		}
		if err := l.lowerFunc(funcs[i], fn); err != nil {
			return nil, fmt.Errorf("function @%s: %w", fn.Name, err)
		}
	}
	return l.m, nil
}

// resolve swaps named struct references for the module's full definitions
// so llir can index into them.
func (l *lowering) resolve(t types.Type) types.Type {
	switch t := t.(type) {
	case *types.StructType:
		if st, ok := l.structs[t.TypeName]; ok {
			return st
		}
	case *types.PointerType:
		return types.NewPointer(l.resolve(t.ElemType))
	case *types.ArrayType:
		return types.NewArray(t.Len, l.resolve(t.ElemType))
	}
	return t
}

func (l *lowering) constant(v ir.Value) (constant.Constant, error) {
	switch v := v.(type) {
	case *ir.Const:
		return v.C, nil
	case *ir.StringAddr:
		g, ok := l.strings[v.Str.Name]
		if !ok {
			return nil, fmt.Errorf("unknown string constant @%s", v.Str.Name)
		}
		zero := constant.NewInt(types.I32, 0)
		gep := constant.NewGetElementPtr(g.ContentType, g, zero, zero)
		gep.InBounds = true
		return gep, nil
	}
	return nil, fmt.Errorf("%s is not a constant", v)
}

func (l *lowering) value(v ir.Value) (value.Value, error) {
	switch v := v.(type) {
	case *ir.Const, *ir.StringAddr:
		return l.constant(v)
	case *ir.Global:
		if g, ok := l.globals[v.Name]; ok {
			return g, nil
		}
		return nil, fmt.Errorf("undefined global %s", v)
	case *ir.Temporary:
		if t, ok := l.locals[v.Name]; ok {
			return t, nil
		}
		return nil, fmt.Errorf("register %s used before its definition", v)
	}
	return nil, fmt.Errorf("%s is not a value", v)
}

func (l *lowering) block(v ir.Value) (*llvm.Block, error) {
	if lbl, ok := v.(*ir.Label); ok {
		if b, ok := l.blocks[lbl.Name]; ok {
			return b, nil
		}
	}
	return nil, fmt.Errorf("undefined label %s", v)
}

func (l *lowering) lowerFunc(f *llvm.Func, fn *ir.Func) error {
	l.locals = make(map[string]value.Value)
	l.blocks = make(map[string]*llvm.Block)
	for _, p := range f.Params {
		l.locals[p.Name()] = p
	}
	blocks := make([]*llvm.Block, len(fn.Blocks))
	for i, b := range fn.Blocks {
		blocks[i] = f.NewBlock(b.Label.Name)
		l.blocks[b.Label.Name] = blocks[i]
	}
	for i, b := range fn.Blocks {
		for _, instr := range b.Instructions {
			if err := l.lowerInstr(blocks[i], instr); err != nil {
				return fmt.Errorf("%s: %w", b.Label.Name, err)
			}
		}
		if blocks[i].Term == nil {
			blocks[i].NewUnreachable()
		}
	}
	return nil
}

// define binds the result register of an instruction.
func (l *lowering) define(res *ir.Temporary, v value.Named) {
	if res == nil {
		return
	}
	if _, err := strconv.ParseUint(res.Name, 10, 64); err != nil {
		v.SetName(res.Name)
	}
	l.locals[res.Name] = v
}

func (l *lowering) lowerInstr(blk *llvm.Block, instr *ir.Instruction) error {
	switch instr.Op {
	case ir.OpBr:
		target, err := l.block(instr.Args[0])
		if err != nil {
			return err
		}
		blk.NewBr(target)
		return nil
	case ir.OpCondBr:
		cond, err := l.value(instr.Args[0])
		if err != nil {
			return err
		}
		t, err := l.block(instr.Args[1])
		if err != nil {
			return err
		}
		f, err := l.block(instr.Args[2])
		if err != nil {
			return err
		}
		blk.NewCondBr(cond, t, f)
		return nil
	case ir.OpUnreachable:
		blk.NewUnreachable()
		return nil
	}

	args := make([]value.Value, len(instr.Args))
	for i, a := range instr.Args {
		v, err := l.value(a)
		if err != nil {
			return err
		}
		args[i] = v
	}

	var res value.Named
	switch op := instr.Op; {
	case op == ir.OpAlloca:
		res = blk.NewAlloca(l.resolve(instr.Typ))
	case op == ir.OpLoad:
		res = blk.NewLoad(l.resolve(instr.Typ), args[0])
	case op == ir.OpStore:
		blk.NewStore(args[0], args[1])
	case op == ir.OpGEP:
		res = blk.NewGetElementPtr(l.resolve(instr.Typ), args[0], args[1:]...)
	case op.IsBinary():
		res = binary(blk, op, args[0], args[1])
	case op == ir.OpFNeg:
		res = blk.NewFNeg(args[0])
	case op == ir.OpICmp:
		pred, ok := intPredicates[instr.Pred]
		if !ok {
			return fmt.Errorf("unknown icmp predicate %q", instr.Pred)
		}
		res = blk.NewICmp(pred, args[0], args[1])
	case op == ir.OpFCmp:
		pred, ok := floatPredicates[instr.Pred]
		if !ok {
			return fmt.Errorf("unknown fcmp predicate %q", instr.Pred)
		}
		res = blk.NewFCmp(pred, args[0], args[1])
	case op.IsCast():
		res = cast(blk, op, args[0], l.resolve(instr.To))
	case op == ir.OpRet:
		if _, void := instr.Typ.(*types.VoidType); void || len(args) == 0 {
			blk.NewRet(nil)
		} else {
			blk.NewRet(args[0])
		}
	case op == ir.OpCall:
		call := blk.NewCall(args[0], args[1:]...)
		if instr.Result != nil {
			res = call
		}
	default:
		return fmt.Errorf("unsupported instruction %s", op)
	}
	if res != nil {
		l.define(instr.Result, res)
	}
	return nil
}

func binary(blk *llvm.Block, op ir.Op, x, y value.Value) value.Named {
	switch op {
	case ir.OpAdd:
		return blk.NewAdd(x, y)
	case ir.OpSub:
		return blk.NewSub(x, y)
	case ir.OpMul:
		return blk.NewMul(x, y)
	case ir.OpSDiv:
		return blk.NewSDiv(x, y)
	case ir.OpSRem:
		return blk.NewSRem(x, y)
	case ir.OpAnd:
		return blk.NewAnd(x, y)
	case ir.OpOr:
		return blk.NewOr(x, y)
	case ir.OpXor:
		return blk.NewXor(x, y)
	case ir.OpShl:
		return blk.NewShl(x, y)
	case ir.OpAShr:
		return blk.NewAShr(x, y)
	case ir.OpLShr:
		return blk.NewLShr(x, y)
	case ir.OpFAdd:
		return blk.NewFAdd(x, y)
	case ir.OpFSub:
		return blk.NewFSub(x, y)
	case ir.OpFMul:
		return blk.NewFMul(x, y)
	case ir.OpFDiv:
		return blk.NewFDiv(x, y)
	}
	return blk.NewFRem(x, y)
}

func cast(blk *llvm.Block, op ir.Op, from value.Value, to types.Type) value.Named {
	switch op {
	case ir.OpSExt:
		return blk.NewSExt(from, to)
	case ir.OpZExt:
		return blk.NewZExt(from, to)
	case ir.OpTrunc:
		return blk.NewTrunc(from, to)
	case ir.OpSIToFP:
		return blk.NewSIToFP(from, to)
	case ir.OpUIToFP:
		return blk.NewUIToFP(from, to)
	case ir.OpFPToSI:
		return blk.NewFPToSI(from, to)
	case ir.OpFPExt:
		return blk.NewFPExt(from, to)
	case ir.OpFPTrunc:
		return blk.NewFPTrunc(from, to)
	case ir.OpBitcast:
		return blk.NewBitCast(from, to)
	case ir.OpPtrToInt:
		return blk.NewPtrToInt(from, to)
	}
	return blk.NewIntToPtr(from, to)
}
