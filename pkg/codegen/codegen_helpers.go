package codegen

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/llir/llvm/ir/types"
	"github.com/nvylang/nvyc/pkg/ast"
	"github.com/nvylang/nvyc/pkg/config"
	"github.com/nvylang/nvyc/pkg/ir"
	"github.com/nvylang/nvyc/pkg/symbols"
	"github.com/nvylang/nvyc/pkg/util"
)

var literalKinds = map[ast.NodeType]symbols.Kind{
	ast.Int32Lit:  symbols.Int32,
	ast.Int64Lit:  symbols.Int64,
	ast.FP32Lit:   symbols.FP32,
	ast.FP64Lit:   symbols.FP64,
	ast.BoolLit:   symbols.Bool,
	ast.CharLit:   symbols.Char,
	ast.StringLit: symbols.Str,
}

var intOps = map[ast.NodeType]ir.Op{
	ast.Add: ir.OpAdd, ast.Sub: ir.OpSub, ast.Mul: ir.OpMul, ast.Div: ir.OpSDiv, ast.Mod: ir.OpSRem,
	ast.BitAnd: ir.OpAnd, ast.BitOr: ir.OpOr, ast.BitXor: ir.OpXor,
	ast.Shl: ir.OpShl, ast.Shr: ir.OpAShr, ast.UShr: ir.OpLShr,
}

var floatOps = map[ast.NodeType]ir.Op{
	ast.Add: ir.OpFAdd, ast.Sub: ir.OpFSub, ast.Mul: ir.OpFMul, ast.Div: ir.OpFDiv, ast.Mod: ir.OpFRem,
}

var intPreds = map[ast.NodeType]string{
	ast.Eq: "eq", ast.Neq: "ne", ast.Lt: "slt", ast.Lte: "sle", ast.Gt: "sgt", ast.Gte: "sge",
}

var floatPreds = map[ast.NodeType]string{
	ast.Eq: "oeq", ast.Neq: "une", ast.Lt: "olt", ast.Lte: "ole", ast.Gt: "ogt", ast.Gte: "oge",
}

var pointerPreds = map[ast.NodeType]string{
	ast.Eq: "eq", ast.Neq: "ne", ast.Lt: "ult", ast.Lte: "ule", ast.Gt: "ugt", ast.Gte: "uge",
}

func i32(v int64) *ir.Const { return ir.NewInt(types.I32, v) }

func zero(t symbols.Type) ir.Value {
	switch {
	case t.IsFloat():
		return ir.NewFloat(t.LLVM(), 0)
	case t.IsInt():
		return ir.NewInt(t.LLVM(), 0)
	case t.IsPointer():
		return ir.NewNull(t.LLVM())
	}
	return ir.NewZero(t.LLVM())
}

// unquote strips the quotes of a char or string literal and resolves its
// escape sequences.
func unquote(s string) string {
	if len(s) >= 2 && (s[0] == '"' || s[0] == '\'') && s[len(s)-1] == s[0] {
		s = s[1 : len(s)-1]
	}
	var sb strings.Builder
	for i := 0; i < len(s); i++ {
		if s[i] != '\\' || i+1 == len(s) {
			sb.WriteByte(s[i])
			continue
		}
		i++
		switch s[i] {
		case 'n':
			sb.WriteByte('\n')
		case 't':
			sb.WriteByte('\t')
		case '0':
			sb.WriteByte(0)
		case '\\', '"', '\'':
			sb.WriteByte(s[i])
		default:
			sb.WriteByte('\\')
			sb.WriteByte(s[i])
		}
	}
	return sb.String()
}

func literalTruth(n *ast.Node) bool {
	switch n.Type {
	case ast.FP32Lit, ast.FP64Lit:
		f, _ := strconv.ParseFloat(n.Value, 64)
		return f != 0
	case ast.CharLit:
		s := unquote(n.Value)
		return s != "" && s[0] != 0
	case ast.StringLit:
		return true
	}
	v, _ := strconv.ParseInt(n.Value, 10, 64)
	return v != 0
}

func (ctx *Context) codegenExpr(node *ast.Node) (operand, error) {
	switch {
	case node.Type == ast.StringLit:
		return ctx.codegenString(node)
	case node.Type.IsLiteral():
		return ctx.codegenLiteral(node)
	case node.Type == ast.Variable:
		return ctx.codegenVariable(node)
	case node.Type == ast.ArrayAccess:
		addr, typ, err := ctx.subscriptAddr(node)
		if err != nil {
			return operand{}, err
		}
		return ctx.load(addr, typ), nil
	case node.Type == ast.Call:
		return ctx.codegenFuncCall(node)
	case node.Type.IsUnary():
		return ctx.codegenUnary(node)
	case node.Type == ast.LogicAnd || node.Type == ast.LogicOr:
		return ctx.codegenLogical(node)
	case node.Type.IsBinary():
		return ctx.codegenBinary(node)
	}
	return operand{}, util.Errorf(util.ErrExpectedExpression, node.Tok, "%s is not a value", node.Type)
}

func (ctx *Context) codegenLiteral(node *ast.Node) (operand, error) {
	typ := symbols.Basic(literalKinds[node.Type])
	switch node.Type {
	case ast.Int32Lit, ast.Int64Lit, ast.BoolLit:
		v, err := strconv.ParseInt(node.Value, 10, 64)
		if err != nil {
			return operand{}, util.Errorf(util.ErrInvalidNumber, node.Tok, "malformed integer '%s'", node.Value)
		}
		return operand{val: ir.NewInt(typ.LLVM(), v), typ: typ, lit: node.Value}, nil
	case ast.FP32Lit, ast.FP64Lit:
		v, err := strconv.ParseFloat(node.Value, 64)
		if err != nil {
			return operand{}, util.Errorf(util.ErrInvalidNumber, node.Tok, "malformed float '%s'", node.Value)
		}
		return operand{val: ir.NewFloat(typ.LLVM(), v), typ: typ, lit: node.Value}, nil
	case ast.CharLit:
		s := unquote(node.Value)
		if len(s) != 1 {
			return operand{}, util.Errorf(util.ErrInvalidNumber, node.Tok, "character literal %s must hold exactly one byte", node.Value)
		}
		v := int64(int8(s[0]))
		return operand{val: ir.NewInt(types.I8, v), typ: typ, lit: strconv.FormatInt(v, 10)}, nil
	}
	return operand{}, util.Errorf(util.ErrExpectedExpression, node.Tok, "%s is not a literal", node.Type)
}

func (ctx *Context) codegenString(node *ast.Node) (operand, error) {
	sc := ctx.addString(unquote(node.Value))
	res := &ir.Temporary{Name: ctx.uniqueName(sc.Name)}
	ctx.addInstr(&ir.Instruction{
		Op: ir.OpGEP, Typ: sc.Array().Typ, Result: res,
		Args: []ir.Value{&ir.Global{Name: sc.Name}, i32(0), i32(0)},
	})
	return operand{val: res, typ: symbols.Basic(symbols.Str)}, nil
}

func (ctx *Context) lookupVar(node *ast.Node) (*symbols.Variable, error) {
	v, ok := ctx.syms.Vars.Lookup(node.Value)
	if !ok {
		return nil, util.Errorf(util.ErrUndeclaredIdentifier, node.Tok, "use of undeclared variable '%s'", node.Value)
	}
	return v, nil
}

// codegenVariable reads a variable. Within one block a second read reuses
// the register of the first.
func (ctx *Context) codegenVariable(node *ast.Node) (operand, error) {
	if node.Find(ast.Member) != nil {
		addr, typ, err := ctx.memberAddr(node)
		if err != nil {
			return operand{}, err
		}
		if typ.Kind == symbols.Array {
			return ctx.decay(addr, typ), nil
		}
		return ctx.load(addr, typ), nil
	}

	v, err := ctx.lookupVar(node)
	if err != nil {
		return operand{}, err
	}
	switch {
	case !v.Allocated:
		return operand{val: varAddr(v), typ: v.Type}, nil
	case v.Type.Kind == symbols.Array:
		return ctx.decay(varAddr(v), v.Type), nil
	case v.Loaded != "":
		return operand{val: &ir.Temporary{Name: v.Loaded}, typ: v.Type}, nil
	}
	op := ctx.load(varAddr(v), v.Type)
	v.Loaded = op.val.(*ir.Temporary).Name
	return op, nil
}

// decay turns the address of an array into a pointer to its first element.
func (ctx *Context) decay(addr ir.Value, arr symbols.Type) operand {
	res := ctx.newTemp()
	ctx.addInstr(&ir.Instruction{
		Op: ir.OpGEP, Typ: arr.LLVM(), Result: res,
		Args: []ir.Value{addr, i32(0), i32(0)},
	})
	return operand{val: res, typ: symbols.PointerTo(*arr.Elem)}
}

func elemOf(t symbols.Type) symbols.Type {
	elem, _ := t.Deref()
	if elem.Kind == symbols.Void {
		return symbols.Basic(symbols.Char)
	}
	return elem
}

func (ctx *Context) subscriptAddr(node *ast.Node) (ir.Value, symbols.Type, error) {
	v, err := ctx.lookupVar(node)
	if err != nil {
		return nil, symbols.Type{}, err
	}
	idx, err := ctx.codegenExpr(node.Child(0))
	if err != nil {
		return nil, symbols.Type{}, err
	}
	if !idx.typ.IsInt() {
		return nil, symbols.Type{}, util.Errorf(util.ErrTypeMismatch, node.Tok, "index of '%s' must be an integer, got '%s'", node.Value, idx.typ)
	}
	if idx.typ.Kind == symbols.Bool || idx.typ.Kind == symbols.Char {
		if idx, err = ctx.convert(idx, symbols.Basic(symbols.Int32), node, false); err != nil {
			return nil, symbols.Type{}, err
		}
	}

	switch {
	case v.Type.Kind == symbols.Array:
		res := ctx.newTemp()
		ctx.addInstr(&ir.Instruction{
			Op: ir.OpGEP, Typ: v.Type.LLVM(), Result: res,
			Args: []ir.Value{varAddr(v), i32(0), idx.val},
		})
		return res, *v.Type.Elem, nil
	case v.Type.IsPointer():
		ptr, err := ctx.codegenVariable(ast.New(ast.Variable, node.Value, node.Tok))
		if err != nil {
			return nil, symbols.Type{}, err
		}
		elem := elemOf(v.Type)
		res := ctx.newTemp()
		ctx.addInstr(&ir.Instruction{
			Op: ir.OpGEP, Typ: elem.LLVM(), Result: res,
			Args: []ir.Value{ptr.val, idx.val},
		})
		return res, elem, nil
	}
	return nil, symbols.Type{}, util.Errorf(util.ErrInvalidDereference, node.Tok, "'%s' of type '%s' cannot be indexed", node.Value, v.Type)
}

// memberAddr walks a member chain to the address of its last member. A
// pointer-to-struct is loaded before each step that needs it.
func (ctx *Context) memberAddr(node *ast.Node) (ir.Value, symbols.Type, error) {
	v, err := ctx.lookupVar(node)
	if err != nil {
		return nil, symbols.Type{}, err
	}
	var base ir.Value
	typ := v.Type
	switch {
	case typ.Kind == symbols.Struct && v.Allocated:
		base = varAddr(v)
	case typ.Kind == symbols.Pointer && typ.Elem.Kind == symbols.Struct:
		op, err := ctx.codegenVariable(ast.New(ast.Variable, node.Value, node.Tok))
		if err != nil {
			return nil, symbols.Type{}, err
		}
		base, typ = op.val, *typ.Elem
	default:
		return nil, symbols.Type{}, util.Errorf(util.ErrTypeMismatch, node.Tok, "'%s' of type '%s' has no members", node.Value, typ)
	}

	for m := node.Find(ast.Member); m != nil; m = m.Find(ast.Member) {
		if typ.Kind == symbols.Pointer && typ.Elem.Kind == symbols.Struct {
			op := ctx.load(base, typ)
			base, typ = op.val, *typ.Elem
		}
		if typ.Kind != symbols.Struct {
			return nil, symbols.Type{}, util.Errorf(util.ErrTypeMismatch, m.Tok, "'%s' of type '%s' has no members", m.Value, typ)
		}
		ord, mtyp, ok := ctx.syms.Structs.Member(typ.Name, m.Value)
		if !ok {
			return nil, symbols.Type{}, util.Errorf(util.ErrUndeclaredIdentifier, m.Tok, "struct '%s' has no member '%s'", typ.Name, m.Value)
		}
		res := ctx.newTemp()
		ctx.addInstr(&ir.Instruction{
			Op: ir.OpGEP, Typ: typ.LLVM(), Result: res,
			Args: []ir.Value{base, i32(0), i32(int64(ord))},
		})
		base, typ = res, mtyp
	}
	return base, typ, nil
}

// codegenLvalue returns the address a store to node writes and the type
// stored there.
func (ctx *Context) codegenLvalue(node *ast.Node) (ir.Value, symbols.Type, error) {
	switch node.Type {
	case ast.Variable:
		if node.Find(ast.Member) != nil {
			return ctx.memberAddr(node)
		}
		v, err := ctx.lookupVar(node)
		if err != nil {
			return nil, symbols.Type{}, err
		}
		if !v.Allocated {
			return nil, symbols.Type{}, util.Errorf(util.ErrInvalidAddressOf, node.Tok, "'%s' has no storage", node.Value)
		}
		return varAddr(v), v.Type, nil
	case ast.ArrayAccess:
		return ctx.subscriptAddr(node)
	case ast.Deref:
		ptr, err := ctx.codegenExpr(node.Child(0))
		if err != nil {
			return nil, symbols.Type{}, err
		}
		elem, ok := ptr.typ.Deref()
		if !ok {
			return nil, symbols.Type{}, util.Errorf(util.ErrInvalidDereference, node.Tok, "cannot dereference a value of type '%s'", ptr.typ)
		}
		if elem.Kind == symbols.Void {
			return nil, symbols.Type{}, util.Errorf(util.ErrInvalidDereference, node.Tok, "cannot dereference an untyped pointer")
		}
		return ptr.val, elem, nil
	}
	return nil, symbols.Type{}, util.Errorf(util.ErrInvalidAddressOf, node.Tok, "cannot take the address of %s", node.Type)
}

func negateLiteral(lit string) string {
	if strings.HasPrefix(lit, "-") {
		return lit[1:]
	}
	return "-" + lit
}

func (ctx *Context) codegenUnary(node *ast.Node) (operand, error) {
	switch node.Type {
	case ast.AddrOf:
		addr, typ, err := ctx.codegenLvalue(node.Child(0))
		if err != nil {
			return operand{}, err
		}
		return operand{val: addr, typ: symbols.PointerTo(typ)}, nil
	case ast.Deref:
		addr, typ, err := ctx.codegenLvalue(node)
		if err != nil {
			return operand{}, err
		}
		return ctx.load(addr, typ), nil
	}

	x, err := ctx.codegenExpr(node.Child(0))
	if err != nil {
		return operand{}, err
	}
	t := x.typ.LLVM()
	instr := &ir.Instruction{Typ: t, Args: []ir.Value{x.val}}
	result := x.typ
	switch {
	case node.Type == ast.Neg && x.lit != "" && x.typ.IsNumeric() && x.typ.Kind != symbols.Bool:
		return convertConst(operand{typ: x.typ, lit: negateLiteral(x.lit)}, x.typ), nil
	case node.Type == ast.Neg && x.typ.IsFloat():
		instr.Op = ir.OpFNeg
	case node.Type == ast.Neg && x.typ.IsInt():
		instr.Op, instr.Args = ir.OpSub, []ir.Value{ir.NewInt(t, 0), x.val}
	case node.Type == ast.BitNot && x.typ.Kind == symbols.Bool:
		instr.Op, instr.Args = ir.OpXor, []ir.Value{x.val, ir.NewInt(t, 1)}
	case node.Type == ast.BitNot && x.typ.IsInt():
		instr.Op, instr.Args = ir.OpXor, []ir.Value{x.val, ir.NewInt(t, -1)}
	case node.Type == ast.Not && x.typ.IsFloat():
		instr.Op, instr.Pred, instr.Args = ir.OpFCmp, "oeq", []ir.Value{x.val, zero(x.typ)}
		result = symbols.Basic(symbols.Bool)
	case node.Type == ast.Not && (x.typ.IsInt() || x.typ.IsPointer()):
		instr.Op, instr.Pred, instr.Args = ir.OpICmp, "eq", []ir.Value{x.val, zero(x.typ)}
		result = symbols.Basic(symbols.Bool)
	default:
		return operand{}, util.Errorf(util.ErrInvalidOperatorUsage, node.Tok, "unary %s cannot be applied to '%s'", node.Type, x.typ)
	}
	instr.Result = ctx.newTemp()
	ctx.addInstr(instr)
	return operand{val: instr.Result, typ: result}, nil
}

// toBool reduces a scalar to an i1 by comparing it against zero.
func (ctx *Context) toBool(op operand, node *ast.Node) (ir.Value, error) {
	var pred string
	code := ir.OpICmp
	switch {
	case op.typ.Kind == symbols.Bool:
		return op.val, nil
	case op.typ.IsInt(), op.typ.IsPointer():
		pred = "ne"
	case op.typ.IsFloat():
		code, pred = ir.OpFCmp, "une"
	default:
		return nil, util.Errorf(util.ErrTypeMismatch, node.Tok, "a value of type '%s' cannot be used as a condition", op.typ)
	}
	res := ctx.newTemp()
	ctx.addInstr(&ir.Instruction{Op: code, Pred: pred, Typ: op.typ.LLVM(), Result: res, Args: []ir.Value{op.val, zero(op.typ)}})
	return res, nil
}

func (ctx *Context) codegenLogical(node *ast.Node) (operand, error) {
	var vals [2]ir.Value
	for i := range vals {
		op, err := ctx.codegenExpr(node.Child(i))
		if err != nil {
			return operand{}, err
		}
		if vals[i], err = ctx.toBool(op, node.Child(i)); err != nil {
			return operand{}, err
		}
	}
	code := ir.OpAnd
	if node.Type == ast.LogicOr {
		code = ir.OpOr
	}
	res := ctx.newTemp()
	ctx.addInstr(&ir.Instruction{Op: code, Typ: types.I1, Result: res, Args: vals[:]})
	return operand{val: res, typ: symbols.Basic(symbols.Bool)}, nil
}

func (ctx *Context) codegenBinary(node *ast.Node) (operand, error) {
	lhs, err := ctx.codegenExpr(node.Child(0))
	if err != nil {
		return operand{}, err
	}
	rhs, err := ctx.codegenExpr(node.Child(1))
	if err != nil {
		return operand{}, err
	}
	if lhs.typ.IsPointer() || rhs.typ.IsPointer() {
		return ctx.codegenPointerBinary(node, lhs, rhs)
	}
	if !lhs.typ.IsNumeric() || !rhs.typ.IsNumeric() {
		return operand{}, util.Errorf(util.ErrInvalidOperatorUsage, node.Tok, "%s cannot be applied to '%s' and '%s'", node.Type, lhs.typ, rhs.typ)
	}
	if (node.Type == ast.Div || node.Type == ast.Mod) && rhs.typ.IsInt() && rhs.lit != "" {
		if v, _ := strconv.ParseInt(rhs.lit, 10, 64); v == 0 {
			return operand{}, util.Errorf(util.ErrDivisionByZero, node.Tok, "division by zero")
		}
	}

	typ := symbols.Common(lhs.typ, rhs.typ)
	kind := "arith"
	if node.Type.IsComparison() {
		kind = "logic"
	}
	if lhs, err = ctx.promote(lhs, typ, kind, node.Child(0)); err != nil {
		return operand{}, err
	}
	if rhs, err = ctx.promote(rhs, typ, kind, node.Child(1)); err != nil {
		return operand{}, err
	}

	instr := &ir.Instruction{Typ: typ.LLVM(), Args: []ir.Value{lhs.val, rhs.val}}
	result := typ
	switch {
	case node.Type.IsComparison() && typ.IsFloat():
		instr.Op, instr.Pred = ir.OpFCmp, floatPreds[node.Type]
		result = symbols.Basic(symbols.Bool)
	case node.Type.IsComparison():
		instr.Op, instr.Pred = ir.OpICmp, intPreds[node.Type]
		result = symbols.Basic(symbols.Bool)
	default:
		ops := intOps
		if typ.IsFloat() {
			ops = floatOps
		}
		op, ok := ops[node.Type]
		if !ok {
			return operand{}, util.Errorf(util.ErrInvalidOperatorUsage, node.Tok, "%s cannot be applied to '%s'", node.Type, typ)
		}
		instr.Op = op
	}
	instr.Result = ctx.newTemp()
	ctx.addInstr(instr)
	return operand{val: instr.Result, typ: result}, nil
}

func nullIfZero(op operand, ptr symbols.Type) operand {
	if op.lit == "0" {
		return operand{val: ir.NewNull(ptr.LLVM()), typ: ptr}
	}
	return op
}

// codegenPointerBinary handles pointer offsets and pointer comparisons.
func (ctx *Context) codegenPointerBinary(node *ast.Node, lhs, rhs operand) (operand, error) {
	if node.Type.IsComparison() {
		lhs, rhs = nullIfZero(lhs, rhs.typ), nullIfZero(rhs, lhs.typ)
		if lhs.typ.IsPointer() && rhs.typ.IsPointer() {
			if lhs.typ.IR() != rhs.typ.IR() {
				var err error
				if rhs, err = ctx.convert(rhs, lhs.typ, node.Child(1), true); err != nil {
					return operand{}, err
				}
			}
			res := ctx.newTemp()
			ctx.addInstr(&ir.Instruction{Op: ir.OpICmp, Pred: pointerPreds[node.Type], Typ: lhs.typ.LLVM(), Result: res, Args: []ir.Value{lhs.val, rhs.val}})
			return operand{val: res, typ: symbols.Basic(symbols.Bool)}, nil
		}
	}

	if node.Type == ast.Add && rhs.typ.IsPointer() && lhs.typ.IsInt() {
		lhs, rhs = rhs, lhs
	}
	if (node.Type == ast.Add || node.Type == ast.Sub) && lhs.typ.IsPointer() && rhs.typ.IsInt() {
		idx, err := ctx.convert(rhs, symbols.Basic(symbols.Int64), node.Child(1), false)
		if err != nil {
			return operand{}, err
		}
		if node.Type == ast.Sub {
			if idx.lit != "" {
				idx = convertConst(operand{typ: idx.typ, lit: negateLiteral(idx.lit)}, idx.typ)
			} else {
				neg := ctx.newTemp()
				ctx.addInstr(&ir.Instruction{Op: ir.OpSub, Typ: types.I64, Result: neg, Args: []ir.Value{ir.NewInt(types.I64, 0), idx.val}})
				idx.val = neg
			}
		}
		res := ctx.newTemp()
		ctx.addInstr(&ir.Instruction{
			Op: ir.OpGEP, Typ: elemOf(lhs.typ).LLVM(), Result: res,
			Args: []ir.Value{lhs.val, idx.val},
		})
		return operand{val: res, typ: lhs.typ}, nil
	}
	return operand{}, util.Errorf(util.ErrInvalidOperatorUsage, node.Tok, "%s cannot be applied to '%s' and '%s'", node.Type, lhs.typ, rhs.typ)
}

// operandName names the source of a promoted value: the variable it was
// read from, or the register that held it.
func operandName(node *ast.Node, op operand) string {
	switch node.Type {
	case ast.Variable:
		return strings.Join(ast.MemberPath(node), "_")
	case ast.ArrayAccess:
		return node.Value
	}
	return strings.TrimPrefix(op.val.String(), "%")
}

// promote widens a binary operand to the common type of the operation.
func (ctx *Context) promote(op operand, to symbols.Type, kind string, node *ast.Node) (operand, error) {
	if op.typ.Equal(to) {
		return op, nil
	}
	if op.lit != "" {
		return convertConst(op, to), nil
	}
	code, _, ok := castOp(op.typ, to)
	if !ok {
		return operand{}, util.Errorf(util.ErrTypeMismatch, node.Tok, "cannot promote '%s' to '%s'", op.typ, to)
	}
	name := operandName(node, op)
	ctx.diag.Warn(config.WarnImplicitPromotion, node.Tok, "'%s' is implicitly promoted from '%s' to '%s'", name, op.typ, to)
	res := &ir.Temporary{Name: ctx.uniqueName(fmt.Sprintf("bcast_%s_%d_from_%s", kind, ctx.named, name))}
	ctx.named++
	ctx.addInstr(&ir.Instruction{Op: code, Typ: op.typ.LLVM(), To: to.LLVM(), Result: res, Args: []ir.Value{op.val}})
	return operand{val: res, typ: to}, nil
}

func intBits(k symbols.Kind) int {
	switch k {
	case symbols.Bool:
		return 1
	case symbols.Char:
		return 8
	case symbols.Int32:
		return 32
	}
	return 64
}

// castOp picks the conversion instruction between two types and reports
// whether it can lose information.
func castOp(from, to symbols.Type) (op ir.Op, narrowing, ok bool) {
	switch {
	case from.IsInt() && to.IsInt():
		fb, tb := intBits(from.Kind), intBits(to.Kind)
		switch {
		case fb < tb && from.Kind == symbols.Bool:
			return ir.OpZExt, false, true
		case fb < tb:
			return ir.OpSExt, false, true
		case fb > tb:
			return ir.OpTrunc, true, true
		}
	case from.IsInt() && to.IsFloat():
		if from.Kind == symbols.Bool {
			return ir.OpUIToFP, false, true
		}
		return ir.OpSIToFP, false, true
	case from.IsFloat() && to.IsInt():
		return ir.OpFPToSI, true, true
	case from.IsFloat() && to.IsFloat():
		if from.Kind == symbols.FP32 {
			return ir.OpFPExt, false, true
		}
		return ir.OpFPTrunc, true, true
	case from.IsPointer() && to.IsPointer():
		return ir.OpBitcast, false, true
	case from.IsPointer() && to.IsInt():
		return ir.OpPtrToInt, false, true
	case from.IsInt() && to.IsPointer():
		return ir.OpIntToPtr, false, true
	}
	return 0, false, false
}

// convertConst re-types a literal operand without emitting an instruction.
func convertConst(op operand, to symbols.Type) operand {
	switch {
	case to.IsFloat():
		v, _ := strconv.ParseFloat(op.lit, 64)
		return operand{val: ir.NewFloat(to.LLVM(), v), typ: to, lit: op.lit}
	case to.IsInt():
		v, err := strconv.ParseInt(op.lit, 10, 64)
		if err != nil {
			f, _ := strconv.ParseFloat(op.lit, 64)
			v = int64(f)
		}
		switch to.Kind {
		case symbols.Bool:
			if v != 0 {
				v = 1
			}
		case symbols.Char:
			v = int64(int8(v))
		case symbols.Int32:
			v = int64(int32(v))
		}
		return operand{val: ir.NewInt(to.LLVM(), v), typ: to, lit: strconv.FormatInt(v, 10)}
	case to.IsPointer():
		return operand{val: ir.NewNull(to.LLVM()), typ: to}
	}
	return op
}

// convert brings a value to the type of the slot it is stored, returned or
// passed into. explicit marks a source-level cast, which also permits
// integer/pointer conversions and changes of pointer depth.
func (ctx *Context) convert(op operand, to symbols.Type, node *ast.Node, explicit bool) (operand, error) {
	if op.typ.Kind == symbols.Void {
		return operand{}, util.Errorf(util.ErrTypeMismatch, node.Tok, "a void value cannot be used as '%s'", to)
	}
	if op.typ.IR() == to.IR() {
		op.typ = to
		return op, nil
	}
	if op.lit != "" && op.typ.IsNumeric() && (to.IsNumeric() || (to.IsPointer() && op.lit == "0")) {
		return convertConst(op, to), nil
	}
	if !explicit && op.typ.IsPointer() && to.IsPointer() && op.typ.Depth() != to.Depth() {
		return operand{}, util.Errorf(util.ErrTypeDepthMismatch, node.Tok, "cannot use '%s' (depth %d) as '%s' (depth %d)", op.typ, op.typ.Depth(), to, to.Depth())
	}
	if to.Kind == symbols.Bool && op.typ.IsNumeric() {
		v, err := ctx.toBool(op, node)
		return operand{val: v, typ: to}, err
	}

	code, narrowing, ok := castOp(op.typ, to)
	if ok && !explicit && (code == ir.OpPtrToInt || code == ir.OpIntToPtr) {
		ok = false
	}
	if !ok {
		if explicit {
			return operand{}, util.Errorf(util.ErrInvalidCast, node.Tok, "cannot cast '%s' to '%s'", op.typ, to)
		}
		return operand{}, util.Errorf(util.ErrTypeMismatch, node.Tok, "cannot use a value of type '%s' as '%s'", op.typ, to)
	}
	if narrowing {
		ctx.diag.Warn(config.WarnNarrowing, node.Tok, "conversion from '%s' to '%s' may lose information", op.typ, to)
	}
	res := ctx.newTemp()
	ctx.addInstr(&ir.Instruction{Op: code, Typ: op.typ.LLVM(), To: to.LLVM(), Result: res, Args: []ir.Value{op.val}})
	return operand{val: res, typ: to}, nil
}

// promoteVariadic widens an argument passed through a variadic tail the
// way C default argument promotion does.
func (ctx *Context) promoteVariadic(op operand) operand {
	var to symbols.Type
	switch op.typ.Kind {
	case symbols.Bool, symbols.Char, symbols.Int32:
		to = symbols.Basic(symbols.Int64)
	case symbols.FP32:
		to = symbols.Basic(symbols.FP64)
	default:
		return op
	}
	if op.lit != "" {
		return convertConst(op, to)
	}
	code, _, _ := castOp(op.typ, to)
	res := &ir.Temporary{Name: ctx.uniqueName(fmt.Sprintf("promote_%d_to_%s", ctx.named, to.LLVM()))}
	ctx.named++
	ctx.addInstr(&ir.Instruction{Op: code, Typ: op.typ.LLVM(), To: to.LLVM(), Result: res, Args: []ir.Value{op.val}})
	return operand{val: res, typ: to}
}

func (ctx *Context) codegenFuncCall(node *ast.Node) (operand, error) {
	if node.Value == "sizeof" {
		return ctx.codegenSizeof(node)
	}
	sig, ok := ctx.syms.Funcs.Lookup(node.Value)
	if !ok {
		return operand{}, util.Errorf(util.ErrUndeclaredIdentifier, node.Tok, "call to undeclared function '%s'", node.Value)
	}
	fixed := sig.FixedArity()
	if len(node.Children) < fixed || (!sig.Variadic && len(node.Children) > fixed) {
		return operand{}, util.Errorf(util.ErrWrongNumberOfArguments, node.Tok, "'%s' expects %d arguments, got %d", node.Value, fixed, len(node.Children))
	}

	instr := &ir.Instruction{Op: ir.OpCall, Typ: sig.Return.LLVM(), Args: []ir.Value{&ir.Global{Name: sig.Name}}}
	for i, arg := range node.Children {
		op, err := ctx.codegenExpr(arg)
		if err != nil {
			return operand{}, err
		}
		switch {
		case i < fixed:
			op, err = ctx.convert(op, sig.Params[i], arg, false)
		case op.typ.Kind == symbols.Void:
			err = util.Errorf(util.ErrTypeMismatch, arg.Tok, "a void value cannot be passed to '%s'", node.Value)
		case ctx.cfg.IsFeatureEnabled(config.FeatVariadicPromotion):
			op = ctx.promoteVariadic(op)
		}
		if err != nil {
			return operand{}, err
		}
		instr.Args = append(instr.Args, op.val)
	}

	res := operand{typ: sig.Return}
	if sig.Return.Kind != symbols.Void {
		instr.Result = ctx.newTemp()
		res.val = instr.Result
	}
	ctx.addInstr(instr)
	ctx.syms.Vars.InvalidateLoads()
	return res, nil
}

func (ctx *Context) codegenSizeof(node *ast.Node) (operand, error) {
	if len(node.Children) != 1 {
		return operand{}, util.Errorf(util.ErrWrongNumberOfArguments, node.Tok, "sizeof expects exactly one argument, got %d", len(node.Children))
	}
	size, err := ctx.sizeOf(node.Child(0))
	if err != nil {
		return operand{}, err
	}
	lit := strconv.Itoa(size)
	return operand{val: ir.NewInt(types.I64, int64(size)), typ: symbols.Basic(symbols.Int64), lit: lit}, nil
}

// sizeOf computes the size of a type, variable, member or literal without
// emitting any code.
func (ctx *Context) sizeOf(n *ast.Node) (int, error) {
	structs := ctx.syms.Structs
	switch n.Type {
	case ast.StringLit:
		return len(unquote(n.Value)), nil
	case ast.TypeRef:
		t, err := ctx.syms.ResolveType(n.Value, n.Tok)
		if err != nil {
			return 0, err
		}
		return t.Size(structs), nil
	case ast.ArrayAccess:
		v, err := ctx.lookupVar(n)
		if err != nil {
			return 0, err
		}
		if v.Type.Kind == symbols.Array {
			return v.Type.Elem.Size(structs), nil
		}
		return elemOf(v.Type).Size(structs), nil
	case ast.Variable:
		if v, ok := ctx.syms.Vars.Lookup(n.Value); ok {
			t := v.Type
			for m := n.Find(ast.Member); m != nil; m = m.Find(ast.Member) {
				if t.Kind == symbols.Pointer && t.Elem.Kind == symbols.Struct {
					t = *t.Elem
				}
				_, mt, ok := structs.Member(t.Name, m.Value)
				if !ok {
					return 0, util.Errorf(util.ErrUndeclaredIdentifier, m.Tok, "struct '%s' has no member '%s'", t.Name, m.Value)
				}
				t = mt
			}
			return t.Size(structs), nil
		}
		if _, ok := structs.Lookup(n.Value); ok {
			return symbols.StructNamed(n.Value).Size(structs), nil
		}
		if _, ok := ctx.syms.Funcs.Lookup(n.Value); ok {
			return 8, nil
		}
		return 0, util.Errorf(util.ErrUndeclaredIdentifier, n.Tok, "sizeof of undeclared name '%s'", n.Value)
	}
	if k, ok := literalKinds[n.Type]; ok {
		return symbols.Basic(k).Size(structs), nil
	}
	return 0, util.Errorf(util.ErrInvalidOperatorUsage, n.Tok, "sizeof needs a type, a variable or a literal")
}
