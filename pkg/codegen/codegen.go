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

// operand is the result of lowering an expression: the value, its semantic
// type, and for literals the source value so conversions can fold.
type operand struct {
	val ir.Value
	typ symbols.Type
	lit string
}

// Context lowers one parsed program into an ir.Program. It reads the
// symbol tables the parser filled and owns the per-function state.
type Context struct {
	prog    *ir.Program
	cfg     *config.Config
	syms    *symbols.Context
	diag    *util.Collector
	strings map[string]*ir.StringConst
	defined map[string]bool

	tempCount int
	named     int
	ifDepth   int
	loopDepth int

	currentFunc  *ir.Func
	currentSig   *symbols.Function
	currentBlock *ir.BasicBlock
	entry        *ir.BasicBlock
	allocaEnd    int
}

func NewContext(cfg *config.Config, syms *symbols.Context, diag *util.Collector) *Context {
	return &Context{
		prog:    &ir.Program{Triple: cfg.Triple},
		cfg:     cfg,
		syms:    syms,
		diag:    diag,
		strings: make(map[string]*ir.StringConst),
		defined: make(map[string]bool),
	}
}

func (ctx *Context) GenerateIR(root *ast.Node) (*ir.Program, error) {
	for _, name := range ctx.syms.Structs.Names() {
		if st, _ := ctx.syms.Structs.Layout(name); len(st.Fields) > 0 {
			ctx.prog.TypeDefs = append(ctx.prog.TypeDefs, st)
		}
	}
	for _, n := range root.Children {
		if fn := unwrap(n); fn != nil && fn.Type == ast.Function {
			ctx.defined[fn.Value] = true
		}
	}
	for _, n := range root.Children {
		if err := ctx.codegenTopLevel(n); err != nil {
			return nil, err
		}
	}
	return ctx.prog, nil
}

func unwrap(n *ast.Node) *ast.Node {
	for n != nil && n.Type == ast.Modifier {
		n = n.Child(0)
	}
	return n
}

func (ctx *Context) codegenTopLevel(n *ast.Node) error {
	switch n.Type {
	case ast.Modifier:
		return ctx.codegenTopLevel(n.Child(0))
	case ast.Native:
		return ctx.codegenNativeDecl(n.Child(0))
	case ast.Function:
		return ctx.codegenFuncDecl(n)
	case ast.VarDef:
		return ctx.codegenGlobalVarDecl(n)
	case ast.Struct:
		return nil
	}
	return util.Errorf(util.ErrUnexpectedToken, n.Tok, "unexpected %s at the top level", n.Type)
}

func (ctx *Context) newTemp() *ir.Temporary {
	t := &ir.Temporary{Name: strconv.Itoa(ctx.tempCount)}
	ctx.tempCount++
	return t
}

// uniqueName reserves a function-local name. Registers and block labels
// share one namespace.
func (ctx *Context) uniqueName(base string) string {
	return strings.TrimPrefix(ctx.syms.Vars.UniqueLocal(base), "%")
}

// newLabel returns <base><depth>, suffixed with .k if the function already
// uses that name for a block or a register.
func (ctx *Context) newLabel(base string, depth int) *ir.Label {
	return &ir.Label{Name: ctx.uniqueName(fmt.Sprintf("%s%d", base, depth))}
}

// startBlock opens a new block, closing the current one with a jump to it
// if it is still open. Cached loads do not survive a block boundary.
func (ctx *Context) startBlock(label *ir.Label) {
	if ctx.currentBlock != nil && !ctx.currentBlock.Terminated() {
		ctx.addInstr(&ir.Instruction{Op: ir.OpBr, Args: []ir.Value{label}})
	}
	block := &ir.BasicBlock{Label: label}
	ctx.currentFunc.Blocks = append(ctx.currentFunc.Blocks, block)
	ctx.currentBlock = block
	ctx.syms.Vars.InvalidateLoads()
}

func (ctx *Context) addInstr(instr *ir.Instruction) {
	if ctx.currentBlock.Terminated() {
		ctx.startBlock(ctx.newLabel("dead", 0))
	}
	ctx.currentBlock.Instructions = append(ctx.currentBlock.Instructions, instr)
}

func (ctx *Context) terminated() bool { return ctx.currentBlock.Terminated() }

// alloca places a stack slot in the entry block, ahead of any other code.
func (ctx *Context) alloca(name string, t types.Type) *ir.Temporary {
	res := &ir.Temporary{Name: name}
	instr := &ir.Instruction{Op: ir.OpAlloca, Typ: t, Result: res}
	ins := append(ctx.entry.Instructions, nil)
	copy(ins[ctx.allocaEnd+1:], ins[ctx.allocaEnd:])
	ins[ctx.allocaEnd] = instr
	ctx.entry.Instructions = ins
	ctx.allocaEnd++
	return res
}

func (ctx *Context) load(addr ir.Value, typ symbols.Type) operand {
	res := ctx.newTemp()
	ctx.addInstr(&ir.Instruction{Op: ir.OpLoad, Typ: typ.LLVM(), Result: res, Args: []ir.Value{addr}})
	return operand{val: res, typ: typ}
}

func (ctx *Context) store(val, addr ir.Value, typ symbols.Type) {
	ctx.addInstr(&ir.Instruction{Op: ir.OpStore, Typ: typ.LLVM(), Args: []ir.Value{val, addr}})
	ctx.syms.Vars.InvalidateLoads()
}

func (ctx *Context) br(label *ir.Label) {
	ctx.addInstr(&ir.Instruction{Op: ir.OpBr, Args: []ir.Value{label}})
}

func (ctx *Context) condBr(cond ir.Value, t, f *ir.Label) {
	ctx.addInstr(&ir.Instruction{Op: ir.OpCondBr, Args: []ir.Value{cond, t, f}})
}

// addString interns a string constant in the module.
func (ctx *Context) addString(value string) *ir.StringConst {
	if sc, ok := ctx.strings[value]; ok {
		return sc
	}
	sc := &ir.StringConst{Name: fmt.Sprintf(".str_%d", len(ctx.prog.Strings)), Value: value}
	ctx.prog.Strings = append(ctx.prog.Strings, sc)
	ctx.strings[value] = sc
	return sc
}

func varAddr(v *symbols.Variable) ir.Value {
	if strings.HasPrefix(v.IRName, "@") {
		return &ir.Global{Name: v.IRName[1:]}
	}
	return &ir.Temporary{Name: strings.TrimPrefix(v.IRName, "%")}
}

func (ctx *Context) enterScope() { ctx.syms.Scope.IncreaseDepth() }

func (ctx *Context) exitScope() {
	ctx.syms.Vars.ExitDepth(ctx.syms.Scope.Depth())
	ctx.syms.Scope.DecreaseDepth()
}

func (ctx *Context) declareLocal(v *symbols.Variable) {
	v.Depth = ctx.syms.Scope.Depth()
	ctx.syms.Vars.Declare(v)
	ctx.syms.Scope.Declare(v.Name)
}

func (ctx *Context) codegenNativeDecl(node *ast.Node) error {
	if ctx.defined[node.Value] || ctx.prog.FindFunc(node.Value) != nil {
		return nil
	}
	sig, ok := ctx.syms.Funcs.Lookup(node.Value)
	if !ok {
		return util.Errorf(util.ErrUndeclaredIdentifier, node.Tok, "no signature recorded for '%s'", node.Value)
	}
	fn := &ir.Func{Name: sig.Name, Ret: sig.Return.LLVM(), Variadic: sig.Variadic, Declare: true}
	for i, p := range sig.Params[:sig.FixedArity()] {
		param := &ir.Param{Typ: p.LLVM()}
		if i < len(sig.ParamNames) {
			param.Name = sig.ParamNames[i]
		}
		fn.Params = append(fn.Params, param)
	}
	ctx.prog.Funcs = append(ctx.prog.Funcs, fn)
	return nil
}

// paramsNeedingStorage finds parameters that are assigned to or whose
// address is taken; those are spilled to a stack slot in the prologue.
func paramsNeedingStorage(body []*ast.Node) map[string]bool {
	spill := make(map[string]bool)
	for _, stmt := range body {
		ast.Walk(stmt, func(n *ast.Node) bool {
			switch {
			case n.Type == ast.Assign && n.Child(0).Type == ast.Variable:
				spill[n.Child(0).Value] = true
			case n.Type == ast.AddrOf && n.Child(0).Type == ast.Variable:
				spill[n.Child(0).Value] = true
			}
			return true
		})
	}
	return spill
}

func (ctx *Context) codegenFuncDecl(node *ast.Node) error {
	sig, ok := ctx.syms.Funcs.Lookup(node.Value)
	if !ok {
		return util.Errorf(util.ErrUndeclaredIdentifier, node.Tok, "no signature recorded for '%s'", node.Value)
	}
	_, _, body := node.Parts()

	fn := &ir.Func{Name: sig.Name, Ret: sig.Return.LLVM(), Variadic: sig.Variadic}
	for i, name := range sig.ParamNames {
		fn.Params = append(fn.Params, &ir.Param{Name: name, Typ: sig.Params[i].LLVM()})
	}
	ctx.prog.Funcs = append(ctx.prog.Funcs, fn)

	// Parameters keep their source names, so they are reserved before the
	// entry label.
	for _, name := range sig.ParamNames {
		ctx.syms.Vars.UniqueLocal(name)
	}
	ctx.currentFunc, ctx.currentSig, ctx.currentBlock = fn, sig, nil
	ctx.startBlock(&ir.Label{Name: ctx.uniqueName("entry")})
	ctx.entry, ctx.allocaEnd = ctx.currentBlock, 0
	defer ctx.endFunction()

	ctx.enterScope()
	spill := paramsNeedingStorage(body)
	for i, name := range sig.ParamNames {
		typ := sig.Params[i]
		v := &symbols.Variable{Name: name, Type: typ, IRName: "%" + name, IsParam: true}
		if spill[name] || typ.Kind == symbols.Struct {
			slot := ctx.alloca(ctx.uniqueName(name+".addr"), typ.LLVM())
			ctx.store(&ir.Temporary{Name: name}, slot, typ)
			v.IRName, v.Allocated = slot.String(), true
		}
		ctx.declareLocal(v)
	}

	if _, err := ctx.codegenBody(body); err != nil {
		return err
	}
	if !ctx.terminated() {
		if sig.Return.Kind == symbols.Void {
			ctx.addInstr(&ir.Instruction{Op: ir.OpRet, Typ: types.Void})
		} else {
			ctx.addInstr(&ir.Instruction{Op: ir.OpRet, Typ: sig.Return.LLVM(), Args: []ir.Value{zero(sig.Return)}})
		}
	}
	ctx.exitScope()
	return nil
}

// endFunction clears every per-function table so the next function starts
// from register 0 with no locals in scope.
func (ctx *Context) endFunction() {
	ctx.syms.Vars.ResetFunction()
	ctx.syms.Scope.RemoveHigherDepth(0)
	ctx.tempCount, ctx.named = 0, 0
	ctx.ifDepth, ctx.loopDepth = 0, 0
	ctx.currentFunc, ctx.currentSig, ctx.currentBlock, ctx.entry = nil, nil, nil, nil
}

// codegenBody lowers a statement list and reports whether control can fall
// off its end. Statements after a terminator are dropped with a warning.
func (ctx *Context) codegenBody(stmts []*ast.Node) (bool, error) {
	for _, stmt := range stmts {
		if ctx.terminated() {
			ctx.diag.Warn(config.WarnUnreachableCode, stmt.Tok, "Unreachable code")
			return true, nil
		}
		if err := ctx.codegenStmt(stmt); err != nil {
			return false, err
		}
	}
	return ctx.terminated(), nil
}

func (ctx *Context) codegenScopedBody(stmts []*ast.Node) (bool, error) {
	ctx.enterScope()
	defer ctx.exitScope()
	return ctx.codegenBody(stmts)
}

func (ctx *Context) codegenStmt(node *ast.Node) error {
	switch node.Type {
	case ast.Modifier:
		return ctx.codegenStmt(node.Child(0))
	case ast.VarDef:
		return ctx.codegenLocalVarDecl(node)
	case ast.Assign:
		return ctx.codegenAssign(node)
	case ast.If:
		return ctx.codegenIf(node)
	case ast.ForLoop:
		return ctx.codegenFor(node)
	case ast.WhileLoop:
		return ctx.codegenWhile(node)
	case ast.Return:
		return ctx.codegenReturn(node)
	case ast.Call:
		_, err := ctx.codegenFuncCall(node)
		return err
	}
	return util.Errorf(util.ErrUnexpectedToken, node.Tok, "unexpected %s in a function body", node.Type)
}

// varDefType resolves the declared type and initializer of a VARDEF.
func (ctx *Context) varDefType(node *ast.Node) (symbols.Type, *ast.Node, bool, error) {
	if arr := node.Find(ast.Array); arr != nil {
		size, err := strconv.Atoi(arr.Child(0).Value)
		if err != nil || size <= 0 {
			return symbols.Type{}, nil, false, util.Errorf(util.ErrInvalidNumber, arr.Tok, "array '%s' needs a positive size", node.Value)
		}
		elem, err := ctx.syms.ResolveType(arr.Value, arr.Tok)
		if err != nil {
			return symbols.Type{}, nil, false, err
		}
		return symbols.ArrayOf(elem, size), nil, true, nil
	}
	var init *ast.Node
	for _, c := range node.Children {
		if c.Type != ast.Cast {
			init = c
		}
	}
	if cast := node.Find(ast.Cast); cast != nil {
		typ, err := ctx.syms.ResolveType(cast.Value, cast.Tok)
		return typ, init, true, err
	}
	return symbols.Type{}, init, false, nil
}

func (ctx *Context) codegenLocalVarDecl(node *ast.Node) error {
	typ, init, declared, err := ctx.varDefType(node)
	if err != nil {
		return err
	}
	var val *operand
	if init != nil {
		op, err := ctx.codegenExpr(init)
		if err != nil {
			return err
		}
		if declared {
			op, err = ctx.convert(op, typ, init, true)
		} else {
			typ = op.typ
		}
		if err != nil {
			return err
		}
		if typ.Kind == symbols.Void {
			return util.Errorf(util.ErrTypeMismatch, node.Tok, "'%s' is initialized with a void value", node.Value)
		}
		val = &op
	}

	slot := ctx.alloca(ctx.uniqueName(node.Value), typ.LLVM())
	if val != nil {
		ctx.store(val.val, slot, typ)
	}
	ctx.declareLocal(&symbols.Variable{Name: node.Value, Type: typ, IRName: slot.String(), Allocated: true})
	return nil
}

func (ctx *Context) codegenGlobalVarDecl(node *ast.Node) error {
	if v, ok := ctx.syms.Vars.Lookup(node.Value); ok && v.Depth == 0 {
		return util.Errorf(util.ErrRedeclaration, node.Tok, "global '%s' is already defined", node.Value)
	}
	typ, init, declared, err := ctx.varDefType(node)
	if err != nil {
		return err
	}

	var value ir.Value
	switch {
	case init == nil:
		value = zero(typ)
	case init.Type == ast.StringLit:
		value = &ir.StringAddr{Str: ctx.addString(unquote(init.Value))}
		if declared && typ.IR() != "i8*" {
			return util.Errorf(util.ErrTypeMismatch, init.Tok, "cannot initialize '%s' of type '%s' with a string", node.Value, typ)
		}
		typ = symbols.Basic(symbols.Str)
	case init.Type.IsLiteral():
		op, err := ctx.codegenLiteral(init)
		if err != nil {
			return err
		}
		if declared {
			if !typ.IsNumeric() {
				return util.Errorf(util.ErrInvalidCast, init.Tok, "cannot cast a literal to '%s'", typ)
			}
			op = convertConst(op, typ)
		}
		value, typ = op.val, op.typ
	default:
		return util.Errorf(util.ErrTypeMismatch, init.Tok, "global '%s' must be initialized with a literal", node.Value)
	}

	name := "global_" + node.Value
	ctx.prog.Globals = append(ctx.prog.Globals, &ir.Data{Name: name, Typ: typ.LLVM(), Init: value})
	ctx.syms.Vars.Declare(&symbols.Variable{Name: node.Value, Type: typ, IRName: "@" + name, Allocated: true})
	ctx.syms.Scope.Set(node.Value, 0)
	return nil
}

func (ctx *Context) codegenAssign(node *ast.Node) error {
	addr, typ, err := ctx.codegenLvalue(node.Child(0))
	if err != nil {
		return err
	}
	val, err := ctx.codegenExpr(node.Child(1))
	if err != nil {
		return err
	}
	if val, err = ctx.convert(val, typ, node.Child(1), false); err != nil {
		return err
	}
	ctx.store(val.val, addr, typ)
	return nil
}

func (ctx *Context) codegenReturn(node *ast.Node) error {
	ret := ctx.currentSig.Return
	if len(node.Children) == 0 {
		if ret.Kind != symbols.Void {
			return util.Errorf(util.ErrTypeMismatch, node.Tok, "function '%s' must return a '%s' value", ctx.currentSig.Name, ret)
		}
		ctx.addInstr(&ir.Instruction{Op: ir.OpRet, Typ: types.Void})
		return nil
	}
	if ret.Kind == symbols.Void {
		return util.Errorf(util.ErrTypeMismatch, node.Tok, "void function '%s' cannot return a value", ctx.currentSig.Name)
	}
	val, err := ctx.codegenExpr(node.Child(0))
	if err != nil {
		return err
	}
	if val, err = ctx.convert(val, ret, node.Child(0), false); err != nil {
		return err
	}
	ctx.addInstr(&ir.Instruction{Op: ir.OpRet, Typ: ret.LLVM(), Args: []ir.Value{val.val}})
	return nil
}

// codegenCondBranch branches on cond. A literal condition becomes a direct
// jump with no comparison.
func (ctx *Context) codegenCondBranch(cond *ast.Node, trueL, falseL *ir.Label) error {
	if ctx.cfg.IsFeatureEnabled(config.FeatLiteralBranch) && cond.Type.IsLiteral() {
		if literalTruth(cond) {
			ctx.br(trueL)
		} else {
			ctx.br(falseL)
		}
		return nil
	}
	op, err := ctx.codegenExpr(cond)
	if err != nil {
		return err
	}
	c, err := ctx.toBool(op, cond)
	if err != nil {
		return err
	}
	ctx.condBr(c, trueL, falseL)
	return nil
}

func (ctx *Context) codegenIf(node *ast.Node) error {
	d := ctx.ifDepth
	ctx.ifDepth++
	defer func() { ctx.ifDepth-- }()

	cond := node.Find(ast.Condition).Child(0)
	body := node.Find(ast.FuncBody)
	elseNode := node.Find(ast.Else)

	trueL, falseL := ctx.newLabel("iftrue", d), ctx.newLabel("iffalse", d)
	endL := falseL
	if elseNode != nil {
		endL = ctx.newLabel("ifend", d)
	}

	if err := ctx.codegenCondBranch(cond, trueL, falseL); err != nil {
		return err
	}

	ctx.startBlock(trueL)
	thenTerminates, err := ctx.codegenScopedBody(body.Children)
	if err != nil {
		return err
	}
	if !thenTerminates {
		ctx.br(endL)
	}

	if elseNode != nil {
		ctx.startBlock(falseL)
		elseTerminates, err := ctx.codegenScopedBody(elseNode.Children)
		if err != nil {
			return err
		}
		if !elseTerminates {
			ctx.br(endL)
		}
		if thenTerminates && elseTerminates {
			return nil
		}
	}
	ctx.startBlock(endL)
	return nil
}

func (ctx *Context) codegenFor(node *ast.Node) error {
	d := ctx.loopDepth
	ctx.loopDepth++
	defer func() { ctx.loopDepth-- }()

	ctx.enterScope()
	defer ctx.exitScope()

	def := node.Find(ast.LoopDef).Child(0)
	if err := ctx.codegenLocalVarDecl(def); err != nil {
		return err
	}

	condL, bodyL, exitL := ctx.newLabel("loop_condition", d), ctx.newLabel("loop_body", d), ctx.newLabel("loop_exit", d)
	ctx.startBlock(condL)
	if err := ctx.codegenCondBranch(node.Find(ast.LoopCond).Child(0), bodyL, exitL); err != nil {
		return err
	}

	ctx.startBlock(bodyL)
	bodyTerminates, err := ctx.codegenScopedBody(node.Find(ast.FuncBody).Children)
	if err != nil {
		return err
	}
	if !bodyTerminates {
		if err := ctx.codegenLoopIter(def, node.Find(ast.LoopIter).Child(0)); err != nil {
			return err
		}
		ctx.br(condL)
	}
	ctx.startBlock(exitL)
	return nil
}

// codegenLoopIter runs the iteration clause. A bare expression is stored
// back into the loop variable.
func (ctx *Context) codegenLoopIter(def, iter *ast.Node) error {
	if iter == nil {
		return nil
	}
	if iter.Type == ast.Assign {
		return ctx.codegenAssign(iter)
	}
	return ctx.codegenAssign(ast.New(ast.Assign, "VOID", iter.Tok, ast.New(ast.Variable, def.Value, def.Tok), iter))
}

func (ctx *Context) codegenWhile(node *ast.Node) error {
	d := ctx.loopDepth
	ctx.loopDepth++
	defer func() { ctx.loopDepth-- }()

	condL, bodyL, exitL := ctx.newLabel("while_condition", d), ctx.newLabel("while_body", d), ctx.newLabel("while_exit", d)
	ctx.startBlock(condL)
	if err := ctx.codegenCondBranch(node.Find(ast.Condition).Child(0), bodyL, exitL); err != nil {
		return err
	}

	ctx.startBlock(bodyL)
	bodyTerminates, err := ctx.codegenScopedBody(node.Find(ast.FuncBody).Children)
	if err != nil {
		return err
	}
	if !bodyTerminates {
		ctx.br(condL)
	}
	ctx.startBlock(exitL)
	return nil
}
