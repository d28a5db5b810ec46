// Package validate runs the declaration checks that must pass before code
// generation: unique function definitions and well-formed calls.
package validate

import (
	"github.com/nvylang/nvyc/pkg/ast"
	"github.com/nvylang/nvyc/pkg/config"
	"github.com/nvylang/nvyc/pkg/symbols"
	"github.com/nvylang/nvyc/pkg/token"
	"github.com/nvylang/nvyc/pkg/util"
)

type Validator struct {
	ctx     *symbols.Context
	diag    *util.Collector
	defined map[string]token.Token
	first   error
}

func NewValidator(ctx *symbols.Context, diag *util.Collector) *Validator {
	return &Validator{ctx: ctx, diag: diag, defined: make(map[string]token.Token)}
}

// Check validates root. Every problem is recorded in the collector; the
// first one is returned.
func (v *Validator) Check(root *ast.Node) error {
	for _, n := range root.Children {
		v.collectFunction(n)
	}
	for _, n := range root.Children {
		v.checkCalls(n)
	}
	for _, n := range root.Children {
		if fn := unwrap(n); fn != nil && fn.Type == ast.Function {
			v.checkFallthrough(fn)
		}
	}
	return v.first
}

func (v *Validator) report(err error) {
	if v.first == nil {
		v.first = err
	}
	v.diag.Add(err)
}

// unwrap strips MODIFIER wrappers from a top-level declaration.
func unwrap(n *ast.Node) *ast.Node {
	for n != nil && n.Type == ast.Modifier {
		n = n.Child(0)
	}
	return n
}

func (v *Validator) collectFunction(n *ast.Node) {
	n = unwrap(n)
	if n == nil || n.Type != ast.Function {
		return
	}
	if prev, ok := v.defined[n.Value]; ok {
		v.report(util.Errorf(util.ErrRedeclaration, n.Tok, "function '%s' is already defined at line %d", n.Value, prev.Line))
		return
	}
	v.defined[n.Value] = n.Tok
}

func (v *Validator) checkCalls(n *ast.Node) {
	ast.Walk(n, func(c *ast.Node) bool {
		if c.Type != ast.Call || c.Value == "sizeof" {
			return true
		}
		fn, ok := v.ctx.Funcs.Lookup(c.Value)
		if !ok {
			v.report(util.Errorf(util.ErrUndeclaredIdentifier, c.Tok, "call to undeclared function '%s'", c.Value))
			return true
		}
		got, want := len(c.Children), fn.FixedArity()
		switch {
		case fn.Variadic && got < want:
			v.report(util.Errorf(util.ErrWrongNumberOfArguments, c.Tok, "function '%s' expects at least %d arguments, got %d", c.Value, want, got))
		case !fn.Variadic && got != want:
			v.report(util.Errorf(util.ErrWrongNumberOfArguments, c.Tok, "function '%s' expects %d arguments, got %d", c.Value, want, got))
		}
		return true
	})
}

// checkFallthrough warns when a function with a result can reach the end of
// its body. Code generation closes such a body with a zero return.
func (v *Validator) checkFallthrough(fn *ast.Node) {
	ret := fn.Find(ast.FuncReturn).Child(0)
	if ret == nil || ret.Value == "void" {
		return
	}
	body := fn.Find(ast.FuncBody)
	if body == nil || len(body.Children) > 0 && body.Children[len(body.Children)-1].Type == ast.Return {
		return
	}
	v.diag.Warn(config.WarnExtra, fn.Tok, "function '%s' may end without returning a value", fn.Value)
}
