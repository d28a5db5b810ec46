// Package symbols holds the semantic bookkeeping shared by the parser and
// the code generator: scopes, variables, function signatures and struct
// layouts, bundled in a Context that is owned by one compilation.
package symbols

import (
	"github.com/nvylang/nvyc/pkg/token"
	"github.com/nvylang/nvyc/pkg/util"
)

type Context struct {
	Scope   *ScopeTable
	Vars    *VariableTable
	Funcs   *FunctionTable
	Structs *StructRegistry
}

func NewContext() *Context {
	return &Context{
		Scope:   NewScopeTable(),
		Vars:    NewVariableTable(),
		Funcs:   NewFunctionTable(),
		Structs: NewStructRegistry(),
	}
}

// ResolveType turns a type spelling ("int32", "fp64*", "P", "int32[4]")
// into a Type. Unknown names are an ExpectedType error at tok.
func (c *Context) ResolveType(spelling string, tok token.Token) (Type, error) {
	base, stars, size, isArray := splitSpelling(spelling)

	var t Type
	if k, ok := builtinTypes[base]; ok {
		t = Basic(k)
	} else if _, ok := c.Structs.Lookup(base); ok {
		t = StructNamed(base)
	} else {
		return Type{}, util.Errorf(util.ErrExpectedType, tok, "unknown type '%s'", base)
	}

	if isArray {
		if size < 0 {
			// An unsized array decays to a pointer to its element.
			t = PointerTo(t)
		} else {
			t = ArrayOf(t, size)
		}
	}
	for i := 0; i < stars; i++ {
		t = PointerTo(t)
	}
	return t, nil
}
