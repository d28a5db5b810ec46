package symbols

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/nvylang/nvyc/pkg/token"
	"github.com/nvylang/nvyc/pkg/util"
)

func TestScopeShadowing(t *testing.T) {
	s := NewScopeTable()
	s.Declare("x") // global
	s.IncreaseDepth()
	s.Declare("y")
	s.IncreaseDepth()
	s.Declare("x") // shadows the global
	if d, _ := s.Lookup("x"); d != 2 {
		t.Fatalf("inner x depth = %d, want 2", d)
	}
	s.DecreaseDepth()
	if !s.IsGlobal("x") {
		t.Errorf("leaving the block did not restore the global x")
	}
	if !s.IsLocal("y") {
		t.Errorf("y should still be local at depth 1")
	}
	s.DecreaseDepth()
	if _, ok := s.Lookup("y"); ok {
		t.Errorf("y survived its block")
	}
	if s.Depth() != 0 {
		t.Errorf("depth = %d, want 0", s.Depth())
	}
}

func TestScopeRedeclareSameDepth(t *testing.T) {
	s := NewScopeTable()
	s.IncreaseDepth()
	s.Declare("i")
	s.Declare("i")
	s.DecreaseDepth()
	if _, ok := s.Lookup("i"); ok {
		t.Errorf("i survived after leaving its only block")
	}
}

func TestScopeRemoveHigherDepth(t *testing.T) {
	s := NewScopeTable()
	s.Declare("g")
	s.IncreaseDepth()
	s.IncreaseDepth()
	s.Declare("g")
	s.Declare("tmp")
	s.RemoveHigherDepth(0)
	if !s.IsGlobal("g") {
		t.Errorf("global g not restored")
	}
	if _, ok := s.Lookup("tmp"); ok {
		t.Errorf("tmp not removed")
	}
}

func TestPromotionLattice(t *testing.T) {
	tests := []struct {
		a, b Kind
		want Kind
	}{
		{Int32, FP32, FP32},
		{Int64, FP32, FP64},
		{FP32, Int64, FP64},
		{Int32, Int64, Int64},
		{FP32, FP64, FP64},
		{Char, Int32, Int32},
		{Bool, Bool, Bool},
	}
	for _, tt := range tests {
		if got := Common(Basic(tt.a), Basic(tt.b)).Kind; got != tt.want {
			t.Errorf("Common(%v, %v) = %v, want %v", tt.a, tt.b, got, tt.want)
		}
	}
}

func TestStructRegistry(t *testing.T) {
	r := NewStructRegistry()
	r.AddMember("P", "a", Basic(Int32))
	r.AddMember("P", "b", Basic(Int32))
	if pos, added := r.AddMember("P", "a", Basic(Int64)); added || pos != 0 {
		t.Errorf("duplicate member: (%d, %v), want (0, false)", pos, added)
	}

	pos, typ, ok := r.Member("P", "b")
	if !ok || pos != 1 || typ.Kind != Int32 {
		t.Fatalf("P.b = (%d, %v, %v), want (1, int32, true)", pos, typ, ok)
	}
	if pos, typ, _ := r.Member("P", "a"); pos != 0 || typ.Kind != Int32 {
		t.Errorf("re-adding a member changed it: (%d, %v)", pos, typ)
	}
	st, ok := r.Layout("P")
	if !ok {
		t.Fatal("no layout for P")
	}
	if got, want := st.String()+" = type "+st.LLString(), "%P = type { i32, i32 }"; got != want {
		t.Errorf("Layout = %q, want %q", got, want)
	}
	if _, ok := r.Layout("Q"); ok {
		t.Error("layout of an unknown struct")
	}
	if got := StructNamed("P").Size(r); got != 8 {
		t.Errorf("sizeof(P) = %d, want 8", got)
	}
}

func TestResolveType(t *testing.T) {
	ctx := NewContext()
	ctx.Structs.AddMember("Vec", "x", Basic(FP64))
	tests := []struct {
		spelling string
		ir       string
		depth    int
	}{
		{"int32", "i32", 0},
		{"fp32", "float", 0},
		{"bool", "i1", 0},
		{"string", "i8*", 1},
		{"int64**", "i64**", 2},
		{"void*", "i8*", 1},
		{"Vec", "%Vec", 0},
		{"Vec*", "%Vec*", 1},
		{"int32[4]", "[4 x i32]", 0},
		{"char[]", "i8*", 1},
	}
	for _, tt := range tests {
		typ, err := ctx.ResolveType(tt.spelling, token.Token{})
		if err != nil {
			t.Fatalf("ResolveType(%q): %v", tt.spelling, err)
		}
		if typ.IR() != tt.ir || typ.Depth() != tt.depth {
			t.Errorf("ResolveType(%q) = %s depth %d, want %s depth %d", tt.spelling, typ.IR(), typ.Depth(), tt.ir, tt.depth)
		}
	}
	if _, err := ctx.ResolveType("Nope", token.Token{}); util.KindOf(err) != util.ErrExpectedType {
		t.Errorf("unknown type err = %v", err)
	}
}

func TestVariableTable(t *testing.T) {
	vt := NewVariableTable()
	vt.Declare(&Variable{Name: "g", IRName: "@global_g", Depth: 0})
	names := []string{vt.UniqueLocal("x"), vt.UniqueLocal("x"), vt.UniqueLocal("y")}
	if diff := cmp.Diff([]string{"%x", "%x.1", "%y"}, names); diff != "" {
		t.Errorf("UniqueLocal mismatch (-want +got):\n%s", diff)
	}
	vt.Declare(&Variable{Name: "g", IRName: "%g", Depth: 2, Loaded: "%3"})
	if v, _ := vt.Lookup("g"); v.IRName != "%g" {
		t.Errorf("inner g not visible")
	}
	vt.InvalidateLoads()
	if v, _ := vt.Lookup("g"); v.Loaded != "" {
		t.Errorf("load cache not cleared")
	}
	vt.ExitDepth(2)
	if v, _ := vt.Lookup("g"); v.IRName != "@global_g" {
		t.Errorf("outer g not restored, got %s", v.IRName)
	}
	vt.ResetFunction()
	if got := vt.UniqueLocal("x"); got != "%x" {
		t.Errorf("names not reset: %s", got)
	}
}

func TestFunctionPrototype(t *testing.T) {
	f := &Function{
		Name:          "printf",
		Return:        Basic(Int32),
		Params:        []Type{Basic(Str), Basic(Variadic)},
		Variadic:      true,
		VariadicIndex: 1,
	}
	if f.Prototype() != "i8*, ..." || f.FixedArity() != 1 || f.ReturnType() != "i32" {
		t.Errorf("printf = (%s) arity %d ret %s", f.Prototype(), f.FixedArity(), f.ReturnType())
	}
	ft := NewFunctionTable()
	if !ft.Add(f) || ft.Add(&Function{Name: "printf"}) {
		t.Errorf("Add should accept the first declaration only")
	}
}
