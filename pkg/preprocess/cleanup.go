package preprocess

import (
	"sort"

	"github.com/nvylang/nvyc/pkg/ast"
	"github.com/nvylang/nvyc/pkg/config"
	"github.com/nvylang/nvyc/pkg/token"
	"github.com/nvylang/nvyc/pkg/util"
)

// Table maps source spellings of imported functions to their mangled names.
type Table struct {
	names   map[string]string
	origin  map[string]string
	modules map[string]string
	imports map[string]token.Token
}

func NewTable() *Table {
	return &Table{
		names:   make(map[string]string),
		origin:  make(map[string]string),
		modules: make(map[string]string),
		imports: make(map[string]token.Token),
	}
}

func (t *Table) addModule(module string, tok token.Token) {
	if _, ok := t.imports[module]; !ok {
		t.imports[module] = tok
	}
}

// Lookup returns the mangled name for name, module_name or module.name.
func (t *Table) Lookup(name string) (string, bool) {
	m, ok := t.names[name]
	return m, ok
}

func (t *Table) Len() int { return len(t.names) }

// Cleanup returns a copy of tree with every call to an imported function
// renamed to its mangled name. Functions the unit defines itself shadow
// imported ones of the same name.
func Cleanup(tree *ast.Node, table *Table, diag *util.Collector) *ast.Node {
	if table == nil || len(table.names) == 0 {
		return tree
	}
	local := make(map[string]bool)
	ast.Walk(tree, func(n *ast.Node) bool {
		if n.Type == ast.Function {
			local[n.Value] = true
		}
		return true
	})

	used := make(map[string]bool)
	out := ast.Rewrite(tree, func(n *ast.Node) *ast.Node {
		if n.Type != ast.Call || local[n.Value] {
			return n
		}
		if mangled, ok := table.names[n.Value]; ok {
			n.Value = mangled
		}
		if module, ok := table.modules[n.Value]; ok {
			used[module] = true
		}
		return n
	})

	if diag != nil {
		modules := make([]string, 0, len(table.imports))
		for m := range table.imports {
			modules = append(modules, m)
		}
		sort.Strings(modules)
		for _, m := range modules {
			if !used[m] {
				diag.Warn(config.WarnUnusedImport, table.imports[m], "module '%s' is imported but none of its functions is called", m)
			}
		}
	}
	return out
}
