package ast

import "strings"

const dumpIndent = "    -- "

func (n *Node) label() string {
	return "TNODE(" + n.Type.String() + ", " + n.Value + ")"
}

// Dump renders the tree one node per line, children indented below their
// parent.
func Dump(n *Node) string {
	var sb strings.Builder
	dump(&sb, n, "")
	return sb.String()
}

func dump(sb *strings.Builder, n *Node, prefix string) {
	if n == nil {
		return
	}
	sb.WriteString(prefix)
	sb.WriteString(n.label())
	sb.WriteByte('\n')
	for _, c := range n.Children {
		dump(sb, c, prefix+dumpIndent)
	}
}

// Flatten lists the nodes in pre-order.
func Flatten(n *Node) []string {
	var out []string
	var walk func(*Node)
	walk = func(cur *Node) {
		if cur == nil {
			return
		}
		out = append(out, cur.label())
		for _, c := range cur.Children {
			walk(c)
		}
	}
	walk(n)
	return out
}

// Sexpr renders a subtree compactly: literals and names print their value,
// operators print as KIND(child, ...) and other nodes as KIND[value](...).
func Sexpr(n *Node) string {
	if n == nil {
		return "<nil>"
	}
	if len(n.Children) == 0 {
		if n.Type.IsLiteral() || n.Type == Variable || n.Type == Member {
			return n.Value
		}
		return n.Type.String() + "[" + n.Value + "]"
	}
	parts := make([]string, len(n.Children))
	for i, c := range n.Children {
		parts[i] = Sexpr(c)
	}
	head := n.Type.String()
	if !n.Type.IsBinary() && !n.Type.IsUnary() {
		head += "[" + n.Value + "]"
	}
	return head + "(" + strings.Join(parts, ", ") + ")"
}

// Rewrite returns a new tree built bottom-up: every node is copied, its
// children rewritten, and fn applied to the copy. The input tree is not
// modified.
func Rewrite(n *Node, fn func(*Node) *Node) *Node {
	if n == nil {
		return nil
	}
	cp := &Node{Type: n.Type, Value: n.Value, Tok: n.Tok}
	if len(n.Children) > 0 {
		cp.Children = make([]*Node, 0, len(n.Children))
		for _, c := range n.Children {
			if rc := Rewrite(c, fn); rc != nil {
				cp.Children = append(cp.Children, rc)
			}
		}
	}
	return fn(cp)
}

// Walk visits every node in pre-order until fn returns false.
func Walk(n *Node, fn func(*Node) bool) {
	if n == nil || !fn(n) {
		return
	}
	for _, c := range n.Children {
		Walk(c, fn)
	}
}
