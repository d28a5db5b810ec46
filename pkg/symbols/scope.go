package symbols

// ScopeTable maps every visible name to the depth it was declared at.
// Depth 0 is global. Redeclaring a name pushes the previous depth on a
// per-name shadow stack so leaving the inner block re-exposes it.
type ScopeTable struct {
	depth   map[string]int
	shadow  map[string][]int
	current int
}

func NewScopeTable() *ScopeTable {
	return &ScopeTable{depth: make(map[string]int), shadow: make(map[string][]int)}
}

func (s *ScopeTable) Depth() int { return s.current }

func (s *ScopeTable) IncreaseDepth() { s.current++ }

// Set declares name at depth.
func (s *ScopeTable) Set(name string, depth int) {
	if old, ok := s.depth[name]; ok {
		s.shadow[name] = append(s.shadow[name], old)
	}
	s.depth[name] = depth
}

// Declare declares name at the current depth.
func (s *ScopeTable) Declare(name string) { s.Set(name, s.current) }

// DecreaseDepth leaves the current block. Entries declared at the departing
// depth fall back to their shadowed declaration, or disappear.
func (s *ScopeTable) DecreaseDepth() {
	departing := s.current
	for name, d := range s.depth {
		if d != departing {
			continue
		}
		s.restore(name, departing)
	}
	if s.current > 0 {
		s.current--
	}
}

func (s *ScopeTable) restore(name string, departing int) {
	stack := s.shadow[name]
	for len(stack) > 0 && stack[len(stack)-1] >= departing {
		stack = stack[:len(stack)-1]
	}
	if len(stack) == 0 {
		delete(s.depth, name)
		delete(s.shadow, name)
		return
	}
	s.depth[name] = stack[len(stack)-1]
	s.shadow[name] = stack[:len(stack)-1]
}

// RemoveHigherDepth drops every declaration deeper than depth and resets
// the current depth to it. Used at function exit.
func (s *ScopeTable) RemoveHigherDepth(depth int) {
	for name, d := range s.depth {
		if d > depth {
			s.restore(name, depth+1)
		}
	}
	s.current = depth
}

func (s *ScopeTable) Lookup(name string) (int, bool) {
	d, ok := s.depth[name]
	return d, ok
}

func (s *ScopeTable) IsGlobal(name string) bool {
	d, ok := s.depth[name]
	return ok && d == 0
}

func (s *ScopeTable) IsLocal(name string) bool {
	d, ok := s.depth[name]
	return ok && d >= 1
}
