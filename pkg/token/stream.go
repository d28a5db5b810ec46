package token

import "strings"

// Stream is a read-only view over an owned token array. Views share the
// backing array but never write to it, so cutting a view cannot disturb a
// cursor that is still walking another view of the same tokens.
type Stream struct {
	toks       []Token
	start, end int
}

// NewStream takes ownership of a private copy of toks.
func NewStream(toks []Token) Stream {
	owned := make([]Token, len(toks))
	copy(owned, toks)
	return Stream{toks: owned, start: 0, end: len(owned)}
}

func (s Stream) Len() int { return s.end - s.start }

// At returns the i-th token of the view. Out of range positions yield an
// EOS token so lookahead past the end never panics.
func (s Stream) At(i int) Token {
	if i < 0 || s.start+i >= s.end {
		return Token{Type: EOS}
	}
	return s.toks[s.start+i]
}

// Slice returns the sub-view [from, to) relative to s.
func (s Stream) Slice(from, to int) Stream {
	if from < 0 {
		from = 0
	}
	if to > s.Len() {
		to = s.Len()
	}
	if to < from {
		to = from
	}
	return Stream{toks: s.toks, start: s.start + from, end: s.start + to}
}

// CutHead drops the first n tokens of the view.
func (s Stream) CutHead(n int) Stream { return s.Slice(n, s.Len()) }

// CutTail keeps only the first n tokens of the view.
func (s Stream) CutTail(n int) Stream { return s.Slice(0, n) }

// Copy detaches the view into its own backing array.
func (s Stream) Copy() Stream { return NewStream(s.Tokens()) }

// Tokens returns a fresh slice holding the tokens of the view.
func (s Stream) Tokens() []Token {
	out := make([]Token, s.Len())
	copy(out, s.toks[s.start:s.end])
	return out
}

// Index returns the position of the first token of type t at or after from,
// or -1.
func (s Stream) Index(t Type, from int) int {
	for i := from; i < s.Len(); i++ {
		if s.At(i).Type == t {
			return i
		}
	}
	return -1
}

// Matching returns the position of the delimiter closing the one at open,
// or -1 when it is unbalanced.
func (s Stream) Matching(open int) int {
	opener := s.At(open).Type
	var closer Type
	switch opener {
	case LParen:
		closer = RParen
	case LBrace:
		closer = RBrace
	case LBracket:
		closer = RBracket
	default:
		return -1
	}
	depth := 0
	for i := open; i < s.Len(); i++ {
		switch s.At(i).Type {
		case opener:
			depth++
		case closer:
			depth--
			if depth == 0 {
				return i
			}
		}
	}
	return -1
}

// Equal compares two views element-wise on kind and value.
func (s Stream) Equal(o Stream) bool {
	if s.Len() != o.Len() {
		return false
	}
	for i := 0; i < s.Len(); i++ {
		if !s.At(i).Same(o.At(i)) {
			return false
		}
	}
	return true
}

// Text reconstructs an approximation of the source the view was lexed from.
func (s Stream) Text() string {
	var sb strings.Builder
	for i := 0; i < s.Len(); i++ {
		t := s.At(i)
		if t.Type == Program || t.Type == EOS {
			continue
		}
		if sb.Len() > 0 {
			sb.WriteByte(' ')
		}
		sb.WriteString(t.Spelling())
	}
	return sb.String()
}

// Spelling returns the source form of the token.
func (t Token) Spelling() string {
	switch t.Type {
	case ArrayAccess:
		return t.Value + "[" + t.Aux + "]"
	case ArrayType:
		return t.Value + "[]"
	case ArraySize:
		return "[" + t.Value + "]"
	case Int64Lit:
		return t.Value + "L"
	}
	if t.Value != "" {
		return t.Value
	}
	return t.Type.String()
}

func (s Stream) String() string {
	parts := make([]string, 0, s.Len())
	for i := 0; i < s.Len(); i++ {
		parts = append(parts, s.At(i).String())
	}
	return strings.Join(parts, " ")
}
