package symval

// Stack is an immutable ordered sequence of symbolic values. Push/Pop
// never mutate the receiver; they return a new Stack. This matters for
// branch consistency: the execution context snapshots a Stack at every
// instruction boundary and compares snapshots structurally rather than
// tracking aliasing through mutation.
type Stack struct {
	values []Value
}

// Empty is the zero-length virtual stack.
var Empty = Stack{}

// Push returns a new stack with v on top.
func (s Stack) Push(v Value) Stack {
	out := make([]Value, len(s.values)+1)
	copy(out, s.values)
	out[len(out)-1] = v
	return Stack{values: out}
}

// Pop returns the top value and the stack without it. Panics if empty.
func (s Stack) Pop() (Value, Stack) {
	if len(s.values) == 0 {
		panic("symval: pop of empty stack")
	}
	top := s.values[len(s.values)-1]
	rest := make([]Value, len(s.values)-1)
	copy(rest, s.values[:len(s.values)-1])
	return top, Stack{values: rest}
}

// Pop2 pops two values, returning them in (second-from-top, top) order
// i.e. (lhs, rhs) for a binary operator applied left-to-right.
func (s Stack) Pop2() (lhs, rhs Value, rest Stack) {
	rhs, rest = s.Pop()
	lhs, rest = rest.Pop()
	return
}

// PopN pops n values, returned top-of-stack first (matching SBIL
// semantics where the operand stack's top corresponds to the
// last-pushed operand). Callers needing call-argument order (first
// actual parameter first) must reverse the result themselves.
func (s Stack) PopN(n int) ([]Value, Stack) {
	out := make([]Value, n)
	cur := s
	for i := 0; i < n; i++ {
		var v Value
		v, cur = cur.Pop()
		out[i] = v
	}
	return out, cur
}

// Peek returns the top value without popping it. Panics if empty.
func (s Stack) Peek() Value {
	if len(s.values) == 0 {
		panic("symval: peek of empty stack")
	}
	return s.values[len(s.values)-1]
}

// Len reports the number of values currently on the stack.
func (s Stack) Len() int { return len(s.values) }

// Equal reports whether s and other hold the same values in the same
// order. Used by the branch-consistency check (§3): the post-state of a
// jump's source must have the same virtual stack contents as the
// pre-state at its target.
func (s Stack) Equal(other Stack) bool {
	if len(s.values) != len(other.values) {
		return false
	}
	for i, v := range s.values {
		if !v.Equal(other.values[i]) {
			return false
		}
	}
	return true
}

// Values returns the stack's contents, bottom first. The returned slice
// is owned by the caller; mutating it does not affect s.
func (s Stack) Values() []Value {
	out := make([]Value, len(s.values))
	copy(out, s.values)
	return out
}
