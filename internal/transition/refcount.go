package transition

import (
	"errors"
	"fmt"
)

// ErrRefCountUnderflow is the panic value (wrapped) raised when a release has
// no matching acquire. It always indicates a caller bug.
var ErrRefCountUnderflow = errors.New("reference count underflow")

// RefCount is a non-negative acquire/release counter. The first Acquire and
// the last Release are reported so owners can run freeze/thaw hooks exactly
// once per nesting.
type RefCount struct {
	Name string
	n    int
}

// Acquire increments the count and reports whether this was the first
// reference.
func (r *RefCount) Acquire() bool {
	r.n++
	return r.n == 1
}

// Release decrements the count and reports whether the last reference was
// dropped. Releasing an unheld counter panics with ErrRefCountUnderflow.
func (r *RefCount) Release() bool {
	if r.n == 0 {
		name := r.Name
		if name == "" {
			name = "refcount"
		}
		panic(fmt.Errorf("%s: %w", name, ErrRefCountUnderflow))
	}
	r.n--
	return r.n == 0
}

// Held reports whether at least one reference is outstanding.
func (r *RefCount) Held() bool { return r.n > 0 }

// Count returns the number of outstanding references.
func (r *RefCount) Count() int { return r.n }

// Hold runs fn between acquire and release, releasing even if fn panics.
func Hold(acquire, release func(), fn func()) {
	acquire()
	defer release()
	fn()
}
