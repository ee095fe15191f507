package domain

// Lazy is a cell holding either an unevaluated thunk or a cached result. The
// thunk runs at most once, on the first Force; a cell that is never forced
// performs no work. A failed evaluation is cached like a value and is not
// retried.
type Lazy[T any] struct {
	fn     func() (T, error)
	value  T
	err    error
	forced bool
}

// NewLazy wraps a thunk in an unevaluated cell.
func NewLazy[T any](fn func() (T, error)) *Lazy[T] {
	return &Lazy[T]{fn: fn}
}

// Force evaluates the thunk on first call and returns the cached result
// thereafter.
func (l *Lazy[T]) Force() (T, error) {
	if !l.forced {
		l.value, l.err = l.fn()
		l.forced = true
		l.fn = nil
	}
	return l.value, l.err
}

// Forced reports whether the cell has been evaluated.
func (l *Lazy[T]) Forced() bool {
	return l.forced
}
