// Package future provides a minimal async-result wrapper.
//
// Every store operation returns a *Value so call sites look the same
// whether the backend resolves synchronously (filesystem, memory) or on a
// goroutine (network). A panic inside the wrapped function becomes a
// rejected Value instead of crossing the API boundary.
package future

import (
	"context"
	"fmt"
)

// Unit is the result type of operations that produce no value.
type Unit struct{}

// Value holds the eventual result of one store operation.
type Value[T any] struct {
	done chan struct{}
	val  T
	err  error
}

// Resolve returns an already-resolved Value.
func Resolve[T any](v T) *Value[T] {
	f := newValue[T]()
	f.val = v
	close(f.done)
	return f
}

// Reject returns an already-rejected Value.
func Reject[T any](err error) *Value[T] {
	f := newValue[T]()
	f.err = err
	close(f.done)
	return f
}

// Do runs fn at invocation time and returns the settled Value.
// A panic in fn is captured as a rejection.
func Do[T any](fn func() (T, error)) *Value[T] {
	f := newValue[T]()
	f.settle(fn)
	return f
}

// DoVoid is Do for operations without a result.
func DoVoid(fn func() error) *Value[Unit] {
	return Do(func() (Unit, error) { return Unit{}, fn() })
}

// Go runs fn on a new goroutine. Used by backends whose work genuinely
// blocks on the network; call sites are identical to Do.
func Go[T any](fn func() (T, error)) *Value[T] {
	f := newValue[T]()
	go f.settle(fn)
	return f
}

// GoVoid is Go for operations without a result.
func GoVoid(fn func() error) *Value[Unit] {
	return Go(func() (Unit, error) { return Unit{}, fn() })
}

func newValue[T any]() *Value[T] {
	return &Value[T]{done: make(chan struct{})}
}

func (f *Value[T]) settle(fn func() (T, error)) {
	defer func() {
		if r := recover(); r != nil {
			f.err = fmt.Errorf("operation panicked: %v", r)
		}
		close(f.done)
	}()
	f.val, f.err = fn()
}

// Await blocks until the Value settles or ctx is done.
func (f *Value[T]) Await(ctx context.Context) (T, error) {
	select {
	case <-f.done:
		return f.val, f.err
	case <-ctx.Done():
		var zero T
		return zero, ctx.Err()
	}
}

// Done is closed once the Value has settled.
func (f *Value[T]) Done() <-chan struct{} {
	return f.done
}

// Err returns the rejection error, if any. It must only be called after
// Done is closed.
func (f *Value[T]) Err() error {
	return f.err
}
