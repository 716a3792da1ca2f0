package models

import "fmt"

// Reference identifies a stored model (a track or a sub-fingerprint)
// independently of the id type the backing store uses.
//
// Implementations must be comparable: references are used as map keys and
// compared with ==.
type Reference interface {
	ID() any
	IsNull() bool
	String() string
}

// ModelReference is the generic Reference implementation. Two references are
// equal when they wrap the same id type and the same id value.
type ModelReference[T comparable] struct {
	id T
}

// NewReference wraps id.
func NewReference[T comparable](id T) ModelReference[T] {
	return ModelReference[T]{id: id}
}

// NullReference returns the reference holding the zero value of T, which
// stands for "no model".
func NullReference[T comparable]() ModelReference[T] {
	return ModelReference[T]{}
}

func (r ModelReference[T]) ID() any {
	return r.id
}

// Value returns the wrapped id with its concrete type.
func (r ModelReference[T]) Value() T {
	return r.id
}

func (r ModelReference[T]) IsNull() bool {
	var zero T
	return r.id == zero
}

func (r ModelReference[T]) String() string {
	if r.IsNull() {
		return "null"
	}
	return fmt.Sprint(r.id)
}

// IsNullReference reports whether ref is missing or wraps a zero id.
func IsNullReference(ref Reference) bool {
	return ref == nil || ref.IsNull()
}
