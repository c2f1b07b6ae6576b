package domain

import "context"

// Reference holds either an already resolved entity or the key to look it up by.
type Reference[T any] struct {
	value *T
	key   string
}

// Resolved wraps an entity that needs no lookup.
func Resolved[T any](v *T) Reference[T] {
	return Reference[T]{value: v}
}

// ByKey wraps a name or slug to be resolved against the catalog.
func ByKey[T any](key string) Reference[T] {
	return Reference[T]{key: key}
}

// IsZero reports whether the reference carries neither an entity nor a key.
func (r Reference[T]) IsZero() bool {
	return r.value == nil && r.key == ""
}

// Key returns the lookup key, empty for resolved references.
func (r Reference[T]) Key() string {
	return r.key
}

// Resolve returns the held entity or looks it up with find.
func (r Reference[T]) Resolve(ctx context.Context, find func(context.Context, string) (*T, error)) (*T, error) {
	if r.value != nil {
		return r.value, nil
	}
	return find(ctx, r.key)
}
