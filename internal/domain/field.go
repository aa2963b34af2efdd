package domain

// Field is an optional patch value. The zero Field is absent and leaves the
// target untouched when a patch is applied. Nullable columns use Field[*T]
// so that Set(nil) clears the stored value while an absent Field keeps it.
type Field[T any] struct {
	value T
	set   bool
}

// Set returns a Field holding v.
func Set[T any](v T) Field[T] {
	return Field[T]{value: v, set: true}
}

// IsSet reports whether the field is present in the patch.
func (f Field[T]) IsSet() bool {
	return f.set
}

// Get returns the value and whether it is present.
func (f Field[T]) Get() (T, bool) {
	return f.value, f.set
}

// Or returns the value when present, otherwise def.
func (f Field[T]) Or(def T) T {
	if f.set {
		return f.value
	}
	return def
}

// Ptr is a convenience for building nullable patch values.
func Ptr[T any](v T) *T {
	return &v
}
