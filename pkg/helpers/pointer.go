package helpers

func Ptr[T any](val T) *T {
	return &val
}

// NonZero returns a pointer to val, or nil when val is the zero value. Used
// for optional payload fields where an empty flag means "not set".
func NonZero[T comparable](val T) *T {
	var zero T
	if val == zero {
		return nil
	}
	return &val
}

// Value returns the dereferenced value or the zero value if nil.
func Value[T any](val *T) T {
	if val == nil {
		var zero T
		return zero
	}
	return *val
}

func ValueOr[T any](val *T, fallback T) T {
	if val == nil {
		return fallback
	}
	return *val
}
