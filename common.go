package workqueue

import "reflect"

// IDFunc is an identity function that returns its input unchanged.
// It's commonly used as a default reduce function for batchers.
func IDFunc[T any](input T) T {
	return input
}

// isNil reports whether v is nil or a typed nil of a nillable kind.
func isNil(v any) bool {
	if v == nil {
		return true
	}
	switch rv := reflect.ValueOf(v); rv.Kind() {
	case reflect.Chan, reflect.Func, reflect.Interface, reflect.Map,
		reflect.Pointer, reflect.Slice, reflect.UnsafePointer:
		return rv.IsNil()
	}
	return false
}
