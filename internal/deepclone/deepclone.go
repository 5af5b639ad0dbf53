// Package deepclone provides the recursive clone fallback used at the
// in-process storage adapter's value-isolation boundary. The preferred
// path for record.Record itself is the cheaper record.Clone (JSON-shaped
// fields only); this package exists for the Details payloads callers may
// smuggle non-JSON values into, such as a time.Time or a *regexp.Regexp.
package deepclone

import (
	"reflect"
	"regexp"
	"time"
	"unsafe"
)

// ErrNotCloneable is returned (wrapped) when a value contains a kind that
// cannot be meaningfully copied, such as a function or a channel.
type ErrNotCloneable struct {
	Kind reflect.Kind
}

func (e *ErrNotCloneable) Error() string {
	return "deepclone: value of kind " + e.Kind.String() + " is not cloneable"
}

// Clone returns a deep copy of v. It special-cases time.Time and
// *regexp.Regexp (both are copy-safe by value/pointer-to-fresh-compile
// respectively) and otherwise recurses over maps, slices, arrays,
// pointers, and structs via reflection. Funcs, channels, and unsafe
// pointers are rejected with *ErrNotCloneable so the caller can fall back
// to returning the original value and logging a one-shot warning.
func Clone(v any) (any, error) {
	if v == nil {
		return nil, nil
	}
	rv := reflect.ValueOf(v)
	out, err := cloneValue(rv)
	if err != nil {
		return nil, err
	}
	return out.Interface(), nil
}

func cloneValue(rv reflect.Value) (reflect.Value, error) {
	switch rv.Kind() {
	case reflect.Invalid:
		return rv, nil

	case reflect.Func, reflect.Chan, reflect.UnsafePointer:
		return reflect.Value{}, &ErrNotCloneable{Kind: rv.Kind()}

	case reflect.Ptr:
		if rv.IsNil() {
			return rv, nil
		}
		if t, ok := rv.Interface().(*regexp.Regexp); ok {
			return reflect.ValueOf(regexp.MustCompile(t.String())), nil
		}
		elemClone, err := cloneValue(rv.Elem())
		if err != nil {
			return reflect.Value{}, err
		}
		out := reflect.New(rv.Elem().Type())
		out.Elem().Set(elemClone)
		return out, nil

	case reflect.Interface:
		if rv.IsNil() {
			return rv, nil
		}
		inner, err := cloneValue(rv.Elem())
		if err != nil {
			return reflect.Value{}, err
		}
		out := reflect.New(rv.Type()).Elem()
		out.Set(inner)
		return out, nil

	case reflect.Map:
		if rv.IsNil() {
			return rv, nil
		}
		out := reflect.MakeMapWithSize(rv.Type(), rv.Len())
		iter := rv.MapRange()
		for iter.Next() {
			kClone, err := cloneValue(iter.Key())
			if err != nil {
				return reflect.Value{}, err
			}
			vClone, err := cloneValue(iter.Value())
			if err != nil {
				return reflect.Value{}, err
			}
			out.SetMapIndex(kClone, vClone)
		}
		return out, nil

	case reflect.Slice:
		if rv.IsNil() {
			return rv, nil
		}
		out := reflect.MakeSlice(rv.Type(), rv.Len(), rv.Len())
		for i := 0; i < rv.Len(); i++ {
			elemClone, err := cloneValue(rv.Index(i))
			if err != nil {
				return reflect.Value{}, err
			}
			out.Index(i).Set(elemClone)
		}
		return out, nil

	case reflect.Array:
		out := reflect.New(rv.Type()).Elem()
		for i := 0; i < rv.Len(); i++ {
			elemClone, err := cloneValue(rv.Index(i))
			if err != nil {
				return reflect.Value{}, err
			}
			out.Index(i).Set(elemClone)
		}
		return out, nil

	case reflect.Struct:
		if t, ok := rv.Interface().(time.Time); ok {
			return reflect.ValueOf(t), nil
		}
		out := reflect.New(rv.Type()).Elem()
		for i := 0; i < rv.NumField(); i++ {
			field := rv.Field(i)
			if !out.Field(i).CanSet() {
				// reflect.Value.Set refuses an unexported field even
				// though it's our own copy of the memory; go around the
				// export check with an unsafe pointer so the value is
				// actually copied instead of left at its zero value.
				// field itself may not be addressable (e.g. reached
				// through a map value) — skip in that case, since there
				// is no address to read from.
				if field.CanAddr() {
					src := reflect.NewAt(field.Type(), unsafe.Pointer(field.UnsafeAddr())).Elem()
					dst := reflect.NewAt(field.Type(), unsafe.Pointer(out.Field(i).UnsafeAddr())).Elem()
					dst.Set(src)
				}
				continue
			}
			fClone, err := cloneValue(field)
			if err != nil {
				return reflect.Value{}, err
			}
			out.Field(i).Set(fClone)
		}
		return out, nil

	default:
		// Scalars (bool, numeric kinds, string) are copy-safe as-is.
		return rv, nil
	}
}
