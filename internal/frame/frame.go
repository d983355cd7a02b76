// Package frame defines the read-only view of a host call frame that a
// probe invocation evaluates against (spec §3 "FrameContext").
//
// Unlike the Python original's frame.go equivalent (which walks a live
// interpreter stack frame via f_locals/f_globals introspection), Go has
// no such runtime reflection surface: population of a Context is a host
// integration contract, not something this package can derive on its
// own. Context is therefore a plain, host-supplied struct.
package frame

import "reflect"

// Context is populated once per probe invocation and never mutated
// (spec §3). The well-known keys are fixed fields rather than map
// entries so hosts get compile-time checking; Locals/Globals/Kwargs
// remain maps since their key sets are call-site-dependent.
type Context struct {
	Args      []any
	Kwargs    map[string]any
	Self      any // nil if the probed function has no receiver
	Locals    map[string]any
	Globals   map[string]any
	HasRetval bool
	Retval    any
	Exception error // non-nil on a failing exit probe
}

// Lookup resolves a FrameContext identifier (spec §4.3 "Identifiers").
// A miss returns (nil, false); the evaluator maps that to a null value
// rather than an error, per spec §3 invariant 4.
func (c *Context) Lookup(name string) (any, bool) {
	if c == nil {
		return nil, false
	}
	switch name {
	case "args":
		return c.Args, true
	case "kwargs":
		if c.Kwargs == nil {
			return map[string]any{}, true
		}
		return c.Kwargs, true
	case "self":
		if c.Self == nil {
			return nil, false
		}
		return c.Self, true
	case "locals":
		return c.Locals, true
	case "globals":
		return c.Globals, true
	case "retval":
		if !c.HasRetval {
			return nil, false
		}
		return c.Retval, true
	case "exception":
		if c.Exception == nil {
			return nil, true // exit probes without a thrown error see an explicit null
		}
		return c.Exception, true
	}
	if idx, ok := argIndex(name); ok {
		if idx < 0 || idx >= len(c.Args) {
			return nil, false
		}
		return c.Args[idx], true
	}
	if c.Locals != nil {
		if v, ok := c.Locals[name]; ok {
			return v, true
		}
	}
	if c.Globals != nil {
		if v, ok := c.Globals[name]; ok {
			return v, true
		}
	}
	return nil, false
}

// argIndex parses "arg0".."argN" style names.
func argIndex(name string) (int, bool) {
	const prefix = "arg"
	if len(name) <= len(prefix) || name[:len(prefix)] != prefix {
		return 0, false
	}
	n := 0
	for _, r := range name[len(prefix):] {
		if r < '0' || r > '9' {
			return 0, false
		}
		n = n*10 + int(r-'0')
	}
	return n, true
}

// Attr gets a field or map entry named name off obj (spec §4.3 "Field
// access"), supporting both plain Go structs/maps exposed by the host
// and the map[string]any shape used internally. Access-control policy
// (private/dunder rejection) lives in internal/eval, which calls Attr
// only after a name has cleared that policy.
func Attr(obj any, name string) (any, bool) {
	if obj == nil {
		return nil, false
	}
	if m, ok := obj.(map[string]any); ok {
		v, ok := m[name]
		return v, ok
	}
	rv := reflect.ValueOf(obj)
	for rv.Kind() == reflect.Ptr || rv.Kind() == reflect.Interface {
		if rv.IsNil() {
			return nil, false
		}
		rv = rv.Elem()
	}
	switch rv.Kind() {
	case reflect.Struct:
		f := rv.FieldByName(name)
		if !f.IsValid() || !f.CanInterface() {
			return nil, false
		}
		return f.Interface(), true
	case reflect.Map:
		v := rv.MapIndex(reflect.ValueOf(name))
		if !v.IsValid() {
			return nil, false
		}
		return v.Interface(), true
	}
	return nil, false
}

// Index gets obj[key] (spec §4.3 "Index access"). Out-of-range or
// type-mismatched access returns (nil, false) rather than panicking, so
// the evaluator can turn it into a null per spec §3 invariant 4.
func Index(obj, key any) (result any, ok bool) {
	if obj == nil {
		return nil, false
	}
	defer func() {
		if recover() != nil {
			result, ok = nil, false
		}
	}()
	rv := reflect.ValueOf(obj)
	switch rv.Kind() {
	case reflect.Map:
		kv := reflect.ValueOf(key)
		if !kv.IsValid() || !kv.Type().AssignableTo(rv.Type().Key()) {
			return nil, false
		}
		v := rv.MapIndex(kv)
		if !v.IsValid() {
			return nil, false
		}
		return v.Interface(), true
	case reflect.Slice, reflect.Array, reflect.String:
		i, ok := asInt(key)
		if !ok || i < 0 || i >= rv.Len() {
			return nil, false
		}
		if rv.Kind() == reflect.String {
			return string(rv.Index(i).Interface().(uint8)), true
		}
		return rv.Index(i).Interface(), true
	}
	return nil, false
}

func asInt(v any) (int, bool) {
	switch n := v.(type) {
	case int:
		return n, true
	case int64:
		return int(n), true
	case float64:
		return int(n), true
	}
	return 0, false
}
