package blueprint

import (
	"context"
	"fmt"
	"reflect"
	"sort"
	"strings"

	"github.com/go-viper/mapstructure/v2"
)

// defaultInstantiate is the default build and create hook: it allocates a new
// model value and decodes the keyword arguments into it, matching field names
// case-insensitively. Models whose constructors take positional arguments
// need a custom hook; the default rejects inline args.
func defaultInstantiate(_ context.Context, model reflect.Type, args []any, kwargs map[string]any) (any, error) {
	if model == nil {
		return nil, fmt.Errorf("blueprint: no model type to instantiate")
	}
	if len(args) > 0 {
		return nil, fmt.Errorf("blueprint: the default instantiation hook does not support inline args; configure a custom Build/Create hook for %s", model)
	}

	switch model.Kind() {
	case reflect.Struct:
		out := reflect.New(model).Interface()
		dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
			Result: out,
			// Embedded fields keep their Go promotion semantics.
			Squash: true,
		})
		if err != nil {
			return nil, fmt.Errorf("blueprint: preparing decoder for %s: %w", model, err)
		}
		if err := dec.Decode(kwargs); err != nil {
			return nil, fmt.Errorf("blueprint: decoding arguments into %s: %w", model, err)
		}
		return out, nil
	case reflect.Map:
		if model.Key().Kind() != reflect.String {
			return nil, fmt.Errorf("blueprint: map model %s must be keyed by string", model)
		}
		out := reflect.MakeMapWithSize(model, len(kwargs))
		for k, v := range kwargs {
			rv := reflect.ValueOf(v)
			if v == nil {
				rv = reflect.Zero(model.Elem())
			} else if !rv.Type().AssignableTo(model.Elem()) {
				if !rv.Type().ConvertibleTo(model.Elem()) {
					return nil, fmt.Errorf("blueprint: value for %q (%T) is not assignable to %s", k, v, model.Elem())
				}
				rv = rv.Convert(model.Elem())
			}
			out.SetMapIndex(reflect.ValueOf(k).Convert(model.Key()), rv)
		}
		return out.Interface(), nil
	default:
		return nil, fmt.Errorf("blueprint: the default instantiation hook supports struct and map models, not %s; configure a custom Build/Create hook", model)
	}
}

// Stub is the plain attribute container returned by the stub strategy. It
// carries resolved attributes without ever touching the model type.
type Stub struct {
	attrs map[string]any
}

func newStub(kwargs map[string]any) *Stub {
	attrs := make(map[string]any, len(kwargs))
	for k, v := range kwargs {
		attrs[k] = v
	}
	return &Stub{attrs: attrs}
}

// Attr returns the named attribute and whether it was resolved.
func (s *Stub) Attr(name string) (any, bool) {
	v, ok := s.attrs[name]
	return v, ok
}

// Attrs returns a copy of all resolved attributes.
func (s *Stub) Attrs() map[string]any {
	out := make(map[string]any, len(s.attrs))
	for k, v := range s.attrs {
		out[k] = v
	}
	return out
}

func (s *Stub) String() string {
	names := make([]string, 0, len(s.attrs))
	for k := range s.attrs {
		names = append(names, k)
	}
	sort.Strings(names)
	var b strings.Builder
	b.WriteString("Stub(")
	for i, k := range names {
		if i > 0 {
			b.WriteString(", ")
		}
		fmt.Fprintf(&b, "%s=%v", k, s.attrs[k])
	}
	b.WriteString(")")
	return b.String()
}

// traverse descends one named segment into a value: stub attributes, map
// keys, struct fields and methods (through pointers) are all addressable.
func traverse(value any, segment string) (any, error) {
	if value == nil {
		return nil, fmt.Errorf("cannot descend into nil value")
	}
	if stub, ok := value.(*Stub); ok {
		v, ok := stub.Attr(segment)
		if !ok {
			return nil, fmt.Errorf("stub has no attribute %q", segment)
		}
		return v, nil
	}

	rv := reflect.ValueOf(value)
	if rv.Kind() == reflect.Map && rv.Type().Key().Kind() == reflect.String {
		mv := rv.MapIndex(reflect.ValueOf(segment).Convert(rv.Type().Key()))
		if !mv.IsValid() {
			return nil, fmt.Errorf("map has no key %q", segment)
		}
		return mv.Interface(), nil
	}

	for rv.Kind() == reflect.Pointer {
		if rv.IsNil() {
			return nil, fmt.Errorf("cannot descend into nil pointer")
		}
		rv = rv.Elem()
	}
	if rv.Kind() == reflect.Struct {
		if fv := fieldByNameFold(rv, segment); fv.IsValid() {
			return fv.Interface(), nil
		}
	}
	return nil, fmt.Errorf("%T has no attribute %q", value, segment)
}

// fieldByNameFold matches a struct field case-insensitively, the same rule
// the default instantiation hook uses for keyword arguments.
func fieldByNameFold(rv reflect.Value, name string) reflect.Value {
	return rv.FieldByNameFunc(func(field string) bool {
		return strings.EqualFold(field, name)
	})
}
