// Package introspect derives default declarations from Go struct models by
// reflection. It is the host-model adapter for the core engine's auto-field
// derivation: given a model type, it reports the auto-declarable field names
// and builds a fuzzy declaration per field kind.
package introspect

import (
	"fmt"
	"reflect"
	"strings"
	"time"
	"unicode"
	"unicode/utf8"

	"github.com/vk/blueprint"
	"github.com/vk/blueprint/fuzzy"
)

// FieldContext carries one struct field through declaration building.
type FieldContext struct {
	// Field is the descriptor of the introspected struct field.
	Field reflect.StructField
	// FieldName is the declared attribute name (lower-camel form of the
	// field name).
	FieldName string
	// Model is the owning model type.
	Model reflect.Type
	// Factory is the owning definition's name.
	Factory string
	// Skips lists nested attribute names ("fieldname__sub" remainders) that
	// must not be generated.
	Skips []string
}

// Builder produces a declaration for an introspected field, or nil to skip
// it.
type Builder func(fc FieldContext) (blueprint.Declaration, error)

// StructIntrospector implements blueprint.Introspector for plain Go structs.
// Builders are selected by the field's reflect.Kind, with special-cased types
// (time.Time) taking precedence.
type StructIntrospector struct {
	kindBuilders map[reflect.Kind]Builder
	typeBuilders map[reflect.Type]Builder
}

// NewStructIntrospector returns an introspector with fuzzy-backed default
// builders for strings, integers, floats, booleans, and time.Time.
func NewStructIntrospector() *StructIntrospector {
	si := &StructIntrospector{
		kindBuilders: make(map[reflect.Kind]Builder),
		typeBuilders: make(map[reflect.Type]Builder),
	}

	stringBuilder := func(fc FieldContext) (blueprint.Declaration, error) {
		return fuzzy.Text(fuzzy.TextOptions{Prefix: fc.FieldName + "-", Length: 8}), nil
	}
	intBuilder := func(FieldContext) (blueprint.Declaration, error) {
		return fuzzy.Integer(0, 1<<16), nil
	}
	floatBuilder := func(FieldContext) (blueprint.Declaration, error) {
		return fuzzy.Float(0, 1), nil
	}
	boolBuilder := func(FieldContext) (blueprint.Declaration, error) {
		return fuzzy.Choice(true, false), nil
	}

	si.RegisterKind(reflect.String, stringBuilder)
	for _, k := range []reflect.Kind{reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64} {
		si.RegisterKind(k, intBuilder)
	}
	si.RegisterKind(reflect.Float32, floatBuilder)
	si.RegisterKind(reflect.Float64, floatBuilder)
	si.RegisterKind(reflect.Bool, boolBuilder)
	si.RegisterType(reflect.TypeOf(time.Time{}), func(FieldContext) (blueprint.Declaration, error) {
		return fuzzy.DateTime(time.Now().AddDate(0, 0, -100), time.Now()), nil
	})
	return si
}

// RegisterKind installs or replaces the builder for a field kind.
func (si *StructIntrospector) RegisterKind(k reflect.Kind, b Builder) {
	si.kindBuilders[k] = b
}

// RegisterType installs or replaces the builder for an exact field type;
// type builders win over kind builders.
func (si *StructIntrospector) RegisterType(t reflect.Type, b Builder) {
	si.typeBuilders[t] = b
}

// DefaultFieldNames reports the model's exported, non-embedded field names in
// lower-camel form.
func (si *StructIntrospector) DefaultFieldNames(model reflect.Type) ([]string, error) {
	model = deref(model)
	if model == nil || model.Kind() != reflect.Struct {
		return nil, fmt.Errorf("introspect: cannot extract fields from %v", model)
	}
	var names []string
	for i := 0; i < model.NumField(); i++ {
		f := model.Field(i)
		if !f.IsExported() || f.Anonymous {
			continue
		}
		names = append(names, attrName(f.Name))
	}
	return names, nil
}

// FieldByName finds the struct field matching an attribute name,
// case-insensitively, like the default instantiation hook does.
func (si *StructIntrospector) FieldByName(model reflect.Type, name string) (reflect.StructField, bool) {
	model = deref(model)
	if model == nil || model.Kind() != reflect.Struct {
		return reflect.StructField{}, false
	}
	return model.FieldByNameFunc(func(field string) bool {
		return strings.EqualFold(field, name)
	})
}

// BuildDeclarations builds one declaration per requested field. Fields
// absent from the model are skipped; fields whose shape has no registered
// builder fail descriptively.
func (si *StructIntrospector) BuildDeclarations(req blueprint.IntrospectionRequest) (map[string]blueprint.Declaration, error) {
	out := make(map[string]blueprint.Declaration, len(req.Fields))
	for _, name := range req.Fields {
		field, ok := si.FieldByName(req.Model, name)
		if !ok {
			continue
		}
		fc := FieldContext{
			Field:     field,
			FieldName: name,
			Model:     deref(req.Model),
			Factory:   req.Factory,
			Skips:     subSkips(req.Skip, name),
		}
		builder, ok := si.builderFor(field.Type)
		if !ok {
			return nil, fmt.Errorf(
				"introspect: no recipe for building field %q (%s) of %s; declare it explicitly or exclude it on %q",
				name, field.Type, fc.Model, req.Factory)
		}
		decl, err := builder(fc)
		if err != nil {
			return nil, err
		}
		if decl != nil {
			out[name] = decl
		}
	}
	return out, nil
}

func (si *StructIntrospector) builderFor(t reflect.Type) (Builder, bool) {
	if b, ok := si.typeBuilders[t]; ok {
		return b, true
	}
	b, ok := si.kindBuilders[t.Kind()]
	return b, ok
}

// AutoFactory compiles a factory for a model with auto-derived declarations
// for every default field, optionally overridden by explicit attributes.
func AutoFactory(name string, model reflect.Type, overrides blueprint.Attrs) (*blueprint.Factory, error) {
	on := true
	return blueprint.Compile(nil, &blueprint.Definition{
		Name: name,
		Config: blueprint.Config{
			Model:             model,
			Strategy:          blueprint.StrategyBuild,
			Introspector:      NewStructIntrospector(),
			DefaultAutoFields: &on,
		},
		Attrs: overrides,
	})
}

func deref(t reflect.Type) reflect.Type {
	if t != nil && t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	return t
}

// attrName lowers the first rune of a field name: "Name" -> "name".
func attrName(field string) string {
	r, size := utf8.DecodeRuneInString(field)
	return string(unicode.ToLower(r)) + field[size:]
}

// subSkips extracts the remainders of dotted skip names rooted at field:
// skip "owner__name" yields "name" for field "owner".
func subSkips(skips []string, field string) []string {
	prefix := field + "__"
	var out []string
	for _, s := range skips {
		if strings.HasPrefix(s, prefix) {
			out = append(out, strings.TrimPrefix(s, prefix))
		}
	}
	return out
}
