package blueprint

import "reflect"

// Introspector derives default declarations from a host model system. The
// core calls it during compilation when auto fields are enabled; concrete
// adapters live outside this package (see the introspect package for a
// reflection-based one).
type Introspector interface {
	// DefaultFieldNames reports the model's auto-declarable field names,
	// used when Config.DefaultAutoFields is enabled.
	DefaultFieldNames(model reflect.Type) ([]string, error)
	// BuildDeclarations builds declarations for exactly the requested
	// candidate fields. Names absent from the result are silently skipped;
	// returning a name outside the candidate set is a programming error the
	// compiler rejects. Implementations must fail descriptively for field
	// shapes they have no rule for.
	BuildDeclarations(req IntrospectionRequest) (map[string]Declaration, error)
}

// IntrospectionRequest carries everything an introspector needs to derive
// declarations for one definition.
type IntrospectionRequest struct {
	// Model is the definition's target type.
	Model reflect.Type
	// Factory is the owning definition's name, for error messages.
	Factory string
	// Fields is the candidate field set, sorted.
	Fields []string
	// Skip lists names (including dotted nested names) that must not be
	// generated because they are declared or excluded.
	Skip []string
}
