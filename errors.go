package blueprint

import (
	"fmt"
	"strings"
)

// ConfigError reports an invalid definition detected at compile time.
type ConfigError struct {
	Factory string
	Msg     string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("blueprint: invalid definition %q: %s", e.Factory, e.Msg)
}

// UnknownStrategyError reports a strategy name outside build/create/stub.
type UnknownStrategyError struct {
	Strategy Strategy
}

func (e *UnknownStrategyError) Error() string {
	return fmt.Sprintf("blueprint: unknown strategy %q", string(e.Strategy))
}

// CyclicParamsError reports a dependency cycle between parameters of a
// definition. Params holds the offending parameter names, sorted and
// deduplicated.
type CyclicParamsError struct {
	Factory string
	Params  []string
}

func (e *CyclicParamsError) Error() string {
	return fmt.Sprintf("blueprint: cyclic parameter definition on %q; params around %s",
		e.Factory, strings.Join(e.Params, ", "))
}

// AbstractFactoryError reports an attempt to generate instances of an
// abstract factory.
type AbstractFactoryError struct {
	Factory string
}

func (e *AbstractFactoryError) Error() string {
	return fmt.Sprintf(
		"blueprint: cannot generate instances of abstract factory %q; "+
			"ensure its Config.Model is set and Config.Abstract is false",
		e.Factory)
}

// SequenceOwnershipError reports a sequence reset attempted on a factory that
// shares, rather than owns, its counter.
type SequenceOwnershipError struct {
	Factory string
	Owner   string
}

func (e *SequenceOwnershipError) Error() string {
	return fmt.Sprintf(
		"blueprint: cannot reset the sequence of %q: the counter is owned by %q; reset it there or force the reset",
		e.Factory, e.Owner)
}

// UnexpectedFieldError reports an introspector returning a declaration for a
// field it was not asked for.
type UnexpectedFieldError struct {
	Factory string
	Field   string
}

func (e *UnexpectedFieldError) Error() string {
	return fmt.Sprintf(
		"blueprint: introspector for %q returned field %q that it was not asked for",
		e.Factory, e.Field)
}
