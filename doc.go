/*
Package blueprint is a declarative engine for synthesizing object graphs from
reusable attribute templates, chiefly used to produce test fixtures.

A fixture is described by a Definition: an ordered set of named attribute
declarations (constants, sequence-derived values, lazily computed values,
nested sub-factories, post-construction hooks) plus optional named parameters
and traits that toggle bundles of overrides. Compile freezes a Definition into
an immutable *Factory; each Build/Create/Stub call then resolves the merged
declaration set against caller-supplied overrides and instantiates the target
model through a pluggable strategy.

Construction happens in two clearly separated phases:

 1. Definition time: Compile resolves configuration across the explicit parent
    chain, merges ancestor declarations with this definition's own, derives
    auto declarations through an Introspector, orders parameters by their
    dependency closure (failing on cycles), and partitions the result into
    pre- and post-construction subsets. The compiled Factory is immutable and
    safe for concurrent reads.

 2. Invocation time: each call creates a fresh resolution step that walks the
    pre-construction declarations in merged order, honors caller overrides
    (including the Skip sentinel and dotted "a__b" routing into nested
    factories), dispatches on the build/create/stub strategy, and finally runs
    post-construction declarations against the instantiated object.

Shared sequence counters are modeled as explicit handles: a factory whose model
type specializes its base factory's model type shares the base's counter, so a
family of related fixtures keeps generating unique sequence numbers.
*/
package blueprint
