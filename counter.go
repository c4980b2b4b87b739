package blueprint

import "reflect"

// counter is the process-held cursor backing Seq declarations. It is not
// safe for concurrent use; callers generating from multiple goroutines must
// synchronize externally.
type counter struct {
	seq int
}

func (c *counter) next() int {
	v := c.seq
	c.seq++
	return v
}

func (c *counter) reset(next int) {
	c.seq = next
}

// sharesCounterWith reports whether a factory for model shares the counter of
// its base factory for baseModel. This holds when model is the same type as
// baseModel, embeds it (directly or transitively), or satisfies it when
// baseModel is an interface: the two factories then generate the same
// underlying family of objects and must keep sequence numbers unique across
// it.
func sharesCounterWith(model, baseModel reflect.Type) bool {
	if model == nil || baseModel == nil {
		return false
	}
	if model == baseModel {
		return true
	}
	if baseModel.Kind() == reflect.Interface {
		return model.Implements(baseModel) || reflect.PointerTo(model).Implements(baseModel)
	}
	return embeds(model, baseModel)
}

// embeds reports whether t transitively embeds target as an anonymous field.
func embeds(t, target reflect.Type) bool {
	if t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	if t.Kind() != reflect.Struct {
		return false
	}
	for i := 0; i < t.NumField(); i++ {
		f := t.Field(i)
		if !f.Anonymous {
			continue
		}
		ft := f.Type
		if ft.Kind() == reflect.Pointer {
			ft = ft.Elem()
		}
		if ft == target {
			return true
		}
		if embeds(ft, target) {
			return true
		}
	}
	return false
}

// sequenceCounter returns the shared counter, creating it on first use. The
// counter lives on the owning factory and is seeded from the owner's
// FirstSequence hook.
func (f *Factory) sequenceCounter() *counter {
	owner := f.counterOwner
	if owner.counter == nil {
		owner.counter = &counter{seq: owner.opts.firstSequence()}
	}
	return owner.counter
}

// NextSequence draws the next value from the factory's shared sequence
// counter. Build/Create/Stub draw one value per invocation; calling this
// directly advances the same counter.
func (f *Factory) NextSequence() int {
	return f.sequenceCounter().next()
}

// ResetSequence sets the next value the shared counter will return. Only the
// factory owning the counter may reset it; descendants sharing the counter
// must pass force or reset on the owner.
func (f *Factory) ResetSequence(next int, force bool) error {
	if f.counterOwner != f && !force {
		return &SequenceOwnershipError{Factory: f.name, Owner: f.counterOwner.name}
	}
	f.sequenceCounter().reset(next)
	return nil
}
