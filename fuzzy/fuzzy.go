// Package fuzzy provides declarations yielding random attribute values:
// strings, numbers, choices, dates, and identifiers. Values are drawn from a
// package-level source that can be reseeded for reproducible fixtures.
//
// Fuzzy declarations are plain pre-construction declarations; they compose
// with overrides, traits, and sub-factories like any other.
package fuzzy

import (
	"fmt"
	"math"
	"math/rand"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/vk/blueprint"
)

var (
	mu      sync.Mutex
	randgen = rand.New(rand.NewSource(time.Now().UnixNano()))
)

// Reseed re-seeds the shared random source, making subsequent fuzzy values
// reproducible.
func Reseed(seed int64) {
	mu.Lock()
	defer mu.Unlock()
	randgen = rand.New(rand.NewSource(seed))
}

func intn(n int) int {
	mu.Lock()
	defer mu.Unlock()
	return randgen.Intn(n)
}

func float() float64 {
	mu.Lock()
	defer mu.Unlock()
	return randgen.Float64()
}

func wrap(fuzz func() (any, error)) blueprint.Declaration {
	return blueprint.Lazy(func(*blueprint.Resolver) (any, error) { return fuzz() })
}

// Attribute declares a value produced by an arbitrary generator function.
func Attribute(fn func() any) blueprint.Declaration {
	return wrap(func() (any, error) { return fn(), nil })
}

const defaultTextLength = 12

var asciiLetters = []rune("abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ")

// TextOptions adjusts Text generation. Zero values mean a 12-character body
// drawn from ASCII letters with no prefix or suffix.
type TextOptions struct {
	Prefix string
	Length int
	Suffix string
	Chars  []rune
}

// Text declares a random string wrapped in an optional prefix and suffix.
// Useful for unique attributes whose exact value is irrelevant.
func Text(o TextOptions) blueprint.Declaration {
	length := o.Length
	if length == 0 {
		length = defaultTextLength
	}
	chars := o.Chars
	if len(chars) == 0 {
		chars = asciiLetters
	}
	return wrap(func() (any, error) {
		body := make([]rune, length)
		for i := range body {
			body[i] = chars[intn(len(chars))]
		}
		return o.Prefix + string(body) + o.Suffix, nil
	})
}

// Choice declares a value picked uniformly from choices.
func Choice[T any](choices ...T) blueprint.Declaration {
	return wrap(func() (any, error) {
		if len(choices) == 0 {
			return nil, fmt.Errorf("fuzzy: Choice needs at least one option")
		}
		return choices[intn(len(choices))], nil
	})
}

// Integer declares a random integer in [low, high], inclusive on both ends.
func Integer(low, high int) blueprint.Declaration {
	return wrap(func() (any, error) {
		if high < low {
			return nil, fmt.Errorf("fuzzy: Integer boundaries should have low <= high; got %d > %d", low, high)
		}
		return low + intn(high-low+1), nil
	})
}

// IntegerStep declares a random integer in [low, high] aligned to step.
func IntegerStep(low, high, step int) blueprint.Declaration {
	return wrap(func() (any, error) {
		if high < low {
			return nil, fmt.Errorf("fuzzy: Integer boundaries should have low <= high; got %d > %d", low, high)
		}
		if step <= 0 {
			return nil, fmt.Errorf("fuzzy: Integer step must be positive, got %d", step)
		}
		n := (high-low)/step + 1
		return low + step*intn(n), nil
	})
}

// Bytes declares a random byte slice of the given length.
func Bytes(length int) blueprint.Declaration {
	return wrap(func() (any, error) {
		if length < 0 {
			return nil, fmt.Errorf("fuzzy: Bytes length must be non-negative, got %d", length)
		}
		out := make([]byte, length)
		mu.Lock()
		randgen.Read(out)
		mu.Unlock()
		return out, nil
	})
}

// Float declares a random float64 in [low, high).
func Float(low, high float64) blueprint.Declaration {
	return wrap(func() (any, error) {
		if high < low {
			return nil, fmt.Errorf("fuzzy: Float boundaries should have low <= high; got %v > %v", low, high)
		}
		return low + float()*(high-low), nil
	})
}

// Decimal declares a random float64 in [low, high) rounded to the given
// number of decimal places.
func Decimal(low, high float64, places int) blueprint.Declaration {
	return wrap(func() (any, error) {
		if high < low {
			return nil, fmt.Errorf("fuzzy: Decimal boundaries should have low <= high; got %v > %v", low, high)
		}
		if places < 0 {
			return nil, fmt.Errorf("fuzzy: Decimal places must be non-negative, got %d", places)
		}
		scale := math.Pow(10, float64(places))
		v := low + float()*(high-low)
		return math.Round(v*scale) / scale, nil
	})
}

// Date declares a random day between start and end, inclusive, truncated to
// midnight UTC.
func Date(start, end time.Time) blueprint.Declaration {
	return wrap(func() (any, error) {
		if start.After(end) {
			return nil, fmt.Errorf("fuzzy: Date boundaries should have start <= end; got %v > %v", start, end)
		}
		s := start.UTC().Truncate(24 * time.Hour)
		e := end.UTC().Truncate(24 * time.Hour)
		days := int(e.Sub(s).Hours()/24) + 1
		return s.AddDate(0, 0, intn(days)), nil
	})
}

// DateTime declares a random instant between start and end, inclusive of
// start, exclusive of end.
func DateTime(start, end time.Time) blueprint.Declaration {
	return wrap(func() (any, error) {
		if start.After(end) {
			return nil, fmt.Errorf("fuzzy: DateTime boundaries should have start <= end; got %v > %v", start, end)
		}
		span := end.Sub(start)
		if span == 0 {
			return start, nil
		}
		mu.Lock()
		offset := time.Duration(randgen.Int63n(int64(span)))
		mu.Unlock()
		return start.Add(offset), nil
	})
}

// UUID declares a random RFC 4122 version 4 identifier string.
func UUID() blueprint.Declaration {
	return wrap(func() (any, error) { return uuid.NewString(), nil })
}
