package identity

import (
	"errors"
	"fmt"
	"math/rand/v2"
	"strconv"
)

// ErrIDSpaceExhausted is returned when the allocator cannot find a free id
// within its retry budget. It is fatal to the stage that hit it.
var ErrIDSpaceExhausted = errors.New("identity: id space exhausted")

// Fallback selects how the allocator resolves a collision.
type Fallback string

const (
	// FallbackRandom draws a random id. A re-export may assign a different
	// id to the colliding row.
	FallbackRandom Fallback = "random"

	// FallbackRehash folds a retry counter into the natural key, so the
	// replacement id is the same on every run over the same rows.
	FallbackRehash Fallback = "rehash"
)

// DefaultMaxRetries bounds the collision retries for one id.
const DefaultMaxRetries = 10_000

// ParseFallback validates a configured fallback name. Blank means random.
func ParseFallback(s string) (Fallback, error) {
	switch Fallback(s) {
	case "", FallbackRandom:
		return FallbackRandom, nil
	case FallbackRehash:
		return FallbackRehash, nil
	}
	return "", fmt.Errorf("unknown attendance fallback %q (want %q or %q)", s, FallbackRandom, FallbackRehash)
}

// Allocator hands out ids that are unique within one run. It is used for
// attendance, the only kind whose derived ids are checked for collisions.
//
// An Allocator is not safe for concurrent use; stages run on one goroutine.
type Allocator struct {
	seen       map[int]struct{}
	fallback   Fallback
	maxRetries int
	rnd        *rand.Rand
}

// AllocatorOption customizes an Allocator.
type AllocatorOption func(*Allocator)

// WithRand sets the random source used by FallbackRandom.
func WithRand(r *rand.Rand) AllocatorOption {
	return func(a *Allocator) {
		a.rnd = r
	}
}

// NewAllocator creates an empty allocator. maxRetries <= 0 uses
// DefaultMaxRetries.
func NewAllocator(fallback Fallback, maxRetries int, opts ...AllocatorOption) *Allocator {
	if fallback == "" {
		fallback = FallbackRandom
	}
	if maxRetries <= 0 {
		maxRetries = DefaultMaxRetries
	}
	a := &Allocator{
		seen:       make(map[int]struct{}),
		fallback:   fallback,
		maxRetries: maxRetries,
	}
	for _, opt := range opts {
		opt(a)
	}
	if a.rnd == nil {
		a.rnd = rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))
	}
	return a
}

// Assign derives an id from parts and records it. When the derived id is
// already taken the configured fallback is retried until a free id turns up.
// collided reports whether the returned id is a fallback id.
func (a *Allocator) Assign(parts ...string) (id int, collided bool, err error) {
	id = DeriveID(parts...)
	if a.Reserve(id) {
		return id, false, nil
	}

	for attempt := 1; attempt <= a.maxRetries; attempt++ {
		id = a.next(parts, attempt)
		if a.Reserve(id) {
			return id, true, nil
		}
	}
	return 0, true, fmt.Errorf("%w: no free id for %q after %d retries", ErrIDSpaceExhausted, parts, a.maxRetries)
}

func (a *Allocator) next(parts []string, attempt int) int {
	if a.fallback == FallbackRehash {
		salted := append(append([]string(nil), parts...), "#", strconv.Itoa(attempt))
		return DeriveID(salted...)
	}
	return 1 + a.rnd.IntN(MaxID)
}

// Reserve records an id taken from the source. It reports false when the id
// was already in use.
func (a *Allocator) Reserve(id int) bool {
	if _, ok := a.seen[id]; ok {
		return false
	}
	a.seen[id] = struct{}{}
	return true
}

// Contains reports whether id has been handed out or reserved.
func (a *Allocator) Contains(id int) bool {
	_, ok := a.seen[id]
	return ok
}

// Len returns the number of ids in use.
func (a *Allocator) Len() int {
	return len(a.seen)
}

// Fallback returns the configured collision fallback.
func (a *Allocator) Fallback() Fallback {
	return a.fallback
}
