// Package docnumber issues the human-facing sequential numbers of invoices and
// estimates from a persisted, atomically incremented counter per kind.
package docnumber

import (
	"context"
	"errors"
	"fmt"
	"sync"
)

// Kind identifies a document sequence.
type Kind string

const (
	KindInvoice  Kind = "invoice"
	KindEstimate Kind = "estimate"
)

// DefaultFloor is the counter value used when no document of a kind exists.
// The first number issued is DefaultFloor+1.
const DefaultFloor int64 = 100000

var (
	// ErrUnavailable is returned whenever a number cannot be issued safely.
	ErrUnavailable = errors.New("docnumber: allocator unavailable")
	// ErrCounterMissing is returned by sequences whose counter was never seeded.
	ErrCounterMissing = errors.New("docnumber: counter not initialised")
)

// Valid reports whether k is a known kind.
func (k Kind) Valid() bool {
	return k == KindInvoice || k == KindEstimate
}

// Sequence is the persisted counter. IncrementCounter must be a single atomic
// increment-and-fetch; for SQL stores it runs inside the create transaction.
type Sequence interface {
	MaxDocumentNumber(ctx context.Context, kind Kind) (int64, error)
	SeedCounter(ctx context.Context, kind Kind, value int64) error
	IncrementCounter(ctx context.Context, kind Kind) (int64, error)
}

// Allocator hands out numbers. It holds no number in memory: only the set of
// kinds whose counter was seeded at startup.
type Allocator struct {
	Floor int64
	// Shared, when set, replaces the transaction-bound sequence passed to Next.
	Shared Sequence

	mu    sync.RWMutex
	ready map[Kind]bool
}

// New returns an allocator with the given floor (DefaultFloor when <= 0).
func New(floor int64, shared Sequence) *Allocator {
	if floor <= 0 {
		floor = DefaultFloor
	}
	return &Allocator{Floor: floor, Shared: shared, ready: map[Kind]bool{}}
}

func (a *Allocator) sequence(tx Sequence) Sequence {
	if a.Shared != nil {
		return a.Shared
	}
	return tx
}

// Init seeds the counter of every kind to max(persisted maximum, floor). It
// never lowers a counter and must succeed before Next is used.
func (a *Allocator) Init(ctx context.Context, seq Sequence, kinds ...Kind) error {
	seq = a.sequence(seq)
	if seq == nil {
		return fmt.Errorf("%w: no sequence configured", ErrUnavailable)
	}
	for _, kind := range kinds {
		highest, err := seq.MaxDocumentNumber(ctx, kind)
		if err != nil {
			return fmt.Errorf("%w: read max %s number: %v", ErrUnavailable, kind, err)
		}
		seed := a.Floor
		if highest > seed {
			seed = highest
		}
		if err := seq.SeedCounter(ctx, kind, seed); err != nil {
			return fmt.Errorf("%w: seed %s counter: %v", ErrUnavailable, kind, err)
		}
		a.mu.Lock()
		if a.ready == nil {
			a.ready = map[Kind]bool{}
		}
		a.ready[kind] = true
		a.mu.Unlock()
	}
	return nil
}

// Ready reports whether Init completed for kind.
func (a *Allocator) Ready(kind Kind) bool {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.ready[kind]
}

// Next increments and returns the counter of kind. tx is the sequence bound to
// the caller's transaction so that a rollback also rolls the number back.
func (a *Allocator) Next(ctx context.Context, tx Sequence, kind Kind) (int64, error) {
	if !kind.Valid() {
		return 0, fmt.Errorf("%w: unknown kind %q", ErrUnavailable, kind)
	}
	if !a.Ready(kind) {
		return 0, fmt.Errorf("%w: %s counter not initialised", ErrUnavailable, kind)
	}
	seq := a.sequence(tx)
	if seq == nil {
		return 0, fmt.Errorf("%w: no sequence configured", ErrUnavailable)
	}
	n, err := seq.IncrementCounter(ctx, kind)
	if err != nil {
		return 0, fmt.Errorf("%w: increment %s counter: %v", ErrUnavailable, kind, err)
	}
	if n <= a.Floor {
		return 0, fmt.Errorf("%w: %s counter %d below floor", ErrUnavailable, kind, n)
	}
	return n, nil
}
