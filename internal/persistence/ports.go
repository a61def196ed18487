// Package persistence defines the storage port the budget store talks to and
// the helpers shared by its adapters.
package persistence

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/Ayushsunny/Budgease/internal/core"
)

// ErrNotFound is returned by Load when no record exists for the identity.
var ErrNotFound = errors.New("budget not found")

// Document is a stored budget plus the envelope written next to it.
// Revision and Origin identify which store produced the write; they are never
// part of the budget record itself.
type Document struct {
	Budget    core.Budget
	Revision  uint64
	Origin    string
	UpdatedAt time.Time
}

// Unsubscribe disposes a subscription. Calling it more than once is a no-op.
type Unsubscribe func()

// Adapter reads and writes one budget record per identity.
type Adapter interface {
	Load(ctx context.Context, id core.Identity) (Document, error)
	// Save overwrites the record; the last write wins.
	Save(ctx context.Context, id core.Identity, doc Document) error
	// Subscribe reports every stored change for id, including the caller's own
	// writes. Local-only adapters return a disposer that never fires.
	Subscribe(ctx context.Context, id core.Identity, onChange func(Document)) (Unsubscribe, error)
}

// OnceUnsubscribe wraps fn so that only the first call runs it.
func OnceUnsubscribe(fn func()) Unsubscribe {
	var once sync.Once
	return func() {
		once.Do(fn)
	}
}

// NopUnsubscribe is returned for subscriptions that never fire.
func NopUnsubscribe() {}

// ValidateDocument runs the strict record checks every adapter applies to
// data it reads back.
func ValidateDocument(doc Document) error {
	if err := doc.Budget.Validate(); err != nil {
		return errors.Join(core.ErrInvalidRecord, err)
	}
	return nil
}

// Change announces that the record of one identity was rewritten. It carries
// no budget data; receivers re-read the record.
type Change struct {
	Identity string
	Revision uint64
	Origin   string
}

// ChangeBus carries Change announcements between processes sharing a
// local-only store.
type ChangeBus interface {
	Publish(ctx context.Context, ch Change) error
	Subscribe(ctx context.Context, identity string, fn func(Change)) (Unsubscribe, error)
}

// Lister is implemented by adapters that can enumerate stored identities.
type Lister interface {
	ListIdentities(ctx context.Context) ([]string, error)
}

// Pinger is implemented by adapters that can check their connection.
type Pinger interface {
	Ping(ctx context.Context) error
}
