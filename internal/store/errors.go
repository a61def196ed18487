package store

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/Ayushsunny/Budgease/internal/core"
)

var (
	// ErrNotReady rejects mutations while no budget is loaded. Callers may
	// retry once the store is Ready.
	ErrNotReady = errors.New("budget store not ready")
	ErrClosed   = errors.New("budget store closed")
)

// ValidationError is returned when a mutation's arguments are rejected. The
// in-memory budget is unchanged.
type ValidationError struct {
	Op  string
	Err error
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *ValidationError) Unwrap() error { return e.Err }

// PersistenceError reports a failed background save. The in-memory budget
// keeps the optimistic value.
type PersistenceError struct {
	Op       string
	Identity core.Identity
	Revision uint64
	Err      error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("persist %s (identity %s, revision %d): %v", e.Op, e.Identity.Key(), e.Revision, e.Err)
}

func (e *PersistenceError) Unwrap() error { return e.Err }

// LoadError reports that the stored budget could not be read and the default
// budget is being used instead.
type LoadError struct {
	Identity core.Identity
	Err      error
}

func (e *LoadError) Error() string {
	return fmt.Sprintf("load budget for %s: %v", e.Identity.Key(), e.Err)
}

func (e *LoadError) Unwrap() error { return e.Err }

type NoticeKind int

const (
	NoticeValidation NoticeKind = iota + 1
	NoticePersistence
	NoticeLoad
)

func (k NoticeKind) String() string {
	switch k {
	case NoticeValidation:
		return "validation"
	case NoticePersistence:
		return "persistence"
	case NoticeLoad:
		return "load"
	default:
		return "unknown"
	}
}

// Notice is a recoverable problem surfaced to whoever presents the store.
type Notice struct {
	Kind     NoticeKind
	Op       string
	Identity core.Identity
	Err      error
	At       time.Time
}

// Message is a short user-facing description.
func (n Notice) Message() string {
	switch n.Kind {
	case NoticePersistence:
		return "changes were not saved: " + n.Err.Error()
	case NoticeLoad:
		return "could not load saved budget, showing defaults: " + n.Err.Error()
	default:
		return n.Err.Error()
	}
}

// ReconcilePolicy decides which subscription notifications replace the
// in-memory budget.
type ReconcilePolicy int

const (
	// LastNotificationWins applies every notification that differs from
	// memory. A late echo of an older local write can briefly undo a newer
	// optimistic update until that update's own echo arrives.
	LastNotificationWins ReconcilePolicy = iota
	// IgnoreStaleEcho drops echoes of this store's own writes that are older
	// than its latest local revision.
	IgnoreStaleEcho
)

func (p ReconcilePolicy) String() string {
	switch p {
	case IgnoreStaleEcho:
		return "ignore-stale-echo"
	default:
		return "last-notification-wins"
	}
}

// ParseReconcilePolicy accepts the String forms; empty means the default.
func ParseReconcilePolicy(s string) (ReconcilePolicy, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "last-notification-wins":
		return LastNotificationWins, nil
	case "ignore-stale-echo":
		return IgnoreStaleEcho, nil
	default:
		return LastNotificationWins, fmt.Errorf("unknown reconcile policy %q", s)
	}
}
