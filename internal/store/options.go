package store

import (
	"time"

	"github.com/google/uuid"

	"github.com/Ayushsunny/Budgease/internal/log"
)

const DefaultSaveTimeout = 10 * time.Second

type options struct {
	notify      func(Notice)
	policy      ReconcilePolicy
	logger      *log.Logger
	saveTimeout time.Duration
	categories  []string
	now         func() time.Time
	newID       func() string
	origin      string
}

type Option func(*options)

// WithNotifier receives validation, persistence and load notices. It is
// called synchronously and must not block.
func WithNotifier(fn func(Notice)) Option {
	return func(o *options) { o.notify = fn }
}

func WithReconcilePolicy(p ReconcilePolicy) Option {
	return func(o *options) { o.policy = p }
}

func WithLogger(logger *log.Logger) Option {
	return func(o *options) { o.logger = logger }
}

// WithSaveTimeout bounds every background save.
func WithSaveTimeout(d time.Duration) Option {
	return func(o *options) {
		if d > 0 {
			o.saveTimeout = d
		}
	}
}

// WithDefaultCategories overrides the category names of a freshly seeded
// budget.
func WithDefaultCategories(names ...string) Option {
	return func(o *options) { o.categories = names }
}

func WithClock(now func() time.Time) Option {
	return func(o *options) { o.now = now }
}

// WithIDGenerator replaces the uuid generator used for new categories and
// expenses.
func WithIDGenerator(fn func() string) Option {
	return func(o *options) { o.newID = fn }
}

// WithOrigin sets the writer id stamped on saved documents. Defaults to a
// random uuid per store.
func WithOrigin(origin string) Option {
	return func(o *options) { o.origin = origin }
}

func defaultOptions() options {
	return options{
		policy:      LastNotificationWins,
		saveTimeout: DefaultSaveTimeout,
		now:         time.Now,
		newID:       func() string { return uuid.NewString() },
		origin:      uuid.NewString(),
	}
}
