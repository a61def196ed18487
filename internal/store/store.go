// Package store holds the in-memory budget of one identity, applies
// mutations optimistically, persists them in the background and reconciles
// with changes reported by the persistence adapter.
package store

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/Ayushsunny/Budgease/internal/core"
	"github.com/Ayushsunny/Budgease/internal/log"
	"github.com/Ayushsunny/Budgease/internal/persistence"
)

type State int

const (
	StateUninitialized State = iota
	StateLoading
	StateReady
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateUninitialized:
		return "uninitialized"
	case StateLoading:
		return "loading"
	case StateReady:
		return "ready"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// Store is safe for concurrent use. Observers are called synchronously, in
// mutation order, and must not call back into mutating methods.
type Store struct {
	adapter persistence.Adapter
	opts    options
	logger  *log.Logger
	writer  *writer

	mu        sync.Mutex
	state     State
	identity  core.Identity
	budget    core.Budget
	revision  uint64
	gen       uint64
	unsub     persistence.Unsubscribe
	observers map[int]func(core.Budget)
	nextObs   int

	// emitMu is taken while mu is still held so notifications leave in the
	// same order the changes were made.
	emitMu sync.Mutex

	closeOnce sync.Once
}

func New(adapter persistence.Adapter, opts ...Option) *Store {
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}
	if o.logger == nil {
		o.logger = log.Nop()
	}
	s := &Store{
		adapter:   adapter,
		opts:      o,
		logger:    o.logger.WithComponent(log.ComponentStore).With(log.FieldOrigin, o.origin),
		observers: make(map[int]func(core.Budget)),
	}
	s.writer = newWriter(adapter, o.saveTimeout, s.saveFailed)
	return s
}

// Open loads the budget of identity and makes it current. It is also how the
// store switches identity: pending writes of the previous identity are
// flushed and its subscription is disposed first.
//
// A missing record is seeded with the default budget and persisted. Any
// other load problem leaves the default budget in memory, raises a load
// notice and is returned as a *LoadError; the store is Ready either way.
func (s *Store) Open(ctx context.Context, identity core.Identity) error {
	s.mu.Lock()
	if s.state == StateClosed {
		s.mu.Unlock()
		return ErrClosed
	}
	s.mu.Unlock()

	if err := s.writer.flush(ctx); err != nil && ctx.Err() != nil {
		return ctx.Err()
	}

	s.mu.Lock()
	if s.state == StateClosed {
		s.mu.Unlock()
		return ErrClosed
	}
	unsub := s.unsub
	s.unsub = nil
	s.gen++
	gen := s.gen
	s.identity = identity
	s.state = StateLoading
	s.mu.Unlock()

	// Disposal waits for an in-flight callback, which may itself be waiting
	// for mu, so it happens unlocked.
	if unsub != nil {
		unsub()
	}

	logger := s.logger.WithIdentity(identity.Key())
	logger.DebugContext(ctx, "Loading budget")

	doc, loadErr := s.adapter.Load(ctx, identity)
	if loadErr != nil && ctx.Err() != nil {
		// Cancellation is not a load failure; the caller may retry.
		s.mu.Lock()
		if s.gen == gen && s.state == StateLoading {
			s.state = StateUninitialized
		}
		s.mu.Unlock()
		return ctx.Err()
	}
	seed := false
	switch {
	case loadErr == nil:
	case errors.Is(loadErr, persistence.ErrNotFound):
		doc = persistence.Document{Budget: core.DefaultBudget(s.opts.categories...)}
		seed = true
		loadErr = nil
	default:
		logger.WarnContext(ctx, "Failed to load budget, using defaults", log.FieldError, loadErr)
		doc = persistence.Document{Budget: core.DefaultBudget(s.opts.categories...)}
	}

	s.mu.Lock()
	if s.gen != gen || s.state == StateClosed {
		// A newer Open or Close won.
		s.mu.Unlock()
		return nil
	}
	s.budget = doc.Budget.Clone()
	s.revision = doc.Revision
	s.state = StateReady
	if seed {
		s.revision++
		s.enqueueLocked(log.OpOpen)
	}
	s.emitLocked()

	var result error
	if loadErr != nil {
		lerr := &LoadError{Identity: identity, Err: loadErr}
		s.raise(Notice{Kind: NoticeLoad, Op: log.OpLoad, Identity: identity, Err: lerr})
		result = lerr
	}

	unsub, err := s.adapter.Subscribe(ctx, identity, func(doc persistence.Document) {
		s.reconcile(gen, doc)
	})
	if err != nil {
		logger.WarnContext(ctx, "Failed to subscribe to budget changes", log.FieldError, err)
		s.raise(Notice{Kind: NoticeLoad, Op: log.OpSubscribe, Identity: identity, Err: err})
		return result
	}

	s.mu.Lock()
	if s.gen != gen || s.state == StateClosed {
		s.mu.Unlock()
		unsub()
		return result
	}
	s.unsub = unsub
	s.mu.Unlock()

	logger.InfoContext(ctx, "Budget ready", log.FieldState, StateReady.String(), log.FieldRevision, doc.Revision)
	return result
}

// Close flushes pending writes, stops the subscription and the writer. Later
// calls are no-ops.
func (s *Store) Close() error {
	s.closeOnce.Do(func() {
		s.mu.Lock()
		s.state = StateClosed
		s.gen++
		unsub := s.unsub
		s.unsub = nil
		s.observers = make(map[int]func(core.Budget))
		s.mu.Unlock()

		if unsub != nil {
			unsub()
		}
		s.writer.close()
	})
	return nil
}

// Flush waits until every save issued so far has been attempted and returns
// the newest save's failure, if any.
func (s *Store) Flush(ctx context.Context) error {
	return s.writer.flush(ctx)
}

func (s *Store) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

func (s *Store) Identity() core.Identity {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.identity
}

// Revision is the local revision of the in-memory budget.
func (s *Store) Revision() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.revision
}

// Origin is the writer id stamped on this store's saves.
func (s *Store) Origin() string {
	return s.opts.origin
}

// Snapshot returns a deep copy of the current budget.
func (s *Store) Snapshot() core.Budget {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.budget.Clone()
}

// Summary computes the derived views over the current budget.
func (s *Store) Summary() core.Summary {
	return core.Summarize(s.Snapshot())
}

// Observe registers fn for every change of the in-memory budget. When the
// store is Ready, fn is first called with the current budget.
func (s *Store) Observe(fn func(core.Budget)) (cancel func()) {
	s.mu.Lock()
	s.nextObs++
	key := s.nextObs
	s.observers[key] = fn
	ready := s.state == StateReady
	snap := s.budget.Clone()
	s.emitMu.Lock()
	s.mu.Unlock()
	if ready {
		fn(snap)
	}
	s.emitMu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			s.mu.Lock()
			delete(s.observers, key)
			s.mu.Unlock()
		})
	}
}

func (s *Store) SetSalary(amount float64) error {
	return s.mutate(log.OpSetSalary, func(b *core.Budget) error {
		if !core.IsValidAmount(amount) {
			return core.ErrInvalidAmount
		}
		b.Salary = amount
		return nil
	})
}

// AddCategory appends an empty category named name.
func (s *Store) AddCategory(name string) (core.Category, error) {
	var added core.Category
	err := s.mutate(log.OpAddCategory, func(b *core.Budget) error {
		if !core.IsNonEmptyName(name) {
			return core.ErrEmptyName
		}
		added = core.Category{
			ID:       s.opts.newID(),
			Name:     strings.TrimSpace(name),
			Expenses: []core.Expense{},
		}
		b.Categories = append(b.Categories, added)
		return nil
	})
	if err != nil {
		return core.Category{}, err
	}
	return added, nil
}

// RemoveCategory deletes the category and its expenses. Unknown ids are
// ignored.
func (s *Store) RemoveCategory(id string) error {
	return s.mutate(log.OpRemoveCategory, func(b *core.Budget) error {
		_, idx, ok := b.Category(id)
		if !ok {
			return nil
		}
		b.Categories = append(b.Categories[:idx], b.Categories[idx+1:]...)
		return nil
	})
}

// UpdateCategory merges patch into the category. Unknown ids are ignored.
func (s *Store) UpdateCategory(id string, patch core.CategoryPatch) error {
	return s.mutate(log.OpUpdateCategory, func(b *core.Budget) error {
		if err := patch.Validate(); err != nil {
			return err
		}
		c, idx, ok := b.Category(id)
		if !ok {
			return nil
		}
		b.Categories[idx] = patch.Apply(c)
		return nil
	})
}

// EditAllocation sets the category's allocation. Unknown ids are ignored.
func (s *Store) EditAllocation(id string, amount float64) error {
	return s.mutate(log.OpEditAllocation, func(b *core.Budget) error {
		if !core.IsValidAmount(amount) {
			return core.ErrInvalidAmount
		}
		_, idx, ok := b.Category(id)
		if !ok {
			return nil
		}
		b.Categories[idx].Allocation = amount
		return nil
	})
}

// AddExpense appends an expense to the category. An empty date means now.
func (s *Store) AddExpense(categoryID string, in core.ExpenseInput) (core.Expense, error) {
	var added core.Expense
	err := s.mutate(log.OpAddExpense, func(b *core.Budget) error {
		if err := in.Validate(); err != nil {
			return err
		}
		_, idx, ok := b.Category(categoryID)
		if !ok {
			return fmt.Errorf("%w: %q", core.ErrCategoryNotFound, categoryID)
		}
		date := strings.TrimSpace(in.Date)
		if date == "" {
			date = core.NowTimestamp(s.opts.now())
		}
		added = core.Expense{
			ID:     s.opts.newID(),
			Amount: in.Amount,
			Date:   date,
			Note:   strings.TrimSpace(in.Note),
		}
		b.Categories[idx].Expenses = append(b.Categories[idx].Expenses, added)
		return nil
	})
	if err != nil {
		return core.Expense{}, err
	}
	return added, nil
}

// mutate runs fn on a copy of the budget. A rejected or no-op change leaves
// memory untouched; otherwise the copy replaces the budget, observers are
// told and a save is queued.
func (s *Store) mutate(op string, fn func(b *core.Budget) error) error {
	s.mu.Lock()
	switch s.state {
	case StateReady:
	case StateClosed:
		s.mu.Unlock()
		return ErrClosed
	default:
		s.mu.Unlock()
		return ErrNotReady
	}

	next := s.budget.Clone()
	if err := fn(&next); err != nil {
		identity := s.identity
		s.mu.Unlock()
		verr := &ValidationError{Op: op, Err: err}
		s.raise(Notice{Kind: NoticeValidation, Op: op, Identity: identity, Err: verr})
		return verr
	}
	if next.Equal(s.budget) {
		s.mu.Unlock()
		return nil
	}

	s.budget = next
	s.revision++
	s.enqueueLocked(op)
	s.emitLocked()
	return nil
}

// reconcile applies a document reported by the adapter subscription.
func (s *Store) reconcile(gen uint64, doc persistence.Document) {
	s.mu.Lock()
	if s.gen != gen || s.state != StateReady {
		s.mu.Unlock()
		return
	}
	if err := doc.Budget.Validate(); err != nil {
		s.mu.Unlock()
		s.logger.LogFields(context.Background(), slog.LevelWarn, "Ignoring invalid budget notification",
			log.NewFields().WithOperation(log.OpReconcile).WithError(err))
		return
	}
	if s.opts.policy == IgnoreStaleEcho && doc.Origin == s.opts.origin && doc.Revision < s.revision {
		rev := s.revision
		s.mu.Unlock()
		s.logger.Debug("Dropping stale echo", log.FieldRevision, doc.Revision, "local_revision", rev)
		return
	}
	if doc.Revision > s.revision {
		s.revision = doc.Revision
	}
	if doc.Budget.Equal(s.budget) {
		s.mu.Unlock()
		return
	}

	s.budget = doc.Budget.Clone()
	identity := s.identity
	s.emitLocked()
	s.logger.LogFields(context.Background(), slog.LevelDebug, "Budget replaced by notification",
		log.NewFields().WithOperation(log.OpReconcile).WithBudget(identity.Key(), doc.Revision))
}

// enqueueLocked queues a save of the current budget. Callers hold mu, which
// keeps the writer's queue in revision order.
func (s *Store) enqueueLocked(op string) {
	s.writer.enqueue(saveJob{
		op:       op,
		identity: s.identity,
		doc: persistence.Document{
			Budget:    s.budget.Clone(),
			Revision:  s.revision,
			Origin:    s.opts.origin,
			UpdatedAt: s.opts.now(),
		},
	})
}

// emitLocked notifies observers of the current budget and releases mu.
func (s *Store) emitLocked() {
	snap := s.budget.Clone()
	fns := make([]func(core.Budget), 0, len(s.observers))
	for k := 1; k <= s.nextObs; k++ {
		if fn, ok := s.observers[k]; ok {
			fns = append(fns, fn)
		}
	}
	s.emitMu.Lock()
	s.mu.Unlock()
	defer s.emitMu.Unlock()

	for i, fn := range fns {
		if i == len(fns)-1 {
			fn(snap)
			continue
		}
		fn(snap.Clone())
	}
}

func (s *Store) saveFailed(job saveJob, err error) error {
	perr := &PersistenceError{Op: job.op, Identity: job.identity, Revision: job.doc.Revision, Err: err}
	s.logger.LogFields(context.Background(), slog.LevelError, "Failed to persist budget",
		log.NewFields().WithOperation(job.op).WithBudget(job.identity.Key(), job.doc.Revision).WithError(err))
	s.raise(Notice{Kind: NoticePersistence, Op: job.op, Identity: job.identity, Err: perr})
	return perr
}

func (s *Store) raise(n Notice) {
	if n.At.IsZero() {
		n.At = s.opts.now()
	}
	if s.opts.notify != nil {
		s.opts.notify(n)
	}
}
