// Package sqlite is the local-only budget adapter: one row per identity in a
// SQLite file. Attached to a change bus it becomes a store shared by every
// process using the same file.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"github.com/Ayushsunny/Budgease/internal/core"
	"github.com/Ayushsunny/Budgease/internal/log"
	"github.com/Ayushsunny/Budgease/internal/persistence"
)

const refetchTimeout = 5 * time.Second

type Repository struct {
	db     *sql.DB
	bus    persistence.ChangeBus
	logger *log.Logger
}

var (
	_ persistence.Adapter = (*Repository)(nil)
	_ persistence.Lister  = (*Repository)(nil)
	_ persistence.Pinger  = (*Repository)(nil)
)

type Option func(*Repository)

// WithChangeBus publishes every save and turns Subscribe into a live feed.
func WithChangeBus(bus persistence.ChangeBus) Option {
	return func(r *Repository) { r.bus = bus }
}

func WithLogger(logger *log.Logger) Option {
	return func(r *Repository) { r.logger = logger }
}

func NewRepository(dbPath string, opts ...Option) (*Repository, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}
	// SQLite allows one writer; a single connection avoids SQLITE_BUSY.
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	if err := RunMigrations(dbPath); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	r := &Repository{db: db}
	for _, opt := range opts {
		opt(r)
	}
	if r.logger == nil {
		r.logger = log.Nop()
	}
	r.logger = r.logger.WithComponent(log.ComponentPersistence).With(log.FieldBackend, "sqlite")
	return r, nil
}

func (r *Repository) Close() error {
	if r.db != nil {
		return r.db.Close()
	}
	return nil
}

func (r *Repository) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

// Load reads the record of id. The anonymous identity uses the fixed
// budgetData key.
func (r *Repository) Load(ctx context.Context, id core.Identity) (persistence.Document, error) {
	return r.Get(ctx, id.Key())
}

// Get reads the record stored under key.
func (r *Repository) Get(ctx context.Context, key string) (persistence.Document, error) {
	var (
		data, origin, updatedAt string
		revision                int64
	)
	err := r.db.QueryRowContext(ctx,
		`SELECT data, revision, origin, updated_at FROM budgets WHERE identity = ?`, key,
	).Scan(&data, &revision, &origin, &updatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return persistence.Document{}, persistence.ErrNotFound
	}
	if err != nil {
		return persistence.Document{}, fmt.Errorf("query budget: %w", err)
	}

	b, err := core.DecodeBudget([]byte(data))
	if err != nil {
		return persistence.Document{}, err
	}
	ts, err := time.Parse(time.RFC3339Nano, updatedAt)
	if err != nil {
		return persistence.Document{}, fmt.Errorf("%w: updated_at %q", core.ErrInvalidRecord, updatedAt)
	}
	return persistence.Document{
		Budget:    b,
		Revision:  uint64(revision),
		Origin:    origin,
		UpdatedAt: ts,
	}, nil
}

// Save upserts the record, then announces the change on the bus. A failed
// announcement is logged and does not fail the save.
func (r *Repository) Save(ctx context.Context, id core.Identity, doc persistence.Document) error {
	data, err := core.EncodeBudget(doc.Budget)
	if err != nil {
		return fmt.Errorf("encode budget: %w", err)
	}
	updatedAt := doc.UpdatedAt
	if updatedAt.IsZero() {
		updatedAt = time.Now()
	}

	key := id.Key()
	_, err = r.db.ExecContext(ctx, `
		INSERT INTO budgets (identity, data, revision, origin, updated_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(identity) DO UPDATE SET
			data = excluded.data,
			revision = excluded.revision,
			origin = excluded.origin,
			updated_at = excluded.updated_at`,
		key, string(data), int64(doc.Revision), doc.Origin, updatedAt.UTC().Format(time.RFC3339Nano))
	if err != nil {
		return fmt.Errorf("upsert budget: %w", err)
	}

	r.logger.DebugContext(ctx, "Budget saved", log.FieldOperation, log.OpSave, log.FieldIdentity, key, log.FieldRevision, doc.Revision)

	if r.bus != nil {
		change := persistence.Change{Identity: key, Revision: doc.Revision, Origin: doc.Origin}
		if err := r.bus.Publish(ctx, change); err != nil {
			r.logger.ErrorContext(ctx, "Failed to publish budget change",
				log.FieldOperation, log.OpPublish, log.FieldIdentity, key, log.FieldRevision, doc.Revision, log.FieldError, err)
		}
	}
	return nil
}

// Subscribe never fires without a change bus. With one, every announcement
// for id triggers a re-read of the row.
func (r *Repository) Subscribe(ctx context.Context, id core.Identity, onChange func(persistence.Document)) (persistence.Unsubscribe, error) {
	if r.bus == nil {
		return persistence.NopUnsubscribe, nil
	}
	key := id.Key()
	unsub, err := r.bus.Subscribe(ctx, key, func(ch persistence.Change) {
		fetchCtx, cancel := context.WithTimeout(context.Background(), refetchTimeout)
		defer cancel()
		doc, err := r.Get(fetchCtx, key)
		if err != nil {
			r.logger.Error("Failed to re-read changed budget",
				log.FieldIdentity, key, log.FieldRevision, ch.Revision, log.FieldError, err)
			return
		}
		onChange(doc)
	})
	if err != nil {
		return nil, fmt.Errorf("subscribe to budget changes: %w", err)
	}
	return persistence.OnceUnsubscribe(unsub), nil
}

// ListIdentities returns every stored key in a stable order.
func (r *Repository) ListIdentities(ctx context.Context) ([]string, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT identity FROM budgets ORDER BY identity`)
	if err != nil {
		return nil, fmt.Errorf("list identities: %w", err)
	}
	defer rows.Close()

	var keys []string
	for rows.Next() {
		var key string
		if err := rows.Scan(&key); err != nil {
			return nil, fmt.Errorf("scan identity: %w", err)
		}
		keys = append(keys, key)
	}
	return keys, rows.Err()
}

// PutRaw writes data without validation. Used to simulate foreign writers.
func (r *Repository) PutRaw(ctx context.Context, key string, data []byte) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO budgets (identity, data, revision, origin, updated_at)
		VALUES (?, ?, 0, '', ?)
		ON CONFLICT(identity) DO UPDATE SET data = excluded.data`,
		key, string(data), time.Now().UTC().Format(time.RFC3339Nano))
	if err != nil {
		return fmt.Errorf("put raw budget: %w", err)
	}
	return nil
}
