package worker

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/robfig/cron/v3"

	"github.com/Ayushsunny/Budgease/internal/amqp"
	"github.com/Ayushsunny/Budgease/internal/core"
	"github.com/Ayushsunny/Budgease/internal/export"
	"github.com/Ayushsunny/Budgease/internal/log"
	"github.com/Ayushsunny/Budgease/internal/persistence"
)

// ExportWorker copies stored budgets to an exporter, either when a change is
// announced on the queue or for every identity on a schedule.
type ExportWorker struct {
	adapter  persistence.Adapter
	lister   persistence.Lister
	exporter export.Exporter
	logger   *log.Logger

	mu       sync.Mutex
	exported map[string]uint64 // last exported revision per identity key
}

func NewExportWorker(adapter persistence.Adapter, lister persistence.Lister, exporter export.Exporter, logger *log.Logger) *ExportWorker {
	if logger == nil {
		logger = log.Nop()
	}
	return &ExportWorker{
		adapter:  adapter,
		lister:   lister,
		exporter: exporter,
		logger:   logger.WithComponent(log.ComponentWorker),
		exported: make(map[string]uint64),
	}
}

// HandleBudgetChanged exports the record named by a BudgetChanged message.
// Messages older than the last exported revision are acknowledged without
// work. Equal revisions are exported again since two stores may share one.
// A returned error makes the consumer requeue the message.
func (w *ExportWorker) HandleBudgetChanged(ctx context.Context, msg *amqp.BudgetChangedMessage) error {
	w.logger.InfoContext(ctx, "Processing budget change",
		log.FieldIdentity, msg.Identity,
		log.FieldRevision, msg.Revision)

	if msg.Revision > 0 && w.lastExported(msg.Identity) > msg.Revision {
		w.logger.DebugContext(ctx, "Revision already exported, skipping",
			log.FieldIdentity, msg.Identity,
			log.FieldRevision, msg.Revision)
		return nil
	}

	if err := w.exportOne(ctx, msg.Identity); err != nil {
		if errors.Is(err, persistence.ErrNotFound) {
			w.logger.WarnContext(ctx, "Changed budget no longer stored, skipping",
				log.FieldIdentity, msg.Identity)
			return nil
		}
		return fmt.Errorf("export %s: %w", msg.Identity, err)
	}
	return nil
}

// ExportAll re-exports every stored identity. It keeps going past failures
// and returns them joined, along with the number exported.
func (w *ExportWorker) ExportAll(ctx context.Context) (int, error) {
	if w.lister == nil {
		return 0, errors.New("backend cannot list identities")
	}
	keys, err := w.lister.ListIdentities(ctx)
	if err != nil {
		return 0, fmt.Errorf("list identities: %w", err)
	}

	var (
		errs     []error
		exported int
	)
	for _, key := range keys {
		if err := ctx.Err(); err != nil {
			errs = append(errs, err)
			break
		}
		if err := w.exportOne(ctx, key); err != nil {
			w.logger.ErrorContext(ctx, "Failed to export budget",
				log.FieldOperation, log.OpExport,
				log.FieldIdentity, key,
				log.FieldError, err)
			errs = append(errs, fmt.Errorf("export %s: %w", key, err))
			continue
		}
		exported++
	}

	w.logger.InfoContext(ctx, "Export pass completed",
		"total", len(keys),
		"exported", exported,
		"errors", len(errs))
	return exported, errors.Join(errs...)
}

// RunScheduled runs ExportAll on a standard cron schedule until ctx ends.
func (w *ExportWorker) RunScheduled(ctx context.Context, schedule string) error {
	c := cron.New()
	if _, err := c.AddFunc(schedule, func() {
		if _, err := w.ExportAll(ctx); err != nil {
			w.logger.ErrorContext(ctx, "Scheduled export failed", log.FieldError, err)
		}
	}); err != nil {
		return fmt.Errorf("schedule %q: %w", schedule, err)
	}

	w.logger.InfoContext(ctx, "Export schedule started", "schedule", schedule)
	c.Start()
	<-ctx.Done()
	<-c.Stop().Done()
	w.logger.InfoContext(ctx, "Export schedule stopped")
	return nil
}

func (w *ExportWorker) exportOne(ctx context.Context, key string) error {
	id := core.Identity{UID: key}
	doc, err := w.adapter.Load(ctx, id)
	if err != nil {
		return err
	}
	if err := w.exporter.Export(ctx, id, doc.Budget); err != nil {
		return err
	}
	w.markExported(key, doc.Revision)
	return nil
}

func (w *ExportWorker) lastExported(key string) uint64 {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.exported[key]
}

func (w *ExportWorker) markExported(key string, revision uint64) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if revision > w.exported[key] {
		w.exported[key] = revision
	}
}
