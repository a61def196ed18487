package store

import (
	"context"
	"sync"
	"time"

	"github.com/Ayushsunny/Budgease/internal/core"
	"github.com/Ayushsunny/Budgease/internal/persistence"
)

type saveJob struct {
	seq      uint64
	op       string
	identity core.Identity
	doc      persistence.Document
}

// writer owns all saves of one store. Only the newest pending snapshot is
// written, so saves land in issue order and a burst of mutations costs one
// write.
type writer struct {
	adapter   persistence.Adapter
	timeout   time.Duration
	onFailure func(saveJob, error) error

	mu        sync.Mutex
	pending   *saveJob
	issued    uint64
	attempted uint64
	lastErr   error
	progress  chan struct{} // closed and replaced after every attempt

	wake chan struct{}
	stop chan struct{}
	done chan struct{}
}

func newWriter(adapter persistence.Adapter, timeout time.Duration, onFailure func(saveJob, error) error) *writer {
	w := &writer{
		adapter:   adapter,
		timeout:   timeout,
		onFailure: onFailure,
		progress:  make(chan struct{}),
		wake:      make(chan struct{}, 1),
		stop:      make(chan struct{}),
		done:      make(chan struct{}),
	}
	go w.run()
	return w
}

// enqueue replaces any pending snapshot with job and returns its sequence.
func (w *writer) enqueue(job saveJob) uint64 {
	w.mu.Lock()
	w.issued++
	job.seq = w.issued
	w.pending = &job
	w.mu.Unlock()

	select {
	case w.wake <- struct{}{}:
	default:
	}
	return job.seq
}

// flush waits until every job issued before the call has been attempted and
// returns the error of the newest attempt.
func (w *writer) flush(ctx context.Context) error {
	w.mu.Lock()
	target := w.issued
	w.mu.Unlock()

	for {
		w.mu.Lock()
		if w.attempted >= target {
			err := w.lastErr
			w.mu.Unlock()
			return err
		}
		progress := w.progress
		w.mu.Unlock()

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-progress:
		}
	}
}

func (w *writer) run() {
	defer close(w.done)
	for {
		select {
		case <-w.wake:
			w.drain()
		case <-w.stop:
			w.drain()
			return
		}
	}
}

func (w *writer) drain() {
	for {
		w.mu.Lock()
		job := w.pending
		w.pending = nil
		w.mu.Unlock()
		if job == nil {
			return
		}

		ctx, cancel := context.WithTimeout(context.Background(), w.timeout)
		err := w.adapter.Save(ctx, job.identity, job.doc)
		cancel()

		// Report before publishing progress so a flush that sees the error
		// also sees its notice.
		if err != nil && w.onFailure != nil {
			err = w.onFailure(*job, err)
		}

		w.mu.Lock()
		w.attempted = job.seq
		w.lastErr = err
		close(w.progress)
		w.progress = make(chan struct{})
		w.mu.Unlock()
	}
}

// close writes whatever is still pending and stops the goroutine.
func (w *writer) close() {
	select {
	case <-w.stop:
	default:
		close(w.stop)
	}
	<-w.done
}
