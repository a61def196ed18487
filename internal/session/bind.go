// Package session connects budget stores to identities: a single store
// following the signed-in user, or a registry of stores keyed by identity.
package session

import (
	"context"
	"errors"
	"sync"

	"github.com/Ayushsunny/Budgease/internal/auth"
	"github.com/Ayushsunny/Budgease/internal/core"
	"github.com/Ayushsunny/Budgease/internal/log"
	"github.com/Ayushsunny/Budgease/internal/store"
)

// Bind reopens st for every identity the provider reports, starting with the
// current one. Identity changes are handled in order on a dedicated
// goroutine so the provider's listener never blocks on a load. The returned
// function stops following the provider and waits for the in-flight open.
func Bind(ctx context.Context, provider auth.Provider, st *store.Store, logger *log.Logger) (unbind func()) {
	if logger == nil {
		logger = log.Nop()
	}
	logger = logger.WithComponent(log.ComponentSession)

	ctx, cancel := context.WithCancel(ctx)
	changes := make(chan core.Identity, 16)
	done := make(chan struct{})

	var (
		mu      sync.Mutex
		stopped bool
	)
	unsubscribe := provider.OnIdentityChange(func(id core.Identity) {
		mu.Lock()
		defer mu.Unlock()
		if stopped {
			return
		}
		// Only the newest identity matters once the queue is full.
		for {
			select {
			case changes <- id:
				return
			default:
				select {
				case <-changes:
				default:
				}
			}
		}
	})

	go func() {
		defer close(done)
		for {
			select {
			case <-ctx.Done():
				return
			case id := <-changes:
				err := st.Open(ctx, id)
				var lerr *store.LoadError
				switch {
				case err == nil:
				case errors.As(err, &lerr):
					logger.Warn("Budget loaded with defaults", log.FieldIdentity, id.Key(), log.FieldError, err)
				case errors.Is(err, context.Canceled), errors.Is(err, store.ErrClosed):
					return
				default:
					logger.Error("Failed to open budget", log.FieldIdentity, id.Key(), log.FieldError, err)
				}
			}
		}
	}()

	var once sync.Once
	return func() {
		once.Do(func() {
			unsubscribe()
			mu.Lock()
			stopped = true
			mu.Unlock()
			cancel()
			<-done
		})
	}
}

// WaitReady blocks until st is Ready for identity or ctx ends.
func WaitReady(ctx context.Context, st *store.Store, identity core.Identity) error {
	ready := make(chan struct{}, 1)
	cancel := st.Observe(func(core.Budget) {
		select {
		case ready <- struct{}{}:
		default:
		}
	})
	defer cancel()

	for {
		if st.State() == store.StateReady && st.Identity() == identity {
			return nil
		}
		if st.State() == store.StateClosed {
			return store.ErrClosed
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ready:
		}
	}
}
