package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/Ayushsunny/Budgease/internal/auth"
	"github.com/Ayushsunny/Budgease/internal/backend"
	"github.com/Ayushsunny/Budgease/internal/cli"
	"github.com/Ayushsunny/Budgease/internal/config"
	"github.com/Ayushsunny/Budgease/internal/log"
	"github.com/Ayushsunny/Budgease/internal/session"
	"github.com/Ayushsunny/Budgease/internal/store"
)

const openTimeout = 30 * time.Second

// errNotSaved marks a change that was applied but could not be persisted.
var errNotSaved = errors.New("changes were not saved")

// app holds what the commands share: flags, configuration and the store
// opened for the current invocation.
type app struct {
	out    io.Writer
	errOut io.Writer

	token    string
	logLevel string
	logger   *log.Logger

	loadConfig  func() (*config.Config, error)
	openBackend func(ctx context.Context, cfg *config.Config, logger *log.Logger) (*backend.BackendResult, error)

	cfg     *config.Config
	closers []func() error

	mu      sync.Mutex
	notices []store.Notice
}

func newApp(out, errOut io.Writer) *app {
	return &app{
		out:         out,
		errOut:      errOut,
		logger:      log.Nop(),
		loadConfig:  loadConfig,
		openBackend: openBackend,
	}
}

func loadConfig() (*config.Config, error) {
	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func openBackend(ctx context.Context, cfg *config.Config, logger *log.Logger) (*backend.BackendResult, error) {
	bcfg, err := backend.FromAppConfig(cfg)
	if err != nil {
		return nil, err
	}
	return backend.NewFactory(logger).CreateBackend(ctx, bcfg)
}

// setupLogger sends logs to w so they never mix with command output.
func (a *app) setupLogger(w io.Writer) {
	a.logger = log.New(log.Config{
		Level:     log.ParseLevel(a.logLevel),
		Component: log.ComponentCLI,
		Output:    w,
	})
}

func (a *app) config() (*config.Config, error) {
	if a.cfg != nil {
		return a.cfg, nil
	}
	cfg, err := a.loadConfig()
	if err != nil {
		return nil, err
	}
	a.cfg = cfg
	return cfg, nil
}

// provider returns a JWT provider, signed in when --token is set.
func (a *app) provider(ctx context.Context, cfg *config.Config) (*auth.JWTProvider, error) {
	if a.token == "" {
		return auth.NewJWTProvider(cfg.JWTSecret, cfg.TokenTTL, a.logger), nil
	}
	if cfg.JWTSecret == "" {
		return nil, errors.New("--token needs JWT_SECRET to be set")
	}
	p := auth.NewJWTProvider(cfg.JWTSecret, cfg.TokenTTL, a.logger)
	if _, err := p.SignIn(ctx, a.token); err != nil {
		return nil, fmt.Errorf("sign in: %w", err)
	}
	return p, nil
}

// open loads the budget of the signed-in identity and waits until it is
// Ready. Call close when done.
func (a *app) open(ctx context.Context) (*store.Store, error) {
	cfg, err := a.config()
	if err != nil {
		return nil, err
	}
	p, err := a.provider(ctx, cfg)
	if err != nil {
		return nil, err
	}

	res, err := a.openBackend(ctx, cfg, a.logger)
	if err != nil {
		return nil, fmt.Errorf("open %s backend: %w", cfg.DataBackend, err)
	}
	a.closers = append(a.closers, res.Cleanup)

	opts := append(cli.StoreOptions(cfg, a.logger), store.WithNotifier(a.notice))
	st := store.New(res.Adapter, opts...)
	a.closers = append(a.closers, st.Close)

	unbind := session.Bind(ctx, p, st, a.logger)
	a.closers = append(a.closers, func() error {
		unbind()
		return nil
	})

	waitCtx, cancel := context.WithTimeout(ctx, openTimeout)
	defer cancel()
	if err := session.WaitReady(waitCtx, st, p.Current()); err != nil {
		a.close()
		return nil, fmt.Errorf("load budget: %w", err)
	}

	for _, n := range a.takeNotices(store.NoticeLoad) {
		fmt.Fprintln(a.errOut, warningStyle.Render("warning: "+n.Message()))
	}
	return st, nil
}

// close releases everything open opened, newest first.
func (a *app) close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}

// withStore runs fn against the opened store.
func (a *app) withStore(ctx context.Context, fn func(st *store.Store) error) (err error) {
	st, err := a.open(ctx)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := a.close(); cerr != nil && err == nil {
			err = cerr
		}
	}()
	return fn(st)
}

// mutate applies fn and waits for the save. A failed save is reported as a
// warning and returned as errNotSaved.
func (a *app) mutate(ctx context.Context, fn func(st *store.Store) error) error {
	return a.withStore(ctx, func(st *store.Store) error {
		if err := fn(st); err != nil {
			return err
		}
		flushCtx, cancel := context.WithTimeout(ctx, a.cfg.SaveTimeout+time.Second)
		defer cancel()
		if err := st.Flush(flushCtx); err != nil {
			fmt.Fprintln(a.errOut, warningStyle.Render("warning: "+err.Error()))
			return fmt.Errorf("%w: %v", errNotSaved, err)
		}
		return nil
	})
}

func (a *app) notice(n store.Notice) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.notices = append(a.notices, n)
}

func (a *app) takeNotices(kind store.NoticeKind) []store.Notice {
	a.mu.Lock()
	defer a.mu.Unlock()
	var out, rest []store.Notice
	for _, n := range a.notices {
		if n.Kind == kind {
			out = append(out, n)
		} else {
			rest = append(rest, n)
		}
	}
	a.notices = rest
	return out
}
