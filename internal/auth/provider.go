// Package auth turns bearer tokens into identities and tells listeners when
// the signed-in identity changes.
package auth

import (
	"context"
	"sync"
	"time"

	"github.com/Ayushsunny/Budgease/internal/core"
	"github.com/Ayushsunny/Budgease/internal/log"
)

// Provider is the identity source a session binds a store to.
type Provider interface {
	SignIn(ctx context.Context, credential string) (core.Identity, error)
	SignOut(ctx context.Context) error
	// OnIdentityChange calls fn with the current identity right away and
	// again after every change.
	OnIdentityChange(fn func(core.Identity)) (unsubscribe func())
	Current() core.Identity
}

// JWTProvider signs in with HS256 tokens issued by IssueToken.
type JWTProvider struct {
	secret string
	ttl    time.Duration
	now    func() time.Time
	logger *log.Logger

	// emitMu keeps listener calls in change order.
	emitMu    sync.Mutex
	mu        sync.Mutex
	current   core.Identity
	listeners map[int]func(core.Identity)
	nextID    int
}

var _ Provider = (*JWTProvider)(nil)

func NewJWTProvider(secret string, ttl time.Duration, logger *log.Logger) *JWTProvider {
	if logger == nil {
		logger = log.Nop()
	}
	return &JWTProvider{
		secret:    secret,
		ttl:       ttl,
		now:       time.Now,
		logger:    logger.WithComponent(log.ComponentAuth),
		listeners: make(map[int]func(core.Identity)),
	}
}

// IssueToken signs a token for identity with the provider's ttl.
func (p *JWTProvider) IssueToken(identity core.Identity) (string, error) {
	return IssueToken(p.secret, identity, p.ttl, p.now())
}

// Verify checks token and returns the identity it was issued for.
func (p *JWTProvider) Verify(token string) (core.Identity, error) {
	claims, err := ParseToken(p.secret, token, p.now())
	if err != nil {
		return core.Identity{}, err
	}
	return claims.Identity(), nil
}

func (p *JWTProvider) SignIn(ctx context.Context, credential string) (core.Identity, error) {
	identity, err := p.Verify(credential)
	if err != nil {
		p.logger.WarnContext(ctx, "Sign-in rejected", log.FieldError, err)
		return core.Identity{}, err
	}
	p.set(identity)
	p.logger.InfoContext(ctx, "Signed in", log.FieldIdentity, identity.UID)
	return identity, nil
}

func (p *JWTProvider) SignOut(ctx context.Context) error {
	p.set(core.Identity{})
	p.logger.InfoContext(ctx, "Signed out")
	return nil
}

func (p *JWTProvider) Current() core.Identity {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.current
}

func (p *JWTProvider) OnIdentityChange(fn func(core.Identity)) func() {
	p.emitMu.Lock()
	defer p.emitMu.Unlock()

	p.mu.Lock()
	p.nextID++
	id := p.nextID
	p.listeners[id] = fn
	current := p.current
	p.mu.Unlock()

	fn(current)

	var once sync.Once
	return func() {
		once.Do(func() {
			p.mu.Lock()
			delete(p.listeners, id)
			p.mu.Unlock()
		})
	}
}

// set records identity and tells listeners in registration order. Signing in
// again as the same identity is not a change.
func (p *JWTProvider) set(identity core.Identity) {
	p.emitMu.Lock()
	defer p.emitMu.Unlock()

	p.mu.Lock()
	if p.current == identity {
		p.mu.Unlock()
		return
	}
	p.current = identity
	fns := make([]func(core.Identity), 0, len(p.listeners))
	for k := 1; k <= p.nextID; k++ {
		if fn, ok := p.listeners[k]; ok {
			fns = append(fns, fn)
		}
	}
	p.mu.Unlock()

	for _, fn := range fns {
		fn(identity)
	}
}
