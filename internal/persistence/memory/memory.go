// Package memory is an in-process document service with live change
// notification. It behaves like the remote adapter: one record per signed-in
// identity, every save fanned out to every subscriber of that identity.
package memory

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"sync"
	"time"

	"github.com/Ayushsunny/Budgease/internal/core"
	"github.com/Ayushsunny/Budgease/internal/persistence"
)

type record struct {
	data      []byte
	revision  uint64
	origin    string
	updatedAt time.Time
}

type Store struct {
	mu      sync.Mutex
	records map[string]record
	subs    map[string]map[int]*subscriber
	nextSub int
	closed  bool
}

var (
	_ persistence.Adapter = (*Store)(nil)
	_ persistence.Lister  = (*Store)(nil)
)

func New() *Store {
	return &Store{
		records: make(map[string]record),
		subs:    make(map[string]map[int]*subscriber),
	}
}

// LoadSeed fills the store from a JSON object mapping uid to budget record.
func (s *Store) LoadSeed(path string) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read seed file: %w", err)
	}
	var entries map[string]json.RawMessage
	if err := json.Unmarshal(raw, &entries); err != nil {
		return fmt.Errorf("parse seed file: %w", err)
	}
	now := time.Now().UTC()
	s.mu.Lock()
	defer s.mu.Unlock()
	for uid, data := range entries {
		if _, err := core.DecodeBudget(data); err != nil {
			return fmt.Errorf("seed %q: %w", uid, err)
		}
		s.records[uid] = record{data: []byte(data), updatedAt: now}
	}
	return nil
}

// PutRaw stores bytes as-is, bypassing encoding. Used to simulate records
// written by other clients.
func (s *Store) PutRaw(uid string, data []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records[uid] = record{data: append([]byte(nil), data...), updatedAt: time.Now().UTC()}
}

// Raw returns the stored bytes for uid.
func (s *Store) Raw(uid string) ([]byte, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.records[uid]
	if !ok {
		return nil, false
	}
	return append([]byte(nil), r.data...), true
}

func (s *Store) Load(ctx context.Context, id core.Identity) (persistence.Document, error) {
	if err := ctx.Err(); err != nil {
		return persistence.Document{}, err
	}
	if id.IsAnonymous() {
		return persistence.Document{}, persistence.ErrNotFound
	}
	s.mu.Lock()
	r, ok := s.records[id.UID]
	s.mu.Unlock()
	if !ok {
		return persistence.Document{}, persistence.ErrNotFound
	}
	return r.document()
}

func (s *Store) Save(ctx context.Context, id core.Identity, doc persistence.Document) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if id.IsAnonymous() {
		return nil
	}
	data, err := core.EncodeBudget(doc.Budget)
	if err != nil {
		return fmt.Errorf("encode budget: %w", err)
	}
	updatedAt := doc.UpdatedAt
	if updatedAt.IsZero() {
		updatedAt = time.Now().UTC()
	}
	r := record{data: data, revision: doc.Revision, origin: doc.Origin, updatedAt: updatedAt}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return fmt.Errorf("memory store closed")
	}
	s.records[id.UID] = r
	for _, sub := range s.subs[id.UID] {
		sub.enqueue(r)
	}
	return nil
}

func (s *Store) Subscribe(ctx context.Context, id core.Identity, onChange func(persistence.Document)) (persistence.Unsubscribe, error) {
	if id.IsAnonymous() {
		return persistence.NopUnsubscribe, nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, fmt.Errorf("memory store closed")
	}
	s.nextSub++
	key := s.nextSub
	sub := newSubscriber(onChange)
	if s.subs[id.UID] == nil {
		s.subs[id.UID] = make(map[int]*subscriber)
	}
	s.subs[id.UID][key] = sub
	go sub.run()

	return persistence.OnceUnsubscribe(func() {
		s.mu.Lock()
		delete(s.subs[id.UID], key)
		if len(s.subs[id.UID]) == 0 {
			delete(s.subs, id.UID)
		}
		s.mu.Unlock()
		sub.stop()
	}), nil
}

// ListIdentities returns every stored uid in sorted order.
func (s *Store) ListIdentities(ctx context.Context) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	keys := make([]string, 0, len(s.records))
	for uid := range s.records {
		keys = append(keys, uid)
	}
	sort.Strings(keys)
	return keys, ctx.Err()
}

// Subscribers reports how many live subscriptions exist for uid.
func (s *Store) Subscribers(uid string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.subs[uid])
}

// Close stops every subscription pump.
func (s *Store) Close() error {
	s.mu.Lock()
	s.closed = true
	var all []*subscriber
	for _, m := range s.subs {
		for _, sub := range m {
			all = append(all, sub)
		}
	}
	s.subs = make(map[string]map[int]*subscriber)
	s.mu.Unlock()

	for _, sub := range all {
		sub.stop()
	}
	return nil
}

func (r record) document() (persistence.Document, error) {
	b, err := core.DecodeBudget(r.data)
	if err != nil {
		return persistence.Document{}, err
	}
	return persistence.Document{
		Budget:    b,
		Revision:  r.revision,
		Origin:    r.origin,
		UpdatedAt: r.updatedAt,
	}, nil
}

// subscriberQueue bounds the records waiting for a slow subscriber. When it
// is full the oldest is dropped; every record is a full snapshot, so the
// newest one still reaches the listener.
const subscriberQueue = 64

// subscriber delivers records in save order on its own goroutine, the way a
// remote listener receives snapshots asynchronously.
type subscriber struct {
	onChange func(persistence.Document)

	mu      sync.Mutex
	cond    *sync.Cond
	queue   []record
	stopped bool
	done    chan struct{}
}

func newSubscriber(onChange func(persistence.Document)) *subscriber {
	sub := &subscriber{onChange: onChange, done: make(chan struct{})}
	sub.cond = sync.NewCond(&sub.mu)
	return sub
}

func (sub *subscriber) enqueue(r record) {
	sub.mu.Lock()
	if len(sub.queue) >= subscriberQueue {
		sub.queue = sub.queue[1:]
	}
	sub.queue = append(sub.queue, r)
	sub.mu.Unlock()
	sub.cond.Signal()
}

func (sub *subscriber) run() {
	defer close(sub.done)
	for {
		sub.mu.Lock()
		for len(sub.queue) == 0 && !sub.stopped {
			sub.cond.Wait()
		}
		if sub.stopped {
			sub.mu.Unlock()
			return
		}
		r := sub.queue[0]
		sub.queue = sub.queue[1:]
		sub.mu.Unlock()

		// Records were encoded by Save, so decoding only fails on PutRaw data,
		// which is never fanned out.
		if doc, err := r.document(); err == nil {
			sub.onChange(doc)
		}
	}
}

// stop waits for an in-flight callback to return. It must not be called from
// inside onChange.
func (sub *subscriber) stop() {
	sub.mu.Lock()
	sub.stopped = true
	sub.mu.Unlock()
	sub.cond.Broadcast()
	<-sub.done
}
