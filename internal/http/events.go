package http

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/Ayushsunny/Budgease/internal/core"
	"github.com/Ayushsunny/Budgease/internal/log"
	"github.com/Ayushsunny/Budgease/internal/store"
)

// NoticeHub routes store notices to the event streams of the identity they
// concern. Pass Publish to store.WithNotifier for every managed store.
type NoticeHub struct {
	mu   sync.Mutex
	subs map[string]map[int]func(store.Notice)
	next int
}

func NewNoticeHub() *NoticeHub {
	return &NoticeHub{subs: make(map[string]map[int]func(store.Notice))}
}

// Publish delivers n to every subscriber of n.Identity. Subscribers must
// not block.
func (h *NoticeHub) Publish(n store.Notice) {
	key := n.Identity.Key()
	h.mu.Lock()
	fns := make([]func(store.Notice), 0, len(h.subs[key]))
	for _, fn := range h.subs[key] {
		fns = append(fns, fn)
	}
	h.mu.Unlock()

	for _, fn := range fns {
		fn(n)
	}
}

// Subscribe registers fn for notices of the identity key.
func (h *NoticeHub) Subscribe(key string, fn func(store.Notice)) (cancel func()) {
	h.mu.Lock()
	h.next++
	id := h.next
	if h.subs[key] == nil {
		h.subs[key] = make(map[int]func(store.Notice))
	}
	h.subs[key][id] = fn
	h.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			h.mu.Lock()
			delete(h.subs[key], id)
			if len(h.subs[key]) == 0 {
				delete(h.subs, key)
			}
			h.mu.Unlock()
		})
	}
}

// Subscribers reports how many streams listen for key.
func (h *NoticeHub) Subscribers(key string) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subs[key])
}

// budgetView is the payload of GET /api/budget and of every budget event.
type budgetView struct {
	Budget   core.Budget  `json:"budget"`
	Summary  core.Summary `json:"summary"`
	Revision uint64       `json:"revision"`
	State    string       `json:"state"`
}

func viewOf(st *store.Store, b core.Budget) budgetView {
	return budgetView{
		Budget:   b,
		Summary:  core.Summarize(b),
		Revision: st.Revision(),
		State:    st.State().String(),
	}
}

type warningEvent struct {
	Kind    string    `json:"kind"`
	Op      string    `json:"op,omitempty"`
	Message string    `json:"message"`
	At      time.Time `json:"at"`
}

func writeEvent(w io.Writer, event string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(w, "event: %s\ndata: %s\n\n", event, data)
	return err
}

// handleEvents streams a budget event for the current snapshot and for
// every change after it. Bursts coalesce into the newest snapshot.
// Persistence problems of this identity arrive as warning events.
func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request, st *store.Store, id core.Identity) {
	ctx := r.Context()
	logger := log.FromContext(ctx)
	rc := http.NewResponseController(w)

	h := w.Header()
	h.Set("Content-Type", "text/event-stream")
	h.Set("Cache-Control", "no-cache")
	h.Set("Connection", "keep-alive")
	h.Set("X-Accel-Buffering", "no")
	_ = rc.SetWriteDeadline(time.Time{})
	w.WriteHeader(http.StatusOK)
	if err := rc.Flush(); err != nil {
		logger.ErrorContext(ctx, "Event stream not supported", log.FieldError, err)
		return
	}

	var (
		mu      sync.Mutex
		latest  core.Budget
		changed = make(chan struct{}, 1)
		notices = make(chan store.Notice, 16)
	)
	cancelObserve := st.Observe(func(b core.Budget) {
		mu.Lock()
		latest = b
		mu.Unlock()
		select {
		case changed <- struct{}{}:
		default:
		}
	})
	defer cancelObserve()
	cancelNotices := s.notices.Subscribe(id.Key(), func(n store.Notice) {
		select {
		case notices <- n:
		default:
		}
	})
	defer cancelNotices()

	s.metrics.streamOpened()
	defer s.metrics.streamClosed()
	logger.DebugContext(ctx, "Event stream opened", log.FieldIdentity, id.Key())

	ticker := time.NewTicker(s.heartbeat)
	defer ticker.Stop()

	for {
		var err error
		select {
		case <-ctx.Done():
			logger.DebugContext(ctx, "Event stream closed", log.FieldIdentity, id.Key())
			return
		case <-changed:
			mu.Lock()
			b := latest
			mu.Unlock()
			err = writeEvent(w, "budget", viewOf(st, b))
		case n := <-notices:
			err = writeEvent(w, "warning", warningEvent{
				Kind:    n.Kind.String(),
				Op:      n.Op,
				Message: n.Message(),
				At:      n.At,
			})
		case <-ticker.C:
			_, err = io.WriteString(w, ": ping\n\n")
		}
		if err == nil {
			err = rc.Flush()
		}
		if err != nil {
			logger.DebugContext(ctx, "Event stream write failed", log.FieldError, err)
			return
		}
	}
}
