package repository

import (
	"strings"
	"sync"
)

// EventKind classifies a tree mutation.
type EventKind string

const (
	Created  EventKind = "created"
	Modified EventKind = "modified"
	Deleted  EventKind = "deleted"
)

// Event describes one accepted mutation.
type Event struct {
	Path    string
	Version int64
	Kind    EventKind
}

// Watch is a live prefix subscription. Events arrive on C in publication
// order; the channel is closed by Cancel or when the hub shuts down.
type Watch struct {
	C      <-chan Event
	cancel func()
}

// Cancel detaches the subscription and closes C.
func (w *Watch) Cancel() {
	if w.cancel != nil {
		w.cancel()
	}
}

// hub fans mutation events out to prefix subscribers. Each subscriber gets a
// dedicated pump goroutine draining an unbounded queue, so publishing never
// blocks the mutating caller and delivery stays at-least-once for currently
// registered watches.
type hub struct {
	mu     sync.Mutex
	nextID int
	subs   map[int]*subscription
	closed bool
}

type subscription struct {
	prefix string
	out    chan Event
	done   chan struct{}

	mu      sync.Mutex
	cond    *sync.Cond
	queue   []Event
	stopped bool
}

func newHub() *hub {
	return &hub{subs: make(map[int]*subscription)}
}

func (h *hub) subscribe(prefix string) *Watch {
	sub := &subscription{
		prefix: normalizePrefix(prefix),
		out:    make(chan Event, 16),
		done:   make(chan struct{}),
	}
	sub.cond = sync.NewCond(&sub.mu)
	go sub.pump()

	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		sub.stop()
		return &Watch{C: sub.out, cancel: func() {}}
	}
	id := h.nextID
	h.nextID++
	h.subs[id] = sub

	return &Watch{C: sub.out, cancel: func() {
		h.mu.Lock()
		if _, ok := h.subs[id]; ok {
			delete(h.subs, id)
		}
		h.mu.Unlock()
		sub.stop()
	}}
}

// publish dispatches ev to every matching subscriber. Callers must not hold
// the store's write lock.
func (h *hub) publish(ev Event) {
	h.mu.Lock()
	subs := make([]*subscription, 0, len(h.subs))
	for _, sub := range h.subs {
		if sub.matches(ev.Path) {
			subs = append(subs, sub)
		}
	}
	h.mu.Unlock()

	for _, sub := range subs {
		sub.enqueue(ev)
	}
}

func (h *hub) close() {
	h.mu.Lock()
	h.closed = true
	subs := make([]*subscription, 0, len(h.subs))
	for id, sub := range h.subs {
		subs = append(subs, sub)
		delete(h.subs, id)
	}
	h.mu.Unlock()
	for _, sub := range subs {
		sub.stop()
	}
}

func (s *subscription) matches(path string) bool {
	if s.prefix == "" {
		return true
	}
	return path == s.prefix || strings.HasPrefix(path, s.prefix+"/")
}

func (s *subscription) enqueue(ev Event) {
	s.mu.Lock()
	if !s.stopped {
		s.queue = append(s.queue, ev)
		s.cond.Signal()
	}
	s.mu.Unlock()
}

func (s *subscription) stop() {
	s.mu.Lock()
	if !s.stopped {
		s.stopped = true
		close(s.done)
		s.cond.Signal()
	}
	s.mu.Unlock()
}

func (s *subscription) pump() {
	defer close(s.out)
	for {
		s.mu.Lock()
		for len(s.queue) == 0 && !s.stopped {
			s.cond.Wait()
		}
		if s.stopped && len(s.queue) == 0 {
			s.mu.Unlock()
			return
		}
		ev := s.queue[0]
		s.queue = s.queue[1:]
		s.mu.Unlock()
		select {
		case s.out <- ev:
		case <-s.done:
			return
		}
	}
}

func normalizePrefix(prefix string) string {
	return strings.Trim(strings.TrimSpace(prefix), "/")
}
