package store

import (
	"sync"

	"github.com/google/uuid"
)

const changeBufferSize = 256

type subscriber struct {
	cols map[Collection]struct{}
	ch   chan Change
}

// hub fans committed changes out to subscribers. Sends never block: a
// subscriber that stops draining its channel loses changes rather than
// stalling commits.
type hub struct {
	mu   sync.RWMutex
	subs map[ObserverToken]*subscriber
}

func newHub() *hub {
	return &hub{subs: make(map[ObserverToken]*subscriber)}
}

func (h *hub) subscribe(cols ...Collection) (ObserverToken, <-chan Change) {
	sub := &subscriber{
		cols: make(map[Collection]struct{}, len(cols)),
		ch:   make(chan Change, changeBufferSize),
	}
	for _, c := range cols {
		sub.cols[c] = struct{}{}
	}

	token := ObserverToken(uuid.NewString())
	h.mu.Lock()
	h.subs[token] = sub
	h.mu.Unlock()
	return token, sub.ch
}

func (h *hub) unsubscribe(token ObserverToken) {
	h.mu.Lock()
	sub, ok := h.subs[token]
	if ok {
		delete(h.subs, token)
	}
	h.mu.Unlock()
	if ok {
		close(sub.ch)
	}
}

func (h *hub) publish(changes []Change, suppressed map[ObserverToken]struct{}) {
	if len(changes) == 0 {
		return
	}
	h.mu.RLock()
	defer h.mu.RUnlock()

	for token, sub := range h.subs {
		if _, skip := suppressed[token]; skip {
			continue
		}
		for _, change := range changes {
			if len(sub.cols) > 0 {
				if _, want := sub.cols[change.Collection]; !want {
					continue
				}
			}
			select {
			case sub.ch <- change:
			default:
			}
		}
	}
}
