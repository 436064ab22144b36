package alarm

import (
	"context"
	"fmt"
	"sync"

	"github.com/qiniu/alarmhook/internal/alarm/ignorelist"
	"github.com/rs/zerolog/log"
)

// Hub holds the registered delivery channels and hands every fired batch to
// each of them in registration order.
type Hub struct {
	mu        sync.RWMutex
	callbacks []namedCallback
	ignore    *ignorelist.List
}

type namedCallback struct {
	name string
	cb   Callback
}

func NewHub(ignore *ignorelist.List) *Hub {
	return &Hub{ignore: ignore}
}

// Register adds a delivery channel. name is only used in logs.
func (h *Hub) Register(name string, cb Callback) {
	if cb == nil {
		return
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	h.callbacks = append(h.callbacks, namedCallback{name: name, cb: cb})
	log.Info().Str("callback", name).Msg("alarm callback registered")
}

func (h *Hub) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.callbacks)
}

// Notify delivers events to every registered callback. Events whose exception
// tag is on the ignore list are dropped first. A panicking callback is logged
// and does not prevent the others from running.
func (h *Hub) Notify(ctx context.Context, events []Event) {
	events = h.filter(events)
	if len(events) == 0 {
		return
	}

	h.mu.RLock()
	callbacks := make([]namedCallback, len(h.callbacks))
	copy(callbacks, h.callbacks)
	h.mu.RUnlock()

	for _, c := range callbacks {
		h.deliver(ctx, c, events)
	}
}

func (h *Hub) deliver(ctx context.Context, c namedCallback, events []Event) {
	defer func() {
		if r := recover(); r != nil {
			log.Error().Err(fmt.Errorf("%v", r)).Str("callback", c.name).Msg("alarm callback panicked")
		}
	}()
	c.cb.Deliver(ctx, events)
}

func (h *Hub) filter(events []Event) []Event {
	if h.ignore.Len() == 0 {
		return events
	}
	out := make([]Event, 0, len(events))
	for _, e := range events {
		if ex := e.Tags[TagException]; h.ignore.Contains(ex) {
			log.Debug().Str("rule", e.RuleName).Str("exception", ex).Msg("alarm ignored by exception list")
			continue
		}
		out = append(out, e)
	}
	return out
}

// Start consumes batches from ch until ctx is done or ch is closed.
func (h *Hub) Start(ctx context.Context, ch <-chan []Event) {
	if ch == nil {
		log.Warn().Msg("alarm hub started without channel; no-op")
		return
	}
	for {
		select {
		case <-ctx.Done():
			return
		case batch, ok := <-ch:
			if !ok {
				return
			}
			h.Notify(ctx, batch)
		}
	}
}

// LogCallback writes every event to the log. It is useful as a fallback
// channel when no webhook is configured.
type LogCallback struct{}

func (LogCallback) Deliver(_ context.Context, events []Event) {
	for _, e := range events {
		log.Warn().
			Str("scope", string(e.Scope)).
			Str("name", e.Name).
			Str("rule", e.RuleName).
			Time("start_time", e.StartTime).
			Msg(e.Message)
	}
}
