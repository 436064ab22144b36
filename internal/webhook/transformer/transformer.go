// Package transformer holds the payload encoders of the webhook receiver
// families. Implementations register themselves from init(), in the same way
// database/sql drivers do, and are looked up by key at delivery time.
package transformer

import (
	"fmt"
	"sort"
	"sync"

	"github.com/qiniu/alarmhook/internal/alarm"
)

const ContentTypeJSON = "application/json"

// Payload is a wire-ready request body.
type Payload struct {
	Body        []byte
	ContentType string
}

// Transformer converts a batch of alarm events into the request body expected
// by one receiver family. Transform must be deterministic and free of side
// effects; it must not retain events.
type Transformer interface {
	Key() string
	Transform(events []alarm.Event) (Payload, error)
}

// UnknownKindError is returned by Lookup when no transformer is registered
// under Key.
type UnknownKindError struct {
	Key string
}

func (e *UnknownKindError) Error() string {
	return fmt.Sprintf("no payload transformer registered for key %q", e.Key)
}

// Registry maps keys to transformers. It is written during process start and
// read-only afterwards.
type Registry struct {
	mu           sync.RWMutex
	transformers map[string]Transformer
}

func NewRegistry(ts ...Transformer) *Registry {
	r := &Registry{transformers: make(map[string]Transformer)}
	for _, t := range ts {
		r.Register(t)
	}
	return r
}

// Register makes t available under t.Key(). It panics if t is nil or the key
// is already taken.
func (r *Registry) Register(t Transformer) {
	if t == nil {
		panic("transformer: Register transformer is nil")
	}
	key := t.Key()
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, dup := r.transformers[key]; dup {
		panic("transformer: Register called twice for key " + key)
	}
	r.transformers[key] = t
}

func (r *Registry) Lookup(key string) (Transformer, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.transformers[key]
	if !ok {
		return nil, &UnknownKindError{Key: key}
	}
	return t, nil
}

// Keys returns the registered keys, sorted.
func (r *Registry) Keys() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	keys := make([]string, 0, len(r.transformers))
	for k := range r.transformers {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

var defaultRegistry = NewRegistry()

// Default returns the process-wide registry.
func Default() *Registry { return defaultRegistry }

func Register(t Transformer) { defaultRegistry.Register(t) }

func Lookup(key string) (Transformer, error) { return defaultRegistry.Lookup(key) }

func Keys() []string { return defaultRegistry.Keys() }
