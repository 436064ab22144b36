package alarm

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/qiniu/alarmhook/internal/alarm/ignorelist"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recorder struct {
	mu      sync.Mutex
	batches [][]Event
}

func (r *recorder) Deliver(_ context.Context, events []Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.batches = append(r.batches, events)
}

func (r *recorder) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.batches)
}

func TestHub_NotifyAllCallbacks(t *testing.T) {
	h := NewHub(nil)
	a, b := &recorder{}, &recorder{}
	h.Register("a", a)
	h.Register("b", b)
	h.Register("nil", nil)
	require.Equal(t, 2, h.Len())

	events := []Event{{Scope: ScopeAll, Message: "m1"}, {Scope: ScopeEndpoint, Message: "m2"}}
	h.Notify(context.Background(), events)

	require.Len(t, a.batches, 1)
	require.Len(t, b.batches, 1)
	assert.Equal(t, events, a.batches[0])
}

func TestHub_PanickingCallbackDoesNotStopOthers(t *testing.T) {
	h := NewHub(nil)
	after := &recorder{}
	h.Register("boom", CallbackFunc(func(context.Context, []Event) { panic("boom") }))
	h.Register("after", after)

	assert.NotPanics(t, func() {
		h.Notify(context.Background(), []Event{{Scope: ScopeService, Message: "x"}})
	})
	assert.Equal(t, 1, after.count())
}

func TestHub_IgnoreList(t *testing.T) {
	h := NewHub(ignorelist.New("java.lang.IllegalStateException"))
	r := &recorder{}
	h.Register("r", r)

	h.Notify(context.Background(), []Event{
		{Scope: ScopeService, Message: "ignored", Tags: map[string]string{TagException: "java.lang.IllegalStateException"}},
		{Scope: ScopeService, Message: "kept"},
	})
	require.Len(t, r.batches, 1)
	require.Len(t, r.batches[0], 1)
	assert.Equal(t, "kept", r.batches[0][0].Message)

	// a batch that is fully ignored reaches no callback
	h.Notify(context.Background(), []Event{
		{Scope: ScopeService, Tags: map[string]string{TagException: "java.lang.IllegalStateException"}},
	})
	assert.Equal(t, 1, r.count())
}

func TestHub_Start(t *testing.T) {
	h := NewHub(nil)
	r := &recorder{}
	h.Register("r", r)

	ch := make(chan []Event, 2)
	ch <- []Event{{Scope: ScopeAll, Message: "a"}}
	ch <- []Event{{Scope: ScopeAll, Message: "b"}}
	close(ch)

	done := make(chan struct{})
	go func() {
		h.Start(context.Background(), ch)
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("hub did not stop after channel close")
	}
	assert.Equal(t, 2, r.count())
}

func TestScope(t *testing.T) {
	tests := []struct {
		in      string
		want    Scope
		wantErr bool
	}{
		{"ALL", ScopeAll, false},
		{"endpoint", ScopeEndpoint, false},
		{" service_instance ", ScopeServiceInstance, false},
		{"galaxy", "", true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseScope(tt.in)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
	assert.Equal(t, 3, ScopeEndpoint.ID())
	assert.Equal(t, -1, Scope("nope").ID())
}

func TestEvent_UnmarshalScope(t *testing.T) {
	var e Event
	require.NoError(t, json.Unmarshal([]byte(`{"scope":"endpoint","message":"m"}`), &e))
	assert.Equal(t, ScopeEndpoint, e.Scope)
	assert.Error(t, json.Unmarshal([]byte(`{"scope":"moon"}`), &e))
}

func TestEvent_Fingerprint(t *testing.T) {
	ts := time.Unix(0, 123).UTC()
	base := Event{Scope: ScopeService, Name: "svc", RuleName: "rule", Message: "m1", StartTime: ts}
	fp := base.Fingerprint()
	assert.Len(t, fp, 64)
	assert.Equal(t, fp, base.Fingerprint(), "stable")

	other := base
	other.Message = "disk full on host-7"
	assert.NotEqual(t, fp, other.Fingerprint())

	tagged := base
	tagged.Tags = map[string]string{"b": "2", "a": "1"}
	retagged := base
	retagged.Tags = map[string]string{"a": "1", "b": "2"}
	assert.NotEqual(t, fp, tagged.Fingerprint())
	assert.Equal(t, tagged.Fingerprint(), retagged.Fingerprint())

	// field boundaries matter
	shifted := base
	shifted.Name, shifted.ID0 = "sv", "c"
	assert.NotEqual(t, fp, shifted.Fingerprint())

	base.ID = "explicit"
	assert.Equal(t, "explicit", base.Fingerprint())
}

func TestEvent_Identifiable(t *testing.T) {
	assert.False(t, Event{Scope: ScopeAll, Message: "m"}.Identifiable())
	assert.True(t, Event{ID: "x"}.Identifiable())
	assert.True(t, Event{StartTime: time.Unix(1, 0)}.Identifiable())
}
