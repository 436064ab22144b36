package alarm

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"
)

// Scope is the kind of entity an alarm is raised for.
type Scope string

const (
	ScopeAll                     Scope = "ALL"
	ScopeService                 Scope = "SERVICE"
	ScopeServiceInstance         Scope = "SERVICE_INSTANCE"
	ScopeEndpoint                Scope = "ENDPOINT"
	ScopeDatabase                Scope = "DATABASE"
	ScopeServiceRelation         Scope = "SERVICE_RELATION"
	ScopeServiceInstanceRelation Scope = "SERVICE_INSTANCE_RELATION"
	ScopeEndpointRelation        Scope = "ENDPOINT_RELATION"
)

// scopeIDs mirrors the numeric scope ids used by the monitoring backend.
var scopeIDs = map[Scope]int{
	ScopeAll:                     0,
	ScopeService:                 1,
	ScopeServiceInstance:         2,
	ScopeEndpoint:                3,
	ScopeDatabase:                4,
	ScopeServiceRelation:         5,
	ScopeServiceInstanceRelation: 6,
	ScopeEndpointRelation:        7,
}

// ParseScope accepts the scope name in any case.
func ParseScope(s string) (Scope, error) {
	sc := Scope(strings.ToUpper(strings.TrimSpace(s)))
	if _, ok := scopeIDs[sc]; !ok {
		return "", fmt.Errorf("unknown alarm scope %q", s)
	}
	return sc, nil
}

// ID returns the numeric id of the scope, or -1 when unknown.
func (s Scope) ID() int {
	if id, ok := scopeIDs[s]; ok {
		return id
	}
	return -1
}

func (s Scope) Valid() bool { return s.ID() >= 0 }

func (s *Scope) UnmarshalJSON(data []byte) error {
	var raw string
	if err := json.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("alarm scope must be a string: %w", err)
	}
	sc, err := ParseScope(raw)
	if err != nil {
		return err
	}
	*s = sc
	return nil
}

// Event is one fired alarm. It is produced by the rule engine and treated as
// read-only by every Callback.
type Event struct {
	ID        string            `json:"id,omitempty"`
	Scope     Scope             `json:"scope"`
	Name      string            `json:"name,omitempty"`
	ID0       string            `json:"id0,omitempty"`
	ID1       string            `json:"id1,omitempty"`
	RuleName  string            `json:"ruleName,omitempty"`
	Message   string            `json:"message"`
	StartTime time.Time         `json:"startTime,omitempty"`
	Tags      map[string]string `json:"tags,omitempty"`
}

// TagException is the tag consulted by the ignore list.
const TagException = "exception"

// Fingerprint identifies an event for idempotency checks. An explicit ID wins;
// otherwise every identifying field, including message and tags, is hashed.
func (e Event) Fingerprint() string {
	if e.ID != "" {
		return e.ID
	}
	h := sha256.New()
	for _, f := range []string{
		string(e.Scope), e.Name, e.ID0, e.ID1, e.RuleName, e.Message,
		e.StartTime.UTC().Format(time.RFC3339Nano),
	} {
		h.Write([]byte(f))
		h.Write([]byte{0})
	}
	keys := make([]string, 0, len(e.Tags))
	for k := range e.Tags {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		h.Write([]byte(k))
		h.Write([]byte{'='})
		h.Write([]byte(e.Tags[k]))
		h.Write([]byte{0})
	}
	return hex.EncodeToString(h.Sum(nil))
}

// Identifiable reports whether a repeat of e can be told apart from a new
// alarm: it needs an ID or a start time.
func (e Event) Identifiable() bool {
	return e.ID != "" || !e.StartTime.IsZero()
}

// Callback is a delivery channel for fired alarms. Deliver blocks until the
// channel has attempted delivery and never panics or fails the caller; the
// outcome is only observable through logs and metrics.
type Callback interface {
	Deliver(ctx context.Context, events []Event)
}

// CallbackFunc adapts a function to Callback.
type CallbackFunc func(ctx context.Context, events []Event)

func (f CallbackFunc) Deliver(ctx context.Context, events []Event) { f(ctx, events) }
