package api

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/qiniu/alarmhook/internal/alarm"
	"github.com/qiniu/alarmhook/internal/webhook"
	"github.com/qiniu/alarmhook/internal/webhook/transformer"
	"github.com/rs/zerolog/log"
)

// TargetLister exposes the webhook configuration currently in use.
type TargetLister interface {
	Targets() webhook.Targets
}

type Handler struct {
	queue   chan<- []alarm.Event
	cache   IdempotencyCache
	targets TargetLister
	keys    func() []string
	now     func() time.Time
}

// NewHandler uses a NoopCache.
func NewHandler(queue chan<- []alarm.Event, targets TargetLister) *Handler {
	return NewHandlerWithCache(queue, targets, NoopCache{})
}

func NewHandlerWithCache(queue chan<- []alarm.Event, targets TargetLister, cache IdempotencyCache) *Handler {
	if cache == nil {
		cache = NoopCache{}
	}
	return &Handler{
		queue:   queue,
		cache:   cache,
		targets: targets,
		keys:    transformer.Keys,
		now:     time.Now,
	}
}

type alarmsEnvelope struct {
	Alarms []alarm.Event `json:"alarms"`
}

var errEmptyBatch = errors.New("no alarms in request")

func decodeAlarms(body []byte) ([]alarm.Event, error) {
	body = bytes.TrimSpace(body)
	if len(body) == 0 {
		return nil, errEmptyBatch
	}
	var events []alarm.Event
	if body[0] == '[' {
		if err := json.Unmarshal(body, &events); err != nil {
			return nil, err
		}
	} else {
		var env alarmsEnvelope
		if err := json.Unmarshal(body, &env); err != nil {
			return nil, err
		}
		events = env.Alarms
	}
	if len(events) == 0 {
		return nil, errEmptyBatch
	}
	for i, e := range events {
		if !e.Scope.Valid() {
			return nil, fmt.Errorf("alarm %d: missing or unknown scope", i)
		}
	}
	return events, nil
}

// PostAlarms accepts a batch from the rule engine and queues it for delivery.
func (h *Handler) PostAlarms(c *gin.Context) {
	body, err := c.GetRawData()
	if err != nil {
		log.Error().Err(err).Msg("PostAlarms: failed to read request body")
		c.JSON(http.StatusBadRequest, map[string]any{"ok": false, "error": "unreadable body"})
		return
	}
	events, err := decodeAlarms(body)
	if err != nil {
		log.Warn().Err(err).Msg("PostAlarms: invalid request")
		c.JSON(http.StatusBadRequest, map[string]any{"ok": false, "error": err.Error()})
		return
	}

	ctx := c.Request.Context()
	fresh := make([]alarm.Event, 0, len(events))
	marked := make([]string, 0, len(events))
	for _, e := range events {
		// an event without id or start time cannot be told apart from a new
		// occurrence, so it is never deduplicated
		if e.Identifiable() {
			key := e.Fingerprint()
			ok, err := h.cache.TryMark(ctx, key)
			if err != nil {
				log.Warn().Err(err).Str("idempotency_key", key).Msg("PostAlarms: idempotency cache unavailable")
			}
			if !ok {
				log.Debug().Str("idempotency_key", key).Msg("PostAlarms: alarm already accepted")
				continue
			}
			if err == nil {
				marked = append(marked, key)
			}
		}
		if e.ID == "" {
			e.ID = uuid.NewString()
		}
		if e.StartTime.IsZero() {
			e.StartTime = h.now()
		}
		fresh = append(fresh, e)
	}
	duplicates := len(events) - len(fresh)

	if len(fresh) == 0 {
		c.JSON(http.StatusOK, map[string]any{"ok": true, "accepted": 0, "duplicates": duplicates})
		return
	}

	select {
	case h.queue <- fresh:
	default:
		if err := h.cache.Release(ctx, marked...); err != nil {
			log.Error().Err(err).Msg("PostAlarms: failed to release idempotency keys")
		}
		log.Error().Int("alarms", len(fresh)).Msg("PostAlarms: delivery queue full, rejecting batch")
		c.JSON(http.StatusServiceUnavailable, map[string]any{"ok": false, "error": "delivery queue full"})
		return
	}

	log.Info().Int("accepted", len(fresh)).Int("duplicates", duplicates).Msg("PostAlarms: batch queued")
	c.JSON(http.StatusAccepted, map[string]any{"ok": true, "accepted": len(fresh), "duplicates": duplicates})
}

func (h *Handler) ListTargets(c *gin.Context) {
	var targets webhook.Targets
	if h.targets != nil {
		targets = h.targets.Targets()
	}
	if targets == nil {
		targets = webhook.Targets{}
	}
	c.JSON(http.StatusOK, map[string]any{"groups": targets, "urls": targets.Len()})
}

func (h *Handler) ListTransformers(c *gin.Context) {
	c.JSON(http.StatusOK, map[string]any{"transformers": h.keys()})
}

func (h *Handler) Healthy(c *gin.Context) {
	c.String(http.StatusOK, "OK")
}
