// Package mockreceiver is a webhook sink for local runs and end-to-end tests.
// It records every POST it receives and can be told to fail or stall chosen
// hooks.
package mockreceiver

import (
	"net/http"
	"sync"
	"time"

	"github.com/fox-gonic/fox"
	"github.com/rs/zerolog/log"
)

// Record is one received webhook call.
type Record struct {
	Hook        string    `json:"hook"`
	ContentType string    `json:"contentType"`
	Accept      string    `json:"accept"`
	Body        string    `json:"body"`
	ReceivedAt  time.Time `json:"receivedAt"`
}

// Behavior controls how a hook answers.
type Behavior struct {
	Status int           `json:"status"`
	Delay  time.Duration `json:"delay"`
}

type Receiver struct {
	mu       sync.Mutex
	records  []Record
	behavior map[string]Behavior
}

func New() *Receiver {
	return &Receiver{behavior: map[string]Behavior{}}
}

// SetBehavior makes hook answer with b. A zero status means 200.
func (r *Receiver) SetBehavior(hook string, b Behavior) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.behavior[hook] = b
}

// Records returns a copy of everything received so far.
func (r *Receiver) Records() []Record {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Record, len(r.records))
	copy(out, r.records)
	return out
}

func (r *Receiver) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.records = nil
}

// Register mounts the receiver routes on router.
func (r *Receiver) Register(router *fox.Engine) {
	router.GET("/-/healthy", r.healthy)
	router.POST("/hooks/:hook", r.receive)
	router.PUT("/-/behavior/:hook", r.putBehavior)
	router.GET("/-/received", r.received)
	router.DELETE("/-/received", r.reset)
}

func (r *Receiver) receive(c *fox.Context) {
	hook := c.Param("hook")
	body, err := c.GetRawData()
	if err != nil {
		c.JSON(http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}

	r.mu.Lock()
	r.records = append(r.records, Record{
		Hook:        hook,
		ContentType: c.Request.Header.Get("Content-Type"),
		Accept:      c.Request.Header.Get("Accept"),
		Body:        string(body),
		ReceivedAt:  time.Now(),
	})
	b := r.behavior[hook]
	r.mu.Unlock()

	log.Info().Str("hook", hook).Int("bytes", len(body)).Int("status", b.status()).Msg("webhook received")

	if b.Delay > 0 {
		select {
		case <-time.After(b.Delay):
		case <-c.Request.Context().Done():
			return
		}
	}
	c.JSON(b.status(), map[string]string{"status": http.StatusText(b.status())})
}

func (b Behavior) status() int {
	if b.Status == 0 {
		return http.StatusOK
	}
	return b.Status
}

func (r *Receiver) putBehavior(c *fox.Context) {
	var req struct {
		Status int    `json:"status"`
		Delay  string `json:"delay"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, map[string]string{"error": "Invalid request body: " + err.Error()})
		return
	}
	var delay time.Duration
	if req.Delay != "" {
		d, err := time.ParseDuration(req.Delay)
		if err != nil {
			c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid delay: " + err.Error()})
			return
		}
		delay = d
	}
	hook := c.Param("hook")
	r.SetBehavior(hook, Behavior{Status: req.Status, Delay: delay})
	log.Info().Str("hook", hook).Int("status", req.Status).Dur("delay", delay).Msg("hook behavior updated")
	c.JSON(http.StatusOK, map[string]string{"status": "success"})
}

func (r *Receiver) received(c *fox.Context) {
	hook := c.Query("hook")
	out := []Record{}
	for _, rec := range r.Records() {
		if hook == "" || rec.Hook == hook {
			out = append(out, rec)
		}
	}
	c.JSON(http.StatusOK, map[string]any{"records": out, "total": len(out)})
}

func (r *Receiver) reset(c *fox.Context) {
	r.Reset()
	c.JSON(http.StatusOK, map[string]string{"status": "success"})
}

func (r *Receiver) healthy(c *fox.Context) {
	c.String(http.StatusOK, "OK")
}
