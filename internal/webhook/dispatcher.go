package webhook

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/qiniu/alarmhook/internal/alarm"
	"github.com/qiniu/alarmhook/internal/webhook/transformer"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"
)

// Resolver finds the payload transformer of a group key.
type Resolver interface {
	Lookup(key string) (transformer.Transformer, error)
}

// Dispatcher posts alarm batches to the configured webhook groups. It
// implements alarm.Callback.
type Dispatcher struct {
	targets  atomic.Pointer[Targets]
	resolver Resolver
	config   DeliveryConfig
	metrics  *Metrics
}

var _ alarm.Callback = (*Dispatcher)(nil)

type Option func(*Dispatcher)

// WithResolver replaces the process-wide transformer registry.
func WithResolver(r Resolver) Option {
	return func(d *Dispatcher) { d.resolver = r }
}

func WithDeliveryConfig(c DeliveryConfig) Option {
	return func(d *Dispatcher) { d.config = c.withDefaults() }
}

func WithMetrics(m *Metrics) Option {
	return func(d *Dispatcher) { d.metrics = m }
}

func NewDispatcher(targets Targets, opts ...Option) *Dispatcher {
	d := &Dispatcher{
		resolver: transformer.Default(),
		config:   DefaultDeliveryConfig(),
	}
	for _, opt := range opts {
		opt(d)
	}
	d.SetTargets(targets)
	return d
}

// SetTargets replaces the group configuration. Calls already in progress keep
// delivering to the configuration they started with.
func (d *Dispatcher) SetTargets(t Targets) {
	snapshot := t.Clone()
	d.targets.Store(&snapshot)
	log.Info().Int("groups", len(snapshot)).Int("urls", snapshot.Len()).Msg("webhook targets updated")
}

// Targets returns the current configuration. The result must not be modified.
func (d *Dispatcher) Targets() Targets {
	if p := d.targets.Load(); p != nil {
		return *p
	}
	return nil
}

// Deliver sends events to every configured URL and returns once all of them
// were attempted. Failures are logged and never reach the caller.
func (d *Dispatcher) Deliver(ctx context.Context, events []alarm.Event) {
	d.Dispatch(ctx, events)
}

type postJob struct {
	slot    int
	group   string
	url     string
	payload transformer.Payload
}

// Dispatch is Deliver returning the per-target outcomes.
func (d *Dispatcher) Dispatch(ctx context.Context, events []alarm.Event) *Report {
	targets := d.Targets()
	report := &Report{ID: uuid.NewString(), Events: len(events)}
	if len(targets) == 0 {
		return report
	}

	if d.config.DeliverTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, d.config.DeliverTimeout)
		defer cancel()
	}

	client, transport := newClient(d.config)
	defer transport.CloseIdleConnections()

	var jobs []postJob
	for _, g := range targets {
		t, err := d.resolver.Lookup(g.Key)
		if err != nil {
			err = &UnknownTransformerError{Group: g.Key, Err: err}
			log.Error().Err(err).Str("delivery_id", report.ID).Str("group", g.Key).Msg("send alarm failure, no payload transformer for group")
			d.metrics.groupFailed(g.Key, reasonUnknownTransformer)
			report.Outcomes = append(report.Outcomes, Outcome{Group: g.Key, Err: err})
			continue
		}
		if len(g.URLs) == 0 {
			continue
		}

		payload, err := transform(t, events)
		if err != nil {
			err = &EncodingError{Group: g.Key, Err: err}
			log.Error().Err(err).Str("delivery_id", report.ID).Str("group", g.Key).Msg("alarm to payload error")
			d.metrics.groupFailed(g.Key, reasonEncoding)
			report.Outcomes = append(report.Outcomes, Outcome{Group: g.Key, Err: err})
			continue
		}
		if payload.ContentType == "" {
			payload.ContentType = transformer.ContentTypeJSON
		}

		for _, u := range g.URLs {
			report.Outcomes = append(report.Outcomes, Outcome{Group: g.Key, URL: u})
			jobs = append(jobs, postJob{slot: len(report.Outcomes) - 1, group: g.Key, url: u, payload: payload})
		}
	}

	var eg errgroup.Group
	eg.SetLimit(d.config.MaxConcurrency)
	for _, j := range jobs {
		eg.Go(func() error {
			report.Outcomes[j.slot] = d.post(ctx, client, report.ID, j)
			return nil
		})
	}
	_ = eg.Wait()

	log.Debug().
		Str("delivery_id", report.ID).
		Int("events", len(events)).
		Int("posts", len(jobs)).
		Int("succeeded", report.Succeeded()).
		Msg("alarm delivery completed")
	return report
}

// transform shields the dispatcher from a panicking transformer.
func transform(t transformer.Transformer, events []alarm.Event) (p transformer.Payload, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("transformer %q panicked: %v", t.Key(), r)
		}
	}()
	return t.Transform(events)
}

func (d *Dispatcher) post(ctx context.Context, client *http.Client, deliveryID string, j postJob) Outcome {
	start := time.Now()
	code, err := send(ctx, client, j.url, j.payload)
	out := Outcome{Group: j.group, URL: j.url, StatusCode: code, Duration: time.Since(start), Err: err}
	d.metrics.observeDelivery(j.group, err == nil, out.Duration)

	if err != nil {
		log.Error().
			Err(err).
			Str("delivery_id", deliveryID).
			Str("group", j.group).
			Str("url", redactURL(j.url)).
			Int("status", code).
			Dur("duration", out.Duration).
			Msg("send alarm failure")
		return out
	}
	log.Debug().
		Str("delivery_id", deliveryID).
		Str("group", j.group).
		Str("url", redactURL(j.url)).
		Dur("duration", out.Duration).
		Msg("alarm sent")
	return out
}

func send(ctx context.Context, client *http.Client, target string, p transformer.Payload) (int, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, target, bytes.NewReader(p.Body))
	if err != nil {
		return 0, &DeliveryError{URL: target, Err: errors.New("build request: invalid target url")}
	}
	req.Header.Set("Accept", transformer.ContentTypeJSON)
	req.Header.Set("Content-Type", p.ContentType)

	resp, err := client.Do(req)
	if err != nil {
		// *url.Error repeats the full target in its message
		var uerr *url.Error
		if errors.As(err, &uerr) {
			err = uerr.Err
		}
		return 0, &DeliveryError{URL: target, Err: err}
	}
	defer resp.Body.Close()
	// the body is not interpreted, drain a bounded amount for connection reuse
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))

	if resp.StatusCode != http.StatusOK {
		return resp.StatusCode, &DeliveryError{URL: target, StatusCode: resp.StatusCode}
	}
	return resp.StatusCode, nil
}
