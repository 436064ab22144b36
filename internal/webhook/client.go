package webhook

import (
	"net"
	"net/http"
	"time"
)

const (
	DefaultConnectTimeout           = 1 * time.Second
	DefaultConnectionRequestTimeout = 1 * time.Second
	DefaultReadTimeout              = 10 * time.Second
	DefaultMaxConcurrency           = 8
)

// DeliveryConfig is the timeout policy shared by every target.
type DeliveryConfig struct {
	// ConnectTimeout bounds TCP connect and TLS handshake.
	ConnectTimeout time.Duration
	// ConnectionRequestTimeout bounds the wait for a usable connection on top
	// of the connect itself.
	ConnectionRequestTimeout time.Duration
	// ReadTimeout bounds the wait for the response once the request is sent.
	ReadTimeout time.Duration
	// DeliverTimeout, when positive, bounds a whole Deliver call.
	DeliverTimeout time.Duration
	// MaxConcurrency is the number of POSTs in flight per Deliver call.
	MaxConcurrency int
}

func DefaultDeliveryConfig() DeliveryConfig {
	return DeliveryConfig{
		ConnectTimeout:           DefaultConnectTimeout,
		ConnectionRequestTimeout: DefaultConnectionRequestTimeout,
		ReadTimeout:              DefaultReadTimeout,
		MaxConcurrency:           DefaultMaxConcurrency,
	}
}

func (c DeliveryConfig) withDefaults() DeliveryConfig {
	if c.ConnectTimeout <= 0 {
		c.ConnectTimeout = DefaultConnectTimeout
	}
	if c.ConnectionRequestTimeout <= 0 {
		c.ConnectionRequestTimeout = DefaultConnectionRequestTimeout
	}
	if c.ReadTimeout <= 0 {
		c.ReadTimeout = DefaultReadTimeout
	}
	if c.MaxConcurrency <= 0 {
		c.MaxConcurrency = DefaultMaxConcurrency
	}
	return c
}

// RequestTimeout is the upper bound of a single POST.
func (c DeliveryConfig) RequestTimeout() time.Duration {
	c = c.withDefaults()
	return c.ConnectionRequestTimeout + c.ConnectTimeout + c.ReadTimeout
}

// newClient builds the call-scoped client. The caller must close idle
// connections of the returned transport when done.
func newClient(c DeliveryConfig) (*http.Client, *http.Transport) {
	c = c.withDefaults()
	dialer := &net.Dialer{
		Timeout:   c.ConnectTimeout,
		KeepAlive: 30 * time.Second,
	}
	transport := &http.Transport{
		Proxy:                 http.ProxyFromEnvironment,
		DialContext:           dialer.DialContext,
		TLSHandshakeTimeout:   c.ConnectTimeout,
		ResponseHeaderTimeout: c.ReadTimeout,
		MaxIdleConnsPerHost:   c.MaxConcurrency,
		IdleConnTimeout:       30 * time.Second,
	}
	return &http.Client{
		Transport: transport,
		Timeout:   c.RequestTimeout(),
		CheckRedirect: func(req *http.Request, via []*http.Request) error {
			return http.ErrUseLastResponse
		},
	}, transport
}
