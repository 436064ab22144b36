package webhook

import (
	"fmt"
	"net/url"
)

// UnknownTransformerError means a configured group has no registered payload
// transformer. The group is skipped.
type UnknownTransformerError struct {
	Group string
	Err   error
}

func (e *UnknownTransformerError) Error() string {
	return fmt.Sprintf("group %q: %v", e.Group, e.Err)
}

func (e *UnknownTransformerError) Unwrap() error { return e.Err }

// EncodingError means the transformer failed to encode the batch. The group
// is skipped.
type EncodingError struct {
	Group string
	Err   error
}

func (e *EncodingError) Error() string {
	return fmt.Sprintf("group %q: encode alarm payload: %v", e.Group, e.Err)
}

func (e *EncodingError) Unwrap() error { return e.Err }

// DeliveryError means one POST failed, either with a non-200 status
// (StatusCode set) or at the transport level (Err set). URL is the full
// target; the message only carries its scheme and host.
type DeliveryError struct {
	URL        string
	StatusCode int
	Err        error
}

func (e *DeliveryError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("send alarm to %s failure: %v", redactURL(e.URL), e.Err)
	}
	return fmt.Sprintf("send alarm to %s failure. Response code: %d", redactURL(e.URL), e.StatusCode)
}

// redactURL keeps scheme and host. Chat hook URLs carry their secret in the
// path or query, and user info may hold credentials.
func redactURL(raw string) string {
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return "<invalid url>"
	}
	if u.Path == "" && u.RawQuery == "" {
		return u.Scheme + "://" + u.Host
	}
	return u.Scheme + "://" + u.Host + "/..."
}

func (e *DeliveryError) Unwrap() error { return e.Err }
