package webhook

import "time"

// Outcome is the result of one group resolution failure or one POST.
type Outcome struct {
	Group      string        `json:"group"`
	URL        string        `json:"url,omitempty"`
	StatusCode int           `json:"statusCode,omitempty"`
	Duration   time.Duration `json:"duration"`
	Err        error         `json:"-"`
}

func (o Outcome) OK() bool { return o.Err == nil }

// Report collects the outcomes of one Dispatch call, in configuration order.
type Report struct {
	ID       string    `json:"id"`
	Events   int       `json:"events"`
	Outcomes []Outcome `json:"outcomes"`
}

// Failed returns the outcomes that carry an error.
func (r *Report) Failed() []Outcome {
	if r == nil {
		return nil
	}
	var out []Outcome
	for _, o := range r.Outcomes {
		if !o.OK() {
			out = append(out, o)
		}
	}
	return out
}

// Succeeded counts successful POSTs.
func (r *Report) Succeeded() int {
	if r == nil {
		return 0
	}
	n := 0
	for _, o := range r.Outcomes {
		if o.OK() {
			n++
		}
	}
	return n
}
