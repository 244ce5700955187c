package request

import (
	"context"
	"net/http"
	"time"
)

// Call carries the state of one pass through the pipeline. A replay after a
// token refresh is a new Call for the same Request.
type Call struct {
	Request     *Request
	RequestID   string
	Fingerprint string
	HTTPRequest *http.Request
	Replay      bool
	Started     time.Time

	body        []byte
	accessToken string
	handle      *PendingHandle
}

// Body returns the serialized request body.
func (c *Call) Body() []byte {
	return c.body
}

// Outcome is what the response steps work on. Exactly one of Response or Err
// is set once the outcome is settled.
type Outcome struct {
	HTTPResponse *http.Response
	Body         []byte
	TransportErr error

	response *Response
	err      error
	settled  bool
}

// Settled reports whether a step has already decided the outcome.
func (o *Outcome) Settled() bool {
	return o.settled
}

// Succeed settles the outcome with resp. Later calls are ignored.
func (o *Outcome) Succeed(resp *Response) {
	if o.settled {
		return
	}
	o.response = resp
	o.settled = true
}

// Fail settles the outcome with err. Later calls are ignored.
func (o *Outcome) Fail(err error) {
	if o.settled {
		return
	}
	o.err = err
	o.settled = true
}

// Result returns the settled response and error.
func (o *Outcome) Result() (*Response, error) {
	return o.response, o.err
}

// RequestStep transforms a call before it reaches the transport.
type RequestStep struct {
	Name  string
	Apply func(ctx context.Context, call *Call) error
}

// ResponseStep inspects a completed transport round trip. Steps after the one
// that settles the outcome are skipped, except those marked Always.
type ResponseStep struct {
	Name   string
	Always bool
	Apply  func(call *Call, out *Outcome)
}

// Pipeline is the ordered list of steps every call goes through. The order is
// part of the contract: authorization runs before dedup, and release runs
// before any classification.
type Pipeline struct {
	Request  []RequestStep
	Response []ResponseStep
}

// RequestStepNames lists request steps in execution order.
func (p *Pipeline) RequestStepNames() []string {
	names := make([]string, 0, len(p.Request))
	for _, step := range p.Request {
		names = append(names, step.Name)
	}
	return names
}

// ResponseStepNames lists response steps in execution order.
func (p *Pipeline) ResponseStepNames() []string {
	names := make([]string, 0, len(p.Response))
	for _, step := range p.Response {
		names = append(names, step.Name)
	}
	return names
}

func (p *Pipeline) runRequest(ctx context.Context, call *Call) error {
	for _, step := range p.Request {
		if err := step.Apply(ctx, call); err != nil {
			return err
		}
	}
	return nil
}

func (p *Pipeline) runResponse(call *Call, out *Outcome) {
	for _, step := range p.Response {
		if out.settled && !step.Always {
			continue
		}
		step.Apply(call, out)
	}
}
