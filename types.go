package request

import (
	"context"
	"encoding/json"
	"net/http"
)

// ResponseType selects how a response body is interpreted.
type ResponseType int

const (
	// ResponseJSON decodes the body as an Envelope.
	ResponseJSON ResponseType = iota
	// ResponseBlob passes the body through as a file download.
	ResponseBlob
)

// Request describes one outbound call. URL is joined to the client base URL
// unless it is absolute. Body may be nil, []byte, string, json.RawMessage or
// any value that marshals to JSON.
type Request struct {
	Method       string
	URL          string
	Params       Params
	Body         interface{}
	Header       http.Header
	ResponseType ResponseType
	SkipDedup    bool
}

// Response is the settled result of a successful call.
type Response struct {
	StatusCode int
	Header     http.Header
	Envelope   *Envelope
	Blob       []byte
	Filename   string
	Replayed   bool
}

// Data returns the envelope's data member, nil for blob responses.
func (r *Response) Data() json.RawMessage {
	if r == nil || r.Envelope == nil {
		return nil
	}
	return r.Envelope.Data
}

// Decode unmarshals the envelope data into v.
func (r *Response) Decode(v interface{}) error {
	if r == nil {
		return nil
	}
	return r.Envelope.DecodeData(v)
}

// Middleware represents a middleware function wrapped around the transport.
type Middleware func(req *http.Request, next RoundTripper) (*http.Response, error)

// RoundTripper represents the HTTP transport interface
type RoundTripper interface {
	RoundTrip(*http.Request) (*http.Response, error)
}

// RoundTripperFunc is a helper type for middleware
type RoundTripperFunc func(*http.Request) (*http.Response, error)

func (f RoundTripperFunc) RoundTrip(req *http.Request) (*http.Response, error) {
	return f(req)
}

// Notifier shows a message to the user.
type Notifier interface {
	Notify(ctx context.Context, message string)
}

// NotifierFunc adapts a function to Notifier.
type NotifierFunc func(ctx context.Context, message string)

func (f NotifierFunc) Notify(ctx context.Context, message string) {
	f(ctx, message)
}

// Navigator moves the application to another entry point, e.g. the login page.
type Navigator interface {
	Redirect(ctx context.Context, path string)
}

// NavigatorFunc adapts a function to Navigator.
type NavigatorFunc func(ctx context.Context, path string)

func (f NavigatorFunc) Redirect(ctx context.Context, path string) {
	f(ctx, path)
}

// Option represents a configuration option
type Option func(*Client)
