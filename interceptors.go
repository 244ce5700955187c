package request

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// Built-in step names.
const (
	StepEncode        = "encode"
	StepAuthorization = "authorization"
	StepDedup         = "dedup"

	StepRelease      = "release"
	StepCancellation = "cancellation"
	StepTransport    = "transport"
	StepBlob         = "blob"
	StepEnvelope     = "envelope"
)

func (c *Client) defaultPipeline() *Pipeline {
	p := &Pipeline{
		Request: []RequestStep{
			{Name: StepEncode, Apply: c.encodeStep},
			{Name: StepAuthorization, Apply: c.authorizationStep},
			{Name: StepDedup, Apply: c.dedupStep},
		},
		Response: []ResponseStep{
			{Name: StepRelease, Always: true, Apply: c.releaseStep},
		},
	}
	p.Request = append(p.Request, c.extraRequestSteps...)
	p.Response = append(p.Response, c.extraResponseSteps...)
	p.Response = append(p.Response,
		ResponseStep{Name: StepCancellation, Apply: c.cancellationStep},
		ResponseStep{Name: StepTransport, Apply: c.transportStep},
		ResponseStep{Name: StepBlob, Apply: c.blobStep},
		ResponseStep{Name: StepEnvelope, Apply: c.envelopeStep},
	)
	return p
}

func (c *Client) encodeStep(ctx context.Context, call *Call) error {
	req := call.Request
	method := strings.ToUpper(strings.TrimSpace(req.Method))
	if method == "" {
		method = http.MethodGet
	}

	target, err := c.resolveURL(req.URL, req.Params)
	if err != nil {
		return c.newError(ErrorTypeValidation, "invalid request url", err, call)
	}

	body, contentType, err := encodeBody(req.Body)
	if err != nil {
		return c.newError(ErrorTypeValidation, "encode request body", err, call)
	}
	call.body = body

	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	httpReq, err := http.NewRequestWithContext(ctx, method, target, reader)
	if err != nil {
		return c.newError(ErrorTypeValidation, "create http request", err, call)
	}
	for key, values := range req.Header {
		for _, value := range values {
			httpReq.Header.Add(key, value)
		}
	}
	if contentType != "" && httpReq.Header.Get("Content-Type") == "" {
		httpReq.Header.Set("Content-Type", contentType)
	}
	if req.ResponseType == ResponseJSON && httpReq.Header.Get("Accept") == "" {
		httpReq.Header.Set("Accept", "application/json")
	}
	call.HTTPRequest = httpReq
	return nil
}

func (c *Client) authorizationStep(_ context.Context, call *Call) error {
	token := call.accessToken
	if token == "" {
		token = c.credentials.AccessToken()
	}
	if token == "" {
		return nil
	}
	call.HTTPRequest.Header.Set("Authorization", c.authScheme+" "+token)
	return nil
}

func (c *Client) dedupStep(_ context.Context, call *Call) error {
	if call.Request.SkipDedup {
		return nil
	}

	key, err := fingerprint(call.HTTPRequest.Method, call.Request.URL, call.Request.Params, call.body)
	if err != nil && c.debugEnabled(c.debug.LogDedup) {
		c.logger.Debug("Fingerprint body skipped", "requestID", call.RequestID, "error", err.Error())
	}
	call.Fingerprint = key

	handle, ctx := c.pending.Register(call.HTTPRequest.Context(), key)
	call.handle = handle
	call.HTTPRequest = call.HTTPRequest.WithContext(ctx)

	if c.debugEnabled(c.debug.LogDedup) {
		c.logger.Debug("Registered pending request", "requestID", call.RequestID, "fingerprint", key)
	}
	return nil
}

func (c *Client) releaseStep(call *Call, _ *Outcome) {
	c.pending.Resolve(call.handle)
}

func (c *Client) cancellationStep(call *Call, out *Outcome) {
	if out.TransportErr == nil || call.HTTPRequest == nil {
		return
	}
	if !errors.Is(context.Cause(call.HTTPRequest.Context()), ErrDuplicateCancelled) {
		return
	}
	if c.debugEnabled(c.debug.LogDedup) {
		c.logger.Debug("Request superseded by duplicate", "requestID", call.RequestID, "fingerprint", call.Fingerprint)
	}
	out.Fail(c.newError(ErrorTypeDuplicateCancelled, "cancelled by a newer identical request", ErrDuplicateCancelled, call))
}

func (c *Client) transportStep(call *Call, out *Outcome) {
	if out.TransportErr != nil {
		out.Fail(c.newError(ErrorTypeTransport, "network request failed", out.TransportErr, call))
		return
	}

	status := out.HTTPResponse.StatusCode
	if status == http.StatusUnauthorized {
		err := c.newError(ErrorTypeAuthExpired, "unauthorized", nil, call)
		err.StatusCode = status
		if env, decodeErr := decodeEnvelope(out.Body); decodeErr == nil {
			err.Code = env.Code
			err.Message = env.Message
		}
		out.Fail(err)
		return
	}
	if status >= 200 && status < 300 {
		return
	}
	if env, err := decodeEnvelope(out.Body); err == nil && !env.Success() {
		// the envelope step classifies it
		return
	}
	err := c.newError(ErrorTypeTransport, fmt.Sprintf("unexpected status %d", status), nil, call)
	err.StatusCode = status
	out.Fail(err)
}

func (c *Client) blobStep(call *Call, out *Outcome) {
	if call.Request.ResponseType != ResponseBlob {
		return
	}

	if isJSONContent(out.HTTPResponse.Header.Get("Content-Type")) || looksLikeJSONObject(out.Body) {
		if env, err := decodeEnvelope(out.Body); err == nil {
			if !env.Success() {
				out.Fail(c.envelopeError(call, out, env))
				return
			}
		}
	}

	if len(out.Body) == 0 {
		err := c.newError(ErrorTypeEmptyExport, EmptyExportMessage, ErrEmptyExport, call)
		err.StatusCode = out.HTTPResponse.StatusCode
		out.Fail(err)
		return
	}

	out.Succeed(&Response{
		StatusCode: out.HTTPResponse.StatusCode,
		Header:     out.HTTPResponse.Header,
		Blob:       out.Body,
		Filename:   attachmentFilename(out.HTTPResponse.Header.Get("Content-Disposition")),
		Replayed:   call.Replay,
	})
}

func (c *Client) envelopeStep(call *Call, out *Outcome) {
	env, err := decodeEnvelope(out.Body)
	if err != nil {
		clientErr := c.newError(ErrorTypeTransport, "undecodable response", err, call)
		clientErr.StatusCode = out.HTTPResponse.StatusCode
		out.Fail(clientErr)
		return
	}
	if env.Success() {
		out.Succeed(&Response{
			StatusCode: out.HTTPResponse.StatusCode,
			Header:     out.HTTPResponse.Header,
			Envelope:   env,
			Replayed:   call.Replay,
		})
		return
	}
	out.Fail(c.envelopeError(call, out, env))
}

func (c *Client) envelopeError(call *Call, out *Outcome, env *Envelope) *ClientError {
	errType := ErrorTypeBusiness
	if _, ok := c.refreshCodes[env.Code]; ok {
		errType = ErrorTypeAuthExpired
	}
	err := c.newError(errType, env.Message, nil, call)
	err.Code = env.Code
	err.StatusCode = out.HTTPResponse.StatusCode
	c.metrics.RecordBusinessCode(env.Code)
	return err
}

func (c *Client) newError(errType, message string, cause error, call *Call) *ClientError {
	err := &ClientError{
		Type:      errType,
		Message:   message,
		Cause:     cause,
		Timestamp: time.Now(),
	}
	if call == nil {
		return err
	}
	err.RequestID = call.RequestID
	err.Fingerprint = call.Fingerprint
	err.Method = call.Request.Method
	err.URL = call.Request.URL
	if call.HTTPRequest != nil {
		err.Method = call.HTTPRequest.Method
		err.URL = call.HTTPRequest.URL.String()
	}
	if !call.Started.IsZero() {
		err.Duration = time.Since(call.Started)
	}
	return err
}

func (c *Client) resolveURL(raw string, params Params) (string, error) {
	target, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return "", err
	}
	if !target.IsAbs() && c.baseURL != nil {
		base := *c.baseURL
		base.Path = strings.TrimRight(base.Path, "/") + "/" + strings.TrimLeft(target.Path, "/")
		base.RawQuery = target.RawQuery
		target = &base
	}
	if !target.IsAbs() {
		return "", fmt.Errorf("relative url %q without base url", raw)
	}
	if len(params) > 0 {
		target.RawQuery = encodeOrdered(target.RawQuery, params)
	}
	return target.String(), nil
}

// encodeOrdered appends params to an existing raw query keeping caller order,
// which url.Values.Encode would sort away.
func encodeOrdered(existing string, params Params) string {
	var builder strings.Builder
	builder.WriteString(existing)
	for _, param := range params {
		if builder.Len() > 0 {
			builder.WriteByte('&')
		}
		builder.WriteString(url.QueryEscape(param.Key))
		builder.WriteByte('=')
		builder.WriteString(url.QueryEscape(param.Value))
	}
	return builder.String()
}

func encodeBody(body interface{}) ([]byte, string, error) {
	switch v := body.(type) {
	case nil:
		return nil, "", nil
	case []byte:
		return v, "", nil
	case string:
		return []byte(v), "", nil
	case json.RawMessage:
		return v, "application/json", nil
	case io.Reader:
		data, err := io.ReadAll(v)
		if err != nil {
			return nil, "", err
		}
		return data, "", nil
	default:
		data, err := json.Marshal(v)
		if err != nil {
			return nil, "", err
		}
		return data, "application/json", nil
	}
}

func isJSONContent(contentType string) bool {
	mediaType, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		return false
	}
	return mediaType == "application/json" || strings.HasSuffix(mediaType, "+json")
}

func attachmentFilename(disposition string) string {
	if disposition == "" {
		return ""
	}
	_, params, err := mime.ParseMediaType(disposition)
	if err != nil {
		return ""
	}
	return params["filename"]
}
