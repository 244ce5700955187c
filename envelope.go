package request

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// Business codes carried in the response envelope.
const (
	CodeSuccess       = 2000
	CodeInvalidParams = 4000
	CodeUnauthorized  = 4010
	CodeNotFound      = 4040
	CodeServerError   = 5000
)

// Envelope is the wire shape of every JSON response: {code, message, data}.
type Envelope struct {
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

// Success reports whether the envelope carries the success code.
func (e *Envelope) Success() bool {
	return e != nil && e.Code == CodeSuccess
}

// DecodeData unmarshals the data member into v. A null or missing data member
// leaves v untouched.
func (e *Envelope) DecodeData(v interface{}) error {
	if e == nil || len(e.Data) == 0 || bytes.Equal(e.Data, []byte("null")) {
		return nil
	}
	if err := json.Unmarshal(e.Data, v); err != nil {
		return fmt.Errorf("decode envelope data: %w", err)
	}
	return nil
}

// decodeEnvelope parses body as an envelope. A body that is valid JSON but has
// no code member is not an envelope.
func decodeEnvelope(body []byte) (*Envelope, error) {
	var raw struct {
		Code    *int            `json:"code"`
		Message string          `json:"message"`
		Data    json.RawMessage `json:"data"`
	}
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, fmt.Errorf("decode envelope: %w", err)
	}
	if raw.Code == nil {
		return nil, fmt.Errorf("decode envelope: missing code")
	}
	return &Envelope{Code: *raw.Code, Message: raw.Message, Data: raw.Data}, nil
}

// looksLikeJSONObject is the cheap check used on binary payloads before
// attempting an envelope decode.
func looksLikeJSONObject(body []byte) bool {
	trimmed := bytes.TrimSpace(body)
	return len(trimmed) >= 2 && trimmed[0] == '{' && trimmed[len(trimmed)-1] == '}'
}
