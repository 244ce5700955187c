package request

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/url"
	"strings"
)

// Param is a single query parameter. Params keep caller order because the
// fingerprint is order sensitive.
type Param struct {
	Key   string
	Value string
}

// Params is an ordered list of query parameters.
type Params []Param

// Add appends a parameter and returns the extended list.
func (p Params) Add(key, value string) Params {
	return append(p, Param{Key: key, Value: value})
}

// Values converts the list to url.Values for encoding on the wire.
func (p Params) Values() url.Values {
	values := make(url.Values, len(p))
	for _, param := range p {
		values.Add(param.Key, param.Value)
	}
	return values
}

// Fingerprint derives the deduplication key of a call from its method, URL,
// query parameters (in the order given) and serialized body. Only bodies shaped
// like a JSON object participate; anything else, including a body that fails
// to parse, leaves the key at method+URL+params.
func Fingerprint(method, rawURL string, params Params, body []byte) string {
	key, _ := fingerprint(method, rawURL, params, body)
	return key
}

// fingerprint is Fingerprint with the body parse error surfaced for logging.
func fingerprint(method, rawURL string, params Params, body []byte) (string, error) {
	var builder strings.Builder
	builder.WriteString(method)
	builder.WriteString(rawURL)

	for _, param := range params {
		builder.WriteByte('&')
		builder.WriteString(param.Key)
		builder.WriteByte('=')
		builder.WriteString(param.Value)
	}

	trimmed := bytes.TrimSpace(body)
	if len(trimmed) < 2 || trimmed[0] != '{' || trimmed[len(trimmed)-1] != '}' {
		return builder.String(), nil
	}

	fields, err := objectFields(trimmed)
	if err != nil {
		return builder.String(), err
	}
	builder.WriteString(fields)
	return builder.String(), nil
}

// objectFields renders the top-level members of a JSON object as #key=value in
// document order. Map decoding would randomize the order, so the object is
// walked token by token.
func objectFields(body []byte) (string, error) {
	dec := json.NewDecoder(bytes.NewReader(body))
	dec.UseNumber()

	tok, err := dec.Token()
	if err != nil {
		return "", fmt.Errorf("fingerprint body: %w", err)
	}
	if delim, ok := tok.(json.Delim); !ok || delim != '{' {
		return "", fmt.Errorf("fingerprint body: expected object, got %v", tok)
	}

	var builder strings.Builder
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return "", fmt.Errorf("fingerprint body: %w", err)
		}
		name, ok := tok.(string)
		if !ok {
			return "", fmt.Errorf("fingerprint body: unexpected key %v", tok)
		}

		var raw json.RawMessage
		if err := dec.Decode(&raw); err != nil {
			return "", fmt.Errorf("fingerprint body: member %q: %w", name, err)
		}

		builder.WriteByte('#')
		builder.WriteString(name)
		builder.WriteByte('=')
		builder.WriteString(memberValue(raw))
	}

	if _, err := dec.Token(); err != nil {
		return "", fmt.Errorf("fingerprint body: %w", err)
	}
	if dec.More() {
		return "", fmt.Errorf("fingerprint body: trailing data")
	}
	return builder.String(), nil
}

func memberValue(raw json.RawMessage) string {
	if len(raw) > 0 && raw[0] == '"' {
		var s string
		if err := json.Unmarshal(raw, &s); err == nil {
			return s
		}
	}
	var compact bytes.Buffer
	if err := json.Compact(&compact, raw); err != nil {
		return string(raw)
	}
	return compact.String()
}
