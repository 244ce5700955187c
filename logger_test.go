package request

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/rs/zerolog"
)

func TestSimpleLoggerLevels(t *testing.T) {
	logger := NewSimpleLogger()

	logger.Debug("debug message")
	logger.Info("info message", "key", "value")
	logger.Warn("warn message")
	logger.Error("error message", "error", "boom")
}

func TestZerologLoggerFields(t *testing.T) {
	var buf bytes.Buffer
	logger := NewZerologLogger(zerolog.New(&buf))

	logger.Info("Request completed", "requestID", "abc", "status", 200)

	var entry map[string]interface{}
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("Expected JSON log line, got %q: %v", buf.String(), err)
	}
	if entry["message"] != "Request completed" {
		t.Errorf("Expected message, got %v", entry["message"])
	}
	if entry["level"] != "info" {
		t.Errorf("Expected info level, got %v", entry["level"])
	}
	if entry["component"] != "request" {
		t.Errorf("Expected component=request, got %v", entry["component"])
	}
	if entry["requestID"] != "abc" || entry["status"] != float64(200) {
		t.Errorf("Expected key/value fields, got %v", entry)
	}
}

func TestDefaultDebugConfig(t *testing.T) {
	config := DefaultDebugConfig()

	if config.Enabled {
		t.Error("Expected debug disabled by default")
	}
	if !config.LogRequests || !config.LogDedup || !config.LogRefresh || !config.LogRateLimit {
		t.Errorf("Expected every category on, got %+v", config)
	}
	if id := config.RequestIDGen(); len(id) != 36 {
		t.Errorf("Expected UUID request id, got %q", id)
	}
}

func TestClientDebugLogging(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeEnvelope(w, CodeNotFound, "missing", nil)
	}))
	defer server.Close()

	var buf bytes.Buffer
	client := newSessionClient(t, server.URL, &recorder{},
		WithDebug(),
		WithLogger(NewZerologLogger(zerolog.New(&buf))),
		WithRequestIDGenerator(func() string { return "req-42" }),
	)

	_, err := client.Get(context.Background(), "/missing", nil)
	if err == nil {
		t.Fatal("Expected business error")
	}

	output := buf.String()
	for _, want := range []string{"Starting request", "Registered pending request", "Request failed", "req-42"} {
		if !strings.Contains(output, want) {
			t.Errorf("Expected %q in debug output:\n%s", want, output)
		}
	}

	var clientErr *ClientError
	if !errors.As(err, &clientErr) || clientErr.RequestID != "req-42" {
		t.Errorf("Expected request id on error, got %v", err)
	}
}
