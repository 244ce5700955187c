package request

import (
	"context"
	"errors"
	"fmt"
	"testing"
)

func TestDefaultClassifierCodes(t *testing.T) {
	classifier := DefaultClassifier()

	tests := []struct {
		code    int
		message string
		want    Action
	}{
		{CodeInvalidParams, "bad input", Action{Kind: ActionNotify, Message: "bad input"}},
		{CodeNotFound, "not found", Action{Kind: ActionNotify, Message: "not found"}},
		{CodeServerError, "boom", Action{Kind: ActionNotify, Message: "boom"}},
		{CodeUnauthorized, "expired", Action{Kind: ActionNotifyAndRedirect, Message: "expired"}},
		{4290, "slow down", Action{Kind: ActionNotify, Message: "slow down"}},
		{4290, "", Action{Kind: ActionNotify, Message: DefaultFallbackMessage}},
	}

	for _, tc := range tests {
		t.Run(fmt.Sprintf("%d/%s", tc.code, tc.message), func(t *testing.T) {
			got := classifier.Classify(tc.code, tc.message)
			if got != tc.want {
				t.Errorf("Classify(%d, %q) = %+v, want %+v", tc.code, tc.message, got, tc.want)
			}
		})
	}
}

func TestClassifierRuleOverrides(t *testing.T) {
	classifier := NewClassifier(map[int]Rule{
		4030: {Kind: ActionNotify, Message: "no permission"},
		4100: {Kind: ActionSilent},
		4011: {Kind: ActionNotifyAndRedirect, Path: "/sso"},
	}, "something went wrong")

	if got := classifier.Classify(4030, "forbidden"); got.Message != "no permission" {
		t.Errorf("Expected rule message to win, got %q", got.Message)
	}
	if got := classifier.Classify(4100, "ignored"); got.Kind != ActionSilent || got.Message != "" {
		t.Errorf("Expected silent action without message, got %+v", got)
	}
	if got := classifier.Classify(4011, "x"); got.Path != "/sso" {
		t.Errorf("Expected redirect path /sso, got %q", got.Path)
	}
	if got := classifier.Classify(9999, ""); got.Message != "something went wrong" {
		t.Errorf("Expected custom fallback, got %q", got.Message)
	}
}

func TestClassifyError(t *testing.T) {
	classifier := DefaultClassifier()

	tests := []struct {
		name string
		err  error
		want Action
	}{
		{"nil", nil, Action{Kind: ActionSilent}},
		{"duplicate", &ClientError{Type: ErrorTypeDuplicateCancelled, Cause: ErrDuplicateCancelled}, Action{Kind: ActionSilent}},
		{"caller cancelled", fmt.Errorf("wrapped: %w", context.Canceled), Action{Kind: ActionSilent}},
		{"business", &ClientError{Type: ErrorTypeBusiness, Code: CodeNotFound, Message: "not found"}, Action{Kind: ActionNotify, Message: "not found"}},
		{"auth expired", &ClientError{Type: ErrorTypeAuthExpired, Code: CodeUnauthorized, Message: "login again"}, Action{Kind: ActionNotifyAndRedirect, Message: "login again"}},
		{"empty export", &ClientError{Type: ErrorTypeEmptyExport, Cause: ErrEmptyExport}, Action{Kind: ActionNotify, Message: EmptyExportMessage}},
		{"refresh failed", refreshError("refresh call failed", errors.New("x")), Action{Kind: ActionSilent}},
		{"transport", &ClientError{Type: ErrorTypeTransport, Message: "dial tcp"}, Action{Kind: ActionNotify, Message: TransportErrorMessage}},
		{"foreign error", errors.New("mystery"), Action{Kind: ActionNotify, Message: TransportErrorMessage}},
		{"validation", &ClientError{Type: ErrorTypeValidation, Message: "bad url"}, Action{Kind: ActionNotify, Message: "bad url"}},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got := classifier.ClassifyError(tc.err)
			if got != tc.want {
				t.Errorf("ClassifyError() = %+v, want %+v", got, tc.want)
			}
		})
	}
}

func TestActionKindString(t *testing.T) {
	names := map[ActionKind]string{
		ActionSilent:            "silent",
		ActionNotify:            "notify",
		ActionNotifyAndRedirect: "notify_redirect",
		ActionKind(99):          "unknown",
	}
	for kind, want := range names {
		if got := kind.String(); got != want {
			t.Errorf("Expected %q, got %q", want, got)
		}
	}
}

func TestEnvelopeDecode(t *testing.T) {
	env, err := decodeEnvelope([]byte(`{"code":2000,"message":"ok","data":{"id":1}}`))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !env.Success() {
		t.Error("Expected success envelope")
	}
	var data struct{ ID int }
	if err := env.DecodeData(&data); err != nil || data.ID != 1 {
		t.Errorf("Expected id 1, got %+v (err %v)", data, err)
	}

	if _, err := decodeEnvelope([]byte(`{"id":1}`)); err == nil {
		t.Error("Expected object without code to be rejected")
	}
	if _, err := decodeEnvelope([]byte(`<html>`)); err == nil {
		t.Error("Expected non-JSON body to be rejected")
	}

	nullData := &Envelope{Code: CodeSuccess, Data: []byte("null")}
	untouched := struct{ ID int }{ID: 7}
	if err := nullData.DecodeData(&untouched); err != nil || untouched.ID != 7 {
		t.Errorf("Expected null data to leave target untouched, got %+v (err %v)", untouched, err)
	}
}
