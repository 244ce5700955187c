package request

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestHTTPRefresherRefresh(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/session/renew" {
			t.Errorf("Expected custom refresh path, got %s", r.URL.Path)
		}
		if r.Method != http.MethodPost {
			t.Errorf("Expected POST, got %s", r.Method)
		}
		var body map[string]string
		_ = json.NewDecoder(r.Body).Decode(&body)
		if body["refresh_token"] != "R1" {
			t.Errorf("Expected refresh_token R1, got %v", body)
		}
		writeEnvelope(w, CodeSuccess, "ok", map[string]string{"access_token": "T2", "refresh_token": "R2"})
	}))
	defer server.Close()

	refresher := NewHTTPRefresher(server.URL+"/", time.Second, WithRefreshPath("/session/renew"))
	tokens, err := refresher.Refresh(context.Background(), "R1")
	if err != nil {
		t.Fatalf(expectedNoErrorMsg, err)
	}
	if tokens.AccessToken != "T2" || tokens.RefreshToken != "R2" {
		t.Errorf("Expected T2/R2, got %+v", tokens)
	}
}

func TestHTTPRefresherRefreshFailures(t *testing.T) {
	tests := []struct {
		name    string
		handler http.HandlerFunc
		code    int
	}{
		{
			name: "business failure",
			handler: func(w http.ResponseWriter, r *http.Request) {
				writeEnvelope(w, CodeServerError, "refresh rejected", nil)
			},
			code: CodeServerError,
		},
		{
			name: "not an envelope",
			handler: func(w http.ResponseWriter, r *http.Request) {
				http.Error(w, "bad gateway", http.StatusBadGateway)
			},
		},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			server := httptest.NewServer(test.handler)
			defer server.Close()

			_, err := NewHTTPRefresher(server.URL, time.Second).Refresh(context.Background(), "R1")
			if err == nil {
				t.Fatal("Expected refresh error")
			}
			if code, _ := BusinessCode(err); code != test.code {
				t.Errorf("Expected code %d, got %d (%v)", test.code, code, err)
			}
		})
	}
}

func TestHTTPRefresherLogout(t *testing.T) {
	var auth string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != DefaultLogoutPath {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		auth = r.Header.Get("Authorization")
		writeEnvelope(w, CodeSuccess, "bye", nil)
	}))
	defer server.Close()

	refresher := NewHTTPRefresher(server.URL, time.Second, WithRefresherAuthScheme("Token"))
	if err := refresher.Logout(context.Background(), "T1"); err != nil {
		t.Fatalf(expectedNoErrorMsg, err)
	}
	if auth != "Token T1" {
		t.Errorf("Expected 'Token T1', got %q", auth)
	}

	broken := NewHTTPRefresher(server.URL, time.Second, WithLogoutPath("/missing"))
	if err := broken.Logout(context.Background(), "T1"); err == nil {
		t.Error("Expected logout error for 404")
	}
}

func TestHTTPRefresherCustomClient(t *testing.T) {
	custom := &http.Client{Timeout: time.Second}
	refresher := NewHTTPRefresher("http://example.com", 0, WithRefresherHTTPClient(custom))

	if refresher.httpClient != custom {
		t.Error("Expected custom session client")
	}
}
