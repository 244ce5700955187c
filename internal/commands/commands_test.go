package commands

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	request "github.com/zhangxinping666/admin-mp-sub001"
)

// runCLI executes the root command against a fresh file token store.
func runCLI(t *testing.T, baseURL, tokenFile string, args ...string) (string, string, error) {
	t.Helper()
	t.Setenv("BACKSTAGE_BASE_URL", baseURL)
	t.Setenv("BACKSTAGE_TOKEN_STORE", "file")
	t.Setenv("BACKSTAGE_TOKEN_FILE", tokenFile)

	var out, errOut bytes.Buffer
	root := NewRootCmd(&out, &errOut)
	root.SetArgs(append([]string{"--env-file", filepath.Join(t.TempDir(), "absent.env")}, args...))
	err := root.Execute()
	return out.String(), errOut.String(), err
}

func writeEnvelope(w http.ResponseWriter, code int, message string, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]interface{}{"code": code, "message": message, "data": data})
}

func TestGetSendsStoredToken(t *testing.T) {
	var gotAuth, gotQuery string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		gotQuery = r.URL.RawQuery
		writeEnvelope(w, 2000, "ok", map[string]string{"name": "alice"})
	}))
	defer server.Close()

	tokenFile := filepath.Join(t.TempDir(), "tokens.yaml")
	if _, _, err := runCLI(t, server.URL, tokenFile, "token", "set", "--access", "a1", "--refresh", "r1"); err != nil {
		t.Fatalf("token set failed: %v", err)
	}

	out, _, err := runCLI(t, server.URL, tokenFile, "get", "/users/1", "-p", "b=2", "-p", "a=1")
	if err != nil {
		t.Fatalf("get failed: %v", err)
	}
	if gotAuth != "Bearer a1" {
		t.Errorf("Expected Authorization 'Bearer a1', got %q", gotAuth)
	}
	if gotQuery != "b=2&a=1" {
		t.Errorf("Expected query in flag order, got %q", gotQuery)
	}
	if !strings.Contains(out, `"name": "alice"`) {
		t.Errorf("Expected pretty printed data, got %q", out)
	}
}

func TestGetBusinessErrorIsNotified(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeEnvelope(w, 4040, "user not found", nil)
	}))
	defer server.Close()

	_, errOut, err := runCLI(t, server.URL, filepath.Join(t.TempDir(), "tokens.yaml"), "get", "/users/9")
	if err == nil {
		t.Fatal("Expected error for business code 4040")
	}
	if !strings.Contains(errOut, "error: user not found") {
		t.Errorf("Expected notification on stderr, got %q", errOut)
	}
}

func TestExportWritesFile(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/octet-stream")
		w.Header().Set("Content-Disposition", `attachment; filename="users.xlsx"`)
		_, _ = w.Write([]byte("xlsx-bytes"))
	}))
	defer server.Close()

	target := filepath.Join(t.TempDir(), "out.xlsx")
	out, _, err := runCLI(t, server.URL, filepath.Join(t.TempDir(), "tokens.yaml"), "export", "/users/export", "--out", target)
	if err != nil {
		t.Fatalf("export failed: %v", err)
	}
	data, err := os.ReadFile(target)
	if err != nil {
		t.Fatalf("reading export: %v", err)
	}
	if string(data) != "xlsx-bytes" {
		t.Errorf("Expected exported bytes, got %q", data)
	}
	if !strings.Contains(out, "10 bytes") {
		t.Errorf("Expected size report, got %q", out)
	}
}

func TestTokenClear(t *testing.T) {
	tokenFile := filepath.Join(t.TempDir(), "tokens.yaml")
	if _, _, err := runCLI(t, "http://localhost:1", tokenFile, "token", "set", "--access", "a", "--refresh", "r"); err != nil {
		t.Fatalf("token set failed: %v", err)
	}
	if _, _, err := runCLI(t, "http://localhost:1", tokenFile, "token", "clear"); err != nil {
		t.Fatalf("token clear failed: %v", err)
	}
	if _, err := os.Stat(tokenFile); !os.IsNotExist(err) {
		t.Errorf("Expected token file removed, stat err = %v", err)
	}
}

func TestTokenSetRequiresBoth(t *testing.T) {
	_, _, err := runCLI(t, "http://localhost:1", filepath.Join(t.TempDir(), "tokens.yaml"), "token", "set", "--access", "a")
	if err == nil {
		t.Error("Expected error when --refresh is missing")
	}
}

func TestParseParams(t *testing.T) {
	params, err := parseParams([]string{"page=1", "q=a=b"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(params) != 2 || params[1].Key != "q" || params[1].Value != "a=b" {
		t.Errorf("unexpected params: %+v", params)
	}

	if _, err := parseParams([]string{"novalue"}); err == nil {
		t.Error("Expected error for param without '='")
	}
}

func TestVersionSkipsSetup(t *testing.T) {
	t.Setenv("BACKSTAGE_BASE_URL", "not a url")

	var out bytes.Buffer
	root := NewRootCmd(&out, &bytes.Buffer{})
	root.SetArgs([]string{"version"})
	if err := root.Execute(); err != nil {
		t.Fatalf("version failed: %v", err)
	}
	if !strings.Contains(out.String(), "backstage-request") {
		t.Errorf("Expected version string, got %q", out.String())
	}
}

func TestVersionJSON(t *testing.T) {
	var out bytes.Buffer
	root := NewRootCmd(&out, &bytes.Buffer{})
	root.SetArgs([]string{"version", "--json"})
	if err := root.Execute(); err != nil {
		t.Fatalf("version failed: %v", err)
	}

	var info map[string]string
	if err := json.Unmarshal(out.Bytes(), &info); err != nil {
		t.Fatalf("Expected JSON build info, got %q: %v", out.String(), err)
	}
	if info["version"] != request.Version {
		t.Errorf("Expected version %s, got %v", request.Version, info)
	}
	if info["go_version"] == "" || info["commit"] == "" {
		t.Errorf("Expected commit and go version, got %v", info)
	}
}

func TestProfileFlagIsLoaded(t *testing.T) {
	profile := filepath.Join(t.TempDir(), "broken.yaml")
	if err := os.WriteFile(profile, []byte("not_a_setting: 1\n"), 0600); err != nil {
		t.Fatal(err)
	}

	_, _, err := runCLI(t, "http://127.0.0.1:1", filepath.Join(t.TempDir(), "tokens.yaml"), "--profile", profile, "token", "clear")
	if err == nil || !strings.Contains(err.Error(), "parsing profile") {
		t.Errorf("Expected profile parse error, got %v", err)
	}
}
