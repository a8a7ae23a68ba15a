package engine

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"sessiongate/pkg/config"
)

func TestLocalRoundTrip(t *testing.T) {
	h := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/auth/session" {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.Header().Add("Set-Cookie", "a=1")
		w.Header().Add("Set-Cookie", "b=2")
		w.WriteHeader(http.StatusOK)
		io.WriteString(w, `{"user":{"name":"dev"}}`)
	})

	req := httptest.NewRequest(http.MethodGet, "http://gw.example.test/auth/session", nil)
	resp, err := NewLocal(h).Handle(req, nil)
	if err != nil {
		t.Fatalf("Handle: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	if got := resp.Header["Set-Cookie"]; len(got) != 2 {
		t.Fatalf("Set-Cookie = %v", got)
	}
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("read body: %v", err)
	}
	if string(body) != `{"user":{"name":"dev"}}` {
		t.Fatalf("body = %q", body)
	}
	if resp.ContentLength != int64(len(body)) {
		t.Fatalf("content length = %d", resp.ContentLength)
	}
}

func TestLocalDefaultsToOK(t *testing.T) {
	h := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, "ok")
	})
	resp, err := NewLocal(h).Handle(httptest.NewRequest(http.MethodGet, "http://x/", nil), nil)
	if err != nil {
		t.Fatalf("Handle: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
}

func TestLocalNilHandler(t *testing.T) {
	var l Local
	if _, err := l.Handle(httptest.NewRequest(http.MethodGet, "http://x/", nil), nil); err == nil {
		t.Fatal("expected error for nil handler")
	}
}

func TestNewRemoteEndpointValidation(t *testing.T) {
	cases := []struct {
		name     string
		endpoint string
	}{
		{"empty", ""},
		{"whitespace", "   "},
		{"no host", "http://"},
		{"unsupported scheme", "ftp://engine:21"},
		{"unix without path", "unix://"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := NewRemote(tc.endpoint, time.Second); err == nil {
				t.Fatalf("expected error for endpoint %q", tc.endpoint)
			}
		})
	}

	if _, err := NewRemote("http://127.0.0.1:9100", 0); err != nil {
		t.Fatalf("valid endpoint rejected: %v", err)
	}
	if _, err := NewRemote("unix:///tmp/engine.sock", time.Second); err != nil {
		t.Fatalf("valid unix endpoint rejected: %v", err)
	}
}

func TestRemoteForwarding(t *testing.T) {
	var seen struct {
		method, path, query, body string
		proto, host, cookie       string
	}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen.method = r.Method
		seen.path = r.URL.Path
		seen.query = r.URL.RawQuery
		seen.proto = r.Header.Get("X-Forwarded-Proto")
		seen.host = r.Header.Get("X-Forwarded-Host")
		seen.cookie = r.Header.Get("Cookie")
		b, _ := io.ReadAll(r.Body)
		seen.body = string(b)
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusCreated)
		io.WriteString(w, `{"ok":true}`)
	}))
	defer srv.Close()

	eng, err := NewRemote(srv.URL, 2*time.Second)
	if err != nil {
		t.Fatalf("NewRemote: %v", err)
	}

	req, err := http.NewRequest(http.MethodPost, "https://gw.example.test/auth/signin?cb=1", strings.NewReader("name=dev"))
	if err != nil {
		t.Fatalf("build request: %v", err)
	}
	req.Header.Set("Cookie", "sid=tok-1")

	resp, err := eng.Handle(req, &config.AuthConfig{})
	if err != nil {
		t.Fatalf("Handle: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	if seen.method != http.MethodPost || seen.path != "/auth/signin" || seen.query != "cb=1" {
		t.Fatalf("engine saw %s %s?%s", seen.method, seen.path, seen.query)
	}
	if seen.body != "name=dev" {
		t.Fatalf("body = %q", seen.body)
	}
	if seen.proto != "https" || seen.host != "gw.example.test" {
		t.Fatalf("forwarded proto=%q host=%q", seen.proto, seen.host)
	}
	if seen.cookie != "sid=tok-1" {
		t.Fatalf("cookie = %q", seen.cookie)
	}
}

func TestRemotePreservesExplicitForwardedHeaders(t *testing.T) {
	var proto, host string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		proto = r.Header.Get("X-Forwarded-Proto")
		host = r.Header.Get("X-Forwarded-Host")
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	eng, err := NewRemote(srv.URL, 2*time.Second)
	if err != nil {
		t.Fatalf("NewRemote: %v", err)
	}
	req, _ := http.NewRequest(http.MethodGet, "http://internal:8080/auth/session", nil)
	req.Header.Set("X-Forwarded-Proto", "https")
	req.Header.Set("X-Forwarded-Host", "public.example.test")

	resp, err := eng.Handle(req, nil)
	if err != nil {
		t.Fatalf("Handle: %v", err)
	}
	resp.Body.Close()

	if proto != "https" || host != "public.example.test" {
		t.Fatalf("forwarded proto=%q host=%q", proto, host)
	}
}

func TestRemoteEngineDown(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := srv.URL
	srv.Close()

	eng, err := NewRemote(url, 500*time.Millisecond)
	if err != nil {
		t.Fatalf("NewRemote: %v", err)
	}
	req, _ := http.NewRequest(http.MethodGet, "http://gw.example.test/auth/session", nil)
	if _, err := eng.Handle(req, nil); err == nil {
		t.Fatal("expected error against a closed engine")
	}
}
