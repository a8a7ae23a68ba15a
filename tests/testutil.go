package tests

import (
	"encoding/json"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"sessiongate/internal/app"
	"sessiongate/pkg/config"
)

// newServer creates an httptest.Server bound to an IPv4 loopback
// listener. This returns a live server with srv.URL that can be used by
// http.Client.
func newServer(t *testing.T, handler http.Handler) *httptest.Server {
	t.Helper()
	ln, err := net.Listen("tcp4", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("failed to listen tcp4: %v", err)
	}
	srv := httptest.NewUnstartedServer(handler)
	srv.Listener = ln
	srv.Start()
	return srv
}

// localGatewayConfig is a ready-to-run local-mode gateway config: the
// embedded dev engine with in-memory sessions and a credentials
// provider.
func localGatewayConfig(runtime string) config.EffectiveConfigResult {
	cfg := &config.Config{}
	cfg.Server.Runtime = runtime
	cfg.Engine.Mode = "local"
	cfg.Auth.Secret = "integration-secret"
	cfg.Auth.Development = true
	cfg.Auth.Providers = []config.ProviderConfig{{ID: "credentials", Type: "credentials"}}
	return config.EffectiveConfigResult{
		Config:  cfg,
		Addr:    "127.0.0.1:0",
		Runtime: runtime,
		Source:  "flags",
	}
}

func newLocalGateway(t *testing.T, runtime string) *app.App {
	t.Helper()
	a, err := app.New(localGatewayConfig(runtime), "it", "none", "unknown")
	if err != nil {
		t.Fatalf("assemble gateway: %v", err)
	}
	return a
}

// signinAs signs name in through the engine mount and returns the
// session cookie.
func signinAs(t *testing.T, client *http.Client, baseURL, name string, roles []string) *http.Cookie {
	t.Helper()
	payload := map[string]interface{}{"name": name}
	if len(roles) > 0 {
		payload["roles"] = roles
	}
	b, _ := json.Marshal(payload)
	resp, err := client.Post(baseURL+"/auth/signin", "application/json", strings.NewReader(string(b)))
	if err != nil {
		t.Fatalf("signin: %v", err)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("signin status = %d", resp.StatusCode)
	}
	for _, c := range resp.Cookies() {
		if c.Value != "" {
			return c
		}
	}
	t.Fatal("signin set no session cookie")
	return nil
}

// doGet issues a GET with an optional session cookie and returns the
// status and body.
func doGet(t *testing.T, client *http.Client, url string, cookie *http.Cookie) (int, []byte) {
	t.Helper()
	req, err := http.NewRequest(http.MethodGet, url, nil)
	if err != nil {
		t.Fatalf("build request: %v", err)
	}
	if cookie != nil {
		req.AddCookie(cookie)
	}
	resp, err := client.Do(req)
	if err != nil {
		t.Fatalf("GET %s: %v", url, err)
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("read body: %v", err)
	}
	return resp.StatusCode, body
}
