package devengine

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"sessiongate/pkg/config"
)

func signinJSON(t *testing.T, srv *httptest.Server, path, body string) *http.Response {
	t.Helper()
	resp, err := http.Post(srv.URL+path, "application/json", strings.NewReader(body))
	if err != nil {
		t.Fatalf("POST %s: %v", path, err)
	}
	return resp
}

func sessionCookie(t *testing.T, resp *http.Response, name string) *http.Cookie {
	t.Helper()
	for _, c := range resp.Cookies() {
		if c.Name == name {
			return c
		}
	}
	t.Fatalf("cookie %q not set; got %v", name, resp.Cookies())
	return nil
}

func TestSigninSessionSignoutFlow(t *testing.T) {
	eng := New(Options{})
	srv := httptest.NewServer(eng)
	defer srv.Close()
	defer eng.Store().Close()

	// Sign in and collect the session cookie.
	resp := signinJSON(t, srv, "/auth/signin", `{"name":"Ada","email":"ada@example.test","roles":["admin"]}`)
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("signin status = %d", resp.StatusCode)
	}
	cookie := sessionCookie(t, resp, DefaultCookieName)
	if !cookie.HttpOnly || cookie.Value == "" {
		t.Fatalf("cookie = %+v", cookie)
	}

	// The session endpoint returns the signed-in user for that cookie.
	req, _ := http.NewRequest(http.MethodGet, srv.URL+"/auth/session", nil)
	req.AddCookie(cookie)
	resp2, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("GET session: %v", err)
	}
	defer resp2.Body.Close()
	var sess struct {
		User struct {
			Name  string   `json:"name"`
			Email string   `json:"email"`
			Roles []string `json:"roles"`
		} `json:"user"`
		Expires string `json:"expires"`
	}
	if err := json.NewDecoder(resp2.Body).Decode(&sess); err != nil {
		t.Fatalf("decode session: %v", err)
	}
	if sess.User.Name != "Ada" || sess.User.Email != "ada@example.test" {
		t.Fatalf("session user = %+v", sess.User)
	}
	if len(sess.User.Roles) != 1 || sess.User.Roles[0] != "admin" {
		t.Fatalf("roles = %v", sess.User.Roles)
	}
	if sess.Expires == "" {
		t.Fatal("expires missing")
	}

	// Sign out deletes the session and expires the cookie.
	req, _ = http.NewRequest(http.MethodPost, srv.URL+"/auth/signout", nil)
	req.AddCookie(cookie)
	resp3, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("POST signout: %v", err)
	}
	defer resp3.Body.Close()
	if c := sessionCookie(t, resp3, DefaultCookieName); c.MaxAge != -1 {
		t.Fatalf("signout cookie max-age = %d", c.MaxAge)
	}

	// The token no longer resolves.
	req, _ = http.NewRequest(http.MethodGet, srv.URL+"/auth/session", nil)
	req.AddCookie(cookie)
	resp4, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("GET session: %v", err)
	}
	defer resp4.Body.Close()
	var raw json.RawMessage
	if err := json.NewDecoder(resp4.Body).Decode(&raw); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if string(raw) != "null" {
		t.Fatalf("session after signout = %s", raw)
	}
}

func TestSessionWithoutCookieIsNull(t *testing.T) {
	srv := httptest.NewServer(New(Options{}))
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/auth/session")
	if err != nil {
		t.Fatalf("GET session: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	var raw json.RawMessage
	if err := json.NewDecoder(resp.Body).Decode(&raw); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if string(raw) != "null" {
		t.Fatalf("body = %s", raw)
	}
}

func TestSigninValidation(t *testing.T) {
	srv := httptest.NewServer(New(Options{}))
	defer srv.Close()

	// Unknown providers 404.
	resp := signinJSON(t, srv, "/auth/signin/github", `{"name":"Ada"}`)
	resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("unknown provider status = %d", resp.StatusCode)
	}

	// A known provider in the path works.
	resp = signinJSON(t, srv, "/auth/signin/credentials", `{"name":"Ada"}`)
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("credentials signin status = %d", resp.StatusCode)
	}

	// Name or email is required.
	resp = signinJSON(t, srv, "/auth/signin", `{}`)
	resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("empty signin status = %d", resp.StatusCode)
	}

	// Malformed JSON is a 400, not a panic.
	resp = signinJSON(t, srv, "/auth/signin", `{"name":`)
	resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("malformed signin status = %d", resp.StatusCode)
	}
}

func TestFormSignin(t *testing.T) {
	srv := httptest.NewServer(New(Options{}))
	defer srv.Close()

	form := url.Values{"name": {"Dev"}, "roles": {"admin, editor"}}
	resp, err := http.PostForm(srv.URL+"/auth/signin", form)
	if err != nil {
		t.Fatalf("PostForm: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	var sess struct {
		User struct {
			Name  string   `json:"name"`
			Roles []string `json:"roles"`
		} `json:"user"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&sess); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if sess.User.Name != "Dev" {
		t.Fatalf("name = %q", sess.User.Name)
	}
	if len(sess.User.Roles) != 2 || sess.User.Roles[0] != "admin" || sess.User.Roles[1] != "editor" {
		t.Fatalf("roles = %v", sess.User.Roles)
	}
}

func TestProvidersListing(t *testing.T) {
	eng := New(Options{
		BasePath: "/identity",
		Providers: []config.ProviderConfig{
			{ID: "credentials", Type: "credentials"},
			{ID: "github", Name: "GitHub", Type: "oauth"},
		},
	})
	srv := httptest.NewServer(eng)
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/identity/providers")
	if err != nil {
		t.Fatalf("GET providers: %v", err)
	}
	defer resp.Body.Close()

	var out map[string]struct {
		ID        string `json:"id"`
		Name      string `json:"name"`
		Type      string `json:"type"`
		SigninURL string `json:"signinUrl"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(out) != 2 {
		t.Fatalf("providers = %v", out)
	}
	if out["github"].Name != "GitHub" || out["github"].SigninURL != "/identity/signin/github" {
		t.Fatalf("github entry = %+v", out["github"])
	}
	// Name falls back to the id when unset.
	if out["credentials"].Name != "credentials" {
		t.Fatalf("credentials entry = %+v", out["credentials"])
	}
}

func TestCustomBasePathAndCookie(t *testing.T) {
	eng := New(Options{BasePath: "identity/", CookieName: "dev.sid"})
	srv := httptest.NewServer(eng)
	defer srv.Close()

	resp := signinJSON(t, srv, "/identity/signin", `{"name":"Ada"}`)
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	sessionCookie(t, resp, "dev.sid")

	// The default base path is not mounted.
	resp2, err := http.Post(srv.URL+"/auth/signin", "application/json", strings.NewReader(`{"name":"Ada"}`))
	if err != nil {
		t.Fatalf("POST: %v", err)
	}
	resp2.Body.Close()
	if resp2.StatusCode != http.StatusNotFound {
		t.Fatalf("default base path status = %d", resp2.StatusCode)
	}
}
