// Package devengine is a minimal session engine for development and
// tests. It speaks the same surface the gateway expects of any engine:
// cookie-token sessions under a configurable base path. Nothing in here
// is meant to face the internet.
package devengine

import (
	"encoding/json"
	"mime"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"

	"sessiongate/pkg/config"
	"sessiongate/pkg/logger"
	"sessiongate/pkg/utils"
)

const (
	// DefaultCookieName carries the session token between requests.
	DefaultCookieName = "sessiongate.session-token"

	// DefaultSessionTTL bounds dev sessions that set no explicit expiry.
	DefaultSessionTTL = 24 * time.Hour
)

// Options configures the engine. Zero fields fall back to defaults.
type Options struct {
	BasePath   string
	CookieName string
	SessionTTL time.Duration
	Providers  []config.ProviderConfig
	Store      SessionStore
}

// Engine serves the session endpoints over plain net/http. Mount it
// in-process through engine.NewLocal or run it standalone via
// cmd/devengine.
type Engine struct {
	opts   Options
	router *mux.Router
}

// New builds the engine and its route table.
func New(opts Options) *Engine {
	opts.BasePath = config.NormalizeBasePath(opts.BasePath)
	if opts.CookieName == "" {
		opts.CookieName = DefaultCookieName
	}
	if opts.SessionTTL <= 0 {
		opts.SessionTTL = DefaultSessionTTL
	}
	if opts.Store == nil {
		opts.Store = NewMemoryStore()
	}
	if len(opts.Providers) == 0 {
		opts.Providers = []config.ProviderConfig{{ID: "credentials", Name: "Credentials", Type: "credentials"}}
	}

	e := &Engine{opts: opts, router: mux.NewRouter()}
	sub := e.router.PathPrefix(opts.BasePath).Subrouter()
	sub.HandleFunc("/session", e.handleSession).Methods("GET")
	sub.HandleFunc("/signin", e.handleSignin).Methods("POST")
	sub.HandleFunc("/signin/{provider}", e.handleSignin).Methods("POST")
	sub.HandleFunc("/signout", e.handleSignout).Methods("POST")
	sub.HandleFunc("/providers", e.handleProviders).Methods("GET")
	return e
}

// Store exposes the session store so owners can close it on shutdown.
func (e *Engine) Store() SessionStore { return e.opts.Store }

// ServeHTTP implements http.Handler.
func (e *Engine) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	e.router.ServeHTTP(w, r)
}

// sessionPayload is the wire shape of a live session.
type sessionPayload struct {
	User    userPayload `json:"user"`
	Expires string      `json:"expires"`
}

type userPayload struct {
	Name   string                 `json:"name,omitempty"`
	Email  string                 `json:"email,omitempty"`
	Image  string                 `json:"image,omitempty"`
	Roles  []string               `json:"roles,omitempty"`
	Claims map[string]interface{} `json:"claims,omitempty"`
}

func payloadFor(rec Record) sessionPayload {
	return sessionPayload{
		User: userPayload{
			Name:   rec.Name,
			Email:  rec.Email,
			Image:  rec.Image,
			Roles:  rec.Roles,
			Claims: rec.Claims,
		},
		Expires: rec.Expires.UTC().Format(time.RFC3339),
	}
}

// handleSession answers the session fetch the gateway synthesizes on
// every guarded request. No (or unknown, or expired) token answers a
// JSON null with status 200; the gateway projects that to "no session".
func (e *Engine) handleSession(w http.ResponseWriter, r *http.Request) {
	token := e.token(r)
	if token == "" {
		writeNull(w)
		return
	}
	rec, ok, err := e.opts.Store.Get(token)
	if err != nil {
		logger.Error("session_lookup_failed", "error", err)
		utils.JSONError(w, http.StatusInternalServerError, "session lookup failed")
		return
	}
	if !ok {
		writeNull(w)
		return
	}
	_ = utils.JSONWrite(w, http.StatusOK, payloadFor(rec))
}

// signinRequest is what POST {base}/signin accepts, as JSON or form.
type signinRequest struct {
	Name   string                 `json:"name"`
	Email  string                 `json:"email"`
	Image  string                 `json:"image"`
	Roles  []string               `json:"roles"`
	Claims map[string]interface{} `json:"claims"`
}

func (e *Engine) handleSignin(w http.ResponseWriter, r *http.Request) {
	providerID := mux.Vars(r)["provider"]
	if providerID != "" && e.provider(providerID) == nil {
		utils.JSONError(w, http.StatusNotFound, "unknown provider: "+providerID)
		return
	}

	req, err := decodeSignin(r)
	if err != nil {
		utils.JSONError(w, http.StatusBadRequest, err.Error())
		return
	}
	if req.Name == "" && req.Email == "" {
		utils.JSONError(w, http.StatusBadRequest, "name or email required")
		return
	}

	rec := Record{
		Name:    req.Name,
		Email:   req.Email,
		Image:   req.Image,
		Roles:   req.Roles,
		Claims:  req.Claims,
		Expires: time.Now().Add(e.opts.SessionTTL),
	}
	token := uuid.NewString()
	if err := e.opts.Store.Put(token, rec); err != nil {
		logger.Error("session_save_failed", "error", err)
		utils.JSONError(w, http.StatusInternalServerError, "session save failed")
		return
	}

	http.SetCookie(w, &http.Cookie{
		Name:     e.opts.CookieName,
		Value:    token,
		Path:     "/",
		Expires:  rec.Expires,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
	logger.Info("dev_signin", "provider", providerID, "email", req.Email)
	_ = utils.JSONWrite(w, http.StatusOK, payloadFor(rec))
}

func (e *Engine) handleSignout(w http.ResponseWriter, r *http.Request) {
	if token := e.token(r); token != "" {
		if err := e.opts.Store.Delete(token); err != nil {
			logger.Error("session_delete_failed", "error", err)
		}
	}
	// expire the cookie either way
	http.SetCookie(w, &http.Cookie{
		Name:     e.opts.CookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
	_ = utils.JSONWrite(w, http.StatusOK, map[string]bool{"signedOut": true})
}

// providerInfo is the per-provider entry of GET {base}/providers.
type providerInfo struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Type      string `json:"type"`
	SigninURL string `json:"signinUrl"`
}

func (e *Engine) handleProviders(w http.ResponseWriter, r *http.Request) {
	out := make(map[string]providerInfo, len(e.opts.Providers))
	for _, p := range e.opts.Providers {
		name := p.Name
		if name == "" {
			name = p.ID
		}
		out[p.ID] = providerInfo{
			ID:        p.ID,
			Name:      name,
			Type:      p.Type,
			SigninURL: e.opts.BasePath + "/signin/" + p.ID,
		}
	}
	_ = utils.JSONWrite(w, http.StatusOK, out)
}

func (e *Engine) provider(id string) *config.ProviderConfig {
	for i := range e.opts.Providers {
		if e.opts.Providers[i].ID == id {
			return &e.opts.Providers[i]
		}
	}
	return nil
}

func (e *Engine) token(r *http.Request) string {
	c, err := r.Cookie(e.opts.CookieName)
	if err != nil {
		return ""
	}
	return c.Value
}

func decodeSignin(r *http.Request) (signinRequest, error) {
	var req signinRequest
	ct := r.Header.Get("Content-Type")
	if mt, _, err := mime.ParseMediaType(ct); err == nil && mt == "application/json" {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			return req, err
		}
		return req, nil
	}
	if err := r.ParseForm(); err != nil {
		return req, err
	}
	req.Name = r.PostFormValue("name")
	req.Email = r.PostFormValue("email")
	req.Image = r.PostFormValue("image")
	if roles := r.PostFormValue("roles"); roles != "" {
		for _, role := range strings.Split(roles, ",") {
			if role = strings.TrimSpace(role); role != "" {
				req.Roles = append(req.Roles, role)
			}
		}
	}
	return req, nil
}

func writeNull(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("null\n"))
}
