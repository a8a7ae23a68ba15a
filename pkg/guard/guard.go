// Package guard implements the session guard protocol in front of
// application routes: resolve the session once per request, let public
// routes through no matter what, and refuse protected routes that
// cannot produce a user.
package guard

import (
	"context"
	"fmt"

	"sessiongate/pkg/httpx"
	"sessiongate/pkg/logger"
	"sessiongate/pkg/metrics"
	"sessiongate/pkg/session"
)

// msgNoUser is the reason attached when a protected route resolves no
// user. Clients match on this string, so it is fixed.
const msgNoUser = "No user found in session"

// RouteConfig is the explicit per-route record attached where the
// route is registered. The zero value describes a protected route with
// no role requirements.
type RouteConfig struct {
	// Public routes always reach their handler; session resolution
	// still runs so handlers can personalize, but its failures are
	// absorbed.
	Public bool
	// RequiredRoles, when non-empty, demands at least one matching
	// role on the resolved user. Role matching is enforced by the
	// runtime middleware, not by Check.
	RequiredRoles []string
}

// Identity carries the resolved session for the rest of the request.
type Identity struct {
	Session *session.Session
	User    *session.User
	// Property is the configured name applications use to address the
	// session (auth.session_property).
	Property string
}

// Authenticated reports whether a user was resolved.
func (id *Identity) Authenticated() bool {
	return id != nil && id.User != nil
}

// Roles returns the resolved user's role list, or nil for anonymous
// identities.
func (id *Identity) Roles() []string {
	if id == nil {
		return nil
	}
	return id.User.Roles()
}

// HasAnyRole reports whether the identity carries at least one of the
// required roles. An empty requirement always passes.
func (id *Identity) HasAnyRole(required []string) bool {
	if len(required) == 0 {
		return true
	}
	for _, need := range required {
		for _, have := range id.Roles() {
			if need == have {
				return true
			}
		}
	}
	return false
}

// Guard evaluates RouteConfigs against resolved sessions.
type Guard struct {
	resolver *session.Resolver
	property string
}

// New binds the guard to a validated resolver.
func New(rv *session.Resolver) (*Guard, error) {
	if rv == nil {
		return nil, fmt.Errorf("guard: nil resolver")
	}
	prop := rv.Config().SessionProperty
	if prop == "" {
		prop = "user"
	}
	return &Guard{resolver: rv, property: prop}, nil
}

// Check runs the guard protocol for one request: resolve, then decide.
// Public routes never fail — an unreachable engine just yields an
// anonymous identity. Protected routes fail with *UnauthorizedError
// when no user can be resolved; the reason is the fixed no-user message
// for an absent session and the resolution error's message when the
// engine call itself failed.
func (g *Guard) Check(ctx context.Context, ad httpx.Adapter, ex *httpx.Exchange, rc RouteConfig) (*Identity, error) {
	sess, err := g.resolver.Resolve(ctx, ad, ex)

	if rc.Public {
		if err != nil {
			logger.Debug("public_route_session_unavailable", "path", ad.RequestURI(ex), "error", err)
			sess = nil
		}
		id := &Identity{Session: sess, Property: g.property}
		if sess != nil {
			id.User = sess.User
		}
		metrics.GuardDecision("public", "allow")
		g.audit(ad, ex, "public", id, true)
		return id, nil
	}

	if err != nil {
		metrics.GuardDecision("protected", "deny")
		g.audit(ad, ex, "protected", nil, false)
		return nil, &UnauthorizedError{Reason: err.Error(), Err: err}
	}
	if sess == nil || sess.User == nil {
		metrics.GuardDecision("protected", "deny")
		g.audit(ad, ex, "protected", nil, false)
		return nil, &UnauthorizedError{Reason: msgNoUser}
	}

	id := &Identity{Session: sess, User: sess.User, Property: g.property}
	metrics.GuardDecision("protected", "allow")
	g.audit(ad, ex, "protected", id, true)
	return id, nil
}

func (g *Guard) audit(ad httpx.Adapter, ex *httpx.Exchange, kind string, id *Identity, allowed bool) {
	if logger.Audit == nil {
		return
	}
	logger.Audit.Info("guard_decision",
		"path", ad.RequestURI(ex),
		"kind", kind,
		"allowed", allowed,
		"authenticated", id.Authenticated(),
	)
}
