// Package session defines the stable session shape the gateway hands
// to applications, the projection from raw engine payloads onto it,
// and the resolver that fetches the session for one native request.
package session

import (
	"bytes"
	"encoding/json"
)

// Session is the runtime-facing view of an engine session. The base
// fields are fixed; every other field the engine returned rides in
// Extra and survives a decode/encode round trip verbatim.
type Session struct {
	User    *User
	Expires string
	Extra   map[string]json.RawMessage
}

// User is the session's subject. As with Session, unknown fields are
// preserved in Extra rather than dropped.
type User struct {
	Name  string
	Email string
	Image string
	Extra map[string]json.RawMessage
}

// ProjectSession maps a raw engine payload onto the stable Session
// shape. It returns nil when the payload is empty, is JSON null,
// cannot be parsed, or carries no user — all of which mean "no usable
// session" to callers.
func ProjectSession(payload []byte) *Session {
	trimmed := bytes.TrimSpace(payload)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return nil
	}
	var s Session
	if err := json.Unmarshal(trimmed, &s); err != nil {
		return nil
	}
	if s.User == nil {
		return nil
	}
	return &s
}

func (s *Session) UnmarshalJSON(b []byte) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(b, &raw); err != nil {
		return err
	}
	for k, v := range raw {
		switch k {
		case "user":
			if isNull(v) {
				continue
			}
			u := &User{}
			if err := json.Unmarshal(v, u); err != nil {
				return err
			}
			s.User = u
		case "expires":
			if isNull(v) {
				continue
			}
			if err := json.Unmarshal(v, &s.Expires); err != nil {
				return err
			}
		default:
			if s.Extra == nil {
				s.Extra = make(map[string]json.RawMessage)
			}
			s.Extra[k] = v
		}
	}
	return nil
}

func (s Session) MarshalJSON() ([]byte, error) {
	out := make(map[string]json.RawMessage, len(s.Extra)+2)
	for k, v := range s.Extra {
		out[k] = v
	}
	if s.User != nil {
		b, err := json.Marshal(s.User)
		if err != nil {
			return nil, err
		}
		out["user"] = b
	}
	if s.Expires != "" {
		b, err := json.Marshal(s.Expires)
		if err != nil {
			return nil, err
		}
		out["expires"] = b
	}
	return json.Marshal(out)
}

func (u *User) UnmarshalJSON(b []byte) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(b, &raw); err != nil {
		return err
	}
	for k, v := range raw {
		switch k {
		case "name":
			if isNull(v) {
				continue
			}
			if err := json.Unmarshal(v, &u.Name); err != nil {
				return err
			}
		case "email":
			if isNull(v) {
				continue
			}
			if err := json.Unmarshal(v, &u.Email); err != nil {
				return err
			}
		case "image":
			if isNull(v) {
				continue
			}
			if err := json.Unmarshal(v, &u.Image); err != nil {
				return err
			}
		default:
			if u.Extra == nil {
				u.Extra = make(map[string]json.RawMessage)
			}
			u.Extra[k] = v
		}
	}
	return nil
}

func (u User) MarshalJSON() ([]byte, error) {
	out := make(map[string]json.RawMessage, len(u.Extra)+3)
	for k, v := range u.Extra {
		out[k] = v
	}
	if u.Name != "" {
		b, _ := json.Marshal(u.Name)
		out["name"] = b
	}
	if u.Email != "" {
		b, _ := json.Marshal(u.Email)
		out["email"] = b
	}
	if u.Image != "" {
		b, _ := json.Marshal(u.Image)
		out["image"] = b
	}
	return json.Marshal(out)
}

// Roles decodes the conventional "roles" extension when present.
// Plain string arrays decode directly; mixed arrays keep only their
// string elements.
func (u *User) Roles() []string {
	if u == nil {
		return nil
	}
	raw, ok := u.Extra["roles"]
	if !ok {
		return nil
	}
	var roles []string
	if err := json.Unmarshal(raw, &roles); err == nil {
		return roles
	}
	var mixed []interface{}
	if err := json.Unmarshal(raw, &mixed); err != nil {
		return nil
	}
	out := make([]string, 0, len(mixed))
	for _, r := range mixed {
		if s, ok := r.(string); ok {
			out = append(out, s)
		}
	}
	return out
}

func isNull(v json.RawMessage) bool {
	return bytes.Equal(bytes.TrimSpace(v), []byte("null"))
}
