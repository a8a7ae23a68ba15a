package session

import (
	"encoding/json"
	"testing"
)

func TestProjectSession_NoUsableSession(t *testing.T) {
	cases := []struct {
		name    string
		payload string
	}{
		{"empty", ""},
		{"whitespace", "  \n\t"},
		{"json null", "null"},
		{"malformed", `{"user":`},
		{"not an object", `[1,2,3]`},
		{"empty object", `{}`},
		{"null user", `{"user":null,"expires":"2026-01-01T00:00:00Z"}`},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if s := ProjectSession([]byte(tc.payload)); s != nil {
				t.Fatalf("expected nil session, got %+v", s)
			}
		})
	}
}

func TestProjectSession_BaseFields(t *testing.T) {
	payload := `{
		"user": {"name": "Ada", "email": "ada@example.test", "image": "https://img.example.test/a.png"},
		"expires": "2026-09-01T00:00:00Z"
	}`
	s := ProjectSession([]byte(payload))
	if s == nil {
		t.Fatal("expected session, got nil")
	}
	if s.User.Name != "Ada" || s.User.Email != "ada@example.test" || s.User.Image != "https://img.example.test/a.png" {
		t.Fatalf("unexpected user %+v", s.User)
	}
	if s.Expires != "2026-09-01T00:00:00Z" {
		t.Fatalf("expires = %q", s.Expires)
	}
	if len(s.Extra) != 0 {
		t.Fatalf("unexpected extras %v", s.Extra)
	}
}

func TestProjectSession_ExtrasSurviveRoundTrip(t *testing.T) {
	payload := `{
		"user": {"name": "Ada", "id": "u-17", "roles": ["admin"]},
		"expires": "2026-09-01T00:00:00Z",
		"accessToken": "tok-123",
		"nested": {"a": [1, 2], "b": null}
	}`
	s := ProjectSession([]byte(payload))
	if s == nil {
		t.Fatal("expected session, got nil")
	}
	if string(s.Extra["accessToken"]) != `"tok-123"` {
		t.Fatalf("accessToken extra = %s", s.Extra["accessToken"])
	}
	if string(s.User.Extra["id"]) != `"u-17"` {
		t.Fatalf("user id extra = %s", s.User.Extra["id"])
	}

	out, err := json.Marshal(s)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var got map[string]interface{}
	if err := json.Unmarshal(out, &got); err != nil {
		t.Fatalf("unmarshal round trip: %v", err)
	}
	if got["accessToken"] != "tok-123" {
		t.Fatalf("round trip lost accessToken: %v", got)
	}
	if got["expires"] != "2026-09-01T00:00:00Z" {
		t.Fatalf("round trip lost expires: %v", got)
	}
	user, ok := got["user"].(map[string]interface{})
	if !ok {
		t.Fatalf("round trip lost user: %v", got)
	}
	if user["id"] != "u-17" || user["name"] != "Ada" {
		t.Fatalf("round trip user = %v", user)
	}
	nested, ok := got["nested"].(map[string]interface{})
	if !ok || nested["b"] != nil {
		t.Fatalf("round trip nested = %v", got["nested"])
	}
}

func TestProjectSession_NullBaseFieldsSkipped(t *testing.T) {
	payload := `{"user": {"name": null, "email": "e@example.test", "image": null}, "expires": null}`
	s := ProjectSession([]byte(payload))
	if s == nil {
		t.Fatal("expected session, got nil")
	}
	if s.User.Name != "" || s.User.Image != "" {
		t.Fatalf("null fields should stay zero, got %+v", s.User)
	}
	if s.User.Email != "e@example.test" {
		t.Fatalf("email = %q", s.User.Email)
	}
	if s.Expires != "" {
		t.Fatalf("expires = %q", s.Expires)
	}
}

func TestUserRoles(t *testing.T) {
	cases := []struct {
		name  string
		user  string
		roles []string
	}{
		{"string array", `{"name":"a","roles":["admin","editor"]}`, []string{"admin", "editor"}},
		{"mixed array keeps strings", `{"name":"a","roles":["admin",1,true,"editor"]}`, []string{"admin", "editor"}},
		{"no roles key", `{"name":"a"}`, nil},
		{"roles not an array", `{"name":"a","roles":"admin"}`, nil},
		{"empty array", `{"name":"a","roles":[]}`, []string{}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			var u User
			if err := json.Unmarshal([]byte(tc.user), &u); err != nil {
				t.Fatalf("unmarshal user: %v", err)
			}
			got := u.Roles()
			if len(got) != len(tc.roles) {
				t.Fatalf("roles = %v, want %v", got, tc.roles)
			}
			for i := range got {
				if got[i] != tc.roles[i] {
					t.Fatalf("roles = %v, want %v", got, tc.roles)
				}
			}
		})
	}

	// A nil user has no roles.
	var u *User
	if got := u.Roles(); got != nil {
		t.Fatalf("nil user roles = %v", got)
	}
}
