package devengine

import (
	"testing"
	"time"
)

func TestMemoryStore(t *testing.T) {
	s := NewMemoryStore()
	defer s.Close()

	rec := Record{Name: "Ada", Expires: time.Now().Add(time.Hour)}
	if err := s.Put("tok-1", rec); err != nil {
		t.Fatalf("Put: %v", err)
	}

	got, ok, err := s.Get("tok-1")
	if err != nil || !ok {
		t.Fatalf("Get: ok=%v err=%v", ok, err)
	}
	if got.Name != "Ada" {
		t.Fatalf("record = %+v", got)
	}

	if _, ok, _ := s.Get("missing"); ok {
		t.Fatal("missing token resolved")
	}

	if err := s.Delete("tok-1"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, ok, _ := s.Get("tok-1"); ok {
		t.Fatal("deleted token resolved")
	}
}

func TestMemoryStoreExpiry(t *testing.T) {
	s := NewMemoryStore()
	defer s.Close()

	_ = s.Put("live", Record{Name: "a", Expires: time.Now().Add(time.Hour)})
	_ = s.Put("stale", Record{Name: "b", Expires: time.Now().Add(-time.Minute)})

	// Expired records vanish on read.
	if _, ok, _ := s.Get("stale"); ok {
		t.Fatal("expired token resolved")
	}

	_ = s.Put("stale2", Record{Name: "c", Expires: time.Now().Add(-time.Minute)})
	n, err := s.Prune(time.Now())
	if err != nil {
		t.Fatalf("Prune: %v", err)
	}
	if n != 1 {
		t.Fatalf("pruned %d, want 1", n)
	}
	if _, ok, _ := s.Get("live"); !ok {
		t.Fatal("live token pruned")
	}
}

func TestPebbleStore(t *testing.T) {
	s, err := OpenPebbleStore(t.TempDir())
	if err != nil {
		t.Fatalf("OpenPebbleStore: %v", err)
	}
	defer s.Close()

	rec := Record{
		Name:    "Ada",
		Email:   "ada@example.test",
		Roles:   []string{"admin"},
		Claims:  map[string]interface{}{"team": "core"},
		Expires: time.Now().Add(time.Hour).Truncate(time.Second),
	}
	if err := s.Put("tok-1", rec); err != nil {
		t.Fatalf("Put: %v", err)
	}

	got, ok, err := s.Get("tok-1")
	if err != nil || !ok {
		t.Fatalf("Get: ok=%v err=%v", ok, err)
	}
	if got.Name != rec.Name || got.Email != rec.Email {
		t.Fatalf("record = %+v", got)
	}
	if len(got.Roles) != 1 || got.Roles[0] != "admin" {
		t.Fatalf("roles = %v", got.Roles)
	}
	if got.Claims["team"] != "core" {
		t.Fatalf("claims = %v", got.Claims)
	}

	if _, ok, err := s.Get("missing"); ok || err != nil {
		t.Fatalf("missing token: ok=%v err=%v", ok, err)
	}

	if err := s.Delete("tok-1"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, ok, _ := s.Get("tok-1"); ok {
		t.Fatal("deleted token resolved")
	}
}

func TestPebbleStorePrune(t *testing.T) {
	s, err := OpenPebbleStore(t.TempDir())
	if err != nil {
		t.Fatalf("OpenPebbleStore: %v", err)
	}
	defer s.Close()

	now := time.Now()
	_ = s.Put("live", Record{Name: "a", Expires: now.Add(time.Hour)})
	_ = s.Put("stale1", Record{Name: "b", Expires: now.Add(-time.Minute)})
	_ = s.Put("stale2", Record{Name: "c", Expires: now.Add(-time.Hour)})

	n, err := s.Prune(now)
	if err != nil {
		t.Fatalf("Prune: %v", err)
	}
	if n != 2 {
		t.Fatalf("pruned %d, want 2", n)
	}
	if _, ok, _ := s.Get("live"); !ok {
		t.Fatal("live token pruned")
	}
	if _, ok, _ := s.Get("stale1"); ok {
		t.Fatal("stale token survived prune")
	}
}

func TestPebbleStoreEach(t *testing.T) {
	s, err := OpenPebbleStore(t.TempDir())
	if err != nil {
		t.Fatalf("OpenPebbleStore: %v", err)
	}
	defer s.Close()

	now := time.Now()
	_ = s.Put("t1", Record{Name: "a", Expires: now.Add(time.Hour)})
	_ = s.Put("t2", Record{Name: "b", Expires: now.Add(-time.Hour)})

	seen := map[string]Record{}
	err = s.Each(func(token string, rec Record) error {
		seen[token] = rec
		return nil
	})
	if err != nil {
		t.Fatalf("Each: %v", err)
	}
	// Each reports expired records too; listing is an offline
	// inspection tool, not a session read.
	if len(seen) != 2 {
		t.Fatalf("visited %d records, want 2", len(seen))
	}
	if seen["t1"].Name != "a" || seen["t2"].Name != "b" {
		t.Fatalf("records = %+v", seen)
	}
}

func TestPebbleStoreSurvivesReopen(t *testing.T) {
	dir := t.TempDir()

	s, err := OpenPebbleStore(dir)
	if err != nil {
		t.Fatalf("OpenPebbleStore: %v", err)
	}
	if err := s.Put("tok-1", Record{Name: "Ada", Expires: time.Now().Add(time.Hour)}); err != nil {
		t.Fatalf("Put: %v", err)
	}
	if err := s.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	s, err = OpenPebbleStore(dir)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer s.Close()
	if _, ok, err := s.Get("tok-1"); !ok || err != nil {
		t.Fatalf("token lost across reopen: ok=%v err=%v", ok, err)
	}
}
