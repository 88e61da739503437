package handoff

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func testStores(t *testing.T) map[string]Store {
	return map[string]Store{
		"memory": NewMemoryStore(),
		"file":   NewFileStore(filepath.Join(t.TempDir(), "handoff")),
	}
}

func TestStore_TakeOnce(t *testing.T) {
	for name, store := range testStores(t) {
		t.Run(name, func(t *testing.T) {
			msg := Message{
				Identity:   "ElmSomething",
				AppName:    "a/b",
				Key:        "_a$b$Native_Something",
				Epoch:      2,
				CapturedAt: time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC),
			}
			if err := store.Put(msg); err != nil {
				t.Fatalf("Put: %v", err)
			}

			got, ok, err := store.Take("ElmSomething")
			if err != nil || !ok {
				t.Fatalf("Take = %v, %v", ok, err)
			}
			if got.AppName != msg.AppName || got.Key != msg.Key || got.Epoch != msg.Epoch {
				t.Errorf("Take = %+v, want %+v", got, msg)
			}
			if !got.CapturedAt.Equal(msg.CapturedAt) {
				t.Errorf("CapturedAt = %v, want %v", got.CapturedAt, msg.CapturedAt)
			}

			if _, ok, err := store.Take("ElmSomething"); ok || err != nil {
				t.Errorf("second Take = %v, %v; want cleared", ok, err)
			}
		})
	}
}

func TestStore_MissingIdentity(t *testing.T) {
	for name, store := range testStores(t) {
		t.Run(name, func(t *testing.T) {
			if _, ok, err := store.Take("nobody"); ok || err != nil {
				t.Errorf("Take(nobody) = %v, %v", ok, err)
			}
		})
	}
}

func TestStore_PutReplaces(t *testing.T) {
	for name, store := range testStores(t) {
		t.Run(name, func(t *testing.T) {
			store.Put(Message{Identity: "S", AppName: "a/one"})
			store.Put(Message{Identity: "S", AppName: "a/two"})

			got, ok, _ := store.Take("S")
			if !ok || got.AppName != "a/two" {
				t.Errorf("Take = %+v, %v; want a/two", got, ok)
			}
		})
	}
}

func TestFileStore_SurvivesNewInstance(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "handoff")

	if err := NewFileStore(dir).Put(Message{Identity: "ElmSomething", AppName: "a/b"}); err != nil {
		t.Fatal(err)
	}

	got, ok, err := NewFileStore(dir).Take("ElmSomething")
	if err != nil || !ok {
		t.Fatalf("Take from new instance = %v, %v", ok, err)
	}
	if got.AppName != "a/b" {
		t.Errorf("AppName = %q, want a/b", got.AppName)
	}

	entries, _ := os.ReadDir(dir)
	if len(entries) != 0 {
		t.Errorf("handoff dir still has %d files after Take", len(entries))
	}
}

func TestFileStore_UnsafeIdentity(t *testing.T) {
	dir := t.TempDir()
	store := NewFileStore(dir)

	if err := store.Put(Message{Identity: "../escape/me", AppName: "a/b"}); err != nil {
		t.Fatal(err)
	}
	entries, _ := os.ReadDir(dir)
	if len(entries) != 1 {
		t.Fatalf("expected one file inside the store dir, got %d", len(entries))
	}

	if _, ok, _ := store.Take("../escape/me"); !ok {
		t.Error("Take should find the message by its original identity")
	}
}

func TestFileStore_DistinctIdentitiesDoNotCollide(t *testing.T) {
	store := NewFileStore(t.TempDir())

	identities := map[string]string{
		"a/b": "first/app",
		"a_b": "second/app",
		"a:b": "third/app",
	}
	for identity, app := range identities {
		if err := store.Put(Message{Identity: identity, AppName: app}); err != nil {
			t.Fatalf("Put(%q): %v", identity, err)
		}
	}
	for identity, app := range identities {
		got, ok, err := store.Take(identity)
		if err != nil || !ok {
			t.Fatalf("Take(%q) = %v, %v", identity, ok, err)
		}
		if got.AppName != app || got.Identity != identity {
			t.Errorf("Take(%q) = %+v, want app %q", identity, got, app)
		}
	}
}

func TestFileName(t *testing.T) {
	tests := []struct {
		identity string
		want     string
	}{
		{"ElmSomething", "ElmSomething"},
		{"Native.Clock-2", "Native.Clock-2"},
		{"a_b", "a_5fb"},
		{"a/b", "a_2fb"},
		{"../x", ".._2fx"},
	}
	for _, tt := range tests {
		if got := fileName(tt.identity); got != tt.want {
			t.Errorf("fileName(%q) = %q, want %q", tt.identity, got, tt.want)
		}
	}
}

func TestFileStore_Corrupt(t *testing.T) {
	dir := t.TempDir()
	store := NewFileStore(dir)
	if err := os.WriteFile(filepath.Join(dir, "S.json"), []byte("{not json"), 0644); err != nil {
		t.Fatal(err)
	}

	if _, ok, err := store.Take("S"); ok || err == nil {
		t.Errorf("Take of corrupt file = %v, %v; want error", ok, err)
	}
	if _, err := os.Stat(filepath.Join(dir, "S.json")); !os.IsNotExist(err) {
		t.Error("corrupt file should be cleared after Take")
	}
}

func TestMemoryStore_Pending(t *testing.T) {
	s := NewMemoryStore()
	s.Put(Message{Identity: "A"})
	s.Put(Message{Identity: "B"})
	if s.Pending() != 2 {
		t.Errorf("Pending = %d, want 2", s.Pending())
	}
	s.Take("A")
	if s.Pending() != 1 {
		t.Errorf("Pending = %d, want 1", s.Pending())
	}
}
