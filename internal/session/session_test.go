package session

import (
	"testing"
)

func TestSaveAndLoadRoundTrip(t *testing.T) {
	t.Setenv("XDG_CACHE_HOME", t.TempDir())

	s := New([]string{"/proj/a", "/proj/b"})
	if err := Save(s); err != nil {
		t.Fatal(err)
	}

	loaded, err := Load()
	if err != nil {
		t.Fatal(err)
	}
	if len(loaded.ActiveProjects) != 2 {
		t.Fatalf("ActiveProjects = %v", loaded.ActiveProjects)
	}
	if loaded.LastUpdate["/proj/a"] == 0 {
		t.Error("expected a last_update timestamp for /proj/a")
	}
}

func TestLoadMissingFileReturnsEmpty(t *testing.T) {
	t.Setenv("XDG_CACHE_HOME", t.TempDir())

	s, err := Load()
	if err != nil {
		t.Fatal(err)
	}
	if len(s.ActiveProjects) != 0 {
		t.Errorf("expected empty ActiveProjects, got %v", s.ActiveProjects)
	}
	if s.LastUpdate == nil {
		t.Error("expected non-nil LastUpdate map")
	}
}
