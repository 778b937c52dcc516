package tools

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/aitoolkit/librarian-mcp/internal/apperr"
)

func TestGetStringArg(t *testing.T) {
	args := map[string]any{"name": "widget", "count": 3}
	if got := getStringArg(args, "name"); got != "widget" {
		t.Errorf("getStringArg(name) = %q, want widget", got)
	}
	if got := getStringArg(args, "count"); got != "" {
		t.Errorf("getStringArg(count) = %q, want empty (wrong type)", got)
	}
	if got := getStringArg(args, "missing"); got != "" {
		t.Errorf("getStringArg(missing) = %q, want empty", got)
	}
}

func TestGetIntArg(t *testing.T) {
	args := map[string]any{"depth": float64(5), "name": "x"}
	if got := getIntArg(args, "depth", 1); got != 5 {
		t.Errorf("getIntArg(depth) = %d, want 5", got)
	}
	if got := getIntArg(args, "name", 1); got != 1 {
		t.Errorf("getIntArg(name) = %d, want default 1 (wrong type)", got)
	}
	if got := getIntArg(args, "missing", 7); got != 7 {
		t.Errorf("getIntArg(missing) = %d, want default 7", got)
	}
}

func TestGetBoolArg(t *testing.T) {
	args := map[string]any{"dry_run": true}
	if !getBoolArg(args, "dry_run") {
		t.Error("getBoolArg(dry_run) = false, want true")
	}
	if getBoolArg(args, "missing") {
		t.Error("getBoolArg(missing) = true, want false")
	}
}

func TestGetStringSliceArg(t *testing.T) {
	args := map[string]any{"paths": []any{"a.go", "b.go", 3}}
	got := getStringSliceArg(args, "paths")
	want := []string{"a.go", "b.go"}
	if len(got) != len(want) {
		t.Fatalf("getStringSliceArg = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("getStringSliceArg[%d] = %q, want %q", i, got[i], want[i])
		}
	}
	if got := getStringSliceArg(args, "missing"); got != nil {
		t.Errorf("getStringSliceArg(missing) = %v, want nil", got)
	}
}

func TestErrPayloadIncludesDetails(t *testing.T) {
	err := apperr.New(apperr.EditNotFound, "old_text not found").WithDetail("old_text", "foo")
	payload := errPayload(err)
	if payload["kind"] != string(apperr.EditNotFound) {
		t.Errorf("kind = %v, want %v", payload["kind"], apperr.EditNotFound)
	}
	details, ok := payload["details"].(map[string]any)
	if !ok {
		t.Fatalf("details missing or wrong type: %v", payload["details"])
	}
	if details["old_text"] != "foo" {
		t.Errorf("details[old_text] = %v, want foo", details["old_text"])
	}
}

func TestErrPayloadDefaultsToInternal(t *testing.T) {
	payload := errPayload(os.ErrNotExist)
	if payload["kind"] != string(apperr.Internal) {
		t.Errorf("kind = %v, want internal for a plain error", payload["kind"])
	}
}

func TestAtomicWriteFileReplacesContent(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "out.txt")

	if err := atomicWriteFile(path, []byte("first")); err != nil {
		t.Fatalf("atomicWriteFile: %v", err)
	}
	if err := atomicWriteFile(path, []byte("second")); err != nil {
		t.Fatalf("atomicWriteFile (replace): %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	if string(data) != "second" {
		t.Errorf("content = %q, want second", string(data))
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("ReadDir: %v", err)
	}
	for _, e := range entries {
		if e.Name() != "out.txt" {
			t.Errorf("leftover temp file %q", e.Name())
		}
	}
}

func TestCheckWritableRejectsMissingDir(t *testing.T) {
	if err := checkWritable(filepath.Join(t.TempDir(), "does-not-exist")); err == nil {
		t.Error("checkWritable on a missing directory should fail")
	}
}

func TestCheckWritableAcceptsWritableDir(t *testing.T) {
	if err := checkWritable(t.TempDir()); err != nil {
		t.Errorf("checkWritable on a fresh temp dir should succeed, got %v", err)
	}
}
