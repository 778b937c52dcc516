package librarian

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
)

func TestWriteCreatesArtifacts(t *testing.T) {
	dir := t.TempDir()
	aPath := writeTempPy(t, dir, "a.py", "class A:\n    pass\n")
	bPath := writeTempPy(t, dir, "b.py", "def f():\n    pass\n")

	summaries := []*FileSummary{
		ParseFile(aPath, "a.py"),
		ParseFile(bPath, "b.py"),
	}

	index, registry, err := Write(dir, summaries, DefaultConfig())
	if err != nil {
		t.Fatal(err)
	}
	if len(index.Files) != 2 {
		t.Fatalf("index.Files = %+v", index.Files)
	}
	if _, ok := registry.Components["A"]; !ok {
		t.Error("A missing from registry")
	}
	if _, ok := registry.Components["f"]; !ok {
		t.Error("f missing from registry")
	}

	for _, name := range []string{"script_index.json", "component_registry.json", "README.md"} {
		p := filepath.Join(dir, ".ai_reference", name)
		if _, err := os.Stat(p); err != nil {
			t.Errorf("expected %s to exist: %v", name, err)
		}
	}
	miniPath := filepath.Join(dir, ".ai_reference", "scripts", "a_py.json")
	data, err := os.ReadFile(miniPath)
	if err != nil {
		t.Fatalf("mini-librarian missing: %v", err)
	}
	var roundTrip FileSummary
	if err := json.Unmarshal(data, &roundTrip); err != nil {
		t.Fatalf("mini-librarian does not parse back: %v", err)
	}
	if roundTrip.RelativePath != "a.py" {
		t.Errorf("round trip RelativePath = %q", roundTrip.RelativePath)
	}
}

func TestBuildRegistryCollision(t *testing.T) {
	summaries := []*FileSummary{
		{RelativePath: "a.py", Functions: []*ComponentRef{{Name: "dup", Kind: "function", StartLine: 1, EndLine: 1}}},
		{RelativePath: "b.py", Functions: []*ComponentRef{{Name: "dup", Kind: "function", StartLine: 2, EndLine: 2}}},
	}
	reg := BuildRegistry(summaries)
	loc, ok := reg.Components["dup"]
	if !ok || loc.File != "a.py" {
		t.Errorf("expected first-encountered a.py to win, got %+v", loc)
	}
	if len(reg.Shadowed) != 1 || reg.Shadowed[0].Location.File != "b.py" {
		t.Errorf("Shadowed = %+v", reg.Shadowed)
	}
}

func TestFlattenRelPath(t *testing.T) {
	if got := FlattenRelPath("pkg/sub/foo.py"); got != "pkg_sub_foo_py" {
		t.Errorf("FlattenRelPath() = %q", got)
	}
}

func TestWriteIdempotentModuloTimestamp(t *testing.T) {
	dir := t.TempDir()
	summaries := []*FileSummary{{RelativePath: "x.py"}}
	if _, _, err := Write(dir, summaries, DefaultConfig()); err != nil {
		t.Fatal(err)
	}
	readmeBefore, _ := os.ReadFile(filepath.Join(dir, ".ai_reference", "README.md"))
	if _, _, err := Write(dir, summaries, DefaultConfig()); err != nil {
		t.Fatal(err)
	}
	readmeAfter, _ := os.ReadFile(filepath.Join(dir, ".ai_reference", "README.md"))
	if string(readmeBefore) != string(readmeAfter) {
		t.Error("README.md should be stable across re-writes at the same schema version")
	}
}
