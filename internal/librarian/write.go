package librarian

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/aitoolkit/librarian-mcp/internal/apperr"
)

const schemaVersion = "0.1.0"

// Config controls Index Writer policy knobs sourced from process
// configuration.
type Config struct {
	MaxScriptIndexBytes int // default 512000
}

func DefaultConfig() Config {
	return Config{MaxScriptIndexBytes: 512000}
}

// Write assembles and atomically persists .ai_reference/ for a project
// given the FileSummary for every source file currently tracked. It
// returns the in-memory ScriptIndex and ComponentRegistry for the
// In-Memory Registry to adopt.
func Write(root string, summaries []*FileSummary, cfg Config) (*ScriptIndex, *ComponentRegistry, error) {
	refDir := filepath.Join(root, ".ai_reference")
	scriptsDir := filepath.Join(refDir, "scripts")
	diagDir := filepath.Join(refDir, "diagnostics")
	for _, d := range []string{refDir, scriptsDir, diagDir} {
		if err := os.MkdirAll(d, 0o755); err != nil {
			return nil, nil, apperr.Wrap(apperr.Internal, err, "create .ai_reference directories")
		}
	}

	// Sort by relative path ascending for deterministic collision
	// resolution and mini-librarian write order.
	sorted := append([]*FileSummary(nil), summaries...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].RelativePath < sorted[j].RelativePath })

	index := &ScriptIndex{
		Files:     make(map[string]FileEntry, len(sorted)),
		Version:   schemaVersion,
		UpdatedAt: time.Now().UTC().Format(time.RFC3339),
	}
	registry := BuildRegistry(sorted)

	for _, fs := range sorted {
		if fs.ParseError != "" {
			continue
		}
		miniName := FlattenRelPath(fs.RelativePath) + ".json"
		if err := atomicWriteJSON(filepath.Join(scriptsDir, miniName), fs, true); err != nil {
			return nil, nil, err
		}
		index.Files[fs.RelativePath] = FileEntry{
			Path:          fs.RelativePath,
			Classes:       componentNames(fs.Classes),
			Functions:     componentNames(fs.Functions),
			MiniLibrarian: "scripts/" + miniName,
		}
	}

	if err := writeScriptIndex(filepath.Join(refDir, "script_index.json"), index, cfg); err != nil {
		return nil, nil, err
	}
	if err := atomicWriteJSON(filepath.Join(refDir, "component_registry.json"), registry, true); err != nil {
		return nil, nil, err
	}
	if err := writeReadmeIfStale(refDir); err != nil {
		return nil, nil, err
	}

	return index, registry, nil
}

// BuildRegistry assembles the ComponentRegistry from summaries already
// sorted ascending by relative path: the collision rule keeps the first
// encountered top-level name in that order and records the loser in
// Shadowed.
func BuildRegistry(sortedSummaries []*FileSummary) *ComponentRegistry {
	reg := &ComponentRegistry{
		Components: make(map[string]ComponentLocation),
		Methods:    make(map[string]ComponentLocation),
		Version:    schemaVersion,
	}

	addTopLevel := func(file string, ref *ComponentRef) {
		loc := ComponentLocation{File: file, Kind: ref.Kind, StartLine: ref.StartLine, EndLine: ref.EndLine}
		if _, ok := reg.Components[ref.Name]; ok {
			reg.Shadowed = append(reg.Shadowed, ShadowedEntry{Name: ref.Name, Location: loc})
			return // first one encountered wins
		}
		reg.Components[ref.Name] = loc
	}

	for _, fs := range sortedSummaries {
		if fs.ParseError != "" {
			continue
		}
		for _, cls := range fs.Classes {
			addTopLevel(fs.RelativePath, cls)
			methodNames := make([]string, 0, len(cls.Methods))
			for name := range cls.Methods {
				methodNames = append(methodNames, name)
			}
			sort.Strings(methodNames)
			for _, name := range methodNames {
				m := cls.Methods[name]
				key := cls.Name + "." + name
				reg.Methods[key] = ComponentLocation{
					File: fs.RelativePath, Kind: "method",
					StartLine: m.StartLine, EndLine: m.EndLine,
				}
			}
		}
		for _, fn := range fs.Functions {
			addTopLevel(fs.RelativePath, fn)
		}
	}
	return reg
}

func componentNames(refs []*ComponentRef) []string {
	names := make([]string, 0, len(refs))
	for _, r := range refs {
		names = append(names, r.Name)
	}
	return names
}

// FlattenRelPath turns a project-relative path into the mini-librarian
// filename stem by replacing path separators and every dot (the
// extension's included) with underscores, e.g. "pkg/foo.py" -> "pkg_foo_py".
func FlattenRelPath(relPath string) string {
	s := strings.ReplaceAll(relPath, "/", "_")
	s = strings.ReplaceAll(s, ".", "_")
	return s
}

// atomicWriteJSON marshals v and writes it to path via a temp file in the
// same directory followed by a rename, so no partial write is ever
// visible. On a first failure the write is retried once; a second
// failure surfaces as Internal.
func atomicWriteJSON(path string, v any, indent bool) error {
	var (
		data []byte
		err  error
	)
	if indent {
		data, err = json.MarshalIndent(v, "", "  ")
	} else {
		data, err = json.Marshal(v)
	}
	if err != nil {
		return apperr.Wrap(apperr.Internal, err, "marshal "+filepath.Base(path))
	}

	writeErr := atomicReplace(path, data)
	if writeErr != nil {
		writeErr = atomicReplace(path, data) // retry once
	}
	if writeErr != nil {
		return apperr.Wrap(apperr.Internal, writeErr, "write "+filepath.Base(path))
	}
	return nil
}

func atomicReplace(path string, data []byte) error {
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, ".tmp-*")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName) // no-op once renamed

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmpName, path)
}

// writeScriptIndex writes script_index.json, applying a size-cap
// fallback ladder when the indented form is too large.
func writeScriptIndex(path string, index *ScriptIndex, cfg Config) error {
	max := cfg.MaxScriptIndexBytes
	if max <= 0 {
		max = DefaultConfig().MaxScriptIndexBytes
	}

	data, err := json.MarshalIndent(index, "", "  ")
	if err != nil {
		return apperr.Wrap(apperr.Internal, err, "marshal script_index")
	}
	if len(data) <= max {
		return atomicWriteJSON(path, index, true)
	}

	reduced := reduceScriptIndex(index)
	data, err = json.MarshalIndent(reduced, "", "  ")
	if err != nil {
		return apperr.Wrap(apperr.Internal, err, "marshal reduced script_index")
	}
	if len(data) <= max {
		return atomicWriteJSON(path, reduced, true)
	}

	// Still too large: drop indentation entirely.
	return atomicWriteJSON(path, reduced, false)
}

// reduceScriptIndex is the first fallback: script_index.json carries no
// embedded snippets today (FileEntry is already minimal), so the
// reduction is a marker flag; mini-librarians are never compacted.
func reduceScriptIndex(index *ScriptIndex) *ScriptIndex {
	reduced := *index
	reduced.SizeReduced = true
	return &reduced
}

func writeReadmeIfStale(refDir string) error {
	path := filepath.Join(refDir, "README.md")
	want := fmt.Sprintf(readmeTemplate, schemaVersion)
	existing, err := os.ReadFile(path)
	if err == nil && string(existing) == want {
		return nil
	}
	return atomicReplaceText(path, want)
}

func atomicReplaceText(path, content string) error {
	err := atomicReplace(path, []byte(content))
	if err != nil {
		err = atomicReplace(path, []byte(content))
	}
	if err != nil {
		return apperr.Wrap(apperr.Internal, err, "write README.md")
	}
	return nil
}
