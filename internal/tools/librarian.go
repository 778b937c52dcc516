package tools

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/aitoolkit/librarian-mcp/internal/apperr"
	"github.com/aitoolkit/librarian-mcp/internal/discover"
	"github.com/aitoolkit/librarian-mcp/internal/librarian"
)

// findImplMaxFiles and findImplMaxMatches bound find_implementation's
// result set so a broad search over a large project stays bounded.
const (
	findImplMaxFiles   = 200
	findImplMaxMatches = 1000
)

func (s *Server) registerLibrarianTools() {
	s.addTool(&mcp.Tool{
		Name:        "check_project_access",
		Description: "Verify that project_path resolves under the allow-list and is readable and writable. Does not initialize anything.",
		InputSchema: json.RawMessage(`{
			"type": "object",
			"properties": {
				"project_path": {"type": "string", "description": "Absolute path to the project root."}
			},
			"required": ["project_path"]
		}`),
	}, s.handleCheckProjectAccess)

	s.addTool(&mcp.Tool{
		Name:        "initialize_librarian",
		Description: "Create the .ai_reference/ skeleton for a project, add it to the active set, and trigger the first full index. Idempotent: re-running on an already-initialized project updates content without destroying user-added files under .ai_reference/.",
		InputSchema: json.RawMessage(`{
			"type": "object",
			"properties": {
				"project_path": {"type": "string", "description": "Absolute path to the project root."}
			},
			"required": ["project_path"]
		}`),
	}, s.handleInitializeLibrarian)

	s.addTool(&mcp.Tool{
		Name:        "generate_librarian",
		Description: "Force a full re-index of an already-initialized project. Returns files_indexed and components_identified counts.",
		InputSchema: json.RawMessage(`{
			"type": "object",
			"properties": {
				"project_path": {"type": "string", "description": "Absolute path to the project root."}
			},
			"required": ["project_path"]
		}`),
	}, s.handleGenerateLibrarian)

	s.addTool(&mcp.Tool{
		Name:        "query_component",
		Description: "Look up a top-level class/function or 'Class.method' name in the project's component registry, returning file, kind, line range and a fresh source excerpt for each match.",
		InputSchema: json.RawMessage(`{
			"type": "object",
			"properties": {
				"project_path": {"type": "string", "description": "Absolute path to the project root."},
				"component_name": {"type": "string", "description": "Exact, case-sensitive component name, e.g. 'Widget' or 'Widget.render'."}
			},
			"required": ["project_path", "component_name"]
		}`),
	}, s.handleQueryComponent)

	s.addTool(&mcp.Tool{
		Name:        "find_implementation",
		Description: "Case-insensitive textual substring search across a project's source files, optionally filtered by a glob or extension. Returns matches grouped by file with surrounding context lines.",
		InputSchema: json.RawMessage(`{
			"type": "object",
			"properties": {
				"project_path": {"type": "string", "description": "Absolute path to the project root."},
				"search_text": {"type": "string", "description": "Substring to search for."},
				"file_pattern": {"type": "string", "description": "Optional glob (e.g. '*.go') or exact extension (e.g. '.go') filter."}
			},
			"required": ["project_path", "search_text"]
		}`),
	}, s.handleFindImplementation)
}

func (s *Server) handleCheckProjectAccess(_ context.Context, req *mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, err := parseArgs(req)
	if err != nil {
		return errResult(err), nil
	}
	root, rerr := s.resolveProjectRoot(getStringArg(args, "project_path"))
	if rerr != nil {
		return errResult(rerr), nil
	}

	info, statErr := os.Stat(root)
	if statErr != nil {
		return errResult(apperr.Wrap(apperr.NotFound, statErr, "project path not found")), nil
	}
	if !info.IsDir() {
		return errResult(apperr.New(apperr.InvalidArgument, "project_path is not a directory")), nil
	}
	if err := checkWritable(root); err != nil {
		return errResult(err), nil
	}

	return jsonResult(map[string]any{
		"project_path": root,
		"readable":     true,
		"writable":     true,
	}), nil
}

func (s *Server) handleInitializeLibrarian(ctx context.Context, req *mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, err := parseArgs(req)
	if err != nil {
		return errResult(err), nil
	}
	root, rerr := s.resolveProjectRoot(getStringArg(args, "project_path"))
	if rerr != nil {
		return errResult(rerr), nil
	}

	info, statErr := os.Stat(root)
	if statErr != nil {
		return errResult(apperr.Wrap(apperr.NotFound, statErr, "project path not found")), nil
	}
	if !info.IsDir() {
		return errResult(apperr.New(apperr.InvalidArgument, "project_path is not a directory")), nil
	}
	if err := checkWritable(root); err != nil {
		return errResult(err), nil
	}

	refDir := filepath.Join(root, ".ai_reference")
	for _, d := range []string{refDir, filepath.Join(refDir, "scripts"), filepath.Join(refDir, "diagnostics")} {
		if err := os.MkdirAll(d, 0o755); err != nil {
			return errResult(apperr.Wrap(apperr.Internal, err, "create .ai_reference skeleton")), nil
		}
	}

	s.reg.Get(root).Activate()

	files, components, rerr2 := s.reindexBlocking(ctx, root)
	if rerr2 != nil {
		return errResult(rerr2), nil
	}
	return jsonResult(map[string]any{
		"message":                "librarian initialized",
		"project_path":           root,
		"files_indexed":          files,
		"components_identified":  components,
	}), nil
}

func (s *Server) handleGenerateLibrarian(ctx context.Context, req *mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, err := parseArgs(req)
	if err != nil {
		return errResult(err), nil
	}
	root, rerr := s.resolveProjectRoot(getStringArg(args, "project_path"))
	if rerr != nil {
		return errResult(rerr), nil
	}
	if _, statErr := os.Stat(filepath.Join(root, ".ai_reference")); statErr != nil {
		return errResult(apperr.New(apperr.InvalidArgument, "project is not initialized: call initialize_librarian first")), nil
	}

	files, components, rerr2 := s.reindexBlocking(ctx, root)
	if rerr2 != nil {
		return errResult(rerr2), nil
	}
	return jsonResult(map[string]any{
		"files_indexed":          files,
		"components_identified":  components,
	}), nil
}

func (s *Server) handleQueryComponent(_ context.Context, req *mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, err := parseArgs(req)
	if err != nil {
		return errResult(err), nil
	}
	root, rerr := s.resolveProjectRoot(getStringArg(args, "project_path"))
	if rerr != nil {
		return errResult(rerr), nil
	}
	name := getStringArg(args, "component_name")
	if name == "" {
		return errResult(apperr.New(apperr.InvalidArgument, "component_name is required")), nil
	}

	ps := s.reg.Get(root)
	ps.EnsureLoaded()
	_, cr := ps.Snapshot()
	if cr == nil {
		return errResult(apperr.New(apperr.NotFound, "project has no component registry; run initialize_librarian first")), nil
	}

	var matches []map[string]any
	if loc, ok := cr.Methods[name]; ok {
		matches = append(matches, componentMatch(root, loc))
	}
	if loc, ok := cr.Components[name]; ok {
		matches = append(matches, componentMatch(root, loc))
	}
	if len(matches) == 0 {
		return errResult(apperr.Newf(apperr.NotFound, "no component named %q", name)), nil
	}
	return jsonResult(map[string]any{"component_name": name, "matches": matches}), nil
}

func componentMatch(root string, loc librarian.ComponentLocation) map[string]any {
	m := map[string]any{
		"file":       loc.File,
		"kind":       loc.Kind,
		"start_line": loc.StartLine,
		"end_line":   loc.EndLine,
	}
	excerpt, err := readLineRange(filepath.Join(root, loc.File), loc.StartLine, loc.EndLine)
	if err != nil {
		m["source_excerpt"] = ""
	} else {
		m["source_excerpt"] = excerpt
	}
	return m
}

// readLineRange returns lines start..end (1-indexed, inclusive) of path.
func readLineRange(path string, start, end int) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	var lines []string
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	lineNum := 0
	for scanner.Scan() {
		lineNum++
		if start > 0 && lineNum < start {
			continue
		}
		if end > 0 && lineNum > end {
			break
		}
		lines = append(lines, scanner.Text())
	}
	return strings.Join(lines, "\n"), scanner.Err()
}

type matchBlock struct {
	Line   int      `json:"line"`
	Before []string `json:"before,omitempty"`
	Match  string   `json:"match"`
	After  []string `json:"after,omitempty"`
}

type fileMatches struct {
	File    string       `json:"file"`
	Matches []matchBlock `json:"matches"`
}

func (s *Server) handleFindImplementation(ctx context.Context, req *mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, err := parseArgs(req)
	if err != nil {
		return errResult(err), nil
	}
	root, rerr := s.resolveProjectRoot(getStringArg(args, "project_path"))
	if rerr != nil {
		return errResult(rerr), nil
	}
	searchText := getStringArg(args, "search_text")
	if searchText == "" {
		return errResult(apperr.New(apperr.InvalidArgument, "search_text is required")), nil
	}
	filePattern := getStringArg(args, "file_pattern")

	files, derr := discover.Discover(ctx, root, nil)
	if derr != nil {
		return errResult(apperr.Wrap(apperr.Internal, derr, "walk project")), nil
	}
	sort.Slice(files, func(i, j int) bool { return files[i].RelPath < files[j].RelPath })

	needle := strings.ToLower(searchText)
	var results []fileMatches
	filesScanned, totalMatches := 0, 0
	truncated := false

	for _, f := range files {
		if filePattern != "" && !matchesFilePattern(filePattern, f.RelPath) {
			continue
		}
		if filesScanned >= findImplMaxFiles {
			truncated = true
			break
		}
		remaining := findImplMaxMatches - totalMatches
		if remaining <= 0 {
			truncated = true
			break
		}
		blocks, fileTruncated := searchFileForText(f.Path, needle, s.cfg.ContextLines, remaining)
		if len(blocks) == 0 {
			continue
		}
		filesScanned++
		totalMatches += len(blocks)
		results = append(results, fileMatches{File: f.RelPath, Matches: blocks})
		if fileTruncated {
			truncated = true
			break
		}
	}

	return jsonResult(map[string]any{
		"search_text":   searchText,
		"files_matched": len(results),
		"total_matches": totalMatches,
		"truncated":     truncated,
		"results":       results,
	}), nil
}

// matchesFilePattern accepts either a bare extension ('.go'), a base-name
// glob ('*.go'), or a '**'-bearing relative-path glob.
func matchesFilePattern(pattern, relPath string) bool {
	if strings.HasPrefix(pattern, ".") && !strings.ContainsAny(pattern, "*?[") {
		return strings.HasSuffix(relPath, pattern)
	}
	if matched, _ := filepath.Match(pattern, filepath.Base(relPath)); matched {
		return true
	}
	return globMatch(pattern, relPath)
}

// globMatch does a simple glob match supporting ** patterns.
func globMatch(pattern, path string) bool {
	if strings.Contains(pattern, "**") {
		parts := strings.SplitN(pattern, "**", 2)
		prefix := strings.TrimRight(parts[0], "/")
		suffix := strings.TrimLeft(parts[1], "/")

		if prefix != "" && !strings.HasPrefix(path, prefix) {
			return false
		}
		if suffix != "" {
			matched, _ := filepath.Match(suffix, filepath.Base(path))
			return matched
		}
		return true
	}
	matched, _ := filepath.Match(pattern, path)
	return matched
}

// searchFileForText scans path for needleLower (already lowercased),
// returning up to limit matches each with contextLines of surrounding
// context, and whether the per-file limit was hit.
func searchFileForText(path, needleLower string, contextLines, limit int) ([]matchBlock, bool) {
	data, err := os.ReadFile(path)
	if err != nil || limit <= 0 || bytes.IndexByte(data, 0) != -1 {
		return nil, false
	}
	lines := strings.Split(string(data), "\n")

	var blocks []matchBlock
	truncated := false
	for i, line := range lines {
		if len(blocks) >= limit {
			truncated = true
			break
		}
		if !strings.Contains(strings.ToLower(line), needleLower) {
			continue
		}
		start := i - contextLines
		if start < 0 {
			start = 0
		}
		end := i + contextLines
		if end >= len(lines) {
			end = len(lines) - 1
		}
		blocks = append(blocks, matchBlock{
			Line:   i + 1,
			Before: append([]string(nil), lines[start:i]...),
			Match:  line,
			After:  append([]string(nil), lines[i+1:end+1]...),
		})
	}
	return blocks, truncated
}
