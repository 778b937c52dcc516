package tools

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"syscall"
	"time"
	"unicode/utf8"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/aitoolkit/librarian-mcp/internal/apperr"
)

func (s *Server) registerFilesystemTools() {
	s.addTool(&mcp.Tool{
		Name:        "read_file",
		Description: "Read a file's UTF-8 content. Binary files are reported as a 'binary file, N bytes' stub instead of their raw content.",
		InputSchema: json.RawMessage(`{
			"type": "object",
			"properties": {"path": {"type": "string"}},
			"required": ["path"]
		}`),
	}, s.handleReadFile)

	s.addTool(&mcp.Tool{
		Name:        "read_multiple_files",
		Description: "Read several files at once, returning a map of path to content (or a per-path error).",
		InputSchema: json.RawMessage(`{
			"type": "object",
			"properties": {"paths": {"type": "array", "items": {"type": "string"}}},
			"required": ["paths"]
		}`),
	}, s.handleReadMultipleFiles)

	s.addTool(&mcp.Tool{
		Name:        "write_file",
		Description: "Write content to a file, creating parent directories as needed. Writes atomically via a temp file plus rename.",
		InputSchema: json.RawMessage(`{
			"type": "object",
			"properties": {
				"path": {"type": "string"},
				"content": {"type": "string"}
			},
			"required": ["path", "content"]
		}`),
	}, s.handleWriteFile)

	s.addTool(&mcp.Tool{
		Name:        "edit_file",
		Description: "Apply an ordered list of {old_text, new_text} substitutions to a file. Each old_text must match exactly once in the buffer at application time. Set dry_run to preview the unified-style diff without writing.",
		InputSchema: json.RawMessage(`{
			"type": "object",
			"properties": {
				"path": {"type": "string"},
				"edits": {
					"type": "array",
					"items": {
						"type": "object",
						"properties": {
							"old_text": {"type": "string"},
							"new_text": {"type": "string"}
						},
						"required": ["old_text", "new_text"]
					}
				},
				"dry_run": {"type": "boolean"}
			},
			"required": ["path", "edits"]
		}`),
	}, s.handleEditFile)

	s.addTool(&mcp.Tool{
		Name:        "create_directory",
		Description: "Create a directory and any missing parents (mkdir -p semantics).",
		InputSchema: json.RawMessage(`{
			"type": "object",
			"properties": {"path": {"type": "string"}},
			"required": ["path"]
		}`),
	}, s.handleCreateDirectory)

	s.addTool(&mcp.Tool{
		Name:        "list_directory",
		Description: "List a directory's immediate entries, sorted, each tagged [DIR] or [FILE].",
		InputSchema: json.RawMessage(`{
			"type": "object",
			"properties": {"path": {"type": "string"}},
			"required": ["path"]
		}`),
	}, s.handleListDirectory)

	s.addTool(&mcp.Tool{
		Name:        "directory_tree",
		Description: "Return a bounded recursive tree of a directory. Hidden entries and __pycache__ are omitted; max_depth defaults to 5.",
		InputSchema: json.RawMessage(`{
			"type": "object",
			"properties": {
				"path": {"type": "string"},
				"max_depth": {"type": "integer"}
			},
			"required": ["path"]
		}`),
	}, s.handleDirectoryTree)

	s.addTool(&mcp.Tool{
		Name:        "move_file",
		Description: "Move or rename a file. Cross-device moves are rejected unless allow_cross_device_move is configured, in which case a copy+unlink fallback is used.",
		InputSchema: json.RawMessage(`{
			"type": "object",
			"properties": {
				"source": {"type": "string"},
				"destination": {"type": "string"}
			},
			"required": ["source", "destination"]
		}`),
	}, s.handleMoveFile)

	s.addTool(&mcp.Tool{
		Name:        "search_files",
		Description: "Case-insensitive substring search over file and directory names under path. exclude_patterns are substrings matched against directory names to prune the walk.",
		InputSchema: json.RawMessage(`{
			"type": "object",
			"properties": {
				"path": {"type": "string"},
				"pattern": {"type": "string"},
				"exclude_patterns": {"type": "array", "items": {"type": "string"}}
			},
			"required": ["path", "pattern"]
		}`),
	}, s.handleSearchFiles)

	s.addTool(&mcp.Tool{
		Name:        "get_file_info",
		Description: "Return size (bytes and human-readable), ctime/mtime/atime, permission bits and type for a path.",
		InputSchema: json.RawMessage(`{
			"type": "object",
			"properties": {"path": {"type": "string"}},
			"required": ["path"]
		}`),
	}, s.handleGetFileInfo)

	s.addTool(&mcp.Tool{
		Name:        "list_allowed_directories",
		Description: "Return the allow-list roots the Path Guard enforces.",
		InputSchema: json.RawMessage(`{"type": "object", "properties": {}}`),
	}, s.handleListAllowedDirectories)
}

func (s *Server) handleReadFile(_ context.Context, req *mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, err := parseArgs(req)
	if err != nil {
		return errResult(err), nil
	}
	path := getStringArg(args, "path")
	if path == "" {
		return errResult(apperr.New(apperr.InvalidArgument, "path is required")), nil
	}
	abs, rerr := s.guard.Resolve(path)
	if rerr != nil {
		return errResult(rerr), nil
	}

	info, statErr := os.Stat(abs)
	if statErr != nil {
		return errResult(apperr.Wrap(apperr.NotFound, statErr, "path not found")), nil
	}
	if info.IsDir() {
		return errResult(apperr.New(apperr.InvalidArgument, "path is a directory, use list_directory instead")), nil
	}

	data, readErr := os.ReadFile(abs)
	if readErr != nil {
		return errResult(apperr.Wrap(apperr.Internal, readErr, "read file")), nil
	}
	if !utf8.Valid(data) {
		return jsonResult(map[string]any{
			"path":    abs,
			"content": fmt.Sprintf("binary file, %d bytes", info.Size()),
		}), nil
	}
	return jsonResult(map[string]any{"path": abs, "content": string(data)}), nil
}

func (s *Server) handleReadMultipleFiles(_ context.Context, req *mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, err := parseArgs(req)
	if err != nil {
		return errResult(err), nil
	}
	paths := getStringSliceArg(args, "paths")
	if len(paths) == 0 {
		return errResult(apperr.New(apperr.InvalidArgument, "paths is required")), nil
	}

	results := make(map[string]any, len(paths))
	for _, p := range paths {
		abs, rerr := s.guard.Resolve(p)
		if rerr != nil {
			results[p] = map[string]any{"error": errPayload(rerr)}
			continue
		}
		data, readErr := os.ReadFile(abs)
		if readErr != nil {
			results[p] = map[string]any{"error": errPayload(apperr.Wrap(apperr.NotFound, readErr, "read file"))}
			continue
		}
		if !utf8.Valid(data) {
			results[p] = map[string]any{"content": fmt.Sprintf("binary file, %d bytes", len(data))}
			continue
		}
		results[p] = map[string]any{"content": string(data)}
	}
	return jsonResult(map[string]any{"results": results}), nil
}

func (s *Server) handleWriteFile(_ context.Context, req *mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, err := parseArgs(req)
	if err != nil {
		return errResult(err), nil
	}
	path := getStringArg(args, "path")
	if path == "" {
		return errResult(apperr.New(apperr.InvalidArgument, "path is required")), nil
	}
	content := getStringArg(args, "content")

	abs, rerr := s.guard.ResolveForCreate(path)
	if rerr != nil {
		return errResult(rerr), nil
	}
	if err := os.MkdirAll(filepath.Dir(abs), 0o755); err != nil {
		return errResult(apperr.Wrap(apperr.Internal, err, "create parent directories")), nil
	}
	if err := atomicWriteFile(abs, []byte(content)); err != nil {
		return errResult(apperr.Wrap(apperr.Internal, err, "write file")), nil
	}
	return jsonResult(map[string]any{"path": abs, "bytes_written": len(content)}), nil
}

type fileEdit struct {
	OldText string
	NewText string
}

func parseEdits(raw any) ([]fileEdit, error) {
	arr, ok := raw.([]any)
	if !ok {
		return nil, apperr.New(apperr.InvalidArgument, "edits must be a list of {old_text, new_text}")
	}
	edits := make([]fileEdit, 0, len(arr))
	for _, item := range arr {
		m, ok := item.(map[string]any)
		if !ok {
			return nil, apperr.New(apperr.InvalidArgument, "each edit must be an object")
		}
		old, _ := m["old_text"].(string)
		newText, _ := m["new_text"].(string)
		if old == "" {
			return nil, apperr.New(apperr.InvalidArgument, "edit old_text must be a non-empty string")
		}
		edits = append(edits, fileEdit{OldText: old, NewText: newText})
	}
	return edits, nil
}

func (s *Server) handleEditFile(_ context.Context, req *mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, err := parseArgs(req)
	if err != nil {
		return errResult(err), nil
	}
	path := getStringArg(args, "path")
	if path == "" {
		return errResult(apperr.New(apperr.InvalidArgument, "path is required")), nil
	}
	dryRun := getBoolArg(args, "dry_run")
	edits, perr := parseEdits(args["edits"])
	if perr != nil {
		return errResult(perr), nil
	}
	if len(edits) == 0 {
		return errResult(apperr.New(apperr.InvalidArgument, "edits must be a non-empty list")), nil
	}

	abs, rerr := s.guard.Resolve(path)
	if rerr != nil {
		return errResult(rerr), nil
	}

	original, readErr := os.ReadFile(abs)
	if readErr != nil {
		return errResult(apperr.Wrap(apperr.NotFound, readErr, "read file")), nil
	}

	buf := string(original)
	for i, e := range edits {
		count := strings.Count(buf, e.OldText)
		switch {
		case count == 0:
			return errResult(apperr.Newf(apperr.EditNotFound, "edit %d: old_text not found", i).WithDetail("old_text", e.OldText)), nil
		case count > 1:
			return errResult(apperr.Newf(apperr.EditAmbiguous, "edit %d: old_text matches %d times", i, count).WithDetail("old_text", e.OldText)), nil
		}
		buf = strings.Replace(buf, e.OldText, e.NewText, 1)
	}

	diff := unifiedDiff(string(original), buf)

	if dryRun {
		return jsonResult(map[string]any{"path": abs, "dry_run": true, "diff": diff}), nil
	}
	if err := atomicWriteFile(abs, []byte(buf)); err != nil {
		return errResult(apperr.Wrap(apperr.Internal, err, "write file")), nil
	}
	return jsonResult(map[string]any{"path": abs, "dry_run": false, "diff": diff}), nil
}

// unifiedDiff is a small hand-rolled line diff: the common prefix and suffix
// are printed as context lines marked ' ', and the differing middle as the
// old lines marked '-' followed by the new lines marked '+'.
func unifiedDiff(oldText, newText string) string {
	// A final newline ends the last line; it does not start an empty one.
	oldLines := strings.Split(strings.TrimSuffix(oldText, "\n"), "\n")
	newLines := strings.Split(strings.TrimSuffix(newText, "\n"), "\n")

	prefix := 0
	for prefix < len(oldLines) && prefix < len(newLines) && oldLines[prefix] == newLines[prefix] {
		prefix++
	}
	oldEnd, newEnd := len(oldLines), len(newLines)
	for oldEnd > prefix && newEnd > prefix && oldLines[oldEnd-1] == newLines[newEnd-1] {
		oldEnd--
		newEnd--
	}

	var b strings.Builder
	for i := 0; i < prefix; i++ {
		fmt.Fprintf(&b, "  %s\n", oldLines[i])
	}
	for i := prefix; i < oldEnd; i++ {
		fmt.Fprintf(&b, "- %s\n", oldLines[i])
	}
	for i := prefix; i < newEnd; i++ {
		fmt.Fprintf(&b, "+ %s\n", newLines[i])
	}
	for i := oldEnd; i < len(oldLines); i++ {
		fmt.Fprintf(&b, "  %s\n", oldLines[i])
	}
	return strings.TrimRight(b.String(), "\n")
}

func (s *Server) handleCreateDirectory(_ context.Context, req *mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, err := parseArgs(req)
	if err != nil {
		return errResult(err), nil
	}
	path := getStringArg(args, "path")
	if path == "" {
		return errResult(apperr.New(apperr.InvalidArgument, "path is required")), nil
	}
	abs, rerr := s.guard.ResolveForCreate(path)
	if rerr != nil {
		return errResult(rerr), nil
	}
	if err := os.MkdirAll(abs, 0o755); err != nil {
		return errResult(apperr.Wrap(apperr.Internal, err, "create directory")), nil
	}
	return jsonResult(map[string]any{"path": abs, "created": true}), nil
}

func (s *Server) handleListDirectory(_ context.Context, req *mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, err := parseArgs(req)
	if err != nil {
		return errResult(err), nil
	}
	path := getStringArg(args, "path")
	if path == "" {
		return errResult(apperr.New(apperr.InvalidArgument, "path is required")), nil
	}
	abs, rerr := s.guard.Resolve(path)
	if rerr != nil {
		return errResult(rerr), nil
	}

	entries, readErr := os.ReadDir(abs)
	if readErr != nil {
		return errResult(apperr.Wrap(apperr.NotFound, readErr, "read directory")), nil
	}
	byName := make(map[string]os.DirEntry, len(entries))
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		byName[e.Name()] = e
		names = append(names, e.Name())
	}
	sort.Strings(names)

	lines := make([]string, 0, len(names))
	for _, name := range names {
		tag := "[FILE]"
		if byName[name].IsDir() {
			tag = "[DIR]"
		}
		lines = append(lines, fmt.Sprintf("%s %s", tag, name))
	}
	return jsonResult(map[string]any{"path": abs, "entries": lines}), nil
}

type treeNode struct {
	Name     string      `json:"name"`
	Type     string      `json:"type"`
	Children []*treeNode `json:"children,omitempty"`
}

func (s *Server) handleDirectoryTree(_ context.Context, req *mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, err := parseArgs(req)
	if err != nil {
		return errResult(err), nil
	}
	path := getStringArg(args, "path")
	if path == "" {
		return errResult(apperr.New(apperr.InvalidArgument, "path is required")), nil
	}
	maxDepth := getIntArg(args, "max_depth", 5)

	abs, rerr := s.guard.Resolve(path)
	if rerr != nil {
		return errResult(rerr), nil
	}

	tree, buildErr := buildTree(abs, filepath.Base(abs), maxDepth, 0)
	if buildErr != nil {
		return errResult(apperr.Wrap(apperr.NotFound, buildErr, "read directory")), nil
	}
	return jsonResult(tree), nil
}

func buildTree(abs, name string, maxDepth, depth int) (*treeNode, error) {
	info, err := os.Stat(abs)
	if err != nil {
		return nil, err
	}
	if !info.IsDir() {
		return &treeNode{Name: name, Type: "file"}, nil
	}
	node := &treeNode{Name: name, Type: "directory"}
	if depth >= maxDepth {
		return node, nil
	}
	entries, err := os.ReadDir(abs)
	if err != nil {
		return nil, err
	}
	for _, e := range entries {
		if strings.HasPrefix(e.Name(), ".") || e.Name() == "__pycache__" {
			continue
		}
		child, cerr := buildTree(filepath.Join(abs, e.Name()), e.Name(), maxDepth, depth+1)
		if cerr != nil {
			continue
		}
		node.Children = append(node.Children, child)
	}
	sort.Slice(node.Children, func(i, j int) bool { return node.Children[i].Name < node.Children[j].Name })
	return node, nil
}

func (s *Server) handleMoveFile(_ context.Context, req *mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, err := parseArgs(req)
	if err != nil {
		return errResult(err), nil
	}
	src := getStringArg(args, "source")
	dst := getStringArg(args, "destination")
	if src == "" || dst == "" {
		return errResult(apperr.New(apperr.InvalidArgument, "source and destination are required")), nil
	}

	absSrc, rerr := s.guard.Resolve(src)
	if rerr != nil {
		return errResult(rerr), nil
	}
	absDst, rerr2 := s.guard.ResolveForCreate(dst)
	if rerr2 != nil {
		return errResult(rerr2), nil
	}
	if _, err := os.Stat(absDst); err == nil {
		return errResult(apperr.Newf(apperr.AlreadyExists, "destination %q already exists", dst)), nil
	}
	if err := os.MkdirAll(filepath.Dir(absDst), 0o755); err != nil {
		return errResult(apperr.Wrap(apperr.Internal, err, "create destination parent")), nil
	}

	if err := os.Rename(absSrc, absDst); err != nil {
		if !errors.Is(err, syscall.EXDEV) {
			return errResult(apperr.Wrap(apperr.Internal, err, "move file")), nil
		}
		if !s.cfg.AllowCrossDeviceMove {
			return errResult(apperr.Wrap(apperr.PermissionDenied, err, "cross-device move requires allow_cross_device_move")), nil
		}
		if err := copyThenRemove(absSrc, absDst); err != nil {
			return errResult(apperr.Wrap(apperr.Internal, err, "copy+unlink fallback")), nil
		}
	}
	return jsonResult(map[string]any{"source": absSrc, "destination": absDst}), nil
}

func copyThenRemove(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.OpenFile(dst, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return err
	}
	if err := out.Close(); err != nil {
		return err
	}
	return os.Remove(src)
}

func (s *Server) handleSearchFiles(_ context.Context, req *mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, err := parseArgs(req)
	if err != nil {
		return errResult(err), nil
	}
	path := getStringArg(args, "path")
	pattern := strings.ToLower(getStringArg(args, "pattern"))
	if path == "" || pattern == "" {
		return errResult(apperr.New(apperr.InvalidArgument, "path and pattern are required")), nil
	}
	exclude := getStringSliceArg(args, "exclude_patterns")

	abs, rerr := s.guard.Resolve(path)
	if rerr != nil {
		return errResult(rerr), nil
	}

	var matches []string
	walkErr := filepath.Walk(abs, func(p string, info os.FileInfo, err error) error {
		if err != nil {
			return nil
		}
		if info.IsDir() && p != abs {
			for _, ex := range exclude {
				if ex != "" && strings.Contains(strings.ToLower(info.Name()), strings.ToLower(ex)) {
					return filepath.SkipDir
				}
			}
		}
		if strings.Contains(strings.ToLower(info.Name()), pattern) {
			matches = append(matches, p)
		}
		return nil
	})
	if walkErr != nil {
		return errResult(apperr.Wrap(apperr.Internal, walkErr, "walk directory")), nil
	}
	sort.Strings(matches)
	return jsonResult(map[string]any{"path": abs, "matches": matches}), nil
}

func (s *Server) handleGetFileInfo(_ context.Context, req *mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, err := parseArgs(req)
	if err != nil {
		return errResult(err), nil
	}
	path := getStringArg(args, "path")
	if path == "" {
		return errResult(apperr.New(apperr.InvalidArgument, "path is required")), nil
	}
	abs, rerr := s.guard.Resolve(path)
	if rerr != nil {
		return errResult(rerr), nil
	}

	info, statErr := os.Stat(abs)
	if statErr != nil {
		return errResult(apperr.Wrap(apperr.NotFound, statErr, "path not found")), nil
	}

	result := map[string]any{
		"path":        abs,
		"size_bytes":  info.Size(),
		"size_human":  humanSize(info.Size()),
		"permissions": info.Mode().Perm().String(),
		"type":        fileType(info),
		"mtime":       info.ModTime().UTC().Format(time.RFC3339),
	}
	if stat, ok := info.Sys().(*syscall.Stat_t); ok {
		result["ctime"] = time.Unix(stat.Ctim.Sec, stat.Ctim.Nsec).UTC().Format(time.RFC3339)
		result["atime"] = time.Unix(stat.Atim.Sec, stat.Atim.Nsec).UTC().Format(time.RFC3339)
	}
	return jsonResult(result), nil
}

func fileType(info os.FileInfo) string {
	if info.IsDir() {
		return "directory"
	}
	if info.Mode()&os.ModeSymlink != 0 {
		return "symlink"
	}
	return "file"
}

func humanSize(n int64) string {
	const unit = 1024
	if n < unit {
		return fmt.Sprintf("%dB", n)
	}
	div, exp := int64(unit), 0
	for v := n / unit; v >= unit; v /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f%ciB", float64(n)/float64(div), "KMGTPE"[exp])
}

func (s *Server) handleListAllowedDirectories(_ context.Context, _ *mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return jsonResult(map[string]any{"allowed_directories": s.guard.Roots()}), nil
}
