package tools

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/aitoolkit/librarian-mcp/internal/pathguard"
	"github.com/aitoolkit/librarian-mcp/internal/registry"
	"github.com/aitoolkit/librarian-mcp/internal/taskboard"
)

// newTestServer builds a Server rooted at a single allow-listed directory,
// with a TaskBoard that is never run (workers idle), matching tests that
// only need pending-state behavior.
func newTestServer(t *testing.T, root string) *Server {
	t.Helper()
	guard, err := pathguard.New([]string{root})
	if err != nil {
		t.Fatalf("pathguard.New: %v", err)
	}
	board := taskboard.New(1, taskboard.DefaultHandlers())
	return NewServer(guard, registry.New(), board, DefaultConfig())
}

// call invokes a registered tool directly through CallTool, marshaling args
// from a Go value and decoding the text payload back into a map.
func call(t *testing.T, s *Server, tool string, args any) (map[string]any, bool) {
	t.Helper()
	raw, err := json.Marshal(args)
	if err != nil {
		t.Fatalf("marshal args: %v", err)
	}
	res, err := s.CallTool(context.Background(), tool, raw)
	if err != nil {
		t.Fatalf("CallTool(%s): %v", tool, err)
	}
	var text string
	for _, c := range res.Content {
		if tc, ok := c.(*mcp.TextContent); ok {
			text = tc.Text
		}
	}
	var out map[string]any
	if text != "" {
		if err := json.Unmarshal([]byte(text), &out); err != nil {
			t.Fatalf("unmarshal result %q: %v", text, err)
		}
	}
	return out, res.IsError
}

func mustGuard(t *testing.T, roots ...string) *pathguard.Guard {
	t.Helper()
	g, err := pathguard.New(roots)
	if err != nil {
		t.Fatalf("pathguard.New: %v", err)
	}
	return g
}

func newTestRegistry() *registry.Registry {
	return registry.New()
}

func newTestBoard() *taskboard.Board {
	return taskboard.New(1, taskboard.DefaultHandlers())
}

func writeTestFile(t *testing.T, root, relPath, content string) {
	t.Helper()
	abs := filepath.Join(root, relPath)
	if err := os.MkdirAll(filepath.Dir(abs), 0o755); err != nil {
		t.Fatalf("MkdirAll: %v", err)
	}
	if err := os.WriteFile(abs, []byte(content), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
}
