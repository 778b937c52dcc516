// Package tools implements the MCP-facing tool dispatch surface, wiring
// the librarian, filesystem and TaskBoard tool roster through the path
// guard, the in-memory registry and the TaskBoard worker pool.
package tools

import (
	"context"
	"encoding/json"
	"os"
	"sort"
	"sync"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/aitoolkit/librarian-mcp/internal/apperr"
	"github.com/aitoolkit/librarian-mcp/internal/discover"
	"github.com/aitoolkit/librarian-mcp/internal/librarian"
	"github.com/aitoolkit/librarian-mcp/internal/pathguard"
	"github.com/aitoolkit/librarian-mcp/internal/registry"
	"github.com/aitoolkit/librarian-mcp/internal/taskboard"
)

// Version is the daemon's release version, reported in the MCP handshake.
const Version = "0.1.0"

// Config carries the tool surface's process-level policy knobs.
type Config struct {
	ContextLines         int
	WriteConfig          librarian.Config
	AllowCrossDeviceMove bool
	RejectLargeProjects  bool
	MaxProjectFiles      int
}

func DefaultConfig() Config {
	return Config{
		ContextLines:    3,
		WriteConfig:     librarian.DefaultConfig(),
		MaxProjectFiles: 50000,
	}
}

// Server wraps the MCP server with every tool handler registered.
type Server struct {
	mcp      *mcp.Server
	guard    *pathguard.Guard
	reg      *registry.Registry
	board    *taskboard.Board
	cfg      Config
	handlers map[string]mcp.ToolHandler

	indexMu    sync.Mutex
	indexLocks map[string]*sync.Mutex
}

// NewServer builds a Server with every tool registered against guard, reg
// and board.
func NewServer(guard *pathguard.Guard, reg *registry.Registry, board *taskboard.Board, cfg Config) *Server {
	srv := &Server{
		guard:      guard,
		reg:        reg,
		board:      board,
		cfg:        cfg,
		handlers:   make(map[string]mcp.ToolHandler),
		indexLocks: make(map[string]*sync.Mutex),
	}
	srv.mcp = mcp.NewServer(
		&mcp.Implementation{Name: "librarian-mcp", Version: Version},
		&mcp.ServerOptions{},
	)
	srv.registerTools()
	return srv
}

// MCPServer returns the underlying MCP server, for Run against a transport.
func (s *Server) MCPServer() *mcp.Server {
	return s.mcp
}

// addTool registers a handler both with the MCP server and the direct-call
// map, wrapping it so a handler panic never escapes the dispatch layer.
func (s *Server) addTool(tool *mcp.Tool, handler mcp.ToolHandler) {
	name := tool.Name
	wrapped := func(ctx context.Context, req *mcp.CallToolRequest) (res *mcp.CallToolResult, err error) {
		defer func() {
			if r := recover(); r != nil {
				res = errResult(apperr.Newf(apperr.Internal, "panic in tool %s: %v", name, r))
				err = nil
			}
		}()
		return handler(ctx, req)
	}
	s.mcp.AddTool(tool, wrapped)
	s.handlers[name] = wrapped
}

// CallTool invokes a registered handler directly by name, bypassing the MCP
// transport; used by the `cli` subcommand.
func (s *Server) CallTool(ctx context.Context, name string, argsJSON json.RawMessage) (*mcp.CallToolResult, error) {
	handler, ok := s.handlers[name]
	if !ok {
		return nil, apperr.Newf(apperr.InvalidArgument, "unknown tool: %s", name)
	}
	if len(argsJSON) == 0 {
		argsJSON = json.RawMessage(`{}`)
	}
	req := &mcp.CallToolRequest{
		Params: &mcp.CallToolParamsRaw{Name: name, Arguments: argsJSON},
	}
	return handler(ctx, req)
}

// ToolNames returns every registered tool name in sorted order.
func (s *Server) ToolNames() []string {
	names := make([]string, 0, len(s.handlers))
	for name := range s.handlers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func (s *Server) registerTools() {
	s.registerLibrarianTools()
	s.registerFilesystemTools()
	s.registerTaskBoardTools()
}

// resolveProjectRoot resolves project_path through Path Guard, rejecting an
// empty value up front.
func (s *Server) resolveProjectRoot(projectPath string) (string, error) {
	if projectPath == "" {
		return "", apperr.New(apperr.InvalidArgument, "project_path is required")
	}
	return s.guard.Resolve(projectPath)
}

// lockIndexing returns the per-project mutex guarding a full reindex, so two
// concurrent reindexes of the same project (watcher vs. an explicit tool
// call) never interleave their writes to .ai_reference/.
func (s *Server) lockIndexing(root string) *sync.Mutex {
	s.indexMu.Lock()
	defer s.indexMu.Unlock()
	mu, ok := s.indexLocks[root]
	if !ok {
		mu = &sync.Mutex{}
		s.indexLocks[root] = mu
	}
	return mu
}

// reindexBlocking performs a full re-index of root, waiting for any
// in-flight reindex of the same project to finish first. Used by
// initialize_librarian and generate_librarian.
func (s *Server) reindexBlocking(ctx context.Context, root string) (filesIndexed, componentsIdentified int, err error) {
	mu := s.lockIndexing(root)
	mu.Lock()
	defer mu.Unlock()
	return s.reindex(ctx, root)
}

// ReindexForWatcher is the watcher's IndexFunc: it skips rather than
// fails when a reindex of the same project is already running, so a
// slow explicit initialize_librarian call and a background poll never
// race each other.
func (s *Server) ReindexForWatcher(ctx context.Context, root string) error {
	mu := s.lockIndexing(root)
	if !mu.TryLock() {
		return nil
	}
	defer mu.Unlock()
	_, _, err := s.reindex(ctx, root)
	return err
}

// reindex walks root, parses every discovered file, writes .ai_reference/
// and adopts the result into the In-Memory Registry. Callers must hold
// that project's indexing lock.
func (s *Server) reindex(ctx context.Context, root string) (filesIndexed, componentsIdentified int, err error) {
	files, derr := discover.Discover(ctx, root, nil)
	if derr != nil {
		return 0, 0, apperr.Wrap(apperr.Internal, derr, "discover files")
	}
	if s.cfg.RejectLargeProjects && s.cfg.MaxProjectFiles > 0 && len(files) > s.cfg.MaxProjectFiles {
		return 0, 0, apperr.Newf(apperr.InvalidArgument, "project has %d files, exceeding the %d file soft cap", len(files), s.cfg.MaxProjectFiles)
	}

	summaries := make([]*librarian.FileSummary, 0, len(files))
	indexedFiles := make(map[string]int64, len(files))
	for _, f := range files {
		if err := ctx.Err(); err != nil {
			return 0, 0, err
		}
		info, statErr := os.Stat(f.Path)
		if statErr != nil {
			continue
		}
		fs := librarian.ParseFile(f.Path, f.RelPath)
		summaries = append(summaries, fs)
		indexedFiles[f.RelPath] = info.ModTime().UnixNano()
	}

	index, compReg, werr := librarian.Write(root, summaries, s.cfg.WriteConfig)
	if werr != nil {
		return 0, 0, werr
	}
	s.reg.Get(root).Update(index, compReg, indexedFiles)

	return len(index.Files), len(compReg.Components) + len(compReg.Methods), nil
}
