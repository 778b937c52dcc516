package tools

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/aitoolkit/librarian-mcp/internal/apperr"
)

// jsonResult marshals data as the tool's successful text payload.
func jsonResult(data any) *mcp.CallToolResult {
	b, err := json.MarshalIndent(data, "", "  ")
	if err != nil {
		return errResult(apperr.Wrap(apperr.Internal, err, "marshal result"))
	}
	return &mcp.CallToolResult{
		Content: []mcp.Content{&mcp.TextContent{Text: string(b)}},
	}
}

// errResult renders err as a structured error envelope {kind, message, details?}.
func errResult(err error) *mcp.CallToolResult {
	b, merr := json.MarshalIndent(errPayload(err), "", "  ")
	if merr != nil {
		b = []byte(`{"kind":"internal","message":"failed to encode error"}`)
	}
	return &mcp.CallToolResult{
		Content: []mcp.Content{&mcp.TextContent{Text: string(b)}},
		IsError: true,
	}
}

func errPayload(err error) map[string]any {
	kind := apperr.KindOf(err)
	if kind == "" {
		kind = apperr.Internal
	}
	payload := map[string]any{
		"kind":    string(kind),
		"message": err.Error(),
	}
	var ae *apperr.Error
	if errors.As(err, &ae) && ae.Details() != nil {
		payload["details"] = ae.Details()
	}
	return payload
}

// parseArgs unmarshals the raw JSON arguments into a map.
func parseArgs(req *mcp.CallToolRequest) (map[string]any, error) {
	if len(req.Params.Arguments) == 0 {
		return map[string]any{}, nil
	}
	var m map[string]any
	if err := json.Unmarshal(req.Params.Arguments, &m); err != nil {
		return nil, apperr.Wrap(apperr.InvalidArgument, err, "invalid arguments")
	}
	return m, nil
}

func getStringArg(args map[string]any, key string) string {
	v, ok := args[key]
	if !ok {
		return ""
	}
	s, ok := v.(string)
	if !ok {
		return ""
	}
	return s
}

func getIntArg(args map[string]any, key string, defaultVal int) int {
	v, ok := args[key]
	if !ok {
		return defaultVal
	}
	f, ok := v.(float64) // JSON numbers decode as float64
	if !ok {
		return defaultVal
	}
	return int(f)
}

func getBoolArg(args map[string]any, key string) bool {
	v, ok := args[key]
	if !ok {
		return false
	}
	b, ok := v.(bool)
	if !ok {
		return false
	}
	return b
}

func getStringSliceArg(args map[string]any, key string) []string {
	v, ok := args[key]
	if !ok {
		return nil
	}
	arr, ok := v.([]any)
	if !ok {
		return nil
	}
	out := make([]string, 0, len(arr))
	for _, item := range arr {
		if s, ok := item.(string); ok {
			out = append(out, s)
		}
	}
	return out
}

// atomicWriteFile writes data to path via a temp file in the same directory
// followed by a rename, matching the index writer's on-disk replace
// strategy so a tool-triggered write is never observed partial.
func atomicWriteFile(path string, data []byte) error {
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, ".tmp-*")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmpName, path)
}

// checkWritable probes dir for write access by creating and removing a
// throwaway file, used by check_project_access and initialize_librarian.
func checkWritable(dir string) error {
	probe, err := os.CreateTemp(dir, ".librarian-access-*")
	if err != nil {
		return apperr.Wrap(apperr.PermissionDenied, err, "directory is not writable")
	}
	name := probe.Name()
	probe.Close()
	os.Remove(name)
	return nil
}
