package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/aitoolkit/librarian-mcp/internal/pathguard"
	"github.com/aitoolkit/librarian-mcp/internal/registry"
	"github.com/aitoolkit/librarian-mcp/internal/taskboard"
	"github.com/aitoolkit/librarian-mcp/internal/tools"
)

// runCLI drives a single tool call outside the MCP transport, for
// scripting and manual inspection. Usage:
//
//	librarian-mcp cli [--raw] <tool_name> [json_args]
func runCLI(args []string) int {
	raw := false
	var positional []string
	for _, a := range args {
		if a == "--raw" {
			raw = true
			continue
		}
		positional = append(positional, a)
	}

	cfg, err := loadConfig(nil)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		return 1
	}
	guard, err := pathguard.New(cfg.AllowedRoots)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		return 1
	}
	board := taskboard.New(cfg.TaskboardWorkers, taskboard.DefaultHandlers())
	board.SetDefaultTimeout(0) // a one-shot cli call never runs the worker pool
	srv := tools.NewServer(guard, registry.New(), board, cfg.toolsConfig())

	if len(positional) == 0 || positional[0] == "--help" || positional[0] == "-h" {
		fmt.Fprintf(os.Stderr, "Usage: librarian-mcp cli [--raw] <tool_name> [json_args]\n\n")
		fmt.Fprintf(os.Stderr, "Flags:\n  --raw    Print full JSON output (default: human-friendly summary)\n\n")
		fmt.Fprintf(os.Stderr, "Available tools:\n  %s\n", strings.Join(srv.ToolNames(), "\n  "))
		return 0
	}

	toolName := positional[0]
	var argsJSON json.RawMessage
	if len(positional) > 1 {
		argsJSON = json.RawMessage(positional[1])
	}

	result, err := srv.CallTool(context.Background(), toolName, argsJSON)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		return 1
	}

	text := firstText(result)
	if result.IsError {
		fmt.Fprintf(os.Stderr, "error: %s\n", text)
		return 1
	}

	if raw {
		printRawJSON(text)
		return 0
	}
	printSummary(toolName, text)
	return 0
}

func firstText(result *mcp.CallToolResult) string {
	for _, c := range result.Content {
		if tc, ok := c.(*mcp.TextContent); ok {
			return tc.Text
		}
	}
	return ""
}

// printRawJSON pretty-prints JSON text to stdout.
func printRawJSON(text string) {
	var buf json.RawMessage
	if json.Unmarshal([]byte(text), &buf) == nil {
		if pretty, err := json.MarshalIndent(buf, "", "  "); err == nil {
			fmt.Println(string(pretty))
			return
		}
	}
	fmt.Println(text)
}

// printSummary prints a short human-friendly summary of a tool result,
// falling back to pretty-printed JSON for tools without a dedicated format.
func printSummary(toolName, text string) {
	var obj map[string]any
	if err := json.Unmarshal([]byte(text), &obj); err != nil {
		fmt.Println(text)
		return
	}

	switch toolName {
	case "initialize_librarian", "generate_librarian":
		fmt.Printf("%v\n", obj["message"])
		fmt.Printf("  files_indexed: %v\n  components_identified: %v\n", obj["files_indexed"], obj["components_identified"])
	case "query_component":
		matches, _ := obj["matches"].([]any)
		fmt.Printf("%d match(es)\n", len(matches))
		for _, m := range matches {
			if mm, ok := m.(map[string]any); ok {
				fmt.Printf("  [%v] %v:%v-%v\n", mm["kind"], mm["file"], mm["start_line"], mm["end_line"])
			}
		}
	case "find_implementation":
		fmt.Printf("%v match(es) in %v file(s)", obj["total_matches"], obj["files_matched"])
		if truncated, _ := obj["truncated"].(bool); truncated {
			fmt.Print("  (truncated)")
		}
		fmt.Println()
		results, _ := obj["results"].([]any)
		for _, r := range results {
			if rm, ok := r.(map[string]any); ok {
				fmt.Printf("  %v\n", rm["file"])
			}
		}
	case "list_directory":
		entries, _ := obj["entries"].([]any)
		fmt.Printf("%d entr(ies)\n", len(entries))
		for _, e := range entries {
			fmt.Printf("  %v\n", e)
		}
	case "read_file":
		fmt.Printf("%v\n", obj["content"])
	case "list_tasks":
		tasks, _ := obj["tasks"].([]any)
		fmt.Printf("%d task(s)\n", len(tasks))
		for _, t := range tasks {
			if tm, ok := t.(map[string]any); ok {
				fmt.Printf("  %v  %v  %v\n", tm["id"], tm["type"], tm["status"])
			}
		}
	case "list_allowed_directories":
		dirs, _ := obj["allowed_directories"].([]any)
		for _, d := range dirs {
			fmt.Printf("  %v\n", d)
		}
	default:
		printRawJSON(text)
	}
}
