package tools

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/aitoolkit/librarian-mcp/internal/apperr"
	"github.com/aitoolkit/librarian-mcp/internal/taskboard"
)

func (s *Server) registerTaskBoardTools() {
	s.addTool(&mcp.Tool{
		Name:        "submit_background_task",
		Description: "Enqueue an asynchronous task on the TaskBoard. Returns the task id immediately; poll get_task_status/get_task_result for progress and outcome.",
		InputSchema: json.RawMessage(`{
			"type": "object",
			"properties": {
				"project_path": {"type": "string"},
				"task_type": {"type": "string"},
				"parameters": {"type": "object"},
				"priority": {"type": "string", "enum": ["low", "medium", "high"]}
			},
			"required": ["project_path", "task_type"]
		}`),
	}, s.handleSubmitBackgroundTask)

	s.addTool(&mcp.Tool{
		Name:        "get_task_status",
		Description: "Return a task's current status snapshot.",
		InputSchema: json.RawMessage(`{
			"type": "object",
			"properties": {
				"project_path": {"type": "string"},
				"task_id": {"type": "string"}
			},
			"required": ["project_path", "task_id"]
		}`),
	}, s.handleGetTaskStatus)

	s.addTool(&mcp.Tool{
		Name:        "get_task_result",
		Description: "Return a completed task's result, or a status message if it hasn't finished yet.",
		InputSchema: json.RawMessage(`{
			"type": "object",
			"properties": {
				"project_path": {"type": "string"},
				"task_id": {"type": "string"}
			},
			"required": ["project_path", "task_id"]
		}`),
	}, s.handleGetTaskResult)

	s.addTool(&mcp.Tool{
		Name:        "cancel_task",
		Description: "Request cancellation of a task. A pending task is cancelled immediately; a running task is asked to stop cooperatively.",
		InputSchema: json.RawMessage(`{
			"type": "object",
			"properties": {
				"project_path": {"type": "string"},
				"task_id": {"type": "string"}
			},
			"required": ["project_path", "task_id"]
		}`),
	}, s.handleCancelTask)

	s.addTool(&mcp.Tool{
		Name:        "list_tasks",
		Description: "List tasks for a project, optionally filtered by status and/or task_type.",
		InputSchema: json.RawMessage(`{
			"type": "object",
			"properties": {
				"project_path": {"type": "string"},
				"status": {"type": "string"},
				"task_type": {"type": "string"}
			},
			"required": ["project_path"]
		}`),
	}, s.handleListTasks)

	s.addTool(&mcp.Tool{
		Name:        "think",
		Description: "Synchronous reflection stub: formats and returns query as a reflection marker without touching the TaskBoard.",
		InputSchema: json.RawMessage(`{
			"type": "object",
			"properties": {
				"query": {"type": "string"},
				"priority": {"type": "string", "enum": ["low", "medium", "high"]}
			},
			"required": ["query"]
		}`),
	}, s.handleThink)

	s.addTool(&mcp.Tool{
		Name:        "deep_analysis",
		Description: "Asynchronous counterpart to think: submits a deep_analysis TaskBoard task and returns its id.",
		InputSchema: json.RawMessage(`{
			"type": "object",
			"properties": {
				"project_path": {"type": "string"},
				"query": {"type": "string"},
				"priority": {"type": "string", "enum": ["low", "medium", "high"]}
			},
			"required": ["project_path", "query"]
		}`),
	}, s.handleDeepAnalysis)
}

func parsePriorityArg(args map[string]any) (taskboard.Priority, error) {
	raw := getStringArg(args, "priority")
	priority, ok := taskboard.ParsePriority(raw)
	if !ok {
		return 0, apperr.Newf(apperr.InvalidArgument, "invalid priority %q", raw)
	}
	return priority, nil
}

func (s *Server) handleSubmitBackgroundTask(_ context.Context, req *mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, err := parseArgs(req)
	if err != nil {
		return errResult(err), nil
	}
	root, rerr := s.resolveProjectRoot(getStringArg(args, "project_path"))
	if rerr != nil {
		return errResult(rerr), nil
	}
	taskType := getStringArg(args, "task_type")
	if taskType == "" {
		return errResult(apperr.New(apperr.InvalidArgument, "task_type is required")), nil
	}
	params, _ := args["parameters"].(map[string]any)
	priority, perr := parsePriorityArg(args)
	if perr != nil {
		return errResult(perr), nil
	}

	task, serr := s.board.Submit(root, taskType, params, priority)
	if serr != nil {
		return errResult(serr), nil
	}
	return jsonResult(map[string]any{"task_id": task.ID}), nil
}

// lookupTask finds a task by id, additionally scoping it to project_path
// when provided so one project's tools can't inspect another's tasks.
func (s *Server) lookupTask(args map[string]any, taskID string) (*taskboard.Task, bool) {
	if taskID == "" {
		return nil, false
	}
	task, ok := s.board.Get(taskID)
	if !ok {
		return nil, false
	}
	if projectPath := getStringArg(args, "project_path"); projectPath != "" {
		root, rerr := s.resolveProjectRoot(projectPath)
		if rerr != nil || task.ProjectRoot != root {
			return nil, false
		}
	}
	return task, true
}

func (s *Server) handleGetTaskStatus(_ context.Context, req *mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, err := parseArgs(req)
	if err != nil {
		return errResult(err), nil
	}
	taskID := getStringArg(args, "task_id")
	task, ok := s.lookupTask(args, taskID)
	if !ok {
		return errResult(apperr.Newf(apperr.NotFound, "no task %q", taskID)), nil
	}
	return jsonResult(task.Snapshot()), nil
}

func (s *Server) handleGetTaskResult(_ context.Context, req *mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, err := parseArgs(req)
	if err != nil {
		return errResult(err), nil
	}
	taskID := getStringArg(args, "task_id")
	task, ok := s.lookupTask(args, taskID)
	if !ok {
		return errResult(apperr.Newf(apperr.NotFound, "no task %q", taskID)), nil
	}

	snap := task.Snapshot()
	if !taskboard.Status(snap.Status).IsTerminal() {
		return jsonResult(map[string]any{
			"task_id": taskID,
			"status":  snap.Status,
			"message": fmt.Sprintf("task %s has not completed yet", taskID),
		}), nil
	}
	if snap.Error != "" {
		return jsonResult(map[string]any{"task_id": taskID, "status": snap.Status, "error": snap.Error}), nil
	}
	return jsonResult(map[string]any{"task_id": taskID, "status": snap.Status, "result": snap.Result}), nil
}

func (s *Server) handleCancelTask(_ context.Context, req *mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, err := parseArgs(req)
	if err != nil {
		return errResult(err), nil
	}
	taskID := getStringArg(args, "task_id")
	task, ok := s.lookupTask(args, taskID)
	if !ok {
		return errResult(apperr.Newf(apperr.NotFound, "no task %q", taskID)), nil
	}
	status, cok := s.board.Cancel(task.ID)
	if !cok {
		return errResult(apperr.Newf(apperr.NotFound, "no task %q", taskID)), nil
	}
	return jsonResult(map[string]any{"task_id": task.ID, "status": string(status)}), nil
}

func (s *Server) handleListTasks(_ context.Context, req *mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, err := parseArgs(req)
	if err != nil {
		return errResult(err), nil
	}
	root, rerr := s.resolveProjectRoot(getStringArg(args, "project_path"))
	if rerr != nil {
		return errResult(rerr), nil
	}
	status := taskboard.Status(getStringArg(args, "status"))
	taskType := getStringArg(args, "task_type")
	return jsonResult(map[string]any{"tasks": s.board.List(root, status, taskType)}), nil
}

func (s *Server) handleThink(_ context.Context, req *mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, err := parseArgs(req)
	if err != nil {
		return errResult(err), nil
	}
	query := getStringArg(args, "query")
	if query == "" {
		return errResult(apperr.New(apperr.InvalidArgument, "query is required")), nil
	}
	priority, perr := parsePriorityArg(args)
	if perr != nil {
		return errResult(perr), nil
	}
	return jsonResult(map[string]any{
		"reflection": fmt.Sprintf("considered: %s", query),
		"priority":   priority.String(),
	}), nil
}

func (s *Server) handleDeepAnalysis(_ context.Context, req *mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, err := parseArgs(req)
	if err != nil {
		return errResult(err), nil
	}
	root, rerr := s.resolveProjectRoot(getStringArg(args, "project_path"))
	if rerr != nil {
		return errResult(rerr), nil
	}
	query := getStringArg(args, "query")
	if query == "" {
		return errResult(apperr.New(apperr.InvalidArgument, "query is required")), nil
	}
	priority, perr := parsePriorityArg(args)
	if perr != nil {
		return errResult(perr), nil
	}

	task, serr := s.board.Submit(root, "deep_analysis", map[string]any{"query": query}, priority)
	if serr != nil {
		return errResult(serr), nil
	}
	return jsonResult(map[string]any{"task_id": task.ID}), nil
}
