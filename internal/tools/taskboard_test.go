package tools

import "testing"

func TestSubmitAndGetTaskStatusPending(t *testing.T) {
	root := t.TempDir()
	s := newTestServer(t, root)

	submitted, isErr := call(t, s, "submit_background_task", map[string]any{
		"project_path": root,
		"task_type":    "noop",
		"parameters":   map[string]any{"x": 1},
	})
	if isErr {
		t.Fatalf("submit_background_task failed: %v", submitted)
	}
	taskID, _ := submitted["task_id"].(string)
	if taskID == "" {
		t.Fatal("task_id missing from submit_background_task result")
	}

	status, isErr := call(t, s, "get_task_status", map[string]any{"project_path": root, "task_id": taskID})
	if isErr {
		t.Fatalf("get_task_status failed: %v", status)
	}
	if status["status"] != "pending" {
		t.Errorf("status = %v, want pending (no worker is running)", status["status"])
	}
}

func TestGetTaskResultBeforeCompletion(t *testing.T) {
	root := t.TempDir()
	s := newTestServer(t, root)

	submitted, _ := call(t, s, "submit_background_task", map[string]any{
		"project_path": root,
		"task_type":    "noop",
	})
	taskID, _ := submitted["task_id"].(string)

	out, isErr := call(t, s, "get_task_result", map[string]any{"project_path": root, "task_id": taskID})
	if isErr {
		t.Fatalf("get_task_result failed: %v", out)
	}
	if out["message"] == nil {
		t.Errorf("expected a not-yet-complete message, got %v", out)
	}
}

func TestGetTaskStatusUnknownIDIsNotFound(t *testing.T) {
	root := t.TempDir()
	s := newTestServer(t, root)

	out, isErr := call(t, s, "get_task_status", map[string]any{"project_path": root, "task_id": "nonexistent"})
	if !isErr || out["kind"] != "not_found" {
		t.Errorf("expected not_found, got %v isErr=%v", out, isErr)
	}
}

func TestCancelPendingTaskIsImmediate(t *testing.T) {
	root := t.TempDir()
	s := newTestServer(t, root)

	submitted, _ := call(t, s, "submit_background_task", map[string]any{
		"project_path": root,
		"task_type":    "noop",
	})
	taskID, _ := submitted["task_id"].(string)

	out, isErr := call(t, s, "cancel_task", map[string]any{"project_path": root, "task_id": taskID})
	if isErr {
		t.Fatalf("cancel_task failed: %v", out)
	}
	if out["status"] != "cancelled" {
		t.Errorf("status = %v, want cancelled", out["status"])
	}
}

func TestListTasksFiltersByType(t *testing.T) {
	root := t.TempDir()
	s := newTestServer(t, root)

	if _, isErr := call(t, s, "submit_background_task", map[string]any{
		"project_path": root, "task_type": "noop",
	}); isErr {
		t.Fatal("submit failed")
	}
	if _, isErr := call(t, s, "deep_analysis", map[string]any{
		"project_path": root, "query": "why is this slow",
	}); isErr {
		t.Fatal("deep_analysis submit failed")
	}

	out, isErr := call(t, s, "list_tasks", map[string]any{"project_path": root, "task_type": "deep_analysis"})
	if isErr {
		t.Fatalf("list_tasks failed: %v", out)
	}
	tasks, ok := out["tasks"].([]any)
	if !ok || len(tasks) != 1 {
		t.Fatalf("tasks = %v, want exactly 1 deep_analysis task", out["tasks"])
	}
}

func TestSubmitBackgroundTaskRejectsInvalidPriority(t *testing.T) {
	root := t.TempDir()
	s := newTestServer(t, root)

	out, isErr := call(t, s, "submit_background_task", map[string]any{
		"project_path": root,
		"task_type":    "noop",
		"priority":     "urgent",
	})
	if !isErr || out["kind"] != "invalid_argument" {
		t.Errorf("expected invalid_argument for an unknown priority, got %v isErr=%v", out, isErr)
	}
}

func TestThinkIsSynchronousAndDoesNotTouchBoard(t *testing.T) {
	root := t.TempDir()
	s := newTestServer(t, root)

	out, isErr := call(t, s, "think", map[string]any{"query": "what does this function do"})
	if isErr {
		t.Fatalf("think failed: %v", out)
	}
	if out["reflection"] != "considered: what does this function do" {
		t.Errorf("reflection = %v", out["reflection"])
	}
	if out["priority"] != "medium" {
		t.Errorf("priority = %v, want default medium", out["priority"])
	}

	tasks, _ := call(t, s, "list_tasks", map[string]any{"project_path": root})
	if got, ok := tasks["tasks"].([]any); !ok || len(got) != 0 {
		t.Errorf("think should not enqueue a TaskBoard entry, got %v", tasks["tasks"])
	}
}

func TestDeepAnalysisSubmitsTask(t *testing.T) {
	root := t.TempDir()
	s := newTestServer(t, root)

	out, isErr := call(t, s, "deep_analysis", map[string]any{"project_path": root, "query": "trace this bug"})
	if isErr {
		t.Fatalf("deep_analysis failed: %v", out)
	}
	if out["task_id"] == nil || out["task_id"] == "" {
		t.Errorf("task_id missing: %v", out)
	}
}

func TestLookupTaskScopesToProjectPath(t *testing.T) {
	rootA := t.TempDir()
	rootB := t.TempDir()
	s := newTestServer(t, rootA) // Server's allow-list only covers rootA

	submitted, _ := call(t, s, "submit_background_task", map[string]any{
		"project_path": rootA,
		"task_type":    "noop",
	})
	taskID, _ := submitted["task_id"].(string)

	// rootB is outside the allow-list, so resolving it inside lookupTask
	// fails; the scoping check must then deny the task rather than be
	// skipped.
	task, ok := s.lookupTask(map[string]any{"project_path": rootB}, taskID)
	if ok || task != nil {
		t.Error("lookupTask should not return a task submitted under a different project_path")
	}
}
