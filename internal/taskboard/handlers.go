package taskboard

import (
	"context"
	"fmt"
	"time"
)

// Noop completes immediately with its parameters echoed back; used to
// exercise the queue/worker machinery without any real analysis work.
func Noop(_ context.Context, task *Task) (any, error) {
	return map[string]any{"echo": task.Parameters}, nil
}

// DeepAnalysis is the asynchronous counterpart to the synchronous think
// tool: a placeholder long-form analysis that polls CancelRequested so it
// can be interrupted cooperatively.
func DeepAnalysis(ctx context.Context, task *Task) (any, error) {
	query, _ := task.Parameters["query"].(string)

	ticker := time.NewTicker(50 * time.Millisecond)
	defer ticker.Stop()

	for i := 0; i < 3; i++ {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-ticker.C:
			if task.CancelRequested() {
				return nil, fmt.Errorf("cancelled by request")
			}
		}
	}

	return map[string]any{
		"reflection": fmt.Sprintf("deep analysis of: %s", query),
	}, nil
}

// DefaultHandlers returns the handler map wired in at startup.
func DefaultHandlers() map[string]Handler {
	return map[string]Handler{
		"noop":          Noop,
		"deep_analysis": DeepAnalysis,
	}
}
