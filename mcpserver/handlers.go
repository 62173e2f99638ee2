package mcpserver

import (
	"context"
	"encoding/json"
	"fmt"

	gomcp "github.com/mark3labs/mcp-go/mcp"
	mcpserver "github.com/mark3labs/mcp-go/server"

	"github.com/ByteMirror/taskqueue/task"
)

// taskSummary is the JSON shape every tool in this package renders a task
// as: a flat struct marshaled with json.MarshalIndent rather than the live
// object.
type taskSummary struct {
	ID       string `json:"id"`
	Priority string `json:"priority"`
	QoS      string `json:"qos"`
	State    string `json:"state"`
}

func summarize(t task.Task) taskSummary {
	return taskSummary{
		ID:       t.ID().String(),
		Priority: t.Priority().String(),
		QoS:      t.QoS().String(),
		State:    t.State().String(),
	}
}

func summarizeAll(ts []task.Task) []taskSummary {
	out := make([]taskSummary, 0, len(ts))
	for _, t := range ts {
		out = append(out, summarize(t))
	}
	return out
}

func jsonResult(v any) (*gomcp.CallToolResult, error) {
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return gomcp.NewToolResultError(fmt.Sprintf("marshal result: %v", err)), nil
	}
	return gomcp.NewToolResultText(string(b)), nil
}

func handleListTasks(q Inspector) mcpserver.ToolHandlerFunc {
	return func(ctx context.Context, req gomcp.CallToolRequest) (*gomcp.CallToolResult, error) {
		out := map[string][]taskSummary{
			"waiting":   summarizeAll(q.Waiting()),
			"running":   summarizeAll(q.Running()),
			"paused":    summarizeAll(q.Paused()),
			"succeeded": summarizeAll(q.Succeeded()),
			"failed":    summarizeAll(q.Failed()),
			"cancelled": summarizeAll(q.Cancelled()),
		}
		return jsonResult(out)
	}
}

func handleQueueStats(q Inspector) mcpserver.ToolHandlerFunc {
	return func(ctx context.Context, req gomcp.CallToolRequest) (*gomcp.CallToolResult, error) {
		out := map[string]any{
			"name":  q.Name(),
			"stats": q.Stats(),
		}
		return jsonResult(out)
	}
}

func handleTaskStatus(q Inspector) mcpserver.ToolHandlerFunc {
	return func(ctx context.Context, req gomcp.CallToolRequest) (*gomcp.CallToolResult, error) {
		id := req.GetString("task_id", "")
		if id == "" {
			return gomcp.NewToolResultError("task_id is required"), nil
		}
		parsed, err := parseTaskID(id)
		if err != nil {
			return gomcp.NewToolResultError(fmt.Sprintf("invalid task_id: %v", err)), nil
		}
		t, ok := q.TaskByID(parsed)
		if !ok {
			return gomcp.NewToolResultError(fmt.Sprintf("no task with id %s tracked by queue %s", id, q.Name())), nil
		}
		return jsonResult(summarize(t))
	}
}
