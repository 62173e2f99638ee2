// Package mcpserver exposes a TaskQueue's state as a read-only MCP tool
// surface built on github.com/mark3labs/mcp-go: NewTool/AddTool
// registration and JSON-rendered tool results, with no mutating tools
// registered.
package mcpserver

import (
	gomcp "github.com/mark3labs/mcp-go/mcp"
	mcpserver "github.com/mark3labs/mcp-go/server"

	"github.com/ByteMirror/taskqueue/queue"
	"github.com/ByteMirror/taskqueue/task"
)

const serverInstructions = "You are inspecting a task scheduler queue. Every tool here is " +
	"read-only: it reports on tasks already added to the queue, it cannot add, cancel, " +
	"or otherwise mutate them."

// Inspector is the read surface a TaskQueue (or a linked.LinkedTaskQueue,
// which embeds one) exposes to the MCP tools in this package.
type Inspector interface {
	Name() string
	Stats() map[string]int
	Waiting() []task.Task
	Running() []task.Task
	Failed() []task.Task
	Succeeded() []task.Task
	Paused() []task.Task
	Cancelled() []task.Task
	TaskByID(id task.ID) (task.Task, bool)
}

var _ Inspector = (*queue.TaskQueue)(nil)

// Server wraps an MCP server reporting on a single queue.
type Server struct {
	server *mcpserver.MCPServer
	q      Inspector
}

// New constructs a Server over q, registering its read-only tool set.
func New(q Inspector) *Server {
	s := mcpserver.NewMCPServer(
		"taskqueue",
		"0.1.0",
		mcpserver.WithInstructions(serverInstructions),
	)
	srv := &Server{server: s, q: q}
	srv.registerTools()
	return srv
}

func (s *Server) registerTools() {
	listTasks := gomcp.NewTool("list_tasks",
		gomcp.WithDescription("List every task currently tracked by the queue, grouped by view "+
			"(waiting, running, paused, succeeded, failed, cancelled)."),
		gomcp.WithReadOnlyHintAnnotation(true),
	)
	s.server.AddTool(listTasks, handleListTasks(s.q))

	queueStats := gomcp.NewTool("queue_stats",
		gomcp.WithDescription("Report aggregate counters for the queue: how many tasks are "+
			"waiting, running, paused, and terminal, plus the total tracked."),
		gomcp.WithReadOnlyHintAnnotation(true),
	)
	s.server.AddTool(queueStats, handleQueueStats(s.q))

	taskStatus := gomcp.NewTool("task_status",
		gomcp.WithDescription("Look up a single task's current state by id."),
		gomcp.WithString("task_id",
			gomcp.Required(),
			gomcp.Description("The task's uuid, as rendered by list_tasks."),
		),
		gomcp.WithReadOnlyHintAnnotation(true),
	)
	s.server.AddTool(taskStatus, handleTaskStatus(s.q))
}

// Serve starts the MCP server using stdio transport, blocking until the
// transport closes.
func (s *Server) Serve() error {
	return mcpserver.ServeStdio(s.server)
}
