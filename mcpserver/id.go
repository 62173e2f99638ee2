package mcpserver

import (
	"github.com/google/uuid"

	"github.com/ByteMirror/taskqueue/task"
)

// parseTaskID parses a canonical UUID string into a task.ID, as rendered by
// task.ID.String() and surfaced back to callers via list_tasks.
func parseTaskID(s string) (task.ID, error) {
	u, err := uuid.Parse(s)
	if err != nil {
		return task.ID{}, err
	}
	return task.ID(u), nil
}
