package scheduler

import "github.com/aristath/taskflow/internal/plugin"

// Observer receives executor lifecycle callbacks. All calls happen on the
// driver goroutine; TaskFinished is called at merge time, in merge order.
type Observer interface {
	RunStarted(sessionID string, plan ExecutionPlan)
	TaskFinished(sessionID string, desc plugin.Descriptor, out plugin.TaskOutput)
	RunFinished(sessionID string, outputs map[string]plugin.TaskOutput, err error)
}
