// Package jobs hosts the background task definitions and the Asynq worker.
package jobs

import (
	"github.com/hibiken/asynq"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// TaskGrantIntegrity is the task type for the grant integrity scan.
	TaskGrantIntegrity = "permissions:grant_integrity"
)

// NewGrantIntegrityTask constructs the integrity scan task. The scan takes
// no parameters; it always covers the whole grant store.
func NewGrantIntegrityTask() *asynq.Task {
	return asynq.NewTask(TaskGrantIntegrity, nil)
}
