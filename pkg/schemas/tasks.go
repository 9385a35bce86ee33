package schemas

// TaskType represents the type of task as a string.
type TaskType string

const (
	// TaskTypeDeploy represents a task type for running one deployment
	// end to end against a target.
	TaskTypeDeploy TaskType = "Deploy"

	// TaskTypeGarbageCollectArchives represents a task type for pruning
	// image archives which outlived the configured retention window.
	TaskTypeGarbageCollectArchives TaskType = "GarbageCollectArchives"
)

// Tasks is a map structure used to keep track of queued tasks.
// It maps a TaskType to another map, which associates task identifiers with empty interfaces.
type Tasks map[TaskType]map[string]interface{}
