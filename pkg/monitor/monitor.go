package monitor

import "time" // Package for time-related operations

// TaskSchedulingStatus represents the scheduling status of a task.
// It includes information about the last and next scheduled times.
type TaskSchedulingStatus struct {
	Last time.Time `json:"last"` // The last time the task was scheduled or executed
	Next time.Time `json:"next"` // The next time the task is scheduled to be executed
}

// Entity aggregates the count and scheduling status of one kind of tracked
// object.
type Entity struct {
	Count  int64     `json:"count"`  // Number of objects currently tracked
	LastGC time.Time `json:"lastGc"` // Last time the garbage collection task ran
	NextGC time.Time `json:"nextGc"` // Next time the garbage collection task is due
}

// Telemetry is a snapshot of the orchestrator internals, exposed over the
// internal monitoring listener for the terminal UI.
type Telemetry struct {
	Deployments         Entity  `json:"deployments"`         // Deployment records tracked in the store
	Archives            Entity  `json:"archives"`            // Image archives retained on disk
	RemoteCommandsRate  float64 `json:"remoteCommandsRate"`  // Rate of remote commands executed per second
	RemoteCommandsCount uint64  `json:"remoteCommandsCount"` // Total remote commands executed
	TasksBufferUsage    float64 `json:"tasksBufferUsage"`    // Queued tasks as a share of the queue capacity
	TasksExecutedCount  uint64  `json:"tasksExecutedCount"`  // Total tasks executed since startup
}
