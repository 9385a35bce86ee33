package store

import (
	"context"
	"sync"

	"github.com/deckhand-sh/deckhand/pkg/schemas"
)

// Local represents an in-memory storage implementation for managing deployment
// records and the task queue tracker.
type Local struct {
	deployments      schemas.Deployments
	deploymentsMutex sync.RWMutex // Mutex for thread-safe access to deployment records

	tasks              schemas.Tasks
	tasksMutex         sync.RWMutex // Mutex for thread-safe access to tasks
	executedTasksCount uint64       // Counter for the number of executed tasks
}

// SetDeployment stores a deployment record in the local storage.
func (l *Local) SetDeployment(_ context.Context, d schemas.Deployment) error {
	l.deploymentsMutex.Lock()         // Lock the mutex for exclusive access
	defer l.deploymentsMutex.Unlock() // Ensure the mutex is unlocked when the function exits

	l.deployments[d.Key()] = d // Store the deployment record

	return nil
}

// DelDeployment deletes a deployment record from the local storage.
func (l *Local) DelDeployment(_ context.Context, k schemas.DeploymentKey) error {
	l.deploymentsMutex.Lock()         // Lock the mutex for exclusive access
	defer l.deploymentsMutex.Unlock() // Ensure the mutex is unlocked when the function exits

	delete(l.deployments, k) // Delete the deployment record

	return nil
}

// GetDeployment retrieves a deployment record from the local storage.
func (l *Local) GetDeployment(ctx context.Context, d *schemas.Deployment) error {
	exists, _ := l.DeploymentExists(ctx, d.Key())

	if exists {
		l.deploymentsMutex.RLock()     // Lock the mutex for read-only access
		*d = l.deployments[d.Key()]    // Retrieve the deployment record
		l.deploymentsMutex.RUnlock()   // Unlock the mutex
	}

	return nil
}

// DeploymentExists checks if a deployment record exists in the local storage.
func (l *Local) DeploymentExists(_ context.Context, k schemas.DeploymentKey) (bool, error) {
	l.deploymentsMutex.RLock()         // Lock the mutex for read-only access
	defer l.deploymentsMutex.RUnlock() // Ensure the mutex is unlocked when the function exits

	_, ok := l.deployments[k] // Check if the deployment record exists

	return ok, nil
}

// Deployments retrieves all deployment records from the local storage.
func (l *Local) Deployments(_ context.Context) (deployments schemas.Deployments, err error) {
	deployments = make(schemas.Deployments)

	l.deploymentsMutex.RLock()         // Lock the mutex for read-only access
	defer l.deploymentsMutex.RUnlock() // Ensure the mutex is unlocked when the function exits

	for k, v := range l.deployments {
		deployments[k] = v // Copy all deployment records to the result
	}

	return
}

// DeploymentsCount returns the count of deployment records in the local storage.
func (l *Local) DeploymentsCount(_ context.Context) (int64, error) {
	l.deploymentsMutex.RLock()         // Lock the mutex for read-only access
	defer l.deploymentsMutex.RUnlock() // Ensure the mutex is unlocked when the function exits

	return int64(len(l.deployments)), nil // Return the number of deployment records
}

// isTaskAlreadyQueued assesses if a task is already queued or not.
func (l *Local) isTaskAlreadyQueued(tt schemas.TaskType, uniqueID string) bool {
	l.tasksMutex.Lock()         // Lock the mutex for exclusive access
	defer l.tasksMutex.Unlock() // Ensure the mutex is unlocked when the function exits

	if l.tasks == nil {
		l.tasks = make(map[schemas.TaskType]map[string]interface{}) // Initialize the tasks map if it's nil
	}

	taskTypeQueue, ok := l.tasks[tt]
	if !ok {
		l.tasks[tt] = make(map[string]interface{}) // Initialize the task type queue if it doesn't exist

		return false
	}

	if _, alreadyQueued := taskTypeQueue[uniqueID]; alreadyQueued {
		return true // Return true if the task is already queued
	}

	return false
}

// QueueTask registers that we are queueing the task.
// It returns true if it managed to schedule it, false if it was already scheduled.
func (l *Local) QueueTask(_ context.Context, tt schemas.TaskType, uniqueID, _ string) (bool, error) {
	if !l.isTaskAlreadyQueued(tt, uniqueID) {
		l.tasksMutex.Lock()         // Lock the mutex for exclusive access
		defer l.tasksMutex.Unlock() // Ensure the mutex is unlocked when the function exits

		l.tasks[tt][uniqueID] = nil // Queue the task

		return true, nil
	}

	return false, nil
}

// UnqueueTask removes the task from the tracker.
func (l *Local) UnqueueTask(_ context.Context, tt schemas.TaskType, uniqueID string) error {
	if l.isTaskAlreadyQueued(tt, uniqueID) {
		l.tasksMutex.Lock()         // Lock the mutex for exclusive access
		defer l.tasksMutex.Unlock() // Ensure the mutex is unlocked when the function exits

		delete(l.tasks[tt], uniqueID) // Remove the task from the queue

		l.executedTasksCount++ // Increment the count of executed tasks
	}

	return nil
}

// CurrentlyQueuedTasksCount returns the count of currently queued tasks.
func (l *Local) CurrentlyQueuedTasksCount(_ context.Context) (count uint64, err error) {
	l.tasksMutex.RLock()         // Lock the mutex for read-only access
	defer l.tasksMutex.RUnlock() // Ensure the mutex is unlocked when the function exits

	for _, t := range l.tasks {
		count += uint64(len(t)) // Sum the number of tasks across all task types
	}

	return
}

// ExecutedTasksCount returns the count of executed tasks.
func (l *Local) ExecutedTasksCount(_ context.Context) (uint64, error) {
	l.tasksMutex.RLock()         // Lock the mutex for read-only access
	defer l.tasksMutex.RUnlock() // Ensure the mutex is unlocked when the function exits

	return l.executedTasksCount, nil // Return the count of executed tasks
}
