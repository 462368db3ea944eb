// Package task defines the values exchanged with the Task Service: the task
// handle returned on submission and the progress snapshots served while the
// task runs.
package task
