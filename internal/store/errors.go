package store

import "errors"

var (
	// ErrEmptyURL indicates a URL parameter is missing or empty
	ErrEmptyURL = errors.New("empty_url")

	// ErrEmptyHandle indicates a task handle is missing or empty
	ErrEmptyHandle = errors.New("empty_task_id")

	// ErrNotFound indicates no row exists for the task handle
	ErrNotFound = errors.New("task_not_found")
)
