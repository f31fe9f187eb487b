package controlplane

import "errors"

// Sentinel errors for control plane operations.
var (
	ErrTaskNotFound    = errors.New("task not found")
	ErrNotFound        = errors.New("resource not found")
	ErrInvalidRequest  = errors.New("invalid request")
	ErrSyncUnavailable = errors.New("sync not configured")
)
