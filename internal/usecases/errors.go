package usecases

import "errors"

var (
	// ErrNotFound means the tenant could not be resolved; a defaulted config is still returned.
	ErrNotFound = errors.New("tenant not found")
	// ErrAIDisabled means the tenant has not enabled the assistant.
	ErrAIDisabled = errors.New("ai disabled for tenant")
	// ErrUpstream wraps failures of the model provider or the store.
	ErrUpstream = errors.New("upstream failure")
)
