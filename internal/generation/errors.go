package generation

import "errors"

var (
	// ErrInvalidInput rejects a request before any provider call.
	ErrInvalidInput = errors.New("invalid input")
	// ErrConfiguration means no generator credential is configured.
	ErrConfiguration = errors.New("generation is not configured")
	// ErrForeignRequest means the request id belongs to another user.
	ErrForeignRequest = errors.New("request belongs to another user")
	// ErrSupervisorClosed is returned by Supervisor.Go after Shutdown.
	ErrSupervisorClosed = errors.New("supervisor is shutting down")
)
