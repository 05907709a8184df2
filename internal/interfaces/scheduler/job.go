package scheduler

import "context"

// Job is a unit of background work executed by the worker pool: consent
// status polls, batch retries, and whatever else needs running off the
// request path.
type Job interface {
	// Execute runs the job. The context carries the per-job timeout.
	Execute(ctx context.Context) error

	// Ref identifies the entity the job operates on (consent handle,
	// batch id). Used for logging and tracing.
	Ref() string

	// Description is a human-readable job summary for logs.
	Description() string
}
