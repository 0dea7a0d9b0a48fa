package quota

import "github.com/google/uuid"

// NewRunID returns a unique identifier for a metered run. Callers that
// already have a natural run identifier (a request ID, a job ID) should use
// that instead; the only requirement is uniqueness per in-flight run.
func NewRunID() string {
	return uuid.New().String()
}
