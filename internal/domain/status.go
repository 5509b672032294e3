package domain

// Job status constants
const (
	JobStatusPending       = "pending"
	JobStatusRunning       = "running"
	JobStatusComposing     = "composing"
	JobStatusCompleted     = "completed"
	JobStatusPartialFailed = "partial_failed"
	JobStatusFailed        = "failed"
	JobStatusCancelled     = "cancelled"
)

// Segment status constants
const (
	SegmentStatusPending   = "pending"
	SegmentStatusRunning   = "running"
	SegmentStatusSucceeded = "succeeded"
	SegmentStatusFailed    = "failed"
)

// JobStatusTerminal reports whether a job status allows no further transitions.
func JobStatusTerminal(status string) bool {
	switch status {
	case JobStatusCompleted, JobStatusPartialFailed, JobStatusFailed, JobStatusCancelled:
		return true
	}
	return false
}

// SegmentStatusTerminal reports whether a segment status is final.
func SegmentStatusTerminal(status string) bool {
	return status == SegmentStatusSucceeded || status == SegmentStatusFailed
}

// PublicJobStatus maps internal statuses to the ones exposed by the status
// API. The composing phase is an internal finalize guard; callers see the
// job as still running until the artifact is written.
func PublicJobStatus(status string) string {
	if status == JobStatusComposing {
		return JobStatusRunning
	}
	return status
}
