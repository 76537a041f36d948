package types

// ProjectStatus tracks where a project sits in the ingestion lifecycle.
type ProjectStatus string

const (
	StatusPending    ProjectStatus = "pending"    // created, nothing ingested yet
	StatusProcessing ProjectStatus = "processing" // an ingestion run is in flight
	StatusCompleted  ProjectStatus = "completed"  // last ingestion finished successfully
	StatusFailed     ProjectStatus = "failed"     // last ingestion aborted with an error
)

// ValidProjectStatuses contains all valid project status values.
var ValidProjectStatuses = []ProjectStatus{
	StatusPending,
	StatusProcessing,
	StatusCompleted,
	StatusFailed,
}

// IsValidProjectStatus checks if the given status is a valid project status.
func IsValidProjectStatus(status ProjectStatus) bool {
	for _, s := range ValidProjectStatuses {
		if status == s {
			return true
		}
	}
	return false
}

// IsValidStatusTransition validates project status transitions.
//
// Valid transitions:
//
//	pending -> processing
//	processing -> completed | failed
//	completed -> processing   (further uploads to hybrid projects)
//	failed -> processing      (re-ingestion after a failure)
//
// Every run re-enters through processing; no transition skips it, and a
// terminal state is only ever left by starting a new run.
func IsValidStatusTransition(current, next ProjectStatus) bool {
	switch current {
	case StatusPending:
		return next == StatusProcessing

	case StatusProcessing:
		return next == StatusCompleted || next == StatusFailed

	case StatusCompleted:
		return next == StatusProcessing

	case StatusFailed:
		return next == StatusProcessing

	default:
		return false
	}
}
