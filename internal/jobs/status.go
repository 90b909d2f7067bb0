package jobs

// Status represents the lifecycle state of an exam job in the
// exam_jobs table. These values must match the text values stored in
// the database (exam_jobs.status) and the strings returned on the
// wire.
//
// Centralizing these here avoids scattering string literals like
// "PROCESSING" or "COMPLETED" across packages.
type Status string

const (
	StatusProcessing Status = "PROCESSING"
	StatusCompleted  Status = "COMPLETED"
	StatusFailed     Status = "FAILED"
)

// Terminal reports whether a job in this status can never transition
// again. PROCESSING is the only non-terminal status.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed
}
