package beam

// Status is the terminal state of a step or of a whole run.
type Status string

const (
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"

	// StatusSkipped marks work that was never selected (an untaken branch
	// case). Skipped steps do not appear in the run state or the log.
	StatusSkipped Status = "skipped"
)

// Outcome is the immutable terminal result of one step. It is created when
// the step settles and never rewritten afterwards.
type Outcome struct {
	Status Status
	Output any
	Err    error
}

// Completed builds a successful outcome.
func Completed(output any) Outcome {
	return Outcome{Status: StatusCompleted, Output: output}
}

// Failed builds a failed outcome.
func Failed(err error) Outcome {
	return Outcome{Status: StatusFailed, Err: err}
}

// Skipped builds a skipped outcome.
func Skipped() Outcome {
	return Outcome{Status: StatusSkipped}
}
