package assistant

// Status classifies the result of an assistant run.
type Status string

const (
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
	StatusTimedOut  Status = "timed_out"
)

// Outcome is the result of asking the assistant for a reply. Callers
// handle all three cases without inspecting error types: a failed or
// timed-out run is an outcome, not an error.
type Outcome struct {
	Status Status
	Text   string
	Reason string
}

// Completed reports whether the run finished with a usable reply.
func (o Outcome) Completed() bool {
	return o.Status == StatusCompleted
}
