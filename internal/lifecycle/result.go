package lifecycle

// OutcomeKind classifies what happened to one service during a sequence.
type OutcomeKind string

const (
	OutcomeStarted      OutcomeKind = "started"
	OutcomeFailed       OutcomeKind = "failed"
	OutcomeTimedOut     OutcomeKind = "timed_out"
	OutcomeSkipped      OutcomeKind = "skipped"
	OutcomeNotAttempted OutcomeKind = "not_attempted"
	OutcomeStopped      OutcomeKind = "stopped"
	OutcomeStopFailed   OutcomeKind = "stop_failed"
	OutcomeStopTimedOut OutcomeKind = "stop_timed_out"
)

// Outcome records the result for a single service within a sequence.
type Outcome struct {
	Service string      `json:"service"`
	Kind    OutcomeKind `json:"kind"`
	Cause   string      `json:"cause,omitempty"`
}

// SequenceResult reports the outcome of a StartAll or StopAll sequence.
type SequenceResult struct {
	Order     []string           `json:"order"`
	Outcomes  map[string]Outcome `json:"outcomes"`
	Cancelled bool               `json:"cancelled"`
	Err       error              `json:"-"`
}

func newSequenceResult(order []string) SequenceResult {
	return SequenceResult{
		Order:    order,
		Outcomes: make(map[string]Outcome, len(order)),
	}
}

func (r *SequenceResult) record(name string, kind OutcomeKind, cause string) {
	r.Outcomes[name] = Outcome{Service: name, Kind: kind, Cause: cause}
}
