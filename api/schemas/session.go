package schemas

// SessionStatus is the terminal disposition of one form session.
type SessionStatus string

const (
	SessionRunning SessionStatus = "running"
	// SessionDone means every discovered field reached verified.
	SessionDone SessionStatus = "done"
	// SessionPartial means one or more fields failed or the re-scan or
	// session budget ran out; progress is reported, never discarded.
	SessionPartial SessionStatus = "partial"
)

// FormSession is one run over one page. Iteration is bounded by the
// configured re-scan budget; a session always terminates done or partial.
type FormSession struct {
	ID        string        `json:"id"`
	URL       string        `json:"url"`
	Fields    []*Field      `json:"fields"`
	Iteration int           `json:"iteration"`
	Status    SessionStatus `json:"status"`
}

// FieldOutcome is the per-field line item of a session report, letting the
// caller distinguish fully automated, AI-assisted, and needs-attention
// fields.
type FieldOutcome struct {
	Label  string       `json:"label"`
	Type   FieldType    `json:"type"`
	State  FieldState   `json:"state"`
	Source AnswerSource `json:"source,omitempty"`
	Error  string       `json:"error,omitempty"`
}

// SessionReport summarizes one completed session for the orchestrating
// caller.
type SessionReport struct {
	SessionID       string         `json:"session_id"`
	URL             string         `json:"url"`
	Status          SessionStatus  `json:"status"`
	Iterations      int            `json:"iterations"`
	FilledCount     int            `json:"filled_count"`
	FailedCount     int            `json:"failed_count"`
	AIAssistedCount int            `json:"ai_assisted_count"`
	Fields          []FieldOutcome `json:"fields"`
}
