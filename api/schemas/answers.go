package schemas

import "time"

// AnswerSource identifies which resolver strategy produced an answer. The
// ordering reflects trust: the repair loop re-resolves before retrying a
// fill only when the failing answer came from a weaker source.
type AnswerSource string

const (
	SourceLearned AnswerSource = "learned"
	SourceProfile AnswerSource = "profile"
	SourcePattern AnswerSource = "pattern"
	SourceAI      AnswerSource = "ai"
	SourceHuman   AnswerSource = "human"
)

// sourceTrust ranks sources from weakest to strongest.
var sourceTrust = map[AnswerSource]int{
	SourceAI:      0,
	SourcePattern: 1,
	SourceHuman:   2,
	SourceProfile: 3,
	SourceLearned: 4,
}

// TrustsLessThan reports whether s is a weaker signal than other.
func (s AnswerSource) TrustsLessThan(other AnswerSource) bool {
	return sourceTrust[s] < sourceTrust[other]
}

// Answer is the resolution output for one field.
type Answer struct {
	Value string `json:"value"`
	// Values carries the expanded value set for multi-select controls; Value
	// keeps the joined form the learning store persists.
	Values     []string     `json:"values,omitempty"`
	Source     AnswerSource `json:"source"`
	Confidence float64      `json:"confidence"`
	// FilePath accompanies file-type fields; it is routed from the profile's
	// document paths, never produced by the resolver cascade.
	FilePath string `json:"file_path,omitempty"`
}

// IsZero reports whether the answer carries no usable value.
func (a Answer) IsZero() bool {
	return a.Value == "" && len(a.Values) == 0 && a.FilePath == ""
}

// StrategyHint captures what made a difficult fill succeed so the next
// encounter of the same label skips the repair loop entirely.
type StrategyHint struct {
	// AsyncWait marks controls whose option list populates from a remote
	// lookup and needs the longer wait budget.
	AsyncWait bool `json:"async_wait,omitempty"`
	// FuzzyFirst selects the best fuzzy match immediately instead of
	// requiring an exact pass first.
	FuzzyFirst bool `json:"fuzzy_first,omitempty"`
	// FallbackOption is a concrete option text to choose when the intended
	// value has no match (e.g. nearest available year).
	FallbackOption string `json:"fallback_option,omitempty"`
	Notes          string `json:"notes,omitempty"`
}

// IsZero reports whether the hint carries no information.
func (h StrategyHint) IsZero() bool {
	return !h.AsyncWait && !h.FuzzyFirst && h.FallbackOption == "" && h.Notes == ""
}

// LearnedEntry is one durable label->answer memory shared across sessions
// and portals. Key is the normalized label and is unique; writes are
// last-write-wins upserts.
type LearnedEntry struct {
	Key       string        `json:"key"`
	Answer    string        `json:"answer"`
	Hint      *StrategyHint `json:"hint,omitempty"`
	Origin    string        `json:"origin"`
	UpdatedAt time.Time     `json:"updated_at"`
}

// FillResult reports what the executor committed for one field.
type FillResult struct {
	Committed bool   `json:"committed"`
	ReadBack  string `json:"read_back"`
}

// RemediationOp enumerates the primitive operations a repair recipe may use.
// Every op maps onto an existing fill-executor primitive.
type RemediationOp string

const (
	OpRetype       RemediationOp = "retype"
	OpChooseOption RemediationOp = "choose_option"
	OpToggle       RemediationOp = "toggle"
	OpSetValue     RemediationOp = "set_value"
	OpPressKey     RemediationOp = "press_key"
	OpWait         RemediationOp = "wait"
)

// RemediationStep is one step of a repair recipe returned by the reasoning
// service.
type RemediationStep struct {
	Op  RemediationOp `json:"op"`
	Arg string        `json:"arg,omitempty"`
}

// RepairResult reports the outcome of the repair loop for one field.
type RepairResult struct {
	Resolved bool          `json:"resolved"`
	Hint     *StrategyHint `json:"hint,omitempty"`
	Attempts int           `json:"attempts"`
}
