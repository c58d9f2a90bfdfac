package schemas

import "errors"

// ErrorCode is a string type used for structured error reporting across the
// engine. Using a custom type ensures only predefined constants reach the
// session report.
type ErrorCode string

const (
	CodeLabelNotFound        ErrorCode = "LABEL_NOT_FOUND"
	CodeTypeUnrecognized     ErrorCode = "TYPE_UNRECOGNIZED"
	CodeOptionNoMatch        ErrorCode = "OPTION_NO_MATCH"
	CodeFillTimeout          ErrorCode = "FILL_TIMEOUT"
	CodeTargetAmbiguous      ErrorCode = "TARGET_AMBIGUOUS"
	CodeValidationFailed     ErrorCode = "VALIDATION_FAILED"
	CodeAIServiceUnavailable ErrorCode = "AI_SERVICE_UNAVAILABLE"
	CodeRescanBudgetExceeded ErrorCode = "RESCAN_BUDGET_EXCEEDED"
)

// Sentinel errors for the engine's failure taxonomy. OptionNoMatch,
// FillTimeout, TargetAmbiguous and ValidationFailed escalate to the repair
// loop before being surfaced; AIServiceUnavailable causes the resolver to
// fall through to the human strategy. Only RescanBudgetExceeded and repair
// exhaustion are terminal, and only for the affected field.
var (
	ErrLabelNotFound        = errors.New("no label could be associated with the control")
	ErrTypeUnrecognized     = errors.New("control type could not be inferred")
	ErrOptionNoMatch        = errors.New("no option text reasonably matches the answer")
	ErrFillTimeout          = errors.New("expected UI state never appeared within budget")
	ErrTargetAmbiguous      = errors.New("structural association did not uniquely resolve the target overlay")
	ErrValidationFailed     = errors.New("committed value does not match intent")
	ErrAIServiceUnavailable = errors.New("ai reasoning service unavailable")
	ErrRescanBudgetExceeded = errors.New("re-scan iteration budget exceeded")
)

// Classify maps an error onto its taxonomy code, defaulting to a generic
// execution failure for anything outside the taxonomy.
func Classify(err error) ErrorCode {
	switch {
	case errors.Is(err, ErrLabelNotFound):
		return CodeLabelNotFound
	case errors.Is(err, ErrTypeUnrecognized):
		return CodeTypeUnrecognized
	case errors.Is(err, ErrOptionNoMatch):
		return CodeOptionNoMatch
	case errors.Is(err, ErrFillTimeout):
		return CodeFillTimeout
	case errors.Is(err, ErrTargetAmbiguous):
		return CodeTargetAmbiguous
	case errors.Is(err, ErrValidationFailed):
		return CodeValidationFailed
	case errors.Is(err, ErrAIServiceUnavailable):
		return CodeAIServiceUnavailable
	case errors.Is(err, ErrRescanBudgetExceeded):
		return CodeRescanBudgetExceeded
	default:
		return "EXECUTION_FAILURE"
	}
}

// Repairable reports whether the failure should enter the repair loop.
func Repairable(err error) bool {
	return errors.Is(err, ErrOptionNoMatch) ||
		errors.Is(err, ErrFillTimeout) ||
		errors.Is(err, ErrTargetAmbiguous) ||
		errors.Is(err, ErrValidationFailed)
}
