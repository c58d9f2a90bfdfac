package schemas

// FieldType classifies a discovered form control. The type is inferred from
// the tag/role/attribute combination reported by the browser, never from
// guesswork on the control's content.
type FieldType string

const (
	FieldText         FieldType = "text"
	FieldSelect       FieldType = "select"
	FieldAutocomplete FieldType = "autocomplete"
	FieldCheckbox     FieldType = "checkbox"
	FieldRadio        FieldType = "radio"
	FieldFile         FieldType = "file"
	FieldUnknown      FieldType = "unknown"
)

// FieldState tracks a field through its lifecycle. The state advances
// monotonically (unresolved -> resolved -> filled -> verified) or drops to
// failed; it never regresses. Advance enforces this.
type FieldState string

const (
	StateUnresolved FieldState = "unresolved"
	StateResolved   FieldState = "resolved"
	StateFilled     FieldState = "filled"
	StateVerified   FieldState = "verified"
	StateFailed     FieldState = "failed"
)

// stateRank orders states for the monotonic-advance check.
var stateRank = map[FieldState]int{
	StateUnresolved: 0,
	StateResolved:   1,
	StateFilled:     2,
	StateVerified:   3,
}

// Position holds visual page coordinates used for stable reading order.
type Position struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Field is one interactive control discovered during a scan pass. A field
// found in a later re-scan is a new entity; the underlying DOM node may have
// been replaced, so fields are never carried across scan boundaries.
type Field struct {
	// Selector addresses the live control for the duration of one pass only.
	Selector string    `json:"selector"`
	Label    string    `json:"label"`
	Type     FieldType `json:"type"`
	Options  []string  `json:"options,omitempty"`
	// Multiple marks controls accepting a set of values (select[multiple]);
	// the resolver then populates Answer.Values.
	Multiple bool       `json:"multiple,omitempty"`
	Position Position   `json:"position"`
	Required bool       `json:"required"`
	State    FieldState `json:"state"`
}

// Advance moves the field to next if that is a legal forward transition.
// Moving to failed is always allowed from a non-terminal state. Returns
// false when the transition would regress or leave a terminal state.
func (f *Field) Advance(next FieldState) bool {
	if f.State == StateFailed || f.State == StateVerified {
		return false
	}
	if next == StateFailed {
		f.State = StateFailed
		return true
	}
	cur, ok := stateRank[f.State]
	nxt, ok2 := stateRank[next]
	if !ok || !ok2 || nxt <= cur {
		return false
	}
	f.State = next
	return true
}

// HasOptions reports whether the field type carries an option set.
func (t FieldType) HasOptions() bool {
	return t == FieldSelect || t == FieldAutocomplete || t == FieldRadio
}
