package browser

import (
	"context"
	"time"
)

// ElementRef is an opaque handle to a live control. Handles may go stale
// whenever the page mutates, so the engine never retains one across a scan
// boundary; it re-resolves by label and position each pass.
type ElementRef struct {
	// Selector addresses the element for the current pass only.
	Selector string
	Tag      string
	X, Y     float64
}

// Candidate is the raw enumeration record for one interactive control,
// before the scanner has inferred anything about it.
type Candidate struct {
	Ref       ElementRef
	InputType string
	Role      string
	Name      string
	Visible   bool
}

// Automator is the browser automation capability the engine consumes. Every
// method is a suspension point: it blocks until the remote browser
// acknowledges the action or ctx expires. Implementations must be safe for
// sequential use from one goroutine; the engine never interacts with more
// than one control at a time.
type Automator interface {
	Navigate(ctx context.Context, url string) error
	Location(ctx context.Context) (string, error)

	// Enumerate discovers interactive controls within scope (a CSS selector
	// group) and returns fresh handles for them.
	Enumerate(ctx context.Context, scope string) ([]Candidate, error)

	ReadAttribute(ctx context.Context, ref ElementRef, name string) (string, bool, error)
	ReadText(ctx context.Context, ref ElementRef) (string, error)
	// ReadValue returns the committed value: input value, selected option
	// text for selects, or the rendered single-value of a combobox widget.
	ReadValue(ctx context.Context, ref ElementRef) (string, error)
	Checked(ctx context.Context, ref ElementRef) (bool, error)
	// ValidityMessage returns the control's own error signal: the HTML
	// validation message, or the referenced error text when aria-invalid is
	// set. Empty means the control considers itself valid.
	ValidityMessage(ctx context.Context, ref ElementRef) (string, error)

	// AssociatedLabel returns the text of an explicitly associated label
	// element (label[for] or an ancestor label), or "".
	AssociatedLabel(ctx context.Context, ref ElementRef) (string, error)
	// PrecedingText returns the nearest preceding visible text, or "".
	PrecedingText(ctx context.Context, ref ElementRef) (string, error)

	// ListOptions returns the option texts that belong to this specific
	// control: <option> children for selects, same-name group labels for
	// radios, and for comboboxes the options of the listbox the control
	// declares ownership of (aria-controls/aria-owns). It must never fall
	// back to a page-global option selector; when ownership cannot be
	// resolved uniquely it returns ErrTargetAmbiguous via the implementation.
	ListOptions(ctx context.Context, ref ElementRef) ([]string, error)
	// ClickOption activates the owned option whose text equals text exactly.
	ClickOption(ctx context.Context, ref ElementRef, text string) error

	Click(ctx context.Context, ref ElementRef) error
	Type(ctx context.Context, ref ElementRef, text string) error
	SetValue(ctx context.Context, ref ElementRef, value string) error
	SetFiles(ctx context.Context, ref ElementRef, paths []string) error
	ClearValue(ctx context.Context, ref ElementRef) error
	// PressKey dispatches a key to the focused element (e.g. Escape, Tab).
	PressKey(ctx context.Context, key string) error
	ScrollIntoView(ctx context.Context, ref ElementRef) error

	Screenshot(ctx context.Context) ([]byte, error)

	// WaitFor polls predicate until it reports true or timeout elapses.
	// Returns false (not an error) on timeout so callers can classify it.
	WaitFor(ctx context.Context, predicate func(context.Context) (bool, error), timeout, interval time.Duration) (bool, error)
}

// InteractiveScope is the default enumeration scope: every control kind the
// scanner understands, including ARIA comboboxes that are not native inputs.
const InteractiveScope = `input, select, textarea, [role="combobox"], [role="listbox"], [role="checkbox"], [role="radio"]`
