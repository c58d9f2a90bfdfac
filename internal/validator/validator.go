// Package validator confirms that a fill actually committed. The browser's
// acknowledgement of an action proves nothing on widget-heavy portals; only
// the state read back from the control counts.
package validator

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/antonkk/formpilot/api/schemas"
	"github.com/antonkk/formpilot/internal/browser"
)

type Validator struct {
	auto   browser.Automator
	logger *zap.Logger
}

func New(auto browser.Automator, logger *zap.Logger) *Validator {
	return &Validator{
		auto:   auto,
		logger: logger.Named("validator"),
	}
}

// Validate checks the committed state of field against the intended answer.
// A non-nil return always wraps ErrValidationFailed (or a read error); the
// repair loop keys off that.
func (v *Validator) Validate(ctx context.Context, field schemas.Field, answer schemas.Answer, fill schemas.FillResult) error {
	ref := browser.ElementRef{Selector: field.Selector, X: field.Position.X, Y: field.Position.Y}

	// The portal's own error signal outranks any value comparison: a value
	// can echo back correctly and still be rejected.
	msg, err := v.auto.ValidityMessage(ctx, ref)
	if err != nil {
		return fmt.Errorf("failed to read validity: %w", err)
	}
	if msg != "" {
		return fmt.Errorf("%w: portal reports %q", schemas.ErrValidationFailed, msg)
	}

	switch field.Type {
	case schemas.FieldCheckbox:
		checked, err := v.auto.Checked(ctx, ref)
		if err != nil {
			return fmt.Errorf("failed to read checked state: %w", err)
		}
		if checked != wantsChecked(answer.Value) {
			return fmt.Errorf("%w: checkbox state is %v", schemas.ErrValidationFailed, checked)
		}
		return nil

	case schemas.FieldText:
		value, err := v.auto.ReadValue(ctx, ref)
		if err != nil {
			return fmt.Errorf("failed to read back value: %w", err)
		}
		// Text must echo exactly; a truncated or reformatted echo means the
		// widget intercepted the input.
		if value != answer.Value {
			return fmt.Errorf("%w: committed %q, wanted %q", schemas.ErrValidationFailed, value, answer.Value)
		}
		return nil

	case schemas.FieldSelect, schemas.FieldRadio, schemas.FieldAutocomplete:
		value, err := v.auto.ReadValue(ctx, ref)
		if err != nil {
			return fmt.Errorf("failed to read back selection: %w", err)
		}
		if value == "" {
			return fmt.Errorf("%w: no selection committed", schemas.ErrValidationFailed)
		}
		// Choice controls validate by selection identity, not by echo of the
		// resolver's value: the matched option text is the truth.
		if fill.ReadBack != "" && value != fill.ReadBack {
			return fmt.Errorf("%w: selection changed from %q to %q", schemas.ErrValidationFailed, fill.ReadBack, value)
		}
		return nil

	case schemas.FieldFile:
		value, err := v.auto.ReadValue(ctx, ref)
		if err != nil {
			return fmt.Errorf("failed to read back file: %w", err)
		}
		if value == "" {
			return fmt.Errorf("%w: no file attached", schemas.ErrValidationFailed)
		}
		return nil

	default:
		return fmt.Errorf("%w: %q", schemas.ErrTypeUnrecognized, field.Type)
	}
}

func wantsChecked(value string) bool {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "yes", "true", "y", "1", "on", "checked", "confirmed":
		return true
	}
	return false
}
