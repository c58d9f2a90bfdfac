package scanner

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"go.uber.org/zap"

	"github.com/antonkk/formpilot/api/schemas"
	"github.com/antonkk/formpilot/internal/browser"
)

// Scanner discovers the fillable fields of the current page. Each Scan is a
// full fresh pass: selectors from earlier passes are assumed stale and are
// never reused.
type Scanner struct {
	auto   browser.Automator
	logger *zap.Logger
}

// New builds a Scanner over an automator.
func New(auto browser.Automator, logger *zap.Logger) *Scanner {
	return &Scanner{
		auto:   auto,
		logger: logger.Named("scanner"),
	}
}

// skippedInputTypes are control kinds that are never fillable fields.
var skippedInputTypes = map[string]bool{
	"hidden": true,
	"submit": true,
	"button": true,
	"reset":  true,
	"image":  true,
}

// Scan enumerates the page's interactive controls and assembles the field
// inventory in visual order. Controls whose label cannot be determined are
// still returned (typed but unlabeled) so the caller can account for them;
// they carry an empty Label.
func (s *Scanner) Scan(ctx context.Context) ([]schemas.Field, error) {
	candidates, err := s.auto.Enumerate(ctx, browser.InteractiveScope)
	if err != nil {
		return nil, fmt.Errorf("failed to enumerate controls: %w", err)
	}

	var fields []schemas.Field
	radioGroups := make(map[string][]browser.Candidate)
	var radioOrder []string

	for _, c := range candidates {
		if c.Ref.Selector == "" || !c.Visible {
			continue
		}
		if skippedInputTypes[strings.ToLower(c.InputType)] {
			continue
		}
		// Radio inputs are aggregated: one logical field per name group.
		if s.isRadio(c) {
			key := c.Name
			if key == "" {
				key = c.Ref.Selector
			}
			if _, seen := radioGroups[key]; !seen {
				radioOrder = append(radioOrder, key)
			}
			radioGroups[key] = append(radioGroups[key], c)
			continue
		}

		field, err := s.buildField(ctx, c)
		if err != nil {
			s.logger.Debug("Skipping control.", zap.String("selector", c.Ref.Selector), zap.Error(err))
			continue
		}
		fields = append(fields, field)
	}

	for _, key := range radioOrder {
		field, err := s.buildRadioField(ctx, radioGroups[key])
		if err != nil {
			s.logger.Debug("Skipping radio group.", zap.String("name", key), zap.Error(err))
			continue
		}
		fields = append(fields, field)
	}

	// Visual reading order: top to bottom, ties left to right.
	sort.SliceStable(fields, func(i, j int) bool {
		if fields[i].Position.Y != fields[j].Position.Y {
			return fields[i].Position.Y < fields[j].Position.Y
		}
		return fields[i].Position.X < fields[j].Position.X
	})

	s.logger.Info("Scan pass complete.",
		zap.Int("candidates", len(candidates)),
		zap.Int("fields", len(fields)))
	return fields, nil
}

func (s *Scanner) isRadio(c browser.Candidate) bool {
	return strings.EqualFold(c.InputType, "radio") || strings.EqualFold(c.Role, "radio")
}

func (s *Scanner) buildField(ctx context.Context, c browser.Candidate) (schemas.Field, error) {
	ftype := inferType(c)
	label, err := s.resolveLabel(ctx, c)
	if err != nil {
		return schemas.Field{}, err
	}

	field := schemas.Field{
		Selector: c.Ref.Selector,
		Label:    label,
		Type:     ftype,
		Position: schemas.Position{X: c.Ref.X, Y: c.Ref.Y},
		State:    schemas.StateUnresolved,
	}

	if req, err := s.isRequired(ctx, c.Ref); err == nil {
		field.Required = req
	}

	// Native selects carry their vocabulary up front. Comboboxes populate on
	// interaction, so their options stay empty until fill time.
	if ftype == schemas.FieldSelect {
		opts, err := s.auto.ListOptions(ctx, c.Ref)
		if err != nil {
			return schemas.Field{}, fmt.Errorf("failed to list select options: %w", err)
		}
		field.Options = opts
		if _, ok, err := s.auto.ReadAttribute(ctx, c.Ref, "multiple"); err == nil && ok {
			field.Multiple = true
		}
	}
	return field, nil
}

func (s *Scanner) buildRadioField(ctx context.Context, group []browser.Candidate) (schemas.Field, error) {
	if len(group) == 0 {
		return schemas.Field{}, fmt.Errorf("empty radio group")
	}
	first := group[0]

	// Each radio's own label is an option; the question text sits above the
	// group.
	var options []string
	for _, c := range group {
		if text, err := s.auto.AssociatedLabel(ctx, c.Ref); err == nil {
			if cleaned := cleanLabel(text); cleaned != "" {
				options = append(options, cleaned)
			}
		}
	}

	label := ""
	if text, err := s.auto.PrecedingText(ctx, first.Ref); err == nil {
		label = cleanLabel(text)
	}

	field := schemas.Field{
		Selector: first.Ref.Selector,
		Label:    label,
		Type:     schemas.FieldRadio,
		Options:  options,
		Position: schemas.Position{X: first.Ref.X, Y: first.Ref.Y},
		State:    schemas.StateUnresolved,
	}
	if req, err := s.isRequired(ctx, first.Ref); err == nil {
		field.Required = req
	}
	return field, nil
}

// resolveLabel walks the label sources strongest first: explicit association,
// aria-label, placeholder, then nearest preceding text.
func (s *Scanner) resolveLabel(ctx context.Context, c browser.Candidate) (string, error) {
	if text, err := s.auto.AssociatedLabel(ctx, c.Ref); err != nil {
		return "", err
	} else if cleaned := cleanLabel(text); cleaned != "" {
		return cleaned, nil
	}

	for _, attr := range []string{"aria-label", "placeholder"} {
		val, ok, err := s.auto.ReadAttribute(ctx, c.Ref, attr)
		if err != nil {
			return "", err
		}
		if ok {
			if cleaned := cleanLabel(val); cleaned != "" {
				return cleaned, nil
			}
		}
	}

	text, err := s.auto.PrecedingText(ctx, c.Ref)
	if err != nil {
		return "", err
	}
	return cleanLabel(text), nil
}

func (s *Scanner) isRequired(ctx context.Context, ref browser.ElementRef) (bool, error) {
	if _, ok, err := s.auto.ReadAttribute(ctx, ref, "required"); err != nil {
		return false, err
	} else if ok {
		return true, nil
	}
	val, ok, err := s.auto.ReadAttribute(ctx, ref, "aria-required")
	if err != nil {
		return false, err
	}
	return ok && strings.EqualFold(val, "true"), nil
}

// inferType classifies a candidate from its tag, input type and ARIA role.
func inferType(c browser.Candidate) schemas.FieldType {
	tag := strings.ToLower(c.Ref.Tag)
	inputType := strings.ToLower(c.InputType)
	role := strings.ToLower(c.Role)

	switch {
	case role == "combobox":
		return schemas.FieldAutocomplete
	case tag == "select":
		return schemas.FieldSelect
	case tag == "textarea":
		return schemas.FieldText
	case tag == "input":
		switch inputType {
		case "checkbox":
			return schemas.FieldCheckbox
		case "radio":
			return schemas.FieldRadio
		case "file":
			return schemas.FieldFile
		case "", "text", "email", "tel", "url", "number", "search", "date", "password":
			return schemas.FieldText
		default:
			return schemas.FieldUnknown
		}
	case role == "checkbox":
		return schemas.FieldCheckbox
	case role == "listbox":
		return schemas.FieldAutocomplete
	default:
		return schemas.FieldUnknown
	}
}
