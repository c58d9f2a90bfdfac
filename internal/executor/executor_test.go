package executor

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/antonkk/formpilot/api/schemas"
	"github.com/antonkk/formpilot/internal/config"
	"github.com/antonkk/formpilot/internal/mocks"
)

func newExecutor(t *testing.T, page *mocks.FakePage) *Executor {
	t.Helper()
	return New(page, config.NewDefaultConfig().Executor, zaptest.NewLogger(t))
}

func TestFillText(t *testing.T) {
	page := mocks.NewFakePage(&mocks.Control{ID: "fp-1", Tag: "input", InputType: "text"})
	e := newExecutor(t, page)

	field := schemas.Field{Selector: "fp-1", Label: "First Name", Type: schemas.FieldText}
	result, err := e.Fill(context.Background(), field, schemas.Answer{Value: "Anton"}, nil)
	require.NoError(t, err)
	assert.True(t, result.Committed)
	assert.Equal(t, "Anton", result.ReadBack)
	assert.Equal(t, "Anton", page.Control("fp-1").Value)
}

func TestFillCheckboxIdempotent(t *testing.T) {
	page := mocks.NewFakePage(&mocks.Control{ID: "fp-1", Tag: "input", InputType: "checkbox"})
	e := newExecutor(t, page)
	field := schemas.Field{Selector: "fp-1", Label: "I agree", Type: schemas.FieldCheckbox}

	result, err := e.Fill(context.Background(), field, schemas.Answer{Value: "Yes"}, nil)
	require.NoError(t, err)
	assert.True(t, result.Committed)
	assert.True(t, page.Control("fp-1").Checked)

	// Filling again must not toggle it back off.
	result, err = e.Fill(context.Background(), field, schemas.Answer{Value: "Yes"}, nil)
	require.NoError(t, err)
	assert.True(t, result.Committed)
	assert.True(t, page.Control("fp-1").Checked)
}

func TestFillSelect(t *testing.T) {
	page := mocks.NewFakePage(&mocks.Control{
		ID: "fp-1", Tag: "select",
		Options: []string{"Yes", "No"},
	})
	e := newExecutor(t, page)

	field := schemas.Field{
		Selector: "fp-1",
		Label:    "Are you authorized to work?",
		Type:     schemas.FieldSelect,
		Options:  []string{"Yes", "No"},
	}
	result, err := e.Fill(context.Background(), field, schemas.Answer{Value: "yes"}, nil)
	require.NoError(t, err)
	assert.True(t, result.Committed)
	assert.Equal(t, "Yes", result.ReadBack)
}

func TestFillSelectNoMatch(t *testing.T) {
	page := mocks.NewFakePage(&mocks.Control{
		ID: "fp-1", Tag: "select",
		Options: []string{"2023", "2024", "2025"},
	})
	e := newExecutor(t, page)

	field := schemas.Field{
		Selector: "fp-1",
		Label:    "Graduation Year",
		Type:     schemas.FieldSelect,
		Options:  []string{"2023", "2024", "2025"},
	}
	_, err := e.Fill(context.Background(), field, schemas.Answer{Value: "2019"}, nil)
	assert.True(t, errors.Is(err, schemas.ErrOptionNoMatch))

	// A remembered fallback turns the same failure into a fill.
	hint := &schemas.StrategyHint{FallbackOption: "2023"}
	result, err := e.Fill(context.Background(), field, schemas.Answer{Value: "2019"}, hint)
	require.NoError(t, err)
	assert.Equal(t, "2023", result.ReadBack)
}

func TestFillMultiSelect(t *testing.T) {
	page := mocks.NewFakePage(&mocks.Control{
		ID: "fp-1", Tag: "select", Multiple: true,
		Options: []string{"Go", "Python", "Rust", "Java"},
	})
	e := newExecutor(t, page)

	field := schemas.Field{
		Selector: "fp-1",
		Label:    "Programming Languages",
		Type:     schemas.FieldSelect,
		Options:  []string{"Go", "Python", "Rust", "Java"},
		Multiple: true,
	}
	answer := schemas.Answer{Value: "Go; Python", Values: []string{"Go", "Python"}}
	result, err := e.Fill(context.Background(), field, answer, nil)
	require.NoError(t, err)
	assert.True(t, result.Committed)
	assert.Equal(t, "Go, Python", result.ReadBack)
	assert.Equal(t, []string{"Go", "Python"}, page.Control("fp-1").Selected)
}

func TestFillMultiSelectUnmatchedValueFails(t *testing.T) {
	page := mocks.NewFakePage(&mocks.Control{
		ID: "fp-1", Tag: "select", Multiple: true,
		Options: []string{"Go", "Python"},
	})
	e := newExecutor(t, page)

	field := schemas.Field{
		Selector: "fp-1",
		Label:    "Programming Languages",
		Type:     schemas.FieldSelect,
		Options:  []string{"Go", "Python"},
		Multiple: true,
	}
	answer := schemas.Answer{Value: "Go; COBOL", Values: []string{"Go", "COBOL"}}
	_, err := e.Fill(context.Background(), field, answer, nil)
	assert.True(t, errors.Is(err, schemas.ErrOptionNoMatch))
	assert.Contains(t, err.Error(), "COBOL", "the unmatched value must be named")
}

func TestFillAutocomplete(t *testing.T) {
	page := mocks.NewFakePage(&mocks.Control{
		ID: "fp-1", Tag: "input", InputType: "text", Role: "combobox",
		AsyncOptions: []string{"Berlin, Germany", "Bergamo, Italy"},
		OptionPolls:  2,
		DropTyped:    true,
	})
	e := newExecutor(t, page)

	field := schemas.Field{Selector: "fp-1", Label: "Current Location", Type: schemas.FieldAutocomplete}
	result, err := e.Fill(context.Background(), field, schemas.Answer{Value: "Berlin, Germany"}, nil)
	require.NoError(t, err)
	assert.True(t, result.Committed)
	assert.Equal(t, "Berlin, Germany", result.ReadBack)

	// The protocol closes stray dropdowns first and confirms with a
	// non-submitting key last.
	require.GreaterOrEqual(t, len(page.PressedKeys), 2)
	assert.Equal(t, "Escape", page.PressedKeys[0])
	assert.Equal(t, "Tab", page.PressedKeys[len(page.PressedKeys)-1])
}

func TestFillAutocompleteTimesOutWithoutOptions(t *testing.T) {
	page := mocks.NewFakePage(&mocks.Control{
		ID: "fp-1", Tag: "input", InputType: "text", Role: "combobox",
		AsyncOptions: []string{"never shown"},
		OptionPolls:  1 << 30,
	})
	e := newExecutor(t, page)

	field := schemas.Field{Selector: "fp-1", Label: "School", Type: schemas.FieldAutocomplete}
	_, err := e.Fill(context.Background(), field, schemas.Answer{Value: "MIT"}, nil)
	assert.True(t, errors.Is(err, schemas.ErrFillTimeout))
}

func TestFillAutocompletePersistentOptionErrorIsNotTimeout(t *testing.T) {
	// A predicate that fails on every poll is an automation fault, not a slow
	// page; the real error must survive instead of ErrFillTimeout.
	evalErr := errors.New("evaluation context destroyed")
	page := mocks.NewFakePage(&mocks.Control{
		ID: "fp-1", Tag: "input", InputType: "text", Role: "combobox",
		OptionsErr: evalErr,
	})
	e := newExecutor(t, page)

	field := schemas.Field{Selector: "fp-1", Label: "School", Type: schemas.FieldAutocomplete}
	_, err := e.Fill(context.Background(), field, schemas.Answer{Value: "MIT"}, nil)
	assert.True(t, errors.Is(err, evalErr))
	assert.False(t, errors.Is(err, schemas.ErrFillTimeout))
}

func TestFillAutocompleteAmbiguousListboxIsFatal(t *testing.T) {
	page := mocks.NewFakePage(&mocks.Control{
		ID: "fp-1", Tag: "input", InputType: "text", Role: "combobox",
		Ambiguous: true,
	})
	e := newExecutor(t, page)

	field := schemas.Field{Selector: "fp-1", Label: "Country", Type: schemas.FieldAutocomplete}
	_, err := e.Fill(context.Background(), field, schemas.Answer{Value: "Germany"}, nil)
	assert.True(t, errors.Is(err, schemas.ErrTargetAmbiguous))
}

func TestFillRadioGroup(t *testing.T) {
	page := mocks.NewFakePage(&mocks.Control{
		ID: "fp-1", Tag: "input", InputType: "radio", Name: "veteran",
		Options: []string{"I am a protected veteran", "I am not a protected veteran"},
	})
	e := newExecutor(t, page)

	field := schemas.Field{
		Selector: "fp-1",
		Label:    "Veteran Status",
		Type:     schemas.FieldRadio,
		Options:  []string{"I am a protected veteran", "I am not a protected veteran"},
	}
	result, err := e.Fill(context.Background(), field, schemas.Answer{Value: "not a protected veteran"}, nil)
	require.NoError(t, err)
	assert.Equal(t, "I am not a protected veteran", result.ReadBack)
	assert.True(t, page.Control("fp-1").Checked)
}

func TestFillFile(t *testing.T) {
	page := mocks.NewFakePage(&mocks.Control{ID: "fp-1", Tag: "input", InputType: "file"})
	e := newExecutor(t, page)

	field := schemas.Field{Selector: "fp-1", Label: "Resume/CV", Type: schemas.FieldFile}
	result, err := e.Fill(context.Background(), field, schemas.Answer{FilePath: "/data/resume.pdf"}, nil)
	require.NoError(t, err)
	assert.True(t, result.Committed)
	assert.Equal(t, []string{"/data/resume.pdf"}, page.Control("fp-1").Files)
}

func TestFillUnknownType(t *testing.T) {
	page := mocks.NewFakePage()
	e := newExecutor(t, page)

	_, err := e.Fill(context.Background(), schemas.Field{Type: schemas.FieldUnknown}, schemas.Answer{Value: "x"}, nil)
	assert.True(t, errors.Is(err, schemas.ErrTypeUnrecognized))
}

func TestApplyRemediationSteps(t *testing.T) {
	page := mocks.NewFakePage(&mocks.Control{
		ID: "fp-1", Tag: "input", InputType: "text",
		Value: "wrong",
	})
	e := newExecutor(t, page)
	field := schemas.Field{Selector: "fp-1", Label: "Phone", Type: schemas.FieldText}

	require.NoError(t, e.Apply(context.Background(), field, schemas.RemediationStep{Op: schemas.OpRetype, Arg: "+49 30 1234"}))
	assert.Equal(t, "+49 30 1234", page.Control("fp-1").Value)

	require.NoError(t, e.Apply(context.Background(), field, schemas.RemediationStep{Op: schemas.OpPressKey, Arg: "Tab"}))
	assert.Contains(t, page.PressedKeys, "Tab")

	err := e.Apply(context.Background(), field, schemas.RemediationStep{Op: schemas.OpPressKey, Arg: "Enter"})
	assert.Error(t, err, "Enter must be refused")

	err = e.Apply(context.Background(), field, schemas.RemediationStep{Op: "navigate"})
	assert.Error(t, err)
}

func TestTwoAutocompletesDoNotContaminate(t *testing.T) {
	// Regression: options owned by the first widget must never be offered to
	// the second. The fake returns only owned options, so a cross-fill shows
	// up as the second field committing the first field's value.
	page := mocks.NewFakePage(
		&mocks.Control{
			ID: "fp-1", Tag: "input", InputType: "text", Role: "combobox",
			AsyncOptions: []string{"Berlin, Germany"},
			DropTyped:    true,
		},
		&mocks.Control{
			ID: "fp-2", Tag: "input", InputType: "text", Role: "combobox",
			AsyncOptions: []string{"Technical University of Berlin"},
			DropTyped:    true,
		},
	)
	e := newExecutor(t, page)

	loc := schemas.Field{Selector: "fp-1", Label: "Current Location", Type: schemas.FieldAutocomplete}
	school := schemas.Field{Selector: "fp-2", Label: "School", Type: schemas.FieldAutocomplete}

	r1, err := e.Fill(context.Background(), loc, schemas.Answer{Value: "Berlin, Germany"}, nil)
	require.NoError(t, err)
	r2, err := e.Fill(context.Background(), school, schemas.Answer{Value: "Technical University of Berlin"}, nil)
	require.NoError(t, err)

	assert.Equal(t, "Berlin, Germany", r1.ReadBack)
	assert.Equal(t, "Technical University of Berlin", r2.ReadBack)
	assert.Equal(t, "Berlin, Germany", page.Control("fp-1").Value)
	assert.Equal(t, "Technical University of Berlin", page.Control("fp-2").Value)
}
