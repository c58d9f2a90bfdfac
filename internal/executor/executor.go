package executor

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/antonkk/formpilot/api/schemas"
	"github.com/antonkk/formpilot/internal/browser"
	"github.com/antonkk/formpilot/internal/config"
)

// Executor commits resolved answers into live controls. One handler per
// field type; every handler treats the control as adversarial and reads the
// committed state back instead of trusting its own actions.
type Executor struct {
	auto     browser.Automator
	cfg      config.ExecutorConfig
	logger   *zap.Logger
	handlers map[schemas.FieldType]fillFunc
}

type fillFunc func(ctx context.Context, ref browser.ElementRef, field schemas.Field, answer schemas.Answer, hint *schemas.StrategyHint) (schemas.FillResult, error)

// New builds an Executor and registers the per-type handlers.
func New(auto browser.Automator, cfg config.ExecutorConfig, logger *zap.Logger) *Executor {
	e := &Executor{
		auto:   auto,
		cfg:    cfg,
		logger: logger.Named("executor"),
	}
	e.registerHandlers()
	return e
}

func (e *Executor) registerHandlers() {
	e.handlers = map[schemas.FieldType]fillFunc{
		schemas.FieldText:         e.fillText,
		schemas.FieldSelect:       e.fillSelect,
		schemas.FieldRadio:        e.fillSelect,
		schemas.FieldAutocomplete: e.fillAutocomplete,
		schemas.FieldCheckbox:     e.fillCheckbox,
		schemas.FieldFile:         e.fillFile,
	}
}

// Fill commits answer into field. hint may be nil.
func (e *Executor) Fill(ctx context.Context, field schemas.Field, answer schemas.Answer, hint *schemas.StrategyHint) (schemas.FillResult, error) {
	handler, ok := e.handlers[field.Type]
	if !ok {
		return schemas.FillResult{}, fmt.Errorf("%w: %q", schemas.ErrTypeUnrecognized, field.Type)
	}
	ref := refOf(field)
	result, err := handler(ctx, ref, field, answer, hint)
	if err != nil {
		e.logger.Debug("Fill failed.",
			zap.String("label", field.Label),
			zap.String("type", string(field.Type)),
			zap.Error(err))
		return result, err
	}
	e.logger.Debug("Fill committed.",
		zap.String("label", field.Label),
		zap.String("read_back", result.ReadBack))
	return result, nil
}

func refOf(field schemas.Field) browser.ElementRef {
	return browser.ElementRef{
		Selector: field.Selector,
		X:        field.Position.X,
		Y:        field.Position.Y,
	}
}

func (e *Executor) fillText(ctx context.Context, ref browser.ElementRef, field schemas.Field, answer schemas.Answer, hint *schemas.StrategyHint) (schemas.FillResult, error) {
	if err := e.auto.SetValue(ctx, ref, answer.Value); err != nil {
		return schemas.FillResult{}, fmt.Errorf("failed to set value: %w", err)
	}
	return e.readBack(ctx, ref)
}

// fillCheckbox toggles only when the committed state differs from the
// desired state, so re-fills are idempotent.
func (e *Executor) fillCheckbox(ctx context.Context, ref browser.ElementRef, field schemas.Field, answer schemas.Answer, hint *schemas.StrategyHint) (schemas.FillResult, error) {
	desired := isAffirmative(answer.Value)
	current, err := e.auto.Checked(ctx, ref)
	if err != nil {
		return schemas.FillResult{}, fmt.Errorf("failed to read checked state: %w", err)
	}
	if current != desired {
		if err := e.auto.Click(ctx, ref); err != nil {
			return schemas.FillResult{}, fmt.Errorf("failed to toggle: %w", err)
		}
	}
	committed, err := e.auto.Checked(ctx, ref)
	if err != nil {
		return schemas.FillResult{}, err
	}
	return schemas.FillResult{Committed: committed == desired, ReadBack: strconv.FormatBool(committed)}, nil
}

// fillSelect covers native selects and radio groups: both expose their full
// vocabulary up front, so matching happens before touching the control.
func (e *Executor) fillSelect(ctx context.Context, ref browser.ElementRef, field schemas.Field, answer schemas.Answer, hint *schemas.StrategyHint) (schemas.FillResult, error) {
	options := field.Options
	if len(options) == 0 {
		live, err := e.auto.ListOptions(ctx, ref)
		if err != nil {
			return schemas.FillResult{}, err
		}
		options = live
	}
	// Multi-selects take every resolved value; everything else takes one.
	targets := answer.Values
	if len(targets) == 0 {
		targets = []string{answer.Value}
	}
	for _, target := range targets {
		best, ok := BestOption(target, options, hint)
		if !ok {
			return schemas.FillResult{}, fmt.Errorf("%w: %q among %d options", schemas.ErrOptionNoMatch, target, len(options))
		}
		if err := e.auto.ClickOption(ctx, ref, best); err != nil {
			return schemas.FillResult{}, fmt.Errorf("failed to choose %q: %w", best, err)
		}
	}
	return e.readBack(ctx, ref)
}

// fillAutocomplete drives the type-wait-pick-confirm protocol for combobox
// widgets. Typed text alone is never treated as committed; the fill counts
// only when an owned option was activated and confirmed.
func (e *Executor) fillAutocomplete(ctx context.Context, ref browser.ElementRef, field schemas.Field, answer schemas.Answer, hint *schemas.StrategyHint) (schemas.FillResult, error) {
	// Close any open dropdown from a previous interaction so stale options
	// cannot bleed into this field.
	if err := e.auto.PressKey(ctx, "Escape"); err != nil {
		return schemas.FillResult{}, err
	}
	if err := e.auto.ScrollIntoView(ctx, ref); err != nil {
		return schemas.FillResult{}, err
	}
	if err := e.auto.Click(ctx, ref); err != nil {
		return schemas.FillResult{}, fmt.Errorf("failed to focus widget: %w", err)
	}
	if err := e.auto.ClearValue(ctx, ref); err != nil {
		return schemas.FillResult{}, err
	}
	if err := e.auto.Type(ctx, ref, answer.Value); err != nil {
		return schemas.FillResult{}, fmt.Errorf("failed to type query: %w", err)
	}

	wait := e.cfg.OptionWait
	if (hint != nil && hint.AsyncWait) || isLookupBacked(field.Label) {
		wait = e.cfg.LookupWait
	}

	var options []string
	populated, err := e.auto.WaitFor(ctx, func(ctx context.Context) (bool, error) {
		opts, err := e.auto.ListOptions(ctx, ref)
		if err != nil {
			return false, err
		}
		options = opts
		return len(opts) > 0, nil
	}, wait, e.cfg.PollInterval)
	if err != nil {
		return schemas.FillResult{}, fmt.Errorf("failed while awaiting options: %w", err)
	}
	if !populated {
		return schemas.FillResult{}, fmt.Errorf("%w: no options after %s for %q", schemas.ErrFillTimeout, wait, answer.Value)
	}

	best, ok := BestOption(answer.Value, options, hint)
	if !ok {
		return schemas.FillResult{}, fmt.Errorf("%w: %q among %d options", schemas.ErrOptionNoMatch, answer.Value, len(options))
	}
	if err := e.auto.ClickOption(ctx, ref, best); err != nil {
		return schemas.FillResult{}, fmt.Errorf("failed to choose %q: %w", best, err)
	}
	// Confirm with a key that can never submit the form.
	if err := e.auto.PressKey(ctx, e.cfg.ConfirmKey); err != nil {
		return schemas.FillResult{}, err
	}
	return e.readBack(ctx, ref)
}

func (e *Executor) fillFile(ctx context.Context, ref browser.ElementRef, field schemas.Field, answer schemas.Answer, hint *schemas.StrategyHint) (schemas.FillResult, error) {
	if answer.FilePath == "" {
		return schemas.FillResult{}, fmt.Errorf("no file path resolved for %q", field.Label)
	}
	if err := e.auto.SetFiles(ctx, ref, []string{answer.FilePath}); err != nil {
		return schemas.FillResult{}, fmt.Errorf("failed to attach file: %w", err)
	}
	return e.readBack(ctx, ref)
}

func (e *Executor) readBack(ctx context.Context, ref browser.ElementRef) (schemas.FillResult, error) {
	value, err := e.auto.ReadValue(ctx, ref)
	if err != nil {
		return schemas.FillResult{}, fmt.Errorf("failed to read back value: %w", err)
	}
	return schemas.FillResult{Committed: value != "", ReadBack: value}, nil
}

// Apply executes one remediation primitive against a field. The repair loop
// composes these; nothing here submits or navigates.
func (e *Executor) Apply(ctx context.Context, field schemas.Field, step schemas.RemediationStep) error {
	ref := refOf(field)
	switch step.Op {
	case schemas.OpRetype:
		if err := e.auto.ClearValue(ctx, ref); err != nil {
			return err
		}
		return e.auto.Type(ctx, ref, step.Arg)
	case schemas.OpChooseOption:
		return e.auto.ClickOption(ctx, ref, step.Arg)
	case schemas.OpToggle:
		return e.auto.Click(ctx, ref)
	case schemas.OpSetValue:
		return e.auto.SetValue(ctx, ref, step.Arg)
	case schemas.OpPressKey:
		if strings.EqualFold(step.Arg, "Enter") {
			return fmt.Errorf("refusing to press a submission-triggering key")
		}
		return e.auto.PressKey(ctx, step.Arg)
	case schemas.OpWait:
		ms, err := strconv.Atoi(step.Arg)
		if err != nil || ms < 0 {
			return fmt.Errorf("invalid wait duration %q", step.Arg)
		}
		if ms > 5000 {
			ms = 5000
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(time.Duration(ms) * time.Millisecond):
			return nil
		}
	default:
		return fmt.Errorf("unknown remediation op %q", step.Op)
	}
}

// isAffirmative maps the textual answers the resolver produces onto checkbox
// state.
func isAffirmative(value string) bool {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "yes", "true", "y", "1", "on", "checked", "confirmed":
		return true
	}
	return false
}

// isLookupBacked flags labels whose widgets typically query a remote source,
// deserving the longer wait budget.
func isLookupBacked(label string) bool {
	ll := strings.ToLower(label)
	for _, kw := range []string{"location", "city", "address", "school", "university", "company"} {
		if strings.Contains(ll, kw) {
			return true
		}
	}
	return false
}
