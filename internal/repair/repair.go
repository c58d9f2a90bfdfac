// Package repair turns a failed fill into a bounded ask-try-verify loop.
// Failures stay local: an exhausted loop marks the field failed and the
// session moves on.
package repair

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"github.com/antonkk/formpilot/api/schemas"
	"github.com/antonkk/formpilot/internal/browser"
	"github.com/antonkk/formpilot/internal/config"
	"github.com/antonkk/formpilot/internal/executor"
	"github.com/antonkk/formpilot/internal/llmclient"
	"github.com/antonkk/formpilot/internal/memory"
	"github.com/antonkk/formpilot/internal/resolver"
	"github.com/antonkk/formpilot/internal/validator"
)

// Reresolver re-runs answer resolution for a field. Satisfied by
// *resolver.Cascade; the loop consults it before spending a remediation
// budget on an answer that came from a weak source.
type Reresolver interface {
	Resolve(ctx context.Context, field schemas.Field) (*resolver.Resolution, error)
}

type Loop struct {
	cfg      config.RepairConfig
	auto     browser.Automator
	exec     *executor.Executor
	valid    *validator.Validator
	reasoner llmclient.Reasoner
	resolve  Reresolver
	store    *memory.Store
	logger   *zap.Logger
}

func New(cfg config.RepairConfig, auto browser.Automator, exec *executor.Executor, valid *validator.Validator, reasoner llmclient.Reasoner, resolve Reresolver, store *memory.Store, logger *zap.Logger) *Loop {
	return &Loop{
		cfg:      cfg,
		auto:     auto,
		exec:     exec,
		valid:    valid,
		reasoner: reasoner,
		resolve:  resolve,
		store:    store,
		logger:   logger.Named("repair"),
	}
}

// Repair attempts to recover from cause. It never returns an error for an
// unrepaired field; Resolved reports the outcome and the caller decides what
// a false means for the session.
func (l *Loop) Repair(ctx context.Context, field schemas.Field, answer schemas.Answer, cause error) schemas.RepairResult {
	result := schemas.RepairResult{}
	if !schemas.Repairable(cause) {
		return result
	}
	if l.reresolve(ctx, field, answer, &result) {
		return result
	}
	if l.reasoner == nil || l.cfg.MaxAttempts == 0 {
		return result
	}

	for attempt := 1; attempt <= l.cfg.MaxAttempts; attempt++ {
		result.Attempts = attempt
		l.logger.Info("Repair attempt.",
			zap.String("label", field.Label),
			zap.Int("attempt", attempt),
			zap.Error(cause))

		rem, err := l.reasoner.SuggestRemediation(ctx, l.snapshot(ctx, field, answer, cause))
		if err != nil {
			l.logger.Warn("Remediation service unavailable; abandoning repair.",
				zap.String("label", field.Label), zap.Error(err))
			return result
		}
		if rem == nil || len(rem.Steps) == 0 {
			l.logger.Info("No remediation proposed.", zap.String("label", field.Label))
			return result
		}

		if err := l.applySteps(ctx, field, rem.Steps); err != nil {
			cause = err
			continue
		}

		fill, err := l.readBack(ctx, field)
		if err != nil {
			cause = err
			continue
		}
		if err := l.valid.Validate(ctx, field, answer, fill); err != nil {
			cause = err
			continue
		}

		result.Resolved = true
		result.Hint = l.deriveHint(rem, answer)
		l.remember(ctx, field, answer, result.Hint)
		l.logger.Info("Repair succeeded.",
			zap.String("label", field.Label),
			zap.Int("attempts", attempt))
		return result
	}

	l.logger.Warn("Repair exhausted.",
		zap.String("label", field.Label),
		zap.Int("attempts", result.Attempts),
		zap.Error(cause))
	return result
}

// reresolve retries the fill when the rejected answer came from a weak
// source (pattern defaults or the reasoning service) and the cascade now
// holds a strictly stronger, different answer for the label. Reports true
// only when the retry committed and validated; anything else falls through
// to the remediation loop.
func (l *Loop) reresolve(ctx context.Context, field schemas.Field, answer schemas.Answer, result *schemas.RepairResult) bool {
	if l.resolve == nil || !answer.Source.TrustsLessThan(schemas.SourceProfile) {
		return false
	}
	res, err := l.resolve.Resolve(ctx, field)
	if err != nil || res == nil {
		return false
	}
	if !answer.Source.TrustsLessThan(res.Answer.Source) || res.Answer.Value == answer.Value {
		return false
	}
	l.logger.Info("Re-resolving rejected answer from a stronger source.",
		zap.String("label", field.Label),
		zap.String("from", string(answer.Source)),
		zap.String("to", string(res.Answer.Source)))

	fill, err := l.exec.Fill(ctx, field, res.Answer, res.Hint)
	if err != nil {
		return false
	}
	if err := l.valid.Validate(ctx, field, res.Answer, fill); err != nil {
		return false
	}
	result.Resolved = true
	result.Hint = res.Hint
	l.logger.Info("Repair succeeded via re-resolution.", zap.String("label", field.Label))
	return true
}

// snapshot gathers what the service needs to reason about the failure: the
// field, the rejected value, the portal's complaint, the live options and a
// screenshot.
func (l *Loop) snapshot(ctx context.Context, field schemas.Field, answer schemas.Answer, cause error) llmclient.FailureContext {
	ref := browser.ElementRef{Selector: field.Selector, X: field.Position.X, Y: field.Position.Y}

	fc := llmclient.FailureContext{
		Label:          field.Label,
		FieldType:      field.Type,
		Options:        field.Options,
		AttemptedValue: answer.Value,
		ErrorText:      cause.Error(),
	}
	if opts, err := l.auto.ListOptions(ctx, ref); err == nil && len(opts) > 0 {
		fc.Options = opts
	}
	if msg, err := l.auto.ValidityMessage(ctx, ref); err == nil {
		fc.ValidationMessage = msg
	}
	if png, err := l.auto.Screenshot(ctx); err == nil {
		fc.Screenshot = png
	}
	return fc
}

func (l *Loop) applySteps(ctx context.Context, field schemas.Field, steps []schemas.RemediationStep) error {
	for _, step := range steps {
		if err := l.exec.Apply(ctx, field, step); err != nil {
			return err
		}
	}
	return nil
}

func (l *Loop) readBack(ctx context.Context, field schemas.Field) (schemas.FillResult, error) {
	ref := browser.ElementRef{Selector: field.Selector, X: field.Position.X, Y: field.Position.Y}
	if field.Type == schemas.FieldCheckbox {
		checked, err := l.auto.Checked(ctx, ref)
		if err != nil {
			return schemas.FillResult{}, err
		}
		return schemas.FillResult{Committed: checked}, nil
	}
	value, err := l.auto.ReadValue(ctx, ref)
	if err != nil {
		return schemas.FillResult{}, err
	}
	return schemas.FillResult{Committed: value != "", ReadBack: value}, nil
}

// deriveHint keeps whatever made the repair work. The service's own hint
// wins; otherwise one is inferred from the recipe.
func (l *Loop) deriveHint(rem *llmclient.Remediation, answer schemas.Answer) *schemas.StrategyHint {
	if rem.Hint != nil {
		return rem.Hint
	}
	hint := &schemas.StrategyHint{}
	for _, step := range rem.Steps {
		switch step.Op {
		case schemas.OpWait:
			hint.AsyncWait = true
		case schemas.OpChooseOption:
			if step.Arg != "" && step.Arg != answer.Value {
				hint.FallbackOption = step.Arg
			}
		}
	}
	if hint.IsZero() {
		return nil
	}
	return hint
}

// remember persists the answer with its hard-won hint so the next encounter
// of this label skips the whole loop.
func (l *Loop) remember(ctx context.Context, field schemas.Field, answer schemas.Answer, hint *schemas.StrategyHint) {
	value := answer.Value
	if value == "" {
		return
	}
	if err := l.store.Upsert(ctx, field.Label, value, "repair", hint); err != nil && !errors.Is(err, context.Canceled) {
		l.logger.Warn("Failed to persist repair outcome.", zap.String("label", field.Label), zap.Error(err))
	}
}
