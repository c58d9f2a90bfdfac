// Package session drives one form page end to end: scan, resolve, fill,
// validate, repair, re-scan, bounded in every dimension. A session always
// terminates with a report; individual field failures never abort it.
package session

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/antonkk/formpilot/api/schemas"
	"github.com/antonkk/formpilot/internal/browser"
	"github.com/antonkk/formpilot/internal/config"
	"github.com/antonkk/formpilot/internal/executor"
	"github.com/antonkk/formpilot/internal/memory"
	"github.com/antonkk/formpilot/internal/repair"
	"github.com/antonkk/formpilot/internal/resolver"
	"github.com/antonkk/formpilot/internal/scanner"
	"github.com/antonkk/formpilot/internal/validator"
)

// Controller owns the lifecycle of one form session.
type Controller struct {
	cfg    config.EngineConfig
	auto   browser.Automator
	scan   *scanner.Scanner
	casc   *resolver.Cascade
	exec   *executor.Executor
	valid  *validator.Validator
	repair *repair.Loop
	logger *zap.Logger

	// currentRole is set when an affirmative current-employment control was
	// committed; end-date fields are then skipped.
	currentRole bool
}

// New wires a Controller from the engine components.
func New(cfg config.EngineConfig, auto browser.Automator, scan *scanner.Scanner, casc *resolver.Cascade, exec *executor.Executor, valid *validator.Validator, rep *repair.Loop, logger *zap.Logger) *Controller {
	return &Controller{
		cfg:    cfg,
		auto:   auto,
		scan:   scan,
		casc:   casc,
		exec:   exec,
		valid:  valid,
		repair: rep,
		logger: logger.Named("session"),
	}
}

// Run fills the form at url and reports what happened. The report is
// returned even on timeout or cancellation; the error is non-nil only when
// the session could not start at all.
func (c *Controller) Run(ctx context.Context, url string) (*schemas.SessionReport, error) {
	report := &schemas.SessionReport{
		SessionID: uuid.NewString(),
		URL:       url,
		Status:    schemas.SessionRunning,
	}
	logger := c.logger.With(zap.String("session_id", report.SessionID))

	if c.cfg.SessionTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.cfg.SessionTimeout)
		defer cancel()
	}

	if err := c.auto.Navigate(ctx, url); err != nil {
		return nil, fmt.Errorf("failed to open form: %w", err)
	}
	logger.Info("Session started.", zap.String("url", url))

	seen := make(map[string]bool)
	budgetExceeded := false

	for {
		if ctx.Err() != nil {
			break
		}
		if report.Iterations >= c.cfg.RescanBudget {
			// Endless mutation (fields appearing on every pass) must not pin
			// the session; what was filled stays filled.
			logger.Warn("Re-scan budget exhausted.",
				zap.Int("iterations", report.Iterations),
				zap.Error(schemas.ErrRescanBudgetExceeded))
			budgetExceeded = true
			break
		}
		report.Iterations++

		fields, err := c.scan.Scan(ctx)
		if err != nil {
			if ctx.Err() != nil {
				break
			}
			return nil, fmt.Errorf("scan pass %d failed: %w", report.Iterations, err)
		}

		fresh := 0
		for i := range fields {
			field := fields[i]
			key := fieldKey(field)
			if seen[key] {
				continue
			}
			seen[key] = true
			fresh++

			if ctx.Err() != nil {
				break
			}
			outcome := c.processField(ctx, field, logger)
			report.Fields = append(report.Fields, outcome)
			switch outcome.State {
			case schemas.StateVerified:
				report.FilledCount++
				if outcome.Source == schemas.SourceAI {
					report.AIAssistedCount++
				}
			case schemas.StateFailed:
				report.FailedCount++
			}
		}

		// A pass that discovers nothing new means the page has settled.
		if fresh == 0 {
			break
		}
	}

	report.Status = schemas.SessionDone
	if budgetExceeded || ctx.Err() != nil || report.FailedCount > 0 {
		report.Status = schemas.SessionPartial
	}
	logger.Info("Session finished.",
		zap.String("status", string(report.Status)),
		zap.Int("iterations", report.Iterations),
		zap.Int("filled", report.FilledCount),
		zap.Int("failed", report.FailedCount),
		zap.Int("ai_assisted", report.AIAssistedCount))
	return report, nil
}

// fieldKey identifies a field across scan passes. Labels are the stable
// identity; unlabeled controls fall back to their per-pass selector, which
// at worst re-processes them once per pass.
func fieldKey(field schemas.Field) string {
	norm := memory.NormalizeLabel(field.Label)
	if norm == "" {
		return "sel:" + field.Selector
	}
	return string(field.Type) + "|" + norm
}

func (c *Controller) processField(ctx context.Context, field schemas.Field, logger *zap.Logger) schemas.FieldOutcome {
	outcome := schemas.FieldOutcome{
		Label: field.Label,
		Type:  field.Type,
		State: field.State,
	}

	if field.Label == "" {
		return c.fail(&field, outcome, schemas.ErrLabelNotFound, logger)
	}
	if field.Type == schemas.FieldUnknown {
		return c.fail(&field, outcome, schemas.ErrTypeUnrecognized, logger)
	}
	if c.currentRole && isEndDateLabel(field.Label) {
		// An ongoing role has no end date; filling one would contradict the
		// current-role answer.
		logger.Info("Skipping end date for ongoing role.", zap.String("label", field.Label))
		outcome.Error = "skipped: current role is ongoing"
		return outcome
	}

	if c.cfg.FieldTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.cfg.FieldTimeout)
		defer cancel()
	}

	res, err := c.casc.Resolve(ctx, field)
	if err != nil {
		return c.fail(&field, outcome, err, logger)
	}
	field.Advance(schemas.StateResolved)
	outcome.Source = res.Answer.Source

	fill, err := c.exec.Fill(ctx, field, res.Answer, res.Hint)
	if err == nil {
		field.Advance(schemas.StateFilled)
		err = c.valid.Validate(ctx, field, res.Answer, fill)
	}
	if err != nil {
		if result := c.repair.Repair(ctx, field, res.Answer, err); result.Resolved {
			logger.Info("Field recovered by repair.",
				zap.String("label", field.Label),
				zap.Int("attempts", result.Attempts))
			field.Advance(schemas.StateFilled)
			err = nil
		}
	}
	if err != nil {
		return c.fail(&field, outcome, err, logger)
	}

	field.Advance(schemas.StateVerified)
	outcome.State = field.State
	c.noteCurrentRole(field, res.Answer)
	logger.Debug("Field verified.",
		zap.String("label", field.Label),
		zap.String("source", string(res.Answer.Source)))
	return outcome
}

func (c *Controller) fail(field *schemas.Field, outcome schemas.FieldOutcome, err error, logger *zap.Logger) schemas.FieldOutcome {
	field.Advance(schemas.StateFailed)
	outcome.State = field.State
	outcome.Error = fmt.Sprintf("%s: %v", schemas.Classify(err), err)
	logger.Warn("Field failed.", zap.String("label", field.Label), zap.Error(err))
	return outcome
}

var currentRolePhrases = []string{"current role", "currently work here", "i currently work"}

func (c *Controller) noteCurrentRole(field schemas.Field, answer schemas.Answer) {
	if field.Type != schemas.FieldCheckbox && field.Type != schemas.FieldRadio {
		return
	}
	ll := strings.ToLower(field.Label)
	for _, phrase := range currentRolePhrases {
		if strings.Contains(ll, phrase) && isAffirmative(answer.Value) {
			c.currentRole = true
			return
		}
	}
}

func isEndDateLabel(label string) bool {
	ll := strings.ToLower(label)
	return strings.Contains(ll, "end date") || strings.Contains(ll, "end year") || strings.Contains(ll, "end month")
}

func isAffirmative(value string) bool {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "yes", "true", "y", "1", "on", "checked", "confirmed":
		return true
	}
	return false
}
