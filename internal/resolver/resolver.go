package resolver

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/antonkk/formpilot/api/schemas"
	"github.com/antonkk/formpilot/internal/config"
	"github.com/antonkk/formpilot/internal/llmclient"
	"github.com/antonkk/formpilot/internal/memory"
	"github.com/antonkk/formpilot/internal/profile"
)

// ErrNoAnswer means every strategy declined; the field cannot be filled.
var ErrNoAnswer = errors.New("no strategy produced an answer")

// PromptFunc asks the operator for an answer interactively. Returning an
// empty string declines the field.
type PromptFunc func(ctx context.Context, field schemas.Field) (string, error)

// Resolution is an accepted answer plus the learned strategy hint, when the
// answer came from memory.
type Resolution struct {
	Answer schemas.Answer
	Hint   *schemas.StrategyHint
}

// Cascade resolves field answers by consulting sources cheapest and most
// trusted first: learned memory, the profile, pattern defaults, the
// reasoning service, and finally the operator. The cascade short-circuits at
// the first answer whose confidence clears the accept threshold; the
// reasoning service is never consulted when an earlier source answers.
type Cascade struct {
	cfg      config.ResolverConfig
	profile  *profile.Profile
	store    *memory.Store
	reasoner llmclient.Reasoner
	prompt   PromptFunc
	logger   *zap.Logger
}

// New builds the cascade. reasoner and prompt may be nil; the corresponding
// strategies then decline every field.
func New(cfg config.ResolverConfig, prof *profile.Profile, store *memory.Store, reasoner llmclient.Reasoner, prompt PromptFunc, logger *zap.Logger) *Cascade {
	return &Cascade{
		cfg:      cfg,
		profile:  prof,
		store:    store,
		reasoner: reasoner,
		prompt:   prompt,
		logger:   logger.Named("resolver"),
	}
}

// Resolve produces the answer for one field, or ErrNoAnswer. Answers from
// the reasoning service and the operator are written back to the learning
// store before they are returned.
func (c *Cascade) Resolve(ctx context.Context, field schemas.Field) (*Resolution, error) {
	res, err := c.runCascade(ctx, field)
	if err != nil {
		return nil, err
	}
	explodeMulti(field, &res.Answer)
	return res, nil
}

func (c *Cascade) runCascade(ctx context.Context, field schemas.Field) (*Resolution, error) {
	if field.Type == schemas.FieldFile {
		return c.resolveFile(field)
	}

	if res := c.fromLearned(field); res != nil {
		return res, nil
	}
	if res := c.fromProfile(field); res != nil {
		return res, nil
	}
	if res := c.fromPatterns(field); res != nil {
		return res, nil
	}

	if res, err := c.fromReasoner(ctx, field); err != nil {
		// A degraded reasoning service is not fatal; the cascade falls
		// through to the operator.
		c.logger.Warn("Reasoning strategy unavailable.", zap.String("label", field.Label), zap.Error(err))
	} else if res != nil {
		c.learn(ctx, field, res.Answer)
		return res, nil
	}

	if res, err := c.fromHuman(ctx, field); err != nil {
		return nil, err
	} else if res != nil {
		c.learn(ctx, field, res.Answer)
		return res, nil
	}

	return nil, fmt.Errorf("%w: %q", ErrNoAnswer, field.Label)
}

func (c *Cascade) resolveFile(field schemas.Field) (*Resolution, error) {
	path := c.profile.DocumentPath(field.Label)
	if path == "" {
		return nil, fmt.Errorf("%w: no document for %q", ErrNoAnswer, field.Label)
	}
	return &Resolution{Answer: schemas.Answer{
		FilePath:   path,
		Source:     schemas.SourceProfile,
		Confidence: 0.9,
	}}, nil
}

func (c *Cascade) fromLearned(field schemas.Field) *Resolution {
	entry, ok := c.store.Lookup(field.Label)
	if !ok {
		return nil
	}
	c.logger.Debug("Answer from memory.", zap.String("label", field.Label), zap.String("key", entry.Key))
	return &Resolution{
		Answer: schemas.Answer{
			Value:      entry.Answer,
			Source:     schemas.SourceLearned,
			Confidence: 1.0,
		},
		Hint: entry.Hint,
	}
}

func (c *Cascade) fromProfile(field schemas.Field) *Resolution {
	value, path := c.profile.FindByLabel(field.Label)
	if value == "" {
		return nil
	}
	answer := schemas.Answer{
		Value:      value,
		Source:     schemas.SourceProfile,
		Confidence: 0.9,
	}
	if answer.Confidence < c.cfg.AcceptThreshold {
		return nil
	}
	c.logger.Debug("Answer from profile.", zap.String("label", field.Label), zap.String("path", path))
	return &Resolution{Answer: answer}
}

func (c *Cascade) fromPatterns(field schemas.Field) *Resolution {
	tables := [][]orderedDefault{yesNoDefaults, demographicDefaults}
	if field.Type == schemas.FieldText {
		tables = append(tables, textDefaults)
	}
	for _, table := range tables {
		if value, ok := matchDefault(field.Label, table); ok {
			answer := schemas.Answer{
				Value:      value,
				Source:     schemas.SourcePattern,
				Confidence: 0.7,
			}
			if answer.Confidence < c.cfg.AcceptThreshold {
				return nil
			}
			c.logger.Debug("Answer from pattern defaults.", zap.String("label", field.Label))
			return &Resolution{Answer: answer}
		}
	}
	return nil
}

func (c *Cascade) fromReasoner(ctx context.Context, field schemas.Field) (*Resolution, error) {
	if c.reasoner == nil {
		return nil, nil
	}
	reply, err := c.reasoner.Ask(ctx, llmclient.Question{
		Label:          field.Label,
		FieldType:      field.Type,
		Options:        field.Options,
		Required:       field.Required,
		ProfileContext: c.profile.Context(),
	})
	if err != nil {
		if errors.Is(err, schemas.ErrAIServiceUnavailable) || errors.Is(err, context.DeadlineExceeded) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %v", schemas.ErrAIServiceUnavailable, err)
	}
	if reply == nil || reply.Answer == "" {
		return nil, nil
	}
	confidence := reply.Confidence
	if confidence > c.cfg.AIConfidenceCap {
		confidence = c.cfg.AIConfidenceCap
	}
	c.logger.Info("Answer from reasoning service.",
		zap.String("label", field.Label),
		zap.Float64("confidence", confidence))
	return &Resolution{Answer: schemas.Answer{
		Value:      reply.Answer,
		Source:     schemas.SourceAI,
		Confidence: confidence,
	}}, nil
}

func (c *Cascade) fromHuman(ctx context.Context, field schemas.Field) (*Resolution, error) {
	if c.prompt == nil {
		return nil, nil
	}
	value, err := c.prompt(ctx, field)
	if err != nil {
		return nil, fmt.Errorf("operator prompt failed: %w", err)
	}
	if value == "" {
		return nil, nil
	}
	return &Resolution{Answer: schemas.Answer{
		Value:      value,
		Source:     schemas.SourceHuman,
		Confidence: 1.0,
	}}, nil
}

// learn persists answers that cost something to obtain. Profile and pattern
// answers are recomputable for free, so only AI and operator answers are
// written back.
func (c *Cascade) learn(ctx context.Context, field schemas.Field, answer schemas.Answer) {
	if err := c.store.Upsert(ctx, field.Label, answer.Value, string(answer.Source), nil); err != nil {
		c.logger.Warn("Failed to persist learned answer.", zap.String("label", field.Label), zap.Error(err))
	}
}

// explodeMulti expands a semicolon-delimited answer into the value set a
// multi-select consumes. Value keeps the joined form so the learning store
// holds one canonical string per label; single-select fields pass through
// untouched.
func explodeMulti(field schemas.Field, answer *schemas.Answer) {
	if !field.Multiple {
		return
	}
	var values []string
	for _, part := range strings.Split(answer.Value, ";") {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			values = append(values, trimmed)
		}
	}
	if len(values) > 1 {
		answer.Values = values
	}
}
