package llmclient

import (
	"context"
	"fmt"
	"strings"
	"time"

	json "github.com/json-iterator/go"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
	"google.golang.org/genai"

	"github.com/antonkk/formpilot/api/schemas"
	"github.com/antonkk/formpilot/internal/config"
)

const askSystemPrompt = `You are filling out a job application form on behalf of a candidate.
Given a field label, its type, its available options (if any) and the candidate summary,
produce the single best value for the field.
Rules:
- If options are listed, the answer MUST be one of them, copied verbatim.
- Prefer non-disclosure options ("Decline to state", "I don't wish to answer") for
  demographic questions the candidate summary does not cover.
- Never invent facts about the candidate.
Respond in JSON: {"answer": "<value>", "confidence": <0.0-1.0>}`

const remediationSystemPrompt = `A form-filling robot failed to commit a value into a web form field.
You are given the field, the attempted value, the failure, and optionally a screenshot.
Propose a short recipe (at most 4 steps) using only these operations:
- "retype": clear the control and type the argument
- "choose_option": click the option whose text is the argument
- "toggle": click the control itself
- "set_value": set the control value directly to the argument
- "press_key": press the named key (e.g. "Tab", "Escape", "ArrowDown")
- "wait": pause for the argument in milliseconds
Respond in JSON:
{"steps": [{"op": "...", "arg": "..."}],
 "hint": {"async_wait": bool, "fuzzy_first": bool, "fallback_option": "...", "notes": "..."}}
Return {"steps": []} if nothing is worth trying.`

// Gemini implements Reasoner over the Gemini API. All calls go through a
// shared rate limiter so parallel sessions cannot stampede the quota.
type Gemini struct {
	client  *genai.Client
	model   string
	limiter *rate.Limiter
	timeout time.Duration
	temp    float32
	logger  *zap.Logger
}

var _ Reasoner = (*Gemini)(nil)

// NewGemini builds the client from config. The API key is required; model and
// limits have usable defaults.
func NewGemini(ctx context.Context, cfg config.LLMConfig, logger *zap.Logger) (*Gemini, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("gemini API key is required")
	}
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  cfg.APIKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create gemini client: %w", err)
	}
	rpm := cfg.RequestsPerMinute
	if rpm <= 0 {
		rpm = 20
	}
	return &Gemini{
		client:  client,
		model:   cfg.Model,
		limiter: rate.NewLimiter(rate.Limit(float64(rpm)/60.0), 1),
		timeout: cfg.Timeout,
		temp:    cfg.Temperature,
		logger:  logger.Named("llm_client.gemini"),
	}, nil
}

func (g *Gemini) Ask(ctx context.Context, q Question) (*Reply, error) {
	prompt := buildAskPrompt(q)
	raw, err := g.generate(ctx, askSystemPrompt, []*genai.Part{genai.NewPartFromText(prompt)})
	if err != nil {
		return nil, err
	}
	reply, err := parseReply(raw)
	if err != nil {
		g.logger.Warn("Unparseable reasoning reply.", zap.String("label", q.Label), zap.Error(err))
		return nil, fmt.Errorf("%w: %v", schemas.ErrAIServiceUnavailable, err)
	}
	g.logger.Debug("Reasoning service answered.",
		zap.String("label", q.Label),
		zap.Float64("confidence", reply.Confidence))
	return reply, nil
}

func (g *Gemini) SuggestRemediation(ctx context.Context, fc FailureContext) (*Remediation, error) {
	parts := []*genai.Part{genai.NewPartFromText(buildRemediationPrompt(fc))}
	if len(fc.Screenshot) > 0 {
		parts = append(parts, genai.NewPartFromBytes(fc.Screenshot, "image/png"))
	}
	raw, err := g.generate(ctx, remediationSystemPrompt, parts)
	if err != nil {
		return nil, err
	}
	rem, err := parseRemediation(raw)
	if err != nil {
		g.logger.Warn("Unparseable remediation reply.", zap.String("label", fc.Label), zap.Error(err))
		return nil, fmt.Errorf("%w: %v", schemas.ErrAIServiceUnavailable, err)
	}
	return rem, nil
}

func (g *Gemini) generate(ctx context.Context, system string, parts []*genai.Part) (string, error) {
	if err := g.limiter.Wait(ctx); err != nil {
		return "", err
	}
	if g.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, g.timeout)
		defer cancel()
	}

	temp := g.temp
	cfg := &genai.GenerateContentConfig{
		Temperature:       &temp,
		ResponseMIMEType:  "application/json",
		SystemInstruction: genai.NewContentFromText(system, genai.RoleUser),
	}
	contents := []*genai.Content{genai.NewContentFromParts(parts, genai.RoleUser)}

	start := time.Now()
	resp, err := g.client.Models.GenerateContent(ctx, g.model, contents, cfg)
	if err != nil {
		return "", fmt.Errorf("%w: %v", schemas.ErrAIServiceUnavailable, err)
	}
	text := resp.Text()
	if text == "" {
		return "", fmt.Errorf("%w: empty response", schemas.ErrAIServiceUnavailable)
	}
	g.logger.Debug("Gemini generation complete.", zap.Duration("duration", time.Since(start)))
	return text, nil
}

func buildAskPrompt(q Question) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Field label: %s\n", q.Label)
	fmt.Fprintf(&b, "Field type: %s\n", q.FieldType)
	if q.Required {
		b.WriteString("The field is required.\n")
	}
	if len(q.Options) > 0 {
		fmt.Fprintf(&b, "Options:\n")
		for _, opt := range q.Options {
			fmt.Fprintf(&b, "- %s\n", opt)
		}
	}
	if q.ProfileContext != "" {
		fmt.Fprintf(&b, "\nCandidate summary:\n%s\n", q.ProfileContext)
	}
	return b.String()
}

func buildRemediationPrompt(fc FailureContext) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Field label: %s\n", fc.Label)
	fmt.Fprintf(&b, "Field type: %s\n", fc.FieldType)
	fmt.Fprintf(&b, "Attempted value: %s\n", fc.AttemptedValue)
	if fc.ErrorText != "" {
		fmt.Fprintf(&b, "Failure: %s\n", fc.ErrorText)
	}
	if fc.ValidationMessage != "" {
		fmt.Fprintf(&b, "Portal validation message: %s\n", fc.ValidationMessage)
	}
	if len(fc.Options) > 0 {
		b.WriteString("Currently visible options:\n")
		for _, opt := range fc.Options {
			fmt.Fprintf(&b, "- %s\n", opt)
		}
	}
	return b.String()
}

// parseReply decodes the JSON reply, tolerating markdown code fences some
// models insist on emitting.
func parseReply(raw string) (*Reply, error) {
	var reply Reply
	if err := json.UnmarshalFromString(stripFences(raw), &reply); err != nil {
		return nil, err
	}
	if reply.Answer == "" {
		return nil, fmt.Errorf("reply carries no answer")
	}
	if reply.Confidence < 0 {
		reply.Confidence = 0
	}
	if reply.Confidence > 1 {
		reply.Confidence = 1
	}
	return &reply, nil
}

func parseRemediation(raw string) (*Remediation, error) {
	var rem Remediation
	if err := json.UnmarshalFromString(stripFences(raw), &rem); err != nil {
		return nil, err
	}
	valid := map[schemas.RemediationOp]bool{
		schemas.OpRetype:       true,
		schemas.OpChooseOption: true,
		schemas.OpToggle:       true,
		schemas.OpSetValue:     true,
		schemas.OpPressKey:     true,
		schemas.OpWait:         true,
	}
	steps := rem.Steps[:0]
	for _, step := range rem.Steps {
		if valid[step.Op] {
			steps = append(steps, step)
		}
	}
	rem.Steps = steps
	if rem.Hint != nil && rem.Hint.IsZero() {
		rem.Hint = nil
	}
	return &rem, nil
}

func stripFences(raw string) string {
	s := strings.TrimSpace(raw)
	if strings.HasPrefix(s, "```") {
		if i := strings.Index(s, "\n"); i >= 0 {
			s = s[i+1:]
		}
		s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	}
	return strings.TrimSpace(s)
}
