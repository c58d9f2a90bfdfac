package session

import (
	"context"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"go.uber.org/zap/zaptest"

	"github.com/antonkk/formpilot/api/schemas"
	"github.com/antonkk/formpilot/internal/config"
	"github.com/antonkk/formpilot/internal/executor"
	"github.com/antonkk/formpilot/internal/llmclient"
	"github.com/antonkk/formpilot/internal/memory"
	"github.com/antonkk/formpilot/internal/mocks"
	"github.com/antonkk/formpilot/internal/profile"
	"github.com/antonkk/formpilot/internal/repair"
	"github.com/antonkk/formpilot/internal/resolver"
	"github.com/antonkk/formpilot/internal/scanner"
	"github.com/antonkk/formpilot/internal/validator"
)

type harness struct {
	page     *mocks.FakePage
	store    *memory.Store
	reasoner *mocks.MockReasoner
	ctrl     *Controller
}

func newHarness(t *testing.T, page *mocks.FakePage, reasoner *mocks.MockReasoner, prompt resolver.PromptFunc) *harness {
	t.Helper()
	logger := zaptest.NewLogger(t)
	cfg := config.NewDefaultConfig()

	store, err := memory.NewStore(context.Background(), memory.NewMemoryBackend(), logger)
	require.NoError(t, err)

	prof := profile.New(map[string]interface{}{
		"personal": map[string]interface{}{
			"first_name": "Anton",
			"last_name":  "Kovalev",
			"email":      "anton@example.com",
			"location":   "Berlin, Germany",
		},
		"documents": map[string]interface{}{
			"resume": "/data/resume.pdf",
		},
	})

	var res llmclient.Reasoner
	if reasoner != nil {
		res = reasoner
	}
	casc := resolver.New(cfg.Resolver, prof, store, res, prompt, logger)
	exec := executor.New(page, cfg.Executor, logger)
	valid := validator.New(page, logger)
	rep := repair.New(cfg.Repair, page, exec, valid, res, casc, store, logger)
	scan := scanner.New(page, logger)

	return &harness{
		page:     page,
		store:    store,
		reasoner: reasoner,
		ctrl:     New(cfg.Engine, page, scan, casc, exec, valid, rep, logger),
	}
}

func TestSessionFillsProfileFields(t *testing.T) {
	page := mocks.NewFakePage(
		&mocks.Control{ID: "fp-1", Tag: "input", InputType: "text", Label: "First Name *", Required: true, Y: 10},
		&mocks.Control{ID: "fp-2", Tag: "input", InputType: "text", Label: "Last Name *", Required: true, Y: 20},
		&mocks.Control{ID: "fp-3", Tag: "input", InputType: "email", Label: "Email", Y: 30},
	)
	h := newHarness(t, page, nil, nil)

	report, err := h.ctrl.Run(context.Background(), "https://jobs.example.com/apply/123")
	require.NoError(t, err)

	assert.Equal(t, schemas.SessionDone, report.Status)
	assert.Equal(t, 3, report.FilledCount)
	assert.Zero(t, report.FailedCount)
	assert.Zero(t, report.AIAssistedCount)
	assert.Equal(t, "Anton", page.Control("fp-1").Value)
	assert.Equal(t, "Kovalev", page.Control("fp-2").Value)
	assert.Equal(t, "anton@example.com", page.Control("fp-3").Value)
}

func TestSessionLearnedAnswerNeedsNoAI(t *testing.T) {
	ctx := context.Background()
	page := mocks.NewFakePage(
		&mocks.Control{
			ID: "fp-1", Tag: "select", Label: "Are you authorized to work in the United States?",
			Options: []string{"Yes", "No"}, Y: 10,
		},
	)
	reasoner := &mocks.MockReasoner{}
	h := newHarness(t, page, reasoner, nil)
	require.NoError(t, h.store.Upsert(ctx, "Are you authorized to work in the United States?", "Yes", string(schemas.SourceHuman), nil))

	report, err := h.ctrl.Run(ctx, "https://jobs.example.com/apply/1")
	require.NoError(t, err)

	assert.Equal(t, schemas.SessionDone, report.Status)
	assert.Equal(t, "Yes", page.Control("fp-1").Value)
	require.Len(t, report.Fields, 1)
	assert.Equal(t, schemas.SourceLearned, report.Fields[0].Source)
	reasoner.AssertNotCalled(t, "Ask", mock.Anything, mock.Anything)
}

func TestSessionAIAnswerIsLearned(t *testing.T) {
	ctx := context.Background()
	page := mocks.NewFakePage(
		&mocks.Control{ID: "fp-1", Tag: "input", InputType: "text", Label: "What excites you about this role?", Y: 10},
	)
	reasoner := &mocks.MockReasoner{}
	reasoner.On("Ask", mock.Anything, mock.Anything).
		Return(&llmclient.Reply{Answer: "The infrastructure challenges.", Confidence: 0.8}, nil)

	h := newHarness(t, page, reasoner, nil)
	report, err := h.ctrl.Run(ctx, "https://jobs.example.com/apply/2")
	require.NoError(t, err)

	assert.Equal(t, 1, report.AIAssistedCount)
	entry, ok := h.store.Lookup("What excites you about this role?")
	require.True(t, ok)
	assert.Equal(t, "The infrastructure challenges.", entry.Answer)
}

func TestSessionRescanPicksUpRevealedFields(t *testing.T) {
	page := mocks.NewFakePage(
		&mocks.Control{ID: "fp-1", Tag: "input", InputType: "text", Label: "First Name", Y: 10},
	)
	// Filling the first field reveals a dependent one on the next pass.
	page.OnEnumerate = func(pass int, p *mocks.FakePage) {
		if pass == 2 {
			p.AddControl(&mocks.Control{ID: "fp-2", Tag: "input", InputType: "text", Label: "Last Name", Y: 20})
		}
	}

	h := newHarness(t, page, nil, nil)
	report, err := h.ctrl.Run(context.Background(), "https://jobs.example.com/apply/3")
	require.NoError(t, err)

	assert.Equal(t, schemas.SessionDone, report.Status)
	assert.Equal(t, 2, report.FilledCount)
	assert.Equal(t, "Kovalev", page.Control("fp-2").Value)
	assert.GreaterOrEqual(t, report.Iterations, 2)
}

func TestSessionRescanBudgetTerminates(t *testing.T) {
	page := mocks.NewFakePage(
		&mocks.Control{ID: "fp-0", Tag: "input", InputType: "text", Label: "First Name", Y: 0},
	)
	// Pathological page: every pass reveals yet another field.
	page.OnEnumerate = func(pass int, p *mocks.FakePage) {
		p.AddControl(&mocks.Control{
			ID: "fp-gen-" + string(rune('a'+pass)), Tag: "input", InputType: "text",
			Label: "Extra question " + string(rune('a'+pass)), Y: float64(10 * pass),
		})
	}

	h := newHarness(t, page, nil, nil)
	report, err := h.ctrl.Run(context.Background(), "https://jobs.example.com/apply/4")
	require.NoError(t, err)

	assert.Equal(t, schemas.SessionPartial, report.Status, "budget exhaustion reports partial, not an error")
	assert.Equal(t, config.NewDefaultConfig().Engine.RescanBudget, report.Iterations)
}

func TestSessionAIDownStillFillsDeterministicFields(t *testing.T) {
	page := mocks.NewFakePage(
		&mocks.Control{ID: "fp-1", Tag: "input", InputType: "text", Label: "First Name", Y: 10},
		&mocks.Control{ID: "fp-2", Tag: "input", InputType: "text", Label: "Weird portal question", Y: 20},
	)
	reasoner := &mocks.MockReasoner{}
	reasoner.On("Ask", mock.Anything, mock.Anything).
		Return(nil, schemas.ErrAIServiceUnavailable)

	h := newHarness(t, page, reasoner, nil)
	report, err := h.ctrl.Run(context.Background(), "https://jobs.example.com/apply/5")
	require.NoError(t, err)

	assert.Equal(t, schemas.SessionPartial, report.Status)
	assert.Equal(t, 1, report.FilledCount)
	assert.Equal(t, 1, report.FailedCount)
	assert.Equal(t, "Anton", page.Control("fp-1").Value, "deterministic fields fill despite AI outage")
}

func TestSessionSkipsEndDateForCurrentRole(t *testing.T) {
	page := mocks.NewFakePage(
		&mocks.Control{ID: "fp-1", Tag: "input", InputType: "checkbox", Label: "I currently work here", Y: 10},
		&mocks.Control{ID: "fp-2", Tag: "input", InputType: "text", Label: "End Date", Y: 20},
	)
	h := newHarness(t, page, nil, nil)

	report, err := h.ctrl.Run(context.Background(), "https://jobs.example.com/apply/6")
	require.NoError(t, err)

	assert.True(t, page.Control("fp-1").Checked)
	assert.Empty(t, page.Control("fp-2").Value, "end date must stay empty for an ongoing role")

	var endDate *schemas.FieldOutcome
	for i := range report.Fields {
		if report.Fields[i].Label == "End Date" {
			endDate = &report.Fields[i]
		}
	}
	require.NotNil(t, endDate)
	assert.Contains(t, endDate.Error, "skipped")
}

func TestSessionUnlabeledFieldFailsLocally(t *testing.T) {
	page := mocks.NewFakePage(
		&mocks.Control{ID: "fp-1", Tag: "input", InputType: "text", Y: 10},
		&mocks.Control{ID: "fp-2", Tag: "input", InputType: "text", Label: "First Name", Y: 20},
	)
	h := newHarness(t, page, nil, nil)

	report, err := h.ctrl.Run(context.Background(), "https://jobs.example.com/apply/7")
	require.NoError(t, err)

	assert.Equal(t, 1, report.FilledCount)
	assert.Equal(t, 1, report.FailedCount)
	require.Len(t, report.Fields, 2)
	assert.Contains(t, report.Fields[0].Error, string(schemas.CodeLabelNotFound))
}

func TestSessionRepairRecoversOptionMismatch(t *testing.T) {
	ctx := context.Background()
	page := mocks.NewFakePage(
		&mocks.Control{
			ID: "fp-1", Tag: "select", Label: "Graduation Year",
			Options: []string{"2023", "2024", "2025"}, Y: 10,
		},
	)
	reasoner := &mocks.MockReasoner{}
	reasoner.On("Ask", mock.Anything, mock.Anything).
		Return(&llmclient.Reply{Answer: "2019", Confidence: 0.9}, nil)
	reasoner.On("SuggestRemediation", mock.Anything, mock.Anything).
		Return(&llmclient.Remediation{
			Steps: []schemas.RemediationStep{{Op: schemas.OpChooseOption, Arg: "2023"}},
		}, nil)

	h := newHarness(t, page, reasoner, nil)
	report, err := h.ctrl.Run(ctx, "https://jobs.example.com/apply/8")
	require.NoError(t, err)

	assert.Equal(t, schemas.SessionDone, report.Status)
	assert.Equal(t, "2023", page.Control("fp-1").Value)

	// The working fallback is remembered for the next portal.
	entry, ok := h.store.Lookup("Graduation Year")
	require.True(t, ok)
	require.NotNil(t, entry.Hint)
	assert.Equal(t, "2023", entry.Hint.FallbackOption)
}

func TestRunnerIsolatesSessionFailures(t *testing.T) {
	defer goleak.VerifyNone(t)

	var calls atomic.Int32
	run := func(ctx context.Context, url string) (*schemas.SessionReport, error) {
		calls.Add(1)
		if url == "https://bad.example.com" {
			return nil, assert.AnError
		}
		return &schemas.SessionReport{URL: url, Status: schemas.SessionDone}, nil
	}

	r := NewRunner(2, run, zaptest.NewLogger(t))
	reports := r.RunAll(context.Background(), []string{
		"https://a.example.com",
		"https://bad.example.com",
		"https://b.example.com",
	})

	require.Len(t, reports, 3)
	assert.Equal(t, int32(3), calls.Load())
	assert.Equal(t, schemas.SessionDone, reports[0].Status)
	assert.Equal(t, schemas.SessionPartial, reports[1].Status, "failed session folds into a partial report")
	assert.Equal(t, schemas.SessionDone, reports[2].Status)
}
