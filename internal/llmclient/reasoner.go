package llmclient

import (
	"context"

	"github.com/antonkk/formpilot/api/schemas"
)

// Question is one field the cascade could not answer from memory, profile or
// patterns. Options are included verbatim so the service can pick from the
// portal's actual vocabulary.
type Question struct {
	Label          string
	FieldType      schemas.FieldType
	Options        []string
	Required       bool
	ProfileContext string
}

// Reply is the reasoning service's answer to a Question. Confidence is the
// service's self-reported estimate; callers cap it before trusting it.
type Reply struct {
	Answer     string  `json:"answer"`
	Confidence float64 `json:"confidence"`
}

// FailureContext is the snapshot handed to the service when a fill failed and
// the repair loop wants a recipe.
type FailureContext struct {
	Label             string
	FieldType         schemas.FieldType
	Options           []string
	AttemptedValue    string
	ErrorText         string
	ValidationMessage string
	// Screenshot of the widget region, PNG. Optional.
	Screenshot []byte
}

// Remediation is a bounded recipe of executor primitives plus the hint worth
// remembering if the recipe works.
type Remediation struct {
	Steps []schemas.RemediationStep `json:"steps"`
	Hint  *schemas.StrategyHint     `json:"hint,omitempty"`
}

// Reasoner is the external reasoning service consulted as the next-to-last
// resolution strategy and by the repair loop. Implementations must be safe
// for concurrent use.
type Reasoner interface {
	// Ask answers one unresolved field. A degraded or unreachable service
	// returns an error wrapping schemas.ErrAIServiceUnavailable; callers
	// treat that as "strategy yields nothing", never as a session failure.
	Ask(ctx context.Context, q Question) (*Reply, error)

	// SuggestRemediation turns a failure snapshot into a recipe of fill
	// primitives. An empty recipe means the service sees nothing to try.
	SuggestRemediation(ctx context.Context, fc FailureContext) (*Remediation, error)
}
