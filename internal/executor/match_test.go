package executor

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/antonkk/formpilot/api/schemas"
)

func TestBestOption(t *testing.T) {
	options := []string{"Select...", "Yes", "No", "Prefer not to say"}

	testCases := []struct {
		name  string
		value string
		opts  []string
		hint  *schemas.StrategyHint
		want  string
		found bool
	}{
		{"exact", "Yes", options, nil, "Yes", true},
		{"case insensitive", "yes", options, nil, "Yes", true},
		{"prefix", "Prefer", options, nil, "Prefer not to say", true},
		{"containment", "not to say", options, nil, "Prefer not to say", true},
		{"value contains option", "No thank you", []string{"No"}, nil, "No", true},
		{"no match", "Absolutely", []string{"Germany", "France"}, nil, "", false},
		{"empty options", "Yes", nil, nil, "", false},
		{
			"fallback on no match",
			"2019",
			[]string{"2023", "2024", "2025"},
			&schemas.StrategyHint{FallbackOption: "2023"},
			"2023", true,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			got, ok := BestOption(tc.value, tc.opts, tc.hint)
			assert.Equal(t, tc.found, ok)
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestBestOptionFuzzy(t *testing.T) {
	options := []string{"Berlin, Germany", "Bern, Switzerland", "Birmingham, United Kingdom"}
	got, ok := BestOption("Berlin Germany", options, nil)
	assert.True(t, ok)
	assert.Equal(t, "Berlin, Germany", got)
}

func TestBestOptionDemographicFragments(t *testing.T) {
	options := []string{
		"I am a protected veteran",
		"I am not a protected veteran",
		"I don't wish to answer",
	}
	got, ok := BestOption("not a protected veteran", options, nil)
	assert.True(t, ok)
	assert.Equal(t, "I am not a protected veteran", got)
}
