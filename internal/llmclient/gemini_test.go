package llmclient

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/antonkk/formpilot/api/schemas"
)

func TestParseReply(t *testing.T) {
	t.Run("plain json", func(t *testing.T) {
		reply, err := parseReply(`{"answer": "Berlin, Germany", "confidence": 0.8}`)
		require.NoError(t, err)
		assert.Equal(t, "Berlin, Germany", reply.Answer)
		assert.Equal(t, 0.8, reply.Confidence)
	})

	t.Run("fenced json", func(t *testing.T) {
		raw := "```json\n{\"answer\": \"Yes\", \"confidence\": 0.9}\n```"
		reply, err := parseReply(raw)
		require.NoError(t, err)
		assert.Equal(t, "Yes", reply.Answer)
	})

	t.Run("confidence clamped", func(t *testing.T) {
		reply, err := parseReply(`{"answer": "No", "confidence": 1.7}`)
		require.NoError(t, err)
		assert.Equal(t, 1.0, reply.Confidence)
	})

	t.Run("empty answer rejected", func(t *testing.T) {
		_, err := parseReply(`{"answer": "", "confidence": 0.5}`)
		assert.Error(t, err)
	})

	t.Run("garbage rejected", func(t *testing.T) {
		_, err := parseReply("I think the answer is probably Yes.")
		assert.Error(t, err)
	})
}

func TestParseRemediation(t *testing.T) {
	t.Run("valid recipe with hint", func(t *testing.T) {
		raw := `{
			"steps": [
				{"op": "retype", "arg": "2023"},
				{"op": "wait", "arg": "500"},
				{"op": "choose_option", "arg": "2023"}
			],
			"hint": {"async_wait": true}
		}`
		rem, err := parseRemediation(raw)
		require.NoError(t, err)
		require.Len(t, rem.Steps, 3)
		assert.Equal(t, schemas.OpRetype, rem.Steps[0].Op)
		require.NotNil(t, rem.Hint)
		assert.True(t, rem.Hint.AsyncWait)
	})

	t.Run("unknown ops dropped", func(t *testing.T) {
		raw := `{"steps": [{"op": "submit_form"}, {"op": "toggle"}]}`
		rem, err := parseRemediation(raw)
		require.NoError(t, err)
		require.Len(t, rem.Steps, 1)
		assert.Equal(t, schemas.OpToggle, rem.Steps[0].Op)
	})

	t.Run("empty hint normalized to nil", func(t *testing.T) {
		raw := `{"steps": [], "hint": {}}`
		rem, err := parseRemediation(raw)
		require.NoError(t, err)
		assert.Nil(t, rem.Hint)
		assert.Empty(t, rem.Steps)
	})
}

func TestBuildAskPrompt(t *testing.T) {
	q := Question{
		Label:          "Are you authorized to work in the United States?",
		FieldType:      schemas.FieldSelect,
		Options:        []string{"Yes", "No"},
		Required:       true,
		ProfileContext: "Name: Anton",
	}
	prompt := buildAskPrompt(q)
	assert.Contains(t, prompt, "authorized to work")
	assert.Contains(t, prompt, "- Yes")
	assert.Contains(t, prompt, "- No")
	assert.Contains(t, prompt, "required")
	assert.True(t, strings.Contains(prompt, "Candidate summary"))
}

func TestStripFences(t *testing.T) {
	assert.Equal(t, `{"a":1}`, stripFences("```json\n{\"a\":1}\n```"))
	assert.Equal(t, `{"a":1}`, stripFences(`{"a":1}`))
	assert.Equal(t, `{"a":1}`, stripFences("```\n{\"a\":1}\n```"))
}
