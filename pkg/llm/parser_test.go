package llm

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type captainStub struct {
	ResponseType string `yaml:"response_type"`
	EventName    string `yaml:"event_name"`
	Comment      string `yaml:"comment"`
}

func TestParseYAMLResponse_FencedYAMLBlock(t *testing.T) {
	text := "Here is my answer:\n```yaml\nresponse_type: TASK\nevent_name: brute force login\ncomment: investigate source IP\n```\nThanks."

	var out captainStub
	require.NoError(t, ParseYAMLResponse(text, &out))
	assert.Equal(t, "TASK", out.ResponseType)
	assert.Equal(t, "brute force login", out.EventName)
	assert.Equal(t, "investigate source IP", out.Comment)
}

func TestParseYAMLResponse_BareFencedBlock(t *testing.T) {
	text := "```\nresponse_type: ROGER\n```"

	var out captainStub
	require.NoError(t, ParseYAMLResponse(text, &out))
	assert.Equal(t, "ROGER", out.ResponseType)
}

func TestParseYAMLResponse_NoFence(t *testing.T) {
	text := "response_type: MISSION_COMPLETE\nevent_name: resolved\n"

	var out captainStub
	require.NoError(t, ParseYAMLResponse(text, &out))
	assert.Equal(t, "MISSION_COMPLETE", out.ResponseType)
	assert.Equal(t, "resolved", out.EventName)
}

func TestParseYAMLResponse_UnterminatedFence(t *testing.T) {
	text := "```yaml\nresponse_type: TASK\nevent_name: no closing fence"

	var out captainStub
	require.NoError(t, ParseYAMLResponse(text, &out))
	assert.Equal(t, "TASK", out.ResponseType)
	assert.Equal(t, "no closing fence", out.EventName)
}

func TestParseYAMLResponse_InvalidYAMLReturnsError(t *testing.T) {
	text := "```yaml\nresponse_type: [unterminated\n```"

	var out captainStub
	assert.Error(t, ParseYAMLResponse(text, &out))
}

func TestExtractYAMLBlock(t *testing.T) {
	assert.Equal(t, "a: 1", extractYAMLBlock("```yaml\na: 1\n```"))
	assert.Equal(t, "a: 1", extractYAMLBlock("```\na: 1\n```"))
	assert.Equal(t, "a: 1", extractYAMLBlock("  a: 1  "))
}
