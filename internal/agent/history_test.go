package agent

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHistoryRoundTrip(t *testing.T) {
	history := []HistoryEntry{
		&UserMessage{Content: "<prompt>check inbox</prompt><automation_id>j1</automation_id>"},
		&ToolCallEntry{CallID: "call-1", Name: "web_fetch", Arguments: `{"url":"https://example.com"}`},
		&ToolResultEntry{CallID: "call-1", Output: "page body", Status: ToolResultOK},
		&ToolCallEntry{CallID: "call-2", Name: "web_fetch", Arguments: "{}"},
		&ToolResultEntry{CallID: "call-2", Output: "invalid url", Status: ToolResultError},
		&AssistantMessage{Content: "nothing new today"},
	}

	data, err := MarshalHistory(history)
	require.NoError(t, err)

	decoded, err := UnmarshalHistory(data)
	require.NoError(t, err)
	require.Len(t, decoded, len(history))

	for i := range history {
		assert.Equal(t, history[i], decoded[i], "entry %d", i)
	}
}

func TestUnmarshalHistory_Empty(t *testing.T) {
	decoded, err := UnmarshalHistory(nil)
	require.NoError(t, err)
	assert.Nil(t, decoded)

	decoded, err = UnmarshalHistory([]byte("[]"))
	require.NoError(t, err)
	assert.Empty(t, decoded)
}

func TestUnmarshalHistory_UnknownKind(t *testing.T) {
	_, err := UnmarshalHistory([]byte(`[{"kind":"telepathy","content":"hi"}]`))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "telepathy")
}

func TestUnmarshalHistory_Malformed(t *testing.T) {
	_, err := UnmarshalHistory([]byte(`{"not":"an array"}`))
	assert.Error(t, err)
}

func TestRecord_TrailingAssistantMessages(t *testing.T) {
	rec := &Record{}
	assert.Equal(t, 0, rec.TrailingAssistantMessages())

	rec.Append(&UserMessage{Content: "go"})
	assert.Equal(t, 0, rec.TrailingAssistantMessages())

	rec.Append(&AssistantMessage{Content: "one"})
	rec.Append(&AssistantMessage{Content: "two"})
	assert.Equal(t, 2, rec.TrailingAssistantMessages())

	// Any non-assistant entry resets the trailing run.
	rec.Append(&ToolCallEntry{CallID: "c1", Name: "echo", Arguments: "{}"})
	assert.Equal(t, 0, rec.TrailingAssistantMessages())

	rec.Append(&AssistantMessage{Content: "three"})
	assert.Equal(t, 1, rec.TrailingAssistantMessages())
}

func TestStatus_ValidAndTerminal(t *testing.T) {
	valid := []Status{StatusRunning, StatusAwaitingTool, StatusAwaitingHuman, StatusPaused, StatusError}
	for _, s := range valid {
		assert.True(t, s.Valid(), "%s", s)
	}
	assert.False(t, Status("sleeping").Valid())
	assert.False(t, Status("").Valid())

	assert.False(t, StatusRunning.Terminal())
	assert.False(t, StatusAwaitingTool.Terminal())
	assert.True(t, StatusPaused.Terminal())
	assert.True(t, StatusAwaitingHuman.Terminal())
	assert.True(t, StatusError.Terminal())
}

func TestRecord_LastEntry(t *testing.T) {
	rec := &Record{}
	assert.Nil(t, rec.LastEntry())

	rec.Append(&UserMessage{Content: "first"})
	rec.Append(&AssistantMessage{Content: "second"})

	msg, ok := rec.LastEntry().(*AssistantMessage)
	require.True(t, ok)
	assert.Equal(t, "second", msg.Content)
}
