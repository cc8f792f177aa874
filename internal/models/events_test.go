package models

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTopicSplit(t *testing.T) {
	msg := PubSubMessage{Topic: "user-drop-events.12345"}
	assert.Equal(t, "user-drop-events", msg.TopicName())
	assert.Equal(t, "12345", msg.TopicID())

	bare := PubSubMessage{Topic: "user-drop-events"}
	assert.Equal(t, "user-drop-events", bare.TopicName())
	assert.Equal(t, "", bare.TopicID())
}

func TestDropProgressEventDecode(t *testing.T) {
	raw := `{"drop_id":"d1","channel_id":"c1","current_progress_min":12,"required_progress_min":30}`

	var event DropProgressEvent
	require.NoError(t, json.Unmarshal([]byte(raw), &event))
	assert.Equal(t, "d1", event.DropID)
	assert.Equal(t, 12, event.CurrentProgress)
	assert.Equal(t, 30, event.RequiredMinutes)
}
