package services

import (
	"context"
	"encoding/json"
	"testing"

	"dropminer/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestSocket(api *stubAPI) *ServiceSocket {
	return &ServiceSocket{
		api:      api,
		settings: newTestSettings(nil),
		state:    NewMinerState(),
		userID:   "u1",
	}
}

func progressMessage(t *testing.T, topicID string, event models.DropProgressEvent) models.PubSubMessage {
	t.Helper()
	payload, err := json.Marshal(event)
	require.NoError(t, err)
	return models.PubSubMessage{
		Topic:   models.TopicUserDrops + "." + topicID,
		Type:    models.EventDropProgress,
		Payload: payload,
	}
}

func TestSocketDropProgressDesync(t *testing.T) {
	svc := newTestSocket(&stubAPI{})
	svc.state.SetDrop(&models.Drop{ID: "d1", CurrentMinutes: 10, RequiredMinutes: 30})

	svc.dispatch(context.Background(), progressMessage(t, "u1", models.DropProgressEvent{
		DropID:          "d1",
		CurrentProgress: 12,
	}))

	require.NotNil(t, svc.state.Drop())
	assert.Equal(t, 12, svc.state.Drop().CurrentMinutes)
	// the refresh counter must fire on the very next tick
	assert.True(t, svc.state.TickRefresh())
}

func TestSocketDropProgressIgnoresForeignTopics(t *testing.T) {
	svc := newTestSocket(&stubAPI{})
	svc.state.SetDrop(&models.Drop{ID: "d1", CurrentMinutes: 10})

	svc.dispatch(context.Background(), progressMessage(t, "someone-else", models.DropProgressEvent{
		DropID:          "d1",
		CurrentProgress: 25,
	}))

	assert.Equal(t, 10, svc.state.Drop().CurrentMinutes)
}

func TestSocketDropProgressMatchingCountNoRefresh(t *testing.T) {
	svc := newTestSocket(&stubAPI{})
	svc.state.SetDrop(&models.Drop{ID: "d1", CurrentMinutes: 12})

	svc.dispatch(context.Background(), progressMessage(t, "u1", models.DropProgressEvent{
		DropID:          "d1",
		CurrentProgress: 12,
	}))

	assert.False(t, svc.state.TickRefresh())
}

func TestSocketStreamDown(t *testing.T) {
	svc := newTestSocket(&stubAPI{})
	svc.state.SetChannel(&models.Channel{ID: "ch1", Login: "streamer", IsOnline: true})

	svc.dispatch(context.Background(), models.PubSubMessage{
		Topic:   models.TopicChannelStream + ".ch1",
		Type:    models.EventStreamDown,
		Payload: json.RawMessage(`{}`),
	})

	require.NotNil(t, svc.state.Channel())
	assert.False(t, svc.state.Channel().IsOnline)
}

func TestSocketDropClaimRecordsInstance(t *testing.T) {
	svc := newTestSocket(&stubAPI{})
	svc.state.SetDrop(&models.Drop{ID: "d1", RequiredMinutes: 30, CurrentMinutes: 31})

	payload, err := json.Marshal(models.DropClaimEvent{DropID: "d1", DropInstanceID: "inst-9"})
	require.NoError(t, err)
	svc.dispatch(context.Background(), models.PubSubMessage{
		Topic:   models.TopicUserDrops + ".u1",
		Type:    models.EventDropClaim,
		Payload: payload,
	})

	assert.Equal(t, "inst-9", svc.state.Drop().InstanceID)
}

func TestSocketGameChangeDropsChannel(t *testing.T) {
	svc := newTestSocket(&stubAPI{})
	svc.state.SetCampaign(&models.Campaign{ID: "c1", Game: models.Game{ID: "g1"}})
	svc.state.SetChannel(&models.Channel{ID: "ch1", IsOnline: true})

	payload, err := json.Marshal(models.BroadcastSettingsEvent{ChannelID: "ch1", GameID: "g2", Game: "Chess"})
	require.NoError(t, err)
	svc.dispatch(context.Background(), models.PubSubMessage{
		Topic:   models.TopicChannelUpdate + ".ch1",
		Type:    models.EventBroadcastSet,
		Payload: payload,
	})

	assert.False(t, svc.state.Channel().IsOnline)
}
