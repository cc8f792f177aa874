package twitch

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestIsRetryableGQLError(t *testing.T) {
	assert.True(t, isRetryableGQLError("service unavailable"))
	assert.True(t, isRetryableGQLError("Service Timeout"))
	assert.True(t, isRetryableGQLError("service error"))
	assert.False(t, isRetryableGQLError("PersistedQueryNotFound"))
	assert.False(t, isRetryableGQLError("unauthorized"))
}

func TestToDrop(t *testing.T) {
	now := time.Now()
	edges := make([]benefitEdge, 2)
	edges[0].Benefit.ID = "b1"
	edges[1].Benefit.ID = "b2"

	tbd := timeBasedDrop{
		ID:                     "d1",
		Name:                   "Emote",
		StartAt:                now,
		EndAt:                  now.Add(time.Hour),
		RequiredMinutesWatched: 30,
		BenefitEdges:           edges,
		Self: &dropSelf{
			CurrentMinutesWatched: 12,
			IsClaimed:             false,
			DropInstanceID:        "inst",
			HasPreconditionsMet:   true,
		},
	}

	d := toDrop("c1", tbd)
	assert.Equal(t, "c1", d.CampaignID)
	assert.Equal(t, []string{"b1", "b2"}, d.BenefitIDs)
	assert.Equal(t, 12, d.CurrentMinutes)
	assert.Equal(t, "inst", d.InstanceID)
	assert.False(t, d.IsClaimed)
}

func TestToDropWithoutSelfAssumesPreconditionsMet(t *testing.T) {
	d := toDrop("c1", timeBasedDrop{ID: "d1"})
	assert.True(t, d.HasPreconditionsMet)
	assert.Zero(t, d.CurrentMinutes)
}

func TestToDropSubGatedIsUnclaimable(t *testing.T) {
	d := toDrop("c1", timeBasedDrop{ID: "d1", RequiredSubs: 1})
	assert.True(t, d.IsClaimed)
}
