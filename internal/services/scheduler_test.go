package services

import (
	"context"
	"testing"
	"time"

	"dropminer/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestScheduler(api *stubAPI, campaigns *ServiceCampaign) *ServiceScheduler {
	return &ServiceScheduler{
		campaigns: campaigns,
		settings:  newTestSettings(nil),
		api:       api,
		notifier:  NotifierNoop{},
		state:     NewMinerState(),
	}
}

func TestTieBreakPriority(t *testing.T) {
	now := time.Now()
	current := models.Campaign{ID: "cur", Game: models.Game{ID: "gA"}, Priority: 3}

	tests := []struct {
		name          string
		currentDrop   *models.Drop
		candidateGame string
		candidateEnd  time.Time
		want          int
	}{
		{"no current drop", nil, "gB", now.Add(time.Hour), 0},
		{"same game", &models.Drop{EndAt: now.Add(2 * time.Hour)}, "gA", now.Add(time.Hour), 0},
		{"candidate ends later", &models.Drop{EndAt: now.Add(time.Hour)}, "gB", now.Add(2 * time.Hour), 0},
		{"candidate ends sooner", &models.Drop{EndAt: now.Add(2 * time.Hour)}, "gB", now.Add(time.Hour), 4},
		{"equal deadlines", &models.Drop{EndAt: now.Add(time.Hour)}, "gB", now.Add(time.Hour), 4},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := newTestScheduler(&stubAPI{}, newTestCampaignService(&stubAPI{}, newTestSettings(nil)))
			svc.state.SetCampaign(&current)
			svc.state.SetDrop(tt.currentDrop)

			candidate := models.Campaign{ID: "cand", Game: models.Game{ID: tt.candidateGame}, EndAt: tt.candidateEnd}
			assert.Equal(t, tt.want, svc.TieBreakPriority(candidate))
		})
	}
}

func TestFindPreemptor(t *testing.T) {
	now := time.Now()
	campaigns := newTestCampaignService(&stubAPI{}, newTestSettings(nil))
	svc := newTestScheduler(&stubAPI{}, campaigns)

	current := models.Campaign{ID: "cur", Game: models.Game{ID: "gA"}, Priority: 1, StartAt: now.Add(-time.Hour), EndAt: now.Add(4 * time.Hour)}
	svc.state.SetCampaign(&current)
	svc.state.SetDrop(&models.Drop{ID: "d", EndAt: now.Add(4 * time.Hour)})

	// same campaign on top: no preemption
	m := map[string]models.Campaign{"cur": current}
	campaigns.campaigns.Store(&m)
	_, ok := svc.findPreemptor(current)
	assert.False(t, ok)

	// higher priority for a different game wins
	rival := models.Campaign{ID: "rival", Game: models.Game{ID: "gB"}, Priority: 9, StartAt: now.Add(-time.Hour), EndAt: now.Add(6 * time.Hour)}
	m2 := map[string]models.Campaign{"cur": current, "rival": rival}
	campaigns.campaigns.Store(&m2)
	got, ok := svc.findPreemptor(current)
	require.True(t, ok)
	assert.Equal(t, "rival", got.ID)

	// same game never preempts regardless of priority
	sameGame := models.Campaign{ID: "sg", Game: models.Game{ID: "gA"}, Priority: 9, StartAt: now.Add(-time.Hour), EndAt: now.Add(time.Hour)}
	m3 := map[string]models.Campaign{"cur": current, "sg": sameGame}
	campaigns.campaigns.Store(&m3)
	_, ok = svc.findPreemptor(current)
	assert.False(t, ok)
}

func TestClaimSuccess(t *testing.T) {
	now := time.Now()
	var claimedInstance string
	api := &stubAPI{
		claimDrops: func(_ context.Context, instanceID string) error {
			claimedInstance = instanceID
			return nil
		},
	}
	campaigns := newTestCampaignService(api, newTestSettings(nil))
	svc := newTestScheduler(api, campaigns)

	drop := models.Drop{
		ID:              "d1",
		Name:            "Emote",
		CampaignID:      "c1",
		BenefitIDs:      []string{"b1", "b2"},
		RequiredMinutes: 30,
		CurrentMinutes:  31,
		InstanceID:      "abc",
		StartAt:         now.Add(-time.Hour),
		EndAt:           now.Add(24 * time.Hour),
	}
	progress := []models.Drop{drop}
	campaigns.progress.Store(&progress)
	svc.state.SetDrop(&drop)

	require.NoError(t, svc.runClaim(context.Background()))

	assert.Equal(t, "abc", claimedInstance)
	assert.Empty(t, campaigns.Progress(), "claimed drop leaves the progress list")
	assert.Nil(t, svc.state.Drop())
	assert.False(t, svc.state.Claiming())

	rewards := campaigns.Rewards()
	require.Len(t, rewards, 2)
	assert.Equal(t, "b1", rewards[0].ID)
	assert.WithinDuration(t, now, rewards[0].LastAwardedAt, time.Minute)
}

func TestClaimInsufficientMinutesResetsBrokenChannel(t *testing.T) {
	campaigns := newTestCampaignService(&stubAPI{}, newTestSettings(nil))
	svc := newTestScheduler(&stubAPI{}, campaigns)

	svc.state.SetChannel(&models.Channel{ID: "ch", IsOnline: true})
	svc.state.SetDrop(&models.Drop{ID: "d1", RequiredMinutes: 40, CurrentMinutes: 15})
	for i := 0; i < 41; i++ {
		svc.state.AddMinute()
	}

	require.NoError(t, svc.runClaim(context.Background()))

	// 41 local vs 15 credited: the whole channel state is suspect
	assert.Nil(t, svc.state.Channel())
	assert.Nil(t, svc.state.Drop())
	assert.Equal(t, 0, svc.state.LocalMinutes())
}

func TestReconcileProgressDetectsBrokenChannel(t *testing.T) {
	now := time.Now()
	api := &stubAPI{
		inventory: func(context.Context) (*models.Inventory, error) {
			return &models.Inventory{
				Campaigns: []models.CampaignProgress{{
					CampaignID: "c1",
					Drops: []models.Drop{{
						ID:              "d1",
						RequiredMinutes: 60,
						CurrentMinutes:  15,
						StartAt:         now.Add(-time.Hour),
						EndAt:           now.Add(24 * time.Hour),
					}},
				}},
			}, nil
		},
	}
	campaigns := newTestCampaignService(api, newTestSettings(nil))
	svc := newTestScheduler(api, campaigns)
	svc.state.SetChannel(&models.Channel{ID: "ch", Login: "streamer", IsOnline: true})

	err := svc.reconcileProgress(context.Background(), "d1", 41)
	assert.ErrorIs(t, err, ErrChannelAbandoned)
	require.NotNil(t, svc.state.Channel())
	assert.False(t, svc.state.Channel().IsOnline)
}

func TestReconcileProgressAdoptsServerCount(t *testing.T) {
	now := time.Now()
	api := &stubAPI{
		inventory: func(context.Context) (*models.Inventory, error) {
			return &models.Inventory{
				Campaigns: []models.CampaignProgress{{
					CampaignID: "c1",
					Drops: []models.Drop{{
						ID:              "d1",
						RequiredMinutes: 60,
						CurrentMinutes:  12,
						StartAt:         now.Add(-time.Hour),
						EndAt:           now.Add(24 * time.Hour),
					}},
				}},
			}, nil
		},
	}
	campaigns := newTestCampaignService(api, newTestSettings(nil))
	svc := newTestScheduler(api, campaigns)
	svc.state.SetDrop(&models.Drop{ID: "d1", CurrentMinutes: 10})

	require.NoError(t, svc.reconcileProgress(context.Background(), "d1", 13))
	require.NotNil(t, svc.state.Drop())
	assert.Equal(t, 12, svc.state.Drop().CurrentMinutes)
}
