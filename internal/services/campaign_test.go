package services

import (
	"context"
	"testing"
	"time"

	"dropminer/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFilterCampaignDrops(t *testing.T) {
	now := time.Now()
	window := func(d models.Drop) models.Drop {
		d.StartAt = now.Add(-time.Hour)
		d.EndAt = now.Add(24 * time.Hour)
		return d
	}

	drops := []models.Drop{
		window(models.Drop{ID: "claimed", RequiredMinutes: 10, IsClaimed: true}),
		window(models.Drop{ID: "subgated", RequiredMinutes: 15, RequiredSubs: 1}),
		window(models.Drop{ID: "granted", RequiredMinutes: 20, BenefitIDs: []string{"b1"}}),
		window(models.Drop{ID: "keep-late", RequiredMinutes: 60}),
		window(models.Drop{ID: "keep-early", RequiredMinutes: 30}),
		{ID: "expired", RequiredMinutes: 5, StartAt: now.Add(-48 * time.Hour), EndAt: now.Add(-time.Hour)},
		{ID: "upcoming-instance", RequiredMinutes: 40, InstanceID: "inst", StartAt: now.Add(time.Hour), EndAt: now.Add(48 * time.Hour)},
		{ID: "upcoming-bare", RequiredMinutes: 45, StartAt: now.Add(time.Hour), EndAt: now.Add(48 * time.Hour)},
	}
	rewards := []models.Reward{{ID: "b1", LastAwardedAt: now.Add(-time.Hour)}}

	got := filterCampaignDrops(drops, rewards, true, now, true)
	ids := dropIDs(got)
	assert.Equal(t, []string{"keep-early", "upcoming-instance", "keep-late"}, ids)

	// the detail path ignores upcoming drops even with an instance
	got = filterCampaignDrops(drops, rewards, true, now, false)
	assert.Equal(t, []string{"keep-early", "keep-late"}, dropIDs(got))
}

func TestFilterCampaignDropsClaimDisabled(t *testing.T) {
	now := time.Now()
	met := models.Drop{
		ID:              "met",
		RequiredMinutes: 30,
		CurrentMinutes:  31,
		StartAt:         now.Add(-time.Hour),
		EndAt:           now.Add(24 * time.Hour),
	}

	assert.Len(t, filterCampaignDrops([]models.Drop{met}, nil, true, now, false), 1)
	assert.Empty(t, filterCampaignDrops([]models.Drop{met}, nil, false, now, false))
}

func TestUpdateProgressIdempotent(t *testing.T) {
	now := time.Now()
	api := &stubAPI{
		inventory: func(context.Context) (*models.Inventory, error) {
			return &models.Inventory{
				Campaigns: []models.CampaignProgress{{
					CampaignID: "c1",
					Drops: []models.Drop{
						{ID: "d1", Name: "Emote", RequiredMinutes: 30, StartAt: now.Add(-time.Hour), EndAt: now.Add(24 * time.Hour)},
						{ID: "d2", Name: "Badge", RequiredMinutes: 60, StartAt: now.Add(-time.Hour), EndAt: now.Add(24 * time.Hour)},
					},
				}},
			}, nil
		},
	}
	svc := newTestCampaignService(api, newTestSettings(nil))

	require.NoError(t, svc.UpdateProgress(context.Background()))
	first := svc.Progress()
	require.Len(t, first, 2)
	assert.Equal(t, "1/2, Emote", first[0].Name)

	require.NoError(t, svc.UpdateProgress(context.Background()))
	second := svc.Progress()
	assert.Equal(t, dropIDs(first), dropIDs(second))
	assert.Len(t, second, 2)
}

func TestUpdateCampaignsExclusionAndUpsert(t *testing.T) {
	now := time.Now()
	api := &stubAPI{
		dashboard: func(context.Context) ([]models.Campaign, error) {
			return []models.Campaign{
				{ID: "c1", Name: "Wanted", Game: models.Game{ID: "g1", DisplayName: "Rust"}, StartAt: now.Add(-time.Hour), EndAt: now.Add(time.Hour)},
				{ID: "c2", Name: "Unwanted", Game: models.Game{ID: "g2", DisplayName: "Chess"}, StartAt: now.Add(-time.Hour), EndAt: now.Add(time.Hour)},
			}, nil
		},
	}
	settings := newTestSettings(&models.Settings{ExclusionList: []string{"Chess"}})
	svc := newTestCampaignService(api, settings)

	// detail-only fields on a known campaign must survive the refresh
	seeded := map[string]models.Campaign{
		"c1": {ID: "c1", Name: "Wanted", Game: models.Game{ID: "g1", DisplayName: "Rust", Slug: "rust"}, Priority: 7, AllowChannels: []string{"streamer"}},
	}
	svc.campaigns.Store(&seeded)

	require.NoError(t, svc.UpdateCampaigns(context.Background()))

	got := svc.Campaigns()
	require.Len(t, got, 1)
	assert.Equal(t, 7, got["c1"].Priority)
	assert.Equal(t, "rust", got["c1"].Game.Slug)
	assert.Equal(t, []string{"streamer"}, got["c1"].AllowChannels)

	upcoming := svc.SortedUpcoming(now.Add(-2 * time.Hour))
	require.Len(t, upcoming, 1, "excluded games never surface as upcoming")
	assert.Equal(t, "c1", upcoming[0].ID)
}

func TestSortedActiveGroupsByGame(t *testing.T) {
	now := time.Now()
	svc := newTestCampaignService(&stubAPI{}, newTestSettings(nil))

	campaigns := map[string]models.Campaign{
		"a": {ID: "a", Game: models.Game{ID: "g1"}, StartAt: now.Add(-3 * time.Hour), EndAt: now.Add(2 * time.Hour)},
		"b": {ID: "b", Game: models.Game{ID: "g1"}, StartAt: now.Add(-1 * time.Hour), EndAt: now.Add(1 * time.Hour)},
		"c": {ID: "c", Game: models.Game{ID: "g2"}, StartAt: now.Add(-2 * time.Hour), EndAt: now.Add(3 * time.Hour), Priority: 5},
		"d": {ID: "d", Game: models.Game{ID: "g3"}, StartAt: now.Add(-2 * time.Hour), EndAt: now.Add(-time.Hour)},
		"e": {ID: "e", Game: models.Game{ID: "g4"}, StartAt: now.Add(-2 * time.Hour), EndAt: now.Add(4 * time.Hour), IsOffline: true},
	}
	svc.campaigns.Store(&campaigns)

	got := svc.SortedActive(now)

	seen := map[string]bool{}
	for _, c := range got {
		assert.False(t, seen[c.Game.ID], "game %s appears twice", c.Game.ID)
		seen[c.Game.ID] = true
		assert.False(t, c.IsOffline)
		assert.False(t, c.IsExpired(now))
	}

	// priority outranks the end-date ordering
	require.NotEmpty(t, got)
	assert.Equal(t, "c", got[0].ID)
	// for the duplicated game only the earliest-starting campaign survives
	assert.Equal(t, "a", got[1].ID)
}

func TestDropsForCampaignRemovesVanished(t *testing.T) {
	api := &stubAPI{
		details: func(_ context.Context, campaignID, _ string) (*models.CampaignDetail, error) {
			return &models.CampaignDetail{Exists: false}, nil
		},
	}
	svc := newTestCampaignService(api, newTestSettings(nil))
	campaigns := map[string]models.Campaign{"gone": {ID: "gone"}}
	svc.campaigns.Store(&campaigns)

	drops, err := svc.DropsForCampaign(context.Background(), "gone")
	require.NoError(t, err)
	assert.Empty(t, drops)
	assert.Empty(t, svc.Campaigns())
}

func TestSortedActivePriorityOnlyMode(t *testing.T) {
	now := time.Now()
	settings := newTestSettings(&models.Settings{PriorityList: []string{"Rust"}})
	svc := newTestCampaignService(&stubAPI{}, settings)
	svc.SetMode(models.ScanModePriorityOnly)

	campaigns := map[string]models.Campaign{
		"p": {ID: "p", Game: models.Game{ID: "g1", DisplayName: "Rust"}, StartAt: now.Add(-time.Hour), EndAt: now.Add(time.Hour)},
		"o": {ID: "o", Game: models.Game{ID: "g2", DisplayName: "Chess"}, StartAt: now.Add(-time.Hour), EndAt: now.Add(time.Hour)},
	}
	svc.campaigns.Store(&campaigns)

	got := svc.SortedActive(now)
	require.Len(t, got, 1)
	assert.Equal(t, "p", got[0].ID)

	svc.SetMode(models.ScanModeAll)
	assert.Len(t, svc.SortedActive(now), 2)
}

func TestParkDrop(t *testing.T) {
	svc := newTestCampaignService(&stubAPI{}, newTestSettings(nil))
	progress := []models.Drop{{ID: "d1", HasPreconditionsMet: true}, {ID: "d2", HasPreconditionsMet: true}}
	svc.progress.Store(&progress)

	svc.ParkDrop("d1")

	got := svc.Progress()
	require.Len(t, got, 2)
	assert.False(t, got[0].HasPreconditionsMet)
	assert.True(t, got[1].HasPreconditionsMet)
}

func dropIDs(drops []models.Drop) []string {
	ids := make([]string, 0, len(drops))
	for _, d := range drops {
		ids = append(ids, d.ID)
	}
	return ids
}
