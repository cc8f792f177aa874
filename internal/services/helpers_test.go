package services

import (
	"context"

	"dropminer/internal/models"

	"github.com/redis/go-redis/v9"
)

// stubAPI lets each test wire just the calls it cares about; everything else
// returns empty values.
type stubAPI struct {
	dashboard   func(ctx context.Context) ([]models.Campaign, error)
	inventory   func(ctx context.Context) (*models.Inventory, error)
	details     func(ctx context.Context, campaignID, channelLogin string) (*models.CampaignDetail, error)
	claimDrops  func(ctx context.Context, instanceID string) error
	claimPoints func(ctx context.Context, channelID, claimID string) error
}

func (s *stubAPI) DropsDashboard(ctx context.Context) ([]models.Campaign, error) {
	if s.dashboard != nil {
		return s.dashboard(ctx)
	}
	return nil, nil
}

func (s *stubAPI) Inventory(ctx context.Context) (*models.Inventory, error) {
	if s.inventory != nil {
		return s.inventory(ctx)
	}
	return &models.Inventory{}, nil
}

func (s *stubAPI) CampaignDetails(ctx context.Context, campaignID, channelLogin string) (*models.CampaignDetail, error) {
	if s.details != nil {
		return s.details(ctx, campaignID, channelLogin)
	}
	return &models.CampaignDetail{Exists: true, Available: true}, nil
}

func (s *stubAPI) GameDirectory(context.Context, string) ([]models.Channel, error) {
	return nil, nil
}

func (s *stubAPI) ChannelStreams(context.Context, []string) ([]models.Channel, error) {
	return nil, nil
}

func (s *stubAPI) ChannelPoints(context.Context, string) (*models.PointsContext, error) {
	return &models.PointsContext{}, nil
}

func (s *stubAPI) ChannelLive(context.Context, string) (*models.Channel, error) {
	return &models.Channel{}, nil
}

func (s *stubAPI) HelixStreams(context.Context, string) (*models.Channel, error) {
	return &models.Channel{}, nil
}

func (s *stubAPI) ClaimDrops(ctx context.Context, instanceID string) error {
	if s.claimDrops != nil {
		return s.claimDrops(ctx, instanceID)
	}
	return nil
}

func (s *stubAPI) ClaimPoints(ctx context.Context, channelID, claimID string) error {
	if s.claimPoints != nil {
		return s.claimPoints(ctx, channelID, claimID)
	}
	return nil
}

func (s *stubAPI) ClaimMoments(context.Context, string) error { return nil }

func (s *stubAPI) PlaybackToken(context.Context, string) (*models.PlaybackToken, error) {
	return &models.PlaybackToken{}, nil
}

func newTestSettings(s *models.Settings) *ServiceSettings {
	svc := &ServiceSettings{userID: "u1", redisDB: deadRedis()}
	if s == nil {
		s = models.DefaultSettings()
	}
	svc.current.Store(s)
	return svc
}

// deadRedis fails every command instead of panicking, which is all the
// write-through paths need from a test double.
func deadRedis() redis.UniversalClient {
	return redis.NewClient(&redis.Options{Addr: "127.0.0.1:1", MaxRetries: -1})
}

func newTestCampaignService(api *stubAPI, settings *ServiceSettings) *ServiceCampaign {
	svc := &ServiceCampaign{
		api:      api,
		settings: settings,
		redisDB:  deadRedis(),
	}
	empty := map[string]models.Campaign{}
	svc.campaigns.Store(&empty)
	svc.progress.Store(&[]models.Drop{})
	svc.rewards.Store(&[]models.Reward{})
	return svc
}
