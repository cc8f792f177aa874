package interfaces

import (
	"context"

	"dropminer/internal/models"

	"github.com/go-redis/redis_rate/v10"
)

type Limiter interface {
	Allow(ctx context.Context, key string, limit redis_rate.Limit) error
}

// TwitchAPI is the remote GraphQL surface the workflows consume. Transport
// retries and persisted-query plumbing live behind it; errors come back
// already categorized via errorx (Validation, Service, Authn, NotExist).
type TwitchAPI interface {
	DropsDashboard(ctx context.Context) ([]models.Campaign, error)
	Inventory(ctx context.Context) (*models.Inventory, error)
	CampaignDetails(ctx context.Context, campaignID string, channelLogin string) (*models.CampaignDetail, error)
	GameDirectory(ctx context.Context, slug string) ([]models.Channel, error)
	ChannelStreams(ctx context.Context, logins []string) ([]models.Channel, error)
	ChannelPoints(ctx context.Context, login string) (*models.PointsContext, error)
	ChannelLive(ctx context.Context, login string) (*models.Channel, error)
	HelixStreams(ctx context.Context, userID string) (*models.Channel, error)
	ClaimDrops(ctx context.Context, instanceID string) error
	ClaimPoints(ctx context.Context, channelID, claimID string) error
	ClaimMoments(ctx context.Context, momentID string) error
	PlaybackToken(ctx context.Context, login string) (*models.PlaybackToken, error)
}

// PubSub is the push-notification socket. Listen/Unlisten are idempotent per
// (topic, id) pair; Messages never closes while the socket workflow runs and
// survives reconnects transparently.
type PubSub interface {
	Listen(ctx context.Context, topic, id string) error
	Unlisten(ctx context.Context, topic, id string) error
	Messages() <-chan models.PubSubMessage
}

// Watcher simulates one minute of viewership on a channel. It never fails
// hard; every error degrades to Success=false.
type Watcher interface {
	Watch(ctx context.Context, channel *models.Channel) models.WatchResult
}

// Notifier pushes out-of-band alerts (claims, fatal shutdowns). A nil
// implementation is a no-op.
type Notifier interface {
	Notify(ctx context.Context, text string)
}
