package services

import (
	"context"
	"math/rand"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/samber/do"
)

// ServiceOffline rechecks campaigns the scheduler shelved for having no live
// channels. When a channel reappears the campaign is unshelved with a
// priority that respects whatever the scheduler currently works on.
type ServiceOffline struct {
	container *do.Injector
	campaigns *ServiceCampaign
	scheduler *ServiceScheduler
}

func NewServiceOffline(container *do.Injector) (*ServiceOffline, error) {
	campaigns, err := do.Invoke[*ServiceCampaign](container)
	if err != nil {
		return nil, err
	}

	scheduler, err := do.Invoke[*ServiceScheduler](container)
	if err != nil {
		return nil, err
	}

	return &ServiceOffline{container: container, campaigns: campaigns, scheduler: scheduler}, nil
}

// Run polls on the offline interval with a small random jitter so the
// recheck never phase-locks with the scheduler ticks.
func (service *ServiceOffline) Run(ctx context.Context) error {
	for {
		jitter := time.Duration(rand.Int63n(int64(OFFLINE_CHECK_JITTER)))
		if err := sleepCtx(ctx, OFFLINE_CHECK_INTERVAL+jitter); err != nil {
			return err
		}
		if err := service.RunOnce(ctx); err != nil {
			if isFatal(err) {
				return err
			}
			log.Warn().Err(err).Msg("offline recheck failed")
		}
	}
}

// RunOnce walks the offline campaigns, highest priority first. Expired ones
// are discarded; the rest get their drops and channels refreshed.
func (service *ServiceOffline) RunOnce(ctx context.Context) error {
	now := time.Now()
	for _, campaign := range service.campaigns.OfflineCampaigns() {
		if err := ctx.Err(); err != nil {
			return err
		}

		if campaign.IsExpired(now) {
			service.campaigns.RemoveCampaign(campaign.ID)
			continue
		}

		drops, err := service.campaigns.DropsForCampaign(ctx, campaign.ID)
		if err != nil {
			if isFatal(err) {
				return err
			}
			log.Debug().Err(err).Str("campaign", campaign.Name).Msg("offline drop refresh failed")
			continue
		}
		if len(drops) == 0 {
			continue
		}

		channels, err := service.campaigns.ChannelsForCampaign(ctx, campaign)
		if err != nil {
			if isFatal(err) {
				return err
			}
			continue
		}
		if len(channels) == 0 {
			continue
		}

		priority := service.scheduler.TieBreakPriority(campaign)
		service.campaigns.SetOffline(campaign.ID, false)
		service.campaigns.SetPriority(campaign.ID, priority)
		log.Info().Str("campaign", campaign.Name).Int("priority", priority).Msg("campaign back online")
	}
	return nil
}
