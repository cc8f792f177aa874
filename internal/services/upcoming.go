package services

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/samber/do"
)

// ServiceUpcoming waits for campaigns that have not started yet and promotes
// them the moment their window opens, so the scheduler picks them up on its
// next pass.
type ServiceUpcoming struct {
	container *do.Injector
	campaigns *ServiceCampaign
	scheduler *ServiceScheduler
}

func NewServiceUpcoming(container *do.Injector) (*ServiceUpcoming, error) {
	campaigns, err := do.Invoke[*ServiceCampaign](container)
	if err != nil {
		return nil, err
	}

	scheduler, err := do.Invoke[*ServiceScheduler](container)
	if err != nil {
		return nil, err
	}

	return &ServiceUpcoming{container: container, campaigns: campaigns, scheduler: scheduler}, nil
}

// Run sleeps until the nearest campaign start, promoting it on arrival. The
// campaign list itself is refreshed at most every UPCOMING_REFRESH_INTERVAL;
// with nothing upcoming the loop just idles until the next refresh window.
func (service *ServiceUpcoming) Run(ctx context.Context) error {
	for {
		now := time.Now()

		if service.scheduler.LastCampaignScan().Add(UPCOMING_REFRESH_INTERVAL).Before(now) {
			if err := service.campaigns.UpdateCampaigns(ctx); err != nil {
				if isFatal(err) {
					return err
				}
				log.Warn().Err(err).Msg("upcoming campaign refresh failed")
			}
		}

		upcoming := service.campaigns.SortedUpcoming(now)
		if len(upcoming) == 0 {
			if err := sleepCtx(ctx, UPCOMING_REFRESH_INTERVAL); err != nil {
				return err
			}
			continue
		}

		next := upcoming[0]
		wait := time.Until(next.StartAt)
		if wait > UPCOMING_REFRESH_INTERVAL {
			// re-scan before committing to a long sleep
			wait = UPCOMING_REFRESH_INTERVAL
		}
		if wait > 0 {
			if err := sleepCtx(ctx, wait); err != nil {
				return err
			}
			if time.Now().Before(next.StartAt) {
				continue
			}
		}

		priority := service.scheduler.TieBreakPriority(next)
		service.campaigns.SetPriority(next.ID, priority)
		log.Info().Str("campaign", next.Name).Int("priority", priority).Msg("campaign window opened")

		// give the scheduler a fresh look at the now-active campaign
		if err := sleepCtx(ctx, SCHEDULER_TICK_INTERVAL); err != nil {
			return err
		}
	}
}
