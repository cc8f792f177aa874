package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"dropminer/internal/models"
	"dropminer/internal/twitch"

	"github.com/rs/zerolog/log"
)

// runClaim collects the current drop's award. Bounded retry: the platform
// issues the award instance asynchronously, so missing-instance attempts
// wait a full interval before the next look. The claiming flag keeps the
// watch loop off the drop while an attempt is in flight.
func (service *ServiceScheduler) runClaim(ctx context.Context) error {
	initial := service.state.Drop()
	if initial == nil {
		return nil
	}

	service.state.SetClaiming(true)
	defer service.state.SetClaiming(false)

	for attempt := 0; attempt < CLAIM_MAX_ATTEMPTS; attempt++ {
		if attempt > 0 {
			if err := sleepCtx(ctx, CLAIM_RETRY_INTERVAL); err != nil {
				return err
			}
			if err := service.campaigns.UpdateProgress(ctx); err != nil {
				if isFatal(err) {
					return err
				}
				log.Warn().Err(err).Msg("claim refresh failed")
				continue
			}
			server := service.campaigns.ProgressDrop(initial.ID)
			if server == nil {
				// already claimed, most likely via a push event
				service.state.SetDrop(nil)
				return nil
			}
			service.state.SetDrop(server)
		}

		drop := service.state.Drop()
		if drop == nil {
			return nil
		}

		if !drop.MinutesWatchedMet() {
			// the server never credited what we watched locally
			if service.state.LocalMinutes()-drop.CurrentMinutes >= BROKEN_MINUTES_GAP {
				log.Warn().Str("drop", drop.Name).Msg("claim aborted, watch minutes never credited")
				service.state.Reset()
			} else {
				service.state.SetChannel(nil)
			}
			return nil
		}

		if drop.InstanceID == "" {
			log.Debug().Str("drop", drop.Name).Int("attempt", attempt+1).Msg("award instance not issued yet")
			continue
		}

		if err := service.api.ClaimDrops(ctx, drop.InstanceID); err != nil {
			if isFatal(err) {
				return err
			}
			log.Warn().Err(err).Str("drop", drop.Name).Msg("claim attempt failed")
			continue
		}

		service.finishClaim(ctx, *drop)
		return nil
	}

	log.Warn().Str("drop", initial.Name).Msg("claim attempts exhausted, parking drop")
	service.campaigns.ParkDrop(initial.ID)
	service.state.SetDrop(nil)
	return ErrClaimExhausted
}

func (service *ServiceScheduler) finishClaim(ctx context.Context, drop models.Drop) {
	now := time.Now()
	rewards := make([]models.Reward, 0, len(drop.BenefitIDs))
	for _, id := range drop.BenefitIDs {
		rewards = append(rewards, models.Reward{ID: id, LastAwardedAt: now})
	}

	service.campaigns.RemoveProgressDrop(drop.ID)
	service.campaigns.AddRewards(ctx, rewards)
	service.state.SetDrop(nil)
	service.state.ResetMinutes()

	log.Info().Str("drop", drop.Name).Str("campaign", drop.CampaignID).Msg("drop claimed")
	service.notifier.Notify(ctx, fmt.Sprintf("Claimed drop %s", drop.Name))
}

func isFatal(err error) bool {
	return errors.Is(err, twitch.ErrUnauthorized)
}

// fatalOrNil keeps auth failures fatal while downgrading everything else to
// a logged skip of the current pass.
func fatalOrNil(err error) error {
	if isFatal(err) {
		return err
	}
	log.Warn().Err(err).Msg("scheduling pass failed")
	return nil
}
