package services

import (
	"context"
	"sync/atomic"
	"time"

	"dropminer/internal/interfaces"
	"dropminer/internal/models"

	"github.com/rs/zerolog/log"
	"github.com/samber/do"
)

// ServiceScheduler drives the mining state machine: pick the best active
// campaign, walk its live channels one at a time, accumulate watch minutes
// and claim what ripens. All cross-workflow coordination happens through
// MinerState snapshots.
type ServiceScheduler struct {
	container *do.Injector
	campaigns *ServiceCampaign
	settings  *ServiceSettings
	watcher   interfaces.Watcher
	api       interfaces.TwitchAPI
	pubsub    interfaces.PubSub
	limiter   interfaces.Limiter
	notifier  interfaces.Notifier
	state     *MinerState

	lastCampaignScan atomic.Int64
}

func NewServiceScheduler(container *do.Injector) (*ServiceScheduler, error) {
	campaigns, err := do.Invoke[*ServiceCampaign](container)
	if err != nil {
		return nil, err
	}

	settings, err := do.Invoke[*ServiceSettings](container)
	if err != nil {
		return nil, err
	}

	watcher, err := do.Invoke[interfaces.Watcher](container)
	if err != nil {
		return nil, err
	}

	api, err := do.Invoke[interfaces.TwitchAPI](container)
	if err != nil {
		return nil, err
	}

	pubsub, err := do.Invoke[interfaces.PubSub](container)
	if err != nil {
		return nil, err
	}

	limiter, err := do.Invoke[interfaces.Limiter](container)
	if err != nil {
		return nil, err
	}

	notifier, err := do.Invoke[interfaces.Notifier](container)
	if err != nil {
		return nil, err
	}

	state, err := do.Invoke[*MinerState](container)
	if err != nil {
		return nil, err
	}

	return &ServiceScheduler{
		container: container,
		campaigns: campaigns,
		settings:  settings,
		watcher:   watcher,
		api:       api,
		pubsub:    pubsub,
		limiter:   limiter,
		notifier:  notifier,
		state:     state,
	}, nil
}

func (service *ServiceScheduler) State() *MinerState {
	return service.state
}

func (service *ServiceScheduler) LastCampaignScan() time.Time {
	return time.Unix(service.lastCampaignScan.Load(), 0)
}

// Run loops scheduling ticks until the context ends. Auth failures abort the
// whole run; everything else is retried on the next pass.
func (service *ServiceScheduler) Run(ctx context.Context) error {
	for {
		pause, err := service.tick(ctx)
		if err != nil {
			return err
		}
		if err := sleepCtx(ctx, pause); err != nil {
			return err
		}
	}
}

// tick runs one scheduling pass and returns how long to pause before the
// next one.
func (service *ServiceScheduler) tick(ctx context.Context) (time.Duration, error) {
	now := time.Now()

	if service.campaigns.Mode() == models.ScanModeInitial {
		if err := service.campaigns.UpdateCampaigns(ctx); err != nil {
			return SCHEDULER_TICK_INTERVAL, fatalOrNil(err)
		}
		service.lastCampaignScan.Store(now.Unix())
		if err := service.campaigns.UpdateProgress(ctx); err != nil {
			return SCHEDULER_TICK_INTERVAL, fatalOrNil(err)
		}
		if service.campaigns.HasPriorityActive(now) {
			service.campaigns.SetMode(models.ScanModePriorityOnly)
		} else {
			service.campaigns.SetMode(models.ScanModeAll)
		}
	}

	active := service.campaigns.SortedActive(now)
	if len(active) == 0 {
		switch service.campaigns.Mode() {
		case models.ScanModePriorityOnly:
			// widen the net before giving up
			service.campaigns.SetMode(models.ScanModeAll)
			return SCHEDULER_TICK_INTERVAL, nil
		default:
			service.campaigns.SetMode(models.ScanModeInitial)
			log.Info().Msg("nothing to mine, sleeping")
			return SCHEDULER_IDLE_SLEEP, nil
		}
	}

	campaign := active[0]
	service.state.SetCampaign(&campaign)

	if err := service.campaigns.UpdateProgress(ctx); err != nil {
		return SCHEDULER_TICK_INTERVAL, fatalOrNil(err)
	}
	drops, err := service.campaigns.DropsForCampaign(ctx, campaign.ID)
	if err != nil {
		return SCHEDULER_TICK_INTERVAL, fatalOrNil(err)
	}
	if len(drops) == 0 {
		service.campaigns.SetOffline(campaign.ID, true)
		service.state.Reset()
		return SCHEDULER_TICK_INTERVAL, nil
	}
	if campaign.IsExpired(now) {
		service.campaigns.SetMode(models.ScanModeInitial)
		service.state.Reset()
		return SCHEDULER_TICK_INTERVAL, nil
	}

	drop := drops[0]
	service.state.SetDrop(&drop)

	if !drop.HasPreconditionsMet {
		log.Info().Str("campaign", campaign.Name).Str("drop", drop.Name).Msg("drop gated by preconditions")
		service.campaigns.SetOffline(campaign.ID, true)
		service.state.Reset()
		return SCHEDULER_TICK_INTERVAL, nil
	}

	if drop.MinutesWatchedMet() {
		if service.settings.Get().IsClaimDrops {
			if err := service.runClaim(ctx); err != nil && isFatal(err) {
				return SCHEDULER_TICK_INTERVAL, err
			}
		} else {
			service.state.SetCampaign(nil)
		}
		return SCHEDULER_TICK_INTERVAL, nil
	}

	if err := service.mineCampaign(ctx, campaign); err != nil {
		if isFatal(err) {
			return SCHEDULER_TICK_INTERVAL, err
		}
		log.Debug().Err(err).Str("campaign", campaign.Name).Msg("campaign pass ended")
	}
	return SCHEDULER_TICK_INTERVAL, nil
}

// mineCampaign walks the campaign's live channels strictly one at a time.
// Preemption by a better campaign aborts the walk; a bad channel just moves
// on to the next.
func (service *ServiceScheduler) mineCampaign(ctx context.Context, campaign models.Campaign) error {
	channels, err := service.campaigns.ChannelsForCampaign(ctx, campaign)
	if err != nil {
		return err
	}
	if len(channels) == 0 {
		service.campaigns.SetOffline(campaign.ID, true)
		service.state.Reset()
		return nil
	}

	for _, channel := range channels {
		err := service.watchChannel(ctx, campaign, channel)
		switch {
		case err == nil:
			return nil
		case ctx.Err() != nil:
			return ctx.Err()
		case isFatal(err):
			return err
		case err == ErrPreempted:
			service.state.Reset()
			return nil
		default:
			// channel abandoned; try the next one
			continue
		}
	}
	return nil
}

// watchChannel owns the channel's topic subscriptions for its whole
// lifetime; every exit path releases them.
func (service *ServiceScheduler) watchChannel(ctx context.Context, campaign models.Campaign, channel models.Channel) error {
	// the directory listing may be minutes stale by the time we get here
	live, err := service.api.ChannelLive(ctx, channel.Login)
	if err != nil {
		return err
	}
	if !live.IsOnline {
		return ErrChannelAbandoned
	}
	channel.CurrentSid = live.CurrentSid

	service.state.SetChannel(&channel)
	service.state.ResetMinutes()

	for _, topic := range models.ChannelTopics {
		if err := service.pubsub.Listen(ctx, topic, channel.ID); err != nil {
			return err
		}
	}
	defer func() {
		for _, topic := range models.ChannelTopics {
			//nolint:errcheck
			service.pubsub.Unlisten(context.WithoutCancel(ctx), topic, channel.ID)
		}
	}()

	if service.settings.Get().IsClaimPoints {
		service.claimPendingPoints(ctx, channel.Login)
	}

	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		// the socket consumer may swap or drop the channel at any time
		current := service.state.Channel()
		if current == nil || current.ID != channel.ID || !current.IsOnline {
			return ErrChannelAbandoned
		}

		if service.state.Claiming() {
			if err := sleepCtx(ctx, SCHEDULER_TICK_INTERVAL); err != nil {
				return err
			}
			continue
		}

		if contender, ok := service.findPreemptor(campaign); ok {
			log.Info().Str("current", campaign.Name).Str("contender", contender.Name).Msg("preempted")
			return ErrPreempted
		}

		result := service.watcher.Watch(ctx, current)
		if !result.Success {
			return ErrChannelAbandoned
		}

		if result.HlsURL != "" && result.HlsURL != current.HlsURL {
			refreshed := *current
			refreshed.HlsURL = result.HlsURL
			service.state.SetChannel(&refreshed)
		}

		minutes := service.state.AddMinute()
		service.state.UpdateDrop(func(d *models.Drop) {
			d.CurrentMinutes++
		})

		drop := service.state.Drop()
		if drop == nil {
			return nil
		}
		log.Info().
			Str("channel", current.Login).
			Str("drop", drop.Name).
			Int("minutes", drop.CurrentMinutes).
			Int("required", drop.RequiredMinutes).
			Msg("minute watched")

		if drop.MinutesWatchedMet() {
			return nil
		}

		if service.state.TickRefresh() {
			if err := service.reconcileProgress(ctx, drop.ID, minutes); err != nil {
				return err
			}
		}

		if err := sleepCtx(ctx, WATCH_TICK_INTERVAL); err != nil {
			return err
		}
	}
}

// reconcileProgress forces a server-side progress read and compares it with
// the local minute counter. A regression of BROKEN_MINUTES_GAP or more means
// the stream loops without crediting time; the channel is abandoned.
func (service *ServiceScheduler) reconcileProgress(ctx context.Context, dropID string, localMinutes int) error {
	if err := service.campaigns.UpdateProgress(ctx); err != nil {
		if isFatal(err) {
			return err
		}
		log.Warn().Err(err).Msg("forced progress refresh failed")
		return nil
	}

	server := service.campaigns.ProgressDrop(dropID)
	if server == nil {
		// claimed or filtered away server-side
		return ErrChannelAbandoned
	}

	if localMinutes-server.CurrentMinutes >= BROKEN_MINUTES_GAP {
		log.Warn().
			Int("local", localMinutes).
			Int("server", server.CurrentMinutes).
			Msg("watched minutes never credited, channel looks broken")
		if ch := service.state.Channel(); ch != nil {
			broken := *ch
			broken.IsOnline = false
			service.state.SetChannel(&broken)
		}
		return ErrChannelAbandoned
	}

	service.state.SetDrop(server)
	return nil
}

// findPreemptor reports whether a different-game campaign now outranks the
// current one, either by raw priority or by a tighter deadline than the
// drop we are working on.
func (service *ServiceScheduler) findPreemptor(current models.Campaign) (models.Campaign, bool) {
	active := service.campaigns.SortedActive(time.Now())
	if len(active) == 0 {
		return models.Campaign{}, false
	}
	contender := active[0]
	if contender.ID == current.ID || contender.Game.ID == current.Game.ID {
		return models.Campaign{}, false
	}

	drop := service.state.Drop()
	if contender.Priority > current.Priority {
		return contender, true
	}
	if drop != nil && !drop.EndAt.Before(contender.EndAt) {
		return contender, true
	}
	return models.Campaign{}, false
}

// claimPendingPoints collects an already-available community-points reward,
// throttled to one claim per channel per window.
func (service *ServiceScheduler) claimPendingPoints(ctx context.Context, login string) {
	points, err := service.api.ChannelPoints(ctx, login)
	if err != nil {
		log.Debug().Err(err).Str("channel", login).Msg("points lookup failed")
		return
	}
	if points.ClaimID == "" {
		return
	}
	if err := service.limiter.Allow(ctx, LimitKeyPointsClaim(points.ChannelID), PointsClaimLimit); err != nil {
		return
	}
	if err := service.api.ClaimPoints(ctx, points.ChannelID, points.ClaimID); err != nil {
		log.Warn().Err(err).Str("channel", login).Msg("points claim failed")
		return
	}
	log.Info().Str("channel", login).Int("balance", points.Balance).Msg("points claimed")
}

// TieBreakPriority computes the priority a newly eligible campaign gets
// relative to what the scheduler currently works on. A campaign for another
// game whose deadline is at or before the current drop's deadline jumps the
// queue; everything else starts at zero.
func (service *ServiceScheduler) TieBreakPriority(candidate models.Campaign) int {
	current := service.state.Campaign()
	drop := service.state.Drop()
	if current == nil || drop == nil {
		return 0
	}
	if current.Game.ID == candidate.Game.ID {
		return 0
	}
	if drop.EndAt.Before(candidate.EndAt) {
		return 0
	}
	return current.Priority + 1
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
