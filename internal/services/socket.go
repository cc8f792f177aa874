package services

import (
	"context"
	"encoding/json"

	"dropminer/internal/interfaces"
	"dropminer/internal/models"

	"github.com/rs/zerolog/log"
	"github.com/samber/do"
)

// ServiceSocket consumes the push stream and folds server-side facts into
// the shared state. It only reacts to the user's own topics and whatever
// channel the scheduler currently watches; everything else is noise.
type ServiceSocket struct {
	container *do.Injector
	pubsub    interfaces.PubSub
	api       interfaces.TwitchAPI
	campaigns *ServiceCampaign
	settings  *ServiceSettings
	limiter   interfaces.Limiter
	state     *MinerState
	userID    string
}

func NewServiceSocket(container *do.Injector) (*ServiceSocket, error) {
	pubsub, err := do.Invoke[interfaces.PubSub](container)
	if err != nil {
		return nil, err
	}

	api, err := do.Invoke[interfaces.TwitchAPI](container)
	if err != nil {
		return nil, err
	}

	campaigns, err := do.Invoke[*ServiceCampaign](container)
	if err != nil {
		return nil, err
	}

	settings, err := do.Invoke[*ServiceSettings](container)
	if err != nil {
		return nil, err
	}

	limiter, err := do.Invoke[interfaces.Limiter](container)
	if err != nil {
		return nil, err
	}

	state, err := do.Invoke[*MinerState](container)
	if err != nil {
		return nil, err
	}

	vs, err := do.InvokeNamed[map[string]string](container, "envs")
	if err != nil {
		return nil, err
	}

	return &ServiceSocket{
		container: container,
		pubsub:    pubsub,
		api:       api,
		campaigns: campaigns,
		settings:  settings,
		limiter:   limiter,
		state:     state,
		userID:    vs["TWITCH_USER_ID"],
	}, nil
}

// Run subscribes the user-scoped topics and dispatches messages until the
// context ends.
func (service *ServiceSocket) Run(ctx context.Context) error {
	for _, topic := range []string{models.TopicUserDrops, models.TopicUserPoints} {
		if err := service.pubsub.Listen(ctx, topic, service.userID); err != nil {
			return err
		}
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case msg := <-service.pubsub.Messages():
			service.dispatch(ctx, msg)
		}
	}
}

func (service *ServiceSocket) dispatch(ctx context.Context, msg models.PubSubMessage) {
	topicID := msg.TopicID()

	switch msg.TopicName() {
	case models.TopicUserDrops:
		if topicID != service.userID {
			return
		}
		service.onUserDrop(msg)
	case models.TopicUserPoints:
		if topicID != service.userID {
			return
		}
		service.onUserPoints(ctx, msg)
	case models.TopicChannelStream:
		if !service.isCurrentChannel(topicID) {
			return
		}
		if msg.Type == models.EventStreamDown {
			service.markChannelOffline("stream went down")
		}
	case models.TopicChannelMoment:
		if !service.isCurrentChannel(topicID) {
			return
		}
		service.onMoment(ctx, msg)
	case models.TopicChannelUpdate:
		if !service.isCurrentChannel(topicID) {
			return
		}
		service.onBroadcastUpdate(msg)
	}
}

func (service *ServiceSocket) isCurrentChannel(id string) bool {
	current := service.state.Channel()
	return current != nil && current.ID == id
}

func (service *ServiceSocket) markChannelOffline(reason string) {
	current := service.state.Channel()
	if current == nil {
		return
	}
	next := *current
	next.IsOnline = false
	service.state.SetChannel(&next)
	log.Info().Str("channel", current.Login).Str("reason", reason).Msg("channel dropped")
}

func (service *ServiceSocket) onUserDrop(msg models.PubSubMessage) {
	switch msg.Type {
	case models.EventDropProgress:
		var event models.DropProgressEvent
		if err := json.Unmarshal(msg.Payload, &event); err != nil {
			log.Warn().Err(err).Msg("drop-progress decode failed")
			return
		}
		drop := service.state.Drop()
		if drop == nil || drop.ID != event.DropID {
			return
		}
		if drop.CurrentMinutes != event.CurrentProgress {
			service.state.UpdateDrop(func(d *models.Drop) {
				d.CurrentMinutes = event.CurrentProgress
			})
			// the server counted minutes we did not; reconcile on next tick
			service.state.ForceRefresh()
		}
	case models.EventDropClaim:
		var event models.DropClaimEvent
		if err := json.Unmarshal(msg.Payload, &event); err != nil {
			log.Warn().Err(err).Msg("drop-claim decode failed")
			return
		}
		drop := service.state.Drop()
		if drop == nil || drop.ID != event.DropID {
			return
		}
		service.state.UpdateDrop(func(d *models.Drop) {
			d.InstanceID = event.DropInstanceID
		})
		log.Info().Str("drop", drop.Name).Msg("award instance issued")
	}
}

func (service *ServiceSocket) onUserPoints(ctx context.Context, msg models.PubSubMessage) {
	if msg.Type != models.EventClaimAvailable && msg.Type != models.EventPointsEarned {
		return
	}
	if !service.settings.Get().IsClaimPoints {
		return
	}

	var event models.PointsClaimEvent
	if err := json.Unmarshal(msg.Payload, &event); err != nil {
		log.Warn().Err(err).Msg("points event decode failed")
		return
	}
	if event.ClaimID == "" {
		return
	}

	if err := service.limiter.Allow(ctx, LimitKeyPointsClaim(event.ChannelID), PointsClaimLimit); err != nil {
		return
	}
	if err := service.api.ClaimPoints(ctx, event.ChannelID, event.ClaimID); err != nil {
		log.Warn().Err(err).Str("channel", event.ChannelID).Msg("points claim failed")
		return
	}
	log.Info().Str("channel", event.ChannelID).Int("balance", event.Balance).Msg("points claimed")
}

func (service *ServiceSocket) onMoment(ctx context.Context, msg models.PubSubMessage) {
	if msg.Type != models.EventMomentActive {
		return
	}
	if !service.settings.Get().IsClaimMoments {
		return
	}

	var event models.MomentEvent
	if err := json.Unmarshal(msg.Payload, &event); err != nil {
		log.Warn().Err(err).Msg("moment event decode failed")
		return
	}
	if event.MomentID == "" {
		return
	}
	if err := service.api.ClaimMoments(ctx, event.MomentID); err != nil {
		log.Warn().Err(err).Msg("moment claim failed")
		return
	}
	log.Info().Str("moment", event.MomentID).Msg("moment claimed")
}

// onBroadcastUpdate drops the channel when the broadcaster switched to a
// different game than the campaign targets.
func (service *ServiceSocket) onBroadcastUpdate(msg models.PubSubMessage) {
	if msg.Type != models.EventBroadcastSet {
		return
	}

	var event models.BroadcastSettingsEvent
	if err := json.Unmarshal(msg.Payload, &event); err != nil {
		log.Warn().Err(err).Msg("broadcast update decode failed")
		return
	}

	campaign := service.state.Campaign()
	if campaign == nil || event.GameID == "" {
		return
	}
	if event.GameID != campaign.Game.ID {
		service.markChannelOffline("broadcaster changed game to " + event.Game)
	}
}
