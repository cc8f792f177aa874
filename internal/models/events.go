package models

import (
	"encoding/json"
	"strings"
)

// Push-socket topic families. A concrete topic is "<family>.<id>" where the id
// is either our user id or a channel id.
const (
	TopicUserDrops     = "user-drop-events"
	TopicUserPoints    = "community-points-user-v1"
	TopicChannelMoment = "community-moments-channel-v1"
	TopicChannelStream = "video-playback-by-id"
	TopicChannelUpdate = "broadcast-settings-update"
)

// ChannelTopics are the subscriptions acquired at watch-loop entry and
// released on every exit path.
var ChannelTopics = []string{TopicChannelStream, TopicChannelUpdate, TopicChannelMoment}

// PubSubMessage is one decoded push-socket record.
type PubSubMessage struct {
	Topic   string          `json:"topic"`
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

// TopicName and TopicID split "user-drop-events.1234".
func (m PubSubMessage) TopicName() string {
	name, _, _ := strings.Cut(m.Topic, ".")
	return name
}

func (m PubSubMessage) TopicID() string {
	_, id, _ := strings.Cut(m.Topic, ".")
	return id
}

// Inner event types carried on the topics above.
const (
	EventStreamDown     = "stream-down"
	EventDropProgress   = "drop-progress"
	EventDropClaim      = "drop-claim"
	EventClaimAvailable = "claim-available"
	EventPointsEarned   = "points-earned"
	EventMomentActive   = "active"
	EventBroadcastSet   = "broadcast_settings_update"
)

type DropProgressEvent struct {
	DropID          string `json:"drop_id"`
	ChannelID       string `json:"channel_id"`
	CurrentProgress int    `json:"current_progress_min"`
	RequiredMinutes int    `json:"required_progress_min"`
}

type DropClaimEvent struct {
	DropID         string `json:"drop_id"`
	ChannelID      string `json:"channel_id"`
	DropInstanceID string `json:"drop_instance_id"`
}

type PointsClaimEvent struct {
	ChannelID string `json:"channel_id"`
	ClaimID   string `json:"claim_id"`
	Balance   int    `json:"balance"`
}

type MomentEvent struct {
	MomentID string `json:"moment_id"`
}

type BroadcastSettingsEvent struct {
	ChannelID string `json:"channel_id"`
	GameID    string `json:"game_id"`
	Game      string `json:"game"`
}

// Inventory is the progress view of the account: accumulated rewards plus the
// in-progress campaigns with their drop counters.
type Inventory struct {
	Rewards   []Reward
	Campaigns []CampaignProgress
}

type CampaignProgress struct {
	CampaignID string
	Drops      []Drop
}

// CampaignDetail is the full per-campaign fetch. Exists is false when the
// server no longer knows the campaign; Available reports whether the campaign
// is usable on the channel login the query was scoped to.
type CampaignDetail struct {
	Exists        bool
	Available     bool
	ID            string
	Name          string
	Game          Game
	AllowChannels []string
	Drops         []Drop
}
