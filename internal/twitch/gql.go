package twitch

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"dropminer/internal/models"

	"github.com/Danny-Dasilva/CycleTLS/cycletls"
	http "github.com/Danny-Dasilva/fhttp"
	"github.com/google/uuid"
	"github.com/hiendaovinh/toolkit/pkg/errorx"
	"github.com/rs/zerolog/log"
)

const (
	gqlURL   = "https://gql.twitch.tv/gql"
	helixURL = "https://api.twitch.tv/helix/streams"

	// Chrome fingerprint; the gql edge rejects obviously non-browser clients.
	ja3       = "771,4865-4866-4867-49195-49199-49196-49200-52393-52392-49171-49172-156-157-47-53,0-23-65281-10-11-35-16-5-13-18-51-45-43-27-17513,29-23-24,0"
	userAgent = "Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/122.0.0.0 Safari/537.36"

	gqlRetryMax  = 5
	gqlRetryBase = time.Second
)

type gqlOp struct {
	name string
	hash string
}

var (
	opDashboard     = gqlOp{"ViewerDropsDashboard", "8d5d9b5e3f088f9d1ff39eb2caab11f7a4cf7a3353da1ce82c5cc671e7aba25e"}
	opInventory     = gqlOp{"Inventory", "37fea486d6179047c41d0f549088a4c3a7dd60c05c70956a1490262f532dccd9"}
	opDetail        = gqlOp{"DropCampaignDetails", "f6396f5ffdde867a8f6f6da18286e4baf02e5b98d14689a69b5af320a4c7b7b8"}
	opDirectory     = gqlOp{"DirectoryPage_Game", "d5c5df7ab9ae65c3ea0f225738c08a36a4a76e4c6c31db7f8c4b8dc064227f9e"}
	opStreams       = gqlOp{"UseLiveBatch", "626ea66d2e2d05371c7bfd7d56d0b0267b77c8cf21cf2b0646ed26a14f4d4f91"}
	opChannelLive   = gqlOp{"WithIsStreamLiveQuery", "04e46329a6786ff3a81c01c50bfa5d725902507a0deb83b0edbf7abe7a3716ea"}
	opPoints        = gqlOp{"ChannelPointsContext", "9988086babc615a918a1e9a722ff41d98847acac822645209ac7379eecb27152"}
	opClaimDrops    = gqlOp{"DropsPage_ClaimDropRewards", "a455deea71bdc9015b78eb49f4acfbce8baa7ccbedd28e549bb025bd0f751930"}
	opClaimPoints   = gqlOp{"ClaimCommunityPoints", "46aaeebe02c99afdf4fc97c7c0cba964124bf6b0af229395f1f6d1feed05b3d0"}
	opClaimMoments  = gqlOp{"CommunityMomentCallout_Claim", "e2d67415aead910f7f9ceb45a77b750a1e1d9622c936d832328a0689e054db62"}
	opPlaybackToken = gqlOp{"PlaybackAccessToken", "0828119ded1c13477966434e15800ff57ddacf13ba1911c129dc2200705b0712"}
)

// GQL is the persisted-query client for the drops API. Responses come back
// categorized: transient service errors are retried here (5 attempts,
// exponential backoff), shape mismatches are Validation, 401 is Authn.
type GQL struct {
	http      *http.Client
	authToken string
	clientID  string
	deviceID  string
	sessionID string
	userID    string
}

type GQLConfig struct {
	AuthToken string
	ClientID  string
	DeviceID  string
	UserID    string
}

func NewGQL(cfg GQLConfig) *GQL {
	deviceID := cfg.DeviceID
	if deviceID == "" {
		deviceID = strings.ReplaceAll(uuid.NewString(), "-", "")
	}

	return &GQL{
		http: &http.Client{
			Transport: cycletls.NewTransport(ja3, userAgent),
			Timeout:   30 * time.Second,
		},
		authToken: cfg.AuthToken,
		clientID:  cfg.ClientID,
		deviceID:  deviceID,
		sessionID: strings.ReplaceAll(uuid.NewString(), "-", ""),
		userID:    cfg.UserID,
	}
}

func (c *GQL) UserID() string {
	return c.userID
}

// ErrUnauthorized means the auth token is dead. Credentials cannot self-heal
// so callers should treat this as fatal.
var ErrUnauthorized = errors.New("unauthorized")

func isRetryableGQLError(msg string) bool {
	m := strings.ToLower(msg)
	return strings.Contains(m, "service unavailable") ||
		strings.Contains(m, "service timeout") ||
		strings.Contains(m, "service error")
}

func (c *GQL) post(ctx context.Context, op gqlOp, variables map[string]any, out any) error {
	body, err := json.Marshal(gqlRequest{
		OperationName: op.name,
		Extensions:    gqlExtensions{persistedQuery{Version: 1, Sha256Hash: op.hash}},
		Variables:     variables,
	})
	if err != nil {
		return errorx.Wrap(err, errorx.Validation)
	}

	var lastErr error
	for attempt := 0; attempt < gqlRetryMax; attempt++ {
		if attempt > 0 {
			wait := gqlRetryBase << (attempt - 1)
			log.Debug().Str("op", op.name).Int("attempt", attempt).Dur("wait", wait).Msg("gql retry")
			select {
			case <-ctx.Done():
				return errorx.Wrap(ctx.Err(), errorx.Service)
			case <-time.After(wait):
			}
		}

		raw, status, err := c.do(ctx, gqlURL, body)
		if err != nil {
			lastErr = err
			continue
		}
		if status == http.StatusUnauthorized {
			return errorx.Wrap(ErrUnauthorized, errorx.Authn)
		}
		if status != http.StatusOK {
			lastErr = fmt.Errorf("gql %s: http %d", op.name, status)
			continue
		}

		var resp gqlResponse
		if err := json.Unmarshal(raw, &resp); err != nil {
			return errorx.Wrap(fmt.Errorf("gql %s: %w", op.name, err), errorx.Validation)
		}
		if len(resp.Errors) > 0 {
			msg := resp.Errors[0].Message
			if isRetryableGQLError(msg) {
				lastErr = fmt.Errorf("gql %s: %s", op.name, msg)
				continue
			}
			return errorx.Wrap(fmt.Errorf("gql %s: %s", op.name, msg), errorx.Validation)
		}
		if out != nil {
			if err := json.Unmarshal(resp.Data, out); err != nil {
				return errorx.Wrap(fmt.Errorf("gql %s: %w", op.name, err), errorx.Validation)
			}
		}
		return nil
	}

	return errorx.Wrap(lastErr, errorx.Service)
}

func (c *GQL) do(ctx context.Context, url string, body []byte) ([]byte, int, error) {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	method := http.MethodGet
	if body != nil {
		method = http.MethodPost
	}
	req, err := http.NewRequestWithContext(ctx, method, url, reader)
	if err != nil {
		return nil, 0, err
	}
	req.Header.Set("Authorization", "OAuth "+c.authToken)
	req.Header.Set("Client-Id", c.clientID)
	req.Header.Set("X-Device-Id", c.deviceID)
	req.Header.Set("Client-Session-Id", c.sessionID)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, 0, err
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, 0, err
	}
	return raw, resp.StatusCode, nil
}

func (c *GQL) DropsDashboard(ctx context.Context) ([]models.Campaign, error) {
	var payload dashboardPayload
	if err := c.post(ctx, opDashboard, map[string]any{"fetchRewardCampaigns": false}, &payload); err != nil {
		return nil, err
	}

	campaigns := make([]models.Campaign, 0, len(payload.CurrentUser.DropCampaigns))
	for _, dc := range payload.CurrentUser.DropCampaigns {
		campaigns = append(campaigns, models.Campaign{
			ID:      dc.ID,
			Name:    dc.Name,
			Game:    toGame(dc.Game),
			StartAt: dc.StartAt,
			EndAt:   dc.EndAt,

			IsAccountConnected: dc.Self.IsAccountConnected,
		})
	}
	return campaigns, nil
}

func (c *GQL) Inventory(ctx context.Context) (*models.Inventory, error) {
	var payload inventoryPayload
	if err := c.post(ctx, opInventory, map[string]any{"fetchRewardCampaigns": false}, &payload); err != nil {
		return nil, err
	}

	inv := &models.Inventory{}
	for _, ged := range payload.CurrentUser.Inventory.GameEventDrops {
		inv.Rewards = append(inv.Rewards, models.Reward{ID: ged.ID, LastAwardedAt: ged.LastAwardedAt})
	}
	for _, cp := range payload.CurrentUser.Inventory.DropCampaignsInProgress {
		progress := models.CampaignProgress{CampaignID: cp.ID}
		for _, tbd := range cp.TimeBasedDrops {
			progress.Drops = append(progress.Drops, toDrop(cp.ID, tbd))
		}
		inv.Campaigns = append(inv.Campaigns, progress)
	}
	return inv, nil
}

func (c *GQL) CampaignDetails(ctx context.Context, campaignID string, channelLogin string) (*models.CampaignDetail, error) {
	vars := map[string]any{"dropID": campaignID}
	if channelLogin != "" {
		vars["channelLogin"] = channelLogin
	}

	var payload detailPayload
	if err := c.post(ctx, opDetail, vars, &payload); err != nil {
		return nil, err
	}

	dc := payload.User.DropCampaign
	if dc == nil {
		return &models.CampaignDetail{Exists: false}, nil
	}

	detail := &models.CampaignDetail{
		Exists:    true,
		Available: dc.Self.IsAvailable,
		ID:        dc.ID,
		Name:      dc.Name,
		Game:      toGame(dc.Game),
	}
	for _, ch := range dc.Allow.Channels {
		detail.AllowChannels = append(detail.AllowChannels, ch.Name)
	}
	for _, tbd := range dc.TimeBasedDrops {
		detail.Drops = append(detail.Drops, toDrop(dc.ID, tbd))
	}
	return detail, nil
}

func (c *GQL) GameDirectory(ctx context.Context, slug string) ([]models.Channel, error) {
	vars := map[string]any{
		"slug":    slug,
		"limit":   30,
		"options": map[string]any{"systemFilters": []string{"DROPS_ENABLED"}},
	}
	var payload directoryPayload
	if err := c.post(ctx, opDirectory, vars, &payload); err != nil {
		return nil, err
	}

	channels := make([]models.Channel, 0, len(payload.Game.Streams.Edges))
	for _, edge := range payload.Game.Streams.Edges {
		node := edge.Node
		channels = append(channels, models.Channel{
			ID:              node.Broadcaster.ID,
			Login:           node.Broadcaster.Login,
			GameID:          payload.Game.ID,
			IsOnline:        true,
			CurrentSid:      node.ID,
			CurrentGameID:   node.Game.ID,
			CurrentGameName: node.Game.DisplayName,
		})
	}
	return channels, nil
}

func (c *GQL) ChannelStreams(ctx context.Context, logins []string) ([]models.Channel, error) {
	if len(logins) > models.MaxAllowChannels {
		logins = logins[:models.MaxAllowChannels]
	}

	var payload usersPayload
	if err := c.post(ctx, opStreams, map[string]any{"logins": logins}, &payload); err != nil {
		return nil, err
	}

	channels := make([]models.Channel, 0, len(payload.Users))
	for _, u := range payload.Users {
		ch := models.Channel{ID: u.ID, Login: u.Login}
		if u.Stream != nil {
			ch.IsOnline = true
			ch.CurrentSid = u.Stream.ID
			ch.CurrentGameID = u.Stream.Game.ID
			ch.CurrentGameName = u.Stream.Game.DisplayName
		}
		channels = append(channels, ch)
	}
	return channels, nil
}

func (c *GQL) ChannelPoints(ctx context.Context, login string) (*models.PointsContext, error) {
	var payload pointsPayload
	if err := c.post(ctx, opPoints, map[string]any{"channelLogin": login}, &payload); err != nil {
		return nil, err
	}

	points := &models.PointsContext{
		ChannelID: payload.Community.Channel.ID,
		Balance:   payload.Community.Channel.Self.CommunityPoints.Balance,
	}
	if claim := payload.Community.Channel.Self.CommunityPoints.AvailableClaim; claim != nil {
		points.ClaimID = claim.ID
	}
	return points, nil
}

func (c *GQL) ChannelLive(ctx context.Context, login string) (*models.Channel, error) {
	var payload userPayload
	if err := c.post(ctx, opChannelLive, map[string]any{"channelLogin": login}, &payload); err != nil {
		return nil, err
	}
	if payload.User == nil {
		return nil, errorx.Wrap(fmt.Errorf("channel %s not found", login), errorx.NotExist)
	}

	ch := &models.Channel{ID: payload.User.ID, Login: payload.User.Login}
	if payload.User.Stream != nil {
		ch.IsOnline = true
		ch.CurrentSid = payload.User.Stream.ID
		ch.CurrentGameID = payload.User.Stream.Game.ID
		ch.CurrentGameName = payload.User.Stream.Game.DisplayName
	}
	return ch, nil
}

// HelixStreams checks whether the broadcaster's current stream id is still
// listed; used by the watch probe to tell a dead stream from a rotated
// playlist.
func (c *GQL) HelixStreams(ctx context.Context, userID string) (*models.Channel, error) {
	raw, status, err := c.do(ctx, helixURL+"?user_id="+userID, nil)
	if err != nil {
		return nil, errorx.Wrap(err, errorx.Service)
	}
	if status == http.StatusUnauthorized {
		return nil, errorx.Wrap(ErrUnauthorized, errorx.Authn)
	}
	if status != http.StatusOK {
		return nil, errorx.Wrap(fmt.Errorf("helix streams: http %d", status), errorx.Service)
	}

	var payload helixStreamsResponse
	if err := json.Unmarshal(raw, &payload); err != nil {
		return nil, errorx.Wrap(err, errorx.Validation)
	}
	if len(payload.Data) == 0 {
		return &models.Channel{ID: userID}, nil
	}

	s := payload.Data[0]
	return &models.Channel{
		ID:              s.UserID,
		Login:           s.UserName,
		IsOnline:        s.Type == "live",
		CurrentSid:      s.ID,
		CurrentGameID:   s.GameID,
		CurrentGameName: s.GameName,
	}, nil
}

func (c *GQL) ClaimDrops(ctx context.Context, instanceID string) error {
	vars := map[string]any{"input": map[string]any{"dropInstanceID": instanceID}}
	return c.post(ctx, opClaimDrops, vars, nil)
}

func (c *GQL) ClaimPoints(ctx context.Context, channelID, claimID string) error {
	vars := map[string]any{"input": map[string]any{"channelID": channelID, "claimID": claimID}}
	return c.post(ctx, opClaimPoints, vars, nil)
}

func (c *GQL) ClaimMoments(ctx context.Context, momentID string) error {
	vars := map[string]any{"input": map[string]any{"momentID": momentID}}
	return c.post(ctx, opClaimMoments, vars, nil)
}

func (c *GQL) PlaybackToken(ctx context.Context, login string) (*models.PlaybackToken, error) {
	vars := map[string]any{
		"login":      login,
		"isLive":     true,
		"isVod":      false,
		"vodID":      "",
		"playerType": "site",
	}
	var payload playbackTokenPayload
	if err := c.post(ctx, opPlaybackToken, vars, &payload); err != nil {
		return nil, err
	}
	return &models.PlaybackToken{
		Value:     payload.StreamPlaybackAccessToken.Value,
		Signature: payload.StreamPlaybackAccessToken.Signature,
	}, nil
}

func toGame(g gameData) models.Game {
	name := g.DisplayName
	if name == "" {
		name = g.Name
	}
	return models.Game{ID: g.ID, DisplayName: name, Slug: g.Slug}
}

func toDrop(campaignID string, tbd timeBasedDrop) models.Drop {
	d := models.Drop{
		ID:                  tbd.ID,
		Name:                tbd.Name,
		CampaignID:          campaignID,
		StartAt:             tbd.StartAt,
		EndAt:               tbd.EndAt,
		RequiredMinutes:     tbd.RequiredMinutesWatched,
		RequiredSubs:        tbd.RequiredSubs,
		HasPreconditionsMet: true,
	}
	for _, edge := range tbd.BenefitEdges {
		d.BenefitIDs = append(d.BenefitIDs, edge.Benefit.ID)
	}
	if tbd.Self != nil {
		d.CurrentMinutes = tbd.Self.CurrentMinutesWatched
		d.IsClaimed = tbd.Self.IsClaimed
		d.InstanceID = tbd.Self.DropInstanceID
		d.HasPreconditionsMet = tbd.Self.HasPreconditionsMet
	}
	// sub-gated drops can never be auto-claimed; treat as claimed
	if d.RequiredSubs > 0 {
		d.IsClaimed = true
	}
	return d
}
