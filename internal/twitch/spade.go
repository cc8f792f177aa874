package twitch

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/gojek/heimdall/v7"
	"github.com/gojek/heimdall/v7/httpclient"
	"github.com/hiendaovinh/toolkit/pkg/errorx"

	"dropminer/internal/models"
)

const spadeURL = "https://spade.twitch.tv/track"

// Spade posts the synthetic minute-watched beacon the platform uses to credit
// viewership.
type Spade struct {
	http   *httpclient.Client
	userID string
}

func NewSpade(userID string) *Spade {
	backoff := heimdall.NewExponentialBackoff(500*time.Millisecond, 5*time.Second, 2, 200*time.Millisecond)
	return &Spade{
		http: httpclient.NewClient(
			httpclient.WithHTTPTimeout(10*time.Second),
			httpclient.WithRetrier(heimdall.NewRetrier(backoff)),
			httpclient.WithRetryCount(2),
		),
		userID: userID,
	}
}

type spadeEvent struct {
	Event      string          `json:"event"`
	Properties spadeProperties `json:"properties"`
}

type spadeProperties struct {
	ChannelID   string `json:"channel_id"`
	BroadcastID string `json:"broadcast_id"`
	Player      string `json:"player"`
	UserID      string `json:"user_id"`
	Live        bool   `json:"live"`
}

func (s *Spade) SendMinuteWatched(ctx context.Context, channel *models.Channel) error {
	payload, err := json.Marshal([]spadeEvent{{
		Event: "minute-watched",
		Properties: spadeProperties{
			ChannelID:   channel.ID,
			BroadcastID: channel.CurrentSid,
			Player:      "site",
			UserID:      s.userID,
			Live:        true,
		},
	}})
	if err != nil {
		return errorx.Wrap(err, errorx.Validation)
	}

	form := url.Values{}
	form.Set("data", base64.StdEncoding.EncodeToString(payload))

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, spadeURL, strings.NewReader(form.Encode()))
	if err != nil {
		return errorx.Wrap(err, errorx.Validation)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := s.http.Do(req)
	if err != nil {
		return errorx.Wrap(err, errorx.Service)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return errorx.Wrap(fmt.Errorf("spade beacon: http %d", resp.StatusCode), errorx.Service)
	}
	return nil
}
