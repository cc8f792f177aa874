package twitch

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/gojek/heimdall/v7"
	"github.com/gojek/heimdall/v7/httpclient"
	"github.com/hiendaovinh/toolkit/pkg/errorx"

	"dropminer/internal/models"
)

const usherURL = "https://usher.ttvnw.net/api/channel/hls/%s.m3u8"

// ErrSegmentGone marks a 404 from the segment probe: the playlist we cached
// points at a rotated or dead stream.
var ErrSegmentGone = fmt.Errorf("hls segment gone")

// HLS probes a channel's live playlist to confirm it is actually streaming,
// not just nominally online.
type HLS struct {
	http *httpclient.Client
}

func NewHLS() *HLS {
	backoff := heimdall.NewExponentialBackoff(500*time.Millisecond, 5*time.Second, 2, 200*time.Millisecond)
	return &HLS{
		http: httpclient.NewClient(
			httpclient.WithHTTPTimeout(10*time.Second),
			httpclient.WithRetrier(heimdall.NewRetrier(backoff)),
			httpclient.WithRetryCount(2),
		),
	}
}

// MasterPlaylistURL builds the usher URL for a channel given its playback
// token.
func (h *HLS) MasterPlaylistURL(login string, token *models.PlaybackToken) string {
	q := url.Values{}
	q.Set("sig", token.Signature)
	q.Set("token", token.Value)
	q.Set("allow_source", "true")
	q.Set("player", "site")
	return fmt.Sprintf(usherURL, strings.ToLower(login)) + "?" + q.Encode()
}

func (h *HLS) FetchPlaylist(ctx context.Context, playlistURL string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, playlistURL, nil)
	if err != nil {
		return "", errorx.Wrap(err, errorx.Validation)
	}
	resp, err := h.http.Do(req)
	if err != nil {
		return "", errorx.Wrap(err, errorx.Service)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return "", ErrSegmentGone
	}
	if resp.StatusCode != http.StatusOK {
		return "", errorx.Wrap(fmt.Errorf("playlist fetch: http %d", resp.StatusCode), errorx.Service)
	}

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", errorx.Wrap(err, errorx.Service)
	}
	return string(raw), nil
}

// HeadSegment verifies the latest media segment is actually served.
func (h *HLS) HeadSegment(ctx context.Context, segmentURL string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodHead, segmentURL, nil)
	if err != nil {
		return errorx.Wrap(err, errorx.Validation)
	}
	resp, err := h.http.Do(req)
	if err != nil {
		return errorx.Wrap(err, errorx.Service)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return ErrSegmentGone
	}
	if resp.StatusCode >= 400 {
		return errorx.Wrap(fmt.Errorf("segment head: http %d", resp.StatusCode), errorx.Service)
	}
	return nil
}

// LowestVariant picks the last variant of a master playlist; variants are
// listed best-first and the probe only needs the cheapest rendition.
func LowestVariant(master string) string {
	var last string
	for _, line := range strings.Split(master, "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		last = line
	}
	return last
}

// LatestSegment returns the URL of the newest segment in a media playlist,
// resolved against the playlist URL when relative.
func LatestSegment(media string, playlistURL string) string {
	var last string
	for _, line := range strings.Split(media, "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		last = line
	}
	if last == "" {
		return ""
	}
	if strings.HasPrefix(last, "http://") || strings.HasPrefix(last, "https://") {
		return last
	}
	base, err := url.Parse(playlistURL)
	if err != nil {
		return last
	}
	ref, err := url.Parse(last)
	if err != nil {
		return last
	}
	return base.ResolveReference(ref).String()
}
