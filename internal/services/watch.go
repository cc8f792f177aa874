package services

import (
	"context"
	"errors"

	"dropminer/internal/interfaces"
	"dropminer/internal/models"
	"dropminer/internal/pkg/caching"
	"dropminer/internal/twitch"

	"github.com/rs/zerolog/log"
	"github.com/samber/do"
	"golang.org/x/sync/errgroup"
)

// ServiceWatch simulates one minute of viewership: the beacon credits the
// minute while the playlist probe proves the stream actually serves media.
// Both must succeed for the minute to count.
type ServiceWatch struct {
	container *do.Injector
	api       interfaces.TwitchAPI
	spade     *twitch.Spade
	hls       *twitch.HLS
	cache     caching.Cache
}

func NewServiceWatch(container *do.Injector) (*ServiceWatch, error) {
	api, err := do.Invoke[interfaces.TwitchAPI](container)
	if err != nil {
		return nil, err
	}

	spade, err := do.Invoke[*twitch.Spade](container)
	if err != nil {
		return nil, err
	}

	hls, err := do.Invoke[*twitch.HLS](container)
	if err != nil {
		return nil, err
	}

	cache, err := do.Invoke[caching.Cache](container)
	if err != nil {
		return nil, err
	}

	return &ServiceWatch{container: container, api: api, spade: spade, hls: hls, cache: cache}, nil
}

// Watch performs one minute-watched pass against the channel. It never
// returns an error; any failure degrades to Success=false and the caller
// decides whether the channel is worth keeping.
func (service *ServiceWatch) Watch(ctx context.Context, channel *models.Channel) models.WatchResult {
	masterURL := channel.HlsURL
	if masterURL == "" {
		resolved, err := service.resolveMasterURL(ctx, channel.Login)
		if err != nil {
			log.Warn().Err(err).Str("channel", channel.Login).Msg("playlist resolve failed")
			return models.WatchResult{}
		}
		masterURL = resolved
	}

	result := models.WatchResult{HlsURL: masterURL}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return service.spade.SendMinuteWatched(gctx, channel)
	})
	g.Go(func() error {
		url, err := service.probeWithRecovery(gctx, channel, masterURL)
		if err != nil {
			return err
		}
		result.HlsURL = url
		return nil
	})

	if err := g.Wait(); err != nil {
		log.Debug().Err(err).Str("channel", channel.Login).Msg("watch minute failed")
		return models.WatchResult{HlsURL: result.HlsURL}
	}
	result.Success = true
	return result
}

// probeWithRecovery probes the playlist and, on a dead segment, rechecks
// liveness and re-resolves the playlist once. A channel that went offline is
// a hard failure.
func (service *ServiceWatch) probeWithRecovery(ctx context.Context, channel *models.Channel, masterURL string) (string, error) {
	err := service.probe(ctx, masterURL)
	if err == nil {
		return masterURL, nil
	}
	if !errors.Is(err, twitch.ErrSegmentGone) {
		return masterURL, err
	}

	live, err := service.api.HelixStreams(ctx, channel.ID)
	if err != nil {
		return masterURL, err
	}
	if !live.IsOnline {
		return masterURL, twitch.ErrSegmentGone
	}

	// the stream restarted; the cached playlist points at the old broadcast
	//nolint:errcheck
	service.cache.Delete(ctx, CacheKeyHlsURL(channel.Login))
	refreshed, err := service.resolveMasterURL(ctx, channel.Login)
	if err != nil {
		return masterURL, err
	}
	if err := service.probe(ctx, refreshed); err != nil {
		return masterURL, err
	}
	return refreshed, nil
}

// probe walks master playlist to cheapest variant to newest segment and
// verifies the segment is served.
func (service *ServiceWatch) probe(ctx context.Context, masterURL string) error {
	master, err := service.hls.FetchPlaylist(ctx, masterURL)
	if err != nil {
		return err
	}
	variantURL := twitch.LowestVariant(master)
	if variantURL == "" {
		return twitch.ErrSegmentGone
	}

	media, err := service.hls.FetchPlaylist(ctx, variantURL)
	if err != nil {
		return err
	}
	segmentURL := twitch.LatestSegment(media, variantURL)
	if segmentURL == "" {
		return twitch.ErrSegmentGone
	}
	return service.hls.HeadSegment(ctx, segmentURL)
}

func (service *ServiceWatch) resolveMasterURL(ctx context.Context, login string) (string, error) {
	return caching.UseCache(ctx, service.cache, CacheKeyHlsURL(login), CACHE_TTL_HLS_URL, func() (string, error) {
		token, err := service.api.PlaybackToken(ctx, login)
		if err != nil {
			return "", err
		}
		return service.hls.MasterPlaylistURL(login, token), nil
	})
}
