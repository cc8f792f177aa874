package services

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-redis/redis_rate/v10"
)

var ErrChannelAbandoned = errors.New("channel abandoned")
var ErrPreempted = errors.New("preempted by higher priority campaign")
var ErrClaimExhausted = errors.New("claim attempts exhausted")

const (
	SCHEDULER_TICK_INTERVAL = 10 * time.Second
	SCHEDULER_IDLE_SLEEP    = 10 * time.Minute
	WATCH_TICK_INTERVAL     = time.Minute
	FORCED_REFRESH_TICKS    = 20
	BROKEN_MINUTES_GAP      = 20

	CLAIM_MAX_ATTEMPTS   = 5
	CLAIM_RETRY_INTERVAL = time.Minute

	OFFLINE_CHECK_INTERVAL    = 2 * time.Minute
	OFFLINE_CHECK_JITTER      = 5 * time.Second
	UPCOMING_REFRESH_INTERVAL = 2 * time.Hour

	POINTS_CLAIM_INTERVAL = 15 * time.Minute

	CACHE_TTL_HLS_URL = 1 * time.Hour
	CACHE_TTL_DETAIL  = 15 * time.Second

	MINER_LOCK_EXPIRY = 2 * time.Minute
)

// PointsClaimLimit allows one community-points claim per channel per 15
// minutes.
var PointsClaimLimit = redis_rate.Limit{Rate: 1, Period: POINTS_CLAIM_INTERVAL, Burst: 1}

func LockKeyMiner(userID string) string {
	return fmt.Sprintf("lock:miner:%s", userID)
}

func LimitKeyPointsClaim(channelID string) string {
	return fmt.Sprintf("limit:points-claim:%s", channelID)
}

func CacheKeyHlsURL(login string) string {
	return fmt.Sprintf("miner:hls:%s", strings.ToLower(login))
}

func CacheKeyCampaignDetail(campaignID, channelLogin string) string {
	return fmt.Sprintf("miner:detail:%s:%s", campaignID, strings.ToLower(channelLogin))
}
