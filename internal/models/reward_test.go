package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestFilterRewards(t *testing.T) {
	now := time.Now()
	rewards := []Reward{
		{ID: "fresh", LastAwardedAt: now.Add(-24 * time.Hour)},
		{ID: "edge", LastAwardedAt: now.Add(-RewardWindow).Add(time.Minute)},
		{ID: "stale", LastAwardedAt: now.Add(-RewardWindow).Add(-time.Minute)},
	}

	kept := FilterRewards(rewards, now)

	ids := make([]string, 0, len(kept))
	for _, r := range kept {
		ids = append(ids, r.ID)
	}
	assert.Equal(t, []string{"fresh", "edge"}, ids)
}

func TestRewardWindowValue(t *testing.T) {
	assert.Equal(t, 30*24*time.Hour, time.Duration(RewardWindow))
}
