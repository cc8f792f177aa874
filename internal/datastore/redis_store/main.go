package redis_store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"dropminer/internal/models"

	"github.com/redis/go-redis/v9"
	"github.com/vmihailenco/msgpack/v5"
)

func dbKeySettings(userID string) string {
	return fmt.Sprintf("miner:%s:settings", userID)
}

func dbKeyRewards(userID string) string {
	return fmt.Sprintf("miner:%s:rewards", userID)
}

func dbKeyLastNotify(userID string) string {
	return fmt.Sprintf("miner:%s:last_notify", userID)
}

func GetSettings(ctx context.Context, cmd redis.Cmdable, userID string) (*models.Settings, error) {
	b, err := cmd.Get(ctx, dbKeySettings(userID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	var v *models.Settings
	err = msgpack.Unmarshal(b, &v)
	return v, err
}

func SaveSettings(ctx context.Context, cmd redis.Cmdable, userID string, v *models.Settings) error {
	b, err := msgpack.Marshal(v)
	if err != nil {
		return err
	}
	return cmd.Set(ctx, dbKeySettings(userID), b, 0).Err()
}

// Rewards are mirrored so the 30-day claim suppression survives restarts.
func GetRewards(ctx context.Context, cmd redis.Cmdable, userID string) ([]models.Reward, error) {
	b, err := cmd.Get(ctx, dbKeyRewards(userID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	var v []models.Reward
	err = msgpack.Unmarshal(b, &v)
	return v, err
}

func SaveRewards(ctx context.Context, cmd redis.Cmdable, userID string, v []models.Reward) error {
	b, err := msgpack.Marshal(v)
	if err != nil {
		return err
	}
	return cmd.Set(ctx, dbKeyRewards(userID), b, models.RewardWindow).Err()
}

func SetLastNotify(ctx context.Context, cmd redis.Cmdable, userID string, at time.Time) error {
	return cmd.Set(ctx, dbKeyLastNotify(userID), at.UnixMilli(), 0).Err()
}

func GetLastNotify(ctx context.Context, cmd redis.Cmdable, userID string) (time.Time, error) {
	ms, err := cmd.Get(ctx, dbKeyLastNotify(userID)).Int64()
	if errors.Is(err, redis.Nil) {
		return time.Time{}, nil
	}
	if err != nil {
		return time.Time{}, err
	}
	return time.UnixMilli(ms), nil
}
