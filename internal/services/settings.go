package services

import (
	"context"
	"sync/atomic"

	"dropminer/internal/datastore/redis_store"
	"dropminer/internal/models"

	"github.com/redis/go-redis/v9"
	"github.com/samber/do"
)

// ServiceSettings holds the durable user configuration. The snapshot is
// swapped atomically; every update is written through to redis so it
// survives restarts.
type ServiceSettings struct {
	container *do.Injector
	redisDB   redis.UniversalClient
	userID    string

	current atomic.Pointer[models.Settings]
}

func NewServiceSettings(container *do.Injector) (*ServiceSettings, error) {
	redisDB, err := do.InvokeNamed[redis.UniversalClient](container, "redis-db")
	if err != nil {
		return nil, err
	}

	vs, err := do.InvokeNamed[map[string]string](container, "envs")
	if err != nil {
		return nil, err
	}

	service := &ServiceSettings{container: container, redisDB: redisDB, userID: vs["TWITCH_USER_ID"]}
	service.current.Store(models.DefaultSettings())
	return service, nil
}

// Load warms the snapshot from redis; missing settings keep the defaults.
func (service *ServiceSettings) Load(ctx context.Context) error {
	stored, err := redis_store.GetSettings(ctx, service.redisDB, service.userID)
	if err != nil {
		return err
	}
	if stored != nil {
		service.current.Store(stored)
	}
	return nil
}

func (service *ServiceSettings) Get() *models.Settings {
	return service.current.Load()
}

// Update applies fn to a copy of the snapshot, persists and swaps it.
func (service *ServiceSettings) Update(ctx context.Context, fn func(s *models.Settings)) (*models.Settings, error) {
	for {
		old := service.current.Load()
		next := *old
		next.PriorityList = append([]string{}, old.PriorityList...)
		next.ExclusionList = append([]string{}, old.ExclusionList...)
		fn(&next)

		if err := redis_store.SaveSettings(ctx, service.redisDB, service.userID, &next); err != nil {
			return nil, err
		}
		if service.current.CompareAndSwap(old, &next) {
			return &next, nil
		}
	}
}

// AddPriorityGame appends a game to the priority list when absent.
func (service *ServiceSettings) AddPriorityGame(ctx context.Context, name string) error {
	if service.Get().IsPriorityGame(name) {
		return nil
	}
	_, err := service.Update(ctx, func(s *models.Settings) {
		if !s.IsPriorityGame(name) {
			s.PriorityList = append(s.PriorityList, name)
		}
	})
	return err
}
