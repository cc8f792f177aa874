package main

import (
	"context"
	"errors"
	"fmt"
	stdlog "log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"dropminer/internal/api/handler"
	"dropminer/internal/interfaces"
	"dropminer/internal/pkg/caching"
	"dropminer/internal/pkg/limiter"
	"dropminer/internal/pkg/logger"
	"dropminer/internal/services"
	"dropminer/internal/twitch"

	"github.com/go-redsync/redsync/v4"
	"github.com/go-redsync/redsync/v4/redis/goredis/v9"
	"github.com/hiendaovinh/toolkit/pkg/db"
	"github.com/hiendaovinh/toolkit/pkg/env"
	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog/log"
	"github.com/samber/do"
	"github.com/urfave/cli/v2"
	"golang.org/x/sync/errgroup"
)

const (
	crashWindow      = 15 * time.Minute
	crashMaxRestarts = 5
)

// errRestartRequested is the daily restart signal; it recycles the pipeline
// without counting against the crash budget.
var errRestartRequested = errors.New("restart requested")

func init() {
	// for development
	//nolint:errcheck
	godotenv.Load("../../.env")

	// for production
	//nolint:errcheck
	godotenv.Load("./.env")
}

func main() {
	vs, err := env.EnvsRequired(
		"TWITCH_AUTH_TOKEN",
		"TWITCH_CLIENT_ID",
		"TWITCH_USER_ID",
		"REDIS_MINER",
	)
	if err != nil {
		stdlog.Fatal(err)
	}

	container := NewContainer(vs)

	app := &cli.App{
		Name: "miner",
		Commands: []*cli.Command{
			commandRun(container),
		},
	}

	if err := app.Run(os.Args); err != nil {
		stdlog.Fatal(err)
	}
}

func commandRun(container *do.Injector) *cli.Command {
	return &cli.Command{
		Name:  "run",
		Usage: "start the drop miner",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "addr",
				Value: "127.0.0.1:8422",
				Usage: "ops server address",
			},
			&cli.BoolFlag{
				Name:  "debug",
				Usage: "verbose logging",
			},
		},
		Action: func(c *cli.Context) error {
			logger.Init("miner", c.Bool("debug"))
			vs := do.MustInvokeNamed[map[string]string](container, "envs")

			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			// one miner per account; concurrent sessions would fight over
			// the same viewer identity
			rs, err := do.Invoke[*redsync.Redsync](container)
			if err != nil {
				return err
			}
			mutex := rs.NewMutex(
				services.LockKeyMiner(vs["TWITCH_USER_ID"]),
				redsync.WithExpiry(services.MINER_LOCK_EXPIRY),
			)
			if err := mutex.LockContext(ctx); err != nil {
				return fmt.Errorf("another miner holds the account lock: %w", err)
			}
			defer func() {
				//nolint:errcheck
				mutex.Unlock()
			}()
			go extendLock(ctx, mutex)

			router, err := handler.New(&handler.Config{
				Container: container,
				Mode:      vs["API_MODE"],
			})
			if err != nil {
				return err
			}
			srv := &http.Server{Addr: c.String("addr"), Handler: router}
			go func() {
				log.Info().Str("addr", c.String("addr")).Msg("ops server listening")
				if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
					log.Error().Err(err).Msg("ops server failed")
				}
			}()
			defer srv.Shutdown(context.TODO())

			return runGuarded(ctx, container)
		},
	}
}

// runGuarded restarts the pipeline on uncaught failure. Too many restarts in
// a short window means the account or session is broken and spinning would
// only make it worse.
func runGuarded(ctx context.Context, container *do.Injector) error {
	var restarts []time.Time

	for {
		err := runPipeline(ctx, container)
		switch {
		case err == nil || errors.Is(err, context.Canceled):
			return nil
		case errors.Is(err, twitch.ErrUnauthorized):
			notifyFatal(ctx, container, "auth token rejected, shutting down")
			return err
		case errors.Is(err, errRestartRequested):
			log.Info().Msg("scheduled restart")
			continue
		}

		now := time.Now()
		restarts = append(restarts, now)
		for len(restarts) > 0 && now.Sub(restarts[0]) > crashWindow {
			restarts = restarts[1:]
		}
		if len(restarts) > crashMaxRestarts {
			notifyFatal(ctx, container, "crash looping, shutting down")
			return fmt.Errorf("too many restarts within %s: %w", crashWindow, err)
		}
		log.Error().Err(err).Int("restarts", len(restarts)).Msg("pipeline crashed, restarting")
	}
}

// runPipeline runs all workflows until one fails or the day rolls over.
func runPipeline(ctx context.Context, container *do.Injector) error {
	settings, err := do.Invoke[*services.ServiceSettings](container)
	if err != nil {
		return err
	}
	if err := settings.Load(ctx); err != nil {
		return err
	}

	campaigns, err := do.Invoke[*services.ServiceCampaign](container)
	if err != nil {
		return err
	}
	if err := campaigns.WarmLoad(ctx); err != nil {
		return err
	}

	pubsub, err := do.Invoke[*twitch.PubSub](container)
	if err != nil {
		return err
	}
	scheduler, err := do.Invoke[*services.ServiceScheduler](container)
	if err != nil {
		return err
	}
	socket, err := do.Invoke[*services.ServiceSocket](container)
	if err != nil {
		return err
	}
	offline, err := do.Invoke[*services.ServiceOffline](container)
	if err != nil {
		return err
	}
	upcoming, err := do.Invoke[*services.ServiceUpcoming](container)
	if err != nil {
		return err
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error { return pubsub.Run(gctx) })
	g.Go(func() error { return socket.Run(gctx) })
	g.Go(func() error { return scheduler.Run(gctx) })
	g.Go(func() error { return offline.Run(gctx) })
	g.Go(func() error { return upcoming.Run(gctx) })

	// recycle the session once a day; long-lived playback tokens go stale
	g.Go(func() error {
		schedule, err := cron.ParseStandard("0 0 * * *")
		if err != nil {
			return err
		}
		timer := time.NewTimer(time.Until(schedule.Next(time.Now())))
		defer timer.Stop()
		select {
		case <-gctx.Done():
			return gctx.Err()
		case <-timer.C:
			return errRestartRequested
		}
	})

	return g.Wait()
}

func extendLock(ctx context.Context, mutex *redsync.Mutex) {
	ticker := time.NewTicker(services.MINER_LOCK_EXPIRY / 2)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if ok, err := mutex.ExtendContext(ctx); !ok || err != nil {
				log.Warn().Err(err).Msg("account lock extend failed")
			}
		}
	}
}

func notifyFatal(ctx context.Context, container *do.Injector, text string) {
	notifier, err := do.Invoke[interfaces.Notifier](container)
	if err != nil {
		return
	}
	notifier.Notify(ctx, text)
}

func NewContainer(vs map[string]string) *do.Injector {
	injector := do.New()
	vs["API_MODE"] = os.Getenv("API_MODE")
	vs["TWITCH_DEVICE_ID"] = os.Getenv("TWITCH_DEVICE_ID")
	vs["TELEGRAM_BOT_TOKEN"] = os.Getenv("TELEGRAM_BOT_TOKEN")
	vs["TELEGRAM_CHAT_ID"] = os.Getenv("TELEGRAM_CHAT_ID")

	if vs["API_MODE"] == "" {
		vs["API_MODE"] = "production"
	}

	do.ProvideNamedValue(injector, "envs", vs)

	do.ProvideNamed(injector, "redis-db", func(i *do.Injector) (redis.UniversalClient, error) {
		return db.InitRedis(&db.RedisConfig{
			URL: vs["REDIS_MINER"],
		})
	})

	do.Provide(injector, func(i *do.Injector) (caching.Cache, error) {
		dbRedis, err := do.InvokeNamed[redis.UniversalClient](i, "redis-db")
		if err != nil {
			return nil, err
		}
		return caching.NewCacheRedis(dbRedis, false)
	})

	do.Provide(injector, func(i *do.Injector) (interfaces.Limiter, error) {
		dbRedis, err := do.InvokeNamed[redis.UniversalClient](i, "redis-db")
		if err != nil {
			return nil, err
		}
		return limiter.New(dbRedis), nil
	})

	do.Provide(injector, func(i *do.Injector) (*redsync.Redsync, error) {
		dbRedis, err := do.InvokeNamed[redis.UniversalClient](i, "redis-db")
		if err != nil {
			return nil, err
		}
		pool := goredis.NewPool(dbRedis)
		return redsync.New(pool), nil
	})

	do.Provide(injector, func(i *do.Injector) (interfaces.TwitchAPI, error) {
		return twitch.NewGQL(twitch.GQLConfig{
			AuthToken: vs["TWITCH_AUTH_TOKEN"],
			ClientID:  vs["TWITCH_CLIENT_ID"],
			DeviceID:  vs["TWITCH_DEVICE_ID"],
			UserID:    vs["TWITCH_USER_ID"],
		}), nil
	})

	do.Provide(injector, func(i *do.Injector) (*twitch.PubSub, error) {
		return twitch.NewPubSub(vs["TWITCH_AUTH_TOKEN"]), nil
	})

	do.Provide(injector, func(i *do.Injector) (interfaces.PubSub, error) {
		return do.Invoke[*twitch.PubSub](i)
	})

	do.Provide(injector, func(i *do.Injector) (*twitch.Spade, error) {
		return twitch.NewSpade(vs["TWITCH_USER_ID"]), nil
	})

	do.Provide(injector, func(i *do.Injector) (*twitch.HLS, error) {
		return twitch.NewHLS(), nil
	})

	do.Provide(injector, func(i *do.Injector) (*services.MinerState, error) {
		return services.NewMinerState(), nil
	})

	do.Provide(injector, func(i *do.Injector) (interfaces.Notifier, error) {
		return services.NewNotifier(injector)
	})

	do.Provide(injector, func(i *do.Injector) (*services.ServiceSettings, error) {
		return services.NewServiceSettings(injector)
	})

	do.Provide(injector, func(i *do.Injector) (*services.ServiceCampaign, error) {
		return services.NewServiceCampaign(injector)
	})

	do.Provide(injector, func(i *do.Injector) (interfaces.Watcher, error) {
		return services.NewServiceWatch(injector)
	})

	do.Provide(injector, func(i *do.Injector) (*services.ServiceScheduler, error) {
		return services.NewServiceScheduler(injector)
	})

	do.Provide(injector, func(i *do.Injector) (*services.ServiceSocket, error) {
		return services.NewServiceSocket(injector)
	})

	do.Provide(injector, func(i *do.Injector) (*services.ServiceOffline, error) {
		return services.NewServiceOffline(injector)
	})

	do.Provide(injector, func(i *do.Injector) (*services.ServiceUpcoming, error) {
		return services.NewServiceUpcoming(injector)
	})

	return injector
}
