package services

import (
	"context"
	"strconv"
	"time"

	"dropminer/internal/datastore/redis_store"
	"dropminer/internal/interfaces"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
	"github.com/samber/do"
	"gopkg.in/telebot.v3"
)

// notifyCooldown spaces alerts out so a flapping claim loop cannot flood
// the chat.
const notifyCooldown = 30 * time.Second

// NotifierTelegram pushes claim and shutdown alerts to a telegram chat.
type NotifierTelegram struct {
	bot     *telebot.Bot
	chatID  int64
	redisDB redis.UniversalClient
	userID  string
}

// NotifierNoop swallows notifications; used when no bot token is configured.
type NotifierNoop struct{}

func (NotifierNoop) Notify(context.Context, string) {}

// NewNotifier builds a telegram notifier when TELEGRAM_BOT_TOKEN and
// TELEGRAM_CHAT_ID are set, a no-op otherwise. Missing credentials are not
// an error; notifications are strictly optional.
func NewNotifier(container *do.Injector) (interfaces.Notifier, error) {
	vs, err := do.InvokeNamed[map[string]string](container, "envs")
	if err != nil {
		return nil, err
	}

	token := vs["TELEGRAM_BOT_TOKEN"]
	chatRaw := vs["TELEGRAM_CHAT_ID"]
	if token == "" || chatRaw == "" {
		return NotifierNoop{}, nil
	}

	chatID, err := strconv.ParseInt(chatRaw, 10, 64)
	if err != nil {
		log.Warn().Err(err).Msg("bad TELEGRAM_CHAT_ID, notifications disabled")
		return NotifierNoop{}, nil
	}

	bot, err := telebot.NewBot(telebot.Settings{
		Token:  token,
		Poller: &telebot.LongPoller{Timeout: 10 * time.Second},
	})
	if err != nil {
		log.Warn().Err(err).Msg("telegram bot init failed, notifications disabled")
		return NotifierNoop{}, nil
	}

	redisDB, err := do.InvokeNamed[redis.UniversalClient](container, "redis-db")
	if err != nil {
		return nil, err
	}

	return &NotifierTelegram{
		bot:     bot,
		chatID:  chatID,
		redisDB: redisDB,
		userID:  vs["TWITCH_USER_ID"],
	}, nil
}

func (n *NotifierTelegram) Notify(ctx context.Context, text string) {
	last, err := redis_store.GetLastNotify(ctx, n.redisDB, n.userID)
	if err == nil && time.Since(last) < notifyCooldown {
		log.Debug().Str("text", text).Msg("notification suppressed by cooldown")
		return
	}

	if _, err := n.bot.Send(telebot.ChatID(n.chatID), text); err != nil {
		log.Warn().Err(err).Msg("telegram notify failed")
		return
	}
	//nolint:errcheck
	redis_store.SetLastNotify(ctx, n.redisDB, n.userID, time.Now())
}
