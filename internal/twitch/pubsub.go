package twitch

import (
	"context"
	"encoding/json"
	"math/rand"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"dropminer/internal/models"
)

const (
	pubsubURL = "wss://pubsub-edge.twitch.tv/v1"

	pingInterval     = 4 * time.Minute
	reconnectBase    = time.Second
	reconnectCap     = 60 * time.Second
	messagesCapacity = 64
)

type pubsubFrame struct {
	Type  string `json:"type"`
	Nonce string `json:"nonce,omitempty"`
	Error string `json:"error,omitempty"`
	Data  *struct {
		Topics    []string `json:"topics,omitempty"`
		AuthToken string   `json:"auth_token,omitempty"`
		Topic     string   `json:"topic,omitempty"`
		Message   string   `json:"message,omitempty"`
	} `json:"data,omitempty"`
}

type pubsubInner struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

// PubSub keeps one socket to the push edge alive. Subscriptions survive
// reconnects; the consumer reads decoded records from Messages.
type PubSub struct {
	authToken string

	mu     sync.Mutex
	conn   *websocket.Conn
	topics map[string]struct{}

	messages chan models.PubSubMessage
}

func NewPubSub(authToken string) *PubSub {
	return &PubSub{
		authToken: authToken,
		topics:    map[string]struct{}{},
		messages:  make(chan models.PubSubMessage, messagesCapacity),
	}
}

func (p *PubSub) Messages() <-chan models.PubSubMessage {
	return p.messages
}

// Listen subscribes to "<topic>.<id>". Safe to call before the socket is up;
// the topic is replayed on (re)connect.
func (p *PubSub) Listen(ctx context.Context, topic, id string) error {
	full := topic + "." + id

	p.mu.Lock()
	_, known := p.topics[full]
	p.topics[full] = struct{}{}
	conn := p.conn
	p.mu.Unlock()

	if known || conn == nil {
		return nil
	}
	return p.send(ctx, conn, "LISTEN", []string{full})
}

func (p *PubSub) Unlisten(ctx context.Context, topic, id string) error {
	full := topic + "." + id

	p.mu.Lock()
	_, known := p.topics[full]
	delete(p.topics, full)
	conn := p.conn
	p.mu.Unlock()

	if !known || conn == nil {
		return nil
	}
	return p.send(ctx, conn, "UNLISTEN", []string{full})
}

func (p *PubSub) send(ctx context.Context, conn *websocket.Conn, frameType string, topics []string) error {
	frame := pubsubFrame{Type: frameType, Nonce: uuid.NewString()}
	if len(topics) > 0 {
		frame.Data = &struct {
			Topics    []string `json:"topics,omitempty"`
			AuthToken string   `json:"auth_token,omitempty"`
			Topic     string   `json:"topic,omitempty"`
			Message   string   `json:"message,omitempty"`
		}{Topics: topics, AuthToken: p.authToken}
	}
	b, err := json.Marshal(frame)
	if err != nil {
		return err
	}
	return conn.Write(ctx, websocket.MessageText, b)
}

// Run owns the connection: dial, resubscribe, read, ping, reconnect with
// capped exponential backoff. Returns only when ctx is done.
func (p *PubSub) Run(ctx context.Context) error {
	attempt := 0
	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}

		err := p.session(ctx)
		if ctx.Err() != nil {
			return ctx.Err()
		}

		attempt++
		wait := reconnectBase << min(attempt, 6)
		if wait > reconnectCap {
			wait = reconnectCap
		}
		wait += time.Duration(rand.Int63n(int64(time.Second)))
		log.Warn().Err(err).Dur("wait", wait).Msg("pubsub disconnected, reconnecting")

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(wait):
		}
	}
}

func (p *PubSub) session(ctx context.Context) error {
	conn, _, err := websocket.Dial(ctx, pubsubURL, nil)
	if err != nil {
		return err
	}
	defer conn.Close(websocket.StatusNormalClosure, "")

	p.mu.Lock()
	p.conn = conn
	topics := make([]string, 0, len(p.topics))
	for t := range p.topics {
		topics = append(topics, t)
	}
	p.mu.Unlock()

	defer func() {
		p.mu.Lock()
		p.conn = nil
		p.mu.Unlock()
	}()

	if len(topics) > 0 {
		if err := p.send(ctx, conn, "LISTEN", topics); err != nil {
			return err
		}
		log.Info().Int("topics", len(topics)).Msg("pubsub resubscribed")
	}

	sessionCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	go p.pingLoop(sessionCtx, conn)

	for {
		_, raw, err := conn.Read(sessionCtx)
		if err != nil {
			return err
		}

		var frame pubsubFrame
		if err := json.Unmarshal(raw, &frame); err != nil {
			log.Debug().Err(err).Msg("pubsub frame decode")
			continue
		}

		switch frame.Type {
		case "PONG":
		case "RESPONSE":
			if frame.Error != "" {
				log.Warn().Str("error", frame.Error).Msg("pubsub listen rejected")
			}
		case "RECONNECT":
			return errReconnectRequested
		case "MESSAGE":
			if frame.Data == nil {
				continue
			}
			var inner pubsubInner
			if err := json.Unmarshal([]byte(frame.Data.Message), &inner); err != nil {
				log.Debug().Err(err).Str("topic", frame.Data.Topic).Msg("pubsub payload decode")
				continue
			}
			msg := models.PubSubMessage{Topic: frame.Data.Topic, Type: inner.Type, Payload: inner.Data}
			select {
			case p.messages <- msg:
			default:
				// consumer lagging; drop rather than stall the socket
				log.Warn().Str("topic", msg.Topic).Msg("pubsub message dropped")
			}
		}
	}
}

var errReconnectRequested = websocket.CloseError{Code: websocket.StatusServiceRestart, Reason: "server requested reconnect"}

func (p *PubSub) pingLoop(ctx context.Context, conn *websocket.Conn) {
	jitter := time.Duration(rand.Int63n(int64(10 * time.Second)))
	ticker := time.NewTicker(pingInterval + jitter)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := p.send(ctx, conn, "PING", nil); err != nil {
				return
			}
		}
	}
}
