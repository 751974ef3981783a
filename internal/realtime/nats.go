package realtime

import (
	"context"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog"
)

type NATSFeed struct {
	conn *nats.Conn
	log  zerolog.Logger
}

func NewNATSFeed(url string, log zerolog.Logger) (*NATSFeed, error) {
	log = log.With().Str("component", "nats_feed").Logger()
	conn, err := nats.Connect(
		url,
		nats.Name("fincoach-chat"),
		nats.Timeout(10*time.Second),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				log.Warn().Err(err).Msg("disconnected")
			}
		}),
		nats.ReconnectHandler(func(c *nats.Conn) {
			log.Info().Str("url", c.ConnectedUrl()).Msg("reconnected")
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("connect nats: %w", err)
	}
	return &NATSFeed{conn: conn, log: log}, nil
}

func (f *NATSFeed) Publish(_ context.Context, event Event) error {
	data, err := encode(event)
	if err != nil {
		return fmt.Errorf("encode event: %w", err)
	}
	if err := f.conn.Publish(Subject(event.ConversationID), data); err != nil {
		return fmt.Errorf("publish event: %w", err)
	}
	return nil
}

func (f *NATSFeed) Subscribe(conversationID int64, handler Handler) (Subscription, error) {
	sub, err := f.conn.Subscribe(Subject(conversationID), func(msg *nats.Msg) {
		event, err := decode(msg.Data)
		if err != nil {
			f.log.Warn().Err(err).Str("subject", msg.Subject).Msg("dropping malformed event")
			return
		}
		handler(event)
	})
	if err != nil {
		return nil, fmt.Errorf("subscribe %s: %w", Subject(conversationID), err)
	}
	return sub, nil
}

func (f *NATSFeed) Close() error {
	return f.conn.Drain()
}
