package natsfeed

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/oshokin/persistent-last-changed/internal/feed"
	"github.com/oshokin/persistent-last-changed/internal/logger"
)

// clientName identifies this service in NATS monitoring.
const clientName = "persistent-last-changed"

// errURLRequired is returned when Connect is called without a server URL.
var errURLRequired = errors.New("nats url must be provided")

// Feed subscribes to state_changed events published on "<prefix>.<entity_id>".
type Feed struct {
	conn   *nats.Conn
	prefix string
}

var _ feed.Feed = (*Feed)(nil)

// Connect dials the NATS server with reconnects enabled and logs connection changes.
func Connect(ctx context.Context, url string, timeout time.Duration) (*nats.Conn, error) {
	if url == "" {
		return nil, errURLRequired
	}

	conn, err := nats.Connect(url,
		nats.Name(clientName),
		nats.Timeout(timeout),
		nats.MaxReconnects(-1),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				logger.WarnKV(ctx, "NATS disconnected", "error", err)
			}
		}),
		nats.ReconnectHandler(func(c *nats.Conn) {
			logger.InfoKV(ctx, "NATS reconnected", "url", c.ConnectedUrl())
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("connect to NATS: %w", err)
	}

	return conn, nil
}

// New creates a feed on an established connection.
func New(conn *nats.Conn, subjectPrefix string) *Feed {
	return &Feed{
		conn:   conn,
		prefix: strings.TrimSuffix(subjectPrefix, "."),
	}
}

// Subject returns the subject carrying events for entityID.
func (f *Feed) Subject(entityID string) string {
	return f.prefix + "." + entityID
}

// Subscribe delivers decoded events for entityID to handler. NATS runs the
// callbacks of one subscription sequentially, so delivery order is kept.
// Undecodable messages and events for other entities are logged and dropped.
func (f *Feed) Subscribe(ctx context.Context, entityID string, handler feed.Handler) (feed.Subscription, error) {
	subject := f.Subject(entityID)

	sub, err := f.conn.Subscribe(subject, func(msg *nats.Msg) {
		event, err := feed.Decode(msg.Data)
		if err != nil {
			logger.DebugKV(ctx, "Dropping malformed event", "subject", msg.Subject, "error", err)

			return
		}

		if event.EntityID != entityID {
			logger.DebugKV(ctx, "Dropping event for another entity", "subject", msg.Subject, "entity", event.EntityID)

			return
		}

		handler(ctx, event)
	})
	if err != nil {
		return nil, fmt.Errorf("subscribe %s: %w", subject, err)
	}

	logger.DebugKV(ctx, "Subscribed to state changes", "subject", subject)

	return sub, nil
}

// Publish sends event on its entity subject and flushes the connection.
func (f *Feed) Publish(ctx context.Context, event feed.Event) error {
	payload, err := feed.Encode(event)
	if err != nil {
		return err
	}

	subject := f.Subject(event.EntityID)
	if err = f.conn.Publish(subject, payload); err != nil {
		return fmt.Errorf("publish %s: %w", subject, err)
	}

	if err = f.conn.FlushWithContext(ctx); err != nil {
		return fmt.Errorf("flush: %w", err)
	}

	return nil
}
