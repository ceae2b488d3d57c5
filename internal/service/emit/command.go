package emit

import (
	"context"
	"errors"
	"time"

	"github.com/oshokin/persistent-last-changed/internal/config"
	"github.com/oshokin/persistent-last-changed/internal/feed"
	"github.com/oshokin/persistent-last-changed/internal/feed/natsfeed"
	"github.com/oshokin/persistent-last-changed/internal/logger"
)

// Options describes the event to publish.
type Options struct {
	// ConfigPath to YAML settings file, used when NATSURL is empty.
	ConfigPath string
	// NATSURL overrides the feed URL from config when specified.
	NATSURL string
	// SubjectPrefix overrides the subject prefix.
	SubjectPrefix string
	// EntityID is the source entity.
	EntityID string
	// OldState is the previous value, nil when absent.
	OldState *string
	// NewState is the new value, nil when the entity was removed.
	NewState *string
}

// errEntityRequired is returned when no entity id is given.
var errEntityRequired = errors.New("entity id must be provided")

// Run publishes the event and waits until the server acknowledged it.
func Run(ctx context.Context, opts *Options) error {
	ctx = logger.WithName(ctx, "last-changed-emit")

	if opts.EntityID == "" {
		return errEntityRequired
	}

	url := opts.NATSURL
	prefix := opts.SubjectPrefix
	timeout := config.DefaultTimeout

	if url == "" {
		cfg, err := config.Load(opts.ConfigPath)
		if err != nil {
			return err
		}

		url = cfg.NATS.URL
		timeout = cfg.NATS.Timeout

		if prefix == "" {
			prefix = cfg.NATS.SubjectPrefix
		}
	}

	if prefix == "" {
		prefix = config.DefaultSubjectPrefix
	}

	conn, err := natsfeed.Connect(ctx, url, timeout)
	if err != nil {
		return err
	}

	defer conn.Close()

	publisher := natsfeed.New(conn, prefix)

	event := feed.Event{
		EntityID: opts.EntityID,
		OldState: opts.OldState,
		NewState: opts.NewState,
		FiredAt:  time.Now(),
	}

	if err = publisher.Publish(ctx, event); err != nil {
		return err
	}

	logger.InfoKV(ctx, "Event published",
		"subject", publisher.Subject(opts.EntityID),
		"old_state", opts.OldState,
		"new_state", opts.NewState)

	return nil
}
