package slot

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"

	domain "github.com/oshokin/persistent-last-changed/internal/domain/sensor"
)

// KVRepository stores snapshots in a JetStream key-value bucket, one key per sensor.
type KVRepository struct {
	kv      jetstream.KeyValue
	timeout time.Duration
}

var _ Repository = (*KVRepository)(nil)

// NewKVRepository opens the bucket, creating it when it does not exist.
func NewKVRepository(ctx context.Context, conn *nats.Conn, bucket string, timeout time.Duration) (*KVRepository, error) {
	js, err := jetstream.New(conn)
	if err != nil {
		return nil, fmt.Errorf("create JetStream context: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	kv, err := js.CreateOrUpdateKeyValue(ctx, jetstream.KeyValueConfig{
		Bucket:      bucket,
		Description: "Persistent last-changed sensor snapshots",
		History:     1, // Keep only latest value
	})
	if err != nil {
		return nil, fmt.Errorf("open KV bucket %s: %w", bucket, err)
	}

	return &KVRepository{
		kv:      kv,
		timeout: timeout,
	}, nil
}

// Load reads the snapshot stored under key.
func (r *KVRepository) Load(ctx context.Context, key string) (*domain.Snapshot, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	entry, err := r.kv.Get(ctx, key)
	if err != nil {
		if errors.Is(err, jetstream.ErrKeyNotFound) {
			return nil, ErrNotFound
		}

		return nil, fmt.Errorf("get %s: %w", key, err)
	}

	return decode(entry.Value())
}

// Save replaces the snapshot stored under key.
func (r *KVRepository) Save(ctx context.Context, key string, snapshot *domain.Snapshot) error {
	data, err := encode(snapshot)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	if _, err = r.kv.Put(ctx, key, data); err != nil {
		return fmt.Errorf("put %s: %w", key, err)
	}

	return nil
}
