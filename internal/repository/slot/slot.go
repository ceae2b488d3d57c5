package slot

import (
	"context"
	"errors"
	"fmt"

	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/types/known/structpb"

	domain "github.com/oshokin/persistent-last-changed/internal/domain/sensor"
)

// Record field names shared by every backend.
const (
	fieldState      = "state"
	fieldAttributes = "attributes"
)

// ErrNotFound is returned when no snapshot was stored under a key yet.
var ErrNotFound = errors.New("snapshot not found")

// Repository persists sensor snapshots keyed by sensor unique id.
type Repository interface {
	Load(ctx context.Context, key string) (*domain.Snapshot, error)
	Save(ctx context.Context, key string, snapshot *domain.Snapshot) error
}

// Slot is the durable slot of one sensor.
type Slot struct {
	repo Repository
	key  string
}

// New binds a repository to the key of one sensor.
func New(repo Repository, key string) *Slot {
	return &Slot{
		repo: repo,
		key:  key,
	}
}

// Key returns the sensor unique id the slot is bound to.
func (s *Slot) Key() string {
	return s.key
}

// LoadPrior returns the snapshot stored before the last restart, or nil if there is none.
func (s *Slot) LoadPrior(ctx context.Context) (*domain.Snapshot, error) {
	snapshot, err := s.repo.Load(ctx, s.key)
	switch {
	case err == nil:
		return snapshot, nil
	case errors.Is(err, ErrNotFound):
		return nil, nil //nolint:nilnil // Missing prior state is the normal first start.
	default:
		return nil, fmt.Errorf("load snapshot %s: %w", s.key, err)
	}
}

// Publish persists the snapshot.
func (s *Slot) Publish(ctx context.Context, snapshot *domain.Snapshot) error {
	if err := s.repo.Save(ctx, s.key, snapshot); err != nil {
		return fmt.Errorf("save snapshot %s: %w", s.key, err)
	}

	return nil
}

// toStruct converts a snapshot into its protobuf Struct record.
func toStruct(snapshot *domain.Snapshot) (*structpb.Struct, error) {
	record, err := structpb.NewStruct(map[string]any{
		fieldState:      snapshot.State,
		fieldAttributes: snapshot.Attributes.Map(),
	})
	if err != nil {
		return nil, fmt.Errorf("encode snapshot: %w", err)
	}

	return record, nil
}

// fromStruct is the inverse of toStruct.
func fromStruct(record *structpb.Struct) *domain.Snapshot {
	fields := record.GetFields()
	snapshot := &domain.Snapshot{
		State: fields[fieldState].GetStringValue(),
	}

	if attrs := fields[fieldAttributes].GetStructValue(); attrs != nil {
		snapshot.Attributes = domain.AttributesFromMap(attrs.AsMap())
	}

	return snapshot
}

// encode renders a snapshot as protobuf JSON.
func encode(snapshot *domain.Snapshot) ([]byte, error) {
	record, err := toStruct(snapshot)
	if err != nil {
		return nil, err
	}

	data, err := protojson.Marshal(record)
	if err != nil {
		return nil, fmt.Errorf("marshal snapshot: %w", err)
	}

	return data, nil
}

// decode parses a snapshot written by encode.
func decode(data []byte) (*domain.Snapshot, error) {
	var record structpb.Struct
	if err := protojson.Unmarshal(data, &record); err != nil {
		return nil, fmt.Errorf("unmarshal snapshot: %w", err)
	}

	return fromStruct(&record), nil
}
