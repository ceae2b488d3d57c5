package slot

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/oshokin/persistent-last-changed/internal/config"
	domain "github.com/oshokin/persistent-last-changed/internal/domain/sensor"
)

// FileRepository persists all snapshots to one JSON file on disk, keyed by sensor id.
// JSON is produced and consumed via protobuf JSON (protojson) over structpb.
type FileRepository struct {
	// path is the filesystem location of the JSON state file.
	path string
	// mu protects concurrent access to the state file.
	mu sync.Mutex
}

var _ Repository = (*FileRepository)(nil)

// NewFileRepository creates a repository that reads/writes JSON at the provided path.
func NewFileRepository(path string) *FileRepository {
	return &FileRepository{
		path: filepath.Clean(path),
	}
}

// Load reads the snapshot stored under key.
func (r *FileRepository) Load(_ context.Context, key string) (*domain.Snapshot, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	all, err := r.read()
	if err != nil {
		return nil, err
	}

	record := all.GetFields()[key].GetStructValue()
	if record == nil {
		return nil, ErrNotFound
	}

	return fromStruct(record), nil
}

// Save replaces the snapshot stored under key, keeping the other sensors' records.
func (r *FileRepository) Save(_ context.Context, key string, snapshot *domain.Snapshot) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	all, err := r.read()
	if err != nil && !errors.Is(err, ErrNotFound) {
		return err
	}

	if all == nil {
		all = &structpb.Struct{Fields: make(map[string]*structpb.Value)}
	}

	record, err := toStruct(snapshot)
	if err != nil {
		return err
	}

	all.Fields[key] = structpb.NewStructValue(record)

	marshalOptions := protojson.MarshalOptions{
		Multiline: true,
		Indent:    "  ",
	}

	data, err := marshalOptions.Marshal(all)
	if err != nil {
		return fmt.Errorf("encode state: %w", err)
	}

	// Write next to the target and rename so a crash never leaves a torn file.
	tmp := r.path + ".tmp"
	if err = os.WriteFile(tmp, data, config.DefaultFilePermissions); err != nil {
		return fmt.Errorf("write state file: %w", err)
	}

	if err = os.Rename(tmp, r.path); err != nil {
		return fmt.Errorf("replace state file: %w", err)
	}

	return nil
}

// read loads the whole file; ErrNotFound means it does not exist yet.
func (r *FileRepository) read() (*structpb.Struct, error) {
	contents, err := os.ReadFile(r.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, ErrNotFound
		}

		return nil, fmt.Errorf("read state file: %w", err)
	}

	var all structpb.Struct
	if err = protojson.Unmarshal(contents, &all); err != nil {
		return nil, fmt.Errorf("decode state file: %w", err)
	}

	if all.Fields == nil {
		all.Fields = make(map[string]*structpb.Value)
	}

	return &all, nil
}
