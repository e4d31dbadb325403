// Package storage persists analysis runs behind a pluggable Store.
package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/vmihailenco/msgpack/v5"
	"go.uber.org/zap"

	"github.com/chrissnell/signallab/pkg/config"
)

// ErrRunNotFound is returned when no run has the requested ID
var ErrRunNotFound = errors.New("run not found")

// Run is one persisted analysis. Payload is the msgpack-encoded result; it is
// left empty by ListRuns.
type Run struct {
	ID          uuid.UUID `json:"id"`
	Name        string    `json:"name"`
	CreatedAt   time.Time `json:"created_at"`
	SampleCount int       `json:"sample_count"`
	NumSegments int       `json:"num_segments"`
	Payload     []byte    `json:"-"`
	Labels      []int     `json:"labels,omitempty"`
}

// Store is implemented by every run backend
type Store interface {
	SaveRun(ctx context.Context, run *Run) error
	GetRun(ctx context.Context, id uuid.UUID) (*Run, error)
	ListRuns(ctx context.Context, limit int) ([]*Run, error)
	UpdateLabels(ctx context.Context, id uuid.UUID, labels []int) error
	DeleteRun(ctx context.Context, id uuid.UUID) error
	CountRuns(ctx context.Context) (int, error)
	Close() error
}

// New opens the backend named in the storage configuration
func New(cfg config.StorageConfig, logger *zap.SugaredLogger) (Store, error) {
	switch cfg.Backend {
	case config.StorageMemory, "":
		return NewMemoryStore(), nil
	case config.StorageSQLite:
		return NewSQLiteStore(cfg.SQLitePath, logger)
	case config.StoragePostgres:
		return NewPostgresStore(cfg.PostgresDSN, logger)
	default:
		return nil, fmt.Errorf("unknown storage backend %q", cfg.Backend)
	}
}

// EncodePayload serializes a run result
func EncodePayload(v interface{}) ([]byte, error) {
	return msgpack.Marshal(v)
}

// DecodePayload deserializes a run result produced by EncodePayload
func DecodePayload(data []byte, v interface{}) error {
	if len(data) == 0 {
		return errors.New("run has no payload")
	}
	return msgpack.Unmarshal(data, v)
}

// prepare fills in the ID and creation time of a run being saved for the first time
func prepare(run *Run) error {
	if run == nil {
		return errors.New("nil run")
	}
	if run.ID == uuid.Nil {
		run.ID = uuid.New()
	}
	if run.CreatedAt.IsZero() {
		run.CreatedAt = time.Now().UTC()
	}
	return nil
}

func encodeLabels(labels []int) ([]byte, error) {
	if labels == nil {
		return nil, nil
	}
	return msgpack.Marshal(labels)
}

func decodeLabels(data []byte) ([]int, error) {
	if len(data) == 0 {
		return nil, nil
	}
	var labels []int
	if err := msgpack.Unmarshal(data, &labels); err != nil {
		return nil, fmt.Errorf("decoding labels: %w", err)
	}
	return labels, nil
}

func cloneRun(run *Run, withPayload bool) *Run {
	c := *run
	if withPayload {
		c.Payload = append([]byte(nil), run.Payload...)
	} else {
		c.Payload = nil
	}
	if run.Labels != nil {
		c.Labels = append([]int(nil), run.Labels...)
	}
	return &c
}
