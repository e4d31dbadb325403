package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"

	"github.com/chrissnell/signallab/internal/log"
)

// runRecord is the gorm model behind PostgresStore
type runRecord struct {
	ID          string    `gorm:"primaryKey;type:uuid"`
	Name        string    `gorm:"not null"`
	CreatedAt   time.Time `gorm:"not null;index"`
	SampleCount int       `gorm:"not null"`
	NumSegments int       `gorm:"not null"`
	Payload     []byte    `gorm:"type:bytea;not null"`
	Labels      []byte    `gorm:"type:bytea"`
}

func (runRecord) TableName() string {
	return "signallab_runs"
}

// PostgresStore persists runs in PostgreSQL through gorm
type PostgresStore struct {
	db     *gorm.DB
	logger *zap.SugaredLogger
}

// NewPostgresStore connects to dsn and migrates the runs table
func NewPostgresStore(dsn string, zl *zap.SugaredLogger) (*PostgresStore, error) {
	dbLogger := logger.New(
		zap.NewStdLog(log.GetZapLogger()),
		logger.Config{
			SlowThreshold:             time.Second,
			LogLevel:                  logger.Warn,
			IgnoreRecordNotFoundError: true,
			Colorful:                  false,
		},
	)

	if zl != nil {
		zl.Info("connecting to PostgreSQL run store...")
	}
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{Logger: dbLogger})
	if err != nil {
		return nil, fmt.Errorf("unable to connect to PostgreSQL: %w", err)
	}

	if err := db.AutoMigrate(&runRecord{}); err != nil {
		return nil, fmt.Errorf("failed to migrate runs table: %w", err)
	}

	return &PostgresStore{db: db, logger: zl}, nil
}

func (p *PostgresStore) SaveRun(ctx context.Context, run *Run) error {
	if err := prepare(run); err != nil {
		return err
	}
	rec, err := toRecord(run)
	if err != nil {
		return err
	}

	err = p.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "id"}},
			DoUpdates: clause.AssignmentColumns([]string{"name", "sample_count", "num_segments", "payload", "labels"}),
		}).
		Create(rec).Error
	if err != nil {
		return fmt.Errorf("failed to save run %s: %w", run.ID, err)
	}
	return nil
}

func (p *PostgresStore) GetRun(ctx context.Context, id uuid.UUID) (*Run, error) {
	var rec runRecord
	err := p.db.WithContext(ctx).First(&rec, "id = ?", id.String()).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrRunNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load run %s: %w", id, err)
	}
	return fromRecord(&rec)
}

func (p *PostgresStore) ListRuns(ctx context.Context, limit int) ([]*Run, error) {
	query := p.db.WithContext(ctx).Omit("payload").Order("created_at DESC, id")
	if limit > 0 {
		query = query.Limit(limit)
	}

	var recs []runRecord
	if err := query.Find(&recs).Error; err != nil {
		return nil, fmt.Errorf("failed to list runs: %w", err)
	}

	runs := make([]*Run, 0, len(recs))
	for i := range recs {
		run, err := fromRecord(&recs[i])
		if err != nil {
			return nil, err
		}
		runs = append(runs, run)
	}
	return runs, nil
}

func (p *PostgresStore) UpdateLabels(ctx context.Context, id uuid.UUID, labels []int) error {
	data, err := encodeLabels(labels)
	if err != nil {
		return err
	}
	res := p.db.WithContext(ctx).Model(&runRecord{}).Where("id = ?", id.String()).Update("labels", data)
	if res.Error != nil {
		return fmt.Errorf("failed to update labels of run %s: %w", id, res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrRunNotFound
	}
	return nil
}

func (p *PostgresStore) DeleteRun(ctx context.Context, id uuid.UUID) error {
	res := p.db.WithContext(ctx).Where("id = ?", id.String()).Delete(&runRecord{})
	if res.Error != nil {
		return fmt.Errorf("failed to delete run %s: %w", id, res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrRunNotFound
	}
	return nil
}

func (p *PostgresStore) CountRuns(ctx context.Context) (int, error) {
	var n int64
	if err := p.db.WithContext(ctx).Model(&runRecord{}).Count(&n).Error; err != nil {
		return 0, fmt.Errorf("failed to count runs: %w", err)
	}
	return int(n), nil
}

func (p *PostgresStore) Close() error {
	sqlDB, err := p.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

func toRecord(run *Run) (*runRecord, error) {
	labels, err := encodeLabels(run.Labels)
	if err != nil {
		return nil, err
	}
	return &runRecord{
		ID:          run.ID.String(),
		Name:        run.Name,
		CreatedAt:   run.CreatedAt,
		SampleCount: run.SampleCount,
		NumSegments: run.NumSegments,
		Payload:     run.Payload,
		Labels:      labels,
	}, nil
}

func fromRecord(rec *runRecord) (*Run, error) {
	id, err := uuid.Parse(rec.ID)
	if err != nil {
		return nil, fmt.Errorf("invalid run id %q: %w", rec.ID, err)
	}
	labels, err := decodeLabels(rec.Labels)
	if err != nil {
		return nil, err
	}
	return &Run{
		ID:          id,
		Name:        rec.Name,
		CreatedAt:   rec.CreatedAt.UTC(),
		SampleCount: rec.SampleCount,
		NumSegments: rec.NumSegments,
		Payload:     rec.Payload,
		Labels:      labels,
	}, nil
}
