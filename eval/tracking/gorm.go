package tracking

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/BaSui01/weatherbot/internal/database"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// =============================================================================
// 🗃️ 表结构
// =============================================================================

// Experiment groups runs by name.
type Experiment struct {
	ID        uint   `gorm:"primaryKey"`
	Name      string `gorm:"size:255;uniqueIndex"`
	CreatedAt time.Time
}

// RunRecord is one tracked run.
type RunRecord struct {
	ID           string `gorm:"primaryKey;size:36"`
	ExperimentID uint   `gorm:"index"`
	Name         string `gorm:"size:255"`
	Status       string `gorm:"size:32"`
	StartedAt    time.Time
	EndedAt      *time.Time
}

func (RunRecord) TableName() string { return "runs" }

// MetricRecord is one logged metric value.
type MetricRecord struct {
	ID        uint   `gorm:"primaryKey"`
	RunID     string `gorm:"size:36;index"`
	Key       string `gorm:"size:255;index"`
	Value     float64
	Timestamp time.Time
}

func (MetricRecord) TableName() string { return "metrics" }

// ArtifactRecord is a JSON artifact.
type ArtifactRecord struct {
	ID        uint   `gorm:"primaryKey"`
	RunID     string `gorm:"size:36;uniqueIndex:idx_run_artifact"`
	Name      string `gorm:"size:255;uniqueIndex:idx_run_artifact"`
	Content   string `gorm:"type:text"`
	CreatedAt time.Time
}

func (ArtifactRecord) TableName() string { return "artifacts" }

// TagRecord is a run tag.
type TagRecord struct {
	RunID string `gorm:"primaryKey;size:36"`
	Key   string `gorm:"primaryKey;size:255"`
	Value string `gorm:"type:text"`
}

func (TagRecord) TableName() string { return "tags" }

// =============================================================================
// 📦 GormSink
// =============================================================================

// GormSink persists runs through GORM.
type GormSink struct {
	pool   *database.PoolManager
	logger *zap.Logger
}

// NewGormSink migrates the tracking tables and returns a sink.
func NewGormSink(pool *database.PoolManager, logger *zap.Logger) (*GormSink, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if err := pool.DB().AutoMigrate(&Experiment{}, &RunRecord{}, &MetricRecord{}, &ArtifactRecord{}, &TagRecord{}); err != nil {
		return nil, fmt.Errorf("migrate tracking tables: %w", err)
	}
	return &GormSink{pool: pool, logger: logger.With(zap.String("component", "tracking_gorm"))}, nil
}

// StartRun creates the experiment if needed and a new running run.
func (s *GormSink) StartRun(ctx context.Context, experiment, run string) (Run, error) {
	rec := RunRecord{ID: uuid.NewString(), Name: run, Status: StatusRunning, StartedAt: time.Now()}
	err := s.pool.WithTransactionRetry(ctx, 3, func(tx *gorm.DB) error {
		exp := Experiment{Name: experiment}
		if err := tx.Where(Experiment{Name: experiment}).FirstOrCreate(&exp).Error; err != nil {
			return err
		}
		rec.ExperimentID = exp.ID
		return tx.Create(&rec).Error
	})
	if err != nil {
		return nil, fmt.Errorf("start run: %w", err)
	}
	s.logger.Info("run started", zap.String("experiment", experiment), zap.String("run_id", rec.ID))
	return &gormRun{id: rec.ID, pool: s.pool}, nil
}

type gormRun struct {
	id   string
	pool *database.PoolManager
}

func (r *gormRun) ID() string { return r.id }

func (r *gormRun) LogMetric(ctx context.Context, key string, value float64) error {
	return r.LogMetrics(ctx, map[string]float64{key: value})
}

func (r *gormRun) LogMetrics(ctx context.Context, metrics map[string]float64) error {
	if len(metrics) == 0 {
		return nil
	}
	now := time.Now()
	recs := make([]MetricRecord, 0, len(metrics))
	for k, v := range metrics {
		recs = append(recs, MetricRecord{RunID: r.id, Key: k, Value: v, Timestamp: now})
	}
	return r.pool.WithTransactionRetry(ctx, 3, func(tx *gorm.DB) error {
		return tx.Create(&recs).Error
	})
}

func (r *gormRun) LogArtifact(ctx context.Context, name string, v any) error {
	b, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode artifact %s: %w", name, err)
	}
	rec := ArtifactRecord{RunID: r.id, Name: name, Content: string(b), CreatedAt: time.Now()}
	return r.pool.DB().WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "run_id"}, {Name: "name"}},
		DoUpdates: clause.AssignmentColumns([]string{"content", "created_at"}),
	}).Create(&rec).Error
}

func (r *gormRun) SetTag(ctx context.Context, key, value string) error {
	return r.pool.DB().WithContext(ctx).Clauses(clause.OnConflict{
		UpdateAll: true,
	}).Create(&TagRecord{RunID: r.id, Key: key, Value: value}).Error
}

func (r *gormRun) End(ctx context.Context, status string) error {
	now := time.Now()
	return r.pool.DB().WithContext(ctx).Model(&RunRecord{}).
		Where("id = ?", r.id).
		Updates(map[string]any{"status": status, "ended_at": &now}).Error
}
