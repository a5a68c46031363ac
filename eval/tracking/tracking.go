package tracking

import (
	"context"
	"fmt"

	"github.com/BaSui01/weatherbot/config"
	"github.com/BaSui01/weatherbot/internal/database"
	"go.uber.org/zap"
)

// Run statuses.
const (
	StatusRunning  = "RUNNING"
	StatusFinished = "FINISHED"
	StatusFailed   = "FAILED"
)

// Sink records experiment runs.
type Sink interface {
	StartRun(ctx context.Context, experiment, run string) (Run, error)
}

// Run is one tracked execution. Methods are safe for concurrent use.
type Run interface {
	ID() string
	LogMetric(ctx context.Context, key string, value float64) error
	LogMetrics(ctx context.Context, metrics map[string]float64) error
	// LogArtifact stores v as a JSON document named name.
	LogArtifact(ctx context.Context, name string, v any) error
	SetTag(ctx context.Context, key, value string) error
	End(ctx context.Context, status string) error
}

// FromConfig builds the sink selected by cfg.Tracking. db is only needed
// for "gorm".
func FromConfig(cfg config.EvalConfig, db *database.PoolManager, logger *zap.Logger) (Sink, error) {
	switch cfg.Tracking {
	case "gorm":
		if db == nil {
			return nil, fmt.Errorf("gorm tracking requires a database")
		}
		return NewGormSink(db, logger)
	case "file", "":
		return NewFileSink(cfg.TrackingDir, logger)
	case "none":
		return Nop{}, nil
	default:
		return nil, fmt.Errorf("unknown tracking sink %q", cfg.Tracking)
	}
}

// Nop discards everything.
type Nop struct{}

func (Nop) StartRun(context.Context, string, string) (Run, error) { return nopRun{}, nil }

type nopRun struct{}

func (nopRun) ID() string                                           { return "" }
func (nopRun) LogMetric(context.Context, string, float64) error     { return nil }
func (nopRun) LogMetrics(context.Context, map[string]float64) error { return nil }
func (nopRun) LogArtifact(context.Context, string, any) error       { return nil }
func (nopRun) SetTag(context.Context, string, string) error         { return nil }
func (nopRun) End(context.Context, string) error                    { return nil }
