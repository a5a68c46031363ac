package tracking

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

var unsafeName = regexp.MustCompile(`[^A-Za-z0-9._-]+`)

// FileSink writes runs as JSON files under dir/<experiment>/<run id>/.
type FileSink struct {
	dir    string
	logger *zap.Logger
}

// NewFileSink creates dir if needed.
func NewFileSink(dir string, logger *zap.Logger) (*FileSink, error) {
	if dir == "" {
		dir = "mlruns"
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create tracking dir: %w", err)
	}
	return &FileSink{dir: dir, logger: logger.With(zap.String("component", "tracking_file"))}, nil
}

// RunMeta is the run.json document.
type RunMeta struct {
	ID         string             `json:"id"`
	Experiment string             `json:"experiment"`
	Name       string             `json:"name"`
	Status     string             `json:"status"`
	StartedAt  time.Time          `json:"started_at"`
	EndedAt    *time.Time         `json:"ended_at,omitempty"`
	Metrics    map[string]float64 `json:"metrics"`
	Tags       map[string]string  `json:"tags"`
}

// StartRun creates the run directory and writes run.json.
func (s *FileSink) StartRun(_ context.Context, experiment, run string) (Run, error) {
	id := uuid.NewString()
	dir := filepath.Join(s.dir, unsafeName.ReplaceAllString(experiment, "_"), id)
	if err := os.MkdirAll(filepath.Join(dir, "artifacts"), 0o755); err != nil {
		return nil, fmt.Errorf("create run dir: %w", err)
	}
	r := &fileRun{
		dir: dir,
		meta: RunMeta{
			ID: id, Experiment: experiment, Name: run, Status: StatusRunning,
			StartedAt: time.Now(), Metrics: map[string]float64{}, Tags: map[string]string{},
		},
	}
	if err := r.flush(); err != nil {
		return nil, err
	}
	s.logger.Info("run started", zap.String("experiment", experiment), zap.String("dir", dir))
	return r, nil
}

type fileRun struct {
	mu   sync.Mutex
	dir  string
	meta RunMeta
}

func (r *fileRun) ID() string { return r.meta.ID }

// Dir returns the run directory.
func (r *fileRun) Dir() string { return r.dir }

func (r *fileRun) flush() error {
	return writeJSON(filepath.Join(r.dir, "run.json"), r.meta)
}

func (r *fileRun) LogMetric(ctx context.Context, key string, value float64) error {
	return r.LogMetrics(ctx, map[string]float64{key: value})
}

func (r *fileRun) LogMetrics(_ context.Context, metrics map[string]float64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for k, v := range metrics {
		r.meta.Metrics[k] = v
	}
	return r.flush()
}

func (r *fileRun) LogArtifact(_ context.Context, name string, v any) error {
	return writeJSON(filepath.Join(r.dir, "artifacts", unsafeName.ReplaceAllString(name, "_")), v)
}

func (r *fileRun) SetTag(_ context.Context, key, value string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.meta.Tags[key] = value
	return r.flush()
}

func (r *fileRun) End(_ context.Context, status string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	now := time.Now()
	r.meta.Status = status
	r.meta.EndedAt = &now
	return r.flush()
}

func writeJSON(path string, v any) error {
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("encode %s: %w", filepath.Base(path), err)
	}
	if err := os.WriteFile(path, b, 0o644); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	return nil
}
