// Package store defines the abstract tracking backend and the URI-scheme
// registry through which concrete backends are resolved.
package store

import (
	"context"
	"errors"

	"github.com/tracklab-io/tracklab/internal/domain"
)

// SearchMaxResultsDefault caps SearchRuns results when the caller does not
// ask for a specific limit.
const SearchMaxResultsDefault = 1000

var (
	// ErrNotFound is returned when a run or experiment does not exist.
	ErrNotFound = errors.New("not found")
	// ErrAlreadyExists is returned when an experiment name is taken.
	ErrAlreadyExists = errors.New("already exists")
)

// Store is the tracking backend behind the client façade. Implementations
// are safe for concurrent use.
type Store interface {
	CreateExperiment(ctx context.Context, name, artifactLocation string) (string, error)
	GetExperiment(ctx context.Context, experimentID string) (domain.Experiment, error)
	GetExperimentByName(ctx context.Context, name string) (domain.Experiment, error)
	ListExperiments(ctx context.Context, view domain.ViewType) ([]domain.Experiment, error)
	DeleteExperiment(ctx context.Context, experimentID string) error
	RestoreExperiment(ctx context.Context, experimentID string) error
	RenameExperiment(ctx context.Context, experimentID, newName string) error

	CreateRun(ctx context.Context, experimentID, userID string, startTime int64, tags []domain.RunTag) (domain.Run, error)
	GetRun(ctx context.Context, runID string) (domain.Run, error)
	UpdateRunInfo(ctx context.Context, runID string, status domain.RunStatus, endTime int64) (domain.RunInfo, error)
	DeleteRun(ctx context.Context, runID string) error
	RestoreRun(ctx context.Context, runID string) error
	ListRunInfos(ctx context.Context, experimentID string, view domain.ViewType) ([]domain.RunInfo, error)

	LogMetric(ctx context.Context, runID string, metric domain.Metric) error
	LogParam(ctx context.Context, runID string, param domain.Param) error
	SetTag(ctx context.Context, runID string, tag domain.RunTag) error
	// LogBatch applies all entries or none of them.
	LogBatch(ctx context.Context, runID string, metrics []domain.Metric, params []domain.Param, tags []domain.RunTag) error
	GetMetricHistory(ctx context.Context, runID, key string) ([]domain.Metric, error)

	// SearchRuns returns runs in the given experiments matching the filter
	// expression, limited to maxResults, ordered by orderBy clauses (default
	// ordering is start_time descending, then run_id).
	SearchRuns(ctx context.Context, experimentIDs []string, filter string, view domain.ViewType, maxResults int, orderBy []string) ([]domain.Run, error)

	Close() error
}
