// Package tracking is the client façade over a tracking backend and the
// artifact repositories reachable from it. It validates inputs, forwards
// calls to the backend selected by the tracking URI, and reshapes run
// collections into tabular form.
package tracking

import (
	"context"
	"fmt"
	"time"

	"github.com/tracklab-io/tracklab/internal/artifact"
	"github.com/tracklab-io/tracklab/internal/config"
	"github.com/tracklab-io/tracklab/internal/domain"
	"github.com/tracklab-io/tracklab/internal/runtable"
	"github.com/tracklab-io/tracklab/internal/store"
	"github.com/tracklab-io/tracklab/internal/validation"

	_ "github.com/tracklab-io/tracklab/internal/artifact/local"
	_ "github.com/tracklab-io/tracklab/internal/artifact/s3"
	_ "github.com/tracklab-io/tracklab/internal/store/memory"
	_ "github.com/tracklab-io/tracklab/internal/store/postgres"
	_ "github.com/tracklab-io/tracklab/internal/store/rest"
)

// DefaultUser labels runs created without a user tag.
const DefaultUser = "unknown"

// Client talks to one tracking backend. Safe for concurrent use when the
// underlying store is.
type Client struct {
	store   store.Store
	repoFor func(ctx context.Context, uri string) (artifact.Repository, error)
	now     func() time.Time
}

// NewClient resolves the backend from trackingURI. An empty URI falls back
// to the client config file and its environment overrides.
func NewClient(ctx context.Context, trackingURI string) (*Client, error) {
	if trackingURI == "" {
		cfg, err := config.Load()
		if err != nil {
			return nil, err
		}
		trackingURI = cfg.TrackingURI
	}
	backend, err := store.Open(ctx, trackingURI)
	if err != nil {
		return nil, fmt.Errorf("open tracking backend: %w", err)
	}
	return NewClientForStore(backend), nil
}

// NewClientForStore wraps an already-constructed backend.
func NewClientForStore(backend store.Store) *Client {
	return &Client{
		store:   backend,
		repoFor: artifact.ForURI,
		now:     time.Now,
	}
}

func (c *Client) Close() error {
	return c.store.Close()
}

// CreateExperiment registers a named experiment. artifactLocation may be
// empty, in which case the backend picks its default.
func (c *Client) CreateExperiment(ctx context.Context, name, artifactLocation string) (string, error) {
	if err := validation.ExperimentName(name); err != nil {
		return "", err
	}
	if err := validation.ArtifactLocation(artifactLocation); err != nil {
		return "", err
	}
	return c.store.CreateExperiment(ctx, name, artifactLocation)
}

func (c *Client) GetExperiment(ctx context.Context, experimentID string) (domain.Experiment, error) {
	return c.store.GetExperiment(ctx, experimentID)
}

func (c *Client) GetExperimentByName(ctx context.Context, name string) (domain.Experiment, error) {
	return c.store.GetExperimentByName(ctx, name)
}

func (c *Client) ListExperiments(ctx context.Context, view domain.ViewType) ([]domain.Experiment, error) {
	return c.store.ListExperiments(ctx, view)
}

func (c *Client) DeleteExperiment(ctx context.Context, experimentID string) error {
	return c.store.DeleteExperiment(ctx, experimentID)
}

func (c *Client) RestoreExperiment(ctx context.Context, experimentID string) error {
	return c.store.RestoreExperiment(ctx, experimentID)
}

func (c *Client) RenameExperiment(ctx context.Context, experimentID, newName string) error {
	if err := validation.ExperimentName(newName); err != nil {
		return err
	}
	return c.store.RenameExperiment(ctx, experimentID, newName)
}

// CreateRun starts a run in an experiment. The owning user comes from the
// user tag when present, otherwise DefaultUser. A zero startTime means now.
func (c *Client) CreateRun(ctx context.Context, experimentID string, startTime int64, tags map[string]string) (domain.Run, error) {
	runTags := make([]domain.RunTag, 0, len(tags))
	for key, value := range tags {
		if err := validation.TagName(key); err != nil {
			return domain.Run{}, err
		}
		runTags = append(runTags, domain.RunTag{Key: key, Value: value})
	}
	user := tags[domain.TagUser]
	if user == "" {
		user = DefaultUser
	}
	if startTime == 0 {
		startTime = c.now().UnixMilli()
	}
	return c.store.CreateRun(ctx, experimentID, user, startTime, runTags)
}

func (c *Client) GetRun(ctx context.Context, runID string) (domain.Run, error) {
	if err := validation.RunID(runID); err != nil {
		return domain.Run{}, err
	}
	return c.store.GetRun(ctx, runID)
}

func (c *Client) DeleteRun(ctx context.Context, runID string) error {
	if err := validation.RunID(runID); err != nil {
		return err
	}
	return c.store.DeleteRun(ctx, runID)
}

func (c *Client) RestoreRun(ctx context.Context, runID string) error {
	if err := validation.RunID(runID); err != nil {
		return err
	}
	return c.store.RestoreRun(ctx, runID)
}

// SetTerminated marks a run finished. An empty status means FINISHED; a
// zero endTime means now.
func (c *Client) SetTerminated(ctx context.Context, runID string, status domain.RunStatus, endTime int64) (domain.RunInfo, error) {
	if err := validation.RunID(runID); err != nil {
		return domain.RunInfo{}, err
	}
	if status == "" {
		status = domain.RunStatusFinished
	}
	if !status.Valid() {
		return domain.RunInfo{}, fmt.Errorf("invalid run status %q", status)
	}
	if endTime == 0 {
		endTime = c.now().UnixMilli()
	}
	return c.store.UpdateRunInfo(ctx, runID, status, endTime)
}

func (c *Client) ListRunInfos(ctx context.Context, experimentID string, view domain.ViewType) ([]domain.RunInfo, error) {
	return c.store.ListRunInfos(ctx, experimentID, view)
}

// LogMetric records one metric point. A zero timestamp means now.
func (c *Client) LogMetric(ctx context.Context, runID, key string, value float64, timestamp, step int64) error {
	if err := validation.RunID(runID); err != nil {
		return err
	}
	if timestamp == 0 {
		timestamp = c.now().UnixMilli()
	}
	if err := validation.Metric(key, value, timestamp, step); err != nil {
		return err
	}
	metric := domain.Metric{Key: key, Value: value, Timestamp: timestamp, Step: step}
	return c.store.LogMetric(ctx, runID, metric)
}

func (c *Client) LogParam(ctx context.Context, runID, key, value string) error {
	if err := validation.RunID(runID); err != nil {
		return err
	}
	if err := validation.ParamName(key); err != nil {
		return err
	}
	return c.store.LogParam(ctx, runID, domain.Param{Key: key, Value: value})
}

func (c *Client) SetTag(ctx context.Context, runID, key, value string) error {
	if err := validation.RunID(runID); err != nil {
		return err
	}
	if err := validation.TagName(key); err != nil {
		return err
	}
	return c.store.SetTag(ctx, runID, domain.RunTag{Key: key, Value: value})
}

// LogBatch records metrics, params, and tags in one atomic backend call.
// Validation covers every entry before anything is sent.
func (c *Client) LogBatch(ctx context.Context, runID string, metrics []domain.Metric, params []domain.Param, tags []domain.RunTag) error {
	if err := validation.RunID(runID); err != nil {
		return err
	}
	now := c.now().UnixMilli()
	for i := range metrics {
		if metrics[i].Timestamp == 0 {
			metrics[i].Timestamp = now
		}
		if err := validation.Metric(metrics[i].Key, metrics[i].Value, metrics[i].Timestamp, metrics[i].Step); err != nil {
			return err
		}
	}
	for _, p := range params {
		if err := validation.ParamName(p.Key); err != nil {
			return err
		}
	}
	for _, t := range tags {
		if err := validation.TagName(t.Key); err != nil {
			return err
		}
	}
	return c.store.LogBatch(ctx, runID, metrics, params, tags)
}

func (c *Client) GetMetricHistory(ctx context.Context, runID, key string) ([]domain.Metric, error) {
	if err := validation.RunID(runID); err != nil {
		return nil, err
	}
	if err := validation.Key(key); err != nil {
		return nil, err
	}
	return c.store.GetMetricHistory(ctx, runID, key)
}

// SearchRuns queries runs across experiments. A zero maxResults applies
// the backend's default cap.
func (c *Client) SearchRuns(ctx context.Context, experimentIDs []string, filter string, view domain.ViewType, maxResults int, orderBy []string) ([]domain.Run, error) {
	if view == "" {
		view = domain.ViewActiveOnly
	}
	return c.store.SearchRuns(ctx, experimentIDs, filter, view, maxResults, orderBy)
}

// SearchRunsTable runs SearchRuns and pivots the result into one
// rectangular table, one row per run.
func (c *Client) SearchRunsTable(ctx context.Context, experimentIDs []string, filter string, view domain.ViewType, maxResults int, orderBy []string) (*runtable.Table, error) {
	runs, err := c.SearchRuns(ctx, experimentIDs, filter, view, maxResults, orderBy)
	if err != nil {
		return nil, err
	}
	return runtable.Pivot(runs), nil
}

// RunsToTable pivots an already-fetched run collection.
func RunsToTable(runs []domain.Run) *runtable.Table {
	return runtable.Pivot(runs)
}
