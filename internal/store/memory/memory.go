// Package memory provides an in-process tracking backend, registered under
// the mem:// scheme. It backs tests and single-process deployments that do
// not need durability.
package memory

import (
	"context"
	"fmt"
	"net/url"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/tracklab-io/tracklab/internal/domain"
	"github.com/tracklab-io/tracklab/internal/store"
	"github.com/tracklab-io/tracklab/internal/store/query"
)

const defaultArtifactRoot = "file:///tmp/tracklab/artifacts"

func init() {
	store.Register("mem", func(ctx context.Context, uri *url.URL) (store.Store, error) {
		root := uri.Query().Get("artifacts")
		if root == "" {
			root = defaultArtifactRoot
		}
		return New(root), nil
	})
}

type runRecord struct {
	info    domain.RunInfo
	params  map[string]string
	tags    map[string]string
	history map[string][]domain.Metric
}

// Store is an in-memory tracking backend. Safe for concurrent use.
type Store struct {
	mu           sync.RWMutex
	artifactRoot string
	experiments  map[string]*domain.Experiment
	runs         map[string]*runRecord
}

// New builds an empty store. artifactRoot is the base location assigned to
// experiments created without an explicit artifact location.
func New(artifactRoot string) *Store {
	return &Store{
		artifactRoot: strings.TrimRight(artifactRoot, "/"),
		experiments:  make(map[string]*domain.Experiment),
		runs:         make(map[string]*runRecord),
	}
}

func (s *Store) CreateExperiment(ctx context.Context, name, artifactLocation string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, exp := range s.experiments {
		if exp.Name == name {
			return "", fmt.Errorf("experiment %q: %w", name, store.ErrAlreadyExists)
		}
	}
	id := uuid.NewString()
	if artifactLocation == "" {
		artifactLocation = s.artifactRoot + "/" + id
	}
	s.experiments[id] = &domain.Experiment{
		ExperimentID:     id,
		Name:             name,
		ArtifactLocation: artifactLocation,
		LifecycleStage:   domain.LifecycleActive,
	}
	return id, nil
}

func (s *Store) GetExperiment(ctx context.Context, experimentID string) (domain.Experiment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	exp, ok := s.experiments[experimentID]
	if !ok {
		return domain.Experiment{}, fmt.Errorf("experiment %q: %w", experimentID, store.ErrNotFound)
	}
	return *exp, nil
}

func (s *Store) GetExperimentByName(ctx context.Context, name string) (domain.Experiment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, exp := range s.experiments {
		if exp.Name == name {
			return *exp, nil
		}
	}
	return domain.Experiment{}, fmt.Errorf("experiment named %q: %w", name, store.ErrNotFound)
}

func (s *Store) ListExperiments(ctx context.Context, view domain.ViewType) ([]domain.Experiment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]domain.Experiment, 0, len(s.experiments))
	for _, exp := range s.experiments {
		if view.Matches(exp.LifecycleStage) {
			out = append(out, *exp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (s *Store) DeleteExperiment(ctx context.Context, experimentID string) error {
	return s.setExperimentStage(experimentID, domain.LifecycleDeleted)
}

func (s *Store) RestoreExperiment(ctx context.Context, experimentID string) error {
	return s.setExperimentStage(experimentID, domain.LifecycleActive)
}

func (s *Store) setExperimentStage(experimentID string, stage domain.LifecycleStage) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	exp, ok := s.experiments[experimentID]
	if !ok {
		return fmt.Errorf("experiment %q: %w", experimentID, store.ErrNotFound)
	}
	exp.LifecycleStage = stage
	return nil
}

func (s *Store) RenameExperiment(ctx context.Context, experimentID, newName string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	exp, ok := s.experiments[experimentID]
	if !ok {
		return fmt.Errorf("experiment %q: %w", experimentID, store.ErrNotFound)
	}
	for id, other := range s.experiments {
		if id != experimentID && other.Name == newName {
			return fmt.Errorf("experiment %q: %w", newName, store.ErrAlreadyExists)
		}
	}
	exp.Name = newName
	return nil
}

func (s *Store) CreateRun(ctx context.Context, experimentID, userID string, startTime int64, tags []domain.RunTag) (domain.Run, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	exp, ok := s.experiments[experimentID]
	if !ok {
		return domain.Run{}, fmt.Errorf("experiment %q: %w", experimentID, store.ErrNotFound)
	}
	if startTime == 0 {
		startTime = time.Now().UnixMilli()
	}
	id := uuid.NewString()
	rec := &runRecord{
		info: domain.RunInfo{
			RunID:          id,
			ExperimentID:   experimentID,
			UserID:         userID,
			Status:         domain.RunStatusRunning,
			StartTime:      startTime,
			LifecycleStage: domain.LifecycleActive,
			ArtifactURI:    strings.TrimRight(exp.ArtifactLocation, "/") + "/" + id + "/artifacts",
		},
		params:  make(map[string]string),
		tags:    make(map[string]string),
		history: make(map[string][]domain.Metric),
	}
	for _, tag := range tags {
		rec.tags[tag.Key] = tag.Value
	}
	s.runs[id] = rec
	return rec.snapshot(), nil
}

func (s *Store) GetRun(ctx context.Context, runID string) (domain.Run, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.runs[runID]
	if !ok {
		return domain.Run{}, fmt.Errorf("run %q: %w", runID, store.ErrNotFound)
	}
	return rec.snapshot(), nil
}

func (s *Store) UpdateRunInfo(ctx context.Context, runID string, status domain.RunStatus, endTime int64) (domain.RunInfo, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.runs[runID]
	if !ok {
		return domain.RunInfo{}, fmt.Errorf("run %q: %w", runID, store.ErrNotFound)
	}
	if status != "" {
		rec.info.Status = status
	}
	if endTime != 0 {
		rec.info.EndTime = endTime
	}
	return rec.info, nil
}

func (s *Store) DeleteRun(ctx context.Context, runID string) error {
	return s.setRunStage(runID, domain.LifecycleDeleted)
}

func (s *Store) RestoreRun(ctx context.Context, runID string) error {
	return s.setRunStage(runID, domain.LifecycleActive)
}

func (s *Store) setRunStage(runID string, stage domain.LifecycleStage) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.runs[runID]
	if !ok {
		return fmt.Errorf("run %q: %w", runID, store.ErrNotFound)
	}
	rec.info.LifecycleStage = stage
	return nil
}

func (s *Store) ListRunInfos(ctx context.Context, experimentID string, view domain.ViewType) ([]domain.RunInfo, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]domain.RunInfo, 0)
	for _, rec := range s.runs {
		if rec.info.ExperimentID == experimentID && view.Matches(rec.info.LifecycleStage) {
			out = append(out, rec.info)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].StartTime != out[j].StartTime {
			return out[i].StartTime > out[j].StartTime
		}
		return out[i].RunID < out[j].RunID
	})
	return out, nil
}

func (s *Store) LogMetric(ctx context.Context, runID string, metric domain.Metric) error {
	return s.LogBatch(ctx, runID, []domain.Metric{metric}, nil, nil)
}

func (s *Store) LogParam(ctx context.Context, runID string, param domain.Param) error {
	return s.LogBatch(ctx, runID, nil, []domain.Param{param}, nil)
}

func (s *Store) SetTag(ctx context.Context, runID string, tag domain.RunTag) error {
	return s.LogBatch(ctx, runID, nil, nil, []domain.RunTag{tag})
}

func (s *Store) LogBatch(ctx context.Context, runID string, metrics []domain.Metric, params []domain.Param, tags []domain.RunTag) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.runs[runID]
	if !ok {
		return fmt.Errorf("run %q: %w", runID, store.ErrNotFound)
	}
	for _, m := range metrics {
		rec.history[m.Key] = append(rec.history[m.Key], m)
	}
	for _, p := range params {
		rec.params[p.Key] = p.Value
	}
	for _, t := range tags {
		rec.tags[t.Key] = t.Value
	}
	return nil
}

func (s *Store) GetMetricHistory(ctx context.Context, runID, key string) ([]domain.Metric, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.runs[runID]
	if !ok {
		return nil, fmt.Errorf("run %q: %w", runID, store.ErrNotFound)
	}
	history := rec.history[key]
	out := make([]domain.Metric, len(history))
	copy(out, history)
	return out, nil
}

func (s *Store) SearchRuns(ctx context.Context, experimentIDs []string, filter string, view domain.ViewType, maxResults int, orderBy []string) ([]domain.Run, error) {
	comps, err := query.ParseFilter(filter)
	if err != nil {
		return nil, err
	}
	wanted := make(map[string]bool, len(experimentIDs))
	for _, id := range experimentIDs {
		wanted[id] = true
	}

	s.mu.RLock()
	candidates := make([]domain.Run, 0)
	for _, rec := range s.runs {
		if wanted[rec.info.ExperimentID] && view.Matches(rec.info.LifecycleStage) {
			candidates = append(candidates, rec.snapshot())
		}
	}
	s.mu.RUnlock()

	candidates = query.ApplyFilter(candidates, comps)
	if err := query.SortRuns(candidates, orderBy); err != nil {
		return nil, err
	}
	if maxResults <= 0 {
		maxResults = store.SearchMaxResultsDefault
	}
	if len(candidates) > maxResults {
		candidates = candidates[:maxResults]
	}
	return candidates, nil
}

func (s *Store) Close() error { return nil }

// snapshot materializes a read-only Run, resolving each metric key to its
// latest value: highest step, then timestamp, then value.
func (r *runRecord) snapshot() domain.Run {
	params := make(map[string]string, len(r.params))
	for k, v := range r.params {
		params[k] = v
	}
	tags := make(map[string]string, len(r.tags))
	for k, v := range r.tags {
		tags[k] = v
	}
	metrics := make(map[string]float64, len(r.history))
	for key, history := range r.history {
		latest := history[0]
		for _, m := range history[1:] {
			if laterMetric(m, latest) {
				latest = m
			}
		}
		metrics[key] = latest.Value
	}
	return domain.Run{
		Info: r.info,
		Data: domain.RunData{Params: params, Metrics: metrics, Tags: tags},
	}
}

func laterMetric(a, b domain.Metric) bool {
	if a.Step != b.Step {
		return a.Step > b.Step
	}
	if a.Timestamp != b.Timestamp {
		return a.Timestamp > b.Timestamp
	}
	return a.Value > b.Value
}
