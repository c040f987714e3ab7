package memory

import (
	"context"
	"errors"
	"testing"

	"github.com/tracklab-io/tracklab/internal/domain"
	"github.com/tracklab-io/tracklab/internal/store"
)

func newTestStore(t *testing.T) (*Store, string) {
	t.Helper()
	s := New("file:///tmp/artifacts")
	expID, err := s.CreateExperiment(context.Background(), "exp", "")
	if err != nil {
		t.Fatalf("create experiment: %v", err)
	}
	return s, expID
}

func TestExperimentLifecycle(t *testing.T) {
	ctx := context.Background()
	s, expID := newTestStore(t)

	exp, err := s.GetExperiment(ctx, expID)
	if err != nil {
		t.Fatalf("get experiment: %v", err)
	}
	if exp.Name != "exp" || exp.LifecycleStage != domain.LifecycleActive {
		t.Fatalf("unexpected experiment: %+v", exp)
	}
	if exp.ArtifactLocation != "file:///tmp/artifacts/"+expID {
		t.Fatalf("unexpected artifact location: %s", exp.ArtifactLocation)
	}

	if _, err := s.CreateExperiment(ctx, "exp", ""); !errors.Is(err, store.ErrAlreadyExists) {
		t.Fatalf("expected ErrAlreadyExists for duplicate name, got %v", err)
	}

	if err := s.DeleteExperiment(ctx, expID); err != nil {
		t.Fatalf("delete: %v", err)
	}
	active, err := s.ListExperiments(ctx, domain.ViewActiveOnly)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(active) != 0 {
		t.Fatalf("expected no active experiments, got %d", len(active))
	}
	deleted, err := s.ListExperiments(ctx, domain.ViewDeletedOnly)
	if err != nil {
		t.Fatalf("list deleted: %v", err)
	}
	if len(deleted) != 1 {
		t.Fatalf("expected one deleted experiment, got %d", len(deleted))
	}

	if err := s.RestoreExperiment(ctx, expID); err != nil {
		t.Fatalf("restore: %v", err)
	}
	if err := s.RenameExperiment(ctx, expID, "renamed"); err != nil {
		t.Fatalf("rename: %v", err)
	}
	if byName, err := s.GetExperimentByName(ctx, "renamed"); err != nil || byName.ExperimentID != expID {
		t.Fatalf("get by name after rename: %v %+v", err, byName)
	}
}

func TestCreateAndGetRun(t *testing.T) {
	ctx := context.Background()
	s, expID := newTestStore(t)

	created, err := s.CreateRun(ctx, expID, "alice", 1552319350000, []domain.RunTag{
		{Key: domain.TagRunName, Value: "baseline"},
	})
	if err != nil {
		t.Fatalf("create run: %v", err)
	}
	if created.Info.Status != domain.RunStatusRunning {
		t.Fatalf("new run status = %s", created.Info.Status)
	}
	if created.Info.ArtifactURI != "file:///tmp/artifacts/"+expID+"/"+created.Info.RunID+"/artifacts" {
		t.Fatalf("unexpected artifact uri: %s", created.Info.ArtifactURI)
	}

	got, err := s.GetRun(ctx, created.Info.RunID)
	if err != nil {
		t.Fatalf("get run: %v", err)
	}
	if got.Data.Tags[domain.TagRunName] != "baseline" {
		t.Fatalf("tags not stored: %v", got.Data.Tags)
	}

	if _, err := s.GetRun(ctx, "11111111-1111-1111-1111-111111111111"); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if _, err := s.CreateRun(ctx, "no-such-exp", "alice", 0, nil); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected ErrNotFound for missing experiment, got %v", err)
	}
}

func TestMetricLatestValue(t *testing.T) {
	ctx := context.Background()
	s, expID := newTestStore(t)
	created, err := s.CreateRun(ctx, expID, "alice", 1, nil)
	if err != nil {
		t.Fatalf("create run: %v", err)
	}
	runID := created.Info.RunID

	for _, m := range []domain.Metric{
		{Key: "loss", Value: 3.0, Timestamp: 100, Step: 0},
		{Key: "loss", Value: 2.0, Timestamp: 200, Step: 1},
		{Key: "loss", Value: 2.5, Timestamp: 150, Step: 1},
	} {
		if err := s.LogMetric(ctx, runID, m); err != nil {
			t.Fatalf("log metric: %v", err)
		}
	}

	got, err := s.GetRun(ctx, runID)
	if err != nil {
		t.Fatalf("get run: %v", err)
	}
	// Highest step wins; within a step the later timestamp wins.
	if got.Data.Metrics["loss"] != 2.0 {
		t.Fatalf("latest loss = %v, want 2.0", got.Data.Metrics["loss"])
	}

	history, err := s.GetMetricHistory(ctx, runID, "loss")
	if err != nil {
		t.Fatalf("history: %v", err)
	}
	if len(history) != 3 {
		t.Fatalf("history length = %d, want 3", len(history))
	}
}

func TestLogBatchAndRunUpdate(t *testing.T) {
	ctx := context.Background()
	s, expID := newTestStore(t)
	created, _ := s.CreateRun(ctx, expID, "alice", 1, nil)
	runID := created.Info.RunID

	err := s.LogBatch(ctx, runID,
		[]domain.Metric{{Key: "m", Value: 1, Timestamp: 1}},
		[]domain.Param{{Key: "p", Value: "x"}},
		[]domain.RunTag{{Key: "t", Value: "y"}})
	if err != nil {
		t.Fatalf("log batch: %v", err)
	}
	got, _ := s.GetRun(ctx, runID)
	if got.Data.Metrics["m"] != 1 || got.Data.Params["p"] != "x" || got.Data.Tags["t"] != "y" {
		t.Fatalf("batch not applied: %+v", got.Data)
	}

	info, err := s.UpdateRunInfo(ctx, runID, domain.RunStatusFinished, 12345)
	if err != nil {
		t.Fatalf("update run info: %v", err)
	}
	if info.Status != domain.RunStatusFinished || info.EndTime != 12345 {
		t.Fatalf("unexpected info after update: %+v", info)
	}

	if err := s.DeleteRun(ctx, runID); err != nil {
		t.Fatalf("delete run: %v", err)
	}
	infos, err := s.ListRunInfos(ctx, expID, domain.ViewActiveOnly)
	if err != nil {
		t.Fatalf("list infos: %v", err)
	}
	if len(infos) != 0 {
		t.Fatalf("deleted run still listed: %+v", infos)
	}
	if err := s.RestoreRun(ctx, runID); err != nil {
		t.Fatalf("restore run: %v", err)
	}
	infos, _ = s.ListRunInfos(ctx, expID, domain.ViewActiveOnly)
	if len(infos) != 1 {
		t.Fatalf("restored run not listed")
	}
}

func TestSearchRuns(t *testing.T) {
	ctx := context.Background()
	s, expID := newTestStore(t)

	mk := func(start int64, metricVal float64, solver string) string {
		created, err := s.CreateRun(ctx, expID, "alice", start, nil)
		if err != nil {
			t.Fatalf("create run: %v", err)
		}
		err = s.LogBatch(ctx, created.Info.RunID,
			[]domain.Metric{{Key: "rmse", Value: metricVal, Timestamp: start}},
			[]domain.Param{{Key: "solver", Value: solver}}, nil)
		if err != nil {
			t.Fatalf("log batch: %v", err)
		}
		return created.Info.RunID
	}
	a := mk(100, 0.5, "adam")
	b := mk(200, 2.0, "adam")
	mk(300, 1.0, "sgd")

	runs, err := s.SearchRuns(ctx, []string{expID}, "params.solver = 'adam'", domain.ViewActiveOnly, 0, nil)
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if len(runs) != 2 {
		t.Fatalf("expected 2 adam runs, got %d", len(runs))
	}
	// Default ordering is start_time descending.
	if runs[0].Info.RunID != b || runs[1].Info.RunID != a {
		t.Fatalf("unexpected order: %s, %s", runs[0].Info.RunID, runs[1].Info.RunID)
	}

	runs, err = s.SearchRuns(ctx, []string{expID}, "", domain.ViewActiveOnly, 2, []string{"metrics.rmse ASC"})
	if err != nil {
		t.Fatalf("search ordered: %v", err)
	}
	if len(runs) != 2 || runs[0].Info.RunID != a {
		t.Fatalf("expected capped ascending rmse order starting with %s", a)
	}

	if err := s.DeleteRun(ctx, b); err != nil {
		t.Fatalf("delete: %v", err)
	}
	runs, _ = s.SearchRuns(ctx, []string{expID}, "", domain.ViewDeletedOnly, 0, nil)
	if len(runs) != 1 || runs[0].Info.RunID != b {
		t.Fatalf("deleted-only view wrong: %d runs", len(runs))
	}

	runs, _ = s.SearchRuns(ctx, nil, "", domain.ViewAll, 0, nil)
	if len(runs) != 0 {
		t.Fatalf("empty experiment set must match nothing, got %d", len(runs))
	}
}
