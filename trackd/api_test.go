package main

import (
	"bytes"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/tracklab-io/tracklab/internal/api"
	"github.com/tracklab-io/tracklab/internal/store/memory"
)

func newTestMux(t *testing.T) *http.ServeMux {
	t.Helper()
	logger := slog.New(slog.NewJSONHandler(io.Discard, nil))
	mux := http.NewServeMux()
	newTrackdAPI(logger, memory.New("file:///tmp/artifacts")).register(mux)
	return mux
}

func doJSON(t *testing.T, mux *http.ServeMux, method, path string, body any, out any) int {
	t.Helper()
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		reader = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, reader)
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)
	if out != nil && rec.Code < http.StatusBadRequest {
		if err := json.Unmarshal(rec.Body.Bytes(), out); err != nil {
			t.Fatalf("decode response %s: %v", rec.Body.String(), err)
		}
	}
	return rec.Code
}

func createExperiment(t *testing.T, mux *http.ServeMux, name string) string {
	t.Helper()
	var resp api.CreateExperimentResponse
	code := doJSON(t, mux, http.MethodPost, "/api/experiments", api.CreateExperimentRequest{Name: name}, &resp)
	if code != http.StatusCreated {
		t.Fatalf("create experiment: status %d", code)
	}
	return resp.ExperimentID
}

func createRun(t *testing.T, mux *http.ServeMux, experimentID string) api.Run {
	t.Helper()
	var run api.Run
	code := doJSON(t, mux, http.MethodPost, "/api/runs", api.CreateRunRequest{ExperimentID: experimentID, UserID: "ada"}, &run)
	if code != http.StatusCreated {
		t.Fatalf("create run: status %d", code)
	}
	return run
}

func TestRunLifecycle(t *testing.T) {
	mux := newTestMux(t)
	expID := createExperiment(t, mux, "demo")
	run := createRun(t, mux, expID)

	if run.Info.Status != "RUNNING" || run.Info.UserID != "ada" {
		t.Fatalf("unexpected run info: %+v", run.Info)
	}

	batch := api.LogBatchRequest{
		Metrics: []api.Metric{
			{Key: "loss", Value: 2.0, Timestamp: 100, Step: 0},
			{Key: "loss", Value: 1.5, Timestamp: 200, Step: 1},
		},
		Params: []api.Param{{Key: "lr", Value: "0.01"}},
		Tags:   []api.RunTag{{Key: "team", Value: "ml"}},
	}
	if code := doJSON(t, mux, http.MethodPost, "/api/runs/"+run.Info.RunID+"/batch", batch, nil); code != http.StatusNoContent {
		t.Fatalf("log batch: status %d", code)
	}

	var got api.Run
	if code := doJSON(t, mux, http.MethodGet, "/api/runs/"+run.Info.RunID, nil, &got); code != http.StatusOK {
		t.Fatalf("get run: status %d", code)
	}
	if float64(got.Data.Metrics["loss"]) != 1.5 {
		t.Fatalf("expected latest loss 1.5, got %v", got.Data.Metrics["loss"])
	}
	if got.Data.Params["lr"] != "0.01" || got.Data.Tags["team"] != "ml" {
		t.Fatalf("params/tags not persisted: %+v", got.Data)
	}

	var history api.MetricHistoryResponse
	if code := doJSON(t, mux, http.MethodGet, "/api/runs/"+run.Info.RunID+"/metrics?key=loss", nil, &history); code != http.StatusOK {
		t.Fatalf("metric history: status %d", code)
	}
	if len(history.Metrics) != 2 {
		t.Fatalf("expected 2 history points, got %d", len(history.Metrics))
	}

	var info api.RunInfo
	update := api.UpdateRunRequest{Status: "FINISHED", EndTime: 999}
	if code := doJSON(t, mux, http.MethodPatch, "/api/runs/"+run.Info.RunID, update, &info); code != http.StatusOK {
		t.Fatalf("update run: status %d", code)
	}
	if info.Status != "FINISHED" || info.EndTime != 999 {
		t.Fatalf("unexpected info after update: %+v", info)
	}
}

func TestDeleteAndRestoreRunAffectsListing(t *testing.T) {
	mux := newTestMux(t)
	expID := createExperiment(t, mux, "demo")
	run := createRun(t, mux, expID)

	if code := doJSON(t, mux, http.MethodDelete, "/api/runs/"+run.Info.RunID, nil, nil); code != http.StatusNoContent {
		t.Fatalf("delete run: status %d", code)
	}
	var listing api.RunInfosResponse
	doJSON(t, mux, http.MethodGet, "/api/experiments/"+expID+"/runs", nil, &listing)
	if len(listing.RunInfos) != 0 {
		t.Fatalf("deleted run still listed under default view")
	}
	doJSON(t, mux, http.MethodGet, "/api/experiments/"+expID+"/runs?view=DELETED_ONLY", nil, &listing)
	if len(listing.RunInfos) != 1 {
		t.Fatalf("deleted run absent from DELETED_ONLY view")
	}

	if code := doJSON(t, mux, http.MethodPost, "/api/runs/"+run.Info.RunID+"/restore", nil, nil); code != http.StatusNoContent {
		t.Fatalf("restore run: status %d", code)
	}
	doJSON(t, mux, http.MethodGet, "/api/experiments/"+expID+"/runs", nil, &listing)
	if len(listing.RunInfos) != 1 {
		t.Fatalf("restored run not listed")
	}
}

func TestExperimentNameConflict(t *testing.T) {
	mux := newTestMux(t)
	createExperiment(t, mux, "taken")

	code := doJSON(t, mux, http.MethodPost, "/api/experiments", api.CreateExperimentRequest{Name: "taken"}, nil)
	if code != http.StatusConflict {
		t.Fatalf("expected 409 for duplicate name, got %d", code)
	}
}

func TestGetMissingRunReturns404(t *testing.T) {
	mux := newTestMux(t)
	if code := doJSON(t, mux, http.MethodGet, "/api/runs/does-not-exist", nil, nil); code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", code)
	}
}

func TestSearchRunsFilters(t *testing.T) {
	mux := newTestMux(t)
	expID := createExperiment(t, mux, "demo")

	good := createRun(t, mux, expID)
	bad := createRun(t, mux, expID)
	logMetric := func(runID string, value float64) {
		batch := api.LogBatchRequest{Metrics: []api.Metric{{Key: "loss", Value: api.Float(value), Timestamp: 100}}}
		if code := doJSON(t, mux, http.MethodPost, "/api/runs/"+runID+"/batch", batch, nil); code != http.StatusNoContent {
			t.Fatalf("log batch: status %d", code)
		}
	}
	logMetric(good.Info.RunID, 0.1)
	logMetric(bad.Info.RunID, 5.0)

	var resp api.SearchRunsResponse
	search := api.SearchRunsRequest{ExperimentIDs: []string{expID}, Filter: "metrics.loss < 1"}
	if code := doJSON(t, mux, http.MethodPost, "/api/runs/search", search, &resp); code != http.StatusOK {
		t.Fatalf("search: status %d", code)
	}
	if len(resp.Runs) != 1 || resp.Runs[0].Info.RunID != good.Info.RunID {
		t.Fatalf("unexpected search result: %+v", resp.Runs)
	}
}

func TestSearchRunsRejectsBadFilter(t *testing.T) {
	mux := newTestMux(t)
	expID := createExperiment(t, mux, "demo")

	search := api.SearchRunsRequest{ExperimentIDs: []string{expID}, Filter: "metrics.loss <"}
	if code := doJSON(t, mux, http.MethodPost, "/api/runs/search", search, nil); code != http.StatusBadRequest {
		t.Fatalf("expected 400 for malformed filter, got %d", code)
	}
}

func TestRenameExperiment(t *testing.T) {
	mux := newTestMux(t)
	expID := createExperiment(t, mux, "before")

	req := api.RenameExperimentRequest{NewName: "after"}
	if code := doJSON(t, mux, http.MethodPost, "/api/experiments/"+expID+"/rename", req, nil); code != http.StatusNoContent {
		t.Fatalf("rename: status %d", code)
	}

	var exp api.Experiment
	if code := doJSON(t, mux, http.MethodGet, "/api/experiments/by-name?name=after", nil, &exp); code != http.StatusOK {
		t.Fatalf("get by name: status %d", code)
	}
	if exp.ExperimentID != expID {
		t.Fatalf("lookup by new name returned wrong experiment: %+v", exp)
	}
}
