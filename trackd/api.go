package main

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/tracklab-io/tracklab/internal/api"
	"github.com/tracklab-io/tracklab/internal/domain"
	"github.com/tracklab-io/tracklab/internal/store"
	"github.com/tracklab-io/tracklab/internal/store/query"
)

type trackdAPI struct {
	logger *slog.Logger
	store  store.Store
}

func newTrackdAPI(logger *slog.Logger, backend store.Store) *trackdAPI {
	return &trackdAPI{logger: logger, store: backend}
}

func (a *trackdAPI) register(mux *http.ServeMux) {
	mux.HandleFunc("POST /api/experiments", a.handleCreateExperiment)
	mux.HandleFunc("GET /api/experiments", a.handleListExperiments)
	mux.HandleFunc("GET /api/experiments/by-name", a.handleGetExperimentByName)
	mux.HandleFunc("GET /api/experiments/{experiment_id}", a.handleGetExperiment)
	mux.HandleFunc("DELETE /api/experiments/{experiment_id}", a.handleDeleteExperiment)
	mux.HandleFunc("POST /api/experiments/{experiment_id}/restore", a.handleRestoreExperiment)
	mux.HandleFunc("POST /api/experiments/{experiment_id}/rename", a.handleRenameExperiment)
	mux.HandleFunc("GET /api/experiments/{experiment_id}/runs", a.handleListRunInfos)

	mux.HandleFunc("POST /api/runs", a.handleCreateRun)
	mux.HandleFunc("POST /api/runs/search", a.handleSearchRuns)
	mux.HandleFunc("GET /api/runs/{run_id}", a.handleGetRun)
	mux.HandleFunc("PATCH /api/runs/{run_id}", a.handleUpdateRun)
	mux.HandleFunc("DELETE /api/runs/{run_id}", a.handleDeleteRun)
	mux.HandleFunc("POST /api/runs/{run_id}/restore", a.handleRestoreRun)
	mux.HandleFunc("POST /api/runs/{run_id}/batch", a.handleLogBatch)
	mux.HandleFunc("GET /api/runs/{run_id}/metrics", a.handleMetricHistory)
}

func decodeJSON(r *http.Request, dst any) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, 1<<20))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return err
	}
	if err := dec.Decode(&struct{}{}); err != io.EOF {
		return errors.New("multiple JSON values")
	}
	return nil
}

func (a *trackdAPI) writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(true)
	_ = enc.Encode(body)
}

func (a *trackdAPI) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, store.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, store.ErrAlreadyExists):
		status = http.StatusConflict
	case errors.Is(err, query.ErrInvalidQuery):
		status = http.StatusBadRequest
	}
	if status == http.StatusInternalServerError {
		a.logger.Error("request failed", "method", r.Method, "path", r.URL.Path, "error", err)
	}
	a.writeJSON(w, status, api.ErrorResponse{Error: err.Error()})
}

func (a *trackdAPI) badRequest(w http.ResponseWriter, msg string) {
	a.writeJSON(w, http.StatusBadRequest, api.ErrorResponse{Error: msg})
}

func viewFromQuery(r *http.Request) domain.ViewType {
	view := domain.ViewType(r.URL.Query().Get("view"))
	if view == "" {
		view = domain.ViewActiveOnly
	}
	return view
}

func (a *trackdAPI) handleCreateExperiment(w http.ResponseWriter, r *http.Request) {
	var req api.CreateExperimentRequest
	if err := decodeJSON(r, &req); err != nil {
		a.badRequest(w, "invalid json")
		return
	}
	if req.Name == "" {
		a.badRequest(w, "name is required")
		return
	}
	id, err := a.store.CreateExperiment(r.Context(), req.Name, req.ArtifactLocation)
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	a.writeJSON(w, http.StatusCreated, api.CreateExperimentResponse{ExperimentID: id})
}

func (a *trackdAPI) handleListExperiments(w http.ResponseWriter, r *http.Request) {
	experiments, err := a.store.ListExperiments(r.Context(), viewFromQuery(r))
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	resp := api.ExperimentsResponse{Experiments: make([]api.Experiment, len(experiments))}
	for i, exp := range experiments {
		resp.Experiments[i] = api.FromDomainExperiment(exp)
	}
	a.writeJSON(w, http.StatusOK, resp)
}

func (a *trackdAPI) handleGetExperiment(w http.ResponseWriter, r *http.Request) {
	exp, err := a.store.GetExperiment(r.Context(), r.PathValue("experiment_id"))
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	a.writeJSON(w, http.StatusOK, api.FromDomainExperiment(exp))
}

func (a *trackdAPI) handleGetExperimentByName(w http.ResponseWriter, r *http.Request) {
	name := r.URL.Query().Get("name")
	if name == "" {
		a.badRequest(w, "name is required")
		return
	}
	exp, err := a.store.GetExperimentByName(r.Context(), name)
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	a.writeJSON(w, http.StatusOK, api.FromDomainExperiment(exp))
}

func (a *trackdAPI) handleDeleteExperiment(w http.ResponseWriter, r *http.Request) {
	if err := a.store.DeleteExperiment(r.Context(), r.PathValue("experiment_id")); err != nil {
		a.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (a *trackdAPI) handleRestoreExperiment(w http.ResponseWriter, r *http.Request) {
	if err := a.store.RestoreExperiment(r.Context(), r.PathValue("experiment_id")); err != nil {
		a.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (a *trackdAPI) handleRenameExperiment(w http.ResponseWriter, r *http.Request) {
	var req api.RenameExperimentRequest
	if err := decodeJSON(r, &req); err != nil {
		a.badRequest(w, "invalid json")
		return
	}
	if req.NewName == "" {
		a.badRequest(w, "new_name is required")
		return
	}
	if err := a.store.RenameExperiment(r.Context(), r.PathValue("experiment_id"), req.NewName); err != nil {
		a.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (a *trackdAPI) handleListRunInfos(w http.ResponseWriter, r *http.Request) {
	infos, err := a.store.ListRunInfos(r.Context(), r.PathValue("experiment_id"), viewFromQuery(r))
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	resp := api.RunInfosResponse{RunInfos: make([]api.RunInfo, len(infos))}
	for i, info := range infos {
		resp.RunInfos[i] = api.FromDomainRunInfo(info)
	}
	a.writeJSON(w, http.StatusOK, resp)
}

func (a *trackdAPI) handleCreateRun(w http.ResponseWriter, r *http.Request) {
	var req api.CreateRunRequest
	if err := decodeJSON(r, &req); err != nil {
		a.badRequest(w, "invalid json")
		return
	}
	if req.ExperimentID == "" {
		a.badRequest(w, "experiment_id is required")
		return
	}
	run, err := a.store.CreateRun(r.Context(), req.ExperimentID, req.UserID, req.StartTime, api.ToDomainTags(req.Tags))
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	a.writeJSON(w, http.StatusCreated, api.FromDomainRun(run))
}

func (a *trackdAPI) handleGetRun(w http.ResponseWriter, r *http.Request) {
	run, err := a.store.GetRun(r.Context(), r.PathValue("run_id"))
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	a.writeJSON(w, http.StatusOK, api.FromDomainRun(run))
}

func (a *trackdAPI) handleUpdateRun(w http.ResponseWriter, r *http.Request) {
	var req api.UpdateRunRequest
	if err := decodeJSON(r, &req); err != nil {
		a.badRequest(w, "invalid json")
		return
	}
	status := domain.RunStatus(req.Status)
	if status != "" && !status.Valid() {
		a.badRequest(w, "invalid run status")
		return
	}
	info, err := a.store.UpdateRunInfo(r.Context(), r.PathValue("run_id"), status, req.EndTime)
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	a.writeJSON(w, http.StatusOK, api.FromDomainRunInfo(info))
}

func (a *trackdAPI) handleDeleteRun(w http.ResponseWriter, r *http.Request) {
	if err := a.store.DeleteRun(r.Context(), r.PathValue("run_id")); err != nil {
		a.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (a *trackdAPI) handleRestoreRun(w http.ResponseWriter, r *http.Request) {
	if err := a.store.RestoreRun(r.Context(), r.PathValue("run_id")); err != nil {
		a.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (a *trackdAPI) handleLogBatch(w http.ResponseWriter, r *http.Request) {
	var req api.LogBatchRequest
	if err := decodeJSON(r, &req); err != nil {
		a.badRequest(w, "invalid json")
		return
	}
	metrics := make([]domain.Metric, len(req.Metrics))
	for i, m := range req.Metrics {
		metrics[i] = m.ToDomain()
	}
	params := make([]domain.Param, len(req.Params))
	for i, p := range req.Params {
		params[i] = domain.Param{Key: p.Key, Value: p.Value}
	}
	err := a.store.LogBatch(r.Context(), r.PathValue("run_id"), metrics, params, api.ToDomainTags(req.Tags))
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (a *trackdAPI) handleMetricHistory(w http.ResponseWriter, r *http.Request) {
	key := r.URL.Query().Get("key")
	if key == "" {
		a.badRequest(w, "key is required")
		return
	}
	history, err := a.store.GetMetricHistory(r.Context(), r.PathValue("run_id"), key)
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	resp := api.MetricHistoryResponse{Metrics: make([]api.Metric, len(history))}
	for i, m := range history {
		resp.Metrics[i] = api.FromDomainMetric(m)
	}
	a.writeJSON(w, http.StatusOK, resp)
}

func (a *trackdAPI) handleSearchRuns(w http.ResponseWriter, r *http.Request) {
	var req api.SearchRunsRequest
	if err := decodeJSON(r, &req); err != nil {
		a.badRequest(w, "invalid json")
		return
	}
	view := domain.ViewType(req.ViewType)
	if view == "" {
		view = domain.ViewActiveOnly
	}
	runs, err := a.store.SearchRuns(r.Context(), req.ExperimentIDs, req.Filter, view, req.MaxResults, req.OrderBy)
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	resp := api.SearchRunsResponse{Runs: make([]api.Run, len(runs))}
	for i, run := range runs {
		resp.Runs[i] = api.FromDomainRun(run)
	}
	a.writeJSON(w, http.StatusOK, resp)
}
