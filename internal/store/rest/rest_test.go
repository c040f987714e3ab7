package rest

import (
	"context"
	"encoding/json"
	"errors"
	"math"
	"net/http"
	"net/http/httptest"
	"testing"

	"golang.org/x/oauth2"

	"github.com/tracklab-io/tracklab/internal/api"
	"github.com/tracklab-io/tracklab/internal/domain"
	"github.com/tracklab-io/tracklab/internal/store"
)

func TestCreateExperimentPostsNameAndLocation(t *testing.T) {
	var got api.CreateExperimentRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/api/experiments" {
			t.Errorf("unexpected request: %s %s", r.Method, r.URL.Path)
		}
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Errorf("decode request: %v", err)
		}
		json.NewEncoder(w).Encode(api.CreateExperimentResponse{ExperimentID: "exp-1"})
	}))
	defer srv.Close()

	s := New(srv.URL, nil)
	id, err := s.CreateExperiment(context.Background(), "demo", "s3://bucket/demo")
	if err != nil {
		t.Fatalf("CreateExperiment: %v", err)
	}
	if id != "exp-1" {
		t.Fatalf("expected exp-1, got %s", id)
	}
	if got.Name != "demo" || got.ArtifactLocation != "s3://bucket/demo" {
		t.Fatalf("unexpected request body: %+v", got)
	}
}

func TestGetRunDecodesNaNMetrics(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"info":{"run_id":"r1","experiment_id":"e1","status":"FINISHED","start_time":10,"lifecycle_stage":"active","artifact_uri":"file:///tmp/a"},"data":{"metrics":{"loss":"NaN","mse":0.5}}}`))
	}))
	defer srv.Close()

	s := New(srv.URL, nil)
	run, err := s.GetRun(context.Background(), "r1")
	if err != nil {
		t.Fatalf("GetRun: %v", err)
	}
	if run.Info.RunID != "r1" || run.Info.Status != domain.RunStatusFinished {
		t.Fatalf("unexpected run info: %+v", run.Info)
	}
	if !math.IsNaN(run.Data.Metrics["loss"]) {
		t.Fatalf("expected NaN loss, got %v", run.Data.Metrics["loss"])
	}
	if run.Data.Metrics["mse"] != 0.5 {
		t.Fatalf("expected mse 0.5, got %v", run.Data.Metrics["mse"])
	}
}

func TestErrorStatusMapping(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/runs/missing":
			w.WriteHeader(http.StatusNotFound)
			json.NewEncoder(w).Encode(api.ErrorResponse{Error: "run missing not found"})
		case "/api/experiments":
			w.WriteHeader(http.StatusConflict)
			json.NewEncoder(w).Encode(api.ErrorResponse{Error: "name taken"})
		default:
			w.WriteHeader(http.StatusInternalServerError)
		}
	}))
	defer srv.Close()

	s := New(srv.URL, nil)
	if _, err := s.GetRun(context.Background(), "missing"); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if _, err := s.CreateExperiment(context.Background(), "taken", ""); !errors.Is(err, store.ErrAlreadyExists) {
		t.Fatalf("expected ErrAlreadyExists, got %v", err)
	}
}

func TestBearerTokenIsSent(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("Authorization"); got != "Bearer sekret" {
			t.Errorf("expected bearer token, got %q", got)
		}
		json.NewEncoder(w).Encode(api.ExperimentsResponse{})
	}))
	defer srv.Close()

	src := oauth2.StaticTokenSource(&oauth2.Token{AccessToken: "sekret"})
	s := New(srv.URL, oauth2.NewClient(context.Background(), src))
	if _, err := s.ListExperiments(context.Background(), domain.ViewActiveOnly); err != nil {
		t.Fatalf("ListExperiments: %v", err)
	}
}

func TestSearchRunsForwardsRequest(t *testing.T) {
	var got api.SearchRunsRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/runs/search" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Errorf("decode request: %v", err)
		}
		json.NewEncoder(w).Encode(api.SearchRunsResponse{})
	}))
	defer srv.Close()

	s := New(srv.URL, nil)
	_, err := s.SearchRuns(context.Background(), []string{"e1", "e2"}, "metrics.loss < 1", domain.ViewAll, 50, []string{"metrics.loss ASC"})
	if err != nil {
		t.Fatalf("SearchRuns: %v", err)
	}
	if len(got.ExperimentIDs) != 2 || got.Filter != "metrics.loss < 1" || got.MaxResults != 50 {
		t.Fatalf("unexpected request: %+v", got)
	}
	if got.ViewType != string(domain.ViewAll) || len(got.OrderBy) != 1 {
		t.Fatalf("unexpected request: %+v", got)
	}
}
