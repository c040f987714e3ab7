// Package rest talks to a remote tracking server over its JSON API,
// registered under the http:// and https:// schemes.
package rest

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"

	"github.com/tracklab-io/tracklab/internal/api"
	"github.com/tracklab-io/tracklab/internal/domain"
	"github.com/tracklab-io/tracklab/internal/platform/env"
	"github.com/tracklab-io/tracklab/internal/store"
)

const defaultTimeout = 30 * time.Second

func init() {
	factory := func(ctx context.Context, uri *url.URL) (store.Store, error) {
		client, err := httpClientFromEnv(ctx)
		if err != nil {
			return nil, err
		}
		return New(uri.String(), client), nil
	}
	store.Register("http", factory)
	store.Register("https", factory)
}

// httpClientFromEnv picks the transport credentials. A static bearer token
// wins over OAuth2 client credentials; with neither set the client is
// unauthenticated.
func httpClientFromEnv(ctx context.Context) (*http.Client, error) {
	timeout, err := env.Duration("TRACKLAB_HTTP_TIMEOUT", defaultTimeout)
	if err != nil {
		return nil, err
	}

	if token := env.String("TRACKLAB_AUTH_TOKEN", ""); token != "" {
		src := oauth2.StaticTokenSource(&oauth2.Token{AccessToken: token})
		client := oauth2.NewClient(ctx, src)
		client.Timeout = timeout
		return client, nil
	}

	clientID := env.String("TRACKLAB_OIDC_CLIENT_ID", "")
	clientSecret := env.String("TRACKLAB_OIDC_CLIENT_SECRET", "")
	tokenURL := env.String("TRACKLAB_OIDC_TOKEN_URL", "")
	if clientID != "" {
		if clientSecret == "" || tokenURL == "" {
			return nil, fmt.Errorf("TRACKLAB_OIDC_CLIENT_ID set without TRACKLAB_OIDC_CLIENT_SECRET and TRACKLAB_OIDC_TOKEN_URL")
		}
		cfg := clientcredentials.Config{
			ClientID:     clientID,
			ClientSecret: clientSecret,
			TokenURL:     tokenURL,
		}
		client := cfg.Client(ctx)
		client.Timeout = timeout
		return client, nil
	}

	return &http.Client{Timeout: timeout}, nil
}

// Store forwards every operation to a remote tracking server.
type Store struct {
	base   string
	client *http.Client
}

func New(base string, client *http.Client) *Store {
	if client == nil {
		client = &http.Client{Timeout: defaultTimeout}
	}
	return &Store{base: strings.TrimRight(base, "/"), client: client}
}

func (s *Store) do(ctx context.Context, method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		raw, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		body = bytes.NewReader(raw)
	}
	req, err := http.NewRequestWithContext(ctx, method, s.base+path, body)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		return s.decodeError(resp)
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

func (s *Store) decodeError(resp *http.Response) error {
	var payload api.ErrorResponse
	msg := resp.Status
	if err := json.NewDecoder(io.LimitReader(resp.Body, 4096)).Decode(&payload); err == nil && payload.Error != "" {
		msg = payload.Error
	}
	switch resp.StatusCode {
	case http.StatusNotFound:
		return fmt.Errorf("%s: %w", msg, store.ErrNotFound)
	case http.StatusConflict:
		return fmt.Errorf("%s: %w", msg, store.ErrAlreadyExists)
	}
	return fmt.Errorf("server returned %d: %s", resp.StatusCode, msg)
}

func (s *Store) CreateExperiment(ctx context.Context, name, artifactLocation string) (string, error) {
	var resp api.CreateExperimentResponse
	req := api.CreateExperimentRequest{Name: name, ArtifactLocation: artifactLocation}
	if err := s.do(ctx, http.MethodPost, "/api/experiments", req, &resp); err != nil {
		return "", err
	}
	return resp.ExperimentID, nil
}

func (s *Store) GetExperiment(ctx context.Context, experimentID string) (domain.Experiment, error) {
	var resp api.Experiment
	if err := s.do(ctx, http.MethodGet, "/api/experiments/"+url.PathEscape(experimentID), nil, &resp); err != nil {
		return domain.Experiment{}, err
	}
	return resp.ToDomain(), nil
}

func (s *Store) GetExperimentByName(ctx context.Context, name string) (domain.Experiment, error) {
	var resp api.Experiment
	path := "/api/experiments/by-name?name=" + url.QueryEscape(name)
	if err := s.do(ctx, http.MethodGet, path, nil, &resp); err != nil {
		return domain.Experiment{}, err
	}
	return resp.ToDomain(), nil
}

func (s *Store) ListExperiments(ctx context.Context, view domain.ViewType) ([]domain.Experiment, error) {
	var resp api.ExperimentsResponse
	path := "/api/experiments?view=" + url.QueryEscape(string(view))
	if err := s.do(ctx, http.MethodGet, path, nil, &resp); err != nil {
		return nil, err
	}
	out := make([]domain.Experiment, len(resp.Experiments))
	for i, exp := range resp.Experiments {
		out[i] = exp.ToDomain()
	}
	return out, nil
}

func (s *Store) DeleteExperiment(ctx context.Context, experimentID string) error {
	return s.do(ctx, http.MethodDelete, "/api/experiments/"+url.PathEscape(experimentID), nil, nil)
}

func (s *Store) RestoreExperiment(ctx context.Context, experimentID string) error {
	return s.do(ctx, http.MethodPost, "/api/experiments/"+url.PathEscape(experimentID)+"/restore", nil, nil)
}

func (s *Store) RenameExperiment(ctx context.Context, experimentID, newName string) error {
	req := api.RenameExperimentRequest{NewName: newName}
	return s.do(ctx, http.MethodPost, "/api/experiments/"+url.PathEscape(experimentID)+"/rename", req, nil)
}

func (s *Store) CreateRun(ctx context.Context, experimentID, userID string, startTime int64, tags []domain.RunTag) (domain.Run, error) {
	req := api.CreateRunRequest{
		ExperimentID: experimentID,
		UserID:       userID,
		StartTime:    startTime,
		Tags:         api.FromDomainTags(tags),
	}
	var resp api.Run
	if err := s.do(ctx, http.MethodPost, "/api/runs", req, &resp); err != nil {
		return domain.Run{}, err
	}
	return resp.ToDomain(), nil
}

func (s *Store) GetRun(ctx context.Context, runID string) (domain.Run, error) {
	var resp api.Run
	if err := s.do(ctx, http.MethodGet, "/api/runs/"+url.PathEscape(runID), nil, &resp); err != nil {
		return domain.Run{}, err
	}
	return resp.ToDomain(), nil
}

func (s *Store) UpdateRunInfo(ctx context.Context, runID string, status domain.RunStatus, endTime int64) (domain.RunInfo, error) {
	req := api.UpdateRunRequest{Status: string(status), EndTime: endTime}
	var resp api.RunInfo
	if err := s.do(ctx, http.MethodPatch, "/api/runs/"+url.PathEscape(runID), req, &resp); err != nil {
		return domain.RunInfo{}, err
	}
	return resp.ToDomain(), nil
}

func (s *Store) DeleteRun(ctx context.Context, runID string) error {
	return s.do(ctx, http.MethodDelete, "/api/runs/"+url.PathEscape(runID), nil, nil)
}

func (s *Store) RestoreRun(ctx context.Context, runID string) error {
	return s.do(ctx, http.MethodPost, "/api/runs/"+url.PathEscape(runID)+"/restore", nil, nil)
}

func (s *Store) ListRunInfos(ctx context.Context, experimentID string, view domain.ViewType) ([]domain.RunInfo, error) {
	var resp api.RunInfosResponse
	path := "/api/experiments/" + url.PathEscape(experimentID) + "/runs?view=" + url.QueryEscape(string(view))
	if err := s.do(ctx, http.MethodGet, path, nil, &resp); err != nil {
		return nil, err
	}
	out := make([]domain.RunInfo, len(resp.RunInfos))
	for i, info := range resp.RunInfos {
		out[i] = info.ToDomain()
	}
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
	req := api.LogBatchRequest{Tags: api.FromDomainTags(tags)}
	for _, m := range metrics {
		req.Metrics = append(req.Metrics, api.FromDomainMetric(m))
	}
	for _, p := range params {
		req.Params = append(req.Params, api.Param{Key: p.Key, Value: p.Value})
	}
	return s.do(ctx, http.MethodPost, "/api/runs/"+url.PathEscape(runID)+"/batch", req, nil)
}

func (s *Store) GetMetricHistory(ctx context.Context, runID, key string) ([]domain.Metric, error) {
	var resp api.MetricHistoryResponse
	path := "/api/runs/" + url.PathEscape(runID) + "/metrics?key=" + url.QueryEscape(key)
	if err := s.do(ctx, http.MethodGet, path, nil, &resp); err != nil {
		return nil, err
	}
	out := make([]domain.Metric, len(resp.Metrics))
	for i, m := range resp.Metrics {
		out[i] = m.ToDomain()
	}
	return out, nil
}

func (s *Store) SearchRuns(ctx context.Context, experimentIDs []string, filter string, view domain.ViewType, maxResults int, orderBy []string) ([]domain.Run, error) {
	req := api.SearchRunsRequest{
		ExperimentIDs: experimentIDs,
		Filter:        filter,
		ViewType:      string(view),
		MaxResults:    maxResults,
		OrderBy:       orderBy,
	}
	var resp api.SearchRunsResponse
	if err := s.do(ctx, http.MethodPost, "/api/runs/search", req, &resp); err != nil {
		return nil, err
	}
	out := make([]domain.Run, len(resp.Runs))
	for i, run := range resp.Runs {
		out[i] = run.ToDomain()
	}
	return out, nil
}

func (s *Store) Close() error {
	s.client.CloseIdleConnections()
	return nil
}
