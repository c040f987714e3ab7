// Package api holds the JSON wire types shared by the tracking server and
// the HTTP-backed store client.
package api

import (
	"encoding/json"
	"math"
	"strconv"

	"github.com/tracklab-io/tracklab/internal/domain"
)

// Float marshals like a JSON number but survives NaN and the infinities,
// which encoding/json rejects. Those render as the strings "NaN",
// "Infinity", and "-Infinity".
type Float float64

func (f Float) MarshalJSON() ([]byte, error) {
	v := float64(f)
	switch {
	case math.IsNaN(v):
		return []byte(`"NaN"`), nil
	case math.IsInf(v, 1):
		return []byte(`"Infinity"`), nil
	case math.IsInf(v, -1):
		return []byte(`"-Infinity"`), nil
	}
	return json.Marshal(v)
}

func (f *Float) UnmarshalJSON(b []byte) error {
	if len(b) > 0 && b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		switch s {
		case "NaN":
			*f = Float(math.NaN())
		case "Infinity":
			*f = Float(math.Inf(1))
		case "-Infinity":
			*f = Float(math.Inf(-1))
		default:
			v, err := strconv.ParseFloat(s, 64)
			if err != nil {
				return err
			}
			*f = Float(v)
		}
		return nil
	}
	var v float64
	if err := json.Unmarshal(b, &v); err != nil {
		return err
	}
	*f = Float(v)
	return nil
}

type Experiment struct {
	ExperimentID     string `json:"experiment_id"`
	Name             string `json:"name"`
	ArtifactLocation string `json:"artifact_location"`
	LifecycleStage   string `json:"lifecycle_stage"`
}

type RunInfo struct {
	RunID          string `json:"run_id"`
	ExperimentID   string `json:"experiment_id"`
	UserID         string `json:"user_id"`
	Status         string `json:"status"`
	StartTime      int64  `json:"start_time"`
	EndTime        int64  `json:"end_time,omitempty"`
	LifecycleStage string `json:"lifecycle_stage"`
	ArtifactURI    string `json:"artifact_uri"`
}

type RunData struct {
	Params  map[string]string `json:"params,omitempty"`
	Metrics map[string]Float  `json:"metrics,omitempty"`
	Tags    map[string]string `json:"tags,omitempty"`
}

type Run struct {
	Info RunInfo `json:"info"`
	Data RunData `json:"data"`
}

type Metric struct {
	Key       string `json:"key"`
	Value     Float  `json:"value"`
	Timestamp int64  `json:"timestamp"`
	Step      int64  `json:"step,omitempty"`
}

type Param struct {
	Key   string `json:"key"`
	Value string `json:"value"`
}

type RunTag struct {
	Key   string `json:"key"`
	Value string `json:"value"`
}

type CreateExperimentRequest struct {
	Name             string `json:"name"`
	ArtifactLocation string `json:"artifact_location,omitempty"`
}

type CreateExperimentResponse struct {
	ExperimentID string `json:"experiment_id"`
}

type RenameExperimentRequest struct {
	NewName string `json:"new_name"`
}

type ExperimentsResponse struct {
	Experiments []Experiment `json:"experiments"`
}

type CreateRunRequest struct {
	ExperimentID string   `json:"experiment_id"`
	UserID       string   `json:"user_id,omitempty"`
	StartTime    int64    `json:"start_time,omitempty"`
	Tags         []RunTag `json:"tags,omitempty"`
}

type UpdateRunRequest struct {
	Status  string `json:"status,omitempty"`
	EndTime int64  `json:"end_time,omitempty"`
}

type RunInfosResponse struct {
	RunInfos []RunInfo `json:"run_infos"`
}

type LogBatchRequest struct {
	Metrics []Metric `json:"metrics,omitempty"`
	Params  []Param  `json:"params,omitempty"`
	Tags    []RunTag `json:"tags,omitempty"`
}

type MetricHistoryResponse struct {
	Metrics []Metric `json:"metrics"`
}

type SearchRunsRequest struct {
	ExperimentIDs []string `json:"experiment_ids"`
	Filter        string   `json:"filter,omitempty"`
	ViewType      string   `json:"view_type,omitempty"`
	MaxResults    int      `json:"max_results,omitempty"`
	OrderBy       []string `json:"order_by,omitempty"`
}

type SearchRunsResponse struct {
	Runs []Run `json:"runs"`
}

type ErrorResponse struct {
	Error string `json:"error"`
}

func FromDomainExperiment(exp domain.Experiment) Experiment {
	return Experiment{
		ExperimentID:     exp.ExperimentID,
		Name:             exp.Name,
		ArtifactLocation: exp.ArtifactLocation,
		LifecycleStage:   string(exp.LifecycleStage),
	}
}

func (e Experiment) ToDomain() domain.Experiment {
	return domain.Experiment{
		ExperimentID:     e.ExperimentID,
		Name:             e.Name,
		ArtifactLocation: e.ArtifactLocation,
		LifecycleStage:   domain.LifecycleStage(e.LifecycleStage),
	}
}

func FromDomainRunInfo(info domain.RunInfo) RunInfo {
	return RunInfo{
		RunID:          info.RunID,
		ExperimentID:   info.ExperimentID,
		UserID:         info.UserID,
		Status:         string(info.Status),
		StartTime:      info.StartTime,
		EndTime:        info.EndTime,
		LifecycleStage: string(info.LifecycleStage),
		ArtifactURI:    info.ArtifactURI,
	}
}

func (r RunInfo) ToDomain() domain.RunInfo {
	return domain.RunInfo{
		RunID:          r.RunID,
		ExperimentID:   r.ExperimentID,
		UserID:         r.UserID,
		Status:         domain.RunStatus(r.Status),
		StartTime:      r.StartTime,
		EndTime:        r.EndTime,
		LifecycleStage: domain.LifecycleStage(r.LifecycleStage),
		ArtifactURI:    r.ArtifactURI,
	}
}

func FromDomainRun(run domain.Run) Run {
	metrics := make(map[string]Float, len(run.Data.Metrics))
	for k, v := range run.Data.Metrics {
		metrics[k] = Float(v)
	}
	return Run{
		Info: FromDomainRunInfo(run.Info),
		Data: RunData{Params: run.Data.Params, Metrics: metrics, Tags: run.Data.Tags},
	}
}

func (r Run) ToDomain() domain.Run {
	metrics := make(map[string]float64, len(r.Data.Metrics))
	for k, v := range r.Data.Metrics {
		metrics[k] = float64(v)
	}
	params := r.Data.Params
	if params == nil {
		params = map[string]string{}
	}
	tags := r.Data.Tags
	if tags == nil {
		tags = map[string]string{}
	}
	return domain.Run{
		Info: r.Info.ToDomain(),
		Data: domain.RunData{Params: params, Metrics: metrics, Tags: tags},
	}
}

func FromDomainMetric(m domain.Metric) Metric {
	return Metric{Key: m.Key, Value: Float(m.Value), Timestamp: m.Timestamp, Step: m.Step}
}

func (m Metric) ToDomain() domain.Metric {
	return domain.Metric{Key: m.Key, Value: float64(m.Value), Timestamp: m.Timestamp, Step: m.Step}
}

func FromDomainTags(tags []domain.RunTag) []RunTag {
	out := make([]RunTag, len(tags))
	for i, t := range tags {
		out[i] = RunTag{Key: t.Key, Value: t.Value}
	}
	return out
}

func ToDomainTags(tags []RunTag) []domain.RunTag {
	out := make([]domain.RunTag, len(tags))
	for i, t := range tags {
		out[i] = domain.RunTag{Key: t.Key, Value: t.Value}
	}
	return out
}
