package postgres

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/tracklab-io/tracklab/internal/domain"
	"github.com/tracklab-io/tracklab/internal/store"
	"github.com/tracklab-io/tracklab/internal/store/query"
)

const runInfoColumns = `run_id, experiment_id, user_id, status, start_time, end_time, lifecycle_stage, artifact_uri`

func scanRunInfo(row interface{ Scan(...any) error }) (domain.RunInfo, error) {
	var info domain.RunInfo
	err := row.Scan(
		&info.RunID, &info.ExperimentID, &info.UserID, &info.Status,
		&info.StartTime, &info.EndTime, &info.LifecycleStage, &info.ArtifactURI,
	)
	if err != nil {
		return domain.RunInfo{}, handleNotFound(err)
	}
	return info, nil
}

func (s *Store) CreateRun(ctx context.Context, experimentID, userID string, startTime int64, tags []domain.RunTag) (domain.Run, error) {
	exp, err := s.GetExperiment(ctx, experimentID)
	if err != nil {
		return domain.Run{}, err
	}
	if startTime == 0 {
		startTime = time.Now().UnixMilli()
	}
	info := domain.RunInfo{
		RunID:          uuid.NewString(),
		ExperimentID:   experimentID,
		UserID:         userID,
		Status:         domain.RunStatusRunning,
		StartTime:      startTime,
		LifecycleStage: domain.LifecycleActive,
	}
	info.ArtifactURI = strings.TrimRight(exp.ArtifactLocation, "/") + "/" + info.RunID + "/artifacts"

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return domain.Run{}, fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(
		ctx,
		`INSERT INTO runs (run_id, experiment_id, user_id, status, start_time, end_time, lifecycle_stage, artifact_uri)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		info.RunID, info.ExperimentID, info.UserID, info.Status,
		info.StartTime, info.EndTime, info.LifecycleStage, info.ArtifactURI,
	)
	if err != nil {
		return domain.Run{}, fmt.Errorf("insert run: %w", err)
	}
	for _, tag := range tags {
		if err := upsertTag(ctx, tx, info.RunID, tag); err != nil {
			return domain.Run{}, err
		}
	}
	if err := tx.Commit(); err != nil {
		return domain.Run{}, fmt.Errorf("commit: %w", err)
	}

	data := domain.RunData{
		Params:  map[string]string{},
		Metrics: map[string]float64{},
		Tags:    make(map[string]string, len(tags)),
	}
	for _, tag := range tags {
		data.Tags[tag.Key] = tag.Value
	}
	return domain.Run{Info: info, Data: data}, nil
}

func (s *Store) GetRun(ctx context.Context, runID string) (domain.Run, error) {
	row := s.db.QueryRowContext(
		ctx,
		`SELECT `+runInfoColumns+` FROM runs WHERE run_id = $1`,
		runID,
	)
	info, err := scanRunInfo(row)
	if err != nil {
		return domain.Run{}, fmt.Errorf("run %q: %w", runID, err)
	}
	data, err := s.loadRunData(ctx, runID)
	if err != nil {
		return domain.Run{}, err
	}
	return domain.Run{Info: info, Data: data}, nil
}

func (s *Store) UpdateRunInfo(ctx context.Context, runID string, status domain.RunStatus, endTime int64) (domain.RunInfo, error) {
	_, err := s.db.ExecContext(
		ctx,
		`UPDATE runs
		 SET status = CASE WHEN $2 = '' THEN status ELSE $2 END,
		     end_time = CASE WHEN $3 = 0 THEN end_time ELSE $3 END
		 WHERE run_id = $1`,
		runID, string(status), endTime,
	)
	if err != nil {
		return domain.RunInfo{}, fmt.Errorf("update run: %w", err)
	}
	row := s.db.QueryRowContext(ctx, `SELECT `+runInfoColumns+` FROM runs WHERE run_id = $1`, runID)
	info, err := scanRunInfo(row)
	if err != nil {
		return domain.RunInfo{}, fmt.Errorf("run %q: %w", runID, err)
	}
	return info, nil
}

func (s *Store) DeleteRun(ctx context.Context, runID string) error {
	return s.setRunStage(ctx, runID, domain.LifecycleDeleted)
}

func (s *Store) RestoreRun(ctx context.Context, runID string) error {
	return s.setRunStage(ctx, runID, domain.LifecycleActive)
}

func (s *Store) setRunStage(ctx context.Context, runID string, stage domain.LifecycleStage) error {
	res, err := s.db.ExecContext(
		ctx,
		`UPDATE runs SET lifecycle_stage = $2 WHERE run_id = $1`,
		runID, stage,
	)
	if err != nil {
		return fmt.Errorf("update run stage: %w", err)
	}
	return requireRow(res, "run", runID)
}

func (s *Store) ListRunInfos(ctx context.Context, experimentID string, view domain.ViewType) ([]domain.RunInfo, error) {
	rows, err := s.db.QueryContext(
		ctx,
		`SELECT `+runInfoColumns+` FROM runs
		 WHERE experiment_id = $1
		 ORDER BY start_time DESC, run_id`,
		experimentID,
	)
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	defer rows.Close()

	out := make([]domain.RunInfo, 0)
	for rows.Next() {
		info, err := scanRunInfo(rows)
		if err != nil {
			return nil, fmt.Errorf("scan run: %w", err)
		}
		if view.Matches(info.LifecycleStage) {
			out = append(out, info)
		}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
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
	var exists bool
	err := s.db.QueryRowContext(ctx, `SELECT EXISTS (SELECT 1 FROM runs WHERE run_id = $1)`, runID).Scan(&exists)
	if err != nil {
		return fmt.Errorf("check run: %w", err)
	}
	if !exists {
		return fmt.Errorf("run %q: %w", runID, store.ErrNotFound)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	for _, m := range metrics {
		_, err := tx.ExecContext(
			ctx,
			`INSERT INTO run_metrics (run_id, key, value, ts, step) VALUES ($1, $2, $3, $4, $5)`,
			runID, m.Key, m.Value, m.Timestamp, m.Step,
		)
		if err != nil {
			return fmt.Errorf("insert metric %q: %w", m.Key, err)
		}
	}
	for _, p := range params {
		_, err := tx.ExecContext(
			ctx,
			`INSERT INTO run_params (run_id, key, value) VALUES ($1, $2, $3)
			 ON CONFLICT (run_id, key) DO UPDATE SET value = EXCLUDED.value`,
			runID, p.Key, p.Value,
		)
		if err != nil {
			return fmt.Errorf("insert param %q: %w", p.Key, err)
		}
	}
	for _, t := range tags {
		if err := upsertTag(ctx, tx, runID, t); err != nil {
			return err
		}
	}
	return tx.Commit()
}

func upsertTag(ctx context.Context, db DB, runID string, tag domain.RunTag) error {
	_, err := db.ExecContext(
		ctx,
		`INSERT INTO run_tags (run_id, key, value) VALUES ($1, $2, $3)
		 ON CONFLICT (run_id, key) DO UPDATE SET value = EXCLUDED.value`,
		runID, tag.Key, tag.Value,
	)
	if err != nil {
		return fmt.Errorf("set tag %q: %w", tag.Key, err)
	}
	return nil
}

func (s *Store) GetMetricHistory(ctx context.Context, runID, key string) ([]domain.Metric, error) {
	rows, err := s.db.QueryContext(
		ctx,
		`SELECT key, value, ts, step FROM run_metrics
		 WHERE run_id = $1 AND key = $2
		 ORDER BY ts, step`,
		runID, key,
	)
	if err != nil {
		return nil, fmt.Errorf("metric history: %w", err)
	}
	defer rows.Close()

	out := make([]domain.Metric, 0)
	for rows.Next() {
		var m domain.Metric
		if err := rows.Scan(&m.Key, &m.Value, &m.Timestamp, &m.Step); err != nil {
			return nil, fmt.Errorf("scan metric: %w", err)
		}
		out = append(out, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("metric history: %w", err)
	}
	return out, nil
}

func (s *Store) SearchRuns(ctx context.Context, experimentIDs []string, filter string, view domain.ViewType, maxResults int, orderBy []string) ([]domain.Run, error) {
	comps, err := query.ParseFilter(filter)
	if err != nil {
		return nil, err
	}

	candidates := make([]domain.Run, 0)
	for _, experimentID := range experimentIDs {
		infos, err := s.ListRunInfos(ctx, experimentID, view)
		if err != nil {
			return nil, err
		}
		for _, info := range infos {
			data, err := s.loadRunData(ctx, info.RunID)
			if err != nil {
				return nil, err
			}
			candidates = append(candidates, domain.Run{Info: info, Data: data})
		}
	}

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

// loadRunData gathers params, tags, and the latest value per metric key.
// DISTINCT ON with a step, timestamp, value ordering resolves which logged
// point counts as latest.
func (s *Store) loadRunData(ctx context.Context, runID string) (domain.RunData, error) {
	data := domain.RunData{
		Params:  map[string]string{},
		Metrics: map[string]float64{},
		Tags:    map[string]string{},
	}

	if err := s.loadKeyValues(ctx, `SELECT key, value FROM run_params WHERE run_id = $1`, runID, data.Params); err != nil {
		return domain.RunData{}, fmt.Errorf("load params: %w", err)
	}
	if err := s.loadKeyValues(ctx, `SELECT key, value FROM run_tags WHERE run_id = $1`, runID, data.Tags); err != nil {
		return domain.RunData{}, fmt.Errorf("load tags: %w", err)
	}

	rows, err := s.db.QueryContext(
		ctx,
		`SELECT DISTINCT ON (key) key, value FROM run_metrics
		 WHERE run_id = $1
		 ORDER BY key, step DESC, ts DESC, value DESC`,
		runID,
	)
	if err != nil {
		return domain.RunData{}, fmt.Errorf("load metrics: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var key string
		var value float64
		if err := rows.Scan(&key, &value); err != nil {
			return domain.RunData{}, fmt.Errorf("scan metric: %w", err)
		}
		data.Metrics[key] = value
	}
	if err := rows.Err(); err != nil {
		return domain.RunData{}, fmt.Errorf("load metrics: %w", err)
	}
	return data, nil
}

func (s *Store) loadKeyValues(ctx context.Context, q, runID string, dst map[string]string) error {
	rows, err := s.db.QueryContext(ctx, q, runID)
	if err != nil {
		return err
	}
	defer rows.Close()
	for rows.Next() {
		var key, value string
		if err := rows.Scan(&key, &value); err != nil {
			return err
		}
		dst[key] = value
	}
	return rows.Err()
}
