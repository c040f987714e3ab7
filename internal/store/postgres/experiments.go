package postgres

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/tracklab-io/tracklab/internal/domain"
	"github.com/tracklab-io/tracklab/internal/store"
)

const experimentColumns = `experiment_id, name, artifact_location, lifecycle_stage`

func scanExperiment(row interface{ Scan(...any) error }) (domain.Experiment, error) {
	var exp domain.Experiment
	if err := row.Scan(&exp.ExperimentID, &exp.Name, &exp.ArtifactLocation, &exp.LifecycleStage); err != nil {
		return domain.Experiment{}, handleNotFound(err)
	}
	return exp, nil
}

func (s *Store) CreateExperiment(ctx context.Context, name, artifactLocation string) (string, error) {
	id := uuid.NewString()
	if artifactLocation == "" {
		artifactLocation = "file:///tmp/tracklab/artifacts/" + id
	}
	_, err := s.db.ExecContext(
		ctx,
		`INSERT INTO experiments (experiment_id, name, artifact_location, lifecycle_stage)
		 VALUES ($1, $2, $3, $4)`,
		id, name, artifactLocation, domain.LifecycleActive,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return "", fmt.Errorf("experiment %q: %w", name, store.ErrAlreadyExists)
		}
		return "", fmt.Errorf("insert experiment: %w", err)
	}
	return id, nil
}

func (s *Store) GetExperiment(ctx context.Context, experimentID string) (domain.Experiment, error) {
	row := s.db.QueryRowContext(
		ctx,
		`SELECT `+experimentColumns+` FROM experiments WHERE experiment_id = $1`,
		experimentID,
	)
	exp, err := scanExperiment(row)
	if err != nil {
		return domain.Experiment{}, fmt.Errorf("experiment %q: %w", experimentID, err)
	}
	return exp, nil
}

func (s *Store) GetExperimentByName(ctx context.Context, name string) (domain.Experiment, error) {
	row := s.db.QueryRowContext(
		ctx,
		`SELECT `+experimentColumns+` FROM experiments WHERE name = $1`,
		name,
	)
	exp, err := scanExperiment(row)
	if err != nil {
		return domain.Experiment{}, fmt.Errorf("experiment named %q: %w", name, err)
	}
	return exp, nil
}

func (s *Store) ListExperiments(ctx context.Context, view domain.ViewType) ([]domain.Experiment, error) {
	rows, err := s.db.QueryContext(
		ctx,
		`SELECT `+experimentColumns+` FROM experiments ORDER BY name`,
	)
	if err != nil {
		return nil, fmt.Errorf("list experiments: %w", err)
	}
	defer rows.Close()

	out := make([]domain.Experiment, 0)
	for rows.Next() {
		exp, err := scanExperiment(rows)
		if err != nil {
			return nil, fmt.Errorf("scan experiment: %w", err)
		}
		if view.Matches(exp.LifecycleStage) {
			out = append(out, exp)
		}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list experiments: %w", err)
	}
	return out, nil
}

func (s *Store) DeleteExperiment(ctx context.Context, experimentID string) error {
	return s.setExperimentStage(ctx, experimentID, domain.LifecycleDeleted)
}

func (s *Store) RestoreExperiment(ctx context.Context, experimentID string) error {
	return s.setExperimentStage(ctx, experimentID, domain.LifecycleActive)
}

func (s *Store) setExperimentStage(ctx context.Context, experimentID string, stage domain.LifecycleStage) error {
	res, err := s.db.ExecContext(
		ctx,
		`UPDATE experiments SET lifecycle_stage = $2 WHERE experiment_id = $1`,
		experimentID, stage,
	)
	if err != nil {
		return fmt.Errorf("update experiment stage: %w", err)
	}
	return requireRow(res, "experiment", experimentID)
}

func (s *Store) RenameExperiment(ctx context.Context, experimentID, newName string) error {
	res, err := s.db.ExecContext(
		ctx,
		`UPDATE experiments SET name = $2 WHERE experiment_id = $1`,
		experimentID, newName,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("experiment %q: %w", newName, store.ErrAlreadyExists)
		}
		return fmt.Errorf("rename experiment: %w", err)
	}
	return requireRow(res, "experiment", experimentID)
}
