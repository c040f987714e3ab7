package tracking

import (
	"context"
	"fmt"

	"github.com/tracklab-io/tracklab/internal/artifact"
	"github.com/tracklab-io/tracklab/internal/validation"
)

// repoForRun resolves the artifact repository rooted at a run's artifact
// location.
func (c *Client) repoForRun(ctx context.Context, runID string) (artifact.Repository, error) {
	if err := validation.RunID(runID); err != nil {
		return nil, err
	}
	run, err := c.store.GetRun(ctx, runID)
	if err != nil {
		return nil, err
	}
	repo, err := c.repoFor(ctx, run.Info.ArtifactURI)
	if err != nil {
		return nil, fmt.Errorf("artifact repository for run %s: %w", runID, err)
	}
	return repo, nil
}

// LogArtifact uploads one local file under the run's artifact location,
// optionally below artifactPath.
func (c *Client) LogArtifact(ctx context.Context, runID, localPath, artifactPath string) error {
	repo, err := c.repoForRun(ctx, runID)
	if err != nil {
		return err
	}
	return repo.LogArtifact(ctx, localPath, artifactPath)
}

// LogArtifacts uploads a local directory tree.
func (c *Client) LogArtifacts(ctx context.Context, runID, localDir, artifactPath string) error {
	repo, err := c.repoForRun(ctx, runID)
	if err != nil {
		return err
	}
	return repo.LogArtifacts(ctx, localDir, artifactPath)
}

// ListArtifacts lists the entries directly under path within the run's
// artifact location.
func (c *Client) ListArtifacts(ctx context.Context, runID, path string) ([]artifact.FileInfo, error) {
	repo, err := c.repoForRun(ctx, runID)
	if err != nil {
		return nil, err
	}
	return repo.ListArtifacts(ctx, path)
}

// DownloadArtifacts fetches a file or directory from the run's artifact
// location into dst and returns the local path. An empty dst uses a fresh
// temporary directory.
func (c *Client) DownloadArtifacts(ctx context.Context, runID, path, dst string) (string, error) {
	repo, err := c.repoForRun(ctx, runID)
	if err != nil {
		return "", err
	}
	return repo.DownloadArtifacts(ctx, path, dst)
}
