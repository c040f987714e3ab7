// Package local stores run artifacts on the local filesystem, covering
// file:// locations and bare paths.
package local

import (
	"context"
	"fmt"
	"io"
	"net/url"
	"os"
	"path/filepath"

	"github.com/tracklab-io/tracklab/internal/artifact"
)

func init() {
	factory := func(ctx context.Context, uri *url.URL) (artifact.Repository, error) {
		root := uri.Path
		if uri.Scheme == "" {
			// Bare path, possibly relative.
			root = uri.String()
		}
		if root == "" {
			return nil, fmt.Errorf("artifact uri %q has no path", uri)
		}
		return New(root), nil
	}
	artifact.Register("file", factory)
	artifact.Register("", factory)
}

// Repository is a filesystem-backed artifact repository.
type Repository struct {
	root string
}

func New(root string) *Repository {
	return &Repository{root: filepath.Clean(root)}
}

func (r *Repository) LogArtifact(ctx context.Context, localPath, artifactPath string) error {
	dstDir := filepath.Join(r.root, filepath.FromSlash(artifactPath))
	if err := os.MkdirAll(dstDir, 0o755); err != nil {
		return fmt.Errorf("create artifact dir: %w", err)
	}
	return copyFile(localPath, filepath.Join(dstDir, filepath.Base(localPath)))
}

func (r *Repository) LogArtifacts(ctx context.Context, localDir, artifactPath string) error {
	dstRoot := filepath.Join(r.root, filepath.FromSlash(artifactPath))
	return filepath.WalkDir(localDir, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(localDir, path)
		if err != nil {
			return err
		}
		dst := filepath.Join(dstRoot, rel)
		if d.IsDir() {
			return os.MkdirAll(dst, 0o755)
		}
		return copyFile(path, dst)
	})
}

func (r *Repository) ListArtifacts(ctx context.Context, path string) ([]artifact.FileInfo, error) {
	dir := filepath.Join(r.root, filepath.FromSlash(path))
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("list artifacts: %w", err)
	}
	out := make([]artifact.FileInfo, 0, len(entries))
	for _, entry := range entries {
		info := artifact.FileInfo{
			Path:  filepath.ToSlash(filepath.Join(path, entry.Name())),
			IsDir: entry.IsDir(),
		}
		if !entry.IsDir() {
			fi, err := entry.Info()
			if err != nil {
				return nil, err
			}
			info.Size = fi.Size()
		}
		out = append(out, info)
	}
	return out, nil
}

func (r *Repository) DownloadArtifacts(ctx context.Context, remotePath, dst string) (string, error) {
	src := filepath.Join(r.root, filepath.FromSlash(remotePath))
	fi, err := os.Stat(src)
	if err != nil {
		return "", fmt.Errorf("download artifacts: %w", err)
	}
	if dst == "" {
		dst, err = os.MkdirTemp("", "tracklab-artifacts-")
		if err != nil {
			return "", err
		}
	}
	target := filepath.Join(dst, filepath.Base(src))
	if !fi.IsDir() {
		if err := os.MkdirAll(dst, 0o755); err != nil {
			return "", err
		}
		if err := copyFile(src, target); err != nil {
			return "", err
		}
		return target, nil
	}
	err = filepath.WalkDir(src, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(src, path)
		if err != nil {
			return err
		}
		out := filepath.Join(target, rel)
		if d.IsDir() {
			return os.MkdirAll(out, 0o755)
		}
		return copyFile(path, out)
	})
	if err != nil {
		return "", err
	}
	return target, nil
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return fmt.Errorf("open %s: %w", src, err)
	}
	defer func() { _ = in.Close() }()

	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return err
	}
	out, err := os.Create(dst)
	if err != nil {
		return fmt.Errorf("create %s: %w", dst, err)
	}
	if _, err := io.Copy(out, in); err != nil {
		_ = out.Close()
		return fmt.Errorf("copy to %s: %w", dst, err)
	}
	return out.Close()
}
