// Package s3 stores run artifacts in an S3-compatible object store,
// covering s3:// locations. Credentials and endpoint come from the
// TRACKLAB_S3_* environment.
package s3

import (
	"context"
	"fmt"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/minio/minio-go/v7"

	"github.com/tracklab-io/tracklab/internal/artifact"
	"github.com/tracklab-io/tracklab/internal/platform/objectstore"
)

func init() {
	artifact.Register("s3", func(ctx context.Context, uri *url.URL) (artifact.Repository, error) {
		cfg, err := objectstore.ConfigFromEnv()
		if err != nil {
			return nil, err
		}
		client, err := objectstore.NewClient(cfg)
		if err != nil {
			return nil, err
		}
		return New(client, uri.Host, strings.Trim(uri.Path, "/")), nil
	})
}

// Repository is an object-store-backed artifact repository rooted at a
// bucket and key prefix.
type Repository struct {
	client *minio.Client
	bucket string
	prefix string
}

func New(client *minio.Client, bucket, prefix string) *Repository {
	return &Repository{client: client, bucket: bucket, prefix: prefix}
}

func (r *Repository) key(parts ...string) string {
	elems := append([]string{r.prefix}, parts...)
	return strings.Trim(path.Join(elems...), "/")
}

func (r *Repository) LogArtifact(ctx context.Context, localPath, artifactPath string) error {
	key := r.key(artifactPath, filepath.Base(localPath))
	if _, err := r.client.FPutObject(ctx, r.bucket, key, localPath, minio.PutObjectOptions{}); err != nil {
		return fmt.Errorf("upload %s: %w", key, err)
	}
	return nil
}

func (r *Repository) LogArtifacts(ctx context.Context, localDir, artifactPath string) error {
	return filepath.WalkDir(localDir, func(p string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		rel, err := filepath.Rel(localDir, p)
		if err != nil {
			return err
		}
		key := r.key(artifactPath, filepath.ToSlash(rel))
		if _, err := r.client.FPutObject(ctx, r.bucket, key, p, minio.PutObjectOptions{}); err != nil {
			return fmt.Errorf("upload %s: %w", key, err)
		}
		return nil
	})
}

func (r *Repository) ListArtifacts(ctx context.Context, p string) ([]artifact.FileInfo, error) {
	prefix := r.key(p)
	if prefix != "" {
		prefix += "/"
	}
	var out []artifact.FileInfo
	for obj := range r.client.ListObjects(ctx, r.bucket, minio.ListObjectsOptions{Prefix: prefix, Recursive: false}) {
		if obj.Err != nil {
			return nil, fmt.Errorf("list %s: %w", prefix, obj.Err)
		}
		rel := strings.TrimPrefix(obj.Key, r.prefix)
		rel = strings.Trim(rel, "/")
		if rel == "" {
			continue
		}
		isDir := strings.HasSuffix(obj.Key, "/")
		info := artifact.FileInfo{Path: rel, IsDir: isDir}
		if !isDir {
			info.Size = obj.Size
		}
		out = append(out, info)
	}
	return out, nil
}

func (r *Repository) DownloadArtifacts(ctx context.Context, remotePath, dst string) (string, error) {
	if dst == "" {
		var err error
		dst, err = os.MkdirTemp("", "tracklab-artifacts-")
		if err != nil {
			return "", err
		}
	}

	key := r.key(remotePath)
	base := path.Base(key)
	if base == "." || base == "/" {
		base = ""
	}
	target := filepath.Join(dst, base)

	// A single object downloads directly; otherwise treat the path as a
	// directory and fetch everything beneath it.
	if _, err := r.client.StatObject(ctx, r.bucket, key, minio.StatObjectOptions{}); err == nil {
		if err := r.client.FGetObject(ctx, r.bucket, key, target, minio.GetObjectOptions{}); err != nil {
			return "", fmt.Errorf("download %s: %w", key, err)
		}
		return target, nil
	}

	prefix := key
	if prefix != "" {
		prefix += "/"
	}
	found := false
	for obj := range r.client.ListObjects(ctx, r.bucket, minio.ListObjectsOptions{Prefix: prefix, Recursive: true}) {
		if obj.Err != nil {
			return "", fmt.Errorf("list %s: %w", prefix, obj.Err)
		}
		if strings.HasSuffix(obj.Key, "/") {
			continue
		}
		found = true
		rel := strings.TrimPrefix(obj.Key, prefix)
		local := filepath.Join(target, filepath.FromSlash(rel))
		if err := r.client.FGetObject(ctx, r.bucket, obj.Key, local, minio.GetObjectOptions{}); err != nil {
			return "", fmt.Errorf("download %s: %w", obj.Key, err)
		}
	}
	if !found {
		return "", fmt.Errorf("artifact %q not found under s3://%s/%s", remotePath, r.bucket, r.prefix)
	}
	return target, nil
}
