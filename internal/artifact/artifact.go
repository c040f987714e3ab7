// Package artifact defines the blob repository behind a run's artifact
// location and the URI-scheme registry that resolves one.
package artifact

import (
	"context"
	"fmt"
	"net/url"
	"sort"
	"strings"
	"sync"
)

// FileInfo describes one entry under an artifact location.
type FileInfo struct {
	Path  string // relative to the repository root
	IsDir bool
	Size  int64
}

// Repository stores and retrieves run artifacts. artifactPath arguments are
// destination directories relative to the repository root; empty means the
// root itself.
type Repository interface {
	// LogArtifact uploads a single local file.
	LogArtifact(ctx context.Context, localPath, artifactPath string) error
	// LogArtifacts uploads a local directory tree.
	LogArtifacts(ctx context.Context, localDir, artifactPath string) error
	// ListArtifacts lists the entries directly under path.
	ListArtifacts(ctx context.Context, path string) ([]FileInfo, error)
	// DownloadArtifacts fetches a file or directory into dst and returns the
	// local path of the downloaded artifact.
	DownloadArtifacts(ctx context.Context, remotePath, dst string) (string, error)
}

// Factory builds a Repository rooted at a parsed artifact URI.
type Factory func(ctx context.Context, uri *url.URL) (Repository, error)

var (
	registryMu sync.RWMutex
	factories  = make(map[string]Factory)
)

// Register makes a repository implementation available under a URI scheme.
// The empty scheme covers bare filesystem paths.
func Register(scheme string, factory Factory) {
	registryMu.Lock()
	defer registryMu.Unlock()
	scheme = strings.ToLower(strings.TrimSpace(scheme))
	if factory == nil {
		panic("artifact: nil factory for scheme " + scheme)
	}
	if _, dup := factories[scheme]; dup {
		panic("artifact: scheme registered twice: " + scheme)
	}
	factories[scheme] = factory
}

// Schemes lists the registered non-empty schemes.
func Schemes() []string {
	registryMu.RLock()
	defer registryMu.RUnlock()
	out := make([]string, 0, len(factories))
	for scheme := range factories {
		if scheme != "" {
			out = append(out, scheme)
		}
	}
	sort.Strings(out)
	return out
}

// ForURI resolves an artifact location against the registry.
func ForURI(ctx context.Context, rawURI string) (Repository, error) {
	rawURI = strings.TrimSpace(rawURI)
	if rawURI == "" {
		return nil, fmt.Errorf("artifact uri is required")
	}
	uri, err := url.Parse(rawURI)
	if err != nil {
		return nil, fmt.Errorf("parse artifact uri %q: %w", rawURI, err)
	}
	registryMu.RLock()
	factory, ok := factories[strings.ToLower(uri.Scheme)]
	registryMu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("unsupported artifact uri scheme %q (registered: %s)", uri.Scheme, strings.Join(Schemes(), ", "))
	}
	return factory(ctx, uri)
}
