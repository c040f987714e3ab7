// Package validation holds the input predicates the tracking façade applies
// before any call reaches a backend store.
package validation

import (
	"errors"
	"fmt"
	"math"
	"net/url"
	"regexp"
	"strings"

	"github.com/google/uuid"
)

// namePattern limits metric, param, and tag keys to alphanumerics,
// underscores, dashes, dots, spaces, and slashes.
var namePattern = regexp.MustCompile(`^[/\w.\- ]+$`)

const maxEntityKeyLength = 250

// RunID checks that id is a UUID in canonical or 32-hex-digit form.
func RunID(id string) error {
	if strings.TrimSpace(id) == "" {
		return errors.New("run id is required")
	}
	if _, err := uuid.Parse(id); err != nil {
		return fmt.Errorf("invalid run id %q: %w", id, err)
	}
	return nil
}

// Key checks a metric, param, or tag key. Keys name storage paths downstream,
// so path-escaping segments are rejected as well.
func Key(key string) error {
	if key == "" {
		return errors.New("key is required")
	}
	if len(key) > maxEntityKeyLength {
		return fmt.Errorf("key %q exceeds %d characters", key, maxEntityKeyLength)
	}
	if !namePattern.MatchString(key) {
		return fmt.Errorf("invalid key %q: only alphanumerics, underscores, dashes, periods, spaces, and slashes are allowed", key)
	}
	if strings.HasPrefix(key, "/") {
		return fmt.Errorf("invalid key %q: must not start with a slash", key)
	}
	for _, seg := range strings.Split(key, "/") {
		if seg == "." || seg == ".." {
			return fmt.Errorf("invalid key %q: relative path segments are not allowed", key)
		}
	}
	return nil
}

// Metric checks a full metric record.
func Metric(key string, value float64, timestamp, step int64) error {
	if err := Key(key); err != nil {
		return fmt.Errorf("metric: %w", err)
	}
	if math.IsNaN(value) || math.IsInf(value, 0) {
		return fmt.Errorf("metric %q: value must be finite, got %v", key, value)
	}
	if timestamp <= 0 {
		return fmt.Errorf("metric %q: timestamp must be positive, got %d", key, timestamp)
	}
	_ = step // any int64 step is acceptable
	return nil
}

// ParamName checks a parameter key.
func ParamName(key string) error {
	if err := Key(key); err != nil {
		return fmt.Errorf("param: %w", err)
	}
	return nil
}

// TagName checks a tag key.
func TagName(key string) error {
	if err := Key(key); err != nil {
		return fmt.Errorf("tag: %w", err)
	}
	return nil
}

// ExperimentName checks an experiment name.
func ExperimentName(name string) error {
	if strings.TrimSpace(name) == "" {
		return errors.New("experiment name is required")
	}
	return nil
}

// ArtifactLocation checks an optional experiment artifact location. An empty
// location is allowed; the store picks its default.
func ArtifactLocation(location string) error {
	if location == "" {
		return nil
	}
	u, err := url.Parse(location)
	if err != nil {
		return fmt.Errorf("invalid artifact location %q: %w", location, err)
	}
	if u.Scheme == "runs" {
		return fmt.Errorf("invalid artifact location %q: run-relative locations are not allowed", location)
	}
	return nil
}
