package runtable

import (
	"math"
	"time"

	"github.com/tracklab-io/tracklab/internal/domain"
)

// kind binds one class of dynamic column to its null sentinel and column
// name prefix, so the three classes share one tracking implementation.
type kind struct {
	prefix string
	null   any
}

var (
	kindParam  = kind{prefix: "params.", null: nil}
	kindMetric = kind{prefix: "metrics.", null: math.NaN()}
	kindTag    = kind{prefix: "tags.", null: nil}
)

// tracker accumulates per-key value sequences for one column kind,
// discovering new keys as later runs introduce them.
type tracker struct {
	kind kind
	cols map[string][]any
}

func newTracker(k kind) *tracker {
	return &tracker{kind: k, cols: make(map[string][]any)}
}

// observe appends run i's values to every tracked column, padding absent
// keys with the kind's null. Keys seen for the first time get a new column
// back-filled with i nulls, one per preceding run. Keys for which skip
// returns true never become columns.
func (t *tracker) observe(i int, values map[string]any, skip func(string) bool) {
	for key, col := range t.cols {
		if v, ok := values[key]; ok {
			t.cols[key] = append(col, v)
		} else {
			t.cols[key] = append(col, t.kind.null)
		}
	}
	for key, v := range values {
		if _, tracked := t.cols[key]; tracked {
			continue
		}
		if skip != nil && skip(key) {
			continue
		}
		col := make([]any, i, i+1)
		for j := range col {
			col[j] = t.kind.null
		}
		t.cols[key] = append(col, v)
	}
}

func (t *tracker) emit(into map[string][]any) {
	for key, col := range t.cols {
		into[t.kind.prefix+key] = col
	}
}

// Pivot converts an ordered sequence of runs into a rectangular Table in a
// single left-to-right pass. Inputs are read-only; the transform has no
// side effects and may run concurrently on disjoint inputs.
func Pivot(runs []domain.Run) *Table {
	date := make([]any, 0, len(runs))
	runID := make([]any, 0, len(runs))
	runName := make([]any, 0, len(runs))
	parentRunID := make([]any, 0, len(runs))
	userID := make([]any, 0, len(runs))

	params := newTracker(kindParam)
	metrics := newTracker(kindMetric)
	tags := newTracker(kindTag)

	for i, run := range runs {
		// The date renders in the process-local timezone, matching how run
		// start times have always been displayed. See DESIGN.md.
		date = append(date, time.Unix(run.Info.StartTime/1000, 0))
		runID = append(runID, run.Info.RunID)
		runName = append(runName, tagOrNull(run.Data.Tags, domain.TagRunName))
		parentRunID = append(parentRunID, tagOrNull(run.Data.Tags, domain.TagParentRunID))
		userID = append(userID, run.Info.UserID)

		params.observe(i, stringValues(run.Data.Params), nil)
		metrics.observe(i, floatValues(run.Data.Metrics), nil)
		tags.observe(i, stringValues(run.Data.Tags), domain.IsReservedTag)
	}

	columns := map[string][]any{
		ColDate:        date,
		ColRunID:       runID,
		ColRunName:     runName,
		ColParentRunID: parentRunID,
		ColUserID:      userID,
	}
	metrics.emit(columns)
	params.emit(columns)
	tags.emit(columns)

	return &Table{nrows: len(runs), columns: columns}
}

func tagOrNull(tags map[string]string, key string) any {
	if v, ok := tags[key]; ok {
		return v
	}
	return nil
}

func stringValues(m map[string]string) map[string]any {
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

func floatValues(m map[string]float64) map[string]any {
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}
