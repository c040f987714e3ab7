package runtable

import (
	"math"
	"testing"
	"time"

	"github.com/tracklab-io/tracklab/internal/domain"
)

func mkRun(id, user string, start int64, metrics map[string]float64, params, tags map[string]string) domain.Run {
	return domain.Run{
		Info: domain.RunInfo{
			RunID:          id,
			ExperimentID:   "exp-1",
			UserID:         user,
			Status:         domain.RunStatusFinished,
			StartTime:      start,
			LifecycleStage: domain.LifecycleActive,
		},
		Data: domain.RunData{
			Metrics: metrics,
			Params:  params,
			Tags:    tags,
		},
	}
}

func valueEq(a, b any) bool {
	af, aok := a.(float64)
	bf, bok := b.(float64)
	if aok && bok {
		if math.IsNaN(af) && math.IsNaN(bf) {
			return true
		}
		return af == bf
	}
	at, aok := a.(time.Time)
	bt, bok := b.(time.Time)
	if aok && bok {
		return at.Equal(bt)
	}
	return a == b
}

func wantColumn(t *testing.T, table *Table, name string, want []any) {
	t.Helper()
	col, ok := table.Column(name)
	if !ok {
		t.Fatalf("missing column %q", name)
	}
	if len(col) != len(want) {
		t.Fatalf("column %q has %d values, want %d", name, len(col), len(want))
	}
	for i := range want {
		if !valueEq(col[i], want[i]) {
			t.Fatalf("column %q row %d = %v, want %v", name, i, col[i], want[i])
		}
	}
}

func TestPivotEmpty(t *testing.T) {
	table := Pivot(nil)
	if table.NumRows() != 0 {
		t.Fatalf("expected zero rows, got %d", table.NumRows())
	}
	cols := table.Columns()
	want := []string{"date", "run_id", "run_name", "parent_run_id", "user_id"}
	if len(cols) != len(want) {
		t.Fatalf("expected only fixed columns, got %v", cols)
	}
	for i, name := range want {
		if cols[i] != name {
			t.Fatalf("column %d = %q, want %q", i, cols[i], name)
		}
	}
}

func TestPivotFixedColumns(t *testing.T) {
	runs := []domain.Run{
		mkRun("run-a", "alice", 0, nil, nil, nil),
		mkRun("run-b", "bob", 0, nil, nil, nil),
	}
	table := Pivot(runs)
	if table.NumRows() != 2 {
		t.Fatalf("expected 2 rows, got %d", table.NumRows())
	}
	if got := len(table.Columns()); got != 5 {
		t.Fatalf("expected 5 columns, got %d: %v", got, table.Columns())
	}
	wantColumn(t, table, ColRunID, []any{"run-a", "run-b"})
	wantColumn(t, table, ColUserID, []any{"alice", "bob"})
	wantColumn(t, table, ColRunName, []any{nil, nil})
	wantColumn(t, table, ColParentRunID, []any{nil, nil})
	wantColumn(t, table, ColDate, []any{time.Unix(0, 0), time.Unix(0, 0)})
}

func TestPivotDateFromStartTime(t *testing.T) {
	// 1552319350244 ms -> the same instant truncated to whole seconds.
	table := Pivot([]domain.Run{mkRun("r", "u", 1552319350244, nil, nil, nil)})
	wantColumn(t, table, ColDate, []any{time.Unix(1552319350, 0)})
}

func TestPivotMetricsBackfill(t *testing.T) {
	runs := []domain.Run{
		mkRun("r0", "u", 0, map[string]float64{"mse": 0.2}, nil, nil),
		mkRun("r1", "u", 0, map[string]float64{"mse": 0.6, "loss": 1.2}, nil, nil),
	}
	table := Pivot(runs)
	wantColumn(t, table, "metrics.mse", []any{0.2, 0.6})
	wantColumn(t, table, "metrics.loss", []any{math.NaN(), 1.2})
}

func TestPivotParamsBackfill(t *testing.T) {
	runs := []domain.Run{
		mkRun("r0", "u", 0, nil, map[string]string{"param": "value"}, nil),
		mkRun("r1", "u", 0, nil, map[string]string{"param2": "val", "k": "v"}, nil),
	}
	table := Pivot(runs)
	wantColumn(t, table, "params.param", []any{"value", nil})
	wantColumn(t, table, "params.param2", []any{nil, "val"})
	wantColumn(t, table, "params.k", []any{nil, "v"})
}

func TestPivotTags(t *testing.T) {
	runs := []domain.Run{
		mkRun("r0", "u", 0, nil, nil, map[string]string{"tag": "value"}),
		mkRun("r1", "u", 0, nil, nil, map[string]string{"tag2": "v2"}),
	}
	table := Pivot(runs)
	wantColumn(t, table, "tags.tag", []any{"value", nil})
	wantColumn(t, table, "tags.tag2", []any{nil, "v2"})
}

func TestPivotReservedTags(t *testing.T) {
	runs := []domain.Run{
		mkRun("r0", "u", 0, nil, nil, map[string]string{
			domain.TagRunName:     "first",
			domain.TagParentRunID: "parent-1",
			domain.TagGitCommit:   "deadbeef",
			"team":                "vision",
		}),
		mkRun("r1", "u", 0, nil, nil, nil),
	}
	table := Pivot(runs)
	wantColumn(t, table, ColRunName, []any{"first", nil})
	wantColumn(t, table, ColParentRunID, []any{"parent-1", nil})
	wantColumn(t, table, "tags.team", []any{"vision", nil})
	for _, name := range table.Columns() {
		switch name {
		case "tags." + domain.TagRunName, "tags." + domain.TagParentRunID, "tags." + domain.TagGitCommit:
			t.Fatalf("reserved tag leaked into dynamic columns: %q", name)
		}
	}
}

func TestPivotLateKeyBackfillLength(t *testing.T) {
	runs := make([]domain.Run, 5)
	for i := range runs {
		runs[i] = mkRun("r", "u", 0, nil, nil, nil)
	}
	runs[3].Data.Metrics = map[string]float64{"late": 7.5}
	table := Pivot(runs)
	col, ok := table.Column("metrics.late")
	if !ok {
		t.Fatalf("missing metrics.late")
	}
	for i := 0; i < 3; i++ {
		v, isFloat := col[i].(float64)
		if !isFloat || !math.IsNaN(v) {
			t.Fatalf("row %d of metrics.late = %v, want NaN", i, col[i])
		}
	}
	if col[3] != 7.5 {
		t.Fatalf("row 3 of metrics.late = %v, want 7.5", col[3])
	}
	v, isFloat := col[4].(float64)
	if !isFloat || !math.IsNaN(v) {
		t.Fatalf("row 4 of metrics.late = %v, want NaN", col[4])
	}
}

func TestPivotNullSentinelKinds(t *testing.T) {
	runs := []domain.Run{
		mkRun("r0", "u", 0, map[string]float64{"m": 1}, map[string]string{"p": "x"}, map[string]string{"t": "y"}),
		mkRun("r1", "u", 0, nil, nil, nil),
	}
	table := Pivot(runs)
	metricCol, _ := table.Column("metrics.m")
	if v, ok := metricCol[1].(float64); !ok || !math.IsNaN(v) {
		t.Fatalf("metric null must be NaN, got %v", metricCol[1])
	}
	paramCol, _ := table.Column("params.p")
	if paramCol[1] != nil {
		t.Fatalf("param null must be nil, got %v", paramCol[1])
	}
	tagCol, _ := table.Column("tags.t")
	if tagCol[1] != nil {
		t.Fatalf("tag null must be nil, got %v", tagCol[1])
	}
}

func TestPivotDoesNotMutateInput(t *testing.T) {
	metrics := map[string]float64{"m": 1}
	params := map[string]string{"p": "x"}
	runs := []domain.Run{mkRun("r0", "u", 0, metrics, params, nil), mkRun("r1", "u", 0, nil, nil, nil)}
	Pivot(runs)
	if len(metrics) != 1 || metrics["m"] != 1 {
		t.Fatalf("metrics mutated: %v", metrics)
	}
	if len(params) != 1 || params["p"] != "x" {
		t.Fatalf("params mutated: %v", params)
	}
}

// reconstruct builds run records back out of a pivoted table, inverting the
// transform as far as the data allows.
func reconstruct(t *testing.T, table *Table) []domain.Run {
	t.Helper()
	runs := make([]domain.Run, 0, table.NumRows())
	for i := 0; i < table.NumRows(); i++ {
		row := table.Row(i)
		run := mkRun(row[ColRunID].(string), row[ColUserID].(string),
			row[ColDate].(time.Time).Unix()*1000,
			map[string]float64{}, map[string]string{}, map[string]string{})
		if v, ok := row[ColRunName].(string); ok {
			run.Data.Tags[domain.TagRunName] = v
		}
		if v, ok := row[ColParentRunID].(string); ok {
			run.Data.Tags[domain.TagParentRunID] = v
		}
		for name, value := range row {
			switch {
			case len(name) > 8 && name[:8] == "metrics.":
				if f := value.(float64); !math.IsNaN(f) {
					run.Data.Metrics[name[8:]] = f
				}
			case len(name) > 7 && name[:7] == "params.":
				if s, ok := value.(string); ok {
					run.Data.Params[name[7:]] = s
				}
			case len(name) > 5 && name[:5] == "tags.":
				if s, ok := value.(string); ok {
					run.Data.Tags[name[5:]] = s
				}
			}
		}
		runs = append(runs, run)
	}
	return runs
}

func TestPivotIdempotent(t *testing.T) {
	runs := []domain.Run{
		mkRun("r0", "alice", 1552319350000,
			map[string]float64{"mse": 0.2},
			map[string]string{"param": "value"},
			map[string]string{"tag": "value", domain.TagRunName: "first"}),
		mkRun("r1", "bob", 1552319360000,
			map[string]float64{"mse": 0.6, "loss": 1.2},
			map[string]string{"param2": "val", "k": "v"},
			map[string]string{"tag2": "v2"}),
	}
	first := Pivot(runs)
	second := Pivot(reconstruct(t, first))

	firstCols := first.Columns()
	secondCols := second.Columns()
	if len(firstCols) != len(secondCols) {
		t.Fatalf("column sets differ: %v vs %v", firstCols, secondCols)
	}
	for _, name := range firstCols {
		a, _ := first.Column(name)
		b, ok := second.Column(name)
		if !ok {
			t.Fatalf("column %q missing after round trip", name)
		}
		for i := range a {
			if !valueEq(a[i], b[i]) {
				t.Fatalf("column %q row %d changed after round trip: %v vs %v", name, i, a[i], b[i])
			}
		}
	}
}
