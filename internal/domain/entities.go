package domain

// Metric is a single logged metric value.
type Metric struct {
	Key       string
	Value     float64
	Timestamp int64 // epoch milliseconds
	Step      int64
}

// Param is a single logged parameter.
type Param struct {
	Key   string
	Value string
}

// RunTag is a single tag on a run.
type RunTag struct {
	Key   string
	Value string
}

// Experiment groups runs under a name and an artifact location.
type Experiment struct {
	ExperimentID     string
	Name             string
	ArtifactLocation string
	LifecycleStage   LifecycleStage
}

// ViewType selects which lifecycle stages a listing or search covers.
type ViewType string

const (
	ViewActiveOnly  ViewType = "ACTIVE_ONLY"
	ViewDeletedOnly ViewType = "DELETED_ONLY"
	ViewAll         ViewType = "ALL"
)

// Matches reports whether the view covers the given lifecycle stage.
func (v ViewType) Matches(stage LifecycleStage) bool {
	switch v {
	case ViewDeletedOnly:
		return stage == LifecycleDeleted
	case ViewAll:
		return true
	default:
		return stage == LifecycleActive
	}
}
