package domain

// RunStatus describes the execution state of a run.
type RunStatus string

const (
	RunStatusRunning   RunStatus = "RUNNING"
	RunStatusScheduled RunStatus = "SCHEDULED"
	RunStatusFinished  RunStatus = "FINISHED"
	RunStatusFailed    RunStatus = "FAILED"
	RunStatusKilled    RunStatus = "KILLED"
)

// Valid reports whether s is one of the defined run statuses.
func (s RunStatus) Valid() bool {
	switch s {
	case RunStatusRunning, RunStatusScheduled, RunStatusFinished, RunStatusFailed, RunStatusKilled:
		return true
	}
	return false
}

// LifecycleStage marks a run or experiment as active or soft-deleted.
type LifecycleStage string

const (
	LifecycleActive  LifecycleStage = "active"
	LifecycleDeleted LifecycleStage = "deleted"
)

// RunInfo holds the fixed metadata of a run.
type RunInfo struct {
	RunID          string
	ExperimentID   string
	UserID         string
	Status         RunStatus
	StartTime      int64 // epoch milliseconds
	EndTime        int64 // epoch milliseconds, 0 while the run is open
	LifecycleStage LifecycleStage
	ArtifactURI    string
}

// RunData holds the logged key-value collections of a run. Metrics carry the
// most recently logged value per key.
type RunData struct {
	Params  map[string]string
	Metrics map[string]float64
	Tags    map[string]string
}

// Run is one execution record: fixed metadata plus logged data.
type Run struct {
	Info RunInfo
	Data RunData
}
