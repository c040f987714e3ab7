package domain

import "strings"

// ReservedTagPrefix marks tag keys managed by tracklab itself. Reserved tags
// never become dynamic columns in the run table; TagRunName and
// TagParentRunID surface through fixed columns instead.
const ReservedTagPrefix = "tracklab."

const (
	TagRunName     = "tracklab.runName"
	TagParentRunID = "tracklab.parentRunId"
	TagUser        = "tracklab.user"
	TagSourceName  = "tracklab.source.name"
	TagSourceType  = "tracklab.source.type"
	TagGitCommit   = "tracklab.source.git.commit"
	TagEntryPoint  = "tracklab.project.entryPoint"
)

// IsReservedTag reports whether key belongs to the reserved tag namespace.
func IsReservedTag(key string) bool {
	return strings.HasPrefix(key, ReservedTagPrefix)
}
