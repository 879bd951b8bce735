// Package daemon implements C10: the service daemon's lifecycle
// (start/stop/status/register/unregister/clear_failures), per-repo file
// watchers with a debounced change queue, a housekeeping-interval plus
// event-driven scheduler, and a bounded worker pool.
package daemon

import "time"

// JobType enumerates the units of work a JobRunner executes.
type JobType string

const (
	JobIndex      JobType = "INDEX"
	JobEnrich     JobType = "ENRICH"
	JobEmbed      JobType = "EMBED"
	JobGraphBuild JobType = "GRAPH_BUILD"
	JobDocgen     JobType = "DOCGEN"
)

// isWriter reports whether a job type is a repo's single active writer
// job, per spec §4.9 ("each repo has at most one active writer job at a
// time; enrichment and embedding jobs may run in parallel across repos").
func (t JobType) isWriter() bool {
	switch t {
	case JobIndex, JobGraphBuild, JobDocgen:
		return true
	default:
		return false
	}
}

// Job is one unit of scheduled work.
type Job struct {
	Type       JobType
	RepoPath   string
	EnqueuedAt time.Time
}
