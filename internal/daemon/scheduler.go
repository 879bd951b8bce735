package daemon

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/vmlinuzx/llmc-sub017/internal/logging"
)

// DefaultHousekeepingInterval is how often the scheduler wakes even with
// no watcher signal, to catch anything a watcher missed (spec §4.9).
const DefaultHousekeepingInterval = 5 * time.Minute

// DefaultPollBackoffMin/Max bound the fallback polling interval used on
// platforms without file-change notifications (spec §4.9: "3 min -> 30
// min, capped").
const (
	DefaultPollBackoffMin = 3 * time.Minute
	DefaultPollBackoffMax = 30 * time.Minute
)

// Scheduler turns watcher change signals and a housekeeping tick into
// jobs on a repo, and hands them to a JobRunner. It never busy-polls: the
// only wakeups are the housekeeping ticker and channel receives, both of
// which block the goroutine at 0% CPU between events.
type Scheduler struct {
	state   *ServiceState
	runner  JobRunner
	houseEvery time.Duration
}

// JobRunner executes one job; the scheduler doesn't know how.
type JobRunner interface {
	Run(ctx context.Context, job Job) error
}

// NewScheduler builds a scheduler over state, dispatching jobs to runner.
func NewScheduler(state *ServiceState, runner JobRunner) *Scheduler {
	return &Scheduler{state: state, runner: runner, houseEvery: DefaultHousekeepingInterval}
}

// Watch drives one repo's watcher: every settled change dispatches an
// INDEX job, and the housekeeping ticker dispatches one as a safety net
// even with no watcher signal. INDEX is the only job type dispatched;
// ENRICH, EMBED, GRAPH_BUILD and DOCGEN jobs are never started here.
func (s *Scheduler) Watch(ctx context.Context, repoPath string, changes <-chan string) {
	log := logging.Get(logging.CategoryDaemon)
	ticker := time.NewTicker(s.houseEvery)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case _, ok := <-changes:
			if !ok {
				return
			}
			s.dispatch(ctx, repoPath, JobIndex)
		case <-ticker.C:
			log.Debug("housekeeping tick", zap.String("repo", repoPath))
			s.dispatch(ctx, repoPath, JobIndex)
		}
	}
}

func (s *Scheduler) dispatch(ctx context.Context, repoPath string, t JobType) {
	log := logging.Get(logging.CategoryDaemon)
	if err := s.runner.Run(ctx, Job{Type: t, RepoPath: repoPath, EnqueuedAt: time.Now()}); err != nil {
		log.Warn("job failed", zap.String("repo", repoPath), zap.String("job_type", string(t)), zap.Error(err))
		_ = s.state.Transition(repoPath, StateFailed)
	}
}

// PollBackoff computes the next fallback-polling interval given the
// number of consecutive empty polls, doubling from DefaultPollBackoffMin
// up to DefaultPollBackoffMax.
func PollBackoff(consecutiveEmptyPolls int) time.Duration {
	d := DefaultPollBackoffMin
	for i := 0; i < consecutiveEmptyPolls; i++ {
		d *= 2
		if d >= DefaultPollBackoffMax {
			return DefaultPollBackoffMax
		}
	}
	return d
}
