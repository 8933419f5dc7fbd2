// Package scheduler runs recorded recipes on cron triggers or on
// demand, each firing as a full headless agent session. Two backends
// implement the same contract: an embedded in-process cron engine and a
// client for an external sidecar service.
package scheduler

import (
	"fmt"
	"time"

	"github.com/goosehq/goose/pkg/types"
)

// ErrorKind classifies scheduler failures.
type ErrorKind string

const (
	ErrJobIDExists ErrorKind = "job_id_exists"
	ErrJobNotFound ErrorKind = "job_not_found"
	ErrJobRunning  ErrorKind = "job_running"
	ErrStorage     ErrorKind = "storage"
	ErrRecipeLoad  ErrorKind = "recipe_load"
	ErrCronParse   ErrorKind = "cron_parse"
	ErrInternal    ErrorKind = "internal"
)

// Error is the scheduler error type.
type Error struct {
	Kind ErrorKind
	ID   string
	Err  error
}

func (e *Error) Error() string {
	if e.ID != "" {
		return fmt.Sprintf("scheduler %s: job %q: %v", e.Kind, e.ID, e.Err)
	}
	return fmt.Sprintf("scheduler %s: %v", e.Kind, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

func schedErr(kind ErrorKind, id string, format string, args ...any) *Error {
	return &Error{Kind: kind, ID: id, Err: fmt.Errorf(format, args...)}
}

// IsKind reports whether err is a scheduler error of the given kind.
func IsKind(err error, kind ErrorKind) bool {
	se, ok := err.(*Error)
	return ok && se.Kind == kind
}

// RunningInfo describes a job's in-flight execution.
type RunningInfo struct {
	SessionID string    `json:"session_id"`
	StartedAt time.Time `json:"started_at"`
}

// SessionInfo names one past session of a job.
type SessionInfo struct {
	Name     string                `json:"name"`
	Metadata types.SessionMetadata `json:"metadata"`
}

// Scheduler is the backend contract. Both backends preserve the same
// invariants: at most one execution per job at a time, paused jobs skip
// cron firings, and the persisted running state updates atomically
// around each execution.
type Scheduler interface {
	// Add creates a job. The recipe at job.Source is copied into a
	// scheduler-owned directory; the stored job references the copy so
	// later edits to the original cannot change scheduled behavior.
	Add(job types.ScheduledJob) error

	List() ([]types.ScheduledJob, error)
	Remove(id string) error
	Pause(id string) error
	Unpause(id string) error

	// Update changes a job's cron; rejected while the job is running.
	Update(id, newCron string) error

	// RunNow executes the job once immediately and returns the session
	// id. Fails when the job is already running. Paused jobs may be run
	// explicitly.
	RunNow(id string) (string, error)

	// KillRunning aborts the job's current execution; the execution's
	// cleanup still runs.
	KillRunning(id string) error

	// RunningInfo returns the in-flight execution, or nil when idle.
	RunningInfo(id string) (*RunningInfo, error)

	// Sessions lists past sessions whose metadata schedule_id matches,
	// newest first.
	Sessions(id string, limit int) ([]SessionInfo, error)

	// Stop shuts the backend down. Embedded timers stop; the external
	// service is deliberately left running for future firings.
	Stop()
}
