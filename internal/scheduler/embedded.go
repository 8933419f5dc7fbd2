package scheduler

import (
	"context"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/goosehq/goose/internal/event"
	"github.com/goosehq/goose/internal/logging"
	"github.com/goosehq/goose/internal/recipe"
	"github.com/goosehq/goose/internal/sessionlog"
	"github.com/goosehq/goose/internal/storage"
	"github.com/goosehq/goose/pkg/types"
)

// Embedded is Backend A: an in-process cron engine over a file-backed
// jobs table. One goroutine per job waits for its next fire time; each
// firing executes as a headless agent session through the Runner.
type Embedded struct {
	// mu guards the jobs table; file persistence runs inside it, the
	// write itself is atomic (temp + rename).
	mu   sync.Mutex
	jobs map[string]*types.ScheduledJob

	// runningMu guards the abort-handle map separately so task
	// completions never block behind jobs-table operations.
	runningMu sync.Mutex
	running   map[string]*runningTask

	store      *storage.Storage
	recipesDir string
	runner     Runner

	timersMu sync.Mutex
	timers   map[string]context.CancelFunc

	rootCtx  context.Context
	rootStop context.CancelFunc
}

type runningTask struct {
	sessionID string
	startedAt time.Time
	cancel    context.CancelFunc
}

// NewEmbedded loads the jobs table from dir and registers cron timers.
// Persisted currently_running flags are cleared: a prior process cannot
// still be running. Jobs whose recipe copy has vanished are logged and
// left timerless.
func NewEmbedded(dir string, runner Runner) (*Embedded, error) {
	recipesDir := filepath.Join(dir, "recipes")
	if err := os.MkdirAll(recipesDir, 0755); err != nil {
		return nil, schedErr(ErrStorage, "", "cannot create scheduler directory: %v", err)
	}

	rootCtx, rootStop := context.WithCancel(context.Background())
	e := &Embedded{
		jobs:       make(map[string]*types.ScheduledJob),
		running:    make(map[string]*runningTask),
		store:      storage.New(dir),
		recipesDir: recipesDir,
		runner:     runner,
		timers:     make(map[string]context.CancelFunc),
		rootCtx:    rootCtx,
		rootStop:   rootStop,
	}

	var loaded []types.ScheduledJob
	if err := e.store.Get(context.Background(), []string{"jobs"}, &loaded); err != nil && err != storage.ErrNotFound {
		rootStop()
		return nil, schedErr(ErrStorage, "", "cannot load jobs file: %v", err)
	}

	for i := range loaded {
		job := loaded[i]
		job.CurrentlyRunning = false
		job.CurrentSessionID = ""
		job.ProcessStartTime = nil
		e.jobs[job.ID] = &job

		if _, err := os.Stat(job.Source); err != nil {
			logging.Error().Str("job", job.ID).Str("recipe", job.Source).Msg("scheduled job's recipe copy is missing; not registering a timer")
			continue
		}
		e.startTimer(job.ID, job.Cron)
	}

	e.mu.Lock()
	err := e.persistLocked()
	e.mu.Unlock()
	if err != nil {
		rootStop()
		return nil, err
	}
	return e, nil
}

// persistLocked rewrites the jobs file. Callers hold e.mu.
func (e *Embedded) persistLocked() error {
	jobs := make([]types.ScheduledJob, 0, len(e.jobs))
	for _, job := range e.jobs {
		jobs = append(jobs, job.Clone())
	}
	sort.Slice(jobs, func(i, j int) bool { return jobs[i].ID < jobs[j].ID })

	if err := e.store.Put(context.Background(), []string{"jobs"}, jobs); err != nil {
		return schedErr(ErrStorage, "", "cannot persist jobs file: %v", err)
	}
	return nil
}

// Add implements Scheduler.
func (e *Embedded) Add(job types.ScheduledJob) error {
	if job.ID == "" {
		return schedErr(ErrInternal, "", "job id is required")
	}
	if err := ValidateCron(job.Cron); err != nil {
		return err
	}

	// Validate and copy the recipe before touching the table.
	if _, err := recipe.Load(job.Source); err != nil {
		return schedErr(ErrRecipeLoad, job.ID, "%v", err)
	}
	copyPath := filepath.Join(e.recipesDir, job.ID+filepath.Ext(job.Source))
	data, err := os.ReadFile(job.Source)
	if err != nil {
		return schedErr(ErrRecipeLoad, job.ID, "cannot read recipe: %v", err)
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if _, ok := e.jobs[job.ID]; ok {
		return schedErr(ErrJobIDExists, job.ID, "job already exists")
	}

	if err := os.WriteFile(copyPath, data, 0644); err != nil {
		return schedErr(ErrStorage, job.ID, "cannot copy recipe: %v", err)
	}

	stored := job.Clone()
	stored.Source = copyPath
	stored.Cron = NormalizeCron(job.Cron)
	stored.CurrentlyRunning = false
	stored.CurrentSessionID = ""
	stored.ProcessStartTime = nil

	e.jobs[stored.ID] = &stored
	if err := e.persistLocked(); err != nil {
		delete(e.jobs, stored.ID)
		os.Remove(copyPath)
		return err
	}

	e.startTimer(stored.ID, stored.Cron)
	return nil
}

// List implements Scheduler.
func (e *Embedded) List() ([]types.ScheduledJob, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	jobs := make([]types.ScheduledJob, 0, len(e.jobs))
	for _, job := range e.jobs {
		jobs = append(jobs, job.Clone())
	}
	sort.Slice(jobs, func(i, j int) bool { return jobs[i].ID < jobs[j].ID })
	return jobs, nil
}

// Remove implements Scheduler. A running execution is killed first; the
// scheduler-owned recipe copy is deleted.
func (e *Embedded) Remove(id string) error {
	_ = e.KillRunning(id)
	e.stopTimer(id)

	e.mu.Lock()
	defer e.mu.Unlock()

	job, ok := e.jobs[id]
	if !ok {
		return schedErr(ErrJobNotFound, id, "no such job")
	}
	delete(e.jobs, id)
	if err := e.persistLocked(); err != nil {
		e.jobs[id] = job
		return err
	}
	os.Remove(job.Source)
	return nil
}

// Pause implements Scheduler: cron firings are skipped, not queued.
func (e *Embedded) Pause(id string) error {
	return e.setPaused(id, true)
}

// Unpause implements Scheduler.
func (e *Embedded) Unpause(id string) error {
	return e.setPaused(id, false)
}

func (e *Embedded) setPaused(id string, paused bool) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	job, ok := e.jobs[id]
	if !ok {
		return schedErr(ErrJobNotFound, id, "no such job")
	}
	prev := job.Paused
	job.Paused = paused
	if err := e.persistLocked(); err != nil {
		job.Paused = prev
		return err
	}
	return nil
}

// Update implements Scheduler; rejected while the job runs.
func (e *Embedded) Update(id, newCron string) error {
	if err := ValidateCron(newCron); err != nil {
		return err
	}

	e.mu.Lock()
	job, ok := e.jobs[id]
	if !ok {
		e.mu.Unlock()
		return schedErr(ErrJobNotFound, id, "no such job")
	}
	if job.CurrentlyRunning {
		e.mu.Unlock()
		return schedErr(ErrJobRunning, id, "cannot update a running job")
	}
	prev := job.Cron
	job.Cron = NormalizeCron(newCron)
	if err := e.persistLocked(); err != nil {
		job.Cron = prev
		e.mu.Unlock()
		return err
	}
	cron := job.Cron
	e.mu.Unlock()

	e.stopTimer(id)
	e.startTimer(id, cron)
	return nil
}

// RunNow implements Scheduler. Paused jobs run: an explicit request
// outranks the pause, which only silences cron firings.
func (e *Embedded) RunNow(id string) (string, error) {
	return e.beginExecution(id, false)
}

// fire handles one cron trigger.
func (e *Embedded) fire(id string) {
	if _, err := e.beginExecution(id, true); err != nil {
		if !IsKind(err, ErrJobRunning) && !IsKind(err, ErrJobNotFound) {
			logging.Error().Str("job", id).Err(err).Msg("scheduled firing failed to start")
		}
	}
}

// beginExecution flips the running state under the jobs lock, persists,
// and launches the execution task. fromCron firings skip paused jobs.
func (e *Embedded) beginExecution(id string, fromCron bool) (string, error) {
	e.mu.Lock()

	job, ok := e.jobs[id]
	if !ok {
		e.mu.Unlock()
		return "", schedErr(ErrJobNotFound, id, "no such job")
	}
	if job.CurrentlyRunning {
		e.mu.Unlock()
		return "", schedErr(ErrJobRunning, id, "job is already running")
	}
	if fromCron && job.Paused {
		e.mu.Unlock()
		return "", schedErr(ErrJobRunning, id, "job is paused")
	}

	now := time.Now()
	sessionID := sessionlog.GenerateName()
	job.CurrentlyRunning = true
	job.CurrentSessionID = sessionID
	job.ProcessStartTime = &now
	job.LastRun = &now
	if err := e.persistLocked(); err != nil {
		job.CurrentlyRunning = false
		job.CurrentSessionID = ""
		job.ProcessStartTime = nil
		e.mu.Unlock()
		return "", err
	}
	source := job.Source
	mode := job.ExecutionMode
	e.mu.Unlock()

	ctx, cancel := context.WithCancel(e.rootCtx)
	e.runningMu.Lock()
	e.running[id] = &runningTask{sessionID: sessionID, startedAt: now, cancel: cancel}
	e.runningMu.Unlock()

	event.Publish(event.Event{
		Type: event.ScheduleStarted,
		Data: event.ScheduleRunData{JobID: id, SessionID: sessionID},
	})

	go e.execute(ctx, id, source, sessionID, mode)
	return sessionID, nil
}

// execute runs one firing to completion and then clears the running
// state, whether it finished, failed, or was killed.
func (e *Embedded) execute(ctx context.Context, id, source, sessionID string, mode types.ExecutionMode) {
	var runErr error
	defer func() {
		e.finishExecution(id, runErr)
	}()

	rcp, err := recipe.Load(source)
	if err != nil {
		runErr = err
		logging.Error().Str("job", id).Err(err).Msg("scheduled job recipe failed to load")
		return
	}

	runErr = e.runner.Run(ctx, rcp, sessionID, id, mode)
	if runErr != nil && ctx.Err() == nil {
		logging.Error().Str("job", id).Err(runErr).Msg("scheduled job failed")
	}
}

// finishExecution clears running state under the jobs lock and drops
// the abort handle.
func (e *Embedded) finishExecution(id string, runErr error) {
	e.runningMu.Lock()
	task := e.running[id]
	delete(e.running, id)
	e.runningMu.Unlock()
	if task != nil {
		task.cancel()
	}

	e.mu.Lock()
	if job, ok := e.jobs[id]; ok {
		job.CurrentlyRunning = false
		job.CurrentSessionID = ""
		job.ProcessStartTime = nil
		if err := e.persistLocked(); err != nil {
			logging.Error().Str("job", id).Err(err).Msg("failed to persist job completion")
		}
	}
	e.mu.Unlock()

	data := event.ScheduleRunData{JobID: id}
	if runErr != nil {
		data.Error = runErr.Error()
	}
	event.Publish(event.Event{Type: event.ScheduleFinished, Data: data})
}

// KillRunning implements Scheduler.
func (e *Embedded) KillRunning(id string) error {
	e.runningMu.Lock()
	task, ok := e.running[id]
	e.runningMu.Unlock()

	if !ok {
		return nil // idle is not an error; kill is idempotent
	}
	task.cancel()
	return nil
}

// RunningInfo implements Scheduler.
func (e *Embedded) RunningInfo(id string) (*RunningInfo, error) {
	e.mu.Lock()
	_, exists := e.jobs[id]
	e.mu.Unlock()
	if !exists {
		return nil, schedErr(ErrJobNotFound, id, "no such job")
	}

	e.runningMu.Lock()
	defer e.runningMu.Unlock()
	task, ok := e.running[id]
	if !ok {
		return nil, nil
	}
	return &RunningInfo{SessionID: task.sessionID, StartedAt: task.startedAt}, nil
}

// Sessions implements Scheduler by scanning the session directory for
// files whose metadata carries this job's schedule_id.
func (e *Embedded) Sessions(id string, limit int) ([]SessionInfo, error) {
	return scanSessions(id, limit)
}

// scanSessions is shared with the remote backend, whose engine cannot
// observe session files.
func scanSessions(id string, limit int) ([]SessionInfo, error) {
	entries, err := sessionlog.ListSessions()
	if err != nil {
		return nil, schedErr(ErrStorage, id, "cannot list sessions: %v", err)
	}

	var out []SessionInfo
	for _, entry := range entries {
		if limit > 0 && len(out) >= limit {
			break
		}
		meta, err := sessionlog.ReadMetadata(entry.Path)
		if err != nil {
			continue
		}
		if meta.ScheduleID != id {
			continue
		}
		out = append(out, SessionInfo{Name: entry.Name, Metadata: meta})
	}
	return out, nil
}

// Stop implements Scheduler: timers stop, running executions are
// cancelled.
func (e *Embedded) Stop() {
	e.rootStop()

	e.timersMu.Lock()
	for id, cancel := range e.timers {
		cancel()
		delete(e.timers, id)
	}
	e.timersMu.Unlock()
}

// startTimer launches the per-job wait loop.
func (e *Embedded) startTimer(id, cron string) {
	ctx, cancel := context.WithCancel(e.rootCtx)

	e.timersMu.Lock()
	if prev, ok := e.timers[id]; ok {
		prev()
	}
	e.timers[id] = cancel
	e.timersMu.Unlock()

	go func() {
		for {
			next, err := NextFire(cron, time.Now())
			if err != nil {
				logging.Error().Str("job", id).Err(err).Msg("cron evaluation failed; timer stopped")
				return
			}

			timer := time.NewTimer(time.Until(next))
			select {
			case <-ctx.Done():
				timer.Stop()
				return
			case <-timer.C:
				e.fire(id)
			}
		}
	}()
}

// stopTimer cancels the per-job wait loop.
func (e *Embedded) stopTimer(id string) {
	e.timersMu.Lock()
	defer e.timersMu.Unlock()
	if cancel, ok := e.timers[id]; ok {
		cancel()
		delete(e.timers, id)
	}
}

// Facade adapts a Scheduler to the narrower interface the agent's
// platform__manage_schedule tool consumes.
type Facade struct {
	S Scheduler
}

func (f Facade) AddFromPath(id, recipePath, cron string) error {
	return f.S.Add(types.ScheduledJob{ID: id, Source: recipePath, Cron: cron})
}

func (f Facade) List() ([]types.ScheduledJob, error) { return f.S.List() }
func (f Facade) Remove(id string) error              { return f.S.Remove(id) }
func (f Facade) Pause(id string) error               { return f.S.Pause(id) }
func (f Facade) Unpause(id string) error             { return f.S.Unpause(id) }
func (f Facade) RunNow(id string) (string, error)    { return f.S.RunNow(id) }
func (f Facade) KillRunning(id string) error         { return f.S.KillRunning(id) }

func (f Facade) Sessions(id string, limit int) ([]types.SessionMetadata, error) {
	infos, err := f.S.Sessions(id, limit)
	if err != nil {
		return nil, err
	}
	out := make([]types.SessionMetadata, len(infos))
	for i, info := range infos {
		out[i] = info.Metadata
	}
	return out, nil
}
