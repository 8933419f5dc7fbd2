package scheduler

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"os/exec"
	"path/filepath"
	"sync"
	"syscall"
	"time"

	"github.com/goosehq/goose/internal/logging"
	"github.com/goosehq/goose/internal/sessionlog"
	"github.com/goosehq/goose/pkg/types"
)

const (
	// portRangeStart and portRangeCount define where the sidecar
	// service may listen; discovery probes each in order.
	portRangeStart = 52620
	portRangeCount = 10

	// reconcileInterval is how often the remote backend cross-checks
	// engine status against session activity.
	reconcileInterval = 60 * time.Second

	// staleThreshold is how long a session may sit untouched before a
	// job the engine also reports idle is marked not-running.
	staleThreshold = 5 * time.Minute
)

// PortRange lists the ports the sidecar discovery probes.
func PortRange() []int {
	ports := make([]int, portRangeCount)
	for i := range ports {
		ports[i] = portRangeStart + i
	}
	return ports
}

// Remote is Backend B: job CRUD proxied to the sidecar service over
// HTTP. Because the engine cannot observe session files, Sessions scans
// the local session directory and a periodic reconciler clears jobs
// that look finished from both sides.
type Remote struct {
	baseURL string
	client  *http.Client

	reconcileStop chan struct{}
	stopOnce      sync.Once
}

// NewRemote discovers a running sidecar on the fixed port range,
// spawning one as a detached process when none answers. serviceCmd is
// the command line used to spawn (typically this binary with its
// sched-service subcommand); logDir receives the sidecar's log file.
func NewRemote(serviceCmd []string, logDir string) (*Remote, error) {
	baseURL, err := discoverService()
	if err != nil {
		baseURL, err = spawnService(serviceCmd, logDir)
		if err != nil {
			return nil, err
		}
	}

	r := &Remote{
		baseURL:       baseURL,
		client:        &http.Client{Timeout: 30 * time.Second},
		reconcileStop: make(chan struct{}),
	}
	go r.reconcileLoop()
	return r, nil
}

// discoverService probes the port range for a healthy sidecar.
func discoverService() (string, error) {
	client := &http.Client{Timeout: 500 * time.Millisecond}
	for _, port := range PortRange() {
		base := fmt.Sprintf("http://127.0.0.1:%d", port)
		resp, err := client.Get(base + "/health")
		if err != nil {
			continue
		}
		resp.Body.Close()
		if resp.StatusCode == http.StatusOK {
			return base, nil
		}
	}
	return "", schedErr(ErrInternal, "", "no scheduler service on ports %d-%d", portRangeStart, portRangeStart+portRangeCount-1)
}

// spawnService starts the sidecar detached (its own process group, logs
// to a file) and waits for it to answer. The service intentionally
// outlives this process.
func spawnService(serviceCmd []string, logDir string) (string, error) {
	if len(serviceCmd) == 0 {
		return "", schedErr(ErrInternal, "", "no service command configured")
	}

	if err := os.MkdirAll(logDir, 0755); err != nil {
		return "", schedErr(ErrStorage, "", "cannot create log directory: %v", err)
	}
	logFile, err := os.OpenFile(filepath.Join(logDir, "sched-service.log"), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return "", schedErr(ErrStorage, "", "cannot open service log: %v", err)
	}
	defer logFile.Close()

	port := PortRange()[0]
	args := append(serviceCmd[1:], "--port", fmt.Sprintf("%d", port))
	cmd := exec.Command(serviceCmd[0], args...)
	cmd.Stdout = logFile
	cmd.Stderr = logFile
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}

	if err := cmd.Start(); err != nil {
		return "", schedErr(ErrInternal, "", "cannot spawn scheduler service: %v", err)
	}
	// Detach: the service keeps running after we exit.
	go cmd.Wait()

	base := fmt.Sprintf("http://127.0.0.1:%d", port)
	client := &http.Client{Timeout: 500 * time.Millisecond}
	for i := 0; i < 40; i++ {
		time.Sleep(250 * time.Millisecond)
		resp, err := client.Get(base + "/health")
		if err != nil {
			continue
		}
		resp.Body.Close()
		if resp.StatusCode == http.StatusOK {
			logging.Info().Str("base", base).Msg("scheduler service spawned")
			return base, nil
		}
	}
	return "", schedErr(ErrInternal, "", "scheduler service did not become healthy")
}

// post sends one /jobs action.
func (r *Remote) post(req JobsRequest) (*JobsResponse, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, schedErr(ErrInternal, req.JobID, "%v", err)
	}

	resp, err := r.client.Post(r.baseURL+"/jobs", "application/json", bytes.NewReader(body))
	if err != nil {
		return nil, schedErr(ErrInternal, req.JobID, "scheduler service unreachable: %v", err)
	}
	defer resp.Body.Close()

	var out JobsResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, schedErr(ErrInternal, req.JobID, "bad service response: %v", err)
	}
	if !out.Success {
		return nil, schedErr(ErrInternal, req.JobID, "%s", out.Message)
	}
	return &out, nil
}

// Add implements Scheduler.
func (r *Remote) Add(job types.ScheduledJob) error {
	_, err := r.post(JobsRequest{
		Action:        "create",
		JobID:         job.ID,
		Cron:          job.Cron,
		RecipePath:    job.Source,
		ExecutionMode: string(job.ExecutionMode),
	})
	return err
}

// List implements Scheduler.
func (r *Remote) List() ([]types.ScheduledJob, error) {
	resp, err := r.post(JobsRequest{Action: "list"})
	if err != nil {
		return nil, err
	}
	return resp.Jobs, nil
}

// Remove implements Scheduler.
func (r *Remote) Remove(id string) error {
	_, err := r.post(JobsRequest{Action: "delete", JobID: id})
	return err
}

// Pause implements Scheduler.
func (r *Remote) Pause(id string) error {
	_, err := r.post(JobsRequest{Action: "pause", JobID: id})
	return err
}

// Unpause implements Scheduler.
func (r *Remote) Unpause(id string) error {
	_, err := r.post(JobsRequest{Action: "unpause", JobID: id})
	return err
}

// Update implements Scheduler.
func (r *Remote) Update(id, newCron string) error {
	_, err := r.post(JobsRequest{Action: "update", JobID: id, Cron: newCron})
	return err
}

// RunNow implements Scheduler.
func (r *Remote) RunNow(id string) (string, error) {
	resp, err := r.post(JobsRequest{Action: "run_now", JobID: id})
	if err != nil {
		return "", err
	}
	var data struct {
		SessionID string `json:"session_id"`
	}
	if err := json.Unmarshal(resp.Data, &data); err != nil {
		return "", schedErr(ErrInternal, id, "bad run_now response: %v", err)
	}
	return data.SessionID, nil
}

// KillRunning implements Scheduler.
func (r *Remote) KillRunning(id string) error {
	_, err := r.post(JobsRequest{Action: "kill_job", JobID: id})
	return err
}

// RunningInfo implements Scheduler.
func (r *Remote) RunningInfo(id string) (*RunningInfo, error) {
	resp, err := r.post(JobsRequest{Action: "status", JobID: id})
	if err != nil {
		return nil, err
	}
	if len(resp.Data) == 0 || string(resp.Data) == "null" {
		return nil, nil
	}
	var info RunningInfo
	if err := json.Unmarshal(resp.Data, &info); err != nil {
		return nil, schedErr(ErrInternal, id, "bad status response: %v", err)
	}
	return &info, nil
}

// Sessions implements Scheduler against the local session directory;
// the engine does not know about session metadata.
func (r *Remote) Sessions(id string, limit int) ([]SessionInfo, error) {
	return scanSessions(id, limit)
}

// Stop stops the reconciler. The sidecar service keeps running so
// external cron firings continue across goose process lifetimes.
func (r *Remote) Stop() {
	r.stopOnce.Do(func() { close(r.reconcileStop) })
}

// reconcileLoop periodically marks jobs not-running when the engine
// reports them running but their session has gone quiet: the engine
// cannot observe session files, so a crashed worker would otherwise
// leave the flag stuck.
func (r *Remote) reconcileLoop() {
	ticker := time.NewTicker(reconcileInterval)
	defer ticker.Stop()

	for {
		select {
		case <-r.reconcileStop:
			return
		case <-ticker.C:
			r.reconcileOnce()
		}
	}
}

func (r *Remote) reconcileOnce() {
	jobs, err := r.List()
	if err != nil {
		logging.Debug().Err(err).Msg("reconciler could not list jobs")
		return
	}

	for _, job := range jobs {
		if !job.CurrentlyRunning || job.CurrentSessionID == "" {
			continue
		}
		if !sessionStale(job.CurrentSessionID) {
			continue
		}
		info, err := r.RunningInfo(job.ID)
		if err != nil || info != nil {
			continue // the engine still claims activity; leave it alone
		}
		logging.Info().Str("job", job.ID).Msg("reconciler clearing stale running flag")
		if _, err := r.post(JobsRequest{Action: "mark_completed", JobID: job.ID}); err != nil {
			logging.Warn().Str("job", job.ID).Err(err).Msg("failed to mark job completed")
		}
	}
}

// sessionStale reports whether the session file has seen no writes for
// the stale threshold.
func sessionStale(sessionID string) bool {
	path, err := sessionlog.Resolve(types.NameIdentifier(sessionID))
	if err != nil {
		return true
	}
	info, err := os.Stat(path)
	if err != nil {
		return true
	}
	return time.Since(info.ModTime()) > staleThreshold
}
