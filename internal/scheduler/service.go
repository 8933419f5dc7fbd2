package scheduler

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/goosehq/goose/internal/logging"
	"github.com/goosehq/goose/pkg/types"
)

// Wire protocol of the scheduler sidecar. The remote backend posts
// {action, ...} to /jobs; health lives at /health, port discovery at
// /ports.

// JobsRequest is the body of POST /jobs.
type JobsRequest struct {
	Action        string `json:"action"`
	JobID         string `json:"job_id,omitempty"`
	Cron          string `json:"cron,omitempty"`
	RecipePath    string `json:"recipe_path,omitempty"`
	ExecutionMode string `json:"execution_mode,omitempty"`
	Limit         int    `json:"limit,omitempty"`
}

// JobsResponse is the body of every /jobs reply.
type JobsResponse struct {
	Success bool                 `json:"success"`
	Message string               `json:"message,omitempty"`
	Jobs    []types.ScheduledJob `json:"jobs,omitempty"`
	Data    json.RawMessage      `json:"data,omitempty"`
}

// Service exposes a Scheduler over HTTP. It runs inside the detached
// sidecar process the remote backend spawns, and deliberately outlives
// individual goose processes so cron firings keep happening.
type Service struct {
	scheduler Scheduler
	port      int
	server    *http.Server
}

// NewService wraps a scheduler for serving on port.
func NewService(s Scheduler, port int) *Service {
	svc := &Service{scheduler: s, port: port}

	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST"},
	}))

	r.Get("/health", svc.handleHealth)
	r.Get("/ports", svc.handlePorts)
	r.Post("/jobs", svc.handleJobs)

	svc.server = &http.Server{
		Addr:              fmt.Sprintf("127.0.0.1:%d", port),
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}
	return svc
}

// Handler returns the HTTP handler, for tests.
func (s *Service) Handler() http.Handler { return s.server.Handler }

// ListenAndServe blocks serving the scheduler API.
func (s *Service) ListenAndServe() error {
	logging.Info().Int("port", s.port).Msg("scheduler service listening")
	return s.server.ListenAndServe()
}

func (s *Service) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, JobsResponse{Success: true, Message: "ok"})
}

func (s *Service) handlePorts(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"ports":   PortRange(),
		"active":  s.port,
	})
}

func (s *Service) handleJobs(w http.ResponseWriter, r *http.Request) {
	var req JobsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, JobsResponse{Success: false, Message: "invalid request body"})
		return
	}

	resp := s.dispatch(req)
	status := http.StatusOK
	if !resp.Success {
		status = http.StatusUnprocessableEntity
	}
	writeJSON(w, status, resp)
}

func (s *Service) dispatch(req JobsRequest) JobsResponse {
	fail := func(err error) JobsResponse {
		return JobsResponse{Success: false, Message: err.Error()}
	}
	ok := func(message string) JobsResponse {
		return JobsResponse{Success: true, Message: message}
	}

	switch req.Action {
	case "create":
		err := s.scheduler.Add(types.ScheduledJob{
			ID:            req.JobID,
			Source:        req.RecipePath,
			Cron:          req.Cron,
			ExecutionMode: types.ExecutionMode(req.ExecutionMode),
		})
		if err != nil {
			return fail(err)
		}
		return ok("job created")

	case "list":
		jobs, err := s.scheduler.List()
		if err != nil {
			return fail(err)
		}
		return JobsResponse{Success: true, Jobs: jobs}

	case "delete":
		if err := s.scheduler.Remove(req.JobID); err != nil {
			return fail(err)
		}
		return ok("job deleted")

	case "pause":
		if err := s.scheduler.Pause(req.JobID); err != nil {
			return fail(err)
		}
		return ok("job paused")

	case "unpause":
		if err := s.scheduler.Unpause(req.JobID); err != nil {
			return fail(err)
		}
		return ok("job unpaused")

	case "update":
		if err := s.scheduler.Update(req.JobID, req.Cron); err != nil {
			return fail(err)
		}
		return ok("job updated")

	case "run_now":
		sessionID, err := s.scheduler.RunNow(req.JobID)
		if err != nil {
			return fail(err)
		}
		data, _ := json.Marshal(map[string]string{"session_id": sessionID})
		return JobsResponse{Success: true, Message: "job started", Data: data}

	case "kill_job":
		if err := s.scheduler.KillRunning(req.JobID); err != nil {
			return fail(err)
		}
		return ok("job killed")

	case "status":
		info, err := s.scheduler.RunningInfo(req.JobID)
		if err != nil {
			return fail(err)
		}
		data, _ := json.Marshal(info)
		return JobsResponse{Success: true, Data: data}

	case "mark_completed":
		// The reconciler uses this when the engine and the session
		// heartbeat both show no activity.
		if err := s.scheduler.KillRunning(req.JobID); err != nil {
			return fail(err)
		}
		return ok("job marked completed")

	default:
		return JobsResponse{Success: false, Message: "unknown action: " + req.Action}
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
