package server

import (
	"net/http"
	"strings"
)

// setupRoutes configures all HTTP routes
func (s *Server) setupRoutes() *http.ServeMux {
	mux := http.NewServeMux()

	// WebSocket push channel for the browser extension
	mux.HandleFunc("/ws/plugin", s.app.PluginHandler.SocketHandler)

	// API routes - Jobs
	mux.HandleFunc("/api/jobs", s.handleJobsRoute)  // GET (list), POST (create)
	mux.HandleFunc("/api/jobs/", s.handleJobRoutes) // GET/DELETE /{id}, POST /{id}/retry|pause|resume|cancel

	// API routes - Batches
	mux.HandleFunc("/api/batches", s.handleBatchesRoute)  // GET (list), POST (create)
	mux.HandleFunc("/api/batches/", s.handleBatchRoutes)  // GET/DELETE /{id}, GET /{id}/jobs

	// API routes - Tasks
	mux.HandleFunc("/api/tasks", s.app.TaskHandler.ListTasksHandler)
	mux.HandleFunc("/api/tasks/", s.handleTaskRoutes) // GET /{id}

	// API routes - Plugin channel (browser extension)
	mux.HandleFunc("/api/plugin/tasks", s.app.PluginHandler.PollTasksHandler) // GET - long-poll for work
	mux.HandleFunc("/api/plugin/tasks/", s.handlePluginTaskRoutes)            // POST /{id}/result
	mux.HandleFunc("/api/vinted/notify-disconnect", s.app.PluginHandler.NotifyDisconnectHandler)

	// API routes - Stats
	mux.HandleFunc("/api/stats", s.app.StatsHandler.GetStatsHandler)
	mux.HandleFunc("/api/stats/queue", s.app.StatsHandler.QueueCountsHandler)

	// API routes - Connections and action catalog
	mux.HandleFunc("/api/connections", s.app.ConnectionHandler.ConnectionsHandler)
	mux.HandleFunc("/api/actions", s.app.ConnectionHandler.ActionTypesHandler)

	// API routes - System
	mux.HandleFunc("/api/version", s.app.APIHandler.VersionHandler)
	mux.HandleFunc("/api/health", s.app.APIHandler.HealthHandler)

	// 404 handler for unmatched API routes
	mux.HandleFunc("/api/", s.app.APIHandler.NotFoundHandler)

	return mux
}

// handleJobsRoute routes /api/jobs requests (list and create)
func (s *Server) handleJobsRoute(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case "GET":
		s.app.JobHandler.ListJobsHandler(w, r)
	case "POST":
		s.app.JobHandler.CreateJobHandler(w, r)
	default:
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
	}
}

// handleJobRoutes routes /api/jobs/{id} requests and lifecycle subpaths
func (s *Server) handleJobRoutes(w http.ResponseWriter, r *http.Request) {
	suffix := strings.TrimPrefix(r.URL.Path, "/api/jobs/")
	if suffix == "" {
		http.Error(w, "Not found", http.StatusNotFound)
		return
	}

	if r.Method == "POST" {
		// POST /api/jobs/{id}/retry|pause|resume|cancel
		if jobID, ok := strings.CutSuffix(suffix, "/retry"); ok {
			s.app.JobHandler.RetryJobHandler(w, r, jobID)
			return
		}
		if jobID, ok := strings.CutSuffix(suffix, "/pause"); ok {
			s.app.JobHandler.PauseJobHandler(w, r, jobID)
			return
		}
		if jobID, ok := strings.CutSuffix(suffix, "/resume"); ok {
			s.app.JobHandler.ResumeJobHandler(w, r, jobID)
			return
		}
		if jobID, ok := strings.CutSuffix(suffix, "/cancel"); ok {
			s.app.JobHandler.CancelJobHandler(w, r, jobID)
			return
		}
		http.Error(w, "Not found", http.StatusNotFound)
		return
	}

	// GET /api/jobs/{id}
	if r.Method == "GET" && !strings.Contains(suffix, "/") {
		s.app.JobHandler.GetJobHandler(w, r, suffix)
		return
	}

	// DELETE /api/jobs/{id}
	if r.Method == "DELETE" && !strings.Contains(suffix, "/") {
		s.app.JobHandler.DeleteJobHandler(w, r, suffix)
		return
	}

	http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
}

// handleTaskRoutes routes /api/tasks/{id} requests
func (s *Server) handleTaskRoutes(w http.ResponseWriter, r *http.Request) {
	suffix := strings.TrimPrefix(r.URL.Path, "/api/tasks/")
	if suffix == "" || strings.Contains(suffix, "/") {
		http.Error(w, "Not found", http.StatusNotFound)
		return
	}
	if r.Method != "GET" {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	s.app.TaskHandler.GetTaskHandler(w, r, suffix)
}

// handleBatchesRoute routes /api/batches requests (list and create)
func (s *Server) handleBatchesRoute(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case "GET":
		s.app.BatchHandler.ListBatchesHandler(w, r)
	case "POST":
		s.app.BatchHandler.CreateBatchHandler(w, r)
	default:
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
	}
}

// handleBatchRoutes routes /api/batches/{id} requests and subpaths
func (s *Server) handleBatchRoutes(w http.ResponseWriter, r *http.Request) {
	suffix := strings.TrimPrefix(r.URL.Path, "/api/batches/")
	if suffix == "" {
		http.Error(w, "Not found", http.StatusNotFound)
		return
	}
	// DELETE /api/batches/{id}
	if r.Method == "DELETE" && !strings.Contains(suffix, "/") {
		s.app.BatchHandler.DeleteBatchHandler(w, r, suffix)
		return
	}
	if r.Method != "GET" {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	// GET /api/batches/{id}/jobs
	if batchID, ok := strings.CutSuffix(suffix, "/jobs"); ok {
		s.app.BatchHandler.BatchJobsHandler(w, r, batchID)
		return
	}

	// GET /api/batches/{id}
	if !strings.Contains(suffix, "/") {
		s.app.BatchHandler.GetBatchHandler(w, r, suffix)
		return
	}

	http.Error(w, "Not found", http.StatusNotFound)
}

// handlePluginTaskRoutes routes /api/plugin/tasks/{id}/result requests
func (s *Server) handlePluginTaskRoutes(w http.ResponseWriter, r *http.Request) {
	suffix := strings.TrimPrefix(r.URL.Path, "/api/plugin/tasks/")

	if r.Method == "POST" {
		if requestID, ok := strings.CutSuffix(suffix, "/result"); ok && requestID != "" {
			s.app.PluginHandler.ReportResultHandler(w, r, requestID)
			return
		}
	}

	http.Error(w, "Not found", http.StatusNotFound)
}
