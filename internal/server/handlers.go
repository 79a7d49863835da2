package server

import (
	"encoding/json"
	"net/http"
	"os"
	"strconv"
	"strings"

	"github.com/gorilla/mux"

	"burnish/internal/jobs"
	"burnish/internal/logging"
	"burnish/internal/services"
	"burnish/internal/version"
)

type submitRequest struct {
	InputDir  string `json:"inputDir"`
	OutputDir string `json:"outputDir"`
	Scale     int    `json:"scale"`
	Format    string `json:"format"`
	Quality   int    `json:"quality"`
	UseAI     *bool  `json:"useAI"`
}

type jobListResponse struct {
	Jobs []*jobs.Job `json:"jobs"`
}

type statusResponse struct {
	PID       int          `json:"pid"`
	Version   string       `json:"version"`
	StorePath string       `json:"storePath"`
	Jobs      jobs.Summary `json:"jobs"`
}

func (s *Server) handleSubmit(w http.ResponseWriter, r *http.Request) {
	contentType := r.Header.Get("Content-Type")
	if mediaType, _, _ := strings.Cut(contentType, ";"); strings.TrimSpace(mediaType) != "application/json" {
		s.writeError(w, http.StatusUnsupportedMediaType, "request body must be application/json")
		return
	}

	var req submitRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	payload := jobs.Payload{
		InputDir:  req.InputDir,
		OutputDir: req.OutputDir,
		Scale:     req.Scale,
		Format:    req.Format,
		Quality:   req.Quality,
		UseAI:     req.UseAI == nil || *req.UseAI,
	}
	if payload.Quality == 0 {
		payload.Quality = s.cfg.Upscaler.DefaultQuality
	}
	normalized, err := jobs.NormalizePayload(payload)
	if err != nil {
		s.writeError(w, services.HTTPStatus(err), err.Error())
		return
	}

	job, err := s.store.Create(r.Context(), normalized)
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.logger.Info("job submitted",
		logging.String("job_id", job.ID),
		logging.String("input_dir", normalized.InputDir),
		logging.String("output_dir", normalized.OutputDir))

	if err := s.spawner.Spawn(job.ID); err != nil {
		s.logger.Error("failed to spawn worker", logging.String("job_id", job.ID), logging.Error(err))
		if failed, markErr := s.store.MarkFailed(r.Context(), job.ID, "worker process failed to start"); markErr == nil && failed != nil {
			job = failed
		}
		s.writeError(w, http.StatusInternalServerError, "worker process failed to start")
		return
	}

	s.writeJSON(w, http.StatusOK, job)
}

func (s *Server) handleList(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	opts := jobs.ListOptions{
		Type:  jobs.Type(strings.TrimSpace(query.Get("type"))),
		Query: query.Get("q"),
	}

	if raw := strings.TrimSpace(query.Get("status")); raw != "" {
		status, ok := jobs.ParseStatus(raw)
		if !ok {
			s.writeError(w, http.StatusBadRequest, "unknown status "+strconv.Quote(raw))
			return
		}
		opts.Status = status
	}
	if raw := strings.TrimSpace(query.Get("limit")); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil || limit < 0 {
			s.writeError(w, http.StatusBadRequest, "limit must be a non-negative integer")
			return
		}
		opts.Limit = limit
	}

	list, err := s.store.List(r.Context(), opts)
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.writeJSON(w, http.StatusOK, jobListResponse{Jobs: list})
}

func (s *Server) handleShow(w http.ResponseWriter, r *http.Request) {
	job, err := s.store.Get(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if job == nil {
		s.writeError(w, http.StatusNotFound, "job not found")
		return
	}
	s.writeJSON(w, http.StatusOK, job)
}

func (s *Server) handleCancel(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	job, err := s.store.Cancel(r.Context(), id)
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if job == nil {
		s.writeError(w, http.StatusNotFound, "job not found")
		return
	}
	s.logger.Info("job canceled", logging.String("job_id", id), logging.String("status", string(job.Status)))
	s.writeJSON(w, http.StatusOK, job)
}

func (s *Server) handleDelete(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	removed, err := s.store.Delete(r.Context(), id)
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if !removed {
		s.writeError(w, http.StatusNotFound, "job not found")
		return
	}
	s.logger.Info("job deleted", logging.String("job_id", id))
	w.WriteHeader(http.StatusNoContent)
}

// handleDefaults surfaces the configured submission defaults so clients can
// prefill a job form.
func (s *Server) handleDefaults(w http.ResponseWriter, r *http.Request) {
	up := s.cfg.Upscaler
	s.writeJSON(w, http.StatusOK, submitRequest{
		InputDir:  up.DefaultInputDir,
		OutputDir: up.DefaultOutputDir,
		Scale:     up.DefaultScale,
		Format:    up.DefaultFormat,
		Quality:   up.DefaultQuality,
		UseAI:     boolPtr(true),
	})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	summary, err := s.store.Summarize(r.Context())
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.writeJSON(w, http.StatusOK, statusResponse{
		PID:       os.Getpid(),
		Version:   version.Version,
		StorePath: s.store.Path(),
		Jobs:      summary,
	})
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if payload == nil {
		return
	}
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		s.logger.Error("failed to encode response", logging.Error(err))
	}
}

func (s *Server) writeError(w http.ResponseWriter, status int, message string) {
	s.writeJSON(w, status, map[string]string{"error": message})
}

func boolPtr(v bool) *bool {
	return &v
}
