package httpapi

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"strconv"
	"strings"

	"crime_pipeline/internal/config"
	"crime_pipeline/internal/jobs"
	"crime_pipeline/internal/metrics"
	"crime_pipeline/internal/store"
)

// Router builds the /ops control surface.
type Router struct {
	cfg    config.Config
	store  *store.Store
	runner *jobs.Runner

	// Rebuild starts a full build; Backfill queues missing batches. Both
	// are injected so the router stays decoupled from orchestration.
	Rebuild  func(ctx context.Context)
	Backfill func(ctx context.Context, limit int)
}

func NewRouter(cfg config.Config, st *store.Store, runner *jobs.Runner) *Router {
	return &Router{cfg: cfg, store: st, runner: runner}
}

func (r *Router) Register(mux *http.ServeMux) {
	mux.HandleFunc("/ops/health", r.health)
	mux.HandleFunc("/ops/status", r.status)
	mux.HandleFunc("/ops/metrics", r.metrics)
	mux.HandleFunc("/ops/batches", r.batches)
	mux.HandleFunc("/ops/periods", r.periods)
	mux.HandleFunc("/ops/jobs", r.jobs)
	mux.HandleFunc("/ops/jobs/enqueue", r.enqueue)
	mux.HandleFunc("/ops/jobs/", r.jobDetail)
	mux.HandleFunc("/ops/rebuild", r.rebuild)
	mux.HandleFunc("/ops/backfill", r.backfill)
}

func (r *Router) status(w http.ResponseWriter, req *http.Request) {
	ctx := req.Context()
	batches, _ := r.store.ListBatches(ctx, 5)
	periods, _ := r.store.ListPeriods(ctx, 10)
	jobList, _ := r.store.ListJobs(ctx, 10)
	run, _ := r.store.LatestRun(ctx)
	respondJSON(w, map[string]any{
		"batches":    batches,
		"periods":    periods,
		"jobs":       jobList,
		"latest_run": run,
		"workers":    r.cfg.WorkerCount,
	})
}

func (r *Router) metrics(w http.ResponseWriter, req *http.Request) {
	respondJSON(w, metrics.Snapshot())
}

func (r *Router) batches(w http.ResponseWriter, req *http.Request) {
	list, err := r.store.ListBatches(req.Context(), 200)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	respondJSON(w, list)
}

func (r *Router) periods(w http.ResponseWriter, req *http.Request) {
	list, err := r.store.ListPeriods(req.Context(), 500)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	respondJSON(w, list)
}

func (r *Router) jobs(w http.ResponseWriter, req *http.Request) {
	list, err := r.store.ListJobs(req.Context(), 50)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	respondJSON(w, list)
}

func (r *Router) enqueue(w http.ResponseWriter, req *http.Request) {
	if req.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	var body struct {
		Subject string      `json:"subject"`
		Stage   jobs.Stage  `json:"stage"`
		Params  interface{} `json:"params"`
	}
	if err := json.NewDecoder(req.Body).Decode(&body); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	p, ok := body.Params.(map[string]any)
	if !ok {
		p = map[string]any{}
	}
	job, err := r.runner.Enqueue(req.Context(), body.Subject, body.Stage, p)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	respondJSON(w, job)
}

func (r *Router) jobDetail(w http.ResponseWriter, req *http.Request) {
	// /ops/jobs/{id} or /ops/jobs/{id}/logs
	path := req.URL.Path
	if strings.HasSuffix(path, "/logs") {
		idStr := strings.TrimSuffix(strings.TrimPrefix(path, "/ops/jobs/"), "/logs")
		id, _ := strconv.ParseInt(idStr, 10, 64)
		respondJSON(w, r.runner.Logs(id))
		return
	}
	idStr := strings.TrimPrefix(path, "/ops/jobs/")
	id, _ := strconv.ParseInt(idStr, 10, 64)
	jobList, err := r.store.ListJobs(req.Context(), 200)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	for _, j := range jobList {
		if j.ID == id {
			respondJSON(w, j)
			return
		}
	}
	http.NotFound(w, req)
}

func (r *Router) rebuild(w http.ResponseWriter, req *http.Request) {
	if req.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if r.Rebuild == nil {
		http.Error(w, "rebuild not configured", http.StatusServiceUnavailable)
		return
	}
	go r.Rebuild(context.Background())
	respondJSON(w, map[string]any{"status": "started"})
}

func (r *Router) backfill(w http.ResponseWriter, req *http.Request) {
	if req.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if r.Backfill == nil {
		http.Error(w, "backfill not configured", http.StatusServiceUnavailable)
		return
	}
	limit := r.cfg.BackfillLimit
	if v := req.URL.Query().Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n >= 0 {
			limit = n
		}
	}
	r.Backfill(req.Context(), limit)
	respondJSON(w, map[string]any{"status": "queued", "limit": limit})
}

func (r *Router) health(w http.ResponseWriter, req *http.Request) {
	if err := r.store.Health(req.Context()); err != nil {
		http.Error(w, err.Error(), http.StatusServiceUnavailable)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func respondJSON(w http.ResponseWriter, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		log.Printf("write json: %v", err)
	}
}
