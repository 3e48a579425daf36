package handlers

import (
	"encoding/json"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"sceneforge/internal/httpapi/util"
	"sceneforge/internal/httpkit"
	"sceneforge/internal/pkg/errors"
	"sceneforge/internal/render/job"
)

// maxSpecBytes bounds the job-spec document size.
const maxSpecBytes = 1 << 20

// PostJob accepts a render-job spec document, validates it, persists
// the job as QUEUED and pushes its ID onto the worker queue. The raw
// document is stored verbatim so the worker re-parses the exact spec
// the client submitted.
func (h *Handler) PostJob(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := h.log.FromContext(ctx)

	body, err := io.ReadAll(io.LimitReader(r.Body, maxSpecBytes+1))
	if err != nil {
		httpkit.WriteErr(w, 400, "VALIDATION_ERROR", "unreadable request body", nil)
		return
	}
	defer r.Body.Close()
	if len(body) > maxSpecBytes {
		httpkit.WriteErr(w, 400, "VALIDATION_ERROR", "job spec exceeds 1MiB", nil)
		return
	}

	parsed, err := job.ParseSpec(body)
	if err != nil {
		httpkit.WriteErr(w, errors.GetHTTPStatus(err), string(errors.GetCode(err)), err.Error(), errors.GetFields(err))
		return
	}

	jobID := parsed.JobID
	if jobID == "" {
		jobID = util.NewID("job")
	}

	createdAt := time.Now().UTC()
	_, err = h.pool.Exec(ctx,
		`INSERT INTO jobs (id, project_id, status, params_json, progress, created_at)
		 VALUES ($1,$2,'QUEUED',$3,0,$4)`,
		jobID, nullIfEmpty(parsed.ProjectID), string(body), createdAt,
	)
	if err != nil {
		if httpkit.IsUniqueViolation(err) {
			httpkit.WriteErr(w, 409, "ALREADY_EXISTS", "job id already exists", map[string]any{"job_id": jobID})
			return
		}
		log.Error("job insert failed", "error", err.Error())
		httpkit.WriteErr(w, 500, "INTERNAL_ERROR", "db insert failed", nil)
		return
	}

	if err := h.rdb.LPush(ctx, h.queueName, jobID).Err(); err != nil {
		log.Error("queue push failed", "error", err.Error())
		httpkit.WriteErr(w, 500, "INTERNAL_ERROR", "queue push failed", nil)
		return
	}

	log.Info("job queued",
		"job_id", jobID,
		"mode", string(parsed.Mode),
		"resolution", parsed.Resolution,
	)

	httpkit.WriteJSON(w, 201, map[string]any{
		"job": map[string]any{
			"id":         jobID,
			"status":     "QUEUED",
			"mode":       string(parsed.Mode),
			"resolution": parsed.Resolution,
			"created_at": createdAt,
		},
	})
}

func (h *Handler) ListJobs(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	status := strings.TrimSpace(r.URL.Query().Get("status"))
	limitStr := strings.TrimSpace(r.URL.Query().Get("limit"))
	limit := 50
	if limitStr != "" {
		if v, err := strconv.Atoi(limitStr); err == nil && v > 0 && v <= 200 {
			limit = v
		}
	}

	var (
		rows pgxRows
		err  error
	)

	if status != "" {
		rows, err = h.pool.Query(ctx,
			`SELECT id, status, progress, created_at
			 FROM jobs WHERE status=$1
			 ORDER BY created_at DESC
			 LIMIT $2`,
			status, limit,
		)
	} else {
		rows, err = h.pool.Query(ctx,
			`SELECT id, status, progress, created_at
			 FROM jobs
			 ORDER BY created_at DESC
			 LIMIT $1`,
			limit,
		)
	}
	if err != nil {
		httpkit.WriteErr(w, 500, "INTERNAL_ERROR", "db query failed", nil)
		return
	}
	defer rows.Close()

	type item struct {
		ID        string    `json:"id"`
		Status    string    `json:"status"`
		Progress  int       `json:"progress"`
		CreatedAt time.Time `json:"created_at"`
	}

	out := make([]item, 0, limit)
	for rows.Next() {
		var it item
		if err := rows.Scan(&it.ID, &it.Status, &it.Progress, &it.CreatedAt); err != nil {
			httpkit.WriteErr(w, 500, "INTERNAL_ERROR", "row scan failed", nil)
			return
		}
		out = append(out, it)
	}

	httpkit.WriteJSON(w, 200, map[string]any{"jobs": out})
}

func (h *Handler) GetJob(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	jobID := chi.URLParam(r, "jobId")

	var (
		id, status, paramsJSON string
		progress               int
		outputURL, errorText   *string
		createdAt              time.Time
		startedAt, finishedAt  *time.Time
	)

	err := h.pool.QueryRow(ctx,
		`SELECT id, status, progress, params_json, output_url, error_text, created_at, started_at, finished_at
		 FROM jobs WHERE id=$1`,
		jobID,
	).Scan(&id, &status, &progress, &paramsJSON, &outputURL, &errorText, &createdAt, &startedAt, &finishedAt)
	if err != nil {
		httpkit.WriteErr(w, 404, "JOB_NOT_FOUND", "job not found", map[string]any{"job_id": jobID})
		return
	}

	var params map[string]any
	_ = json.Unmarshal([]byte(paramsJSON), &params)

	out := map[string]any{
		"id":          id,
		"status":      status,
		"progress":    progress,
		"params":      params,
		"created_at":  createdAt,
		"started_at":  startedAt,
		"finished_at": finishedAt,
	}
	if outputURL != nil && *outputURL != "" {
		out["output_url"] = *outputURL
	}
	if errorText != nil && *errorText != "" {
		out["error"] = *errorText
	}

	httpkit.WriteJSON(w, 200, map[string]any{"job": out})
}

type pgxRows interface {
	Close()
	Next() bool
	Scan(dest ...any) error
}
