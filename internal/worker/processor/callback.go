package processor

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"time"

	"sceneforge/internal/pkg/logger"
)

// Callback status values. In-flight milestones report PROCESSING; the
// terminal statuses are COMPLETED and FAILED.
const (
	StatusProcessing = "PROCESSING"
	StatusCompleted  = "COMPLETED"
	StatusFailed     = "FAILED"
)

// Notification is the payload posted to a job's callback URL.
type Notification struct {
	JobID     string `json:"jobId"`
	Status    string `json:"status"`
	Progress  int    `json:"progress"`
	OutputURL string `json:"outputUrl,omitempty"`
	Error     string `json:"error,omitempty"`
}

// Notifier delivers progress callbacks. Delivery is best effort:
// failures are logged and never affect the job outcome.
type Notifier struct {
	client *http.Client
	log    *logger.Logger
}

func NewNotifier(log *logger.Logger) *Notifier {
	if log == nil {
		log = logger.NewDefault()
	}
	return &Notifier{
		client: &http.Client{Timeout: 10 * time.Second},
		log:    log.WithComponent("callback"),
	}
}

func (n *Notifier) Notify(ctx context.Context, url string, note Notification) {
	if url == "" {
		return
	}

	body, err := json.Marshal(note)
	if err != nil {
		n.log.Warn("callback marshal failed", "job_id", note.JobID, "error", err.Error())
		return
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		n.log.Warn("callback request failed", "job_id", note.JobID, "error", err.Error())
		return
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := n.client.Do(req)
	if err != nil {
		n.log.Warn("callback delivery failed",
			"job_id", note.JobID,
			"url", url,
			"error", err.Error(),
		)
		return
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		n.log.Warn("callback rejected",
			"job_id", note.JobID,
			"url", url,
			"status", resp.StatusCode,
		)
	}
}
