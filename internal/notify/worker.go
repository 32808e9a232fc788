package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/riverqueue/river"
)

const deliverTimeout = 5 * time.Second

// EventWorker delivers escrow lifecycle events to a webhook URL. Delivery is
// at-least-once; the engine never depends on it. With no URL configured events
// are only logged.
type EventWorker struct {
	river.WorkerDefaults[EscrowEventArgs]
	WebhookURL string
	Client     *http.Client
	Logger     *slog.Logger
}

func NewEventWorker(webhookURL string, logger *slog.Logger) *EventWorker {
	return &EventWorker{
		WebhookURL: webhookURL,
		Client:     &http.Client{Timeout: deliverTimeout},
		Logger:     logger,
	}
}

func (w *EventWorker) Work(ctx context.Context, job *river.Job[EscrowEventArgs]) error {
	if w.WebhookURL == "" {
		w.Logger.Info("escrow event", "event", job.Args.Event, "escrow_id", job.Args.EscrowID)
		return nil
	}
	body, err := json.Marshal(job.Args)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.WebhookURL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create event request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := w.Client.Do(req)
	if err != nil {
		return fmt.Errorf("deliver event: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return fmt.Errorf("event webhook returned %d", resp.StatusCode)
	}
	return nil
}
