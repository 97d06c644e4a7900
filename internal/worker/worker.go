// Package worker consumes alerts from the event bus and runs them
// through the triage pipeline asynchronously.
package worker

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/kestrel-soc/kestrel/internal/domain"
	"github.com/kestrel-soc/kestrel/internal/triage"
)

// Worker subscribes to ingested alerts and scores them off the
// request path. A semaphore bounds in-flight alerts so a burst from
// the monitoring system cannot exhaust the process.
type Worker struct {
	bus       domain.EventBus
	processor *triage.Processor
	sem       chan struct{}

	subscriptions []domain.Subscription
	wg            sync.WaitGroup
	ctx           context.Context
	cancel        context.CancelFunc
}

// NewWorker creates an async worker. concurrency <= 0 allows four
// in-flight alerts.
func NewWorker(bus domain.EventBus, processor *triage.Processor, concurrency int) *Worker {
	if concurrency <= 0 {
		concurrency = 4
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Worker{
		bus:       bus,
		processor: processor,
		sem:       make(chan struct{}, concurrency),
		ctx:       ctx,
		cancel:    cancel,
	}
}

// Start subscribes to the alert ingestion topic.
func (w *Worker) Start() error {
	sub, err := w.bus.Subscribe(w.ctx, domain.TopicAlertIngested, w.handleMessage)
	if err != nil {
		return err
	}
	w.subscriptions = append(w.subscriptions, sub)

	slog.Info("worker started",
		"topic", domain.TopicAlertIngested,
		"concurrency", cap(w.sem),
	)
	return nil
}

func (w *Worker) handleMessage(ctx context.Context, msg *domain.Message) error {
	select {
	case w.sem <- struct{}{}:
	case <-w.ctx.Done():
		return w.ctx.Err()
	}
	defer func() { <-w.sem }()

	w.wg.Add(1)
	defer w.wg.Done()

	return w.processAlert(ctx, msg)
}

// processAlert scores one ingested alert.
func (w *Worker) processAlert(ctx context.Context, msg *domain.Message) error {
	start := time.Now()

	var req domain.ScoreRequest
	if err := json.Unmarshal(msg.Payload, &req); err != nil {
		slog.Error("failed to parse alert message",
			"message_id", msg.ID,
			"error", err,
		)
		return err
	}

	if req.AlertID == "" {
		req.AlertID = msg.ID
	}

	slog.Debug("processing alert",
		"alert_id", req.AlertID,
		"message_id", msg.ID,
	)

	rec, err := w.processor.Process(ctx, req.AlertID, req.Alert)
	if err != nil {
		slog.Error("alert processing failed",
			"alert_id", req.AlertID,
			"error", err,
		)
		return err
	}

	slog.Info("alert processed",
		"alert_id", req.AlertID,
		"decision", rec.Decision,
		"score", rec.Score,
		"criticality", rec.Criticality.Tag,
		"duration_ms", time.Since(start).Milliseconds(),
	)

	return nil
}

// Stop gracefully stops the worker, waiting for in-flight alerts.
func (w *Worker) Stop() error {
	w.cancel()

	for _, sub := range w.subscriptions {
		if err := sub.Unsubscribe(); err != nil {
			slog.Error("failed to unsubscribe",
				"topic", sub.Topic(),
				"error", err,
			)
		}
	}
	w.subscriptions = nil

	w.wg.Wait()

	slog.Info("worker stopped")
	return nil
}

// Stats returns worker statistics.
type Stats struct {
	SubscriptionCount int      `json:"subscriptionCount"`
	Topics            []string `json:"topics"`
}

// GetStats returns current worker statistics.
func (w *Worker) GetStats() Stats {
	topics := make([]string, len(w.subscriptions))
	for i, sub := range w.subscriptions {
		topics[i] = sub.Topic()
	}
	return Stats{
		SubscriptionCount: len(w.subscriptions),
		Topics:            topics,
	}
}
