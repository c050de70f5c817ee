// Package worker ingests files announced on the event bus.
package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"path"
	"sync"
	"time"

	"github.com/opensource-finance/tollwatch/internal/domain"
)

// Ingester is the part of the ingestion service the worker drives.
type Ingester interface {
	Ingest(ctx context.Context, name string, data []byte) (*domain.Batch, error)
}

// Worker downloads each received file and ingests it as the new current batch.
// Files are handled one at a time so batches replace each other in arrival order.
type Worker struct {
	bus      domain.EventBus
	store    domain.ObjectStore
	ingester Ingester

	mu            sync.Mutex
	subscriptions []domain.Subscription
	processed     int
	failed        int
	ctx           context.Context
	cancel        context.CancelFunc
}

// NewWorker creates a new file worker.
func NewWorker(bus domain.EventBus, store domain.ObjectStore, ingester Ingester) *Worker {
	ctx, cancel := context.WithCancel(context.Background())
	return &Worker{
		bus:      bus,
		store:    store,
		ingester: ingester,
		ctx:      ctx,
		cancel:   cancel,
	}
}

// Start subscribes to file events.
func (w *Worker) Start() error {
	sub, err := w.bus.Subscribe(w.ctx, domain.TopicFileReceived, w.handleMessage)
	if err != nil {
		return fmt.Errorf("subscribe to %s: %w", domain.TopicFileReceived, err)
	}

	w.mu.Lock()
	w.subscriptions = append(w.subscriptions, sub)
	w.mu.Unlock()

	slog.Info("file worker started", "topic", domain.TopicFileReceived)
	return nil
}

func (w *Worker) handleMessage(ctx context.Context, msg *domain.Message) error {
	err := w.processFile(ctx, msg)

	w.mu.Lock()
	if err != nil {
		w.failed++
	} else {
		w.processed++
	}
	w.mu.Unlock()

	return err
}

func (w *Worker) processFile(ctx context.Context, msg *domain.Message) error {
	start := time.Now()

	var ev domain.FileEvent
	if err := json.Unmarshal(msg.Payload, &ev); err != nil {
		slog.Error("failed to parse file event",
			"message_id", msg.ID,
			"error", err,
		)
		return err
	}

	data, err := w.store.Download(ctx, ev.Object)
	if err != nil {
		return fmt.Errorf("download %s: %w", ev.Object, err)
	}

	// The original name carries the period; the stored name is canonical.
	name := ev.OriginalName
	if name == "" {
		name = path.Base(ev.Object)
	}

	batch, err := w.ingester.Ingest(ctx, name, data)
	if err != nil {
		return fmt.Errorf("ingest %s: %w", ev.Object, err)
	}

	slog.Info("file processed",
		"object", ev.Object,
		"batch_id", batch.ID,
		"rows", batch.Summary.TotalTransactions,
		"duration_ms", time.Since(start).Milliseconds(),
	)
	return nil
}

// Stop unsubscribes and cancels in-flight handlers.
func (w *Worker) Stop() error {
	w.cancel()

	w.mu.Lock()
	defer w.mu.Unlock()

	for _, sub := range w.subscriptions {
		if err := sub.Unsubscribe(); err != nil {
			slog.Error("failed to unsubscribe",
				"topic", sub.Topic(),
				"error", err,
			)
		}
	}
	w.subscriptions = nil

	slog.Info("file worker stopped")
	return nil
}

// Stats summarizes worker activity.
type Stats struct {
	SubscriptionCount int      `json:"subscriptionCount"`
	Topics            []string `json:"topics"`
	Processed         int      `json:"processed"`
	Failed            int      `json:"failed"`
}

// GetStats returns current worker statistics.
func (w *Worker) GetStats() Stats {
	w.mu.Lock()
	defer w.mu.Unlock()

	topics := make([]string, len(w.subscriptions))
	for i, sub := range w.subscriptions {
		topics[i] = sub.Topic()
	}
	return Stats{
		SubscriptionCount: len(w.subscriptions),
		Topics:            topics,
		Processed:         w.processed,
		Failed:            w.failed,
	}
}
