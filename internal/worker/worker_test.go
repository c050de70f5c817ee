package worker

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/opensource-finance/tollwatch/internal/bus"
	"github.com/opensource-finance/tollwatch/internal/domain"
	"github.com/opensource-finance/tollwatch/internal/storage"
)

type call struct {
	name string
	data string
}

type fakeIngester struct {
	mu    sync.Mutex
	calls []call
	err   error
}

func (f *fakeIngester) Ingest(_ context.Context, name string, data []byte) (*domain.Batch, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, call{name, string(data)})
	if f.err != nil {
		return nil, f.err
	}
	return &domain.Batch{ID: "b-" + name}, nil
}

func waitStats(t *testing.T, w *Worker, done func(Stats) bool) Stats {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if s := w.GetStats(); done(s) {
			return s
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timeout, stats %+v", w.GetStats())
	return Stats{}
}

func TestWorker(t *testing.T) {
	eventBus := bus.NewChannelBus(100)
	defer eventBus.Close()

	store, err := storage.NewLocalStore(t.TempDir())
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}
	ctx := context.Background()
	store.Upload(ctx, "data/raw/transaction_2025_apr.csv", strings.NewReader("csv-body"), "text/csv")

	t.Run("StartAndStop", func(t *testing.T) {
		w := NewWorker(eventBus, store, &fakeIngester{})
		if err := w.Start(); err != nil {
			t.Fatalf("Start failed: %v", err)
		}

		stats := w.GetStats()
		if stats.SubscriptionCount != 1 || stats.Topics[0] != domain.TopicFileReceived {
			t.Errorf("unexpected stats %+v", stats)
		}

		if err := w.Stop(); err != nil {
			t.Errorf("Stop failed: %v", err)
		}
		if w.GetStats().SubscriptionCount != 0 {
			t.Error("expected 0 subscriptions after stop")
		}
	})

	t.Run("IngestsAnnouncedFile", func(t *testing.T) {
		ing := &fakeIngester{}
		w := NewWorker(eventBus, store, ing)
		w.Start()
		defer w.Stop()

		ev := domain.FileEvent{
			Object:       "data/raw/transaction_2025_apr.csv",
			OriginalName: "Transactions April 2025.csv",
			Period:       "2025_apr",
		}
		if err := bus.PublishJSON(ctx, eventBus, domain.TopicFileReceived, ev); err != nil {
			t.Fatalf("Publish failed: %v", err)
		}

		waitStats(t, w, func(s Stats) bool { return s.Processed == 1 })

		ing.mu.Lock()
		defer ing.mu.Unlock()
		if len(ing.calls) != 1 {
			t.Fatalf("expected 1 ingest call, got %d", len(ing.calls))
		}
		if ing.calls[0].name != "Transactions April 2025.csv" || ing.calls[0].data != "csv-body" {
			t.Errorf("unexpected call %+v", ing.calls[0])
		}
	})

	t.Run("FallsBackToObjectName", func(t *testing.T) {
		ing := &fakeIngester{}
		w := NewWorker(eventBus, store, ing)
		w.Start()
		defer w.Stop()

		bus.PublishJSON(ctx, eventBus, domain.TopicFileReceived, domain.FileEvent{Object: "data/raw/transaction_2025_apr.csv"})
		waitStats(t, w, func(s Stats) bool { return s.Processed == 1 })

		ing.mu.Lock()
		defer ing.mu.Unlock()
		if ing.calls[0].name != "transaction_2025_apr.csv" {
			t.Errorf("expected object base name, got %q", ing.calls[0].name)
		}
	})

	t.Run("FailuresAreCounted", func(t *testing.T) {
		ing := &fakeIngester{err: errors.New("rejected")}
		w := NewWorker(eventBus, store, ing)
		w.Start()
		defer w.Stop()

		bus.PublishJSON(ctx, eventBus, domain.TopicFileReceived, domain.FileEvent{Object: "data/raw/missing.csv"})
		bus.PublishJSON(ctx, eventBus, domain.TopicFileReceived, domain.FileEvent{Object: "data/raw/transaction_2025_apr.csv"})
		eventBus.Publish(ctx, domain.TopicFileReceived, []byte("not json"))

		stats := waitStats(t, w, func(s Stats) bool { return s.Failed == 3 })
		if stats.Processed != 0 {
			t.Errorf("expected no successes, got %+v", stats)
		}
		if len(ing.calls) != 1 {
			t.Errorf("missing object should not reach the ingester, got %d calls", len(ing.calls))
		}
	})
}
