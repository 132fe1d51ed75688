package main

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"sessionhub/internal/observability/metrics"
)

type storePinger interface {
	Ping(ctx context.Context) error
}

type probeTicker interface {
	C() <-chan time.Time
	Stop()
}

type timeTicker struct {
	ticker *time.Ticker
}

func (t timeTicker) C() <-chan time.Time {
	return t.ticker.C
}

func (t timeTicker) Stop() {
	t.ticker.Stop()
}

type tickerFactory func(time.Duration) probeTicker

const storeProbeTimeout = 5 * time.Second

// startStoreHealthWorker probes the datastore on a fixed interval and
// publishes the result on the metrics recorder. The returned function stops
// the worker and blocks until it has exited.
func startStoreHealthWorker(
	ctx context.Context,
	logger *slog.Logger,
	recorder *metrics.Recorder,
	store storePinger,
	interval time.Duration,
) func() {
	return startStoreHealthWorkerWithTicker(ctx, logger, recorder, store, interval, func(d time.Duration) probeTicker {
		return timeTicker{ticker: time.NewTicker(d)}
	})
}

func startStoreHealthWorkerWithTicker(
	ctx context.Context,
	logger *slog.Logger,
	recorder *metrics.Recorder,
	store storePinger,
	interval time.Duration,
	newTicker tickerFactory,
) func() {
	if store == nil || recorder == nil || interval <= 0 {
		return func() {}
	}
	workerCtx, cancel := context.WithCancel(ctx)
	ticker := newTicker(interval)
	done := make(chan struct{})
	go func() {
		defer func() {
			ticker.Stop()
			close(done)
		}()
		for {
			select {
			case <-workerCtx.Done():
				return
			case <-ticker.C():
				probeStore(workerCtx, logger, recorder, store)
			}
		}
	}()

	var once sync.Once
	return func() {
		once.Do(func() {
			cancel()
			<-done
		})
	}
}

func probeStore(ctx context.Context, logger *slog.Logger, recorder *metrics.Recorder, store storePinger) {
	probeCtx, cancel := context.WithTimeout(ctx, storeProbeTimeout)
	defer cancel()
	if err := store.Ping(probeCtx); err != nil {
		recorder.SetStoreHealth("unavailable")
		if logger != nil {
			logger.Error("datastore health probe failed", "error", err)
		}
		return
	}
	recorder.SetStoreHealth("ok")
}
