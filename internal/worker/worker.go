// Package worker drives persisted download intents in the background. It is
// what makes the reconciliation sagas survive restarts: interrupted intents
// are reset on start and redriven with bounded concurrency.
package worker

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/musicvault/musicvault/internal/constants"
	"github.com/musicvault/musicvault/internal/domain"
	"github.com/musicvault/musicvault/internal/logger"
	"github.com/musicvault/musicvault/internal/reconciler"
)

type Worker struct {
	Reconciler    *reconciler.Reconciler
	MaxConcurrent int
	PollInterval  time.Duration

	log      *logger.Logger
	wg       sync.WaitGroup
	ctx      context.Context
	cancel   context.CancelFunc
	mu       sync.Mutex
	inFlight map[string]bool
}

func New(rec *reconciler.Reconciler, maxConcurrent int, log *logger.Logger) *Worker {
	if maxConcurrent < 1 {
		maxConcurrent = constants.DefaultConcurrency
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Worker{
		Reconciler:    rec,
		MaxConcurrent: maxConcurrent,
		PollInterval:  constants.DefaultPollInterval,
		log:           log.WithComponent("worker"),
		ctx:           ctx,
		cancel:        cancel,
		inFlight:      make(map[string]bool),
	}
}

func (w *Worker) Start() {
	w.log.Info("starting worker", "max_concurrent", w.MaxConcurrent)

	if n, err := w.Reconciler.Intents().ResetStuck(); err != nil {
		w.log.Warn("failed to reset stuck intents", "error", err)
	} else if n > 0 {
		w.log.Info("reset stuck intents", "count", n)
	}

	w.wg.Add(1)
	go w.loop()
}

func (w *Worker) Stop() {
	w.log.Info("stopping worker")
	w.cancel()
	w.wg.Wait()
}

func (w *Worker) loop() {
	defer w.wg.Done()
	ticker := time.NewTicker(w.PollInterval)
	defer ticker.Stop()

	sem := make(chan struct{}, w.MaxConcurrent)

	for {
		select {
		case <-w.ctx.Done():
			return
		case <-ticker.C:
			intents, err := w.Reconciler.Intents().Active()
			if err != nil {
				w.log.Error("failed to list active intents", "error", err)
				continue
			}

			for _, intent := range intents {
				if !w.claim(intent.ID) {
					continue
				}

				select {
				case sem <- struct{}{}:
				case <-w.ctx.Done():
					w.release(intent.ID)
					return
				}

				w.wg.Add(1)
				go func(intent *domain.DownloadIntent) {
					defer w.wg.Done()
					defer func() { <-sem }()
					defer w.release(intent.ID)
					w.runIntent(intent)
				}(intent)
			}
		}
	}
}

func (w *Worker) runIntent(intent *domain.DownloadIntent) {
	defer func() {
		if r := recover(); r != nil {
			w.log.Error("panic while running intent", "intent_id", intent.ID, "panic", r)
			_ = w.Reconciler.Intents().SetStatus(intent.ID, domain.IntentFailed, fmt.Sprintf("panic: %v", r))
		}
	}()

	// Linear backoff between attempts so a flapping remote is not hammered.
	if intent.Attempts > 0 {
		wait := time.Duration(intent.Attempts) * constants.DefaultRetryBase
		select {
		case <-w.ctx.Done():
			return
		case <-time.After(wait):
		}
	}

	if err := w.Reconciler.Run(w.ctx, intent); err != nil {
		w.log.Warn("intent run failed", "intent_id", intent.ID, "asset", intent.AssetName, "error", err)
	}
}

func (w *Worker) claim(id string) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.inFlight[id] {
		return false
	}
	w.inFlight[id] = true
	return true
}

func (w *Worker) release(id string) {
	w.mu.Lock()
	delete(w.inFlight, id)
	w.mu.Unlock()
}
