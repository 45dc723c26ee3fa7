package services

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"go-battlewatch/internal/killmails/models"
	"go-battlewatch/pkg/config"
	"go-battlewatch/pkg/evegateway"

	"go.mongodb.org/mongo-driver/bson"
)

// maxRetryBackoff caps the transient-failure backoff schedule.
const maxRetryBackoff = time.Hour

// Enricher consumes work items and drives the enrichment state machine:
// pending to succeeded on a clean fetch, failed_permanent on 404 or an auth
// rejection, failed_transient on anything retryable. Re-delivery of a
// finished item is a no-op.
type Enricher struct {
	repository *Repository
	fetcher    evegateway.KillmailFetcher
	workers    int

	wg sync.WaitGroup
}

// NewEnricher creates the enrichment worker pool.
func NewEnricher(repository *Repository, fetcher evegateway.KillmailFetcher) *Enricher {
	return &Enricher{
		repository: repository,
		fetcher:    fetcher,
		workers:    config.GetIntEnv("ENRICH_WORKERS", 4),
	}
}

// Start launches the worker pool over the work channel. Workers exit when the
// channel closes or the context is cancelled.
func (e *Enricher) Start(ctx context.Context, work <-chan int64) {
	for n := 0; n < e.workers; n++ {
		e.wg.Add(1)
		go func() {
			defer e.wg.Done()
			for {
				select {
				case <-ctx.Done():
					return
				case killmailID, ok := <-work:
					if !ok {
						return
					}
					e.Process(ctx, killmailID)
				}
			}
		}()
	}
	slog.Info("Enrichment workers started", "workers", e.workers)
}

// Wait blocks until all workers have exited.
func (e *Enricher) Wait() {
	e.wg.Wait()
}

// Process runs one enrichment attempt for a killmail. Idempotent: terminal
// rows and unknown IDs are skipped without an upstream call.
func (e *Enricher) Process(ctx context.Context, killmailID int64) {
	enrichment, err := e.repository.GetEnrichment(ctx, killmailID)
	if err != nil {
		slog.Error("Failed to load enrichment", "killmail_id", killmailID, "error", err)
		return
	}
	if enrichment == nil || enrichment.Terminal() {
		return
	}

	km, err := e.repository.GetKillmail(ctx, killmailID)
	if err != nil || km == nil {
		slog.Error("Enrichment references missing killmail", "killmail_id", killmailID, "error", err)
		return
	}

	payload, err := e.fetcher.GetKillmail(ctx, km.KillmailID, km.KillmailHash)
	if err != nil {
		e.recordFailure(ctx, killmailID, err)
		return
	}

	doc, err := toPayloadDoc(payload)
	if err != nil {
		e.recordFailure(ctx, killmailID, err)
		return
	}

	if err := e.repository.TransitionEnrichment(ctx, killmailID, models.EnrichmentSucceeded, doc, nil); err != nil {
		slog.Error("Failed to record enrichment success", "killmail_id", killmailID, "error", err)
		return
	}
	slog.Debug("Killmail enriched", "killmail_id", killmailID)
}

func (e *Enricher) recordFailure(ctx context.Context, killmailID int64, cause error) {
	if errors.Is(cause, context.Canceled) {
		return
	}

	status := failureStatus(cause)
	msg := cause.Error()
	if err := e.repository.TransitionEnrichment(ctx, killmailID, status, nil, &msg); err != nil {
		slog.Error("Failed to record enrichment failure", "killmail_id", killmailID, "error", err)
		return
	}
	slog.Warn("Killmail enrichment failed", "killmail_id", killmailID, "status", status, "error", msg)
}

// failureStatus maps a fetch failure to the enrichment status it lands in.
// 404 means the killmail will never exist upstream. 401/403 fail fast too:
// the lookups are unauthenticated, so an auth rejection is not something a
// retry can fix.
func failureStatus(cause error) string {
	if errors.Is(cause, evegateway.ErrNotFound) || errors.Is(cause, evegateway.ErrUnauthorized) {
		return models.EnrichmentFailedPermanent
	}
	return models.EnrichmentFailedTransient
}

// RetrySweep re-queues failed_transient enrichments whose backoff has
// elapsed. The backoff doubles per attempt from one minute, capped at an
// hour. Run periodically by the module's cron.
func (e *Enricher) RetrySweep(ctx context.Context, requeue func(int64)) {
	rows, err := e.repository.TransientFailures(ctx, 256)
	if err != nil {
		slog.Error("Enrichment retry sweep failed", "error", err)
		return
	}

	now := time.Now().UTC()
	requeued := 0
	for _, row := range rows {
		if now.Sub(row.UpdatedAt) < retryBackoff(row.Attempts) {
			continue
		}
		if err := e.repository.ResetEnrichmentToPending(ctx, row.KillmailID); err != nil {
			slog.Error("Failed to reset enrichment for retry", "killmail_id", row.KillmailID, "error", err)
			continue
		}
		requeue(row.KillmailID)
		requeued++
	}

	if requeued > 0 {
		slog.Info("Re-queued transient enrichment failures", "count", requeued)
	}
}

func retryBackoff(attempts int) time.Duration {
	if attempts < 1 {
		attempts = 1
	}
	backoff := time.Minute << (attempts - 1)
	if backoff > maxRetryBackoff || backoff <= 0 {
		return maxRetryBackoff
	}
	return backoff
}

func toPayloadDoc(payload *evegateway.Killmail) (bson.M, error) {
	data, err := bson.Marshal(payload)
	if err != nil {
		return nil, err
	}
	var doc bson.M
	if err := bson.Unmarshal(data, &doc); err != nil {
		return nil, err
	}
	return doc, nil
}
