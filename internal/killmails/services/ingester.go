package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"go-battlewatch/internal/killmails/dto"
	"go-battlewatch/internal/killmails/models"
	rulesetModels "go-battlewatch/internal/ruleset/models"
	"go-battlewatch/pkg/config"
	"go-battlewatch/pkg/evegateway"
)

// IngestState is the lifecycle state of the ingester.
type IngestState int32

const (
	IngestStopped IngestState = iota
	IngestStarting
	IngestRunning
	IngestDraining
)

func (s IngestState) String() string {
	switch s {
	case IngestStopped:
		return "stopped"
	case IngestStarting:
		return "starting"
	case IngestRunning:
		return "running"
	case IngestDraining:
		return "draining"
	default:
		return "unknown"
	}
}

// RulesetProvider supplies the active ruleset for pre-ingest filtering.
type RulesetProvider interface {
	GetActive(ctx context.Context) (*rulesetModels.Ruleset, error)
}

// IngestStore is the persistence surface the ingester writes through.
type IngestStore interface {
	InsertKillmail(ctx context.Context, km *models.Killmail) (bool, error)
	CreatePendingEnrichment(ctx context.Context, killmailID int64, fetchedAt time.Time) error
	StalePendingIDs(ctx context.Context, cutoff time.Time, limit int) ([]int64, error)
}

// IngestMetrics are the ingester's atomic counters.
type IngestMetrics struct {
	TotalPolls     atomic.Int64
	NullResponses  atomic.Int64
	Stored         atomic.Int64
	Duplicates     atomic.Int64
	Rejected       atomic.Int64
	Malformed      atomic.Int64
	HTTPErrors     atomic.Int64
	StoreErrors    atomic.Int64
	LastKillmailID atomic.Int64
}

// Ingester drives the killmail source: pull, pre-filter against the ruleset,
// insert-ignore, create the enrichment stub, emit a work item. One ingester
// per upstream queue identity.
type Ingester struct {
	source     KillmailSource
	repository IngestStore
	rulesets   RulesetProvider
	workCh     chan int64

	ruleset atomic.Pointer[rulesetModels.Ruleset]

	mu        sync.Mutex
	state     atomic.Int32
	running   atomic.Bool
	lastPoll  time.Time
	startTime time.Time
	cancel    context.CancelFunc
	wg        sync.WaitGroup

	metrics IngestMetrics
}

// NewIngester creates the ingester. The work channel is buffered; emission is
// best-effort and losses are recovered by the pending re-sweep.
func NewIngester(source KillmailSource, repository IngestStore, rulesets RulesetProvider) *Ingester {
	return &Ingester{
		source:     source,
		repository: repository,
		rulesets:   rulesets,
		workCh:     make(chan int64, config.GetIntEnv("INGEST_WORK_BUFFER", 256)),
	}
}

// WorkItems is the channel of killmail IDs awaiting enrichment.
func (i *Ingester) WorkItems() <-chan int64 {
	return i.workCh
}

// ReloadRuleset re-reads the active ruleset. Called at start and on every
// invalidation message.
func (i *Ingester) ReloadRuleset(ctx context.Context) {
	ruleset, err := i.rulesets.GetActive(ctx)
	if err != nil {
		slog.Error("Failed to reload ruleset for ingestion", "error", err)
		return
	}
	i.ruleset.Store(ruleset)
}

// Start begins the pull loop.
func (i *Ingester) Start(ctx context.Context) error {
	i.mu.Lock()
	defer i.mu.Unlock()

	if i.running.Load() {
		return fmt.Errorf("ingester already running")
	}

	i.state.Store(int32(IngestStarting))

	loopCtx, cancel := context.WithCancel(ctx)
	i.cancel = cancel
	i.startTime = time.Now()

	i.ReloadRuleset(loopCtx)

	i.wg.Add(1)
	go i.pullLoop(loopCtx)

	i.running.Store(true)
	i.state.Store(int32(IngestRunning))
	slog.Info("Killmail ingester started")
	return nil
}

// Stop drains the pull loop and waits for it with a bounded deadline.
func (i *Ingester) Stop() error {
	i.mu.Lock()
	defer i.mu.Unlock()

	if !i.running.Load() {
		return fmt.Errorf("ingester not running")
	}

	i.state.Store(int32(IngestDraining))
	if i.cancel != nil {
		i.cancel()
	}

	done := make(chan struct{})
	go func() {
		i.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		slog.Info("Killmail ingester stopped")
	case <-time.After(30 * time.Second):
		slog.Warn("Killmail ingester stop timeout")
	}

	i.running.Store(false)
	i.state.Store(int32(IngestStopped))
	return nil
}

// Running reports whether the pull loop is active.
func (i *Ingester) Running() bool {
	return i.running.Load()
}

func (i *Ingester) pullLoop(ctx context.Context) {
	defer i.wg.Done()

	for {
		select {
		case <-ctx.Done():
			return
		default:
			i.pollOnce(ctx)
		}
	}
}

// pollOnce performs one pull and processes its outcome.
func (i *Ingester) pollOnce(ctx context.Context) {
	i.metrics.TotalPolls.Add(1)
	i.mu.Lock()
	i.lastPoll = time.Now()
	i.mu.Unlock()

	km, err := i.source.Pull(ctx)
	if err != nil {
		i.recordPullError(ctx, err)
		return
	}
	if km == nil {
		i.metrics.NullResponses.Add(1)
		return
	}

	i.Ingest(ctx, km)
}

// IngestOutcome is the observable result of one ingest attempt.
type IngestOutcome string

const (
	OutcomeStored    IngestOutcome = "stored"
	OutcomeDuplicate IngestOutcome = "duplicate"
	OutcomeRejected  IngestOutcome = "rejected"
	OutcomeFailed    IngestOutcome = "failed"
)

// Ingest applies the pre-ingest filter and persists one killmail. Exposed so
// tests and the re-sweep can drive the pipeline without the pull loop.
//
// The event was destructively popped from the upstream queue, so a store
// failure must not lose it: the insert is retried with exponential backoff
// until it lands or the context is cancelled. OutcomeFailed only occurs on
// cancellation.
func (i *Ingester) Ingest(ctx context.Context, km *models.Killmail) IngestOutcome {
	if ruleset := i.ruleset.Load(); ruleset != nil {
		if !MatchesRuleset(km, ruleset, false) {
			i.metrics.Rejected.Add(1)
			return OutcomeRejected
		}
	}

	stored, err := i.repository.InsertKillmail(ctx, km)
	for attempt := 0; err != nil; attempt++ {
		i.metrics.StoreErrors.Add(1)
		slog.Error("Failed to store killmail, retrying",
			"killmail_id", km.KillmailID,
			"attempt", attempt+1,
			"error", err)
		select {
		case <-ctx.Done():
			return OutcomeFailed
		case <-time.After(storeRetryBackoff(attempt)):
		}
		stored, err = i.repository.InsertKillmail(ctx, km)
	}
	if !stored {
		i.metrics.Duplicates.Add(1)
		return OutcomeDuplicate
	}

	i.metrics.Stored.Add(1)
	i.metrics.LastKillmailID.Store(km.KillmailID)

	if err := i.repository.CreatePendingEnrichment(ctx, km.KillmailID, km.FetchedAt); err != nil {
		slog.Error("Failed to create enrichment stub", "killmail_id", km.KillmailID, "error", err)
		i.metrics.StoreErrors.Add(1)
	}

	i.emit(km.KillmailID)

	slog.Info("Killmail stored",
		"killmail_id", km.KillmailID,
		"system_id", km.SolarSystemID,
		"isk_value", km.ISKValue)
	return OutcomeStored
}

// storeRetryBackoff doubles from one second per consecutive failed insert,
// capped at thirty seconds.
func storeRetryBackoff(attempt int) time.Duration {
	backoff := time.Second << attempt
	if backoff > 30*time.Second || backoff <= 0 {
		return 30 * time.Second
	}
	return backoff
}

// Requeue re-emits a work item, used by the retry and re-sweep paths.
func (i *Ingester) Requeue(killmailID int64) {
	i.emit(killmailID)
}

// emit hands a work item to the enrichment worker. Best-effort: a full buffer
// drops the item and the pending re-sweep recovers it later.
func (i *Ingester) emit(killmailID int64) {
	select {
	case i.workCh <- killmailID:
	default:
		slog.Warn("Enrichment work buffer full, dropping work item", "killmail_id", killmailID)
	}
}

func (i *Ingester) recordPullError(ctx context.Context, err error) {
	if errors.Is(err, context.Canceled) || ctx.Err() != nil {
		return
	}

	var decodeErr *DecodeError
	switch {
	case errors.Is(err, ErrMissingPayload), errors.Is(err, ErrInvalidTimestamp), errors.As(err, &decodeErr):
		i.metrics.Malformed.Add(1)
		slog.Warn("Dropping malformed killmail package", "error", err)
	default:
		i.metrics.HTTPErrors.Add(1)
		slog.Error("Killmail pull failed", "error", err)
		i.backoff(ctx, err)
	}
}

// backoff sleeps after an upstream failure, longer when throttled.
func (i *Ingester) backoff(ctx context.Context, err error) {
	delay := 5 * time.Second
	var httpErr *evegateway.HTTPError
	if errors.As(err, &httpErr) && httpErr.StatusCode == 429 {
		delay = 30 * time.Second
	}
	select {
	case <-ctx.Done():
	case <-time.After(delay):
	}
}

// ResweepPending re-emits work items for enrichments stuck pending longer
// than the cutoff window. Run periodically by the module's cron.
func (i *Ingester) ResweepPending(ctx context.Context) {
	cutoff := time.Now().UTC().Add(-config.GetDurationEnv("INGEST_RESWEEP_AGE", 10*time.Minute))
	ids, err := i.repository.StalePendingIDs(ctx, cutoff, cap(i.workCh))
	if err != nil {
		slog.Error("Pending enrichment re-sweep failed", "error", err)
		return
	}
	for _, id := range ids {
		i.emit(id)
	}
	if len(ids) > 0 {
		slog.Info("Re-queued stale pending enrichments", "count", len(ids))
	}
}

// Status snapshots the ingester state for the control surface.
func (i *Ingester) Status(queueID string, currentTTW, nullStreak, errorBudget int) dto.IngestStatusResponse {
	i.mu.Lock()
	lastPoll := i.lastPoll
	startTime := i.startTime
	i.mu.Unlock()

	var lastPollPtr *time.Time
	if !lastPoll.IsZero() {
		lastPollPtr = &lastPoll
	}

	var uptime time.Duration
	if i.running.Load() && !startTime.IsZero() {
		uptime = time.Since(startTime)
	}

	state := IngestState(i.state.Load())
	return dto.IngestStatusResponse{
		Status:      state.String(),
		QueueID:     queueID,
		LastPoll:    lastPollPtr,
		Uptime:      uptime,
		ErrorBudget: errorBudget,
		Metrics: dto.IngestMetrics{
			TotalPolls:     i.metrics.TotalPolls.Load(),
			NullResponses:  i.metrics.NullResponses.Load(),
			Stored:         i.metrics.Stored.Load(),
			Duplicates:     i.metrics.Duplicates.Load(),
			Rejected:       i.metrics.Rejected.Load(),
			Malformed:      i.metrics.Malformed.Load(),
			HTTPErrors:     i.metrics.HTTPErrors.Load(),
			StoreErrors:    i.metrics.StoreErrors.Load(),
			LastKillmailID: i.metrics.LastKillmailID.Load(),
			CurrentTTW:     currentTTW,
			NullStreak:     nullStreak,
		},
		Message: fmt.Sprintf("Ingester %s, %d killmails stored", state, i.metrics.Stored.Load()),
	}
}
