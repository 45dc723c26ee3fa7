package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"go-battlewatch/internal/ruleset/dto"
	"go-battlewatch/internal/ruleset/models"
	"go-battlewatch/pkg/database"

	"github.com/go-playground/validator/v10"
	"go.mongodb.org/mongo-driver/mongo"
)

// InvalidateChannel is the pub/sub channel carrying ruleset invalidations.
// The payload is the new updated_at as an RFC3339Nano instant; subscribers
// treat it as opaque and re-read the ruleset before their next tick.
const InvalidateChannel = "ruleset:invalidate"

var validSecurityClasses = map[string]bool{
	"highsec":  true,
	"lowsec":   true,
	"nullsec":  true,
	"wormhole": true,
	"pochven":  true,
}

// Service owns the singleton ruleset: reads, patched updates and the
// post-commit invalidation broadcast.
type Service struct {
	repository *Repository
	redis      *database.Redis
	validate   *validator.Validate
}

// NewService creates a new ruleset service.
func NewService(mongodb *database.MongoDB, redis *database.Redis) *Service {
	return &Service{
		repository: NewRepository(mongodb),
		redis:      redis,
		validate:   validator.New(),
	}
}

// GetActive returns the current ruleset, seeding the default if the singleton
// has not been created yet.
func (s *Service) GetActive(ctx context.Context) (*models.Ruleset, error) {
	ruleset, err := s.repository.Get(ctx)
	if errors.Is(err, mongo.ErrNoDocuments) {
		ruleset = models.Default()
		if err := s.repository.Upsert(ctx, ruleset); err != nil {
			return nil, fmt.Errorf("failed to seed default ruleset: %w", err)
		}
		return ruleset, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load ruleset: %w", err)
	}
	return ruleset, nil
}

// UpdateActive applies a partial patch to the ruleset, persists it and then
// publishes one invalidation message. Nil patch fields leave the current value
// in place; list fields replace wholesale.
func (s *Service) UpdateActive(ctx context.Context, patch dto.RulesetPatch) (*models.Ruleset, error) {
	if err := s.validatePatch(patch); err != nil {
		return nil, err
	}

	current, err := s.GetActive(ctx)
	if err != nil {
		return nil, err
	}

	if patch.MinPilots != nil {
		current.MinPilots = *patch.MinPilots
	}
	if patch.TrackedAllianceIDs != nil {
		current.TrackedAllianceIDs = dedupIDs(*patch.TrackedAllianceIDs)
	}
	if patch.TrackedCorpIDs != nil {
		current.TrackedCorpIDs = dedupIDs(*patch.TrackedCorpIDs)
	}
	if patch.TrackedSystemIDs != nil {
		current.TrackedSystemIDs = dedupIDs(*patch.TrackedSystemIDs)
	}
	if patch.TrackedSecurityClasses != nil {
		current.TrackedSecurityClasses = *patch.TrackedSecurityClasses
	}
	if patch.IgnoreUnlisted != nil {
		current.IgnoreUnlisted = *patch.IgnoreUnlisted
	}
	current.UpdatedAt = time.Now().UTC()

	if err := s.repository.Upsert(ctx, current); err != nil {
		return nil, fmt.Errorf("failed to update ruleset: %w", err)
	}

	payload := current.UpdatedAt.Format(time.RFC3339Nano)
	if err := s.redis.Publish(ctx, InvalidateChannel, payload); err != nil {
		// Subscribers recover on their next reconnect or restart; the write
		// itself has committed.
		slog.Error("Failed to publish ruleset invalidation", "error", err)
	} else {
		slog.Info("Ruleset updated", "updated_at", payload)
	}

	return current, nil
}

func (s *Service) validatePatch(patch dto.RulesetPatch) error {
	if patch.MinPilots != nil {
		if err := s.validate.Var(*patch.MinPilots, "gte=1,lte=1000"); err != nil {
			return fmt.Errorf("min_pilots must be between 1 and 1000")
		}
	}
	if patch.TrackedSecurityClasses != nil {
		for _, class := range *patch.TrackedSecurityClasses {
			if !validSecurityClasses[class] {
				return fmt.Errorf("unknown security class %q", class)
			}
		}
	}
	return nil
}

func dedupIDs(ids []int64) []int64 {
	seen := make(map[int64]struct{}, len(ids))
	out := make([]int64, 0, len(ids))
	for _, id := range ids {
		if id <= 0 {
			continue
		}
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}

// Watch subscribes to the invalidation channel and invokes onInvalidate for
// each message. The subscription resubscribes after errors; the worst case for
// a consumer is one stale tick. Blocks until ctx is cancelled.
func (s *Service) Watch(ctx context.Context, onInvalidate func()) {
	for {
		if ctx.Err() != nil {
			return
		}

		pubsub := s.redis.Subscribe(ctx, InvalidateChannel)
		ch := pubsub.Channel()

	receive:
		for {
			select {
			case <-ctx.Done():
				pubsub.Close()
				return
			case msg, ok := <-ch:
				if !ok {
					break receive
				}
				slog.Debug("Ruleset invalidation received", "payload", msg.Payload)
				onInvalidate()
			}
		}

		pubsub.Close()
		slog.Warn("Ruleset invalidation subscription lost, resubscribing")

		select {
		case <-ctx.Done():
			return
		case <-time.After(time.Second):
		}
	}
}
