package services

import (
	"context"
	"errors"
	"time"

	"go-battlewatch/internal/killmails/models"
	"go-battlewatch/pkg/database"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// Cursor is a feed position on the (killmail_time, killmail_id) order.
type Cursor struct {
	KillmailTime time.Time
	KillmailID   int64
}

// FeedFilter carries the query-level class filters applied at the store.
type FeedFilter struct {
	SpaceClass    string
	SecurityClass string
}

// Repository handles killmail and enrichment persistence.
type Repository struct {
	killmails   *mongo.Collection
	enrichments *mongo.Collection
}

// NewRepository creates a new killmails repository.
func NewRepository(mongodb *database.MongoDB) *Repository {
	return &Repository{
		killmails:   mongodb.Database.Collection(models.KillmailsCollection),
		enrichments: mongodb.Database.Collection(models.EnrichmentsCollection),
	}
}

// InsertKillmail inserts a killmail, ignoring duplicates on killmail_id.
// Returns true when this call stored the event, false on duplicate.
func (r *Repository) InsertKillmail(ctx context.Context, km *models.Killmail) (bool, error) {
	_, err := r.killmails.InsertOne(ctx, km)
	if mongo.IsDuplicateKeyError(err) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// GetKillmail returns one killmail by ID, or nil when absent.
func (r *Repository) GetKillmail(ctx context.Context, killmailID int64) (*models.Killmail, error) {
	var km models.Killmail
	err := r.killmails.FindOne(ctx, bson.M{"killmail_id": killmailID}).Decode(&km)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &km, nil
}

func feedQuery(filter FeedFilter) bson.M {
	query := bson.M{}
	if filter.SpaceClass != "" {
		query["space_class"] = filter.SpaceClass
	}
	if filter.SecurityClass != "" {
		query["security_class"] = filter.SecurityClass
	}
	return query
}

// Recent returns the newest killmails matching the filter, ordered
// (killmail_time, killmail_id) descending.
func (r *Repository) Recent(ctx context.Context, filter FeedFilter, limit int) ([]models.Killmail, error) {
	opts := options.Find().
		SetSort(bson.D{{Key: "killmail_time", Value: -1}, {Key: "killmail_id", Value: -1}}).
		SetLimit(int64(limit))

	cursor, err := r.killmails.Find(ctx, feedQuery(filter), opts)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	var results []models.Killmail
	if err := cursor.All(ctx, &results); err != nil {
		return nil, err
	}
	return results, nil
}

// After returns killmails strictly newer than the cursor in lexicographic
// (killmail_time, killmail_id) order, ascending, so stream consumers observe
// them in feed order.
func (r *Repository) After(ctx context.Context, after Cursor, filter FeedFilter, limit int) ([]models.Killmail, error) {
	query := feedQuery(filter)
	query["$or"] = bson.A{
		bson.M{"killmail_time": bson.M{"$gt": after.KillmailTime}},
		bson.M{
			"killmail_time": after.KillmailTime,
			"killmail_id":   bson.M{"$gt": after.KillmailID},
		},
	}

	opts := options.Find().
		SetSort(bson.D{{Key: "killmail_time", Value: 1}, {Key: "killmail_id", Value: 1}}).
		SetLimit(int64(limit))

	cursor, err := r.killmails.Find(ctx, query, opts)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	var results []models.Killmail
	if err := cursor.All(ctx, &results); err != nil {
		return nil, err
	}
	return results, nil
}

// CreatePendingEnrichment creates the enrichment stub for a stored killmail.
// Idempotent: an existing row, whatever its state, is left untouched.
func (r *Repository) CreatePendingEnrichment(ctx context.Context, killmailID int64, fetchedAt time.Time) error {
	_, err := r.enrichments.UpdateOne(ctx,
		bson.M{"killmail_id": killmailID},
		bson.M{"$setOnInsert": models.Enrichment{
			KillmailID: killmailID,
			Status:     models.EnrichmentPending,
			FetchedAt:  fetchedAt,
			UpdatedAt:  fetchedAt,
		}},
		options.Update().SetUpsert(true))
	return err
}

// GetEnrichment returns the enrichment row for a killmail, or nil when absent.
func (r *Repository) GetEnrichment(ctx context.Context, killmailID int64) (*models.Enrichment, error) {
	var enrichment models.Enrichment
	err := r.enrichments.FindOne(ctx, bson.M{"killmail_id": killmailID}).Decode(&enrichment)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &enrichment, nil
}

// TransitionEnrichment advances the enrichment state machine. Terminal rows
// are never regressed; the guard is part of the update filter so concurrent
// deliveries of the same work item stay idempotent.
func (r *Repository) TransitionEnrichment(ctx context.Context, killmailID int64, status string, payload bson.M, errMsg *string) error {
	update := bson.M{
		"$set": bson.M{
			"status":     status,
			"error":      errMsg,
			"updated_at": time.Now().UTC(),
		},
		"$inc": bson.M{"attempts": 1},
	}
	if payload != nil {
		update["$set"].(bson.M)["payload"] = payload
	}

	_, err := r.enrichments.UpdateOne(ctx,
		bson.M{
			"killmail_id": killmailID,
			"status":      bson.M{"$nin": bson.A{models.EnrichmentSucceeded, models.EnrichmentFailedPermanent}},
		},
		update)
	return err
}

// StalePendingIDs returns killmail IDs whose enrichment has sat pending since
// before the cutoff. Used by the re-sweep to recover lost work items.
func (r *Repository) StalePendingIDs(ctx context.Context, cutoff time.Time, limit int) ([]int64, error) {
	opts := options.Find().
		SetSort(bson.D{{Key: "updated_at", Value: 1}}).
		SetLimit(int64(limit)).
		SetProjection(bson.M{"killmail_id": 1})

	cursor, err := r.enrichments.Find(ctx, bson.M{
		"status":     models.EnrichmentPending,
		"fetched_at": bson.M{"$lt": cutoff},
	}, opts)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	var rows []models.Enrichment
	if err := cursor.All(ctx, &rows); err != nil {
		return nil, err
	}

	ids := make([]int64, 0, len(rows))
	for _, row := range rows {
		ids = append(ids, row.KillmailID)
	}
	return ids, nil
}

// TransientFailures returns failed_transient enrichments oldest-first so the
// retry sweep can re-queue those whose backoff has elapsed.
func (r *Repository) TransientFailures(ctx context.Context, limit int) ([]models.Enrichment, error) {
	opts := options.Find().
		SetSort(bson.D{{Key: "updated_at", Value: 1}}).
		SetLimit(int64(limit))

	cursor, err := r.enrichments.Find(ctx, bson.M{"status": models.EnrichmentFailedTransient}, opts)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	var rows []models.Enrichment
	if err := cursor.All(ctx, &rows); err != nil {
		return nil, err
	}
	return rows, nil
}

// ResetEnrichmentToPending moves a failed_transient row back to pending for
// another fetch attempt. Attempts are preserved to keep the backoff schedule.
func (r *Repository) ResetEnrichmentToPending(ctx context.Context, killmailID int64) error {
	_, err := r.enrichments.UpdateOne(ctx,
		bson.M{
			"killmail_id": killmailID,
			"status":      models.EnrichmentFailedTransient,
		},
		bson.M{"$set": bson.M{
			"status":     models.EnrichmentPending,
			"updated_at": time.Now().UTC(),
		}})
	return err
}
