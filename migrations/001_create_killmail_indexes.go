package migrations

import (
	"context"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

func init() {
	Register(Migration{
		Version:     "001_create_killmail_indexes",
		Description: "Create indexes for killmails and enrichments collections",
		Up:          up001,
	})
}

func up001(ctx context.Context, db *mongo.Database) error {
	killmails := db.Collection("killmails")
	killmailIndexes := []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "killmail_id", Value: 1}},
			Options: options.Index().SetUnique(true),
		},
		// Clusterer sweep over unprocessed events
		{
			Keys: bson.D{{Key: "processed_at", Value: 1}, {Key: "killmail_time", Value: 1}},
		},
		// Feed order and stream cursor
		{
			Keys: bson.D{{Key: "killmail_time", Value: -1}, {Key: "killmail_id", Value: -1}},
		},
		// Per-system aggregates
		{
			Keys: bson.D{{Key: "solar_system_id", Value: 1}, {Key: "killmail_time", Value: 1}},
		},
	}
	if _, err := killmails.Indexes().CreateMany(ctx, killmailIndexes); err != nil && !isIndexExistsError(err) {
		return err
	}

	enrichments := db.Collection("enrichments")
	enrichmentIndexes := []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "killmail_id", Value: 1}},
			Options: options.Index().SetUnique(true),
		},
		// Retry and re-sweep scans
		{
			Keys: bson.D{{Key: "status", Value: 1}, {Key: "updated_at", Value: 1}},
		},
	}
	if _, err := enrichments.Indexes().CreateMany(ctx, enrichmentIndexes); err != nil && !isIndexExistsError(err) {
		return err
	}

	return nil
}
