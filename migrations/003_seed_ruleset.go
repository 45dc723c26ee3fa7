package migrations

import (
	"context"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

func init() {
	Register(Migration{
		Version:     "003_seed_ruleset",
		Description: "Seed the singleton tracking ruleset with permissive defaults",
		Up:          up003,
	})
}

func up003(ctx context.Context, db *mongo.Database) error {
	ruleset := db.Collection("ruleset")

	_, err := ruleset.UpdateOne(ctx,
		bson.M{"_id": "tracking_ruleset"},
		bson.M{"$setOnInsert": bson.M{
			"min_pilots":               1,
			"tracked_alliance_ids":     bson.A{},
			"tracked_corp_ids":         bson.A{},
			"tracked_system_ids":       bson.A{},
			"tracked_security_classes": bson.A{},
			"ignore_unlisted":          false,
			"updated_at":               time.Now().UTC(),
		}},
		options.Update().SetUpsert(true))
	return err
}
