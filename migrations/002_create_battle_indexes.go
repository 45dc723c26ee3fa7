package migrations

import (
	"context"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

func init() {
	Register(Migration{
		Version:     "002_create_battle_indexes",
		Description: "Create indexes for battles, battle_events and battle_participants collections",
		Up:          up002,
	})
}

func up002(ctx context.Context, db *mongo.Database) error {
	battles := db.Collection("battles")
	battleIndexes := []mongo.IndexModel{
		{
			Keys: bson.D{{Key: "solar_system_id", Value: 1}, {Key: "start_time", Value: 1}, {Key: "end_time", Value: 1}},
		},
		{
			Keys: bson.D{{Key: "start_time", Value: -1}},
		},
	}
	if _, err := battles.Indexes().CreateMany(ctx, battleIndexes); err != nil && !isIndexExistsError(err) {
		return err
	}

	battleEvents := db.Collection("battle_events")
	eventIndexes := []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "battle_id", Value: 1}, {Key: "killmail_id", Value: 1}},
			Options: options.Index().SetUnique(true),
		},
	}
	if _, err := battleEvents.Indexes().CreateMany(ctx, eventIndexes); err != nil && !isIndexExistsError(err) {
		return err
	}

	participants := db.Collection("battle_participants")
	participantIndexes := []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "battle_id", Value: 1}, {Key: "character_id", Value: 1}},
			Options: options.Index().SetUnique(true),
		},
	}
	if _, err := participants.Indexes().CreateMany(ctx, participantIndexes); err != nil && !isIndexExistsError(err) {
		return err
	}

	return nil
}
