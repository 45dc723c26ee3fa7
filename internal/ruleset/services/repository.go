package services

import (
	"context"

	"go-battlewatch/internal/ruleset/models"
	"go-battlewatch/pkg/database"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// Repository handles ruleset persistence.
type Repository struct {
	collection *mongo.Collection
}

// NewRepository creates a new ruleset repository.
func NewRepository(mongodb *database.MongoDB) *Repository {
	return &Repository{
		collection: mongodb.Database.Collection("ruleset"),
	}
}

// Get returns the singleton ruleset, or mongo.ErrNoDocuments before seeding.
func (r *Repository) Get(ctx context.Context) (*models.Ruleset, error) {
	var ruleset models.Ruleset
	err := r.collection.FindOne(ctx, bson.M{"_id": models.RulesetID}).Decode(&ruleset)
	if err != nil {
		return nil, err
	}
	return &ruleset, nil
}

// Upsert writes the singleton ruleset, last writer wins.
func (r *Repository) Upsert(ctx context.Context, ruleset *models.Ruleset) error {
	ruleset.ID = models.RulesetID
	_, err := r.collection.ReplaceOne(ctx,
		bson.M{"_id": models.RulesetID},
		ruleset,
		options.Replace().SetUpsert(true))
	return err
}
