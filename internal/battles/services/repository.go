package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go-battlewatch/internal/battles/engine"
	"go-battlewatch/internal/battles/models"
	killmailModels "go-battlewatch/internal/killmails/models"
	"go-battlewatch/pkg/database"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// Repository owns battle persistence and the clusterer's writes to the
// killmail processing state.
type Repository struct {
	client       *mongo.Client
	battles      *mongo.Collection
	events       *mongo.Collection
	participants *mongo.Collection
	killmails    *mongo.Collection
}

// NewRepository creates a new battles repository.
func NewRepository(mongodb *database.MongoDB) *Repository {
	return &Repository{
		client:       mongodb.Client,
		battles:      mongodb.Database.Collection(models.BattlesCollection),
		events:       mongodb.Database.Collection(models.BattleEventsCollection),
		participants: mongodb.Database.Collection(models.BattleParticipantsCollection),
		killmails:    mongodb.Database.Collection(killmailModels.KillmailsCollection),
	}
}

// FetchUnprocessed returns killmails not yet considered by clustering whose
// occurred_at is at or before the cutoff, oldest first.
func (r *Repository) FetchUnprocessed(ctx context.Context, cutoff time.Time, batchSize int) ([]killmailModels.Killmail, error) {
	opts := options.Find().
		SetSort(bson.D{{Key: "killmail_time", Value: 1}}).
		SetLimit(int64(batchSize))

	cursor, err := r.killmails.Find(ctx, bson.M{
		"processed_at":  bson.M{"$exists": false},
		"killmail_time": bson.M{"$lte": cutoff},
	}, opts)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	var results []killmailModels.Killmail
	if err := cursor.All(ctx, &results); err != nil {
		return nil, err
	}
	return results, nil
}

// PersistPlan applies one clustering plan in a single transaction: insert the
// battle, upsert its attachments and participants, and mark the plan's
// killmails processed. An aborted transaction leaves every event unprocessed
// for the next tick.
func (r *Repository) PersistPlan(ctx context.Context, plan engine.Plan) error {
	session, err := r.client.StartSession()
	if err != nil {
		return fmt.Errorf("failed to start session: %w", err)
	}
	defer session.EndSession(ctx)

	txnCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	_, err = session.WithTransaction(txnCtx, func(sc mongo.SessionContext) (interface{}, error) {
		now := time.Now().UTC()

		battle := models.Battle{
			ID:                   plan.Battle.ID,
			SolarSystemID:        plan.Battle.SystemID,
			SpaceClass:           plan.Battle.SpaceClass,
			StartTime:            plan.Battle.StartTime,
			EndTime:              plan.Battle.EndTime,
			TotalKills:           plan.Battle.TotalKills,
			TotalISKDestroyed:    plan.Battle.TotalISKDestroyed,
			ExternalReferenceURL: plan.Battle.ReferenceURL,
			CreatedAt:            now,
		}
		if _, err := r.battles.InsertOne(sc, battle); err != nil && !mongo.IsDuplicateKeyError(err) {
			return nil, err
		}

		eventWrites := make([]mongo.WriteModel, 0, len(plan.Events))
		for _, attachment := range plan.Events {
			eventWrites = append(eventWrites, mongo.NewReplaceOneModel().
				SetFilter(bson.M{"battle_id": attachment.BattleID, "killmail_id": attachment.EventID}).
				SetReplacement(models.BattleEvent{
					BattleID:            attachment.BattleID,
					KillmailID:          attachment.EventID,
					OccurredAt:          attachment.OccurredAt,
					VictimAllianceID:    attachment.VictimAllianceID,
					AttackerAllianceIDs: attachment.AttackerAllianceIDs,
					ISKValue:            attachment.ISKValue,
					SideID:              attachment.SideID,
				}).
				SetUpsert(true))
		}
		if len(eventWrites) > 0 {
			if _, err := r.events.BulkWrite(sc, eventWrites); err != nil {
				return nil, err
			}
		}

		participantWrites := make([]mongo.WriteModel, 0, len(plan.Participants))
		for _, participant := range plan.Participants {
			participantWrites = append(participantWrites, mongo.NewReplaceOneModel().
				SetFilter(bson.M{"battle_id": participant.BattleID, "character_id": participant.CharacterID}).
				SetReplacement(models.BattleParticipant{
					BattleID:    participant.BattleID,
					CharacterID: participant.CharacterID,
					AllianceID:  participant.AllianceID,
					CorpID:      participant.CorpID,
					ShipTypeID:  participant.ShipTypeID,
					SideID:      participant.SideID,
					IsVictim:    participant.IsVictim,
				}).
				SetUpsert(true))
		}
		if len(participantWrites) > 0 {
			if _, err := r.participants.BulkWrite(sc, participantWrites); err != nil {
				return nil, err
			}
		}

		_, err := r.killmails.UpdateMany(sc,
			bson.M{"killmail_id": bson.M{"$in": plan.EventIDs}},
			bson.M{"$set": bson.M{"processed_at": now, "battle_id": plan.Battle.ID}})
		return nil, err
	})
	return err
}

// MarkIgnored marks below-threshold killmails processed with no battle so
// they are never re-examined.
func (r *Repository) MarkIgnored(ctx context.Context, killmailIDs []int64) error {
	if len(killmailIDs) == 0 {
		return nil
	}
	_, err := r.killmails.UpdateMany(ctx,
		bson.M{"killmail_id": bson.M{"$in": killmailIDs}},
		bson.M{
			"$set":   bson.M{"processed_at": time.Now().UTC()},
			"$unset": bson.M{"battle_id": ""},
		})
	return err
}

// Recluster atomically deletes battles overlapping [from, to] and resets the
// processing state of killmails in that range, so the next clusterer tick
// rebuilds them.
func (r *Repository) Recluster(ctx context.Context, from, to time.Time) (int64, error) {
	session, err := r.client.StartSession()
	if err != nil {
		return 0, fmt.Errorf("failed to start session: %w", err)
	}
	defer session.EndSession(ctx)

	txnCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	reset, err := session.WithTransaction(txnCtx, func(sc mongo.SessionContext) (interface{}, error) {
		overlap := bson.M{
			"start_time": bson.M{"$lte": to},
			"end_time":   bson.M{"$gte": from},
		}

		cursor, err := r.battles.Find(sc, overlap, options.Find().SetProjection(bson.M{"_id": 1}))
		if err != nil {
			return nil, err
		}
		var rows []models.Battle
		if err := cursor.All(sc, &rows); err != nil {
			return nil, err
		}

		battleIDs := make([]string, 0, len(rows))
		for _, row := range rows {
			battleIDs = append(battleIDs, row.ID)
		}

		if len(battleIDs) > 0 {
			inBattles := bson.M{"battle_id": bson.M{"$in": battleIDs}}
			if _, err := r.events.DeleteMany(sc, inBattles); err != nil {
				return nil, err
			}
			if _, err := r.participants.DeleteMany(sc, inBattles); err != nil {
				return nil, err
			}
			if _, err := r.battles.DeleteMany(sc, overlap); err != nil {
				return nil, err
			}
		}

		result, err := r.killmails.UpdateMany(sc,
			reclusterResetFilter(from, to, battleIDs),
			bson.M{"$unset": bson.M{"processed_at": "", "battle_id": ""}})
		if err != nil {
			return nil, err
		}
		return result.ModifiedCount, nil
	})
	if err != nil {
		return 0, err
	}
	return reset.(int64), nil
}

// reclusterResetFilter selects the killmails to return to the unprocessed
// state: everything in the time range plus every member of the deleted
// battles. A battle spanning the range boundary has attachments outside
// [from, to]; without the battle_id clause those would keep pointing at a
// battle that no longer exists.
func reclusterResetFilter(from, to time.Time, battleIDs []string) bson.M {
	inRange := bson.M{"killmail_time": bson.M{"$gte": from, "$lte": to}}
	if len(battleIDs) == 0 {
		return inRange
	}
	return bson.M{"$or": bson.A{
		inRange,
		bson.M{"battle_id": bson.M{"$in": battleIDs}},
	}}
}

// ListFilter narrows battle listings.
type ListFilter struct {
	SolarSystemID int64
	SpaceClass    string
}

// List returns battles newest-first.
func (r *Repository) List(ctx context.Context, filter ListFilter, limit int) ([]models.Battle, error) {
	query := bson.M{}
	if filter.SolarSystemID > 0 {
		query["solar_system_id"] = filter.SolarSystemID
	}
	if filter.SpaceClass != "" {
		query["space_class"] = filter.SpaceClass
	}

	opts := options.Find().
		SetSort(bson.D{{Key: "start_time", Value: -1}}).
		SetLimit(int64(limit))

	cursor, err := r.battles.Find(ctx, query, opts)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	var results []models.Battle
	if err := cursor.All(ctx, &results); err != nil {
		return nil, err
	}
	return results, nil
}

// Get returns one battle with its attachments and participants, or nil when
// the battle does not exist.
func (r *Repository) Get(ctx context.Context, battleID string) (*models.Battle, []models.BattleEvent, []models.BattleParticipant, error) {
	var battle models.Battle
	err := r.battles.FindOne(ctx, bson.M{"_id": battleID}).Decode(&battle)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, nil, nil, nil
	}
	if err != nil {
		return nil, nil, nil, err
	}

	inBattle := bson.M{"battle_id": battleID}

	eventCursor, err := r.events.Find(ctx, inBattle, options.Find().SetSort(bson.D{{Key: "occurred_at", Value: 1}}))
	if err != nil {
		return nil, nil, nil, err
	}
	var events []models.BattleEvent
	if err := eventCursor.All(ctx, &events); err != nil {
		return nil, nil, nil, err
	}

	participantCursor, err := r.participants.Find(ctx, inBattle, options.Find().SetSort(bson.D{{Key: "character_id", Value: 1}}))
	if err != nil {
		return nil, nil, nil, err
	}
	var participants []models.BattleParticipant
	if err := participantCursor.All(ctx, &participants); err != nil {
		return nil, nil, nil, err
	}

	return &battle, events, participants, nil
}
