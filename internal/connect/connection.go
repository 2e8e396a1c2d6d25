package connect

import (
	"context"
	"fmt"
	"time"

	"github.com/sparktechagency/cleaning-service-backend-sub000/internal/models"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

var MongoDBClient *mongo.Client

// mongo init

func MongoDBConnect(uri string) (*mongo.Client, error) {
	ctx, cancel := context.WithTimeout(context.Background(), time.Second*10)
	defer cancel()

	clientOptions := options.Client().ApplyURI(uri)

	var err error
	MongoDBClient, err = mongo.Connect(ctx, clientOptions)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to MongoDB: %v", err)
	}

	if err := MongoDBClient.Ping(ctx, nil); err != nil {
		return nil, fmt.Errorf("failed to ping MongoDB: %v", err)
	}

	return MongoDBClient, nil
}

func MongoDBDisconnect() error {
	if MongoDBClient == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	err := MongoDBClient.Disconnect(ctx)
	if err != nil {
		return fmt.Errorf("failed to disconnect MongoDB: %v", err)
	}
	MongoDBClient = nil
	return nil
}

// EnsureIndexes creates the indexes the booking core's correctness leans on:
//
//   - holds.expires_at TTL: the 10-minute hold lifetime (queries still filter
//     on expires_at because TTL reaping is lazy);
//   - unique (provider_id, scheduled_at) on holds, and on bookings where
//     slot_active, so two concurrent reservations of the same exact slot
//     resolve to exactly one winner;
//   - unique (source.booking_id, type) on transactions, so the ledger records
//     at most one row per settlement/refund event.
func EnsureIndexes(client *mongo.Client, dbName string) error {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	db := client.Database(dbName)

	holds := []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "expires_at", Value: 1}},
			Options: options.Index().SetExpireAfterSeconds(0),
		},
		{
			Keys:    bson.D{{Key: "provider_id", Value: 1}, {Key: "scheduled_at", Value: 1}},
			Options: options.Index().SetUnique(true),
		},
		{
			Keys: bson.D{{Key: "provider_id", Value: 1}, {Key: "slot_end", Value: 1}},
		},
	}
	if _, err := db.Collection(models.HoldsCollection).Indexes().CreateMany(ctx, holds); err != nil {
		return fmt.Errorf("failed to create hold indexes: %w", err)
	}

	bookings := []mongo.IndexModel{
		{
			Keys: bson.D{{Key: "provider_id", Value: 1}, {Key: "scheduled_at", Value: 1}},
			Options: options.Index().
				SetUnique(true).
				SetPartialFilterExpression(bson.D{{Key: "slot_active", Value: true}}),
		},
		{
			Keys: bson.D{{Key: "owner_id", Value: 1}, {Key: "scheduled_at", Value: -1}},
		},
		{
			Keys: bson.D{{Key: "provider_id", Value: 1}, {Key: "slot_end", Value: 1}},
		},
	}
	if _, err := db.Collection(models.BookingsCollection).Indexes().CreateMany(ctx, bookings); err != nil {
		return fmt.Errorf("failed to create booking indexes: %w", err)
	}

	txns := []mongo.IndexModel{
		{
			Keys: bson.D{{Key: "source.booking_id", Value: 1}, {Key: "type", Value: 1}},
			Options: options.Index().
				SetUnique(true).
				SetPartialFilterExpression(bson.D{{Key: "source.booking_id", Value: bson.D{{Key: "$exists", Value: true}}}}),
		},
	}
	if _, err := db.Collection(models.TransactionsCollection).Indexes().CreateMany(ctx, txns); err != nil {
		return fmt.Errorf("failed to create transaction indexes: %w", err)
	}

	notifications := []mongo.IndexModel{
		{
			Keys: bson.D{{Key: "recipient_id", Value: 1}, {Key: "created_at", Value: -1}},
		},
	}
	if _, err := db.Collection(models.NotificationsCollection).Indexes().CreateMany(ctx, notifications); err != nil {
		return fmt.Errorf("failed to create notification indexes: %w", err)
	}

	return nil
}
