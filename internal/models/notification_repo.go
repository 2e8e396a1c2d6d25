package models

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

type NotificationRepo interface {
	InsertNotification(ctx context.Context, n *Notification) error
	ListNotificationsByRecipient(ctx context.Context, recipientID uuid.UUID, offset, limit int) ([]*Notification, error)
}

// ReferralRepo backs the referral-credit collaborator. TakePendingByReferee
// claims the referral atomically so two concurrent completions cannot both
// reward it.
type ReferralRepo interface {
	TakePendingByReferee(ctx context.Context, refereeID uuid.UUID) (*Referral, error)
}

func (mdb *MongodbRepo) notifications() *mongo.Collection {
	return mdb.db.Collection(NotificationsCollection)
}

func (mdb *MongodbRepo) InsertNotification(ctx context.Context, n *Notification) error {
	if _, err := mdb.notifications().InsertOne(ctx, n); err != nil {
		return fmt.Errorf("failed to insert notification: %w", err)
	}
	return nil
}

func (mdb *MongodbRepo) ListNotificationsByRecipient(ctx context.Context, recipientID uuid.UUID, offset, limit int) ([]*Notification, error) {
	opts := options.Find().
		SetSort(bson.D{{Key: "created_at", Value: -1}}).
		SetSkip(int64(offset)).
		SetLimit(int64(limit))
	cur, err := mdb.notifications().Find(ctx, bson.M{"recipient_id": recipientID}, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to list notifications: %w", err)
	}
	defer cur.Close(ctx)

	items := []*Notification{}
	for cur.Next(ctx) {
		var n Notification
		if err := cur.Decode(&n); err != nil {
			return nil, fmt.Errorf("failed to decode notification: %w", err)
		}
		items = append(items, &n)
	}
	return items, cur.Err()
}

func (mdb *MongodbRepo) TakePendingByReferee(ctx context.Context, refereeID uuid.UUID) (*Referral, error) {
	var ref Referral
	err := mdb.db.Collection(ReferralsCollection).FindOneAndUpdate(ctx,
		bson.M{"referee_id": refereeID, "rewarded": false},
		bson.M{"$set": bson.M{"rewarded": true, "rewarded_at": time.Now().UTC()}},
		options.FindOneAndUpdate().SetReturnDocument(options.After),
	).Decode(&ref)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to claim referral: %w", err)
	}
	return &ref, nil
}
