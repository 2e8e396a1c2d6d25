package models

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
)

// CatalogRepo reads the provider/service facts the booking core depends on.
// Catalog CRUD itself is owned by another part of the platform; the only
// write here is the rating aggregate.
type CatalogRepo interface {
	GetService(ctx context.Context, id uuid.UUID) (*CleaningService, error)
	GetProvider(ctx context.Context, id uuid.UUID) (*ProviderProfile, error)
	ApplyServiceRating(ctx context.Context, serviceID uuid.UUID, rating int) error
}

func (mdb *MongodbRepo) services() *mongo.Collection  { return mdb.db.Collection(ServicesCollection) }
func (mdb *MongodbRepo) providers() *mongo.Collection { return mdb.db.Collection(ProvidersCollection) }

func (mdb *MongodbRepo) GetService(ctx context.Context, id uuid.UUID) (*CleaningService, error) {
	var svc CleaningService
	err := mdb.services().FindOne(ctx, bson.M{"_id": id}).Decode(&svc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, ErrServiceNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get service: %w", err)
	}
	return &svc, nil
}

func (mdb *MongodbRepo) GetProvider(ctx context.Context, id uuid.UUID) (*ProviderProfile, error) {
	var provider ProviderProfile
	err := mdb.providers().FindOne(ctx, bson.M{"_id": id}).Decode(&provider)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, ErrProviderNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get provider: %w", err)
	}
	return &provider, nil
}

// ApplyServiceRating folds one new rating into the running average with an
// aggregation-pipeline update, so concurrent ratings never read a stale
// count: avg' = (avg*count + rating) / (count + 1).
func (mdb *MongodbRepo) ApplyServiceRating(ctx context.Context, serviceID uuid.UUID, rating int) error {
	pipeline := bson.A{
		bson.M{"$set": bson.M{
			"rating_avg": bson.M{"$divide": bson.A{
				bson.M{"$add": bson.A{
					bson.M{"$multiply": bson.A{
						bson.M{"$ifNull": bson.A{"$rating_avg", 0}},
						bson.M{"$ifNull": bson.A{"$rating_count", 0}},
					}},
					rating,
				}},
				bson.M{"$add": bson.A{bson.M{"$ifNull": bson.A{"$rating_count", 0}}, 1}},
			}},
			"rating_count": bson.M{"$add": bson.A{bson.M{"$ifNull": bson.A{"$rating_count", 0}}, 1}},
		}},
	}
	res, err := mdb.services().UpdateOne(ctx, bson.M{"_id": serviceID}, pipeline)
	if err != nil {
		return fmt.Errorf("failed to apply service rating: %w", err)
	}
	if res.MatchedCount == 0 {
		return ErrServiceNotFound
	}
	return nil
}
