package models

import (
	"github.com/go-playground/validator/v10"
	"go.mongodb.org/mongo-driver/mongo"
)

var Validate = validator.New()

const (
	HoldsCollection         = "holds"
	BookingsCollection      = "bookings"
	TransactionsCollection  = "transactions"
	ServicesCollection      = "services"
	ProvidersCollection     = "providers"
	NotificationsCollection = "notifications"
	ReferralsCollection     = "referrals"
)

type MongodbRepo struct {
	client *mongo.Client
	db     *mongo.Database
}

func MongodbNewRepo(client *mongo.Client, dbName string) *MongodbRepo {
	return &MongodbRepo{
		client: client,
		db:     client.Database(dbName),
	}
}
