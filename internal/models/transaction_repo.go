package models

import (
	"context"
	"errors"
	"fmt"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
)

// ErrTransactionExists signals that the unique (source.booking_id, type)
// index rejected a second row for the same event. Callers treat it as
// already-recorded, not as a failure.
var ErrTransactionExists = errors.New("transaction already recorded")

// TransactionRepo is the append-only ledger store. Rows are never deleted and
// amounts never change; MarkReversed is the single permitted mutation.
type TransactionRepo interface {
	InsertTransaction(ctx context.Context, txn *Transaction) error
	FindByBookingAndType(ctx context.Context, bookingID string, txnType TransactionType) (*Transaction, error)
	MarkReversed(ctx context.Context, txnID, reversedByTxnID string) error
}

func (mdb *MongodbRepo) transactions() *mongo.Collection {
	return mdb.db.Collection(TransactionsCollection)
}

func (mdb *MongodbRepo) InsertTransaction(ctx context.Context, txn *Transaction) error {
	_, err := mdb.transactions().InsertOne(ctx, txn)
	if mongo.IsDuplicateKeyError(err) {
		return ErrTransactionExists
	}
	if err != nil {
		return fmt.Errorf("failed to insert transaction: %w", err)
	}
	return nil
}

func (mdb *MongodbRepo) FindByBookingAndType(ctx context.Context, bookingID string, txnType TransactionType) (*Transaction, error) {
	var txn Transaction
	err := mdb.transactions().FindOne(ctx, bson.M{
		"source.booking_id": bookingID,
		"type":              txnType,
	}).Decode(&txn)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find transaction: %w", err)
	}
	return &txn, nil
}

func (mdb *MongodbRepo) MarkReversed(ctx context.Context, txnID, reversedByTxnID string) error {
	_, err := mdb.transactions().UpdateOne(ctx,
		bson.M{"_id": txnID},
		bson.M{"$set": bson.M{
			"status":             TxnRefunded,
			"reversed_by_txn_id": reversedByTxnID,
		}},
	)
	if err != nil {
		return fmt.Errorf("failed to mark transaction reversed: %w", err)
	}
	return nil
}
