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
	"go.mongodb.org/mongo-driver/mongo/readconcern"
	"go.mongodb.org/mongo-driver/mongo/writeconcern"
)

// Interval is a padded [Start, End) slot occupation, used by the
// availability preview.
type Interval struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

// BookingRepo is the authoritative store for holds and bookings. Holds and
// bookings share identity: PromoteHold deletes the hold and inserts the
// booking under the same _id in a single transaction.
type BookingRepo interface {
	InsertHold(ctx context.Context, hold *Hold) error
	SetHoldCheckoutSession(ctx context.Context, holdID, sessionID string) error
	GetHold(ctx context.Context, id string, now time.Time) (*Hold, error)
	HasOverlap(ctx context.Context, providerID uuid.UUID, start, end, now time.Time) (bool, error)
	ListActiveIntervals(ctx context.Context, providerID uuid.UUID, from, to, now time.Time) ([]Interval, error)

	PromoteHold(ctx context.Context, holdID string, now time.Time, build func(*Hold) *Booking) (*Booking, error)

	GetBooking(ctx context.Context, id string) (*Booking, error)
	ListBookingsByOwner(ctx context.Context, ownerID uuid.UUID, offset, limit int) ([]*Booking, error)
	ListBookingsByProvider(ctx context.Context, providerID uuid.UUID, offset, limit int) ([]*Booking, error)
	CountBookingsByOwner(ctx context.Context, ownerID uuid.UUID) (int64, error)
	CountBookingsByProvider(ctx context.Context, providerID uuid.UUID) (int64, error)

	TransitionStatus(ctx context.Context, id string, from, to BookingStatus, releaseSlot bool) (*Booking, error)
	SetCompletionCode(ctx context.Context, id, code string, issuedAt time.Time) (*Booking, error)
	CompleteWithCode(ctx context.Context, id, code string, at time.Time) (*Booking, error)
	SetRating(ctx context.Context, id string, rating int, review string, at time.Time) (*Booking, error)
	MarkRefunded(ctx context.Context, id, refundID string, at time.Time) (*Booking, error)
}

func (mdb *MongodbRepo) holds() *mongo.Collection    { return mdb.db.Collection(HoldsCollection) }
func (mdb *MongodbRepo) bookings() *mongo.Collection { return mdb.db.Collection(BookingsCollection) }

// InsertHold places the hold. The unique (provider_id, scheduled_at) index
// turns a concurrent insert for the same exact slot into ErrSlotConflict, so
// exactly one of two racing requests wins.
func (mdb *MongodbRepo) InsertHold(ctx context.Context, hold *Hold) error {
	_, err := mdb.holds().InsertOne(ctx, hold)
	if mongo.IsDuplicateKeyError(err) {
		return ErrSlotConflict
	}
	if err != nil {
		return fmt.Errorf("failed to insert hold: %w", err)
	}
	return nil
}

func (mdb *MongodbRepo) SetHoldCheckoutSession(ctx context.Context, holdID, sessionID string) error {
	res, err := mdb.holds().UpdateOne(ctx,
		bson.M{"_id": holdID},
		bson.M{"$set": bson.M{"checkout_session_id": sessionID}},
	)
	if err != nil {
		return fmt.Errorf("failed to attach checkout session to hold: %w", err)
	}
	if res.MatchedCount == 0 {
		return ErrHoldNotFound
	}
	return nil
}

// GetHold returns the hold if it is still live at now, nil otherwise. An
// expired-but-unreaped document counts as absent.
func (mdb *MongodbRepo) GetHold(ctx context.Context, id string, now time.Time) (*Hold, error) {
	var hold Hold
	err := mdb.holds().FindOne(ctx, bson.M{"_id": id, "expires_at": bson.M{"$gt": now}}).Decode(&hold)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get hold: %w", err)
	}
	return &hold, nil
}

// HasOverlap reports whether the half-open [start, end) interval intersects
// any live hold or any slot-occupying booking for the provider. TTL reaping
// is lazy, so holds are additionally filtered by expires_at.
func (mdb *MongodbRepo) HasOverlap(ctx context.Context, providerID uuid.UUID, start, end, now time.Time) (bool, error) {
	overlap := bson.M{
		"provider_id":  providerID,
		"scheduled_at": bson.M{"$lt": end},
		"slot_end":     bson.M{"$gt": start},
	}

	holdFilter := bson.M{"expires_at": bson.M{"$gt": now}}
	for k, v := range overlap {
		holdFilter[k] = v
	}
	n, err := mdb.holds().CountDocuments(ctx, holdFilter, options.Count().SetLimit(1))
	if err != nil {
		return false, fmt.Errorf("failed to check holds for overlap: %w", err)
	}
	if n > 0 {
		return true, nil
	}

	bookingFilter := bson.M{"slot_active": true}
	for k, v := range overlap {
		bookingFilter[k] = v
	}
	n, err = mdb.bookings().CountDocuments(ctx, bookingFilter, options.Count().SetLimit(1))
	if err != nil {
		return false, fmt.Errorf("failed to check bookings for overlap: %w", err)
	}
	return n > 0, nil
}

func (mdb *MongodbRepo) ListActiveIntervals(ctx context.Context, providerID uuid.UUID, from, to, now time.Time) ([]Interval, error) {
	window := bson.M{
		"provider_id":  providerID,
		"scheduled_at": bson.M{"$lt": to},
		"slot_end":     bson.M{"$gt": from},
	}

	var intervals []Interval
	collect := func(col *mongo.Collection, filter bson.M) error {
		cur, err := col.Find(ctx, filter, options.Find().SetProjection(bson.M{"scheduled_at": 1, "slot_end": 1}))
		if err != nil {
			return err
		}
		defer cur.Close(ctx)
		for cur.Next(ctx) {
			var doc struct {
				ScheduledAt time.Time `bson:"scheduled_at"`
				SlotEnd     time.Time `bson:"slot_end"`
			}
			if err := cur.Decode(&doc); err != nil {
				return err
			}
			intervals = append(intervals, Interval{Start: doc.ScheduledAt, End: doc.SlotEnd})
		}
		return cur.Err()
	}

	holdFilter := bson.M{"expires_at": bson.M{"$gt": now}}
	for k, v := range window {
		holdFilter[k] = v
	}
	if err := collect(mdb.holds(), holdFilter); err != nil {
		return nil, fmt.Errorf("failed to list hold intervals: %w", err)
	}

	bookingFilter := bson.M{"slot_active": true}
	for k, v := range window {
		bookingFilter[k] = v
	}
	if err := collect(mdb.bookings(), bookingFilter); err != nil {
		return nil, fmt.Errorf("failed to list booking intervals: %w", err)
	}
	return intervals, nil
}

// PromoteHold atomically removes the hold and inserts the booking built from
// it, under the hold's _id. A hold past expires_at is treated as absent even
// if the TTL monitor has not reaped it yet, so "payment arrived too late"
// surfaces as ErrHoldNotFound. The two writes commit or abort together.
func (mdb *MongodbRepo) PromoteHold(ctx context.Context, holdID string, now time.Time, build func(*Hold) *Booking) (*Booking, error) {
	session, err := mdb.client.StartSession()
	if err != nil {
		return nil, fmt.Errorf("failed to start session: %w", err)
	}
	defer session.EndSession(ctx)

	txnOpts := options.Transaction().
		SetReadConcern(readconcern.Snapshot()).
		SetWriteConcern(writeconcern.Majority())

	result, err := session.WithTransaction(ctx, func(sc mongo.SessionContext) (interface{}, error) {
		var hold Hold
		err := mdb.holds().FindOneAndDelete(sc, bson.M{
			"_id":        holdID,
			"expires_at": bson.M{"$gt": now},
		}).Decode(&hold)
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, ErrHoldNotFound
		}
		if err != nil {
			return nil, fmt.Errorf("failed to take hold: %w", err)
		}

		booking := build(&hold)
		if _, err := mdb.bookings().InsertOne(sc, booking); err != nil {
			return nil, fmt.Errorf("failed to insert booking: %w", err)
		}
		return booking, nil
	}, txnOpts)
	if err != nil {
		return nil, err
	}
	return result.(*Booking), nil
}

func (mdb *MongodbRepo) GetBooking(ctx context.Context, id string) (*Booking, error) {
	var booking Booking
	err := mdb.bookings().FindOne(ctx, bson.M{"_id": id}).Decode(&booking)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get booking: %w", err)
	}
	return &booking, nil
}

func (mdb *MongodbRepo) ListBookingsByOwner(ctx context.Context, ownerID uuid.UUID, offset, limit int) ([]*Booking, error) {
	return mdb.listBookings(ctx, bson.M{"owner_id": ownerID}, offset, limit)
}

func (mdb *MongodbRepo) ListBookingsByProvider(ctx context.Context, providerID uuid.UUID, offset, limit int) ([]*Booking, error) {
	return mdb.listBookings(ctx, bson.M{"provider_id": providerID}, offset, limit)
}

func (mdb *MongodbRepo) CountBookingsByOwner(ctx context.Context, ownerID uuid.UUID) (int64, error) {
	n, err := mdb.bookings().CountDocuments(ctx, bson.M{"owner_id": ownerID})
	if err != nil {
		return 0, fmt.Errorf("failed to count bookings: %w", err)
	}
	return n, nil
}

func (mdb *MongodbRepo) CountBookingsByProvider(ctx context.Context, providerID uuid.UUID) (int64, error) {
	n, err := mdb.bookings().CountDocuments(ctx, bson.M{"provider_id": providerID})
	if err != nil {
		return 0, fmt.Errorf("failed to count bookings: %w", err)
	}
	return n, nil
}

func (mdb *MongodbRepo) listBookings(ctx context.Context, filter bson.M, offset, limit int) ([]*Booking, error) {
	opts := options.Find().
		SetSort(bson.D{{Key: "scheduled_at", Value: -1}}).
		SetSkip(int64(offset)).
		SetLimit(int64(limit))
	cur, err := mdb.bookings().Find(ctx, filter, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to list bookings: %w", err)
	}
	defer cur.Close(ctx)

	bookings := []*Booking{}
	for cur.Next(ctx) {
		var b Booking
		if err := cur.Decode(&b); err != nil {
			return nil, fmt.Errorf("failed to decode booking: %w", err)
		}
		bookings = append(bookings, &b)
	}
	return bookings, cur.Err()
}

// TransitionStatus moves a booking from one status to another with the
// precondition baked into the update filter, so a racing caller loses cleanly
// instead of double-applying.
func (mdb *MongodbRepo) TransitionStatus(ctx context.Context, id string, from, to BookingStatus, releaseSlot bool) (*Booking, error) {
	set := bson.M{"status": to, "updated_at": time.Now().UTC()}
	if releaseSlot {
		set["slot_active"] = false
	}
	return mdb.findOneAndUpdate(ctx,
		bson.M{"_id": id, "status": from},
		bson.M{"$set": set},
	)
}

func (mdb *MongodbRepo) SetCompletionCode(ctx context.Context, id, code string, issuedAt time.Time) (*Booking, error) {
	return mdb.findOneAndUpdate(ctx,
		bson.M{"_id": id, "status": BookingOngoing},
		bson.M{"$set": bson.M{
			"completion_code":           code,
			"completion_code_issued_at": issuedAt,
			"updated_at":                issuedAt,
		}},
	)
}

// CompleteWithCode transitions ongoing -> completed only when the stored code
// matches exactly.
func (mdb *MongodbRepo) CompleteWithCode(ctx context.Context, id, code string, at time.Time) (*Booking, error) {
	return mdb.findOneAndUpdate(ctx,
		bson.M{"_id": id, "status": BookingOngoing, "completion_code": code},
		bson.M{"$set": bson.M{
			"status":      BookingCompleted,
			"slot_active": false,
			"updated_at":  at,
		}},
	)
}

func (mdb *MongodbRepo) SetRating(ctx context.Context, id string, rating int, review string, at time.Time) (*Booking, error) {
	return mdb.findOneAndUpdate(ctx,
		bson.M{"_id": id, "status": BookingCompleted, "rated_at": bson.M{"$exists": false}},
		bson.M{"$set": bson.M{
			"rating":     rating,
			"review":     review,
			"rated_at":   at,
			"updated_at": at,
		}},
	)
}

// MarkRefunded flips payment.status paid -> refunded, cancels the booking and
// releases its slot in one update. The paid precondition makes a duplicate
// refund attempt miss.
func (mdb *MongodbRepo) MarkRefunded(ctx context.Context, id, refundID string, at time.Time) (*Booking, error) {
	return mdb.findOneAndUpdate(ctx,
		bson.M{"_id": id, "payment.status": PaymentPaid},
		bson.M{"$set": bson.M{
			"payment.status":      PaymentRefunded,
			"payment.refund_id":   refundID,
			"payment.refunded_at": at,
			"status":              BookingCancelled,
			"slot_active":         false,
			"updated_at":          at,
		}},
	)
}

func (mdb *MongodbRepo) findOneAndUpdate(ctx context.Context, filter, update bson.M) (*Booking, error) {
	var booking Booking
	err := mdb.bookings().FindOneAndUpdate(ctx, filter, update,
		options.FindOneAndUpdate().SetReturnDocument(options.After),
	).Decode(&booking)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, ErrInvalidTransition
	}
	if err != nil {
		return nil, fmt.Errorf("failed to update booking: %w", err)
	}
	return &booking, nil
}
