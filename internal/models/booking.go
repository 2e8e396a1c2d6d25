package models

import (
	"time"

	"github.com/google/uuid"
)

type BookingStatus string

const (
	BookingPending   BookingStatus = "pending"
	BookingOngoing   BookingStatus = "ongoing"
	BookingCompleted BookingStatus = "completed"
	BookingCancelled BookingStatus = "cancelled"
)

type PaymentStatus string

const (
	PaymentUnpaid   PaymentStatus = "unpaid"
	PaymentPaid     PaymentStatus = "paid"
	PaymentRefunded PaymentStatus = "refunded"
)

// MinLeadTime is how far in the future a booking must start.
const MinLeadTime = 30 * time.Minute

// SelfRefundWindow is measured from booking creation, not from the scheduled time.
const SelfRefundWindow = 2 * time.Hour

// AddressSnapshot is copied onto the booking at request time so later profile
// edits do not rewrite history.
type AddressSnapshot struct {
	Street string `bson:"street" json:"street" validate:"required"`
	City   string `bson:"city" json:"city" validate:"required"`
	Phone  string `bson:"phone" json:"phone" validate:"required"`
	Notes  string `bson:"notes,omitempty" json:"notes,omitempty"`
}

// PaymentInfo is the payment sub-record of a booking. Status only moves
// forward: unpaid -> paid -> refunded.
type PaymentInfo struct {
	Status          PaymentStatus `bson:"status" json:"status"`
	PaymentIntentID string        `bson:"payment_intent_id,omitempty" json:"payment_intent_id,omitempty"`
	RefundID        string        `bson:"refund_id,omitempty" json:"refund_id,omitempty"`
	PaidAt          *time.Time    `bson:"paid_at,omitempty" json:"paid_at,omitempty"`
	RefundedAt      *time.Time    `bson:"refunded_at,omitempty" json:"refunded_at,omitempty"`
}

// Booking is the confirmed, paid reservation. Its _id is the id that was
// pre-generated for the originating Hold, so payment-session metadata issued
// against the hold keeps pointing at the right record after promotion.
// Bookings are never physically deleted.
type Booking struct {
	ID            string          `bson:"_id" json:"id"`
	OwnerID       uuid.UUID       `bson:"owner_id" json:"owner_id"`
	ProviderID    uuid.UUID       `bson:"provider_id" json:"provider_id"`
	ServiceID     uuid.UUID       `bson:"service_id" json:"service_id"`
	ScheduledAt   time.Time       `bson:"scheduled_at" json:"scheduled_at"`
	DurationHours int             `bson:"duration_hours" json:"duration_hours"`
	BufferMinutes int             `bson:"buffer_minutes" json:"buffer_minutes"`
	SlotEnd       time.Time       `bson:"slot_end" json:"slot_end"`
	Address       AddressSnapshot `bson:"address" json:"address"`

	Amount         float64 `bson:"amount" json:"amount"`
	CreditsApplied float64 `bson:"credits_applied,omitempty" json:"credits_applied,omitempty"`
	NetAmount      float64 `bson:"net_amount" json:"net_amount"`

	Status BookingStatus `bson:"status" json:"status"`
	// SlotActive mirrors "occupies the provider's calendar" and backs the
	// partial unique index on (provider_id, scheduled_at). Cleared on cancel.
	SlotActive bool        `bson:"slot_active" json:"-"`
	Payment    PaymentInfo `bson:"payment" json:"payment"`

	CompletionCode         string     `bson:"completion_code,omitempty" json:"-"`
	CompletionCodeIssuedAt *time.Time `bson:"completion_code_issued_at,omitempty" json:"-"`

	Rating  int        `bson:"rating,omitempty" json:"rating,omitempty"`
	Review  string     `bson:"review,omitempty" json:"review,omitempty"`
	RatedAt *time.Time `bson:"rated_at,omitempty" json:"rated_at,omitempty"`

	CreatedAt time.Time `bson:"created_at" json:"created_at"`
	UpdatedAt time.Time `bson:"updated_at" json:"updated_at"`
}

// Overlaps reports whether two half-open intervals [aStart,aEnd) and
// [bStart,bEnd) intersect.
func Overlaps(aStart, aEnd, bStart, bEnd time.Time) bool {
	return aStart.Before(bEnd) && bStart.Before(aEnd)
}

// SlotInterval returns the padded interval the booking occupies:
// [scheduled_at, scheduled_at + duration + buffer).
func SlotInterval(start time.Time, durationHours, bufferMinutes int) (time.Time, time.Time) {
	end := start.
		Add(time.Duration(durationHours) * time.Hour).
		Add(time.Duration(bufferMinutes) * time.Minute)
	return start, end
}

func (b *Booking) CanAccept(providerID uuid.UUID) error {
	if b.ProviderID != providerID {
		return ErrNotBookingParty
	}
	if b.Status != BookingPending {
		return ErrInvalidTransition
	}
	return nil
}

func (b *Booking) CanReject(providerID uuid.UUID) error {
	return b.CanAccept(providerID)
}

func (b *Booking) CanCancel(ownerID uuid.UUID) error {
	if b.OwnerID != ownerID {
		return ErrNotBookingParty
	}
	if b.Status != BookingPending {
		return ErrInvalidTransition
	}
	return nil
}

func (b *Booking) CanIssueCompletionCode(providerID uuid.UUID) error {
	if b.ProviderID != providerID {
		return ErrNotBookingParty
	}
	if b.Status != BookingOngoing {
		return ErrInvalidTransition
	}
	return nil
}

// CanComplete checks the owner-submitted completion code against the stored
// one. The token must match exactly.
func (b *Booking) CanComplete(ownerID uuid.UUID, code string) error {
	if b.OwnerID != ownerID {
		return ErrNotBookingParty
	}
	if b.Status != BookingOngoing {
		return ErrInvalidTransition
	}
	if b.CompletionCode == "" {
		return ErrCompletionCodeMissing
	}
	if code != b.CompletionCode {
		return ErrInvalidCompletionCode
	}
	return nil
}

func (b *Booking) CanRate(ownerID uuid.UUID, rating int) error {
	if b.OwnerID != ownerID {
		return ErrNotBookingParty
	}
	if b.Status != BookingCompleted {
		return ErrInvalidTransition
	}
	if b.RatedAt != nil {
		return ErrAlreadyRated
	}
	if rating < 1 || rating > 5 {
		return ErrInvalidTransition
	}
	return nil
}

// RefundableBy reports whether the owner may still self-refund at time now.
func (b *Booking) RefundableBy(ownerID uuid.UUID, now time.Time) error {
	if b.OwnerID != ownerID {
		return ErrNotBookingParty
	}
	return b.refundGuards(now, true)
}

// AdminRefundable is the status-windowed path used when a paid pending
// booking is rejected or cancelled. No time limit.
func (b *Booking) AdminRefundable() error {
	return b.refundGuards(time.Time{}, false)
}

func (b *Booking) refundGuards(now time.Time, timeWindowed bool) error {
	if b.Payment.Status == PaymentRefunded {
		return ErrAlreadyRefunded
	}
	if b.Payment.Status != PaymentPaid {
		return ErrNotPaid
	}
	if b.Status == BookingCompleted || b.Status == BookingCancelled {
		return ErrInvalidTransition
	}
	if timeWindowed && now.Sub(b.CreatedAt) > SelfRefundWindow {
		return ErrRefundWindowClosed
	}
	return nil
}
