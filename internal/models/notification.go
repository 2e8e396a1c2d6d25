package models

import (
	"time"

	"github.com/google/uuid"
)

type NotificationType string

const (
	NotifyBookingRequested NotificationType = "booking_requested"
	NotifyBookingConfirmed NotificationType = "booking_confirmed"
	NotifyBookingAccepted  NotificationType = "booking_accepted"
	NotifyBookingRejected  NotificationType = "booking_rejected"
	NotifyBookingCancelled NotificationType = "booking_cancelled"
	NotifyBookingCompleted NotificationType = "booking_completed"
	NotifyPaymentReceived  NotificationType = "payment_received"
	NotifyRefundIssued     NotificationType = "refund_issued"
)

// BookingEventData is the typed payload attached to booking-lifecycle
// notifications. Only the fields a kind needs are set; amounts appear on
// payment/refund kinds only.
type BookingEventData struct {
	BookingID   string        `bson:"booking_id" json:"booking_id"`
	ScheduledAt time.Time     `bson:"scheduled_at" json:"scheduled_at"`
	Status      BookingStatus `bson:"status,omitempty" json:"status,omitempty"`
	Amount      float64       `bson:"amount,omitempty" json:"amount,omitempty"`
}

// Notification is a stored, fire-and-forget message for one recipient.
// Delivery (push/socket) happens elsewhere; failures to record one must never
// roll back booking or payment state.
type Notification struct {
	ID          string           `bson:"_id" json:"id"`
	RecipientID uuid.UUID        `bson:"recipient_id" json:"recipient_id"`
	Type        NotificationType `bson:"type" json:"type"`
	Title       string           `bson:"title" json:"title"`
	Message     string           `bson:"message" json:"message"`
	Data        BookingEventData `bson:"data" json:"data"`
	Read        bool             `bson:"read" json:"read"`
	CreatedAt   time.Time        `bson:"created_at" json:"created_at"`
}
