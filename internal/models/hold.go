package models

import (
	"time"

	"github.com/google/uuid"
)

// HoldTTL is how long a slot stays reserved while payment is pending. The
// holds collection carries a TTL index on expires_at; because Mongo reaps TTL
// documents lazily, every read that can see holds also filters on expires_at
// so the 10-minute cutoff is exact.
const HoldTTL = 10 * time.Minute

// Hold reserves a slot while the owner pays. Its _id becomes the Booking id
// on promotion, which is what keeps checkout-session metadata valid across
// the hold -> booking swap. Holds are never promoted in place: settlement
// deletes the hold and inserts the booking in one transaction.
type Hold struct {
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

	CheckoutSessionID string `bson:"checkout_session_id,omitempty" json:"-"`

	CreatedAt time.Time `bson:"created_at" json:"created_at"`
	ExpiresAt time.Time `bson:"expires_at" json:"expires_at"`
}

// Live reports whether the hold still blocks its slot at time now.
func (h *Hold) Live(now time.Time) bool {
	return h.ExpiresAt.After(now)
}
