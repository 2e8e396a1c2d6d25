package models

import (
	"time"

	"github.com/google/uuid"
)

// Referral tracks one invite. The referrer earns a credit the first time the
// referee completes a booking; Rewarded flips exactly once.
type Referral struct {
	ID           string     `bson:"_id" json:"id"`
	ReferrerID   uuid.UUID  `bson:"referrer_id" json:"referrer_id"`
	RefereeID    uuid.UUID  `bson:"referee_id" json:"referee_id"`
	RewardAmount float64    `bson:"reward_amount" json:"reward_amount"`
	Rewarded     bool       `bson:"rewarded" json:"rewarded"`
	RewardedAt   *time.Time `bson:"rewarded_at,omitempty" json:"rewarded_at,omitempty"`
	CreatedAt    time.Time  `bson:"created_at" json:"created_at"`
}
