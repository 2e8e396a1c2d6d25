package models

import (
	"time"

	"github.com/google/uuid"
)

type TransactionType string

const (
	TxnPayment              TransactionType = "payment"
	TxnRefund               TransactionType = "refund"
	TxnSubscriptionPurchase TransactionType = "subscription_purchase"
	TxnCreditRedemption     TransactionType = "credit_redemption"
	TxnCreditEarned         TransactionType = "credit_earned"
	TxnReferralPayout       TransactionType = "referral_payout"
)

type TransactionStatus string

const (
	TxnCompleted TransactionStatus = "completed"
	TxnRefunded  TransactionStatus = "refunded"
)

// PartySnapshot freezes who was on each side of a movement at the time it
// happened.
type PartySnapshot struct {
	UserID uuid.UUID `bson:"user_id" json:"user_id"`
	Role   string    `bson:"role" json:"role"`
}

// TransactionSource links a ledger row to the record that caused it. Exactly
// one field is set per row.
type TransactionSource struct {
	BookingID      string `bson:"booking_id,omitempty" json:"booking_id,omitempty"`
	SubscriptionID string `bson:"subscription_id,omitempty" json:"subscription_id,omitempty"`
	RedemptionID   string `bson:"redemption_id,omitempty" json:"redemption_id,omitempty"`
	ReferralID     string `bson:"referral_id,omitempty" json:"referral_id,omitempty"`
}

// Transaction is one append-only ledger row per money or credit movement.
// Amounts are never updated after the fact; the only permitted mutation is
// marking a payment row refunded and pointing it at its reversing row.
type Transaction struct {
	ID     string            `bson:"_id" json:"id"`
	Type   TransactionType   `bson:"type" json:"type"`
	Status TransactionStatus `bson:"status" json:"status"`

	Payer    PartySnapshot `bson:"payer" json:"payer"`
	Receiver PartySnapshot `bson:"receiver" json:"receiver"`

	GrossAmount  float64 `bson:"gross_amount" json:"gross_amount"`
	CreditsUsed  float64 `bson:"credits_used,omitempty" json:"credits_used,omitempty"`
	CreditsValue float64 `bson:"credits_value,omitempty" json:"credits_value,omitempty"`
	NetAmount    float64 `bson:"net_amount" json:"net_amount"`

	PaymentRef string `bson:"payment_ref,omitempty" json:"payment_ref,omitempty"`
	RefundRef  string `bson:"refund_ref,omitempty" json:"refund_ref,omitempty"`

	Source TransactionSource `bson:"source" json:"source"`
	// ReversesTxnID is set on refund rows and points at the payment row they
	// reverse. The payment row gets the mirror ReversedByTxnID.
	ReversesTxnID   string `bson:"reverses_txn_id,omitempty" json:"reverses_txn_id,omitempty"`
	ReversedByTxnID string `bson:"reversed_by_txn_id,omitempty" json:"reversed_by_txn_id,omitempty"`

	Note        string    `bson:"note,omitempty" json:"note,omitempty"`
	CompletedAt time.Time `bson:"completed_at" json:"completed_at"`
}
