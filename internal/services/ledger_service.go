package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/sparktechagency/cleaning-service-backend-sub000/internal/models"
)

// LedgerService records every money/credit movement as an append-only
// transaction row. It is deliberately forgiving about being called twice for
// the same event: the unique (booking, type) index turns the second write
// into a no-op, which is what lets settlement self-heal a ledger write that
// was lost to a crash.
type LedgerService struct {
	txns   models.TransactionRepo
	logger *slog.Logger
	now    func() time.Time
}

func NewLedgerService(txns models.TransactionRepo, logger *slog.Logger) *LedgerService {
	return &LedgerService{
		txns:   txns,
		logger: logger,
		now:    time.Now,
	}
}

// EnsureBookingPayment records the payment row for a paid booking if it is
// not already there, and returns the row that ends up in the ledger.
func (ls *LedgerService) EnsureBookingPayment(ctx context.Context, booking *models.Booking) (*models.Transaction, error) {
	txn := &models.Transaction{
		ID:     uuid.NewString(),
		Type:   models.TxnPayment,
		Status: models.TxnCompleted,
		Payer:  models.PartySnapshot{UserID: booking.OwnerID, Role: "owner"},
		Receiver: models.PartySnapshot{
			UserID: booking.ProviderID,
			Role:   "provider",
		},
		GrossAmount:  booking.Amount,
		CreditsUsed:  booking.CreditsApplied,
		CreditsValue: booking.CreditsApplied,
		NetAmount:    booking.NetAmount,
		PaymentRef:   booking.Payment.PaymentIntentID,
		Source:       models.TransactionSource{BookingID: booking.ID},
		CompletedAt:  ls.now().UTC(),
	}

	err := ls.txns.InsertTransaction(ctx, txn)
	if errors.Is(err, models.ErrTransactionExists) {
		return ls.txns.FindByBookingAndType(ctx, booking.ID, models.TxnPayment)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to record payment transaction: %w", err)
	}
	return txn, nil
}

// RecordRefund appends the refund row and back-references the original
// payment row, which is flipped to refunded but never deleted.
func (ls *LedgerService) RecordRefund(ctx context.Context, booking *models.Booking, refundRef string) (*models.Transaction, error) {
	original, err := ls.txns.FindByBookingAndType(ctx, booking.ID, models.TxnPayment)
	if err != nil {
		return nil, err
	}
	if original == nil {
		// Payment row went missing (settlement crashed before the ledger
		// write and nothing observed the booking since). Heal it first so the
		// refund has something to reverse.
		original, err = ls.EnsureBookingPayment(ctx, booking)
		if err != nil {
			return nil, err
		}
	}

	refund := &models.Transaction{
		ID:            uuid.NewString(),
		Type:          models.TxnRefund,
		Status:        models.TxnCompleted,
		Payer:         models.PartySnapshot{UserID: booking.ProviderID, Role: "provider"},
		Receiver:      models.PartySnapshot{UserID: booking.OwnerID, Role: "owner"},
		GrossAmount:   booking.NetAmount,
		NetAmount:     booking.NetAmount,
		PaymentRef:    booking.Payment.PaymentIntentID,
		RefundRef:     refundRef,
		Source:        models.TransactionSource{BookingID: booking.ID},
		ReversesTxnID: original.ID,
		CompletedAt:   ls.now().UTC(),
	}
	if err := ls.txns.InsertTransaction(ctx, refund); err != nil {
		if errors.Is(err, models.ErrTransactionExists) {
			return ls.txns.FindByBookingAndType(ctx, booking.ID, models.TxnRefund)
		}
		return nil, fmt.Errorf("failed to record refund transaction: %w", err)
	}

	if err := ls.txns.MarkReversed(ctx, original.ID, refund.ID); err != nil {
		// The refund row is already in; the back-reference can be repaired by
		// hand, so log instead of failing the refund.
		ls.logger.Error("failed to back-reference refunded payment",
			"booking_id", booking.ID,
			"payment_txn", original.ID,
			"refund_txn", refund.ID,
			"error", err,
		)
	}
	return refund, nil
}

// RecordCreditEarned appends a credit accrual row (referral rewards).
func (ls *LedgerService) RecordCreditEarned(ctx context.Context, ref *models.Referral) (*models.Transaction, error) {
	txn := &models.Transaction{
		ID:          uuid.NewString(),
		Type:        models.TxnCreditEarned,
		Status:      models.TxnCompleted,
		Receiver:    models.PartySnapshot{UserID: ref.ReferrerID, Role: "owner"},
		GrossAmount: ref.RewardAmount,
		NetAmount:   ref.RewardAmount,
		Source:      models.TransactionSource{ReferralID: ref.ID},
		Note:        "referral reward on referee's first completed booking",
		CompletedAt: ls.now().UTC(),
	}
	if err := ls.txns.InsertTransaction(ctx, txn); err != nil && !errors.Is(err, models.ErrTransactionExists) {
		return nil, fmt.Errorf("failed to record credit transaction: %w", err)
	}
	return txn, nil
}
