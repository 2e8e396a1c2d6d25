package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/sparktechagency/cleaning-service-backend-sub000/internal/helpers"
	"github.com/sparktechagency/cleaning-service-backend-sub000/internal/models"
)

// RefundService validates refund eligibility and drives the gateway, the
// booking record and the ledger through a refund. Two entry points share the
// same machinery: the owner's time-windowed self-service refund and the
// administrative refund fired when a paid pending booking is rejected or
// cancelled.
type RefundService struct {
	bookings models.BookingRepo
	catalog  models.CatalogRepo
	gateway  PaymentGateway
	ledger   *LedgerService
	notifier Notifier
	logger   *slog.Logger
	retry    helpers.RetryPolicy
	now      func() time.Time
}

func NewRefundService(
	bookings models.BookingRepo,
	catalog models.CatalogRepo,
	gateway PaymentGateway,
	ledger *LedgerService,
	notifier Notifier,
	logger *slog.Logger,
) *RefundService {
	return &RefundService{
		bookings: bookings,
		catalog:  catalog,
		gateway:  gateway,
		ledger:   ledger,
		notifier: notifier,
		logger:   logger,
		retry:    helpers.DefaultRetryPolicy(IsRetryableStoreError),
		now:      time.Now,
	}
}

// SelfRefund is the owner-initiated path, allowed only within the fixed
// window after booking creation and never after completion.
func (rs *RefundService) SelfRefund(ctx context.Context, ownerID uuid.UUID, bookingID string) (*models.Booking, error) {
	booking, err := rs.bookings.GetBooking(ctx, bookingID)
	if err != nil {
		return nil, err
	}
	if booking == nil {
		return nil, models.ErrBookingNotFound
	}
	if err := booking.RefundableBy(ownerID, rs.now()); err != nil {
		return nil, err
	}
	return rs.execute(ctx, booking)
}

// AdminRefund is the status-windowed path used by reject/cancel of a paid
// booking. No time limit; the booking must not be completed.
func (rs *RefundService) AdminRefund(ctx context.Context, bookingID string) (*models.Booking, error) {
	booking, err := rs.bookings.GetBooking(ctx, bookingID)
	if err != nil {
		return nil, err
	}
	if booking == nil {
		return nil, models.ErrBookingNotFound
	}
	if err := booking.AdminRefundable(); err != nil {
		return nil, err
	}
	return rs.execute(ctx, booking)
}

func (rs *RefundService) execute(ctx context.Context, booking *models.Booking) (*models.Booking, error) {
	provider, err := rs.catalog.GetProvider(ctx, booking.ProviderID)
	if err != nil {
		return nil, err
	}
	if provider.PayoutAccountID == "" {
		return nil, models.ErrPayoutMissing
	}

	// reverse_transfer reclaims funds already forwarded to the provider.
	refundID, err := rs.gateway.CreateRefund(ctx, booking.Payment.PaymentIntentID, true)
	if err != nil {
		// Two callers can pass the guards together; the gateway rejects the
		// loser because the payment intent is already refunded. Re-read so the
		// loser reports the terminal state, not a gateway failure.
		if current, readErr := rs.bookings.GetBooking(ctx, booking.ID); readErr == nil &&
			current != nil && current.Payment.Status == models.PaymentRefunded {
			return nil, models.ErrAlreadyRefunded
		}
		return nil, fmt.Errorf("gateway refund failed: %w", err)
	}

	var updated *models.Booking
	err = rs.retry.WithRetry(ctx, func(ctx context.Context) error {
		b, err := rs.bookings.MarkRefunded(ctx, booking.ID, refundID, rs.now().UTC())
		if err != nil {
			return err
		}
		updated = b
		return nil
	})
	if errors.Is(err, models.ErrInvalidTransition) {
		// Lost a race with another refund of the same booking. The money moved
		// once (the gateway de-duplicates by payment intent); report the
		// terminal state.
		return nil, models.ErrAlreadyRefunded
	}
	if err != nil {
		// The gateway refund went through but the local mark failed; this is
		// the one state that needs a human, so make it loud.
		rs.logger.Error("refund issued but booking not marked refunded",
			"booking_id", booking.ID, "refund_id", refundID, "error", err)
		return nil, err
	}

	if _, err := rs.ledger.RecordRefund(ctx, updated, refundID); err != nil {
		rs.logger.Error("failed to record refund transaction",
			"booking_id", updated.ID, "refund_id", refundID, "error", err)
	}

	data := models.BookingEventData{
		BookingID:   updated.ID,
		ScheduledAt: updated.ScheduledAt,
		Status:      updated.Status,
		Amount:      updated.NetAmount,
	}
	rs.notifier.Notify(ctx, updated.OwnerID, models.NotifyRefundIssued,
		"Refund issued", "Your payment was refunded and the booking cancelled.", data)
	rs.notifier.Notify(ctx, updated.ProviderID, models.NotifyBookingCancelled,
		"Booking cancelled", "The booking was cancelled and the payment refunded.", data)
	return updated, nil
}

// RefundEligibility is the read-only answer for "can I still get my money
// back", with the reason when not.
type RefundEligibility struct {
	Eligible bool       `json:"eligible"`
	Reason   string     `json:"reason,omitempty"`
	Deadline *time.Time `json:"deadline,omitempty"`
}

func (rs *RefundService) CheckEligibility(ctx context.Context, ownerID uuid.UUID, bookingID string) (*RefundEligibility, error) {
	booking, err := rs.bookings.GetBooking(ctx, bookingID)
	if err != nil {
		return nil, err
	}
	if booking == nil {
		return nil, models.ErrBookingNotFound
	}
	if booking.OwnerID != ownerID {
		return nil, models.ErrNotBookingParty
	}

	deadline := booking.CreatedAt.Add(models.SelfRefundWindow)
	if err := booking.RefundableBy(ownerID, rs.now()); err != nil {
		return &RefundEligibility{Eligible: false, Reason: err.Error()}, nil
	}
	return &RefundEligibility{Eligible: true, Deadline: &deadline}, nil
}
