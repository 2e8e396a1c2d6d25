package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/sparktechagency/cleaning-service-backend-sub000/internal/helpers"
	"github.com/sparktechagency/cleaning-service-backend-sub000/internal/models"
	"go.mongodb.org/mongo-driver/mongo"
)

// SettlementService is the idempotent bridge between the gateway's payment
// confirmation (redirect and/or webhook, in any order, possibly duplicated or
// concurrent) and the booking store. For a given booking identity and payment
// reference it produces exactly one paid booking and exactly one payment
// transaction, no matter how many times it runs.
type SettlementService struct {
	bookings models.BookingRepo
	catalog  models.CatalogRepo
	ledger   *LedgerService
	notifier Notifier
	logger   *slog.Logger
	retry    helpers.RetryPolicy
	now      func() time.Time
}

func NewSettlementService(
	bookings models.BookingRepo,
	catalog models.CatalogRepo,
	ledger *LedgerService,
	notifier Notifier,
	logger *slog.Logger,
) *SettlementService {
	return &SettlementService{
		bookings: bookings,
		catalog:  catalog,
		ledger:   ledger,
		notifier: notifier,
		logger:   logger,
		retry: helpers.DefaultRetryPolicy(func(err error) bool {
			return errors.Is(err, errRecheckBooking) || IsRetryableStoreError(err)
		}),
		now:      time.Now,
	}
}

// IsRetryableStoreError classifies storage failures worth another settlement
// attempt: transaction write conflicts and duplicate-key races, both expected
// when redirect and webhook land at the same time. Business errors are not
// retryable.
func IsRetryableStoreError(err error) bool {
	if err == nil {
		return false
	}
	if mongo.IsDuplicateKeyError(err) {
		return true
	}
	var se mongo.ServerError
	if errors.As(err, &se) {
		return se.HasErrorLabel("TransientTransactionError") ||
			se.HasErrorLabel("UnknownTransactionCommitResult")
	}
	return false
}

// Settle converts the paid hold identified by bookingID into a booking and
// records the charge. Safe to call repeatedly and concurrently for the same
// identity. Returns models.ErrHoldNotFound when no hold exists and no booking
// was ever promoted, the "payment arrived too late" case.
func (ss *SettlementService) Settle(ctx context.Context, bookingID, paymentRef string) (*models.Booking, error) {
	var settled *models.Booking

	err := ss.retry.WithRetry(ctx, func(ctx context.Context) error {
		booking, err := ss.settleOnce(ctx, bookingID, paymentRef)
		if err != nil {
			return err
		}
		settled = booking
		return nil
	})
	if err != nil {
		// Last-chance check: a competing caller may have finished the job
		// while our attempts kept colliding.
		if booking, checkErr := ss.bookings.GetBooking(ctx, bookingID); checkErr == nil &&
			booking != nil && booking.Payment.Status == models.PaymentPaid {
			return booking, nil
		}
		return nil, err
	}
	return settled, nil
}

func (ss *SettlementService) settleOnce(ctx context.Context, bookingID, paymentRef string) (*models.Booking, error) {
	// Idempotent short-circuit. Still make sure the ledger row exists: an
	// earlier attempt may have crashed between the booking insert and the
	// ledger write.
	existing, err := ss.bookings.GetBooking(ctx, bookingID)
	if err != nil {
		return nil, err
	}
	if existing != nil && existing.Payment.Status == models.PaymentPaid {
		if _, err := ss.ledger.EnsureBookingPayment(ctx, existing); err != nil {
			ss.logger.Error("ledger self-heal failed", "booking_id", existing.ID, "error", err)
		}
		return existing, nil
	}

	now := ss.now().UTC()
	hold, err := ss.bookings.GetHold(ctx, bookingID, now)
	if err != nil {
		return nil, err
	}
	if hold == nil {
		return nil, ss.reconcileMissingHold(ctx, bookingID)
	}

	// Instant-booking services skip provider acceptance.
	initial := models.BookingPending
	svc, err := ss.catalog.GetService(ctx, hold.ServiceID)
	if err != nil {
		return nil, err
	}
	if svc.InstantBooking {
		initial = models.BookingOngoing
	}

	booking, err := ss.bookings.PromoteHold(ctx, bookingID, now, func(h *models.Hold) *models.Booking {
		paidAt := now
		return &models.Booking{
			ID:             h.ID,
			OwnerID:        h.OwnerID,
			ProviderID:     h.ProviderID,
			ServiceID:      h.ServiceID,
			ScheduledAt:    h.ScheduledAt,
			DurationHours:  h.DurationHours,
			BufferMinutes:  h.BufferMinutes,
			SlotEnd:        h.SlotEnd,
			Address:        h.Address,
			Amount:         h.Amount,
			CreditsApplied: h.CreditsApplied,
			NetAmount:      h.NetAmount,
			Status:         initial,
			SlotActive:     true,
			Payment: models.PaymentInfo{
				Status:          models.PaymentPaid,
				PaymentIntentID: paymentRef,
				PaidAt:          &paidAt,
			},
			CreatedAt: now,
			UpdatedAt: now,
		}
	})
	if errors.Is(err, models.ErrHoldNotFound) {
		// A concurrent caller took the hold between our read and the
		// transaction.
		return nil, ss.reconcileMissingHold(ctx, bookingID)
	}
	if err != nil {
		return nil, err
	}

	ss.notifyPromoted(ctx, booking)

	if _, err := ss.ledger.EnsureBookingPayment(ctx, booking); err != nil {
		// The booking is paid and durable; a missing ledger row is healed on
		// the next observation, so log rather than unwind.
		ss.logger.Error("failed to record payment transaction",
			"booking_id", booking.ID, "error", err)
	}
	return booking, nil
}

// reconcileMissingHold distinguishes "someone else already promoted it" from
// "the hold expired or never existed".
func (ss *SettlementService) reconcileMissingHold(ctx context.Context, bookingID string) error {
	booking, err := ss.bookings.GetBooking(ctx, bookingID)
	if err != nil {
		return err
	}
	if booking != nil && booking.Payment.Status == models.PaymentPaid {
		// Promoted by the competing caller. Surface as retryable-success via
		// the short-circuit on the next attempt.
		return errRecheckBooking
	}
	return models.ErrHoldNotFound
}

// errRecheckBooking forces one more pass through settleOnce, where the
// short-circuit will return the booking the competing caller created.
var errRecheckBooking = errors.New("booking promoted concurrently, re-check")

func (ss *SettlementService) notifyPromoted(ctx context.Context, booking *models.Booking) {
	data := models.BookingEventData{
		BookingID:   booking.ID,
		ScheduledAt: booking.ScheduledAt,
		Status:      booking.Status,
		Amount:      booking.NetAmount,
	}
	ss.notifier.Notify(ctx, booking.OwnerID, models.NotifyBookingConfirmed,
		"Booking confirmed", "Your payment was received and the slot is reserved.", data)
	if booking.Status == models.BookingOngoing {
		ss.notifier.Notify(ctx, booking.ProviderID, models.NotifyPaymentReceived,
			"New booking", "An instant booking was paid and is ready to start.", data)
	} else {
		ss.notifier.Notify(ctx, booking.ProviderID, models.NotifyBookingRequested,
			"New booking request", "A paid booking request is awaiting your acceptance.", data)
	}
}

// SettleFromSession settles from a retrieved checkout session (redirect path)
// after checking the session is actually paid and is a booking payment.
func (ss *SettlementService) SettleFromSession(ctx context.Context, session *CheckoutSession) (*models.Booking, error) {
	if session.Metadata.Type != MetadataTypeBookingPayment || session.Metadata.BookingID == "" {
		return nil, fmt.Errorf("session %s is not a booking payment", session.ID)
	}
	if !session.Paid {
		return nil, models.ErrPaymentIncomplete
	}
	return ss.Settle(ctx, session.Metadata.BookingID, session.PaymentIntentID)
}
