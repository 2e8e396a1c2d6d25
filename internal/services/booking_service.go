package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"time"

	"github.com/google/uuid"
	"github.com/sparktechagency/cleaning-service-backend-sub000/internal/helpers"
	"github.com/sparktechagency/cleaning-service-backend-sub000/internal/models"
)

// BookingService owns the reservation flow (hold + checkout session) and the
// provider/owner actions on confirmed bookings. Bookings themselves are only
// ever created by the settlement reconciler.
type BookingService struct {
	bookings     models.BookingRepo
	catalog      models.CatalogRepo
	availability *AvailabilityService
	gateway      PaymentGateway
	refunds      *RefundService
	notifier     Notifier
	referrals    ReferralAccruer
	logger       *slog.Logger
	now          func() time.Time
}

func NewBookingService(
	bookings models.BookingRepo,
	catalog models.CatalogRepo,
	availability *AvailabilityService,
	gateway PaymentGateway,
	refunds *RefundService,
	notifier Notifier,
	referrals ReferralAccruer,
	logger *slog.Logger,
) *BookingService {
	return &BookingService{
		bookings:     bookings,
		catalog:      catalog,
		availability: availability,
		gateway:      gateway,
		refunds:      refunds,
		notifier:     notifier,
		referrals:    referrals,
		logger:       logger,
		now:          time.Now,
	}
}

type BookingRequest struct {
	ServiceID     uuid.UUID              `json:"service_id" validate:"required"`
	ScheduledAt   time.Time              `json:"scheduled_at" validate:"required"`
	DurationHours int                    `json:"duration_hours" validate:"required,min=1,max=12"`
	Address       models.AddressSnapshot `json:"address" validate:"required"`
	ApplyCredits  float64                `json:"apply_credits" validate:"gte=0"`
}

type BookingPromise struct {
	BookingID   string `json:"booking_id"`
	CheckoutURL string `json:"checkout_url"`
}

// RequestBooking validates the slot, reserves it with a 10-minute hold and
// returns the hosted-checkout URL. No booking exists until payment settles;
// if the gateway call fails the hold simply ages out on its TTL.
func (bs *BookingService) RequestBooking(ctx context.Context, ownerID uuid.UUID, req *BookingRequest) (*BookingPromise, error) {
	if err := models.Validate.Struct(req); err != nil {
		return nil, fmt.Errorf("invalid booking request: %w", err)
	}

	svc, err := bs.catalog.GetService(ctx, req.ServiceID)
	if err != nil {
		return nil, err
	}
	provider, err := bs.catalog.GetProvider(ctx, svc.ProviderID)
	if err != nil {
		return nil, err
	}
	// Surface a missing payout destination before taking money, not at refund
	// time.
	if provider.PayoutAccountID == "" {
		return nil, models.ErrPayoutMissing
	}

	if err := bs.availability.EnsureSlotFree(ctx, svc.ProviderID, provider.Schedule, req.ScheduledAt, req.DurationHours, svc.BufferMinutes); err != nil {
		return nil, err
	}

	amount := roundToCent(svc.HourlyRate * float64(req.DurationHours))
	credits := req.ApplyCredits
	if credits > amount {
		credits = amount
	}
	net := roundToCent(amount - credits)

	now := bs.now().UTC()
	_, slotEnd := models.SlotInterval(req.ScheduledAt, req.DurationHours, svc.BufferMinutes)
	hold := &models.Hold{
		ID:             uuid.NewString(),
		OwnerID:        ownerID,
		ProviderID:     svc.ProviderID,
		ServiceID:      svc.ID,
		ScheduledAt:    req.ScheduledAt,
		DurationHours:  req.DurationHours,
		BufferMinutes:  svc.BufferMinutes,
		SlotEnd:        slotEnd,
		Address:        req.Address,
		Amount:         amount,
		CreditsApplied: credits,
		NetAmount:      net,
		CreatedAt:      now,
		ExpiresAt:      now.Add(models.HoldTTL),
	}
	if err := bs.bookings.InsertHold(ctx, hold); err != nil {
		return nil, err
	}

	session, err := bs.gateway.CreateCheckoutSession(ctx, CheckoutParams{
		BookingID:   hold.ID,
		OwnerID:     ownerID.String(),
		ProviderID:  svc.ProviderID.String(),
		Amount:      net,
		Currency:    "usd",
		Description: svc.Name,
	})
	if err != nil {
		// The hold expires on its own; nothing was promised to the client.
		return nil, fmt.Errorf("failed to create checkout session: %w", err)
	}
	if err := bs.bookings.SetHoldCheckoutSession(ctx, hold.ID, session.ID); err != nil {
		return nil, err
	}

	return &BookingPromise{BookingID: hold.ID, CheckoutURL: session.URL}, nil
}

// GetBookingForParty returns the booking if the user is the owner or the
// provider on it.
func (bs *BookingService) GetBookingForParty(ctx context.Context, userID uuid.UUID, bookingID string) (*models.Booking, error) {
	booking, err := bs.bookings.GetBooking(ctx, bookingID)
	if err != nil {
		return nil, err
	}
	if booking == nil {
		return nil, models.ErrBookingNotFound
	}
	if booking.OwnerID != userID && booking.ProviderID != userID {
		return nil, models.ErrNotBookingParty
	}
	return booking, nil
}

// ListForOwner returns one page of the owner's bookings plus the collection
// total for pagination.
func (bs *BookingService) ListForOwner(ctx context.Context, ownerID uuid.UUID, offset, limit int) ([]*models.Booking, int64, error) {
	if offset < 0 || limit <= 0 {
		return nil, 0, fmt.Errorf("invalid offset or limit")
	}
	bookings, err := bs.bookings.ListBookingsByOwner(ctx, ownerID, offset, limit)
	if err != nil {
		return nil, 0, err
	}
	total, err := bs.bookings.CountBookingsByOwner(ctx, ownerID)
	if err != nil {
		return nil, 0, err
	}
	return bookings, total, nil
}

func (bs *BookingService) ListForProvider(ctx context.Context, providerID uuid.UUID, offset, limit int) ([]*models.Booking, int64, error) {
	if offset < 0 || limit <= 0 {
		return nil, 0, fmt.Errorf("invalid offset or limit")
	}
	bookings, err := bs.bookings.ListBookingsByProvider(ctx, providerID, offset, limit)
	if err != nil {
		return nil, 0, err
	}
	total, err := bs.bookings.CountBookingsByProvider(ctx, providerID)
	if err != nil {
		return nil, 0, err
	}
	return bookings, total, nil
}

// Accept moves a pending booking to ongoing. Provider only.
func (bs *BookingService) Accept(ctx context.Context, providerID uuid.UUID, bookingID string) (*models.Booking, error) {
	booking, err := bs.getForProvider(ctx, providerID, bookingID)
	if err != nil {
		return nil, err
	}
	if err := booking.CanAccept(providerID); err != nil {
		return nil, err
	}

	updated, err := bs.bookings.TransitionStatus(ctx, bookingID, models.BookingPending, models.BookingOngoing, false)
	if err != nil {
		return nil, err
	}
	bs.notifier.Notify(ctx, updated.OwnerID, models.NotifyBookingAccepted,
		"Booking accepted", "Your provider accepted the booking.",
		models.BookingEventData{BookingID: updated.ID, ScheduledAt: updated.ScheduledAt, Status: updated.Status})
	return updated, nil
}

// Reject cancels a pending booking on the provider's behalf. A paid booking
// is refunded first; the refund path performs the cancellation itself.
func (bs *BookingService) Reject(ctx context.Context, providerID uuid.UUID, bookingID string) (*models.Booking, error) {
	booking, err := bs.getForProvider(ctx, providerID, bookingID)
	if err != nil {
		return nil, err
	}
	if err := booking.CanReject(providerID); err != nil {
		return nil, err
	}
	return bs.cancelWithRefund(ctx, booking, models.NotifyBookingRejected,
		"Booking rejected", "The provider rejected your booking request.")
}

// Cancel cancels a pending booking on the owner's behalf, refunding first
// when already paid.
func (bs *BookingService) Cancel(ctx context.Context, ownerID uuid.UUID, bookingID string) (*models.Booking, error) {
	booking, err := bs.bookings.GetBooking(ctx, bookingID)
	if err != nil {
		return nil, err
	}
	if booking == nil {
		return nil, models.ErrBookingNotFound
	}
	if err := booking.CanCancel(ownerID); err != nil {
		return nil, err
	}
	return bs.cancelWithRefund(ctx, booking, models.NotifyBookingCancelled,
		"Booking cancelled", "The customer cancelled the booking.")
}

func (bs *BookingService) cancelWithRefund(ctx context.Context, booking *models.Booking, kind models.NotificationType, title, message string) (*models.Booking, error) {
	if booking.Payment.Status == models.PaymentPaid {
		// Never strand money on a cancelled slot: the administrative refund
		// sets status=cancelled and payment.status=refunded atomically.
		return bs.refunds.AdminRefund(ctx, booking.ID)
	}

	updated, err := bs.bookings.TransitionStatus(ctx, booking.ID, models.BookingPending, models.BookingCancelled, true)
	if err != nil {
		return nil, err
	}
	data := models.BookingEventData{BookingID: updated.ID, ScheduledAt: updated.ScheduledAt, Status: updated.Status}
	bs.notifier.Notify(ctx, updated.OwnerID, kind, title, message, data)
	bs.notifier.Notify(ctx, updated.ProviderID, kind, title, message, data)
	return updated, nil
}

type CompletionCodeIssue struct {
	Code      string `json:"code"`
	QRPayload string `json:"qr_payload"`
}

// IssueCompletionCode generates the one-time token for an ongoing booking and
// returns it with its QR rendering. Re-issuing replaces the previous token.
func (bs *BookingService) IssueCompletionCode(ctx context.Context, providerID uuid.UUID, bookingID string) (*CompletionCodeIssue, error) {
	booking, err := bs.getForProvider(ctx, providerID, bookingID)
	if err != nil {
		return nil, err
	}
	if err := booking.CanIssueCompletionCode(providerID); err != nil {
		return nil, err
	}

	code, err := helpers.NewCompletionCode()
	if err != nil {
		return nil, err
	}
	issuedAt := bs.now().UTC()
	if _, err := bs.bookings.SetCompletionCode(ctx, bookingID, code, issuedAt); err != nil {
		return nil, err
	}

	payload, err := helpers.EncodeQRPayload(helpers.CompletionQRPayload{
		BookingID:  bookingID,
		Code:       code,
		ProviderID: providerID,
		IssuedAt:   issuedAt,
	})
	if err != nil {
		return nil, err
	}
	return &CompletionCodeIssue{Code: code, QRPayload: payload}, nil
}

// Complete redeems the completion code and finishes the booking, then fires
// the referral accrual for both parties. Accrual is additive and never blocks
// completion.
func (bs *BookingService) Complete(ctx context.Context, ownerID uuid.UUID, bookingID, code string) (*models.Booking, error) {
	booking, err := bs.bookings.GetBooking(ctx, bookingID)
	if err != nil {
		return nil, err
	}
	if booking == nil {
		return nil, models.ErrBookingNotFound
	}
	if err := booking.CanComplete(ownerID, code); err != nil {
		return nil, err
	}

	updated, err := bs.bookings.CompleteWithCode(ctx, bookingID, code, bs.now().UTC())
	if errors.Is(err, models.ErrInvalidTransition) {
		// The stored code changed between the read and the update.
		return nil, models.ErrInvalidCompletionCode
	}
	if err != nil {
		return nil, err
	}

	bs.referrals.AccrueOnCompletion(ctx, updated.OwnerID)
	bs.referrals.AccrueOnCompletion(ctx, updated.ProviderID)

	data := models.BookingEventData{BookingID: updated.ID, ScheduledAt: updated.ScheduledAt, Status: updated.Status}
	bs.notifier.Notify(ctx, updated.ProviderID, models.NotifyBookingCompleted,
		"Booking completed", "The customer confirmed completion.", data)
	return updated, nil
}

// Rate records the one-time rating/review on a completed booking and folds
// the rating into the service's running average.
func (bs *BookingService) Rate(ctx context.Context, ownerID uuid.UUID, bookingID string, rating int, review string) (*models.Booking, error) {
	booking, err := bs.bookings.GetBooking(ctx, bookingID)
	if err != nil {
		return nil, err
	}
	if booking == nil {
		return nil, models.ErrBookingNotFound
	}
	if err := booking.CanRate(ownerID, rating); err != nil {
		return nil, err
	}

	updated, err := bs.bookings.SetRating(ctx, bookingID, rating, review, bs.now().UTC())
	if errors.Is(err, models.ErrInvalidTransition) {
		return nil, models.ErrAlreadyRated
	}
	if err != nil {
		return nil, err
	}

	if err := bs.catalog.ApplyServiceRating(ctx, updated.ServiceID, rating); err != nil {
		bs.logger.Error("failed to update service rating average",
			"service_id", updated.ServiceID,
			"booking_id", updated.ID,
			"error", err,
		)
	}
	return updated, nil
}

// roundToCent keeps stored amounts on exact cent boundaries so they agree
// with the integer cents sent to the gateway.
func roundToCent(v float64) float64 {
	return math.Round(v*100) / 100
}

func (bs *BookingService) getForProvider(ctx context.Context, providerID uuid.UUID, bookingID string) (*models.Booking, error) {
	booking, err := bs.bookings.GetBooking(ctx, bookingID)
	if err != nil {
		return nil, err
	}
	if booking == nil {
		return nil, models.ErrBookingNotFound
	}
	if booking.ProviderID != providerID {
		return nil, models.ErrNotBookingParty
	}
	return booking, nil
}
