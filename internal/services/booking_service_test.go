package services

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/sparktechagency/cleaning-service-backend-sub000/internal/helpers"
	"github.com/sparktechagency/cleaning-service-backend-sub000/internal/models"
)

type bookingFixture struct {
	svc       *BookingService
	repo      *fakeBookingRepo
	txns      *fakeTxnRepo
	catalog   *fakeCatalog
	gateway   *fakeGateway
	notifier  *recordingNotifier
	referrals *recordingReferrals

	ownerID    uuid.UUID
	providerID uuid.UUID
	serviceID  uuid.UUID
	now        time.Time
}

func newBookingFixture(t *testing.T) *bookingFixture {
	t.Helper()

	f := &bookingFixture{
		repo:       newFakeBookingRepo(),
		txns:       newFakeTxnRepo(),
		catalog:    newFakeCatalog(),
		gateway:    newFakeGateway(),
		notifier:   &recordingNotifier{},
		referrals:  &recordingReferrals{},
		ownerID:    uuid.New(),
		providerID: uuid.New(),
		serviceID:  uuid.New(),
		now:        monday.Add(8 * time.Hour),
	}

	f.catalog.services[f.serviceID] = &models.CleaningService{
		ID:            f.serviceID,
		ProviderID:    f.providerID,
		Name:          "Standard clean",
		HourlyRate:    40,
		BufferMinutes: 15,
	}
	f.catalog.providers[f.providerID] = &models.ProviderProfile{
		ID:              f.providerID,
		Schedule:        weekdaySchedule("monday", "09:00", "17:00"),
		PayoutAccountID: "acct_1",
	}

	fixed := func() time.Time { return f.now }
	availability := NewAvailabilityService(f.repo, f.catalog)
	availability.now = fixed
	ledger := NewLedgerService(f.txns, testLogger())
	refunds := NewRefundService(f.repo, f.catalog, f.gateway, ledger, f.notifier, testLogger())
	refunds.now = fixed
	f.svc = NewBookingService(f.repo, f.catalog, availability, f.gateway, refunds, f.notifier, f.referrals, testLogger())
	f.svc.now = fixed
	return f
}

func (f *bookingFixture) request(scheduledAt time.Time) *BookingRequest {
	return &BookingRequest{
		ServiceID:     f.serviceID,
		ScheduledAt:   scheduledAt,
		DurationHours: 2,
		Address:       models.AddressSnapshot{Street: "1 Main St", City: "Springfield", Phone: "555-0100"},
	}
}

// seedBooking drops a booking straight into the store in the given state.
func (f *bookingFixture) seedBooking(id string, status models.BookingStatus, pay models.PaymentStatus) *models.Booking {
	paidAt := f.now
	b := &models.Booking{
		ID:          id,
		OwnerID:     f.ownerID,
		ProviderID:  f.providerID,
		ServiceID:   f.serviceID,
		ScheduledAt: f.now.Add(4 * time.Hour),
		SlotEnd:     f.now.Add(6*time.Hour + 15*time.Minute),
		Status:      status,
		SlotActive:  status == models.BookingPending || status == models.BookingOngoing,
		Amount:      80,
		NetAmount:   80,
		Payment:     models.PaymentInfo{Status: pay},
		CreatedAt:   f.now,
	}
	if pay == models.PaymentPaid {
		b.Payment.PaymentIntentID = "pi_123"
		b.Payment.PaidAt = &paidAt
	}
	f.repo.bookings[id] = b
	return b
}

func TestRequestBooking(t *testing.T) {
	t.Parallel()

	t.Run("places a hold and returns the checkout URL", func(t *testing.T) {
		f := newBookingFixture(t)

		promise, err := f.svc.RequestBooking(context.Background(), f.ownerID, f.request(monday.Add(10*time.Hour)))
		if err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if promise.BookingID == "" || promise.CheckoutURL == "" {
			t.Fatalf("incomplete promise: %+v", promise)
		}

		hold, _ := f.repo.GetHold(context.Background(), promise.BookingID, f.now)
		if hold == nil {
			t.Fatalf("expected a live hold")
		}
		if hold.Amount != 80 || hold.NetAmount != 80 {
			t.Fatalf("expected 2h at 40/h, got amount %v net %v", hold.Amount, hold.NetAmount)
		}
		if !hold.ExpiresAt.Equal(f.now.Add(models.HoldTTL)) {
			t.Fatalf("hold TTL wrong: %v", hold.ExpiresAt)
		}
		if !hold.SlotEnd.Equal(monday.Add(12*time.Hour + 15*time.Minute)) {
			t.Fatalf("padded slot end wrong: %v", hold.SlotEnd)
		}
		if hold.CheckoutSessionID == "" {
			t.Fatalf("hold must carry the checkout session id")
		}
		if len(f.repo.bookings) != 0 {
			t.Fatalf("no booking may exist before settlement")
		}
	})

	t.Run("fractional rates land on cent boundaries", func(t *testing.T) {
		f := newBookingFixture(t)
		// 39.99*2 floats to 79.98000000000001 without rounding.
		f.catalog.services[f.serviceID].HourlyRate = 39.99

		promise, err := f.svc.RequestBooking(context.Background(), f.ownerID, f.request(monday.Add(10*time.Hour)))
		if err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		hold, _ := f.repo.GetHold(context.Background(), promise.BookingID, f.now)
		if hold.Amount != 79.98 || hold.NetAmount != 79.98 {
			t.Fatalf("expected 79.98 on the hold, got amount %v net %v", hold.Amount, hold.NetAmount)
		}
	})

	t.Run("credits are capped at the booking amount", func(t *testing.T) {
		f := newBookingFixture(t)
		req := f.request(monday.Add(10 * time.Hour))
		req.ApplyCredits = 500

		promise, err := f.svc.RequestBooking(context.Background(), f.ownerID, req)
		if err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		hold, _ := f.repo.GetHold(context.Background(), promise.BookingID, f.now)
		if hold.CreditsApplied != 80 || hold.NetAmount != 0 {
			t.Fatalf("expected full-credit booking, got credits %v net %v", hold.CreditsApplied, hold.NetAmount)
		}
	})

	t.Run("provider without payout account is rejected up front", func(t *testing.T) {
		f := newBookingFixture(t)
		f.catalog.providers[f.providerID].PayoutAccountID = ""

		_, err := f.svc.RequestBooking(context.Background(), f.ownerID, f.request(monday.Add(10*time.Hour)))
		if !errors.Is(err, models.ErrPayoutMissing) {
			t.Fatalf("expected ErrPayoutMissing, got %v", err)
		}
		if len(f.repo.holds) != 0 {
			t.Fatalf("no hold may be placed without a payout destination")
		}
	})

	t.Run("gateway failure leaves the hold to age out", func(t *testing.T) {
		f := newBookingFixture(t)
		f.gateway.failCheckout = true

		_, err := f.svc.RequestBooking(context.Background(), f.ownerID, f.request(monday.Add(10*time.Hour)))
		if err == nil {
			t.Fatalf("expected the gateway failure to surface")
		}
		// The hold stays behind and simply expires on its TTL.
		if len(f.repo.holds) != 1 {
			t.Fatalf("expected the orphaned hold to remain, got %d", len(f.repo.holds))
		}
		if len(f.repo.bookings) != 0 {
			t.Fatalf("no booking may exist after a failed checkout")
		}
	})

	t.Run("unknown service", func(t *testing.T) {
		f := newBookingFixture(t)
		req := f.request(monday.Add(10 * time.Hour))
		req.ServiceID = uuid.New()

		_, err := f.svc.RequestBooking(context.Background(), f.ownerID, req)
		if !errors.Is(err, models.ErrServiceNotFound) {
			t.Fatalf("expected ErrServiceNotFound, got %v", err)
		}
	})

	t.Run("two requests for the same exact slot get one hold", func(t *testing.T) {
		f := newBookingFixture(t)
		slot := monday.Add(10 * time.Hour)

		var wg sync.WaitGroup
		errs := make([]error, 2)
		for i := 0; i < 2; i++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				_, errs[i] = f.svc.RequestBooking(context.Background(), uuid.New(), f.request(slot))
			}(i)
		}
		wg.Wait()

		winners, conflicts := 0, 0
		for _, err := range errs {
			switch {
			case err == nil:
				winners++
			case errors.Is(err, models.ErrSlotConflict):
				conflicts++
			default:
				t.Fatalf("unexpected error: %v", err)
			}
		}
		if winners != 1 || conflicts != 1 {
			t.Fatalf("expected one winner and one conflict, got %d/%d", winners, conflicts)
		}
		if len(f.repo.holds) != 1 {
			t.Fatalf("expected exactly one hold, got %d", len(f.repo.holds))
		}
	})
}

func TestProviderActions(t *testing.T) {
	t.Parallel()

	t.Run("accept moves pending to ongoing", func(t *testing.T) {
		f := newBookingFixture(t)
		f.seedBooking("b1", models.BookingPending, models.PaymentPaid)

		booking, err := f.svc.Accept(context.Background(), f.providerID, "b1")
		if err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if booking.Status != models.BookingOngoing {
			t.Fatalf("expected ongoing, got %s", booking.Status)
		}
		if !f.notifier.has(models.NotifyBookingAccepted) {
			t.Fatalf("owner should hear about the acceptance")
		}
	})

	t.Run("only the booked provider may accept", func(t *testing.T) {
		f := newBookingFixture(t)
		f.seedBooking("b1", models.BookingPending, models.PaymentPaid)

		_, err := f.svc.Accept(context.Background(), uuid.New(), "b1")
		if !errors.Is(err, models.ErrNotBookingParty) {
			t.Fatalf("expected ErrNotBookingParty, got %v", err)
		}
	})

	t.Run("accept twice fails", func(t *testing.T) {
		f := newBookingFixture(t)
		f.seedBooking("b1", models.BookingPending, models.PaymentPaid)

		if _, err := f.svc.Accept(context.Background(), f.providerID, "b1"); err != nil {
			t.Fatalf("first accept: %v", err)
		}
		_, err := f.svc.Accept(context.Background(), f.providerID, "b1")
		if !errors.Is(err, models.ErrInvalidTransition) {
			t.Fatalf("expected ErrInvalidTransition, got %v", err)
		}
	})

	t.Run("rejecting a paid booking refunds it", func(t *testing.T) {
		f := newBookingFixture(t)
		f.seedBooking("b1", models.BookingPending, models.PaymentPaid)

		booking, err := f.svc.Reject(context.Background(), f.providerID, "b1")
		if err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if booking.Status != models.BookingCancelled || booking.Payment.Status != models.PaymentRefunded {
			t.Fatalf("expected cancelled+refunded, got %s/%s", booking.Status, booking.Payment.Status)
		}
		if f.gateway.refundCount() != 1 {
			t.Fatalf("expected one gateway refund, got %d", f.gateway.refundCount())
		}
		if booking.SlotActive {
			t.Fatalf("rejected booking must release its slot")
		}
	})
}

func TestCancel(t *testing.T) {
	t.Parallel()

	t.Run("owner cancels a paid pending booking with refund", func(t *testing.T) {
		f := newBookingFixture(t)
		f.seedBooking("b1", models.BookingPending, models.PaymentPaid)

		booking, err := f.svc.Cancel(context.Background(), f.ownerID, "b1")
		if err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if booking.Payment.Status != models.PaymentRefunded {
			t.Fatalf("expected refunded, got %s", booking.Payment.Status)
		}
	})

	t.Run("ongoing booking cannot be cancelled", func(t *testing.T) {
		f := newBookingFixture(t)
		f.seedBooking("b1", models.BookingOngoing, models.PaymentPaid)

		_, err := f.svc.Cancel(context.Background(), f.ownerID, "b1")
		if !errors.Is(err, models.ErrInvalidTransition) {
			t.Fatalf("expected ErrInvalidTransition, got %v", err)
		}
	})
}

func TestCompletionFlow(t *testing.T) {
	t.Parallel()

	t.Run("issue, redeem, refer", func(t *testing.T) {
		f := newBookingFixture(t)
		f.seedBooking("b1", models.BookingOngoing, models.PaymentPaid)

		issue, err := f.svc.IssueCompletionCode(context.Background(), f.providerID, "b1")
		if err != nil {
			t.Fatalf("issue: %v", err)
		}
		if issue.Code == "" {
			t.Fatalf("expected a code")
		}

		raw, err := base64.StdEncoding.DecodeString(issue.QRPayload)
		if err != nil {
			t.Fatalf("qr payload is not base64: %v", err)
		}
		var qr helpers.CompletionQRPayload
		if err := json.Unmarshal(raw, &qr); err != nil {
			t.Fatalf("qr payload is not json: %v", err)
		}
		if qr.BookingID != "b1" || qr.Code != issue.Code {
			t.Fatalf("qr payload mismatch: %+v", qr)
		}

		booking, err := f.svc.Complete(context.Background(), f.ownerID, "b1", issue.Code)
		if err != nil {
			t.Fatalf("complete: %v", err)
		}
		if booking.Status != models.BookingCompleted {
			t.Fatalf("expected completed, got %s", booking.Status)
		}
		if booking.SlotActive {
			t.Fatalf("completed booking must release its slot")
		}
		if len(f.referrals.users) != 2 {
			t.Fatalf("both parties accrue referrals, got %d", len(f.referrals.users))
		}
	})

	t.Run("wrong code does not complete", func(t *testing.T) {
		f := newBookingFixture(t)
		f.seedBooking("b1", models.BookingOngoing, models.PaymentPaid)

		if _, err := f.svc.IssueCompletionCode(context.Background(), f.providerID, "b1"); err != nil {
			t.Fatalf("issue: %v", err)
		}
		_, err := f.svc.Complete(context.Background(), f.ownerID, "b1", "not-the-code")
		if !errors.Is(err, models.ErrInvalidCompletionCode) {
			t.Fatalf("expected ErrInvalidCompletionCode, got %v", err)
		}
		booking, _ := f.repo.GetBooking(context.Background(), "b1")
		if booking.Status != models.BookingOngoing {
			t.Fatalf("booking must stay ongoing, got %s", booking.Status)
		}
	})

	t.Run("complete before any code was issued", func(t *testing.T) {
		f := newBookingFixture(t)
		f.seedBooking("b1", models.BookingOngoing, models.PaymentPaid)

		_, err := f.svc.Complete(context.Background(), f.ownerID, "b1", "whatever")
		if !errors.Is(err, models.ErrCompletionCodeMissing) {
			t.Fatalf("expected ErrCompletionCodeMissing, got %v", err)
		}
	})

	t.Run("code cannot be issued for a pending booking", func(t *testing.T) {
		f := newBookingFixture(t)
		f.seedBooking("b1", models.BookingPending, models.PaymentPaid)

		_, err := f.svc.IssueCompletionCode(context.Background(), f.providerID, "b1")
		if !errors.Is(err, models.ErrInvalidTransition) {
			t.Fatalf("expected ErrInvalidTransition, got %v", err)
		}
	})
}

func TestRate(t *testing.T) {
	t.Parallel()

	t.Run("folds the rating into the service average", func(t *testing.T) {
		f := newBookingFixture(t)
		f.seedBooking("b1", models.BookingCompleted, models.PaymentPaid)
		f.catalog.services[f.serviceID].RatingAvg = 4.0
		f.catalog.services[f.serviceID].RatingCount = 2

		booking, err := f.svc.Rate(context.Background(), f.ownerID, "b1", 5, "spotless")
		if err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if booking.Rating != 5 || booking.Review != "spotless" {
			t.Fatalf("rating not recorded: %+v", booking)
		}

		svc, _ := f.catalog.GetService(context.Background(), f.serviceID)
		if svc.RatingCount != 3 {
			t.Fatalf("expected count 3, got %d", svc.RatingCount)
		}
		want := (4.0*2 + 5) / 3
		if svc.RatingAvg != want {
			t.Fatalf("expected avg %v, got %v", want, svc.RatingAvg)
		}
	})

	t.Run("a booking is rated once", func(t *testing.T) {
		f := newBookingFixture(t)
		f.seedBooking("b1", models.BookingCompleted, models.PaymentPaid)

		if _, err := f.svc.Rate(context.Background(), f.ownerID, "b1", 4, ""); err != nil {
			t.Fatalf("first rating: %v", err)
		}
		_, err := f.svc.Rate(context.Background(), f.ownerID, "b1", 1, "changed my mind")
		if !errors.Is(err, models.ErrAlreadyRated) {
			t.Fatalf("expected ErrAlreadyRated, got %v", err)
		}
	})

	t.Run("only completed bookings take ratings", func(t *testing.T) {
		f := newBookingFixture(t)
		f.seedBooking("b1", models.BookingOngoing, models.PaymentPaid)

		_, err := f.svc.Rate(context.Background(), f.ownerID, "b1", 5, "")
		if !errors.Is(err, models.ErrInvalidTransition) {
			t.Fatalf("expected ErrInvalidTransition, got %v", err)
		}
	})

	t.Run("rating is bounded 1..5", func(t *testing.T) {
		f := newBookingFixture(t)
		f.seedBooking("b1", models.BookingCompleted, models.PaymentPaid)

		for _, r := range []int{0, 6} {
			if _, err := f.svc.Rate(context.Background(), f.ownerID, "b1", r, ""); !errors.Is(err, models.ErrInvalidTransition) {
				t.Fatalf("rating %d: expected ErrInvalidTransition, got %v", r, err)
			}
		}
	})
}

func TestListBookings(t *testing.T) {
	t.Parallel()

	f := newBookingFixture(t)
	f.seedBooking("b1", models.BookingPending, models.PaymentPaid)
	f.seedBooking("b2", models.BookingOngoing, models.PaymentPaid)
	f.seedBooking("b3", models.BookingCompleted, models.PaymentPaid)

	bookings, total, err := f.svc.ListForOwner(context.Background(), f.ownerID, 0, 2)
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if len(bookings) != 2 {
		t.Fatalf("expected a page of 2, got %d", len(bookings))
	}
	// Total reflects the whole collection, not the page.
	if total != 3 {
		t.Fatalf("expected total 3, got %d", total)
	}

	bookings, total, err = f.svc.ListForProvider(context.Background(), f.providerID, 2, 2)
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if len(bookings) != 1 || total != 3 {
		t.Fatalf("expected last page of 1 with total 3, got %d/%d", len(bookings), total)
	}

	if _, _, err := f.svc.ListForOwner(context.Background(), f.ownerID, -1, 2); err == nil {
		t.Fatalf("expected invalid offset to be rejected")
	}
	if _, _, err := f.svc.ListForOwner(context.Background(), f.ownerID, 0, 0); err == nil {
		t.Fatalf("expected invalid limit to be rejected")
	}
}

func TestGetBookingForParty(t *testing.T) {
	t.Parallel()

	f := newBookingFixture(t)
	f.seedBooking("b1", models.BookingPending, models.PaymentPaid)

	if _, err := f.svc.GetBookingForParty(context.Background(), f.ownerID, "b1"); err != nil {
		t.Fatalf("owner read: %v", err)
	}
	if _, err := f.svc.GetBookingForParty(context.Background(), f.providerID, "b1"); err != nil {
		t.Fatalf("provider read: %v", err)
	}
	if _, err := f.svc.GetBookingForParty(context.Background(), uuid.New(), "b1"); !errors.Is(err, models.ErrNotBookingParty) {
		t.Fatalf("expected ErrNotBookingParty, got %v", err)
	}
	if _, err := f.svc.GetBookingForParty(context.Background(), f.ownerID, "missing"); !errors.Is(err, models.ErrBookingNotFound) {
		t.Fatalf("expected ErrBookingNotFound, got %v", err)
	}
}
