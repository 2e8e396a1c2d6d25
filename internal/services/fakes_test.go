package services

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sparktechagency/cleaning-service-backend-sub000/internal/models"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// fakeBookingRepo mirrors the Mongo store's semantics in memory, including
// the unique (provider_id, scheduled_at) constraint and the expires_at
// filtering on holds, so the same races the indexes resolve in production can
// be exercised from concurrent tests.
type fakeBookingRepo struct {
	mu       sync.Mutex
	holds    map[string]*models.Hold
	bookings map[string]*models.Booking
}

func newFakeBookingRepo() *fakeBookingRepo {
	return &fakeBookingRepo{
		holds:    make(map[string]*models.Hold),
		bookings: make(map[string]*models.Booking),
	}
}

func (f *fakeBookingRepo) slotTaken(providerID uuid.UUID, at time.Time) bool {
	for _, h := range f.holds {
		if h.ProviderID == providerID && h.ScheduledAt.Equal(at) {
			return true
		}
	}
	for _, b := range f.bookings {
		if b.SlotActive && b.ProviderID == providerID && b.ScheduledAt.Equal(at) {
			return true
		}
	}
	return false
}

func (f *fakeBookingRepo) InsertHold(_ context.Context, hold *models.Hold) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.slotTaken(hold.ProviderID, hold.ScheduledAt) {
		return models.ErrSlotConflict
	}
	cp := *hold
	f.holds[hold.ID] = &cp
	return nil
}

func (f *fakeBookingRepo) SetHoldCheckoutSession(_ context.Context, holdID, sessionID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	h, ok := f.holds[holdID]
	if !ok {
		return models.ErrHoldNotFound
	}
	h.CheckoutSessionID = sessionID
	return nil
}

func (f *fakeBookingRepo) GetHold(_ context.Context, id string, now time.Time) (*models.Hold, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	h, ok := f.holds[id]
	if !ok || !h.Live(now) {
		return nil, nil
	}
	cp := *h
	return &cp, nil
}

func (f *fakeBookingRepo) HasOverlap(_ context.Context, providerID uuid.UUID, start, end, now time.Time) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, h := range f.holds {
		if h.ProviderID == providerID && h.Live(now) && models.Overlaps(start, end, h.ScheduledAt, h.SlotEnd) {
			return true, nil
		}
	}
	for _, b := range f.bookings {
		if b.SlotActive && b.ProviderID == providerID && models.Overlaps(start, end, b.ScheduledAt, b.SlotEnd) {
			return true, nil
		}
	}
	return false, nil
}

func (f *fakeBookingRepo) ListActiveIntervals(_ context.Context, providerID uuid.UUID, from, to, now time.Time) ([]models.Interval, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []models.Interval
	for _, h := range f.holds {
		if h.ProviderID == providerID && h.Live(now) && models.Overlaps(from, to, h.ScheduledAt, h.SlotEnd) {
			out = append(out, models.Interval{Start: h.ScheduledAt, End: h.SlotEnd})
		}
	}
	for _, b := range f.bookings {
		if b.SlotActive && b.ProviderID == providerID && models.Overlaps(from, to, b.ScheduledAt, b.SlotEnd) {
			out = append(out, models.Interval{Start: b.ScheduledAt, End: b.SlotEnd})
		}
	}
	return out, nil
}

func (f *fakeBookingRepo) PromoteHold(_ context.Context, holdID string, now time.Time, build func(*models.Hold) *models.Booking) (*models.Booking, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	h, ok := f.holds[holdID]
	if !ok || !h.Live(now) {
		return nil, models.ErrHoldNotFound
	}
	delete(f.holds, holdID)
	booking := build(h)
	cp := *booking
	f.bookings[booking.ID] = &cp
	return booking, nil
}

func (f *fakeBookingRepo) GetBooking(_ context.Context, id string) (*models.Booking, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	b, ok := f.bookings[id]
	if !ok {
		return nil, nil
	}
	cp := *b
	return &cp, nil
}

func (f *fakeBookingRepo) ListBookingsByOwner(_ context.Context, ownerID uuid.UUID, offset, limit int) ([]*models.Booking, error) {
	return f.listPage(func(b *models.Booking) bool { return b.OwnerID == ownerID }, offset, limit), nil
}

func (f *fakeBookingRepo) ListBookingsByProvider(_ context.Context, providerID uuid.UUID, offset, limit int) ([]*models.Booking, error) {
	return f.listPage(func(b *models.Booking) bool { return b.ProviderID == providerID }, offset, limit), nil
}

func (f *fakeBookingRepo) listPage(match func(*models.Booking) bool, offset, limit int) []*models.Booking {
	f.mu.Lock()
	defer f.mu.Unlock()
	all := []*models.Booking{}
	for _, b := range f.bookings {
		if match(b) {
			cp := *b
			all = append(all, &cp)
		}
	}
	if offset >= len(all) {
		return []*models.Booking{}
	}
	all = all[offset:]
	if limit < len(all) {
		all = all[:limit]
	}
	return all
}

func (f *fakeBookingRepo) CountBookingsByOwner(_ context.Context, ownerID uuid.UUID) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var n int64
	for _, b := range f.bookings {
		if b.OwnerID == ownerID {
			n++
		}
	}
	return n, nil
}

func (f *fakeBookingRepo) CountBookingsByProvider(_ context.Context, providerID uuid.UUID) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var n int64
	for _, b := range f.bookings {
		if b.ProviderID == providerID {
			n++
		}
	}
	return n, nil
}

func (f *fakeBookingRepo) TransitionStatus(_ context.Context, id string, from, to models.BookingStatus, releaseSlot bool) (*models.Booking, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	b, ok := f.bookings[id]
	if !ok || b.Status != from {
		return nil, models.ErrInvalidTransition
	}
	b.Status = to
	if releaseSlot {
		b.SlotActive = false
	}
	cp := *b
	return &cp, nil
}

func (f *fakeBookingRepo) SetCompletionCode(_ context.Context, id, code string, issuedAt time.Time) (*models.Booking, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	b, ok := f.bookings[id]
	if !ok || b.Status != models.BookingOngoing {
		return nil, models.ErrInvalidTransition
	}
	b.CompletionCode = code
	b.CompletionCodeIssuedAt = &issuedAt
	cp := *b
	return &cp, nil
}

func (f *fakeBookingRepo) CompleteWithCode(_ context.Context, id, code string, at time.Time) (*models.Booking, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	b, ok := f.bookings[id]
	if !ok || b.Status != models.BookingOngoing || b.CompletionCode != code {
		return nil, models.ErrInvalidTransition
	}
	b.Status = models.BookingCompleted
	b.SlotActive = false
	b.UpdatedAt = at
	cp := *b
	return &cp, nil
}

func (f *fakeBookingRepo) SetRating(_ context.Context, id string, rating int, review string, at time.Time) (*models.Booking, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	b, ok := f.bookings[id]
	if !ok || b.Status != models.BookingCompleted || b.RatedAt != nil {
		return nil, models.ErrInvalidTransition
	}
	b.Rating = rating
	b.Review = review
	b.RatedAt = &at
	cp := *b
	return &cp, nil
}

func (f *fakeBookingRepo) MarkRefunded(_ context.Context, id, refundID string, at time.Time) (*models.Booking, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	b, ok := f.bookings[id]
	if !ok || b.Payment.Status != models.PaymentPaid {
		return nil, models.ErrInvalidTransition
	}
	b.Payment.Status = models.PaymentRefunded
	b.Payment.RefundID = refundID
	b.Payment.RefundedAt = &at
	b.Status = models.BookingCancelled
	b.SlotActive = false
	cp := *b
	return &cp, nil
}

// fakeTxnRepo enforces one row per (booking, type), like the partial unique
// index on the transactions collection.
type fakeTxnRepo struct {
	mu   sync.Mutex
	rows []*models.Transaction
}

func newFakeTxnRepo() *fakeTxnRepo { return &fakeTxnRepo{} }

func (f *fakeTxnRepo) InsertTransaction(_ context.Context, txn *models.Transaction) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if txn.Source.BookingID != "" {
		for _, r := range f.rows {
			if r.Source.BookingID == txn.Source.BookingID && r.Type == txn.Type {
				return models.ErrTransactionExists
			}
		}
	}
	cp := *txn
	f.rows = append(f.rows, &cp)
	return nil
}

func (f *fakeTxnRepo) FindByBookingAndType(_ context.Context, bookingID string, txnType models.TransactionType) (*models.Transaction, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, r := range f.rows {
		if r.Source.BookingID == bookingID && r.Type == txnType {
			cp := *r
			return &cp, nil
		}
	}
	return nil, nil
}

func (f *fakeTxnRepo) MarkReversed(_ context.Context, txnID, reversedByTxnID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, r := range f.rows {
		if r.ID == txnID {
			r.Status = models.TxnRefunded
			r.ReversedByTxnID = reversedByTxnID
			return nil
		}
	}
	return fmt.Errorf("transaction %s not found", txnID)
}

func (f *fakeTxnRepo) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.rows)
}

type fakeCatalog struct {
	mu        sync.Mutex
	services  map[uuid.UUID]*models.CleaningService
	providers map[uuid.UUID]*models.ProviderProfile
}

func newFakeCatalog() *fakeCatalog {
	return &fakeCatalog{
		services:  make(map[uuid.UUID]*models.CleaningService),
		providers: make(map[uuid.UUID]*models.ProviderProfile),
	}
}

func (f *fakeCatalog) GetService(_ context.Context, id uuid.UUID) (*models.CleaningService, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	svc, ok := f.services[id]
	if !ok {
		return nil, models.ErrServiceNotFound
	}
	cp := *svc
	return &cp, nil
}

func (f *fakeCatalog) GetProvider(_ context.Context, id uuid.UUID) (*models.ProviderProfile, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	p, ok := f.providers[id]
	if !ok {
		return nil, models.ErrProviderNotFound
	}
	cp := *p
	return &cp, nil
}

func (f *fakeCatalog) ApplyServiceRating(_ context.Context, serviceID uuid.UUID, rating int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	svc, ok := f.services[serviceID]
	if !ok {
		return models.ErrServiceNotFound
	}
	svc.RatingAvg = (svc.RatingAvg*float64(svc.RatingCount) + float64(rating)) / float64(svc.RatingCount+1)
	svc.RatingCount++
	return nil
}

// recordingNotifier captures delivered notifications for assertions.
type recordingNotifier struct {
	mu    sync.Mutex
	kinds []models.NotificationType
}

func (r *recordingNotifier) Notify(_ context.Context, _ uuid.UUID, kind models.NotificationType, _, _ string, _ models.BookingEventData) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.kinds = append(r.kinds, kind)
}

func (r *recordingNotifier) has(kind models.NotificationType) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, k := range r.kinds {
		if k == kind {
			return true
		}
	}
	return false
}

type recordingReferrals struct {
	mu    sync.Mutex
	users []uuid.UUID
}

func (r *recordingReferrals) AccrueOnCompletion(_ context.Context, userID uuid.UUID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.users = append(r.users, userID)
}

// fakeGateway stands in for the payment processor. beforeRefund runs just
// ahead of CreateRefund's outcome, which lets tests interleave a competing
// caller between the eligibility guards and the gateway call.
type fakeGateway struct {
	mu             sync.Mutex
	sessions       map[string]*CheckoutSession
	refunds        []string
	failCheckout   bool
	failRefund     bool
	beforeRefund   func()
	reverseFlagged bool
}

func newFakeGateway() *fakeGateway {
	return &fakeGateway{sessions: make(map[string]*CheckoutSession)}
}

func (g *fakeGateway) CreateCheckoutSession(_ context.Context, params CheckoutParams) (*CheckoutSession, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.failCheckout {
		return nil, fmt.Errorf("gateway unavailable")
	}
	s := &CheckoutSession{
		ID:  "cs_test_" + params.BookingID,
		URL: "https://checkout.example/" + params.BookingID,
		Metadata: SessionMetadata{
			BookingID:  params.BookingID,
			OwnerID:    params.OwnerID,
			ProviderID: params.ProviderID,
			Type:       MetadataTypeBookingPayment,
		},
	}
	g.sessions[s.ID] = s
	return s, nil
}

func (g *fakeGateway) GetCheckoutSession(_ context.Context, sessionID string) (*CheckoutSession, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	s, ok := g.sessions[sessionID]
	if !ok {
		return nil, fmt.Errorf("no such session %s", sessionID)
	}
	cp := *s
	return &cp, nil
}

func (g *fakeGateway) CreateRefund(_ context.Context, paymentIntentID string, reverseTransfer bool) (string, error) {
	if g.beforeRefund != nil {
		g.beforeRefund()
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.failRefund {
		return "", fmt.Errorf("payment intent %s already refunded", paymentIntentID)
	}
	g.reverseFlagged = reverseTransfer
	id := fmt.Sprintf("re_%d", len(g.refunds)+1)
	g.refunds = append(g.refunds, paymentIntentID)
	return id, nil
}

func (g *fakeGateway) refundCount() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.refunds)
}

// weekdaySchedule opens a single weekday from start to end.
func weekdaySchedule(day, start, end string) models.WeeklySchedule {
	return models.WeeklySchedule{day: {Available: true, Start: start, End: end}}
}
