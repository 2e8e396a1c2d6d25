package services

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/sparktechagency/cleaning-service-backend-sub000/internal/models"
)

// AvailabilityService decides whether a proposed reservation is legal against
// the provider's working hours and the live holds/bookings on their calendar.
// The check always runs server-side at booking time; the preview endpoint is
// advisory only because time passes between preview and booking.
type AvailabilityService struct {
	bookings models.BookingRepo
	catalog  models.CatalogRepo
	now      func() time.Time
}

func NewAvailabilityService(bookings models.BookingRepo, catalog models.CatalogRepo) *AvailabilityService {
	return &AvailabilityService{
		bookings: bookings,
		catalog:  catalog,
		now:      time.Now,
	}
}

// EnsureSlotFree validates the padded interval [start, start+duration+buffer)
// for the provider. Returns models.ErrPastOrTooSoon, models.ErrOutOfHours or
// models.ErrSlotConflict.
func (as *AvailabilityService) EnsureSlotFree(ctx context.Context, providerID uuid.UUID, schedule models.WeeklySchedule, start time.Time, durationHours, bufferMinutes int) error {
	if durationHours <= 0 {
		return fmt.Errorf("duration must be at least one hour: %w", models.ErrOutOfHours)
	}

	now := as.now()
	if start.Before(now.Add(models.MinLeadTime)) {
		return models.ErrPastOrTooSoon
	}

	// Working hours bound the unpadded service interval; the buffer is travel
	// time and may spill past closing.
	end := start.Add(time.Duration(durationHours) * time.Hour)
	winStart, winEnd, open := schedule.Window(start)
	if !open || start.Before(winStart) || end.After(winEnd) {
		return models.ErrOutOfHours
	}

	_, paddedEnd := models.SlotInterval(start, durationHours, bufferMinutes)
	conflict, err := as.bookings.HasOverlap(ctx, providerID, start, paddedEnd, now)
	if err != nil {
		return fmt.Errorf("failed to check slot availability: %w", err)
	}
	if conflict {
		return models.ErrSlotConflict
	}
	return nil
}

// FreeSlots lists the hourly start times of the given duration that are still
// bookable on day. Used by the client-facing preview.
func (as *AvailabilityService) FreeSlots(ctx context.Context, providerID uuid.UUID, day time.Time, durationHours, bufferMinutes int) ([]time.Time, error) {
	provider, err := as.catalog.GetProvider(ctx, providerID)
	if err != nil {
		return nil, err
	}

	winStart, winEnd, open := provider.Schedule.Window(day)
	if !open {
		return []time.Time{}, nil
	}

	now := as.now()
	busy, err := as.bookings.ListActiveIntervals(ctx, providerID, winStart, winEnd.Add(time.Duration(bufferMinutes)*time.Minute), now)
	if err != nil {
		return nil, fmt.Errorf("failed to list busy intervals: %w", err)
	}

	slots := []time.Time{}
	for start := winStart; !start.Add(time.Duration(durationHours) * time.Hour).After(winEnd); start = start.Add(time.Hour) {
		if start.Before(now.Add(models.MinLeadTime)) {
			continue
		}
		_, paddedEnd := models.SlotInterval(start, durationHours, bufferMinutes)
		taken := false
		for _, b := range busy {
			if models.Overlaps(start, paddedEnd, b.Start, b.End) {
				taken = true
				break
			}
		}
		if !taken {
			slots = append(slots, start)
		}
	}
	return slots, nil
}
