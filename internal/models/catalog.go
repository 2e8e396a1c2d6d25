package models

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// DaySchedule is one weekday of a provider's working hours. Start and End are
// "HH:MM" in the provider's local day; Available false marks the whole day
// off.
type DaySchedule struct {
	Available bool   `bson:"available" json:"available"`
	Start     string `bson:"start,omitempty" json:"start,omitempty"`
	End       string `bson:"end,omitempty" json:"end,omitempty"`
}

// WeeklySchedule is keyed by lowercase weekday name ("monday" ... "sunday"),
// matching how the documents are stored.
type WeeklySchedule map[string]DaySchedule

// Window resolves the working window for the weekday containing day. The
// returned times are on day's date.
func (ws WeeklySchedule) Window(day time.Time) (time.Time, time.Time, bool) {
	ds, ok := ws[strings.ToLower(day.Weekday().String())]
	if !ok || !ds.Available {
		return time.Time{}, time.Time{}, false
	}
	start, err1 := parseClock(day, ds.Start)
	end, err2 := parseClock(day, ds.End)
	if err1 != nil || err2 != nil || !start.Before(end) {
		return time.Time{}, time.Time{}, false
	}
	return start, end, true
}

func parseClock(day time.Time, hhmm string) (time.Time, error) {
	t, err := time.Parse("15:04", hhmm)
	if err != nil {
		return time.Time{}, err
	}
	return time.Date(day.Year(), day.Month(), day.Day(), t.Hour(), t.Minute(), 0, 0, day.Location()), nil
}

// CleaningService is the bookable catalog entry. Catalog CRUD lives outside
// this codebase; we only read what booking needs and maintain the rating
// aggregate.
type CleaningService struct {
	ID             uuid.UUID `bson:"_id" json:"id"`
	ProviderID     uuid.UUID `bson:"provider_id" json:"provider_id"`
	Name           string    `bson:"name" json:"name"`
	HourlyRate     float64   `bson:"hourly_rate" json:"hourly_rate"`
	BufferMinutes  int       `bson:"buffer_minutes" json:"buffer_minutes"`
	InstantBooking bool      `bson:"instant_booking" json:"instant_booking"`
	RatingAvg      float64   `bson:"rating_avg" json:"rating_avg"`
	RatingCount    int       `bson:"rating_count" json:"rating_count"`
}

// ProviderProfile carries the scheduling and payout facts the core needs
// about a provider.
type ProviderProfile struct {
	ID              uuid.UUID      `bson:"_id" json:"id"`
	Schedule        WeeklySchedule `bson:"schedule" json:"schedule"`
	PayoutAccountID string         `bson:"payout_account_id,omitempty" json:"-"`
}
