package services

import (
	"context"
	"errors"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/rs/zerolog"
	"github.com/saeid-a/FinCoachBack/internal/models"
)

const DefaultSessionMinutes = 60

const (
	shapeScheduled     = "scheduled"
	shapeSessionLinked = "session_linked"
)

// SweeperService completes booked sessions whose end time has passed.
type SweeperService struct {
	store store
	log   zerolog.Logger
}

func NewSweeperService(db DB, log zerolog.Logger) *SweeperService {
	return &SweeperService{
		store: newStore(db),
		log:   log.With().Str("service", "sweeper").Logger(),
	}
}

type SweepResult struct {
	Checked   int     `json:"checked"`
	Completed []int64 `json:"completed"`
	// Skipped counts bookings whose conditional update found them no longer booked.
	Skipped int `json:"skipped"`
}

// Run is idempotent: only bookings still in booked status are touched.
func (s *SweeperService) Run(ctx context.Context, now time.Time) (*SweepResult, error) {
	started := time.Now()
	defer func() { sweeperRunDuration.Observe(time.Since(started).Seconds()) }()

	r := s.store.read()
	result := &SweepResult{Completed: []int64{}}

	scheduled, err := r.bookings.ListBookedWithSchedule(ctx)
	if err != nil {
		return nil, err
	}
	for _, booking := range scheduled {
		result.Checked++
		minutes := 0
		if booking.DurationMinutes != nil && *booking.DurationMinutes > 0 {
			minutes = *booking.DurationMinutes
		}
		end := booking.ScheduledAt.Add(time.Duration(minutes) * time.Minute)
		if err := s.completeIfEnded(ctx, r, booking, end, now, shapeScheduled, result); err != nil {
			return result, err
		}
	}

	linked, err := r.bookings.ListBookedSessionLinked(ctx)
	if err != nil {
		return result, err
	}
	if len(linked) > 0 {
		ids := make([]int64, 0, len(linked))
		for _, booking := range linked {
			ids = append(ids, booking.ItemID)
		}
		items, err := r.items.ListByIDs(ctx, ids)
		if err != nil {
			return result, err
		}

		for _, booking := range linked {
			result.Checked++
			item, ok := items[booking.ItemID]
			if !ok || item.SessionAt == nil {
				continue
			}
			duration := ""
			if item.DurationText != nil {
				duration = *item.DurationText
			}
			end := item.SessionAt.Add(time.Duration(ParseDurationMinutes(duration)) * time.Minute)
			if err := s.completeIfEnded(ctx, r, booking, end, now, shapeSessionLinked, result); err != nil {
				return result, err
			}
		}
	}

	s.log.Info().
		Int("checked", result.Checked).
		Int("completed", len(result.Completed)).
		Int("skipped", result.Skipped).
		Msg("sweep finished")
	return result, nil
}

// Loop sweeps immediately and then on every tick until ctx is cancelled. Failed runs are
// logged and retried on the next tick.
func (s *SweeperService) Loop(ctx context.Context, interval time.Duration) error {
	if interval <= 0 {
		return errors.New("sweeper interval must be positive")
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		if _, err := s.Run(ctx, time.Now()); err != nil && ctx.Err() == nil {
			s.log.Error().Err(err).Msg("sweep failed")
		}
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}

func (s *SweeperService) completeIfEnded(
	ctx context.Context,
	r repos,
	booking models.Booking,
	end time.Time,
	now time.Time,
	shape string,
	result *SweepResult,
) error {
	if end.After(now) {
		return nil
	}
	_, err := r.bookings.UpdateStatusIfCurrent(ctx, booking.ID, models.BookingStatusBooked, models.BookingStatusCompleted)
	if errors.Is(err, pgx.ErrNoRows) {
		result.Skipped++
		return nil
	}
	if err != nil {
		return err
	}
	result.Completed = append(result.Completed, booking.ID)
	sweeperCompleted.WithLabelValues(shape).Inc()
	return nil
}

var durationPart = regexp.MustCompile(`(\d+(?:\.\d+)?)\s*([a-z]*)`)

// ParseDurationMinutes reads free-text durations such as "60 mins", "1 hour", "1.5 hours"
// or "1h 30m". A bare number is minutes. Anything unreadable yields DefaultSessionMinutes.
func ParseDurationMinutes(text string) int {
	text = strings.ToLower(strings.TrimSpace(text))
	if text == "" {
		return DefaultSessionMinutes
	}

	total := 0.0
	matched := false
	for _, part := range durationPart.FindAllStringSubmatch(text, -1) {
		value, err := strconv.ParseFloat(part[1], 64)
		if err != nil {
			continue
		}
		switch unit := part[2]; {
		case unit == "" || strings.HasPrefix(unit, "m"):
			total += value
		case strings.HasPrefix(unit, "h"):
			total += value * 60
		default:
			continue
		}
		matched = true
	}

	minutes := int(total)
	if !matched || minutes <= 0 {
		return DefaultSessionMinutes
	}
	return minutes
}
