// Package policy holds the refund and credit rules. Everything here is pure.
package policy

import (
	"errors"
	"fmt"
	"math"
	"os"
	"sort"

	"gopkg.in/yaml.v3"
)

// Tier grants Percentage when the measured hours exceed ThresholdHours
// (or equal it, when Inclusive).
type Tier struct {
	ThresholdHours float64 `yaml:"threshold_hours" json:"threshold_hours"`
	Inclusive      bool    `yaml:"inclusive" json:"inclusive"`
	Percentage     int64   `yaml:"percentage" json:"percentage"`
}

func (t Tier) matches(hours float64) bool {
	if t.Inclusive {
		return hours >= t.ThresholdHours
	}
	return hours > t.ThresholdHours
}

// Table is evaluated top-down; the first matching tier wins.
type Table []Tier

type Quote struct {
	Hours      float64 `json:"hours"`
	Percentage int64   `json:"percentage"`
	Amount     int64   `json:"amount"`
}

var (
	ErrEmptyTable        = errors.New("refund table has no tiers")
	ErrInvalidPercentage = errors.New("refund percentage must be between 0 and 100")
	ErrNoCatchAll        = errors.New("refund table has no catch-all tier")
)

// BookingCancellation measures hours elapsed since the booking was made.
var BookingCancellation = Table{
	{ThresholdHours: 1, Percentage: 90},
	{ThresholdHours: math.Inf(-1), Percentage: 100},
}

// SessionCancellation measures hours remaining before the session starts.
var SessionCancellation = Table{
	{ThresholdHours: 24, Percentage: 100},
	{ThresholdHours: 1, Inclusive: true, Percentage: 90},
	{ThresholdHours: math.Inf(-1), Percentage: 50},
}

func (t Table) Validate() error {
	if len(t) == 0 {
		return ErrEmptyTable
	}
	for _, tier := range t {
		if tier.Percentage < 0 || tier.Percentage > 100 {
			return fmt.Errorf("%w: %d", ErrInvalidPercentage, tier.Percentage)
		}
	}
	if !math.IsInf(t[len(t)-1].ThresholdHours, -1) {
		return ErrNoCatchAll
	}
	return nil
}

// Quote picks the tier for hours and applies it to amount, flooring the result.
func (t Table) Quote(hours float64, amount int64) Quote {
	quote := Quote{Hours: hours}
	for _, tier := range t {
		if tier.matches(hours) {
			quote.Percentage = tier.Percentage
			break
		}
	}
	quote.Amount = ApplyPercentage(amount, quote.Percentage)
	return quote
}

// ApplyPercentage floors amount*percentage/100 for non-negative amounts.
func ApplyPercentage(amount int64, percentage int64) int64 {
	if amount <= 0 || percentage <= 0 {
		return 0
	}
	return amount * percentage / 100
}

// Tables groups the refund tables used by the payment flows.
type Tables struct {
	Booking Table
	Session Table
}

func DefaultTables() Tables {
	return Tables{Booking: BookingCancellation, Session: SessionCancellation}
}

type tableFile struct {
	BookingCancellation []fileTier `yaml:"booking_cancellation"`
	SessionCancellation []fileTier `yaml:"session_cancellation"`
}

// fileTier uses a nil threshold for the catch-all tier since YAML has no -Inf literal
// that reads naturally.
type fileTier struct {
	ThresholdHours *float64 `yaml:"threshold_hours"`
	Inclusive      bool     `yaml:"inclusive"`
	Percentage     int64    `yaml:"percentage"`
}

// LoadTables reads a YAML tier file. Sections that are absent keep the defaults.
func LoadTables(path string) (Tables, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Tables{}, fmt.Errorf("read refund tables: %w", err)
	}
	return ParseTables(data)
}

func ParseTables(data []byte) (Tables, error) {
	var file tableFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return Tables{}, fmt.Errorf("parse refund tables: %w", err)
	}

	tables := DefaultTables()
	if len(file.BookingCancellation) > 0 {
		tables.Booking = toTable(file.BookingCancellation)
	}
	if len(file.SessionCancellation) > 0 {
		tables.Session = toTable(file.SessionCancellation)
	}
	if err := tables.Booking.Validate(); err != nil {
		return Tables{}, fmt.Errorf("booking_cancellation: %w", err)
	}
	if err := tables.Session.Validate(); err != nil {
		return Tables{}, fmt.Errorf("session_cancellation: %w", err)
	}
	return tables, nil
}

func toTable(tiers []fileTier) Table {
	table := make(Table, 0, len(tiers))
	for _, tier := range tiers {
		threshold := math.Inf(-1)
		if tier.ThresholdHours != nil {
			threshold = *tier.ThresholdHours
		}
		table = append(table, Tier{ThresholdHours: threshold, Inclusive: tier.Inclusive, Percentage: tier.Percentage})
	}
	sort.SliceStable(table, func(i, j int) bool {
		return table[i].ThresholdHours > table[j].ThresholdHours
	})
	return table
}
