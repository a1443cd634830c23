package engine

import (
	"errors"
	"strings"

	"github.com/tartampluch/card-countdown/internal/config"
)

// Record associates one RFID card with a countdown target.
// It is the unit stored by the record store and served by the API.
type Record struct {
	// UID is the card identifier as upper-case hex. It is the primary key and never changes.
	UID string `json:"uid" validate:"required,hexadecimal,max=20"`

	// Name is the headline shown on the panel.
	Name string `json:"name" validate:"required,max=64"`

	// TargetDate is an ISO YYYY-MM-DD date without time of day.
	TargetDate string `json:"targetDate" validate:"required,datetime=2006-01-02"`

	// ImagePath optionally points to a BMP shown next to the countdown.
	ImagePath string `json:"imagePath"`

	// Active records are the only ones the panel resolves.
	Active bool `json:"active"`
}

// Sentinel errors for record store rules. They are only surfaced to API callers.
var (
	ErrDuplicateUID     = errors.New(config.ErrDuplicateUID)
	ErrCapacityExceeded = errors.New(config.ErrCapacity)
	ErrNotFound         = errors.New(config.ErrNotFound)
	ErrUIDImmutable     = errors.New(config.ErrUIDImmutable)
)

// RecordFinder is the read side of the record store used by the core.
// Find must return a copy so that no reference outlives a tick.
type RecordFinder interface {
	Find(uid string) (Record, bool)
}

// RecordWriter is the write side of the record store used by the importer.
type RecordWriter interface {
	Add(rec Record) error
	Update(uid string, rec Record) error
}

// RecordStore is the store port of the importer, which merges into
// existing records.
type RecordStore interface {
	RecordFinder
	RecordWriter
}

// NormalizeUID trims and upper-cases a card identifier so that reads from
// different backends and API input compare equal.
func NormalizeUID(raw string) string {
	return strings.ToUpper(strings.TrimSpace(raw))
}
