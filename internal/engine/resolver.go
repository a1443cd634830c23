package engine

import (
	"fmt"
	"time"

	"github.com/tartampluch/card-countdown/internal/config"
)

// ResolutionKind is the outcome of looking up a card.
// The zero value means no lookup was made on this tick.
type ResolutionKind int

const (
	NotResolved ResolutionKind = iota
	NoMatch
	Match
	InvalidDate
)

func (k ResolutionKind) String() string {
	switch k {
	case NoMatch:
		return "no_match"
	case Match:
		return "match"
	case InvalidDate:
		return "invalid_date"
	default:
		return "not_resolved"
	}
}

// Resolution carries the record and day delta of a Match.
// For InvalidDate, Record is set and Err holds the parse failure.
type Resolution struct {
	Kind          ResolutionKind
	Record        Record
	DaysRemaining int
	Err           error
}

// Resolver maps a card UID to what the panel should show.
type Resolver struct {
	Records  RecordFinder
	Clock    Clock
	Location *time.Location
}

// Resolve looks up uid as of the resolver's clock.
func (r *Resolver) Resolve(uid string) Resolution {
	return r.ResolveAt(uid, r.Clock.Now())
}

// ResolveAt looks up uid and computes the day delta relative to now.
// Missing and inactive records are both NoMatch.
func (r *Resolver) ResolveAt(uid string, now time.Time) Resolution {
	rec, ok := r.Records.Find(NormalizeUID(uid))
	if !ok || !rec.Active {
		return Resolution{Kind: NoMatch}
	}

	target, err := ParseTargetDate(rec.TargetDate)
	if err != nil {
		return Resolution{Kind: InvalidDate, Record: rec, Err: err}
	}

	return Resolution{
		Kind:          Match,
		Record:        rec,
		DaysRemaining: DaysUntil(now, r.location(), target),
	}
}

func (r *Resolver) location() *time.Location {
	if r.Location == nil {
		return time.Local
	}
	return r.Location
}

// ParseTargetDate strictly parses an ISO YYYY-MM-DD date.
// Out-of-range months or days are rejected rather than normalized.
func ParseTargetDate(value string) (time.Time, error) {
	t, err := time.Parse(config.DateFormatISO, value)
	if err != nil {
		return time.Time{}, fmt.Errorf("%s %q: %w", config.ErrInvalidDate, value, err)
	}
	return t, nil
}

// DaysUntil returns the number of calendar days from now's date in loc to target's date.
// Both operands are reduced to their calendar day first, so the result does not depend
// on the time of day or on DST transitions. Past targets yield negative values.
func DaysUntil(now time.Time, loc *time.Location, target time.Time) int {
	today := dayOf(now.In(loc))
	return int(dayOf(target).unixDays() - today.unixDays())
}
