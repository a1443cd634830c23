package engine

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/emersion/go-vcard"
	"github.com/tartampluch/card-countdown/internal/config"
)

// ImportResult summarizes one vCard import.
type ImportResult struct {
	Added   int `json:"added"`
	Updated int `json:"updated"`
	Skipped int `json:"skipped"`
}

// Importer turns birthdays from a vCard stream into countdowns.
// Only cards tagged with the X-COUNTDOWN-UID property are imported, since a
// countdown needs a physical card to be shown.
type Importer struct {
	Store    RecordStore
	Clock    Clock
	Location *time.Location
}

// Import reads every vCard in r. Malformed cards, cards without a card UID or a
// parseable BDAY, and cards rejected by the store are skipped and counted.
func (im *Importer) Import(ctx context.Context, r io.Reader) (ImportResult, error) {
	var res ImportResult
	log := slog.With(config.LogKeyComponent, config.CompEngine)

	loc := im.Location
	if loc == nil {
		loc = time.Local
	}
	now := im.Clock.Now().In(loc)

	decoder := vcard.NewDecoder(r)
	for {
		if err := ctx.Err(); err != nil {
			return res, err
		}

		card, err := decoder.Decode()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			// A broken stream cannot be resynchronized.
			if res.Added+res.Updated+res.Skipped == 0 {
				return res, fmt.Errorf("%s: %w", config.ErrVCardParse, err)
			}
			log.Warn(config.MsgSkippedCard, config.LogKeyError, err)
			res.Skipped++
			break
		}

		rec, ok := im.recordFrom(card, now)
		if !ok {
			res.Skipped++
			continue
		}

		switch err := im.Store.Add(rec); {
		case err == nil:
			res.Added++
		case errors.Is(err, ErrDuplicateUID):
			if err := im.merge(rec); err != nil {
				log.Warn(config.MsgSkippedCard, config.LogKeyUID, rec.UID, config.LogKeyError, err)
				res.Skipped++
				continue
			}
			res.Updated++
		default:
			log.Warn(config.MsgSkippedCard, config.LogKeyUID, rec.UID, config.LogKeyError, err)
			res.Skipped++
		}
	}

	log.Info(config.MsgImportDone,
		config.LogKeyCount, res.Added+res.Updated,
		config.LogKeySkipped, res.Skipped,
	)
	return res, nil
}

// recordFrom maps one vCard to a record targeting the next birthday.
func (im *Importer) recordFrom(card vcard.Card, now time.Time) (Record, bool) {
	uid := NormalizeUID(card.Value(config.VCardUIDProp))
	if uid == "" {
		slog.Debug(config.MsgSkippedNoUID, config.LogKeyComponent, config.CompEngine)
		return Record{}, false
	}

	bday := card.Get(config.VCardBDAY)
	if bday == nil || bday.Value == "" {
		return Record{}, false
	}
	birthDate, err := parseBirthday(bday.Value)
	if err != nil {
		slog.Debug(config.MsgSkippedDate,
			config.LogKeyComponent, config.CompEngine,
			config.LogKeyValue, bday.Value)
		return Record{}, false
	}

	// Name Strategy: FN (Formatted) > N (Structured) > Fallback
	name := config.FallbackName
	if fn := card.Get(config.VCardFN); fn != nil && fn.Value != "" {
		name = fn.Value
	} else if n := card.Get(config.VCardN); n != nil && n.Value != "" {
		name = strings.TrimSpace(strings.ReplaceAll(n.Value, ";", " "))
	}
	if r := []rune(name); len(r) > config.MaxNameLength {
		name = string(r[:config.MaxNameLength])
	}

	return Record{
		UID:        uid,
		Name:       name,
		TargetDate: nextOccurrence(now, birthDate).Format(config.DateFormatISO),
		Active:     true,
	}, true
}

// nextOccurrence returns the first birthday on or after today's date.
// Go's time.Date normalizes Feb 29 to March 1st in non-leap years.
func nextOccurrence(now time.Time, birthDate time.Time) time.Time {
	loc := now.Location()
	todayStart := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, loc)

	candidate := time.Date(now.Year(), birthDate.Month(), birthDate.Day(), 0, 0, 0, 0, loc)
	if candidate.Before(todayStart) {
		candidate = time.Date(now.Year()+1, birthDate.Month(), birthDate.Day(), 0, 0, 0, 0, loc)
	}
	return candidate
}

// parseBirthday handles the vCard date formats, with or without a year.
func parseBirthday(value string) (time.Time, error) {
	formatsWithYear := []string{
		config.DateFormatISO,
		config.DateFormatFullBasic,
		config.DateFormatRFC3339,
		config.DateFormatFullT,
	}
	for _, f := range formatsWithYear {
		if t, err := time.Parse(f, value); err == nil {
			return t, nil
		}
	}

	// Leap year fallback keeps --02-29 parseable
	formatsWithoutYear := []string{config.DateFormatNoYearD, config.DateFormatNoYearB}
	for _, f := range formatsWithoutYear {
		if t, err := time.Parse(f, value); err == nil {
			return time.Date(config.DefaultLeapYear, t.Month(), t.Day(), 0, 0, 0, 0, time.UTC), nil
		}
	}

	return time.Time{}, errors.New(config.ErrDateParse)
}

// merge refreshes the name and date of an existing record. The image and
// the active flag belong to the user and are left alone.
func (im *Importer) merge(rec Record) error {
	cur, ok := im.Store.Find(rec.UID)
	if !ok {
		return ErrNotFound
	}
	cur.Name = rec.Name
	cur.TargetDate = rec.TargetDate
	return im.Store.Update(rec.UID, cur)
}
