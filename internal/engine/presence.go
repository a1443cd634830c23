package engine

import "time"

// EventKind classifies a change in card presence.
type EventKind int

const (
	NoChange EventKind = iota
	CardInserted
	CardRemoved
	CardSwapped
)

func (k EventKind) String() string {
	switch k {
	case CardInserted:
		return "card_inserted"
	case CardRemoved:
		return "card_removed"
	case CardSwapped:
		return "card_swapped"
	default:
		return "no_change"
	}
}

// PresenceEvent is the outcome of one sensor observation.
// UID is set for CardInserted and CardSwapped, PrevUID for CardRemoved and CardSwapped.
type PresenceEvent struct {
	Kind    EventKind
	UID     string
	PrevUID string
}

// Presented reports whether a new card has been placed on the reader.
func (e PresenceEvent) Presented() bool {
	return e.Kind == CardInserted || e.Kind == CardSwapped
}

// PresenceTracker turns raw per-poll reads into edge-triggered events.
// A card held on the reader is reported on every poll but only produces one event.
// The zero value tracks "no card".
type PresenceTracker struct {
	current  string
	lastSeen time.Time
}

// Observe feeds one sensor read. An empty uid means no card in range.
func (p *PresenceTracker) Observe(rawUID string, at time.Time) PresenceEvent {
	uid := NormalizeUID(rawUID)

	if uid == "" {
		if p.current == "" {
			return PresenceEvent{Kind: NoChange}
		}
		prev := p.current
		p.current = ""
		return PresenceEvent{Kind: CardRemoved, PrevUID: prev}
	}

	p.lastSeen = at
	if uid == p.current {
		return PresenceEvent{Kind: NoChange}
	}

	prev := p.current
	p.current = uid
	if prev == "" {
		return PresenceEvent{Kind: CardInserted, UID: uid}
	}
	return PresenceEvent{Kind: CardSwapped, UID: uid, PrevUID: prev}
}

// Current returns the UID on the reader, or "" when none.
func (p *PresenceTracker) Current() string {
	return p.current
}

// LastSeen returns the time of the last successful card detection.
func (p *PresenceTracker) LastSeen() time.Time {
	return p.lastSeen
}
