package engine

import (
	"time"

	"github.com/tartampluch/card-countdown/internal/config"
)

// DecisionKind tells the loop which frame, if any, to draw.
type DecisionKind int

const (
	Skip DecisionKind = iota
	ShowWelcome
	ShowNoCardScreen
	ShowError
	ShowCountdown
)

func (k DecisionKind) String() string {
	switch k {
	case ShowWelcome:
		return "show_welcome"
	case ShowNoCardScreen:
		return "show_no_card"
	case ShowError:
		return "show_error"
	case ShowCountdown:
		return "show_countdown"
	default:
		return "skip"
	}
}

// RenderDecision is the scheduler output for one tick.
type RenderDecision struct {
	Kind          DecisionKind
	Record        Record // ShowCountdown only
	DaysRemaining int    // ShowCountdown only
	MessageID     string // ShowError only, a translation key
}

// Frame converts the decision into the renderer's input.
// It must not be called for Skip.
func (d RenderDecision) Frame() Frame {
	switch d.Kind {
	case ShowWelcome:
		return Frame{Kind: FrameWelcome}
	case ShowNoCardScreen:
		return Frame{Kind: FrameNoCard}
	case ShowError:
		return Frame{Kind: FrameError, MessageID: d.MessageID}
	default:
		return Frame{
			Kind:          FrameCountdown,
			Name:          d.Record.Name,
			TargetDate:    d.Record.TargetDate,
			DaysRemaining: d.DaysRemaining,
			ImagePath:     d.Record.ImagePath,
		}
	}
}

// State is the scheduler's view of what the panel shows.
type State int

const (
	Idle State = iota
	Displaying
	ErrorShown
)

func (s State) String() string {
	switch s {
	case Displaying:
		return "displaying"
	case ErrorShown:
		return "error_shown"
	default:
		return "idle"
	}
}

// Scheduler decides when the slow e-paper panel is redrawn.
// Every non-Skip decision costs a full refresh, so it only renders on a
// presented card, a calendar day rollover, or an edit of the shown card.
//
// The zero value is ready to use; it is Idle with no rollover baseline.
type Scheduler struct {
	booted bool
	state  State

	// presented is the card whose frame is on the panel, including the
	// NoCard screen. It is cleared when the card is removed.
	presented string

	// lastDay is the calendar day of the last countdown render.
	lastDay    civilDay
	hasLastDay bool
}

// Boot returns ShowWelcome the first time it is called and Skip afterwards.
func (s *Scheduler) Boot() RenderDecision {
	if s.booted {
		return RenderDecision{Kind: Skip}
	}
	s.booted = true
	return RenderDecision{Kind: ShowWelcome}
}

// NeedsResolution reports whether ShouldRender will look at a resolution for
// these inputs, so the caller can skip the store lookup otherwise.
// now must be expressed in the configured location.
func (s *Scheduler) NeedsResolution(ev PresenceEvent, midnightTick, invalidated bool, now time.Time) bool {
	switch {
	case ev.Presented():
		return true
	case ev.Kind != NoChange:
		return false
	case invalidated && s.presented != "":
		return true
	default:
		return s.rollover(midnightTick, now)
	}
}

// TargetUID is the UID a NoChange tick resolves: the card last presented.
func (s *Scheduler) TargetUID() string {
	return s.presented
}

// ShouldRender applies one tick's inputs to the state machine.
// now must be expressed in the configured location.
func (s *Scheduler) ShouldRender(ev PresenceEvent, res Resolution, midnightTick, invalidated bool, now time.Time) RenderDecision {
	switch ev.Kind {
	case CardRemoved:
		// The e-paper keeps the last image, so removal never redraws.
		s.state = Idle
		s.presented = ""
		return RenderDecision{Kind: Skip}

	case CardInserted, CardSwapped:
		s.presented = ev.UID
		return s.present(res, now)
	}

	if !s.NeedsResolution(ev, midnightTick, invalidated, now) {
		return RenderDecision{Kind: Skip}
	}
	return s.refresh(res, now)
}

// present handles a newly placed card. It always renders.
func (s *Scheduler) present(res Resolution, now time.Time) RenderDecision {
	switch res.Kind {
	case Match:
		return s.countdown(res, now)
	case InvalidDate:
		s.state = ErrorShown
		return RenderDecision{Kind: ShowError, MessageID: config.TKeyInvalidDate}
	default:
		s.state = Idle
		return RenderDecision{Kind: ShowNoCardScreen}
	}
}

// refresh handles a re-resolution of the held card after an edit or a rollover.
// A frame that would not change is not redrawn.
func (s *Scheduler) refresh(res Resolution, now time.Time) RenderDecision {
	switch res.Kind {
	case Match:
		return s.countdown(res, now)
	case InvalidDate:
		if s.state == ErrorShown {
			return RenderDecision{Kind: Skip}
		}
		s.state = ErrorShown
		return RenderDecision{Kind: ShowError, MessageID: config.TKeyInvalidDate}
	case NoMatch:
		// Deleted or deactivated while shown: keep the last frame.
		s.state = Idle
		return RenderDecision{Kind: Skip}
	default:
		return RenderDecision{Kind: Skip}
	}
}

func (s *Scheduler) countdown(res Resolution, now time.Time) RenderDecision {
	s.state = Displaying
	s.lastDay = dayOf(now)
	s.hasLastDay = true
	return RenderDecision{
		Kind:          ShowCountdown,
		Record:        res.Record,
		DaysRemaining: res.DaysRemaining,
	}
}

// rollover reports whether a midnight tick should redraw the countdown.
// It compares calendar days, so it fires once per day however often it is checked.
func (s *Scheduler) rollover(midnightTick bool, now time.Time) bool {
	return midnightTick &&
		s.state == Displaying &&
		s.hasLastDay &&
		dayOf(now).after(s.lastDay)
}

// State returns the current state.
func (s *Scheduler) State() State {
	return s.state
}
