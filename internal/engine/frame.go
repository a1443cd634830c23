package engine

import "context"

// FrameKind selects one of the panel layouts.
type FrameKind int

const (
	FrameWelcome FrameKind = iota
	FrameNoCard
	FrameError
	FrameCountdown
)

func (k FrameKind) String() string {
	switch k {
	case FrameNoCard:
		return "no_card"
	case FrameError:
		return "error"
	case FrameCountdown:
		return "countdown"
	default:
		return "welcome"
	}
}

// Frame is one full-screen image request.
type Frame struct {
	Kind FrameKind

	// Countdown fields.
	Name          string
	TargetDate    string
	DaysRemaining int
	ImagePath     string

	// MessageID is the translation key of the error text.
	MessageID string
}

// Renderer draws a frame on the panel. Each call is a full redraw and may
// take seconds; the loop never calls it concurrently.
type Renderer interface {
	Show(ctx context.Context, f Frame) error
}

// CardSensor reports the UID of the card in range, or "" when none.
type CardSensor interface {
	Poll(ctx context.Context) (string, error)
}
