package engine

import (
	"context"
	"log/slog"
	"sync/atomic"
	"time"

	mapset "github.com/deckarep/golang-set/v2"
	"github.com/tartampluch/card-countdown/internal/config"
)

// LoopConfig holds the cadences of the two periodic tasks.
type LoopConfig struct {
	PollInterval     time.Duration
	MidnightInterval time.Duration
	Location         *time.Location
}

// Sighting is the last card seen on the reader.
type Sighting struct {
	UID string
	At  time.Time
}

// Status is a snapshot of the loop for the status endpoint.
type Status struct {
	PresentUID   string
	DisplayedUID string
	State        string
	LastRender   time.Time
	LastFrame    string
	Renders      int
}

// periodic is a task that runs at most once per interval of tick time.
// Wake-ups land a little early or late against the ticker, so an interval
// counts as elapsed once all but a tenth of it has passed.
type periodic struct {
	every     time.Duration
	last      time.Time
	started   bool
	immediate bool
}

func (p *periodic) due(now time.Time) bool {
	if !p.started {
		p.started = true
		p.last = now
		return p.immediate
	}
	if now.Sub(p.last) >= p.every-p.every/periodicSlack {
		p.last = now
		return true
	}
	return false
}

const periodicSlack = 10

// Loop is the single cooperative control loop of the panel.
// Tick and Run must be called from one goroutine. Invalidate, LastSighting
// and Status are safe from any goroutine.
type Loop struct {
	sensor   CardSensor
	renderer Renderer
	resolver *Resolver
	clock    Clock
	loc      *time.Location

	poll     periodic
	midnight periodic

	tracker   PresenceTracker
	scheduler Scheduler
	renders   int
	lastFrame string
	lastDraw  time.Time

	pending mapset.Set[string]
	seen    atomic.Pointer[Sighting]
	status  atomic.Pointer[Status]

	log *slog.Logger
}

// NewLoop wires the core. A nil Location means time.Local.
func NewLoop(sensor CardSensor, renderer Renderer, records RecordFinder, clock Clock, cfg LoopConfig) *Loop {
	loc := cfg.Location
	if loc == nil {
		loc = time.Local
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = config.DefaultPollInterval
	}
	if cfg.MidnightInterval <= 0 {
		cfg.MidnightInterval = config.DefaultMidnightCheck
	}

	l := &Loop{
		sensor:   sensor,
		renderer: renderer,
		resolver: &Resolver{Records: records, Clock: clock, Location: loc},
		clock:    clock,
		loc:      loc,
		poll:     periodic{every: cfg.PollInterval, immediate: true},
		midnight: periodic{every: cfg.MidnightInterval},
		pending:  mapset.NewSet[string](),
		log:      slog.With(config.LogKeyComponent, config.CompLoop),
	}
	l.publishStatus()
	return l
}

// Invalidate records that the record for uid changed.
// The next tick redraws if that card is the one on the panel.
func (l *Loop) Invalidate(uid string) {
	l.pending.Add(NormalizeUID(uid))
}

// Run shows the welcome frame and then ticks at the poll interval until ctx is cancelled.
func (l *Loop) Run(ctx context.Context) error {
	l.log.Info(config.MsgLoopStart,
		config.LogKeyInterval, l.poll.every.String(),
	)
	l.dispatch(ctx, l.scheduler.Boot(), l.clock.Now())

	ticker := time.NewTicker(l.poll.every)
	defer ticker.Stop()

	l.Tick(ctx, l.clock.Now())
	for {
		select {
		case <-ctx.Done():
			l.log.Info(config.MsgLoopStop)
			return nil
		case <-ticker.C:
			l.Tick(ctx, l.clock.Now())
		}
	}
}

// Tick runs whichever periodic tasks are due at now and drains invalidations.
// At most one frame is drawn per tick, synchronously.
func (l *Loop) Tick(ctx context.Context, now time.Time) {
	pollDue := l.poll.due(now)
	midnightTick := l.midnight.due(now)

	ev := PresenceEvent{Kind: NoChange}
	if pollDue {
		ev = l.observe(ctx, now)
	}

	invalidated := l.drainInvalidations()

	local := now.In(l.loc)
	var res Resolution
	if l.scheduler.NeedsResolution(ev, midnightTick, invalidated, local) {
		uid := ev.UID
		if !ev.Presented() {
			uid = l.scheduler.TargetUID()
			if invalidated {
				l.log.Info(config.MsgInvalidated, config.LogKeyUID, uid)
			} else {
				l.log.Info(config.MsgMidnight, config.LogKeyUID, uid)
			}
		}
		res = l.resolver.ResolveAt(uid, local)
	}

	decision := l.scheduler.ShouldRender(ev, res, midnightTick, invalidated, local)
	l.dispatch(ctx, decision, now)
	l.publishStatus()
}

// observe polls the sensor once. A failed read counts as no observation,
// never as a removal.
func (l *Loop) observe(ctx context.Context, now time.Time) PresenceEvent {
	raw, err := l.sensor.Poll(ctx)
	if err != nil {
		l.log.Debug(config.MsgSensorFailure, config.LogKeyError, err)
		return PresenceEvent{Kind: NoChange}
	}

	ev := l.tracker.Observe(raw, now)
	if uid := l.tracker.Current(); uid != "" {
		l.seen.Store(&Sighting{UID: uid, At: now})
	}
	if ev.Kind != NoChange {
		l.log.Info(config.MsgPresence,
			config.LogKeyEvent, ev.Kind.String(),
			config.LogKeyUID, ev.UID,
			config.LogKeyPrevUID, ev.PrevUID,
		)
	}
	return ev
}

// drainInvalidations empties the pending set and reports whether it held
// the card currently on the panel.
func (l *Loop) drainInvalidations() bool {
	target := l.scheduler.TargetUID()
	hit := false
	for {
		uid, ok := l.pending.Pop()
		if !ok {
			return hit
		}
		if target != "" && uid == target {
			hit = true
		}
	}
}

// dispatch hands a non-Skip decision to the renderer. Failures are logged
// and absorbed so the loop keeps running.
func (l *Loop) dispatch(ctx context.Context, d RenderDecision, now time.Time) {
	if d.Kind == Skip {
		return
	}

	frame := d.Frame()
	l.log.Info(config.MsgRender,
		config.LogKeyDecision, d.Kind.String(),
		config.LogKeyState, l.scheduler.State().String(),
		config.LogKeyName, frame.Name,
		config.LogKeyDate, frame.TargetDate,
		config.LogKeyDays, frame.DaysRemaining,
	)

	start := time.Now()
	if err := l.renderer.Show(ctx, frame); err != nil {
		l.log.Error(config.ErrRender, config.LogKeyError, err)
		return
	}
	l.renders++
	l.lastFrame = frame.Kind.String()
	l.lastDraw = now
	l.log.Debug(config.MsgFrameWritten, config.LogKeyDuration, time.Since(start).Milliseconds())
}

func (l *Loop) publishStatus() {
	l.status.Store(&Status{
		PresentUID:   l.tracker.Current(),
		DisplayedUID: l.scheduler.TargetUID(),
		State:        l.scheduler.State().String(),
		LastRender:   l.lastDraw,
		LastFrame:    l.lastFrame,
		Renders:      l.renders,
	})
}

// LastSighting returns the most recent card read, if any.
func (l *Loop) LastSighting() (Sighting, bool) {
	s := l.seen.Load()
	if s == nil {
		return Sighting{}, false
	}
	return *s, true
}

// Status returns the snapshot published at the end of the last tick.
func (l *Loop) Status() Status {
	return *l.status.Load()
}
