// Package timer drives the match phase sequence on a once-per-second tick.
// Transitions are gated on audio cue completion: when a phase runs out the
// clock freezes until the cue meant to signal the change has finished
// playing, so the match never runs ahead of what the audience hears.
package timer

import (
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/ftc-decode/scorer-backend/internal/score"
)

// Cue names an audio asset whose completion can gate a phase transition.
type Cue string

const (
	CueCountdown Cue = "countdown" // start sequence and transition pickup
	CueEndAuto   Cue = "endauto"
	CueCharge    Cue = "charge" // end game entry, never gates
	CueEndMatch  Cue = "endmatch"
	CueResults   Cue = "results"
)

// CuePlayer is the external audio collaborator. Play must eventually call
// done exactly once, from any goroutine; a missing asset is reported as an
// immediate done(err) so a lost file can never deadlock the match.
type CuePlayer interface {
	Play(c Cue, done func(error))
}

// Config holds per-phase durations in seconds. EndgameAt is the elapsed
// teleop second at which END_GAME begins; it is a sub-transition inside the
// teleop clock, not a phase with its own duration.
type Config struct {
	Countdown  int
	Auto       int
	Transition int
	Teleop     int
	EndgameAt  int
}

func DefaultConfig() Config {
	return Config{
		Countdown:  3,
		Auto:       30,
		Transition: 8,
		Teleop:     120,
		EndgameAt:  100,
	}
}

// Timer is a plain state machine: no goroutines, no locking. The arena owns
// it, serializes Tick and CueDone on its loop, and forwards cue requests to
// the real player so completions come back through the same loop.
type Timer struct {
	cfg     Config
	request func(Cue)
	clock   clockwork.Clock

	phase     score.Phase
	remaining int
	elapsed   int
	paused    bool
	awaiting  Cue          // non-empty while the gate is closed
	inflight  map[Cue]bool // requested cues whose completion hasn't arrived
	startedAt time.Time
}

// New builds a timer. request is called whenever a cue should start playing;
// the caller must eventually feed the completion back through CueDone.
func New(cfg Config, request func(Cue), clock clockwork.Clock) *Timer {
	return &Timer{
		cfg:      cfg,
		request:  request,
		clock:    clock,
		phase:    score.PhaseNotStarted,
		inflight: make(map[Cue]bool),
	}
}

func (t *Timer) Phase() score.Phase { return t.phase }
func (t *Timer) Remaining() int     { return t.remaining }
func (t *Timer) Paused() bool       { return t.paused }
func (t *Timer) AwaitingCue() bool  { return t.awaiting != "" }

// StartedAt is the wall-clock start of the current match, zero before Start.
func (t *Timer) StartedAt() time.Time { return t.startedAt }

// CountdownValue is the derived 3-2-1 display: the remaining seconds during
// the last three seconds of any running phase, zero otherwise.
func (t *Timer) CountdownValue() int {
	switch t.phase {
	case score.PhaseNotStarted, score.PhaseFinished, score.PhaseUnderReview:
		return 0
	}
	if t.awaiting != "" {
		return 0
	}
	if t.remaining >= 1 && t.remaining <= 3 {
		return t.remaining
	}
	return 0
}

// Start resets the counters, enters COUNTDOWN and requests the start
// sequence cue. The countdown-to-auto transition gates on that same cue.
func (t *Timer) Start() {
	t.phase = score.PhaseCountdown
	t.remaining = t.cfg.Countdown
	t.elapsed = 0
	t.paused = false
	t.awaiting = ""
	t.startedAt = t.clock.Now()
	t.play(CueCountdown)
}

// Pause suspends the effect of ticks. The cue gate is unaffected.
func (t *Timer) Pause() { t.paused = true }

// Resume re-enables ticks.
func (t *Timer) Resume() { t.paused = false }

// Reset returns to NOT_STARTED from any state and clears every counter.
func (t *Timer) Reset() {
	t.phase = score.PhaseNotStarted
	t.remaining = 0
	t.elapsed = 0
	t.paused = false
	t.awaiting = ""
	t.inflight = make(map[Cue]bool)
	t.startedAt = time.Time{}
}

// Tick advances the active phase by one second. It is a strict no-op while
// paused, while a cue gate is closed, and once the match has finished.
// Returns true when any visible state changed.
func (t *Timer) Tick() bool {
	if t.paused || t.awaiting != "" {
		return false
	}

	switch t.phase {
	case score.PhaseNotStarted, score.PhaseFinished, score.PhaseUnderReview:
		return false

	case score.PhaseCountdown:
		t.remaining--
		if t.remaining <= 0 {
			// Gate on the start cue requested by Start. If it already
			// finished the transition happens on this tick.
			t.gate(CueCountdown)
		}
		return true

	case score.PhaseAutonomous:
		t.remaining--
		if t.remaining <= 0 {
			t.play(CueEndAuto)
			t.gate(CueEndAuto)
		}
		return true

	case score.PhaseTransition:
		t.remaining--
		if t.remaining <= 0 {
			t.play(CueCountdown)
			t.gate(CueCountdown)
		}
		return true

	case score.PhaseTeleop, score.PhaseEndGame:
		t.remaining--
		t.elapsed++
		// End game is a sub-transition on the same clock; its cue plays
		// but never gates.
		if t.elapsed == t.cfg.EndgameAt && t.phase == score.PhaseTeleop {
			t.phase = score.PhaseEndGame
			t.play(CueCharge)
		}
		if t.remaining <= 0 {
			t.phase = score.PhaseFinished
			t.remaining = 0
			t.play(CueEndMatch)
			t.gate(CueEndMatch)
		}
		return true
	}
	return false
}

// CueDone records a cue completion and, if a gate was waiting on it,
// performs the pending transition. An error counts as completion: a missing
// asset must never stall the match. Returns true when the phase changed.
func (t *Timer) CueDone(c Cue, err error) bool {
	_ = err // failed playback still releases the gate
	delete(t.inflight, c)
	if t.awaiting != c {
		return false
	}
	t.awaiting = ""
	return t.advance()
}

// gate closes the clock until c completes. A cue that already finished
// (or was never requested) opens the gate on the spot.
func (t *Timer) gate(c Cue) {
	if !t.inflight[c] {
		t.advance()
		return
	}
	t.awaiting = c
}

// advance flips to the next phase at a gated boundary.
func (t *Timer) advance() bool {
	switch t.phase {
	case score.PhaseCountdown:
		t.phase = score.PhaseAutonomous
		t.remaining = t.cfg.Auto
	case score.PhaseAutonomous:
		t.phase = score.PhaseTransition
		t.remaining = t.cfg.Transition
	case score.PhaseTransition:
		t.phase = score.PhaseTeleop
		t.remaining = t.cfg.Teleop
		t.elapsed = 0
	case score.PhaseFinished:
		t.phase = score.PhaseUnderReview
		t.play(CueResults)
	default:
		return false
	}
	return true
}

func (t *Timer) play(c Cue) {
	t.inflight[c] = true
	if t.request != nil {
		t.request(c)
	}
}
