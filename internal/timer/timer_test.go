package timer

import (
	"testing"

	"github.com/jonboulle/clockwork"

	"github.com/ftc-decode/scorer-backend/internal/score"
)

// cueLog records requested cues so tests control completion explicitly.
type cueLog struct {
	played []Cue
}

func (l *cueLog) request(c Cue) { l.played = append(l.played, c) }

func (l *cueLog) last(t *testing.T) Cue {
	t.Helper()
	if len(l.played) == 0 {
		t.Fatalf("no cue requested")
	}
	return l.played[len(l.played)-1]
}

func newTestTimer(cfg Config) (*Timer, *cueLog) {
	log := &cueLog{}
	return New(cfg, log.request, clockwork.NewFakeClock()), log
}

func tickN(tm *Timer, n int) {
	for i := 0; i < n; i++ {
		tm.Tick()
	}
}

func TestTimer_StartEntersCountdownAndPlaysStartCue(t *testing.T) {
	tm, log := newTestTimer(DefaultConfig())

	if tm.Phase() != score.PhaseNotStarted {
		t.Fatalf("want NOT_STARTED before start, got %s", tm.Phase())
	}
	tm.Start()

	if tm.Phase() != score.PhaseCountdown {
		t.Fatalf("want COUNTDOWN, got %s", tm.Phase())
	}
	if tm.Remaining() != 3 {
		t.Fatalf("want 3s countdown, got %d", tm.Remaining())
	}
	if log.last(t) != CueCountdown {
		t.Fatalf("want countdown cue on start, got %s", log.last(t))
	}
	if tm.StartedAt().IsZero() {
		t.Fatalf("start time not recorded")
	}
}

func TestTimer_CountdownGatesOnStartCue(t *testing.T) {
	tm, _ := newTestTimer(Config{Countdown: 2, Auto: 3, Transition: 1, Teleop: 5, EndgameAt: 3})
	tm.Start()

	// Start cue is still playing when the countdown runs out: the clock
	// must freeze on the boundary instead of entering autonomous.
	tickN(tm, 2)
	if tm.Phase() != score.PhaseCountdown {
		t.Fatalf("want gated COUNTDOWN, got %s", tm.Phase())
	}
	if !tm.AwaitingCue() {
		t.Fatalf("gate should be closed")
	}

	// Extra ticks while gated are dropped, not queued.
	if tm.Tick() {
		t.Fatalf("tick while gated must be a no-op")
	}
	if tm.Remaining() != 0 {
		t.Fatalf("remaining drifted while gated: %d", tm.Remaining())
	}

	if !tm.CueDone(CueCountdown, nil) {
		t.Fatalf("cue completion should advance the phase")
	}
	if tm.Phase() != score.PhaseAutonomous {
		t.Fatalf("want AUTONOMOUS after cue, got %s", tm.Phase())
	}
	if tm.Remaining() != 3 {
		t.Fatalf("want full auto clock, got %d", tm.Remaining())
	}
}

func TestTimer_EarlyCueCompletionOpensGateImmediately(t *testing.T) {
	tm, _ := newTestTimer(Config{Countdown: 2, Auto: 3, Transition: 1, Teleop: 5, EndgameAt: 3})
	tm.Start()

	// Short start cue: it finishes during the countdown, so the boundary
	// tick should pass straight through with no freeze.
	tm.CueDone(CueCountdown, nil)
	tickN(tm, 2)

	if tm.Phase() != score.PhaseAutonomous {
		t.Fatalf("want AUTONOMOUS, got %s", tm.Phase())
	}
	if tm.AwaitingCue() {
		t.Fatalf("gate should never have closed")
	}
}

func TestTimer_MissingCueAssetNeverStalls(t *testing.T) {
	tm, log := newTestTimer(Config{Countdown: 1, Auto: 1, Transition: 1, Teleop: 2, EndgameAt: 1})
	tm.Start()

	// A player with a missing asset reports done(err) immediately. The
	// error must release gates exactly like success.
	tm.CueDone(log.last(t), errSim)
	tm.Tick()
	if tm.Phase() != score.PhaseAutonomous {
		t.Fatalf("want AUTONOMOUS, got %s", tm.Phase())
	}

	tm.Tick() // auto ends, endauto requested
	tm.CueDone(CueEndAuto, errSim)
	if tm.Phase() != score.PhaseTransition {
		t.Fatalf("want TRANSITION, got %s", tm.Phase())
	}
}

func TestTimer_FullSequenceWithEndgame(t *testing.T) {
	cfg := Config{Countdown: 1, Auto: 2, Transition: 1, Teleop: 6, EndgameAt: 4}
	tm, log := newTestTimer(cfg)
	tm.Start()
	tm.CueDone(CueCountdown, nil)
	tm.Tick()
	if tm.Phase() != score.PhaseAutonomous {
		t.Fatalf("want AUTONOMOUS, got %s", tm.Phase())
	}

	tickN(tm, 2)
	tm.CueDone(CueEndAuto, nil)
	if tm.Phase() != score.PhaseTransition {
		t.Fatalf("want TRANSITION, got %s", tm.Phase())
	}

	tm.Tick()
	tm.CueDone(CueCountdown, nil)
	if tm.Phase() != score.PhaseTeleop {
		t.Fatalf("want TELEOP, got %s", tm.Phase())
	}
	if tm.Remaining() != cfg.Teleop {
		t.Fatalf("want full teleop clock, got %d", tm.Remaining())
	}

	// At EndgameAt elapsed seconds the phase flips mid-clock and the
	// charge cue plays without closing the gate.
	tickN(tm, 4)
	if tm.Phase() != score.PhaseEndGame {
		t.Fatalf("want END_GAME at elapsed=4, got %s", tm.Phase())
	}
	if log.last(t) != CueCharge {
		t.Fatalf("want charge cue, got %s", log.last(t))
	}
	if tm.AwaitingCue() {
		t.Fatalf("charge must not gate")
	}
	if tm.Remaining() != cfg.Teleop-cfg.EndgameAt {
		t.Fatalf("end game must share the teleop clock, remaining=%d", tm.Remaining())
	}

	tickN(tm, 2)
	if tm.Phase() != score.PhaseFinished {
		t.Fatalf("want FINISHED, got %s", tm.Phase())
	}
	if log.last(t) != CueEndMatch {
		t.Fatalf("want endmatch cue, got %s", log.last(t))
	}

	// Finished -> UnderReview gates on the endmatch cue, and entering
	// review kicks off the results cue.
	if tm.Tick() {
		t.Fatalf("finished phase must ignore ticks")
	}
	tm.CueDone(CueEndMatch, nil)
	if tm.Phase() != score.PhaseUnderReview {
		t.Fatalf("want UNDER_REVIEW, got %s", tm.Phase())
	}
	if log.last(t) != CueResults {
		t.Fatalf("want results cue, got %s", log.last(t))
	}
	if tm.Tick() {
		t.Fatalf("review phase must ignore ticks")
	}
}

func TestTimer_PauseFreezesClockButNotGate(t *testing.T) {
	tm, _ := newTestTimer(DefaultConfig())
	tm.Start()
	tm.CueDone(CueCountdown, nil)
	tickN(tm, 3)
	if tm.Phase() != score.PhaseAutonomous {
		t.Fatalf("want AUTONOMOUS, got %s", tm.Phase())
	}

	tm.Pause()
	before := tm.Remaining()
	if tm.Tick() {
		t.Fatalf("tick while paused must be a no-op")
	}
	if tm.Remaining() != before {
		t.Fatalf("clock moved while paused")
	}

	tm.Resume()
	tm.Tick()
	if tm.Remaining() != before-1 {
		t.Fatalf("clock did not resume")
	}
}

func TestTimer_ResetFromAnyState(t *testing.T) {
	tm, _ := newTestTimer(Config{Countdown: 1, Auto: 1, Transition: 1, Teleop: 2, EndgameAt: 1})
	tm.Start()
	tm.Tick() // gate closes on the still-playing start cue

	tm.Reset()
	if tm.Phase() != score.PhaseNotStarted {
		t.Fatalf("want NOT_STARTED, got %s", tm.Phase())
	}
	if tm.AwaitingCue() {
		t.Fatalf("reset must clear the gate")
	}
	if !tm.StartedAt().IsZero() {
		t.Fatalf("reset must clear the start time")
	}

	// A completion from the abandoned run must not advance the fresh one.
	if tm.CueDone(CueCountdown, nil) {
		t.Fatalf("stale completion advanced a reset timer")
	}
}

func TestTimer_CountdownValue(t *testing.T) {
	tm, _ := newTestTimer(Config{Countdown: 3, Auto: 5, Transition: 1, Teleop: 4, EndgameAt: 2})
	if tm.CountdownValue() != 0 {
		t.Fatalf("no countdown before start")
	}
	tm.Start()
	tm.CueDone(CueCountdown, nil)
	if tm.CountdownValue() != 3 {
		t.Fatalf("want 3, got %d", tm.CountdownValue())
	}
	tm.Tick()
	if tm.CountdownValue() != 2 {
		t.Fatalf("want 2, got %d", tm.CountdownValue())
	}

	tickN(tm, 2) // into autonomous, 5s remaining
	if tm.CountdownValue() != 0 {
		t.Fatalf("no countdown display at 5s remaining, got %d", tm.CountdownValue())
	}
	tickN(tm, 2) // 3s remaining
	if tm.CountdownValue() != 3 {
		t.Fatalf("want 3 at 3s remaining, got %d", tm.CountdownValue())
	}
}

var errSim = errAsset("asset missing")

type errAsset string

func (e errAsset) Error() string { return string(e) }
