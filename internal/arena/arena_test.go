package arena

import (
	"context"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"

	"github.com/ftc-decode/scorer-backend/internal/replicate"
	"github.com/ftc-decode/scorer-backend/internal/score"
	"github.com/ftc-decode/scorer-backend/internal/timer"
	"github.com/ftc-decode/scorer-backend/internal/wire"
)

// helper: receive one snapshot with a timeout so tests never hang
func recvSnapshot(t *testing.T, ch <-chan Snapshot, within time.Duration) Snapshot {
	t.Helper()
	select {
	case snap, ok := <-ch:
		if !ok {
			t.Fatalf("client outbox closed unexpectedly")
		}
		return snap
	case <-time.After(within):
		t.Fatalf("timed out waiting for snapshot")
		return Snapshot{} // unreachable
	}
}

func recvView(t *testing.T, a *Arena, within time.Duration) View {
	t.Helper()
	reply := make(chan View, 1)
	a.Inbox() <- GetState{Reply: reply}
	select {
	case v := <-reply:
		return v
	case <-time.After(within):
		t.Fatalf("timed out waiting for view")
		return View{} // unreachable
	}
}

// instantPlayer completes every cue as soon as it is requested, so phase
// gates never stay closed in tests that don't care about audio.
type instantPlayer struct{}

func (instantPlayer) Play(c timer.Cue, done func(error)) { done(nil) }

func newTestArena(t *testing.T, role replicate.Role) (*Arena, *clockwork.FakeClock) {
	t.Helper()
	clock := clockwork.NewFakeClock()
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	a := New(ctx, timer.Config{Countdown: 2, Auto: 3, Transition: 1, Teleop: 5, EndgameAt: 3},
		instantPlayer{}, role, clock, zap.NewNop())
	clock.BlockUntil(1) // tick source is up
	return a, clock
}

func TestArena_JoinDeliversCurrentSnapshot(t *testing.T) {
	a, _ := newTestArena(t, replicate.RoleHost)

	out := make(chan Snapshot, 2)
	a.Inbox() <- Join{ID: "c1", Outbox: out}

	first := recvSnapshot(t, out, time.Second)
	if first.Version != 0 {
		t.Fatalf("after join: want version=0, got %d", first.Version)
	}
	if first.Match.State != score.PhaseNotStarted {
		t.Fatalf("after join: want NOT_STARTED, got %s", first.Match.State)
	}
}

func TestArena_RemoteUpdateBroadcastsAndBumpsVersion(t *testing.T) {
	a, _ := newTestArena(t, replicate.RoleHost)

	out := make(chan Snapshot, 4)
	a.Inbox() <- Join{ID: "c1", Outbox: out}
	recvSnapshot(t, out, time.Second)

	a.Inbox() <- Remote{Update: replicate.Update{
		Source: replicate.RoleRed,
		Fields: wire.Fields{"red_auto_classified": 3},
	}}

	next := recvSnapshot(t, out, time.Second)
	if next.Version != 1 {
		t.Fatalf("want version=1, got %d", next.Version)
	}
	if next.Match.Red.AutoClassified != 3 {
		t.Fatalf("remote edit not applied: %+v", next.Match.Red)
	}
}

func TestArena_RejectedRemoteUpdateIsSilent(t *testing.T) {
	a, _ := newTestArena(t, replicate.RoleHost)

	out := make(chan Snapshot, 4)
	a.Inbox() <- Join{ID: "c1", Outbox: out}
	recvSnapshot(t, out, time.Second)

	// A red source writing blue fields is dropped by the merge policy,
	// so no snapshot and no version bump.
	a.Inbox() <- Remote{Update: replicate.Update{
		Source: replicate.RoleRed,
		Fields: wire.Fields{"blue_major_fouls": 9},
	}}

	view := recvView(t, a, time.Second)
	if view.Version != 0 {
		t.Fatalf("version bumped on a rejected update: %d", view.Version)
	}
	if view.Match.Blue.MajorFouls != 0 {
		t.Fatalf("rejected field applied")
	}
}

func TestArena_LocalEditPublishesOwnedFields(t *testing.T) {
	a, _ := newTestArena(t, replicate.RoleRed)

	sess := newFakeSession(replicate.RoleRed)
	a.AttachSession(sess)

	a.Inbox() <- SetField{Name: "red_teleop_depot", Value: 4}

	pub := sess.recvPublish(t, time.Second)
	if pub["red_teleop_depot"] != 4 {
		t.Fatalf("edit not published: %+v", pub)
	}
	if _, leaked := pub["blue_teleop_depot"]; leaked {
		t.Fatalf("unowned field published")
	}

	// Edits outside the local role's ownership never make it in.
	a.Inbox() <- SetField{Name: "blue_teleop_depot", Value: 9}
	view := recvView(t, a, time.Second)
	if view.Match.Blue.TeleopDepot != 0 {
		t.Fatalf("unowned local edit applied")
	}
}

func TestArena_SessionUpdatesFlowIn(t *testing.T) {
	a, _ := newTestArena(t, replicate.RoleRed)

	sess := newFakeSession(replicate.RoleRed)
	a.AttachSession(sess)

	sess.updates <- replicate.Update{
		Source: replicate.RoleHost,
		Fields: wire.Fields{"blue_minor_fouls": 2, "red_minor_fouls": 7},
	}

	deadline := time.After(time.Second)
	for {
		view := recvView(t, a, time.Second)
		if view.Match.Blue.MinorFouls == 2 {
			// Our own side stays guarded against the host's echo.
			if view.Match.Red.MinorFouls != 0 {
				t.Fatalf("guarded field overwritten")
			}
			return
		}
		select {
		case <-deadline:
			t.Fatalf("session update never applied")
		default:
		}
	}
}

func TestArena_StartAndTickDriveThePhaseClock(t *testing.T) {
	a, clock := newTestArena(t, replicate.RoleHost)

	out := make(chan Snapshot, 16)
	a.Inbox() <- Join{ID: "c1", Outbox: out}
	recvSnapshot(t, out, time.Second)

	a.Inbox() <- StartMatch{}
	snap := recvSnapshot(t, out, time.Second)
	if snap.Match.State != score.PhaseCountdown {
		t.Fatalf("want COUNTDOWN, got %s", snap.Match.State)
	}
	if snap.Match.StartTime == 0 {
		t.Fatalf("start time not stamped")
	}

	clock.Advance(time.Second)
	snap = recvSnapshot(t, out, time.Second)
	if snap.Remaining != 1 {
		t.Fatalf("want 1s left in countdown, got %d", snap.Remaining)
	}
	if snap.Countdown != 1 {
		t.Fatalf("want countdown display 1, got %d", snap.Countdown)
	}

	// Boundary tick: the instant player completed the start cue long ago,
	// so this tick rolls straight into autonomous.
	clock.Advance(time.Second)
	for {
		snap = recvSnapshot(t, out, time.Second)
		if snap.Match.State == score.PhaseAutonomous {
			break
		}
	}
	if snap.Remaining != 3 {
		t.Fatalf("want full auto clock, got %d", snap.Remaining)
	}
}

func TestArena_ResetReturnsToNotStarted(t *testing.T) {
	a, _ := newTestArena(t, replicate.RoleHost)

	a.Inbox() <- Remote{Update: replicate.Update{
		Source: replicate.RoleBlue,
		Fields: wire.Fields{"blue_teleop_overflow": 6},
	}}
	a.Inbox() <- StartMatch{}
	a.Inbox() <- SetTeams{RedTeam1: "1234", BlueTeam1: "5678"}
	a.Inbox() <- ResetMatch{}

	view := recvView(t, a, time.Second)
	if view.Match.State != score.PhaseNotStarted {
		t.Fatalf("want NOT_STARTED, got %s", view.Match.State)
	}
	if view.Match.Blue.TeleopOverflow != 0 {
		t.Fatalf("reset kept score data")
	}
	if view.Match.RedTeam1 != "1234" {
		t.Fatalf("reset dropped team numbers")
	}
}

func TestArena_SlowClientIsDropped(t *testing.T) {
	a, _ := newTestArena(t, replicate.RoleHost)

	out := make(chan Snapshot) // unbuffered and never read after join
	a.Inbox() <- Join{ID: "slow", Outbox: out}
	recvSnapshot(t, out, time.Second)

	a.Inbox() <- RandomizeMotif{}
	a.Inbox() <- RandomizeMotif{}

	deadline := time.After(time.Second)
	for {
		view := recvView(t, a, time.Second)
		if view.NumClients == 0 {
			return
		}
		select {
		case <-deadline:
			t.Fatalf("slow client still registered")
		default:
		}
	}
}

func TestArena_LeaveClosesOutbox(t *testing.T) {
	a, _ := newTestArena(t, replicate.RoleHost)

	out := make(chan Snapshot, 4)
	a.Inbox() <- Join{ID: "c1", Outbox: out}
	recvSnapshot(t, out, time.Second)

	a.Inbox() <- Leave{ID: "c1"}

	// The outbox must be closed so a writer ranging over it terminates.
	deadline := time.After(time.Second)
	for {
		select {
		case _, ok := <-out:
			if !ok {
				// Leaving twice, or after a slow-drop, must be a no-op.
				a.Inbox() <- Leave{ID: "c1"}
				if view := recvView(t, a, time.Second); view.NumClients != 0 {
					t.Fatalf("want 0 clients after leave, got %d", view.NumClients)
				}
				return
			}
		case <-deadline:
			t.Fatalf("outbox never closed after leave")
		}
	}
}

// fakeSession records publishes and lets tests inject inbound updates.
type fakeSession struct {
	role    replicate.Role
	pub     chan wire.Fields
	updates chan replicate.Update
}

func newFakeSession(role replicate.Role) *fakeSession {
	return &fakeSession{
		role:    role,
		pub:     make(chan wire.Fields, 8),
		updates: make(chan replicate.Update, 8),
	}
}

func (s *fakeSession) Role() replicate.Role { return s.role }

func (s *fakeSession) Publish(f wire.Fields) error {
	s.pub <- f
	return nil
}

func (s *fakeSession) Updates() <-chan replicate.Update { return s.updates }

func (s *fakeSession) Close() error {
	close(s.updates)
	return nil
}

func (s *fakeSession) recvPublish(t *testing.T, within time.Duration) wire.Fields {
	t.Helper()
	select {
	case f := <-s.pub:
		return f
	case <-time.After(within):
		t.Fatalf("timed out waiting for publish")
		return nil // unreachable
	}
}
