// Package arena serializes every mutation of the shared match record onto
// one goroutine: local edits, timer ticks, audio cue completions and remote
// sync updates are all posted as messages and applied in arrival order.
// Nothing else in the process holds a mutable reference to the match.
package arena

import (
	"context"
	"time"

	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"

	"github.com/ftc-decode/scorer-backend/internal/replicate"
	"github.com/ftc-decode/scorer-backend/internal/score"
	"github.com/ftc-decode/scorer-backend/internal/timer"
	"github.com/ftc-decode/scorer-backend/internal/wire"
)

type Msg interface{ isArenaMsg() }

// Join subscribes a snapshot consumer (relay connection, overlay, UI).
type Join struct {
	ID     string
	Outbox chan Snapshot
}

func (Join) isArenaMsg() {}

type Leave struct{ ID string }

func (Leave) isArenaMsg() {}

// Tick is posted once per second by the tick source.
type Tick struct{}

func (Tick) isArenaMsg() {}

// CueDone funnels an audio completion back onto the arena loop.
type CueDone struct {
	Cue timer.Cue
	Err error
}

func (CueDone) isArenaMsg() {}

// SetField applies one local edit by wire field name.
type SetField struct {
	Name  string
	Value any
}

func (SetField) isArenaMsg() {}

// Remote applies a partial record received from a sync transport.
type Remote struct{ Update replicate.Update }

func (Remote) isArenaMsg() {}

type StartMatch struct{}

func (StartMatch) isArenaMsg() {}

type PauseMatch struct{}

func (PauseMatch) isArenaMsg() {}

type ResumeMatch struct{}

func (ResumeMatch) isArenaMsg() {}

type ResetMatch struct{}

func (ResetMatch) isArenaMsg() {}

// RandomizeMotif rolls a fresh motif onto both alliances.
type RandomizeMotif struct{}

func (RandomizeMotif) isArenaMsg() {}

type SetTeams struct {
	RedTeam1, RedTeam2, BlueTeam1, BlueTeam2 string
}

func (SetTeams) isArenaMsg() {}

type GetState struct{ Reply chan View }

func (GetState) isArenaMsg() {}

type Shutdown struct{}

func (Shutdown) isArenaMsg() {}

// Snapshot is one broadcast frame of match state.
type Snapshot struct {
	Version   int
	Match     score.Match
	Remaining int
	Countdown int
	Awaiting  bool
}

// View reflects internal state for tests and the HTTP API.
type View struct {
	Version    int
	NumClients int
	Match      score.Match
	Remaining  int
	Phase      score.Phase
}

type Arena struct {
	inbox   chan Msg
	match   score.Match
	tmr     *timer.Timer
	role    replicate.Role
	session replicate.Session
	version int
	clients map[string]chan Snapshot
	log     *zap.Logger
	clock   clockwork.Clock
	ctx     context.Context
	cancel  context.CancelFunc
}

// New starts the arena loop and its 1 Hz tick source. The role decides
// which fields local edits may publish and which remote fields are refused
// by the merge policy.
func New(parent context.Context, cfg timer.Config, player timer.CuePlayer, role replicate.Role, clock clockwork.Clock, log *zap.Logger) *Arena {
	ctx, cancel := context.WithCancel(parent)

	a := &Arena{
		inbox:   make(chan Msg, 64),
		match:   score.NewMatch(),
		role:    role,
		clients: make(map[string]chan Snapshot),
		log:     log,
		clock:   clock,
		ctx:     ctx,
		cancel:  cancel,
	}
	a.tmr = timer.New(cfg, a.requestCue(player), clock)

	go a.loop()
	go a.tickSource()
	return a
}

// Inbox exposes the message channel to transports, handlers and tests.
func (a *Arena) Inbox() chan<- Msg { return a.inbox }

type attach struct{ session replicate.Session }

func (attach) isArenaMsg() {}

// AttachSession pumps a replication session's updates into the arena and
// registers it as the publish target for local edits.
func (a *Arena) AttachSession(s replicate.Session) {
	a.post(attach{session: s})
	go func() {
		for u := range s.Updates() {
			select {
			case a.inbox <- Remote{Update: u}:
			case <-a.ctx.Done():
				return
			}
		}
	}()
}

// requestCue hands playback to the audio collaborator off-loop and posts
// the completion back as a message, keeping timer state single-writer.
func (a *Arena) requestCue(player timer.CuePlayer) func(timer.Cue) {
	if player == nil {
		return func(c timer.Cue) {
			// No audio collaborator: complete immediately so gates open.
			a.post(CueDone{Cue: c})
		}
	}
	return func(c timer.Cue) {
		go player.Play(c, func(err error) {
			a.post(CueDone{Cue: c, Err: err})
		})
	}
}

func (a *Arena) post(m Msg) {
	select {
	case a.inbox <- m:
	case <-a.ctx.Done():
	}
}

func (a *Arena) tickSource() {
	ticker := a.clock.NewTicker(time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.Chan():
			a.post(Tick{})
		case <-a.ctx.Done():
			return
		}
	}
}

func (a *Arena) loop() {
	for {
		select {
		case <-a.ctx.Done():
			a.shutdown()
			return

		case m := <-a.inbox:
			switch msg := m.(type) {
			case Join:
				a.clients[msg.ID] = msg.Outbox
				msg.Outbox <- a.snapshot()

			case Leave:
				// Close so the client's writer loop terminates. The
				// client may already be gone if it was dropped as slow.
				if ch, ok := a.clients[msg.ID]; ok {
					close(ch)
					delete(a.clients, msg.ID)
				}

			case attach:
				a.session = msg.session

			case Tick:
				before := a.match.State
				if a.tmr.Tick() {
					a.syncPhase()
					a.changed(a.match.State != before)
				}

			case CueDone:
				if msg.Err != nil {
					a.log.Warn("cue failed, releasing gate",
						zap.String("cue", string(msg.Cue)), zap.Error(msg.Err))
				}
				if a.tmr.CueDone(msg.Cue, msg.Err) {
					a.syncPhase()
					a.changed(true)
				}

			case SetField:
				a.applyLocal(wire.Fields{msg.Name: msg.Value})

			case Remote:
				if replicate.Apply(&a.match, msg.Update, a.role) {
					a.changed(false)
				}

			case StartMatch:
				a.tmr.Start()
				a.match.StartTime = a.tmr.StartedAt().UnixMilli()
				a.syncPhase()
				a.changed(true)

			case PauseMatch:
				a.tmr.Pause()

			case ResumeMatch:
				a.tmr.Resume()

			case ResetMatch:
				a.tmr.Reset()
				a.match.Reset()
				a.syncPhase()
				a.changed(true)

			case RandomizeMotif:
				a.match.RandomizeMotif()
				a.changed(true)

			case SetTeams:
				a.match.RedTeam1 = msg.RedTeam1
				a.match.RedTeam2 = msg.RedTeam2
				a.match.BlueTeam1 = msg.BlueTeam1
				a.match.BlueTeam2 = msg.BlueTeam2
				a.changed(true)

			case GetState:
				msg.Reply <- View{
					Version:    a.version,
					NumClients: len(a.clients),
					Match:      a.match,
					Remaining:  a.tmr.Remaining(),
					Phase:      a.tmr.Phase(),
				}

			case Shutdown:
				a.shutdown()
				return
			}
		}
	}
}

// applyLocal routes a UI edit through the same merge machinery as remote
// updates, with the local role as the source so ownership is enforced.
func (a *Arena) applyLocal(f wire.Fields) {
	if err := replicate.ValidatePublish(a.role, f); err != nil {
		a.log.Warn("local edit outside ownership", zap.Error(err))
		return
	}
	if replicate.Apply(&a.match, replicate.Update{Source: a.role, Fields: f}, replicate.RoleRelay) {
		a.changed(true)
	}
}

// syncPhase copies the timer's position onto the replicated match state.
func (a *Arena) syncPhase() {
	a.match.State = a.tmr.Phase()
}

// changed bumps the version, fans the snapshot out, and pushes the locally
// owned fields to the attached sync session when the change was local.
func (a *Arena) changed(publish bool) {
	a.version++
	snap := a.snapshot()
	for id, ch := range a.clients {
		select {
		case ch <- snap:
		default:
			// Client is slow/full - drop them.
			close(ch)
			delete(a.clients, id)
		}
	}
	if publish && a.session != nil {
		owned := wire.Pick(wire.EncodeMatch(a.match), a.role.PublishSet())
		if len(owned) == 0 {
			return
		}
		if err := a.session.Publish(owned); err != nil {
			a.log.Warn("publish failed", zap.Error(err))
		}
	}
}

func (a *Arena) snapshot() Snapshot {
	return Snapshot{
		Version:   a.version,
		Match:     a.match,
		Remaining: a.tmr.Remaining(),
		Countdown: a.tmr.CountdownValue(),
		Awaiting:  a.tmr.AwaitingCue(),
	}
}

func (a *Arena) shutdown() {
	for id, ch := range a.clients {
		close(ch)
		delete(a.clients, id)
	}
	a.cancel()
}
