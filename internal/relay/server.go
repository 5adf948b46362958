// Package relay is the direct transport: the host process accepts
// websocket connections from alliance scorer devices on the same network,
// streams full-state snapshots down, and funnels their partial updates
// into the arena loop.
package relay

import (
	"context"
	"net/http"
	"time"

	"github.com/coder/websocket"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/ftc-decode/scorer-backend/internal/arena"
	"github.com/ftc-decode/scorer-backend/internal/replicate"
	"github.com/ftc-decode/scorer-backend/internal/wire"
)

// Handler upgrades to websocket and bridges the connection to the arena.
// A connection starts unassigned; it must send ASSIGN before any of its
// SCORE_UPDATE frames are accepted.
func Handler(a *arena.Arena, log *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
			// Scorer devices connect from the field network, not a browser
			// origin we control.
			InsecureSkipVerify: true,
		})
		if err != nil {
			return
		}
		defer conn.Close(websocket.StatusNormalClosure, "bye")

		out := make(chan arena.Snapshot, 8)
		clientID := uuid.NewString()

		a.Inbox() <- arena.Join{ID: clientID, Outbox: out}
		defer func() { a.Inbox() <- arena.Leave{ID: clientID} }()

		log.Info("scorer connected", zap.String("client", clientID))

		// Writer goroutine
		writeCtx, writeCancel := context.WithCancel(r.Context())
		defer writeCancel()
		go func() {
			for snap := range out {
				payload := wire.EncodeSnapshot(snap.Match)
				ctx, cancel := context.WithTimeout(writeCtx, 3*time.Second)
				_ = conn.Write(ctx, websocket.MessageText, payload)
				cancel()
			}
		}()

		// Reader loop. The connection's claimed role starts empty and is
		// set once by the first valid ASSIGN.
		var role replicate.Role
		for {
			_, data, err := conn.Read(r.Context())
			if err != nil {
				switch websocket.CloseStatus(err) {
				case websocket.StatusNormalClosure, websocket.StatusGoingAway:
					return
				}
				return
			}

			msg, err := wire.ParseMessage(data)
			if err != nil {
				_ = conn.Write(r.Context(), websocket.MessageText,
					[]byte(`{"type":"ERROR","error":"bad json"}`))
				continue
			}

			switch msg.Type {
			case wire.MsgAssign:
				r2, ok := replicate.ParseRole(msg.Alliance)
				if !ok || (r2 != replicate.RoleRed && r2 != replicate.RoleBlue) {
					_ = conn.Write(r.Context(), websocket.MessageText,
						[]byte(`{"type":"ERROR","error":"bad alliance"}`))
					continue
				}
				role = r2
				log.Info("scorer assigned",
					zap.String("client", clientID), zap.String("alliance", msg.Alliance))

			case wire.MsgScoreUpdate:
				if role == "" {
					_ = conn.Write(r.Context(), websocket.MessageText,
						[]byte(`{"type":"ERROR","error":"not assigned"}`))
					continue
				}
				fields := wire.Pick(msg.Fields, wire.SideFieldNames(prefixFor(role)))
				if len(fields) == 0 {
					continue
				}
				a.Inbox() <- arena.Remote{Update: replicate.Update{Source: role, Fields: fields}}

			default:
				_ = conn.Write(r.Context(), websocket.MessageText,
					[]byte(`{"type":"ERROR","error":"unknown type"}`))
			}
		}
	}
}

func prefixFor(r replicate.Role) string {
	if r == replicate.RoleBlue {
		return wire.BluePrefix
	}
	return wire.RedPrefix
}
