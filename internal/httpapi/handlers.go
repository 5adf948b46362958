package httpapi

import (
	"encoding/json"
	"io"
	"net/http"

	"github.com/ftc-decode/scorer-backend/internal/arena"
	"github.com/ftc-decode/scorer-backend/internal/wire"
)

func Healthz(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
}

// GetState returns the arena's current view: phase, clock, totals and
// the full field set. Handy for overlays that poll instead of holding a
// websocket open.
func GetState(a *arena.Arena) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		reply := make(chan arena.View, 1)
		a.Inbox() <- arena.GetState{Reply: reply}
		view := <-reply

		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(struct {
			Version   int         `json:"version"`
			Phase     string      `json:"phase"`
			Remaining int         `json:"remaining"`
			Clients   int         `json:"clients"`
			RedScore  int         `json:"redScore"`
			BlueScore int         `json:"blueScore"`
			Fields    wire.Fields `json:"fields"`
		}{
			Version:   view.Version,
			Phase:     string(view.Phase),
			Remaining: view.Remaining,
			Clients:   view.NumClients,
			RedScore:  view.Match.RedTotal(),
			BlueScore: view.Match.BlueTotal(),
			Fields:    wire.EncodeMatch(view.Match),
		})
	}
}

// Control posts a fixed arena message, one route per match action.
func Control(a *arena.Arena, msg arena.Msg) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		a.Inbox() <- msg
		w.WriteHeader(http.StatusAccepted)
	}
}

func SetTeams(a *arena.Arena) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var body struct {
			RedTeam1  string `json:"red_team1"`
			RedTeam2  string `json:"red_team2"`
			BlueTeam1 string `json:"blue_team1"`
			BlueTeam2 string `json:"blue_team2"`
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			http.Error(w, "bad json", http.StatusBadRequest)
			return
		}

		a.Inbox() <- arena.SetTeams{
			RedTeam1:  body.RedTeam1,
			RedTeam2:  body.RedTeam2,
			BlueTeam1: body.BlueTeam1,
			BlueTeam2: body.BlueTeam2,
		}
		w.WriteHeader(http.StatusAccepted)
	}
}

// EditScore applies local field edits. The body is a flat object of wire
// fields; anything outside the schema is dropped by the codec and any
// field outside the local role's ownership is refused by the arena.
func EditScore(a *arena.Arena) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		raw, err := io.ReadAll(r.Body)
		if err != nil {
			http.Error(w, "bad body", http.StatusBadRequest)
			return
		}

		fields, err := wire.Decode(raw)
		if err != nil {
			http.Error(w, "bad json", http.StatusBadRequest)
			return
		}
		if len(fields) == 0 {
			http.Error(w, "no recognized fields", http.StatusBadRequest)
			return
		}

		for name, v := range fields {
			a.Inbox() <- arena.SetField{Name: name, Value: v}
		}
		w.WriteHeader(http.StatusAccepted)
	}
}
