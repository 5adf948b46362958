package httpapi

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/ftc-decode/scorer-backend/internal/arena"
	"github.com/ftc-decode/scorer-backend/internal/relay"
)

func SetupRoutes(a *arena.Arena, log *zap.Logger) http.Handler {
	r := chi.NewRouter()

	r.Get("/healthz", Healthz)
	r.Get("/state", GetState(a))
	r.Get("/ws", relay.Handler(a, log))

	// Match control for the console UI.
	r.Post("/match/start", Control(a, arena.StartMatch{}))
	r.Post("/match/pause", Control(a, arena.PauseMatch{}))
	r.Post("/match/resume", Control(a, arena.ResumeMatch{}))
	r.Post("/match/reset", Control(a, arena.ResetMatch{}))
	r.Post("/match/motif/randomize", Control(a, arena.RandomizeMotif{}))
	r.Post("/match/teams", SetTeams(a))
	r.Post("/score", EditScore(a))
	return r
}
