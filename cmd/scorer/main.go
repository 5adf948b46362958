package main

import (
	"context"
	"net/http"
	"os"
	"time"

	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"

	"github.com/ftc-decode/scorer-backend/internal/arena"
	"github.com/ftc-decode/scorer-backend/internal/cloud"
	"github.com/ftc-decode/scorer-backend/internal/config"
	"github.com/ftc-decode/scorer-backend/internal/httpapi"
	"github.com/ftc-decode/scorer-backend/internal/relay"
	"github.com/ftc-decode/scorer-backend/internal/replicate"
	"github.com/ftc-decode/scorer-backend/internal/score"
	"github.com/ftc-decode/scorer-backend/internal/timer"
)

func main() {
	if err := config.LoadDotEnv(".env"); err != nil {
		panic(err)
	}
	cfg := config.Load()

	log, err := zap.NewProduction()
	if err != nil {
		panic(err)
	}
	defer log.Sync()

	role, ok := replicate.ParseRole(cfg.Role)
	if !ok {
		log.Fatal("unknown role", zap.String("role", cfg.Role))
	}

	ctx := context.Background()
	clock := clockwork.NewRealClock()

	a := arena.New(ctx, timer.Config{
		Countdown:  cfg.CountdownSeconds,
		Auto:       cfg.AutoSeconds,
		Transition: cfg.TransitionSecs,
		Teleop:     cfg.TeleopSeconds,
		EndgameAt:  cfg.EndgameAtSeconds,
	}, nil, role, clock, log)

	// Prefer the direct transport when a host URL is given; fall back to
	// the relay store when configured. A host with neither still serves
	// scorers over its own /ws endpoint.
	switch {
	case cfg.HostURL != "" && role != replicate.RoleHost:
		dialCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
		sess, err := relay.Dial(dialCtx, cfg.HostURL, role, log)
		cancel()
		if err != nil {
			log.Fatal("joining host failed", zap.Error(err))
		}
		defer sess.Close()
		a.AttachSession(sess)
		log.Info("joined host", zap.String("url", cfg.HostURL), zap.String("role", string(role)))

	case cfg.CloudURL != "":
		store := cloud.Config{BaseURL: cfg.CloudURL, APIKey: cfg.CloudAPIKey}
		var sess *cloud.Client
		if role == replicate.RoleHost {
			sess, err = cloud.CreateEvent(ctx, store, cfg.EventName, cfg.EventSecret, score.NewMatch(), clock, log)
			if err == cloud.ErrEventExists {
				sess, err = cloud.JoinEvent(ctx, store, cfg.EventName, cfg.EventSecret, role, clock, log)
			}
		} else {
			sess, err = cloud.JoinEvent(ctx, store, cfg.EventName, cfg.EventSecret, role, clock, log)
		}
		if err != nil {
			log.Fatal("event sync failed", zap.Error(err))
		}
		defer sess.Close()
		a.AttachSession(sess)
		log.Info("event sync up",
			zap.String("event", sess.EventName()), zap.String("device", sess.DeviceID()))
	}

	handler := httpapi.SetupRoutes(a, log)

	log.Info("listening", zap.String("addr", cfg.ListenAddr))
	if err := http.ListenAndServe(cfg.ListenAddr, handler); err != nil {
		log.Error("server stopped", zap.Error(err))
		os.Exit(1)
	}
}
