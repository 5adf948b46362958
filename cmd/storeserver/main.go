package main

import (
	"context"
	"net/http"
	"os"

	"go.uber.org/zap"

	"github.com/ftc-decode/scorer-backend/internal/cloudstore"
	"github.com/ftc-decode/scorer-backend/internal/config"
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

	store := cloudstore.NewStore(context.Background())
	handler := cloudstore.Routes(store, log)

	log.Info("relay store listening", zap.String("addr", cfg.ListenAddr))
	if err := http.ListenAndServe(cfg.ListenAddr, handler); err != nil {
		log.Error("server stopped", zap.Error(err))
		os.Exit(1)
	}
}
