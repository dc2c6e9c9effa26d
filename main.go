package main

import (
	"embed"
	"log"
	"log/slog"
	"os"

	"video-converter/internal/bootstrap"
)

//go:embed frontend/index.html
var appAssets embed.FS

func main() {
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo}))

	app, err := bootstrap.NewWithAssets(appAssets, logger)
	if err != nil {
		log.Fatalf("bootstrap app: %v", err)
	}

	if err := app.Run(); err != nil {
		log.Fatalf("run app: %v", err)
	}
}
