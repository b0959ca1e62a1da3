package main

import (
	"context"
	"log/slog"
	"os"

	"absence/internal/app/server"
	"absence/internal/platform/config"
)

func main() {
	if err := server.Run(context.Background(), config.Load()); err != nil {
		slog.Error("server exited", "err", err)
		os.Exit(1)
	}
}
