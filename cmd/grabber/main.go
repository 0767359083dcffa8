package main

import (
	"context"
	"log/slog"
	"os"

	"github.com/dandantas/grabber/internal/cli"
)

func main() {
	if err := cli.NewRootCmd().ExecuteContext(context.Background()); err != nil {
		slog.Error("grabber failed", "error", err)
		os.Exit(1)
	}
}
