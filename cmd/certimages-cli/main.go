package main

import (
	"errors"
	"log/slog"
	"os"

	"certimages-backend/cmd/certimages-cli/commands"
	"certimages-backend/lib/telemetry"
	"certimages-backend/lib/util/serviceutil"
)

func main() {
	ctx, cancel := serviceutil.SignalContext()
	defer cancel()

	tel, err := telemetry.SetupFromEnv(ctx, "certimages-cli")
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		slog.Warn("failed to setup telemetry", "err", err)
	}
	defer func() {
		shutdownCtx, cancel := serviceutil.ShutdownContext(ctx)
		defer cancel()
		tel.Shutdown(shutdownCtx)
	}()

	commands.ExecuteContext(ctx)
}
