package main

import (
	"context"
	"os"
	"os/exec"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/jetkvm/jiggler"
	"github.com/jetkvm/jiggler/internal/logging"
	"github.com/jetkvm/jiggler/internal/ota"
	"github.com/jetkvm/jiggler/internal/storage"
)

const runtimeDir = "/run/jiggler"

func main() {
	logger := logging.GetDefaultLogger()

	opts, err := jiggler.LoadOptions()
	if err != nil {
		logger.Fatal().Err(err).Msg("invalid runtime options")
	}
	if err := logging.SetLevel(opts.LogLevel); err != nil {
		logger.Warn().Err(err).Str("level", opts.LogLevel).Msg("invalid log level, keeping default")
	}

	systemVersion, appVersion, err := jiggler.GetLocalVersion()
	if err != nil {
		logger.Warn().Err(err).Msg("failed to read local version")
	}
	logger.Info().
		Interface("app_version", appVersion).
		Interface("system_version", systemVersion).
		Msg("starting jiggler")

	docs, err := storage.NewFileStore(opts.DataDir)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to open data directory")
	}

	gadget, err := jiggler.NewMouseGadget(opts)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to set up USB gadget")
	}
	defer gadget.Close()

	device := jiggler.NewDevice(jiggler.DeviceOptions{
		Docs:       docs,
		Sink:       gadget,
		Network:    jiggler.NewWifiRoles(opts.WifiInterface, runtimeDir),
		Stager:     ota.NewStager(filepath.Join(opts.DataDir, "ota"), appVersion, nil),
		Reboot:     reboot,
		Static:     os.DirFS(opts.StaticDir),
		Version:    appVersion,
		ListenPort: opts.ListenPort,
	})

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := device.Run(ctx); err != nil {
		logger.Error().Err(err).Msg("jiggler stopped with error")
		return
	}
	logger.Info().Msg("jiggler shutting down")
}

func reboot() error {
	return exec.Command("reboot").Run()
}
