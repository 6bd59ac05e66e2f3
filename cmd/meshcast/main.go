package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/pflag"

	router "github.com/dkeye/meshcast/internal/adapters/http"
	"github.com/dkeye/meshcast/internal/adapters/media"
	"github.com/dkeye/meshcast/internal/adapters/rtc"
	signalws "github.com/dkeye/meshcast/internal/adapters/signal"
	"github.com/dkeye/meshcast/internal/app/negotiate"
	"github.com/dkeye/meshcast/internal/app/orch"
	"github.com/dkeye/meshcast/internal/app/remote"
	"github.com/dkeye/meshcast/internal/config"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	zerolog.SetGlobalLevel(zerolog.InfoLevel)

	flags := pflag.NewFlagSet("meshcast", pflag.ExitOnError)
	config.RegisterFlags(flags)
	_ = flags.Parse(os.Args[1:])

	cfg, err := config.Load(flags)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load config")
	}
	zerolog.SetGlobalLevel(cfg.Level())

	api, err := rtc.NewAPI()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to build webrtc api")
	}

	var sinks remote.SinkFactory
	if cfg.Media.RecordDir != "" {
		sinks = media.Recorder(cfg.Media.RecordDir)
	}

	o := orch.New(orch.Deps{
		Factory: rtc.Factory(api, rtc.Config(cfg.ICEServers)),
		Media: &media.FileProvider{
			VideoFile:  cfg.Media.VideoFile,
			AudioFile:  cfg.Media.AudioFile,
			ScreenFile: cfg.Media.ScreenFile,
		},
		Sinks:  sinks,
		Policy: negotiate.IDPolicy{},
	})
	log.Info().Str("client_id", string(o.Self())).Msg("session created")

	if cfg.Media.VideoFile != "" {
		// media outlives a signaling outage; Stop releases it
		if err := o.StartCamera(context.WithoutCancel(ctx)); err != nil {
			log.Warn().Err(err).Msg("camera not started")
		}
	}

	client := signalws.NewClient(signalws.Options{
		URL:        cfg.SignalURL,
		ClientID:   o.Self(),
		ReadLimit:  cfg.ReadLimit,
		PingPeriod: cfg.PingPeriod,
		SendBuffer: cfg.SendBuffer,
	})
	go runSignaling(ctx, client, o, cfg.ReconnectDelay)

	addr := fmt.Sprintf(":%d", cfg.Port)
	srv := &http.Server{
		Addr:    addr,
		Handler: router.SetupRouter(cfg, o),
	}

	go func() {
		log.Info().Str("addr", addr).Msg("control API started")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error().Err(err).Msg("server error")
		}
	}()

	select {
	case <-ctx.Done():
	case <-o.Done():
	}
	log.Info().Msg("Shutting down")
	o.Stop()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Server forced to shutdown")
	}
	log.Info().Msg("Exited gracefully")
}

// runSignaling keeps one relay connection open until ctx ends or the
// session stops, redialing after delay.
func runSignaling(ctx context.Context, client *signalws.Client, o *orch.Orchestrator, delay time.Duration) {
	for {
		conn, msgs, err := client.Connect(ctx)
		if err != nil {
			log.Warn().Err(err).Str("module", "signal").Dur("retry_in", delay).Msg("connect failed")
		} else {
			o.OnSignalConnected(conn)
			err = o.Run(ctx, msgs)
			o.OnSignalDisconnected()
			_ = conn.Close()
			if errors.Is(err, orch.ErrStopped) {
				return
			}
		}

		select {
		case <-ctx.Done():
			return
		case <-o.Done():
			return
		case <-time.After(delay):
		}
	}
}
