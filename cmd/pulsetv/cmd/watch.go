package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/pulsetv/pulsetv/internal/api"
	"github.com/pulsetv/pulsetv/internal/device"
	"github.com/pulsetv/pulsetv/internal/metrics"
	"github.com/pulsetv/pulsetv/internal/netplayer"
	"github.com/pulsetv/pulsetv/internal/playback"
	"github.com/pulsetv/pulsetv/internal/probe"
)

var (
	watchContentType string
	watchNoProbe     bool
)

// watchCmd plays a stream with the full adaptation loop and diagnostics API.
var watchCmd = &cobra.Command{
	Use:   "watch URL",
	Short: "Play a stream with adaptive quality control",
	Long: `Watch pulls a stream with the built-in network player and runs the
adaptation loop against it: quality downgrades, buffer increases, stall
recovery, and bounded reconnects, driven by live buffering telemetry.

While playing, the diagnostics API serves session state and Prometheus
metrics (see the api section of the configuration).`,
	Args: cobra.ExactArgs(1),
	RunE: runWatch,
}

func init() {
	watchCmd.Flags().StringVar(&watchContentType, "content-type", "live", "content type (live, movie, series)")
	watchCmd.Flags().BoolVar(&watchNoProbe, "no-probe", false, "skip the background connection probe")
	rootCmd.AddCommand(watchCmd)
}

func runWatch(cmd *cobra.Command, args []string) error {
	logger := slog.Default()
	url := args[0]
	contentType := playback.ParseContentType(watchContentType)

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	recorder := metrics.NewRecorder()
	devices := device.NewCollector()
	player := netplayer.New(cfg.Player, logger)

	hostSnap := devices.Collect(ctx)
	logger.Info("host inspected",
		slog.Int("cpu_cores", hostSnap.CPUCores),
		slog.Bool("hardware_decode", hostSnap.RecommendHardwareDecode()),
	)

	var prober *probe.Prober
	if !watchNoProbe {
		prober = probe.New(probe.Config{
			Timeout:    cfg.Probe.Timeout,
			SampleSize: int64(cfg.Probe.SampleSize),
			Logger:     logger,
			Observe:    recorder.ProbeObserved,
		})
	}

	manager := playback.NewManager(logger)
	session := manager.Create(player, playback.SessionOptions{
		Logger:   logger,
		Prober:   prober,
		Recorder: recorder,
		Controller: playback.ControllerConfig{
			TickInterval:          cfg.Playback.TickInterval,
			EventWindow:           cfg.Playback.EventWindow,
			QualityCooldown:       cfg.Playback.QualityCooldown,
			RecoveryHold:          cfg.Playback.RecoveryHold,
			StabilizationAfter:    cfg.Playback.StabilizationAfter,
			MaxDowngradesQuality:  playback.DefaultControllerConfig().MaxDowngradesQuality,
			MaxDowngradesRecovery: playback.DefaultControllerConfig().MaxDowngradesRecovery,
		},
		Callbacks: playback.Callbacks{
			OnStatusChanged: func(text string) {
				logger.Info("playback status", slog.String("status", text))
			},
			OnQualityAnalyzed: func(summary playback.ConnectionSummary) {
				logger.Info("connection analyzed", slog.String("summary", summary.Text))
			},
			OnQualityDowngradeRequested: func(tier playback.QualityTier) {
				logger.Info("quality downgraded", slog.String("tier", tier.String()))
			},
			OnRestartRequired: func(settings playback.PlayerSettings) {
				// The headless player applies new buffering settings by
				// re-pulling the stream.
				if err := player.Play(ctx, url, settings); err != nil {
					logger.Error("restarting stream", slog.String("error", err.Error()))
				}
			},
		},
	})

	if err := session.Start(ctx, url, contentType); err != nil {
		return fmt.Errorf("starting session: %w", err)
	}

	apiDone := make(chan error, 1)
	if cfg.API.Enabled {
		server := api.NewServer(cfg.API, api.Options{
			Logger:   logger,
			Sessions: manager,
			Devices:  devices,
			Metrics:  recorder.Handler(),
		})
		go func() {
			apiDone <- server.Run(ctx)
		}()
	} else {
		close(apiDone)
	}

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), cfg.API.ShutdownTimeout)
	defer cancel()
	manager.StopAll(shutdownCtx)

	if err := <-apiDone; err != nil {
		return fmt.Errorf("diagnostics server: %w", err)
	}
	return nil
}
