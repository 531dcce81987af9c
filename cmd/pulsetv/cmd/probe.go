package cmd

import (
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/pulsetv/pulsetv/internal/playback"
	"github.com/pulsetv/pulsetv/internal/probe"
)

var probeContentType string

// probeCmd measures a stream's connection quality and prints the player
// settings that playback would start with.
var probeCmd = &cobra.Command{
	Use:   "probe URL",
	Short: "Measure connection quality for a stream URL",
	Long: `Probe measures round-trip latency and download throughput for a stream
URL, then prints the speed category and the player settings that would be
used for playback.`,
	Args: cobra.ExactArgs(1),
	RunE: runProbe,
}

func init() {
	probeCmd.Flags().StringVar(&probeContentType, "content-type", "live", "content type (live, movie, series)")
	rootCmd.AddCommand(probeCmd)
}

func runProbe(cmd *cobra.Command, args []string) error {
	url := args[0]
	contentType := playback.ParseContentType(probeContentType)

	prober := probe.New(probe.Config{
		Timeout:    cfg.Probe.Timeout,
		SampleSize: int64(cfg.Probe.SampleSize),
		Logger:     slog.Default(),
	})

	info := prober.Probe(cmd.Context(), url)
	settings := playback.ResolveSettings(info, contentType)

	fmt.Printf("latency:         %s\n", info.Latency)
	fmt.Printf("download:        %.1f Mbps\n", info.DownloadMbps)
	fmt.Printf("speed category:  %s\n", info.SpeedCategory)
	fmt.Printf("stable:          %t\n", info.IsStable)
	fmt.Println()
	fmt.Printf("network caching: %s\n", settings.NetworkCaching)
	fmt.Printf("live caching:    %s\n", settings.LiveCaching)
	fmt.Printf("connect timeout: %s\n", settings.ConnectTimeout)
	fmt.Printf("reconnect:       %d attempts, %s apart\n", settings.ReconnectAttempts, settings.ReconnectDelay)
	fmt.Printf("quality:         %s (adaptive: %t)\n", settings.PreferredQuality, settings.AdaptiveQuality)

	return nil
}
