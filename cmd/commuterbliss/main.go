package main

import (
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"commuterbliss/internal/config"
)

var (
	cfg    = config.Load()
	logger *slog.Logger
)

var rootCmd = &cobra.Command{
	Use:   "commuterbliss",
	Short: "Commuter Bliss - next trains for your watch",
	Long: `Commuter Bliss works out which way you are commuting, fetches the next
departures for that route and hands a compact message to the watch face.`,
	SilenceUsage: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		logger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
			Level: parseLevel(cfg.LogLevel),
		}))
	},
}

func init() {
	flags := rootCmd.PersistentFlags()
	flags.StringVar(&cfg.DBPath, "db", cfg.DBPath, "SQLite database path")
	flags.StringVar(&cfg.LogLevel, "log-level", cfg.LogLevel, "debug, info, warn or error")
	flags.BoolVar(&cfg.Tracing, "tracing", cfg.Tracing, "write trace spans to stdout")
	flags.StringVar(&cfg.BoardHost, "board-host", cfg.BoardHost, "departure board host")
	flags.StringVar(&cfg.TimeHost, "time-host", cfg.TimeHost, "time reference host")
	flags.StringVar(&cfg.ScheduleSource, "source", cfg.ScheduleSource, "schedule source: board or gtfsrt")
	flags.StringVar(&cfg.GTFSRTURL, "gtfsrt-url", cfg.GTFSRTURL, "GTFS-RT TripUpdates feed URL")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func parseLevel(level string) slog.Leveler {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
