package main

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"commuterbliss/internal/device"
	"commuterbliss/internal/location"
	"commuterbliss/internal/pipeline"
	"commuterbliss/internal/stations"
)

var onceOpts struct {
	device string
	lat    float64
	lon    float64
	at     string
}

var onceCmd = &cobra.Command{
	Use:   "once",
	Short: "Run one update cycle and print the message",
	Long: `Run a single update cycle with the configured preferences and print the
outbound message as one JSON line. Pass --lat and --lon to simulate a
location fix, or --at to pretend it is another time of day.`,
	RunE: runOnce,
}

func init() {
	f := onceCmd.Flags()
	f.StringVar(&onceOpts.device, "device", "cli", "device id recorded in the dispatch log")
	f.Float64Var(&onceOpts.lat, "lat", 0, "latitude of a simulated fix")
	f.Float64Var(&onceOpts.lon, "lon", 0, "longitude of a simulated fix")
	f.StringVar(&onceOpts.at, "at", "", `local time to run the cycle at, "15:04" or RFC 3339`)
	f.StringVar(&cfg.Preferences.Home, "home", cfg.Preferences.Home, "home station code")
	f.StringVar(&cfg.Preferences.Work, "work", cfg.Preferences.Work, "work station code")
	f.BoolVar(&cfg.Preferences.UseLocation, "use-location", cfg.Preferences.UseLocation, "pick the origin from the fix")
	f.BoolVar(&cfg.Preferences.CheckTime, "check-time", cfg.Preferences.CheckTime, "verify the clock offset")
	f.BoolVar(&cfg.Preferences.UseHTTPS, "https", cfg.Preferences.UseHTTPS, "talk to the board over HTTPS")
	rootCmd.AddCommand(onceCmd)
}

func runOnce(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	prefs := cfg.Preferences
	prefs.Home = stations.NormalizeCode(prefs.Home)
	prefs.Work = stations.NormalizeCode(prefs.Work)

	now, err := parseAt(onceOpts.at, time.Now())
	if err != nil {
		return err
	}

	a, err := newApp(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer a.Close()

	for _, code := range []string{prefs.Home, prefs.Work} {
		if _, ok := a.index.LookupByCode(code); !ok {
			return fmt.Errorf("unknown station %q", code)
		}
	}

	var loc location.Locator
	if cmd.Flags().Changed("lat") || cmd.Flags().Changed("lon") {
		loc = location.Static{Lat: onceOpts.lat, Lon: onceOpts.lon}
	}

	out := device.NewRecorder(device.NewWriter(os.Stdout), a.db, logger)
	pipe := pipeline.New(a.resolver, a.source, a.clock, out, cfg.NumberOfTrains, logger, a.metrics)
	res, err := pipe.Run(ctx, pipeline.Trigger{
		DeviceID: onceOpts.device,
		Prefs:    prefs,
		Locator:  loc,
		Now:      now,
	})
	pipe.Wait()
	if err != nil {
		return err
	}
	logger.Info("cycle finished", "cycle", res.CycleID, "route", res.Resolution.Route.String(), "failed", res.Failed)
	return nil
}

// parseAt reads the --at flag. A bare "15:04" means that time today.
func parseAt(s string, now time.Time) (time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return now, nil
	}
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t, nil
	}
	t, err := time.ParseInLocation("15:04", s, now.Location())
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid --at %q: want 15:04 or RFC 3339", s)
	}
	return time.Date(now.Year(), now.Month(), now.Day(), t.Hour(), t.Minute(), 0, 0, now.Location()), nil
}
