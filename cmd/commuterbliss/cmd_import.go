package main

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"commuterbliss/internal/gtfs"
	"commuterbliss/internal/stations"
	"commuterbliss/internal/storage"
)

// Metadata keys remembering the last GTFS download.
const (
	keyGTFSLastModified = "gtfs_last_modified"
	keyGTFSETag         = "gtfs_etag"
)

var importOpts struct {
	gtfs  string
	force bool
}

var importCmd = &cobra.Command{
	Use:   "import-stations [file.csv]",
	Short: "Replace the station table",
	Long: `Load stations from a code,name,lat,lon CSV file, from the stops of a
static GTFS feed (--gtfs, a zip path or URL), or from the built-in table when
neither is given, and replace the stored station list.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runImport,
}

func init() {
	importCmd.Flags().StringVar(&importOpts.gtfs, "gtfs", "", "GTFS zip file or URL to take stations from")
	importCmd.Flags().BoolVar(&importOpts.force, "force", false, "download the GTFS feed even if unchanged")
	rootCmd.AddCommand(importCmd)
}

func runImport(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	if importOpts.gtfs != "" && len(args) > 0 {
		return fmt.Errorf("give either a CSV file or --gtfs, not both")
	}

	db, err := storage.Open(cfg.DBPath, logger)
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer db.Close()

	var (
		list    []stations.Station
		version *gtfs.Version
	)
	if importOpts.gtfs != "" {
		list, version, err = gtfsStations(ctx, db, importOpts.gtfs, importOpts.force)
		if err != nil {
			return err
		}
		if list == nil {
			logger.Info("station table already up to date")
			return nil
		}
	} else {
		list, err = readStations(args)
		if err != nil {
			return err
		}
	}

	if _, err := stations.NewIndex(list); err != nil {
		return fmt.Errorf("invalid station table: %w", err)
	}
	if err := db.ImportStations(ctx, list); err != nil {
		return err
	}
	if version != nil {
		if err := db.SetMetadata(ctx, keyGTFSLastModified, version.LastModified); err != nil {
			logger.Warn("saving GTFS version", "error", err)
		}
		if err := db.SetMetadata(ctx, keyGTFSETag, version.ETag); err != nil {
			logger.Warn("saving GTFS version", "error", err)
		}
	}
	logger.Info("stations imported", "count", len(list), "db", cfg.DBPath)
	return nil
}

func readStations(args []string) ([]stations.Station, error) {
	if len(args) == 0 {
		return stations.Default()
	}
	f, err := os.Open(args[0])
	if err != nil {
		return nil, fmt.Errorf("open stations file: %w", err)
	}
	defer f.Close()
	list, err := stations.ParseCSV(f)
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", args[0], err)
	}
	return list, nil
}

// gtfsStations reads stations from a GTFS zip. A URL is downloaded with a
// conditional request and its version returned; a nil list means the feed
// has not changed since the last import.
func gtfsStations(ctx context.Context, db *storage.DB, src string, force bool) ([]stations.Station, *gtfs.Version, error) {
	path := src
	var version *gtfs.Version
	if strings.HasPrefix(src, "http://") || strings.HasPrefix(src, "https://") {
		var prev gtfs.Version
		if !force {
			prev.LastModified, _ = db.GetMetadata(ctx, keyGTFSLastModified)
			prev.ETag, _ = db.GetMetadata(ctx, keyGTFSETag)
		}
		dir, err := os.MkdirTemp("", "commuterbliss-gtfs-")
		if err != nil {
			return nil, nil, fmt.Errorf("temp dir: %w", err)
		}
		defer os.RemoveAll(dir)

		downloaded, v, err := gtfs.NewDownloader(src, dir, logger).Download(ctx, prev)
		if err != nil {
			return nil, nil, fmt.Errorf("download GTFS: %w", err)
		}
		if downloaded == "" {
			return nil, nil, nil
		}
		path, version = downloaded, &v
	}

	stops, err := gtfs.ReadStops(path)
	if err != nil {
		return nil, nil, fmt.Errorf("read GTFS stops: %w", err)
	}
	list, skipped := gtfs.Stations(stops)
	logger.Info("GTFS stops read", "stops", len(stops), "stations", len(list), "skipped", skipped)
	if len(list) == 0 {
		return nil, nil, fmt.Errorf("no stops in %s carry a three-letter station code", src)
	}
	return list, version, nil
}
