package gtfs

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
)

// Downloader fetches GTFS zip files with conditional requests.
type Downloader struct {
	client *http.Client
	url    string
	dir    string // where downloaded archives are written
	logger *slog.Logger
}

// NewDownloader creates a Downloader for the given GTFS URL.
func NewDownloader(url, dir string, logger *slog.Logger) *Downloader {
	return &Downloader{
		client: &http.Client{},
		url:    url,
		dir:    dir,
		logger: logger,
	}
}

// Version identifies a downloaded feed for the next conditional request.
type Version struct {
	LastModified string
	ETag         string
}

// Download fetches the archive unless the server reports it unchanged since
// prev. It returns the path of the new file, or "" when nothing changed.
func (d *Downloader) Download(ctx context.Context, prev Version) (path string, v Version, err error) {
	if err := os.MkdirAll(d.dir, 0755); err != nil {
		return "", v, fmt.Errorf("create dir: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, "GET", d.url, nil)
	if err != nil {
		return "", v, fmt.Errorf("create request: %w", err)
	}
	if prev.LastModified != "" {
		req.Header.Set("If-Modified-Since", prev.LastModified)
	}
	if prev.ETag != "" {
		req.Header.Set("If-None-Match", prev.ETag)
	}

	d.logger.Info("downloading GTFS feed", "url", d.url)
	resp, err := d.client.Do(req)
	if err != nil {
		return "", v, fmt.Errorf("GET request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotModified {
		d.logger.Info("GTFS feed not modified")
		return "", prev, nil
	}
	if resp.StatusCode != http.StatusOK {
		return "", v, fmt.Errorf("unexpected status: %d", resp.StatusCode)
	}

	tmpFile, err := os.CreateTemp(d.dir, "gtfs-*.zip")
	if err != nil {
		return "", v, fmt.Errorf("create temp file: %w", err)
	}
	defer tmpFile.Close()

	written, err := io.Copy(tmpFile, resp.Body)
	if err != nil {
		os.Remove(tmpFile.Name())
		return "", v, fmt.Errorf("write file: %w", err)
	}

	v = Version{
		LastModified: resp.Header.Get("Last-Modified"),
		ETag:         resp.Header.Get("ETag"),
	}
	d.logger.Info("GTFS feed downloaded",
		"path", filepath.Base(tmpFile.Name()),
		"size_kb", written/1024,
	)
	return tmpFile.Name(), v, nil
}
