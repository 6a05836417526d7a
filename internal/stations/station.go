package stations

import (
	"bytes"
	_ "embed"
	"encoding/csv"
	"fmt"
	"io"
	"strconv"
	"strings"
)

// Station is a rail station identified by its three-letter CRS code.
type Station struct {
	Code string
	Name string
	Lat  float64
	Lon  float64
}

//go:embed stations.csv
var defaultCSV []byte

// Default returns the embedded station table.
func Default() ([]Station, error) {
	return ParseCSV(bytes.NewReader(defaultCSV))
}

// NormalizeCode upper-cases and trims a station code.
func NormalizeCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

// ValidCode reports whether code is exactly three upper-case letters.
func ValidCode(code string) bool {
	if len(code) != 3 {
		return false
	}
	for i := 0; i < len(code); i++ {
		if code[i] < 'A' || code[i] > 'Z' {
			return false
		}
	}
	return true
}

// ParseCSV reads a code,name,lat,lon table. Column order is taken from the header.
func ParseCSV(r io.Reader) ([]Station, error) {
	reader := csv.NewReader(r)
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if err != nil {
		return nil, fmt.Errorf("read header: %w", err)
	}
	// Strip BOM from first field if present
	if len(header) > 0 {
		header[0] = strings.TrimPrefix(header[0], "\xef\xbb\xbf")
	}

	col := make(map[string]int, len(header))
	for i, name := range header {
		col[strings.ToLower(strings.TrimSpace(name))] = i
	}
	for _, name := range []string{"code", "name", "lat", "lon"} {
		if _, ok := col[name]; !ok {
			return nil, fmt.Errorf("missing column %q", name)
		}
	}

	var out []Station
	for line := 2; ; line++ {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read record: %w", err)
		}
		lat, err := strconv.ParseFloat(record[col["lat"]], 64)
		if err != nil {
			return nil, fmt.Errorf("line %d: parse lat: %w", line, err)
		}
		lon, err := strconv.ParseFloat(record[col["lon"]], 64)
		if err != nil {
			return nil, fmt.Errorf("line %d: parse lon: %w", line, err)
		}
		out = append(out, Station{
			Code: NormalizeCode(record[col["code"]]),
			Name: strings.TrimSpace(record[col["name"]]),
			Lat:  lat,
			Lon:  lon,
		})
	}
	return out, nil
}
