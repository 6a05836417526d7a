package gtfs

import (
	"sort"
	"strconv"

	"commuterbliss/internal/stations"
)

// Stop is one row of stops.txt. Rail feeds carry the station's three-letter
// code in stop_code, sometimes only in stop_id.
type Stop struct {
	StopID        string `csv:"stop_id"`
	StopCode      string `csv:"stop_code"`
	StopName      string `csv:"stop_name"`
	StopLat       string `csv:"stop_lat"`
	StopLon       string `csv:"stop_lon"`
	LocationType  string `csv:"location_type"`
	ParentStation string `csv:"parent_station"`
}

// Code returns the stop's station code, or "" when it has none.
func (s Stop) Code() string {
	for _, c := range []string{s.StopCode, s.StopID} {
		if code := stations.NormalizeCode(c); stations.ValidCode(code) {
			return code
		}
	}
	return ""
}

// Stations turns stops into a station table. Stops without a code or
// coordinates are skipped. When several stops share a code the station
// record (location_type 1) wins over platforms and boarding points.
func Stations(stops []Stop) (list []stations.Station, skipped int) {
	type candidate struct {
		station stations.Station
		parent  bool
	}
	byCode := make(map[string]candidate)

	for _, s := range stops {
		code := s.Code()
		if code == "" || (s.LocationType != "" && s.LocationType != "0" && s.LocationType != "1") {
			skipped++
			continue
		}
		lat, errLat := strconv.ParseFloat(s.StopLat, 64)
		lon, errLon := strconv.ParseFloat(s.StopLon, 64)
		if errLat != nil || errLon != nil || lat < -90 || lat > 90 || lon < -180 || lon > 180 {
			skipped++
			continue
		}
		c := candidate{
			station: stations.Station{Code: code, Name: s.StopName, Lat: lat, Lon: lon},
			parent:  s.LocationType == "1",
		}
		if prev, ok := byCode[code]; ok {
			skipped++
			if prev.parent || !c.parent {
				continue
			}
		}
		byCode[code] = c
	}

	list = make([]stations.Station, 0, len(byCode))
	for _, c := range byCode {
		list = append(list, c.station)
	}
	sort.Slice(list, func(i, j int) bool { return list[i].Code < list[j].Code })
	return list, skipped
}
