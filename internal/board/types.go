package board

// Board is the departure-board response for one origin/destination pair.
type Board struct {
	GeneratedAt   string         `json:"generatedAt,omitempty"`
	LocationName  string         `json:"locationName,omitempty"`
	CRS           string         `json:"crs,omitempty"`
	TrainServices []RawDeparture `json:"trainServices"` // null when nothing is running
}

// RawDeparture is one service as returned by the board, before normalization.
type RawDeparture struct {
	Scheduled    string     `json:"std"` // "HH:MM"
	Estimated    string     `json:"etd"` // "HH:MM", "On time", "Delayed", "Cancelled" or empty
	Destinations []Location `json:"destination"`
	Platform     string     `json:"platform,omitempty"`
	Operator     string     `json:"operator,omitempty"`
}

// Location is a calling point reference.
type Location struct {
	CRS          string `json:"crs"`
	LocationName string `json:"locationName,omitempty"`
}

// DestinationCode is the first destination's CRS, or "" when none is listed.
func (d RawDeparture) DestinationCode() string {
	if len(d.Destinations) == 0 {
		return ""
	}
	return d.Destinations[0].CRS
}

// Query selects departures from Origin towards Destination.
type Query struct {
	Origin      string
	Destination string
	Limit       int
	HTTPS       bool // ignored by sources that are not the board API
}
