package schedule

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"commuterbliss/internal/board"
)

// MaxTrains is the number of departures the device message has room for.
const MaxTrains = 3

// EstimateCancelled is the only estimate literal that changes the output.
const EstimateCancelled = "Cancelled"

// TrainStatus is a normalized departure.
type TrainStatus struct {
	Departs     time.Time
	Destination string
	Platform    int // -1 when unknown
	Cancelled   bool
}

// EpochSeconds is the departure as Unix seconds.
func (t TrainStatus) EpochSeconds() int64 {
	return t.Departs.Unix()
}

// Skipped describes a raw record that could not be normalized.
type Skipped struct {
	Index int
	Err   error
}

// Normalize converts up to MaxTrains raw departures in feed order. The
// departure clock always comes from the scheduled time; the estimate only
// sets the cancelled flag. Records with an unparseable scheduled time are
// reported in skipped and do not take a slot.
func Normalize(raw []board.RawDeparture, now time.Time) (trains []TrainStatus, skipped []Skipped) {
	for i, r := range raw {
		if len(trains) == MaxTrains {
			break
		}
		departs, err := DepartureTime(r.Scheduled, now)
		if err != nil {
			skipped = append(skipped, Skipped{Index: i, Err: err})
			continue
		}
		trains = append(trains, TrainStatus{
			Departs:     departs,
			Destination: r.DestinationCode(),
			Platform:    ParsePlatform(r.Platform),
			Cancelled:   r.Estimated == EstimateCancelled,
		})
	}
	return trains, skipped
}

// DepartureTime places an "HH:MM" clock time on now's date in now's
// location with seconds cleared. Times from 00:00 to 03:59 are moved to the
// next day.
func DepartureTime(hhmm string, now time.Time) (time.Time, error) {
	h, m, err := parseClock(hhmm)
	if err != nil {
		return time.Time{}, err
	}
	y, mo, d := now.Date()
	t := time.Date(y, mo, d, h, m, 0, 0, now.Location())
	if t.Hour() >= 0 && t.Hour() <= 3 {
		t = t.AddDate(0, 0, 1)
	}
	return t, nil
}

func parseClock(s string) (int, int, error) {
	hs, ms, ok := strings.Cut(strings.TrimSpace(s), ":")
	if !ok {
		return 0, 0, fmt.Errorf("invalid departure time %q", s)
	}
	h, err := strconv.Atoi(hs)
	if err != nil || h < 0 || h > 23 {
		return 0, 0, fmt.Errorf("invalid departure hour in %q", s)
	}
	m, err := strconv.Atoi(ms)
	if err != nil || m < 0 || m > 59 {
		return 0, 0, fmt.Errorf("invalid departure minute in %q", s)
	}
	return h, m, nil
}

// ParsePlatform reads the leading integer of a platform string, so "3" and
// "3a" both give 3. Missing or non-numeric platforms give -1.
func ParsePlatform(s string) int {
	s = strings.TrimSpace(s)
	end := 0
	for end < len(s) && s[end] >= '0' && s[end] <= '9' {
		end++
	}
	if end == 0 {
		return -1
	}
	n, err := strconv.Atoi(s[:end])
	if err != nil {
		return -1
	}
	return n
}
