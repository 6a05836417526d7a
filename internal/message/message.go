package message

import (
	"bytes"
	"encoding/json"
	"fmt"
	"time"

	"google.golang.org/protobuf/types/known/structpb"

	"commuterbliss/internal/config"
	"commuterbliss/internal/location"
	"commuterbliss/internal/schedule"
)

// Pair is one key/value entry. Values are int, int64 or string.
type Pair struct {
	Key   Key
	Value any
}

// Message is an ordered flat dictionary ready for the device.
type Message []Pair

// Get returns the value stored under a key name.
func (m Message) Get(name string) (any, bool) {
	for _, p := range m {
		if p.Key.Name == name {
			return p.Value, true
		}
	}
	return nil, false
}

// Dict returns the message keyed by name.
func (m Message) Dict() map[string]any {
	out := make(map[string]any, len(m))
	for _, p := range m {
		out[p.Key.Name] = p.Value
	}
	return out
}

// ByID returns the message keyed by AppMessage id.
func (m Message) ByID() map[int]any {
	out := make(map[int]any, len(m))
	for _, p := range m {
		out[p.Key.ID] = p.Value
	}
	return out
}

// MarshalJSON writes a JSON object with keys in id order.
func (m Message) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, p := range m {
		if i > 0 {
			buf.WriteByte(',')
		}
		k, err := json.Marshal(p.Key.Name)
		if err != nil {
			return nil, err
		}
		v, err := json.Marshal(p.Value)
		if err != nil {
			return nil, fmt.Errorf("marshal %s: %w", p.Key.Name, err)
		}
		buf.Write(k)
		buf.WriteByte(':')
		buf.Write(v)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// Proto converts the message to a protobuf Struct.
func (m Message) Proto() (*structpb.Struct, error) {
	return structpb.NewStruct(m.Dict())
}

// Slot is one train position on the watch face.
type Slot struct {
	Time      int64
	Dest      string
	Platform  int // only sent for the first slot
	Cancelled bool
}

// Outbound is the full schedule message. Every field is always sent.
type Outbound struct {
	Origin      string
	Destination string
	Trains      [schedule.MaxTrains]Slot

	CustomisedDays  bool
	Days            [7]bool // indexed by time.Weekday
	CustomisedTimes bool
	MorningStart    int
	MorningEnd      int
	AfternoonStart  int
	AfternoonEnd    int

	OffsetMillis    int64
	Failed          bool
	UpdateOnlyOnTap bool
}

// Message lays the fields out under their keys in id order.
func (o Outbound) Message() Message {
	t := o.Trains
	return Message{
		{KeyUpdate, 0},
		{KeyCurrentOrigin, o.Origin},
		{KeyCurrentDestination, o.Destination},
		{KeyTrain1Time, t[0].Time},
		{KeyTrain1Dest, t[0].Dest},
		{KeyTrain1Platform, t[0].Platform},
		{KeyTrain2Time, t[1].Time},
		{KeyTrain3Time, t[2].Time},
		{KeyTrain1IsCanceled, flag(t[0].Cancelled)},
		{KeyCustomisedDays, flag(o.CustomisedDays)},
		{KeyUseMonday, flag(o.Days[time.Monday])},
		{KeyUseTuesday, flag(o.Days[time.Tuesday])},
		{KeyUseWednesday, flag(o.Days[time.Wednesday])},
		{KeyUseThursday, flag(o.Days[time.Thursday])},
		{KeyUseFriday, flag(o.Days[time.Friday])},
		{KeyUseSaturday, flag(o.Days[time.Saturday])},
		{KeyUseSunday, flag(o.Days[time.Sunday])},
		{KeyCustomisedTimes, flag(o.CustomisedTimes)},
		{KeyMorningStart, o.MorningStart},
		{KeyMorningEnd, o.MorningEnd},
		{KeyAfternoonStart, o.AfternoonStart},
		{KeyAfternoonEnd, o.AfternoonEnd},
		{KeyTrain2Dest, t[1].Dest},
		{KeyTrain3Dest, t[2].Dest},
		{KeyTrain2IsCanceled, flag(t[1].Cancelled)},
		{KeyTrain3IsCanceled, flag(t[2].Cancelled)},
		{KeyTimeDiffFromUTC, o.OffsetMillis},
		{KeyLastRequestFailed, flag(o.Failed)},
		{KeyUpdateOnlyOnTap, flag(o.UpdateOnlyOnTap)},
	}
}

// MarshalJSON encodes the outbound message as its ordered dictionary.
func (o Outbound) MarshalJSON() ([]byte, error) {
	return o.Message().MarshalJSON()
}

// Input is everything one cycle contributes to the outbound message.
type Input struct {
	Route        location.Route
	Trains       []schedule.TrainStatus // nil when no schedule was obtained
	OffsetMillis int64
	Prefs        config.Preferences
	Failed       bool
}

// Assemble builds the outbound message. A failed fetch or a stationary
// route leaves every train field at zero; only a failure sets the failed flag.
func Assemble(in Input) Outbound {
	p := in.Prefs
	out := Outbound{
		Origin:          in.Route.Origin,
		Destination:     in.Route.Destination,
		CustomisedDays:  p.CustomisedDays,
		Days:            p.ActiveDays,
		CustomisedTimes: p.CustomisedTimes,
		MorningStart:    p.MorningStart,
		MorningEnd:      p.MorningEnd,
		AfternoonStart:  p.AfternoonStart,
		AfternoonEnd:    p.AfternoonEnd,
		OffsetMillis:    in.OffsetMillis,
		Failed:          in.Failed,
		UpdateOnlyOnTap: p.UpdateOnlyOnTap,
	}
	if in.Failed || in.Route.Stationary() {
		return out
	}

	for i, tr := range in.Trains {
		if i == schedule.MaxTrains {
			break
		}
		out.Trains[i] = Slot{
			Time:      tr.EpochSeconds(),
			Dest:      tr.Destination,
			Cancelled: tr.Cancelled,
		}
		if i == 0 {
			out.Trains[i].Platform = tr.Platform
		}
	}
	return out
}

// Handshake is the preferences-only message pushed when a device connects
// with customised days or times. Train keys are left out so the watch keeps
// what it is showing.
func Handshake(route location.Route, p config.Preferences, offsetMillis int64) Message {
	return Message{
		{KeyUpdate, 0},
		{KeyCurrentOrigin, route.Origin},
		{KeyCurrentDestination, route.Destination},
		{KeyCustomisedDays, flag(p.CustomisedDays)},
		{KeyUseMonday, flag(p.ActiveDays[time.Monday])},
		{KeyUseTuesday, flag(p.ActiveDays[time.Tuesday])},
		{KeyUseWednesday, flag(p.ActiveDays[time.Wednesday])},
		{KeyUseThursday, flag(p.ActiveDays[time.Thursday])},
		{KeyUseFriday, flag(p.ActiveDays[time.Friday])},
		{KeyUseSaturday, flag(p.ActiveDays[time.Saturday])},
		{KeyUseSunday, flag(p.ActiveDays[time.Sunday])},
		{KeyCustomisedTimes, flag(p.CustomisedTimes)},
		{KeyMorningStart, p.MorningStart},
		{KeyMorningEnd, p.MorningEnd},
		{KeyAfternoonStart, p.AfternoonStart},
		{KeyAfternoonEnd, p.AfternoonEnd},
		{KeyTimeDiffFromUTC, offsetMillis},
		{KeyLastRequestFailed, 0},
		{KeyUpdateOnlyOnTap, flag(p.UpdateOnlyOnTap)},
	}
}

// NeedsHandshake reports whether the connect-time preferences push applies.
func NeedsHandshake(p config.Preferences) bool {
	return p.CustomisedDays || p.CustomisedTimes
}

func flag(b bool) int {
	if b {
		return 1
	}
	return 0
}
