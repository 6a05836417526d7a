package config

import (
	"encoding/json"
	"testing"
	"time"
)

func TestLoad_Defaults(t *testing.T) {
	cfg := Load()
	if cfg.Port != 8080 {
		t.Errorf("Port = %d, want 8080", cfg.Port)
	}
	if cfg.ScheduleSource != SourceBoard {
		t.Errorf("ScheduleSource = %q, want %q", cfg.ScheduleSource, SourceBoard)
	}
	if cfg.LocationTimeout != 8*time.Second {
		t.Errorf("LocationTimeout = %v, want 8s", cfg.LocationTimeout)
	}
	if cfg.FeasibilityTimeout != time.Second {
		t.Errorf("FeasibilityTimeout = %v, want 1s", cfg.FeasibilityTimeout)
	}
	if cfg.DeviceKey != "" || cfg.DispatchKeep != 1000 {
		t.Errorf("DeviceKey = %q, DispatchKeep = %d", cfg.DeviceKey, cfg.DispatchKeep)
	}
	p := cfg.Preferences
	if p.Home != "GLC" || p.Work != "EDB" || !p.UseLocation {
		t.Errorf("default preferences = %+v", p)
	}
	if p.MorningStart != 7 || p.MorningEnd != 11 || p.AfternoonStart != 16 || p.AfternoonEnd != 20 {
		t.Errorf("default hours = %d/%d/%d/%d", p.MorningStart, p.MorningEnd, p.AfternoonStart, p.AfternoonEnd)
	}
	for d, on := range p.ActiveDays {
		if !on {
			t.Errorf("ActiveDays[%v] = false, want true", time.Weekday(d))
		}
	}
}

func TestLoad_FromEnv(t *testing.T) {
	t.Setenv("COMMUTER_PORT", "9090")
	t.Setenv("COMMUTER_FETCH_TIMEOUT", "3s")
	t.Setenv("COMMUTER_HOME", "hym")
	t.Setenv("COMMUTER_USE_LOCATION", "False")
	t.Setenv("COMMUTER_ACTIVE_DAYS", "mon,Tuesday,fri")
	t.Setenv("COMMUTER_CHECK_TIME", "1")
	t.Setenv("COMMUTER_MAX_STATION_DISTANCE_M", "2500")

	cfg := Load()
	if cfg.Port != 9090 {
		t.Errorf("Port = %d, want 9090", cfg.Port)
	}
	if cfg.FetchTimeout != 3*time.Second {
		t.Errorf("FetchTimeout = %v, want 3s", cfg.FetchTimeout)
	}
	if cfg.MaxStationDistance != 2500 {
		t.Errorf("MaxStationDistance = %v, want 2500", cfg.MaxStationDistance)
	}
	p := cfg.Preferences
	if p.Home != "HYM" {
		t.Errorf("Home = %q, want HYM", p.Home)
	}
	if p.UseLocation {
		t.Error("UseLocation should be false")
	}
	if !p.CheckTime {
		t.Error("CheckTime should be true")
	}
	want := [7]bool{time.Monday: true, time.Tuesday: true, time.Friday: true}
	if p.ActiveDays != want {
		t.Errorf("ActiveDays = %v, want %v", p.ActiveDays, want)
	}
}

func TestLoad_InvalidValuesFallBack(t *testing.T) {
	t.Setenv("COMMUTER_PORT", "eighty")
	t.Setenv("COMMUTER_FETCH_TIMEOUT", "soon")
	t.Setenv("COMMUTER_USE_HTTPS", "maybe")

	cfg := Load()
	if cfg.Port != 8080 {
		t.Errorf("Port = %d, want fallback 8080", cfg.Port)
	}
	if cfg.FetchTimeout != 10*time.Second {
		t.Errorf("FetchTimeout = %v, want fallback 10s", cfg.FetchTimeout)
	}
	if cfg.Preferences.UseHTTPS {
		t.Error("UseHTTPS should fall back to false")
	}
}

func TestParseDays(t *testing.T) {
	days, err := ParseDays("sat, sun")
	if err != nil {
		t.Fatalf("ParseDays: %v", err)
	}
	if !days[time.Saturday] || !days[time.Sunday] || days[time.Monday] {
		t.Errorf("ParseDays = %v", days)
	}
	if _, err := ParseDays("mon,funday"); err == nil {
		t.Error("ParseDays should reject unknown day")
	}
}

func TestApply(t *testing.T) {
	base := DefaultPreferences()

	tests := []struct {
		name  string
		body  string
		check func(t *testing.T, p Preferences)
	}{
		{
			name: "empty payload keeps everything",
			body: `{}`,
			check: func(t *testing.T, p Preferences) {
				if p != base {
					t.Errorf("Apply({}) = %+v, want %+v", p, base)
				}
			},
		},
		{
			name: "station codes need three letters",
			body: `{"home":"hym","work":"EDINBURGH"}`,
			check: func(t *testing.T, p Preferences) {
				if p.Home != "HYM" {
					t.Errorf("Home = %q, want HYM", p.Home)
				}
				if p.Work != "EDB" {
					t.Errorf("Work = %q, want EDB (unchanged)", p.Work)
				}
			},
		},
		{
			name: "python style booleans and string hours",
			body: `{"useLocation":"False","customisedTimes":"True","morning_start":"6","afternoon_end":23}`,
			check: func(t *testing.T, p Preferences) {
				if p.UseLocation {
					t.Error("UseLocation should be false")
				}
				if !p.CustomisedTimes {
					t.Error("CustomisedTimes should be true")
				}
				if p.MorningStart != 6 || p.AfternoonEnd != 23 {
					t.Errorf("hours = %d, %d; want 6, 23", p.MorningStart, p.AfternoonEnd)
				}
			},
		},
		{
			name: "weekday flags",
			body: `{"customisedDays":true,"use_saturday":false,"use_sunday":"false"}`,
			check: func(t *testing.T, p Preferences) {
				if !p.CustomisedDays {
					t.Error("CustomisedDays should be true")
				}
				if p.ActiveDays[time.Saturday] || p.ActiveDays[time.Sunday] {
					t.Error("weekend should be disabled")
				}
				if !p.ActiveDays[time.Monday] {
					t.Error("Monday should stay enabled")
				}
			},
		},
		{
			name: "flags",
			body: `{"use_HTTPS":true,"check_time":true,"update_only_on_tap":true,"via":"lin"}`,
			check: func(t *testing.T, p Preferences) {
				if !p.UseHTTPS || !p.CheckTime || !p.UpdateOnlyOnTap {
					t.Errorf("flags = %v %v %v", p.UseHTTPS, p.CheckTime, p.UpdateOnlyOnTap)
				}
				if p.Via != "LIN" {
					t.Errorf("Via = %q, want LIN", p.Via)
				}
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var u Update
			if err := json.Unmarshal([]byte(tt.body), &u); err != nil {
				t.Fatalf("Unmarshal: %v", err)
			}
			tt.check(t, base.Apply(u))
		})
	}
}

func TestUpdate_RejectsGarbage(t *testing.T) {
	var u Update
	if err := json.Unmarshal([]byte(`{"useLocation":"perhaps"}`), &u); err == nil {
		t.Error("expected error for invalid boolean")
	}
	if err := json.Unmarshal([]byte(`{"morning_start":"early"}`), &u); err == nil {
		t.Error("expected error for invalid hour")
	}
}
