package config

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Preferences are the user's commute settings. A value is passed into each
// update cycle and never mutated while the cycle runs.
type Preferences struct {
	Home string `json:"home"`
	Work string `json:"work"`
	Via  string `json:"via,omitempty"`

	UseLocation bool `json:"useLocation"`

	CustomisedDays bool    `json:"customisedDays"`
	ActiveDays     [7]bool `json:"activeDays"` // indexed by time.Weekday

	CustomisedTimes bool `json:"customisedTimes"`
	MorningStart    int  `json:"morningStart"`
	MorningEnd      int  `json:"morningEnd"`
	AfternoonStart  int  `json:"afternoonStart"`
	AfternoonEnd    int  `json:"afternoonEnd"`

	UseHTTPS        bool `json:"useHTTPS"`
	CheckTime       bool `json:"checkTime"`
	UpdateOnlyOnTap bool `json:"updateOnlyOnTap"`
}

// DefaultPreferences mirrors the watch's factory settings.
func DefaultPreferences() Preferences {
	return Preferences{
		Home:           "GLC",
		Work:           "EDB",
		UseLocation:    true,
		ActiveDays:     [7]bool{true, true, true, true, true, true, true},
		MorningStart:   7,
		MorningEnd:     11,
		AfternoonStart: 16,
		AfternoonEnd:   20,
	}
}

// LoadPreferences reads COMMUTER_* preference variables over the defaults.
func LoadPreferences() Preferences {
	p := DefaultPreferences()
	p.Home = strings.ToUpper(envStr("COMMUTER_HOME", p.Home))
	p.Work = strings.ToUpper(envStr("COMMUTER_WORK", p.Work))
	p.Via = strings.ToUpper(envStr("COMMUTER_VIA", p.Via))
	p.UseLocation = envBool("COMMUTER_USE_LOCATION", p.UseLocation)
	p.CustomisedDays = envBool("COMMUTER_CUSTOMISED_DAYS", p.CustomisedDays)
	if v := os.Getenv("COMMUTER_ACTIVE_DAYS"); v != "" {
		if days, err := ParseDays(v); err == nil {
			p.ActiveDays = days
		}
	}
	p.CustomisedTimes = envBool("COMMUTER_CUSTOMISED_TIMES", p.CustomisedTimes)
	p.MorningStart = envInt("COMMUTER_MORNING_START", p.MorningStart)
	p.MorningEnd = envInt("COMMUTER_MORNING_END", p.MorningEnd)
	p.AfternoonStart = envInt("COMMUTER_AFTERNOON_START", p.AfternoonStart)
	p.AfternoonEnd = envInt("COMMUTER_AFTERNOON_END", p.AfternoonEnd)
	p.UseHTTPS = envBool("COMMUTER_USE_HTTPS", p.UseHTTPS)
	p.CheckTime = envBool("COMMUTER_CHECK_TIME", p.CheckTime)
	p.UpdateOnlyOnTap = envBool("COMMUTER_UPDATE_ONLY_ON_TAP", p.UpdateOnlyOnTap)
	return p
}

var dayNames = map[string]time.Weekday{
	"sun": time.Sunday, "mon": time.Monday, "tue": time.Tuesday, "wed": time.Wednesday,
	"thu": time.Thursday, "fri": time.Friday, "sat": time.Saturday,
}

// ParseDays turns "mon,tue,fri" into a weekday set.
func ParseDays(s string) ([7]bool, error) {
	var days [7]bool
	for _, part := range strings.Split(s, ",") {
		name := strings.ToLower(strings.TrimSpace(part))
		if len(name) > 3 {
			name = name[:3]
		}
		d, ok := dayNames[name]
		if !ok {
			return days, fmt.Errorf("unknown day %q", part)
		}
		days[d] = true
	}
	return days, nil
}

// Update is a partial settings payload from the configuration page. Only keys
// present in the payload change the stored preferences.
type Update struct {
	Home        *string   `json:"home"`
	Work        *string   `json:"work"`
	Via         *string   `json:"via"`
	UseLocation *flexBool `json:"useLocation"`

	CustomisedDays *flexBool `json:"customisedDays"`
	UseMonday      *flexBool `json:"use_monday"`
	UseTuesday     *flexBool `json:"use_tuesday"`
	UseWednesday   *flexBool `json:"use_wednesday"`
	UseThursday    *flexBool `json:"use_thursday"`
	UseFriday      *flexBool `json:"use_friday"`
	UseSaturday    *flexBool `json:"use_saturday"`
	UseSunday      *flexBool `json:"use_sunday"`

	CustomisedTimes *flexBool `json:"customisedTimes"`
	MorningStart    *flexInt  `json:"morning_start"`
	MorningEnd      *flexInt  `json:"morning_end"`
	AfternoonStart  *flexInt  `json:"afternoon_start"`
	AfternoonEnd    *flexInt  `json:"afternoon_end"`

	UseHTTPS        *flexBool `json:"use_HTTPS"`
	CheckTime       *flexBool `json:"check_time"`
	UpdateOnlyOnTap *flexBool `json:"update_only_on_tap"`
}

// Apply returns p with the fields present in u replaced. Station codes are
// only taken when exactly three characters long.
func (p Preferences) Apply(u Update) Preferences {
	if u.Home != nil && len(strings.TrimSpace(*u.Home)) == 3 {
		p.Home = strings.ToUpper(strings.TrimSpace(*u.Home))
	}
	if u.Work != nil && len(strings.TrimSpace(*u.Work)) == 3 {
		p.Work = strings.ToUpper(strings.TrimSpace(*u.Work))
	}
	if u.Via != nil {
		v := strings.ToUpper(strings.TrimSpace(*u.Via))
		if v == "" || len(v) == 3 {
			p.Via = v
		}
	}
	setBool(&p.UseLocation, u.UseLocation)
	setBool(&p.CustomisedDays, u.CustomisedDays)
	setBool(&p.ActiveDays[time.Monday], u.UseMonday)
	setBool(&p.ActiveDays[time.Tuesday], u.UseTuesday)
	setBool(&p.ActiveDays[time.Wednesday], u.UseWednesday)
	setBool(&p.ActiveDays[time.Thursday], u.UseThursday)
	setBool(&p.ActiveDays[time.Friday], u.UseFriday)
	setBool(&p.ActiveDays[time.Saturday], u.UseSaturday)
	setBool(&p.ActiveDays[time.Sunday], u.UseSunday)
	setBool(&p.CustomisedTimes, u.CustomisedTimes)
	setInt(&p.MorningStart, u.MorningStart)
	setInt(&p.MorningEnd, u.MorningEnd)
	setInt(&p.AfternoonStart, u.AfternoonStart)
	setInt(&p.AfternoonEnd, u.AfternoonEnd)
	setBool(&p.UseHTTPS, u.UseHTTPS)
	setBool(&p.CheckTime, u.CheckTime)
	setBool(&p.UpdateOnlyOnTap, u.UpdateOnlyOnTap)
	return p
}

func setBool(dst *bool, v *flexBool) {
	if v != nil {
		*dst = bool(*v)
	}
}

func setInt(dst *int, v *flexInt) {
	if v != nil {
		*dst = int(*v)
	}
}

// flexBool decodes true/false, "true"/"false" and "True"/"False".
type flexBool bool

func (b *flexBool) UnmarshalJSON(data []byte) error {
	s := strings.Trim(string(data), `"`)
	v, err := strconv.ParseBool(s)
	if err != nil {
		return fmt.Errorf("invalid boolean %s", data)
	}
	*b = flexBool(v)
	return nil
}

// flexInt decodes 7 and "7". Trailing garbage after the leading digits is ignored.
type flexInt int

func (n *flexInt) UnmarshalJSON(data []byte) error {
	var num json.Number
	if err := json.Unmarshal(data, &num); err == nil {
		if i, err := num.Int64(); err == nil {
			*n = flexInt(i)
			return nil
		}
	}
	s := strings.TrimSpace(strings.Trim(string(data), `"`))
	end := 0
	for end < len(s) && s[end] >= '0' && s[end] <= '9' {
		end++
	}
	if end == 0 {
		return fmt.Errorf("invalid integer %s", data)
	}
	i, err := strconv.Atoi(s[:end])
	if err != nil {
		return fmt.Errorf("invalid integer %s: %w", data, err)
	}
	*n = flexInt(i)
	return nil
}
