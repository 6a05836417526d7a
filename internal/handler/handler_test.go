package handler

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"commuterbliss/internal/config"
	"commuterbliss/internal/location"
	"commuterbliss/internal/stations"
	"commuterbliss/internal/storage"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestReportedLocation(t *testing.T) {
	tests := []struct {
		name        string
		contentType string
		body        string
		wantFix     *location.Fix
		wantErr     string
		bad         bool
	}{
		{"form fix", "application/x-www-form-urlencoded", "lat=55.86&lon=-4.257", &location.Fix{Lat: 55.86, Lon: -4.257}, "", false},
		{"json fix", "application/json", `{"lat":55.86,"lon":-4.257}`, &location.Fix{Lat: 55.86, Lon: -4.257}, "", false},
		{"json quoted numbers", "application/json; charset=utf-8", `{"lat":"55.86","lon":"-4.257"}`, &location.Fix{Lat: 55.86, Lon: -4.257}, "", false},
		{"device error wins", "application/x-www-form-urlencoded", "lat=1&lon=2&error=timeout", nil, "timeout", false},
		{"json error", "application/json", `{"error":"permission denied"}`, nil, "permission denied", false},
		{"empty form", "application/x-www-form-urlencoded", "", nil, "", false},
		{"empty json", "application/json", "", nil, "", false},
		{"lat only", "application/x-www-form-urlencoded", "lat=55.86", nil, "", true},
		{"garbage lat", "application/x-www-form-urlencoded", "lat=x&lon=1", nil, "", true},
		{"broken json", "application/json", `{"lat":`, nil, "", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest("POST", "/device/w/update", strings.NewReader(tt.body))
			req.Header.Set("Content-Type", tt.contentType)
			got, err := reportedLocation(req)
			if tt.bad {
				if err == nil {
					t.Fatalf("expected error, got %+v", got)
				}
				return
			}
			if err != nil {
				t.Fatalf("reportedLocation: %v", err)
			}
			if got.Err != tt.wantErr {
				t.Errorf("Err = %q, want %q", got.Err, tt.wantErr)
			}
			switch {
			case tt.wantFix == nil && got.Fix != nil:
				t.Errorf("Fix = %+v, want none", *got.Fix)
			case tt.wantFix != nil && (got.Fix == nil || *got.Fix != *tt.wantFix):
				t.Errorf("Fix = %+v, want %+v", got.Fix, *tt.wantFix)
			}
		})
	}
}

func testIndex(t *testing.T) *stations.Index {
	t.Helper()
	list, err := stations.Default()
	if err != nil {
		t.Fatalf("stations: %v", err)
	}
	idx, err := stations.NewIndex(list)
	if err != nil {
		t.Fatalf("NewIndex: %v", err)
	}
	return idx
}

func strPtr(s string) *string { return &s }

func TestCheckCodes(t *testing.T) {
	h := New(Deps{Index: testIndex(t)}, testLogger())
	tests := []struct {
		name string
		u    config.Update
		ok   bool
	}{
		{"nothing", config.Update{}, true},
		{"known lower case", config.Update{Home: strPtr("hym"), Work: strPtr("GLQ")}, true},
		{"unknown", config.Update{Work: strPtr("ZZZ")}, false},
		{"two letters", config.Update{Home: strPtr("GL")}, false},
		{"digits", config.Update{Home: strPtr("G1C")}, false},
		{"empty home", config.Update{Home: strPtr("")}, false},
		{"empty via clears", config.Update{Via: strPtr("")}, true},
		{"unknown via", config.Update{Via: strPtr("QQQ")}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := h.checkCodes(tt.u)
			if (err == nil) != tt.ok {
				t.Errorf("checkCodes err = %v, want ok = %v", err, tt.ok)
			}
		})
	}
}

func TestPreferencesFor(t *testing.T) {
	db, err := storage.Open(filepath.Join(t.TempDir(), "prefs.db"), testLogger())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer db.Close()
	ctx := context.Background()

	stored := config.DefaultPreferences()
	stored.Home = "HYM"
	if err := db.SavePreferences(ctx, "known", stored); err != nil {
		t.Fatalf("SavePreferences: %v", err)
	}

	defaults := config.DefaultPreferences()
	defaults.Work = "GLQ"
	h := New(Deps{DB: db, Defaults: defaults}, testLogger())

	if got := h.preferencesFor(ctx, "known"); got.Home != "HYM" {
		t.Errorf("stored device: Home = %s, want HYM", got.Home)
	}
	if got := h.preferencesFor(ctx, "new"); got.Work != "GLQ" {
		t.Errorf("new device: Work = %s, want defaults", got.Work)
	}

	next := stored
	next.Home = "EDB"
	h.setPreferences("known", next)
	if got := h.preferencesFor(ctx, "known"); got.Home != "EDB" {
		t.Errorf("after set: Home = %s, want EDB", got.Home)
	}
}

func TestFormatAge(t *testing.T) {
	tests := []struct {
		d    time.Duration
		want string
	}{
		{0, "just now"},
		{59 * time.Second, "just now"},
		{5 * time.Minute, "5 min ago"},
		{3*time.Hour + 10*time.Minute, "3 h ago"},
		{72 * time.Hour, "3 d ago"},
	}
	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			if got := formatAge(tt.d); got != tt.want {
				t.Errorf("formatAge(%v) = %q, want %q", tt.d, got, tt.want)
			}
		})
	}
}

func TestStatusPage_Escapes(t *testing.T) {
	var b strings.Builder
	v := StatusView{
		Stations: 65,
		Now:      time.Now(),
		Dispatches: []DispatchRow{
			{Cycle: 4, Device: "<script>", Kind: "schedule", Route: "GLC → EDB", Mode: "fixed", Next: "09:15", Age: "just now"},
		},
	}
	if err := statusPage(v).Render(context.Background(), &b); err != nil {
		t.Fatalf("Render: %v", err)
	}
	out := b.String()
	if strings.Contains(out, "<script>") {
		t.Error("device id not escaped")
	}
	if !strings.Contains(out, "09:15") || !strings.Contains(out, "Last verified</dt><dd>never") {
		t.Errorf("unexpected page:\n%s", out)
	}
}

// failingWriter rejects the first write containing match.
type failingWriter struct {
	match string
	b     strings.Builder
}

func (w *failingWriter) Write(p []byte) (int, error) {
	if strings.Contains(string(p), w.match) {
		return 0, errors.New("connection reset")
	}
	return w.b.Write(p)
}

func TestStatusPage_WriteErrors(t *testing.T) {
	v := StatusView{
		Now:        time.Now(),
		Dispatches: []DispatchRow{{Cycle: 1, Device: "watch-1", Kind: "schedule"}},
	}
	for _, match := range []string{"<dl>", "<thead>", "watch-1", "</tbody>"} {
		t.Run(match, func(t *testing.T) {
			w := &failingWriter{match: match}
			if err := statusPage(v).Render(context.Background(), w); err == nil {
				t.Errorf("Render succeeded after failing write of %q", match)
			}
		})
	}
}
