package clock

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

type memStore struct {
	ms    int64
	at    time.Time
	calls int
	err   error
}

func (m *memStore) SaveClockOffset(_ context.Context, ms int64, at time.Time) error {
	m.calls++
	m.ms, m.at = ms, at
	return m.err
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newCorrector(t *testing.T, h http.HandlerFunc, store OffsetStore) *Corrector {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	return NewCorrector(strings.TrimPrefix(srv.URL, "http://"), time.Second, store, testLogger(), nil)
}

func TestVerify_ComputesOffset(t *testing.T) {
	local := time.Date(2024, 3, 12, 9, 0, 0, 0, time.UTC)
	var path string
	store := &memStore{}
	c := newCorrector(t, func(w http.ResponseWriter, r *http.Request) {
		path = r.URL.Path
		io.WriteString(w, local.Add(4500*time.Millisecond).Format(time.RFC3339Nano))
	}, store)
	c.now = func() time.Time { return local }

	ms, err := c.Verify(context.Background())
	if err != nil {
		t.Fatalf("Verify: %v", err)
	}
	if path != "/utc/now" {
		t.Errorf("path = %q, want /utc/now", path)
	}
	if ms != 4500 || c.Offset() != 4500 {
		t.Errorf("offset = %d / %d, want 4500", ms, c.Offset())
	}
	if !c.LastVerified().Equal(local) {
		t.Errorf("LastVerified = %v, want %v", c.LastVerified(), local)
	}
	if store.calls != 1 || store.ms != 4500 {
		t.Errorf("store = %+v, want one save of 4500", store)
	}
}

func TestVerify_NegativeOffset(t *testing.T) {
	local := time.Date(2024, 3, 12, 9, 0, 0, 0, time.UTC)
	c := newCorrector(t, func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, local.Add(-2*time.Second).Format(time.RFC1123Z))
	}, nil)
	c.now = func() time.Time { return local }

	ms, err := c.Verify(context.Background())
	if err != nil {
		t.Fatalf("Verify: %v", err)
	}
	if ms != -2000 {
		t.Errorf("offset = %d, want -2000", ms)
	}
}

func TestVerify_FailureKeepsPreviousOffset(t *testing.T) {
	tests := []struct {
		name    string
		handler http.HandlerFunc
	}{
		{"server error", func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusInternalServerError)
		}},
		{"garbage body", func(w http.ResponseWriter, r *http.Request) {
			io.WriteString(w, "it is teatime")
		}},
		{"empty body", func(w http.ResponseWriter, r *http.Request) {}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := &memStore{}
			c := newCorrector(t, tt.handler, store)
			c.Restore(1234, time.Unix(0, 0))

			ms, err := c.Verify(context.Background())
			if err == nil {
				t.Fatal("expected error")
			}
			if ms != 1234 || c.Offset() != 1234 {
				t.Errorf("offset = %d / %d, want 1234 kept", ms, c.Offset())
			}
			if store.calls != 0 {
				t.Errorf("store called %d times on failure", store.calls)
			}
		})
	}
}

func TestVerify_Unreachable(t *testing.T) {
	c := NewCorrector("127.0.0.1:1", 200*time.Millisecond, nil, testLogger(), nil)
	c.Restore(-77, time.Time{})
	ms, err := c.Verify(context.Background())
	if err == nil {
		t.Fatal("expected error")
	}
	if ms != -77 {
		t.Errorf("offset = %d, want -77", ms)
	}
}

func TestVerify_StoreErrorIsNotFatal(t *testing.T) {
	local := time.Date(2024, 3, 12, 9, 0, 0, 0, time.UTC)
	store := &memStore{err: errors.New("disk full")}
	c := newCorrector(t, func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, local.Add(time.Second).Format(time.RFC3339))
	}, store)
	c.now = func() time.Time { return local }

	ms, err := c.Verify(context.Background())
	if err != nil {
		t.Fatalf("Verify: %v", err)
	}
	if ms != 1000 {
		t.Errorf("offset = %d, want 1000", ms)
	}
}

func TestParseTimestamp(t *testing.T) {
	want := time.Date(2015, 6, 3, 10, 11, 12, 0, time.UTC)
	tests := []string{
		"2015-06-03T10:11:12+00:00",
		"2015-06-03T10:11:12Z",
		"2015-06-03T11:11:12+0100",
		`"2015-06-03T10:11:12Z"`,
		"  2015-06-03T10:11:12Z\n",
		"Wed, 03 Jun 2015 10:11:12 +0000",
		"Wed, 03 Jun 2015 10:11:12 UTC",
		"2015-06-03 10:11:12",
		"1433326272",
	}
	for _, in := range tests {
		got, err := ParseTimestamp(in)
		if err != nil {
			t.Errorf("ParseTimestamp(%q): %v", in, err)
			continue
		}
		if !got.Equal(want) {
			t.Errorf("ParseTimestamp(%q) = %v, want %v", in, got, want)
		}
	}

	for _, bad := range []string{"", "now", "-5"} {
		if _, err := ParseTimestamp(bad); err == nil {
			t.Errorf("ParseTimestamp(%q) should fail", bad)
		}
	}
}
