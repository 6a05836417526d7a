package device

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"path/filepath"
	"sync"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/structpb"

	"commuterbliss/internal/message"
	"commuterbliss/internal/observability"
	"commuterbliss/internal/storage"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newCollector(t *testing.T) *observability.Collector {
	t.Helper()
	m, err := observability.NewCollector(prometheus.NewRegistry())
	if err != nil {
		t.Fatalf("NewCollector: %v", err)
	}
	return m
}

func envelope(cycle uint64, origin string) Envelope {
	return Envelope{
		CycleID:     cycle,
		Kind:        KindSchedule,
		Origin:      origin,
		Destination: "EDB",
		Mode:        "fixed",
		Message: message.Message{
			{Key: message.KeyCurrentOrigin, Value: origin},
			{Key: message.KeyTrain1Time, Value: int64(1710234900)},
			{Key: message.KeyTrain1Platform, Value: 3},
		},
	}
}

func TestHub_SendWithoutSession(t *testing.T) {
	h := NewHub(4, testLogger(), nil)
	err := h.Send(context.Background(), "watch-1", envelope(1, "GLC"))
	if !errors.Is(err, ErrNoSession) {
		t.Errorf("err = %v, want ErrNoSession", err)
	}
}

func TestHub_DeliversToEverySession(t *testing.T) {
	h := NewHub(4, testLogger(), nil)
	a, closeA := h.Subscribe("watch-1")
	defer closeA()
	b, closeB := h.Subscribe("watch-1")
	defer closeB()
	other, closeOther := h.Subscribe("watch-2")
	defer closeOther()

	if a.ID == b.ID {
		t.Fatal("sessions share an id")
	}
	if h.Sessions() != 3 {
		t.Errorf("Sessions = %d, want 3", h.Sessions())
	}

	if err := h.Send(context.Background(), "watch-1", envelope(7, "GLC")); err != nil {
		t.Fatalf("Send: %v", err)
	}
	for _, s := range []*Session{a, b} {
		select {
		case env := <-s.Messages():
			if env.CycleID != 7 {
				t.Errorf("session %s got cycle %d", s.ID, env.CycleID)
			}
		default:
			t.Errorf("session %s got nothing", s.ID)
		}
	}
	select {
	case env := <-other.Messages():
		t.Errorf("other device received %+v", env)
	default:
	}
}

func TestHub_DropsOldestWhenFull(t *testing.T) {
	m := newCollector(t)
	h := NewHub(2, testLogger(), m)
	s, done := h.Subscribe("watch-1")
	defer done()

	for i := uint64(1); i <= 4; i++ {
		if err := h.Send(context.Background(), "watch-1", envelope(i, "GLC")); err != nil {
			t.Fatalf("Send %d: %v", i, err)
		}
	}

	var got []uint64
	for len(got) < 2 {
		got = append(got, (<-s.Messages()).CycleID)
	}
	if got[0] != 3 || got[1] != 4 {
		t.Errorf("delivered cycles = %v, want [3 4]", got)
	}
	if v := testutil.ToFloat64(m.DroppedMessages); v != 2 {
		t.Errorf("dropped = %v, want 2", v)
	}
}

func TestHub_Unsubscribe(t *testing.T) {
	m := newCollector(t)
	h := NewHub(1, testLogger(), m)

	_, done := h.Subscribe("watch-1")
	if !h.Connected("watch-1") {
		t.Fatal("expected connected")
	}
	if v := testutil.ToFloat64(m.DeviceSessions); v != 1 {
		t.Errorf("sessions gauge = %v, want 1", v)
	}
	done()
	done()
	if h.Connected("watch-1") || h.Sessions() != 0 {
		t.Error("session still registered after close")
	}
	if v := testutil.ToFloat64(m.DeviceSessions); v != 0 {
		t.Errorf("sessions gauge = %v, want 0", v)
	}
}

func TestHub_ConcurrentSend(t *testing.T) {
	h := NewHub(8, testLogger(), nil)
	s, done := h.Subscribe("watch-1")
	defer done()

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			h.Send(context.Background(), "watch-1", envelope(uint64(i), "GLC"))
		}(i)
	}
	wg.Wait()
	if n := len(s.Messages()); n != 8 {
		t.Errorf("outbox holds %d, want 8", n)
	}
}

func TestWriter_JSONLines(t *testing.T) {
	var buf bytes.Buffer
	w := NewWriter(&buf)
	w.Send(context.Background(), "cli", envelope(1, "GLC"))
	w.Send(context.Background(), "cli", envelope(2, "EDB"))

	lines := bytes.Split(bytes.TrimSpace(buf.Bytes()), []byte("\n"))
	if len(lines) != 2 {
		t.Fatalf("lines = %d, want 2", len(lines))
	}
	var first struct {
		Device  string         `json:"device"`
		Cycle   uint64         `json:"cycle"`
		Kind    string         `json:"kind"`
		Message map[string]any `json:"message"`
	}
	if err := json.Unmarshal(lines[0], &first); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if first.Device != "cli" || first.Cycle != 1 || first.Kind != KindSchedule {
		t.Errorf("line = %+v", first)
	}
	if first.Message["KEY_CURRENT_ORIGIN"] != "GLC" {
		t.Errorf("origin = %v", first.Message["KEY_CURRENT_ORIGIN"])
	}
	if !bytes.Contains(lines[0], []byte(`{"KEY_CURRENT_ORIGIN":"GLC","KEY_TRAIN1_TIME":1710234900,"KEY_TRAIN1_PLATFORM":3}`)) {
		t.Errorf("message keys out of order: %s", lines[0])
	}
}

func TestRecorder_LogsEveryDispatch(t *testing.T) {
	db, err := storage.Open(filepath.Join(t.TempDir(), "dispatch.db"), testLogger())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer db.Close()

	sendErr := errors.New("watch asleep")
	calls := 0
	next := TransportFunc(func(ctx context.Context, deviceID string, env Envelope) error {
		calls++
		if env.CycleID == 2 {
			return sendErr
		}
		return nil
	})
	r := NewRecorder(next, db, testLogger())

	ctx := context.Background()
	if err := r.Send(ctx, "watch-1", envelope(1, "GLC")); err != nil {
		t.Fatalf("Send 1: %v", err)
	}
	if err := r.Send(ctx, "watch-1", envelope(2, "HYM")); !errors.Is(err, sendErr) {
		t.Errorf("Send 2 err = %v, want %v", err, sendErr)
	}
	if calls != 2 {
		t.Errorf("next called %d times, want 2", calls)
	}

	got, err := db.RecentDispatches(ctx, "watch-1", 10)
	if err != nil {
		t.Fatalf("RecentDispatches: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("dispatches = %d, want 2", len(got))
	}
	if got[0].CycleID != 2 || got[0].Origin != "HYM" || got[1].CycleID != 1 {
		t.Errorf("dispatches = %+v", got)
	}

	st := &structpb.Struct{}
	if err := proto.Unmarshal(got[1].Payload, st); err != nil {
		t.Fatalf("payload: %v", err)
	}
	if v := st.Fields["KEY_TRAIN1_TIME"].GetNumberValue(); v != 1710234900 {
		t.Errorf("payload train time = %v", v)
	}
	if v := st.Fields["KEY_CURRENT_ORIGIN"].GetStringValue(); v != "GLC" {
		t.Errorf("payload origin = %q", v)
	}
}

func TestDecode(t *testing.T) {
	data, err := Encode(envelope(3, "HYM"))
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	got, err := Decode(data)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if got["KEY_CURRENT_ORIGIN"] != "HYM" || got["KEY_TRAIN1_PLATFORM"] != float64(3) {
		t.Errorf("Decode = %v", got)
	}
	if _, err := Decode([]byte{0xff, 0x01}); err == nil {
		t.Error("Decode(garbage) should fail")
	}
}
