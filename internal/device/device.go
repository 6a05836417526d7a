package device

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sync"

	"commuterbliss/internal/message"
	"commuterbliss/internal/storage"
)

// ErrNoSession means the device has no open connection.
var ErrNoSession = errors.New("device not connected")

// Envelope kinds.
const (
	KindSchedule  = storage.KindSchedule
	KindHandshake = storage.KindHandshake
)

// Envelope is one message for a device plus the cycle facts that produced it.
type Envelope struct {
	CycleID     uint64
	Kind        string
	Origin      string
	Destination string
	Mode        string
	Failed      bool
	Message     message.Message
}

// Transport delivers envelopes to a device.
type Transport interface {
	Send(ctx context.Context, deviceID string, env Envelope) error
}

// TransportFunc adapts a function to Transport.
type TransportFunc func(ctx context.Context, deviceID string, env Envelope) error

func (f TransportFunc) Send(ctx context.Context, deviceID string, env Envelope) error {
	return f(ctx, deviceID, env)
}

// Writer prints each message as one JSON line.
type Writer struct {
	mu sync.Mutex
	w  io.Writer
}

// NewWriter creates a Writer transport.
func NewWriter(w io.Writer) *Writer {
	return &Writer{w: w}
}

type line struct {
	Device  string          `json:"device"`
	Cycle   uint64          `json:"cycle"`
	Kind    string          `json:"kind"`
	Message message.Message `json:"message"`
}

func (t *Writer) Send(_ context.Context, deviceID string, env Envelope) error {
	data, err := json.Marshal(line{Device: deviceID, Cycle: env.CycleID, Kind: env.Kind, Message: env.Message})
	if err != nil {
		return fmt.Errorf("encode message: %w", err)
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, err := t.w.Write(append(data, '\n')); err != nil {
		return fmt.Errorf("write message: %w", err)
	}
	return nil
}
