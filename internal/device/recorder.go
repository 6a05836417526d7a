package device

import (
	"context"
	"fmt"
	"log/slog"

	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/structpb"

	"commuterbliss/internal/storage"
)

// DispatchLog persists delivered envelopes.
type DispatchLog interface {
	RecordDispatch(ctx context.Context, d storage.Dispatch) (int64, error)
}

// Recorder forwards envelopes to another transport and appends each one to
// the dispatch log. A log write failure is logged, never returned.
type Recorder struct {
	next   Transport
	log    DispatchLog
	logger *slog.Logger
}

// NewRecorder wraps next with dispatch logging.
func NewRecorder(next Transport, log DispatchLog, logger *slog.Logger) *Recorder {
	return &Recorder{next: next, log: log, logger: logger}
}

func (r *Recorder) Send(ctx context.Context, deviceID string, env Envelope) error {
	sendErr := r.next.Send(ctx, deviceID, env)

	payload, err := Encode(env)
	if err != nil {
		r.logger.Warn("encode dispatch", "device", deviceID, "cycle", env.CycleID, "error", err)
	}
	if _, err := r.log.RecordDispatch(ctx, storage.Dispatch{
		CycleID:     env.CycleID,
		DeviceID:    deviceID,
		Kind:        env.Kind,
		Origin:      env.Origin,
		Destination: env.Destination,
		Mode:        env.Mode,
		Failed:      env.Failed,
		Payload:     payload,
	}); err != nil {
		r.logger.Warn("record dispatch", "device", deviceID, "cycle", env.CycleID, "error", err)
	}
	return sendErr
}

// Encode serialises the envelope's message as a protobuf Struct.
func Encode(env Envelope) ([]byte, error) {
	st, err := env.Message.Proto()
	if err != nil {
		return nil, fmt.Errorf("message to struct: %w", err)
	}
	data, err := proto.Marshal(st)
	if err != nil {
		return nil, fmt.Errorf("marshal struct: %w", err)
	}
	return data, nil
}

// Decode reads a stored payload back into a name-keyed dictionary.
func Decode(payload []byte) (map[string]any, error) {
	st := &structpb.Struct{}
	if err := proto.Unmarshal(payload, st); err != nil {
		return nil, fmt.Errorf("unmarshal struct: %w", err)
	}
	return st.AsMap(), nil
}
