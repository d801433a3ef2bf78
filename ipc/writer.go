package ipc

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/vmihailenco/msgpack/v5"

	"github.com/justapithecus/overdub/types"
)

// ErrStreamClosed is returned when writing after the terminal result frame.
var ErrStreamClosed = errors.New("ipc: event stream already closed")

// FrameEncoder writes length-prefixed msgpack frames to a stream.
// It is not safe for concurrent use.
type FrameEncoder struct {
	writer io.Writer
}

// NewFrameEncoder creates a new frame encoder.
func NewFrameEncoder(w io.Writer) *FrameEncoder {
	return &FrameEncoder{writer: w}
}

// WriteFrame writes payload with its length prefix as a single Write call.
func (e *FrameEncoder) WriteFrame(payload []byte) error {
	if len(payload) > MaxPayloadSize {
		return &FrameError{
			Kind: FrameErrorTooLarge,
			Msg:  fmt.Sprintf("payload size %d exceeds maximum %d", len(payload), MaxPayloadSize),
		}
	}
	buf := make([]byte, LengthPrefixSize+len(payload))
	binary.BigEndian.PutUint32(buf[:LengthPrefixSize], uint32(len(payload)))
	copy(buf[LengthPrefixSize:], payload)
	_, err := e.writer.Write(buf)
	return err
}

// WriteEnvelope encodes env and writes it as one frame.
func (e *FrameEncoder) WriteEnvelope(env *types.EventEnvelope) error {
	payload, err := msgpack.Marshal(env)
	if err != nil {
		return fmt.Errorf("ipc: encode envelope: %w", err)
	}
	return e.WriteFrame(payload)
}

// Emitter writes the event stream of one session: stage frames as they are
// reported, then exactly one result frame. It implements progress.Reporter
// and is safe for concurrent use.
type Emitter struct {
	mu        sync.Mutex
	enc       *FrameEncoder
	sessionID string
	seq       int64
	closed    bool
	err       error
	now       func() time.Time
}

// NewEmitter creates an emitter writing frames for sessionID to w.
func NewEmitter(w io.Writer, sessionID string) *Emitter {
	return &Emitter{
		enc:       NewFrameEncoder(w),
		sessionID: sessionID,
		now:       time.Now,
	}
}

// Report writes a stage frame. Write errors are kept for Err; the session is
// never interrupted by a broken stream.
func (e *Emitter) Report(stage types.Stage) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed || e.err != nil {
		return
	}
	e.err = e.write(types.EventTypeStage, stage, nil)
}

// Result writes the terminal result frame. Later calls return ErrStreamClosed.
func (e *Emitter) Result(result types.ResultPayload) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return ErrStreamClosed
	}
	e.closed = true
	if e.err != nil {
		return e.err
	}
	e.err = e.write(types.EventTypeResult, "", &result)
	return e.err
}

// Err returns the first write error, if any.
func (e *Emitter) Err() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.err
}

func (e *Emitter) write(typ types.EventType, stage types.Stage, result *types.ResultPayload) error {
	e.seq++
	return e.enc.WriteEnvelope(&types.EventEnvelope{
		ContractVersion: types.ContractVersion,
		SessionID:       e.sessionID,
		Seq:             e.seq,
		Type:            typ,
		Ts:              e.now().UTC().Format(time.RFC3339Nano),
		Stage:           stage,
		Result:          result,
	})
}
