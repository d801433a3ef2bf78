package session

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/google/uuid"

	"github.com/justapithecus/overdub/log"
	"github.com/justapithecus/overdub/progress"
	"github.com/justapithecus/overdub/transport"
	"github.com/justapithecus/overdub/types"
	"github.com/justapithecus/overdub/wire"
)

// Edit runs one session: it opens a channel, announces and uploads the
// payload, then waits for the acknowledgement and the final result.
//
// Stages are reported to reporter (which may be nil) through a non-blocking
// queue: StageUpload after the request frame is sent, StageEdit after the
// server acknowledged. Nothing is reported if the channel cannot be opened.
// Edit never waits for the observer; stages may still be in flight when it
// returns.
//
// Cancelling ctx closes the channel and Edit returns the context error.
// Edit never retries.
func (c *Client) Edit(ctx context.Context, req Request, reporter progress.Reporter) (*Result, error) {
	if req.Payload == nil {
		return nil, fmt.Errorf("%w: nil payload", ErrInvalidRequest)
	}
	announce, err := wire.EncodeRequest(req.VideoID, req.Size)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidRequest, err)
	}

	if req.SessionID == "" {
		req.SessionID = uuid.NewString()
	}
	logger := c.logger.ForSession(&types.SessionMeta{
		SessionID: req.SessionID,
		VideoID:   req.VideoID,
		FileSize:  req.Size,
	})

	// A caller that passes its own *progress.Async owns it and decides
	// whether to wait for delivery. Otherwise the queue is shut down
	// without waiting.
	stages, owned := reporter.(*progress.Async)
	if !owned {
		stages = progress.NewAsync(reporter, progress.WithLogger(logger))
		defer stages.Shutdown()
	}

	s := &run{
		client:   c,
		req:      req,
		announce: announce,
		logger:   logger,
		stages:   stages,
		state:    StateConnecting,
	}

	c.metrics.IncSessionStarted()
	start := time.Now()
	res, err := s.execute(ctx)
	c.record(res, err)

	fields := map[string]any{
		"bytes_sent":  s.sent,
		"duration_ms": time.Since(start).Milliseconds(),
	}
	if err != nil {
		fields["state"] = s.failedIn.String()
		fields["error"] = err.Error()
		logger.Error("session failed", fields)
		return nil, err
	}
	fields["outcome"] = string(res.Status)
	if res.ResultID != "" {
		fields["result_id"] = res.ResultID
	}
	logger.Info("session finished", fields)
	return res, nil
}

// run is the state of one session. It lives for one Edit call.
type run struct {
	client   *Client
	req      Request
	announce []byte
	logger   *log.Logger
	stages   *progress.Async

	state    State
	failedIn State
	sent     int64
}

func (s *run) execute(ctx context.Context) (*Result, error) {
	cfg := s.client.config

	dialCtx, cancelDial := withTimeout(ctx, cfg.ConnectTimeout)
	ch, err := transport.Open(dialCtx, s.client.dialer, s.client.addr)
	cancelDial()
	if err != nil {
		return nil, s.fail(ctx, err)
	}
	s.logger.Debug("channel opened", map[string]any{"addr": s.client.addr})

	defer func() {
		if err := ch.Close(); err != nil {
			s.logger.Debug("channel close", map[string]any{"error": err.Error()})
		}
		s.state = StateClosed
	}()
	stop := context.AfterFunc(ctx, func() { _ = ch.Close() })
	defer stop()

	s.state = StateAnnouncing
	if err := ch.SendText(s.announce); err != nil {
		return nil, s.fail(ctx, err)
	}
	s.stages.Report(types.StageUpload)

	s.state = StateUploading
	if err := s.upload(ch); err != nil {
		return nil, s.fail(ctx, err)
	}

	s.state = StateAwaitingAck
	reply, err := s.receive(ctx, ch, cfg.AckTimeout, ErrAckTimeout)
	if err != nil {
		return nil, s.fail(ctx, err)
	}
	if reply.Kind != wire.ReplyAck {
		msg := "unexpected " + reply.Kind.String() + " reply before acknowledgement"
		if reply.Kind == wire.ReplyError {
			msg += " (code " + string(reply.Code) + ")"
		}
		return nil, s.fail(ctx, &wire.ProtocolError{Msg: msg})
	}
	s.stages.Report(types.StageEdit)

	s.state = StateAwaitingResult
	reply, err = s.receive(ctx, ch, cfg.ResultTimeout, ErrResultTimeout)
	if err != nil {
		return nil, s.fail(ctx, err)
	}
	switch reply.Kind {
	case wire.ReplyDone:
		return s.result(types.OutcomeSuccess, reply.ResultID, ""), nil
	case wire.ReplyError:
		if reason, ok := wire.Classify(reply.Code); ok {
			return s.result(types.OutcomeForReason(reason), "", reason), nil
		}
		return nil, s.fail(ctx, &wire.ServerError{Code: reply.Code})
	default:
		return nil, s.fail(ctx, &wire.ProtocolError{Msg: "repeated acknowledgement"})
	}
}

func (s *run) upload(ch *transport.Channel) error {
	n, err := ch.SendBinary(&sizedReader{r: s.req.Payload, remaining: s.req.Size})
	s.sent = n
	s.client.metrics.AddBytesUploaded(n)
	if err != nil {
		if errors.Is(err, ErrPayloadSizeMismatch) {
			return fmt.Errorf("%w: payload exceeds %d bytes", ErrPayloadSizeMismatch, s.req.Size)
		}
		return err
	}
	if n != s.req.Size {
		return fmt.Errorf("%w: declared %d bytes, payload had %d", ErrPayloadSizeMismatch, s.req.Size, n)
	}
	return nil
}

// receive waits for the next text frame and parses it. A non-zero timeout
// bounds the wait; expiry is reported as timeoutErr.
func (s *run) receive(ctx context.Context, ch *transport.Channel, timeout time.Duration, timeoutErr error) (wire.Reply, error) {
	rctx, cancel := withTimeout(ctx, timeout)
	defer cancel()

	frame, err := ch.Receive(rctx)
	if err != nil {
		if ctx.Err() == nil && errors.Is(err, context.DeadlineExceeded) {
			return wire.Reply{}, fmt.Errorf("%w after %s: %w", timeoutErr, timeout, err)
		}
		return wire.Reply{}, err
	}
	if frame.Kind != transport.FrameText {
		return wire.Reply{}, &wire.ProtocolError{
			Msg:   "unexpected " + frame.Kind.String() + " frame from server",
			Frame: frame.Data,
		}
	}
	return wire.ParseReply(frame.Data)
}

func (s *run) result(status types.OutcomeStatus, resultID string, reason types.FailureReason) *Result {
	return &Result{
		SessionID: s.req.SessionID,
		Status:    status,
		ResultID:  resultID,
		Reason:    reason,
		BytesSent: s.sent,
	}
}

// fail annotates err with the current state. When the caller's context
// ended, its error replaces whatever the forced close produced.
func (s *run) fail(ctx context.Context, err error) error {
	s.failedIn = s.state
	if ctxErr := ctx.Err(); ctxErr != nil && !errors.Is(err, ctxErr) {
		err = ctxErr
	}
	return &StateError{State: s.state, Err: err}
}

// record updates the client metrics for a finished session.
func (c *Client) record(res *Result, err error) {
	m := c.metrics
	if err == nil {
		if res.Succeeded() {
			m.IncSessionSucceeded()
		} else {
			m.IncClassifiedFailure(string(res.Reason))
		}
		return
	}

	m.IncFatalError()
	var serverErr *wire.ServerError
	switch {
	case transport.IsDialError(err):
		m.IncConnectFailure()
	case errors.Is(err, wire.ErrProtocolViolation):
		m.IncProtocolViolation()
	case errors.As(err, &serverErr):
		m.IncServerError(string(serverErr.Code))
	case errors.Is(err, ErrAckTimeout), errors.Is(err, ErrResultTimeout):
		m.IncTimeout()
	}
}

func withTimeout(ctx context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	if d <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, d)
}

// sizedReader yields at most remaining bytes from r and fails with
// ErrPayloadSizeMismatch if r holds more.
type sizedReader struct {
	r         io.Reader
	remaining int64
}

func (s *sizedReader) Read(p []byte) (int, error) {
	if s.remaining <= 0 {
		var probe [1]byte
		n, err := s.r.Read(probe[:])
		if n > 0 {
			return 0, ErrPayloadSizeMismatch
		}
		return 0, err
	}
	if int64(len(p)) > s.remaining {
		p = p[:s.remaining]
	}
	n, err := s.r.Read(p)
	s.remaining -= int64(n)
	return n, err
}
