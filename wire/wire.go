// Package wire implements the edit server control protocol.
//
// The client sends exactly one text frame before the binary payload:
//
//	{"type":"overwrite_audio","video_id":"<id>","file_size":<bytes>}
//
// The server answers with text frames of the shape
//
//	{"status":"ok"}
//	{"status":"error","error":"<code>"}
//	{"status":"done","result_id":"<id>"}
//
// Anything else is a protocol violation.
package wire

import (
	"encoding/json"
	"errors"
	"strings"
)

// RequestType is the type discriminant of the session request frame.
const RequestType = "overwrite_audio"

// Reply status discriminants.
const (
	StatusOK    = "ok"
	StatusError = "error"
	StatusDone  = "done"
)

var (
	// ErrEmptyVideoID is returned when a request carries no video id.
	ErrEmptyVideoID = errors.New("wire: empty video_id")
	// ErrNegativeSize is returned when a request declares a negative payload size.
	ErrNegativeSize = errors.New("wire: negative file_size")
)

// Request is the client->server session request.
type Request struct {
	Type     string `json:"type"`
	VideoID  string `json:"video_id"`
	FileSize int64  `json:"file_size"`
}

// Validate checks that the request can be sent.
func (r Request) Validate() error {
	if strings.TrimSpace(r.VideoID) == "" {
		return ErrEmptyVideoID
	}
	if r.FileSize < 0 {
		return ErrNegativeSize
	}
	return nil
}

// EncodeRequest returns the JSON text frame announcing a payload of size bytes
// for videoID.
func EncodeRequest(videoID string, size int64) ([]byte, error) {
	req := Request{
		Type:     RequestType,
		VideoID:  videoID,
		FileSize: size,
	}
	if err := req.Validate(); err != nil {
		return nil, err
	}
	return json.Marshal(req)
}

// ReplyKind discriminates server replies.
type ReplyKind int

const (
	// ReplyAck confirms the payload was received and processing started.
	ReplyAck ReplyKind = iota + 1
	// ReplyError reports a server-side failure.
	ReplyError
	// ReplyDone reports success with a result id.
	ReplyDone
)

func (k ReplyKind) String() string {
	switch k {
	case ReplyAck:
		return StatusOK
	case ReplyError:
		return StatusError
	case ReplyDone:
		return StatusDone
	default:
		return "unknown"
	}
}

// Reply is one parsed server->client control message.
// Code is set for ReplyError, ResultID for ReplyDone.
type Reply struct {
	Kind     ReplyKind
	Code     ErrorCode
	ResultID string
}

// replyFrame is the raw JSON shape of a server reply.
// Pointers distinguish absent fields from empty ones.
type replyFrame struct {
	Status   *string `json:"status"`
	Error    *string `json:"error"`
	ResultID *string `json:"result_id"`
}

// ParseReply parses a server text frame against the reply union.
// Frames that match none of the reply shapes return a *ProtocolError.
func ParseReply(data []byte) (Reply, error) {
	var raw replyFrame
	if err := json.Unmarshal(data, &raw); err != nil {
		return Reply{}, &ProtocolError{Msg: "malformed reply", Frame: data, Err: err}
	}
	if raw.Status == nil {
		return Reply{}, &ProtocolError{Msg: "reply missing status", Frame: data}
	}

	switch *raw.Status {
	case StatusOK:
		return Reply{Kind: ReplyAck}, nil

	case StatusError:
		if raw.Error == nil || *raw.Error == "" {
			return Reply{}, &ProtocolError{Msg: "error reply missing error code", Frame: data}
		}
		return Reply{Kind: ReplyError, Code: ErrorCode(*raw.Error)}, nil

	case StatusDone:
		if raw.ResultID == nil || *raw.ResultID == "" {
			return Reply{}, &ProtocolError{Msg: "done reply missing result_id", Frame: data}
		}
		return Reply{Kind: ReplyDone, ResultID: *raw.ResultID}, nil

	default:
		return Reply{}, &ProtocolError{Msg: "unknown reply status " + quote(*raw.Status), Frame: data}
	}
}

// EncodeReply renders a reply in its wire shape. The edit server speaks this
// side of the protocol; the client uses it only in the fake edit servers of
// its tests.
func EncodeReply(r Reply) ([]byte, error) {
	switch r.Kind {
	case ReplyAck:
		return json.Marshal(map[string]string{"status": StatusOK})
	case ReplyError:
		return json.Marshal(map[string]string{"status": StatusError, "error": string(r.Code)})
	case ReplyDone:
		return json.Marshal(map[string]string{"status": StatusDone, "result_id": r.ResultID})
	default:
		return nil, &ProtocolError{Msg: "cannot encode reply of kind " + r.Kind.String()}
	}
}

func quote(s string) string {
	b, _ := json.Marshal(s)
	return string(b)
}
