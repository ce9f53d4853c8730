package api

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"

	"go.uber.org/zap"
)

// ProcessRequest is the /process submission payload.
type ProcessRequest struct {
	Query          string         `json:"query"`
	ConversationID string         `json:"conversation_id"`
	User           string         `json:"user"`
	Files          []UploadedFile `json:"files"`
	AgentID        int            `json:"agent_id"`
	IsVoice        int            `json:"is_voice"`
}

// EventKind discriminates the semantic events carried by a process stream.
type EventKind int

const (
	// EventMessage carries one text fragment to append, in arrival order.
	EventMessage EventKind = iota
	// EventMessageEnd terminates the exchange and may carry braille metadata.
	EventMessageEnd
	// EventError is a backend-reported terminal failure.
	EventError
)

// Event is one decoded frame of a process stream.
type Event struct {
	Kind           EventKind
	Chunk          string
	ConversationID string
	Braille        string
	Message        string
}

type wireEvent struct {
	Event          string `json:"event"`
	Chunk          string `json:"chunk"`
	Message        string `json:"message"`
	ConversationID string `json:"conversation_id"`
	Metadata       struct {
		Braille string `json:"braille"`
	} `json:"metadata"`
}

const dataPrefix = "data: "

// maxFrameSize bounds a single stream line; backend chunks are small but
// braille metadata on message_end can be large.
const maxFrameSize = 1 << 20

// Stream is a lazy, finite, non-restartable sequence of process events.
// Next returns frames in arrival order; malformed frames are skipped. Close
// must be called regardless of how consumption ends.
type Stream struct {
	body    io.ReadCloser
	scanner *bufio.Scanner
	logger  *zap.Logger
	closed  bool
}

// Process submits one exchange and returns the live event stream. A non-2xx
// response is reported as an error before any event is produced.
func (c *Client) Process(ctx context.Context, req ProcessRequest) (*Stream, error) {
	if req.Files == nil {
		req.Files = []UploadedFile{}
	}
	payload, err := json.Marshal(req)
	if err != nil {
		return nil, err
	}
	httpReq, err := c.newRequest(ctx, http.MethodPost, "/process", bytes.NewReader(payload))
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "text/event-stream")

	resp, err := c.client.Do(httpReq)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode >= 400 {
		defer resp.Body.Close()
		return nil, statusError(resp)
	}

	scanner := bufio.NewScanner(resp.Body)
	scanner.Buffer(make([]byte, 64*1024), maxFrameSize)
	return &Stream{
		body:    resp.Body,
		scanner: scanner,
		logger:  c.logger,
	}, nil
}

// Next returns the next semantic event. It reports io.EOF when the stream is
// exhausted and a transport error if the connection breaks mid-read. A frame
// that fails to parse is skipped, never fatal.
func (s *Stream) Next() (Event, error) {
	if s.closed {
		return Event{}, io.EOF
	}
	for s.scanner.Scan() {
		line := strings.TrimSpace(s.scanner.Text())
		if !strings.HasPrefix(line, dataPrefix) {
			continue
		}
		raw := strings.TrimSpace(line[len(dataPrefix):])
		if raw == "" {
			continue
		}

		var frame wireEvent
		if err := json.Unmarshal([]byte(raw), &frame); err != nil {
			s.logger.Debug("skipping malformed stream frame", zap.Error(err))
			continue
		}

		switch frame.Event {
		case "message":
			return Event{Kind: EventMessage, Chunk: frame.Chunk}, nil
		case "message_end":
			return Event{
				Kind:           EventMessageEnd,
				ConversationID: frame.ConversationID,
				Braille:        frame.Metadata.Braille,
			}, nil
		case "error":
			return Event{Kind: EventError, Message: frame.Message}, nil
		default:
			s.logger.Debug("skipping unknown stream event", zap.String("event", frame.Event))
		}
	}
	if err := s.scanner.Err(); err != nil {
		return Event{}, err
	}
	return Event{}, io.EOF
}

// Close releases the underlying response body. Safe to call more than once.
func (s *Stream) Close() error {
	if s.closed {
		return nil
	}
	s.closed = true
	return s.body.Close()
}
