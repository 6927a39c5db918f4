package hub

import (
	"encoding/json"
	"net/url"
	"strings"

	"github.com/vango-dev/sharedstate/internal/errors"
	"github.com/vango-dev/sharedstate/pkg/storage"
)

// FrameType identifies a hub frame.
type FrameType string

const (
	// FrameHello is sent by the server once, right after a connection joins.
	FrameHello FrameType = "hello"

	// FrameEvent carries one storage change event.
	FrameEvent FrameType = "event"
)

// Frame is the wire message exchanged over a hub connection.
type Frame struct {
	Type  FrameType      `json:"type"`
	ID    string         `json:"id,omitempty"`
	Event *storage.Event `json:"event,omitempty"`
}

// encodeFrame marshals f for the wire.
func encodeFrame(f Frame) ([]byte, error) {
	return json.Marshal(f)
}

// decodeFrame parses and validates a wire message.
func decodeFrame(data []byte) (Frame, error) {
	var f Frame
	if err := json.Unmarshal(data, &f); err != nil {
		return Frame{}, errors.New("E201").Wrap(err)
	}
	switch f.Type {
	case FrameHello:
		if f.ID == "" {
			return Frame{}, errors.New("E201").WithDetail("hello frame without id")
		}
	case FrameEvent:
		if f.Event == nil || f.Event.Key == "" {
			return Frame{}, errors.New("E201").WithDetail("event frame without key")
		}
	default:
		return Frame{}, errors.New("E201").WithDetailf("unknown frame type %q", f.Type)
	}
	return f, nil
}

// OriginURL returns the websocket endpoint of origin on the hub at base.
// base may use the http, https, ws or wss scheme.
func OriginURL(base, origin string) string {
	base = strings.TrimRight(base, "/")
	switch {
	case strings.HasPrefix(base, "http://"):
		base = "ws://" + strings.TrimPrefix(base, "http://")
	case strings.HasPrefix(base, "https://"):
		base = "wss://" + strings.TrimPrefix(base, "https://")
	}
	return base + "/origins/" + url.PathEscape(origin) + "/ws"
}
