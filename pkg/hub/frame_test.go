package hub

import (
	"errors"
	"testing"

	sserrors "github.com/vango-dev/sharedstate/internal/errors"
)

func TestDecodeFrame(t *testing.T) {
	tests := []struct {
		name    string
		data    string
		want    FrameType
		wantErr bool
	}{
		{"hello", `{"type":"hello","id":"abc"}`, FrameHello, false},
		{"event", `{"type":"event","event":{"key":"sharedstate:a","value":"1"}}`, FrameEvent, false},
		{"removal", `{"type":"event","event":{"key":"sharedstate:a","removed":true}}`, FrameEvent, false},
		{"hello without id", `{"type":"hello"}`, "", true},
		{"event without key", `{"type":"event","event":{"value":"1"}}`, "", true},
		{"event without body", `{"type":"event"}`, "", true},
		{"unknown type", `{"type":"ping"}`, "", true},
		{"not json", `hello`, "", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f, err := decodeFrame([]byte(tt.data))
			if tt.wantErr {
				if !errors.Is(err, sserrors.New("E201")) {
					t.Fatalf("decodeFrame() error = %v, want E201", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("decodeFrame() error: %v", err)
			}
			if f.Type != tt.want {
				t.Errorf("Type = %q, want %q", f.Type, tt.want)
			}
		})
	}
}

func TestOriginURL(t *testing.T) {
	tests := []struct {
		base, origin, want string
	}{
		{"ws://localhost:7070", "app", "ws://localhost:7070/origins/app/ws"},
		{"http://localhost:7070/", "app", "ws://localhost:7070/origins/app/ws"},
		{"https://hub.example.com", "my app", "wss://hub.example.com/origins/my%20app/ws"},
	}
	for _, tt := range tests {
		if got := OriginURL(tt.base, tt.origin); got != tt.want {
			t.Errorf("OriginURL(%q, %q) = %q, want %q", tt.base, tt.origin, got, tt.want)
		}
	}
}
