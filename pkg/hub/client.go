package hub

import (
	"context"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/vango-dev/sharedstate/internal/errors"
	"github.com/vango-dev/sharedstate/pkg/storage"
)

// ClientOption configures a Client.
type ClientOption func(*clientConfig)

type clientConfig struct {
	logger       *slog.Logger
	dialer       *websocket.Dialer
	header       http.Header
	queueSize    int
	writeTimeout time.Duration
}

// WithClientLogger sets the client's logger.
func WithClientLogger(logger *slog.Logger) ClientOption {
	return func(c *clientConfig) {
		c.logger = logger
	}
}

// WithDialer sets the websocket dialer.
// Default: websocket.DefaultDialer.
func WithDialer(d *websocket.Dialer) ClientOption {
	return func(c *clientConfig) {
		c.dialer = d
	}
}

// WithHeader adds HTTP headers to the upgrade request.
func WithHeader(h http.Header) ClientOption {
	return func(c *clientConfig) {
		c.header = h
	}
}

// WithClientQueueSize sets how many inbound events are buffered.
func WithClientQueueSize(n int) ClientOption {
	return func(c *clientConfig) {
		if n > 0 {
			c.queueSize = n
		}
	}
}

// WithWriteTimeout bounds each Publish when ctx has no earlier deadline.
func WithWriteTimeout(d time.Duration) ClientOption {
	return func(c *clientConfig) {
		if d > 0 {
			c.writeTimeout = d
		}
	}
}

// Client is one connection to a hub origin. It satisfies storage.Notifier
// and storage.Publisher.
type Client struct {
	conn   *websocket.Conn
	id     string
	events chan storage.Event
	logger *slog.Logger

	writeTimeout time.Duration
	writeMu      sync.Mutex

	closeOnce sync.Once
	done      chan struct{}
}

// Dial connects to the hub endpoint at url (see OriginURL) and waits for
// the server's hello frame.
func Dial(ctx context.Context, url string, opts ...ClientOption) (*Client, error) {
	cfg := clientConfig{
		logger:       slog.Default(),
		dialer:       websocket.DefaultDialer,
		queueSize:    storage.DefaultQueueSize,
		writeTimeout: 10 * time.Second,
	}
	for _, opt := range opts {
		opt(&cfg)
	}

	conn, _, err := cfg.dialer.DialContext(ctx, url, cfg.header)
	if err != nil {
		return nil, errors.New("E202").WithDetail(url).Wrap(err)
	}

	if deadline, ok := ctx.Deadline(); ok {
		conn.SetReadDeadline(deadline)
	}
	_, data, err := conn.ReadMessage()
	if err != nil {
		conn.Close()
		return nil, errors.New("E202").WithDetail("no hello frame").Wrap(err)
	}
	hello, err := decodeFrame(data)
	if err != nil || hello.Type != FrameHello {
		conn.Close()
		return nil, errors.New("E201").WithDetail("expected hello frame")
	}
	conn.SetReadDeadline(time.Time{})

	c := &Client{
		conn:         conn,
		id:           hello.ID,
		events:       make(chan storage.Event, cfg.queueSize),
		logger:       cfg.logger.With("component", "hub-client", "id", hello.ID),
		writeTimeout: cfg.writeTimeout,
		done:         make(chan struct{}),
	}
	go c.readLoop()
	return c, nil
}

// ID returns the connection id assigned by the hub. Events published by
// this client carry it as their Source.
func (c *Client) ID() string {
	return c.id
}

// Events returns the events published by other connections of the origin.
// The channel is closed when the connection ends.
func (c *Client) Events() <-chan storage.Event {
	return c.events
}

// Publish sends ev to the other connections of the origin.
func (c *Client) Publish(ctx context.Context, ev storage.Event) error {
	select {
	case <-c.done:
		return errors.New("E202")
	default:
	}

	data, err := encodeFrame(Frame{Type: FrameEvent, Event: &ev})
	if err != nil {
		return errors.New("E201").Wrap(err)
	}

	deadline := time.Now().Add(c.writeTimeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	c.conn.SetWriteDeadline(deadline)
	if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
		return errors.New("E202").Wrap(err)
	}
	return nil
}

// Close ends the connection. It is safe to call more than once.
func (c *Client) Close() error {
	var err error
	c.closeOnce.Do(func() {
		close(c.done)
		c.writeMu.Lock()
		c.conn.SetWriteDeadline(time.Now().Add(time.Second))
		c.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
		c.writeMu.Unlock()
		err = c.conn.Close()
	})
	return err
}

func (c *Client) readLoop() {
	defer close(c.events)
	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			select {
			case <-c.done:
			default:
				c.logger.Warn("hub connection lost", "error", err)
				c.closeOnce.Do(func() {
					close(c.done)
					c.conn.Close()
				})
			}
			return
		}

		f, err := decodeFrame(data)
		if err != nil || f.Type != FrameEvent {
			c.logger.Warn("ignoring frame", "error", err)
			continue
		}

		select {
		case c.events <- *f.Event:
		default:
			c.logger.Warn("event queue full, dropping event", "key", f.Event.Key)
		}
	}
}
