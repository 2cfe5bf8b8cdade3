// ABOUTME: WebSocket client for the Gemini Live API
// ABOUTME: Handles connection, setup handshake, queued sends and message routing
package gemini

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"sync"
	"sync/atomic"
	"time"

	"github.com/Ashama-AI/ashama-go/internal/live"
	"github.com/Ashama-AI/ashama-go/internal/metrics"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// DefaultEndpoint is the BidiGenerateContent websocket endpoint
const DefaultEndpoint = "wss://generativelanguage.googleapis.com/ws/google.ai.generativelanguage.v1beta.GenerativeService.BidiGenerateContent"

const (
	defaultHandshakeTimeout = 10 * time.Second
	defaultSendQueue        = 64
	defaultMessageBuffer    = 128
	writeTimeout            = 5 * time.Second
	closeDeliveryTimeout    = 5 * time.Second
)

// ErrQueueFull is returned when an outbound frame is dropped
var ErrQueueFull = errors.New("send queue full, frame dropped")

// ErrMissingAPIKey is returned by Dial when no key is configured
var ErrMissingAPIKey = errors.New("gemini api key is not set")

// Config holds client configuration
type Config struct {
	Endpoint         string
	APIKey           string
	HandshakeTimeout time.Duration
	SendQueue        int
	Logger           *zap.SugaredLogger
	Metrics          *metrics.Metrics
}

// Dialer opens Live API sessions. It implements live.Dialer.
type Dialer struct {
	config Config
	ws     *websocket.Dialer
}

// NewDialer creates a dialer, filling defaults for unset fields
func NewDialer(config Config) *Dialer {
	if config.Endpoint == "" {
		config.Endpoint = DefaultEndpoint
	}
	if config.HandshakeTimeout <= 0 {
		config.HandshakeTimeout = defaultHandshakeTimeout
	}
	if config.SendQueue <= 0 {
		config.SendQueue = defaultSendQueue
	}
	if config.Logger == nil {
		config.Logger = zap.NewNop().Sugar()
	}

	return &Dialer{
		config: config,
		ws: &websocket.Dialer{
			HandshakeTimeout: config.HandshakeTimeout,
		},
	}
}

// Dial connects and performs the setup handshake
func (d *Dialer) Dial(ctx context.Context, cfg live.Config) (live.Session, error) {
	if d.config.APIKey == "" {
		return nil, ErrMissingAPIKey
	}

	u, err := url.Parse(d.config.Endpoint)
	if err != nil {
		return nil, fmt.Errorf("invalid endpoint: %w", err)
	}
	q := u.Query()
	q.Set("key", d.config.APIKey)
	u.RawQuery = q.Encode()

	d.config.Logger.Infow("connecting to live api", "endpoint", d.config.Endpoint, "model", cfg.Model)

	conn, _, err := d.ws.DialContext(ctx, u.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("dial failed: %w", err)
	}

	s := newSession(conn, d.config)

	if err := s.handshake(ctx, cfg, d.config.HandshakeTimeout); err != nil {
		s.Close()
		return nil, fmt.Errorf("handshake failed: %w", err)
	}

	go s.writeLoop()
	go s.readLoop()

	return s, nil
}

// Session is an open Live API stream. It implements live.Session.
type Session struct {
	conn *websocket.Conn
	mu   sync.RWMutex

	out  chan []byte
	msgs chan live.Message

	// State
	connected bool
	ctx       context.Context
	cancel    context.CancelFunc
	dropped   atomic.Int64

	logger  *zap.SugaredLogger
	metrics *metrics.Metrics
}

func newSession(conn *websocket.Conn, config Config) *Session {
	ctx, cancel := context.WithCancel(context.Background())

	return &Session{
		conn:      conn,
		out:       make(chan []byte, config.SendQueue),
		msgs:      make(chan live.Message, defaultMessageBuffer),
		connected: true,
		ctx:       ctx,
		cancel:    cancel,
		logger:    config.Logger,
		metrics:   config.Metrics,
	}
}

// handshake sends setup and waits for setupComplete
func (s *Session) handshake(ctx context.Context, cfg live.Config, timeout time.Duration) error {
	deadline := time.Now().Add(timeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}

	s.conn.SetWriteDeadline(deadline)
	if err := s.conn.WriteJSON(newSetup(cfg)); err != nil {
		return fmt.Errorf("failed to send setup: %w", err)
	}
	s.conn.SetWriteDeadline(time.Time{})

	s.conn.SetReadDeadline(deadline)
	defer s.conn.SetReadDeadline(time.Time{}) // Clear deadline

	for {
		_, data, err := s.conn.ReadMessage()
		if err != nil {
			var ce *websocket.CloseError
			if errors.As(err, &ce) {
				return fmt.Errorf("server closed during setup: %s (code %d)", ce.Text, ce.Code)
			}
			return fmt.Errorf("failed to read setupComplete: %w", err)
		}

		d, err := Decode(data)
		if err != nil {
			return err
		}
		if d.SetupComplete {
			s.logger.Infow("live session ready", "model", cfg.Model)
			return nil
		}
		s.logger.Debugw("ignoring message before setupComplete", "bytes", len(data))
	}
}

// Send queues a microphone frame. A full queue drops the frame.
func (s *Session) Send(ctx context.Context, frame live.AudioFrame) error {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if !s.connected {
		return live.ErrClosed
	}

	data, err := json.Marshal(newRealtimeInput(frame))
	if err != nil {
		return fmt.Errorf("failed to encode frame: %w", err)
	}

	select {
	case s.out <- data:
		s.metrics.FrameSent()
		return nil
	case <-ctx.Done():
		return ctx.Err()
	default:
		n := s.dropped.Add(1)
		s.metrics.FrameDropped()
		if n == 1 || n%100 == 0 {
			s.logger.Warnw("dropping capture frames", "dropped", n)
		}
		return ErrQueueFull
	}
}

// Messages returns inbound events. The last message is Closed.
func (s *Session) Messages() <-chan live.Message {
	return s.msgs
}

// Dropped returns the number of frames dropped by a full send queue
func (s *Session) Dropped() int64 {
	return s.dropped.Load()
}

// writeLoop drains the send queue onto the socket
func (s *Session) writeLoop() {
	for {
		select {
		case <-s.ctx.Done():
			return
		case data := <-s.out:
			s.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			if err := s.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				s.logger.Warnw("write error", "error", err)
				s.conn.Close()
				return
			}
		}
	}
}

// readLoop decodes frames and routes them to Messages
func (s *Session) readLoop() {
	var closeErr error
	defer func() { s.finish(closeErr) }()

	for {
		_, data, err := s.conn.ReadMessage()
		if err != nil {
			closeErr = s.classify(err)
			return
		}

		d, err := Decode(data)
		if err != nil {
			// malformed frame is a protocol error
			closeErr = err
			s.logger.Errorw("protocol error", "error", err)
			return
		}

		for _, ferr := range d.FragmentErrors {
			s.metrics.CodecError()
			s.logger.Warnw("dropping undecodable fragment", "error", ferr)
		}

		if d.GoAway != "" {
			s.logger.Infow("server will close the session", "time_left", d.GoAway)
		}

		for _, m := range d.Messages {
			s.metrics.Fragment(live.Kind(m))
			select {
			case s.msgs <- m:
			case <-s.ctx.Done():
				return
			}
		}
	}
}

// classify turns a read error into the Closed error. A local close or a
// normal closure is clean.
func (s *Session) classify(err error) error {
	if s.ctx.Err() != nil {
		return nil
	}
	if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
		return nil
	}
	var ce *websocket.CloseError
	if errors.As(err, &ce) {
		return fmt.Errorf("session closed by server: %s (code %d)", ce.Text, ce.Code)
	}
	return fmt.Errorf("read error: %w", err)
}

// finish delivers the terminal Closed message and closes the channel
func (s *Session) finish(err error) {
	local := s.ctx.Err() != nil

	s.mu.Lock()
	wasConnected := s.connected
	s.connected = false
	s.mu.Unlock()

	if wasConnected {
		s.cancel()
		s.conn.Close()
	}

	closed := live.Closed{Err: err}
	if local {
		// the consumer asked for the close and may no longer be reading
		select {
		case s.msgs <- closed:
		default:
		}
	} else {
		select {
		case s.msgs <- closed:
		case <-time.After(closeDeliveryTimeout):
			s.logger.Warnw("could not deliver close", "error", err)
		}
	}
	close(s.msgs)
	s.logger.Infow("live session finished", "error", err)
}

// Close closes the connection
func (s *Session) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.connected {
		return nil
	}
	s.connected = false
	s.cancel()

	s.conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(time.Second))
	err := s.conn.Close()
	s.logger.Infow("connection closed")
	return err
}

// IsConnected returns connection status
func (s *Session) IsConnected() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.connected
}
