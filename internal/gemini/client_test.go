// ABOUTME: Tests for the Live API websocket client
// ABOUTME: Runs the handshake and message routing against an httptest server
package gemini

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/Ashama-AI/ashama-go/internal/live"
	"github.com/Ashama-AI/ashama-go/pkg/audio"
	"github.com/gorilla/websocket"
)

type fakeServer struct {
	srv      *httptest.Server
	setups   chan string
	received chan string
	script   func(conn *websocket.Conn)
	query    chan string
}

func newFakeServer(t *testing.T, script func(conn *websocket.Conn)) *fakeServer {
	t.Helper()
	fs := &fakeServer{
		setups:   make(chan string, 1),
		received: make(chan string, 16),
		query:    make(chan string, 1),
		script:   script,
	}
	upgrader := websocket.Upgrader{}

	fs.srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fs.query <- r.URL.RawQuery
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()

		_, data, err := conn.ReadMessage()
		if err != nil {
			return
		}
		fs.setups <- string(data)

		fs.script(conn)
	}))
	t.Cleanup(fs.srv.Close)
	return fs
}

func (fs *fakeServer) endpoint() string {
	return "ws" + strings.TrimPrefix(fs.srv.URL, "http")
}

func ready(conn *websocket.Conn) {
	conn.WriteMessage(websocket.TextMessage, []byte(`{"setupComplete":{}}`))
}

func next(t *testing.T, ch <-chan live.Message) live.Message {
	t.Helper()
	select {
	case m, ok := <-ch:
		if !ok {
			t.Fatal("message channel closed")
		}
		return m
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for message")
	}
	return nil
}

func TestDialMissingKey(t *testing.T) {
	d := NewDialer(Config{})
	if _, err := d.Dial(context.Background(), live.Config{}); !errors.Is(err, ErrMissingAPIKey) {
		t.Errorf("expected ErrMissingAPIKey, got %v", err)
	}
}

func TestHandshakeAndRouting(t *testing.T) {
	pcm := audio.EncodeBase64([]byte{0, 64, 0, 192})

	fs := newFakeServer(t, func(conn *websocket.Conn) {
		ready(conn)
		conn.WriteMessage(websocket.TextMessage, []byte(`{"serverContent":{"outputTranscription":{"text":"Nagaa"}}}`))
		// the live API sends JSON in binary frames too
		conn.WriteMessage(websocket.BinaryMessage, []byte(`{"serverContent":{"modelTurn":{"parts":[{"inlineData":{"mimeType":"audio/pcm;rate=24000","data":"`+pcm+`"}}]}}}`))
		conn.WriteMessage(websocket.TextMessage, []byte(`{"serverContent":{"turnComplete":true}}`))

		if _, _, err := conn.ReadMessage(); err == nil {
			conn.WriteMessage(websocket.TextMessage, []byte(`{"serverContent":{"interrupted":true}}`))
		}
		conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
		conn.ReadMessage()
	})

	d := NewDialer(Config{Endpoint: fs.endpoint(), APIKey: "secret"})
	sess, err := d.Dial(context.Background(), live.Config{Model: "m", Voice: "Zephyr"})
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer sess.Close()

	if q := <-fs.query; !strings.Contains(q, "key=secret") {
		t.Errorf("api key not in query: %s", q)
	}
	if setup := <-fs.setups; !strings.Contains(setup, `"model":"models/m"`) {
		t.Errorf("unexpected setup %s", setup)
	}

	msgs := sess.Messages()
	if tf, ok := next(t, msgs).(live.TranscriptionFragment); !ok || tf.Text != "Nagaa" {
		t.Errorf("expected transcription, got %#v", tf)
	}
	af, ok := next(t, msgs).(live.AudioFragment)
	if !ok || len(af.Data) != 4 || af.SampleRate != 24000 {
		t.Errorf("unexpected audio %#v", af)
	}
	if _, ok := next(t, msgs).(live.TurnComplete); !ok {
		t.Error("expected turn complete")
	}

	frame := live.NewAudioFrame([]byte{1, 0}, audio.PCM16(audio.CaptureSampleRate))
	if err := sess.Send(context.Background(), frame); err != nil {
		t.Fatalf("send: %v", err)
	}

	if _, ok := next(t, msgs).(live.Interrupted); !ok {
		t.Error("expected interrupted")
	}
	closed, ok := next(t, msgs).(live.Closed)
	if !ok {
		t.Fatal("expected closed")
	}
	if closed.Err != nil {
		t.Errorf("normal closure should be clean, got %v", closed.Err)
	}
}

func TestSetupRejected(t *testing.T) {
	fs := newFakeServer(t, func(conn *websocket.Conn) {
		conn.WriteMessage(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.ClosePolicyViolation, "API key not valid"))
	})

	d := NewDialer(Config{Endpoint: fs.endpoint(), APIKey: "bad"})
	_, err := d.Dial(context.Background(), live.Config{Model: "m"})
	if err == nil {
		t.Fatal("expected handshake error")
	}
	if !strings.Contains(err.Error(), "API key not valid") {
		t.Errorf("close reason missing from %v", err)
	}
}

func TestHandshakeTimeout(t *testing.T) {
	fs := newFakeServer(t, func(conn *websocket.Conn) {
		time.Sleep(500 * time.Millisecond)
	})

	d := NewDialer(Config{Endpoint: fs.endpoint(), APIKey: "k", HandshakeTimeout: 100 * time.Millisecond})
	if _, err := d.Dial(context.Background(), live.Config{}); err == nil {
		t.Fatal("expected timeout")
	}
}

func TestAbnormalCloseReportsError(t *testing.T) {
	fs := newFakeServer(t, func(conn *websocket.Conn) {
		ready(conn)
		conn.WriteMessage(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseInternalServerErr, "boom"))
		conn.ReadMessage()
	})

	d := NewDialer(Config{Endpoint: fs.endpoint(), APIKey: "k"})
	sess, err := d.Dial(context.Background(), live.Config{})
	if err != nil {
		t.Fatal(err)
	}
	defer sess.Close()

	closed, ok := next(t, sess.Messages()).(live.Closed)
	if !ok || closed.Err == nil {
		t.Errorf("expected Closed with error, got %#v", closed)
	}
}

func TestCloseIsIdempotent(t *testing.T) {
	fs := newFakeServer(t, func(conn *websocket.Conn) {
		ready(conn)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	})

	d := NewDialer(Config{Endpoint: fs.endpoint(), APIKey: "k"})
	sess, err := d.Dial(context.Background(), live.Config{})
	if err != nil {
		t.Fatal(err)
	}

	sess.Close()
	if err := sess.Close(); err != nil {
		t.Errorf("second close: %v", err)
	}

	frame := live.NewAudioFrame(nil, audio.PCM16(audio.CaptureSampleRate))
	if err := sess.Send(context.Background(), frame); !errors.Is(err, live.ErrClosed) {
		t.Errorf("expected ErrClosed, got %v", err)
	}

	// channel drains and closes
	deadline := time.After(2 * time.Second)
	for {
		select {
		case _, ok := <-sess.Messages():
			if !ok {
				return
			}
		case <-deadline:
			t.Fatal("messages channel never closed")
		}
	}
}

func TestSendQueueFullDrops(t *testing.T) {
	s := &Session{
		out:       make(chan []byte, 1),
		msgs:      make(chan live.Message, 1),
		connected: true,
		ctx:       context.Background(),
		cancel:    func() {},
	}
	s.logger = NewDialer(Config{}).config.Logger

	frame := live.NewAudioFrame([]byte{0, 0}, audio.PCM16(audio.CaptureSampleRate))
	if err := s.Send(context.Background(), frame); err != nil {
		t.Fatalf("first send: %v", err)
	}
	if err := s.Send(context.Background(), frame); !errors.Is(err, ErrQueueFull) {
		t.Errorf("expected ErrQueueFull, got %v", err)
	}
	if s.Dropped() != 1 {
		t.Errorf("expected 1 dropped, got %d", s.Dropped())
	}
}
