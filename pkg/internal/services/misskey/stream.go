package misskey

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"git.solsynth.dev/hypernet/mideck/pkg/internal/models"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	jsoniter "github.com/json-iterator/go"
	"github.com/rs/zerolog/log"
)

type StreamHandlers struct {
	OnNote func(note models.Note)
	// OnDisconnected fires at most once, when the connection is lost before Dispose.
	OnDisconnected func(err error)
}

// Subscription is one streaming connection connected to one channel.
type Subscription struct {
	id       string
	channel  string
	origin   string
	conn     *websocket.Conn
	handlers StreamHandlers

	// dispatchLock serializes handler calls against Dispose, so no handler
	// runs once Dispose has returned. Handlers must not call Dispose.
	dispatchLock sync.Mutex
	closed       bool
	disposeOnce  sync.Once
	done         chan struct{}
}

type streamMessage struct {
	Type string              `json:"type"`
	Body jsoniter.RawMessage `json:"body"`
}

type channelMessage struct {
	ID   string              `json:"id"`
	Type string              `json:"type"`
	Body jsoniter.RawMessage `json:"body"`
}

func (v *Client) streamURL() (string, error) {
	parsed, err := url.Parse(v.origin)
	if err != nil {
		return "", err
	}
	switch parsed.Scheme {
	case "http":
		parsed.Scheme = "ws"
	default:
		parsed.Scheme = "wss"
	}
	parsed.Path = strings.TrimRight(parsed.Path, "/") + "/streaming"
	if len(v.token) > 0 {
		parsed.RawQuery = url.Values{"i": []string{v.token}}.Encode()
	}
	return parsed.String(), nil
}

// OpenStream connects to the streaming endpoint and subscribes to channel.
// Events are delivered in arrival order from a single goroutine.
func (v *Client) OpenStream(ctx context.Context, channel string, params map[string]any, handlers StreamHandlers) (*Subscription, error) {
	target, err := v.streamURL()
	if err != nil {
		return nil, fmt.Errorf("invalid stream origin: %v", err)
	}

	dialer := websocket.Dialer{
		Proxy:            http.ProxyFromEnvironment,
		HandshakeTimeout: 15 * time.Second,
	}
	header := http.Header{}
	if len(v.userAgent) > 0 {
		header.Set("User-Agent", v.userAgent)
	}
	conn, resp, err := dialer.DialContext(ctx, target, header)
	if err != nil {
		if resp != nil && resp.StatusCode == http.StatusUnauthorized {
			return nil, fmt.Errorf("%w: stream rejected the access token", ErrAuth)
		}
		return nil, fmt.Errorf("%w: failed to connect stream on %s: %v", ErrNetwork, v.origin, err)
	}

	sub := &Subscription{
		id:       uuid.NewString(),
		channel:  channel,
		origin:   v.origin,
		conn:     conn,
		handlers: handlers,
		done:     make(chan struct{}),
	}

	if params == nil {
		params = map[string]any{}
	}
	connect, _ := jsoniter.Marshal(map[string]any{
		"type": "connect",
		"body": map[string]any{
			"channel": channel,
			"id":      sub.id,
			"params":  params,
		},
	})
	if err := conn.WriteMessage(websocket.TextMessage, connect); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("%w: failed to subscribe %s: %v", ErrNetwork, channel, err)
	}

	log.Debug().Str("origin", v.origin).Str("channel", channel).Msg("Stream connected.")

	go sub.readLoop()
	return sub, nil
}

func (s *Subscription) Channel() string {
	return s.channel
}

// Done is closed once the read loop has exited.
func (s *Subscription) Done() <-chan struct{} {
	return s.done
}

func (s *Subscription) readLoop() {
	defer close(s.done)

	for {
		_, data, err := s.conn.ReadMessage()
		if err != nil {
			s.dispatch(func() {
				log.Warn().Err(err).Str("origin", s.origin).Str("channel", s.channel).Msg("Stream disconnected...")
				if s.handlers.OnDisconnected != nil {
					s.handlers.OnDisconnected(fmt.Errorf("%w: connection lost to %s: %v", ErrNetwork, s.origin, err))
				}
			})
			return
		}

		var msg streamMessage
		if err := jsoniter.Unmarshal(data, &msg); err != nil {
			log.Warn().Err(err).Str("origin", s.origin).Msg("Failed to parse stream message, skipped...")
			continue
		}
		if msg.Type != "channel" {
			continue
		}

		var body channelMessage
		if err := jsoniter.Unmarshal(msg.Body, &body); err != nil || body.ID != s.id {
			continue
		}

		switch body.Type {
		case "note":
			var note models.Note
			if err := jsoniter.Unmarshal(body.Body, &note); err != nil {
				log.Warn().Err(err).Str("origin", s.origin).Msg("Failed to parse streamed note, skipped...")
				continue
			}
			s.dispatch(func() {
				if s.handlers.OnNote != nil {
					s.handlers.OnNote(note)
				}
			})
		}
	}
}

func (s *Subscription) dispatch(fn func()) {
	s.dispatchLock.Lock()
	defer s.dispatchLock.Unlock()
	if s.closed {
		return
	}
	fn()
}

// Dispose closes the connection. It is idempotent, and once it returns no handler is invoked anymore.
func (s *Subscription) Dispose() {
	s.disposeOnce.Do(func() {
		s.dispatchLock.Lock()
		s.closed = true
		s.dispatchLock.Unlock()

		_ = s.conn.WriteControl(
			websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(time.Second),
		)
		_ = s.conn.Close()
	})
}
