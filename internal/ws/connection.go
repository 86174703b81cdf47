package ws

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/rs/zerolog/log"
)

var ErrConnClosed = errors.New("connection closed")

type WSConn struct {
	c      *websocket.Conn
	ctx    context.Context
	cancel context.CancelFunc

	userID string
	name   string

	sendCh  chan []byte
	closing chan struct{}
	once    sync.Once

	lastMu   sync.Mutex
	lastSeen time.Time
}

func NewWSConn(c *websocket.Conn, userID, name string) *WSConn {
	ctx, cancel := context.WithCancel(context.Background())
	w := &WSConn{
		c:        c,
		ctx:      ctx,
		cancel:   cancel,
		userID:   userID,
		name:     name,
		sendCh:   make(chan []byte, 64),
		closing:  make(chan struct{}),
		lastSeen: time.Now(),
	}
	go w.writeLoop()
	return w
}

// Close asks the write loop to flush what is queued and then close the
// socket. It does not wait and is safe to call more than once.
func (w *WSConn) Close() error {
	w.once.Do(func() {
		close(w.closing)
	})
	return nil
}

func (w *WSConn) UserID() string      { return w.userID }
func (w *WSConn) DisplayName() string { return w.name }

func (w *WSConn) Send(v any) error {
	b, err := json.Marshal(v)
	if err != nil {
		log.Error().Str("user", w.userID).Err(err).Msg("ws: failed to marshal message")
		return err
	}

	select {
	case <-w.closing:
		return ErrConnClosed
	case <-w.ctx.Done():
		return ErrConnClosed
	default:
	}

	select {
	case w.sendCh <- b:
		return nil
	case <-w.ctx.Done():
		log.Warn().Str("user", w.userID).Str("type", messageType(v)).Msg("ws: failed to queue message (connection closed)")
		return ErrConnClosed
	}
}

func (w *WSConn) writeLoop() {
	defer w.cancel()

	for {
		select {
		case b := <-w.sendCh:
			if !w.write(b) {
				_ = w.c.Close(websocket.StatusInternalError, "write failed")
				return
			}

		case <-w.closing:
			if !w.drain() {
				_ = w.c.Close(websocket.StatusInternalError, "write failed")
				return
			}
			_ = w.c.Close(websocket.StatusNormalClosure, "bye")
			log.Debug().Str("user", w.userID).Msg("ws: writeLoop closed")
			return
		}
	}
}

func (w *WSConn) drain() bool {
	for {
		select {
		case b := <-w.sendCh:
			if !w.write(b) {
				return false
			}
		default:
			return true
		}
	}
}

func (w *WSConn) write(b []byte) bool {
	writeCtx, writeCancel := context.WithTimeout(w.ctx, 5*time.Second)
	err := w.c.Write(writeCtx, websocket.MessageText, b)
	writeCancel()

	if err != nil {
		log.Error().
			Str("user", w.userID).
			Err(err).
			Msg("ws: failed to write message")
		return false
	}

	log.Debug().
		Str("user", w.userID).
		Int("bytes", len(b)).
		Msg("ws: message sent")
	return true
}

func (w *WSConn) Touch() {
	w.lastMu.Lock()
	defer w.lastMu.Unlock()
	w.lastSeen = time.Now()
}

func (w *WSConn) LastSeen() time.Time {
	w.lastMu.Lock()
	defer w.lastMu.Unlock()
	return w.lastSeen
}

func messageType(v any) string {
	if msg, ok := v.(map[string]any); ok {
		if t, ok := msg["type"].(string); ok {
			return t
		}
	}
	return ""
}
