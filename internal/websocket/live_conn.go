package websocket

import (
	"encoding/json"
	"errors"
	"sync"
	"time"

	"silo-be/internal/pkg/logger"
	"silo-be/pkg/voice"

	"github.com/gofiber/websocket/v2"
)

const (
	liveMaxMessageSize = 1 << 20
	liveSendBuffer     = 64
)

var (
	ErrLiveClosed  = errors.New("live socket closed")
	ErrLiveBacklog = errors.New("live socket is not keeping up")
)

type frame struct {
	kind int
	data []byte
}

// LiveConn is the socket of one voice call. The browser owns the microphone and the
// speaker, so LiveConn drives them with control frames and carries audio both ways.
// Its outbound methods only queue and never block.
type LiveConn struct {
	conn   *websocket.Conn
	send   chan frame
	done   chan struct{}
	once   sync.Once
	logger logger.ILogger
}

func NewLiveConn(conn *websocket.Conn, log logger.ILogger) *LiveConn {
	return &LiveConn{
		conn:   conn,
		send:   make(chan frame, liveSendBuffer),
		done:   make(chan struct{}),
		logger: log,
	}
}

func (c *LiveConn) Acquire() error {
	return c.sendJSON(map[string]string{"type": "mic", "action": "start"})
}

func (c *LiveConn) Release() error {
	return c.sendJSON(map[string]string{"type": "mic", "action": "stop"})
}

func (c *LiveConn) Play(audio []byte) error {
	return c.enqueue(frame{kind: websocket.BinaryMessage, data: audio})
}

func (c *LiveConn) Stop() {
	_ = c.sendJSON(map[string]string{"type": "playback", "action": "stop"})
}

func (c *LiveConn) SendStatus(st voice.State) {
	_ = c.sendJSON(map[string]interface{}{
		"type":   "status",
		"status": st.Status,
		"paused": st.Paused,
		"error":  st.Error,
	})
}

func (c *LiveConn) Close() {
	c.once.Do(func() { close(c.done) })
}

// Serve pumps the socket until it closes or Close is called. Audio frames go to
// onAudio, control messages to onControl by type.
func (c *LiveConn) Serve(onAudio func([]byte), onControl func(string)) {
	go c.writePump()
	defer func() {
		c.Close()
		c.conn.Close()
	}()

	c.conn.SetReadLimit(liveMaxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		kind, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.logger.Warn("LiveConn", "Unexpected close", map[string]interface{}{"error": err.Error()})
			}
			return
		}
		c.conn.SetReadDeadline(time.Now().Add(pongWait))

		switch kind {
		case websocket.BinaryMessage:
			onAudio(data)
		case websocket.TextMessage:
			var msg struct {
				Type string `json:"type"`
			}
			if err := json.Unmarshal(data, &msg); err != nil {
				c.logger.Warn("LiveConn", "Ignoring malformed control message", map[string]interface{}{"error": err.Error()})
				continue
			}
			onControl(msg.Type)
		}
	}
}

func (c *LiveConn) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case <-c.done:
			c.flush()
			return
		case f := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(f.kind, f.data); err != nil {
				c.Close()
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				c.Close()
				return
			}
		}
	}
}

// flush writes what is still queued, then says goodbye.
func (c *LiveConn) flush() {
	for {
		select {
		case f := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(f.kind, f.data); err != nil {
				return
			}
		default:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			c.conn.WriteMessage(websocket.CloseMessage, []byte{})
			return
		}
	}
}

func (c *LiveConn) sendJSON(v interface{}) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return c.enqueue(frame{kind: websocket.TextMessage, data: data})
}

func (c *LiveConn) enqueue(f frame) error {
	select {
	case <-c.done:
		return ErrLiveClosed
	default:
	}
	select {
	case c.send <- f:
		return nil
	default:
		return ErrLiveBacklog
	}
}
