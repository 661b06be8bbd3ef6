package websocket

import (
	"github.com/gofiber/websocket/v2"
)

// ServeWs registers the socket for sessionID, sends initial if non-nil, and blocks
// until the socket closes.
func ServeWs(hub *Hub, c *websocket.Conn, sessionID string, initial []byte) {
	client := &Client{Hub: hub, Conn: c, SessionID: sessionID, Send: make(chan []byte, 256)}
	if initial != nil {
		client.Send <- initial
	}
	client.Hub.register <- client

	go client.writePump()
	client.readPump()
}
