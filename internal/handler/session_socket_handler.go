package handler

import (
	"silo-be/internal/pkg/logger"
	"silo-be/internal/pkg/serverutils"
	"silo-be/internal/service"
	internalWS "silo-be/internal/websocket"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/websocket/v2"
)

// SessionSocketHandler streams state snapshots of a session to the browser.
type SessionSocketHandler struct {
	sessions service.ISessionService
	hub      *internalWS.Hub
	auth     fiber.Handler
	logger   logger.ILogger
}

func NewSessionSocketHandler(sessions service.ISessionService, hub *internalWS.Hub, auth fiber.Handler, log logger.ILogger) *SessionSocketHandler {
	return &SessionSocketHandler{
		sessions: sessions,
		hub:      hub,
		auth:     auth,
		logger:   log,
	}
}

// ServeWs upgrades the request and sends the current snapshot before any update.
func (h *SessionSocketHandler) ServeWs(c *fiber.Ctx) error {
	if !websocket.IsWebSocketUpgrade(c) {
		return fiber.ErrUpgradeRequired
	}

	sessionID := serverutils.SessionID(c)
	state, err := h.sessions.State(c.UserContext(), sessionID)
	if err != nil {
		return err
	}
	initial, err := internalWS.Encode("state", state)
	if err != nil {
		return err
	}

	return websocket.New(func(conn *websocket.Conn) {
		h.logger.Info("SessionSocketHandler", "Starting WebSocket session", map[string]interface{}{
			"session_id":   sessionID,
			"open_sockets": h.hub.Connected(sessionID),
		})
		internalWS.ServeWs(h.hub, conn, sessionID, initial)
		h.logger.Info("SessionSocketHandler", "WebSocket session ended", map[string]interface{}{"session_id": sessionID})
	})(c)
}

func (h *SessionSocketHandler) RegisterRoutes(router fiber.Router) {
	router.Get("/session/v1/ws", h.auth, h.ServeWs)
}
