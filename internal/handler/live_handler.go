package handler

import (
	"silo-be/internal/pkg/logger"
	"silo-be/internal/pkg/serverutils"
	"silo-be/internal/service"
	internalWS "silo-be/internal/websocket"
	"silo-be/pkg/voice"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/websocket/v2"
)

// LiveHandler runs voice calls over a WebSocket.
type LiveHandler struct {
	sessions service.ISessionService
	live     service.ILiveService
	auth     fiber.Handler
	logger   logger.ILogger
}

func NewLiveHandler(sessions service.ISessionService, live service.ILiveService, auth fiber.Handler, log logger.ILogger) *LiveHandler {
	return &LiveHandler{
		sessions: sessions,
		live:     live,
		auth:     auth,
		logger:   log,
	}
}

func (h *LiveHandler) ServeWs(c *fiber.Ctx) error {
	if !websocket.IsWebSocketUpgrade(c) {
		return fiber.ErrUpgradeRequired
	}

	sessionID := serverutils.SessionID(c)
	if _, err := h.sessions.Find(sessionID); err != nil {
		return err
	}

	// the fiber ctx is recycled once the upgrade returns
	ctx := c.UserContext()

	return websocket.New(func(conn *websocket.Conn) {
		socket := internalWS.NewLiveConn(conn, h.logger)
		if err := h.live.Serve(ctx, sessionID, socket); err != nil {
			h.logger.Warn("LiveHandler", "Call refused", map[string]interface{}{
				"session_id": sessionID,
				"error":      err.Error(),
			})
			// the write pump never started, so answer directly
			conn.WriteJSON(map[string]interface{}{
				"type":   "status",
				"status": voice.StatusError,
				"paused": true,
				"error":  err.Error(),
			})
			conn.Close()
		}
	})(c)
}

func (h *LiveHandler) RegisterRoutes(router fiber.Router) {
	router.Get("/live/v1/ws", h.auth, h.ServeWs)
}
