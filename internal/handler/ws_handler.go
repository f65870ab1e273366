package handler

import (
	"log"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/quocanhngo/studymate/internal/middleware"
	"github.com/quocanhngo/studymate/internal/ws"
	"github.com/quocanhngo/studymate/pkg/auth"
)

// WSHandler upgrades signed-in sessions to WebSocket for account events
type WSHandler struct {
	hub        *ws.Hub
	jwtManager *auth.JWTManager
	revoked    middleware.RevocationChecker
	upgrader   websocket.Upgrader
}

// NewWSHandler accepts connections from allowedOrigins; "*" allows any origin
func NewWSHandler(hub *ws.Hub, jwtManager *auth.JWTManager, revoked middleware.RevocationChecker, allowedOrigins []string) *WSHandler {
	return &WSHandler{
		hub:        hub,
		jwtManager: jwtManager,
		revoked:    revoked,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     originChecker(allowedOrigins),
		},
	}
}

func originChecker(allowed []string) func(r *http.Request) bool {
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" {
			// native mobile clients send no Origin
			return true
		}
		for _, o := range allowed {
			if o == "*" || strings.EqualFold(o, origin) {
				return true
			}
		}
		return false
	}
}

// HandleWebSocket upgrades HTTP to WebSocket and registers the session.
// Client connects with: ws://host/ws?token=<jwt_token>
func (h *WSHandler) HandleWebSocket(c *gin.Context) {
	tokenString := c.Query("token")
	if tokenString == "" {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Token required"})
		return
	}

	claims, ok := middleware.Authenticate(c, h.jwtManager, h.revoked, tokenString)
	if !ok {
		return
	}

	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Printf("WebSocket upgrade error: %v", err)
		return
	}

	client := ws.NewClient(h.hub, conn, claims.UserID)
	h.hub.Register(client)

	go client.WritePump()
	go client.ReadPump()
}
