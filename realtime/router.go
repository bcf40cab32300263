package realtime

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	log "github.com/sirupsen/logrus"
)

var upgrader = websocket.Upgrader{
	// clients are browsers served from other origins
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
}

// NewRouter mounts the websocket endpoint and the health check
func NewRouter(d *Dispatcher) *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery())

	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":   "ok",
			"sessions": d.registry.Count(),
		})
	})
	router.GET("/ws", d.ServeWS)

	return router
}

// ServeWS upgrades the request and starts the connection's pumps
func (d *Dispatcher) ServeWS(c *gin.Context) {
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		// Upgrade has already replied with an HTTP error
		log.WithError(err).Warn("Failed to upgrade websocket")
		return
	}

	client := newClient(conn, d.hub, d)
	go client.writePump()
	go client.readPump()

	log.WithFields(log.Fields{
		"conn_id": client.ID(),
		"remote":  c.Request.RemoteAddr,
	}).Debug("Websocket connected")
}
