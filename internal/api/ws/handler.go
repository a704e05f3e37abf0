package ws

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/denix0/applaunchd/internal/domain/launcher"
	"github.com/denix0/applaunchd/internal/infrastructure/logging"
	"github.com/denix0/applaunchd/internal/infrastructure/monitoring"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true // The CORS middleware is the origin gate
	},
}

// Handler streams lifecycle events to WebSocket subscribers.
type Handler struct {
	launcher *launcher.Launcher
	log      *logging.Logger
	metrics  *monitoring.Metrics
}

// NewHandler creates a new WebSocket handler.
func NewHandler(l *launcher.Launcher, log *logging.Logger, metrics *monitoring.Metrics) *Handler {
	return &Handler{launcher: l, log: log, metrics: metrics}
}

// HandleConnection upgrades the request and pushes started/terminated
// events until the client disconnects. Subscription begins at connect
// time; events fired earlier are not replayed.
func (h *Handler) HandleConnection(c *gin.Context) {
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.log.Warn("websocket upgrade failed", zap.Error(err))
		return
	}
	defer conn.Close()

	if h.metrics != nil {
		h.metrics.WSConnected()
		defer h.metrics.WSDisconnected()
	}

	subID, events := h.launcher.Subscribe()

	h.log.Debug("websocket subscriber connected", zap.String("subscriber", subID))

	// Writer: forward lifecycle events until the subscription or the
	// connection goes away.
	done := make(chan struct{})
	go func() {
		defer close(done)
		for ev := range events {
			if err := conn.WriteJSON(ev); err != nil {
				return
			}
		}
	}()

	// Reader: the stream is push-only, reads only detect disconnect.
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			break
		}
	}

	// Unsubscribing closes the event channel, which stops the writer.
	h.launcher.Unsubscribe(subID)
	<-done

	h.log.Debug("websocket subscriber disconnected", zap.String("subscriber", subID))
}
