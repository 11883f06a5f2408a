package notify

import (
	"net/http"
	"strings"
	"time"

	"behavior-backend/internal/auth"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxClientFrame = 4096
)

// clientFrame is what a websocket client may send.
type clientFrame struct {
	Action string `json:"action"` // subscribe or unsubscribe
	Topic  string `json:"topic"`
}

// WSHandler upgrades authenticated requests to websocket subscriptions.
type WSHandler struct {
	bus      *Bus
	gate     *auth.Gate
	upgrader websocket.Upgrader
	logger   *zap.Logger
}

// NewWSHandler returns a handler that accepts browser origins listed in
// allowedOrigins ("*" allows any). Requests without an Origin header are
// accepted.
func NewWSHandler(bus *Bus, gate *auth.Gate, allowedOrigins []string, logger *zap.Logger) *WSHandler {
	allowed := make(map[string]struct{}, len(allowedOrigins))
	for _, o := range allowedOrigins {
		allowed[strings.TrimRight(o, "/")] = struct{}{}
	}
	_, allowAll := allowed["*"]

	return &WSHandler{
		bus:  bus,
		gate: gate,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 4096,
			CheckOrigin: func(r *http.Request) bool {
				origin := r.Header.Get("Origin")
				if origin == "" || allowAll {
					return true
				}
				_, ok := allowed[strings.TrimRight(origin, "/")]
				return ok
			},
		},
		logger: logger.With(zap.String("component", "ws")),
	}
}

// identity prefers the identity set by the gate middleware and falls back to
// a token query parameter, since browsers cannot set headers on websocket
// handshakes.
func (h *WSHandler) identity(c *gin.Context) (auth.Identity, bool) {
	if id, ok := auth.IdentityFrom(c); ok {
		return id, true
	}
	if tok := c.Query("token"); tok != "" && h.gate != nil {
		return h.gate.Verify("Bearer " + tok)
	}
	return auth.Identity{}, false
}

// Handle serves GET /ws.
func (h *WSHandler) Handle(c *gin.Context) {
	id, ok := h.identity(c)
	if !ok {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
			"error":   "unauthorized",
			"message": "Authentication required",
		})
		return
	}

	topics := parseTopics(c.Query("topics"))
	if len(topics) == 0 {
		topics = []string{OwnerTopic(id.OwnerID)}
	}

	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		// the upgrader already wrote an error response
		h.logger.Warn("websocket upgrade failed", zap.Error(err))
		return
	}

	log := h.logger.With(zap.String("subject", id.Subject), zap.Uint("user_id", id.OwnerID))
	sub := h.bus.Subscribe(topics...)
	log.Info("websocket subscriber connected", zap.Strings("topics", topics))

	writerDone := make(chan struct{})
	go h.writeLoop(conn, sub, log, writerDone)

	h.readLoop(conn, sub, log)

	h.bus.Unsubscribe(sub)
	<-writerDone
	conn.Close()
	log.Info("websocket subscriber disconnected")
}

func (h *WSHandler) readLoop(conn *websocket.Conn, sub *Subscription, log *zap.Logger) {
	conn.SetReadLimit(maxClientFrame)
	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		var frame clientFrame
		if err := conn.ReadJSON(&frame); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Debug("websocket read ended", zap.Error(err))
			}
			return
		}
		if !ValidTopic(frame.Topic) {
			log.Debug("ignoring frame with invalid topic", zap.String("topic", frame.Topic))
			continue
		}
		switch frame.Action {
		case "subscribe":
			sub.Add(frame.Topic)
		case "unsubscribe":
			sub.Remove(frame.Topic)
		default:
			log.Debug("ignoring unknown action", zap.String("action", frame.Action))
		}
	}
}

func (h *WSHandler) writeLoop(conn *websocket.Conn, sub *Subscription, log *zap.Logger, done chan<- struct{}) {
	defer close(done)
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case msg, ok := <-sub.C():
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
				return
			}
			if err := conn.WriteJSON(msg); err != nil {
				log.Debug("websocket write failed", zap.Error(err))
				// unblock the reader
				conn.Close()
				drain(sub)
				return
			}
		case <-ticker.C:
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				conn.Close()
				drain(sub)
				return
			}
		}
	}
}

// drain consumes sub until Unsubscribe closes it.
func drain(sub *Subscription) {
	for range sub.C() {
	}
}

func parseTopics(raw string) []string {
	var out []string
	for _, t := range strings.Split(raw, ",") {
		if t = strings.TrimSpace(t); ValidTopic(t) {
			out = append(out, t)
		}
	}
	return out
}
