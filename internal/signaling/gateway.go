package signaling

import (
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const writeWait = 10 * time.Second

// GatewayConfig tunes the WebSocket side of the gateway.
type GatewayConfig struct {
	SendBuffer   int
	ReadLimit    int64
	PingInterval time.Duration // 0 disables ping/pong liveness checks
	CheckOrigin  func(r *http.Request) bool
}

// Gateway upgrades HTTP requests to signaling connections and feeds them to the hub.
type Gateway struct {
	hub      *Hub
	cfg      GatewayConfig
	upgrader websocket.Upgrader
	logger   *zap.Logger
}

// NewGateway creates a gateway bound to hub.
func NewGateway(hub *Hub, cfg GatewayConfig, logger *zap.Logger) *Gateway {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.SendBuffer <= 0 {
		cfg.SendBuffer = 256
	}
	checkOrigin := cfg.CheckOrigin
	if checkOrigin == nil {
		checkOrigin = func(*http.Request) bool { return true }
	}
	return &Gateway{
		hub: hub,
		cfg: cfg,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     checkOrigin,
		},
		logger: logger,
	}
}

// ServeWs handles the WebSocket upgrade and runs the connection until it closes.
func (g *Gateway) ServeWs(c *gin.Context) {
	ws, err := g.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		g.logger.Warn("websocket upgrade failed", zap.Error(err))
		return
	}
	conn := &wsConn{
		id:     uuid.New().String(),
		ws:     ws,
		send:   make(chan []byte, g.cfg.SendBuffer),
		done:   make(chan struct{}),
		logger: g.logger,
	}
	g.logger.Debug("signaling connection opened", zap.String("conn_id", conn.id), zap.String("remote", c.ClientIP()))

	go conn.writePump(g.cfg.PingInterval)
	g.readPump(conn, NewPeer(conn))
}

func (g *Gateway) readPump(conn *wsConn, peer *Peer) {
	defer func() {
		g.hub.Disconnect(peer)
		conn.close()
		g.logger.Debug("signaling connection closed", zap.String("conn_id", conn.id))
	}()

	if g.cfg.ReadLimit > 0 {
		conn.ws.SetReadLimit(g.cfg.ReadLimit)
	}
	pongWait := 2 * g.cfg.PingInterval
	if pongWait > 0 {
		_ = conn.ws.SetReadDeadline(time.Now().Add(pongWait))
		conn.ws.SetPongHandler(func(string) error {
			return conn.ws.SetReadDeadline(time.Now().Add(pongWait))
		})
	}

	for {
		kind, frame, err := conn.ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseNoStatusReceived) {
				g.logger.Info("signaling connection error", zap.String("conn_id", conn.id), zap.Error(err))
			}
			return
		}
		if pongWait > 0 {
			_ = conn.ws.SetReadDeadline(time.Now().Add(pongWait))
		}
		if kind != websocket.TextMessage {
			g.logger.Debug("dropping non-text frame", zap.String("conn_id", conn.id), zap.Int("kind", kind))
			continue
		}

		msg, err := Decode(frame)
		if err != nil {
			level := zap.WarnLevel
			if errors.Is(err, ErrUnknownType) {
				level = zap.InfoLevel
			}
			g.logger.Log(level, "dropping inbound frame", zap.String("conn_id", conn.id), zap.Error(err))
			continue
		}
		if !g.hub.Submit(peer, msg) {
			return
		}
	}
}

// wsConn implements Conn over a gorilla connection with a buffered outbound queue.
type wsConn struct {
	id        string
	ws        *websocket.Conn
	send      chan []byte
	done      chan struct{}
	closeOnce sync.Once
	logger    *zap.Logger
}

func (c *wsConn) ID() string { return c.id }

// Send queues frame without blocking. Frames are dropped when the queue is full or the
// connection is closing.
func (c *wsConn) Send(frame []byte) bool {
	select {
	case <-c.done:
		return false
	default:
	}
	select {
	case c.send <- frame:
		return true
	default:
		c.logger.Warn("outbound buffer full, dropping frame", zap.String("conn_id", c.id))
		return false
	}
}

func (c *wsConn) close() {
	c.closeOnce.Do(func() { close(c.done) })
}

func (c *wsConn) writePump(pingInterval time.Duration) {
	var tick <-chan time.Time
	if pingInterval > 0 {
		ticker := time.NewTicker(pingInterval)
		defer ticker.Stop()
		tick = ticker.C
	}
	defer func() {
		c.close()
		_ = c.ws.Close()
	}()

	for {
		select {
		case frame := <-c.send:
			_ = c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.ws.WriteMessage(websocket.TextMessage, frame); err != nil {
				c.logger.Debug("write failed", zap.String("conn_id", c.id), zap.Error(err))
				return
			}
		case <-tick:
			_ = c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.ws.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-c.done:
			_ = c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			_ = c.ws.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			return
		}
	}
}
