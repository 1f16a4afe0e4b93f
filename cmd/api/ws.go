package main

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	jsoniter "github.com/json-iterator/go"
	"github.com/rs/zerolog"

	"github.com/jonatanmachado35/back-imobix-sub001/internal/realtime"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 64 << 10
	sendBuffer     = 256
)

var errSlowConsumer = errors.New("send buffer full")

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// browsers of the CRM front-end connect from another origin
	CheckOrigin: func(r *http.Request) bool { return true },
}

// newRouter exposes the WebSocket live transport plus health and presence endpoints.
func newRouter(gw *realtime.Gateway, logger zerolog.Logger) http.Handler {
	h := &wsHandler{gateway: gw, log: logger.With().Str("component", "ws").Logger()}

	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	r.Use(chimw.Recoverer)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{"status": "ok"})
	})
	r.Get("/presence", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{"online": gw.OnlineUsers()})
	})
	r.Get("/presence/{userId}", func(w http.ResponseWriter, r *http.Request) {
		userID := chi.URLParam(r, "userId")
		writeJSON(w, http.StatusOK, map[string]any{
			"userId":      userID,
			"online":      gw.IsOnline(userID),
			"connections": gw.Connections(userID),
		})
	})
	r.Get("/ws", h.serve)
	return r
}

func writeJSON(w http.ResponseWriter, code int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(body)
}

type wsHandler struct {
	gateway *realtime.Gateway
	log     zerolog.Logger
}

// serve upgrades the request and hands the connection to the gateway. The token comes
// from ?token= (browsers cannot set headers on WebSocket requests) or Authorization.
func (h *wsHandler) serve(w http.ResponseWriter, r *http.Request) {
	token := r.URL.Query().Get("token")
	if token == "" {
		token = r.Header.Get("Authorization")
	}

	ws, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Error().Err(err).Msg("ws: upgrade failed")
		return
	}

	conn := &wsConn{id: uuid.NewString(), ws: ws, send: make(chan []byte, sendBuffer)}
	go conn.writePump()

	sess, err := h.gateway.Connect(r.Context(), token, conn)
	if err != nil {
		// Connect already closed conn; writePump sends the close frame
		return
	}
	conn.readPump(context.WithoutCancel(r.Context()), sess, h.log)
}

// wsConn adapts a gorilla connection to realtime.Conn. Frames are queued and written
// by writePump, so Send never blocks on the network.
type wsConn struct {
	id   string
	ws   *websocket.Conn
	send chan []byte

	mu     sync.Mutex
	closed bool
}

func (c *wsConn) ID() string { return c.id }

func (c *wsConn) Send(f realtime.Frame) error {
	b, err := realtime.EncodeFrame(f)
	if err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return errors.New("connection closed")
	}
	select {
	case c.send <- b:
		return nil
	default:
		return errSlowConsumer
	}
}

// Close stops the write pump, which closes the socket and ends the read pump.
func (c *wsConn) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.closed {
		c.closed = true
		close(c.send)
	}
	return nil
}

// writePump takes frames from c.send and writes them to the socket, with pings.
func (c *wsConn) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.ws.Close()
	}()

	for {
		select {
		case msg, ok := <-c.send:
			_ = c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.ws.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.ClosePolicyViolation, ""))
				return
			}
			if err := c.ws.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}
		case <-ticker.C:
			_ = c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.ws.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// readPump decodes inbound frames and answers them until the socket fails.
func (c *wsConn) readPump(ctx context.Context, sess *realtime.Session, log zerolog.Logger) {
	defer func() {
		sess.Close()
		_ = c.Close()
	}()

	c.ws.SetReadLimit(maxMessageSize)
	_ = c.ws.SetReadDeadline(time.Now().Add(pongWait))
	c.ws.SetPongHandler(func(string) error {
		return c.ws.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, raw, err := c.ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Debug().Err(err).Str("conn_id", sess.ConnID()).Str("user_id", sess.UserID()).Msg("ws: read failed")
			}
			return
		}

		frame, err := realtime.DecodeFrame(raw)
		if err != nil {
			_ = c.Send(realtime.Frame{Event: realtime.EventReply, Data: map[string]any{
				"success": false,
				"error":   "malformed frame",
				"code":    "validation",
			}})
			continue
		}
		if out, ok := sess.Handle(ctx, frame); ok {
			if err := c.Send(out); err != nil {
				return
			}
		}
	}
}
