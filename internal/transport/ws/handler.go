package ws

import (
	"bytes"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"crimepatrol/internal/logger"
	"crimepatrol/internal/model"
	"crimepatrol/internal/service"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 4096
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true // Allow all origins, reporters use native and web clients
	},
}

var errNoSessionID = errors.New("sessionId is required")

// Handler handles WebSocket connections
type Handler struct {
	hub    *Hub
	svc    *service.EmergencyService
	limit  rate.Limit
	burst  int
	logger *zap.Logger
}

// NewHandler creates a new WebSocket handler. A zero limit disables throttling.
func NewHandler(hub *Hub, svc *service.EmergencyService, limit rate.Limit, burst int, l *zap.Logger) *Handler {
	return &Handler{
		hub:    hub,
		svc:    svc,
		limit:  limit,
		burst:  burst,
		logger: logger.OrNop(l),
	}
}

// ServeWS handles GET /v1/ws
func (h *Handler) ServeWS(w http.ResponseWriter, r *http.Request) {
	wsConn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("websocket upgrade failed", zap.Error(err))
		return
	}

	var limiter *rate.Limiter
	if h.limit > 0 {
		limiter = rate.NewLimiter(h.limit, h.burst)
	}
	conn := NewConnection(h.hub, limiter)
	h.hub.Register(conn)

	h.logger.Info("websocket connected", logger.ConnID(conn.ID), zap.String("remote", r.RemoteAddr))

	go h.writePump(wsConn, conn)
	go h.readPump(wsConn, conn)
}

func (h *Handler) readPump(wsConn *websocket.Conn, conn *Connection) {
	defer func() {
		conn.cancel()
		h.hub.Unregister(conn)
		wsConn.Close()
	}()

	wsConn.SetReadLimit(maxMessageSize)
	wsConn.SetReadDeadline(time.Now().Add(pongWait))
	wsConn.SetPongHandler(func(string) error {
		wsConn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, data, err := wsConn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				h.logger.Info("websocket closed unexpectedly", logger.ConnID(conn.ID), zap.Error(err))
			}
			break
		}
		h.dispatch(conn, data)
	}
}

func (h *Handler) writePump(wsConn *websocket.Conn, conn *Connection) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		wsConn.Close()
	}()

	for {
		select {
		case message, ok := <-conn.Send:
			wsConn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				wsConn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			w, err := wsConn.NextWriter(websocket.TextMessage)
			if err != nil {
				return
			}
			w.Write(message)

			if err := w.Close(); err != nil {
				return
			}

		case <-ticker.C:
			wsConn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := wsConn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// dispatch routes one inbound frame. Unparseable frames are logged and dropped.
func (h *Handler) dispatch(conn *Connection, data []byte) {
	var msg Message
	if err := json.Unmarshal(data, &msg); err != nil || msg.Type == "" {
		h.logger.Warn("dropping malformed frame", logger.ConnID(conn.ID), zap.Int("bytes", len(data)), zap.Error(err))
		return
	}
	ctx := conn.Context()

	switch msg.Type {
	case EventJoinSession:
		id, err := sessionIDFrom(msg.Payload)
		if err != nil {
			h.rejectPayload(conn, msg.Type, err)
			return
		}
		h.hub.JoinSession(conn, id)

	case EventLeaveSession:
		id, err := sessionIDFrom(msg.Payload)
		if err != nil {
			h.rejectPayload(conn, msg.Type, err)
			return
		}
		h.hub.LeaveSession(conn, id)

	case EventMapJoin:
		h.hub.JoinObservers(conn)

	case EventMapLeave:
		h.hub.LeaveObservers(conn)

	case EventJoinServices:
		h.hub.JoinOperators(conn)

	case EventLeaveServices:
		h.hub.LeaveOperators(conn)

	case EventLocationUpdate:
		var upd model.LocationUpdate
		if !h.admit(conn, msg, &upd) {
			return
		}
		h.svc.HandleLocationUpdate(ctx, conn, upd)

	case EventCreateSession:
		var req model.CreateSessionRequest
		if !h.admit(conn, msg, &req) {
			return
		}
		session, err := h.svc.Create(ctx, req, conn.ID)
		if err != nil {
			conn.Reply(service.EventError, service.ErrorAckFor(err, ""))
			return
		}
		h.hub.JoinSession(conn, session.ID)
		conn.Reply(service.EventSessionCreated, session)

	case EventPingsByLocation:
		var req model.NearbyRequest
		if !h.admit(conn, msg, &req) {
			return
		}
		sessions, err := h.svc.Nearby(ctx, req)
		if err != nil {
			conn.Reply(service.EventError, service.ErrorAckFor(err, ""))
			return
		}
		conn.Reply(service.EventPingsByLocation, sessions)

	default:
		h.logger.Warn("unknown event", logger.ConnID(conn.ID), logger.Event(msg.Type))
		conn.Reply(service.EventError, model.ErrorAck{Code: service.CodeUnknownEvent, Message: "unknown event " + msg.Type})
	}
}

// admit applies the per-connection throttle and decodes the payload into v
func (h *Handler) admit(conn *Connection, msg Message, v interface{}) bool {
	if !conn.allow() {
		h.logger.Warn("rate limited", logger.ConnID(conn.ID), logger.Event(msg.Type))
		conn.Reply(service.EventError, model.ErrorAck{Code: service.CodeRateLimited, Message: "too many events, slow down"})
		return false
	}
	if err := json.Unmarshal(msg.Payload, v); err != nil {
		h.rejectPayload(conn, msg.Type, err)
		return false
	}
	return true
}

func (h *Handler) rejectPayload(conn *Connection, event string, err error) {
	h.logger.Warn("invalid payload", logger.ConnID(conn.ID), logger.Event(event), zap.Error(err))
	conn.Reply(service.EventError, model.ErrorAck{Code: service.CodeInvalidFormat, Message: err.Error()})
}

// sessionIDFrom accepts either a bare JSON string or {"sessionId": "..."}
func sessionIDFrom(payload json.RawMessage) (string, error) {
	payload = bytes.TrimSpace(payload)
	if len(payload) == 0 {
		return "", errNoSessionID
	}

	var id string
	if payload[0] == '"' {
		if err := json.Unmarshal(payload, &id); err != nil {
			return "", err
		}
	} else {
		var body struct {
			SessionID string `json:"sessionId"`
		}
		if err := json.Unmarshal(payload, &body); err != nil {
			return "", err
		}
		id = body.SessionID
	}
	if id == "" {
		return "", errNoSessionID
	}
	return id, nil
}
