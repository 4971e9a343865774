package ws

import (
	"encoding/json"
	"sync"

	"crimepatrol/internal/logger"
	"crimepatrol/internal/service"

	"go.uber.org/zap"
)

// Message is the WebSocket envelope format
type Message struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// MembershipListener is told when a session room loses its last member to a disconnect
// and when someone joins a session room again
type MembershipListener interface {
	SessionRoomAbandoned(sessionID string)
	SessionRoomJoined(sessionID string)
}

// Hub owns every live connection and room. Registration, membership changes and
// deliveries share one FIFO queue drained by the run loop, so the order in which a
// caller submits them is the order they take effect. The maps are process-local and
// rebuilt by clients rejoining after a restart.
type Hub struct {
	conns map[string]*Connection
	rooms map[string]map[string]*Connection // room -> connID -> conn

	mu sync.RWMutex

	ops      chan hubOp
	done     chan struct{}
	stopOnce sync.Once

	listener MembershipListener
	logger   *zap.Logger
}

// BroadcastMessage is one delivery. Either To is set, or Rooms names the audience.
type BroadcastMessage struct {
	Rooms  []string
	Except string
	To     *Connection
	Data   []byte
}

type opKind int

const (
	opRegister opKind = iota
	opUnregister
	opJoin
	opLeave
	opDeliver
)

type hubOp struct {
	kind opKind
	conn *Connection
	room string
	// announceEnd sends emergency-ping-ended to observers when a member leaves
	announceEnd bool
	msg         *BroadcastMessage
}

// NewHub creates a new WebSocket hub
func NewHub(l *zap.Logger) *Hub {
	h := &Hub{
		conns:  make(map[string]*Connection),
		rooms:  make(map[string]map[string]*Connection),
		ops:    make(chan hubOp, 256),
		done:   make(chan struct{}),
		logger: logger.OrNop(l),
	}
	go h.run()
	return h
}

// SetListener must be called before the hub serves connections
func (h *Hub) SetListener(l MembershipListener) {
	h.listener = l
}

func (h *Hub) run() {
	for {
		select {
		case <-h.done:
			h.drainRegistrations()
			h.closeAll()
			return

		case op := <-h.ops:
			h.apply(op)
		}
	}
}

// drainRegistrations adopts connections still queued at stop so closeAll releases them
func (h *Hub) drainRegistrations() {
	for {
		select {
		case op := <-h.ops:
			if op.kind == opRegister {
				h.mu.Lock()
				h.conns[op.conn.ID] = op.conn
				h.mu.Unlock()
			}
		default:
			return
		}
	}
}

func (h *Hub) apply(op hubOp) {
	switch op.kind {
	case opRegister:
		h.mu.Lock()
		h.conns[op.conn.ID] = op.conn
		h.mu.Unlock()
		h.logger.Info("connection opened", logger.ConnID(op.conn.ID))
	case opUnregister:
		h.drop(op.conn)
	case opJoin:
		h.join(op.conn, op.room)
	case opLeave:
		h.leave(op.conn, op.room, op.announceEnd)
	case opDeliver:
		h.deliver(op.msg)
	}
}

func (h *Hub) drop(conn *Connection) {
	h.mu.Lock()
	if existing, ok := h.conns[conn.ID]; !ok || existing != conn {
		h.mu.Unlock()
		return
	}
	delete(h.conns, conn.ID)

	var abandoned []string
	for room := range conn.rooms {
		members := h.rooms[room]
		delete(members, conn.ID)
		if len(members) > 0 {
			continue
		}
		delete(h.rooms, room)
		if id, ok := service.SessionIDFromRoom(room); ok {
			abandoned = append(abandoned, id)
		}
	}
	conn.rooms = nil
	close(conn.Send)
	h.mu.Unlock()

	h.logger.Info("connection closed", logger.ConnID(conn.ID))
	for _, id := range abandoned {
		h.logger.Info("session room emptied by disconnect", logger.ConnID(conn.ID), logger.SessionID(id))
		if h.listener != nil {
			h.listener.SessionRoomAbandoned(id)
		}
	}
}

func (h *Hub) join(conn *Connection, room string) {
	h.mu.Lock()
	if _, ok := h.conns[conn.ID]; !ok {
		h.mu.Unlock()
		return
	}
	if _, member := conn.rooms[room]; member {
		h.mu.Unlock()
		h.logger.Debug("already in room", logger.ConnID(conn.ID), logger.Room(room))
		return
	}
	if h.rooms[room] == nil {
		h.rooms[room] = make(map[string]*Connection)
	}
	h.rooms[room][conn.ID] = conn
	conn.rooms[room] = struct{}{}
	h.mu.Unlock()

	h.logger.Info("joined room", logger.ConnID(conn.ID), logger.Room(room))
	if id, ok := service.SessionIDFromRoom(room); ok && h.listener != nil {
		h.listener.SessionRoomJoined(id)
	}
}

func (h *Hub) leave(conn *Connection, room string, announceEnd bool) {
	h.mu.Lock()
	if _, member := conn.rooms[room]; !member {
		h.mu.Unlock()
		h.logger.Debug("not in room", logger.ConnID(conn.ID), logger.Room(room))
		return
	}
	delete(conn.rooms, room)
	members := h.rooms[room]
	delete(members, conn.ID)
	if len(members) == 0 {
		delete(h.rooms, room)
	}
	h.mu.Unlock()

	h.logger.Info("left room", logger.ConnID(conn.ID), logger.Room(room))
	if !announceEnd {
		return
	}
	if id, ok := service.SessionIDFromRoom(room); ok {
		data, err := encode(service.EventPingEnded, id)
		if err != nil {
			return
		}
		h.deliver(&BroadcastMessage{Rooms: []string{service.ObserverRoom}, Except: conn.ID, Data: data})
	}
}

// deliver runs on the hub goroutine, the only writer to Send channels
func (h *Hub) deliver(msg *BroadcastMessage) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	if msg.To != nil {
		if existing, ok := h.conns[msg.To.ID]; ok && existing == msg.To {
			h.send(msg.To, msg.Data)
		}
		return
	}

	seen := make(map[string]struct{})
	for _, room := range msg.Rooms {
		for id, conn := range h.rooms[room] {
			if id == msg.Except {
				continue
			}
			if _, dup := seen[id]; dup {
				continue
			}
			seen[id] = struct{}{}
			h.send(conn, msg.Data)
		}
	}
}

func (h *Hub) send(conn *Connection, data []byte) {
	select {
	case conn.Send <- data:
	default:
		// Drop message if buffer full
		h.logger.Warn("send buffer full, dropping message", logger.ConnID(conn.ID))
	}
}

func (h *Hub) closeAll() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for id, conn := range h.conns {
		close(conn.Send)
		delete(h.conns, id)
	}
	h.rooms = make(map[string]map[string]*Connection)
}

// Register adds a connection
func (h *Hub) Register(conn *Connection) {
	if !h.submit(hubOp{kind: opRegister, conn: conn}) {
		close(conn.Send)
	}
}

// Unregister removes a connection and its memberships
func (h *Hub) Unregister(conn *Connection) {
	h.submit(hubOp{kind: opUnregister, conn: conn})
}

// Stop closes every connection and ends the run loop
func (h *Hub) Stop() {
	h.stopOnce.Do(func() { close(h.done) })
}

// submit queues op for the run loop. It reports false once the hub has stopped.
func (h *Hub) submit(op hubOp) bool {
	select {
	case <-h.done:
		return false
	default:
	}
	select {
	case h.ops <- op:
		return true
	case <-h.done:
		return false
	}
}

// JoinSession adds conn to the private room of sessionID. No-op if already a member.
func (h *Hub) JoinSession(conn *Connection, sessionID string) {
	h.submit(hubOp{kind: opJoin, conn: conn, room: service.SessionRoom(sessionID)})
}

// LeaveSession removes conn from the session room and tells observers the session ended
func (h *Hub) LeaveSession(conn *Connection, sessionID string) {
	h.submit(hubOp{kind: opLeave, conn: conn, room: service.SessionRoom(sessionID), announceEnd: true})
}

// JoinObservers subscribes conn to every session's updates
func (h *Hub) JoinObservers(conn *Connection) {
	h.submit(hubOp{kind: opJoin, conn: conn, room: service.ObserverRoom})
}

func (h *Hub) LeaveObservers(conn *Connection) {
	h.submit(hubOp{kind: opLeave, conn: conn, room: service.ObserverRoom})
}

// JoinOperators subscribes conn to the emergency-services room
func (h *Hub) JoinOperators(conn *Connection) {
	h.submit(hubOp{kind: opJoin, conn: conn, room: service.OperatorRoom})
}

func (h *Hub) LeaveOperators(conn *Connection) {
	h.submit(hubOp{kind: opLeave, conn: conn, room: service.OperatorRoom})
}

// EmitToRooms fans a message out to the union of rooms (implements service.Broadcaster)
func (h *Hub) EmitToRooms(rooms []string, exceptConnID string, msgType string, payload interface{}) {
	data, err := encode(msgType, payload)
	if err != nil {
		h.logger.Error("encode broadcast failed", logger.Event(msgType), zap.Error(err))
		return
	}
	h.enqueue(&BroadcastMessage{Rooms: rooms, Except: exceptConnID, Data: data})
	h.logger.Debug("broadcast", logger.Event(msgType), zap.Strings("rooms", rooms))
}

// SendTo delivers a message to one connection
func (h *Hub) SendTo(conn *Connection, msgType string, payload interface{}) {
	data, err := encode(msgType, payload)
	if err != nil {
		h.logger.Error("encode reply failed", logger.ConnID(conn.ID), logger.Event(msgType), zap.Error(err))
		return
	}
	h.enqueue(&BroadcastMessage{To: conn, Data: data})
}

func (h *Hub) enqueue(msg *BroadcastMessage) {
	h.submit(hubOp{kind: opDeliver, msg: msg})
}

// RoomSize returns the current member count of room (implements service.Broadcaster)
func (h *Hub) RoomSize(room string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.rooms[room])
}

// ConnectionCount returns the number of registered connections
func (h *Hub) ConnectionCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.conns)
}

func encode(msgType string, payload interface{}) ([]byte, error) {
	var raw json.RawMessage
	if payload != nil {
		b, err := json.Marshal(payload)
		if err != nil {
			return nil, err
		}
		raw = b
	}
	return json.Marshal(&Message{Type: msgType, Payload: raw})
}
