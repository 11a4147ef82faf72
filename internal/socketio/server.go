package socketio

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/jonboulle/clockwork"
	"github.com/pkg/errors"
	"go.uber.org/zap"
	"social-realtime/internal/metrics"
	"social-realtime/internal/model"
	"social-realtime/internal/presence"
)

const (
	maxPayload   int64         = 1000000
	writeTimeout time.Duration = 10 * time.Second
	pingInterval time.Duration = 25 * time.Second
	pingTimeout  time.Duration = 20 * time.Second

	defaultSendBuffer = 256
)

const (
	EventJoin        = "join"
	EventSendMessage = "sendMessage"
	EventCheckStatus = "checkStatus"
	EventPing        = "ping"
)

var (
	errUnknownConn  = errors.New("unknown connection")
	errConnClosed   = errors.New("connection closed")
	errSlowConsumer = errors.New("send buffer full")
)

// Presence is what the transport hands client events to.
type Presence interface {
	Join(ctx context.Context, userID, connID string) bool
	Disconnect(ctx context.Context, connID string)
	Route(ctx context.Context, recipientID string, d model.Delivery) presence.Outcome
	Status(userID string) presence.Status
}

type Options struct {
	Logger *zap.Logger
	Clock  clockwork.Clock
	// SendBuffer is the per-connection outbound queue length. A connection
	// whose queue is full is closed.
	SendBuffer int
}

// Server speaks Engine.IO v4 / Socket.IO v5 over WebSocket and implements
// presence.Transport. Connection ids are Engine.IO session ids.
type Server struct {
	log        *zap.Logger
	clock      clockwork.Clock
	sendBuffer int

	upgrader websocket.Upgrader
	presence Presence

	mu    sync.RWMutex
	conns map[string]*conn
}

func NewServer(opts Options) *Server {
	log := opts.Logger
	if log == nil {
		log = zap.NewNop()
	}
	clock := opts.Clock
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	sendBuffer := opts.SendBuffer
	if sendBuffer <= 0 {
		sendBuffer = defaultSendBuffer
	}
	return &Server{
		log:        log.Named("socketio"),
		clock:      clock,
		sendBuffer: sendBuffer,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		conns: make(map[string]*conn),
	}
}

// Attach sets the receiver of client events. It must be called before the
// server accepts connections.
func (s *Server) Attach(p Presence) {
	s.presence = p
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ws, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	ws.SetReadLimit(maxPayload)

	c := newConn(ws, s.sendBuffer)
	s.registerConn(c)
	go c.writeLoop()

	open := map[string]any{
		"sid":          c.sid,
		"upgrades":     []string{},
		"pingInterval": pingInterval.Milliseconds(),
		"pingTimeout":  pingTimeout.Milliseconds(),
		"maxPayload":   maxPayload,
	}
	openBytes, _ := json.Marshal(open)
	_ = c.enqueue(string(engineOpen) + string(openBytes))

	go c.pingLoop(s.clock, pingInterval, pingTimeout)
	c.readLoop(func(msg string) {
		s.handleMessage(c, msg)
	})

	s.unregisterConn(c)
}

func (s *Server) registerConn(c *conn) {
	s.mu.Lock()
	s.conns[c.sid] = c
	n := len(s.conns)
	s.mu.Unlock()

	metrics.TransportConnections.Set(float64(n))
	s.log.Debug("transport open", zap.String("conn_id", c.sid))
}

// unregisterConn runs once the read loop has ended. It must not hold s.mu
// while calling into presence.
func (s *Server) unregisterConn(c *conn) {
	s.mu.Lock()
	delete(s.conns, c.sid)
	n := len(s.conns)
	s.mu.Unlock()

	c.close()
	metrics.TransportConnections.Set(float64(n))
	s.log.Debug("transport closed", zap.String("conn_id", c.sid))

	if s.presence != nil {
		s.presence.Disconnect(context.Background(), c.sid)
	}
}

func (s *Server) lookup(connID string) *conn {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.conns[connID]
}

// Emit queues event for one connection.
func (s *Server) Emit(connID, event string, payload any) error {
	c := s.lookup(connID)
	if c == nil {
		return errUnknownConn
	}
	return s.emit(c, event, payload)
}

// Broadcast queues event for every connection that completed the Socket.IO
// handshake.
func (s *Server) Broadcast(event string, payload any) {
	packet, err := buildSocketEventPacket(defaultNamespace, nil, event, payload)
	if err != nil {
		s.log.Error("encode broadcast", zap.String("event", event), zap.Error(err))
		return
	}

	s.mu.RLock()
	targets := make([]*conn, 0, len(s.conns))
	for _, c := range s.conns {
		if c.isConnected() {
			targets = append(targets, c)
		}
	}
	s.mu.RUnlock()

	for _, c := range targets {
		if err := s.send(c, packet); err != nil {
			s.log.Debug("broadcast skipped connection", zap.String("conn_id", c.sid), zap.Error(err))
		}
	}
}

func (s *Server) Alive(connID string) bool {
	c := s.lookup(connID)
	return c != nil && !c.isClosed()
}

// Close drops every open connection.
func (s *Server) Close() {
	s.mu.RLock()
	all := make([]*conn, 0, len(s.conns))
	for _, c := range s.conns {
		all = append(all, c)
	}
	s.mu.RUnlock()

	for _, c := range all {
		c.close()
	}
}

func (s *Server) emit(c *conn, event string, payload any) error {
	packet, err := buildSocketEventPacket(defaultNamespace, nil, event, payload)
	if err != nil {
		return errors.Wrapf(err, "encode %s", event)
	}
	return s.send(c, packet)
}

func (s *Server) send(c *conn, packet string) error {
	err := c.enqueue(string(engineMessage) + packet)
	if errors.Is(err, errSlowConsumer) {
		metrics.TransportSlowConsumers.Inc()
		s.log.Warn("closing slow connection", zap.String("conn_id", c.sid))
	}
	return err
}

func (s *Server) ack(c *conn, pkt socketEventPacket, args ...any) {
	if pkt.ID == nil {
		return
	}
	ackPayload, err := buildSocketAckPacket(pkt.Namespace, *pkt.ID, args...)
	if err == nil {
		_ = s.send(c, ackPayload)
	}
}

func (s *Server) handleMessage(c *conn, msg string) {
	if msg == "" {
		return
	}

	switch enginePacketType(msg[0]) {
	case enginePong:
		c.markPong()
		return
	case engineMessage:
		s.handleSocketPayload(c, msg[1:])
		return
	case engineClose:
		c.close()
		return
	default:
		return
	}
}

func (s *Server) handleSocketPayload(c *conn, payload string) {
	if payload == "" {
		return
	}

	switch socketPacketType(payload[0]) {
	case socketConnect:
		s.handleConnect(c, payload)
		return
	case socketEvent:
		s.handleEvent(c, payload)
		return
	case socketDisconnect:
		c.close()
		return
	default:
		return
	}
}

// handleConnect accepts the default namespace with or without an auth
// object. Identity is established later by the join event.
func (s *Server) handleConnect(c *conn, payload string) {
	if c.isConnected() {
		return
	}

	ns, _ := parseOptionalNamespace(payload[1:])
	if ns != defaultNamespace {
		if packet, err := buildSocketConnectErrorPacket(ns, "Invalid namespace"); err == nil {
			_ = s.send(c, packet)
		}
		return
	}

	packet, err := buildSocketConnectPacket(ns, c.sid)
	if err != nil {
		return
	}
	c.markConnected()
	_ = s.send(c, packet)
}

func (s *Server) handleEvent(c *conn, payload string) {
	if !c.isConnected() {
		return
	}

	pkt, err := parseSocketEventPacket(payload)
	if err != nil {
		return
	}
	ctx := context.Background()

	switch pkt.Event {
	case EventPing:
		s.ack(c, pkt)
		return

	case EventJoin:
		userID, ok := stringArg(pkt.Args, 0)
		if !ok || s.presence == nil {
			return
		}
		if s.presence.Join(ctx, userID, c.sid) {
			s.ack(c, pkt, userID)
		}
		return

	case EventSendMessage:
		var body struct {
			Sender   string `json:"sender"`
			Receiver string `json:"receiver"`
			Message  string `json:"message"`
		}
		if len(pkt.Args) < 1 || json.Unmarshal(pkt.Args[0], &body) != nil || body.Receiver == "" || s.presence == nil {
			return
		}
		msg := model.ChatMessage{
			ID:        uuid.NewString(),
			Sender:    body.Sender,
			Recipient: body.Receiver,
			Body:      body.Message,
			CreatedAt: s.clock.Now().UnixMilli(),
		}
		outcome := s.presence.Route(ctx, body.Receiver, model.MessageDelivery(msg))
		s.ack(c, pkt, gin.H{"id": msg.ID, "delivery": outcome})
		return

	case EventCheckStatus:
		userID, ok := stringArg(pkt.Args, 0)
		if !ok || s.presence == nil {
			return
		}
		status := s.presence.Status(userID)
		_ = s.emit(c, presence.EventStatusConfirmed, status)
		s.ack(c, pkt, status)
		return

	default:
		return
	}
}

type conn struct {
	ws  *websocket.Conn
	sid string

	send      chan string
	done      chan struct{}
	closeOnce sync.Once

	stateMu   sync.Mutex
	connected bool
	closed    bool

	pong chan struct{}
}

func newConn(ws *websocket.Conn, sendBuffer int) *conn {
	return &conn{
		ws:   ws,
		sid:  uuid.NewString(),
		send: make(chan string, sendBuffer),
		done: make(chan struct{}),
		pong: make(chan struct{}, 1),
	}
}

func (c *conn) close() {
	c.closeOnce.Do(func() {
		c.stateMu.Lock()
		c.closed = true
		c.stateMu.Unlock()
		close(c.done)
		_ = c.ws.Close()
	})
}

func (c *conn) isClosed() bool {
	c.stateMu.Lock()
	defer c.stateMu.Unlock()
	return c.closed
}

func (c *conn) markConnected() {
	c.stateMu.Lock()
	c.connected = true
	c.stateMu.Unlock()
}

func (c *conn) isConnected() bool {
	c.stateMu.Lock()
	defer c.stateMu.Unlock()
	return c.connected && !c.closed
}

// enqueue never blocks. A full buffer closes the connection.
func (c *conn) enqueue(msg string) error {
	if c.isClosed() {
		return errConnClosed
	}
	select {
	case <-c.done:
		return errConnClosed
	default:
	}
	select {
	case c.send <- msg:
		return nil
	default:
		c.close()
		return errSlowConsumer
	}
}

func (c *conn) writeLoop() {
	for {
		select {
		case <-c.done:
			return
		case msg := <-c.send:
			if err := c.ws.SetWriteDeadline(time.Now().Add(writeTimeout)); err != nil {
				c.close()
				return
			}
			if err := c.ws.WriteMessage(websocket.TextMessage, []byte(msg)); err != nil {
				c.close()
				return
			}
		}
	}
}

func (c *conn) readLoop(onMessage func(string)) {
	defer c.close()
	for {
		_, data, err := c.ws.ReadMessage()
		if err != nil {
			return
		}
		onMessage(string(data))
	}
}

// pingLoop sends an Engine.IO ping every interval and closes the connection
// when the pong does not arrive within timeout.
func (c *conn) pingLoop(clock clockwork.Clock, interval, timeout time.Duration) {
	ticker := clock.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-c.done:
			return
		case <-ticker.Chan():
		}

		select {
		case <-c.pong:
		default:
		}
		if err := c.enqueue(string(enginePing)); err != nil {
			return
		}

		timer := clock.NewTimer(timeout)
		select {
		case <-c.done:
			timer.Stop()
			return
		case <-c.pong:
			timer.Stop()
		case <-timer.Chan():
			c.close()
			return
		}
	}
}

func (c *conn) markPong() {
	select {
	case c.pong <- struct{}{}:
	default:
	}
}
