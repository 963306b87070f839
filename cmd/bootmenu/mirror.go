package main

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// ============================================================================
// State mirror: hub + per-client pumps + broadcaster
// ============================================================================
//
// The mirror lets a host watch the menu over a websocket. It is read-only:
// inbound frames are read only to notice disconnects and are discarded.
//
//   - Messages are JSON text frames with an envelope: {type, ts, data}.
//   - The first message on connect is "state_init" with a display snapshot.
//   - Slow clients are disconnected when their send buffer fills.
//   - Bursts of selection changes (trackball spins) are coalesced.
//
// ============================================================================

const (
	eventStateInit        = "state_init"
	eventMenuStarted      = "menu_started"
	eventSelectionChanged = "selection_changed"
	eventCountdown        = "countdown"
	eventBootChosen       = "boot_chosen"
)

// Publisher receives state transitions for the mirror.
type Publisher interface {
	Publish(eventType string, data any)
}

type nopPublisher struct{}

func (nopPublisher) Publish(string, any) {}

// wsStateSnapshot is the `data` payload for "state_init".
type wsStateSnapshot struct {
	MenuVisible      bool     `json:"menu_visible"`
	Headers          []string `json:"headers"`
	Items            []string `json:"items"`
	Selected         int      `json:"selected"`
	TextVisible      bool     `json:"text_visible"`
	ProgressKind     string   `json:"progress_kind"`
	Progress         float64  `json:"progress"`
	CountdownSeconds int      `json:"countdown_seconds"`
	CountdownActive  bool     `json:"countdown_active"`
}

func snapshotPayload(s DisplaySnapshot) wsStateSnapshot {
	return wsStateSnapshot{
		MenuVisible:      s.MenuVisible,
		Headers:          s.Headers,
		Items:            s.Items,
		Selected:         s.Selected,
		TextVisible:      s.TextVisible,
		ProgressKind:     s.ProgressKind,
		Progress:         s.ScopeStart + s.Progress*s.ScopeSize,
		CountdownSeconds: s.CountdownSeconds,
		CountdownActive:  s.CountdownActive,
	}
}

// wsMenuStartedData is the `data` payload for "menu_started".
type wsMenuStartedData struct {
	Headers  []string  `json:"headers"`
	Items    []string  `json:"items"`
	Selected int       `json:"selected"`
	Deadline time.Time `json:"deadline"`
}

// wsSelectionChangedData is the `data` payload for "selection_changed".
type wsSelectionChangedData struct {
	Selected int    `json:"selected"`
	Item     string `json:"item"`
}

// wsCountdownData is the `data` payload for "countdown".
type wsCountdownData struct {
	Seconds int `json:"seconds"`
}

// wsBootChosenData is the `data` payload for "boot_chosen".
type wsBootChosenData struct {
	Index  int    `json:"index"`
	Item   string `json:"item"`
	Reason string `json:"reason"`
}

// wsOutboundEvent is a typed event waiting to be serialized.
type wsOutboundEvent struct {
	Type string
	Data any
	At   time.Time
}

// envelope is the wire format envelope for mirror messages.
type envelope struct {
	Type string     `json:"type"`
	Ts   *time.Time `json:"ts,omitempty"`
	Data any        `json:"data,omitempty"`
}

func marshalEnvelope(ev wsOutboundEvent) ([]byte, error) {
	ts := ev.At
	if ts.IsZero() {
		ts = time.Now().UTC()
	}
	return json.Marshal(envelope{Type: ev.Type, Ts: &ts, Data: ev.Data})
}

// ============================================================================
// Hub
// ============================================================================

type Hub struct {
	logger *slog.Logger

	// Buffered broadcast channel for already-serialized JSON frames.
	broadcast  chan []byte
	register   chan *Client
	unregister chan *Client

	mu      sync.Mutex
	clients map[*Client]struct{}

	// done is closed when Run returns. Pumps and handlers that would
	// otherwise block on register or unregister watch it.
	done chan struct{}

	sendBuf int
}

type HubConfig struct {
	// SendBuf is the per-client outbound queue size.
	SendBuf int
	// BroadcastBuf is the hub inbound broadcast queue size.
	BroadcastBuf int
}

// NewHub constructs a hub. Call Run(ctx) to start it.
func NewHub(logger *slog.Logger, cfg HubConfig) *Hub {
	sendBuf := cfg.SendBuf
	if sendBuf <= 0 {
		sendBuf = 16
	}
	bcastBuf := cfg.BroadcastBuf
	if bcastBuf <= 0 {
		bcastBuf = 64
	}

	return &Hub{
		logger:     logger,
		broadcast:  make(chan []byte, bcastBuf),
		register:   make(chan *Client),
		unregister: make(chan *Client, 16),
		clients:    make(map[*Client]struct{}),
		done:       make(chan struct{}),
		sendBuf:    sendBuf,
	}
}

// Run processes hub events until ctx is canceled. Frames already queued
// are handed to the clients before their send channels are closed, so each
// writePump flushes them and then says goodbye.
func (h *Hub) Run(ctx context.Context) {
	defer close(h.done)
	for {
		select {
		case <-ctx.Done():
			h.drain()
			h.closeAllClients()
			return

		case c := <-h.register:
			h.mu.Lock()
			h.clients[c] = struct{}{}
			n := len(h.clients)
			h.mu.Unlock()
			h.logger.Info("mirror client connected", "remote_addr", c.remoteAddr, "clients", n)

		case c := <-h.unregister:
			h.removeClient(c, "unregister")

		case msg := <-h.broadcast:
			h.deliver(msg)
		}
	}
}

// deliver queues msg on every client and evicts those whose queue is full.
func (h *Hub) deliver(msg []byte) {
	var slow []*Client

	h.mu.Lock()
	for c := range h.clients {
		select {
		case c.send <- msg:
		default:
			slow = append(slow, c)
		}
	}
	h.mu.Unlock()

	for _, c := range slow {
		h.removeClient(c, "slow_client")
	}
}

// drain applies whatever is still queued on the hub channels.
func (h *Hub) drain() {
	for {
		select {
		case c := <-h.register:
			h.mu.Lock()
			h.clients[c] = struct{}{}
			h.mu.Unlock()
		case c := <-h.unregister:
			h.removeClient(c, "unregister")
		case msg := <-h.broadcast:
			h.deliver(msg)
		default:
			return
		}
	}
}

// Len returns the number of connected clients.
func (h *Hub) Len() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

// closeAllClients ends every client by closing its send channel; the
// connection is closed by writePump once the queue is flushed.
func (h *Hub) closeAllClients() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.clients {
		safeCloseChan(c.send)
		delete(h.clients, c)
	}
}

func (h *Hub) removeClient(c *Client, reason string) {
	h.mu.Lock()
	_, ok := h.clients[c]
	if ok {
		delete(h.clients, c)
	}
	n := len(h.clients)
	h.mu.Unlock()

	if !ok {
		return
	}
	if c.conn != nil {
		_ = c.conn.Close()
	}
	// Closing send makes writePump exit.
	safeCloseChan(c.send)

	h.logger.Info("mirror client disconnected", "remote_addr", c.remoteAddr, "reason", reason, "clients", n)
}

func safeCloseChan(ch chan []byte) {
	defer func() {
		_ = recover() // close of closed channel
	}()
	close(ch)
}

// BroadcastBytes enqueues a serialized frame for every client. It never
// blocks; the frame is dropped if the hub queue is full.
func (h *Hub) BroadcastBytes(msg []byte) {
	select {
	case h.broadcast <- msg:
	default:
		h.logger.Warn("mirror broadcast queue full, dropping message", "bytes", len(msg))
	}
}

// ============================================================================
// Client
// ============================================================================

type Client struct {
	hub *Hub

	conn *websocket.Conn
	send chan []byte

	remoteAddr string
	logger     *slog.Logger
}

func NewClient(hub *Hub, conn *websocket.Conn, remoteAddr string, logger *slog.Logger) *Client {
	sendBuf := 16
	if hub != nil && hub.sendBuf > 0 {
		sendBuf = hub.sendBuf
	}
	return &Client{
		hub:        hub,
		conn:       conn,
		send:       make(chan []byte, sendBuf),
		remoteAddr: remoteAddr,
		logger:     logger,
	}
}

const (
	writeWait  = 5 * time.Second
	pongWait   = 30 * time.Second
	pingPeriod = 20 * time.Second
)

// selectionCoalesceWindow bounds how often selection_changed is sent while
// the highlight keeps moving. The latest selection wins.
const selectionCoalesceWindow = 50 * time.Millisecond

func closeStatus(err error) (code int, text string, ok bool) {
	var ce *websocket.CloseError
	if errors.As(err, &ce) {
		return ce.Code, ce.Text, true
	}
	return 0, "", false
}

func (c *Client) logExit(pump string, err error) {
	if errors.Is(err, websocket.ErrCloseSent) {
		return
	}
	if code, text, ok := closeStatus(err); ok {
		c.logger.Debug("mirror "+pump+" exiting (close)", "remote_addr", c.remoteAddr, "code", code, "reason", text)
		return
	}
	c.logger.Debug("mirror "+pump+" exiting", "remote_addr", c.remoteAddr, "error", err)
}

// writePump writes queued frames and keepalive pings. It exits on write
// error or once send is closed and drained, and owns closing the connection.
func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()
	defer c.conn.Close()

	for {
		select {
		case msg, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				c.logExit("writePump", err)
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				c.logExit("writePump", err)
				return
			}
		}
	}
}

// readPump discards inbound frames and unregisters the client once the
// connection fails.
func (c *Client) readPump() {
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			c.logExit("readPump", err)
			if c.hub != nil {
				select {
				case c.hub.unregister <- c:
				case <-c.hub.done:
				}
			}
			return
		}
	}
}

// ============================================================================
// Mirror: publisher + HTTP handler
// ============================================================================

// Mirror publishes engine state to websocket clients.
type Mirror struct {
	logger   *slog.Logger
	hub      *Hub
	events   chan wsOutboundEvent
	snapshot func() DisplaySnapshot

	// pumps counts running client pumps; Serve waits for them so frames
	// published before shutdown reach the wire. closing stops new pumps
	// from being counted once that wait has begun.
	mu      sync.Mutex
	closing bool
	pumps   sync.WaitGroup
}

// NewMirror builds a mirror. snapshot supplies the state_init payload.
func NewMirror(logger *slog.Logger, snapshot func() DisplaySnapshot, cfg HubConfig) *Mirror {
	return &Mirror{
		logger:   logger,
		hub:      NewHub(logger, cfg),
		events:   make(chan wsOutboundEvent, 64),
		snapshot: snapshot,
	}
}

func (m *Mirror) Hub() *Hub { return m.hub }

// Publish never blocks; events are dropped when the broadcaster lags.
func (m *Mirror) Publish(eventType string, data any) {
	select {
	case m.events <- wsOutboundEvent{Type: eventType, Data: data, At: time.Now().UTC()}:
	default:
		m.logger.Debug("mirror event queue full, dropping", "type", eventType)
	}
}

// Register adds the websocket handler to mux at path.
func (m *Mirror) Register(mux *http.ServeMux, path string) {
	mux.HandleFunc(path, m.handleState)
}

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// handleState upgrades and registers a client, then sends state_init.
func (m *Mirror) handleState(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		m.logger.Warn("mirror upgrade failed", "error", err)
		return
	}

	client := NewClient(m.hub, conn, r.RemoteAddr, m.logger)

	// Queue state_init before registering so it is the first frame.
	if m.snapshot != nil {
		msg, err := marshalEnvelope(wsOutboundEvent{Type: eventStateInit, Data: snapshotPayload(m.snapshot())})
		if err == nil {
			client.send <- msg
		}
	}
	// register is unbuffered, so a client is either taken by a running hub
	// or turned away; counting first keeps the pumps visible to Serve.
	m.mu.Lock()
	if m.closing {
		m.mu.Unlock()
		_ = conn.Close()
		return
	}
	m.pumps.Add(2)
	m.mu.Unlock()

	select {
	case m.hub.register <- client:
	case <-m.hub.done:
		m.pumps.Add(-2)
		_ = conn.Close()
		return
	}

	// The pumps must outlive the request; net/http cancels its context when
	// the handler returns.
	go func() {
		defer m.pumps.Done()
		client.writePump()
	}()
	go func() {
		defer m.pumps.Done()
		client.readPump()
	}()
}

// Run serves the mirror on listen until ctx is done.
func (m *Mirror) Run(ctx context.Context, listen string) error {
	ln, err := net.Listen("tcp", listen)
	if err != nil {
		return err
	}
	return m.Serve(ctx, ln)
}

// Serve is Run on an existing listener. Once ctx is done it flushes in
// order: the broadcaster sends what was published, the hub hands it to the
// clients, the client pumps write it out. Serve returns after that.
func (m *Mirror) Serve(ctx context.Context, ln net.Listener) error {
	mux := http.NewServeMux()
	m.Register(mux, "/state")

	srv := &http.Server{
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	// The hub outlives ctx until the broadcaster is done with it.
	hubCtx, stopHub := context.WithCancel(context.Background())
	defer stopHub()
	go m.hub.Run(hubCtx)

	broadcasterDone := make(chan struct{})
	go func() {
		defer close(broadcasterDone)
		RunBroadcaster(ctx, m.hub, m.events, m.logger)
	}()

	flushed := make(chan struct{})
	go func() {
		defer close(flushed)
		<-ctx.Done()
		<-broadcasterDone
		stopHub()
		<-m.hub.done
		m.mu.Lock()
		m.closing = true
		m.mu.Unlock()
		m.pumps.Wait()

		shutdownCtx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	m.logger.Info("state mirror listening", "addr", ln.Addr().String())
	if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	<-flushed
	return nil
}

// ============================================================================
// Broadcaster
// ============================================================================

// RunBroadcaster marshals published events and fans them out through the
// hub. selection_changed is rate limited to one frame per
// selectionCoalesceWindow; any other event flushes a pending selection
// first so ordering is preserved.
func RunBroadcaster(ctx context.Context, hub *Hub, src <-chan wsOutboundEvent, logger *slog.Logger) {
	if hub == nil || src == nil {
		return
	}

	var pending *wsOutboundEvent
	var timer *time.Timer
	var timerCh <-chan time.Time

	send := func(ev wsOutboundEvent) {
		msg, err := marshalEnvelope(ev)
		if err != nil {
			logger.Warn("mirror marshal failed", "error", err, "type", ev.Type)
			return
		}
		hub.BroadcastBytes(msg)
	}

	flushPending := func() {
		if pending == nil {
			return
		}
		send(*pending)
		pending = nil
	}

	stopTimer := func() {
		if timer != nil {
			timer.Stop()
		}
		timer = nil
		timerCh = nil
	}

	for {
		select {
		case <-ctx.Done():
			// Publishers are done; send what they left behind.
		drain:
			for {
				select {
				case ev, ok := <-src:
					if !ok {
						break drain
					}
					if ev.Type == eventSelectionChanged {
						cp := ev
						pending = &cp
						continue
					}
					flushPending()
					send(ev)
				default:
					break drain
				}
			}
			flushPending()
			stopTimer()
			return

		case <-timerCh:
			flushPending()
			stopTimer()

		case ev, ok := <-src:
			if !ok {
				flushPending()
				stopTimer()
				return
			}

			if ev.Type == eventSelectionChanged {
				cp := ev
				pending = &cp
				if timer == nil {
					timer = time.NewTimer(selectionCoalesceWindow)
					timerCh = timer.C
				}
				continue
			}

			flushPending()
			stopTimer()
			send(ev)
		}
	}
}
