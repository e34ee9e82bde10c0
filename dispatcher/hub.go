/*
hub.go - the duplex websocket channel of spec §4.6.

Grounded on the teacher's api/server.go chi+cors wiring, generalized from a
REST mux to a single websocket-upgrade endpoint, and on gorilla/websocket's
standard read/write-pump pattern (one reader goroutine, one buffered writer
goroutine per connection, so a slow client can't block the dispatcher).
*/
package dispatcher

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// Hub owns every live connection, the command Router, and the dedup store.
// Dispatch is synchronous per connection but parallel across connections
// (spec §4.6): each connection's readPump processes one frame at a time,
// while the Hub itself never serializes across connections.
type Hub struct {
	Router *Router
	Dedup  DedupStore
	Log    zerolog.Logger

	mu    sync.RWMutex
	conns map[*connection]struct{}
}

func NewHub(router *Router, dedup DedupStore, log zerolog.Logger) *Hub {
	return &Hub{Router: router, Dedup: dedup, Log: log, conns: make(map[*connection]struct{})}
}

// NewRouterMux wires the websocket upgrade endpoint and a health check on a
// chi mux with the teacher's middleware/CORS stack.
func (h *Hub) NewRouterMux(allowedOrigins []string) *chi.Mux {
	r := chi.NewRouter()
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   allowedOrigins,
		AllowedMethods:   []string{"GET"},
		AllowCredentials: true,
	}))
	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	r.Get("/ws", h.ServeWS)
	return r
}

// connection is one client's duplex channel: a reader goroutine decoding
// frames and a writer goroutine draining the send channel, so a slow
// client never blocks other connections or the readPump.
type connection struct {
	hub      *Hub
	ws       *websocket.Conn
	clientID string
	send     chan Response
}

// ServeWS upgrades an HTTP request to a websocket connection and pumps
// frames until the client disconnects.
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request) {
	ws, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.Log.Warn().Err(err).Msg("dispatcher: websocket upgrade failed")
		return
	}
	c := &connection{hub: h, ws: ws, clientID: clientIDFromRequest(r), send: make(chan Response, 32)}

	h.mu.Lock()
	h.conns[c] = struct{}{}
	h.mu.Unlock()

	go c.writePump()
	c.readPump()
}

// Broadcast pushes an unsolicited frame to every connected client (spec
// §4.6: pushes after mutations affecting shared entities, e.g. parked
// orders or the recovery queue).
func (h *Hub) Broadcast(command string, payload any) {
	resp := Response{Command: command, ServerTime: serverTimeNow(), Payload: payload}
	h.mu.RLock()
	defer h.mu.RUnlock()
	for c := range h.conns {
		select {
		case c.send <- resp:
		default:
			h.Log.Warn().Str("client_id", c.clientID).Msg("dispatcher: broadcast dropped, send buffer full")
		}
	}
}

func (h *Hub) remove(c *connection) {
	h.mu.Lock()
	delete(h.conns, c)
	h.mu.Unlock()
	close(c.send)
}

func (c *connection) readPump() {
	defer c.hub.remove(c)
	sess := &Session{ClientID: c.clientID}

	for {
		_, raw, err := c.ws.ReadMessage()
		if err != nil {
			return
		}

		var env Envelope
		if err := json.Unmarshal(raw, &env); err != nil {
			c.send <- Response{ServerTime: serverTimeNow(), Status: StatusError, Error: "malformed envelope"}
			continue
		}
		if env.OperationID == "" {
			c.send <- Response{Command: env.Command, ServerTime: serverTimeNow(), Status: StatusError, Error: "operationId is required"}
			continue
		}

		c.hub.dispatch(sess, env, c.send)
	}
}

func (c *connection) writePump() {
	for resp := range c.send {
		_ = c.ws.WriteJSON(resp)
	}
}

// dispatch runs dedup, then the handler, synchronously for this
// connection's goroutine; other connections' goroutines proceed
// independently (spec §4.6).
func (h *Hub) dispatch(sess *Session, env Envelope, out chan<- Response) {
	ctx := context.Background()

	alreadySeen, err := h.Dedup.Seen(ctx, env.OperationID)
	if err != nil {
		h.Log.Warn().Err(err).Str("operation_id", env.OperationID).Msg("dispatcher: dedup check failed, proceeding without it")
	} else if alreadySeen {
		out <- Response{OperationID: env.OperationID, Command: env.Command, ServerTime: serverTimeNow(), Status: StatusAlreadyProcessed}
		return
	}

	handler, responseName, ok := h.Router.Dispatch(env.Command)
	if !ok {
		out <- Response{OperationID: env.OperationID, Command: env.Command, ServerTime: serverTimeNow(), Status: StatusError, Error: "unknown command: " + env.Command}
		return
	}

	result, err := handler(ctx, sess, env.Payload)
	if err != nil {
		out <- Response{OperationID: env.OperationID, Command: responseName, ServerTime: serverTimeNow(), Status: StatusError, Error: err.Error()}
		return
	}
	out <- Response{OperationID: env.OperationID, Command: responseName, ServerTime: serverTimeNow(), Status: StatusSuccess, Payload: result}
}

func clientIDFromRequest(r *http.Request) string {
	if id := r.Header.Get("X-Client-Id"); id != "" {
		return id
	}
	return uuid.NewString()
}
