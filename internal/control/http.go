package control

import (
	"encoding/json"
	"net/http"

	"github.com/gorilla/websocket"
	"github.com/julienschmidt/httprouter"
	"github.com/rs/cors"
)

// Hub fans AuditEvent broadcasts out to every connected WebSocket debug
// client, e.g. for a browser-hosted front end watching the audit event of
// every control request live.
type Hub struct {
	register   chan *websocket.Conn
	unregister chan *websocket.Conn
	broadcast  chan AuditEvent
}

func NewHub() *Hub {
	h := &Hub{
		register:   make(chan *websocket.Conn),
		unregister: make(chan *websocket.Conn),
		broadcast:  make(chan AuditEvent, 32),
	}
	go h.run()
	return h
}

func (h *Hub) run() {
	conns := make(map[*websocket.Conn]struct{})
	for {
		select {
		case c := <-h.register:
			conns[c] = struct{}{}
		case c := <-h.unregister:
			delete(conns, c)
			c.Close()
		case ev := <-h.broadcast:
			for c := range conns {
				if err := c.WriteJSON(ev); err != nil {
					delete(conns, c)
					c.Close()
				}
			}
		}
	}
}

// Broadcast satisfies Server.Broadcast's func(AuditEvent) shape.
func (h *Hub) Broadcast(ev AuditEvent) {
	select {
	case h.broadcast <- ev:
	default:
		// a slow drain; drop rather than block request handling.
	}
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// NewHTTPHandler builds the control plane's HTTP surface: a REST-ish
// request endpoint and a WebSocket event stream, both proxying the same
// Request/Response types the TCP framing uses, CORS-wrapped for
// browser-hosted debug front ends.
func NewHTTPHandler(s *Server, hub *Hub, requireAuth bool) http.Handler {
	router := httprouter.New()

	router.POST("/v1/request", func(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
		var req Request
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		resp := s.Handle(r.Context(), req, r.RemoteAddr, requireAuth)
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(resp)
	})

	router.GET("/v1/events", func(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		hub.register <- conn
		defer func() { hub.unregister <- conn }()
		for {
			if _, _, err := conn.NextReader(); err != nil {
				return
			}
		}
	})

	return cors.Default().Handler(router)
}
