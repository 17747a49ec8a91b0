package api

import (
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/websocket"
	"github.com/pamilerinsimon03/WemaTrust/internal/domain"
)

const (
	wsWriteWait  = 10 * time.Second
	wsPongWait   = 60 * time.Second
	wsPingPeriod = (wsPongWait * 9) / 10
)

// newUpgrader accepts handshakes whose Origin is in allowedOrigins, the same list the
// CORS middleware enforces. An empty list falls back to gorilla's same-origin check.
func newUpgrader(allowedOrigins []string) websocket.Upgrader {
	u := websocket.Upgrader{ReadBufferSize: 1024, WriteBufferSize: 1024}
	if len(allowedOrigins) > 0 {
		allowed := append([]string(nil), allowedOrigins...)
		u.CheckOrigin = func(r *http.Request) bool {
			origin := r.Header.Get("Origin")
			// Non-browser clients send no Origin.
			return origin == "" || originAllowed(origin, allowed)
		}
	}
	return u
}

// originAllowed matches origin against exact entries, "*" and single-wildcard
// patterns such as "https://*.wematrust.ng".
func originAllowed(origin string, allowed []string) bool {
	origin = strings.ToLower(origin)
	for _, pattern := range allowed {
		pattern = strings.ToLower(strings.TrimSpace(pattern))
		if pattern == "*" || pattern == origin {
			return true
		}
		if prefix, suffix, ok := strings.Cut(pattern, "*"); ok {
			if len(origin) >= len(prefix)+len(suffix) && strings.HasPrefix(origin, prefix) && strings.HasSuffix(origin, suffix) {
				return true
			}
		}
	}
	return false
}

// streamFilter narrows a stream by ?types=a,b and ?txn_ref=.
type streamFilter struct {
	kinds  []domain.EventKind
	txnRef string
}

func parseStreamFilter(r *http.Request) (streamFilter, error) {
	var f streamFilter
	q := r.URL.Query()
	f.txnRef = strings.TrimSpace(q.Get("txn_ref"))
	if raw := strings.TrimSpace(q.Get("types")); raw != "" {
		known := make(map[domain.EventKind]bool, len(domain.EventKinds))
		for _, k := range domain.EventKinds {
			known[k] = true
		}
		for _, part := range strings.Split(raw, ",") {
			kind := domain.EventKind(strings.TrimSpace(part))
			if kind == "" {
				continue
			}
			if !known[kind] {
				return f, fmt.Errorf("unknown event type %q", kind)
			}
			f.kinds = append(f.kinds, kind)
		}
	}
	return f, nil
}

func (f streamFilter) match(env domain.Envelope) bool {
	return f.txnRef == "" || domain.EventTxnRef(env.Data) == f.txnRef
}

// StreamEventsHandler streams bus events as server-sent events.
func (h *Handlers) StreamEventsHandler(w http.ResponseWriter, r *http.Request) {
	filter, err := parseStreamFilter(r)
	if err != nil {
		h.writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	flusher, ok := w.(http.Flusher)
	if !ok {
		h.writeError(w, http.StatusInternalServerError, "Streaming unsupported")
		return
	}

	sub := h.events.Subscribe(filter.kinds...)
	defer sub.Close()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)
	fmt.Fprint(w, ": connected\n\n")
	flusher.Flush()

	heartbeat := time.NewTicker(h.heartbeat)
	defer heartbeat.Stop()

	for {
		select {
		case <-r.Context().Done():
			return
		case <-heartbeat.C:
			if _, err := fmt.Fprint(w, ": ping\n\n"); err != nil {
				return
			}
			flusher.Flush()
		case env, ok := <-sub.C():
			if !ok {
				return
			}
			if !filter.match(env) {
				continue
			}
			payload, err := domain.MarshalEnvelope(env)
			if err != nil {
				log.Printf("level=error component=api endpoint=events msg=\"encode event failed\" seq=%d err=%v", env.Seq, err)
				continue
			}
			if _, err := fmt.Fprintf(w, "id: %d\ndata: %s\n\n", env.Seq, payload); err != nil {
				return
			}
			flusher.Flush()
		}
	}
}

// WebSocketEventsHandler streams bus events as JSON text frames.
func (h *Handlers) WebSocketEventsHandler(w http.ResponseWriter, r *http.Request) {
	filter, err := parseStreamFilter(r)
	if err != nil {
		h.writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	sub := h.events.Subscribe(filter.kinds...)
	defer sub.Close()

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("level=warn component=api endpoint=events_ws msg=\"upgrade failed\" err=%v", err)
		return
	}
	defer conn.Close()

	// The read loop only services control frames and notices the client leaving.
	done := make(chan struct{})
	conn.SetReadLimit(512)
	conn.SetReadDeadline(time.Now().Add(wsPongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(wsPongWait))
	})
	go func() {
		defer close(done)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ping := time.NewTicker(wsPingPeriod)
	defer ping.Stop()

	for {
		select {
		case <-done:
			return
		case <-r.Context().Done():
			return
		case <-ping.C:
			conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case env, ok := <-sub.C():
			if !ok {
				conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
				conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseGoingAway, "event stream closed"))
				return
			}
			if !filter.match(env) {
				continue
			}
			payload, err := json.Marshal(env)
			if err != nil {
				continue
			}
			conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
			if err := conn.WriteMessage(websocket.TextMessage, payload); err != nil {
				return
			}
		}
	}
}
