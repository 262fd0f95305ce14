package server

import (
	"log"
	"net/http"
	"strconv"
	"sync/atomic"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"github.com/atikulmunna/moor/internal/model"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// wsBuffer is the per-connection record queue. The subscription callback
// must never block the delivery path, so records go into this queue and a
// writer pump drains it; overflow drops for that connection only.
const wsBuffer = 256

// maxReplay bounds how much history a client may request per connection. The
// queue is sized to hold the full replay, which is pushed synchronously
// before the write pump starts draining; an unbounded replay would let a
// client size the queue arbitrarily.
const maxReplay = 10000

// handleWebSocket upgrades to WebSocket and streams a service's records to
// the client, replaying recent history first.
func (s *Server) handleWebSocket(c *gin.Context) {
	name := c.Param("service")

	replay := s.replay
	if v := c.Query("replay"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n >= 0 {
			replay = n
		}
	}
	if replay > maxReplay {
		replay = maxReplay
	}

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Printf("websocket upgrade failed: %v", err)
		return
	}
	defer conn.Close()

	queue := wsBuffer
	if replay > queue {
		queue = replay
	}
	records := make(chan model.LogRecord, queue)
	var dropped int64

	unsubscribe, err := s.manager.SubscribeLogs(token(c), name, func(rec model.LogRecord) {
		select {
		case records <- rec:
		default:
			if n := atomic.AddInt64(&dropped, 1); n == 1 {
				log.Printf("websocket %s: dropping records for slow client", name)
			}
		}
	}, replay)
	if err != nil {
		_ = conn.WriteJSON(gin.H{"error": err.Error()})
		return
	}
	defer unsubscribe()

	// Read pump — detect client disconnect.
	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	// Write pump — send records as JSON.
	for {
		select {
		case rec := <-records:
			if err := conn.WriteJSON(rec); err != nil {
				return
			}
		case <-done:
			return
		}
	}
}
