package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10
	maxMsgSize = 1 << 12

	defaultSampleInterval = time.Second
	minSampleInterval     = 100 * time.Millisecond
	maxSampleInterval     = 10 * time.Second
)

type wsEnvelope struct {
	Type  string          `json:"type"`
	Data  json.RawMessage `json:"data,omitempty"`
	Error string          `json:"error,omitempty"`
}

// upgrader accepts same-origin requests and any origin listed for CORS.
func (h *Handler) upgrader() *websocket.Upgrader {
	allowed := make(map[string]struct{}, len(h.opts.CORSOrigins))
	for _, o := range h.opts.CORSOrigins {
		allowed[o] = struct{}{}
	}
	return &websocket.Upgrader{
		CheckOrigin: func(r *http.Request) bool {
			origin := r.Header.Get("Origin")
			if origin == "" || origin == "http://"+r.Host || origin == "https://"+r.Host {
				return true
			}
			_, ok := allowed[origin]
			return ok
		},
	}
}

// wsToken reads the bearer token from the Authorization header or, since
// browsers cannot set headers on a WebSocket handshake, from ?token=.
func wsToken(c *gin.Context) string {
	if scheme, tok, ok := strings.Cut(c.GetHeader("Authorization"), " "); ok && strings.EqualFold(scheme, "Bearer") {
		return strings.TrimSpace(tok)
	}
	return c.Query("token")
}

// @Summary      Status push
// @Description  Upgrades to WebSocket. The status is sampled every ?interval (100ms..10s, default 1s) and sent as {"type":"status","data":...} whenever it differs from the last one sent.
// @Tags         stove
// @Param        token     query  string  false  "Bearer token when the Authorization header cannot be set"
// @Param        interval  query  string  false  "Sampling interval, e.g. 500ms"
// @Failure      401  {object}  map[string]string
// @Router       /ws [get]
func (h *Handler) wsConnect(c *gin.Context) {
	tok := wsToken(c)
	if tok == "" {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing token"})
		return
	}
	if _, err := h.services.ParseToken(tok); err != nil {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid or expired token"})
		return
	}
	interval := sampleInterval(c.Query("interval"))

	conn, err := h.upgrader().Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		if h.log != nil {
			h.log.Infow("ws_upgrade_failed", "err", err)
		}
		return
	}
	defer func() { _ = conn.Close() }()

	conn.SetReadLimit(maxMsgSize)
	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	done := make(chan struct{})
	go h.drainReads(conn, done)

	sample := time.NewTicker(interval)
	ping := time.NewTicker(pingPeriod)
	defer sample.Stop()
	defer ping.Stop()

	ctx := c.Request.Context()
	var last []byte
	for {
		next, err := h.pushIfChanged(ctx, conn, last)
		if err != nil {
			if h.log != nil {
				h.log.Infow("ws_write_failed", "err", err)
			}
			return
		}
		last = next

		select {
		case <-done:
			return
		case <-ctx.Done():
			return
		case <-ping.C:
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-sample.C:
		}
	}
}

func sampleInterval(s string) time.Duration {
	if s == "" {
		return defaultSampleInterval
	}
	d, err := time.ParseDuration(s)
	if err != nil || d <= 0 {
		return defaultSampleInterval
	}
	switch {
	case d < minSampleInterval:
		return minSampleInterval
	case d > maxSampleInterval:
		return maxSampleInterval
	}
	return d
}

// drainReads consumes control frames and closes done when the peer goes away.
func (h *Handler) drainReads(conn *websocket.Conn, done chan<- struct{}) {
	defer close(done)
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}

// pushIfChanged sends the current status unless it is byte-identical to
// last. It returns the encoding now held by the client.
func (h *Handler) pushIfChanged(ctx context.Context, conn *websocket.Conn, last []byte) ([]byte, error) {
	data, err := json.Marshal(h.services.Monitoring.Status(ctx))
	if err != nil {
		return last, err
	}
	if last != nil && bytes.Equal(data, last) {
		return last, nil
	}
	_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
	if err := conn.WriteJSON(wsEnvelope{Type: "status", Data: data}); err != nil {
		return last, err
	}
	return data, nil
}
