package app

import (
	"encoding/json"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"huddle/api/internal/auth"
	"huddle/api/internal/membership"
	"huddle/api/internal/msglog"
)

const (
	streamWriteWait  = 10 * time.Second
	streamPongWait   = 60 * time.Second
	streamPingPeriod = 54 * time.Second
	streamSendBuffer = 64
)

var streamUpgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

type streamEvent struct {
	Type    string       `json:"type"`
	Message *MessageView `json:"message,omitempty"`
	Members []MemberView `json:"members,omitempty"`
}

// streamSender buffers outgoing events for one connection. push is called
// concurrently from several watcher goroutines; when the buffer is full the
// connection is marked overflowed exactly once and the write loop drops it.
type streamSender struct {
	send     chan []byte
	overflow chan struct{}
	once     sync.Once
}

func newStreamSender() *streamSender {
	return &streamSender{
		send:     make(chan []byte, streamSendBuffer),
		overflow: make(chan struct{}),
	}
}

func (s *streamSender) push(event streamEvent) {
	payload, err := json.Marshal(event)
	if err != nil {
		return
	}
	select {
	case s.send <- payload:
	default:
		// Slow consumer. Drop the connection rather than buffer without
		// bound; the client reconnects and re-reads the tail.
		s.once.Do(func() { close(s.overflow) })
	}
}

// handleStream upgrades the request and pushes message and roster events for
// one community until the client goes away. One goroutine reads (pong and
// close handling), the handler goroutine owns all writes.
func (s *HTTPServer) handleStream(w http.ResponseWriter, r *http.Request, identity auth.Identity, code string) {
	conn, err := streamUpgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("stream upgrade failed: %v", err)
		return
	}
	defer conn.Close()

	sender := newStreamSender()

	session, err := s.service.SubscribeCommunity(r.Context(), identity, code,
		func(message msglog.Message) {
			view := messageView(message)
			sender.push(streamEvent{Type: "message", Message: &view})
		},
		func(members []membership.Membership) {
			views := make([]MemberView, 0, len(members))
			for _, member := range members {
				views = append(views, MemberView{UserID: member.UserID, Role: string(member.Role)})
			}
			sender.push(streamEvent{Type: "members", Members: views})
		},
	)
	if err != nil {
		status, errCode, message, _ := mapError(err)
		payload, _ := json.Marshal(map[string]any{"type": "error", "code": errCode, "error": message, "status": status})
		_ = conn.SetWriteDeadline(time.Now().Add(streamWriteWait))
		_ = conn.WriteMessage(websocket.TextMessage, payload)
		return
	}
	defer session.Close()

	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = conn.SetReadDeadline(time.Now().Add(streamPongWait))
		conn.SetPongHandler(func(string) error {
			return conn.SetReadDeadline(time.Now().Add(streamPongWait))
		})
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ticker := time.NewTicker(streamPingPeriod)
	defer ticker.Stop()

	for {
		select {
		case payload := <-sender.send:
			_ = conn.SetWriteDeadline(time.Now().Add(streamWriteWait))
			if err := conn.WriteMessage(websocket.TextMessage, payload); err != nil {
				return
			}
		case <-ticker.C:
			_ = conn.SetWriteDeadline(time.Now().Add(streamWriteWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-sender.overflow:
			return
		case <-done:
			return
		case <-r.Context().Done():
			return
		}
	}
}
