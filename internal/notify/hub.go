// Package notify streams session events to connected WebSocket clients.
package notify

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/coder/websocket"

	"github.com/p-n-ai/pai-course/internal/assessment"
	"github.com/p-n-ai/pai-course/internal/progress"
	"github.com/p-n-ai/pai-course/internal/session"
)

const (
	sendBuffer   = 32
	writeTimeout = 5 * time.Second
)

// Frame is the JSON shape of one event on the wire.
type Frame struct {
	Type          string                   `json:"type"`
	ID            string                   `json:"id,omitempty"`
	Kind          string                   `json:"kind,omitempty"`
	Reason        string                   `json:"reason,omitempty"`
	Message       string                   `json:"message,omitempty"`
	AutoDismissMS int64                    `json:"auto_dismiss_ms,omitempty"`
	LessonID      string                   `json:"lesson_id,omitempty"`
	ModuleID      string                   `json:"module_id,omitempty"`
	From          string                   `json:"from,omitempty"`
	To            string                   `json:"to,omitempty"`
	Outcome       string                   `json:"outcome,omitempty"`
	Attempt       uint64                   `json:"attempt,omitempty"`
	Result        *assessment.Result       `json:"result,omitempty"`
	Progress      *progress.ModuleProgress `json:"progress,omitempty"`
	Complete      bool                     `json:"complete,omitempty"`
}

// FrameFor converts a controller event into its wire frame.
func FrameFor(ev session.Event) Frame {
	f := Frame{Type: ev.EventType()}
	switch e := ev.(type) {
	case session.StateChanged:
		f.LessonID = e.LessonID
		f.From = e.From.String()
		f.To = e.To.String()
	case session.ResultReady:
		res := e.Result
		f.LessonID = e.LessonID
		f.Kind = string(e.Kind)
		f.Attempt = uint64(e.Attempt)
		f.Result = &res
	case session.LessonCompleted:
		p := e.Progress
		f.LessonID = e.LessonID
		f.ModuleID = e.ModuleID
		f.Complete = e.ModuleComplete
		f.Progress = &p
	case session.Advanced:
		f.From = e.From.LessonID
		f.To = e.To.LessonID
		f.ModuleID = e.To.ModuleID
	case session.Halted:
		f.LessonID = e.LessonID
		f.Outcome = e.Outcome.String()
	case session.Notification:
		f.ID = e.ID
		f.Kind = string(e.Kind)
		f.Reason = string(e.Reason)
		f.Message = e.Message
		f.AutoDismissMS = e.AutoDismiss.Milliseconds()
	case session.NotificationDismissed:
		f.ID = e.ID
	}
	return f
}

type client struct {
	send chan []byte
}

// Hub fans controller events out to every connected client. A client that
// falls behind loses frames rather than stalling the controller.
type Hub struct {
	mu      sync.Mutex
	clients map[*client]struct{}
	closed  bool
}

// NewHub creates an empty hub.
func NewHub() *Hub {
	return &Hub{clients: make(map[*client]struct{})}
}

// Notify implements session.Notifier.
func (h *Hub) Notify(ev session.Event) {
	data, err := json.Marshal(FrameFor(ev))
	if err != nil {
		slog.Error("failed to encode event", "type", ev.EventType(), "error", err)
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.clients {
		select {
		case c.send <- data:
		default:
			slog.Warn("dropping event for slow client", "type", ev.EventType())
		}
	}
}

// Clients returns the number of connected clients.
func (h *Hub) Clients() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

// ServeHTTP upgrades the request and streams frames until the client goes
// away or the hub is closed.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, nil)
	if err != nil {
		slog.Warn("websocket accept failed", "error", err)
		return
	}
	defer conn.CloseNow()

	c, ok := h.register()
	if !ok {
		conn.Close(websocket.StatusGoingAway, "server shutting down")
		return
	}
	defer h.unregister(c)
	slog.Debug("event stream connected", "remote", r.RemoteAddr)

	// Inbound frames are not used; CloseRead handles control frames.
	ctx := conn.CloseRead(r.Context())
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-c.send:
			if !ok {
				conn.Close(websocket.StatusGoingAway, "server shutting down")
				return
			}
			if err := write(ctx, conn, msg); err != nil {
				slog.Debug("event stream write failed", "error", err)
				return
			}
		}
	}
}

func write(ctx context.Context, conn *websocket.Conn, msg []byte) error {
	ctx, cancel := context.WithTimeout(ctx, writeTimeout)
	defer cancel()
	return conn.Write(ctx, websocket.MessageText, msg)
}

func (h *Hub) register() (*client, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return nil, false
	}
	c := &client{send: make(chan []byte, sendBuffer)}
	h.clients[c] = struct{}{}
	return c, true
}

func (h *Hub) unregister(c *client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.clients[c]; ok {
		delete(h.clients, c)
		close(c.send)
	}
}

// Close disconnects every client and rejects new ones.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.closed = true
	for c := range h.clients {
		delete(h.clients, c)
		close(c.send)
	}
}
