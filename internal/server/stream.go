package server

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/cwbudde/grayscalebench/internal/bench"
)

// Event types sent on /api/v1/events.
const (
	EventDevice = "device"
	EventImage  = "image"
	EventRun    = "run"
	EventScore  = "score"
	EventError  = "error"
)

// Event is one bench state change.
type Event struct {
	Type      string        `json:"type"`
	Path      bench.Path    `json:"path,omitempty"`
	Millis    int64         `json:"millis,omitempty"`
	Device    string        `json:"device,omitempty"`
	Image     string        `json:"image,omitempty"`
	Score     *bench.Result `json:"score,omitempty"`
	Kind      string        `json:"kind,omitempty"`
	Error     string        `json:"error,omitempty"`
	Timestamp time.Time     `json:"timestamp"`
}

func errorEvent(err error) Event {
	return Event{Type: EventError, Kind: errorKind(err), Error: err.Error(), Timestamp: time.Now()}
}

// EventBroadcaster fans events out to SSE clients.
type EventBroadcaster struct {
	mu        sync.Mutex
	clients   map[chan Event]bool
	lastEvent *Event
	closed    bool
}

// NewEventBroadcaster creates a new event broadcaster
func NewEventBroadcaster() *EventBroadcaster {
	return &EventBroadcaster{
		clients: make(map[chan Event]bool),
	}
}

// Subscribe registers a client. The last event, if any, is replayed.
// After Close the returned channel is already closed.
func (eb *EventBroadcaster) Subscribe() chan Event {
	eb.mu.Lock()
	defer eb.mu.Unlock()

	ch := make(chan Event, 10)
	if eb.closed {
		close(ch)
		return ch
	}
	eb.clients[ch] = true

	if eb.lastEvent != nil {
		ch <- *eb.lastEvent
	}

	slog.Debug("SSE client subscribed", "total_clients", len(eb.clients))
	return ch
}

// Unsubscribe removes a client and closes its channel.
func (eb *EventBroadcaster) Unsubscribe(ch chan Event) {
	eb.mu.Lock()
	defer eb.mu.Unlock()

	if eb.clients[ch] {
		delete(eb.clients, ch)
		close(ch)
	}
	slog.Debug("SSE client unsubscribed")
}

// Broadcast sends event to every client without blocking.
func (eb *EventBroadcaster) Broadcast(event Event) {
	eb.mu.Lock()
	defer eb.mu.Unlock()

	if eb.closed {
		return
	}
	eb.lastEvent = &event

	for ch := range eb.clients {
		select {
		case ch <- event:
		default:
			slog.Warn("SSE channel full, skipping event", "type", event.Type)
		}
	}
}

// Close disconnects every client.
func (eb *EventBroadcaster) Close() {
	eb.mu.Lock()
	defer eb.mu.Unlock()

	for ch := range eb.clients {
		close(ch)
	}
	eb.clients = make(map[chan Event]bool)
	eb.closed = true
}

// handleEvents handles GET /api/v1/events
func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "SSE not supported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	eventChan := s.events.Subscribe()
	defer s.events.Unsubscribe(eventChan)

	fmt.Fprintf(w, ": connected\n\n")
	flusher.Flush()

	pingTicker := time.NewTicker(30 * time.Second)
	defer pingTicker.Stop()

	ctx := r.Context()
	for {
		select {
		case <-ctx.Done():
			slog.Debug("SSE client disconnected")
			return

		case event, ok := <-eventChan:
			if !ok {
				return
			}
			if err := writeSSEEvent(w, event); err != nil {
				slog.Error("Failed to write SSE event", "error", err)
				return
			}
			flusher.Flush()

		case <-pingTicker.C:
			fmt.Fprintf(w, ": ping\n\n")
			flusher.Flush()
		}
	}
}

// writeSSEEvent writes an event in SSE format
func writeSSEEvent(w http.ResponseWriter, event Event) error {
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	_, err = fmt.Fprintf(w, "event: %s\ndata: %s\n\n", event.Type, data)
	return err
}
