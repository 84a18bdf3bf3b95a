package server

import (
	"encoding/json"
	"net/http"
	"time"

	"volume-observer/src/models"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
)

// -----------------------------------------------------------------------------
// Hub Pattern Implementation
// -----------------------------------------------------------------------------

// handleWebsockets is the main Hub loop
func (s *FastAPIServer) handleWebsockets() {
	for {
		select {
		case <-s.done:
			for client := range s.clients {
				s.dropClient(client)
			}
			return

		case client := <-s.register:
			s.stateMutex.Lock()
			s.clients[client] = struct{}{}
			s.stateMutex.Unlock()
			// Send initial state on connect
			client.send <- s.snapshot(nil)

		case client := <-s.unregister:
			s.dropClient(client)

		case message := <-s.broadcast:
			for client := range s.clients {
				if !client.follows(message.Symbol) {
					continue
				}
				select {
				case client.send <- message:
				default:
					// Client too slow, disconnect to prevent Hub blocking
					s.dropClient(client)
				}
			}
		}
	}
}

func (s *FastAPIServer) dropClient(client *Client) {
	s.stateMutex.Lock()
	defer s.stateMutex.Unlock()
	if _, ok := s.clients[client]; ok {
		delete(s.clients, client)
		close(client.send)
	}
}

// -----------------------------------------------------------------------------
// Data Exchange Interface Implementation
// -----------------------------------------------------------------------------

// Broadcast records a fit progress event and queues it for websocket
// clients. Estimators call it once per iteration, so it never blocks: when
// the queue is full the event is kept in the snapshot but not streamed.
func (s *FastAPIServer) Broadcast(message interface{}) {
	var event models.MFitProgress
	switch m := message.(type) {
	case models.MFitProgress:
		event = m
	case *models.MFitProgress:
		if m == nil {
			return
		}
		event = *m
	default:
		s.Logger.Info("Broadcast expected MFitProgress, got %T", message)
		return
	}
	event = jsonSafeProgress(event)

	s.stateMutex.Lock()
	s.latest[event.Symbol] = event
	s.latestStamp = time.Now().Unix()
	s.stateMutex.Unlock()

	select {
	case s.broadcast <- event:
	default:
		s.Logger.Debug("Progress queue full, dropping %s iteration %d", event.Symbol, event.Iteration)
	}
}

// -----------------------------------------------------------------------------
// Helper Methods
// -----------------------------------------------------------------------------

// snapshot returns the latest progress of the given symbols, or of all
// symbols when the list is empty.
func (s *FastAPIServer) snapshot(symbols []string) *models.MProgressSnapshot {
	s.stateMutex.RLock()
	defer s.stateMutex.RUnlock()

	out := &models.MProgressSnapshot{
		Type:      "INITIAL",
		Progress:  make(map[string]models.MFitProgress),
		Timestamp: s.latestStamp,
	}
	for sym, p := range s.latest {
		if len(symbols) == 0 || contains(symbols, sym) {
			out.Progress[sym] = p
		}
	}
	return out
}

// -----------------------------------------------------------------------------
// WebSocket Handlers
// -----------------------------------------------------------------------------

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// -----------------------------------------------------------------------------

func (s *FastAPIServer) handleWebSocket(c *gin.Context) {
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		s.Logger.Info("Failed to upgrade websocket: %v", err)
		return
	}

	client := &Client{
		hub:  s,
		conn: conn,
		// Buffered channel to prevent blocking the Hub loop
		send: make(chan interface{}, 256),
	}

	select {
	case s.register <- client:
	case <-s.done:
		conn.Close()
		return
	}

	go client.writePump()
	go client.readPump()
}

// -----------------------------------------------------------------------------
// Client Message Handling
// -----------------------------------------------------------------------------

func (s *FastAPIServer) HandleClientMessage(client *Client, message []byte) {
	var cmd models.MSubscribeCommand
	if err := json.Unmarshal(message, &cmd); err != nil {
		s.Logger.Info("Failed to parse client command: %v, disconnecting client", err)
		client.conn.Close()
		return
	}

	if cmd.Command != "subscribe" {
		return
	}
	client.subscribe(cmd.Symbols)

	// Replay what the client missed for the symbols it now follows.
	// The read lock keeps the hub from closing client.send meanwhile.
	snap := s.snapshot(cmd.Symbols)
	s.stateMutex.RLock()
	defer s.stateMutex.RUnlock()
	if _, ok := s.clients[client]; !ok {
		return
	}
	select {
	case client.send <- snap:
	default:
	}
}
