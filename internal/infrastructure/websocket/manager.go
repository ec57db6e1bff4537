package websocket

import (
	"context"
	"log"
	"sync"

	"github.com/gorilla/websocket"
)

// Client is one live WebSocket connection. A user may hold several at once;
// each carries its own subscriptions and send queue.
type Client struct {
	UserID string
	Conn   *websocket.Conn
	Send   chan []byte

	mu     sync.Mutex
	closed bool
}

func NewClient(userID string, conn *websocket.Conn) *Client {
	return &Client{
		UserID: userID,
		Conn:   conn,
		Send:   make(chan []byte, 256),
	}
}

// Queue enqueues a frame without ever blocking the caller. Frames queued to a
// closed client are discarded; a client whose queue is full is considered too
// slow and has the frame dropped.
func (c *Client) Queue(message []byte) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return
	}
	select {
	case c.Send <- message:
	default:
		log.Printf("WebSocket: Dropping frame for slow client %s", c.UserID)
	}
}

func (c *Client) closeSend() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.closed {
		c.closed = true
		close(c.Send)
	}
}

// WritePump drains the client's send queue onto the wire. It exits when the
// queue is closed and closes the connection behind it.
func (c *Client) WritePump() {
	defer c.Conn.Close()

	for {
		message, ok := <-c.Send
		if !ok {
			c.Conn.WriteMessage(websocket.CloseMessage, []byte{})
			return
		}

		if err := c.Conn.WriteMessage(websocket.TextMessage, message); err != nil {
			log.Printf("WebSocket write error for %s: %v", c.UserID, err)
			return
		}
	}
}

// Manager tracks all active connections so they can be torn down together on
// shutdown.
type Manager struct {
	clients    map[*Client]struct{}
	Register   chan *Client
	Unregister chan *Client
	done       chan struct{}
	mutex      sync.RWMutex
}

func NewManager() *Manager {
	return &Manager{
		clients:    make(map[*Client]struct{}),
		Register:   make(chan *Client),
		Unregister: make(chan *Client),
		done:       make(chan struct{}),
	}
}

// Done is closed once the bookkeeping loop has exited. Senders on Register
// and Unregister must select against it or they block forever after shutdown.
func (m *Manager) Done() <-chan struct{} {
	return m.done
}

// Start runs the manager's bookkeeping loop until ctx is cancelled, then
// closes every remaining client.
func (m *Manager) Start(ctx context.Context) {
	go func() {
		defer close(m.done)
		for {
			select {
			case client := <-m.Register:
				m.mutex.Lock()
				m.clients[client] = struct{}{}
				m.mutex.Unlock()
				log.Printf("Client registered: %s", client.UserID)

			case client := <-m.Unregister:
				m.mutex.Lock()
				if _, ok := m.clients[client]; ok {
					delete(m.clients, client)
					client.closeSend()
				}
				m.mutex.Unlock()
				log.Printf("Client unregistered: %s", client.UserID)

			case <-ctx.Done():
				m.mutex.Lock()
				for client := range m.clients {
					client.closeSend()
					if client.Conn != nil {
						client.Conn.Close()
					}
					delete(m.clients, client)
				}
				m.mutex.Unlock()
				return
			}
		}
	}()
}

// ClientCount reports the number of live connections.
func (m *Manager) ClientCount() int {
	m.mutex.RLock()
	defer m.mutex.RUnlock()
	return len(m.clients)
}
