package room

import (
	"encoding/json"
	"log"
	"sync"
)

type Role string

const (
	RolePlayer    Role = "player"
	RoleOrganizer Role = "organizer"
	RoleSpectator Role = "spectator"
)

// Client is one attached full-duplex channel. The transport layer drains Send
// into the underlying connection; everything above it only ever queues bytes.
type Client struct {
	ID   string
	Role Role
	Send chan []byte

	mu     sync.Mutex
	closed bool
}

func NewClient(id string, role Role) *Client {
	return &Client{
		ID:   id,
		Role: role,
		Send: make(chan []byte, 256),
	}
}

// Push queues a message without ever blocking the caller. A full send buffer
// means the reader is gone or hopelessly behind; report failure so the room
// can prune the connection.
func (c *Client) Push(data []byte) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return false
	}
	select {
	case c.Send <- data:
		return true
	default:
		return false
	}
}

func (c *Client) PushJSON(payload any) bool {
	data, err := json.Marshal(payload)
	if err != nil {
		log.Printf("Error marshaling message for client %s: %v", c.ID, err)
		return true
	}
	return c.Push(data)
}

// Close shuts the send channel, letting the write pump drain whatever is
// already queued and then exit. Safe to call more than once.
func (c *Client) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.closed {
		c.closed = true
		close(c.Send)
	}
}
