package socket

import (
	"encoding/json"
	"meditrust/pkg/logger"
	"meditrust/pkg/wallet"
	"sync"

	"github.com/gorilla/websocket"
)

const (
	ConnectedType     = "CONNECTED"      // Sent to a client right after it joins
	RecordCreatedType = "RECORD_CREATED" // A record was uploaded by the room's owner
	AccessGrantedType = "ACCESS_GRANTED" // Access to a record was granted
	AccessRevokedType = "ACCESS_REVOKED" // Access to a record was revoked
)

type Event struct {
	Type    string          `json:"type"`
	Address string          `json:"address"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// Hub fans events out to every connection of a wallet address. Each address
// has its own room.
type Hub struct {
	Rooms      map[string]map[*Client]bool
	Broadcast  chan Event
	Register   chan *Client
	Unregister chan *Client
	mu         sync.Mutex
}

type Client struct {
	ID      string
	Hub     *Hub
	Conn    *websocket.Conn
	Address string
	Send    chan []byte
}

func NewHub() *Hub {
	return &Hub{
		Rooms:      make(map[string]map[*Client]bool),
		Broadcast:  make(chan Event, 256),
		Register:   make(chan *Client),
		Unregister: make(chan *Client),
	}
}

func (h *Hub) Run() {
	for {
		select {
		case client := <-h.Register:
			h.mu.Lock()
			if h.Rooms[client.Address] == nil {
				h.Rooms[client.Address] = make(map[*Client]bool)
			}
			h.Rooms[client.Address][client] = true
			h.mu.Unlock()

			payload, _ := json.Marshal(map[string]string{"client_id": client.ID})
			hello, _ := json.Marshal(Event{Type: ConnectedType, Address: client.Address, Payload: payload})
			client.Send <- hello
			logger.Sugar.Infof("Client %s connected for %s", client.ID, wallet.Short(client.Address))

		case client := <-h.Unregister:
			h.removeClient(client)

		case ev := <-h.Broadcast:
			payload, err := json.Marshal(ev)
			if err != nil {
				logger.Sugar.Errorf("Error marshalling event: %v", err)
				continue
			}

			h.mu.Lock()
			clientsToSend := make([]*Client, 0, len(h.Rooms[ev.Address]))
			for client := range h.Rooms[ev.Address] {
				clientsToSend = append(clientsToSend, client)
			}
			h.mu.Unlock()

			for _, client := range clientsToSend {
				select {
				case client.Send <- payload:
				default:
					logger.Sugar.Warnf("Client %s's send buffer is full. Dropping connection.", client.ID)
					h.removeClient(client)
					client.Conn.Close()
				}
			}
		}
	}
}

// Notify queues an event for every connection of address. It never blocks
// the caller; events are dropped when the hub is saturated.
func (h *Hub) Notify(address, eventType string, payload interface{}) {
	raw, err := json.Marshal(payload)
	if err != nil {
		logger.Sugar.Errorf("Error marshalling %s payload: %v", eventType, err)
		return
	}
	select {
	case h.Broadcast <- Event{Type: eventType, Address: address, Payload: raw}:
	default:
		logger.Sugar.Warnf("Event queue full, dropping %s for %s", eventType, wallet.Short(address))
	}
}

// Connections reports how many sockets are open for address.
func (h *Hub) Connections(address string) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.Rooms[address])
}

func (h *Hub) removeClient(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if _, ok := h.Rooms[client.Address][client]; !ok {
		return
	}
	delete(h.Rooms[client.Address], client)
	close(client.Send)
	if len(h.Rooms[client.Address]) == 0 {
		delete(h.Rooms, client.Address)
	}
	logger.Sugar.Infof("Client %s disconnected", client.ID)
}
