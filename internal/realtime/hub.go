package realtime

import (
	"encoding/json"
	"log"
	"sync"
	"time"

	"github.com/Kaungwintshein/queue-management-system-api-sub001/internal/notify"
)

type Client struct {
	ID           string
	Send         chan []byte
	Subscription notify.Scope
}

// Hub fans engine events out to subscribed socket clients. It implements
// notify.Notifier; sends are buffered and dropped rather than blocking a
// state transition on a slow display.
type Hub struct {
	mu      sync.RWMutex
	clients map[string]*Client
}

type SubscribeMessage struct {
	Action    string `json:"action"`
	CounterID string `json:"counter_id"`
	Role      string `json:"role"`
}

type Envelope struct {
	Event     string      `json:"event"`
	Payload   interface{} `json:"payload"`
	CreatedAt time.Time   `json:"created_at"`
}

func NewHub() *Hub {
	return &Hub{clients: make(map[string]*Client)}
}

func (h *Hub) Register(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.clients[client.ID] = client
}

func (h *Hub) Unregister(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.clients[client.ID]; !ok {
		return
	}
	delete(h.clients, client.ID)
	close(client.Send)
}

func (h *Hub) UpdateSubscription(client *Client, sub notify.Scope) {
	h.mu.Lock()
	defer h.mu.Unlock()
	client.Subscription = sub
}

func (h *Hub) Publish(scope notify.Scope, event string, payload interface{}) {
	data, err := json.Marshal(Envelope{Event: event, Payload: payload, CreatedAt: time.Now().UTC()})
	if err != nil {
		log.Printf("realtime marshal error event=%s: %v", event, err)
		return
	}
	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, client := range h.clients {
		if !notify.Match(client.Subscription, scope) {
			continue
		}
		select {
		case client.Send <- data:
		default:
			log.Printf("drop message for client %s", client.ID)
		}
	}
}

func ParseSubscribe(data []byte) (SubscribeMessage, bool) {
	var msg SubscribeMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return SubscribeMessage{}, false
	}
	if msg.Action != "subscribe" && msg.Action != "unsubscribe" {
		return SubscribeMessage{}, false
	}
	return msg, true
}
