package websocket

import "github.com/rs/zerolog/log"

type publication struct {
	topic   string
	message []byte
}

// Hub maintains the set of active clients and routes messages to the
// clients subscribed to a topic. All map access happens on the Run goroutine.
type Hub struct {
	// Registered clients.
	clients map[*Client]bool

	// Register requests from the clients.
	Register chan *Client

	// Unregister requests from clients.
	Unregister chan *Client

	// Messages for the subscribers of one topic.
	publish chan publication

	// A map of topics (user IDs) to the clients subscribed to them.
	subscriptions map[string]map[*Client]bool

	done chan struct{}
}

// NewHub creates a new Hub.
func NewHub() *Hub {
	return &Hub{
		Register:      make(chan *Client),
		Unregister:    make(chan *Client),
		publish:       make(chan publication, 64),
		clients:       make(map[*Client]bool),
		subscriptions: make(map[string]map[*Client]bool),
		done:          make(chan struct{}),
	}
}

// Run starts the Hub's message processing loop. It returns after Stop.
func (h *Hub) Run() {
	for {
		select {
		case <-h.done:
			for client := range h.clients {
				h.drop(client)
			}
			return
		case client := <-h.Register:
			h.clients[client] = true
			log.Debug().Int("total_clients", len(h.clients)).Str("topic", client.Topic).Msg("Client connected")
			if client.Topic != "" {
				h.addSubscription(client, client.Topic)
			}
		case client := <-h.Unregister:
			if _, ok := h.clients[client]; ok {
				h.drop(client)
				log.Debug().Int("total_clients", len(h.clients)).Msg("Client disconnected")
			}
		case p := <-h.publish:
			for client := range h.subscriptions[p.topic] {
				select {
				case client.Send <- p.message:
				default:
					// Slow consumer; cut it loose rather than block everyone else.
					h.drop(client)
				}
			}
		}
	}
}

// Stop ends the Run loop and closes every client's send channel.
func (h *Hub) Stop() {
	close(h.done)
}

// Join registers client with the running hub. It reports false once the
// hub has stopped.
func (h *Hub) Join(client *Client) bool {
	if h.stopped() {
		return false
	}
	select {
	case h.Register <- client:
		return true
	case <-h.done:
		return false
	}
}

// Leave unregisters client. After Stop it returns immediately.
func (h *Hub) Leave(client *Client) {
	if h.stopped() {
		return
	}
	select {
	case h.Unregister <- client:
	case <-h.done:
	}
}

func (h *Hub) stopped() bool {
	select {
	case <-h.done:
		return true
	default:
		return false
	}
}

// BroadcastTo queues a message for every client subscribed to topic.
// It never blocks; when the queue is full the message is dropped.
func (h *Hub) BroadcastTo(topic string, message []byte) {
	if h == nil {
		return
	}
	select {
	case h.publish <- publication{topic: topic, message: message}:
	default:
		log.Warn().Str("topic", topic).Msg("Hub publish queue full, dropping message")
	}
}

func (h *Hub) drop(client *Client) {
	if _, ok := h.clients[client]; !ok {
		return
	}
	delete(h.clients, client)
	close(client.Send)
	h.removeSubscription(client)
}

func (h *Hub) addSubscription(client *Client, topic string) {
	if h.subscriptions[topic] == nil {
		h.subscriptions[topic] = make(map[*Client]bool)
	}
	h.subscriptions[topic][client] = true
}

func (h *Hub) removeSubscription(client *Client) {
	for topic, subs := range h.subscriptions {
		if _, ok := subs[client]; ok {
			delete(subs, client)
			if len(subs) == 0 {
				delete(h.subscriptions, topic)
			}
		}
	}
}
