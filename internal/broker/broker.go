package broker

import (
	"encoding/json"
	"log"
	"net/http"
	"sync"

	"community-realtime/internal/realtime"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

const (
	sendBuffer = 256
	readLimit  = 1 << 20
)

type Broker struct {
	logger *log.Logger

	// CheckOrigin is passed to the websocket upgrader; nil allows any origin.
	CheckOrigin func(r *http.Request) bool

	mu     sync.RWMutex
	topics map[string]map[*Client]struct{}
	conns  map[*Client]struct{}
}

func NewBroker(logger *log.Logger) *Broker {
	if logger == nil {
		logger = log.Default()
	}
	return &Broker{
		logger: logger,
		topics: make(map[string]map[*Client]struct{}),
		conns:  make(map[*Client]struct{}),
	}
}

type Client struct {
	id   string
	conn *websocket.Conn
	send chan []byte

	mu     sync.Mutex
	subs   map[string]struct{}
	closed bool
}

func (b *Broker) ServeWS(w http.ResponseWriter, r *http.Request) {
	checkOrigin := b.CheckOrigin
	if checkOrigin == nil {
		checkOrigin = func(*http.Request) bool { return true }
	}
	upgrader := websocket.Upgrader{CheckOrigin: checkOrigin}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		b.logger.Printf("[broker] upgrade ws failed: %v", err)
		return
	}

	c := &Client{
		id:   uuid.NewString(),
		conn: conn,
		send: make(chan []byte, sendBuffer),
		subs: make(map[string]struct{}),
	}
	conn.SetReadLimit(readLimit)

	topics := r.URL.Query()["event"]
	if len(topics) == 0 {
		topics = []string{TopicAll}
	}
	for _, t := range topics {
		if t != "" {
			b.subscribe(c, t)
		}
	}

	// counted only once subscribed, so ClientCount implies routable
	b.mu.Lock()
	b.conns[c] = struct{}{}
	b.mu.Unlock()
	b.logger.Printf("[broker] client %s connected from %s topics=%v", c.id, r.RemoteAddr, topics)

	go b.writeLoop(c)
	b.readLoop(c)
}

func (b *Broker) readLoop(c *Client) {
	defer func() {
		b.removeClient(c)
		_ = c.conn.Close()
		c.close()
		b.logger.Printf("[broker] client %s disconnected", c.id)
	}()

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			return
		}

		var msg ClientMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			b.sendControl(c, "error", "invalid json")
			continue
		}

		switch msg.Type {
		case "subscribe":
			if msg.Topic == "" {
				b.sendControl(c, "error", "missing topic")
				continue
			}
			b.subscribe(c, msg.Topic)
			b.sendControl(c, "ack", "subscribed "+msg.Topic)

		case "unsubscribe":
			if msg.Topic == "" {
				b.sendControl(c, "error", "missing topic")
				continue
			}
			b.unsubscribe(c, msg.Topic)
			b.sendControl(c, "ack", "unsubscribed "+msg.Topic)

		case "publish":
			if len(msg.Update) == 0 {
				b.sendControl(c, "error", "missing update")
				continue
			}
			u, err := realtime.DecodeUpdate(msg.Update)
			if err != nil {
				b.sendControl(c, "error", err.Error())
				continue
			}
			b.Publish(u)

		default:
			b.sendControl(c, "error", "unknown type")
		}
	}
}

func (b *Broker) writeLoop(c *Client) {
	for data := range c.send {
		if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
			return
		}
	}
}

// Publish fans u out to the subscribers of its event and of TopicAll.
// It returns the number of clients the update was queued for.
func (b *Broker) Publish(u *realtime.Update) int {
	data, err := json.Marshal(u)
	if err != nil {
		b.logger.Printf("[broker] marshal update failed: %v", err)
		return 0
	}

	b.mu.RLock()
	// copy the target set so nothing is sent while holding the lock;
	// a client subscribed to both topics is only sent once
	seen := make(map[*Client]struct{})
	targets := make([]*Client, 0)
	for _, topic := range []string{u.EventID, TopicAll} {
		for c := range b.topics[topic] {
			if _, ok := seen[c]; ok {
				continue
			}
			seen[c] = struct{}{}
			targets = append(targets, c)
		}
	}
	b.mu.RUnlock()

	n := 0
	for _, c := range targets {
		if c.trySend(data) {
			n++
			continue
		}
		// slow consumer: disconnect rather than let it stall the broker
		b.logger.Printf("[broker] client %s too slow, disconnecting", c.id)
		_ = c.conn.Close()
	}
	return n
}

func (b *Broker) ClientCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.conns)
}

// CloseClients drops every websocket connection. http.Server.Close does not
// reach hijacked connections, so shutdown calls this explicitly.
func (b *Broker) CloseClients() int {
	b.mu.RLock()
	clients := make([]*Client, 0, len(b.conns))
	for c := range b.conns {
		clients = append(clients, c)
	}
	b.mu.RUnlock()

	for _, c := range clients {
		_ = c.conn.Close()
	}
	return len(clients)
}

func (b *Broker) subscribe(c *Client, topic string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if _, ok := b.topics[topic]; !ok {
		b.topics[topic] = make(map[*Client]struct{})
	}
	b.topics[topic][c] = struct{}{}

	c.mu.Lock()
	c.subs[topic] = struct{}{}
	c.mu.Unlock()
}

func (b *Broker) unsubscribe(c *Client, topic string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if subs, ok := b.topics[topic]; ok {
		delete(subs, c)
		if len(subs) == 0 {
			delete(b.topics, topic)
		}
	}

	c.mu.Lock()
	delete(c.subs, topic)
	c.mu.Unlock()
}

func (b *Broker) removeClient(c *Client) {
	c.mu.Lock()
	topics := make([]string, 0, len(c.subs))
	for t := range c.subs {
		topics = append(topics, t)
	}
	c.mu.Unlock()

	for _, t := range topics {
		b.unsubscribe(c, t)
	}

	b.mu.Lock()
	delete(b.conns, c)
	b.mu.Unlock()
}

func (b *Broker) sendControl(c *Client, typ, message string) {
	data, _ := json.Marshal(ServerMessage{Type: typ, Message: message})
	if !c.trySend(data) {
		_ = c.conn.Close()
	}
}

func (c *Client) trySend(data []byte) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return false
	}
	select {
	case c.send <- data:
		return true
	default:
		return false
	}
}

func (c *Client) close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.closed {
		c.closed = true
		close(c.send)
	}
}
