// Package channel maintains the long-lived push connection to the
// backend's /ws endpoint: per-topic subscriptions, best-effort
// publishing, and automatic reconnection with resubscription.
//
// Delivery is at-most-once and duplicates are possible across a
// reconnect boundary, so handlers must be idempotent. Messages on one
// topic are dispatched in arrival order; there is no ordering across
// topics.
package channel

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/example/ride-client/internal/observability"
)

// Handler is invoked once per inbound message on a subscribed topic.
// It runs on the channel's read goroutine; handlers must not block.
type Handler func(payload []byte)

// frame is the JSON envelope exchanged with the push endpoint.
type frame struct {
	Type        string `json:"type"` // SUBSCRIBE, UNSUBSCRIBE, SEND, MESSAGE
	Destination string `json:"destination"`
	Body        string `json:"body,omitempty"`
}

// Channel is an explicitly owned connection: the controller that needs
// push events creates one, injects it, and deactivates it on teardown.
type Channel struct {
	url    string
	delay  time.Duration
	header http.Header
	dialer *websocket.Dialer
	log    *slog.Logger

	mu        sync.Mutex
	conn      *websocket.Conn
	connected bool
	closed    bool
	subs      map[string]Handler

	wg sync.WaitGroup
}

func New(url string, reconnectDelay time.Duration, log *slog.Logger) *Channel {
	return &Channel{
		url:    url,
		delay:  reconnectDelay,
		header: http.Header{},
		dialer: &websocket.Dialer{HandshakeTimeout: 10 * time.Second},
		log:    log,
		subs:   make(map[string]Handler),
	}
}

// SetCookie attaches the authenticated session cookie to the
// websocket handshake.
func (c *Channel) SetCookie(cookie string) {
	if cookie != "" {
		c.header.Set("Cookie", cookie)
	}
}

// Activate dials the endpoint, replays any registered subscriptions
// and starts the read loop. It returns an error only when the first
// dial fails; later connection loss is retried internally.
func (c *Channel) Activate() error {
	conn, _, err := c.dialer.Dial(c.url, c.header)
	if err != nil {
		return fmt.Errorf("channel: dial %s: %w", c.url, err)
	}

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		conn.Close()
		return fmt.Errorf("channel: already deactivated")
	}
	c.conn = conn
	c.connected = true
	for topic := range c.subs {
		c.writeLocked(frame{Type: "SUBSCRIBE", Destination: topic})
	}
	c.mu.Unlock()

	c.wg.Add(1)
	go c.readLoop(conn)
	return nil
}

// Subscribe registers a handler for a topic. Safe to call before or
// after Activate; the subscription survives reconnects.
func (c *Channel) Subscribe(topic string, h Handler) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.subs[topic] = h
	if c.connected {
		c.writeLocked(frame{Type: "SUBSCRIBE", Destination: topic})
	}
}

// Unsubscribe drops the handler for a topic.
func (c *Channel) Unsubscribe(topic string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.subs, topic)
	if c.connected {
		c.writeLocked(frame{Type: "UNSUBSCRIBE", Destination: topic})
	}
}

// Publish sends a message toward the backend. While disconnected the
// message is dropped with a warning, not queued.
func (c *Channel) Publish(destination string, v any) error {
	body, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("channel: encode publish body: %w", err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.connected {
		observability.PublishDropped.Inc()
		c.log.Warn("channel not connected, dropping publish", "destination", destination)
		return nil
	}
	return c.writeLocked(frame{Type: "SEND", Destination: destination, Body: string(body)})
}

// Deactivate performs scoped teardown: drops all subscriptions and
// closes the connection. Idempotent; no handler runs after it returns.
func (c *Channel) Deactivate() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	c.connected = false
	c.subs = make(map[string]Handler)
	conn := c.conn
	c.conn = nil
	c.mu.Unlock()

	if conn != nil {
		_ = conn.Close()
	}
	c.wg.Wait()
}

func (c *Channel) writeLocked(f frame) error {
	if c.conn == nil {
		return nil
	}
	if err := c.conn.WriteJSON(f); err != nil {
		c.log.Warn("channel write failed", "type", f.Type, "destination", f.Destination, "err", err)
		return err
	}
	return nil
}

func (c *Channel) readLoop(conn *websocket.Conn) {
	defer c.wg.Done()
	for {
		var f frame
		if err := conn.ReadJSON(&f); err != nil {
			c.mu.Lock()
			closed := c.closed
			c.connected = false
			c.mu.Unlock()
			if closed {
				return
			}
			c.log.Warn("channel connection lost, reconnecting", "err", err, "delay", c.delay)
			conn = c.reconnect()
			if conn == nil {
				return
			}
			continue
		}
		c.dispatch(f)
	}
}

// reconnect retries with a fixed backoff until the dial succeeds or
// the channel is deactivated, then replays all subscriptions.
func (c *Channel) reconnect() *websocket.Conn {
	for {
		time.Sleep(c.delay)

		c.mu.Lock()
		if c.closed {
			c.mu.Unlock()
			return nil
		}
		c.mu.Unlock()

		observability.Reconnects.Inc()
		conn, _, err := c.dialer.Dial(c.url, c.header)
		if err != nil {
			c.log.Warn("channel redial failed", "err", err)
			continue
		}

		c.mu.Lock()
		if c.closed {
			c.mu.Unlock()
			conn.Close()
			return nil
		}
		c.conn = conn
		c.connected = true
		for topic := range c.subs {
			c.writeLocked(frame{Type: "SUBSCRIBE", Destination: topic})
		}
		c.mu.Unlock()

		c.log.Info("channel reconnected", "url", c.url)
		return conn
	}
}

func (c *Channel) dispatch(f frame) {
	if f.Type != "MESSAGE" {
		return
	}
	c.mu.Lock()
	h, ok := c.subs[f.Destination]
	c.mu.Unlock()
	if !ok {
		c.log.Debug("message for unsubscribed topic", "topic", f.Destination)
		return
	}
	observability.MessagesConsumed.WithLabelValues(f.Destination).Inc()
	h([]byte(f.Body))
}
