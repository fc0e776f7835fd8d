package realtime

import (
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// Client represents one connected websocket subscriber.
type Client struct {
	hub  *Hub
	conn *websocket.Conn
	send chan Push
	id   string

	userID string // set once authenticated; empty for unauthenticated clients

	subsMu        sync.RWMutex
	subscriptions map[string]bool
}

// IsSubscribed reports whether the client is currently subscribed to
// topic.
func (c *Client) IsSubscribed(topic string) bool {
	c.subsMu.RLock()
	defer c.subsMu.RUnlock()
	return c.subscriptions[topic]
}

func (c *Client) subscribe(topic string) {
	c.subsMu.Lock()
	c.subscriptions[topic] = true
	c.subsMu.Unlock()

	if c.hub.snapshots != nil {
		if push, ok := c.hub.snapshots(topic); ok {
			select {
			case c.send <- push:
			default:
			}
		}
	}
}

func (c *Client) unsubscribe(topic string) {
	c.subsMu.Lock()
	delete(c.subscriptions, topic)
	c.subsMu.Unlock()
}

// privateTopicPrefixes names topics that require a validated bearer
// token before the subscription is honored.
var privateTopicPrefixes = []string{"orders:", "account:"}

func isPrivateTopic(topic string) bool {
	for _, p := range privateTopicPrefixes {
		if strings.HasPrefix(topic, p) {
			return true
		}
	}
	return false
}

func (c *Client) readPump() {
	defer func() {
		c.hub.unregister <- c
		c.conn.Close()
	}()

	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		var req Request
		if err := c.conn.ReadJSON(&req); err != nil {
			return
		}
		c.handleRequest(req)
	}
}

func (c *Client) handleRequest(req Request) {
	switch req.Method {
	case MethodSubscribeKLineData, MethodSubscribePriceData, MethodSubscribeOrderBook,
		MethodSubscribeTicker, MethodSubscribeTrades:
		for _, topic := range req.Topics {
			if isPrivateTopic(topic) && c.userID == "" {
				c.sendError(req.ID, "authentication required for topic "+topic)
				continue
			}
			c.subscribe(topic)
		}
		c.sendAck(req.ID)

	case MethodUnsubscribeKLineData, MethodUnsubscribePriceData, MethodUnsubscribeOrderBook,
		MethodUnsubscribeTicker, MethodUnsubscribeTrades:
		for _, topic := range req.Topics {
			c.unsubscribe(topic)
		}
		c.sendAck(req.ID)

	case "Authenticate":
		if len(req.Topics) != 1 || c.hub.auth == nil {
			c.sendError(req.ID, "authentication unavailable")
			return
		}
		userID, ok := c.hub.auth(req.Topics[0])
		if !ok {
			c.sendError(req.ID, "invalid token")
			return
		}
		c.userID = userID
		c.sendAck(req.ID)

	default:
		c.sendError(req.ID, "unknown method: "+req.Method)
	}
}

func (c *Client) sendAck(id string) {
	select {
	case c.send <- Push{Event: EventAck, Data: id}:
	default:
	}
}

func (c *Client) sendError(id, detail string) {
	select {
	case c.send <- Push{Event: EventError, Data: map[string]string{"id": id, "error": detail}}:
	default:
	}
}

func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case push, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteJSON(push); err != nil {
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
