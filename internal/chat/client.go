// Package chat speaks the push channel used by the chat view: a single shared
// room where every "chatMessage" event goes to every connected client.
package chat

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"lmsportal/internal/metrics"
	"lmsportal/internal/model"
)

// EventChatMessage is the only event name on the channel, both ways.
const EventChatMessage = "chatMessage"

const writeWait = 10 * time.Second

// Envelope is one frame on the wire.
type Envelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
}

// ErrClosed is returned by Send after Close or after the connection dropped.
var ErrClosed = errors.New("chat: connection closed")

// Transport is the push channel as the room sees it.
type Transport interface {
	Subscribe() <-chan model.ChatMessage
	Send(ctx context.Context, msg model.ChatMessage) error
	Close() error
}

// Client is a websocket connection to the push channel.
type Client struct {
	conn    *websocket.Conn
	inbound chan model.ChatMessage
	done    chan struct{}

	writeMu   sync.Mutex
	closeOnce sync.Once
}

// Dial connects to the channel at url (ws:// or wss://).
func Dial(ctx context.Context, url string, header http.Header) (*Client, error) {
	conn, resp, err := websocket.DefaultDialer.DialContext(ctx, url, header)
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("chat: dial %s: %s: %w", url, resp.Status, err)
		}
		return nil, fmt.Errorf("chat: dial %s: %w", url, err)
	}
	return newClient(conn), nil
}

func newClient(conn *websocket.Conn) *Client {
	c := &Client{
		conn:    conn,
		inbound: make(chan model.ChatMessage, 64),
		done:    make(chan struct{}),
	}
	go c.readLoop()
	return c
}

// readLoop delivers inbound chat messages in arrival order. A dropped
// connection closes the subscription; nothing reconnects.
func (c *Client) readLoop() {
	defer close(c.inbound)
	for {
		var env Envelope
		if err := c.conn.ReadJSON(&env); err != nil {
			return
		}
		if env.Event != EventChatMessage {
			continue
		}
		var msg model.ChatMessage
		if err := json.Unmarshal(env.Data, &msg); err != nil {
			continue
		}
		metrics.ChatMessages.WithLabelValues("in").Inc()
		select {
		case c.inbound <- msg:
		case <-c.done:
			return
		}
	}
}

// Subscribe returns the inbound messages. The channel closes when the
// connection ends.
func (c *Client) Subscribe() <-chan model.ChatMessage {
	return c.inbound
}

// Send publishes msg as a chatMessage event.
func (c *Client) Send(ctx context.Context, msg model.ChatMessage) error {
	select {
	case <-c.done:
		return ErrClosed
	default:
	}
	frame, err := Encode(msg)
	if err != nil {
		return err
	}

	deadline := time.Now().Add(writeWait)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	_ = c.conn.SetWriteDeadline(deadline)
	if err := c.conn.WriteJSON(frame); err != nil {
		return fmt.Errorf("chat: send: %w", err)
	}
	metrics.ChatMessages.WithLabelValues("out").Inc()
	return nil
}

// Close tears the connection down.
func (c *Client) Close() error {
	var err error
	c.closeOnce.Do(func() {
		close(c.done)
		c.writeMu.Lock()
		_ = c.conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(time.Second))
		c.writeMu.Unlock()
		err = c.conn.Close()
	})
	return err
}

// Encode wraps msg in a chatMessage envelope.
func Encode(msg model.ChatMessage) (Envelope, error) {
	data, err := json.Marshal(msg)
	if err != nil {
		return Envelope{}, fmt.Errorf("chat: encode: %w", err)
	}
	return Envelope{Event: EventChatMessage, Data: data}, nil
}
