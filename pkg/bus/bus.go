package bus

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	log "log/slog"
	"sync"
	"time"

	ws "github.com/gorilla/websocket"
)

const Broadcast = "ALL"

type Message struct {
	From    string          `json:"from"`
	To      string          `json:"to"`
	Kind    string          `json:"kind"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

func NewMessage(to, kind string, payload any) (Message, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return Message{}, fmt.Errorf("marshal %s payload: %w", kind, err)
	}
	return Message{To: to, Kind: kind, Payload: raw}, nil
}

type Config struct {
	Shard     string
	URL       string
	Reconnect time.Duration
	OnMessage func(Message)
}

// Client is a hub connection that redials on close. Writes are safe from
// multiple goroutines; Run must be called from exactly one.
type Client struct {
	shard     string
	url       string
	reconnect time.Duration
	onMessage func(Message)

	mu   sync.Mutex
	conn *ws.Conn
}

func Dial(ctx context.Context, cfg Config) (*Client, error) {
	if cfg.Shard == "" {
		return nil, errors.New("empty shard name")
	}
	if cfg.Reconnect <= 0 {
		cfg.Reconnect = time.Second
	}

	log.Debug("Dialing hub", "url", cfg.URL)
	conn, _, err := ws.DefaultDialer.DialContext(ctx, cfg.URL, nil)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", cfg.URL, err)
	}

	return &Client{
		shard:     cfg.Shard,
		url:       cfg.URL,
		reconnect: cfg.Reconnect,
		onMessage: cfg.OnMessage,
		conn:      conn,
	}, nil
}

func (c *Client) Publish(m Message) error {
	m.From = c.shard
	data, err := json.Marshal(m)
	if err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn == nil {
		return errors.New("hub connection closed")
	}
	log.Debug("Write hub", "msg", string(data))
	return c.conn.WriteMessage(ws.TextMessage, data)
}

// Run reads until ctx is done, redialing whenever the hub drops the
// connection. Messages for other shards are skipped.
func (c *Client) Run(ctx context.Context) {
	for ctx.Err() == nil {
		conn := c.current()
		if conn == nil {
			return
		}

		_, data, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() != nil || c.current() == nil {
				return
			}
			if isClosed(err) {
				log.Warn("Hub closed, reconnecting", "url", c.url)
				if !c.redial(ctx) {
					return
				}
				log.Info("Reconnected to hub")
				continue
			}
			log.Error("Failed to read hub", "err", err)
			if !c.redial(ctx) {
				return
			}
			continue
		}

		var m Message
		if err := json.Unmarshal(data, &m); err != nil {
			log.Warn("Failed to parse hub message", "msg", string(data), "err", err)
			continue
		}
		if m.To != c.shard && m.To != Broadcast {
			continue
		}
		if c.onMessage != nil {
			c.onMessage(m)
		}
	}
}

func (c *Client) current() *ws.Conn {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn
}

func (c *Client) redial(ctx context.Context) bool {
	for {
		conn, _, err := ws.DefaultDialer.DialContext(ctx, c.url, nil)
		if err == nil {
			c.mu.Lock()
			if c.conn == nil {
				c.mu.Unlock()
				conn.Close()
				return false
			}
			c.conn.Close()
			c.conn = conn
			c.mu.Unlock()
			return true
		}

		select {
		case <-ctx.Done():
			return false
		case <-time.After(c.reconnect):
		}
	}
}

func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn == nil {
		return nil
	}
	err := c.conn.Close()
	c.conn = nil
	return err
}

func isClosed(err error) bool {
	return ws.IsCloseError(err,
		ws.CloseNormalClosure,
		ws.CloseGoingAway,
		ws.CloseAbnormalClosure)
}
