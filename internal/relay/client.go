package relay

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/coder/websocket"
	"go.uber.org/zap"

	"github.com/ftc-decode/scorer-backend/internal/replicate"
	"github.com/ftc-decode/scorer-backend/internal/wire"
)

// Client is a scorer device's connection to the host. It implements
// replicate.Session: published fields go up as SCORE_UPDATE frames,
// host snapshots come back on Updates.
type Client struct {
	role replicate.Role
	conn *websocket.Conn
	log  *zap.Logger

	updates chan replicate.Update

	mu     sync.Mutex
	closed bool
	cancel context.CancelFunc
}

// Dial connects to the host's websocket endpoint, claims the alliance
// for this device, and starts the receive loop.
func Dial(ctx context.Context, url string, role replicate.Role, log *zap.Logger) (*Client, error) {
	if role != replicate.RoleRed && role != replicate.RoleBlue {
		return nil, fmt.Errorf("dial: role %q cannot join a host", role)
	}

	conn, _, err := websocket.Dial(ctx, url, nil)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", url, err)
	}

	if err := conn.Write(ctx, websocket.MessageText, wire.AssignMessage(string(role))); err != nil {
		conn.Close(websocket.StatusInternalError, "assign failed")
		return nil, fmt.Errorf("assign: %w", err)
	}

	readCtx, cancel := context.WithCancel(context.Background())
	c := &Client{
		role:    role,
		conn:    conn,
		log:     log,
		updates: make(chan replicate.Update, 16),
		cancel:  cancel,
	}
	go c.readLoop(readCtx)
	return c, nil
}

func (c *Client) Role() replicate.Role { return c.role }

// Publish sends this device's fields to the host. Ownership is enforced
// here so a buggy caller cannot leak the other alliance's numbers.
func (c *Client) Publish(f wire.Fields) error {
	if err := replicate.ValidatePublish(c.role, f); err != nil {
		return err
	}
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return replicate.ErrDisconnected
	}
	c.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if err := c.conn.Write(ctx, websocket.MessageText, wire.UpdateMessage(string(c.role), f)); err != nil {
		return fmt.Errorf("publish: %w", err)
	}
	return nil
}

// Updates delivers host snapshots as merge candidates. The channel is
// closed when the connection drops.
func (c *Client) Updates() <-chan replicate.Update { return c.updates }

func (c *Client) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	c.mu.Unlock()

	c.cancel()
	return c.conn.Close(websocket.StatusNormalClosure, "bye")
}

func (c *Client) readLoop(ctx context.Context) {
	defer close(c.updates)
	for {
		_, data, err := c.conn.Read(ctx)
		if err != nil {
			c.mu.Lock()
			quiet := c.closed
			c.closed = true
			c.mu.Unlock()
			if !quiet {
				c.log.Warn("host connection lost", zap.Error(err))
			}
			return
		}

		fields, err := wire.DecodeSnapshot(data)
		if err != nil {
			c.log.Warn("dropping malformed snapshot", zap.Error(err))
			continue
		}
		if len(fields) == 0 {
			continue
		}

		// Snapshots come from the session owner, so mark them HOST; the
		// merge policy on our side keeps our own alliance authoritative.
		select {
		case c.updates <- replicate.Update{Source: replicate.RoleHost, Fields: fields}:
		case <-ctx.Done():
			return
		}
	}
}
