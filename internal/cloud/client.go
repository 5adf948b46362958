// Package cloud is the relay-store transport. Devices never talk to each
// other; everyone reads and writes one shared event row in a
// PostgREST-style store and converges by polling. Works through NAT and
// venue firewalls where the direct transport cannot.
package cloud

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"

	"github.com/ftc-decode/scorer-backend/internal/replicate"
	"github.com/ftc-decode/scorer-backend/internal/score"
	"github.com/ftc-decode/scorer-backend/internal/wire"
)

var (
	ErrEventExists   = errors.New("event already exists")
	ErrEventNotFound = errors.New("event not found")
	ErrBadSecret     = errors.New("incorrect event secret")
)

// syncInterval is the poll cadence. Gentle enough for a free-tier store,
// fast enough that scores feel live on the stream overlay.
const syncInterval = 500 * time.Millisecond

// staleAfter is how long a device may miss heartbeats before the host
// stops counting it as connected.
const staleAfter = 30 * time.Second

const requestTimeout = 10 * time.Second

// Config points the client at a store deployment.
type Config struct {
	BaseURL string // e.g. https://xyz.supabase.co or a storeserver instance
	APIKey  string
}

// NormalizeEventName folds an event name to the canonical key form:
// uppercase, with every non-alphanumeric run replaced by underscores.
// "Bay Area Scrimmage!" and "bay-area-scrimmage" land on the same event.
func NormalizeEventName(name string) string {
	up := strings.ToUpper(strings.TrimSpace(name))
	var b strings.Builder
	for _, r := range up {
		if (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') {
			b.WriteRune(r)
		} else {
			b.WriteRune('_')
		}
	}
	return b.String()
}

// DigestSecret hashes the shared event secret so the store never holds
// it in the clear.
func DigestSecret(secret string) string {
	sum := sha256.Sum256([]byte(secret))
	return base64.RawURLEncoding.EncodeToString(sum[:])
}

// Client is one device's connection to the store. It implements
// replicate.Session: Publish caches this device's fields and the poll
// loop pushes them every cycle; pulled rows arrive on Updates.
type Client struct {
	cfg      Config
	http     *http.Client
	clock    clockwork.Clock
	log      *zap.Logger
	role     replicate.Role
	event    string
	deviceID string

	updates chan replicate.Update
	cancel  context.CancelFunc

	mu      sync.Mutex
	owned   wire.Fields
	devices int
	closed  bool
}

// CreateEvent registers a new event row seeded from the current match and
// connects as the host. Fails with ErrEventExists if the name is taken.
func CreateEvent(ctx context.Context, cfg Config, name, secret string, m score.Match, clock clockwork.Clock, log *zap.Logger) (*Client, error) {
	if len(secret) < 4 {
		return nil, fmt.Errorf("create event: secret must be at least 4 characters")
	}
	c := newClient(cfg, replicate.RoleHost, NormalizeEventName(name), clock, log)

	exists, err := c.eventExists(ctx)
	if err != nil {
		return nil, fmt.Errorf("create event: %w", err)
	}
	if exists {
		return nil, ErrEventExists
	}

	row := wire.EncodeMatch(m)
	row["event_name"] = c.event
	row["password_hash"] = DigestSecret(secret)
	row["host_device_id"] = c.deviceID
	row["created_at"] = c.now()
	body, err := json.Marshal(row)
	if err != nil {
		return nil, fmt.Errorf("create event: %w", err)
	}
	resp, err := c.do(ctx, http.MethodPost, "/rest/v1/events", body, "return=minimal")
	if err != nil {
		return nil, fmt.Errorf("create event: %w", err)
	}
	resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("create event: store returned %s", resp.Status)
	}

	if err := c.registerDevice(ctx); err != nil {
		return nil, fmt.Errorf("create event: %w", err)
	}
	c.start()
	return c, nil
}

// JoinEvent connects an existing event as a scorer or spectator. Event
// lookup and secret failures are reported distinctly so the operator
// knows which one to fix.
func JoinEvent(ctx context.Context, cfg Config, name, secret string, role replicate.Role, clock clockwork.Clock, log *zap.Logger) (*Client, error) {
	c := newClient(cfg, role, NormalizeEventName(name), clock, log)

	resp, err := c.do(ctx, http.MethodGet, "/rest/v1/events?event_name=eq."+c.event+"&select=password_hash", nil, "")
	if err != nil {
		return nil, fmt.Errorf("join event: %w", err)
	}
	data, err := io.ReadAll(resp.Body)
	resp.Body.Close()
	if err != nil {
		return nil, fmt.Errorf("join event: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("join event: store returned %s", resp.Status)
	}

	var rows []struct {
		PasswordHash string `json:"password_hash"`
	}
	if err := json.Unmarshal(data, &rows); err != nil {
		return nil, fmt.Errorf("join event: %w", err)
	}
	if len(rows) == 0 {
		return nil, ErrEventNotFound
	}
	if rows[0].PasswordHash != DigestSecret(secret) {
		return nil, ErrBadSecret
	}

	if err := c.registerDevice(ctx); err != nil {
		return nil, fmt.Errorf("join event: %w", err)
	}
	c.start()
	return c, nil
}

func newClient(cfg Config, role replicate.Role, event string, clock clockwork.Clock, log *zap.Logger) *Client {
	return &Client{
		cfg:      cfg,
		http:     &http.Client{Timeout: requestTimeout},
		clock:    clock,
		log:      log,
		role:     role,
		event:    event,
		deviceID: uuid.NewString(),
		updates:  make(chan replicate.Update, 16),
		owned:    wire.Fields{},
	}
}

func (c *Client) Role() replicate.Role { return c.role }

// DeviceID identifies this device in the connected_devices resource.
func (c *Client) DeviceID() string { return c.deviceID }

// EventName returns the normalized event key this client is attached to.
func (c *Client) EventName() string { return c.event }

// DeviceCount reports how many devices the host saw alive in the last
// poll. Always zero on non-host devices.
func (c *Client) DeviceCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.devices
}

// Publish queues the device's owned fields; the next poll cycle carries
// them to the store. Later calls overwrite earlier values field by field,
// so only the freshest state goes out. Each value is delivered once: once
// a cycle has pushed it, it leaves the queue, so an idle device does not
// keep replaying old values over other devices' later edits.
func (c *Client) Publish(f wire.Fields) error {
	if err := replicate.ValidatePublish(c.role, f); err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return replicate.ErrDisconnected
	}
	for name, v := range f {
		c.owned[name] = v
	}
	return nil
}

func (c *Client) Updates() <-chan replicate.Update { return c.updates }

// Close stops the poll loop and removes this device's row so the host's
// device count drops promptly instead of waiting out the staleness window.
func (c *Client) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	c.mu.Unlock()

	c.cancel()

	ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
	defer cancel()
	resp, err := c.do(ctx, http.MethodDelete,
		"/rest/v1/connected_devices?event_name=eq."+c.event+"&device_id=eq."+c.deviceID, nil, "")
	if err != nil {
		return nil // best effort, the staleness window covers us
	}
	resp.Body.Close()
	return nil
}

func (c *Client) start() {
	ctx, cancel := context.WithCancel(context.Background())
	c.cancel = cancel
	go c.pollLoop(ctx)
}

// pollLoop runs the sync cycle sequentially: a slow store stretches the
// cycle rather than stacking concurrent requests.
func (c *Client) pollLoop(ctx context.Context) {
	defer close(c.updates)
	timer := c.clock.NewTimer(syncInterval)
	defer timer.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-timer.Chan():
		}

		c.cycle(ctx)
		timer.Reset(syncInterval)
	}
}

func (c *Client) cycle(ctx context.Context) {
	if err := c.heartbeat(ctx); err != nil {
		c.log.Warn("heartbeat failed", zap.Error(err))
	}
	if err := c.pushOwned(ctx); err != nil {
		c.log.Warn("push failed", zap.Error(err))
	}
	if err := c.pull(ctx); err != nil {
		c.log.Warn("pull failed", zap.Error(err))
	}
	if c.role == replicate.RoleHost {
		if err := c.countDevices(ctx); err != nil {
			c.log.Warn("device count failed", zap.Error(err))
		}
	}
}

func (c *Client) heartbeat(ctx context.Context) error {
	body, _ := json.Marshal(map[string]string{"last_seen": c.now()})
	resp, err := c.do(ctx, http.MethodPatch,
		"/rest/v1/connected_devices?event_name=eq."+c.event+"&device_id=eq."+c.deviceID, body, "")
	if err != nil {
		return err
	}
	resp.Body.Close()
	return nil
}

func (c *Client) pushOwned(ctx context.Context) error {
	c.mu.Lock()
	if len(c.owned) == 0 {
		c.mu.Unlock()
		return nil
	}
	pending := make(wire.Fields, len(c.owned))
	for name, v := range c.owned {
		pending[name] = v
	}
	c.mu.Unlock()

	body, err := wire.Encode(pending)
	if err != nil {
		return err
	}
	resp, err := c.do(ctx, http.MethodPatch, "/rest/v1/events?event_name=eq."+c.event, body, "")
	if err != nil {
		return err
	}
	resp.Body.Close()

	// Delivered. Drop what went out, but keep any value Publish replaced
	// while the request was in flight.
	c.mu.Lock()
	for name, v := range pending {
		if cur, ok := c.owned[name]; ok && cur == v {
			delete(c.owned, name)
		}
	}
	c.mu.Unlock()
	return nil
}

func (c *Client) pull(ctx context.Context) error {
	resp, err := c.do(ctx, http.MethodGet, "/rest/v1/events?event_name=eq."+c.event+"&select=*", nil, "")
	if err != nil {
		return err
	}
	data, err := io.ReadAll(resp.Body)
	resp.Body.Close()
	if err != nil {
		return err
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("pull: store returned %s", resp.Status)
	}

	var rows []json.RawMessage
	if err := json.Unmarshal(data, &rows); err != nil {
		return fmt.Errorf("pull: %w", err)
	}
	if len(rows) == 0 {
		return ErrEventNotFound
	}

	fields, err := wire.Decode(rows[0])
	if err != nil || len(fields) == 0 {
		return nil
	}

	// The row is everyone's merged state; HOST provenance lets the merge
	// policy on our side decide which fields to accept.
	select {
	case c.updates <- replicate.Update{Source: replicate.RoleHost, Fields: fields}:
	case <-ctx.Done():
	}
	return nil
}

func (c *Client) countDevices(ctx context.Context) error {
	cutoff := c.clock.Now().UTC().Add(-staleAfter).Format(time.RFC3339Nano)
	resp, err := c.do(ctx, http.MethodGet,
		"/rest/v1/connected_devices?event_name=eq."+c.event+"&last_seen=gte."+cutoff+"&select=device_role", nil, "")
	if err != nil {
		return err
	}
	data, err := io.ReadAll(resp.Body)
	resp.Body.Close()
	if err != nil {
		return err
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("count devices: store returned %s", resp.Status)
	}

	var rows []json.RawMessage
	if err := json.Unmarshal(data, &rows); err != nil {
		return err
	}
	c.mu.Lock()
	c.devices = len(rows)
	c.mu.Unlock()
	return nil
}

func (c *Client) registerDevice(ctx context.Context) error {
	body, _ := json.Marshal(map[string]string{
		"event_name":  c.event,
		"device_id":   c.deviceID,
		"device_role": string(c.role),
		"last_seen":   c.now(),
	})
	resp, err := c.do(ctx, http.MethodPost, "/rest/v1/connected_devices", body, "resolution=merge-duplicates")
	if err != nil {
		return err
	}
	resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("register device: store returned %s", resp.Status)
	}
	return nil
}

func (c *Client) eventExists(ctx context.Context) (bool, error) {
	resp, err := c.do(ctx, http.MethodGet, "/rest/v1/events?event_name=eq."+c.event+"&select=event_name", nil, "")
	if err != nil {
		return false, err
	}
	data, err := io.ReadAll(resp.Body)
	resp.Body.Close()
	if err != nil {
		return false, err
	}
	if resp.StatusCode != http.StatusOK {
		return false, fmt.Errorf("store returned %s", resp.Status)
	}

	var rows []json.RawMessage
	if err := json.Unmarshal(data, &rows); err != nil {
		return false, err
	}
	return len(rows) > 0, nil
}

func (c *Client) do(ctx context.Context, method, path string, body []byte, prefer string) (*http.Response, error) {
	var rdr io.Reader
	if body != nil {
		rdr = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.cfg.BaseURL+path, rdr)
	if err != nil {
		return nil, err
	}
	req.Header.Set("apikey", c.cfg.APIKey)
	req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if prefer != "" {
		req.Header.Set("Prefer", prefer)
	}
	return c.http.Do(req)
}

func (c *Client) now() string {
	return c.clock.Now().UTC().Format(time.RFC3339Nano)
}
