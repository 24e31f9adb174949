// Package realtime implements the Fluxez realtime channel multiplexer. It
// maintains a single logical session over one WebSocket connection, tracks
// channel subscriptions with optional per-subscriber filters, replays
// subscriptions after reconnect, and retries dropped connections at a fixed
// interval up to a configured budget.
package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/fluxez/fluxez-go/api"
	"github.com/fluxez/fluxez-go/auth"
	"github.com/fluxez/fluxez-go/config"
	"github.com/fluxez/fluxez-go/logger"
)

// ErrNotConnected is returned by Publish when no connection is established.
// Send, by contrast, drops the message silently.
var ErrNotConnected = errors.New("realtime: not connected")

// writeBuffer is the minimum capacity of the per-connection write queue.
const writeBuffer = 64

// Subscription is one (handler, optional filter) pair registered against a
// channel. Multiple subscriptions may coexist on the same channel; each is
// removed independently.
type Subscription struct {
	channel string
	handler Handler
	filter  Filter
}

// Channel returns the channel this subscription is registered on.
func (s *Subscription) Channel() string {
	return s.channel
}

// Status is a diagnostics snapshot of the multiplexer.
type Status struct {
	Connected         bool
	ReconnectAttempts int
	// Subscriptions counts distinct channels, not individual handlers.
	Subscriptions int
}

// Client multiplexes channel subscriptions over one realtime connection.
// Subscriptions are declarative: they survive reconnects and are announced
// to the server whenever a connection opens. One Client owns one transport;
// instances are independent.
type Client struct {
	mu sync.Mutex

	cfg     config.RealtimeConfig
	baseURL string
	auth    auth.Provider
	api     *api.Client
	log     *logger.Logger
	dialer  Dialer

	subs map[string][]*Subscription

	transport         Transport
	writeCh           chan []byte
	connected         bool
	generation        int
	reconnectAttempts int
	reconnectTimer    *time.Timer
}

// Option overrides a realtime configuration field for this Client.
type Option func(*config.RealtimeConfig)

// WithURL sets an explicit transport endpoint instead of deriving one from
// the HTTP base URL.
func WithURL(url string) Option {
	return func(rc *config.RealtimeConfig) { rc.URL = url }
}

// WithReconnect enables or disables automatic reconnection.
func WithReconnect(enabled bool) Option {
	return func(rc *config.RealtimeConfig) { rc.Reconnect = &enabled }
}

// WithReconnectInterval sets the fixed delay between reconnect attempts.
func WithReconnectInterval(d time.Duration) Option {
	return func(rc *config.RealtimeConfig) { rc.ReconnectInterval = d }
}

// WithMaxReconnectAttempts sets the reconnect budget.
func WithMaxReconnectAttempts(n int) Option {
	return func(rc *config.RealtimeConfig) { rc.MaxReconnectAttempts = n }
}

// NewClient creates a realtime Client from client configuration. The api
// client is used for the presence control-plane calls and may be nil when
// presence is not needed.
func NewClient(cfg *config.Config, provider auth.Provider, apiClient *api.Client, log *logger.Logger) *Client {
	if log == nil {
		log = logger.Nop()
	}
	return &Client{
		cfg:     cfg.Realtime,
		baseURL: cfg.BaseURL,
		auth:    provider,
		api:     apiClient,
		log:     log,
		dialer:  DialWebSocket,
		subs:    make(map[string][]*Subscription),
	}
}

// SetDialer replaces the transport dialer. Must be called before Connect.
func (c *Client) SetDialer(d Dialer) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.dialer = d
}

// Connect opens the realtime transport. It returns once the dial has been
// started; establishment happens asynchronously and is observable via
// IsConnected/Status. An existing connection is replaced, not leaked: its
// transport is closed and any dial still in flight is discarded on arrival.
func (c *Client) Connect(ctx context.Context, opts ...Option) {
	c.mu.Lock()
	for _, opt := range opts {
		opt(&c.cfg)
	}

	c.stopReconnectTimerLocked()
	c.generation++
	gen := c.generation

	if c.transport != nil {
		c.transport.Close()
		c.transport = nil
	}
	c.connected = false
	c.mu.Unlock()

	go c.dial(ctx, gen)
}

// Disconnect tears down the session: it cancels any pending reconnect,
// closes the transport, and clears every subscription. No reconnection is
// attempted afterwards. Safe to call when already disconnected.
func (c *Client) Disconnect() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.stopReconnectTimerLocked()
	c.generation++

	if c.transport != nil {
		c.transport.Close()
		c.transport = nil
	}
	c.connected = false
	c.subs = make(map[string][]*Subscription)

	c.log.Info("Disconnected from realtime")
}

// Subscribe registers a handler for a channel. When connected, a subscribe
// intent is sent immediately; otherwise the registration is local and is
// announced when the next connection opens.
func (c *Client) Subscribe(channel string, handler Handler) *Subscription {
	return c.SubscribeWithFilter(channel, handler, nil)
}

// SubscribeWithFilter registers a handler that only receives messages the
// filter accepts. A nil filter accepts everything.
func (c *Client) SubscribeWithFilter(channel string, handler Handler, filter Filter) *Subscription {
	sub := &Subscription{channel: channel, handler: handler, filter: filter}

	c.mu.Lock()
	c.subs[channel] = append(c.subs[channel], sub)
	connected := c.connected
	c.mu.Unlock()

	c.log.Debug("Subscribed to channel", "channel", channel)

	if connected {
		if err := c.Send(newIntent(TypeSubscribe, channel)); err != nil {
			c.log.Error("Failed to send subscribe intent", "channel", channel, "error", err)
		}
	}
	return sub
}

// Unsubscribe removes subscriptions for a channel. A non-nil sub removes
// only that subscription; nil removes every subscription on the channel.
// When connected, an unsubscribe intent is sent even if other local
// subscriptions remain on the channel, so the last logical owner to call
// Unsubscribe(channel, nil) ends server-side delivery for everyone on this
// connection. Calling it for an unknown channel is a no-op.
func (c *Client) Unsubscribe(channel string, sub *Subscription) {
	c.mu.Lock()
	list, ok := c.subs[channel]
	if !ok {
		c.mu.Unlock()
		return
	}

	if sub == nil {
		delete(c.subs, channel)
	} else {
		for i, s := range list {
			if s == sub {
				list = append(list[:i], list[i+1:]...)
				break
			}
		}
		if len(list) == 0 {
			delete(c.subs, channel)
		} else {
			c.subs[channel] = list
		}
	}
	connected := c.connected
	c.mu.Unlock()

	c.log.Debug("Unsubscribed from channel", "channel", channel)

	if connected {
		if err := c.Send(newIntent(TypeUnsubscribe, channel)); err != nil {
			c.log.Error("Failed to send unsubscribe intent", "channel", channel, "error", err)
		}
	}
}

// Send serializes a message and queues it on the transport in call order.
// The timestamp is filled in when absent. When disconnected the message is
// logged and dropped without error; use Publish for a loud failure.
func (c *Client) Send(msg Message) error {
	if msg.Timestamp == 0 {
		msg.Timestamp = time.Now().UnixMilli()
	}

	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshaling realtime message: %w", err)
	}

	c.mu.Lock()
	connected := c.connected
	writeCh := c.writeCh
	c.mu.Unlock()

	if !connected || writeCh == nil {
		c.log.Debug("Not connected, dropping message",
			"type", msg.Type, "channel", msg.Channel)
		return nil
	}

	select {
	case writeCh <- data:
		return nil
	default:
		return fmt.Errorf("realtime write queue full, dropping %s for %s", msg.Type, msg.Channel)
	}
}

// Publish sends an application payload to a channel. Unlike Send it fails
// loudly: ErrNotConnected is returned when no connection is established.
func (c *Client) Publish(channel string, data any) error {
	c.mu.Lock()
	connected := c.connected
	c.mu.Unlock()

	if !connected {
		return fmt.Errorf("publishing to %s: %w", channel, ErrNotConnected)
	}

	return c.Send(Message{
		Type:      TypePublish,
		Channel:   channel,
		Data:      data,
		Timestamp: time.Now().UnixMilli(),
		ID:        uuid.NewString(),
	})
}

// IsConnected reports whether the transport is currently established.
func (c *Client) IsConnected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.connected
}

// Status returns a diagnostics snapshot.
func (c *Client) Status() Status {
	c.mu.Lock()
	defer c.mu.Unlock()
	return Status{
		Connected:         c.connected,
		ReconnectAttempts: c.reconnectAttempts,
		Subscriptions:     len(c.subs),
	}
}

// dial opens the transport and hands it to onOpen. Dial failures take the
// same close-driven reconnect path as a dropped connection.
func (c *Client) dial(ctx context.Context, gen int) {
	c.mu.Lock()
	url := c.cfg.URL
	dialer := c.dialer
	c.mu.Unlock()

	if url == "" {
		url = DeriveURL(c.baseURL)
	}

	header := http.Header{}
	header.Set("Authorization", "Bearer "+c.auth.AuthToken())

	c.log.Debug("Dialing realtime endpoint", "url", url)

	transport, err := dialer(ctx, url, header)
	if err != nil {
		c.log.Error("Realtime dial failed", "url", url, "error", err)
		c.handleClose(ctx, gen, err)
		return
	}

	c.onOpen(ctx, gen, transport)
}

// onOpen installs the new transport, resets the reconnect budget, replays
// one subscribe intent per distinct registered channel, and starts the
// read/write loops.
func (c *Client) onOpen(ctx context.Context, gen int, transport Transport) {
	c.mu.Lock()
	if gen != c.generation {
		// A Disconnect or newer Connect superseded this dial.
		c.mu.Unlock()
		transport.Close()
		return
	}

	channels := make([]string, 0, len(c.subs))
	for channel := range c.subs {
		channels = append(channels, channel)
	}

	writeCh := make(chan []byte, writeBuffer+len(channels))
	c.transport = transport
	c.writeCh = writeCh
	c.connected = true
	c.reconnectAttempts = 0
	c.mu.Unlock()

	c.log.Info("Connected to realtime", "channels", len(channels))

	for _, channel := range channels {
		data, err := json.Marshal(newIntent(TypeSubscribe, channel))
		if err != nil {
			c.log.Error("Failed to marshal subscribe intent", "channel", channel, "error", err)
			continue
		}
		writeCh <- data
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return c.readLoop(gctx, transport)
	})
	g.Go(func() error {
		return c.writeLoop(gctx, transport, writeCh)
	})

	go func() {
		err := g.Wait()
		c.handleClose(ctx, gen, err)
	}()
}

func (c *Client) readLoop(ctx context.Context, transport Transport) error {
	for {
		data, err := transport.ReadMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return fmt.Errorf("realtime read: %w", err)
		}
		c.dispatch(data)
	}
}

func (c *Client) writeLoop(ctx context.Context, transport Transport, writeCh <-chan []byte) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case data := <-writeCh:
			if err := transport.WriteMessage(ctx, data); err != nil {
				if ctx.Err() != nil {
					return ctx.Err()
				}
				return fmt.Errorf("realtime write: %w", err)
			}
		}
	}
}

// dispatch routes one inbound frame to every matching subscription on its
// channel, in registration order. Malformed frames are logged and dropped.
func (c *Client) dispatch(data []byte) {
	var msg Message
	if err := json.Unmarshal(data, &msg); err != nil {
		c.log.Error("Dropping malformed realtime frame", "error", err)
		return
	}

	c.mu.Lock()
	list := c.subs[msg.Channel]
	subs := make([]*Subscription, len(list))
	copy(subs, list)
	c.mu.Unlock()

	for _, sub := range subs {
		if sub.filter != nil && !sub.filter(msg) {
			continue
		}
		c.deliver(sub, msg)
	}
}

// deliver invokes one handler, isolating panics so a failing subscriber
// cannot block delivery to its siblings.
func (c *Client) deliver(sub *Subscription, msg Message) {
	defer func() {
		if r := recover(); r != nil {
			c.log.Error("Subscriber handler panicked",
				"channel", msg.Channel, "panic", r)
		}
	}()
	sub.handler(msg)
}

// handleClose runs after the transport loops exit, whether from a network
// drop, a dial failure, or an explicit teardown. Superseded generations are
// ignored, which is what suppresses reconnects after Disconnect.
func (c *Client) handleClose(ctx context.Context, gen int, err error) {
	c.mu.Lock()
	if gen != c.generation {
		c.mu.Unlock()
		return
	}

	c.connected = false
	c.transport = nil
	c.writeCh = nil

	if ctx.Err() != nil || !c.cfg.ReconnectEnabled() {
		c.mu.Unlock()
		c.log.Info("Realtime connection closed", "error", err)
		return
	}

	if c.reconnectAttempts >= c.cfg.MaxReconnectAttempts {
		attempts := c.reconnectAttempts
		c.mu.Unlock()
		c.log.Error("Realtime reconnect budget exhausted; call Connect to resume",
			"attempts", attempts, "error", err)
		return
	}

	c.reconnectAttempts++
	attempt := c.reconnectAttempts
	maxAttempts := c.cfg.MaxReconnectAttempts
	interval := c.cfg.ReconnectInterval
	c.reconnectTimer = time.AfterFunc(interval, func() {
		c.mu.Lock()
		stale := gen != c.generation
		c.reconnectTimer = nil
		c.mu.Unlock()
		if stale {
			return
		}
		c.dial(ctx, gen)
	})
	c.mu.Unlock()

	c.log.Warn("Realtime connection lost, reconnecting",
		"attempt", attempt,
		"max_attempts", maxAttempts,
		"interval", interval,
		"error", err)
}

func (c *Client) stopReconnectTimerLocked() {
	if c.reconnectTimer != nil {
		c.reconnectTimer.Stop()
		c.reconnectTimer = nil
	}
}
