package host

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"golang.org/x/time/rate"

	"github.com/livecard/livecard-go/pkg/log"
	"github.com/livecard/livecard-go/pkg/template"
)

// Client errors.
var (
	ErrAuthFailed         = errors.New("host authentication failed")
	ErrClosed             = errors.New("host connection closed")
	ErrSubscriptionFailed = errors.New("host rejected subscription")
	ErrUnexpectedMessage  = errors.New("unexpected host message")
)

// Defaults.
const (
	DefaultPingInterval     = 30 * time.Second
	DefaultHandshakeTimeout = 10 * time.Second
	DefaultBurst            = 10

	websocketPath = "/api/websocket"
	writeWait     = 10 * time.Second
)

// Config configures a Client.
type Config struct {
	// URL is the host address. http(s) URLs are converted to ws(s) and get
	// the websocket API path when none is given.
	URL string

	// Token is the long-lived access token sent during the handshake.
	Token string

	// RateLimit is the sustained commands per second. Zero means unlimited.
	RateLimit float64

	// Burst is the limiter bucket size. Defaults to DefaultBurst.
	Burst int

	// HandshakeTimeout bounds dialing and authentication.
	HandshakeTimeout time.Duration

	// PingInterval is the keep-alive period.
	PingInterval time.Duration

	// Logger is the optional operational logger. Nil disables logging.
	Logger *slog.Logger

	// Trace is the optional event tracer.
	Trace *log.Tracer
}

// hostError is the error object attached to a failed result.
type hostError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func (e *hostError) String() string {
	if e == nil {
		return "unknown error"
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// inbound is any message received from the host.
type inbound struct {
	ID      int             `json:"id"`
	Type    string          `json:"type"`
	Success bool            `json:"success"`
	Result  json.RawMessage `json:"result"`
	Error   *hostError      `json:"error"`
	Event   json.RawMessage `json:"event"`
	Message string          `json:"message"`
	Version string          `json:"ha_version"`
}

// response is the result of one command.
type response struct {
	success bool
	result  json.RawMessage
	err     *hostError
}

// Client is a connection to the host websocket API. It implements
// template.Host and template.StateSource.
type Client struct {
	conn    *websocket.Conn
	config  Config
	limiter *rate.Limiter
	writeMu sync.Mutex

	mu      sync.Mutex
	nextID  int
	pending map[int]chan response
	subs    map[int]*Subscription
	states  map[string]any
	version string

	// queue holds pushes waiting for deliverLoop, in arrival order.
	queueMu sync.Mutex
	queue   []delivery
	ready   chan struct{}

	done      chan struct{}
	closeOnce sync.Once
	err       error
}

// delivery is one push waiting to be handed to its subscriber.
type delivery struct {
	sub    *Subscription
	result any
}

// Dial connects and authenticates. The returned client is ready for Open.
func Dial(ctx context.Context, config Config) (*Client, error) {
	if config.HandshakeTimeout <= 0 {
		config.HandshakeTimeout = DefaultHandshakeTimeout
	}
	if config.PingInterval <= 0 {
		config.PingInterval = DefaultPingInterval
	}
	if config.Burst <= 0 {
		config.Burst = DefaultBurst
	}

	wsURL, err := WebsocketURL(config.URL)
	if err != nil {
		return nil, err
	}

	dialer := websocket.Dialer{
		Proxy:            http.ProxyFromEnvironment,
		HandshakeTimeout: config.HandshakeTimeout,
	}
	conn, resp, err := dialer.DialContext(ctx, wsURL, nil)
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("dial %s (status %s): %w", wsURL, resp.Status, err)
		}
		return nil, fmt.Errorf("dial %s: %w", wsURL, err)
	}

	limit := rate.Inf
	if config.RateLimit > 0 {
		limit = rate.Limit(config.RateLimit)
	}

	c := &Client{
		conn:    conn,
		config:  config,
		limiter: rate.NewLimiter(limit, config.Burst),
		pending: make(map[int]chan response),
		subs:    make(map[int]*Subscription),
		states:  make(map[string]any),
		ready:   make(chan struct{}, 1),
		done:    make(chan struct{}),
	}

	if err := c.authenticate(ctx); err != nil {
		conn.Close()
		c.traceError("authenticate", err)
		return nil, err
	}

	conn.SetPongHandler(func(string) error {
		c.logDebug("host pong received")
		return nil
	})

	go c.readLoop()
	go c.deliverLoop()
	go c.pingLoop()

	c.logDebug("host connected", "url", wsURL, "version", c.version)
	return c, nil
}

// WebsocketURL converts a host address into its websocket API URL.
func WebsocketURL(raw string) (string, error) {
	if raw == "" {
		return "", errors.New("empty host url")
	}
	u, err := url.Parse(raw)
	if err != nil {
		return "", fmt.Errorf("parse host url: %w", err)
	}

	switch strings.ToLower(u.Scheme) {
	case "http":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	case "ws", "wss":
	default:
		return "", fmt.Errorf("unsupported host url scheme %q", u.Scheme)
	}
	if u.Host == "" {
		return "", fmt.Errorf("host url %q has no host", raw)
	}
	if u.Path == "" || u.Path == "/" {
		u.Path = websocketPath
	}
	return u.String(), nil
}

// authenticate runs the auth_required / auth / auth_ok exchange.
func (c *Client) authenticate(ctx context.Context) error {
	deadline := time.Now().Add(c.config.HandshakeTimeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	c.conn.SetReadDeadline(deadline)
	defer c.conn.SetReadDeadline(time.Time{})

	var hello inbound
	if err := c.conn.ReadJSON(&hello); err != nil {
		return fmt.Errorf("read auth request: %w", err)
	}
	if hello.Type != "auth_required" {
		return fmt.Errorf("%w: %q before auth", ErrUnexpectedMessage, hello.Type)
	}

	if err := c.write(map[string]any{"type": "auth", "access_token": c.config.Token}); err != nil {
		return fmt.Errorf("send auth: %w", err)
	}

	var reply inbound
	if err := c.conn.ReadJSON(&reply); err != nil {
		return fmt.Errorf("read auth reply: %w", err)
	}
	switch reply.Type {
	case "auth_ok":
		c.version = reply.Version
		return nil
	case "auth_invalid":
		return fmt.Errorf("%w: %s", ErrAuthFailed, reply.Message)
	default:
		return fmt.Errorf("%w: %q during auth", ErrUnexpectedMessage, reply.Type)
	}
}

// Version returns the host version reported during the handshake.
func (c *Client) Version() string {
	return c.version
}

// Open subscribes to a rendered template. It blocks until the host accepts
// or rejects the subscription.
func (c *Client) Open(ctx context.Context, req template.RenderRequest, onMessage func(template.Message)) (template.Handle, error) {
	sub := &Subscription{client: c, key: req.Key, onMessage: onMessage}

	msg := map[string]any{
		"type":     "render_template",
		"template": req.Template,
	}
	if len(req.Variables) > 0 {
		msg["variables"] = req.Variables
	}

	resp, sent, err := c.call(ctx, msg, func(id int) {
		sub.id = id
		c.subs[id] = sub
	})
	if err != nil {
		c.dropSubscription(sub.id)
		if sent && !errors.Is(err, ErrClosed) {
			// The host may still accept it; make sure it does not linger.
			go c.abandon(sub.id)
		}
		return nil, fmt.Errorf("render_template %q: %w", req.Key, err)
	}
	if !resp.success {
		c.dropSubscription(sub.id)
		return nil, fmt.Errorf("%w: %q: %s", ErrSubscriptionFailed, req.Key, resp.err)
	}

	c.logDebug("host subscription opened", "key", req.Key, "id", sub.id)
	return sub, nil
}

// abandon unsubscribes a subscription whose Open gave up waiting.
func (c *Client) abandon(id int) {
	ctx, cancel := context.WithTimeout(context.Background(), c.config.HandshakeTimeout)
	defer cancel()
	if err := c.unsubscribe(ctx, id); err != nil {
		c.logDebug("abandoned subscription cleanup failed", "id", id, "error", err)
	}
}

// RefreshStates fetches every entity state and stores it for HostState.
func (c *Client) RefreshStates(ctx context.Context) error {
	resp, _, err := c.call(ctx, map[string]any{"type": "get_states"}, nil)
	if err != nil {
		return fmt.Errorf("get_states: %w", err)
	}
	if !resp.success {
		return fmt.Errorf("get_states: %s", resp.err)
	}

	var list []map[string]any
	if err := decode(resp.result, &list); err != nil {
		return fmt.Errorf("decode states: %w", err)
	}

	states := make(map[string]any, len(list))
	for _, s := range list {
		if id, ok := s["entity_id"].(string); ok {
			states[id] = s
		}
	}

	c.mu.Lock()
	c.states = states
	c.mu.Unlock()

	c.logDebug("host states refreshed", "entities", len(states))
	return nil
}

// HostState returns the entity states from the last RefreshStates, keyed by
// entity id.
func (c *Client) HostState() map[string]any {
	c.mu.Lock()
	defer c.mu.Unlock()
	return maps.Clone(c.states)
}

// Subscriptions returns the number of open subscriptions.
func (c *Client) Subscriptions() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.subs)
}

// Done is closed when the connection ends.
func (c *Client) Done() <-chan struct{} {
	return c.done
}

// Err returns why the connection ended, or nil while it is open.
func (c *Client) Err() error {
	select {
	case <-c.done:
		return c.err
	default:
		return nil
	}
}

// Close sends a close frame and shuts the connection down. Commands still
// waiting for a reply fail with ErrClosed.
func (c *Client) Close() error {
	c.writeMu.Lock()
	_ = c.conn.WriteControl(
		websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(writeWait),
	)
	c.writeMu.Unlock()

	c.shutdown(ErrClosed)
	return nil
}

// call sends msg with a fresh id and waits for its result. register, when
// set, runs under the client lock once the id is assigned. sent reports
// whether msg reached the connection.
func (c *Client) call(ctx context.Context, msg map[string]any, register func(id int)) (resp response, sent bool, err error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return response{}, false, err
	}

	c.mu.Lock()
	if c.Err() != nil {
		c.mu.Unlock()
		return response{}, false, ErrClosed
	}
	c.nextID++
	id := c.nextID
	msg["id"] = id
	ch := make(chan response, 1)
	c.pending[id] = ch
	if register != nil {
		register(id)
	}
	c.mu.Unlock()

	if err := c.write(msg); err != nil {
		c.mu.Lock()
		delete(c.pending, id)
		c.mu.Unlock()
		return response{}, false, fmt.Errorf("send %s: %w", msg["type"], err)
	}

	select {
	case resp := <-ch:
		return resp, true, nil
	case <-ctx.Done():
		c.mu.Lock()
		delete(c.pending, id)
		c.mu.Unlock()
		return response{}, true, ctx.Err()
	case <-c.done:
		return response{}, true, c.err
	}
}

func (c *Client) unsubscribe(ctx context.Context, id int) error {
	resp, _, err := c.call(ctx, map[string]any{
		"type":         "unsubscribe_events",
		"subscription": id,
	}, nil)
	if err != nil {
		return fmt.Errorf("unsubscribe %d: %w", id, err)
	}
	if !resp.success {
		return fmt.Errorf("unsubscribe %d: %s", id, resp.err)
	}
	return nil
}

func (c *Client) dropSubscription(id int) {
	c.mu.Lock()
	delete(c.subs, id)
	c.mu.Unlock()
}

func (c *Client) write(msg any) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	c.conn.SetWriteDeadline(time.Now().Add(writeWait))
	return c.conn.WriteJSON(msg)
}

func (c *Client) readLoop() {
	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				c.logWarn("host read failed", "error", err)
				c.traceError("read", err)
			}
			c.shutdown(fmt.Errorf("%w: %v", ErrClosed, err))
			return
		}
		c.dispatch(data)
	}
}

// dispatch routes one message to a waiting command or a subscription.
func (c *Client) dispatch(data []byte) {
	var msg inbound
	if err := decode(data, &msg); err != nil {
		c.logWarn("undecodable host message", "error", err)
		return
	}

	switch msg.Type {
	case "result":
		c.mu.Lock()
		ch, ok := c.pending[msg.ID]
		delete(c.pending, msg.ID)
		c.mu.Unlock()
		if ok {
			ch <- response{success: msg.Success, result: msg.Result, err: msg.Error}
		}

	case "event":
		c.mu.Lock()
		sub := c.subs[msg.ID]
		c.mu.Unlock()
		if sub == nil {
			return
		}

		var event struct {
			Result any    `json:"result"`
			Error  string `json:"error"`
			Level  string `json:"level"`
		}
		if err := decode(msg.Event, &event); err != nil {
			c.logWarn("undecodable template event", "key", sub.key, "error", err)
			return
		}
		if event.Error != "" {
			c.logWarn("template render error", "key", sub.key, "level", event.Level, "error", event.Error)
			c.traceError("render "+sub.key, errors.New(event.Error))
			return
		}
		c.enqueue(sub, event.Result)

	case "pong":
	default:
		c.logDebug("ignored host message", "type", msg.Type, "id", msg.ID)
	}
}

// enqueue hands a push to deliverLoop. The read loop never runs subscriber
// callbacks itself, so a callback may issue commands and wait for replies.
func (c *Client) enqueue(sub *Subscription, result any) {
	c.queueMu.Lock()
	c.queue = append(c.queue, delivery{sub: sub, result: result})
	c.queueMu.Unlock()

	select {
	case c.ready <- struct{}{}:
	default:
	}
}

// deliverLoop runs subscriber callbacks one at a time in arrival order.
func (c *Client) deliverLoop() {
	for {
		select {
		case <-c.ready:
		case <-c.done:
			return
		}

		for {
			c.queueMu.Lock()
			if len(c.queue) == 0 {
				c.queueMu.Unlock()
				break
			}
			d := c.queue[0]
			c.queue[0] = delivery{}
			c.queue = c.queue[1:]
			c.queueMu.Unlock()

			d.sub.deliver(d.result)
		}
	}
}

func (c *Client) pingLoop() {
	ticker := time.NewTicker(c.config.PingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if err := c.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
				c.logWarn("host ping failed", "error", err)
				return
			}
		case <-c.done:
			return
		}
	}
}

// shutdown ends the connection once, recording err.
func (c *Client) shutdown(err error) {
	c.closeOnce.Do(func() {
		c.mu.Lock()
		c.err = err
		c.subs = make(map[int]*Subscription)
		c.mu.Unlock()

		close(c.done)
		c.conn.Close()
		c.logDebug("host connection closed", "reason", err)
	})
}

// decode unmarshals JSON keeping numbers as json.Number so rendered
// numbers keep their original text.
func decode(data []byte, v any) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	return dec.Decode(v)
}

func (c *Client) traceError(op string, err error) {
	c.config.Trace.Emit(log.Event{
		Layer:    log.LayerChannel,
		Category: log.CategoryError,
		Error: &log.ErrorEventData{
			Layer:   log.LayerChannel,
			Message: err.Error(),
			Context: op,
		},
	})
}

func (c *Client) logDebug(msg string, args ...any) {
	if c.config.Logger != nil {
		c.config.Logger.Debug(msg, args...)
	}
}

func (c *Client) logWarn(msg string, args ...any) {
	if c.config.Logger != nil {
		c.config.Logger.Warn(msg, args...)
	}
}

// Subscription is an open render_template subscription.
type Subscription struct {
	client    *Client
	id        int
	key       string
	onMessage func(template.Message)

	mu     sync.Mutex
	closed bool
}

// deliver passes result to the subscriber unless the subscription was closed.
func (s *Subscription) deliver(result any) {
	s.mu.Lock()
	closed := s.closed
	s.mu.Unlock()

	if !closed && s.onMessage != nil {
		s.onMessage(template.Message{Result: result})
	}
}

// ID returns the host subscription id.
func (s *Subscription) ID() int {
	return s.id
}

// Close unsubscribes. Closing twice returns ErrClosed.
func (s *Subscription) Close(ctx context.Context) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrClosed
	}
	s.closed = true
	s.mu.Unlock()

	s.client.dropSubscription(s.id)
	return s.client.unsubscribe(ctx, s.id)
}

var (
	_ template.Host        = (*Client)(nil)
	_ template.StateSource = (*Client)(nil)
	_ template.Handle      = (*Subscription)(nil)
)
