// Package snapcast is a JSON-RPC 2.0 client for the Snapcast server
// control protocol, carried over a persistent TCP connection. The
// request/response correlation machinery is grounded line-for-line on
// internal/signal/client.go's pending-request-map pattern, adapted
// from a subprocess stdin/stdout pipe to a net.Conn.
package snapcast

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"math/rand"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/snapdog/snapdog/internal/grouping"
	"github.com/snapdog/snapdog/internal/mediator"
	"github.com/snapdog/snapdog/internal/result"
)

// BackoffConfig controls the reconnect schedule. Jitter here is
// multiplicative (±25%) per spec, distinct from connwatch's additive
// 0-1s jitter used by the startup orchestrator.
type BackoffConfig struct {
	Base       time.Duration
	Factor     float64
	JitterFrac float64
	Cap        time.Duration
}

func DefaultBackoffConfig() BackoffConfig {
	return BackoffConfig{Base: time.Second, Factor: 2, JitterFrac: 0.25, Cap: 30 * time.Second}
}

// Client is a connection to a Snapcast server's JSON-RPC control
// socket. It satisfies grouping.SnapcastStatusProvider.
type Client struct {
	addr    string
	logger  *slog.Logger
	backoff BackoffConfig
	med     *mediator.Mediator

	connected atomic.Bool
	nextID    atomic.Int64

	mu      sync.Mutex
	conn    net.Conn
	writer  io.Writer
	pending map[int64]chan rpcResponse
}

// Option configures a Client.
type Option func(*Client)

func WithLogger(l *slog.Logger) Option         { return func(c *Client) { c.logger = l } }
func WithBackoff(b BackoffConfig) Option       { return func(c *Client) { c.backoff = b } }
func WithMediator(m *mediator.Mediator) Option { return func(c *Client) { c.med = m } }

// New creates a Snapcast client targeting addr ("host:port"). Call
// Run to establish and maintain the connection; it blocks until ctx
// is cancelled.
func New(addr string, opts ...Option) *Client {
	c := &Client{
		addr:    addr,
		logger:  slog.Default(),
		backoff: DefaultBackoffConfig(),
		pending: make(map[int64]chan rpcResponse),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// IsConnected reports whether the adapter currently has a live socket.
func (c *Client) IsConnected() bool { return c.connected.Load() }

// Run maintains the connection, reconnecting with exponential backoff
// and ±25% jitter whenever the socket closes. Blocks until ctx is done.
func (c *Client) Run(ctx context.Context) {
	delay := c.backoff.Base
	for {
		if ctx.Err() != nil {
			return
		}

		if err := c.connectOnce(ctx); err != nil {
			c.logger.Warn("snapcast: connect failed", "addr", c.addr, "error", err)
		} else {
			delay = c.backoff.Base // reset after any successful connection
		}

		jittered := applyJitter(delay, c.backoff.JitterFrac)
		select {
		case <-ctx.Done():
			return
		case <-time.After(jittered):
		}

		delay = time.Duration(float64(delay) * c.backoff.Factor)
		if delay > c.backoff.Cap {
			delay = c.backoff.Cap
		}
	}
}

func applyJitter(d time.Duration, frac float64) time.Duration {
	if frac <= 0 {
		return d
	}
	spread := float64(d) * frac
	offset := (rand.Float64()*2 - 1) * spread
	return time.Duration(float64(d) + offset)
}

// connectOnce dials, serves the connection until it fails, then
// drains pending requests with Unavailable before returning.
func (c *Client) connectOnce(ctx context.Context) error {
	conn, err := net.Dial("tcp", c.addr)
	if err != nil {
		return err
	}

	c.mu.Lock()
	c.conn = conn
	c.writer = conn
	c.mu.Unlock()
	c.connected.Store(true)
	c.logger.Info("snapcast: connected", "addr", c.addr)

	readLoopDone := make(chan struct{})
	go func() {
		defer close(readLoopDone)
		c.readLoop(conn)
	}()

	select {
	case <-ctx.Done():
		conn.Close()
		<-readLoopDone
	case <-readLoopDone:
	}

	c.connected.Store(false)
	c.drainPending(fmt.Errorf("snapcast: connection closed"))
	return nil
}

func (c *Client) drainPending(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for id, ch := range c.pending {
		ch <- rpcResponse{Error: &rpcError{Code: -1, Message: err.Error()}}
		delete(c.pending, id)
	}
}

func (c *Client) readLoop(conn net.Conn) {
	reader := bufio.NewReaderSize(conn, 1<<16)
	for {
		line, err := reader.ReadBytes('\n')
		if err != nil {
			if err != io.EOF {
				c.logger.Warn("snapcast: read error", "error", err)
			}
			return
		}

		var raw rpcRaw
		if err := json.Unmarshal(line, &raw); err != nil {
			c.logger.Debug("snapcast: non-JSON line", "line", string(line))
			continue
		}

		if raw.ID != nil {
			c.mu.Lock()
			ch, ok := c.pending[*raw.ID]
			if ok {
				delete(c.pending, *raw.ID)
			}
			c.mu.Unlock()
			if ok {
				ch <- rpcResponse{Result: raw.Result, Error: raw.Error}
			}
			continue
		}

		if raw.Method != "" {
			c.handleNotification(raw.Method, raw.Params)
		}
	}
}

// handleNotification publishes a raw server push for subscribers to
// decode. internal/wiring subscribes to ServerNotification and turns
// Client.OnConnect/OnDisconnect/OnVolumeChanged and
// Group.OnStreamChanged into typed, Source=Internal state changes per
// spec.md §4.4; this package only owns the wire decode helpers on
// ServerNotification itself.
func (c *Client) handleNotification(method string, params json.RawMessage) {
	c.logger.Debug("snapcast: notification", "method", method)
	if c.med != nil {
		c.med.Publish(ServerNotification{Method: method, Params: params})
	}
}

// call sends a JSON-RPC request and blocks for the matching response.
func (c *Client) call(ctx context.Context, method string, params any, out any) *result.Error {
	if !c.connected.Load() {
		return result.New(result.Unavailable, "snapcast: not connected")
	}

	id := c.nextID.Add(1)
	ch := make(chan rpcResponse, 1)

	c.mu.Lock()
	if c.writer == nil {
		c.mu.Unlock()
		return result.New(result.Unavailable, "snapcast: not connected")
	}
	c.pending[id] = ch
	req := rpcRequest{JSONRPC: "2.0", ID: id, Method: method, Params: params}
	data, err := json.Marshal(req)
	if err != nil {
		delete(c.pending, id)
		c.mu.Unlock()
		return result.New(result.Internal, "snapcast: marshal request: %v", err)
	}
	_, writeErr := c.writer.Write(append(data, '\n'))
	c.mu.Unlock()
	if writeErr != nil {
		c.mu.Lock()
		delete(c.pending, id)
		c.mu.Unlock()
		return result.New(result.Unavailable, "snapcast: write failed: %v", writeErr)
	}

	select {
	case <-ctx.Done():
		c.mu.Lock()
		delete(c.pending, id)
		c.mu.Unlock()
		return result.New(result.Timeout, "snapcast: %s timed out", method)
	case resp := <-ch:
		if resp.Error != nil {
			return result.Wrap(result.External, resp.Error, "snapcast: %s failed", method)
		}
		if out != nil && len(resp.Result) > 0 {
			if err := json.Unmarshal(resp.Result, out); err != nil {
				return result.New(result.Internal, "snapcast: unmarshal %s result: %v", method, err)
			}
		}
		return nil
	}
}

// GetServerStatus implements grouping.SnapcastStatusProvider.
func (c *Client) GetServerStatus(ctx context.Context) ([]grouping.SnapcastGroup, error) {
	var status serverStatus
	if err := c.call(ctx, "Server.GetStatus", nil, &status); err != nil {
		return nil, err
	}
	out := make([]grouping.SnapcastGroup, 0, len(status.Server.Groups))
	for _, g := range status.Server.Groups {
		ids := make([]string, 0, len(g.Clients))
		for _, cl := range g.Clients {
			ids = append(ids, cl.ID)
		}
		out = append(out, grouping.SnapcastGroup{ID: g.ID, Stream: g.Stream, Clients: ids})
	}
	return out, nil
}

// SetClientVolume sets a Snapcast client's volume percent and mute.
func (c *Client) SetClientVolume(ctx context.Context, snapcastClientID string, percent int, muted bool) *result.Error {
	return c.call(ctx, "Client.SetVolume", map[string]any{
		"id": snapcastClientID,
		"volume": map[string]any{
			"percent": percent,
			"muted":   muted,
		},
	}, nil)
}

// SetClientMute sets only the mute flag, leaving volume unchanged.
func (c *Client) SetClientMute(ctx context.Context, snapcastClientID string, muted bool) *result.Error {
	return c.call(ctx, "Client.SetVolume", map[string]any{
		"id":     snapcastClientID,
		"volume": map[string]any{"muted": muted},
	}, nil)
}

// SetClientLatency sets a client's output delay compensation in ms.
func (c *Client) SetClientLatency(ctx context.Context, snapcastClientID string, ms int) *result.Error {
	return c.call(ctx, "Client.SetLatency", map[string]any{
		"id": snapcastClientID, "latency": ms,
	}, nil)
}

// SetClientGroup implements grouping.SnapcastStatusProvider.
func (c *Client) SetClientGroup(ctx context.Context, snapcastClientID, groupID string) error {
	return errOrNil(c.call(ctx, "Group.SetClients", map[string]any{
		"id": groupID, "clients": []string{snapcastClientID},
	}, nil))
}

// SetGroupStream implements grouping.SnapcastStatusProvider.
func (c *Client) SetGroupStream(ctx context.Context, groupID, stream string) error {
	return errOrNil(c.call(ctx, "Group.SetStream", map[string]any{
		"id": groupID, "stream_id": stream,
	}, nil))
}

// CreateGroup implements grouping.SnapcastStatusProvider. It sends a
// Group.AddGroup request carrying the stream id and returns the group
// id the server reports in its result.
func (c *Client) CreateGroup(ctx context.Context, stream string) (string, error) {
	var out struct {
		ID string `json:"id"`
	}
	if err := c.call(ctx, "Group.AddGroup", map[string]any{"stream_id": stream}, &out); err != nil {
		return "", err
	}
	return out.ID, nil
}

// DeleteGroup removes an empty group.
func (c *Client) DeleteGroup(ctx context.Context, groupID string) *result.Error {
	return c.call(ctx, "Group.DeleteGroup", map[string]any{"id": groupID}, nil)
}

func errOrNil(e *result.Error) error {
	if e == nil {
		return nil
	}
	return e
}
