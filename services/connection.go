package services

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"vivarium/config"
	"vivarium/models"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// reconnectDelay is the fixed interval between reconnect attempts. The
// appliance sits on the local network, so a plain fixed retry beats
// exponential backoff and the client retries forever.
const reconnectDelay = 10 * time.Second

// ConnectionService owns the single websocket session to the appliance: the
// dial, the client_init handshake, the read loop and the reconnect schedule.
// Other services only ever see the Send capability and the decoded envelopes,
// never the socket handle.
type ConnectionService struct {
	logger   *zap.Logger
	url      string
	watchdog *WatchdogService
	router   *RouterService

	retryDelay time.Duration
	dialer     *websocket.Dialer

	mu            sync.Mutex
	state         models.SessionState
	conn          *websocket.Conn
	reconnect     *time.Timer
	everConnected bool
	closing       bool

	writeMu sync.Mutex

	inbound   chan *models.Envelope
	done      chan struct{}
	closeOnce sync.Once
}

func NewConnectionService(cfg *config.Config, watchdog *WatchdogService, router *RouterService, logger *zap.Logger) *ConnectionService {
	queueSize := cfg.InboundQueueSize
	if queueSize <= 0 {
		queueSize = 64
	}
	return &ConnectionService{
		logger:     logger,
		url:        cfg.ServerURL,
		watchdog:   watchdog,
		router:     router,
		retryDelay: reconnectDelay,
		dialer:     websocket.DefaultDialer,
		state:      models.SessionDisconnected,
		inbound:    make(chan *models.Envelope, queueSize),
		done:       make(chan struct{}),
	}
}

// Start launches the dispatcher goroutine and the first connection attempt.
func (c *ConnectionService) Start(ctx context.Context) {
	go c.dispatch(ctx)
	c.Connect()
}

// Connect begins one connection attempt. Any pending reconnect timer is
// cancelled first so at most one attempt is ever in flight; a call while
// connecting or open is a no-op.
func (c *ConnectionService) Connect() {
	c.mu.Lock()
	if c.closing || c.state == models.SessionConnecting || c.state == models.SessionOpen {
		c.mu.Unlock()
		return
	}
	if c.reconnect != nil {
		c.reconnect.Stop()
		c.reconnect = nil
	}
	c.state = models.SessionConnecting
	resumed := c.everConnected
	c.mu.Unlock()

	go c.dial(resumed)
}

// dial runs one attempt end to end: a failed dial is handled exactly like a
// socket close and is never fatal.
func (c *ConnectionService) dial(resumed bool) {
	c.logger.Info("Connecting to appliance",
		zap.String("url", c.url),
		zap.Bool("resumed", resumed))

	conn, resp, err := c.dialer.Dial(c.url, nil)
	if resp != nil && resp.Body != nil {
		resp.Body.Close()
	}
	if err != nil {
		c.logger.Warn("Connection attempt failed", zap.Error(err))
		c.dropConnection(nil)
		return
	}

	c.mu.Lock()
	if c.closing {
		c.mu.Unlock()
		conn.Close()
		return
	}
	c.conn = conn
	c.state = models.SessionOpen
	c.everConnected = true
	c.mu.Unlock()

	c.logger.Info("Session open", zap.Bool("resumed", resumed))

	if err := c.Send(models.TypeClientInit, models.ClientInit{Reconnect: resumed}); err != nil {
		c.logger.Warn("Handshake send failed", zap.Error(err))
	}

	c.readLoop(conn)
}

// readLoop reads frames until the socket dies. Every frame rearms the
// watchdog before being queued for dispatch.
func (c *ConnectionService) readLoop(conn *websocket.Conn) {
	for {
		_, payload, err := conn.ReadMessage()
		if err != nil {
			c.mu.Lock()
			closing := c.closing
			c.mu.Unlock()
			if !closing {
				c.logger.Warn("Session closed", zap.Error(err))
				c.dropConnection(conn)
			}
			return
		}

		c.watchdog.Touch()

		var env models.Envelope
		if err := json.Unmarshal(payload, &env); err != nil {
			c.logger.Warn("Discarding unparseable frame", zap.Error(err))
			continue
		}

		select {
		case c.inbound <- &env:
		case <-c.done:
			return
		}
	}
}

// dispatch drains inbound envelopes one at a time, so handlers always observe
// messages in arrival order and each one runs to completion before the next.
func (c *ConnectionService) dispatch(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-c.done:
			return
		case env := <-c.inbound:
			c.router.Route(env)
		}
	}
}

// dropConnection tears down the current socket if any, declares the appliance
// offline without waiting for the watchdog countdown, and schedules exactly
// one reconnect attempt.
func (c *ConnectionService) dropConnection(conn *websocket.Conn) {
	c.mu.Lock()
	if c.closing {
		c.mu.Unlock()
		return
	}
	if c.state == models.SessionDisconnected && c.reconnect != nil {
		// Close already handled; one pending attempt is enough.
		c.mu.Unlock()
		return
	}
	if conn != nil && c.conn == conn {
		c.conn.Close()
	}
	c.conn = nil
	c.state = models.SessionDisconnected
	if c.reconnect != nil {
		c.reconnect.Stop()
	}
	c.reconnect = time.AfterFunc(c.retryDelay, c.Connect)
	delay := c.retryDelay
	c.mu.Unlock()

	c.watchdog.ForceOffline()
	c.logger.Info("Reconnect scheduled", zap.Duration("delay", delay))
}

// Send encodes data into an envelope and writes it as a single JSON frame.
// This is the only send capability exposed to collaborators.
func (c *ConnectionService) Send(msgType string, data interface{}) error {
	payload, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("encode %s payload: %w", msgType, err)
	}
	frame, err := json.Marshal(models.Envelope{Type: msgType, Data: payload})
	if err != nil {
		return fmt.Errorf("encode %s envelope: %w", msgType, err)
	}

	c.mu.Lock()
	conn := c.conn
	c.mu.Unlock()
	if conn == nil {
		return fmt.Errorf("session not open")
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return conn.WriteMessage(websocket.TextMessage, frame)
}

// State reports the current session state.
func (c *ConnectionService) State() models.SessionState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Close tears the session down for good; no further reconnects are scheduled.
// Idempotent.
func (c *ConnectionService) Close() error {
	c.mu.Lock()
	c.closing = true
	c.state = models.SessionClosing
	if c.reconnect != nil {
		c.reconnect.Stop()
		c.reconnect = nil
	}
	conn := c.conn
	c.conn = nil
	c.mu.Unlock()

	c.closeOnce.Do(func() {
		close(c.done)
	})

	if conn != nil {
		return conn.Close()
	}
	return nil
}
