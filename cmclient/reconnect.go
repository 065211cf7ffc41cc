package cmclient

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// ErrDisconnected is surfaced when a connection that completed the
// channel-encrypt handshake drops, whether or not it was logged on.
var ErrDisconnected = errors.New("cmclient: disconnected")

// ErrCannotConnect is surfaced when a connection attempt fails and
// automatic retry is disabled.
var ErrCannotConnect = errors.New("cmclient: cannot connect")

// ErrProtocol is surfaced when an inbound frame cannot be parsed under the
// wire format (a malformed header, a malformed internally-handled body).
var ErrProtocol = errors.New("cmclient: protocol error")

// EncryptionFailedError reports a ChannelEncryptResult eresult other than
// OK. The handshake never recovers from this; the client is disconnected
// and auto-retry is suppressed (spec §7).
type EncryptionFailedError struct {
	Eresult int32
}

func (e *EncryptionFailedError) Error() string {
	return fmt.Sprintf("cmclient: encryption failed, eresult=%d", e.Eresult)
}

// connPhase tracks where a single connection attempt is in its lifecycle.
type connPhase int

const (
	phaseIdle connPhase = iota
	phaseConnecting
	phaseEncrypting
	phaseReady
	phaseScheduledRetry
)

// reconnectState holds the automatic-reconnection policy (spec §4.7):
// exponential backoff starting at 1s, doubling on each error-driven
// close, reset to unset on every successful low-level connect.
type reconnectState struct {
	autoRetry   bool
	backoffSecs uint32 // 0 means "unset" (next attempt uses 1s)
	timer       *time.Timer
	lastServer  *Endpoint
}

// doConnect is the shared implementation behind Connect and automatic
// reconnection: tear down any existing connection, reset job counters and
// session state, bump the connection generation, and dial (spec §4.4).
func (c *Client) doConnect(ctx context.Context, server *Endpoint, autoRetry bool) error {
	c.mu.Lock()
	if c.reconnect.timer != nil {
		c.reconnect.timer.Stop()
		c.reconnect.timer = nil
	}
	c.teardownLocked()
	c.jobs.reset()
	c.steamID = 0
	c.sessionID = 0
	c.generation++
	gen := c.generation
	c.phase = phaseConnecting
	c.reconnect.autoRetry = autoRetry
	ep := c.pickEndpoint(server)
	c.reconnect.lastServer = &ep
	localAddr, localPort := c.localAddr, c.localPort
	c.mu.Unlock()

	c.emitDebug(fmt.Sprintf("connecting to %s", ep))

	cfg := TransportConfig{
		Remote:         ep,
		LocalAddr:      localAddr,
		LocalPort:      localPort,
		ConnectTimeout: time.Second,
	}
	conn, err := dialTCP(ctx, cfg)
	if err != nil {
		c.onTransportClosed(gen, true)
		return fmt.Errorf("cmclient: dial %s: %w", ep, err)
	}

	c.mu.Lock()
	c.conn = conn
	c.phase = phaseEncrypting
	c.reconnect.backoffSecs = 0
	c.mu.Unlock()

	go c.readLoop(gen, conn)
	return nil
}

// readLoop is the sole reader for one Transport generation: every frame it
// reads is handed to the single dispatchLoop consumer in order.
func (c *Client) readLoop(gen uint64, conn Connection) {
	for {
		data, err := conn.Read(context.Background())
		if err != nil {
			c.mu.Lock()
			stillActive := c.generation == gen && c.conn == conn
			c.mu.Unlock()
			if !stillActive {
				return // superseded by a newer Connect or an explicit Disconnect
			}
			c.onTransportClosed(gen, true)
			return
		}
		c.frames <- frameMsg{gen: gen, data: data}
	}
}

// onTransportClosed implements the reconnection policy (spec §4.7). gen
// identifies the connection attempt that closed; a close event from a
// superseded generation is ignored.
func (c *Client) onTransportClosed(gen uint64, hadError bool) {
	c.mu.Lock()
	if gen != c.generation {
		c.mu.Unlock()
		return
	}

	wasConnected := c.connected
	autoRetry := c.reconnect.autoRetry
	lastServer := c.reconnect.lastServer
	backoff := c.reconnect.backoffSecs

	c.teardownLocked()

	switch {
	case wasConnected:
		c.mu.Unlock()
		c.emitError(ErrDisconnected)
		return
	case !autoRetry:
		c.mu.Unlock()
		c.emitError(ErrCannotConnect)
		return
	case !hadError:
		c.mu.Unlock()
		go func() { _ = c.doConnect(context.Background(), lastServer, autoRetry) }()
		return
	default:
		use := backoff
		if use == 0 {
			use = 1
		}
		c.reconnect.backoffSecs = use * 2
		c.phase = phaseScheduledRetry
		d := time.Duration(use) * time.Second
		c.reconnect.timer = time.AfterFunc(d, func() {
			c.mu.Lock()
			if c.generation != gen {
				c.mu.Unlock()
				return
			}
			c.mu.Unlock()
			_ = c.doConnect(context.Background(), lastServer, autoRetry)
		})
		c.mu.Unlock()
		return
	}
}
