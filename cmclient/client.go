// Package cmclient implements the framed, encrypted connection-manager
// (CM) session: transport, handshake, header/job routing, heartbeat, and
// automatic reconnection with backoff.
package cmclient

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"net/http"
	"sync"
	"time"
)

// Client manages a connection to a CM server. At most one Transport is live
// per Client at a time (spec §3 invariant); a new Connect tears down any
// existing one first.
type Client struct {
	mu   sync.Mutex // guards the fields below; held only for short critical sections
	conn Connection

	steamID     uint64
	sessionID   int32
	loggedOn    bool
	connected   bool
	phase       connPhase
	generation  uint64
	localAddr   string
	localPort   uint16

	jobs      *jobRegistry
	reconnect reconnectState

	pendingKey     []byte
	pendingUseHMAC bool

	heartbeatStop chan struct{}

	dir          *ServerDirectory
	httpClient   *http.Client
	discoveryURL string
	logger       *slog.Logger

	rejectPendingOnDisconnect bool
	idleTimeout               time.Duration

	frames chan frameMsg
	events chan ClientEvent

	// Typed callback hooks (spec §9: typed hooks over a string-keyed
	// listener map). All are optional.
	OnDebug         func(string)
	OnConnected     func()
	OnMessage       func(hdr Header, body []byte, reply ResponseFunc)
	OnServers       func([]Endpoint)
	OnLogOnResponse func(eresult int32, heartbeatSeconds int32)
	OnLoggedOff     func(eresult int32)
	OnError         func(error)
}

type sessionSnapshot struct {
	steamID   uint64
	sessionID int32
}

type config struct {
	directory                 *ServerDirectory
	seedServers               []Endpoint
	httpClient                *http.Client
	discoveryURL              string
	logger                    *slog.Logger
	localAddr                 string
	localPort                 uint16
	eventBuffer               int
	rejectPendingOnDisconnect bool
}

// Option configures a Client at construction time.
type Option func(*config)

// WithServerDirectory injects a ServerDirectory collaborator, overriding
// the default one seeded from WithSeedServers / HTTP discovery.
func WithServerDirectory(d *ServerDirectory) Option {
	return func(c *config) { c.directory = d }
}

// WithSeedServers seeds the default ServerDirectory with a fixed bootstrap
// list, skipping HTTP discovery entirely.
func WithSeedServers(servers []Endpoint) Option {
	return func(c *config) { c.seedServers = servers }
}

// WithHTTPClient sets the HTTP client used for server discovery.
func WithHTTPClient(h *http.Client) Option {
	return func(c *config) { c.httpClient = h }
}

// WithDiscoveryURL overrides the default server-list discovery endpoint.
func WithDiscoveryURL(url string) Option {
	return func(c *config) { c.discoveryURL = url }
}

// WithLogger sets the structured logger.
func WithLogger(l *slog.Logger) Option {
	return func(c *config) { c.logger = l }
}

// WithEventChannel enables the CSP-style ClientEvent channel alongside the
// typed callback hooks (spec §9), buffered to size.
func WithEventChannel(size int) Option {
	return func(c *config) { c.eventBuffer = size }
}

// WithRejectPendingJobsOnDisconnect makes Disconnect invoke every pending
// job callback with (nil, nil, nil) instead of silently dropping it; a nil
// Header marks a job that was dropped rather than answered (the opt-in
// spec §7 recommends for the open question it leaves unresolved).
func WithRejectPendingJobsOnDisconnect() Option {
	return func(c *config) { c.rejectPendingOnDisconnect = true }
}

// New constructs an idle client.
func New(opts ...Option) *Client {
	cfg := config{
		httpClient:   http.DefaultClient,
		discoveryURL: defaultDiscoveryURL,
		logger:       slog.Default(),
	}
	for _, opt := range opts {
		opt(&cfg)
	}

	dir := cfg.directory
	if dir == nil {
		dir = NewServerDirectory(cfg.seedServers)
	}

	c := &Client{
		phase:                     phaseIdle,
		jobs:                      newJobRegistry(),
		dir:                       dir,
		httpClient:                cfg.httpClient,
		discoveryURL:              cfg.discoveryURL,
		logger:                    cfg.logger,
		localAddr:                 cfg.localAddr,
		localPort:                 cfg.localPort,
		rejectPendingOnDisconnect: cfg.rejectPendingOnDisconnect,
		frames:                    make(chan frameMsg, 32),
	}
	if cfg.eventBuffer > 0 {
		c.events = make(chan ClientEvent, cfg.eventBuffer)
	}

	go c.dispatchLoop()

	return c
}

// Events returns the CSP-style event channel, or nil if WithEventChannel
// was not passed to New.
func (c *Client) Events() <-chan ClientEvent {
	return c.events
}

// Bind records a local address/port to use on the next Connect.
func (c *Client) Bind(localAddr string, localPort uint16) {
	c.mu.Lock()
	c.localAddr = localAddr
	c.localPort = localPort
	c.mu.Unlock()
}

// Connect disconnects any current connection, resets job counters and
// session state, picks server (or a random bootstrap entry), and initiates
// a Transport connect with a 1-second connect timeout (spec §4.4).
func (c *Client) Connect(ctx context.Context, server *Endpoint, autoRetry bool) error {
	return c.doConnect(ctx, server, autoRetry)
}

// Disconnect tears down any live Transport, stops the heartbeat, cancels a
// pending reconnect timer, and clears session flags. Idempotent.
func (c *Client) Disconnect() {
	c.mu.Lock()
	c.reconnect.autoRetry = false
	if c.reconnect.timer != nil {
		c.reconnect.timer.Stop()
		c.reconnect.timer = nil
	}
	c.teardownLocked()
	c.jobs.clear(c.rejectFunc())
	c.mu.Unlock()
}

// rejectFunc returns the pending-job rejection callback configured via
// WithRejectPendingJobsOnDisconnect, or nil to silently drop (spec §7's
// default, unresolved-open-question behavior).
func (c *Client) rejectFunc() func(ResponseCallback) {
	if !c.rejectPendingOnDisconnect {
		return nil
	}
	return func(cb ResponseCallback) { cb(nil, nil, nil) }
}

// teardownLocked closes the live Transport (if any) and stops the
// heartbeat. Must be called with c.mu held. Does not touch the job
// registry or reconnect policy — callers decide those independently.
func (c *Client) teardownLocked() {
	if c.conn != nil {
		c.conn.Close()
		c.conn = nil
	}
	if c.heartbeatStop != nil {
		close(c.heartbeatStop)
		c.heartbeatStop = nil
	}
	c.loggedOn = false
	c.connected = false
	c.phase = phaseIdle
}

// Send strips any caller-supplied target job id (this entrypoint is for
// originating requests only — spec §4.4), allocates a source job id if cb
// is non-nil, and writes the frame to the Transport.
func (c *Client) Send(ctx context.Context, hdr Header, body []byte, cb ResponseCallback) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	sourceJob := NoJobID
	if cb != nil {
		sourceJob = c.jobs.alloc(cb)
	}
	return c.writeFrameLocked(hdr, body, sourceJob, NoJobID)
}

// writeFrameLocked stamps session-derived header fields, encodes, and
// writes one frame. Must be called with c.mu held.
func (c *Client) writeFrameLocked(hdr Header, body []byte, sourceJob, targetJob uint64) error {
	if c.conn == nil {
		return fmt.Errorf("cmclient: not connected")
	}

	sess := sessionSnapshot{steamID: c.steamID, sessionID: c.sessionID}
	stamped := stampOutbound(hdr, sess, sourceJob, targetJob)

	hdrBytes, err := EncodeHeader(stamped)
	if err != nil {
		return fmt.Errorf("cmclient: encode header: %w", err)
	}

	frame := make([]byte, len(hdrBytes)+len(body))
	copy(frame, hdrBytes)
	copy(frame[len(hdrBytes):], body)

	return c.conn.Write(context.Background(), frame)
}

// makeReplyFunc builds the reply continuation for a frame whose source job
// id is targetJob (spec §4.5 step 6): sending through it stamps
// target_job = targetJob on the caller's header, and allocates a fresh
// source job if the caller wants its own reply correlated in turn.
func (c *Client) makeReplyFunc(targetJob uint64) ResponseFunc {
	return func(ctx context.Context, hdr Header, body []byte, cb ResponseCallback) error {
		c.mu.Lock()
		defer c.mu.Unlock()
		sourceJob := NoJobID
		if cb != nil {
			sourceJob = c.jobs.alloc(cb)
		}
		return c.writeFrameLocked(hdr, body, sourceJob, targetJob)
	}
}

// SetIdleTimeout arms the Transport's idle-read deadline once a session is
// established. The heartbeat loop is the liveness signal while logged on,
// so this defaults to disabled; callers with tighter liveness requirements
// than the heartbeat interval can opt in (spec §9).
func (c *Client) SetIdleTimeout(d time.Duration) {
	c.mu.Lock()
	c.idleTimeout = d
	if c.conn != nil {
		c.conn.SetTimeout(d)
	}
	c.mu.Unlock()
}

// RefreshServers fetches a fresh bootstrap list from the configured
// discovery URL and swaps it into the ServerDirectory. Callers typically
// invoke this once at startup, before the first Connect; after that the
// directory is kept current by ClientCMList frames (spec §4.6).
func (c *Client) RefreshServers(ctx context.Context) error {
	c.mu.Lock()
	httpClient := c.httpClient
	discoveryURL := c.discoveryURL
	c.mu.Unlock()

	servers, err := DiscoverServers(ctx, httpClient, discoveryURL)
	if err != nil {
		return err
	}
	c.dir.Update(servers)
	return nil
}

func (c *Client) pickEndpoint(server *Endpoint) Endpoint {
	if server != nil {
		return *server
	}
	snapshot := c.dir.Snapshot()
	if len(snapshot) == 0 {
		return Endpoint{}
	}
	return snapshot[rand.IntN(len(snapshot))]
}

func (c *Client) startHeartbeatLocked(interval time.Duration) {
	if c.heartbeatStop != nil {
		close(c.heartbeatStop)
	}
	stop := make(chan struct{})
	c.heartbeatStop = stop
	go c.heartbeatLoop(interval, stop)
}

func (c *Client) stopHeartbeatLocked() {
	if c.heartbeatStop != nil {
		close(c.heartbeatStop)
		c.heartbeatStop = nil
	}
}

func (c *Client) heartbeatLoop(interval time.Duration, stop chan struct{}) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			hdr := ProtoHeader{Msg: EMsgClientHeartBeat}
			if err := c.Send(context.Background(), hdr, nil, nil); err != nil {
				c.logger.Error("heartbeat failed", "err", err)
				return
			}
			c.logger.Debug("heartbeat sent")
		}
	}
}

func ipv4String(be uint32) string {
	return fmt.Sprintf("%d.%d.%d.%d", byte(be>>24), byte(be>>16), byte(be>>8), byte(be))
}
