package cmclient

// EventKind tags a ClientEvent's payload (spec §9 "Event emitter": a sum
// type instead of a string-keyed listener map).
type EventKind int

const (
	EventDebug EventKind = iota
	EventConnected
	EventMessage
	EventServers
	EventLogOnResponse
	EventLoggedOff
	EventError
)

// MessageEvent carries a generic, non-internally-handled frame (spec §4.5
// step 7) along with a reply continuation when the frame is correlatable.
type MessageEvent struct {
	Header Header
	Body   []byte
	Reply  ResponseFunc
}

// LogOnResponseEvent carries a ClientLogOnResponse's fields relevant to the
// event consumer, without exposing the wire message type.
type LogOnResponseEvent struct {
	Eresult           int32
	HeartbeatSeconds  int32
}

// ClientEvent is the CSP-style alternative to the typed callback hooks
// (spec §9). Only the field matching Kind is populated.
type ClientEvent struct {
	Kind EventKind

	Debug           string
	Message         *MessageEvent
	Servers         []Endpoint
	LogOnResponse   LogOnResponseEvent
	LoggedOffResult int32
	Err             error
}

// emit pushes an event onto the event channel, if one is configured. Never
// blocks indefinitely: a full channel drops the event rather than stalling
// the dispatch loop or a caller's goroutine.
func (c *Client) emit(ev ClientEvent) {
	if c.events == nil {
		return
	}
	select {
	case c.events <- ev:
	default:
		c.logger.Warn("event channel full, dropping event", "kind", ev.Kind)
	}
}

func (c *Client) emitDebug(msg string) {
	if c.OnDebug != nil {
		c.OnDebug(msg)
	}
	c.emit(ClientEvent{Kind: EventDebug, Debug: msg})
}

func (c *Client) emitDebugLocked(msg string) {
	c.mu.Unlock()
	c.emitDebug(msg)
	c.mu.Lock()
}

func (c *Client) emitConnectedLocked() {
	c.mu.Unlock()
	if c.OnConnected != nil {
		c.OnConnected()
	}
	c.emit(ClientEvent{Kind: EventConnected})
	c.mu.Lock()
}

func (c *Client) emitMessage(hdr Header, body []byte, reply ResponseFunc) {
	if c.OnMessage != nil {
		c.OnMessage(hdr, body, reply)
	}
	c.emit(ClientEvent{Kind: EventMessage, Message: &MessageEvent{Header: hdr, Body: body, Reply: reply}})
}

func (c *Client) emitServersLocked(servers []Endpoint) {
	c.mu.Unlock()
	if c.OnServers != nil {
		c.OnServers(servers)
	}
	c.emit(ClientEvent{Kind: EventServers, Servers: servers})
	c.mu.Lock()
}

func (c *Client) emitLogOnResponseLocked(eresult int32, heartbeatSeconds int32) {
	c.mu.Unlock()
	if c.OnLogOnResponse != nil {
		c.OnLogOnResponse(eresult, heartbeatSeconds)
	}
	c.emit(ClientEvent{Kind: EventLogOnResponse, LogOnResponse: LogOnResponseEvent{Eresult: eresult, HeartbeatSeconds: heartbeatSeconds}})
	c.mu.Lock()
}

func (c *Client) emitLoggedOffLocked(eresult int32) {
	c.mu.Unlock()
	if c.OnLoggedOff != nil {
		c.OnLoggedOff(eresult)
	}
	c.emit(ClientEvent{Kind: EventLoggedOff, LoggedOffResult: eresult})
	c.mu.Lock()
}

func (c *Client) emitError(err error) {
	if c.OnError != nil {
		c.OnError(err)
	}
	c.emit(ClientEvent{Kind: EventError, Err: err})
}

func (c *Client) emitErrorLocked(err error) {
	c.mu.Unlock()
	c.emitError(err)
	c.mu.Lock()
}
