package cmclient

import (
	"encoding/binary"
	"fmt"
	"hash/crc32"
	"time"

	"github.com/vtnet/cmlink/cmproto"
)

// frameMsg is one inbound frame tagged with the connection generation it
// arrived on, so a stale frame from a superseded connection can be dropped
// cheaply instead of corrupting the live session (spec §9 "Timers").
type frameMsg struct {
	gen  uint64
	data []byte
}

// dispatchLoop is the single consumer of inbound frames for the lifetime of
// the Client. Because exactly one goroutine ever calls handleFrame, frames
// are processed strictly in wire order with no interleaving between a
// handler's work and the next frame's (spec §5).
func (c *Client) dispatchLoop() {
	for f := range c.frames {
		c.handleFrame(f.gen, f.data)
	}
}

// handleFrame implements the seven-step dispatch algorithm (spec §4.5):
// decode the header, latch session identity, invoke any internal handler,
// build a reply continuation, then route to a waiting job or emit a
// generic message event.
func (c *Client) handleFrame(gen uint64, data []byte) {
	c.mu.Lock()
	if gen != c.generation || c.conn == nil {
		c.mu.Unlock()
		return
	}

	hdr, body, protoHdrLen, err := DecodeHeader(data)
	if err != nil {
		c.mu.Unlock()
		c.emitError(fmt.Errorf("%w: %v", ErrProtocol, err))
		c.Disconnect()
		return
	}

	if ph, ok := hdr.(ProtoHeader); ok && protoHdrLen > 0 {
		sid := ph.Proto.GetClientSessionID()
		if sid != 0 && c.sessionID == 0 {
			c.sessionID = sid
			c.steamID = ph.Proto.GetSteamID()
		}
	}

	msg := hdr.msg()

	switch msg {
	case EMsgChannelEncryptRequest:
		c.handleChannelEncryptRequestLocked(body)
	case EMsgChannelEncryptResult:
		c.handleChannelEncryptResultLocked(body)
	case EMsgMulti:
		c.handleMultiLocked(gen, body)
		c.mu.Unlock()
		return
	case EMsgClientLogOnResponse:
		c.handleLogOnResponseLocked(body)
	case EMsgClientLoggedOff:
		c.handleLoggedOffLocked(body)
	case EMsgClientCMList:
		c.handleCMListLocked(body)
	}

	sourceJob := SourceJobOf(hdr)
	targetJob := TargetJobOf(hdr)

	var reply ResponseFunc
	if sourceJob != NoJobID {
		reply = c.makeReplyFunc(sourceJob)
	}

	if targetJob != NoJobID {
		if cb, ok := c.jobs.take(targetJob); ok {
			c.mu.Unlock()
			cb(hdr, body, reply)
			return
		}
	}

	c.mu.Unlock()
	c.emitMessage(hdr, body, reply)
}

// handleChannelEncryptRequestLocked generates a fresh session key, caches
// it pending ChannelEncryptResult, and replies with the encrypted blob
// (spec §4.6). Must be called with c.mu held.
func (c *Client) handleChannelEncryptRequestLocked(body []byte) {
	c.emitDebugLocked("encrypt request")
	if c.conn != nil {
		c.conn.SetTimeout(0)
	}

	var challenge []byte
	if len(body) >= 24 {
		challenge = body[8:24]
	}

	key, err := generateSessionKey(challenge)
	if err != nil {
		c.emitErrorLocked(fmt.Errorf("cmclient: generate session key: %w", err))
		return
	}
	c.pendingKey = key.plain
	c.pendingUseHMAC = len(challenge) > 0

	crc := crc32.ChecksumIEEE(key.encrypted)
	respBody := make([]byte, 0, 16+len(key.encrypted))
	respBody = binary.LittleEndian.AppendUint32(respBody, 1) // protocol version
	respBody = binary.LittleEndian.AppendUint32(respBody, uint32(len(key.encrypted)))
	respBody = append(respBody, key.encrypted...)
	respBody = binary.LittleEndian.AppendUint32(respBody, crc)
	respBody = binary.LittleEndian.AppendUint32(respBody, 0) // reserved

	hdr := PlainHeader{Msg: EMsgChannelEncryptResponse, TargetJob: NoJobID, SourceJob: NoJobID}
	if err := c.writeFrameLocked(hdr, respBody, NoJobID, NoJobID); err != nil {
		c.emitErrorLocked(fmt.Errorf("cmclient: send encrypt response: %w", err))
	}
}

// handleChannelEncryptResultLocked installs the pending session key once
// the server confirms the handshake, or surfaces a terminal error
// otherwise (spec §4.6, §7).
func (c *Client) handleChannelEncryptResultLocked(body []byte) {
	if len(body) < 4 {
		c.emitErrorLocked(fmt.Errorf("%w: channel encrypt result truncated", ErrProtocol))
		return
	}
	eresult := int32(binary.LittleEndian.Uint32(body[0:4]))

	if eresult != 1 {
		c.pendingKey = nil
		c.emitErrorLocked(&EncryptionFailedError{Eresult: eresult})
		c.reconnect.autoRetry = false
		c.mu.Unlock()
		c.Disconnect()
		c.mu.Lock()
		return
	}

	if c.conn != nil {
		if err := c.conn.InstallSessionKey(c.pendingKey, c.pendingUseHMAC); err != nil {
			c.emitErrorLocked(fmt.Errorf("cmclient: install session key: %w", err))
			return
		}
	}
	c.pendingKey = nil
	c.connected = true
	c.phase = phaseReady
	c.emitConnectedLocked()
}

// handleMultiLocked unpacks a batch and recursively dispatches each
// sub-frame in order, aborting if the connection is torn down mid-batch
// (spec §4.6, §8). Must be called with c.mu held; it releases and
// re-acquires the lock around each recursive handleFrame call.
func (c *Client) handleMultiLocked(gen uint64, body []byte) {
	var m cmproto.Multi
	if err := m.Unmarshal(body); err != nil {
		c.emitErrorLocked(fmt.Errorf("%w: multi: %v", ErrProtocol, err))
		return
	}

	frames, err := decodeMulti(m.GetMessageBody(), m.GetSizeUnzipped())
	if err != nil {
		c.emitErrorLocked(fmt.Errorf("%w: %v", ErrProtocol, err))
		return
	}

	c.mu.Unlock()
	for _, sub := range frames {
		c.mu.Lock()
		stillActive := gen == c.generation && c.conn != nil
		c.mu.Unlock()
		if !stillActive {
			break
		}
		c.handleFrame(gen, sub)
	}
	c.mu.Lock()
}

func (c *Client) handleLogOnResponseLocked(body []byte) {
	var resp cmproto.ClientLogOnResponse
	if err := resp.Unmarshal(body); err != nil {
		c.emitErrorLocked(fmt.Errorf("%w: logon response: %v", ErrProtocol, err))
		return
	}

	if resp.GetEresult() == 1 {
		secs := resp.GetOutOfGameHeartbeatSeconds()
		if secs <= 0 {
			secs = 30
		}
		c.loggedOn = true
		c.startHeartbeatLocked(time.Duration(secs) * time.Second)
	}
	c.emitLogOnResponseLocked(resp.GetEresult(), resp.GetOutOfGameHeartbeatSeconds())
}

func (c *Client) handleLoggedOffLocked(body []byte) {
	var off cmproto.ClientLoggedOff
	if err := off.Unmarshal(body); err != nil {
		c.emitErrorLocked(fmt.Errorf("%w: logged off: %v", ErrProtocol, err))
		return
	}
	c.loggedOn = false
	c.stopHeartbeatLocked()
	c.emitLoggedOffLocked(off.GetEresult())
}

func (c *Client) handleCMListLocked(body []byte) {
	var list cmproto.ClientCMList
	if err := list.Unmarshal(body); err != nil {
		c.emitErrorLocked(fmt.Errorf("%w: cm list: %v", ErrProtocol, err))
		return
	}

	addrs := list.GetCMAddresses()
	ports := list.GetCMPorts()
	endpoints := make([]Endpoint, 0, len(addrs))
	for i, a := range addrs {
		var port uint16
		if i < len(ports) {
			port = uint16(ports[i])
		}
		endpoints = append(endpoints, Endpoint{Host: ipv4String(a), Port: port})
	}

	c.dir.Update(endpoints)
	c.emitServersLocked(endpoints)
}
