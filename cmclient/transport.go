package cmclient

import (
	"context"
	"encoding/binary"
	"fmt"
	"io"
	"net"
	"sync"
	"time"
)

// tcpMagic is the "VT01" tag every framed payload is wrapped in.
const tcpMagic = 0x31305456

// Connection abstracts the byte-stream transport beneath a Client. Only a
// TCP implementation ships (spec §1 Non-goals: no UDP/WebSocket transport),
// but the Dispatcher and Session Manager depend only on this interface.
type Connection interface {
	Write(ctx context.Context, data []byte) error
	Read(ctx context.Context) ([]byte, error)
	SetTimeout(d time.Duration)
	InstallSessionKey(key []byte, useHMAC bool) error
	Close() error
	RemoteAddr() Endpoint
}

// tcpConn implements Connection over a raw TCP socket with VT01 framing.
// Outbound payloads are encrypted, and inbound payloads decrypted, once a
// session key has been installed by the Handshake Engine; before that they
// pass through unchanged (spec §4.1).
type tcpConn struct {
	conn   net.Conn
	addr   Endpoint
	mu     sync.Mutex // serializes writes and cipher installation
	cipher *channelCipher
	idle   time.Duration
}

// dialTCP connects to cfg.Remote, optionally binding a local address/port
// first, honoring cfg.ConnectTimeout.
func dialTCP(ctx context.Context, cfg TransportConfig) (*tcpConn, error) {
	dialer := &net.Dialer{Timeout: cfg.ConnectTimeout}
	if cfg.LocalAddr != "" || cfg.LocalPort != 0 {
		local := &net.TCPAddr{Port: int(cfg.LocalPort)}
		if cfg.LocalAddr != "" {
			local.IP = net.ParseIP(cfg.LocalAddr)
		}
		dialer.LocalAddr = local
	}

	conn, err := dialer.DialContext(ctx, "tcp", cfg.Remote.Addr())
	if err != nil {
		return nil, fmt.Errorf("cmclient: tcp dial %s: %w", cfg.Remote.Addr(), err)
	}
	return &tcpConn{conn: conn, addr: cfg.Remote}, nil
}

// Write frames data as [payload_len:u32 LE][magic "VT01":u32 LE][payload],
// encrypting payload first if a session key has been installed.
func (t *tcpConn) Write(ctx context.Context, data []byte) error {
	t.mu.Lock()
	cipher := t.cipher
	t.mu.Unlock()

	payload := data
	if cipher != nil {
		var err error
		payload, err = cipher.encrypt(data)
		if err != nil {
			return fmt.Errorf("cmclient: encrypt: %w", err)
		}
	}

	hdr := make([]byte, 8)
	binary.LittleEndian.PutUint32(hdr[0:4], uint32(len(payload)))
	binary.LittleEndian.PutUint32(hdr[4:8], tcpMagic)

	t.mu.Lock()
	defer t.mu.Unlock()
	if _, err := t.conn.Write(hdr); err != nil {
		return fmt.Errorf("cmclient: write frame header: %w", err)
	}
	if _, err := t.conn.Write(payload); err != nil {
		return fmt.Errorf("cmclient: write frame payload: %w", err)
	}
	return nil
}

// Read reads one VT01-framed message, decrypting it if a session key has
// been installed. Each call re-applies the idle-read deadline last set by
// SetTimeout, counted from the start of that call.
func (t *tcpConn) Read(ctx context.Context) ([]byte, error) {
	t.mu.Lock()
	idle := t.idle
	t.mu.Unlock()

	if idle > 0 {
		t.conn.SetReadDeadline(time.Now().Add(idle))
	} else {
		t.conn.SetReadDeadline(time.Time{})
	}

	var hdr [8]byte
	if _, err := io.ReadFull(t.conn, hdr[:]); err != nil {
		return nil, fmt.Errorf("cmclient: read frame header: %w", err)
	}

	payloadLen := binary.LittleEndian.Uint32(hdr[0:4])
	magic := binary.LittleEndian.Uint32(hdr[4:8])
	if magic != tcpMagic {
		return nil, fmt.Errorf("cmclient: invalid frame magic: 0x%08X", magic)
	}

	payload := make([]byte, payloadLen)
	if _, err := io.ReadFull(t.conn, payload); err != nil {
		return nil, fmt.Errorf("cmclient: read frame payload: %w", err)
	}

	t.mu.Lock()
	cipher := t.cipher
	t.mu.Unlock()

	if cipher != nil {
		plain, err := cipher.decrypt(payload)
		if err != nil {
			return nil, fmt.Errorf("cmclient: decrypt: %w", err)
		}
		return plain, nil
	}
	return payload, nil
}

// SetTimeout arms (d>0) or disables (d==0) the idle-read deadline. Called
// with 0 immediately after ChannelEncryptRequest is received, since the
// handshake key exchange may take time (spec §4.1/§5).
func (t *tcpConn) SetTimeout(d time.Duration) {
	t.mu.Lock()
	t.idle = d
	t.mu.Unlock()
}

// InstallSessionKey is the out-of-band setter the Handshake Engine calls on
// success, switching the transport from plaintext to encrypted framing.
func (t *tcpConn) InstallSessionKey(key []byte, useHMAC bool) error {
	cipher, err := newChannelCipher(key, useHMAC)
	if err != nil {
		return err
	}
	t.mu.Lock()
	t.cipher = cipher
	t.mu.Unlock()
	return nil
}

func (t *tcpConn) Close() error {
	return t.conn.Close()
}

func (t *tcpConn) RemoteAddr() Endpoint {
	return t.addr
}
