package cmclient

import (
	"archive/zip"
	"bytes"
	"context"
	"encoding/binary"
	"testing"
	"time"

	"github.com/vtnet/cmlink/cmproto"
)

// mockConn implements Connection for unit tests, recording every frame
// written and letting the test feed back whatever bytes it likes.
type mockConn struct {
	writes chan []byte
}

func newMockConn() *mockConn { return &mockConn{writes: make(chan []byte, 16)} }

func (m *mockConn) Write(_ context.Context, data []byte) error {
	m.writes <- append([]byte(nil), data...)
	return nil
}
func (m *mockConn) Read(_ context.Context) ([]byte, error)    { select {} }
func (m *mockConn) SetTimeout(time.Duration)                  {}
func (m *mockConn) InstallSessionKey(_ []byte, _ bool) error  { return nil }
func (m *mockConn) Close() error                              { return nil }
func (m *mockConn) RemoteAddr() Endpoint                       { return Endpoint{Host: "mock"} }

// attachMockConn wires a mock connection directly into a Client, bypassing
// Connect/dialTCP, so the dispatch and job-correlation logic can be
// exercised without real networking.
func attachMockConn(c *Client) *mockConn {
	conn := newMockConn()
	c.mu.Lock()
	c.generation++
	c.conn = conn
	c.mu.Unlock()
	return conn
}

func encodeHeartbeat(t *testing.T, sourceJob, targetJob uint64) []byte {
	t.Helper()
	hdr := ProtoHeader{Msg: EMsgClientHeartBeat, Proto: &cmproto.ProtoBufHeader{
		JobIDSource: &sourceJob,
		JobIDTarget: &targetJob,
	}}
	b, err := EncodeHeader(hdr)
	if err != nil {
		t.Fatalf("EncodeHeader: %v", err)
	}
	return b
}

func TestHandleFrameRoutesToWaitingJob(t *testing.T) {
	c := New()
	attachMockConn(c)

	gotCh := make(chan []byte, 1)
	sourceJob := c.jobs.alloc(func(hdr Header, body []byte, reply ResponseFunc) {
		gotCh <- body
	})

	frame := encodeHeartbeat(t, NoJobID, sourceJob)
	frame = append(frame, []byte("reply-body")...)

	c.handleFrame(c.currentGenerationForTest(), frame)

	select {
	case body := <-gotCh:
		if string(body) != "reply-body" {
			t.Errorf("body = %q, want %q", body, "reply-body")
		}
	default:
		t.Fatal("job callback was not invoked")
	}
}

func TestHandleFrameEmitsGenericMessageWhenNoJobWaiting(t *testing.T) {
	c := New()
	attachMockConn(c)

	msgCh := make(chan []byte, 1)
	c.OnMessage = func(hdr Header, body []byte, reply ResponseFunc) {
		msgCh <- body
	}

	frame := encodeHeartbeat(t, NoJobID, NoJobID)
	frame = append(frame, []byte("generic-body")...)

	c.handleFrame(c.currentGenerationForTest(), frame)

	select {
	case body := <-msgCh:
		if string(body) != "generic-body" {
			t.Errorf("body = %q, want %q", body, "generic-body")
		}
	default:
		t.Fatal("OnMessage was not invoked")
	}
}

func TestHandleFrameLatchesSessionFromFirstProtoHeader(t *testing.T) {
	c := New()
	attachMockConn(c)

	steamID := uint64(76561198012345678)
	sessionID := int32(9)
	hdr := ProtoHeader{Msg: EMsgClientHeartBeat, Proto: &cmproto.ProtoBufHeader{
		SteamID:         &steamID,
		ClientSessionID: &sessionID,
		JobIDSource:     ptrNoJobID(),
		JobIDTarget:     ptrNoJobID(),
	}}
	encoded, err := EncodeHeader(hdr)
	if err != nil {
		t.Fatalf("EncodeHeader: %v", err)
	}

	c.handleFrame(c.currentGenerationForTest(), encoded)

	c.mu.Lock()
	gotSteamID, gotSessionID := c.steamID, c.sessionID
	c.mu.Unlock()

	if gotSteamID != steamID {
		t.Errorf("latched steamID = %d, want %d", gotSteamID, steamID)
	}
	if gotSessionID != sessionID {
		t.Errorf("latched sessionID = %d, want %d", gotSessionID, sessionID)
	}
}

func TestHandleFrameMultiDispatchesSubFramesInOrder(t *testing.T) {
	c := New()
	attachMockConn(c)

	var order []string
	c.OnMessage = func(hdr Header, body []byte, reply ResponseFunc) {
		order = append(order, string(body))
	}

	sub := func(payload string) []byte {
		b := encodeHeartbeat(t, NoJobID, NoJobID)
		return append(b, []byte(payload)...)
	}

	var batch []byte
	for _, f := range [][]byte{sub("first"), sub("second"), sub("third")} {
		lenBuf := make([]byte, 4)
		binary.LittleEndian.PutUint32(lenBuf, uint32(len(f)))
		batch = append(batch, lenBuf...)
		batch = append(batch, f...)
	}

	var zipBuf bytes.Buffer
	zw := zip.NewWriter(&zipBuf)
	entry, err := zw.Create("z")
	if err != nil {
		t.Fatalf("create zip entry: %v", err)
	}
	entry.Write(batch)
	zw.Close()

	multi := &cmproto.Multi{MessageBody: zipBuf.Bytes(), SizeUnzipped: uint32(len(batch))}
	multiBody, err := multi.Marshal()
	if err != nil {
		t.Fatalf("marshal multi: %v", err)
	}

	frame := ProtoHeader{Msg: EMsgMulti, Proto: &cmproto.ProtoBufHeader{
		JobIDSource: ptrNoJobID(),
		JobIDTarget: ptrNoJobID(),
	}}
	encoded, err := EncodeHeader(frame)
	if err != nil {
		t.Fatalf("encode multi header: %v", err)
	}
	encoded = append(encoded, multiBody...)

	c.handleFrame(c.currentGenerationForTest(), encoded)

	want := []string{"first", "second", "third"}
	if len(order) != len(want) {
		t.Fatalf("got %d sub-frame deliveries, want %d: %v", len(order), len(want), order)
	}
	for i := range want {
		if order[i] != want[i] {
			t.Errorf("order[%d] = %q, want %q", i, order[i], want[i])
		}
	}
}

func TestSendAllocatesSourceJobAndWritesFrame(t *testing.T) {
	c := New()
	conn := attachMockConn(c)

	called := false
	hdr := ProtoHeader{Msg: EMsgClientHeartBeat}
	err := c.Send(context.Background(), hdr, []byte("req"), func(Header, []byte, ResponseFunc) { called = true })
	if err != nil {
		t.Fatalf("Send: %v", err)
	}

	select {
	case written := <-conn.writes:
		decoded, body, _, err := DecodeHeader(written)
		if err != nil {
			t.Fatalf("DecodeHeader on written frame: %v", err)
		}
		if string(body) != "req" {
			t.Errorf("body = %q, want %q", body, "req")
		}
		if SourceJobOf(decoded) == NoJobID {
			t.Error("Send did not stamp a source job id despite a callback")
		}
	default:
		t.Fatal("Send did not write a frame")
	}
	_ = called
}

func ptrNoJobID() *uint64 {
	v := NoJobID
	return &v
}

// currentGenerationForTest exposes the active generation to tests that
// attach a mock connection directly (bypassing Connect's own bookkeeping).
func (c *Client) currentGenerationForTest() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.generation
}
