package cmclient

import (
	"encoding/binary"
	"fmt"

	"github.com/vtnet/cmlink/cmproto"
)

// Header is the decoded, variant-tagged form of a frame's header. Exactly
// one of PlainHeader, ProtoHeader, or ExtendedHeader implements it; callers
// switch on the concrete type rather than inspecting a raw wire shape.
type Header interface {
	header()
	msg() EMsg
}

// PlainHeader is MsgHdr: used only for the channel-encrypt handshake
// messages (request, response, result).
type PlainHeader struct {
	Msg       EMsg
	TargetJob uint64
	SourceJob uint64
}

func (PlainHeader) header()    {}
func (h PlainHeader) msg() EMsg { return h.Msg }

// ProtoHeader wraps a protobuf header used by every post-handshake
// message with bit 31 set on the wire.
type ProtoHeader struct {
	Msg   EMsg
	Proto *cmproto.ProtoBufHeader
}

func (ProtoHeader) header()    {}
func (h ProtoHeader) msg() EMsg { return h.Msg }

// ExtendedHeader is ExtendedClientMsgHdr: used for non-proto, logged-in
// frames (none of the messages this module's internal handlers parse use
// it, but the wire format requires decoding it correctly when encountered).
type ExtendedHeader struct {
	Msg       EMsg
	SteamID   uint64
	SessionID int32
	SourceJob uint64
	TargetJob uint64
}

func (ExtendedHeader) header()    {}
func (h ExtendedHeader) msg() EMsg { return h.Msg }

const (
	plainHeaderLen    = 20 // EMsg(4) + TargetJob(8) + SourceJob(8)
	extendedHeaderLen = 36 // EMsg(4) + size(1) + version(2) + TargetJob(8) + SourceJob(8) + canary(1) + SteamID(8) + SessionID(4)

	extHeaderSize    = 36
	extHeaderVersion = 2
	extHeaderCanary  = 0xEF
)

// DecodeRawEMsg reads the first 4 bytes of a frame and splits out the
// Proto-variant flag (bit 31) from the underlying EMsg.
func DecodeRawEMsg(data []byte) (emsg EMsg, isProto bool, err error) {
	if len(data) < 4 {
		return 0, false, fmt.Errorf("cmclient: frame too short for EMsg: %d bytes", len(data))
	}
	raw := binary.LittleEndian.Uint32(data[0:4])
	return EMsg(raw &^ ProtoMask), raw&ProtoMask != 0, nil
}

// DecodeHeader selects and parses one of the three header variants
// following the wire rule in spec §3/§6: bit 31 set selects Proto; bit 31
// clear with EMsg in {ChannelEncryptRequest, ChannelEncryptResponse,
// ChannelEncryptResult} selects Plain; anything else selects Extended. It returns the decoded header, the
// remaining body bytes, and (for Proto only) the on-wire header length —
// needed by the dispatcher to decide whether a frame is eligible to latch
// the session id (spec §4.5 step 3, §8 "header_length == 0").
func DecodeHeader(data []byte) (h Header, body []byte, protoHeaderLen int, err error) {
	emsg, isProto, err := DecodeRawEMsg(data)
	if err != nil {
		return nil, nil, 0, err
	}

	if isProto {
		if len(data) < 8 {
			return nil, nil, 0, fmt.Errorf("cmclient: proto frame too short for header length: %d bytes", len(data))
		}
		hdrLen := binary.LittleEndian.Uint32(data[4:8])
		if uint32(len(data)) < 8+hdrLen {
			return nil, nil, 0, fmt.Errorf("cmclient: proto frame truncated: need %d header bytes, have %d", hdrLen, len(data)-8)
		}
		ph := &cmproto.ProtoBufHeader{}
		if hdrLen > 0 {
			if err := ph.Unmarshal(data[8 : 8+hdrLen]); err != nil {
				return nil, nil, 0, fmt.Errorf("cmclient: unmarshal proto header: %w", err)
			}
		}
		return ProtoHeader{Msg: emsg, Proto: ph}, data[8+hdrLen:], int(hdrLen), nil
	}

	if emsg == EMsgChannelEncryptRequest || emsg == EMsgChannelEncryptResult || emsg == EMsgChannelEncryptResponse {
		if len(data) < plainHeaderLen {
			return nil, nil, 0, fmt.Errorf("cmclient: plain frame too short: %d bytes", len(data))
		}
		return PlainHeader{
			Msg:       emsg,
			TargetJob: binary.LittleEndian.Uint64(data[4:12]),
			SourceJob: binary.LittleEndian.Uint64(data[12:20]),
		}, data[plainHeaderLen:], 0, nil
	}

	if len(data) < extendedHeaderLen {
		return nil, nil, 0, fmt.Errorf("cmclient: extended frame too short: %d bytes", len(data))
	}
	return ExtendedHeader{
		Msg:       emsg,
		TargetJob: binary.LittleEndian.Uint64(data[7:15]),
		SourceJob: binary.LittleEndian.Uint64(data[15:23]),
		SteamID:   binary.LittleEndian.Uint64(data[24:32]),
		SessionID: int32(binary.LittleEndian.Uint32(data[32:36])),
	}, data[extendedHeaderLen:], 0, nil
}

// EncodeHeader serializes a Header to its wire bytes. Selection mirrors
// spec §4.2: the caller picks the concrete variant (ChannelEncryptResponse
// always travels as PlainHeader; anything else the caller wants correlated
// by job id is ProtoHeader; everything else is ExtendedHeader).
func EncodeHeader(h Header) ([]byte, error) {
	switch v := h.(type) {
	case PlainHeader:
		buf := make([]byte, plainHeaderLen)
		binary.LittleEndian.PutUint32(buf[0:4], uint32(v.Msg))
		binary.LittleEndian.PutUint64(buf[4:12], v.TargetJob)
		binary.LittleEndian.PutUint64(buf[12:20], v.SourceJob)
		return buf, nil

	case ProtoHeader:
		hdrBytes, err := v.Proto.Marshal()
		if err != nil {
			return nil, fmt.Errorf("cmclient: marshal proto header: %w", err)
		}
		buf := make([]byte, 8+len(hdrBytes))
		binary.LittleEndian.PutUint32(buf[0:4], uint32(v.Msg)|ProtoMask)
		binary.LittleEndian.PutUint32(buf[4:8], uint32(len(hdrBytes)))
		copy(buf[8:], hdrBytes)
		return buf, nil

	case ExtendedHeader:
		buf := make([]byte, extendedHeaderLen)
		binary.LittleEndian.PutUint32(buf[0:4], uint32(v.Msg))
		buf[4] = extHeaderSize
		binary.LittleEndian.PutUint16(buf[5:7], extHeaderVersion)
		binary.LittleEndian.PutUint64(buf[7:15], v.TargetJob)
		binary.LittleEndian.PutUint64(buf[15:23], v.SourceJob)
		buf[23] = extHeaderCanary
		binary.LittleEndian.PutUint64(buf[24:32], v.SteamID)
		binary.LittleEndian.PutUint32(buf[32:36], uint32(v.SessionID))
		return buf, nil

	default:
		return nil, fmt.Errorf("cmclient: unknown header variant %T", h)
	}
}

// SourceJobOf returns the source job id carried by any header variant.
func SourceJobOf(h Header) uint64 {
	switch v := h.(type) {
	case PlainHeader:
		return v.SourceJob
	case ProtoHeader:
		return v.Proto.GetJobIDSource()
	case ExtendedHeader:
		return v.SourceJob
	default:
		return NoJobID
	}
}

// TargetJobOf returns the target job id carried by any header variant.
func TargetJobOf(h Header) uint64 {
	switch v := h.(type) {
	case PlainHeader:
		return v.TargetJob
	case ProtoHeader:
		return v.Proto.GetJobIDTarget()
	case ExtendedHeader:
		return v.TargetJob
	default:
		return NoJobID
	}
}

// StampReplyTarget returns a copy of h with its target job id set to
// target, regardless of variant. The dispatcher's reply continuation does
// not call it; it sets the target job through stampOutbound.
func StampReplyTarget(h Header, target uint64) Header {
	switch v := h.(type) {
	case PlainHeader:
		v.TargetJob = target
		return v
	case ProtoHeader:
		p := *v.Proto
		p.JobIDTarget = &target
		v.Proto = &p
		return v
	case ExtendedHeader:
		v.TargetJob = target
		return v
	default:
		return h
	}
}

// stampOutbound fills in the session-derived fields the codec is
// responsible for stamping on every outbound frame (spec §4.2): the
// client's session id and steam id on Proto/Extended headers, plus, on
// every variant, the allocated source job id and the caller-requested
// target job id.
func stampOutbound(h Header, sess sessionSnapshot, sourceJob, targetJob uint64) Header {
	switch v := h.(type) {
	case PlainHeader:
		v.SourceJob = sourceJob
		v.TargetJob = targetJob
		return v

	case ProtoHeader:
		p := cmproto.ProtoBufHeader{}
		if v.Proto != nil {
			p = *v.Proto
		}
		sid := sess.steamID
		cid := sess.sessionID
		p.SteamID = &sid
		p.ClientSessionID = &cid
		p.JobIDSource = &sourceJob
		p.JobIDTarget = &targetJob
		v.Proto = &p
		return v

	case ExtendedHeader:
		v.SteamID = sess.steamID
		v.SessionID = sess.sessionID
		v.SourceJob = sourceJob
		v.TargetJob = targetJob
		return v

	default:
		return h
	}
}
