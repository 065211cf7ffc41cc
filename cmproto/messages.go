package cmproto

import "google.golang.org/protobuf/encoding/protowire"

// Multi is the body of an EMsgMulti frame: zero or more sub-frames,
// optionally zip-compressed when SizeUnzipped is non-zero.
type Multi struct {
	MessageBody  []byte
	SizeUnzipped uint32
}

const (
	fieldMultiBody         protowire.Number = 1
	fieldMultiSizeUnzipped protowire.Number = 2
)

func (m *Multi) GetMessageBody() []byte { return m.MessageBody }
func (m *Multi) GetSizeUnzipped() uint32 {
	if m == nil {
		return 0
	}
	return m.SizeUnzipped
}

func (m *Multi) Marshal() ([]byte, error) {
	var b []byte
	if len(m.MessageBody) > 0 {
		b = appendBytesField(b, fieldMultiBody, m.MessageBody)
	}
	if m.SizeUnzipped > 0 {
		b = appendUint32Field(b, fieldMultiSizeUnzipped, m.SizeUnzipped)
	}
	return b, nil
}

func (m *Multi) Unmarshal(data []byte) error {
	for len(data) > 0 {
		num, typ, n := protowire.ConsumeTag(data)
		if n < 0 {
			return protowire.ParseError(n)
		}
		data = data[n:]

		switch {
		case num == fieldMultiBody && typ == protowire.BytesType:
			v, n := protowire.ConsumeBytes(data)
			if n < 0 {
				return errTruncated(num)
			}
			m.MessageBody = append([]byte(nil), v...)
			data = data[n:]

		case num == fieldMultiSizeUnzipped && typ == protowire.VarintType:
			v, n := protowire.ConsumeVarint(data)
			if n < 0 {
				return errTruncated(num)
			}
			m.SizeUnzipped = uint32(v)
			data = data[n:]

		default:
			n, err := skipUnknown(num, typ, data)
			if err != nil {
				return err
			}
			data = data[n:]
		}
	}
	return nil
}

// ClientLogOnResponse is the body of EMsgClientLogOnResponse.
type ClientLogOnResponse struct {
	Eresult                   int32
	OutOfGameHeartbeatSeconds int32
}

const (
	fieldLogonEresult   protowire.Number = 1
	fieldLogonHeartbeat protowire.Number = 2
)

func (r *ClientLogOnResponse) GetEresult() int32 {
	if r == nil {
		return 0
	}
	return r.Eresult
}

func (r *ClientLogOnResponse) GetOutOfGameHeartbeatSeconds() int32 {
	if r == nil {
		return 0
	}
	return r.OutOfGameHeartbeatSeconds
}

func (r *ClientLogOnResponse) Marshal() ([]byte, error) {
	var b []byte
	b = appendInt32Field(b, fieldLogonEresult, r.Eresult)
	if r.OutOfGameHeartbeatSeconds != 0 {
		b = appendInt32Field(b, fieldLogonHeartbeat, r.OutOfGameHeartbeatSeconds)
	}
	return b, nil
}

func (r *ClientLogOnResponse) Unmarshal(data []byte) error {
	for len(data) > 0 {
		num, typ, n := protowire.ConsumeTag(data)
		if n < 0 {
			return protowire.ParseError(n)
		}
		data = data[n:]

		switch {
		case num == fieldLogonEresult && typ == protowire.VarintType:
			v, n := protowire.ConsumeVarint(data)
			if n < 0 {
				return errTruncated(num)
			}
			r.Eresult = int32(v)
			data = data[n:]

		case num == fieldLogonHeartbeat && typ == protowire.VarintType:
			v, n := protowire.ConsumeVarint(data)
			if n < 0 {
				return errTruncated(num)
			}
			r.OutOfGameHeartbeatSeconds = int32(v)
			data = data[n:]

		default:
			n, err := skipUnknown(num, typ, data)
			if err != nil {
				return err
			}
			data = data[n:]
		}
	}
	return nil
}

// ClientLoggedOff is the body of EMsgClientLoggedOff.
type ClientLoggedOff struct {
	Eresult int32
}

const fieldLoggedOffEresult protowire.Number = 1

func (r *ClientLoggedOff) GetEresult() int32 {
	if r == nil {
		return 0
	}
	return r.Eresult
}

func (r *ClientLoggedOff) Marshal() ([]byte, error) {
	return appendInt32Field(nil, fieldLoggedOffEresult, r.Eresult), nil
}

func (r *ClientLoggedOff) Unmarshal(data []byte) error {
	for len(data) > 0 {
		num, typ, n := protowire.ConsumeTag(data)
		if n < 0 {
			return protowire.ParseError(n)
		}
		data = data[n:]

		if num == fieldLoggedOffEresult && typ == protowire.VarintType {
			v, n := protowire.ConsumeVarint(data)
			if n < 0 {
				return errTruncated(num)
			}
			r.Eresult = int32(v)
			data = data[n:]
			continue
		}
		n, err := skipUnknown(num, typ, data)
		if err != nil {
			return err
		}
		data = data[n:]
	}
	return nil
}

// ClientCMList is the body of EMsgClientCMList: a refreshed bootstrap list,
// big-endian-encoded IPv4 addresses paired positionally with ports.
type ClientCMList struct {
	CMAddresses []uint32 // big-endian IPv4, one per server
	CMPorts     []uint32
}

const (
	fieldCMListAddresses protowire.Number = 1
	fieldCMListPorts     protowire.Number = 2
)

func (l *ClientCMList) GetCMAddresses() []uint32 {
	if l == nil {
		return nil
	}
	return l.CMAddresses
}

func (l *ClientCMList) GetCMPorts() []uint32 {
	if l == nil {
		return nil
	}
	return l.CMPorts
}

func (l *ClientCMList) Marshal() ([]byte, error) {
	var b []byte
	for _, a := range l.CMAddresses {
		b = appendUint32Field(b, fieldCMListAddresses, a)
	}
	for _, p := range l.CMPorts {
		b = appendUint32Field(b, fieldCMListPorts, p)
	}
	return b, nil
}

func (l *ClientCMList) Unmarshal(data []byte) error {
	for len(data) > 0 {
		num, typ, n := protowire.ConsumeTag(data)
		if n < 0 {
			return protowire.ParseError(n)
		}
		data = data[n:]

		switch {
		case num == fieldCMListAddresses && typ == protowire.VarintType:
			v, n := protowire.ConsumeVarint(data)
			if n < 0 {
				return errTruncated(num)
			}
			l.CMAddresses = append(l.CMAddresses, uint32(v))
			data = data[n:]

		case num == fieldCMListPorts && typ == protowire.VarintType:
			v, n := protowire.ConsumeVarint(data)
			if n < 0 {
				return errTruncated(num)
			}
			l.CMPorts = append(l.CMPorts, uint32(v))
			data = data[n:]

		default:
			n, err := skipUnknown(num, typ, data)
			if err != nil {
				return err
			}
			data = data[n:]
		}
	}
	return nil
}

// ClientHeartBeat is the (empty) body of EMsgClientHeartBeat.
type ClientHeartBeat struct{}

func (h *ClientHeartBeat) Marshal() ([]byte, error)    { return nil, nil }
func (h *ClientHeartBeat) Unmarshal(data []byte) error { return nil }
