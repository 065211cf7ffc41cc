package cmproto

import "google.golang.org/protobuf/encoding/protowire"

// NoJobID is the sentinel meaning "no correlation" for both jobid_source
// and jobid_target.
const NoJobID uint64 = 0xFFFFFFFFFFFFFFFF

// ProtoBufHeader is the protobuf header carried by every Proto-variant
// frame. All fields are optional; a zero value and an absent field are
// distinguished by the pointer being nil.
type ProtoBufHeader struct {
	SteamID         *uint64
	ClientSessionID *int32
	JobIDSource     *uint64
	JobIDTarget     *uint64
	Eresult         *int32
	TargetJobName   *string
}

func (h *ProtoBufHeader) GetSteamID() uint64 {
	if h == nil || h.SteamID == nil {
		return 0
	}
	return *h.SteamID
}

func (h *ProtoBufHeader) GetClientSessionID() int32 {
	if h == nil || h.ClientSessionID == nil {
		return 0
	}
	return *h.ClientSessionID
}

func (h *ProtoBufHeader) GetJobIDSource() uint64 {
	if h == nil || h.JobIDSource == nil {
		return NoJobID
	}
	return *h.JobIDSource
}

func (h *ProtoBufHeader) GetJobIDTarget() uint64 {
	if h == nil || h.JobIDTarget == nil {
		return NoJobID
	}
	return *h.JobIDTarget
}

func (h *ProtoBufHeader) GetEresult() int32 {
	if h == nil || h.Eresult == nil {
		return 0
	}
	return *h.Eresult
}

func (h *ProtoBufHeader) GetTargetJobName() string {
	if h == nil || h.TargetJobName == nil {
		return ""
	}
	return *h.TargetJobName
}

const (
	fieldSteamID       protowire.Number = 1
	fieldSessionID     protowire.Number = 2
	fieldJobIDSource   protowire.Number = 3
	fieldJobIDTarget   protowire.Number = 4
	fieldEresult       protowire.Number = 5
	fieldTargetJobName protowire.Number = 6
)

// Marshal serializes the header to its protobuf wire form.
func (h *ProtoBufHeader) Marshal() ([]byte, error) {
	if h == nil {
		return nil, nil
	}
	var b []byte
	if h.SteamID != nil {
		b = appendUint64Field(b, fieldSteamID, *h.SteamID)
	}
	if h.ClientSessionID != nil {
		b = appendInt32Field(b, fieldSessionID, *h.ClientSessionID)
	}
	if h.JobIDSource != nil {
		b = appendUint64Field(b, fieldJobIDSource, *h.JobIDSource)
	}
	if h.JobIDTarget != nil {
		b = appendUint64Field(b, fieldJobIDTarget, *h.JobIDTarget)
	}
	if h.Eresult != nil {
		b = appendInt32Field(b, fieldEresult, *h.Eresult)
	}
	if h.TargetJobName != nil {
		b = appendStringField(b, fieldTargetJobName, *h.TargetJobName)
	}
	return b, nil
}

// Unmarshal parses a protobuf-encoded header, skipping any unknown fields.
func (h *ProtoBufHeader) Unmarshal(data []byte) error {
	for len(data) > 0 {
		num, typ, n := protowire.ConsumeTag(data)
		if n < 0 {
			return protowire.ParseError(n)
		}
		data = data[n:]

		switch {
		case num == fieldSteamID && typ == protowire.VarintType:
			v, n := protowire.ConsumeVarint(data)
			if n < 0 {
				return errTruncated(num)
			}
			h.SteamID = &v
			data = data[n:]

		case num == fieldSessionID && typ == protowire.VarintType:
			v, n := protowire.ConsumeVarint(data)
			if n < 0 {
				return errTruncated(num)
			}
			sv := int32(v)
			h.ClientSessionID = &sv
			data = data[n:]

		case num == fieldJobIDSource && typ == protowire.VarintType:
			v, n := protowire.ConsumeVarint(data)
			if n < 0 {
				return errTruncated(num)
			}
			h.JobIDSource = &v
			data = data[n:]

		case num == fieldJobIDTarget && typ == protowire.VarintType:
			v, n := protowire.ConsumeVarint(data)
			if n < 0 {
				return errTruncated(num)
			}
			h.JobIDTarget = &v
			data = data[n:]

		case num == fieldEresult && typ == protowire.VarintType:
			v, n := protowire.ConsumeVarint(data)
			if n < 0 {
				return errTruncated(num)
			}
			sv := int32(v)
			h.Eresult = &sv
			data = data[n:]

		case num == fieldTargetJobName && typ == protowire.BytesType:
			v, n := protowire.ConsumeBytes(data)
			if n < 0 {
				return errTruncated(num)
			}
			sv := string(v)
			h.TargetJobName = &sv
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
