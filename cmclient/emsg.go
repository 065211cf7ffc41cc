package cmclient

import "fmt"

// EMsg identifies a CM message type. Bit 31 is reserved on the wire to flag
// a Proto-variant header; EMsg values themselves never carry that bit.
type EMsg uint32

const (
	EMsgMulti                  EMsg = 1
	EMsgClientHeartBeat        EMsg = 703
	EMsgClientLogOff           EMsg = 706
	EMsgClientLogon            EMsg = 5514
	EMsgClientLogOnResponse    EMsg = 751
	EMsgClientLoggedOff        EMsg = 757
	EMsgClientCMList           EMsg = 283
	EMsgChannelEncryptRequest  EMsg = 1303
	EMsgChannelEncryptResponse EMsg = 1304
	EMsgChannelEncryptResult   EMsg = 1305
)

// ProtoMask is the high bit that flags a Proto-variant header on the wire.
const ProtoMask uint32 = 0x80000000

// NoJobID is the sentinel meaning "no correlation" for source/target job ids.
const NoJobID uint64 = 0xFFFFFFFFFFFFFFFF

var emsgNames = map[EMsg]string{
	EMsgMulti:                  "Multi",
	EMsgClientHeartBeat:        "ClientHeartBeat",
	EMsgClientLogOff:           "ClientLogOff",
	EMsgClientLogon:            "ClientLogon",
	EMsgClientLogOnResponse:    "ClientLogOnResponse",
	EMsgClientLoggedOff:        "ClientLoggedOff",
	EMsgClientCMList:           "ClientCMList",
	EMsgChannelEncryptRequest:  "ChannelEncryptRequest",
	EMsgChannelEncryptResponse: "ChannelEncryptResponse",
	EMsgChannelEncryptResult:   "ChannelEncryptResult",
}

func (e EMsg) String() string {
	if name, ok := emsgNames[e]; ok {
		return name
	}
	return fmt.Sprintf("EMsg(%d)", uint32(e))
}
