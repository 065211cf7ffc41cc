// Package cmproto holds the wire-compatible message shapes for the CM
// protocol messages the session core must build or inspect directly:
// the protobuf header embedded in every Proto-variant frame, and the body
// of the handful of internal-handler messages (Multi, logon response,
// logged-off, CM list, heartbeat).
//
// In a production deployment these types are generated by protoc from the
// platform's .proto schema, which is explicitly out of scope for this
// module (see spec §1). No protoc toolchain run is available here, so the
// messages below are hand-maintained against the protobuf wire format using
// google.golang.org/protobuf/encoding/protowire directly, rather than
// generated code that satisfies the full proto.Message/protoreflect
// interface. Field numbers and types are internal to this module; they do
// not need to match any particular vendor's .proto definitions, only to be
// self-consistent between Marshal and Unmarshal.
package cmproto
