package cmclient

import (
	"fmt"
	"time"
)

// Endpoint is a CM server address: a host and port pair. Endpoints are
// immutable value objects.
type Endpoint struct {
	Host string
	Port uint16
}

// Addr formats the endpoint as "host:port" for net.Dial.
func (e Endpoint) Addr() string {
	return fmt.Sprintf("%s:%d", e.Host, e.Port)
}

func (e Endpoint) String() string { return e.Addr() }

// TransportConfig configures one connection attempt.
type TransportConfig struct {
	Remote         Endpoint
	LocalAddr      string
	LocalPort      uint16
	ConnectTimeout time.Duration
}
