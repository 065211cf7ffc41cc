package cmclient

import (
	"context"
	"net"
	"testing"
)

// stopScheduledRetry prevents a just-scheduled reconnect timer from firing
// and dialing a real (nonexistent) endpoint during the test.
func stopScheduledRetry(c *Client) {
	c.mu.Lock()
	if c.reconnect.timer != nil {
		c.reconnect.timer.Stop()
		c.reconnect.timer = nil
	}
	c.mu.Unlock()
}

func TestOnTransportClosedBackoffDoublesEachErrorDrivenClose(t *testing.T) {
	c := New()
	ep := Endpoint{Host: "cm.example.invalid", Port: 27017}

	c.mu.Lock()
	c.generation = 1
	c.reconnect.autoRetry = true
	c.reconnect.lastServer = &ep
	c.mu.Unlock()

	wantUses := []uint32{1, 2, 4, 8}
	for i, want := range wantUses {
		c.mu.Lock()
		before := c.reconnect.backoffSecs
		c.mu.Unlock()

		use := before
		if use == 0 {
			use = 1
		}
		if use != want {
			t.Fatalf("iteration %d: backoff about to be used = %d, want %d", i, use, want)
		}

		c.onTransportClosed(1, true)
		stopScheduledRetry(c)

		c.mu.Lock()
		after := c.reconnect.backoffSecs
		c.mu.Unlock()
		if after != use*2 {
			t.Fatalf("iteration %d: backoffSecs after close = %d, want %d", i, after, use*2)
		}
	}
}

func TestOnTransportClosedResetsOnSuccessfulLowLevelConnect(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	defer ln.Close()
	ep := Endpoint{Host: "127.0.0.1", Port: uint16(ln.Addr().(*net.TCPAddr).Port)}

	c := New()
	c.mu.Lock()
	c.reconnect.backoffSecs = 8
	c.mu.Unlock()

	// A successful dial (TCP level only, no handshake) clears the backoff.
	if err := c.Connect(context.Background(), &ep, true); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	defer c.Disconnect()

	c.mu.Lock()
	got := c.reconnect.backoffSecs
	c.mu.Unlock()
	if got != 0 {
		t.Errorf("backoffSecs = %d, want 0 after a successful connect", got)
	}
}

func TestOnTransportClosedIgnoresStaleGeneration(t *testing.T) {
	c := New()

	c.mu.Lock()
	c.generation = 5
	c.reconnect.autoRetry = true
	c.reconnect.backoffSecs = 4
	c.mu.Unlock()

	// gen=1 is stale (current generation is 5); this must be a no-op.
	c.onTransportClosed(1, true)

	c.mu.Lock()
	got := c.reconnect.backoffSecs
	c.mu.Unlock()
	if got != 4 {
		t.Errorf("backoffSecs changed for a stale generation close: got %d, want 4", got)
	}
}

func TestOnTransportClosedNoRetryWhenAutoRetryDisabled(t *testing.T) {
	errs := make(chan error, 1)
	c := New()
	c.OnError = func(err error) { errs <- err }

	c.mu.Lock()
	c.generation = 1
	c.reconnect.autoRetry = false
	c.mu.Unlock()

	c.onTransportClosed(1, true)

	select {
	case err := <-errs:
		if err != ErrCannotConnect {
			t.Errorf("error = %v, want ErrCannotConnect", err)
		}
	default:
		t.Fatal("OnError was not invoked")
	}
}
