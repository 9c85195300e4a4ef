package feed

import (
	"context"
	"net"
	"time"
)

// DialCheck treats the network as up when a TCP connection to Addr succeeds.
type DialCheck struct {
	Addr    string
	Timeout time.Duration
}

// Online dials Addr once.
func (d DialCheck) Online(ctx context.Context) bool {
	timeout := d.Timeout
	if timeout <= 0 {
		timeout = 3 * time.Second
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	var dialer net.Dialer
	conn, err := dialer.DialContext(ctx, "tcp", d.Addr)
	if err != nil {
		return false
	}
	conn.Close()
	return true
}

// AlwaysOnline skips the check.
type AlwaysOnline struct{}

// Online always reports true.
func (AlwaysOnline) Online(context.Context) bool { return true }
