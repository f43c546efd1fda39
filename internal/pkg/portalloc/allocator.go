// Package portalloc selects a free local TCP port for an agent gateway.
//
// Allocation is a best-effort probe, not a reservation: nothing is held between the
// probe and the moment the agent binds the port. Agents are provisioned one at a time by
// an operator, so the window between probe and bind is an accepted race. Two concurrent
// provisioning runs for different sellers on the same host may pick the same port; the
// second agent then fails to bind, its service restarts, and re-running provisioning for
// that seller moves it to a free port.
package portalloc

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"strconv"
	"syscall"
	"time"

	"github.com/sabamen88/zeroclaw-nemu/internal/pkg/agent"
)

const (
	MinPort = 1
	MaxPort = 65535

	defaultDialTimeout = 250 * time.Millisecond
)

// Prober reports whether a listener is bound to host:port.
type Prober interface {
	InUse(ctx context.Context, host string, port int) (bool, error)
}

// Allocator probes ports sequentially starting at a base port.
type Allocator struct {
	host        string
	basePort    int
	maxAttempts int
	prober      Prober
}

// NewAllocator creates an allocator covering [basePort, basePort+maxAttempts).
// A nil prober uses TCPProber.
func NewAllocator(host string, basePort, maxAttempts int, prober Prober) (*Allocator, error) {
	if basePort < MinPort || basePort > MaxPort {
		return nil, fmt.Errorf("%w: base port %d out of range", agent.ErrValidation, basePort)
	}

	if maxAttempts <= 0 {
		return nil, fmt.Errorf("%w: max attempts must be positive", agent.ErrValidation)
	}

	if basePort+maxAttempts-1 > MaxPort {
		maxAttempts = MaxPort - basePort + 1
	}

	if prober == nil {
		prober = NewTCPProber(defaultDialTimeout)
	}

	return &Allocator{
		host:        host,
		basePort:    basePort,
		maxAttempts: maxAttempts,
		prober:      prober,
	}, nil
}

// InRange reports whether port lies inside the allocator's range.
func (allocator *Allocator) InRange(port int) bool {
	return port >= allocator.basePort && port < allocator.basePort+allocator.maxAttempts
}

// Allocate returns the first port in range with no listener bound.
// Returns agent.ErrExhausted when every port in range is taken.
func (allocator *Allocator) Allocate(ctx context.Context) (int, error) {
	for port := allocator.basePort; port < allocator.basePort+allocator.maxAttempts; port++ {
		if err := ctx.Err(); err != nil {
			return 0, err
		}

		inUse, err := allocator.prober.InUse(ctx, allocator.host, port)
		if err != nil {
			return 0, fmt.Errorf("probe port %d: %w", port, err)
		}

		if !inUse {
			slog.Debug("Free port found.", slog.Int("port", port), slog.String("host", allocator.host))
			return port, nil
		}

		slog.Debug("Port in use.", slog.Int("port", port), slog.String("host", allocator.host))
	}

	return 0, fmt.Errorf("%w: no free port in %d-%d on %s",
		agent.ErrExhausted,
		allocator.basePort,
		allocator.basePort+allocator.maxAttempts-1,
		allocator.host,
	)
}

// TCPProber detects listeners by connecting to the port and by attempting to bind it.
type TCPProber struct {
	dialTimeout time.Duration
}

// NewTCPProber creates a prober with the given connect timeout.
func NewTCPProber(dialTimeout time.Duration) *TCPProber {
	return &TCPProber{dialTimeout: dialTimeout}
}

// InUse reports whether a listener accepts connections on host:port or holds the address.
func (prober *TCPProber) InUse(ctx context.Context, host string, port int) (bool, error) {
	dialer := net.Dialer{Timeout: prober.dialTimeout}

	conn, err := dialer.DialContext(ctx, "tcp", net.JoinHostPort(dialHost(host), strconv.Itoa(port)))
	if err == nil {
		_ = conn.Close()
		return true, nil
	}

	if ctxErr := ctx.Err(); ctxErr != nil {
		return false, ctxErr
	}

	listener, err := net.Listen("tcp", net.JoinHostPort(host, strconv.Itoa(port)))
	if err != nil {
		if errors.Is(err, syscall.EADDRINUSE) {
			return true, nil
		}
		return false, fmt.Errorf("bind %s:%d: %w", host, port, err)
	}

	if err := listener.Close(); err != nil {
		return false, fmt.Errorf("release %s:%d: %w", host, port, err)
	}

	return false, nil
}

func dialHost(host string) string {
	switch host {
	case "", "0.0.0.0":
		return "127.0.0.1"
	case "::":
		return "::1"
	default:
		return host
	}
}
