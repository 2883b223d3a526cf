package session

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"strconv"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/saviobatista/fsd-connector/internal/auth"
)

// Dialer opens the stream transport. *net.Dialer satisfies it.
type Dialer interface {
	DialContext(ctx context.Context, network, address string) (net.Conn, error)
}

// Resolver looks up host names. *net.Resolver satisfies it.
type Resolver interface {
	LookupIPAddr(ctx context.Context, host string) ([]net.IPAddr, error)
}

// Config holds the transport settings of a Session
type Config struct {
	ReadBufferSize  int           `toml:"read_buffer_size"`
	WriteTimeout    time.Duration `toml:"write_timeout"`
	DialTimeout     time.Duration `toml:"dial_timeout"`
	KeepAlivePeriod time.Duration `toml:"keepalive_period"`
	IgnoreUnknown   bool          `toml:"ignore_unknown"`
	Auth            auth.Config   `toml:"auth"`
}

// DefaultConfig returns the settings used when none are given
func DefaultConfig() Config {
	return Config{
		ReadBufferSize:  1024,
		WriteTimeout:    15 * time.Second,
		DialTimeout:     10 * time.Second,
		KeepAlivePeriod: 2 * time.Second,
		Auth:            auth.DefaultConfig(),
	}
}

// resolve returns the address to dial. Numeric addresses skip the lookup;
// names resolve to their first IPv4 address.
func resolve(ctx context.Context, r Resolver, address string, port int) (string, error) {
	if ip := net.ParseIP(address); ip != nil {
		return net.JoinHostPort(ip.String(), strconv.Itoa(port)), nil
	}

	addrs, err := r.LookupIPAddr(ctx, address)
	if err != nil {
		return "", fmt.Errorf("failed to resolve %s: %w", address, err)
	}
	for _, a := range addrs {
		if v4 := a.IP.To4(); v4 != nil {
			return net.JoinHostPort(v4.String(), strconv.Itoa(port)), nil
		}
	}
	return "", fmt.Errorf("failed to resolve %s: no IPv4 address", address)
}

// configureTCP enables keepalive and disables Nagle on TCP connections
func configureTCP(conn net.Conn, period time.Duration, logger logrus.FieldLogger) {
	tcpConn, ok := conn.(*net.TCPConn)
	if !ok {
		return
	}
	if err := tcpConn.SetKeepAlive(true); err != nil {
		logger.WithError(err).Warn("failed to set keepalive")
	}
	if err := tcpConn.SetKeepAlivePeriod(period); err != nil {
		logger.WithError(err).Warn("failed to set keepalive period")
	}
	if err := tcpConn.SetNoDelay(true); err != nil {
		logger.WithError(err).Warn("failed to set no delay")
	}
}

// isConnectionReset reports whether err means the peer is gone
func isConnectionReset(err error) bool {
	return errors.Is(err, syscall.ECONNRESET) ||
		errors.Is(err, syscall.ECONNABORTED) ||
		errors.Is(err, syscall.EPIPE) ||
		errors.Is(err, io.EOF) ||
		errors.Is(err, io.ErrClosedPipe) ||
		errors.Is(err, net.ErrClosed)
}
