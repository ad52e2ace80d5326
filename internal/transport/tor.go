package transport

import (
	"context"
	"fmt"
	"time"

	"github.com/nao1215/tornago"
)

// DefaultTorStartupTimeout bounds Tor bootstrap when no timeout is given.
const DefaultTorStartupTimeout = 3 * time.Minute

// EmbeddedTor runs a private Tor daemon whose SOCKS port the crawler can
// use as its proxy. Bootstrapping usually takes between one and three
// minutes.
type EmbeddedTor struct {
	process        *tornago.TorProcess
	socksAddr      string
	startupTimeout time.Duration
}

// NewEmbeddedTor returns a stopped daemon. A non-positive startupTimeout
// selects DefaultTorStartupTimeout.
func NewEmbeddedTor(startupTimeout time.Duration) *EmbeddedTor {
	if startupTimeout <= 0 {
		startupTimeout = DefaultTorStartupTimeout
	}
	return &EmbeddedTor{startupTimeout: startupTimeout}
}

type torStart struct {
	process *tornago.TorProcess
	err     error
}

// Start launches the daemon on OS-assigned ports and blocks until it has
// bootstrapped, the startup timeout passes, or ctx is done. A daemon that
// finishes starting after ctx is done is stopped in the background.
func (e *EmbeddedTor) Start(ctx context.Context) error {
	cfg, err := tornago.NewTorLaunchConfig(
		tornago.WithTorSocksAddr(":0"),
		tornago.WithTorControlAddr(":0"),
		tornago.WithTorStartupTimeout(e.startupTimeout),
	)
	if err != nil {
		return fmt.Errorf("tor launch config: %w", err)
	}

	done := make(chan torStart, 1)
	go func() {
		process, err := tornago.StartTorDaemon(cfg)
		done <- torStart{process: process, err: err}
	}()

	select {
	case res := <-done:
		if res.err != nil {
			return fmt.Errorf("start tor daemon: %w", res.err)
		}
		e.process = res.process
		e.socksAddr = res.process.SocksAddr()
		return nil
	case <-ctx.Done():
		go func() {
			if res := <-done; res.err == nil {
				_ = res.process.Stop() //nolint:errcheck // nobody is left to report to
			}
		}()
		return ctx.Err()
	}
}

// Stop shuts the daemon down. It is a no-op on a daemon that is not running.
func (e *EmbeddedTor) Stop() error {
	if e.process == nil {
		return nil
	}
	err := e.process.Stop()
	e.process = nil
	e.socksAddr = ""
	return err
}

// IsRunning reports whether Start succeeded and Stop has not been called.
func (e *EmbeddedTor) IsRunning() bool {
	return e.process != nil
}

// SocksAddr returns the daemon's SOCKS5 address, or ErrTorNotRunning.
func (e *EmbeddedTor) SocksAddr() (string, error) {
	if !e.IsRunning() {
		return "", ErrTorNotRunning
	}
	return e.socksAddr, nil
}
