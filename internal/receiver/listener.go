package receiver

import (
	"context"
	"fmt"
	"io"
	"net"
	"time"

	"github.com/pkg/errors"

	"github.com/kvsview/kvsview/internal/protocol"
	"github.com/kvsview/kvsview/internal/util"
)

// ErrNotListening is returned by Accept when the bind step failed.
var ErrNotListening = errors.New("accept on a listener that is not bound")

// ErrAcceptTimeout is returned when the producer did not connect in time.
var ErrAcceptTimeout = errors.New("timeout waiting for producer connection")

// Listener is the single listening endpoint the producer connects back to.
type Listener struct {
	host    string
	port    int
	ln      net.Listener
	bindErr error
}

// Listen binds host:port. A bind failure is logged and kept, not returned:
// the caller carries on and the failure surfaces at Accept.
func Listen(host string, port int) *Listener {
	l := &Listener{host: host, port: port}
	addr := net.JoinHostPort(host, fmt.Sprint(port))

	ln, err := net.Listen("tcp", addr)
	if err != nil {
		l.bindErr = err
		util.GetLogger().Error("Bind failed", "addr", addr, "error", err)
		return l
	}

	l.ln = ln
	if tcpAddr, ok := ln.Addr().(*net.TCPAddr); ok {
		l.port = tcpAddr.Port
	}
	util.GetLogger().Info("Socket listening", "addr", ln.Addr().String())
	return l
}

// Port is the bound port, which differs from the requested one when it was 0.
func (l *Listener) Port() int {
	return l.port
}

// Addr returns the bound address, or nil when the bind failed.
func (l *Listener) Addr() net.Addr {
	if l.ln == nil {
		return nil
	}
	return l.ln.Addr()
}

// BindError is the error swallowed by Listen, if any.
func (l *Listener) BindError() error {
	return l.bindErr
}

// Accept waits for exactly one connection. A zero timeout waits forever.
// Cancelling ctx aborts the wait.
func (l *Listener) Accept(ctx context.Context, timeout time.Duration) (net.Conn, error) {
	if l.ln == nil {
		return nil, errors.Wrapf(ErrNotListening, "bind %s:%d: %v", l.host, l.port, l.bindErr)
	}

	if tcpListener, ok := l.ln.(*net.TCPListener); ok && timeout > 0 {
		if err := tcpListener.SetDeadline(time.Now().Add(timeout)); err != nil {
			return nil, errors.Wrap(err, "failed to set accept deadline")
		}
		defer tcpListener.SetDeadline(time.Time{})
	}

	stop := make(chan struct{})
	defer close(stop)
	go func() {
		select {
		case <-ctx.Done():
			l.ln.Close()
		case <-stop:
		}
	}()

	util.GetLogger().Info("Waiting for producer to connect", "port", l.port, "timeout", timeout)
	conn, err := l.ln.Accept()
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		if netErr, ok := err.(net.Error); ok && netErr.Timeout() {
			return nil, errors.Wrapf(ErrAcceptTimeout, "after %v on port %d", timeout, l.port)
		}
		return nil, errors.Wrap(err, "failed to accept connection")
	}

	util.GetLogger().Info("Producer connected", "remote", conn.RemoteAddr().String())
	return conn, nil
}

// Close closes the listening socket
func (l *Listener) Close() error {
	if l.ln == nil {
		return nil
	}
	return l.ln.Close()
}

// Greet sends the greeting line the producer waits for before streaming.
func Greet(w io.Writer) error {
	if _, err := io.WriteString(w, protocol.Greeting); err != nil {
		return errors.Wrap(err, "failed to send greeting")
	}
	util.GetLogger().Debug("Greeting sent")
	return nil
}
