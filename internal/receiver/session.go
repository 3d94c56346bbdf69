// Package receiver accepts the producer's connection and runs the
// receive, decode and display loop.
package receiver

import (
	"context"
	"fmt"
	"io"
	"net"
	"os"
	"sync"
	"time"

	"github.com/fatih/color"
	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/kvsview/kvsview/internal/display"
	"github.com/kvsview/kvsview/internal/protocol"
	"github.com/kvsview/kvsview/internal/util"
)

// Producer is the process that connects back and streams segments. Start
// receives the port the listener is bound to.
type Producer interface {
	Start(ctx context.Context, port int) error
}

// Options configures a Session
type Options struct {
	Host          string
	Port          int
	ChunkSize     int
	Variant       protocol.Variant
	AcceptTimeout time.Duration

	// Producer is started after the bind step; nil means it is launched elsewhere.
	Producer Producer
	Display  display.Display
	// Status receives one human readable block per frame; defaults to stdout.
	Status io.Writer
}

// Stats counts what a session has processed
type Stats struct {
	Bytes    int64
	Segments int64
	Frames   int64
}

// Session is one listen, accept, receive lifecycle. It is used once.
type Session struct {
	opts Options
	id   string

	acc protocol.Accumulator

	mu       sync.Mutex
	listener *Listener
	stats    Stats
	ready    chan struct{}
}

func NewSession(opts Options) *Session {
	if opts.ChunkSize <= 0 {
		opts.ChunkSize = 1024
	}
	if opts.Status == nil {
		opts.Status = os.Stdout
	}
	if opts.Display == nil {
		opts.Display = display.Log{}
	}
	return &Session{
		opts:  opts,
		id:    uuid.NewString(),
		ready: make(chan struct{}),
	}
}

// ID identifies the session in logs
func (s *Session) ID() string {
	return s.id
}

// Ready is closed once the bind step has been attempted and the producer launched.
func (s *Session) Ready() <-chan struct{} {
	return s.ready
}

// Port returns the bound port once Ready is closed.
func (s *Session) Port() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener == nil {
		return s.opts.Port
	}
	return s.listener.Port()
}

// Stats returns a snapshot of the counters
func (s *Session) Stats() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stats
}

// Run binds, launches the producer, accepts its connection, greets it and
// then receives frames until the peer closes the stream (nil), a frame is
// malformed, the connection fails or ctx is cancelled.
func (s *Session) Run(ctx context.Context) error {
	logger := util.GetLogger().With("session", s.id)
	logger.Info("Socket created", "host", s.opts.Host, "port", s.opts.Port, "variant", s.opts.Variant.String())

	l := Listen(s.opts.Host, s.opts.Port)
	s.mu.Lock()
	s.listener = l
	s.mu.Unlock()
	defer l.Close()

	if s.opts.Producer != nil {
		if err := s.opts.Producer.Start(ctx, l.Port()); err != nil {
			close(s.ready)
			return errors.Wrap(err, "failed to launch producer")
		}
	}
	close(s.ready)

	conn, err := l.Accept(ctx, s.opts.AcceptTimeout)
	if err != nil {
		return err
	}
	defer conn.Close()
	// Only one producer is ever served
	l.Close()

	if err := Greet(conn); err != nil {
		return err
	}
	logger.Info("Message sent")

	return s.consume(ctx, conn)
}

// Consume runs the receive loop over an already established stream.
func (s *Session) Consume(ctx context.Context, r io.Reader) error {
	return s.consume(ctx, r)
}

func (s *Session) consume(ctx context.Context, r io.Reader) error {
	logger := util.GetLogger().With("session", s.id)

	if c, ok := r.(net.Conn); ok {
		stop := make(chan struct{})
		defer close(stop)
		go func() {
			select {
			case <-ctx.Done():
				c.Close()
			case <-stop:
			}
		}()
	}

	buf := make([]byte, s.opts.ChunkSize)
	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		n, readErr := r.Read(buf)
		if n > 0 {
			s.mu.Lock()
			s.stats.Bytes += int64(n)
			s.mu.Unlock()

			for _, seg := range s.acc.Feed(buf[:n]) {
				if err := s.handleSegment(ctx, seg); err != nil {
					return err
				}
			}
		}

		if readErr != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			if errors.Is(readErr, io.EOF) {
				if pending := s.acc.Len(); pending > 0 {
					logger.Warn("Stream ended with an incomplete segment", "pending_bytes", pending)
				}
				logger.Info("Stream ended", "frames", s.Stats().Frames)
				return nil
			}
			return errors.Wrap(readErr, "failed to read from producer")
		}
	}
}

func (s *Session) handleSegment(ctx context.Context, seg []byte) error {
	s.mu.Lock()
	s.stats.Segments++
	seq := uint64(s.stats.Segments)
	s.mu.Unlock()

	frame, err := protocol.DecodeSegment(s.opts.Variant, seg)
	if err != nil {
		return errors.Wrapf(err, "frame %d", seq)
	}
	frame.Seq = seq

	info, err := display.Inspect(frame.Image)
	if err != nil {
		return errors.Wrapf(err, "frame %d", seq)
	}

	s.printFrame(frame, info)

	if err := s.opts.Display.Show(ctx, frame, info); err != nil {
		return errors.Wrapf(err, "frame %d", seq)
	}

	s.mu.Lock()
	s.stats.Frames++
	s.mu.Unlock()
	return nil
}

func (s *Session) printFrame(frame protocol.Frame, info display.Info) {
	w := s.opts.Status
	head := color.New(color.FgCyan, color.Bold)

	head.Fprintf(w, "frame %d", frame.Seq)
	fmt.Fprintf(w, " %s %dx%d %d bytes\n", info.MIME, info.Width, info.Height, len(frame.Image))
	if frame.HasMetadata {
		fmt.Fprintf(w, "  timecode: %s\n", frame.Timecode)
		fmt.Fprintf(w, "  fragment: %s\n", frame.FragmentMetadata)
	}
}
