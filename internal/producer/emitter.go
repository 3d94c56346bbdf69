package producer

import (
	"context"
	"fmt"
	"io"
	"net"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/kvsview/kvsview/internal/protocol"
	"github.com/kvsview/kvsview/internal/util"
)

// Emitter is a stand-in producer: it connects to a receiver, waits for the
// greeting and writes image files as frame segments.
type Emitter struct {
	Variant  protocol.Variant
	Interval time.Duration
	// Loops is how many times the image list is played; 0 plays it forever.
	Loops int

	fragment string
}

func NewEmitter(variant protocol.Variant, interval time.Duration, loops int) *Emitter {
	return &Emitter{
		Variant:  variant,
		Interval: interval,
		Loops:    loops,
		fragment: uuid.NewString(),
	}
}

// Dial connects to the receiver and consumes its greeting line.
func Dial(ctx context.Context, addr string, timeout time.Duration) (net.Conn, error) {
	d := net.Dialer{Timeout: timeout}
	conn, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to connect to %s", addr)
	}

	if timeout > 0 {
		conn.SetReadDeadline(time.Now().Add(timeout))
	}
	greeting, err := readLine(conn)
	if err != nil {
		conn.Close()
		return nil, errors.Wrap(err, "failed to read greeting")
	}
	conn.SetReadDeadline(time.Time{})

	util.GetLogger().Info("Socket input", "greeting", greeting)
	return conn, nil
}

// readLine reads byte by byte so nothing past the newline is consumed.
func readLine(r io.Reader) (string, error) {
	var sb strings.Builder
	b := make([]byte, 1)
	for {
		if _, err := io.ReadFull(r, b); err != nil {
			return sb.String(), err
		}
		if b[0] == '\n' {
			return strings.TrimRight(sb.String(), "\r"), nil
		}
		sb.WriteByte(b[0])
	}
}

// Frame builds the segment payload for the index-th image of the run.
func (e *Emitter) Frame(index int, image []byte) protocol.Frame {
	offset := time.Duration(index) * e.Interval
	return protocol.Frame{
		Image:            image,
		Timecode:         strconv.FormatInt(offset.Milliseconds(), 10),
		FragmentMetadata: fmt.Sprintf("FragmentMetadata(fragmentNumber=%s, frameIndex=%d)", e.fragment, index),
		HasMetadata:      e.Variant == protocol.VariantTimecode,
	}
}

// Emit writes images to w, one segment each, pacing by Interval. It returns
// the number of frames written.
func (e *Emitter) Emit(ctx context.Context, w io.Writer, images [][]byte) (int, error) {
	if len(images) == 0 {
		return 0, errors.New("no images to send")
	}

	var ticker *time.Ticker
	if e.Interval > 0 {
		ticker = time.NewTicker(e.Interval)
		defer ticker.Stop()
	}

	sent := 0
	for loop := 0; e.Loops == 0 || loop < e.Loops; loop++ {
		for _, img := range images {
			if sent > 0 && ticker != nil {
				select {
				case <-ctx.Done():
					return sent, ctx.Err()
				case <-ticker.C:
				}
			} else if err := ctx.Err(); err != nil {
				return sent, err
			}

			seg := protocol.EncodeFrame(e.Variant, e.Frame(sent, img))
			if _, err := w.Write(seg); err != nil {
				return sent, errors.Wrapf(err, "failed to write frame %d", sent+1)
			}
			sent++
			util.GetLogger().Debug("Frame sent", "index", sent, "size", len(img))
		}
	}
	return sent, nil
}
