// Package display renders received frames.
package display

import (
	"bytes"
	"context"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"strings"

	"github.com/gabriel-vasile/mimetype"
	"github.com/pkg/errors"

	"github.com/kvsview/kvsview/internal/protocol"
	"github.com/kvsview/kvsview/internal/util"
)

// ErrNotImage is returned by Inspect when the payload is not a recognizable image.
var ErrNotImage = errors.New("frame payload is not an image")

// Info describes a frame payload that passed Inspect.
type Info struct {
	MIME      string
	Extension string
	Width     int
	Height    int
}

// Display shows frames. Show is called from the receive loop, one frame at a time.
type Display interface {
	Show(ctx context.Context, frame protocol.Frame, info Info) error
	Close() error
}

// Inspect checks that data is an image and reports its type and size.
// Width and height stay zero for formats without a registered decoder.
func Inspect(data []byte) (Info, error) {
	if len(data) == 0 {
		return Info{}, errors.Wrap(ErrNotImage, "empty payload")
	}

	mtype := mimetype.Detect(data)
	if !strings.HasPrefix(mtype.String(), "image/") {
		return Info{}, errors.Wrapf(ErrNotImage, "detected %s", mtype.String())
	}

	info := Info{
		MIME:      mtype.String(),
		Extension: mtype.Extension(),
	}

	cfg, format, err := image.DecodeConfig(bytes.NewReader(data))
	switch {
	case err == nil:
		info.Width, info.Height = cfg.Width, cfg.Height
	case errors.Is(err, image.ErrFormat):
		util.GetLogger().Debug("No decoder for image format", "mime", info.MIME)
	default:
		return Info{}, errors.Wrapf(ErrNotImage, "corrupt %s header: %v", format, err)
	}

	return info, nil
}

// Log only records frames in the log; it never opens a window.
type Log struct{}

func (Log) Show(_ context.Context, frame protocol.Frame, info Info) error {
	util.GetLogger().Info("Frame received",
		"seq", frame.Seq, "mime", info.MIME, "width", info.Width, "height", info.Height, "size", len(frame.Image))
	return nil
}

func (Log) Close() error { return nil }

// Multi shows each frame on every display in order.
type Multi []Display

func (m Multi) Show(ctx context.Context, frame protocol.Frame, info Info) error {
	for _, d := range m {
		if err := d.Show(ctx, frame, info); err != nil {
			return err
		}
	}
	return nil
}

// Close closes every display and returns the first error.
func (m Multi) Close() error {
	var first error
	for _, d := range m {
		if err := d.Close(); err != nil && first == nil {
			first = err
		}
	}
	return first
}
