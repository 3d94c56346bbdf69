package protocol

import (
	"bytes"
	"encoding/base64"
	"strings"

	"github.com/pkg/errors"
)

// Greeting is sent to the producer once its connection has been accepted.
const Greeting = "Message\r\n"

// Field and segment delimiters of the wire format
const (
	SegmentDelimiter = '\n'
	FieldDelimiter   = '$'
)

// Variant selects one of the two segment layouts. It is fixed by configuration
// and never negotiated or guessed from the data.
type Variant int

const (
	// VariantPlain segments carry only a base64 encoded image.
	VariantPlain Variant = iota
	// VariantTimecode segments carry base64 image$base64 timecode$base64 fragment metadata.
	VariantTimecode
)

func (v Variant) String() string {
	switch v {
	case VariantPlain:
		return "plain"
	case VariantTimecode:
		return "timecode"
	default:
		return "unknown"
	}
}

// ParseVariant maps a configuration value to a Variant
func ParseVariant(s string) (Variant, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "plain", "a":
		return VariantPlain, nil
	case "timecode", "b":
		return VariantTimecode, nil
	}
	return 0, errors.Errorf("unknown protocol variant %q (want plain or timecode)", s)
}

var (
	ErrEmptySegment = errors.New("empty frame segment")
	ErrFieldCount   = errors.New("unexpected number of fields in frame segment")
	ErrBase64       = errors.New("invalid base64 in frame segment")
)

// Frame is one decoded segment. Timecode and FragmentMetadata are only
// populated for VariantTimecode and are opaque text.
type Frame struct {
	Seq              uint64
	Image            []byte
	Timecode         string
	FragmentMetadata string
	HasMetadata      bool
}

const timecodeFields = 3

// DecodeSegment decodes one newline-stripped segment according to variant.
func DecodeSegment(variant Variant, segment []byte) (Frame, error) {
	if len(segment) == 0 {
		return Frame{}, ErrEmptySegment
	}

	switch variant {
	case VariantPlain:
		img, err := decodeField("image", segment)
		if err != nil {
			return Frame{}, err
		}
		return Frame{Image: img}, nil

	case VariantTimecode:
		fields := bytes.Split(segment, []byte{FieldDelimiter})
		if len(fields) != timecodeFields {
			return Frame{}, errors.Wrapf(ErrFieldCount, "got %d, want %d", len(fields), timecodeFields)
		}
		img, err := decodeField("image", fields[0])
		if err != nil {
			return Frame{}, err
		}
		timecode, err := decodeField("timecode", fields[1])
		if err != nil {
			return Frame{}, err
		}
		fragment, err := decodeField("fragment metadata", fields[2])
		if err != nil {
			return Frame{}, err
		}
		return Frame{
			Image:            img,
			Timecode:         string(timecode),
			FragmentMetadata: string(fragment),
			HasMetadata:      true,
		}, nil
	}

	return Frame{}, errors.Errorf("unsupported protocol variant %d", variant)
}

func decodeField(name string, field []byte) ([]byte, error) {
	out := make([]byte, base64.StdEncoding.DecodedLen(len(field)))
	n, err := base64.StdEncoding.Decode(out, field)
	if err != nil {
		return nil, errors.Wrapf(ErrBase64, "%s field: %v", name, err)
	}
	return out[:n], nil
}

// EncodeFrame renders f as one newline terminated segment, the way the
// producer writes it.
func EncodeFrame(variant Variant, f Frame) []byte {
	enc := base64.StdEncoding

	var buf bytes.Buffer
	buf.Grow(enc.EncodedLen(len(f.Image)) + 64)
	buf.WriteString(enc.EncodeToString(f.Image))
	if variant == VariantTimecode {
		buf.WriteByte(FieldDelimiter)
		buf.WriteString(enc.EncodeToString([]byte(f.Timecode)))
		buf.WriteByte(FieldDelimiter)
		buf.WriteString(enc.EncodeToString([]byte(f.FragmentMetadata)))
	}
	buf.WriteByte(SegmentDelimiter)
	return buf.Bytes()
}
