package protocol

import (
	"encoding/base64"
	"strings"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func b64(s string) string {
	return base64.StdEncoding.EncodeToString([]byte(s))
}

func TestAccumulatorPartialSegments(t *testing.T) {
	var acc Accumulator

	assert.Empty(t, acc.Feed([]byte("abc")))
	assert.Equal(t, "abc", string(acc.Pending()))

	assert.Empty(t, acc.Feed([]byte("def")))
	assert.Equal(t, 6, acc.Len())

	segs := acc.Feed([]byte("g\nhi"))
	require.Len(t, segs, 1)
	assert.Equal(t, "abcdefg", string(segs[0]))
	assert.Equal(t, "hi", string(acc.Pending()))
}

func TestAccumulatorMultipleSegmentsInOneRead(t *testing.T) {
	var acc Accumulator

	segs := acc.Feed([]byte("one\ntwo\nthree\nfo"))
	require.Len(t, segs, 3)
	assert.Equal(t, "one", string(segs[0]))
	assert.Equal(t, "two", string(segs[1]))
	assert.Equal(t, "three", string(segs[2]))
	assert.Equal(t, "fo", string(acc.Pending()))

	segs = acc.Feed([]byte("ur\n"))
	require.Len(t, segs, 1)
	assert.Equal(t, "four", string(segs[0]))
	assert.Zero(t, acc.Len())
}

func TestAccumulatorStripsCarriageReturn(t *testing.T) {
	var acc Accumulator

	segs := acc.Feed([]byte("frame\r\n\n"))
	require.Len(t, segs, 2)
	assert.Equal(t, "frame", string(segs[0]))
	assert.Empty(t, segs[1])
}

func TestAccumulatorSegmentsAreIndependentCopies(t *testing.T) {
	var acc Accumulator

	first := acc.Feed([]byte("aaaa\nbb"))
	acc.Feed([]byte("bbbbbbbbbbbbbbbb\n"))
	assert.Equal(t, "aaaa", string(first[0]))
}

func TestAccumulatorByteAtATime(t *testing.T) {
	var acc Accumulator
	stream := "x1\ny22\nz333\n"

	var got []string
	for i := 0; i < len(stream); i++ {
		for _, seg := range acc.Feed([]byte{stream[i]}) {
			got = append(got, string(seg))
		}
	}
	assert.Equal(t, []string{"x1", "y22", "z333"}, got)
	assert.Zero(t, acc.Len())
}

func TestDecodeSegmentPlain(t *testing.T) {
	img := "\xff\xd8\xff\xe0 jpeg bytes $ with dollar"
	f, err := DecodeSegment(VariantPlain, []byte(b64(img)))
	require.NoError(t, err)
	assert.Equal(t, []byte(img), f.Image)
	assert.False(t, f.HasMetadata)
	assert.Empty(t, f.Timecode)
}

func TestDecodeSegmentTimecode(t *testing.T) {
	seg := b64("image") + "$" + b64("1234") + "$" + b64("FragmentMetadata(fragmentNumber=9)")
	f, err := DecodeSegment(VariantTimecode, []byte(seg))
	require.NoError(t, err)
	assert.Equal(t, []byte("image"), f.Image)
	assert.Equal(t, "1234", f.Timecode)
	assert.Equal(t, "FragmentMetadata(fragmentNumber=9)", f.FragmentMetadata)
	assert.True(t, f.HasMetadata)
}

func TestDecodeSegmentErrors(t *testing.T) {
	tests := []struct {
		name    string
		variant Variant
		segment string
		want    error
	}{
		{"empty plain", VariantPlain, "", ErrEmptySegment},
		{"empty timecode", VariantTimecode, "", ErrEmptySegment},
		{"bad base64 plain", VariantPlain, "not*base64", ErrBase64},
		{"truncated base64", VariantPlain, "aGVsbG8", ErrBase64},
		{"missing fields", VariantTimecode, b64("image"), ErrFieldCount},
		{"two fields", VariantTimecode, b64("image") + "$" + b64("1"), ErrFieldCount},
		{"four fields", VariantTimecode, strings.Repeat(b64("x")+"$", 3) + b64("x"), ErrFieldCount},
		{"bad timecode", VariantTimecode, b64("image") + "$%%$" + b64("m"), ErrBase64},
		{"bad metadata", VariantTimecode, b64("image") + "$" + b64("1") + "$!!", ErrBase64},
		{"dollar in plain", VariantPlain, b64("a") + "$" + b64("b"), ErrBase64},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := DecodeSegment(tt.variant, []byte(tt.segment))
			require.Error(t, err)
			assert.True(t, errors.Is(err, tt.want), "got %v", err)
		})
	}
}

func TestEncodeFrameRoundTrip(t *testing.T) {
	f := Frame{Image: []byte{0, 1, 2, 0xff}, Timecode: "66", FragmentMetadata: "fragment-1"}

	for _, v := range []Variant{VariantPlain, VariantTimecode} {
		t.Run(v.String(), func(t *testing.T) {
			var acc Accumulator
			segs := acc.Feed(EncodeFrame(v, f))
			require.Len(t, segs, 1)

			got, err := DecodeSegment(v, segs[0])
			require.NoError(t, err)
			assert.Equal(t, f.Image, got.Image)
			if v == VariantTimecode {
				assert.Equal(t, f.Timecode, got.Timecode)
				assert.Equal(t, f.FragmentMetadata, got.FragmentMetadata)
			}
		})
	}
}

func TestEncodeFrameWireFormat(t *testing.T) {
	f := Frame{Image: []byte("I"), Timecode: "t1", FragmentMetadata: "t2"}

	assert.Equal(t, b64("I")+"\n", string(EncodeFrame(VariantPlain, f)))
	assert.Equal(t, b64("I")+"$"+b64("t1")+"$"+b64("t2")+"\n", string(EncodeFrame(VariantTimecode, f)))
}

func TestParseVariant(t *testing.T) {
	for in, want := range map[string]Variant{
		"plain": VariantPlain, "A": VariantPlain,
		"timecode": VariantTimecode, " b ": VariantTimecode, "TIMECODE": VariantTimecode,
	} {
		got, err := ParseVariant(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}

	_, err := ParseVariant("json")
	assert.Error(t, err)
}
