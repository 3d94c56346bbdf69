package display

import (
	"bytes"
	"context"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kvsview/kvsview/internal/protocol"
)

func testJPEG(t *testing.T, w, h int) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	img.Set(1, 1, color.RGBA{R: 255, A: 255})
	var buf bytes.Buffer
	require.NoError(t, jpeg.Encode(&buf, img, nil))
	return buf.Bytes()
}

func testPNG(t *testing.T, w, h int) []byte {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, image.NewGray(image.Rect(0, 0, w, h))))
	return buf.Bytes()
}

func TestInspect(t *testing.T) {
	info, err := Inspect(testJPEG(t, 32, 24))
	require.NoError(t, err)
	assert.Equal(t, "image/jpeg", info.MIME)
	assert.Equal(t, ".jpg", info.Extension)
	assert.Equal(t, 32, info.Width)
	assert.Equal(t, 24, info.Height)

	info, err = Inspect(testPNG(t, 5, 7))
	require.NoError(t, err)
	assert.Equal(t, "image/png", info.MIME)
	assert.Equal(t, 5, info.Width)
	assert.Equal(t, 7, info.Height)
}

func TestInspectRejectsNonImages(t *testing.T) {
	tests := map[string][]byte{
		"empty":          nil,
		"text":           []byte("hello, this is not a picture"),
		"truncated jpeg": testJPEG(t, 8, 8)[:6],
	}
	for name, data := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := Inspect(data)
			require.Error(t, err)
			assert.True(t, errors.Is(err, ErrNotImage), "got %v", err)
		})
	}
}

func TestViewerWritesAndOpensEachFrame(t *testing.T) {
	root := t.TempDir()
	var opened []string

	v, err := NewViewer(WithRoot(root), WithOpener(func(path string) error {
		opened = append(opened, path)
		return nil
	}))
	require.NoError(t, err)
	assert.Equal(t, root, filepath.Dir(v.Dir()))

	img := testJPEG(t, 4, 4)
	info, err := Inspect(img)
	require.NoError(t, err)

	for seq := uint64(1); seq <= 2; seq++ {
		require.NoError(t, v.Show(context.Background(), protocol.Frame{Seq: seq, Image: img}, info))
	}

	require.Len(t, opened, 2)
	assert.Equal(t, filepath.Join(v.Dir(), "frame-000001.jpg"), opened[0])
	got, err := os.ReadFile(opened[1])
	require.NoError(t, err)
	assert.Equal(t, img, got)

	require.NoError(t, v.Close())
	assert.Error(t, v.Show(context.Background(), protocol.Frame{Seq: 3, Image: img}, info))
}

func TestViewerFilesOutliveClose(t *testing.T) {
	img := testPNG(t, 2, 2)
	info, err := Inspect(img)
	require.NoError(t, err)

	// Like xdg-open, the opener returns before the viewer app reads the file
	release := make(chan struct{})
	read := make(chan error, 1)
	v, err := NewViewer(WithRoot(t.TempDir()), WithOpener(func(path string) error {
		go func() {
			<-release
			data, err := os.ReadFile(path)
			if err == nil && !bytes.Equal(data, img) {
				err = errors.New("frame file changed")
			}
			read <- err
		}()
		return nil
	}))
	require.NoError(t, err)

	require.NoError(t, v.Show(context.Background(), protocol.Frame{Seq: 1, Image: img}, info))
	require.NoError(t, v.Close())
	close(release)

	select {
	case err := <-read:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("viewer never read the frame")
	}
}

func TestNewViewerPrunesStaleRuns(t *testing.T) {
	root := t.TempDir()
	stale := filepath.Join(root, "old-run")
	fresh := filepath.Join(root, "recent-run")
	require.NoError(t, os.MkdirAll(stale, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(stale, "frame-000001.jpg"), []byte("x"), 0o644))
	require.NoError(t, os.MkdirAll(fresh, 0o755))
	old := time.Now().Add(-2 * staleRunAge)
	require.NoError(t, os.Chtimes(stale, old, old))

	kept, err := NewViewer(WithRoot(root), KeepFiles(true), WithOpener(func(string) error { return nil }))
	require.NoError(t, err)
	require.NoError(t, kept.Close())
	_, err = os.Stat(stale)
	assert.NoError(t, err, "keep files must not prune")

	v, err := NewViewer(WithRoot(root), WithOpener(func(string) error { return nil }))
	require.NoError(t, err)
	defer v.Close()

	_, err = os.Stat(stale)
	assert.True(t, os.IsNotExist(err))
	for _, dir := range []string{fresh, kept.Dir(), v.Dir()} {
		_, err = os.Stat(dir)
		assert.NoError(t, err, dir)
	}
}

func TestViewerOpenerError(t *testing.T) {
	v, err := NewViewer(WithRoot(t.TempDir()), WithOpener(func(string) error {
		return errors.New("no display")
	}))
	require.NoError(t, err)
	defer v.Close()

	err = v.Show(context.Background(), protocol.Frame{Seq: 1, Image: []byte("x")}, Info{})
	assert.ErrorContains(t, err, "no display")
}

type recordingDisplay struct {
	seen   []uint64
	err    error
	closed bool
}

func (r *recordingDisplay) Show(_ context.Context, f protocol.Frame, _ Info) error {
	r.seen = append(r.seen, f.Seq)
	return r.err
}

func (r *recordingDisplay) Close() error {
	r.closed = true
	return nil
}

func TestMultiStopsAtFirstError(t *testing.T) {
	first := &recordingDisplay{err: errors.New("boom")}
	second := &recordingDisplay{}
	m := Multi{first, second}

	err := m.Show(context.Background(), protocol.Frame{Seq: 4}, Info{})
	assert.EqualError(t, err, "boom")
	assert.Equal(t, []uint64{4}, first.seen)
	assert.Empty(t, second.seen)

	require.NoError(t, m.Close())
	assert.True(t, first.closed)
	assert.True(t, second.closed)
}

func TestLogDisplay(t *testing.T) {
	var d Display = Log{}
	assert.NoError(t, d.Show(context.Background(), protocol.Frame{Seq: 1, Image: []byte("x")}, Info{MIME: "image/png"}))
	assert.NoError(t, d.Close())
}
