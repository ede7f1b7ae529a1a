package batch

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"heicconv/codec"
)

// pngAsHEIC registers a PNG decoder under the .heic extension so tests can
// produce valid "HEIC" fixtures with the standard library encoder.
func pngAsHEIC(o codec.Orientation) *codec.Registry {
	r := codec.NewRegistry()
	r.Register(codec.DecoderFunc(func(path string) (codec.Decoded, error) {
		f, err := os.Open(path)
		if err != nil {
			return codec.Decoded{}, err
		}
		defer f.Close()
		img, err := png.Decode(f)
		if err != nil {
			return codec.Decoded{}, err
		}
		return codec.Decoded{Image: img, Orientation: o}, nil
	}), ".heic")
	return r
}

func pngBytes(t *testing.T, w, h int) []byte {
	t.Helper()
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	for x := 0; x < w; x++ {
		img.SetNRGBA(x, 0, color.NRGBA{R: uint8(x * 40), G: 128, A: 255})
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

type failingEncoder struct{}

func (failingEncoder) Ext() string { return ".jpg" }

func (failingEncoder) Encode(w io.Writer, _ image.Image, _ int) error {
	w.Write([]byte("partial"))
	return errors.New("disk full")
}

func decodeJPEGFile(t *testing.T, path string) image.Image {
	t.Helper()
	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()
	img, err := jpeg.Decode(f)
	require.NoError(t, err)
	return img
}

func leftovers(t *testing.T, dir string) []string {
	t.Helper()
	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	var names []string
	for _, e := range entries {
		names = append(names, e.Name())
	}
	return names
}

func singleTask(t *testing.T, data []byte) (Task, string) {
	t.Helper()
	in, out := t.TempDir(), t.TempDir()
	rel := filepath.Join("album", "IMG_1.HEIC")
	src := touch(t, in, "album/IMG_1.HEIC", data)
	task := Task{Source: SourceFile{Path: src, RelPath: rel}, Dest: DestPath(out, rel, ".jpg")}
	return task, out
}

func TestWorker_ConvertSuccess(t *testing.T) {
	task, _ := singleTask(t, pngBytes(t, 4, 2))
	w := NewWorker(pngAsHEIC(codec.OrientationNormal), codec.JPEGEncoder{}, 100)

	out := w.Convert(context.Background(), task)
	require.NoError(t, out.Err)
	assert.Equal(t, StatusSuccess, out.Status)
	assert.False(t, out.Started.IsZero())

	img := decodeJPEGFile(t, task.Dest)
	assert.Equal(t, image.Rect(0, 0, 4, 2), img.Bounds())
	assert.Equal(t, []string{"IMG_1.jpg"}, leftovers(t, filepath.Dir(task.Dest)))
}

func TestWorker_AppliesOrientation(t *testing.T) {
	task, _ := singleTask(t, pngBytes(t, 4, 2))
	w := NewWorker(pngAsHEIC(codec.OrientationRotate90CW), codec.JPEGEncoder{}, 100)

	out := w.Convert(context.Background(), task)
	require.NoError(t, out.Err)

	img := decodeJPEGFile(t, task.Dest)
	assert.Equal(t, 2, img.Bounds().Dx())
	assert.Equal(t, 4, img.Bounds().Dy())
}

func TestWorker_OverwritesExistingDestination(t *testing.T) {
	task, _ := singleTask(t, pngBytes(t, 3, 3))
	touch(t, filepath.Dir(task.Dest), "IMG_1.jpg", []byte("stale"))
	w := NewWorker(pngAsHEIC(codec.OrientationNormal), codec.JPEGEncoder{}, 90)

	out := w.Convert(context.Background(), task)
	require.NoError(t, out.Err)
	assert.Equal(t, image.Rect(0, 0, 3, 3), decodeJPEGFile(t, task.Dest).Bounds())
}

func TestWorker_CorruptSourceIsDecodeFailure(t *testing.T) {
	task, _ := singleTask(t, []byte("corrupt bytes"))
	w := NewWorker(pngAsHEIC(codec.OrientationNormal), codec.JPEGEncoder{}, 100)

	out := w.Convert(context.Background(), task)
	assert.Equal(t, StatusFailure, out.Status)
	assert.ErrorIs(t, out.Err, ErrDecode)
	assert.Contains(t, out.Err.Error(), task.Source.RelPath)

	assert.NoFileExists(t, task.Dest)
	assert.Empty(t, leftovers(t, filepath.Dir(task.Dest)))
}

func TestWorker_EncodeFailureLeavesNoPartialFile(t *testing.T) {
	task, _ := singleTask(t, pngBytes(t, 2, 2))
	w := NewWorker(pngAsHEIC(codec.OrientationNormal), failingEncoder{}, 100)

	out := w.Convert(context.Background(), task)
	assert.Equal(t, StatusFailure, out.Status)
	assert.ErrorIs(t, out.Err, ErrEncode)
	assert.Contains(t, out.Err.Error(), "disk full")

	assert.NoFileExists(t, task.Dest)
	assert.Empty(t, leftovers(t, filepath.Dir(task.Dest)))
}

func TestWorker_UnwritableDestinationIsWriteFailure(t *testing.T) {
	task, out := singleTask(t, pngBytes(t, 2, 2))
	// A regular file where the album directory should go.
	touch(t, out, "album", []byte("not a directory"))
	w := NewWorker(pngAsHEIC(codec.OrientationNormal), codec.JPEGEncoder{}, 100)

	res := w.Convert(context.Background(), task)
	assert.Equal(t, StatusFailure, res.Status)
	assert.ErrorIs(t, res.Err, ErrWrite)
}

func TestWorker_CancelledContext(t *testing.T) {
	task, _ := singleTask(t, pngBytes(t, 2, 2))
	w := NewWorker(pngAsHEIC(codec.OrientationNormal), codec.JPEGEncoder{}, 100)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	out := w.Convert(ctx, task)
	assert.Equal(t, StatusFailure, out.Status)
	assert.ErrorIs(t, out.Err, context.Canceled)
	assert.NoFileExists(t, task.Dest)
}

// slowEncoder runs before on the first Encode call, then delegates to JPEG.
type slowEncoder struct {
	before func()
}

func (slowEncoder) Ext() string { return ".jpg" }

func (e slowEncoder) Encode(w io.Writer, img image.Image, quality int) error {
	e.before()
	return codec.JPEGEncoder{}.Encode(w, img, quality)
}

func TestWorker_CancelledDuringEncodeCommitsNothing(t *testing.T) {
	task, _ := singleTask(t, pngBytes(t, 2, 2))
	ctx, cancel := context.WithCancel(context.Background())
	w := NewWorker(pngAsHEIC(codec.OrientationNormal), slowEncoder{before: cancel}, 100)

	out := w.Convert(ctx, task)
	assert.Equal(t, StatusFailure, out.Status)
	assert.ErrorIs(t, out.Err, context.Canceled)

	assert.NoFileExists(t, task.Dest)
	assert.Empty(t, leftovers(t, filepath.Dir(task.Dest)))
}

func TestWorker_Discard(t *testing.T) {
	task, _ := singleTask(t, pngBytes(t, 2, 2))
	w := NewWorker(pngAsHEIC(codec.OrientationNormal), codec.JPEGEncoder{}, 100)

	require.True(t, w.Convert(context.Background(), task).Succeeded())
	require.FileExists(t, task.Dest)

	require.NoError(t, w.Discard(task))
	assert.NoFileExists(t, task.Dest)
	assert.NoError(t, w.Discard(task), "discarding a missing output is not an error")
}
