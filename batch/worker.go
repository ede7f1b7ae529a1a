package batch

import (
	"context"
	"errors"
	"fmt"
	"image"
	"os"
	"path/filepath"
	"time"

	"heicconv/codec"
)

// Converter turns one Task into one Outcome. It must always return.
type Converter interface {
	Convert(ctx context.Context, t Task) Outcome
}

// Discarder is implemented by converters that can undo a committed output.
// The scheduler uses it when a conversion finishes after its outcome was
// already reported as a timeout.
type Discarder interface {
	Discard(t Task) error
}

// ImageDecoder is the part of codec.Registry the worker needs.
type ImageDecoder interface {
	Decode(path string) (codec.Decoded, error)
}

// Worker converts a single source image: decode, orient, encode, then an
// atomic rename into place.
type Worker struct {
	Decoder ImageDecoder
	Encoder codec.Encoder
	Quality int
}

func NewWorker(dec ImageDecoder, enc codec.Encoder, quality int) *Worker {
	return &Worker{Decoder: dec, Encoder: enc, Quality: quality}
}

func (w *Worker) Convert(ctx context.Context, t Task) Outcome {
	out := Outcome{Task: t, Started: time.Now()}

	err := w.convert(ctx, t)

	out.Duration = time.Since(out.Started)
	if err != nil {
		out.Status = StatusFailure
		out.Err = err
		return out
	}
	out.Status = StatusSuccess
	return out
}

func (w *Worker) convert(ctx context.Context, t Task) error {
	rel := t.Source.RelPath

	if err := ctx.Err(); err != nil {
		return fmt.Errorf("%s: %w", rel, err)
	}

	dir := filepath.Dir(t.Dest)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("%w: %s: creating %s: %v", ErrWrite, rel, dir, err)
	}

	decoded, err := w.Decoder.Decode(t.Source.Path)
	if err != nil {
		return fmt.Errorf("%w: %s: %v", ErrDecode, rel, err)
	}
	if decoded.Image == nil {
		return fmt.Errorf("%w: %s: decoder returned no image", ErrDecode, rel)
	}

	img := codec.Orient(decoded.Image, decoded.Orientation)

	if err := ctx.Err(); err != nil {
		return fmt.Errorf("%s: %w", rel, err)
	}

	return w.write(ctx, t, img)
}

// Discard removes the destination of a conversion whose outcome was already
// reported as failed.
func (w *Worker) Discard(t Task) error {
	if err := os.Remove(t.Dest); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("%w: %s: %v", ErrWrite, t.Source.RelPath, err)
	}
	return nil
}

// write encodes into a hidden temp file next to the destination and renames
// it over the destination once the bytes are on disk. A cancelled ctx at that
// point drops the temp file instead.
func (w *Worker) write(ctx context.Context, t Task, img image.Image) (rerr error) {
	rel := t.Source.RelPath

	tmp, err := os.CreateTemp(filepath.Dir(t.Dest), "."+filepath.Base(t.Dest)+".*.tmp")
	if err != nil {
		return fmt.Errorf("%w: %s: creating temporary file: %v", ErrWrite, rel, err)
	}
	tmpPath := tmp.Name()

	closed := false
	renamed := false
	defer func() {
		if !closed {
			tmp.Close()
		}
		if !renamed {
			if err := os.Remove(tmpPath); err != nil && !errors.Is(err, os.ErrNotExist) && rerr != nil {
				rerr = errors.Join(rerr, err)
			}
		}
	}()

	if err := w.Encoder.Encode(tmp, img, w.Quality); err != nil {
		return fmt.Errorf("%w: %s: %v", ErrEncode, rel, err)
	}

	if err := tmp.Sync(); err != nil {
		return fmt.Errorf("%w: %s: %v", ErrWrite, rel, err)
	}

	closed = true
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("%w: %s: %v", ErrWrite, rel, err)
	}

	if err := ctx.Err(); err != nil {
		return fmt.Errorf("%s: %w", rel, err)
	}

	if err := os.Rename(tmpPath, t.Dest); err != nil {
		return fmt.Errorf("%w: %s: renaming into place: %v", ErrWrite, rel, err)
	}
	renamed = true

	return nil
}
