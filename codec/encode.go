package codec

import (
	"fmt"
	"image"
	"io"
	"strings"

	"github.com/disintegration/imaging"
	"github.com/gen2brain/avif"
)

const (
	FormatJPEG = "jpeg"
	FormatAVIF = "avif"
)

type Encoder interface {
	// Ext is the canonical extension of the output, with leading dot.
	Ext() string
	Encode(w io.Writer, img image.Image, quality int) error
}

type JPEGEncoder struct{}

func (JPEGEncoder) Ext() string { return ".jpg" }

func (JPEGEncoder) Encode(w io.Writer, img image.Image, quality int) error {
	if err := imaging.Encode(w, img, imaging.JPEG, imaging.JPEGQuality(quality)); err != nil {
		return fmt.Errorf("error encoding to JPEG: %w", err)
	}
	return nil
}

type AVIFEncoder struct {
	QualityAlpha int
	Speed        int
}

func (AVIFEncoder) Ext() string { return ".avif" }

func (e AVIFEncoder) Encode(w io.Writer, img image.Image, quality int) error {
	opts := avif.Options{
		Quality:           quality,
		QualityAlpha:      e.QualityAlpha,
		Speed:             e.Speed,
		ChromaSubsampling: image.YCbCrSubsampleRatio420,
	}
	if err := avif.Encode(w, img, opts); err != nil {
		return fmt.Errorf("error encoding to AVIF: %w", err)
	}
	return nil
}

// EncoderOptions carries the format specific knobs; JPEG ignores them.
type EncoderOptions struct {
	QualityAlpha int
	Speed        int
}

func NewEncoder(format string, opts EncoderOptions) (Encoder, error) {
	switch strings.ToLower(format) {
	case FormatJPEG, "jpg":
		return JPEGEncoder{}, nil
	case FormatAVIF:
		return AVIFEncoder{QualityAlpha: opts.QualityAlpha, Speed: opts.Speed}, nil
	}
	return nil, fmt.Errorf("unsupported output format %q", format)
}
