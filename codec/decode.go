// Package codec wraps the image libraries used to read source files and
// write converted output.
package codec

import (
	"bytes"
	"fmt"
	"image"
	"image/jpeg"
	"image/png"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/gen2brain/heic"
	"golang.org/x/image/webp"
)

// Decoded holds decoded pixels and the orientation that still has to be
// applied before they display upright.
type Decoded struct {
	Image       image.Image
	Orientation Orientation
}

type Decoder interface {
	Decode(path string) (Decoded, error)
}

// DecoderFunc adapts a plain function to the Decoder interface.
type DecoderFunc func(path string) (Decoded, error)

func (f DecoderFunc) Decode(path string) (Decoded, error) {
	return f(path)
}

// Registry maps lowercase file extensions (with leading dot) to decoders.
type Registry struct {
	mu       sync.RWMutex
	decoders map[string]Decoder
}

func NewRegistry() *Registry {
	return &Registry{decoders: make(map[string]Decoder)}
}

// DefaultRegistry knows HEIC/HEIF, JPEG, PNG and WebP sources.
func DefaultRegistry() *Registry {
	r := NewRegistry()
	r.Register(DecoderFunc(decodeHEIC), ".heic", ".heif")
	r.Register(DecoderFunc(decodeJPEG), ".jpg", ".jpeg")
	r.Register(DecoderFunc(decodePNG), ".png")
	r.Register(DecoderFunc(decodeWebP), ".webp")
	return r
}

func (r *Registry) Register(d Decoder, exts ...string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, ext := range exts {
		r.decoders[NormalizeExt(ext)] = d
	}
}

func (r *Registry) Lookup(ext string) (Decoder, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	d, ok := r.decoders[NormalizeExt(ext)]
	return d, ok
}

// Extensions returns the registered extensions in sorted order.
func (r *Registry) Extensions() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	exts := make([]string, 0, len(r.decoders))
	for ext := range r.decoders {
		exts = append(exts, ext)
	}
	sort.Strings(exts)
	return exts
}

// Decode picks the decoder by the extension of path.
func (r *Registry) Decode(path string) (Decoded, error) {
	ext := NormalizeExt(filepath.Ext(path))
	d, ok := r.Lookup(ext)
	if !ok {
		return Decoded{}, fmt.Errorf("unsupported source format %q", ext)
	}
	return d.Decode(path)
}

// NormalizeExt lowercases ext and makes sure it starts with a dot.
func NormalizeExt(ext string) string {
	ext = strings.ToLower(strings.TrimSpace(ext))
	if ext != "" && !strings.HasPrefix(ext, ".") {
		ext = "." + ext
	}
	return ext
}

// libheif applies the irot/imir item transforms while decoding, so the pixels
// handed back are already upright.
func decodeHEIC(path string) (Decoded, error) {
	f, err := os.Open(path)
	if err != nil {
		return Decoded{}, fmt.Errorf("error opening file: %w", err)
	}
	defer f.Close()

	img, err := heic.Decode(f)
	if err != nil {
		return Decoded{}, fmt.Errorf("error decoding HEIC: %w", err)
	}
	return Decoded{Image: img, Orientation: OrientationNormal}, nil
}

func decodeJPEG(path string) (Decoded, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Decoded{}, fmt.Errorf("error reading file: %w", err)
	}

	img, err := jpeg.Decode(bytes.NewReader(data))
	if err != nil {
		return Decoded{}, fmt.Errorf("error decoding JPEG: %w", err)
	}
	return Decoded{Image: img, Orientation: ReadOrientation(data)}, nil
}

func decodePNG(path string) (Decoded, error) {
	f, err := os.Open(path)
	if err != nil {
		return Decoded{}, fmt.Errorf("error opening file: %w", err)
	}
	defer f.Close()

	img, err := png.Decode(f)
	if err != nil {
		return Decoded{}, fmt.Errorf("error decoding PNG: %w", err)
	}
	return Decoded{Image: img, Orientation: OrientationNormal}, nil
}

func decodeWebP(path string) (Decoded, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Decoded{}, fmt.Errorf("error reading file: %w", err)
	}

	img, err := webp.Decode(bytes.NewReader(data))
	if err != nil {
		return Decoded{}, fmt.Errorf("error decoding WebP: %w", err)
	}
	return Decoded{Image: img, Orientation: ReadOrientation(data)}, nil
}
