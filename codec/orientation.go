package codec

import (
	"bytes"
	"image"

	"github.com/disintegration/imaging"
	"github.com/rwcarlsen/goexif/exif"
)

// Orientation is the EXIF orientation tag (1-8).
type Orientation int

const (
	OrientationNormal Orientation = iota + 1
	OrientationFlipH
	OrientationRotate180
	OrientationFlipV
	OrientationTranspose
	OrientationRotate90CW
	OrientationTransverse
	OrientationRotate90CCW
)

var exifMarker = []byte("Exif\x00\x00")

func (o Orientation) Valid() bool {
	return o >= OrientationNormal && o <= OrientationRotate90CCW
}

// Orient returns img transformed so that it displays upright for the given
// orientation tag. Unknown values leave the image untouched.
func Orient(img image.Image, o Orientation) image.Image {
	switch o {
	case OrientationFlipH:
		return imaging.FlipH(img)
	case OrientationRotate180:
		return imaging.Rotate180(img)
	case OrientationFlipV:
		return imaging.FlipV(img)
	case OrientationTranspose:
		return imaging.Transpose(img)
	case OrientationRotate90CW:
		return imaging.Rotate270(img)
	case OrientationTransverse:
		return imaging.Transverse(img)
	case OrientationRotate90CCW:
		return imaging.Rotate90(img)
	}
	return img
}

// ReadOrientation finds the first Exif block in data, whatever the container,
// and returns its orientation tag.
func ReadOrientation(data []byte) Orientation {
	idx := bytes.Index(data, exifMarker)
	if idx < 0 {
		return OrientationNormal
	}

	x, err := exif.Decode(bytes.NewReader(data[idx+len(exifMarker):]))
	if err != nil {
		return OrientationNormal
	}

	tag, err := x.Get(exif.Orientation)
	if err != nil {
		return OrientationNormal
	}

	v, err := tag.Int(0)
	if err != nil {
		return OrientationNormal
	}

	o := Orientation(v)
	if !o.Valid() {
		return OrientationNormal
	}
	return o
}
