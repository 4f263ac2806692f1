package service

import (
	"bytes"
	"fmt"
	"image"
	_ "image/gif"
	"image/jpeg"
	"image/png"
	"io"

	_ "golang.org/x/image/bmp"
	"golang.org/x/image/draw"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"
)

// DecodeImage decodes any registered raster format. Multi-frame formats
// yield their first frame.
func DecodeImage(data []byte) (image.Image, string, error) {
	img, format, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, "", fmt.Errorf("decode image: %w", err)
	}
	return img, format, nil
}

// DecodeSize returns the image dimensions without decoding pixel data.
func DecodeSize(data []byte) (int, int, error) {
	cfg, _, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return 0, 0, fmt.Errorf("decode image config: %w", err)
	}
	return cfg.Width, cfg.Height, nil
}

// ToNRGBA copies img into a fresh zero-origin NRGBA buffer.
func ToNRGBA(img image.Image) *image.NRGBA {
	b := img.Bounds()
	dst := image.NewNRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
	if src, ok := img.(*image.NRGBA); ok {
		// straight copy keeps non-opaque pixels exact
		for y := 0; y < b.Dy(); y++ {
			copy(dst.Pix[y*dst.Stride:(y+1)*dst.Stride], src.Pix[src.PixOffset(b.Min.X, b.Min.Y+y):])
		}
		return dst
	}
	draw.Draw(dst, dst.Bounds(), img, b.Min, draw.Src)
	return dst
}

type imageEncoder struct {
	ext         string
	contentType string
	encode      func(w io.Writer, img image.Image, quality int) error
}

var encoders = map[string]imageEncoder{
	"png": {
		ext:         "png",
		contentType: "image/png",
		encode: func(w io.Writer, img image.Image, _ int) error {
			return png.Encode(w, img)
		},
	},
	"jpeg": {
		ext:         "jpg",
		contentType: "image/jpeg",
		encode: func(w io.Writer, img image.Image, quality int) error {
			if quality <= 0 || quality > 100 {
				quality = jpeg.DefaultQuality
			}
			return jpeg.Encode(w, img, &jpeg.Options{Quality: quality})
		},
	},
}

func registerEncoder(format string, e imageEncoder) {
	encoders[format] = e
}

// SupportsFormat reports whether artifacts can be encoded as format.
func SupportsFormat(format string) bool {
	_, ok := encoders[format]
	return ok
}

// EncodeImage encodes img and returns the bytes, file extension and content type.
func EncodeImage(img image.Image, format string, quality int) ([]byte, string, string, error) {
	enc, ok := encoders[format]
	if !ok {
		return nil, "", "", fmt.Errorf("unsupported artifact format %q", format)
	}
	var buf bytes.Buffer
	if err := enc.encode(&buf, img, quality); err != nil {
		return nil, "", "", fmt.Errorf("encode %s: %w", format, err)
	}
	return buf.Bytes(), enc.ext, enc.contentType, nil
}
