package service

import (
	"image"
	"image/color"
	"strconv"

	"github.com/Bharath5252/Segmentation-masks-via-SAM2/apperror"
	"github.com/Bharath5252/Segmentation-masks-via-SAM2/model"
	"github.com/Bharath5252/Segmentation-masks-via-SAM2/utils"
	"go.uber.org/zap"
)

// ParseHexColor parses "#RRGGBB".
func ParseHexColor(s string) (color.NRGBA, error) {
	if len(s) != 7 || s[0] != '#' {
		return color.NRGBA{}, apperror.Validation("color %q must be #RRGGBB", s)
	}
	var rgb [3]uint8
	for i := range rgb {
		v, err := strconv.ParseUint(s[1+2*i:3+2*i], 16, 8)
		if err != nil {
			return color.NRGBA{}, apperror.Validation("color %q must be #RRGGBB", s)
		}
		rgb[i] = uint8(v)
	}
	return color.NRGBA{R: rgb[0], G: rgb[1], B: rgb[2], A: 0xff}, nil
}

// Compositor paints masks onto images with a flat color.
type Compositor struct{}

func NewCompositor() *Compositor {
	return &Compositor{}
}

// Composite returns a copy of src with every pixel of the listed masks set to
// c, applied in order. Unknown ids and masks that do not match the image size
// are skipped. The alpha channel of src is kept. It returns the ids painted.
func (cp *Compositor) Composite(src image.Image, masks []model.Mask, maskIDs []string, c color.NRGBA) (*image.NRGBA, []string) {
	dst := ToNRGBA(src)
	width, height := dst.Bounds().Dx(), dst.Bounds().Dy()

	byID := make(map[string]model.Mask, len(masks))
	for _, m := range masks {
		if _, dup := byID[m.ID]; !dup {
			byID[m.ID] = m
		}
	}

	applied := make([]string, 0, len(maskIDs))
	for _, id := range maskIDs {
		m, ok := byID[id]
		if !ok {
			utils.Logger.Debug("skipping unknown mask", zap.String("mask_id", id))
			continue
		}
		if !m.Segmentation.SameSize(width, height) {
			utils.Logger.Warn("skipping mask with mismatched size",
				zap.String("mask_id", id),
				zap.Int("mask_width", m.Segmentation.Width),
				zap.Int("mask_height", m.Segmentation.Height),
				zap.Int("width", width),
				zap.Int("height", height))
			continue
		}
		paint(dst, m.Segmentation, c)
		applied = append(applied, id)
	}

	compositesTotal.Inc()
	return dst, applied
}

func paint(dst *image.NRGBA, g model.Grid, c color.NRGBA) {
	for y := 0; y < g.Height; y++ {
		row := dst.Pix[y*dst.Stride:]
		for x := 0; x < g.Width; x++ {
			if !g.At(x, y) {
				continue
			}
			px := row[x*4 : x*4+3]
			px[0], px[1], px[2] = c.R, c.G, c.B
		}
	}
}
