package service

import (
	"strconv"

	"github.com/Bharath5252/Segmentation-masks-via-SAM2/model"
	"github.com/Bharath5252/Segmentation-masks-via-SAM2/utils"
	"go.uber.org/zap"
)

const (
	fallbackMaskScore  = 0.9
	fallbackPointScore = 0.8
	probeHalfWidth     = 20
)

// Synthesizer produces deterministic masks when the segmentation service
// cannot be used. It never fails, whatever the image size.
type Synthesizer struct{}

func NewSynthesizer() *Synthesizer {
	return &Synthesizer{}
}

func fallbackHalfWidth(width, height int) int {
	return min(width, height) / 8
}

// Masks returns one square mask per image quadrant, in the order top-left,
// top-right, bottom-left, bottom-right. Area and bbox describe the unclipped
// square, not the pixels actually set.
func (s *Synthesizer) Masks(width, height int) []model.Mask {
	width, height = max(width, 0), max(height, 0)
	size := fallbackHalfWidth(width, height)

	centers := []model.Coord{
		{width / 4, height / 4},
		{3 * width / 4, height / 4},
		{width / 4, 3 * height / 4},
		{3 * width / 4, 3 * height / 4},
	}

	masks := make([]model.Mask, 0, len(centers))
	for i, c := range centers {
		cx, cy := c[0], c[1]
		grid := model.NewGrid(width, height)
		grid.FillRect(cx-size, cy-size, cx+size, cy+size)

		masks = append(masks, model.Mask{
			ID:             strconv.Itoa(i),
			Segmentation:   grid,
			Area:           (2 * size) * (2 * size),
			BBox:           model.BBox{cx - size, cy - size, 2 * size, 2 * size},
			PredictedIOU:   fallbackMaskScore,
			PointCoords:    []model.Coord{{cx, cy}},
			StabilityScore: fallbackMaskScore,
		})
	}

	utils.Logger.Debug("synthesized fallback masks",
		zap.Int("width", width),
		zap.Int("height", height),
		zap.Int("mask_size", size))

	return masks
}

// Point returns a square around points[0]. Labels are accepted for
// signature parity with the service and ignored.
func (s *Synthesizer) Point(width, height int, points []model.Point, _ []int) model.PointMask {
	width, height = max(width, 0), max(height, 0)
	grid := model.NewGrid(width, height)

	if len(points) > 0 {
		p := points[0]
		size := fallbackHalfWidth(width, height)
		grid.FillRect(p.X-size, p.Y-size, p.X+size, p.Y+size)
	}

	return model.PointMask{
		Segmentation: grid,
		Score:        fallbackPointScore,
	}
}

// Probe returns a single fixed-size mask centered in the image.
func (s *Synthesizer) Probe(width, height int) model.Mask {
	width, height = max(width, 0), max(height, 0)
	cx, cy := width/2, height/2

	grid := model.NewGrid(width, height)
	grid.FillRect(cx-probeHalfWidth, cy-probeHalfWidth, cx+probeHalfWidth, cy+probeHalfWidth)

	side := 2 * probeHalfWidth
	return model.Mask{
		ID:             model.ProbeMaskID,
		Segmentation:   grid,
		Area:           side * side,
		BBox:           model.BBox{cx - probeHalfWidth, cy - probeHalfWidth, side, side},
		PredictedIOU:   fallbackMaskScore,
		PointCoords:    []model.Coord{{cx, cy}},
		StabilityScore: fallbackMaskScore,
	}
}
