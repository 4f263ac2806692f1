package model

import (
	"errors"
	"fmt"
	"math"
)

// MaskCandidate is a mask as reported by the segmentation service. Every
// field is optional so a missing one can be told apart from a zero value.
type MaskCandidate struct {
	ID             *string     `json:"id"`
	Segmentation   [][]bool    `json:"segmentation"`
	Area           *float64    `json:"area"`
	BBox           []float64   `json:"bbox"`
	PredictedIOU   *float64    `json:"predicted_iou"`
	PointCoords    [][]float64 `json:"point_coords"`
	StabilityScore *float64    `json:"stability_score"`
}

// PointCandidate is one of the candidate masks returned for a point query.
type PointCandidate struct {
	Segmentation [][]bool `json:"segmentation"`
	Score        *float64 `json:"score"`
}

// Validate checks the candidate against a width×height image and converts it.
func (c MaskCandidate) Validate(width, height int) (Mask, error) {
	switch {
	case c.ID == nil || *c.ID == "":
		return Mask{}, errors.New("missing id")
	case c.Segmentation == nil:
		return Mask{}, errors.New("missing segmentation")
	case c.Area == nil:
		return Mask{}, errors.New("missing area")
	case len(c.BBox) != 4:
		return Mask{}, fmt.Errorf("bbox has %d values, want 4", len(c.BBox))
	case c.PredictedIOU == nil:
		return Mask{}, errors.New("missing predicted_iou")
	case c.PointCoords == nil:
		return Mask{}, errors.New("missing point_coords")
	case c.StabilityScore == nil:
		return Mask{}, errors.New("missing stability_score")
	}

	grid, err := candidateGrid(c.Segmentation, width, height)
	if err != nil {
		return Mask{}, err
	}

	coords := make([]Coord, 0, len(c.PointCoords))
	for i, p := range c.PointCoords {
		if len(p) != 2 {
			return Mask{}, fmt.Errorf("point_coords[%d] has %d values, want 2", i, len(p))
		}
		coords = append(coords, Coord{int(math.Round(p[0])), int(math.Round(p[1]))})
	}

	var bbox BBox
	for i, v := range c.BBox {
		bbox[i] = int(math.Round(v))
	}

	return Mask{
		ID:             *c.ID,
		Segmentation:   grid,
		Area:           int(math.Round(*c.Area)),
		BBox:           bbox,
		PredictedIOU:   *c.PredictedIOU,
		PointCoords:    coords,
		StabilityScore: *c.StabilityScore,
	}, nil
}

// Validate checks the candidate against a width×height image and converts it.
func (c PointCandidate) Validate(width, height int) (PointMask, error) {
	if c.Segmentation == nil {
		return PointMask{}, errors.New("missing segmentation")
	}
	if c.Score == nil {
		return PointMask{}, errors.New("missing score")
	}
	grid, err := candidateGrid(c.Segmentation, width, height)
	if err != nil {
		return PointMask{}, err
	}
	return PointMask{Segmentation: grid, Score: *c.Score}, nil
}

func candidateGrid(rows [][]bool, width, height int) (Grid, error) {
	grid, err := GridFromRows(rows)
	if err != nil {
		return Grid{}, fmt.Errorf("segmentation: %w", err)
	}
	if !grid.SameSize(width, height) {
		return Grid{}, fmt.Errorf("segmentation is %dx%d, image is %dx%d", grid.Width, grid.Height, width, height)
	}
	return grid, nil
}
