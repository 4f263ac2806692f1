package model

import "time"

// ProbeMaskID identifies the single mask produced by the probe endpoint.
const ProbeMaskID = "test-0"

// BBox is [x, y, width, height].
type BBox [4]int

// Coord is an [x, y] seed point.
type Coord [2]int

// Point is a user-supplied query point.
type Point struct {
	X int `json:"x"`
	Y int `json:"y"`
}

// Mask is a single named region over an image.
type Mask struct {
	ID             string  `json:"id"`
	Segmentation   Grid    `json:"segmentation"`
	Area           int     `json:"area"`
	BBox           BBox    `json:"bbox"`
	PredictedIOU   float64 `json:"predicted_iou"`
	PointCoords    []Coord `json:"point_coords"`
	StabilityScore float64 `json:"stability_score"`
}

func (m Mask) Clone() Mask {
	c := m
	c.Segmentation = m.Segmentation.Clone()
	c.PointCoords = append([]Coord(nil), m.PointCoords...)
	return c
}

// PointMask is the result of a point query. It has no id and is not stored.
type PointMask struct {
	Segmentation Grid    `json:"segmentation"`
	Score        float64 `json:"score"`
}

// Session ties an uploaded image to its latest generated mask set.
type Session struct {
	ImageID       string
	OriginalImage []byte
	Masks         []Mask
	UpdatedAt     time.Time
}

// Mask returns the mask with the given id.
func (s *Session) Mask(id string) (Mask, bool) {
	for _, m := range s.Masks {
		if m.ID == id {
			return m, true
		}
	}
	return Mask{}, false
}

func (s *Session) Clone() *Session {
	c := *s
	c.OriginalImage = append([]byte(nil), s.OriginalImage...)
	c.Masks = make([]Mask, len(s.Masks))
	for i, m := range s.Masks {
		c.Masks[i] = m.Clone()
	}
	return &c
}

// ArtifactRef describes a stored composite.
type ArtifactRef struct {
	ImageID     string `json:"image_id"`
	Path        string `json:"path"`
	ContentType string `json:"content_type"`
	Size        int64  `json:"size"`
	Digest      string `json:"digest"`
}
