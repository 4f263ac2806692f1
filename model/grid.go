package model

import (
	"bytes"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
)

// Grid is a row-major binary bitmap packed one bit per pixel. On the wire it
// is always the dense [][]bool form, height rows of width booleans.
type Grid struct {
	Width  int
	Height int
	bits   []byte
}

// NewGrid returns an all-false grid. Negative dimensions are treated as 0.
func NewGrid(width, height int) Grid {
	width, height = max(width, 0), max(height, 0)
	return Grid{
		Width:  width,
		Height: height,
		bits:   make([]byte, (width*height+7)/8),
	}
}

// GridFromRows builds a grid from dense rows. Rows must all have the same length.
func GridFromRows(rows [][]bool) (Grid, error) {
	height := len(rows)
	width := 0
	if height > 0 {
		width = len(rows[0])
	}
	g := NewGrid(width, height)
	for y, row := range rows {
		if len(row) != width {
			return Grid{}, fmt.Errorf("row %d has %d columns, want %d", y, len(row), width)
		}
		for x, v := range row {
			if v {
				g.Set(x, y, true)
			}
		}
	}
	return g, nil
}

func (g Grid) inside(x, y int) bool {
	return x >= 0 && y >= 0 && x < g.Width && y < g.Height
}

// At reports the value at (x, y); out-of-range coordinates are false.
func (g Grid) At(x, y int) bool {
	if !g.inside(x, y) {
		return false
	}
	i := y*g.Width + x
	return g.bits[i/8]&(1<<(i%8)) != 0
}

// Set writes v at (x, y). Out-of-range coordinates are ignored.
func (g Grid) Set(x, y int, v bool) {
	if !g.inside(x, y) {
		return
	}
	i := y*g.Width + x
	if v {
		g.bits[i/8] |= 1 << (i % 8)
	} else {
		g.bits[i/8] &^= 1 << (i % 8)
	}
}

// FillRect sets every pixel in [x0,x1)×[y0,y1) after clipping to the grid.
func (g Grid) FillRect(x0, y0, x1, y1 int) {
	x0, y0 = max(x0, 0), max(y0, 0)
	x1, y1 = min(x1, g.Width), min(y1, g.Height)
	for y := y0; y < y1; y++ {
		for x := x0; x < x1; x++ {
			g.Set(x, y, true)
		}
	}
}

// Count returns the number of true pixels.
func (g Grid) Count() int {
	n := 0
	for y := 0; y < g.Height; y++ {
		for x := 0; x < g.Width; x++ {
			if g.At(x, y) {
				n++
			}
		}
	}
	return n
}

// SameSize reports whether the grid covers a width×height image.
func (g Grid) SameSize(width, height int) bool {
	return g.Width == width && g.Height == height
}

func (g Grid) Clone() Grid {
	c := g
	c.bits = append([]byte(nil), g.bits...)
	return c
}

// Rows expands the grid into its dense form.
func (g Grid) Rows() [][]bool {
	rows := make([][]bool, g.Height)
	for y := range rows {
		row := make([]bool, g.Width)
		for x := range row {
			row[x] = g.At(x, y)
		}
		rows[y] = row
	}
	return rows
}

func (g Grid) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.Grow(2 + g.Height*(g.Width*6+2))
	buf.WriteByte('[')
	for y := 0; y < g.Height; y++ {
		if y > 0 {
			buf.WriteByte(',')
		}
		buf.WriteByte('[')
		for x := 0; x < g.Width; x++ {
			if x > 0 {
				buf.WriteByte(',')
			}
			if g.At(x, y) {
				buf.WriteString("true")
			} else {
				buf.WriteString("false")
			}
		}
		buf.WriteByte(']')
	}
	buf.WriteByte(']')
	return buf.Bytes(), nil
}

func (g *Grid) UnmarshalJSON(data []byte) error {
	var rows [][]bool
	if err := json.Unmarshal(data, &rows); err != nil {
		return err
	}
	parsed, err := GridFromRows(rows)
	if err != nil {
		return err
	}
	*g = parsed
	return nil
}

const gridHeaderSize = 8

// MarshalBinary encodes the grid compactly: big-endian uint32 width and
// height followed by the packed bits.
func (g Grid) MarshalBinary() ([]byte, error) {
	out := make([]byte, gridHeaderSize, gridHeaderSize+len(g.bits))
	binary.BigEndian.PutUint32(out[0:4], uint32(g.Width))
	binary.BigEndian.PutUint32(out[4:8], uint32(g.Height))
	return append(out, g.bits...), nil
}

func (g *Grid) UnmarshalBinary(data []byte) error {
	if len(data) < gridHeaderSize {
		return errors.New("grid: short header")
	}
	width := int(binary.BigEndian.Uint32(data[0:4]))
	height := int(binary.BigEndian.Uint32(data[4:8]))
	want := (width*height + 7) / 8
	if len(data)-gridHeaderSize != want {
		return fmt.Errorf("grid: %d payload bytes for %dx%d, want %d", len(data)-gridHeaderSize, width, height, want)
	}
	*g = Grid{
		Width:  width,
		Height: height,
		bits:   append([]byte(nil), data[gridHeaderSize:]...),
	}
	return nil
}
