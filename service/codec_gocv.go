//go:build gocv

package service

import (
	"fmt"
	"image"
	"io"

	"gocv.io/x/gocv"
)

// OpenCV builds can write webp artifacts, which the pure Go stack only decodes.
func init() {
	registerEncoder("webp", imageEncoder{
		ext:         "webp",
		contentType: "image/webp",
		encode:      encodeWebP,
	})
}

func encodeWebP(w io.Writer, img image.Image, quality int) error {
	mat, err := gocv.ImageToMatRGB(img)
	if err != nil {
		return fmt.Errorf("image to mat: %w", err)
	}
	defer mat.Close()

	if quality <= 0 || quality > 100 {
		quality = 90
	}
	buf, err := gocv.IMEncodeWithParams(gocv.WEBPFileExt, mat, []int{int(gocv.IMWriteWebpQuality), quality})
	if err != nil {
		return fmt.Errorf("imencode webp: %w", err)
	}
	defer buf.Close()

	_, err = w.Write(buf.GetBytes())
	return err
}
