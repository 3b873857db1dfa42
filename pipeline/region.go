package pipeline

import (
	"fmt"
	"image"
	"image/color"

	"github.com/khaledhikmat/vs-belt/model"
	"gocv.io/x/gocv"
	"golang.org/x/xerrors"
)

var (
	boxColor        = color.RGBA{G: 255, A: 255}
	labelBackground = color.RGBA{R: 255, G: 255, B: 255, A: 255}
	primaryText     = color.RGBA{R: 255, A: 255}
	secondaryText   = color.RGBA{B: 255, A: 255}

	primaryTextOrigin   = image.Pt(50, 40)
	secondaryTextOrigin = image.Pt(50, 90)
)

const (
	boxThickness  = 3
	textScale     = 1.0
	textThickness = 2
)

// Crop returns an owned copy of the region. The source frame is never
// modified and the result shares no memory with it.
func Crop(frame gocv.Mat, region model.Region) (gocv.Mat, error) {
	if err := region.Validate(); err != nil {
		return gocv.NewMat(), err
	}
	if frame.Empty() {
		return gocv.NewMat(), xerrors.Errorf("%s: empty frame: %w", region.Name, model.ErrInvalidRegion)
	}

	bounds := image.Rect(0, 0, frame.Cols(), frame.Rows())
	rect := region.Rect()
	if !rect.In(bounds) {
		return gocv.NewMat(), xerrors.Errorf("%s %v outside frame %dx%d: %w", region.Name, rect, frame.Cols(), frame.Rows(), model.ErrInvalidRegion)
	}

	view := frame.Region(rect)
	defer view.Close()
	return view.Clone(), nil
}

// DrawRegion outlines the region on the frame.
func DrawRegion(frame *gocv.Mat, region model.Region) {
	gocv.Rectangle(frame, region.Rect(), boxColor, boxThickness)
}

// AnnotateText writes text on a filled white label with its baseline at
// origin.
func AnnotateText(frame *gocv.Mat, text string, origin image.Point, textColor color.RGBA) {
	size := gocv.GetTextSize(text, gocv.FontHersheySimplex, textScale, textThickness)
	background := image.Rect(origin.X, origin.Y-size.Y-10, origin.X+size.X, origin.Y+10)
	gocv.Rectangle(frame, background, labelBackground, -1)
	gocv.PutTextWithParams(frame, text, origin, gocv.FontHersheySimplex, textScale, textColor, textThickness, gocv.LineAA, false)
}

// ResultText is the caption drawn for a stage result.
func ResultText(stage string, label string, confidence float64) string {
	return fmt.Sprintf("%s: %s, Confidence: %v%%", stage, label, confidence)
}

// EncodeJPEG is the payload format sent to inference endpoints.
func EncodeJPEG(img gocv.Mat) ([]byte, error) {
	buf, err := gocv.IMEncode(gocv.JPEGFileExt, img)
	if err != nil {
		return nil, xerrors.Errorf("encode jpeg: %w", err)
	}
	defer buf.Close()
	return append([]byte(nil), buf.GetBytes()...), nil
}
