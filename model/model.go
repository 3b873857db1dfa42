package model

import (
	"errors"
	"fmt"
	"image"
	"runtime/debug"

	"golang.org/x/xerrors"
)

// ErrInvalidRegion is returned when a crop rectangle is malformed or does not fit the frame
var ErrInvalidRegion = errors.New("invalid region")

type CustomError struct {
	Processor  string                 `json:"processor"`
	Inner      error                  `json:"innerError"`
	Message    string                 `json:"message"`
	StackTrace string                 `json:"stackTrace"`
	Misc       map[string]interface{} `json:"misc"`
}

func (e CustomError) Error() string {
	if e.Inner == nil {
		return fmt.Sprintf("%s: %s", e.Processor, e.Message)
	}
	return fmt.Sprintf("%s: %s: %v", e.Processor, e.Message, e.Inner)
}

func (e CustomError) Unwrap() error {
	return e.Inner
}

func GenError(proc string, err error, misc map[string]interface{}, messagef string, args ...interface{}) CustomError {
	return CustomError{
		Processor:  proc,
		Inner:      err,
		Message:    fmt.Sprintf(messagef, args...),
		StackTrace: string(debug.Stack()),
		Misc:       misc,
	}
}

// Region is a named crop rectangle in frame pixel coordinates.
// X2 and Y2 are exclusive.
type Region struct {
	Name string `json:"name"`
	X1   int    `json:"x1"`
	Y1   int    `json:"y1"`
	X2   int    `json:"x2"`
	Y2   int    `json:"y2"`
}

func (r Region) Rect() image.Rectangle {
	return image.Rect(r.X1, r.Y1, r.X2, r.Y2)
}

// Validate checks the region shape only. Whether it fits a frame is
// decided at crop time because the frame size is not known up front.
func (r Region) Validate() error {
	if r.Name == "" {
		return xerrors.Errorf("region has no name: %w", ErrInvalidRegion)
	}
	if r.X1 < 0 || r.Y1 < 0 {
		return xerrors.Errorf("%s has negative origin (%d,%d): %w", r.Name, r.X1, r.Y1, ErrInvalidRegion)
	}
	if r.X2 <= r.X1 || r.Y2 <= r.Y1 {
		return xerrors.Errorf("%s is empty (%d,%d)-(%d,%d): %w", r.Name, r.X1, r.Y1, r.X2, r.Y2, ErrInvalidRegion)
	}
	return nil
}

func (r Region) String() string {
	return fmt.Sprintf("%s:%d,%d,%d,%d", r.Name, r.X1, r.Y1, r.X2, r.Y2)
}

type ConnectionState int32

const (
	Disconnected ConnectionState = iota
	Connected
	Reconnecting
)

func (s ConnectionState) String() string {
	switch s {
	case Connected:
		return "connected"
	case Reconnecting:
		return "reconnecting"
	default:
		return "disconnected"
	}
}

// PipelineOutcome is the payload forwarded downstream once per tick.
// The secondary fields are only present when the gate fired and the
// secondary stage completed.
type PipelineOutcome struct {
	PrimaryLabel        string   `json:"primary_label"`
	PrimaryConfidence   float64  `json:"primary_confidence"`
	SecondaryLabel      string   `json:"secondary_label,omitempty"`
	SecondaryConfidence *float64 `json:"secondary_confidence,omitempty"`
}

func (o PipelineOutcome) HasSecondary() bool {
	return o.SecondaryConfidence != nil
}

func (o PipelineOutcome) WithSecondary(label string, confidence float64) PipelineOutcome {
	o.SecondaryLabel = label
	o.SecondaryConfidence = &confidence
	return o
}

type SourceStats struct {
	ID         string `json:"id"`
	Address    string `json:"address"`
	Frames     int64  `json:"frames"`
	Evicted    int64  `json:"evicted"`
	Errors     int64  `json:"errors"`
	Reconnects int64  `json:"reconnects"`
	Uptime     int64  `json:"uptime"`
	Timestamp  int64  `json:"timestamp"`
}

type OrchestratorStats struct {
	Ticks             int64   `json:"ticks"`
	FrameMisses       int64   `json:"frameMisses"`
	PrimaryFailures   int64   `json:"primaryFailures"`
	GateOpened        int64   `json:"gateOpened"`
	SecondaryFailures int64   `json:"secondaryFailures"`
	Published         int64   `json:"published"`
	AvgTickTime       float64 `json:"avgTickTime"`
	Uptime            int64   `json:"uptime"`
	Timestamp         int64   `json:"timestamp"`
}

type PublisherStats struct {
	Name      string `json:"name"`
	Workers   int    `json:"workers"`
	Published int64  `json:"published"`
	Dropped   int64  `json:"dropped"`
	Errors    int64  `json:"errors"`
	Uptime    int64  `json:"uptime"`
	Timestamp int64  `json:"timestamp"`
}
