package storage

import (
	"errors"
	"time"

	"gocv.io/x/gocv"
)

var ErrWriteFrame = errors.New("storage: frame not written")

type IService interface {
	// StoreFrame archives an annotated frame under a name built from the
	// stage and the capture time. It returns the path written.
	StoreFrame(stage string, frame gocv.Mat, capturedAt time.Time) (string, error)
}
