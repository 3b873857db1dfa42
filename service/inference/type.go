package inference

import (
	"context"
	"errors"
	"fmt"
)

const (
	InferencePath   = "/inference"
	UploadModelPath = "/upload-model"
)

var (
	// ErrRemoteClassificationFailed is returned when the endpoint answers with a non-200 status
	// or cannot be reached at all.
	ErrRemoteClassificationFailed = errors.New("inference: remote classification failed")

	// ErrResponseDecode is returned when a 200 response does not carry a usable result.
	ErrResponseDecode = errors.New("inference: malformed classification response")

	// ErrModelUpload is returned when the endpoint rejects a model archive.
	ErrModelUpload = errors.New("inference: model upload failed")
)

// Result is what an inference endpoint returns for one image.
// Confidence is a percentage in [0,100].
type Result struct {
	Label      string  `json:"classification"`
	Confidence float64 `json:"confidence-score"`
}

// StatusError carries the status of a rejected request.
type StatusError struct {
	Endpoint   string
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("inference [%s]: status %d: %s", e.Endpoint, e.StatusCode, e.Body)
}

type IService interface {
	// Classify posts the encoded image to <endpoint>/inference. No retry is attempted.
	Classify(ctx context.Context, endpoint string, image []byte) (Result, error)
	// UploadModel posts the archive at path to <endpoint>/upload-model.
	UploadModel(ctx context.Context, endpoint string, path string) error
}
