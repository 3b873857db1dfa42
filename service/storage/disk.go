package storage

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gocv.io/x/gocv"
	"golang.org/x/xerrors"
)

type diskService struct {
	folder string
}

// NewDisk writes JPEG frames into folder, creating it if needed.
func NewDisk(folder string) (IService, error) {
	if err := os.MkdirAll(folder, 0755); err != nil {
		return nil, xerrors.Errorf("create frames folder: %w", err)
	}
	return &diskService{folder: folder}, nil
}

func (svc *diskService) StoreFrame(stage string, frame gocv.Mat, capturedAt time.Time) (string, error) {
	if frame.Empty() {
		return "", xerrors.Errorf("%s frame is empty: %w", stage, ErrWriteFrame)
	}

	path := filepath.Join(svc.folder, FrameName(stage, capturedAt))
	if ok := gocv.IMWrite(path, frame); !ok {
		return "", xerrors.Errorf("%s: %w", path, ErrWriteFrame)
	}
	return path, nil
}

// FrameName is <stage>_<unix seconds>.jpg
func FrameName(stage string, capturedAt time.Time) string {
	return fmt.Sprintf("%s_%d.jpg", stage, capturedAt.Unix())
}
