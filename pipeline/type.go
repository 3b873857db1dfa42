package pipeline

import (
	"context"
	"errors"
	"time"

	"github.com/khaledhikmat/vs-belt/model"
	"github.com/khaledhikmat/vs-belt/service/config"
	"github.com/khaledhikmat/vs-belt/service/data"
	"github.com/khaledhikmat/vs-belt/service/inference"
	"github.com/khaledhikmat/vs-belt/service/live"
	"github.com/khaledhikmat/vs-belt/service/storage"
	"github.com/khaledhikmat/vs-belt/service/webhook"
	"gocv.io/x/gocv"
	"golang.org/x/xerrors"
)

var (
	// ErrCapture covers device open and read failures. The source recovers
	// from it on its own; it never reaches the orchestrator.
	ErrCapture = errors.New("capture failure")

	ErrSourceStopped = errors.New("frame source stopped")
	ErrSourceStarted = errors.New("frame source already started")
)

// FrameData is a captured frame. Whoever receives it owns Mat and must
// Close it.
type FrameData struct {
	Mat       gocv.Mat
	Timestamp time.Time
	Seq       uint64
}

// Capture is the part of gocv.VideoCapture the source needs.
type Capture interface {
	Read(m *gocv.Mat) bool
	IsOpened() bool
	Close() error
}

type CaptureOpener func(address string) (Capture, error)

// OpenGoCV opens a camera URL or device index through gocv.
func OpenGoCV(address string) (Capture, error) {
	vc, err := gocv.OpenVideoCapture(address)
	if err != nil {
		return nil, xerrors.Errorf("open %s: %v: %w", address, err, ErrCapture)
	}
	if !vc.IsOpened() {
		vc.Close()
		return nil, xerrors.Errorf("%s did not open: %w", address, ErrCapture)
	}
	return vc, nil
}

// FrameProvider hands out the freshest frame.
type FrameProvider interface {
	Latest(ctx context.Context) (FrameData, error)
}

// OutcomePublisher accepts outcomes without blocking the caller.
type OutcomePublisher interface {
	Publish(outcome model.PipelineOutcome)
}

// Broadcaster is an optional secondary sink for published outcomes.
type Broadcaster interface {
	Broadcast(payload any) error
}

type ServicesFactory struct {
	CfgSvc       config.IService
	DataSvc      data.IService
	InferenceSvc inference.IService
	StorageSvc   storage.IService
	WebhookSvc   webhook.IService
	LiveHub      *live.Hub
	Opener       CaptureOpener
}

// report hands v to a mode stream without ever blocking the caller.
func report(stream chan interface{}, v interface{}) bool {
	if stream == nil {
		return false
	}
	select {
	case stream <- v:
		return true
	default:
		return false
	}
}

// sleep waits d or until ctx is done. It reports whether the full
// duration elapsed.
func sleep(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}
