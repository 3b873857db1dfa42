package pipeline

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/khaledhikmat/vs-belt/model"
	"github.com/khaledhikmat/vs-belt/service/config"
	"gocv.io/x/gocv"
)

const (
	frameRows = 120
	frameCols = 160
)

var frameColor = gocv.NewScalar(10, 20, 30, 0)

func testSettings() config.Settings {
	s := config.DefaultSettings()
	s.CaptureAddress = "fake://belt"
	s.PrimaryInferenceURL = "http://primary"
	s.SecondaryInferenceURL = "http://secondary"
	s.InferenceInterval = 10 * time.Millisecond
	s.SettleDelay = 0
	s.ReconnectDelay = 10 * time.Millisecond
	s.FrameWaitTimeout = time.Second
	s.PublishTimeout = 2 * time.Second
	s.ClassifyTimeout = time.Second
	s.StatsPeriod = time.Hour
	s.PrimaryRegion = model.Region{Name: "primary", X1: 10, Y1: 10, X2: 110, Y2: 90}
	s.SecondaryRegion = model.Region{Name: "secondary", X1: 20, Y1: 20, X2: 60, Y2: 60}
	s.PublisherWorkers = 1
	s.PublisherQueueSize = 4
	return s
}

func newFrame() gocv.Mat {
	return gocv.NewMatWithSizeFromScalar(frameColor, frameRows, frameCols, gocv.MatTypeCV8UC3)
}

// fakeCamera hands out fakeCaptures. The first capture can be told to
// fail after a number of reads and opens can be made to fail until
// recover is called.
type fakeCamera struct {
	mu             sync.Mutex
	captures       []*fakeCapture
	openErr        error
	failFirstAfter int
	stayDown       bool
	readDelay      time.Duration
}

func (c *fakeCamera) Open(string) (Capture, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.openErr != nil {
		return nil, c.openErr
	}

	fc := &fakeCapture{delay: c.readDelay}
	if len(c.captures) == 0 {
		fc.failAfter = c.failFirstAfter
		if c.stayDown {
			fc.onFail = func() { c.failOpens(errors.New("camera down")) }
		}
	}
	c.captures = append(c.captures, fc)
	return fc, nil
}

func (c *fakeCamera) failOpens(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.openErr = err
}

func (c *fakeCamera) opened() []*fakeCapture {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]*fakeCapture{}, c.captures...)
}

type fakeCapture struct {
	mu        sync.Mutex
	delay     time.Duration
	failAfter int
	reads     int
	closed    bool
	onFail    func()
}

func (fc *fakeCapture) Read(m *gocv.Mat) bool {
	if fc.delay > 0 {
		time.Sleep(fc.delay)
	}

	fc.mu.Lock()
	defer fc.mu.Unlock()

	if fc.closed {
		return false
	}
	fc.reads++
	if fc.failAfter > 0 && fc.reads > fc.failAfter {
		if fc.onFail != nil {
			fc.onFail()
			fc.onFail = nil
		}
		return false
	}

	frame := newFrame()
	defer frame.Close()
	frame.CopyTo(m)
	return true
}

func (fc *fakeCapture) IsOpened() bool {
	fc.mu.Lock()
	defer fc.mu.Unlock()
	return !fc.closed
}

func (fc *fakeCapture) Close() error {
	fc.mu.Lock()
	defer fc.mu.Unlock()
	fc.closed = true
	return nil
}

func (fc *fakeCapture) isClosed() bool {
	return !fc.IsOpened()
}

// stubFrames serves a fresh frame per call. Calls listed in missing fail
// as if no frame arrived in time.
type stubFrames struct {
	mu      sync.Mutex
	calls   int
	missing map[int]bool
}

func (s *stubFrames) Latest(ctx context.Context) (FrameData, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.calls++
	if s.missing[s.calls] {
		return FrameData{}, context.DeadlineExceeded
	}
	return FrameData{Mat: newFrame(), Timestamp: time.Unix(int64(1700000000+s.calls), 0), Seq: uint64(s.calls)}, nil
}

type recordingPublisher struct {
	mu       sync.Mutex
	outcomes []model.PipelineOutcome
}

func (p *recordingPublisher) Publish(outcome model.PipelineOutcome) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.outcomes = append(p.outcomes, outcome)
}

func (p *recordingPublisher) published() []model.PipelineOutcome {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]model.PipelineOutcome{}, p.outcomes...)
}

type recordingBroadcaster struct {
	mu       sync.Mutex
	payloads []any
}

func (b *recordingBroadcaster) Broadcast(payload any) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.payloads = append(b.payloads, payload)
	return nil
}

func (b *recordingBroadcaster) count() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.payloads)
}
