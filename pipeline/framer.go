package pipeline

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/khaledhikmat/vs-belt/model"
	"github.com/khaledhikmat/vs-belt/service/config"
	"github.com/khaledhikmat/vs-belt/service/lgr"
	"gocv.io/x/gocv"
	"golang.org/x/xerrors"
)

// FrameSource keeps the most recent camera frame in a single slot. A
// dedicated goroutine reads continuously and evicts whatever the consumer
// has not picked up yet, so Latest only ever sees the newest frame.
type FrameSource struct {
	id          string
	cfgSvc      config.IService
	opener      CaptureOpener
	errorStream chan interface{}
	statsStream chan interface{}

	slot  chan FrameData
	state atomic.Int32

	// Counters are written by the reader goroutine only.
	frames     atomic.Int64
	evicted    atomic.Int64
	errors     atomic.Int64
	reconnects atomic.Int64

	mu      sync.Mutex
	started bool
	cancel  context.CancelFunc
	done    chan struct{}
}

func NewFrameSource(cfgSvc config.IService, opener CaptureOpener, errorStream chan interface{}, statsStream chan interface{}) *FrameSource {
	if opener == nil {
		opener = OpenGoCV
	}
	return &FrameSource{
		id:          uuid.NewString(),
		cfgSvc:      cfgSvc,
		opener:      opener,
		errorStream: errorStream,
		statsStream: statsStream,
		slot:        make(chan FrameData, 1),
		done:        make(chan struct{}),
	}
}

// Start launches the reader. An unreachable camera is not an error here:
// the reader keeps retrying until the context is cancelled.
func (s *FrameSource) Start(ctx context.Context, address string) error {
	if address == "" {
		return xerrors.Errorf("empty capture address: %w", ErrCapture)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.started {
		return ErrSourceStarted
	}
	s.started = true

	readerCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel

	lgr.Logger.Info(
		"frame source starting....",
		slog.String("sourceID", s.id),
		slog.String("address", address),
	)

	go s.read(readerCtx, address)
	return nil
}

// Latest returns the newest frame, blocking only while the slot is empty.
// The caller owns the returned Mat.
func (s *FrameSource) Latest(ctx context.Context) (FrameData, error) {
	select {
	case frame := <-s.slot:
		return frame, nil
	default:
	}

	select {
	case frame := <-s.slot:
		return frame, nil
	case <-s.done:
		return FrameData{}, ErrSourceStopped
	case <-ctx.Done():
		return FrameData{}, xerrors.Errorf("wait for frame: %w", ctx.Err())
	}
}

// Stop ends the reader and waits until the capture device is released.
func (s *FrameSource) Stop() {
	s.mu.Lock()
	cancel := s.cancel
	started := s.started
	s.mu.Unlock()

	if !started {
		return
	}
	cancel()
	<-s.done
}

func (s *FrameSource) State() model.ConnectionState {
	return model.ConnectionState(s.state.Load())
}

func (s *FrameSource) Stats() model.SourceStats {
	return model.SourceStats{
		ID:         s.id,
		Frames:     s.frames.Load(),
		Evicted:    s.evicted.Load(),
		Errors:     s.errors.Load(),
		Reconnects: s.reconnects.Load(),
	}
}

func (s *FrameSource) setState(state model.ConnectionState) {
	s.state.Store(int32(state))
}

func (s *FrameSource) read(ctx context.Context, address string) {
	var capture Capture
	startTime := time.Now()

	defer func() {
		if capture != nil {
			capture.Close()
		}
		s.setState(model.Disconnected)
		s.drain()

		stats := s.Stats()
		stats.Address = address
		stats.Uptime = int64(time.Since(startTime).Seconds())
		report(s.statsStream, stats)

		lgr.Logger.Info(
			"frame source stopped",
			slog.String("sourceID", s.id),
			slog.Int64("frames", stats.Frames),
			slog.Int64("reconnects", stats.Reconnects),
		)
		close(s.done)
	}()

	capture = s.open(ctx, address)
	if capture != nil {
		s.setState(model.Connected)
	} else {
		s.setState(model.Reconnecting)
		if !sleep(ctx, s.cfgSvc.GetReconnectDelay()) {
			return
		}
	}

	for {
		if ctx.Err() != nil {
			return
		}

		if capture == nil {
			capture = s.reconnect(ctx, address)
			if capture == nil && !sleep(ctx, s.cfgSvc.GetReconnectDelay()) {
				return
			}
			continue
		}

		img := gocv.NewMat()
		if ok := capture.Read(&img); !ok || img.Empty() {
			img.Close() // Crucial to close the image to avoid memory leaks
			if ctx.Err() != nil {
				return
			}

			s.errors.Add(1)
			lgr.Logger.Log(ctx, lgr.LevelCritical,
				"camera disconnected. attempting to reconnect",
				slog.String("address", address),
			)
			report(s.errorStream, model.GenError("frame_source",
				ErrCapture,
				map[string]interface{}{"address": address},
				"frame read failed"))

			s.setState(model.Reconnecting)
			capture.Close()

			// Reopen right away, then hold off before the next read.
			capture = s.reconnect(ctx, address)
			if !sleep(ctx, s.cfgSvc.GetReconnectDelay()) {
				return
			}
			continue
		}

		seq := uint64(s.frames.Add(1))
		s.put(FrameData{Mat: img, Timestamp: time.Now(), Seq: seq})
	}
}

func (s *FrameSource) reconnect(ctx context.Context, address string) Capture {
	capture := s.open(ctx, address)
	if capture == nil {
		return nil
	}
	s.reconnects.Add(1)
	s.setState(model.Connected)
	lgr.Logger.Info("camera reconnected", slog.String("address", address))
	return capture
}

func (s *FrameSource) open(ctx context.Context, address string) Capture {
	capture, err := s.opener(address)
	if err == nil {
		return capture
	}

	s.errors.Add(1)
	if ctx.Err() == nil {
		lgr.Logger.Log(ctx, lgr.LevelCritical,
			"unable to open camera. retrying",
			slog.String("address", address),
			slog.Duration("delay", s.cfgSvc.GetReconnectDelay()),
			lgr.Err(err),
		)
		report(s.errorStream, model.GenError("frame_source",
			err,
			map[string]interface{}{"address": address},
			"camera open failed"))
	}
	return nil
}

// put overwrites the slot. Only the reader sends on the slot, so after
// evicting the send cannot block.
func (s *FrameSource) put(frame FrameData) {
	select {
	case old := <-s.slot:
		old.Mat.Close()
		s.evicted.Add(1)
	default:
	}
	s.slot <- frame
}

func (s *FrameSource) drain() {
	for {
		select {
		case old := <-s.slot:
			old.Mat.Close()
		default:
			return
		}
	}
}
