package pipeline

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/khaledhikmat/vs-belt/model"
	"github.com/khaledhikmat/vs-belt/service/config"
	"github.com/stretchr/testify/require"
)

func startSource(t *testing.T, cam *fakeCamera, errorStream, statsStream chan interface{}) *FrameSource {
	t.Helper()

	src := NewFrameSource(config.NewStatic(testSettings()), cam.Open, errorStream, statsStream)
	require.NoError(t, src.Start(context.Background(), "fake://belt"))
	t.Cleanup(src.Stop)
	return src
}

func TestLatestIsMonotonic(t *testing.T) {
	src := startSource(t, &fakeCamera{readDelay: time.Millisecond}, nil, nil)

	var lastSeq uint64
	var lastTime time.Time
	for i := 0; i < 30; i++ {
		frame, err := src.Latest(context.Background())
		require.NoError(t, err)
		frame.Mat.Close()

		require.Greater(t, frame.Seq, lastSeq)
		require.False(t, frame.Timestamp.Before(lastTime))
		lastSeq = frame.Seq
		lastTime = frame.Timestamp
	}
}

func TestSlotHoldsAtMostOneFrame(t *testing.T) {
	src := startSource(t, &fakeCamera{}, nil, nil)

	require.Eventually(t, func() bool { return src.Stats().Frames >= 50 }, 5*time.Second, 5*time.Millisecond)
	require.LessOrEqual(t, len(src.slot), 1)
	require.Greater(t, src.Stats().Evicted, int64(0))

	produced := src.Stats().Frames
	frame, err := src.Latest(context.Background())
	require.NoError(t, err)
	defer frame.Mat.Close()
	require.GreaterOrEqual(t, int64(frame.Seq), produced-1)
}

func TestLatestWaitsForFirstFrame(t *testing.T) {
	cam := &fakeCamera{}
	cam.failOpens(errors.New("camera offline"))
	src := startSource(t, cam, nil, nil)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()
	_, err := src.Latest(ctx)
	require.ErrorIs(t, err, context.DeadlineExceeded)
	require.Equal(t, model.Reconnecting, src.State())

	cam.failOpens(nil)
	frame, err := src.Latest(context.Background())
	require.NoError(t, err)
	frame.Mat.Close()
	require.Equal(t, model.Connected, src.State())
}

func TestReconnectsAndResumes(t *testing.T) {
	cam := &fakeCamera{failFirstAfter: 5, stayDown: true, readDelay: time.Millisecond}
	errorStream := make(chan interface{}, 16)
	src := startSource(t, cam, errorStream, nil)

	require.Eventually(t, func() bool { return src.State() == model.Reconnecting }, 2*time.Second, time.Millisecond)

	cam.failOpens(nil)
	require.Eventually(t, func() bool { return src.State() == model.Connected && src.Stats().Reconnects >= 1 }, 2*time.Second, 5*time.Millisecond)

	// Drain anything captured before the failure, then expect fresh frames.
	var frame FrameData
	var err error
	for i := 0; i < 3; i++ {
		frame, err = src.Latest(context.Background())
		require.NoError(t, err)
		frame.Mat.Close()
	}
	require.Greater(t, frame.Seq, uint64(5))

	e := <-errorStream
	custom, ok := e.(model.CustomError)
	require.True(t, ok)
	require.Equal(t, "frame_source", custom.Processor)
}

func TestReopensBeforeWaiting(t *testing.T) {
	settings := testSettings()
	settings.ReconnectDelay = time.Minute
	cam := &fakeCamera{failFirstAfter: 5}
	src := NewFrameSource(config.NewStatic(settings), cam.Open, nil, nil)
	require.NoError(t, src.Start(context.Background(), "fake://belt"))

	// The device is back long before the delay runs out.
	require.Eventually(t, func() bool {
		return src.State() == model.Connected && src.Stats().Reconnects == 1
	}, 500*time.Millisecond, time.Millisecond)
	require.Len(t, cam.opened(), 2)

	// No read happens on the new device until the delay has passed.
	require.Equal(t, int64(5), src.Stats().Frames)
	require.Zero(t, cam.opened()[1].reads)

	stopped := make(chan struct{})
	go func() {
		src.Stop()
		close(stopped)
	}()
	select {
	case <-stopped:
	case <-time.After(time.Second):
		t.Fatal("stop waited out the reconnect delay")
	}
	for _, c := range cam.opened() {
		require.True(t, c.isClosed())
	}
}

func TestStopReleasesDevice(t *testing.T) {
	cam := &fakeCamera{readDelay: time.Millisecond}
	statsStream := make(chan interface{}, 1)
	src := NewFrameSource(config.NewStatic(testSettings()), cam.Open, nil, statsStream)
	require.NoError(t, src.Start(context.Background(), "fake://belt"))

	frame, err := src.Latest(context.Background())
	require.NoError(t, err)
	frame.Mat.Close()

	src.Stop()
	src.Stop()

	for _, c := range cam.opened() {
		require.True(t, c.isClosed())
	}
	require.Equal(t, model.Disconnected, src.State())
	require.Empty(t, src.slot)

	_, err = src.Latest(context.Background())
	require.ErrorIs(t, err, ErrSourceStopped)

	stats, ok := (<-statsStream).(model.SourceStats)
	require.True(t, ok)
	require.Equal(t, "fake://belt", stats.Address)
	require.Greater(t, stats.Frames, int64(0))
}

func TestStartValidation(t *testing.T) {
	src := NewFrameSource(config.NewStatic(testSettings()), (&fakeCamera{}).Open, nil, nil)
	require.ErrorIs(t, src.Start(context.Background(), ""), ErrCapture)

	require.NoError(t, src.Start(context.Background(), "fake://belt"))
	defer src.Stop()
	require.ErrorIs(t, src.Start(context.Background(), "fake://belt"), ErrSourceStarted)
}
