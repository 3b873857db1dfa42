package pipeline

import (
	"context"
	"testing"
	"time"

	"github.com/khaledhikmat/vs-belt/model"
	"github.com/khaledhikmat/vs-belt/service/config"
	"github.com/khaledhikmat/vs-belt/service/webhook"
	"github.com/stretchr/testify/require"
)

func TestPublishNeverBlocks(t *testing.T) {
	settings := testSettings()
	settings.PublisherWorkers = 1
	settings.PublisherQueueSize = 1

	hook := webhook.NewFake(nil)
	hook.Block()
	p := NewPublisher(context.Background(), config.NewStatic(settings), hook, nil, nil, nil)

	start := time.Now()
	for i := 0; i < 10; i++ {
		p.Publish(model.PipelineOutcome{PrimaryLabel: "low", PrimaryConfidence: float64(i)})
	}
	require.Less(t, time.Since(start), 500*time.Millisecond)

	hook.Release()
	p.Close()

	stats := p.Stats()
	require.GreaterOrEqual(t, stats.Dropped, int64(8))
	require.Equal(t, int64(10), stats.Published+stats.Dropped)
	require.Len(t, hook.Payloads(), int(stats.Published))
}

func TestPublishFailureIsReported(t *testing.T) {
	errorStream := make(chan interface{}, 1)
	statsStream := make(chan interface{}, 1)
	hook := webhook.NewFake(webhook.ErrPublish)
	p := NewPublisher(context.Background(), config.NewStatic(testSettings()), hook, nil, errorStream, statsStream)

	p.Publish(model.PipelineOutcome{PrimaryLabel: "high", PrimaryConfidence: 98})
	p.Close()

	custom, ok := (<-errorStream).(model.CustomError)
	require.True(t, ok)
	require.Equal(t, "publisher", custom.Processor)
	require.ErrorIs(t, custom, webhook.ErrPublish)

	stats, ok := (<-statsStream).(model.PublisherStats)
	require.True(t, ok)
	require.Equal(t, int64(1), stats.Errors)
	require.Zero(t, stats.Published)
}

func TestPublishTimesOut(t *testing.T) {
	settings := testSettings()
	settings.PublishTimeout = 20 * time.Millisecond

	hook := webhook.NewFake(nil)
	hook.Block()
	defer hook.Release()
	p := NewPublisher(context.Background(), config.NewStatic(settings), hook, nil, nil, nil)

	p.Publish(model.PipelineOutcome{PrimaryLabel: "high"})
	p.Close()
	require.Equal(t, int64(1), p.Stats().Errors)
}

func TestPublishBroadcastsAndSurvivesClose(t *testing.T) {
	live := &recordingBroadcaster{}
	hook := webhook.NewFake(nil)
	p := NewPublisher(context.Background(), config.NewStatic(testSettings()), hook, live, nil, nil)

	p.Publish(model.PipelineOutcome{PrimaryLabel: "low", PrimaryConfidence: 12})
	p.Close()
	p.Close()

	require.Equal(t, 1, live.count())
	require.Len(t, hook.Payloads(), 1)

	p.Publish(model.PipelineOutcome{PrimaryLabel: "low"})
	require.Equal(t, int64(1), p.Stats().Dropped)
	require.Equal(t, 1, live.count())
}
