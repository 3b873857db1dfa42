package mode

import (
	"context"
	"log/slog"

	"github.com/khaledhikmat/vs-belt/model"
	"github.com/khaledhikmat/vs-belt/pipeline"
	"github.com/khaledhikmat/vs-belt/service/data"
	"github.com/khaledhikmat/vs-belt/service/lgr"
)

type Processor func(canxCtx context.Context, svcs pipeline.ServicesFactory) error

func procStats(datasvc data.IService, stats interface{}) {
	switch stats := stats.(type) {
	case model.SourceStats:
		procSourceStats(datasvc, stats)
	case model.OrchestratorStats:
		procOrchestratorStats(datasvc, stats)
	case model.PublisherStats:
		procPublisherStats(datasvc, stats)
	default:
		lgr.Logger.Error(
			"unknown stats type",
			slog.Any("stats", stats),
		)
	}
}

func procSourceStats(datasvc data.IService, stats model.SourceStats) {
	err := datasvc.NewSourceStats(stats)
	if err != nil {
		lgr.Logger.Error(
			"failed to store frame source stats",
			slog.Any("stats", stats),
			lgr.Err(err),
		)
	}
}

func procOrchestratorStats(datasvc data.IService, stats model.OrchestratorStats) {
	err := datasvc.NewOrchestratorStats(stats)
	if err != nil {
		lgr.Logger.Error(
			"failed to store orchestrator stats",
			slog.Any("stats", stats),
			lgr.Err(err),
		)
	}
}

func procPublisherStats(datasvc data.IService, stats model.PublisherStats) {
	err := datasvc.NewPublisherStats(stats)
	if err != nil {
		lgr.Logger.Error(
			"failed to store publisher stats",
			slog.Any("stats", stats),
			lgr.Err(err),
		)
	}
}

func procError(datasvc data.IService, err interface{}) {
	errTemp := datasvc.NewError(err)
	if errTemp != nil {
		lgr.Logger.Error(
			"failed to store error",
			lgr.Err(errTemp),
		)
	}
}

// drain stores whatever is still queued on the streams without waiting.
func drain(datasvc data.IService, statsStream chan interface{}, errorStream chan interface{}) {
	for {
		select {
		case s := <-statsStream:
			procStats(datasvc, s)
		case e := <-errorStream:
			procError(datasvc, e)
		default:
			return
		}
	}
}
