package mode

import (
	"context"
	"log/slog"
	"time"

	"github.com/khaledhikmat/vs-belt/model"
	"github.com/khaledhikmat/vs-belt/pipeline"
	"github.com/khaledhikmat/vs-belt/service/lgr"
	"golang.org/x/xerrors"
)

const streamSize = 64

// Orchestrator runs the belt pipeline until the context is cancelled:
// model upload, frame source, publisher pool, the optional live hub and
// the tick loop. Stats and errors from all of them are stored through the
// data service.
func Orchestrator(canxCtx context.Context, svcs pipeline.ServicesFactory) error {
	cfgSvc := svcs.CfgSvc
	address := cfgSvc.GetCaptureAddress()
	if address == "" {
		return xerrors.New("a capture address (CAMERA_URL) is required in orchestrator mode")
	}

	// Streams are never closed: producers may still be winding down
	// after this function returns.
	errorStream := make(chan interface{}, streamSize)
	statsStream := make(chan interface{}, streamSize)

	// Upload failures are logged and reported; the endpoints may already
	// hold a model.
	_ = pipeline.UploadModels(canxCtx, cfgSvc, svcs.InferenceSvc, errorStream)

	var broadcaster pipeline.Broadcaster
	if svcs.LiveHub != nil && cfgSvc.GetLiveAddress() != "" {
		go svcs.LiveHub.Run(canxCtx)
		go func() {
			if err := svcs.LiveHub.ListenAndServe(canxCtx, cfgSvc.GetLiveAddress()); err != nil {
				lgr.Logger.Error("live hub stopped", lgr.Err(err))
				procError(svcs.DataSvc, model.GenError("live_hub",
					err,
					map[string]interface{}{"address": cfgSvc.GetLiveAddress()},
					"live hub server failed"))
			}
		}()
		broadcaster = svcs.LiveHub
	}

	source := pipeline.NewFrameSource(cfgSvc, svcs.Opener, errorStream, statsStream)
	if err := source.Start(canxCtx, address); err != nil {
		return err
	}

	publisher := pipeline.NewPublisher(canxCtx, cfgSvc, svcs.WebhookSvc, broadcaster, errorStream, statsStream)
	orchestrator := pipeline.NewOrchestrator(cfgSvc, source, svcs.InferenceSvc, svcs.StorageSvc, publisher, errorStream, statsStream)

	pipelineResult := make(chan error, 1)
	go func() {
		err := orchestrator.Run(canxCtx)
		publisher.Close()
		source.Stop()
		pipelineResult <- err
	}()

	var pipelineErr error
	pipelineDone := false

	// Wait for cancellation, pipeline exit, stats or errors
	for {
		select {
		case <-canxCtx.Done():
			lgr.Logger.Info(
				"orchestrator mode context cancelled",
			)
			goto resume

		case pipelineErr = <-pipelineResult:
			pipelineDone = true
			lgr.Logger.Error(
				"pipeline exited before cancellation",
				lgr.Err(pipelineErr),
			)
			goto resume

		case s := <-statsStream:
			procStats(svcs.DataSvc, s)

		case e := <-errorStream:
			procError(svcs.DataSvc, e)
		}
	}

	// Wait in a bounded way for the pipeline goroutines to exit. They
	// report their final stats while exiting.
resume:
	lgr.Logger.Info(
		"orchestrator mode is waiting for all go routines to exit",
	)

	timer := time.NewTimer(time.Duration(cfgSvc.GetModeMaxShutdownTime()) * time.Second)
	defer timer.Stop()

	for !pipelineDone {
		select {
		case <-timer.C:
			lgr.Logger.Info(
				"orchestrator mode shutdown waiting period expired. Exiting now",
				slog.Duration("period", time.Duration(cfgSvc.GetModeMaxShutdownTime())*time.Second),
			)
			drain(svcs.DataSvc, statsStream, errorStream)
			return nil

		case pipelineErr = <-pipelineResult:
			pipelineDone = true

		case s := <-statsStream:
			procStats(svcs.DataSvc, s)

		case e := <-errorStream:
			procError(svcs.DataSvc, e)
		}
	}

	drain(svcs.DataSvc, statsStream, errorStream)
	return pipelineErr
}
