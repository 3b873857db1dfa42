package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"golang.org/x/xerrors"

	"github.com/khaledhikmat/vs-belt/mode"
	"github.com/khaledhikmat/vs-belt/pipeline"
	"github.com/khaledhikmat/vs-belt/service/config"
	"github.com/khaledhikmat/vs-belt/service/data"
	"github.com/khaledhikmat/vs-belt/service/inference"
	"github.com/khaledhikmat/vs-belt/service/lgr"
	"github.com/khaledhikmat/vs-belt/service/live"
	"github.com/khaledhikmat/vs-belt/service/storage"
	"github.com/khaledhikmat/vs-belt/service/webhook"
)

const (
	// WARNING: this has to be bigger that the mode processor shutdown time
	waitOnShutdown = 8 * time.Second
)

var modeProcessors = map[string]mode.Processor{
	"orchestrator": mode.Orchestrator,
	"uploader":     mode.Uploader,
}

func main() {
	rootCtx := context.Background()
	canxCtx, canxFn := context.WithCancel(rootCtx)

	// Hook up a signal handler to cancel the context
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		sig := <-sigChan
		lgr.Logger.Info(
			"received kill signal",
			slog.Any("signal", sig),
		)
		canxFn()
	}()

	// Load env vars if we are in DEV mode
	if os.Getenv("RUN_TIME_ENV") == "dev" || os.Getenv("RUN_TIME_ENV") == "" {
		err := godotenv.Load()
		if err != nil {
			lgr.Logger.Warn("no .env file loaded, using the process environment", slog.String("reason", err.Error()))
		} else {
			lgr.Logger.Info("loaded env vars from .env file")
		}
	}

	cfgSvc, err := config.NewEnv()
	if err != nil {
		lgr.Logger.Error("invalid configuration", lgr.Err(err))
		os.Exit(1)
	}

	lgr.Init(cfgSvc.GetLogLevel(), cfgSvc.GetLogFile())

	modeType := "orchestrator"
	args := os.Args[1:]
	if len(args) > 0 {
		modeType = args[0]
	}

	modeProc, ok := modeProcessors[modeType]
	if !ok {
		lgr.Logger.Error("invalid mode", slog.String("mode", modeType))
		os.Exit(1)
	}

	// Create the services needed for the mode processor
	// Data service
	dataSvc, err := data.New(cfgSvc)
	if err != nil {
		lgr.Logger.Error("unable to open data service", lgr.Err(err))
		os.Exit(1)
	}
	defer dataSvc.Close()

	// storage service
	storageSvc, err := storage.NewDisk(cfgSvc.GetFramesFolder())
	if err != nil {
		lgr.Logger.Error("unable to prepare frames folder", lgr.Err(err))
		os.Exit(1)
	}

	svcs := pipeline.ServicesFactory{
		CfgSvc:       cfgSvc,
		DataSvc:      dataSvc,
		InferenceSvc: inference.NewHTTP(cfgSvc.GetClassifyTimeout()),
		StorageSvc:   storageSvc,
		WebhookSvc:   webhook.NewHTTP(cfgSvc.GetNotifyURL(), cfgSvc.GetPublishTimeout()),
		Opener:       pipeline.OpenGoCV,
	}
	if cfgSvc.GetLiveAddress() != "" {
		svcs.LiveHub = live.NewHub()
	}

	lgr.Logger.Info(
		"vs-belt starting....",
		slog.String("mode", modeType),
		slog.String("camera", cfgSvc.GetCaptureAddress()),
		slog.String("dataBackend", cfgSvc.GetDataBackend()),
	)

	// Create mode processor result
	modeProcResult := make(chan error, 1)

	// Start the mode processor
	go func() {
		modeProcResult <- modeProc(canxCtx, svcs)
	}()

	// Wait for cancellation or mode proc
	exitCode := 0
	select {
	case <-canxCtx.Done():
		lgr.Logger.Info(
			"vs-belt context cancelled",
		)

	case err := <-modeProcResult:
		if err != nil {
			exitCode = 1
			lgr.Logger.Error(
				"vs-belt mode processor exited",
				lgr.Err(xerrors.Errorf("%s: %w", modeType, err)),
			)
		}
		// Mode finished on its own (uploader) or failed
		canxFn()
		dataSvc.Close()
		os.Exit(exitCode)
	}

	lgr.Logger.Info(
		"vs-belt is waiting for all go routines to exit",
	)

	// The only way to exit the main function is to wait for the shutdown
	// duration or for the mode processor to return
	timer := time.NewTimer(waitOnShutdown)
	defer timer.Stop()

	select {
	case <-timer.C:
		lgr.Logger.Info(
			"vs-belt shutdown waiting period expired. Exiting now",
			slog.Duration("period", waitOnShutdown),
		)

	case err := <-modeProcResult:
		if err != nil {
			lgr.Logger.Error(
				"vs-belt mode processor exited",
				lgr.Err(err),
			)
		}
	}
}
