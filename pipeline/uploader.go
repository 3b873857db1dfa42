package pipeline

import (
	"context"
	"errors"
	"log/slog"

	"github.com/khaledhikmat/vs-belt/model"
	"github.com/khaledhikmat/vs-belt/service/config"
	"github.com/khaledhikmat/vs-belt/service/inference"
	"github.com/khaledhikmat/vs-belt/service/lgr"
	"golang.org/x/xerrors"
)

// UploadModels pushes the configured model archives to their inference
// endpoints. Stages without an archive path are skipped. Every stage is
// attempted even if an earlier one fails.
func UploadModels(ctx context.Context, cfgSvc config.IService, inferenceSvc inference.IService, errorStream chan interface{}) error {
	stages := []struct {
		region   string
		endpoint string
		path     string
	}{
		{cfgSvc.GetPrimaryRegion().Name, cfgSvc.GetPrimaryInferenceURL(), cfgSvc.GetPrimaryModelPath()},
		{cfgSvc.GetSecondaryRegion().Name, cfgSvc.GetSecondaryInferenceURL(), cfgSvc.GetSecondaryModelPath()},
	}

	var errs []error
	for _, stage := range stages {
		if stage.path == "" {
			lgr.Logger.Debug("no model archive configured", slog.String("stage", stage.region))
			continue
		}

		if err := inferenceSvc.UploadModel(ctx, stage.endpoint, stage.path); err != nil {
			lgr.Logger.Error(
				"model upload failed",
				slog.String("stage", stage.region),
				slog.String("endpoint", stage.endpoint),
				slog.String("path", stage.path),
				lgr.Err(err),
			)
			report(errorStream, model.GenError("uploader",
				err,
				map[string]interface{}{"endpoint": stage.endpoint, "path": stage.path},
				"model upload failed for %s", stage.region))
			errs = append(errs, xerrors.Errorf("%s: %w", stage.region, err))
			continue
		}

		lgr.Logger.Info(
			"model uploaded successfully",
			slog.String("stage", stage.region),
			slog.String("endpoint", stage.endpoint),
		)
	}
	return errors.Join(errs...)
}
