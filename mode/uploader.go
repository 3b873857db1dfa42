package mode

import (
	"context"

	"github.com/khaledhikmat/vs-belt/pipeline"
	"github.com/khaledhikmat/vs-belt/service/lgr"
	"golang.org/x/xerrors"
)

// Uploader pushes the configured model archives once and exits.
func Uploader(canxCtx context.Context, svcs pipeline.ServicesFactory) error {
	if svcs.CfgSvc.GetPrimaryModelPath() == "" && svcs.CfgSvc.GetSecondaryModelPath() == "" {
		return xerrors.New("no model archive configured (PRIMARY_MODEL_PATH, SECONDARY_MODEL_PATH)")
	}

	errorStream := make(chan interface{}, 2)
	err := pipeline.UploadModels(canxCtx, svcs.CfgSvc, svcs.InferenceSvc, errorStream)
	drain(svcs.DataSvc, nil, errorStream)
	if err != nil {
		return xerrors.Errorf("model upload: %w", err)
	}

	lgr.Logger.Info("model archives uploaded")
	return nil
}
