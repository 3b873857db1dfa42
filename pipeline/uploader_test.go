package pipeline

import (
	"context"
	"testing"

	"github.com/khaledhikmat/vs-belt/model"
	"github.com/khaledhikmat/vs-belt/service/config"
	"github.com/khaledhikmat/vs-belt/service/inference"
	"github.com/stretchr/testify/require"
)

func TestUploadModelsSkipsUnconfiguredStages(t *testing.T) {
	settings := testSettings()
	settings.SecondaryModelPath = "model/ag.zip"

	inf := inference.NewFake(nil)
	require.NoError(t, UploadModels(context.Background(), config.NewStatic(settings), inf, nil))
	require.Equal(t, []string{"http://secondary"}, inf.Uploads())
}

func TestUploadModelsAttemptsEveryStage(t *testing.T) {
	settings := testSettings()
	settings.PrimaryModelPath = "model/cinta.zip"
	settings.SecondaryModelPath = "model/ag.zip"

	inf := inference.NewFake(nil)
	inf.FailUploads(inference.ErrModelUpload)
	errorStream := make(chan interface{}, 2)

	err := UploadModels(context.Background(), config.NewStatic(settings), inf, errorStream)
	require.ErrorIs(t, err, inference.ErrModelUpload)
	require.Equal(t, []string{"http://primary", "http://secondary"}, inf.Uploads())
	require.Len(t, errorStream, 2)

	custom, ok := (<-errorStream).(model.CustomError)
	require.True(t, ok)
	require.Equal(t, "uploader", custom.Processor)
}
