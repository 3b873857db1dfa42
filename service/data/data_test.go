package data

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/khaledhikmat/vs-belt/model"
	"github.com/khaledhikmat/vs-belt/service/config"
	"github.com/stretchr/testify/require"
)

func backends(t *testing.T) map[string]IService {
	t.Helper()

	files, err := NewFilesDB(filepath.Join(t.TempDir(), "data"))
	require.NoError(t, err)

	db, err := NewSQLite(filepath.Join(t.TempDir(), "db", "vs-belt.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	return map[string]IService{"files": files, "sqlite": db}
}

func TestNewErrorRoundTrip(t *testing.T) {
	for name, svc := range backends(t) {
		t.Run(name, func(t *testing.T) {
			custom := model.GenError("orchestrator", errors.New("status 503"), map[string]interface{}{"stage": "primary"}, "classification failed for %s", "primary")
			require.NoError(t, svc.NewError(custom))
			require.NoError(t, svc.NewError(errors.New("plain")))
			require.NoError(t, svc.NewError("not an error"))

			records, err := svc.RetrieveErrors()
			require.NoError(t, err)
			require.Len(t, records, 3)

			require.Equal(t, "orchestrator", records[0].Processor)
			require.Equal(t, "status 503", records[0].Inner)
			require.Equal(t, "classification failed for primary", records[0].Message)
			require.Equal(t, "primary", records[0].Misc["stage"])
			require.NotEmpty(t, records[0].StackTrace)

			require.Equal(t, "N/A", records[1].Processor)
			require.Equal(t, "plain", records[1].Message)

			require.Equal(t, "unknown error value", records[2].Message)
		})
	}
}

func TestStatsAreAppended(t *testing.T) {
	for name, svc := range backends(t) {
		t.Run(name, func(t *testing.T) {
			require.NoError(t, svc.NewSourceStats(model.SourceStats{Frames: 10}))
			require.NoError(t, svc.NewOrchestratorStats(model.OrchestratorStats{Ticks: 2}))
			require.NoError(t, svc.NewPublisherStats(model.PublisherStats{Published: 1}))
			require.NoError(t, svc.NewPublisherStats(model.PublisherStats{Published: 2}))
		})
	}
}

func TestFilesDBKeepsJSONArrays(t *testing.T) {
	dir := t.TempDir()
	svc, err := NewFilesDB(dir)
	require.NoError(t, err)

	require.NoError(t, svc.NewPublisherStats(model.PublisherStats{Published: 1}))
	require.NoError(t, svc.NewPublisherStats(model.PublisherStats{Published: 2}))

	stats, err := retrieveEntities[model.PublisherStats](filepath.Join(dir, "publisher-stats.json"))
	require.NoError(t, err)
	require.Len(t, stats, 2)
	require.Equal(t, int64(2), stats[1].Published)
	require.NotZero(t, stats[1].Timestamp)
}

func TestFilesDBKeepsNewestRecords(t *testing.T) {
	svc, err := NewFilesDB(filepath.Join(t.TempDir(), "data"))
	require.NoError(t, err)
	svc.(*filesDBService).maxEntities = 3

	for _, msg := range []string{"one", "two", "three", "four", "five"} {
		require.NoError(t, svc.NewError(errors.New(msg)))
	}

	records, err := svc.RetrieveErrors()
	require.NoError(t, err)
	require.Len(t, records, 3)
	require.Equal(t, "three", records[0].Message)
	require.Equal(t, "five", records[2].Message)
}

func TestNewPicksBackend(t *testing.T) {
	settings := config.DefaultSettings()
	settings.DataFolder = filepath.Join(t.TempDir(), "files")
	settings.SQLitePath = filepath.Join(t.TempDir(), "belt.db")

	svc, err := New(config.NewStatic(settings))
	require.NoError(t, err)
	_, ok := svc.(*filesDBService)
	require.True(t, ok)

	settings.DataBackend = config.DataBackendSQLite
	svc, err = New(config.NewStatic(settings))
	require.NoError(t, err)
	defer svc.Close()
	_, ok = svc.(*sqliteService)
	require.True(t, ok)

	_, err = os.Stat(settings.SQLitePath)
	require.NoError(t, err)
}
