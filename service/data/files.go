package data

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/khaledhikmat/vs-belt/model"
	"golang.org/x/xerrors"
)

const (
	errorsEntity            = "errors"
	sourceStatsEntity       = "source-stats"
	orchestratorStatsEntity = "orchestrator-stats"
	publisherStatsEntity    = "publisher-stats"

	// Each file keeps only its newest records. Unbounded history belongs
	// in the sqlite backend.
	defaultMaxEntities = 1000
)

// filesDBService keeps every entity kind as a JSON array in its own file.
type filesDBService struct {
	folder      string
	maxEntities int
	mu          sync.Mutex
}

func NewFilesDB(folder string) (IService, error) {
	if err := os.MkdirAll(folder, 0755); err != nil {
		return nil, xerrors.Errorf("create data folder: %w", err)
	}
	return &filesDBService{folder: folder, maxEntities: defaultMaxEntities}, nil
}

func (svc *filesDBService) NewError(err interface{}) error {
	return newEntity(svc, toErrorRecord(err, time.Now().Unix()), errorsEntity)
}

func (svc *filesDBService) NewSourceStats(stats model.SourceStats) error {
	stats.Timestamp = time.Now().Unix()
	return newEntity(svc, stats, sourceStatsEntity)
}

func (svc *filesDBService) NewOrchestratorStats(stats model.OrchestratorStats) error {
	stats.Timestamp = time.Now().Unix()
	return newEntity(svc, stats, orchestratorStatsEntity)
}

func (svc *filesDBService) NewPublisherStats(stats model.PublisherStats) error {
	stats.Timestamp = time.Now().Unix()
	return newEntity(svc, stats, publisherStatsEntity)
}

func (svc *filesDBService) RetrieveErrors() ([]ErrorRecord, error) {
	svc.mu.Lock()
	defer svc.mu.Unlock()
	return retrieveEntities[ErrorRecord](svc.path(errorsEntity))
}

func (svc *filesDBService) Close() error {
	return nil
}

func (svc *filesDBService) path(entity string) string {
	return filepath.Join(svc.folder, fmt.Sprintf("%s.json", entity))
}

func newEntity[T any](svc *filesDBService, entity T, name string) error {
	svc.mu.Lock()
	defer svc.mu.Unlock()

	path := svc.path(name)
	entities, err := retrieveEntities[T](path)
	if err != nil {
		return err
	}

	entities = append(entities, entity)
	if svc.maxEntities > 0 && len(entities) > svc.maxEntities {
		entities = entities[len(entities)-svc.maxEntities:]
	}

	data, err := json.MarshalIndent(entities, "", "  ")
	if err != nil {
		return xerrors.Errorf("marshal %s: %w", name, err)
	}

	// Write the JSON data to the file (with truncation)
	if err := os.WriteFile(path, data, 0644); err != nil {
		return xerrors.Errorf("write %s: %w", name, err)
	}
	return nil
}

func retrieveEntities[T any](path string) ([]T, error) {
	entities := []T{}

	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return entities, nil
	}
	if err != nil {
		return nil, xerrors.Errorf("read %s: %w", path, err)
	}

	if err := json.Unmarshal(data, &entities); err != nil {
		return nil, xerrors.Errorf("unmarshal %s: %w", path, err)
	}
	return entities, nil
}
