package data

import (
	"github.com/khaledhikmat/vs-belt/model"
	"github.com/khaledhikmat/vs-belt/service/config"
)

// ErrorRecord is the persisted form of a reported error.
type ErrorRecord struct {
	Timestamp  int64                  `json:"timestamp"`
	Processor  string                 `json:"processor"`
	Inner      string                 `json:"innerError"`
	Message    string                 `json:"message"`
	StackTrace string                 `json:"stackTrace"`
	Misc       map[string]interface{} `json:"misc"`
}

type IService interface {
	NewError(err interface{}) error
	NewSourceStats(stats model.SourceStats) error
	NewOrchestratorStats(stats model.OrchestratorStats) error
	NewPublisherStats(stats model.PublisherStats) error

	RetrieveErrors() ([]ErrorRecord, error)
	Close() error
}

func toErrorRecord(err interface{}, now int64) ErrorRecord {
	rec := ErrorRecord{
		Timestamp:  now,
		Processor:  "N/A",
		StackTrace: "N/A",
	}

	switch e := err.(type) {
	case model.CustomError:
		rec.Processor = e.Processor
		rec.Message = e.Message
		rec.StackTrace = e.StackTrace
		rec.Misc = e.Misc
		if e.Inner != nil {
			rec.Inner = e.Inner.Error()
		}
	case error:
		rec.Inner = e.Error()
		rec.Message = e.Error()
	default:
		rec.Message = "unknown error value"
		rec.Misc = map[string]interface{}{"value": e}
	}
	return rec
}

// New picks the backend named by the configuration.
func New(cfgSvc config.IService) (IService, error) {
	if cfgSvc.GetDataBackend() == config.DataBackendSQLite {
		return NewSQLite(cfgSvc.GetSQLitePath())
	}
	return NewFilesDB(cfgSvc.GetDataFolder())
}
