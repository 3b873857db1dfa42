package config

import (
	"time"

	"github.com/khaledhikmat/vs-belt/model"
)

const (
	DataBackendFiles  = "files"
	DataBackendSQLite = "sqlite"
)

type IService interface {
	GetModeMaxShutdownTime() int
	GetCaptureAddress() string
	GetPrimaryInferenceURL() string
	GetSecondaryInferenceURL() string
	GetNotifyURL() string
	GetPrimaryModelPath() string
	GetSecondaryModelPath() string
	GetInferenceInterval() time.Duration
	GetSettleDelay() time.Duration
	GetReconnectDelay() time.Duration
	GetFrameWaitTimeout() time.Duration
	GetPublishTimeout() time.Duration
	GetClassifyTimeout() time.Duration
	GetStatsPeriod() time.Duration
	GetPrimaryRegion() model.Region
	GetSecondaryRegion() model.Region
	GetGateLabel() string
	GetGateThreshold() float64
	GetPublishPrimaryOnSecondaryFailure() bool
	GetPublisherWorkers() int
	GetPublisherQueueSize() int
	GetFramesFolder() string
	GetDataBackend() string
	GetDataFolder() string
	GetSQLitePath() string
	GetLiveAddress() string
	GetLogLevel() string
	GetLogFile() string
}
