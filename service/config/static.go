package config

import (
	"time"

	"github.com/khaledhikmat/vs-belt/model"
	"golang.org/x/xerrors"
)

// Settings holds every tunable of the pipeline. Durations are already
// converted from the seconds used in the environment.
type Settings struct {
	ModeMaxShutdownTime int

	CaptureAddress        string
	PrimaryInferenceURL   string
	SecondaryInferenceURL string
	NotifyURL             string
	PrimaryModelPath      string
	SecondaryModelPath    string

	InferenceInterval time.Duration
	SettleDelay       time.Duration
	ReconnectDelay    time.Duration
	FrameWaitTimeout  time.Duration
	PublishTimeout    time.Duration
	ClassifyTimeout   time.Duration
	StatsPeriod       time.Duration

	PrimaryRegion   model.Region
	SecondaryRegion model.Region

	GateLabel                        string
	GateThreshold                    float64
	PublishPrimaryOnSecondaryFailure bool

	PublisherWorkers   int
	PublisherQueueSize int

	FramesFolder string
	DataBackend  string
	DataFolder   string
	SQLitePath   string
	LiveAddress  string

	LogLevel string
	LogFile  string
}

// DefaultSettings mirrors the values the belt camera was commissioned with.
func DefaultSettings() Settings {
	return Settings{
		ModeMaxShutdownTime:   5,
		PrimaryInferenceURL:   "http://localhost:8888",
		SecondaryInferenceURL: "http://localhost:9999",
		NotifyURL:             "http://localhost:1880/cinta",

		InferenceInterval: 15 * time.Second,
		SettleDelay:       1 * time.Second,
		ReconnectDelay:    5 * time.Second,
		FrameWaitTimeout:  10 * time.Second,
		PublishTimeout:    3 * time.Second,
		ClassifyTimeout:   30 * time.Second,
		StatsPeriod:       60 * time.Second,

		PrimaryRegion:   model.Region{Name: "primary", X1: 675, Y1: 345, X2: 1160, Y2: 1080},
		SecondaryRegion: model.Region{Name: "secondary", X1: 745, Y1: 280, X2: 955, Y2: 480},

		GateLabel:                        "high",
		GateThreshold:                    98,
		PublishPrimaryOnSecondaryFailure: true,

		PublisherWorkers:   2,
		PublisherQueueSize: 16,

		FramesFolder: "./images",
		DataBackend:  DataBackendFiles,
		DataFolder:   "./data",
		SQLitePath:   "./data/vs-belt.db",

		LogLevel: "important",
	}
}

func (s Settings) Validate() error {
	if err := s.PrimaryRegion.Validate(); err != nil {
		return xerrors.Errorf("primary region: %w", err)
	}
	if err := s.SecondaryRegion.Validate(); err != nil {
		return xerrors.Errorf("secondary region: %w", err)
	}
	if s.PrimaryRegion.Name == s.SecondaryRegion.Name {
		return xerrors.Errorf("regions must have distinct names, both are %q", s.PrimaryRegion.Name)
	}
	if s.InferenceInterval <= 0 {
		return xerrors.Errorf("inference interval must be positive, got %s", s.InferenceInterval)
	}
	for _, d := range []struct {
		name  string
		value time.Duration
	}{
		{"reconnect delay", s.ReconnectDelay},
		{"frame wait timeout", s.FrameWaitTimeout},
		{"publish timeout", s.PublishTimeout},
		{"classify timeout", s.ClassifyTimeout},
	} {
		if d.value <= 0 {
			return xerrors.Errorf("%s must be positive, got %s", d.name, d.value)
		}
	}
	if s.GateThreshold < 0 || s.GateThreshold > 100 {
		return xerrors.Errorf("gate threshold must be within [0,100], got %v", s.GateThreshold)
	}
	if s.PublisherWorkers <= 0 || s.PublisherQueueSize <= 0 {
		return xerrors.Errorf("publisher needs at least one worker and one queue slot")
	}
	if s.DataBackend != DataBackendFiles && s.DataBackend != DataBackendSQLite {
		return xerrors.Errorf("unknown data backend %q", s.DataBackend)
	}
	return nil
}

type staticService struct {
	s Settings
}

// NewStatic serves fixed settings. Used by tests and by NewEnv once the
// environment has been read.
func NewStatic(s Settings) IService {
	return &staticService{s: s}
}

func (svc *staticService) GetModeMaxShutdownTime() int {
	return svc.s.ModeMaxShutdownTime
}

func (svc *staticService) GetCaptureAddress() string {
	return svc.s.CaptureAddress
}

func (svc *staticService) GetPrimaryInferenceURL() string {
	return svc.s.PrimaryInferenceURL
}

func (svc *staticService) GetSecondaryInferenceURL() string {
	return svc.s.SecondaryInferenceURL
}

func (svc *staticService) GetNotifyURL() string {
	return svc.s.NotifyURL
}

func (svc *staticService) GetPrimaryModelPath() string {
	return svc.s.PrimaryModelPath
}

func (svc *staticService) GetSecondaryModelPath() string {
	return svc.s.SecondaryModelPath
}

func (svc *staticService) GetInferenceInterval() time.Duration {
	return svc.s.InferenceInterval
}

func (svc *staticService) GetSettleDelay() time.Duration {
	return svc.s.SettleDelay
}

func (svc *staticService) GetReconnectDelay() time.Duration {
	return svc.s.ReconnectDelay
}

func (svc *staticService) GetFrameWaitTimeout() time.Duration {
	return svc.s.FrameWaitTimeout
}

func (svc *staticService) GetPublishTimeout() time.Duration {
	return svc.s.PublishTimeout
}

func (svc *staticService) GetClassifyTimeout() time.Duration {
	return svc.s.ClassifyTimeout
}

func (svc *staticService) GetStatsPeriod() time.Duration {
	return svc.s.StatsPeriod
}

func (svc *staticService) GetPrimaryRegion() model.Region {
	return svc.s.PrimaryRegion
}

func (svc *staticService) GetSecondaryRegion() model.Region {
	return svc.s.SecondaryRegion
}

func (svc *staticService) GetGateLabel() string {
	return svc.s.GateLabel
}

func (svc *staticService) GetGateThreshold() float64 {
	return svc.s.GateThreshold
}

func (svc *staticService) GetPublishPrimaryOnSecondaryFailure() bool {
	return svc.s.PublishPrimaryOnSecondaryFailure
}

func (svc *staticService) GetPublisherWorkers() int {
	return svc.s.PublisherWorkers
}

func (svc *staticService) GetPublisherQueueSize() int {
	return svc.s.PublisherQueueSize
}

func (svc *staticService) GetFramesFolder() string {
	return svc.s.FramesFolder
}

func (svc *staticService) GetDataBackend() string {
	return svc.s.DataBackend
}

func (svc *staticService) GetDataFolder() string {
	return svc.s.DataFolder
}

func (svc *staticService) GetSQLitePath() string {
	return svc.s.SQLitePath
}

func (svc *staticService) GetLiveAddress() string {
	return svc.s.LiveAddress
}

func (svc *staticService) GetLogLevel() string {
	return svc.s.LogLevel
}

func (svc *staticService) GetLogFile() string {
	return svc.s.LogFile
}
