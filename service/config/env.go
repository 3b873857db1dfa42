package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/khaledhikmat/vs-belt/model"
	"golang.org/x/xerrors"
)

// NewEnv reads the settings from the environment, falling back to
// DefaultSettings for anything unset. Malformed values are configuration
// faults and are returned as errors rather than silently defaulted.
func NewEnv() (IService, error) {
	s := DefaultSettings()
	var err error

	s.ModeMaxShutdownTime, err = getEnvAsInt("MODE_MAX_SHUTDOWN_TIME", s.ModeMaxShutdownTime)
	if err != nil {
		return nil, err
	}

	s.CaptureAddress = getEnv("CAMERA_URL", s.CaptureAddress)
	s.PrimaryInferenceURL = strings.TrimRight(getEnv("PRIMARY_INFERENCE_URL", s.PrimaryInferenceURL), "/")
	s.SecondaryInferenceURL = strings.TrimRight(getEnv("SECONDARY_INFERENCE_URL", s.SecondaryInferenceURL), "/")
	s.NotifyURL = getEnv("NOTIFY_URL", s.NotifyURL)
	s.PrimaryModelPath = getEnv("PRIMARY_MODEL_PATH", s.PrimaryModelPath)
	s.SecondaryModelPath = getEnv("SECONDARY_MODEL_PATH", s.SecondaryModelPath)

	durations := []struct {
		key string
		dst *time.Duration
	}{
		{"INFERENCE_INTERVAL", &s.InferenceInterval},
		{"SETTLE_DELAY", &s.SettleDelay},
		{"RECONNECT_DELAY", &s.ReconnectDelay},
		{"FRAME_WAIT_TIMEOUT", &s.FrameWaitTimeout},
		{"PUBLISH_TIMEOUT", &s.PublishTimeout},
		{"CLASSIFY_TIMEOUT", &s.ClassifyTimeout},
		{"STATS_PERIOD", &s.StatsPeriod},
	}
	for _, d := range durations {
		*d.dst, err = getEnvAsSeconds(d.key, *d.dst)
		if err != nil {
			return nil, err
		}
	}

	s.PrimaryRegion, err = getEnvAsRegion("PRIMARY_REGION", s.PrimaryRegion)
	if err != nil {
		return nil, err
	}
	s.SecondaryRegion, err = getEnvAsRegion("SECONDARY_REGION", s.SecondaryRegion)
	if err != nil {
		return nil, err
	}

	s.GateLabel = getEnv("GATE_LABEL", s.GateLabel)
	s.GateThreshold, err = getEnvAsFloat("GATE_THRESHOLD", s.GateThreshold)
	if err != nil {
		return nil, err
	}
	s.PublishPrimaryOnSecondaryFailure, err = getEnvAsBool("PUBLISH_PRIMARY_ON_SECONDARY_FAILURE", s.PublishPrimaryOnSecondaryFailure)
	if err != nil {
		return nil, err
	}

	s.PublisherWorkers, err = getEnvAsInt("PUBLISHER_WORKERS", s.PublisherWorkers)
	if err != nil {
		return nil, err
	}
	s.PublisherQueueSize, err = getEnvAsInt("PUBLISHER_QUEUE", s.PublisherQueueSize)
	if err != nil {
		return nil, err
	}

	s.FramesFolder = getEnv("FRAMES_FOLDER", s.FramesFolder)
	s.DataBackend = strings.ToLower(getEnv("DATA_BACKEND", s.DataBackend))
	s.DataFolder = getEnv("DATA_FOLDER", s.DataFolder)
	s.SQLitePath = getEnv("SQLITE_PATH", s.SQLitePath)
	s.LiveAddress = getEnv("LIVE_ADDRESS", s.LiveAddress)
	s.LogLevel = getEnv("LOG_LEVEL", s.LogLevel)
	s.LogFile = getEnv("LOG_FILE", s.LogFile)

	if err := s.Validate(); err != nil {
		return nil, err
	}

	return NewStatic(s), nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) (int, error) {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue, nil
	}
	i, err := strconv.Atoi(value)
	if err != nil {
		return 0, xerrors.Errorf("%s: %w", key, err)
	}
	return i, nil
}

func getEnvAsFloat(key string, defaultValue float64) (float64, error) {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue, nil
	}
	f, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return 0, xerrors.Errorf("%s: %w", key, err)
	}
	return f, nil
}

func getEnvAsBool(key string, defaultValue bool) (bool, error) {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue, nil
	}
	b, err := strconv.ParseBool(value)
	if err != nil {
		return false, xerrors.Errorf("%s: %w", key, err)
	}
	return b, nil
}

// getEnvAsSeconds accepts whole or fractional seconds ("15", "0.5").
func getEnvAsSeconds(key string, defaultValue time.Duration) (time.Duration, error) {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue, nil
	}
	f, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return 0, xerrors.Errorf("%s: %w", key, err)
	}
	if f < 0 {
		return 0, xerrors.Errorf("%s: negative duration %v", key, f)
	}
	return time.Duration(f * float64(time.Second)), nil
}

func getEnvAsRegion(key string, defaultValue model.Region) (model.Region, error) {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue, nil
	}
	r, err := ParseRegion(value, defaultValue.Name)
	if err != nil {
		return model.Region{}, xerrors.Errorf("%s: %w", key, err)
	}
	return r, nil
}

// ParseRegion parses "name:x1,y1,x2,y2" or "x1,y1,x2,y2". The name falls
// back to defaultName when omitted.
func ParseRegion(value string, defaultName string) (model.Region, error) {
	name := defaultName
	coords := value
	if i := strings.Index(value, ":"); i >= 0 {
		name = strings.TrimSpace(value[:i])
		coords = value[i+1:]
	}

	parts := strings.Split(coords, ",")
	if len(parts) != 4 {
		return model.Region{}, xerrors.Errorf("expected 4 coordinates in %q: %w", value, model.ErrInvalidRegion)
	}

	nums := make([]int, 4)
	for i, p := range parts {
		n, err := strconv.Atoi(strings.TrimSpace(p))
		if err != nil {
			return model.Region{}, xerrors.Errorf("coordinate %q: %v: %w", p, err, model.ErrInvalidRegion)
		}
		nums[i] = n
	}

	r := model.Region{Name: name, X1: nums[0], Y1: nums[1], X2: nums[2], Y2: nums[3]}
	if err := r.Validate(); err != nil {
		return model.Region{}, err
	}
	return r, nil
}
