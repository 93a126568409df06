package profiling

import (
	"errors"
	"strings"
	"time"

	"github.com/grafana/pyroscope-go"
	"github.com/shc-library/kiosk-agent/config"
	"github.com/shc-library/kiosk-agent/pkg/logger"
	"go.uber.org/zap"
)

const defaultUploadInterval = time.Minute

// kioskProfileTypes is the fixed profile set uploaded from every kiosk
var kioskProfileTypes = []pyroscope.ProfileType{
	pyroscope.ProfileCPU,
	pyroscope.ProfileAllocSpace,
	pyroscope.ProfileGoroutines,
}

// InitProfiler starts continuous profiling when enabled and returns its stop function
func InitProfiler(cfg config.ProfilingConfig, o11y config.ObservabilityConfig, environment string) (func(), error) {
	if !cfg.Enabled {
		logger.Info("Continuous profiling disabled")
		return func() {}, nil
	}

	pcfg, err := profilerConfig(cfg, o11y, environment)
	if err != nil {
		return nil, err
	}

	profiler, err := pyroscope.Start(pcfg)
	if err != nil {
		return nil, err
	}

	logger.Info("Continuous profiling started",
		zap.String("application", pcfg.ApplicationName),
		zap.String("endpoint", pcfg.ServerAddress),
		zap.Duration("upload_rate", pcfg.UploadRate),
	)

	return func() {
		if stopErr := profiler.Stop(); stopErr != nil {
			logger.Error("Failed to stop profiler", zap.Error(stopErr))
		}
	}, nil
}

func profilerConfig(cfg config.ProfilingConfig, o11y config.ObservabilityConfig, environment string) (pyroscope.Config, error) {
	endpoint := strings.TrimSpace(cfg.Endpoint)
	if endpoint == "" {
		return pyroscope.Config{}, errors.New("profiling endpoint is required when profiling is enabled")
	}

	app := strings.TrimSpace(cfg.AppName)
	if app == "" {
		app = "kiosk-agent"
	}

	upload := time.Duration(cfg.UploadIntervalSeconds) * time.Second
	if upload <= 0 {
		upload = defaultUploadInterval
	}

	return pyroscope.Config{
		ApplicationName: app,
		ServerAddress:   endpoint,
		UploadRate:      upload,
		ProfileTypes:    kioskProfileTypes,
		Tags:            kioskTags(o11y, environment),
	}, nil
}

// kioskTags labels profiles so one kiosk can be picked out of the fleet
func kioskTags(o11y config.ObservabilityConfig, environment string) map[string]string {
	tags := map[string]string{
		"service_name":    o11y.ServiceName,
		"namespace":       o11y.ServiceNamespace,
		"environment":     environment,
		"service_version": o11y.ServiceVersion,
		"kiosk":           o11y.ServiceInstanceID,
	}
	for k, v := range tags {
		if v == "" {
			delete(tags, k)
		}
	}
	return tags
}
