package metrics

import (
	"time"

	"github.com/DataDog/datadog-go/v5/statsd"
	"github.com/rs/zerolog/log"
)

var (
	// It is safe to use one Client from multiple goroutines simultaneously
	client statsd.ClientInterface = &statsd.NoOpClient{}

	samplingRate = 1.0
)

// Init points the package at a StatsD agent. When disabled, or when the
// client cannot be created, metrics go to a no-op client.
func Init(enabled bool, address, appName, env string, rate float64) {
	if !enabled {
		log.Info().Msg("metrics disabled")
		return
	}
	c, err := statsd.New(address,
		statsd.WithNamespace("fusion_api."),
		statsd.WithTags([]string{"service:" + appName, "env:" + env}),
	)
	if err != nil {
		log.Error().Err(err).Str("address", address).Msg("StatsD client initialization failed, metrics will be unavailable")
		return
	}
	client = c
	samplingRate = rate
	log.Info().Str("address", address).Float64("sampling_rate", rate).Msg("metrics client initialized")
}

func Close() {
	if err := client.Close(); err != nil {
		log.Warn().Err(err).Msg("error closing statsd client")
	}
}

func Timing(name string, value time.Duration, tags []string) {
	if err := client.Timing(name, value, tags, samplingRate); err != nil {
		log.Warn().Err(err).Str("metric", name).Msg("statsd timing failed")
	}
}

func Count(name string, value int64, tags []string) {
	if err := client.Count(name, value, tags, samplingRate); err != nil {
		log.Warn().Err(err).Str("metric", name).Msg("statsd count failed")
	}
}

func Gauge(name string, value float64, tags []string) {
	if err := client.Gauge(name, value, tags, samplingRate); err != nil {
		log.Warn().Err(err).Str("metric", name).Msg("statsd gauge failed")
	}
}
