// Package telemetry wires optional OTLP export into a mirroring run: one
// span per table sync and a small set of transfer metrics. With telemetry
// disabled every instrument call lands on a no-op provider, so call sites
// never branch on whether export is on.
package telemetry

import (
	"errors"
	"fmt"
)

const (
	// DefaultServiceName identifies this binary to the collector.
	DefaultServiceName = "tablemirror"

	// DefaultEndpoint is the OTLP HTTP collector address used when the
	// config names none. Only host:port; the exporter appends the
	// /v1/traces and /v1/metrics paths.
	DefaultEndpoint = "localhost:4318"

	// DefaultSampling keeps one table-sync trace in twenty.
	DefaultSampling = 0.05
)

// Config is the telemetry section of the run configuration.
type Config struct {
	// Enabled turns telemetry on. When false nothing below is read.
	Enabled bool `yaml:"enabled"`

	// ServiceName overrides the name reported to the collector.
	ServiceName string `yaml:"serviceName,omitempty"`

	// ServiceVersion is filled in from the build info when left empty.
	ServiceVersion string `yaml:"serviceVersion,omitempty"`

	// Endpoint is the OTLP HTTP collector as host:port.
	Endpoint string `yaml:"endpoint,omitempty"`

	// Insecure sends telemetry over plain HTTP. Development only.
	Insecure bool `yaml:"insecure,omitempty"`

	Tracing *TracingConfig `yaml:"tracing,omitempty"`
	Metrics *MetricsConfig `yaml:"metrics,omitempty"`
}

// TracingConfig controls the table-sync span export.
type TracingConfig struct {
	Enabled bool `yaml:"enabled"`

	// Sampling is the trace sampling ratio in (0, 1]. Zero means unset and
	// falls back to DefaultSampling; runs sync many tables, so sampling
	// everything is rarely wanted outside debugging.
	Sampling float64 `yaml:"sampling,omitempty"`
}

// MetricsConfig controls the transfer metrics export.
type MetricsConfig struct {
	Enabled bool `yaml:"enabled"`
}

// GetServiceName returns the configured service name or the default.
func (c *Config) GetServiceName() string {
	if c.ServiceName == "" {
		return DefaultServiceName
	}
	return c.ServiceName
}

// GetEndpoint returns the configured collector endpoint or the default.
func (c *Config) GetEndpoint() string {
	if c.Endpoint == "" {
		return DefaultEndpoint
	}
	return c.Endpoint
}

// GetSampling returns the sampling ratio, with zero mapped to the default.
// An explicit zero cannot be distinguished from an unset YAML field.
func (c *TracingConfig) GetSampling() float64 {
	if c.Sampling == 0.0 {
		return DefaultSampling
	}
	return c.Sampling
}

// Validate checks the telemetry section. A nil or disabled section is valid.
func (c *Config) Validate() error {
	if c == nil || !c.Enabled {
		return nil
	}

	var errs []error
	if c.Tracing != nil {
		if err := c.Tracing.Validate(); err != nil {
			errs = append(errs, fmt.Errorf("tracing: %w", err))
		}
	}
	if c.Metrics != nil {
		if err := c.Metrics.Validate(); err != nil {
			errs = append(errs, fmt.Errorf("metrics: %w", err))
		}
	}
	return errors.Join(errs...)
}

// Validate checks the tracing subsection.
func (c *TracingConfig) Validate() error {
	if c == nil || !c.Enabled {
		return nil
	}
	if c.Sampling < 0 || c.Sampling > 1.0 {
		return fmt.Errorf("sampling must be between 0.0 and 1.0, got %f", c.Sampling)
	}
	return nil
}

// Validate checks the metrics subsection.
func (c *MetricsConfig) Validate() error {
	return nil
}
