package jobcore

import "time"

// ProcessorConfig controls the Processor's worker pool and polling cadence.
// An embedder typically fills this in from its own config loader (file, env,
// flags); this package does not parse configuration itself. The struct tags
// follow a json/yaml convention for embedders who want to feed this from a
// config file.
type ProcessorConfig struct {
	// MaxConcurrentJobs caps the worker pool. Default 10.
	MaxConcurrentJobs int `json:"maxConcurrentJobs" yaml:"maxConcurrentJobs"`

	// PollingInterval is the cadence of the scheduled-jobs loop. Default 5s.
	PollingInterval time.Duration `json:"pollingInterval" yaml:"pollingInterval"`

	// RecurringPollingInterval is the cadence of the recurring-jobs loop.
	// Default 1m.
	RecurringPollingInterval time.Duration `json:"recurringPollingInterval" yaml:"recurringPollingInterval"`

	// BatchSize caps each storage fetch. Default 100.
	BatchSize int `json:"batchSize" yaml:"batchSize"`

	// DefaultRetryDelay is used when a failed handler doesn't specify its own
	// RetryDelay. Default 30s.
	DefaultRetryDelay time.Duration `json:"defaultRetryDelay" yaml:"defaultRetryDelay"`

	// ShutdownTimeout bounds how long Stop waits for in-flight workers.
	// Default 30s.
	ShutdownTimeout time.Duration `json:"shutdownTimeout" yaml:"shutdownTimeout"`
}

// defaultProcessorConfig returns the engine's built-in defaults.
func defaultProcessorConfig() ProcessorConfig {
	return ProcessorConfig{
		MaxConcurrentJobs:        10,
		PollingInterval:          5 * time.Second,
		RecurringPollingInterval: time.Minute,
		BatchSize:                100,
		DefaultRetryDelay:        30 * time.Second,
		ShutdownTimeout:          30 * time.Second,
	}
}

// ProcessorOption configures a Processor at construction time.
type ProcessorOption func(*Processor)

// WithMaxConcurrentJobs overrides the worker-pool capacity.
func WithMaxConcurrentJobs(n int) ProcessorOption {
	return func(p *Processor) {
		if n > 0 {
			p.config.MaxConcurrentJobs = n
		}
	}
}

// WithPollingInterval overrides the scheduled-jobs loop cadence.
func WithPollingInterval(d time.Duration) ProcessorOption {
	return func(p *Processor) {
		if d > 0 {
			p.config.PollingInterval = d
		}
	}
}

// WithRecurringPollingInterval overrides the recurring-jobs loop cadence.
func WithRecurringPollingInterval(d time.Duration) ProcessorOption {
	return func(p *Processor) {
		if d > 0 {
			p.config.RecurringPollingInterval = d
		}
	}
}

// WithBatchSize overrides the per-tick storage fetch cap.
func WithBatchSize(n int) ProcessorOption {
	return func(p *Processor) {
		if n > 0 {
			p.config.BatchSize = n
		}
	}
}

// WithDefaultRetryDelay overrides the fallback retry delay.
func WithDefaultRetryDelay(d time.Duration) ProcessorOption {
	return func(p *Processor) {
		if d > 0 {
			p.config.DefaultRetryDelay = d
		}
	}
}

// WithShutdownTimeout overrides how long Stop waits for in-flight workers.
func WithShutdownTimeout(d time.Duration) ProcessorOption {
	return func(p *Processor) {
		if d > 0 {
			p.config.ShutdownTimeout = d
		}
	}
}

// WithLogger sets the Processor's logger.
func WithLogger(logger Logger) ProcessorOption {
	return func(p *Processor) {
		if logger != nil {
			p.logger = logger
		}
	}
}

// WithEventEmitter sets the Processor's event emitter.
func WithEventEmitter(emitter EventEmitter) ProcessorOption {
	return func(p *Processor) {
		p.emitter = emitter
	}
}
