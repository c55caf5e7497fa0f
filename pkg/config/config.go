// Package config loads and validates the pipeline's runtime
// configuration: gate thresholds, timeouts, feature flags, and every
// tunable parameter the coherence gate, NSW index, circuit breaker,
// retry policy, and chunker expose (spec.md §6).
package config

// Thresholds controls the score cutoffs the Gate Pipeline uses to turn
// a layer's score into a verdict.
type Thresholds struct {
	BlockScore float64 `json:"block_score" yaml:"block_score"`
	FlagScore  float64 `json:"flag_score" yaml:"flag_score"`
}

// Timeouts controls the pipeline's (observational) wall-clock budgets.
type Timeouts struct {
	FastPathMs int `json:"fast_path_ms" yaml:"fast_path_ms"`
	ConnectMs  int `json:"connect_ms" yaml:"connect_ms"`
}

// Features toggles optional pipeline behavior.
type Features struct {
	EnableLearning    bool `json:"enable_learning" yaml:"enable_learning"`
	EnableAudit       bool `json:"enable_audit" yaml:"enable_audit"`
	FailOpenDetection bool `json:"fail_open_detection" yaml:"fail_open_detection"`
}

// Coherence holds the coherence settings. K sets the neighbor count L2
// Analyze searches for; LambdaThresholdScale is accepted and validated
// but not read by pkg/coherence, whose gate uses its own fixed k and an
// unscaled threshold.
type Coherence struct {
	K                  int     `json:"k" yaml:"k"`
	LambdaThresholdScale float64 `json:"lambda_threshold_scale" yaml:"lambda_threshold_scale"`
}

// HNSW controls the NSW pattern index's frozen construction/search
// parameters.
type HNSW struct {
	M              int `json:"m" yaml:"m"`
	EfConstruction int `json:"ef_construction" yaml:"ef_construction"`
	EfSearch       int `json:"ef_search" yaml:"ef_search"`
	MaxElements    int `json:"max_elements" yaml:"max_elements"`
}

// Breaker controls the circuit breaker guarding fail-open layers.
type Breaker struct {
	FailureThreshold int `json:"failure_threshold" yaml:"failure_threshold"`
	ResetTimeoutMs   int `json:"reset_timeout_ms" yaml:"reset_timeout_ms"`
}

// Retry controls the exponential-backoff policy layered on top of the
// breaker.
type Retry struct {
	BaseDelayMs int     `json:"base_delay_ms" yaml:"base_delay_ms"`
	MaxDelayMs  int     `json:"max_delay_ms" yaml:"max_delay_ms"`
	Factor      float64 `json:"factor" yaml:"factor"`
	Jitter      float64 `json:"jitter" yaml:"jitter"`
	MaxRetries  int     `json:"max_retries" yaml:"max_retries"`
}

// Auditor controls the async auditor's consensus thresholds.
type Auditor struct {
	PartitionRatioThreshold float64 `json:"partition_ratio_threshold" yaml:"partition_ratio_threshold"`
	LambdaThresholdDefault  float64 `json:"lambda_threshold_default" yaml:"lambda_threshold_default"`
	StarCutThreshold        float64 `json:"star_cut_threshold" yaml:"star_cut_threshold"`
}

// Chunker controls the Semantic Chunker's recursion bound.
type Chunker struct {
	MaxDepth int `json:"max_depth" yaml:"max_depth"`
}

// Config is the full runtime configuration document.
type Config struct {
	Thresholds Thresholds `json:"thresholds" yaml:"thresholds"`
	Timeouts   Timeouts   `json:"timeouts" yaml:"timeouts"`
	Features   Features   `json:"features" yaml:"features"`
	Coherence  Coherence  `json:"coherence" yaml:"coherence"`
	HNSW       HNSW       `json:"hnsw" yaml:"hnsw"`
	Breaker    Breaker    `json:"breaker" yaml:"breaker"`
	Retry      Retry      `json:"retry" yaml:"retry"`
	Auditor    Auditor    `json:"auditor" yaml:"auditor"`
	Chunker    Chunker    `json:"chunker" yaml:"chunker"`
}

// Default returns the configuration spec.md §6 and its SPEC_FULL
// expansion name as defaults.
func Default() Config {
	return Config{
		Thresholds: Thresholds{BlockScore: 0.90, FlagScore: 0.70},
		Timeouts:   Timeouts{FastPathMs: 20, ConnectMs: 10_000},
		Features:   Features{EnableLearning: true, EnableAudit: true, FailOpenDetection: true},
		Coherence:  Coherence{K: 5, LambdaThresholdScale: 1.0},
		HNSW:       HNSW{M: 32, EfConstruction: 200, EfSearch: 100, MaxElements: 1_000_000},
		Breaker:    Breaker{FailureThreshold: 5, ResetTimeoutMs: 30_000},
		Retry:      Retry{BaseDelayMs: 200, MaxDelayMs: 2_000, Factor: 2.0, Jitter: 0.1, MaxRetries: 2},
		Auditor:    Auditor{PartitionRatioThreshold: 1.0, LambdaThresholdDefault: 2.0, StarCutThreshold: 0.40},
		Chunker:    Chunker{MaxDepth: 4},
	}
}

// applyDefaults fills any zero-valued field in cfg from defaults,
// field by field, so a config file only needs to mention the values it
// wants to override.
func applyDefaults(cfg *Config) {
	d := Default()

	if cfg.Thresholds.BlockScore == 0 {
		cfg.Thresholds.BlockScore = d.Thresholds.BlockScore
	}
	if cfg.Thresholds.FlagScore == 0 {
		cfg.Thresholds.FlagScore = d.Thresholds.FlagScore
	}
	if cfg.Timeouts.FastPathMs == 0 {
		cfg.Timeouts.FastPathMs = d.Timeouts.FastPathMs
	}
	if cfg.Timeouts.ConnectMs == 0 {
		cfg.Timeouts.ConnectMs = d.Timeouts.ConnectMs
	}
	if cfg.Coherence.K == 0 {
		cfg.Coherence.K = d.Coherence.K
	}
	if cfg.Coherence.LambdaThresholdScale == 0 {
		cfg.Coherence.LambdaThresholdScale = d.Coherence.LambdaThresholdScale
	}
	if cfg.HNSW.M == 0 {
		cfg.HNSW.M = d.HNSW.M
	}
	if cfg.HNSW.EfConstruction == 0 {
		cfg.HNSW.EfConstruction = d.HNSW.EfConstruction
	}
	if cfg.HNSW.EfSearch == 0 {
		cfg.HNSW.EfSearch = d.HNSW.EfSearch
	}
	if cfg.HNSW.MaxElements == 0 {
		cfg.HNSW.MaxElements = d.HNSW.MaxElements
	}
	if cfg.Breaker.FailureThreshold == 0 {
		cfg.Breaker.FailureThreshold = d.Breaker.FailureThreshold
	}
	if cfg.Breaker.ResetTimeoutMs == 0 {
		cfg.Breaker.ResetTimeoutMs = d.Breaker.ResetTimeoutMs
	}
	if cfg.Retry.BaseDelayMs == 0 {
		cfg.Retry.BaseDelayMs = d.Retry.BaseDelayMs
	}
	if cfg.Retry.MaxDelayMs == 0 {
		cfg.Retry.MaxDelayMs = d.Retry.MaxDelayMs
	}
	if cfg.Retry.Factor == 0 {
		cfg.Retry.Factor = d.Retry.Factor
	}
	if cfg.Retry.Jitter == 0 {
		cfg.Retry.Jitter = d.Retry.Jitter
	}
	if cfg.Retry.MaxRetries == 0 {
		cfg.Retry.MaxRetries = d.Retry.MaxRetries
	}
	if cfg.Auditor.PartitionRatioThreshold == 0 {
		cfg.Auditor.PartitionRatioThreshold = d.Auditor.PartitionRatioThreshold
	}
	if cfg.Auditor.LambdaThresholdDefault == 0 {
		cfg.Auditor.LambdaThresholdDefault = d.Auditor.LambdaThresholdDefault
	}
	if cfg.Auditor.StarCutThreshold == 0 {
		cfg.Auditor.StarCutThreshold = d.Auditor.StarCutThreshold
	}
	if cfg.Chunker.MaxDepth == 0 {
		cfg.Chunker.MaxDepth = d.Chunker.MaxDepth
	}
	// Features default to true and has no reliable zero-value signal
	// to distinguish "unset" from "explicitly disabled", so Features is
	// not defaulted here: Parse seeds it from Default() before decoding,
	// and a document only turns a feature off by naming it.
}
