package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Rektflow  RektflowConfig  `yaml:"rektflow"`
	Logging   LoggingConfig   `yaml:"logging"`
	Channels  ChannelsConfig  `yaml:"channels"`
	Processor ProcessorConfig `yaml:"processor"`
	Chart     ChartConfig     `yaml:"chart"`
	Source    SourceConfig    `yaml:"source"`
	Storage   StorageConfig   `yaml:"storage"`
	Dashboard DashboardConfig `yaml:"dashboard"`
	Metrics   MetricsConfig   `yaml:"metrics"`
}

type RektflowConfig struct {
	Name    string `yaml:"name"`
	Version string `yaml:"version"`
}

type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Output string `yaml:"output"`
	MaxAge int    `yaml:"max_age"`
}

type ChannelsConfig struct {
	RawBuffer       int `yaml:"raw_buffer"`
	ProcessedBuffer int `yaml:"processed_buffer"`
}

type ProcessorConfig struct {
	MaxWorkers   int           `yaml:"max_workers"`
	BatchSize    int           `yaml:"batch_size"`
	BatchTimeout time.Duration `yaml:"batch_timeout"`
}

// ChartConfig carries the marker and indicator settings that the
// recompute pipeline consumes. Defaults mirror the dashboard UI.
type ChartConfig struct {
	Interval        string      `yaml:"interval"`
	HistoryLimit    int         `yaml:"history_limit"`
	PercentileRange []float64   `yaml:"percentile_range"`
	TopMarkersCount int         `yaml:"top_markers_count"`
	SmoothingPeriod int         `yaml:"smoothing_period"`
	Trend           TrendConfig `yaml:"trend"`
	Pivot           PivotConfig `yaml:"pivot"`
}

type TrendConfig struct {
	Above TrendSideConfig `yaml:"above"`
	Below TrendSideConfig `yaml:"below"`
}

// TrendSideConfig configures trend highlighting for one marker side.
// When HideFaded is set, non-trend markers are rendered transparent
// instead of using FadeColor.
type TrendSideConfig struct {
	Enabled    bool   `yaml:"enabled"`
	Lookback   int    `yaml:"lookback"`
	TrendColor string `yaml:"trend_color"`
	FadeColor  string `yaml:"fade_color"`
	HideFaded  bool   `yaml:"hide_faded"`
}

type PivotConfig struct {
	High PivotWindowConfig `yaml:"high"`
	Low  PivotWindowConfig `yaml:"low"`
}

type PivotWindowConfig struct {
	LeftLen  int `yaml:"left_len"`
	RightLen int `yaml:"right_len"`
}

type SourceConfig struct {
	Binance BinanceSourceConfig `yaml:"binance"`
	Rest    RestConfig          `yaml:"rest"`
}

type BinanceSourceConfig struct {
	Future BinanceFutureConfig `yaml:"future"`
}

type BinanceFutureConfig struct {
	Kline         StreamConfig `yaml:"kline"`
	Liquidation   StreamConfig `yaml:"liquidation"`
	OpenInterest  StreamConfig `yaml:"open_interest"`
	PositionRatio StreamConfig `yaml:"position_ratio"`
}

type StreamConfig struct {
	Enabled    bool     `yaml:"enabled"`
	Symbols    []string `yaml:"symbols"`
	IntervalMS int      `yaml:"interval_ms,omitempty"`
	Period     string   `yaml:"period,omitempty"`
}

type RestConfig struct {
	RequestsPerSecond int `yaml:"requests_per_second"`
	BurstSize         int `yaml:"burst_size"`
}

type StorageConfig struct {
	S3 S3Config `yaml:"s3"`
}

type S3Config struct {
	Enabled         bool          `yaml:"enabled"`
	Bucket          string        `yaml:"bucket"`
	Region          string        `yaml:"region"`
	Endpoint        string        `yaml:"endpoint"`
	PathStyle       bool          `yaml:"path_style"`
	AccessKeyID     string        `yaml:"access_key_id"`
	SecretAccessKey string        `yaml:"secret_access_key"`
	FlushInterval   time.Duration `yaml:"flush_interval"`
	MaxBufferSize   int           `yaml:"max_buffer_size"`
}

type DashboardConfig struct {
	Enabled      bool          `yaml:"enabled"`
	Address      string        `yaml:"address"`
	PushInterval time.Duration `yaml:"push_interval"`
}

type MetricsConfig struct {
	Prometheus PrometheusConfig `yaml:"prometheus"`
	CloudWatch CloudWatchConfig `yaml:"cloudwatch"`
}

type PrometheusConfig struct {
	Enabled bool   `yaml:"enabled"`
	Address string `yaml:"address"`
}

type CloudWatchConfig struct {
	Enabled   bool   `yaml:"enabled"`
	Region    string `yaml:"region"`
	Namespace string `yaml:"namespace"`
	Dashboard string `yaml:"dashboard"`
}

// LoadConfig reads a YAML configuration file from the specified path,
// applies defaults and validates the result.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("cannot read config file: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("cannot parse YAML: %w", err)
	}

	cfg.applyDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &cfg, nil
}

func (c *Config) applyDefaults() {
	if c.Rektflow.Name == "" {
		c.Rektflow.Name = "rektflow"
	}
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if c.Logging.Format == "" {
		c.Logging.Format = "json"
	}
	if c.Channels.RawBuffer <= 0 {
		c.Channels.RawBuffer = 1000
	}
	if c.Channels.ProcessedBuffer <= 0 {
		c.Channels.ProcessedBuffer = 500
	}
	if c.Processor.MaxWorkers <= 0 {
		c.Processor.MaxWorkers = 1
	}
	if c.Processor.BatchSize <= 0 {
		c.Processor.BatchSize = 200
	}
	if c.Processor.BatchTimeout <= 0 {
		c.Processor.BatchTimeout = 5 * time.Second
	}
	if c.Chart.Interval == "" {
		c.Chart.Interval = "5m"
	}
	if c.Chart.HistoryLimit <= 0 {
		c.Chart.HistoryLimit = 500
	}
	if len(c.Chart.PercentileRange) == 0 {
		c.Chart.PercentileRange = []float64{0, 100}
	}
	if c.Chart.SmoothingPeriod <= 0 {
		c.Chart.SmoothingPeriod = 5
	}
	if c.Chart.Trend.Above.Lookback <= 0 {
		c.Chart.Trend.Above.Lookback = 5
	}
	if c.Chart.Trend.Below.Lookback <= 0 {
		c.Chart.Trend.Below.Lookback = 5
	}
	if c.Chart.Trend.Above.TrendColor == "" {
		c.Chart.Trend.Above.TrendColor = "rgb(153, 0, 0)"
	}
	if c.Chart.Trend.Below.TrendColor == "" {
		c.Chart.Trend.Below.TrendColor = "rgb(0, 60, 183)"
	}
	if c.Chart.Pivot.High.LeftLen <= 0 {
		c.Chart.Pivot.High.LeftLen = 10
	}
	if c.Chart.Pivot.High.RightLen <= 0 {
		c.Chart.Pivot.High.RightLen = 10
	}
	if c.Chart.Pivot.Low.LeftLen <= 0 {
		c.Chart.Pivot.Low.LeftLen = 10
	}
	if c.Chart.Pivot.Low.RightLen <= 0 {
		c.Chart.Pivot.Low.RightLen = 10
	}
	if c.Source.Rest.RequestsPerSecond <= 0 {
		c.Source.Rest.RequestsPerSecond = 5
	}
	if c.Source.Rest.BurstSize <= 0 {
		c.Source.Rest.BurstSize = 10
	}
	if c.Storage.S3.FlushInterval <= 0 {
		c.Storage.S3.FlushInterval = time.Minute
	}
	if c.Storage.S3.MaxBufferSize <= 0 {
		c.Storage.S3.MaxBufferSize = 5000
	}
	if c.Dashboard.Address == "" {
		c.Dashboard.Address = ":8088"
	}
	if c.Dashboard.PushInterval <= 0 {
		c.Dashboard.PushInterval = time.Second
	}
	if c.Metrics.Prometheus.Address == "" {
		c.Metrics.Prometheus.Address = ":2112"
	}
	if c.Metrics.CloudWatch.Namespace == "" {
		c.Metrics.CloudWatch.Namespace = "RektFlow"
	}
}

// Validate checks cross-field constraints that cannot be expressed as
// simple defaults.
func (c *Config) Validate() error {
	if len(c.Chart.PercentileRange) != 2 {
		return fmt.Errorf("chart.percentile_range must contain exactly two values, got %d", len(c.Chart.PercentileRange))
	}
	low, high := c.Chart.PercentileRange[0], c.Chart.PercentileRange[1]
	if low < 0 || high > 100 || low >= high {
		return fmt.Errorf("chart.percentile_range [%v, %v] must satisfy 0 <= low < high <= 100", low, high)
	}
	if c.Chart.TopMarkersCount < 0 {
		return fmt.Errorf("chart.top_markers_count must not be negative")
	}
	if c.Storage.S3.Enabled && c.Storage.S3.Bucket == "" {
		return fmt.Errorf("storage.s3.bucket is required when s3 storage is enabled")
	}
	return nil
}

// PercentileLow returns the lower bound of the configured percentile range.
func (c *ChartConfig) PercentileLow() float64 { return c.PercentileRange[0] }

// PercentileHigh returns the upper bound of the configured percentile range.
func (c *ChartConfig) PercentileHigh() float64 { return c.PercentileRange[1] }
