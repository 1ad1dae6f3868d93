package models

// MConfig Structure
type MConfig struct {
	Name      string           `yaml:"name"`
	Host      string           `yaml:"host"`
	Port      int              `yaml:"port"`
	LogLevel  string           `yaml:"log_level"`
	Storage   MStorageConfig   `yaml:"storage"`
	Cache     MCacheConfig     `yaml:"cache"`
	Streaming MStreamingConfig `yaml:"streaming"`
}

type MStorageConfig struct {
	DBType             string `yaml:"db_type"`
	DBPath             string `yaml:"db_path"`
	DBConnectionString string `yaml:"db_connection_string"`
}

// MCacheConfig tunes the page registry and load pipeline.
type MCacheConfig struct {
	// CandleCoverageRatio is the fraction of the expected bar count at
	// which the local cache is considered sufficient. Deliberately loose:
	// some symbols are legitimately sparse and an exact-gap check would
	// re-fetch them forever.
	CandleCoverageRatio    float64 `yaml:"candle_coverage_ratio"`
	MaxConcurrentDownloads int     `yaml:"max_concurrent_downloads"`
	EvictionGraceSeconds   int     `yaml:"eviction_grace_seconds"`
	EvictionSweepSeconds   int     `yaml:"eviction_sweep_seconds"`
}

// MStreamingConfig tunes the chunked historical export path.
type MStreamingConfig struct {
	ChunkSize                int `yaml:"chunk_size"`
	HeartbeatIntervalSeconds int `yaml:"heartbeat_interval_seconds"`
	MaxConcurrentStreams     int `yaml:"max_concurrent_streams"`
}
