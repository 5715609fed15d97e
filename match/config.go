package match

import (
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/hazyhaar/domtarget/bounds"
	"github.com/hazyhaar/domtarget/score"
)

// Config holds all matcher configuration. Zero values get sensible defaults;
// a config file is optional.
type Config struct {
	Scoring score.CompositeConfig `yaml:"scoring"`
	Bounds  bounds.Config         `yaml:"bounds"`

	SearchCacheTTL      time.Duration `yaml:"search_cache_ttl"`
	SearchCacheDisabled bool          `yaml:"search_cache_disabled"`

	StrongMatchThreshold float64 `yaml:"strong_match_threshold"`
	AmbiguityGap         float64 `yaml:"ambiguity_gap"`
	LowConfidenceFloor   float64 `yaml:"low_confidence_floor"`
	MatchThreshold       float64 `yaml:"match_threshold"`
	MaxResults           int     `yaml:"max_results"`

	// LegacyScoring starts the matcher on the pre-ensemble scoring path.
	// Runtime-togglable via SetUseEnhancedScoring.
	LegacyScoring bool `yaml:"legacy_scoring"`

	DBPath   string `yaml:"db_path"`
	HTTPAddr string `yaml:"http_addr"`
}

func (c *Config) defaults() {
	if c.SearchCacheTTL <= 0 {
		c.SearchCacheTTL = 5 * time.Second
	}
	if c.StrongMatchThreshold <= 0 {
		c.StrongMatchThreshold = score.DefaultStrongMatch
	}
	if c.AmbiguityGap <= 0 {
		c.AmbiguityGap = score.DefaultAmbiguityGap
	}
	if c.LowConfidenceFloor <= 0 {
		c.LowConfidenceFloor = 0.5
	}
	if c.MatchThreshold <= 0 {
		c.MatchThreshold = score.DefaultThreshold
	}
	if c.MaxResults <= 0 {
		c.MaxResults = 5
	}
}

// LoadConfigFile reads a YAML config file.
func LoadConfigFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	cfg := &Config{}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}
