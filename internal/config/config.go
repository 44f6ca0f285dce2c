package config

import (
	"os"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/yaml.v3"
)

// Config holds the full application configuration. It is loaded once at
// startup and treated as immutable; components receive the sections they
// need through their constructors.
type Config struct {
	Store   StoreConfig   `yaml:"store" mapstructure:"store"`
	Engine  EngineConfig  `yaml:"engine" mapstructure:"engine"`
	Weights WeightsConfig `yaml:"weights" mapstructure:"weights"`
	Priors  PriorsConfig  `yaml:"priors" mapstructure:"priors"`
	Batch   BatchConfig   `yaml:"batch" mapstructure:"batch"`
	Log     LogConfig     `yaml:"log" mapstructure:"log"`
}

// StoreConfig configures the database backend.
type StoreConfig struct {
	Driver      string `yaml:"driver" mapstructure:"driver"` // "postgres" or "sqlite"
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
	MaxConns    int32  `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns    int32  `yaml:"min_conns" mapstructure:"min_conns"`
}

// EngineConfig enumerates every inference tunable.
type EngineConfig struct {
	PriorWeight          float64 `yaml:"prior_weight" mapstructure:"prior_weight"`
	ConcentrationScale   float64 `yaml:"concentration_scale" mapstructure:"concentration_scale"`
	MinEvidenceThreshold float64 `yaml:"min_evidence_threshold" mapstructure:"min_evidence_threshold"`
	MonteCarloSamples    int     `yaml:"monte_carlo_samples" mapstructure:"monte_carlo_samples"`
	RandomSeed           uint64  `yaml:"random_seed" mapstructure:"random_seed"`
	PriorEffectiveN      float64 `yaml:"prior_effective_n" mapstructure:"prior_effective_n"`
	PriorCV              float64 `yaml:"prior_cv" mapstructure:"prior_cv"`
	SalaryFloor          float64 `yaml:"salary_floor" mapstructure:"salary_floor"`
	SalaryCeiling        float64 `yaml:"salary_ceiling" mapstructure:"salary_ceiling"`
	ConfidenceDiscount   float64 `yaml:"confidence_discount" mapstructure:"confidence_discount"`
}

// WeightsConfig holds per-source evidence weights. Headcount weights scale a
// company's share of the Dirichlet concentration; salary weights scale each
// observation's contribution to the posterior.
type WeightsConfig struct {
	Headcount SourceWeights `yaml:"headcount" mapstructure:"headcount"`
	Salary    SourceWeights `yaml:"salary" mapstructure:"salary"`
}

// SourceWeights maps each source type to a reliability weight.
type SourceWeights struct {
	Posting float64 `yaml:"posting" mapstructure:"posting"`
	Visa    float64 `yaml:"visa" mapstructure:"visa"`
	Payroll float64 `yaml:"payroll" mapstructure:"payroll"`
}

// PriorsConfig configures the OEWS prior sync.
type PriorsConfig struct {
	TempDir   string `yaml:"temp_dir" mapstructure:"temp_dir"`
	StartYear int    `yaml:"start_year" mapstructure:"start_year"`
	UserAgent string `yaml:"user_agent" mapstructure:"user_agent"`
}

// BatchConfig configures batch processing.
type BatchConfig struct {
	MaxConcurrentCells int `yaml:"max_concurrent_cells" mapstructure:"max_concurrent_cells"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// Load reads configuration from file and environment.
func Load() (*Config, error) {
	v := viper.New()

	// Config file
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	// Environment
	v.SetEnvPrefix("ARCHETYPE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("store.driver", "postgres")
	v.SetDefault("store.max_conns", 10)
	v.SetDefault("store.min_conns", 2)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("batch.max_concurrent_cells", 8)
	v.SetDefault("engine.prior_weight", 5.0)
	v.SetDefault("engine.concentration_scale", 1.0)
	v.SetDefault("engine.min_evidence_threshold", 1.0)
	v.SetDefault("engine.monte_carlo_samples", 1000)
	v.SetDefault("engine.random_seed", 0)
	v.SetDefault("engine.prior_effective_n", 10.0)
	v.SetDefault("engine.prior_cv", 0.25)
	v.SetDefault("engine.salary_floor", 20_000.0)
	v.SetDefault("engine.salary_ceiling", 1_000_000.0)
	v.SetDefault("engine.confidence_discount", 0.9)
	v.SetDefault("weights.headcount.posting", 0.5)
	v.SetDefault("weights.headcount.visa", 2.0)
	v.SetDefault("weights.headcount.payroll", 3.0)
	v.SetDefault("weights.salary.posting", 1.5)
	v.SetDefault("weights.salary.visa", 4.0)
	v.SetDefault("weights.salary.payroll", 5.0)
	v.SetDefault("priors.temp_dir", "/tmp/archetype-priors")
	v.SetDefault("priors.start_year", 2019)
	v.SetDefault("priors.user_agent", "archetype-cli/1.0")

	// Read config file (optional)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, eris.Wrap(err, "config: read file")
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, eris.Wrap(err, "config: unmarshal")
	}

	return &cfg, nil
}

// LoadWeightsFile overlays cfg.Weights with a YAML override file, e.g.
//
//	headcount:
//	  posting: 0.5
//	  visa: 2.0
//	  payroll: 3.0
//	salary:
//	  posting: 1.75
//	  visa: 4.5
//	  payroll: 5.0
//
// Zero-valued entries keep the configured default.
func LoadWeightsFile(cfg *Config, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return eris.Wrapf(err, "config: read weights file %s", path)
	}

	var w WeightsConfig
	if err := yaml.Unmarshal(data, &w); err != nil {
		return eris.Wrapf(err, "config: parse weights file %s", path)
	}

	overlay := func(dst *SourceWeights, src SourceWeights) {
		if src.Posting > 0 {
			dst.Posting = src.Posting
		}
		if src.Visa > 0 {
			dst.Visa = src.Visa
		}
		if src.Payroll > 0 {
			dst.Payroll = src.Payroll
		}
	}
	overlay(&cfg.Weights.Headcount, w.Headcount)
	overlay(&cfg.Weights.Salary, w.Salary)

	return nil
}

// InitLogger initializes the global zap logger.
func InitLogger(cfg LogConfig) error {
	var zapCfg zap.Config
	if cfg.Format == "console" {
		zapCfg = zap.NewDevelopmentConfig()
	} else {
		zapCfg = zap.NewProductionConfig()
	}

	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return eris.Wrap(err, "config: parse log level")
	}
	zapCfg.Level.SetLevel(level)

	logger, err := zapCfg.Build()
	if err != nil {
		return eris.Wrap(err, "config: build logger")
	}
	zap.ReplaceGlobals(logger)

	return nil
}
