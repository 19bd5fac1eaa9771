package config

import (
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/spf13/viper"

	"github.com/Brownie44l1/fusion-api/internal/imaging"
)

type Config struct {
	App     AppConfig     `mapstructure:"app"`
	ONNX    ONNXConfig    `mapstructure:"onnx"`
	Models  ModelsConfig  `mapstructure:"models"`
	Retina  RetinaConfig  `mapstructure:"retina"`
	Metrics MetricsConfig `mapstructure:"metrics"`
	CORS    CORSConfig    `mapstructure:"cors"`
}

type AppConfig struct {
	Name           string        `mapstructure:"name"`
	Env            string        `mapstructure:"env"`
	Port           int           `mapstructure:"port"`
	LogLevel       string        `mapstructure:"log_level"`
	RequestTimeout time.Duration `mapstructure:"request_timeout"`
	MaxUploadBytes int64         `mapstructure:"max_upload_bytes"`
}

type ONNXConfig struct {
	SharedLibraryPath string `mapstructure:"shared_library_path"`
}

type ModelConfig struct {
	Path     string `mapstructure:"path"`
	Metadata string `mapstructure:"metadata"`
}

type TabularModelConfig struct {
	ModelConfig `mapstructure:",squash"`
	Schema      string `mapstructure:"schema"`
}

type NailModelConfig struct {
	ModelConfig   `mapstructure:",squash"`
	Normalization string `mapstructure:"normalization"`
}

type ModelsConfig struct {
	Tabular TabularModelConfig `mapstructure:"tabular"`
	Nail    NailModelConfig    `mapstructure:"nail"`
	Retina  ModelConfig        `mapstructure:"retina"`
}

type RetinaConfig struct {
	ClipLimit float64 `mapstructure:"clip_limit"`
	TileGrid  int     `mapstructure:"tile_grid"`
}

type MetricsConfig struct {
	Enabled      bool    `mapstructure:"enabled"`
	Address      string  `mapstructure:"address"`
	SamplingRate float64 `mapstructure:"sampling_rate"`
}

type CORSConfig struct {
	AllowedOrigins []string `mapstructure:"allowed_origins"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("app.name", "fusion-api")
	v.SetDefault("app.env", "dev")
	v.SetDefault("app.port", 8080)
	v.SetDefault("app.log_level", "INFO")
	v.SetDefault("app.request_timeout", 30*time.Second)
	v.SetDefault("app.max_upload_bytes", 20<<20)

	v.SetDefault("onnx.shared_library_path", "")

	v.SetDefault("models.tabular.path", "models/hypertension_model.onnx")
	v.SetDefault("models.tabular.metadata", "models/hypertension_model.json")
	v.SetDefault("models.tabular.schema", "models/model_features.yaml")
	v.SetDefault("models.nail.path", "models/nail_disease_model.onnx")
	v.SetDefault("models.nail.metadata", "models/nail_disease_model.json")
	v.SetDefault("models.nail.normalization", string(imaging.NormalizeEfficientNet))
	v.SetDefault("models.retina.path", "models/best_focalnet_dr.onnx")
	v.SetDefault("models.retina.metadata", "models/best_focalnet_dr.json")

	v.SetDefault("retina.clip_limit", 2.0)
	v.SetDefault("retina.tile_grid", 8)

	v.SetDefault("metrics.enabled", false)
	v.SetDefault("metrics.address", "localhost:8125")
	v.SetDefault("metrics.sampling_rate", 1.0)

	v.SetDefault("cors.allowed_origins", []string{"*"})
}

// Load reads defaults, then the optional config file, then the environment.
// Environment keys are the upper-cased config keys with dots replaced by
// underscores, e.g. APP_PORT or MODELS_NAIL_PATH.
func Load(configFile string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if configFile != "" {
		v.SetConfigFile(configFile)
		if err := v.ReadInConfig(); err != nil {
			return nil, errors.Wrapf(err, "failed to read config file %s", configFile)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, errors.Wrap(err, "failed to unmarshal config")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) Validate() error {
	if c.App.Port <= 0 || c.App.Port > 65535 {
		return errors.Errorf("config: invalid app.port %d", c.App.Port)
	}
	if c.App.MaxUploadBytes <= 0 {
		return errors.New("config: app.max_upload_bytes must be positive")
	}

	required := map[string]string{
		"models.tabular.path":     c.Models.Tabular.Path,
		"models.tabular.metadata": c.Models.Tabular.Metadata,
		"models.tabular.schema":   c.Models.Tabular.Schema,
		"models.nail.path":        c.Models.Nail.Path,
		"models.nail.metadata":    c.Models.Nail.Metadata,
		"models.retina.path":      c.Models.Retina.Path,
		"models.retina.metadata":  c.Models.Retina.Metadata,
	}
	for key, value := range required {
		if strings.TrimSpace(value) == "" {
			return errors.Errorf("config: %s is required", key)
		}
	}

	if _, err := imaging.ParseNormalization(c.Models.Nail.Normalization); err != nil {
		return errors.Wrap(err, "config: models.nail.normalization")
	}
	if _, err := imaging.NewCLAHE(c.Retina.ClipLimit, c.Retina.TileGrid); err != nil {
		return errors.Wrap(err, "config: retina")
	}
	if c.Metrics.SamplingRate < 0 || c.Metrics.SamplingRate > 1 {
		return errors.Errorf("config: metrics.sampling_rate %v outside [0, 1]", c.Metrics.SamplingRate)
	}
	return nil
}
