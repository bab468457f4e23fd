package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Model     ModelConfig     `mapstructure:"model"`
	Inference InferenceConfig `mapstructure:"inference"`
}

type ServerConfig struct {
	Port         string        `mapstructure:"port"`
	Mode         string        `mapstructure:"mode"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
	StaticDir    string        `mapstructure:"static_dir"`
	MaxUpload    int64         `mapstructure:"max_upload"`
}

// ModelConfig describes the artifact on disk and the tensors it expects.
// Labels is the output order of the classifier head.
type ModelConfig struct {
	Path          string   `mapstructure:"path"`
	URL           string   `mapstructure:"url"`
	Labels        []string `mapstructure:"labels"`
	InputName     string   `mapstructure:"input_name"`
	OutputName    string   `mapstructure:"output_name"`
	InputShape    []int64  `mapstructure:"input_shape"`
	OutputShape   []int64  `mapstructure:"output_shape"`
	Interpolation string   `mapstructure:"interpolation"`
}

type InferenceConfig struct {
	Sessions      int    `mapstructure:"sessions"`
	SharedLibrary string `mapstructure:"shared_library"`
}

const envPrefix = "COCOA"

// Load reads configPath as YAML on top of the defaults. A missing file is
// not an error; environment variables (COCOA_SERVER_PORT, ...) still apply.
func Load(configPath string) (*Config, error) {
	v := viper.New()
	v.SetConfigType("yaml")
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	if err := v.BindEnv("server.port", envPrefix+"_SERVER_PORT", "PORT"); err != nil {
		return nil, fmt.Errorf("failed to bind port env: %w", err)
	}

	setDefaults(v)

	if configPath != "" {
		if _, err := os.Stat(configPath); err == nil {
			v.SetConfigFile(configPath)
			if err := v.ReadInConfig(); err != nil {
				return nil, fmt.Errorf("failed to read config file: %w", err)
			}
		} else if !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("failed to stat config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// Validate checks the values that would otherwise fail late, at the first request.
func (c *Config) Validate() error {
	if c.Model.Path == "" {
		return errors.New("model.path must not be empty")
	}
	if len(c.Model.InputShape) != 4 {
		return fmt.Errorf("model.input_shape must have 4 dims, got %v", c.Model.InputShape)
	}
	if len(c.Model.OutputShape) == 0 {
		return errors.New("model.output_shape must not be empty")
	}
	for _, d := range append(append([]int64{}, c.Model.InputShape...), c.Model.OutputShape...) {
		if d <= 0 {
			return fmt.Errorf("tensor dims must be positive, got input %v output %v",
				c.Model.InputShape, c.Model.OutputShape)
		}
	}
	if c.Inference.Sessions < 1 {
		return fmt.Errorf("inference.sessions must be at least 1, got %d", c.Inference.Sessions)
	}
	if c.Server.MaxUpload <= 0 {
		return fmt.Errorf("server.max_upload must be positive, got %d", c.Server.MaxUpload)
	}
	return nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", "5000")
	v.SetDefault("server.mode", "debug")
	v.SetDefault("server.read_timeout", 30*time.Second)
	v.SetDefault("server.write_timeout", 60*time.Second)
	v.SetDefault("server.static_dir", "./static")
	v.SetDefault("server.max_upload", 32<<20)

	v.SetDefault("model.path", DefaultModelPath)
	v.SetDefault("model.url", DefaultModelURL)
	v.SetDefault("model.labels", DefaultLabels)
	v.SetDefault("model.input_name", "input")
	v.SetDefault("model.output_name", "output")
	v.SetDefault("model.input_shape", []int64{1, 224, 224, 3})
	v.SetDefault("model.output_shape", []int64{1, 3})
	v.SetDefault("model.interpolation", "bicubic")

	v.SetDefault("inference.sessions", 1)
	v.SetDefault("inference.shared_library", "")
}

const (
	DefaultModelPath = "model/DenseNet121_Cocoa_diagnosis.onnx"
	DefaultModelURL  = "https://drive.google.com/uc?export=download&id=1UtlCqjhyIP5kFP-6SZxvBIAicQfk_51X"
)

var DefaultLabels = []string{"anthracnose", "cssvd", "healthy"}
