package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/spf13/viper"

	"github.com/openfluke/lumen/scene"
)

// Config represents the application configuration
type Config struct {
	Render  RenderConfig  `mapstructure:"render"`
	GPU     GPUConfig     `mapstructure:"gpu"`
	Logging LoggingConfig `mapstructure:"logging"`
}

type RenderConfig struct {
	Width          int     `mapstructure:"width"`
	Height         int     `mapstructure:"height"`
	Frames         int     `mapstructure:"frames"`
	Samples        int     `mapstructure:"samples"`
	CellResolution int     `mapstructure:"cell_resolution"`
	Cull           bool    `mapstructure:"cull"` // drop triangles outside the view frustum
	Seed           uint64  `mapstructure:"seed"` // 0 draws a fresh seed per run
	Gamma          float64 `mapstructure:"gamma"`
	Scene          string  `mapstructure:"scene"`  // empty renders the built-in scene
	Kernel         string  `mapstructure:"kernel"` // empty uses the embedded kernel
	Output         string  `mapstructure:"output"`
}

// GPUConfig has no workgroup setting: the kernel source declares it.
type GPUConfig struct {
	StrictValidation bool `mapstructure:"strict_validation"`
}

type LoggingConfig struct {
	Level   string `mapstructure:"level"`
	File    string `mapstructure:"file"`
	Console bool   `mapstructure:"console"`
	JSON    bool   `mapstructure:"json"`
}

// DefaultConfig returns configuration with default values
func DefaultConfig() *Config {
	return &Config{
		Render: RenderConfig{
			Width:          640,
			Height:         480,
			Frames:         16,
			Samples:        1,
			CellResolution: 8,
			Cull:           true,
			Gamma:          2.2,
			Output:         "lumen.png",
		},
		Logging: LoggingConfig{
			Level:   "info",
			Console: true,
		},
	}
}

// Load loads configuration from file, environment, and defaults
func Load(cfgFile string) (*Config, error) {
	v := viper.New()

	cfg := DefaultConfig()
	setDefaults(v, cfg)

	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
	} else {
		if home, err := os.UserHomeDir(); err == nil {
			v.AddConfigPath(filepath.Join(home, ".lumen"))
		}
		v.AddConfigPath(".")
		v.SetConfigType("yaml")
		v.SetConfigName("lumen")
	}

	// LUMEN_RENDER_WIDTH overrides render.width, and so on.
	v.SetEnvPrefix("LUMEN")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("reading config: %w", err)
		}
	}

	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}

	cfg.ExpandPaths()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}
	return cfg, nil
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	var errs []error
	r := c.Render
	if r.Width <= 0 || r.Height <= 0 {
		errs = append(errs, fmt.Errorf("render size must be positive, got %dx%d", r.Width, r.Height))
	}
	if r.Frames < 1 {
		errs = append(errs, errors.New("render.frames must be at least 1"))
	}
	if r.Samples < 1 || r.Samples > 1024 {
		errs = append(errs, errors.New("render.samples must be between 1 and 1024"))
	}
	if r.CellResolution < 1 || r.CellResolution > scene.MaxGridResolution {
		errs = append(errs, fmt.Errorf("render.cell_resolution must be between 1 and %d", scene.MaxGridResolution))
	}
	if r.Gamma < 0 {
		errs = append(errs, errors.New("render.gamma must not be negative"))
	}
	if r.Output == "" {
		errs = append(errs, errors.New("render.output is required"))
	}

	validLevels := []string{"trace", "debug", "info", "warn", "error"}
	if !slices.Contains(validLevels, c.Logging.Level) {
		errs = append(errs, fmt.Errorf("logging.level must be one of: %v", validLevels))
	}
	return errors.Join(errs...)
}

// ExpandPaths expands ~ and environment variables in paths
func (c *Config) ExpandPaths() {
	c.Render.Scene = expandPath(c.Render.Scene)
	c.Render.Kernel = expandPath(c.Render.Kernel)
	c.Render.Output = expandPath(c.Render.Output)
	c.Logging.File = expandPath(c.Logging.File)
}

func expandPath(path string) string {
	if strings.HasPrefix(path, "~/") {
		home, _ := os.UserHomeDir()
		return filepath.Join(home, path[2:])
	}
	return os.ExpandEnv(path)
}

func setDefaults(v *viper.Viper, cfg *Config) {
	v.SetDefault("render.width", cfg.Render.Width)
	v.SetDefault("render.height", cfg.Render.Height)
	v.SetDefault("render.frames", cfg.Render.Frames)
	v.SetDefault("render.samples", cfg.Render.Samples)
	v.SetDefault("render.cell_resolution", cfg.Render.CellResolution)
	v.SetDefault("render.cull", cfg.Render.Cull)
	v.SetDefault("render.seed", cfg.Render.Seed)
	v.SetDefault("render.gamma", cfg.Render.Gamma)
	v.SetDefault("render.scene", cfg.Render.Scene)
	v.SetDefault("render.kernel", cfg.Render.Kernel)
	v.SetDefault("render.output", cfg.Render.Output)

	v.SetDefault("gpu.strict_validation", cfg.GPU.StrictValidation)

	v.SetDefault("logging.level", cfg.Logging.Level)
	v.SetDefault("logging.file", cfg.Logging.File)
	v.SetDefault("logging.console", cfg.Logging.Console)
	v.SetDefault("logging.json", cfg.Logging.JSON)
}
