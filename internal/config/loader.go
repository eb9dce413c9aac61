package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
)

const (
	// ConfigFileName is the base name for configuration files (without extension).
	ConfigFileName = "spotit"

	// EnvPrefix is the prefix for environment variables.
	EnvPrefix = "SPOTIT"

	// EnvConfigFile names an explicit configuration file.
	EnvConfigFile = "SPOTIT_CONFIG"
)

// Loader reads configuration from a file, SPOTIT_* environment variables
// and defaults, in increasing order of precedence for env over file.
type Loader struct {
	v *viper.Viper
}

// NewLoader creates a loader on a private viper instance. The library runs
// inside a host process and must not share viper's global state.
func NewLoader() *Loader {
	return &Loader{v: viper.New()}
}

// NewLoaderWithViper wraps an existing viper instance, e.g. the CLI's
// global one with bound flags.
func NewLoaderWithViper(v *viper.Viper) *Loader {
	return &Loader{v: v}
}

// Load reads the file named by SPOTIT_CONFIG if set, otherwise searches the
// standard paths. A missing file is not an error.
func (l *Loader) Load() (*Config, error) {
	if path := os.Getenv(EnvConfigFile); path != "" {
		return l.LoadWithFile(path)
	}
	l.v.SetConfigName(ConfigFileName)
	l.v.SetConfigType("yaml")
	l.addConfigPaths()
	l.setupEnvironmentVariables()
	l.setDefaults()

	if err := l.v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}
	return l.unmarshal()
}

// LoadWithFile loads configuration from a specific file path.
func (l *Loader) LoadWithFile(configFile string) (*Config, error) {
	if configFile == "" {
		return l.Load()
	}
	if _, err := os.Stat(configFile); os.IsNotExist(err) {
		return nil, fmt.Errorf("config file does not exist: %s", configFile)
	}
	l.v.SetConfigFile(configFile)
	l.setupEnvironmentVariables()
	l.setDefaults()

	if err := l.v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("error reading config file %s: %w", configFile, err)
	}
	return l.unmarshal()
}

func (l *Loader) unmarshal() (*Config, error) {
	var config Config
	if err := l.v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}
	return &config, nil
}

// ConfigFileUsed returns the path of the config file used, if any.
func (l *Loader) ConfigFileUsed() string {
	return l.v.ConfigFileUsed()
}

// Viper returns the underlying viper instance.
func (l *Loader) Viper() *viper.Viper {
	return l.v
}

func (l *Loader) addConfigPaths() {
	for _, p := range GetConfigSearchPaths() {
		l.v.AddConfigPath(p)
	}
}

func (l *Loader) setupEnvironmentVariables() {
	l.v.SetEnvPrefix(EnvPrefix)
	l.v.AutomaticEnv()
	l.v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
}

func (l *Loader) setDefaults() {
	d := DefaultConfig()

	l.v.SetDefault("log_level", d.LogLevel)
	l.v.SetDefault("models_dir", d.ModelsDir)

	l.v.SetDefault("onnx.library_path", d.ONNX.LibraryPath)
	l.v.SetDefault("onnx.num_threads", d.ONNX.NumThreads)
	l.v.SetDefault("onnx.graph_optimization", d.ONNX.GraphOptimization)

	l.v.SetDefault("gpu.enabled", d.GPU.Enabled)
	l.v.SetDefault("gpu.device", d.GPU.Device)
	l.v.SetDefault("gpu.memory_limit", d.GPU.MemoryLimit)

	l.v.SetDefault("detector.labels_path", d.Detector.LabelsPath)
	l.v.SetDefault("detector.box_format", d.Detector.BoxFormat)
	l.v.SetDefault("detector.output_stride", d.Detector.OutputStride)
	l.v.SetDefault("detector.busy_policy", d.Detector.BusyPolicy)

	l.v.SetDefault("output.confidence_precision", d.Output.ConfidencePrecision)

	l.v.SetDefault("metrics.go_runtime", d.Metrics.GoRuntime)
}

// GenerateDefaultConfigFile writes the defaults to filename (spotit.yaml
// when empty).
func GenerateDefaultConfigFile(filename string) error {
	l := NewLoader()
	l.setDefaults()
	if filename == "" {
		filename = ConfigFileName + ".yaml"
	}
	return l.v.WriteConfigAs(filename)
}

// GetConfigSearchPaths returns the directories searched for spotit.yaml.
func GetConfigSearchPaths() []string {
	paths := []string{"."}
	if home, err := os.UserHomeDir(); err == nil {
		paths = append(paths, home)
	}
	if configDir, ok := os.LookupEnv("XDG_CONFIG_HOME"); ok {
		paths = append(paths, filepath.Join(configDir, "spotit"))
	} else if home, err := os.UserHomeDir(); err == nil {
		paths = append(paths, filepath.Join(home, ".config", "spotit"))
	}
	return append(paths, "/etc/spotit")
}
