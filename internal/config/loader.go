package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/evanw/esbuild/pkg/api"
	"github.com/go-playground/validator/v10"
	"github.com/pelletier/go-toml/v2"
	"go.uber.org/zap"
	"gopkg.in/yaml.v2"

	"github.com/nickalie/ddc/internal/infrastructure/process"
)

// CommandRunner executes a command in dir and returns its combined output
type CommandRunner func(dir string, args ...string) ([]byte, error)

// Loader defines the interface for loading configuration.
type Loader interface {
	Load(configPath string) (*Config, error)
}

// DefaultLoader loads configuration files by extension.
type DefaultLoader struct {
	validator *validator.Validate
	loaders   map[string]func(string) (*Config, error)
	cmdRunner CommandRunner
	logger    *zap.Logger
}

// Option configures a DefaultLoader
type Option func(*DefaultLoader)

// WithCommandRunner replaces the runner used for script configs
func WithCommandRunner(runner CommandRunner) Option {
	return func(l *DefaultLoader) {
		l.cmdRunner = runner
	}
}

// WithLogger sets the logger
func WithLogger(logger *zap.Logger) Option {
	return func(l *DefaultLoader) {
		l.logger = logger
	}
}

var envVariablePattern = regexp.MustCompile(`\${(\w+)}`)

// NewLoader creates a configuration loader. Script configs are evaluated by
// a process runner streaming their output to stderr.
func NewLoader(opts ...Option) Loader {
	loader := &DefaultLoader{
		validator: validator.New(),
		loaders:   make(map[string]func(string) (*Config, error)),
		cmdRunner: process.NewRunner(process.WithOutput(os.Stderr, os.Stderr)).Output,
		logger:    zap.NewNop(),
	}
	for _, opt := range opts {
		opt(loader)
	}

	loader.loaders[".yaml"] = loader.loadYAMLConfig
	loader.loaders[".yml"] = loader.loadYAMLConfig
	loader.loaders[".ts"] = loader.loadTypeScriptConfig
	loader.loaders[".js"] = loader.loadJavaScriptConfig
	loader.loaders[".mjs"] = loader.loadJavaScriptConfig
	loader.loaders[".go"] = loader.loadGolangConfig
	loader.loaders[".json"] = loader.loadJSONConfig
	loader.loaders[".toml"] = loader.loadTOMLConfig

	return loader
}

// Load loads, validates and completes configuration from configPath.
// A missing file is reported with an error matching os.ErrNotExist.
func (l *DefaultLoader) Load(configPath string) (*Config, error) {
	if _, err := os.Stat(configPath); err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	l.logger.Debug("loading config", zap.String("path", configPath))

	config, err := l.loadConfigByExtension(configPath)
	if err != nil {
		return nil, err
	}

	if err := l.validateConfig(config); err != nil {
		return nil, err
	}

	config.applyDefaults()
	return config, nil
}

// LoadOrDefault loads configPath and falls back to Default when the file
// does not exist and was not asked for explicitly.
func LoadOrDefault(loader Loader, configPath string, explicit bool) (*Config, error) {
	cfg, err := loader.Load(configPath)
	if err != nil && !explicit && errors.Is(err, os.ErrNotExist) {
		return Default(), nil
	}
	return cfg, err
}

func (l *DefaultLoader) loadConfigByExtension(configPath string) (*Config, error) {
	ext := strings.ToLower(filepath.Ext(configPath))

	loader, ok := l.loaders[ext]
	if !ok {
		return nil, fmt.Errorf("unsupported config file extension: %s", ext)
	}

	return loader(configPath)
}

func (l *DefaultLoader) validateConfig(config *Config) error {
	if err := l.validator.Struct(config); err != nil {
		var validationErrors validator.ValidationErrors
		if errors.As(err, &validationErrors) {
			return fmt.Errorf("config validation failed: %s", formatValidationErrors(validationErrors))
		}
		return fmt.Errorf("config validation failed: %w", err)
	}
	return nil
}

func formatValidationErrors(errs validator.ValidationErrors) string {
	errMsgs := make([]string, 0, len(errs))
	for _, err := range errs {
		errMsgs = append(errMsgs, fmt.Sprintf(
			"Field '%s' failed validation: %s (condition: %s)",
			err.Namespace(),
			err.Tag(),
			err.Param(),
		))
	}
	return strings.Join(errMsgs, "\n")
}

func (l *DefaultLoader) loadJSONConfig(configPath string) (*Config, error) {
	data, err := readWithEnv(configPath)
	if err != nil {
		return nil, err
	}

	var config Config
	if err := json.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("failed to parse JSON: %w", err)
	}

	return &config, nil
}

func (l *DefaultLoader) loadTOMLConfig(configPath string) (*Config, error) {
	data, err := readWithEnv(configPath)
	if err != nil {
		return nil, err
	}

	var config Config
	if err := toml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("failed to parse TOML: %w", err)
	}

	return &config, nil
}

func (l *DefaultLoader) loadYAMLConfig(configPath string) (*Config, error) {
	data, err := readWithEnv(configPath)
	if err != nil {
		return nil, err
	}

	var config Config
	if err := yaml.UnmarshalStrict(data, &config); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	return &config, nil
}

// loadTypeScriptConfig bundles the file with esbuild and evaluates the result with node
func (l *DefaultLoader) loadTypeScriptConfig(configPath string) (*Config, error) {
	tmpDir, err := os.MkdirTemp("", "ddc-tsconfig")
	if err != nil {
		return nil, fmt.Errorf("failed to create temp dir: %w", err)
	}
	defer os.RemoveAll(tmpDir)

	err = os.WriteFile(filepath.Join(tmpDir, "package.json"), []byte("{\"type\":\"module\"}"), 0644)
	if err != nil {
		return nil, fmt.Errorf("failed to create package.json: %w", err)
	}

	jsFile := filepath.Join(tmpDir, "config.js")
	result := api.Build(api.BuildOptions{
		EntryPoints: []string{configPath},
		Bundle:      true,
		Platform:    api.PlatformNode,
		Format:      api.FormatESModule,
		Write:       true,
		Outfile:     jsFile,
	})

	if len(result.Errors) > 0 {
		return nil, fmt.Errorf("failed to build TypeScript: %v", result.Errors[0].Text)
	}

	return l.loadJavaScriptConfig(jsFile)
}

// loadJavaScriptConfig evaluates the module's default export, awaiting it when it is a function
func (l *DefaultLoader) loadJavaScriptConfig(configPath string) (*Config, error) {
	return l.loadCmdConfig(
		filepath.Dir(configPath),
		"node",
		"-e",
		fmt.Sprintf(
			"(async ()=>{"+
				"const m=await import(\"./%s\");"+
				"console.log(JSON.stringify("+
				"typeof m.default==='function'?await m.default():m.default));"+
				"})();",
			filepath.Base(configPath),
		),
	)
}

func (l *DefaultLoader) loadGolangConfig(configPath string) (*Config, error) {
	return l.loadCmdConfig("./", "go", "run", configPath)
}

// loadCmdConfig runs a command whose last output line is the config as JSON
func (l *DefaultLoader) loadCmdConfig(dir string, args ...string) (*Config, error) {
	output, err := l.cmdRunner(dir, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to evaluate config: %w", err)
	}

	parts := strings.Split(string(output), "\n")

	if len(parts) < 2 {
		return nil, fmt.Errorf("invalid output config cmd output")
	}

	outputStr := parts[len(parts)-2]

	var config Config
	if err := json.Unmarshal([]byte(outputStr), &config); err != nil {
		return nil, fmt.Errorf("failed to parse config output: %w", err)
	}

	return &config, nil
}

func readWithEnv(configPath string) ([]byte, error) {
	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	return []byte(replaceEnvVariables(string(data))), nil
}

// replaceEnvVariables replaces ${VAR} with the value of VAR, empty when unset
func replaceEnvVariables(content string) string {
	return envVariablePattern.ReplaceAllStringFunc(content, func(s string) string {
		key := envVariablePattern.FindStringSubmatch(s)[1]
		return os.Getenv(key)
	})
}
