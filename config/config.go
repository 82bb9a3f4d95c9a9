package config

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/m4xw311/foundrychat/errors"
	"github.com/rs/zerolog"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

const (
	TransportResponses = "responses"
	TransportMock      = "mock"

	DefaultAPIVersion = "2025-11-15-preview"
	DefaultLogLevel   = "warn"
	DefaultMockAgent  = "mock-agent"

	dirName = ".foundrychat"
)

type Config struct {
	Endpoint         string   `yaml:"endpoint"`
	APIKey           string   `yaml:"api_key"`
	APIVersion       string   `yaml:"api_version"`
	ConversationID   string   `yaml:"conversation_id"`
	AgentName        string   `yaml:"agent_name"`
	Stream           bool     `yaml:"stream"`
	AutoApprove      bool     `yaml:"auto_approve"`
	AutoApproveTools []string `yaml:"auto_approve_tools"`
	LabelOnCreated   bool     `yaml:"label_on_created"`
	Transport        string   `yaml:"transport"`
	LogLevel         string   `yaml:"log_level"`
	HistoryFile      string   `yaml:"history_file"`
}

// envBindings maps environment variable names to the field they set. The
// names match the ones the hosted agent samples use in their .env files.
var envBindings = []struct {
	name string
	set  func(c *Config, v *viper.Viper, key string)
}{
	{"PROJECT_ENDPOINT", func(c *Config, v *viper.Viper, k string) { c.Endpoint = v.GetString(k) }},
	{"PROJECT_API_KEY", func(c *Config, v *viper.Viper, k string) { c.APIKey = v.GetString(k) }},
	{"PROJECT_API_VERSION", func(c *Config, v *viper.Viper, k string) { c.APIVersion = v.GetString(k) }},
	{"CONVERSATION_ID", func(c *Config, v *viper.Viper, k string) { c.ConversationID = v.GetString(k) }},
	{"AGENT_NAME", func(c *Config, v *viper.Viper, k string) { c.AgentName = v.GetString(k) }},
	{"ENABLE_STREAM_RESPONSE", func(c *Config, v *viper.Viper, k string) { c.Stream = isTrue(v, k) }},
	{"ENABLE_MCPTOOL_AUTO_APPROVAL", func(c *Config, v *viper.Viper, k string) { c.AutoApprove = isTrue(v, k) }},
	{"MCPTOOL_AUTO_APPROVAL_TOOLS", func(c *Config, v *viper.Viper, k string) { c.AutoApproveTools = splitList(v.GetString(k)) }},
	{"FOUNDRYCHAT_LOG_LEVEL", func(c *Config, v *viper.Viper, k string) { c.LogLevel = v.GetString(k) }},
	{"FOUNDRYCHAT_TRANSPORT", func(c *Config, v *viper.Viper, k string) { c.Transport = v.GetString(k) }},
}

// Default returns the configuration used when nothing else is set.
func Default() *Config {
	return &Config{
		APIVersion: DefaultAPIVersion,
		Transport:  TransportResponses,
		LogLevel:   DefaultLogLevel,
	}
}

// LoadConfig loads configuration from the user's home directory and the current
// working directory, with the latter taking precedence. Values from envFile
// (skipped when it does not exist) and then the process environment are
// applied on top.
func LoadConfig(envFile string) (*Config, error) {
	cfg := Default()

	// Load user-level config first
	home, err := os.UserHomeDir()
	if err == nil {
		userConfigPath := filepath.Join(home, dirName, "config.yaml")
		if _, err := os.Stat(userConfigPath); err == nil {
			if err := loadFromFile(userConfigPath, cfg); err != nil {
				return nil, errors.Wrapf(err, "error loading user config")
			}
		}
	}

	// Load project-level config, overriding user-level
	wd, err := os.Getwd()
	if err != nil {
		return nil, errors.Wrapf(err, "could not get working directory")
	}
	projectConfigPath := filepath.Join(wd, dirName, "config.yaml")
	if _, err := os.Stat(projectConfigPath); err == nil {
		if err := loadFromFile(projectConfigPath, cfg); err != nil {
			return nil, errors.Wrapf(err, "error loading project config")
		}
	}

	if err := loadFromEnv(envFile, cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func loadFromFile(path string, cfg *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	// Fields present in the YAML overwrite earlier layers.
	return yaml.Unmarshal(data, cfg)
}

// loadFromEnv applies the dotenv file and the process environment. viper
// gives the environment precedence over values read from the file.
func loadFromEnv(envFile string, cfg *Config) error {
	v := viper.New()
	if envFile != "" {
		if _, err := os.Stat(envFile); err == nil {
			v.SetConfigFile(envFile)
			v.SetConfigType("env")
			if err := v.ReadInConfig(); err != nil {
				return errors.Wrapf(err, "error loading env file %s", envFile)
			}
		}
	}

	for _, b := range envBindings {
		key := strings.ToLower(b.name)
		if err := v.BindEnv(key, b.name); err != nil {
			return errors.Wrapf(err, "could not bind %s", b.name)
		}
		if v.IsSet(key) {
			b.set(cfg, v, key)
		}
	}
	return nil
}

// Validate checks that the configuration is usable and fills in defaults that
// depend on the transport.
func (c *Config) Validate() error {
	switch c.Transport {
	case TransportResponses:
		if c.Endpoint == "" {
			return errors.New("no project endpoint configured (set PROJECT_ENDPOINT or --endpoint)")
		}
		if c.AgentName == "" {
			return errors.New("no agent name configured (set AGENT_NAME or --agent)")
		}
	case TransportMock:
		if c.AgentName == "" {
			c.AgentName = DefaultMockAgent
		}
	default:
		return errors.New("unknown transport '%s'. Must be '%s' or '%s'", c.Transport, TransportResponses, TransportMock)
	}

	if c.LogLevel == "" {
		c.LogLevel = DefaultLogLevel
	}
	if _, err := zerolog.ParseLevel(c.LogLevel); err != nil {
		return errors.Wrapf(err, "invalid log level '%s'", c.LogLevel)
	}

	for _, pattern := range c.AutoApproveTools {
		if !doublestar.ValidatePattern(pattern) {
			return errors.New("invalid auto-approval pattern '%s'", pattern)
		}
	}
	return nil
}

// isTrue reports whether the switch is set to exactly "true". Values such as
// "1" or "TRUE" leave it off.
func isTrue(v *viper.Viper, key string) bool {
	return v.GetString(key) == "true"
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
