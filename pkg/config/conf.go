package config

import (
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

const (
	configFileName = "config.yaml"
	dbFileName     = "data.db"
	dirMode        = 0700
	fileMode       = 0600

	AddressDefault  = "127.0.0.1:8080"
	LogLevelDefault = "info"

	EnvAddress  = "GORAKSHA_ADDRESS"
	EnvDB       = "GORAKSHA_DB"
	EnvLogLevel = "GORAKSHA_LOG_LEVEL"
	EnvLogFile  = "GORAKSHA_LOG_FILE"
	EnvAPIToken = "GORAKSHA_API_TOKEN"
)

// Config represents app config object.
type Config struct {
	// Address the HTTP server listens on
	Address string `yaml:"address"`
	// DB is a SQLite file path or a postgres:// DSN
	DB string `yaml:"db"`
	// LogLevel is one of debug, info, warn, error
	LogLevel string `yaml:"log_level"`
	// LogFile receives JSON logs from the server when set
	LogFile string `yaml:"log_file,omitempty"`
	// APIToken gates the prediction API when set
	APIToken string `yaml:"api_token,omitempty"`
}

func getDefaultConfig(dirPath string) *Config {
	return &Config{
		Address:  AddressDefault,
		DB:       filepath.Join(dirPath, dbFileName),
		LogLevel: LogLevelDefault,
	}
}

func Save(dirPath string, c *Config) error {
	if dirPath == "" {
		return errors.New("config directory required")
	}
	if c == nil {
		return errors.New("config required")
	}
	b, err := yaml.Marshal(c)
	if err != nil {
		return errors.Wrap(err, "failed to marshal config")
	}
	path := filepath.Join(dirPath, configFileName)
	if err := os.WriteFile(path, b, fileMode); err != nil {
		return errors.Wrapf(err, "failed to write config file: %s", configFileName)
	}
	return nil
}

// ReadOrCreate reads app config from directory or creates a new one.
func ReadOrCreate(dirPath string) (*Config, error) {
	if dirPath == "" {
		return nil, errors.New("config directory required")
	}

	if _, err := os.Stat(dirPath); errors.Is(err, os.ErrNotExist) {
		err := os.MkdirAll(dirPath, dirMode)
		if err != nil {
			return nil, errors.Wrapf(err, "failed to create dir: %s", dirPath)
		}
	}

	path := filepath.Join(dirPath, configFileName)

	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		slog.Debug("creating default config", "path", path)
		if err := Save(dirPath, getDefaultConfig(dirPath)); err != nil {
			return nil, errors.Wrap(err, "failed to create default config")
		}
	}

	j, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrapf(err, "error opening config file: %s", path)
	}
	defer j.Close()

	b, err := io.ReadAll(j)
	if err != nil {
		return nil, errors.Wrapf(err, "error reading config file: %s", path)
	}

	c := getDefaultConfig(dirPath)
	if err := yaml.Unmarshal(b, c); err != nil {
		return nil, errors.Wrapf(err, "error unmarshalling config file: %s", path)
	}
	return c, nil
}

// ApplyEnv overrides config values with GORAKSHA_* environment variables.
func (c *Config) ApplyEnv() {
	c.Address = getEnv(EnvAddress, c.Address)
	c.DB = getEnv(EnvDB, c.DB)
	c.LogLevel = getEnv(EnvLogLevel, c.LogLevel)
	c.LogFile = getEnv(EnvLogFile, c.LogFile)
	c.APIToken = getEnv(EnvAPIToken, c.APIToken)
}

func getEnv(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

// GetOrCreateHomeDir returns the home directory for the current user.
// The create flag is set to true if the directory was created.
func GetOrCreateHomeDir(name string) (path string, created bool, err error) {
	if name == "" {
		return "", false, errors.New("name cannot be empty")
	}

	if !strings.HasPrefix(name, ".") {
		name = "." + name
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return "", false, errors.Wrap(err, "failed to get user home dir")
	}
	slog.Debug("home dir", "path", home)

	dir := filepath.Join(home, name)
	if _, err := os.Stat(dir); errors.Is(err, os.ErrNotExist) {
		slog.Debug("creating dir", "path", dir)
		err := os.Mkdir(dir, dirMode)
		if err != nil {
			return "", false, errors.Wrapf(err, "failed to create dir: %s", dir)
		}
		created = true
	}
	return dir, created, nil
}
