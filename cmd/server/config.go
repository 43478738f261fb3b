package main

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/MegaGrindStone/data-analyzer-ui/internal/stream"
	"gopkg.in/yaml.v3"
)

type config struct {
	Port       string        `yaml:"port"`
	BackendURL string        `yaml:"backendURL"`
	DBPath     string        `yaml:"dbPath"`
	LogLevel   string        `yaml:"logLevel"`
	LogFormat  string        `yaml:"logFormat"`
	Backend    backendConfig `yaml:"backend"`
	Stream     streamConfig  `yaml:"stream"`
}

type backendConfig struct {
	// Timeout bounds upload, summary and visualization requests. Zero disables it.
	Timeout time.Duration `yaml:"timeout"`
}

type streamConfig struct {
	// Malformed is "skip" or "abort".
	Malformed string `yaml:"malformed"`
}

// flagValues holds the command line flags. Only flags set explicitly override the configuration.
type flagValues struct {
	configPath     string
	port           string
	backendURL     string
	dbPath         string
	logLevel       string
	logFormat      string
	backendTimeout time.Duration
	malformed      string
}

const appDirName = "data-analyzer"

func defaultConfig(cfgDir string) config {
	return config{
		Port:       "8080",
		BackendURL: "http://localhost:8000",
		DBPath:     filepath.Join(cfgDir, appDirName, "store.db"),
		LogLevel:   "info",
		LogFormat:  "text",
		Stream:     streamConfig{Malformed: "skip"},
	}
}

// UnmarshalYAML overlays the keys present in the document on c, so a partial file keeps the defaults of
// the keys it omits.
func (c *config) UnmarshalYAML(value *yaml.Node) error {
	var rawConfig struct {
		Port       string `yaml:"port"`
		BackendURL string `yaml:"backendURL"`
		DBPath     string `yaml:"dbPath"`
		LogLevel   string `yaml:"logLevel"`
		LogFormat  string `yaml:"logFormat"`
		Backend    struct {
			Timeout string `yaml:"timeout"`
		} `yaml:"backend"`
		Stream struct {
			Malformed string `yaml:"malformed"`
		} `yaml:"stream"`
	}

	if err := value.Decode(&rawConfig); err != nil {
		return err
	}

	setString(&c.Port, rawConfig.Port)
	setString(&c.BackendURL, rawConfig.BackendURL)
	setString(&c.DBPath, rawConfig.DBPath)
	setString(&c.LogLevel, rawConfig.LogLevel)
	setString(&c.LogFormat, rawConfig.LogFormat)
	setString(&c.Stream.Malformed, rawConfig.Stream.Malformed)

	if rawConfig.Backend.Timeout != "" {
		timeout, err := time.ParseDuration(rawConfig.Backend.Timeout)
		if err != nil {
			return fmt.Errorf("invalid backend timeout: %w", err)
		}
		c.Backend.Timeout = timeout
	}

	return nil
}

func setString(dst *string, v string) {
	if v = strings.TrimSpace(v); v != "" {
		*dst = v
	}
}

// loadFile reads the YAML file at path into c. A missing file is only an error when required is set.
func (c *config) loadFile(path string, required bool) error {
	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) && !required {
			return nil
		}
		return fmt.Errorf("error opening config file: %w", err)
	}
	defer f.Close()

	if err := yaml.NewDecoder(f).Decode(c); err != nil {
		if errors.Is(err, io.EOF) {
			return nil
		}
		return fmt.Errorf("error decoding config file: %w", err)
	}
	return nil
}

func (c *config) applyEnv(getenv func(string) string) {
	setString(&c.Port, getenv("PORT"))
	setString(&c.BackendURL, getenv("BACKEND_URL"))
	setString(&c.DBPath, getenv("DB_PATH"))
	setString(&c.LogLevel, getenv("LOG_LEVEL"))
	setString(&c.LogFormat, getenv("LOG_FORMAT"))
}

func (c *config) applyFlags(changed func(string) bool, f flagValues) {
	if changed("port") {
		c.Port = f.port
	}
	if changed("backend-url") {
		c.BackendURL = f.backendURL
	}
	if changed("db-path") {
		c.DBPath = f.dbPath
	}
	if changed("log-level") {
		c.LogLevel = f.logLevel
	}
	if changed("log-format") {
		c.LogFormat = f.logFormat
	}
	if changed("backend-timeout") {
		c.Backend.Timeout = f.backendTimeout
	}
	if changed("malformed") {
		c.Stream.Malformed = f.malformed
	}
}

func (c config) validate() error {
	port, err := strconv.Atoi(c.Port)
	if err != nil || port < 1 || port > 65535 {
		return fmt.Errorf("invalid port: %q", c.Port)
	}

	u, err := url.Parse(c.BackendURL)
	if err != nil {
		return fmt.Errorf("invalid backend url: %w", err)
	}
	if (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("invalid backend url: %q, expected an http(s) URL", c.BackendURL)
	}

	if c.DBPath == "" {
		return fmt.Errorf("db path is required")
	}

	if _, err := parseLogLevel(c.LogLevel); err != nil {
		return err
	}
	switch c.LogFormat {
	case "text", "json":
	default:
		return fmt.Errorf("unknown log format: %s", c.LogFormat)
	}

	if c.Backend.Timeout < 0 {
		return fmt.Errorf("backend timeout must not be negative")
	}

	if _, err := stream.ParsePolicy(c.Stream.Malformed); err != nil {
		return err
	}

	return nil
}

func (c config) malformedPolicy() stream.Policy {
	// validate has already rejected unknown values.
	p, _ := stream.ParsePolicy(c.Stream.Malformed)
	return p
}

func parseLogLevel(s string) (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(s)); err != nil {
		return slog.LevelInfo, fmt.Errorf("invalid log level: %w", err)
	}
	return level, nil
}

func (c config) logger(w io.Writer) *slog.Logger {
	level, _ := parseLogLevel(c.LogLevel)
	opts := &slog.HandlerOptions{Level: level}

	var handler slog.Handler = slog.NewTextHandler(w, opts)
	if c.LogFormat == "json" {
		handler = slog.NewJSONHandler(w, opts)
	}
	return slog.New(handler)
}
