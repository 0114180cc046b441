package config

import (
	"context"
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/pelletier/go-toml/v2"
)

const (
	DefaultMinScore          = 0.7
	DefaultScanIntervalHours = 24
	DefaultIntegrateWorkers  = 4
	DefaultGitHubBaseURL     = "https://api.github.com"
	DefaultGitHubPerPage     = 30
	DefaultTelegramBaseURL   = "https://api.telegram.org"
	DefaultOutputDir         = "skills"
)

// DefaultSources is the source order used when none is configured.
var DefaultSources = []string{"github", "clawhub"}

// DefaultGitHubQueries are the repository searches run by the GitHub scout.
var DefaultGitHubQueries = []string{"zeroclaw skill", "ai agent skill"}

// GitHubConfig holds the GitHub scout settings.
type GitHubConfig struct {
	Token   string   `toml:"token"`
	BaseURL string   `toml:"base_url" validate:"required,url"`
	Queries []string `toml:"queries" validate:"min=1,dive,required"`
	PerPage int      `toml:"per_page" validate:"gte=1,lte=100"`
}

// ForgeConfig is the already-validated structure consumed by the pipeline.
type ForgeConfig struct {
	Enabled           bool         `toml:"enabled"`
	AutoIntegrate     bool         `toml:"auto_integrate"`
	MinScore          float64      `toml:"min_score" validate:"gte=0,lte=1"`
	Sources           []string     `toml:"sources" validate:"dive,required"`
	OutputDir         string       `toml:"output_dir" validate:"required"`
	Overwrite         bool         `toml:"overwrite"`
	IntegrateWorkers  int          `toml:"integrate_workers" validate:"gte=1,lte=64"`
	ScanIntervalHours int          `toml:"scan_interval_hours" validate:"gte=1"`
	DeniedLicenses    []string     `toml:"denied_licenses"`
	GitHub            GitHubConfig `toml:"github"`
}

// TelegramConfig configures the operator notification sink.
type TelegramConfig struct {
	BotToken     string   `toml:"bot_token"`
	AllowedUsers []string `toml:"allowed_users"`
	BaseURL      string   `toml:"base_url"`
}

// Config holds the application configuration
type Config struct {
	Forge       ForgeConfig
	Telegram    TelegramConfig
	LogLevel    string
	LogFile     string
	DBPath      string
	ConfigPath  string
	ForgeDir    string
	ProjectRoot string
}

type fileConfig struct {
	SkillForge struct {
		Enabled           *bool    `toml:"enabled"`
		AutoIntegrate     *bool    `toml:"auto_integrate"`
		MinScore          *float64 `toml:"min_score"`
		Sources           []string `toml:"sources"`
		OutputDir         string   `toml:"output_dir"`
		Overwrite         bool     `toml:"overwrite"`
		IntegrateWorkers  int      `toml:"integrate_workers"`
		ScanIntervalHours int      `toml:"scan_interval_hours"`
		DeniedLicenses    []string `toml:"denied_licenses"`
		GitHub            struct {
			Token   string   `toml:"token"`
			BaseURL string   `toml:"base_url"`
			Queries []string `toml:"queries"`
			PerPage int      `toml:"per_page"`
		} `toml:"github"`
	} `toml:"skillforge"`
	Notify struct {
		Telegram TelegramConfig `toml:"telegram"`
	} `toml:"notify"`
	Logging struct {
		Level string `toml:"level"`
		File  string `toml:"file"`
	} `toml:"logging"`
	Storage struct {
		DBPath string `toml:"db_path"`
	} `toml:"storage"`
}

// ConfigurationError reports a configuration that cannot be used for a run.
type ConfigurationError struct {
	Field  string
	Reason string
}

func (e *ConfigurationError) Error() string {
	if e.Field == "" {
		return "invalid configuration: " + e.Reason
	}
	return fmt.Sprintf("invalid configuration: %s: %s", e.Field, e.Reason)
}

// DefaultForgeConfig returns the forge settings used when nothing is configured.
func DefaultForgeConfig() ForgeConfig {
	return ForgeConfig{
		Enabled:           false,
		AutoIntegrate:     true,
		MinScore:          DefaultMinScore,
		Sources:           append([]string(nil), DefaultSources...),
		OutputDir:         DefaultOutputDir,
		IntegrateWorkers:  DefaultIntegrateWorkers,
		ScanIntervalHours: DefaultScanIntervalHours,
		GitHub: GitHubConfig{
			BaseURL: DefaultGitHubBaseURL,
			Queries: append([]string(nil), DefaultGitHubQueries...),
			PerPage: DefaultGitHubPerPage,
		},
	}
}

// LoadConfig loads configuration from file, environment variables, and defaults
func LoadConfig() (*Config, error) {
	projectRoot, err := FindProjectRoot()
	if err != nil {
		return nil, err
	}
	return LoadConfigFrom(projectRoot)
}

// LoadConfigFrom loads configuration for an explicit project root.
func LoadConfigFrom(projectRoot string) (*Config, error) {
	forgeDir := GetForgeDir(projectRoot)
	configPath := filepath.Join(forgeDir, "config.toml")

	if err := EnsureForgeDirs(forgeDir); err != nil {
		return nil, err
	}

	cfg := &Config{
		Forge: DefaultForgeConfig(),
		Telegram: TelegramConfig{
			BaseURL: DefaultTelegramBaseURL,
		},
		LogLevel:    "info",
		LogFile:     filepath.Join(forgeDir, "logs", "skillforge.log"),
		DBPath:      filepath.Join(forgeDir, "store", "runs.sqlite3"),
		ConfigPath:  configPath,
		ForgeDir:    forgeDir,
		ProjectRoot: projectRoot,
	}

	if _, err := os.Stat(configPath); err == nil {
		fileData, err := os.ReadFile(configPath)
		if err != nil {
			return nil, err
		}
		if err := cfg.applyFile(fileData); err != nil {
			return nil, fmt.Errorf("failed to parse %s: %w", configPath, err)
		}
	}

	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}

	if !filepath.IsAbs(cfg.Forge.OutputDir) {
		cfg.Forge.OutputDir = filepath.Join(projectRoot, cfg.Forge.OutputDir)
	}
	if !filepath.IsAbs(cfg.DBPath) {
		cfg.DBPath = filepath.Join(forgeDir, cfg.DBPath)
	}
	cfg.Forge.GitHub.BaseURL = normalizeBaseURL(cfg.Forge.GitHub.BaseURL)
	cfg.Telegram.BaseURL = normalizeBaseURL(cfg.Telegram.BaseURL)

	return cfg, nil
}

func (c *Config) applyFile(data []byte) error {
	var parsed fileConfig
	if err := toml.Unmarshal(data, &parsed); err != nil {
		return err
	}

	sf := parsed.SkillForge
	if sf.Enabled != nil {
		c.Forge.Enabled = *sf.Enabled
	}
	if sf.AutoIntegrate != nil {
		c.Forge.AutoIntegrate = *sf.AutoIntegrate
	}
	if sf.MinScore != nil {
		c.Forge.MinScore = *sf.MinScore
	}
	if sf.Sources != nil {
		c.Forge.Sources = sf.Sources
	}
	if sf.OutputDir != "" {
		c.Forge.OutputDir = sf.OutputDir
	}
	c.Forge.Overwrite = sf.Overwrite
	if sf.IntegrateWorkers != 0 {
		c.Forge.IntegrateWorkers = sf.IntegrateWorkers
	}
	if sf.ScanIntervalHours != 0 {
		c.Forge.ScanIntervalHours = sf.ScanIntervalHours
	}
	if len(sf.DeniedLicenses) > 0 {
		c.Forge.DeniedLicenses = sf.DeniedLicenses
	}
	if sf.GitHub.Token != "" {
		c.Forge.GitHub.Token = sf.GitHub.Token
	}
	if sf.GitHub.BaseURL != "" {
		c.Forge.GitHub.BaseURL = sf.GitHub.BaseURL
	}
	if len(sf.GitHub.Queries) > 0 {
		c.Forge.GitHub.Queries = sf.GitHub.Queries
	}
	if sf.GitHub.PerPage != 0 {
		c.Forge.GitHub.PerPage = sf.GitHub.PerPage
	}

	tg := parsed.Notify.Telegram
	if tg.BotToken != "" {
		c.Telegram.BotToken = tg.BotToken
	}
	if len(tg.AllowedUsers) > 0 {
		c.Telegram.AllowedUsers = tg.AllowedUsers
	}
	if tg.BaseURL != "" {
		c.Telegram.BaseURL = tg.BaseURL
	}

	if parsed.Logging.Level != "" {
		c.LogLevel = parsed.Logging.Level
	}
	if parsed.Logging.File != "" {
		c.LogFile = parsed.Logging.File
	}
	if parsed.Storage.DBPath != "" {
		c.DBPath = parsed.Storage.DBPath
	}
	return nil
}

// applyEnv applies SKILLFORGE_* environment variable overrides. A numeric
// variable that is set but does not parse is a *ConfigurationError.
func (c *Config) applyEnv() error {
	if enabled := os.Getenv("SKILLFORGE_ENABLED"); enabled != "" {
		c.Forge.Enabled = parseBool(enabled)
	}
	if auto := os.Getenv("SKILLFORGE_AUTO_INTEGRATE"); auto != "" {
		c.Forge.AutoIntegrate = parseBool(auto)
	}
	if minScore := os.Getenv("SKILLFORGE_MIN_SCORE"); minScore != "" {
		score, err := strconv.ParseFloat(strings.TrimSpace(minScore), 64)
		if err != nil || math.IsNaN(score) || math.IsInf(score, 0) {
			return &ConfigurationError{Field: "SKILLFORGE_MIN_SCORE", Reason: fmt.Sprintf("not a number: %q", minScore)}
		}
		c.Forge.MinScore = score
	}
	if sources := os.Getenv("SKILLFORGE_SOURCES"); sources != "" {
		if list := splitList(sources); len(list) > 0 {
			c.Forge.Sources = list
		}
	}
	if outputDir := os.Getenv("SKILLFORGE_OUTPUT_DIR"); outputDir != "" {
		c.Forge.OutputDir = outputDir
	}
	if interval := os.Getenv("SKILLFORGE_SCAN_INTERVAL_HOURS"); interval != "" {
		hours, err := strconv.Atoi(strings.TrimSpace(interval))
		if err != nil {
			return &ConfigurationError{Field: "SKILLFORGE_SCAN_INTERVAL_HOURS", Reason: fmt.Sprintf("not a whole number of hours: %q", interval)}
		}
		c.Forge.ScanIntervalHours = hours
	}

	// The conventional GITHUB_TOKEN is honoured, the prefixed variable wins.
	if token := os.Getenv("GITHUB_TOKEN"); token != "" {
		c.Forge.GitHub.Token = token
	}
	if token := os.Getenv("SKILLFORGE_GITHUB_TOKEN"); token != "" {
		c.Forge.GitHub.Token = token
	}
	if botToken := os.Getenv("SKILLFORGE_TELEGRAM_BOT_TOKEN"); botToken != "" {
		c.Telegram.BotToken = botToken
	}
	if users := os.Getenv("SKILLFORGE_TELEGRAM_ALLOWED_USERS"); users != "" {
		c.Telegram.AllowedUsers = splitList(users)
	}

	if level := os.Getenv("SKILLFORGE_LOG_LEVEL"); level != "" {
		c.LogLevel = level
	}
	if logFile := os.Getenv("SKILLFORGE_LOG_FILE"); logFile != "" {
		c.LogFile = logFile
	}
	if dbPath := os.Getenv("SKILLFORGE_DB_PATH"); dbPath != "" {
		c.DBPath = dbPath
	}
	return nil
}

func parseBool(v string) bool {
	return v == "true" || v == "1"
}

func splitList(v string) []string {
	var out []string
	for _, part := range strings.Split(v, ",") {
		part = strings.TrimSpace(part)
		if part != "" {
			out = append(out, part)
		}
	}
	return out
}

func normalizeBaseURL(baseURL string) string {
	baseURL = strings.TrimSpace(baseURL)
	if baseURL == "" {
		return baseURL
	}
	return strings.TrimRight(baseURL, "/")
}

// Context key for storing config in context
type configContextKey struct{}

// WithConfig adds the config to the context
func WithConfig(ctx context.Context, cfg *Config) context.Context {
	return context.WithValue(ctx, configContextKey{}, cfg)
}

// FromContext retrieves the config from the context
func FromContext(ctx context.Context) *Config {
	if cfg, ok := ctx.Value(configContextKey{}).(*Config); ok {
		return cfg
	}
	return nil
}

var validate = validator.New()

// Validate verifies the forge settings are usable for a run.
// Every failure is reported as a *ConfigurationError.
func (f ForgeConfig) Validate() error {
	if err := validate.Struct(f); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			fe := verrs[0]
			return &ConfigurationError{
				Field:  fe.Namespace(),
				Reason: fmt.Sprintf("failed %q check (value %v)", fe.Tag(), fe.Value()),
			}
		}
		return &ConfigurationError{Reason: err.Error()}
	}
	if strings.TrimSpace(f.OutputDir) == "" {
		return &ConfigurationError{Field: "ForgeConfig.OutputDir", Reason: "output directory is empty"}
	}
	return nil
}

// Validate verifies the configuration is usable.
func (c *Config) Validate() error {
	if err := c.Forge.Validate(); err != nil {
		return err
	}
	switch strings.ToLower(c.LogLevel) {
	case "debug", "info", "warn", "error", "off":
	default:
		return &ConfigurationError{Field: "logging.level", Reason: fmt.Sprintf("unknown level %q", c.LogLevel)}
	}
	if strings.TrimSpace(c.DBPath) == "" {
		return &ConfigurationError{Field: "storage.db_path", Reason: "database path is empty"}
	}
	return nil
}
