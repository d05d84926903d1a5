// Package config provides YAML-based configuration loading for coursereel.
package config

import (
	"errors"
	"fmt"
	"os"
	"slices"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/zulandar/coursereel/internal/catalog"
	"github.com/zulandar/coursereel/internal/logging"
	"github.com/zulandar/coursereel/internal/validate"
)

// DefaultPath is the config file used when none is given.
const DefaultPath = "coursereel.yaml"

// Environment variables that override secrets in the file.
const (
	EnvSlackBotToken   = "COURSEREEL_SLACK_BOT_TOKEN"
	EnvDiscordBotToken = "COURSEREEL_DISCORD_BOT_TOKEN"
	EnvDBPassword      = "COURSEREEL_DB_PASSWORD"
)

// Config is the top-level coursereel configuration.
type Config struct {
	Database DatabaseConfig `yaml:"database"`
	Server   ServerConfig   `yaml:"server"`
	Pipeline PipelineConfig `yaml:"pipeline"`
	Review   ReviewConfig   `yaml:"review"`
	Upload   UploadConfig   `yaml:"upload"`
	Catalog  CatalogConfig  `yaml:"catalog"`
	Logging  LoggingConfig  `yaml:"logging"`
	Notify   NotifyConfig   `yaml:"notify"`
}

// DatabaseConfig selects and addresses the database.
type DatabaseConfig struct {
	Driver   string `yaml:"driver" validate:"oneof=sqlite mysql"`
	Path     string `yaml:"path"`
	Host     string `yaml:"host"`
	Port     int    `yaml:"port" validate:"gte=0,lte=65535"`
	Name     string `yaml:"name"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
}

// ServerConfig holds HTTP settings.
type ServerConfig struct {
	Port int `yaml:"port" validate:"gt=0,lte=65535"`
}

// PipelineConfig tunes the generation simulator and job limits.
type PipelineConfig struct {
	Tick         time.Duration `yaml:"tick" validate:"gt=0"`
	MinStep      int           `yaml:"min_step" validate:"gt=0,lte=100"`
	MaxStep      int           `yaml:"max_step" validate:"gtefield=MinStep,lte=100"`
	Timeout      time.Duration `yaml:"timeout" validate:"gt=0"`
	FailureRate  float64       `yaml:"failure_rate" validate:"gte=0,lte=1"`
	MediaBaseURL string        `yaml:"media_base_url"`
}

// ReviewConfig controls review synchronization and the reviewer digest.
type ReviewConfig struct {
	SyncInterval time.Duration `yaml:"sync_interval" validate:"gt=0"`
	DigestCron   string        `yaml:"digest_cron"`
}

// UploadConfig holds the source file limits.
type UploadConfig struct {
	MaxSizeMB         int      `yaml:"max_size_mb" validate:"gt=0"`
	AllowedExtensions []string `yaml:"allowed_extensions" validate:"min=1,dive,required"`
}

// CatalogConfig is the static catalog seeded into the database.
type CatalogConfig struct {
	DefaultCategory string                `yaml:"default_category"`
	DefaultTemplate string                `yaml:"default_template"`
	Categories      []catalog.Category    `yaml:"categories"`
	Departments     []catalog.Department  `yaml:"departments"`
	Templates       []catalog.Template    `yaml:"templates"`
	JobTrainings    []catalog.JobTraining `yaml:"job_trainings"`
}

// LoggingConfig configures logrus and file rotation.
type LoggingConfig struct {
	Level      string `yaml:"level" validate:"oneof=trace debug info warn warning error fatal panic"`
	Format     string `yaml:"format" validate:"oneof=text json"`
	File       string `yaml:"file"`
	MaxSizeMB  int    `yaml:"max_size_mb"`
	MaxBackups int    `yaml:"max_backups"`
	MaxAgeDays int    `yaml:"max_age_days"`
	Compress   bool   `yaml:"compress"`
}

// NotifyConfig holds chat notification targets. Empty tokens disable them.
type NotifyConfig struct {
	Slack   ChatConfig `yaml:"slack"`
	Discord ChatConfig `yaml:"discord"`
}

// ChatConfig addresses one chat channel.
type ChatConfig struct {
	BotToken  string `yaml:"bot_token"`
	ChannelID string `yaml:"channel_id"`
}

// Enabled reports whether the channel has both a token and a channel id.
func (c ChatConfig) Enabled() bool {
	return c.BotToken != "" && c.ChannelID != ""
}

// LoadEnv loads .env files into the process environment. Missing files are
// ignored; variables already set win.
func LoadEnv(files ...string) error {
	if len(files) == 0 {
		files = []string{".env"}
	}
	for _, f := range files {
		if err := godotenv.Load(f); err != nil && !errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("config: load %s: %w", f, err)
		}
	}
	return nil
}

// Load reads a YAML config file from path and returns a validated Config.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}
	return Parse(data)
}

// Parse unmarshals YAML bytes into a validated Config.
func Parse(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("config: parse: %w", err)
	}
	cfg.applyEnv()
	cfg.applyDefaults()
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Default returns the configuration used when no file exists.
func Default() *Config {
	var cfg Config
	cfg.applyEnv()
	cfg.applyDefaults()
	return &cfg
}

func (c *Config) applyEnv() {
	if v := os.Getenv(EnvSlackBotToken); v != "" {
		c.Notify.Slack.BotToken = v
	}
	if v := os.Getenv(EnvDiscordBotToken); v != "" {
		c.Notify.Discord.BotToken = v
	}
	if v := os.Getenv(EnvDBPassword); v != "" {
		c.Database.Password = v
	}
}

// applyDefaults fills in derived and default values.
func (c *Config) applyDefaults() {
	if c.Database.Driver == "" {
		c.Database.Driver = "sqlite"
	}
	if c.Database.Driver == "sqlite" && c.Database.Path == "" {
		c.Database.Path = "coursereel.db"
	}
	if c.Database.Driver == "mysql" {
		if c.Database.Host == "" {
			c.Database.Host = "127.0.0.1"
		}
		if c.Database.Port == 0 {
			c.Database.Port = 3306
		}
		if c.Database.Name == "" {
			c.Database.Name = "coursereel"
		}
		if c.Database.User == "" {
			c.Database.User = "root"
		}
	}
	if c.Server.Port == 0 {
		c.Server.Port = 8080
	}
	if c.Pipeline.Tick == 0 {
		c.Pipeline.Tick = 200 * time.Millisecond
	}
	if c.Pipeline.MinStep == 0 {
		c.Pipeline.MinStep = 5
	}
	if c.Pipeline.MaxStep == 0 {
		c.Pipeline.MaxStep = 20
	}
	if c.Pipeline.Timeout == 0 {
		c.Pipeline.Timeout = 10 * time.Minute
	}
	if c.Pipeline.MediaBaseURL == "" {
		c.Pipeline.MediaBaseURL = "/media"
	}
	if c.Review.SyncInterval == 0 {
		c.Review.SyncInterval = time.Second
	}
	if c.Upload.MaxSizeMB == 0 {
		c.Upload.MaxSizeMB = 50
	}
	if len(c.Upload.AllowedExtensions) == 0 {
		c.Upload.AllowedExtensions = slices.Clone(validate.DefaultExtensions)
	}
	for i, ext := range c.Upload.AllowedExtensions {
		c.Upload.AllowedExtensions[i] = strings.ToLower(strings.TrimPrefix(strings.TrimSpace(ext), "."))
	}
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if c.Logging.Format == "" {
		c.Logging.Format = "text"
	}
	if c.Logging.File != "" {
		if c.Logging.MaxSizeMB == 0 {
			c.Logging.MaxSizeMB = 100
		}
		if c.Logging.MaxBackups == 0 {
			c.Logging.MaxBackups = 5
		}
		if c.Logging.MaxAgeDays == 0 {
			c.Logging.MaxAgeDays = 30
		}
	}
	for i := range c.Catalog.Categories {
		if k, ok := catalog.ParseKind(string(c.Catalog.Categories[i].Kind)); ok {
			c.Catalog.Categories[i].Kind = k
		}
	}
}

var structValidator = validator.New()

// validate checks that all required fields are present and consistent.
func (c *Config) validate() error {
	var errs []string
	if err := structValidator.Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			for _, fe := range verrs {
				errs = append(errs, fmt.Sprintf("%s fails %q", fe.Namespace(), fe.Tag()))
			}
		} else {
			errs = append(errs, err.Error())
		}
	}
	if c.Database.Driver == "mysql" && c.Database.Name == "" {
		errs = append(errs, "database.name is required for mysql")
	}
	if len(c.Catalog.Categories) > 0 || len(c.Catalog.Templates) > 0 {
		if err := c.catalogData().Validate(); err != nil {
			errs = append(errs, err.Error())
		}
	}
	if id := c.Catalog.DefaultCategory; id != "" && !slices.ContainsFunc(c.Catalog.Categories, func(cat catalog.Category) bool { return cat.ID == id }) {
		errs = append(errs, fmt.Sprintf("catalog.default_category %q is not a listed category", id))
	}
	if id := c.Catalog.DefaultTemplate; id != "" && !slices.ContainsFunc(c.Catalog.Templates, func(t catalog.Template) bool { return t.ID == id }) {
		errs = append(errs, fmt.Sprintf("catalog.default_template %q is not a listed template", id))
	}
	if c.Notify.Slack.BotToken != "" && c.Notify.Slack.ChannelID == "" {
		errs = append(errs, "notify.slack.channel_id is required when a bot token is set")
	}
	if c.Notify.Discord.BotToken != "" && c.Notify.Discord.ChannelID == "" {
		errs = append(errs, "notify.discord.channel_id is required when a bot token is set")
	}
	if len(errs) > 0 {
		return fmt.Errorf("config: validation failed: %s", strings.Join(errs, "; "))
	}
	return nil
}

// catalogData returns the configured catalog with the configured defaults
// moved to the front, which is where catalog lookups take defaults from.
func (c *Config) catalogData() catalog.Data {
	cats := slices.Clone(c.Catalog.Categories)
	if i := slices.IndexFunc(cats, func(cat catalog.Category) bool { return cat.ID == c.Catalog.DefaultCategory }); i > 0 {
		cats = append([]catalog.Category{cats[i]}, slices.Delete(cats, i, i+1)...)
	}
	tmpls := slices.Clone(c.Catalog.Templates)
	if i := slices.IndexFunc(tmpls, func(t catalog.Template) bool { return t.ID == c.Catalog.DefaultTemplate }); i > 0 {
		tmpls = append([]catalog.Template{tmpls[i]}, slices.Delete(tmpls, i, i+1)...)
	}
	return catalog.Data{
		CategoryList:    cats,
		DepartmentList:  slices.Clone(c.Catalog.Departments),
		TemplateList:    tmpls,
		JobTrainingList: slices.Clone(c.Catalog.JobTrainings),
	}
}

// ToCatalog returns the configured catalog.
func (c *Config) ToCatalog() catalog.Data {
	return c.catalogData()
}

// Rules returns the source file limits.
func (c *Config) Rules() validate.Rules {
	return validate.Rules{
		MaxSourceBytes:    int64(c.Upload.MaxSizeMB) * 1024 * 1024,
		AllowedExtensions: slices.Clone(c.Upload.AllowedExtensions),
	}
}

// LogOptions returns the logger options.
func (c *Config) LogOptions() logging.Options {
	return logging.Options{
		Level:      c.Logging.Level,
		Format:     c.Logging.Format,
		File:       c.Logging.File,
		MaxSizeMB:  c.Logging.MaxSizeMB,
		MaxBackups: c.Logging.MaxBackups,
		MaxAgeDays: c.Logging.MaxAgeDays,
		Compress:   c.Logging.Compress,
	}
}
